package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/invoiceflow/assistant/internal/agent/graph"
	"github.com/invoiceflow/assistant/internal/agent/model"
	"github.com/invoiceflow/assistant/internal/agent/repo"
	"github.com/invoiceflow/assistant/internal/core"
	logx "github.com/invoiceflow/assistant/pkg/logger"
	pkgpostgres "github.com/invoiceflow/assistant/pkg/postgres"
	pkgredis "github.com/invoiceflow/assistant/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	Environment string `envconfig:"APP_ENV" default:"development"`

	// Workflow configs
	Classifier   model.ClassifierModelConfig
	Generator    model.GeneratorModelConfig
	Response     model.ResponseModelConfig
	Conversation model.ConversationConfig

	// When false, compiled queries are returned without touching the database.
	ExecuteQueries bool `envconfig:"EXECUTE_QUERIES" default:"true"`
}

func main() {
	fmt.Println("Starting invoice assistant demo...")
	ctx := context.Background()
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	fmt.Println("Connected to Redis successfully")

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	cfg := graph.Config{
		APIKey:           envCfg.APIKey,
		BaseURL:          envCfg.BaseURL,
		ClassifierModel:  envCfg.Classifier,
		GeneratorModel:   envCfg.Generator,
		ResponseModel:    envCfg.Response,
		Conversation:     envCfg.Conversation,
		ConversationRepo: repo.NewRedisConversationRepository(rdb, ttl),
	}

	if envCfg.ExecuteQueries {
		db, err := envCfg.Postgres.New()
		if err != nil {
			log.Fatalf("Failed to initialise Postgres pool: %v", err)
		}
		defer db.Close()
		cfg.QueryExecutor = repo.NewPostgresInvoiceStore(db)
		fmt.Println("Connected to Postgres successfully")
	}

	runner, err := graph.BuildAssistantGraph(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	testTurns := []struct {
		description string
		text        string
	}{
		{
			description: "Initial greeting",
			text:        "Hi there!",
		},
		{
			description: "Spending question compiled to SQL",
			text:        "How much did I spend at Amazon last month?",
		},
		{
			description: "Dictated invoice",
			text:        "Record an invoice from Office Depot, $142.50, dated yesterday, for printer paper",
		},
	}

	conversationID := "demo-conversation-1"
	tenantID := "42"

	for i, turn := range testTurns {
		fmt.Printf("\nTurn %d: %s\n", i+1, turn.description)
		fmt.Printf("User: %q\n", turn.text)

		response, err := runner.Invoke(ctx, model.TurnInput{
			ConversationID: conversationID,
			TenantID:       tenantID,
			Text:           turn.text,
		})
		if err != nil {
			log.Fatalf("Failed to invoke graph for turn %d: %v", i+1, err)
		}

		fmt.Printf("Assistant: %s\n", response.Content)
		if sql, ok := response.Metadata["sql"]; ok {
			fmt.Printf("Compiled SQL: %s\n", sql)
		}

		// slight delay between turns for readability
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("\nAll demo turns completed.")
}
