package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/invoiceflow/assistant/internal/agent/model"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey           string
	BaseURL          string
	ClassifierConfig *model.ClassifierModelConfig
	GeneratorConfig  *model.GeneratorModelConfig
	ResponseConfig   *model.ResponseModelConfig
}

// ChatModels holds the three chat models the workflow depends on: a
// cheap classifier for intent and file checks, a deterministic
// generator for SQL and extraction, and a responder for user-facing
// text.
type ChatModels struct {
	Classifier          *gemini.ChatModel
	Generator           *gemini.ChatModel
	Responder           *gemini.ChatModel
	ClassifierModelName string
	GeneratorModelName  string
	ResponseModelName   string
}

// NewChatModels creates the classifier, generator and responder chat
// models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	classifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ClassifierConfig.Model,
		Temperature: &config.ClassifierConfig.Temperature,
		MaxTokens:   &config.ClassifierConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	generator, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.GeneratorConfig.Model,
		Temperature: &config.GeneratorConfig.Temperature,
		MaxTokens:   &config.GeneratorConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating generator model")
		return nil, fmt.Errorf("error creating generator model: %w", err)
	}

	responder, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ResponseConfig.Model,
		Temperature: &config.ResponseConfig.Temperature,
		MaxTokens:   &config.ResponseConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	return &ChatModels{
		Classifier:          classifier,
		Generator:           generator,
		Responder:           responder,
		ClassifierModelName: config.ClassifierConfig.Model,
		GeneratorModelName:  config.GeneratorConfig.Model,
		ResponseModelName:   config.ResponseConfig.Model,
	}, nil
}

// completionService adapts a Gemini chat model to the CompletionService
// boundary and accounts usage cost on every call.
type completionService struct {
	chatModel *gemini.ChatModel
	modelName string
}

// NewCompletionService wraps a chat model as a CompletionService.
func NewCompletionService(chatModel *gemini.ChatModel, modelName string) model.CompletionService {
	return &completionService{chatModel: chatModel, modelName: modelName}
}

func (c *completionService) Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	out, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}
	logUsageCost(out, c.modelName)
	return out, nil
}

// logUsageCost computes and logs the USD cost of one completion when
// usage metadata is present and cost accounting is enabled.
func logUsageCost(out *schema.Message, modelName string) {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	logx.Debug().
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
