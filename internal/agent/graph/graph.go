package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/invoiceflow/assistant/internal/agent/graph/conversations"
	"github.com/invoiceflow/assistant/internal/agent/graph/nodes"
	"github.com/invoiceflow/assistant/internal/agent/graph/observers"
	"github.com/invoiceflow/assistant/internal/agent/model"
	"github.com/invoiceflow/assistant/internal/agent/sqlagent"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// maxRunSteps bounds one engine run. The longest path is
// InputClassifier, IntentClassifier, SqlGenerator, ResponseFormatter
// plus the terminal edge; anything beyond this is a wiring bug.
const maxRunSteps = 5

// Runner executes the compiled workflow for one user turn.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (*model.Response, error)
}

// Config holds everything needed to compose the full assistant graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs ChatModels and MessagesManager.
type Config struct {
	APIKey           string
	BaseURL          string
	ClassifierModel  model.ClassifierModelConfig
	GeneratorModel   model.GeneratorModelConfig
	ResponseModel    model.ResponseModelConfig
	Conversation     model.ConversationConfig
	ConversationRepo model.ConversationRepository

	// SchemaInfo overrides the built-in schema description when set.
	SchemaInfo string

	// FileAnalyzer overrides the default completion-backed analyzer.
	FileAnalyzer model.FileAnalyzer

	// QueryExecutor is optional; without it compiled queries are
	// returned unexecuted.
	QueryExecutor model.QueryExecutor
}

// GraphConfig holds all collaborators needed to build the graph
type GraphConfig struct {
	Classifier      model.CompletionService
	Responder       model.CompletionService
	Compiler        *sqlagent.Compiler
	FileAnalyzer    model.FileAnalyzer
	QueryExecutor   model.QueryExecutor
	MessagesManager *conversations.MessagesManager
}

// GraphBuilder handles the construction of the assistant workflow graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *model.Response]
}

type graphRunner struct {
	runnable compose.Runnable[model.TurnInput, *model.Response]
	mm       *conversations.MessagesManager
}

func (r *graphRunner) Invoke(ctx context.Context, in model.TurnInput) (*model.Response, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("workflow produced no response")
	}

	// Persist the finished turn. The engine itself never writes
	// history; a failed write degrades future context only.
	if r.mm != nil && in.Text != "" {
		conversationID := in.ConversationID
		if v, ok := out.Metadata["conversation_id"].(string); ok && v != "" {
			conversationID = v
		}
		if err := r.mm.SaveTurn(ctx, conversationID, in.Text, out.Content); err != nil {
			logx.Error().Str("conversation_id", conversationID).Err(err).Msg("failed to persist conversation turn")
		}
	}
	return out, nil
}

// BuildAssistantGraph composes ChatModels, MessagesManager, builds the graph, and returns a Runner.
func BuildAssistantGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		ClassifierConfig: &cfg.ClassifierModel,
		GeneratorConfig:  &cfg.GeneratorModel,
		ResponseConfig:   &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	classifier := nodes.NewCompletionService(cms.Classifier, cms.ClassifierModelName)
	generator := nodes.NewCompletionService(cms.Generator, cms.GeneratorModelName)
	responder := nodes.NewCompletionService(cms.Responder, cms.ResponseModelName)

	schemaInfo := cfg.SchemaInfo
	if schemaInfo == "" {
		schemaInfo = model.SchemaInfo
	}

	analyzer := cfg.FileAnalyzer
	if analyzer == nil {
		analyzer = nodes.NewLLMFileAnalyzer(classifier)
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Classifier:      classifier,
		Responder:       responder,
		Compiler:        sqlagent.NewCompiler(generator, schemaInfo),
		FileAnalyzer:    analyzer,
		QueryExecutor:   cfg.QueryExecutor,
		MessagesManager: mm,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Assistant graph built successfully")
	return &graphRunner{runnable: runnable, mm: mm}, nil
}

// BuildGraph constructs and returns the compiled workflow graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.Response], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Classifier == nil || config.Responder == nil {
		return nil, fmt.Errorf("completion services are not properly initialized")
	}
	if config.Compiler == nil {
		return nil, fmt.Errorf("sql compiler is nil")
	}
	if config.FileAnalyzer == nil {
		return nil, fmt.Errorf("file analyzer is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph:  compose.NewGraph[model.TurnInput, *model.Response](),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeInputClassifier,
		nodes.NewInputClassifierNode(b.config.MessagesManager),
	)

	b.graph.AddLambdaNode(nodes.NodeIntentClassifier,
		nodes.NewIntentClassifierNode(b.config.Classifier),
	)

	b.graph.AddLambdaNode(nodes.NodeFileValidator,
		nodes.NewFileValidatorNode(b.config.FileAnalyzer),
	)

	b.graph.AddLambdaNode(nodes.NodeEntityExtractor,
		nodes.NewEntityExtractorNode(b.config.Classifier),
	)

	b.graph.AddLambdaNode(nodes.NodeDataExtractor,
		nodes.NewDataExtractorNode(b.config.FileAnalyzer),
	)

	b.graph.AddLambdaNode(nodes.NodeSqlGenerator,
		nodes.NewSqlGeneratorNode(b.config.Compiler, b.config.QueryExecutor),
	)

	b.graph.AddLambdaNode(nodes.NodeResponseFormatter,
		nodes.NewResponseFormatterNode(b.config.Responder),
	)
}

// addEdges creates the unconditional flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputClassifier},
		{nodes.NodeEntityExtractor, nodes.NodeResponseFormatter},
		{nodes.NodeDataExtractor, nodes.NodeResponseFormatter},
		{nodes.NodeSqlGenerator, nodes.NodeResponseFormatter},
		{nodes.NodeResponseFormatter, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	inputBranch := compose.NewGraphBranch(
		nodes.NewInputRoutingCondition(),
		map[string]bool{
			nodes.NodeIntentClassifier: true,
			nodes.NodeFileValidator:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeInputClassifier, inputBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding input routing branch")
		return fmt.Errorf("error adding input routing branch: %w", err)
	}

	intentBranch := compose.NewGraphBranch(
		nodes.NewIntentRoutingCondition(),
		map[string]bool{
			nodes.NodeSqlGenerator:      true,
			nodes.NodeEntityExtractor:   true,
			nodes.NodeResponseFormatter: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeIntentClassifier, intentBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding intent routing branch")
		return fmt.Errorf("error adding intent routing branch: %w", err)
	}

	validationBranch := compose.NewGraphBranch(
		nodes.NewValidationRoutingCondition(),
		map[string]bool{
			nodes.NodeDataExtractor:     true,
			nodes.NodeResponseFormatter: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeFileValidator, validationBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding validation routing branch")
		return fmt.Errorf("error adding validation routing branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.Response], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
