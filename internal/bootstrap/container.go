package bootstrap

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"retail-analytics-copilot/internal/config"
	"retail-analytics-copilot/internal/pkg/logger"
	"retail-analytics-copilot/internal/repository/memory"
	"retail-analytics-copilot/internal/service"
	"retail-analytics-copilot/pkg/agent"
	"retail-analytics-copilot/pkg/docs"
	"retail-analytics-copilot/pkg/llm/factory"
	"retail-analytics-copilot/pkg/retrieval"
	"retail-analytics-copilot/pkg/sqltool"
)

type Container struct {
	BatchService service.IBatchService
	Logger       logger.ILogger

	executor *sqltool.Executor
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	pipelineLogger := initPipelineLogger()

	// 2. Knowledge Base
	docLoader := docs.NewLoader(cfg.Dataset.DocsDir, pipelineLogger)
	chunks, err := docLoader.Load()
	if err != nil {
		return nil, fmt.Errorf("load documents from %s: %w", cfg.Dataset.DocsDir, err)
	}
	index := retrieval.New(chunks)
	log.Printf("[INFO] Lexical index ready: %d chunks from %s", index.Size(), cfg.Dataset.DocsDir)

	// 3. Dataset
	executor, err := sqltool.Open(cfg.Dataset.DBPath, cfg.Dataset.QueryTimeout, pipelineLogger)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", cfg.Dataset.DBPath, err)
	}

	// 4. LLM Provider based on Config
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.LLMTimeout,
	)
	if err != nil {
		executor.Close()
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 5. Agent and Services
	generationAdapter := agent.NewGenerationAdapter(llmProvider, pipelineLogger)
	pipelineAgent := agent.New(index, executor, generationAdapter, cfg.App.TopK, pipelineLogger)

	checkpointRepo := memory.NewCheckpointRepository()
	batchService := service.NewBatchService(pipelineAgent, checkpointRepo, sysLogger)

	return &Container{
		BatchService: batchService,
		Logger:       sysLogger,
		executor:     executor,
	}, nil
}

func (c *Container) Close() {
	if c.executor != nil {
		c.executor.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

func initPipelineLogger() *log.Logger {
	logPath := filepath.Join(".", "logs", "pipeline.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stderr, "[PIPELINE] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}
