// Package bootstrap wires configuration into a running orchestrator. It is
// UI-agnostic: the serve, chat, tui and mcp commands all start from Build.
package bootstrap

import (
	"fmt"
	"log"
	"os"
	"time"

	"forge/internal/config"
	"forge/internal/contextmgr"
	"forge/internal/i18n"
	"forge/internal/orchestrator"
	"forge/internal/pipeline"
	"forge/internal/provider"
	"forge/internal/storage"
)

// BuildResult 与 UI 无关的构建结果
// BuildResult is what the commands need to run. Call Close when done.
type BuildResult struct {
	Orch     *orchestrator.Orchestrator
	Store    storage.Store
	Provider provider.Provider
	Model    string
	Imported int
}

// Close flushes pending saves and closes the store.
func (r *BuildResult) Close() error {
	if r == nil {
		return nil
	}
	if r.Orch != nil {
		r.Orch.Close()
	}
	if r.Store != nil {
		return r.Store.Close()
	}
	return nil
}

// Build 按配置初始化存储、模型与编排器；调用方负责 Close
// Build opens the store under the data dir, imports legacy sessions, picks the
// providers and assembles the orchestrator.
func Build(cfg config.Config, logger *log.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "forge: ", log.LstdFlags)
	}
	if cfg.Language != "" {
		i18n.Init(cfg.Language)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	imported := 0
	if cfg.Storage.ImportDir != "" {
		imported, err = storage.ImportJSON(cfg.Storage.ImportDir, store, logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("import legacy sessions: %w", err)
		}
		if imported > 0 {
			logger.Printf("imported %d legacy sessions from %s", imported, cfg.Storage.ImportDir)
		}
	}

	chatProvider, genProvider, err := buildProviders(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tok := contextmgr.NewTokenizerForModel(cfg.Provider.Model)
	if cfg.Context.Encoding != "" {
		tok = contextmgr.NewTokenizer(cfg.Context.Encoding)
	}
	compressor := contextmgr.NewCompressor(tok)
	compressor.Window = cfg.Context.Window
	compressor.MaxMessages = cfg.Context.MaxMessages
	compressor.MaxChars = cfg.Context.MaxChars

	orch := orchestrator.New(orchestrator.Options{
		Provider:    chatProvider,
		Generator:   pipeline.NewGenerator(genProvider),
		Assembler:   contextmgr.NewAssembler(orchestrator.SystemPrompt, compressor),
		Store:       store,
		Saver:       storage.NewSaver(store, cfg.SaveDelay(), logger),
		MaxSteps:    cfg.Pipeline.MaxSteps,
		EventBuffer: cfg.Stream.EventBuffer,
		Logger:      logger,
		Now:         time.Now,
	})

	return &BuildResult{
		Orch:     orch,
		Store:    store,
		Provider: chatProvider,
		Model:    cfg.Provider.Model,
		Imported: imported,
	}, nil
}

// buildProviders returns the streaming chat provider and the provider used by
// stage generation.
func buildProviders(cfg config.Config) (chat, gen provider.Provider, err error) {
	pc := provider.OpenAIConfig{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		Model:      cfg.Provider.Model,
		TimeoutMS:  cfg.Provider.TimeoutMS,
		MaxRetries: cfg.Provider.MaxRetries,
	}
	streaming := provider.NewOpenAIProvider(pc)
	if cfg.Provider.Generator != "official" {
		return streaming, streaming, nil
	}
	official, err := provider.NewOfficialProvider(pc)
	if err != nil {
		return nil, nil, fmt.Errorf("init generator provider: %w", err)
	}
	return streaming, official, nil
}
