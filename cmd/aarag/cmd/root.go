// Package cmd provides the CLI commands for aarag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/continue-ai-company/aa-rag/internal/config"
	"github.com/continue-ai-company/aa-rag/internal/embed"
	"github.com/continue-ai-company/aa-rag/internal/engine"
	"github.com/continue-ai-company/aa-rag/internal/logging"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

// Version is the build version, overridable at link time.
var Version = "dev"

var (
	configPath string
	logLevel   string
)

// NewRootCmd creates the aarag root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aarag",
		Short: "Chunked indexing and hybrid retrieval engine",
		Long: `aarag indexes text documents into content-addressed chunks and answers
queries by fusing dense (embedding) and sparse (BM25) rankings.

Run 'aarag serve' for the HTTP API, or use 'aarag index' and
'aarag retrieve' directly from the shell.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("aarag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./aarag.yaml, ~/.aarag/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig builds the effective configuration with flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// runtime bundles the wired components a command needs.
type runtime struct {
	cfg      *config.Config
	store    store.Store
	embedder embed.Embedder
	engine   *engine.Engine
	logger   *slog.Logger
	cleanup  func()
}

// newRuntime wires store, embedder, engine, and logging from config.
func newRuntime(cfg *config.Config) (*runtime, error) {
	logger, logCleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	var st store.Store
	switch cfg.Store.Backend {
	case "memory":
		st = store.NewMemoryStore()
	default:
		dataDir, err := cfg.DataDir()
		if err != nil {
			logCleanup()
			return nil, err
		}
		st, err = store.NewSQLiteStore(dataDir)
		if err != nil {
			logCleanup()
			return nil, err
		}
	}

	embedTimeout, err := cfg.EmbeddingTimeout()
	if err != nil {
		_ = st.Close()
		logCleanup()
		return nil, err
	}
	embedder, err := embed.New(embed.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Timeout:    embedTimeout,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = st.Close()
		logCleanup()
		return nil, err
	}

	retrieveTimeout, err := cfg.RetrieveTimeout()
	if err != nil {
		_ = embedder.Close()
		_ = st.Close()
		logCleanup()
		return nil, err
	}
	eng := engine.New(st, embedder, engine.Options{
		EngineType:      cfg.Engine.EngineType,
		RRFConstant:     cfg.Engine.RRFConstant,
		RetrieveTimeout: retrieveTimeout,
		Logger:          logger,
	})

	return &runtime{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		engine:   eng,
		logger:   logger,
		cleanup: func() {
			_ = embedder.Close()
			_ = st.Close()
			logCleanup()
		},
	}, nil
}
