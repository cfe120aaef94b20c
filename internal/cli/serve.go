package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/internal/logger"
	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/harun/mnemo/pkg/api"
	"github.com/harun/mnemo/pkg/mcpserver"
	"github.com/harun/mnemo/pkg/memory"
	"github.com/harun/mnemo/pkg/memory/embedder"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve memories over MCP stdio and the local REST API",
	Long: `Start the memory server. MCP tools are served over stdin/stdout for LLM
clients; the REST API and Prometheus metrics listen on a local port. The
embedding model loads in the background unless configured otherwise.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if rootCmd.PersistentFlags().Changed("log-level") || cfg.Logging.Level == "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Stdout carries the MCP protocol, so console logs go to stderr and the
	// pretty format stays off while serving.
	appLogger, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  false,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.GetZerolog()

	if err := tracing.InitOpenTelemetry("mnemo"); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := tracing.ShutdownOpenTelemetry(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown tracing")
		}
	}()

	factory, err := embedderFactory(cfg)
	if err != nil {
		return err
	}
	handle := embedder.NewHandle(factory, log)
	handle.Load(cfg.Embedding.BackgroundLoad)
	defer handle.Close()

	// Flip the readiness gauge once the model settles.
	go func() {
		if _, _, err := handle.Describe(context.Background()); err == nil {
			observability.SetModelReady(true)
		}
	}()

	store, err := memory.Open(memory.Config{
		DBPath:             cfg.DBPath,
		Embedder:           handle,
		Logger:             log,
		Dimension:          cfg.Embedding.Dimension,
		DuplicateThreshold: &cfg.DuplicateThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer store.Close()

	if cfg.Maintenance.Enabled {
		maintenance := memory.NewMaintenance(store, cfg.Maintenance.Schedule, log)
		if err := maintenance.Start(); err != nil {
			return fmt.Errorf("failed to start maintenance: %w", err)
		}
		defer maintenance.Stop()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.NewServer(api.Options{
			Host:               cfg.API.Host,
			Port:               cfg.API.Port,
			RateLimitPerMinute: cfg.API.RateLimitPerMinute,
			SearchThreshold:    cfg.SearchThreshold,
		}, store, log)
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error().Err(err).Msg("API server stopped unexpectedly")
			}
		}()
		defer func() {
			if err := apiServer.Stop(); err != nil {
				log.Warn().Err(err).Msg("Failed to stop API server")
			}
		}()
	}

	mcpSrv := mcpserver.New(store, version, mcpserver.Options{
		SearchThreshold: cfg.SearchThreshold,
	}, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- mcpSrv.ServeStdio()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		return nil
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		log.Info().Msg("MCP client disconnected")
		return nil
	}
}

// embedderFactory builds the provider constructor for the configured backend.
// The factory itself runs later, on the loader goroutine.
func embedderFactory(cfg *config.Config) (embedder.Factory, error) {
	switch cfg.Embedding.Provider {
	case "fastembed":
		return func() (embedder.Provider, error) {
			return embedder.NewFastEmbedProvider(embedder.FastEmbedConfig{
				Model:    cfg.Embedding.Model,
				CacheDir: cfg.Embedding.CacheDir,
			})
		}, nil
	case "openai":
		return func() (embedder.Provider, error) {
			return embedder.NewOpenAIProvider(embedder.OpenAIConfig{
				APIKey: cfg.Embedding.OpenAIAPIKey,
				Model:  cfg.Embedding.Model,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}
