package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/pkg/memory"
	"github.com/harun/mnemo/pkg/memory/embedder"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics",
	Long: `Print the number of stored memories, the database size and the configured
embedding model as JSON. Works without loading the model.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The handle stays unloaded: stats never needs inference.
	handle := embedder.NewHandle(func() (embedder.Provider, error) {
		return nil, fmt.Errorf("model loading disabled for stats")
	}, zerolog.Nop())

	store, err := memory.Open(memory.Config{
		DBPath:             cfg.DBPath,
		Embedder:           handle,
		Logger:             zerolog.Nop(),
		Dimension:          cfg.Embedding.Dimension,
		DuplicateThreshold: &cfg.DuplicateThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	stats.Model = cfg.Embedding.Model

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
