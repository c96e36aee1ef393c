// Package cmd provides CLI command implementations
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/logger"
	"github.com/ChrisMcGann/ChimeraKey/pkg/reader/tsv"
)

var (
	// Persistent flags
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "chimerakey",
	Short: "ChimeraKey - chimeric spectrum breakdown tool",
	Long: `ChimeraKey groups search-engine identifications that share an MS2 scan,
picks the parent identification of each chimeric spectrum and classifies the
remaining identifications as duplicates, unique forms or unique proteins.

Results are stored in a SQLite database that the summarize command aggregates
by identifications per spectrum.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch logger.LogLevel(strings.ToLower(logLevel)) {
		case logger.DebugLevel, logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel:
		default:
			return fmt.Errorf("invalid log level '%s', must be debug, info, warn or error", logLevel)
		}
		cfg := logger.DefaultConfig()
		cfg.Level = logger.LogLevel(logLevel)
		cfg.JSON = logJSON
		logger.Init(cfg)
		return nil
	},
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(breakdownCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(countCmd)
}

// readInputs reads and concatenates identification files in order.
func readInputs(paths []string) ([]*core.Identification, error) {
	var all []*core.Identification
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("input file does not exist: %s", path)
		}
		ids, err := tsv.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		logger.GetDefault().Debug("read identifications", "file", path, "count", len(ids))
		all = append(all, ids...)
	}
	return all, nil
}

// defaultDataset names a dataset after its first input file.
func defaultDataset(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	base := filepath.Base(paths[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}
