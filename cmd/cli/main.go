package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

var (
	cfgFile string
	cfg     *config.Config
	log     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Reconcile extracted financial events against the ledger",
	Long: `reconciler extracts candidate events from receipts and statements,
reconciles them against the stored ledger and commits the confirmed ones.
Obligation series (post-dated cheques) can be created, validated and
extended from the same tool.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New()
		if err := v.BindPFlag("store.backend", cmd.Flags().Lookup("backend")); err != nil {
			return err
		}
		if err := v.BindPFlag("store.seed_file", cmd.Flags().Lookup("seed")); err != nil {
			return err
		}
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
		var err error
		if cfg, err = config.FromViper(v); err != nil {
			return err
		}
		// stdout carries the JSON results.
		log = logger.Configure(logger.Options{Level: cfg.Log.Level, Console: cfg.Log.Console, Output: os.Stderr})
		cmd.SetContext(logger.WithContext(cmd.Context(), log))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and RECONCILER_* environment otherwise)")
	rootCmd.PersistentFlags().String("backend", "memory", "store backend: memory, bigquery or postgres")
	rootCmd.PersistentFlags().String("seed", "", "JSON fixtures loaded into the memory backend")

	rootCmd.AddCommand(extractCmd, reconcileCmd, commitCmd, discrepancyCmd, adjustCmd, seriesCmd, accountsCmd, uploadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withEngine opens the configured store for the duration of fn.
func withEngine(ctx context.Context, fn func(e *pipeline.Engine) error) error {
	s, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := app.NewEngine(cfg, s)
	if err != nil {
		return err
	}
	return fn(engine)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("an input file is required (use - for stdin)")
	}
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func decodeInput(cmd *cobra.Command, path string, v interface{}) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
