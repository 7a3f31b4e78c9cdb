package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/config"
	"github.com/sells-group/crm-cli/internal/stage"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crm-cli",
	Short: "Import sales pipeline spreadsheets into the CRM",
	Long:  "Detects the header row of .xlsx pipeline exports, maps rows to companies, contacts, deals and notes, canonicalizes deal stages and writes everything to the CRM database in dependency order.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// loadStageTable returns the configured stage table, or the built-in one
// when nothing is overridden.
func loadStageTable() (*stage.Table, error) {
	switch {
	case cfg.Stages.File != "":
		return stage.LoadTable(cfg.Stages.File, cfg.Stages.Default)
	case cfg.Stages.Default != "":
		return stage.ParseTable(nil, cfg.Stages.Default)
	default:
		return stage.DefaultTable(), nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
