package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cryguy/phasejs"
	"github.com/cryguy/phasejs/internal/config"
	"github.com/cryguy/phasejs/internal/logging"
)

func newTestCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check the configuration and compile every handler",
		Long: `Loads the configuration, reads every handler file and compiles every handler
once, the same way serve does at startup. Exits non-zero on the first failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ec := cfg.EngineConfig()
			ec.Workers = 1
			engine := phasejs.NewEngine(ec, nil, logging.Nop())
			defer engine.Shutdown()
			if err := engine.Load(cfg.Locations); err != nil {
				return err
			}

			stats := engine.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "configuration %s is ok: %d locations, %d handlers (%s)\n",
				cfg.Path, len(cfg.Locations), stats.Compiles, stats.Backend)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "phasejs.hcl", "Path to the HCL configuration file")
	return cmd
}
