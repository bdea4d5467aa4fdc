package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cryguy/phasejs"
	"github.com/cryguy/phasejs/internal/config"
	"github.com/cryguy/phasejs/internal/host"
	"github.com/cryguy/phasejs/internal/logging"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the configuration and serve HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			logger := logging.New(cfg.Logging())
			engine := phasejs.NewEngine(cfg.EngineConfig(), nil, logger)
			defer engine.Shutdown()
			if err := engine.Load(cfg.Locations); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go watchReload(ctx, configPath, cfg, engine, logger)

			srv := host.New(engine, host.Options{
				Compression:    cfg.Compression,
				MaxConnections: cfg.MaxConnections,
			}, logger)
			return srv.ListenAndServe(ctx, cfg.Listen)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "phasejs.hcl", "Path to the HCL configuration file")
	cmd.Flags().StringVar(&listen, "listen", "", "Override the listen address from the configuration")
	return cmd
}

// watchReload reloads the locations on SIGHUP until ctx is done. Settings
// other than locations need a restart.
func watchReload(ctx context.Context, path string, current *config.Config, engine *phasejs.Engine, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		if err := reload(path, current, engine, logger); err != nil {
			logger.Error("reload failed, keeping current configuration", "config", path, "error", err)
		}
	}
}

func reload(path string, current *config.Config, engine *phasejs.Engine, logger *slog.Logger) error {
	next, err := config.Load(path)
	if err != nil {
		return err
	}
	if next.Workers != current.Workers || next.MaxConnections != current.MaxConnections ||
		next.Compression != current.Compression || next.FailOnException != current.FailOnException {
		logger.Warn("only locations are reloaded; restart to apply other settings", "config", path)
	}
	if err := engine.Load(next.Locations); err != nil {
		return fmt.Errorf("reloading %s: %w", path, err)
	}
	return nil
}
