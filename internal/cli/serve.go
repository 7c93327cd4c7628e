package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxorio/todochaos/internal/app"
	"github.com/fluxorio/todochaos/pkg/config"
	"github.com/fluxorio/todochaos/pkg/core"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API and dashboard servers",
		Long: `Run the to-do API and the observability dashboard until interrupted.

Feature flags and the chaos toggle are reloaded when the config file changes;
everything else needs a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts.ConfigPath)
		},
	}
}

func runServe(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger := core.NewLogger(core.LoggerConfig{JSONOutput: cfg.Logging.JSON, Level: cfg.Logging.Level})

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	if err := a.Start(); err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("startup failed: %w", err)
	}

	if path != "" {
		w, err := config.Watch(path, a.Reload, func(err error) {
			logger.Warn("config reload rejected: ", err)
		})
		if err != nil {
			logger.Warn("config watch disabled: ", err)
		} else {
			defer w.Close()
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return a.Close(shutdownCtx)
}
