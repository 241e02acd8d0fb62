package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/research-orchestrator/internal/app"
	"github.com/oremus-labs/research-orchestrator/internal/artifact"
	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/pipeline"
	"github.com/oremus-labs/research-orchestrator/internal/scheduler"
	"github.com/oremus-labs/research-orchestrator/internal/vectorstore"
)

// NewServeCmd starts the scheduler loop: the Claimer and Rescue Sweeper tick
// against the durable store, dispatching claimed jobs to the Pipeline
// Executor until interrupted (spec §4.1, §4.3, §5).
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler: claim queued jobs and drive them to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				settings := app.EffectiveSettings()

				artifactsDir := settings.ArtifactsDir
				if artifactsDir == "" {
					dir, err := app.ConfigDir()
					if err != nil {
						return err
					}
					artifactsDir = filepath.Join(dir, "artifacts")
				}
				artifacts, err := artifact.NewLocalStore(artifactsDir)
				if err != nil {
					return fmt.Errorf("open artifact store: %w", err)
				}

				endpoints := gateway.EndpointConfig{
					PrimarySearchURL:  settings.Gateway.PrimarySearchURL,
					WorkflowSearchURL: settings.Gateway.WorkflowSearchURL,
					FetchURL:          settings.Gateway.FetchURL,
					ChatURL:           settings.Gateway.ChatURL,
					EmbedURL:          settings.Gateway.EmbedURL,
				}
				gw := gateway.New(endpoints, gateway.DefaultRateLimits, nil)
				vectors := vectorstore.NewInProcessStore()

				executor := pipeline.New(db, gw, artifacts, vectors, settings)

				workerName, err := os.Hostname()
				if err != nil || workerName == "" {
					workerName = fmt.Sprintf("worker-%d", os.Getpid())
				}
				workerName = fmt.Sprintf("%s-%d", workerName, os.Getpid())

				sched := scheduler.New(db, executor, settings, workerName)

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				slog.Info("scheduler starting", "component", "serve", "worker", workerName, "max_concurrent", settings.MaxConcurrent)
				err = sched.Run(ctx)
				if err != nil && ctx.Err() != nil {
					slog.Info("scheduler stopped", "component", "serve", "reason", ctx.Err().Error())
					return nil
				}
				return err
			})
		},
	}
	return cmd
}
