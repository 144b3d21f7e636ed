// Package main provides the cron trigger daemon that fires scheduled
// pipeline executions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/lumenpress/automation/pkg/cmd"
	"github.com/lumenpress/automation/pkg/log"
	"github.com/lumenpress/automation/pkg/pipeline"
	"github.com/lumenpress/automation/pkg/registry"
	"github.com/lumenpress/automation/pkg/triggers/schedule"
)

func main() {
	command := &cli.Command{
		Name:                  "automation-scheduler",
		Usage:                 "Fire scheduled pipeline executions from persisted cron schedules",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("scheduler")
			logger.InfoContext(ctx, "Initializing automation scheduler")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus := cmd.NewEventBus(logger)
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			executor := pipeline.NewExecutor(logger, store, registry.NewRegistry(logger), bus)

			trigger := schedule.NewTrigger(logger, store, func(ctx context.Context, pipelineID string, triggerData map[string]any) error {
				_, err := executor.Execute(ctx, pipelineID, triggerData)

				return err
			})

			if err := trigger.Start(ctx); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			logger.InfoContext(ctx, "Shutting down scheduler")
			trigger.Stop()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("scheduler").Error("Automation scheduler failed", "error", err)
		os.Exit(1)
	}
}
