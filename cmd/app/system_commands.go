package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/courier/cmd/app/commands"
	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP API server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "worker",
			Usage: "Start the delivery worker, reconciliation scanner and automation relay",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
		{
			Name:  "clean-claim-log",
			Usage: "Delete claim log rows older than specified minutes",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "minutes",
					Aliases: []string{"m"},
					Value:   1440,
					Usage:   "Delete claim log rows older than this many minutes (minimum 1)",
				},
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "Show how many rows would be deleted without deleting",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				jobUseCase, err := container.JobUseCase()
				if err != nil {
					return err
				}

				return commands.RunCleanClaimLog(
					ctx,
					jobUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("minutes")),
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
	}
}
