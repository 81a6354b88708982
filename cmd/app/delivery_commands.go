package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/courier/cmd/app/commands"
	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getDeliveryCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "reconcile",
			Usage: "Re-apply webhook events that were stored but never processed",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "tenant-id",
					Aliases: []string{"t"},
					Usage:   "Only reconcile events of this tenant (UUID)",
				},
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   100,
					Usage:   "Maximum number of events scanned",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				reconcileUseCase, err := container.ReconcileUseCase()
				if err != nil {
					return err
				}

				return commands.RunReconcile(
					ctx,
					reconcileUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("tenant-id"),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "queue-health",
			Usage: "Report queue depth and the age of the oldest queued unit",
			Flags: []cli.Flag{
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				healthUseCase, err := container.HealthUseCase()
				if err != nil {
					return err
				}

				return commands.RunQueueHealth(
					ctx,
					healthUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "create-channel",
			Usage: "Connect a provider account to a tenant",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant-id",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant ID (UUID)",
				},
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Human-readable channel name",
				},
				&cli.StringFlag{
					Name:     "phone-number-id",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Provider phone number ID",
				},
				&cli.StringFlag{
					Name:    "access-token",
					Sources: cli.EnvVars("CHANNEL_ACCESS_TOKEN"),
					Usage:   "Provider access token (omit to be prompted)",
				},
				&cli.IntFlag{
					Name:  "send-limit-per-minute",
					Value: 0,
					Usage: "Per-channel send limit; 0 means unlimited",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				channelUseCase, err := container.ChannelUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateChannel(
					ctx,
					channelUseCase,
					container.Logger(),
					cmd.String("tenant-id"),
					cmd.String("name"),
					cmd.String("phone-number-id"),
					cmd.String("access-token"),
					int(cmd.Int("send-limit-per-minute")),
					cmd.String("format"),
					commands.DefaultIO(),
				)
			},
		},
	}
}
