package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/adapter"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg          config
		interval     time.Duration
		checkBackend bool
	)

	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:        "interval",
			Aliases:     []string{"n"},
			Usage:       "Heartbeat interval between ticks",
			Value:       2 * time.Minute,
			Sources:     cli.EnvVars("MOLTBEAT_INTERVAL"),
			Destination: &interval,
		},
		&cli.BoolFlag{
			Name:        "check-backend",
			Usage:       "Verify the generation backend answers before starting",
			Sources:     cli.EnvVars("MOLTBEAT_CHECK_BACKEND"),
			Destination: &checkBackend,
		},
	}
	flags = append(flags, stateFlags(&cfg)...)
	flags = append(flags, platformFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, profileFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the heartbeat loop until interrupted",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)
			if interval <= 0 {
				return goerr.New("interval must be positive", goerr.V("interval", interval))
			}

			if checkBackend {
				gen, err := cfg.newGenerator(ctx)
				if err != nil {
					return err
				}
				if _, err := gen.Generate(ctx, "You are a health check.", "Reply with the single word OK."); err != nil {
					return goerr.Wrap(err, "generation backend is unreachable")
				}
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.From(ctx)
			logger.Info("heartbeat started", "interval", interval)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				if err := uc.Tick(ctx); err != nil {
					// Bad credentials will not fix themselves; stop instead
					// of hammering the API every interval.
					if errors.Is(err, adapter.ErrAuthentication) {
						return goerr.Wrap(err, "halting heartbeat")
					}
					logger.Error("tick failed", "error", err)
				}

				select {
				case <-ctx.Done():
					logger.Info("heartbeat stopped")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}
