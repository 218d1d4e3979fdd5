package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func tickCommand() *cli.Command {
	var cfg config

	flags := stateFlags(&cfg)
	flags = append(flags, platformFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, profileFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "tick",
		Usage: "Run a single heartbeat tick and exit",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			if err := uc.Tick(ctx); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "tick completed\n")
			return nil
		},
	}
}
