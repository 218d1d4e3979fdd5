package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/usecase/heartbeat"
	"github.com/urfave/cli/v3"
)

func cycleCommand() *cli.Command {
	var cfg config

	flags := stateFlags(&cfg)
	flags = append(flags, platformFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, profileFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	names := make([]string, 0, len(heartbeat.CycleNames()))
	for _, n := range heartbeat.CycleNames() {
		names = append(names, string(n))
	}

	return &cli.Command{
		Name:      "cycle",
		Usage:     "Run a single engagement cycle",
		ArgsUsage: "<" + strings.Join(names, "|") + ">",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			name := c.Args().First()
			if name == "" {
				return goerr.New("cycle name is required",
					goerr.V("cycles", strings.Join(names, ", ")))
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			if err := uc.RunCycle(ctx, heartbeat.CycleName(name)); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "cycle %s completed\n", name)
			return nil
		},
	}
}
