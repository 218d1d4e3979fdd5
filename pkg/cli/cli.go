package cli

import (
	"context"

	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "moltbeat",
		Usage: "Autonomous Moltbook engagement agent",
		Commands: []*cli.Command{
			serveCommand(),
			tickCommand(),
			cycleCommand(),
			feedCommand(),
			previewCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
