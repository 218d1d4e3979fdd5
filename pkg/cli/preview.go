package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/targeting"
	"github.com/urfave/cli/v3"
)

func previewCommand() *cli.Command {
	var (
		cfg    config
		kind   string
		topic  string
		postID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "kind",
			Aliases:     []string{"k"},
			Usage:       "What to generate (post or comment)",
			Value:       "post",
			Destination: &kind,
		},
		&cli.StringFlag{
			Name:        "topic",
			Usage:       "Topic for a post preview (empty lets the model choose)",
			Destination: &topic,
		},
		&cli.StringFlag{
			Name:        "post-id",
			Usage:       "Post to generate a comment preview for",
			Destination: &postID,
		},
	}
	flags = append(flags, platformFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, profileFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "preview",
		Usage: "Generate content without publishing it",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			profile, err := cfg.loadProfile()
			if err != nil {
				return err
			}
			w, err := cfg.newWriter(ctx, profile)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " generating..."
			out := c.Root().Writer

			switch kind {
			case "post":
				sp.Start()
				post, err := w.ComposePost(ctx, topic)
				sp.Stop()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "TITLE: %s\n\n%s\n", post.Title, post.Content)
				return nil

			case "comment":
				if postID == "" {
					return goerr.New("post-id is required for a comment preview")
				}
				platform, err := cfg.newPlatform()
				if err != nil {
					return err
				}
				item, _, err := platform.GetPost(ctx, model.PostID(postID))
				if err != nil {
					return err
				}

				score := targeting.New().ScorePost(item)
				if score == nil {
					fmt.Fprintf(out, "targeting would skip this post; previewing anyway\n\n")
					score = &model.PriorityScore{
						Category: model.CategoryGeneral,
						Tier:     model.TierLow,
						Reason:   "preview",
					}
				} else {
					fmt.Fprintf(out, "targeting: %s %s (%q)\n\n", score.Tier, score.Category, score.Reason)
				}

				sp.Start()
				text, err := w.ComposeComment(ctx, item, score)
				sp.Stop()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", text)
				return nil

			default:
				return goerr.New("unknown preview kind", goerr.V("kind", kind))
			}
		},
	}
}
