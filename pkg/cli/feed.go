package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/targeting"
	"github.com/urfave/cli/v3"
)

func feedCommand() *cli.Command {
	var (
		cfg      config
		sortName string
		limit    int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "sort",
			Usage:       "Feed sort order (new, hot, top)",
			Value:       "new",
			Destination: &sortName,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Number of posts to fetch",
			Value:       25,
			Destination: &limit,
		},
	}
	flags = append(flags, platformFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "feed",
		Usage: "Fetch the feed and show how each post would be targeted",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			sort := model.FeedSort(sortName)
			if err := sort.Validate(); err != nil {
				return err
			}

			platform, err := cfg.newPlatform()
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " fetching feed..."
			sp.Start()
			items, err := platform.ListPosts(ctx, sort, int(limit))
			sp.Stop()
			if err != nil {
				return err
			}

			engine := targeting.New()
			w := c.Root().Writer
			for i, item := range items {
				score := engine.ScorePost(item)
				verdict := "skip"
				if score != nil {
					verdict = fmt.Sprintf("%s %s (%q)", score.Tier, score.Category, score.Reason)
				}
				fmt.Fprintf(w, "%2d. [%s] %s by %s\n    %s\n",
					i+1, item.ID, item.Title, item.Author, verdict)
			}
			fmt.Fprintf(w, "\n%d posts\n", len(items))
			return nil
		},
	}
}
