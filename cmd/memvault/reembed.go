package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/reembed"
	"github.com/urfave/cli/v2"
)

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:  "reembed",
		Usage: "Re-embed ready memories with a different embedding model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "embedding-model",
				Usage:    "Embedding model name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL (defaults to the configured host)",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "Only re-embed memories owned by this email",
			},
			&cli.BoolFlag{
				Name:  "purge-model",
				Usage: "Delete vectors produced by other models",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of memories to process in each batch",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N memories",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per memory",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
		Action: reembedAction,
	}
}

func reembedAction(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
		aiCfg := db.Config().AIConfig()
		aiCfg.EmbeddingModel = c.String("embedding-model")
		if host := c.String("embedding-host"); host != "" {
			aiCfg.EmbeddingHost = host
		}
		embedder, err := newEmbedder(aiCfg)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}

		cfg := &reembed.Config{
			BatchSize:      c.Int("batch-size"),
			ReportInterval: c.Int("report-interval"),
			MaxAttempts:    c.Int("max-retries"),
			RetryDelay:     c.Duration("retry-delay"),
			Purge:          c.Bool("purge-model"),
		}
		if c.IsSet("user") {
			user, err := currentUser(ctx, c, db, false)
			if err != nil {
				return err
			}
			cfg.UserID = user.ID
		}

		reembedder, err := db.NewReembedder(embedder, cfg, os.Stderr)
		if err != nil {
			return err
		}
		summary, err := reembedder.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "re-embedded %d memories (%d chunks) with %s in %s",
			summary.Memories, summary.Chunks, summary.Model, summary.Elapsed.Round(time.Millisecond))
		if cfg.Purge {
			fmt.Fprintf(c.App.Writer, ", purged %d vectors", summary.Purged)
		}
		fmt.Fprintln(c.App.Writer)
		return nil
	})
}
