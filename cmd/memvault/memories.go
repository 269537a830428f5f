package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/ingestion"
	"github.com/poiesic/memvault/search"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/upload"
	"github.com/urfave/cli/v2"
)

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Create a user, or print the existing one",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
				user, err := db.EnsureUser(ctx, c.String("email"))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "user %d <%s>\n", user.ID, user.Email)
				return nil
			})
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Store text, files or a URL as a new memory",
		Flags: []cli.Flag{
			userFlag,
			&cli.StringFlag{Name: "title", Usage: "Optional title"},
			&cli.StringFlag{Name: "text", Usage: "Text content"},
			&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "File to upload (repeatable)"},
			&cli.StringFlag{Name: "url", Usage: "Source URL"},
			&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Wait until extraction finishes"},
			&cli.DurationFlag{Name: "timeout", Usage: "Maximum time to wait", Value: 5 * time.Minute},
		},
		Action: ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	sub := ingestion.Submission{
		Title:     c.String("title"),
		Text:      c.String("text"),
		SourceURL: c.String("url"),
	}
	for _, path := range c.StringSlice("file") {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sub.Files = append(sub.Files, upload.File{Name: filepath.Base(path), Data: data})
	}

	return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
		user, err := currentUser(ctx, c, db, true)
		if err != nil {
			return err
		}
		result, err := db.Ingestion().Ingest(ctx, user.ID, sub)
		if err != nil {
			return err
		}
		if result.Duplicate {
			fmt.Fprintf(c.App.Writer, "duplicate of memory %d\n", result.Memory.ID)
			return nil
		}
		fmt.Fprintf(c.App.Writer, "memory %d %s\n", result.Memory.ID, result.Memory.Status)
		if !c.Bool("wait") {
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
		defer cancel()
		memory, err := db.WaitForMemory(waitCtx, result.Memory.ID)
		if err != nil {
			return err
		}
		printMemory(c, memory)
		return nil
	})
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a memory with its tags and extractions",
		ArgsUsage: "MEMORY_ID",
		Flags:     []cli.Flag{userFlag},
		Action: func(c *cli.Context) error {
			id, err := idArg(c, 0, "memory id")
			if err != nil {
				return err
			}
			return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
				user, err := currentUser(ctx, c, db, false)
				if err != nil {
					return err
				}
				detail, err := db.Ingestion().Get(ctx, user.ID, id)
				if err != nil {
					return err
				}
				printMemory(c, detail.Memory)
				if len(detail.Tags) > 0 {
					fmt.Fprintf(c.App.Writer, "tags: %s\n", strings.Join(detail.Tags, ", "))
				}
				for _, u := range detail.Uploads {
					fmt.Fprintf(c.App.Writer, "upload %d: %s %s (%d bytes)\n", u.ID, u.FileType, u.FileURL, u.FileSize)
				}
				for _, e := range detail.Extractions {
					fmt.Fprintf(c.App.Writer, "[%s] %s\n", e.ExtractionType, clip(e.Content, 200))
				}
				return nil
			})
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List memories, newest first",
		Flags: []cli.Flag{
			userFlag,
			&cli.StringFlag{Name: "status", Usage: "processing, ready or failed"},
			&cli.StringFlag{Name: "type", Usage: "text, file or url"},
			&cli.Uint64Flag{Name: "space", Usage: "Only memories in this space"},
			&cli.StringSliceFlag{Name: "tag", Usage: "Only memories with this tag (repeatable)"},
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.IntFlag{Name: "offset"},
		},
		Action: func(c *cli.Context) error {
			return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
				user, err := currentUser(ctx, c, db, false)
				if err != nil {
					return err
				}
				filter := storage.MemoryFilter{Limit: c.Int("limit"), Offset: c.Int("offset")}
				if s := c.String("status"); s != "" {
					status, err := core.ParseStatus(s)
					if err != nil {
						return err
					}
					filter.Statuses = []core.Status{status}
				}
				if t := c.String("type"); t != "" {
					if filter.Type, err = core.ParseMemoryType(t); err != nil {
						return err
					}
				}
				if filter.SpaceID, err = ownedSpaceID(ctx, c, db, user.ID); err != nil {
					return err
				}
				if filter.TagIDs, err = tagIDs(ctx, db, c.StringSlice("tag")); err != nil {
					return err
				}

				memories, err := db.Ingestion().List(ctx, user.ID, filter)
				if err != nil {
					return err
				}
				for _, m := range memories {
					printMemory(c, m)
				}
				return nil
			})
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find memories similar to a query",
		ArgsUsage: "QUERY...",
		Flags: []cli.Flag{
			userFlag,
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "semantic, keyword or hybrid", Value: "semantic"},
			&cli.StringFlag{Name: "type", Usage: "text, file or url"},
			&cli.Uint64Flag{Name: "space", Usage: "Only memories in this space"},
			&cli.StringSliceFlag{Name: "tag", Usage: "Only memories with this tag (repeatable)"},
			&cli.IntFlag{Name: "limit", Value: search.DefaultLimit},
			&cli.IntFlag{Name: "offset", Usage: "Skip results (semantic mode only)"},
		},
		Action: searchAction,
	}
}

func searchAction(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("missing query")
	}

	return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
		user, err := currentUser(ctx, c, db, false)
		if err != nil {
			return err
		}
		var filters search.Filters
		if t := c.String("type"); t != "" {
			if filters.Type, err = core.ParseMemoryType(t); err != nil {
				return err
			}
		}
		if filters.SpaceID, err = ownedSpaceID(ctx, c, db, user.ID); err != nil {
			return err
		}
		if filters.TagIDs, err = tagIDs(ctx, db, c.StringSlice("tag")); err != nil {
			return err
		}

		engine := db.Search()
		var results []*search.Result
		switch c.String("mode") {
		case "semantic":
			results, err = engine.SearchText(ctx, user.ID, query, filters, c.Int("limit"), c.Int("offset"))
		case "keyword":
			results, err = engine.Keyword(ctx, user.ID, query, filters, c.Int("limit"))
		case "hybrid":
			results, err = engine.Hybrid(ctx, user.ID, query, filters, c.Int("limit"))
		default:
			return fmt.Errorf("invalid mode %q: must be one of semantic, keyword, hybrid", c.String("mode"))
		}
		if err != nil {
			return err
		}
		printResults(c, results)
		return nil
	})
}

func relatedCommand() *cli.Command {
	return &cli.Command{
		Name:      "related",
		Usage:     "Find memories similar to a stored memory",
		ArgsUsage: "MEMORY_ID",
		Flags: []cli.Flag{
			userFlag,
			&cli.IntFlag{Name: "limit", Value: search.DefaultLimit},
		},
		Action: func(c *cli.Context) error {
			id, err := idArg(c, 0, "memory id")
			if err != nil {
				return err
			}
			return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
				user, err := currentUser(ctx, c, db, false)
				if err != nil {
					return err
				}
				results, err := db.Search().Related(ctx, user.ID, id, c.Int("limit"))
				if err != nil {
					return err
				}
				printResults(c, results)
				return nil
			})
		},
	}
}

func reextractCommand() *cli.Command {
	return &cli.Command{
		Name:      "reextract",
		Usage:     "Run extraction again for a memory",
		ArgsUsage: "MEMORY_ID",
		Flags: []cli.Flag{
			userFlag,
			&cli.DurationFlag{Name: "timeout", Usage: "Maximum time to wait", Value: 5 * time.Minute},
		},
		Action: func(c *cli.Context) error {
			id, err := idArg(c, 0, "memory id")
			if err != nil {
				return err
			}
			return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
				user, err := currentUser(ctx, c, db, false)
				if err != nil {
					return err
				}
				if _, err := db.Ingestion().Reextract(ctx, user.ID, id); err != nil {
					return err
				}
				if !db.Config().Extraction.Enabled {
					fmt.Fprintf(c.App.Writer, "memory %d queued\n", id)
					return nil
				}
				// The run belongs to this process, so wait for it before closing.
				waitCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
				defer cancel()
				memory, err := db.WaitForMemory(waitCtx, id)
				if err != nil {
					return err
				}
				printMemory(c, memory)
				return nil
			})
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a memory and everything derived from it",
		ArgsUsage: "MEMORY_ID",
		Flags:     []cli.Flag{userFlag},
		Action: func(c *cli.Context) error {
			id, err := idArg(c, 0, "memory id")
			if err != nil {
				return err
			}
			return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
				user, err := currentUser(ctx, c, db, false)
				if err != nil {
					return err
				}
				if err := db.Ingestion().Delete(ctx, user.ID, id); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "deleted memory %d\n", id)
				return nil
			})
		},
	}
}

func printMemory(c *cli.Context, m *core.Memory) {
	title := m.TitleOrEmpty()
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(c.App.Writer, "memory %d [%s/%s] %s\n", m.ID, m.Type, m.Status, title)
	if m.Summary != nil {
		fmt.Fprintf(c.App.Writer, "  %s\n", clip(*m.Summary, 200))
	}
}

func printResults(c *cli.Context, results []*search.Result) {
	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%d: memory %d [%0.3f] %s\n", i+1, r.Memory.ID, r.Score, clip(r.Chunk, 120))
	}
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
