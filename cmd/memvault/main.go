// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/ai/openai"
	"github.com/poiesic/memvault/config"
	"github.com/urfave/cli/v2"
)

// openOptions are passed to every memvault.Open; tests inject a mock provider.
var openOptions []memvault.Option

// newEmbedder builds the embedder used by reembed.
var newEmbedder = func(cfg *ai.Config) (ai.Embedder, error) {
	return openai.NewEmbedder(cfg)
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "memvault",
		Usage:  "Personal memory vault: ingest, enrich and search your content",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "memvault.yaml",
				EnvVars: []string{"MEMVAULT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			userCommand(),
			ingestCommand(),
			showCommand(),
			listCommand(),
			searchCommand(),
			relatedCommand(),
			reextractCommand(),
			deleteCommand(),
			tagCommand(),
			spaceCommand(),
			reembedCommand(),
			seedCommand(),
		},
	}
}

// withDatabase loads the configuration, opens the database for the
// duration of fn and closes it afterwards.
func withDatabase(c *cli.Context, fn func(ctx context.Context, db *memvault.Database) error) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := memvault.Open(cfg, openOptions...)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(c.Context, db)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}
