package main

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/ingestion"
	"github.com/urfave/cli/v2"
)

var sampleNotes = []string{
	"Renew the car registration before the end of March; the form needs the new odometer reading.",
	"Sourdough starter: feed twice a day at 1:1:1, keep it near the oven light in winter.",
	"Book recommendation from Priya: The Dispossessed by Ursula K. Le Guin.",
	"The garage door opener code is on the back of the fuse box panel.",
	"Dentist moved to the new clinic on Elm Street, second floor, parking behind the building.",
	"Tomato seedlings go outside after the last frost, usually mid May around here.",
	"Wifi at the cabin is slow after 6pm; download maps and podcasts before the trip.",
	"Quarterly taxes are due April 15, June 15, September 15 and January 15.",
	"Idea for the blog: a post on keeping a paper notebook alongside digital notes.",
	"The bike shop recommended tire pressure of 80 psi for the commuter bike.",
	"Grandma's lemon cake: two lemons, zest and juice, and do not skip the glaze.",
	"Passport expires next year; renewals take about eight weeks in spring.",
	"Meeting notes: the team agreed to move the release to the second week of the month.",
	"Running route along the river is exactly five kilometers from the bridge to the mill and back.",
	"Print the boarding passes the night before; the airport kiosks are unreliable.",
	"Backup drive lives in the desk drawer; rotate it with the offsite copy every month.",
	"Houseplants: the fern wants humidity, the snake plant wants to be ignored.",
	"Learn the chords for the song from the wedding before the family reunion.",
	"The library closes early on Fridays during the summer.",
	"Try the ramen place near the station; order the spicy miso with extra corn.",
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Populate the vault with sample text memories",
		Flags: []cli.Flag{
			userFlag,
			&cli.StringFlag{
				Name:  "src",
				Usage: "File with one note per line instead of the built-in samples",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Maximum number of notes to ingest (0 for all)",
			},
		},
		Action: seedAction,
	}
}

func seedAction(c *cli.Context) error {
	source := linesFromSlice(sampleNotes)
	if path := c.String("src"); path != "" {
		lines, err := linesFromFile(path)
		if err != nil {
			return err
		}
		source = lines
	}

	return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
		user, err := currentUser(ctx, c, db, true)
		if err != nil {
			return err
		}
		created, duplicates := 0, 0
		limit := c.Int("count")
		for line := range source {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if limit > 0 && created+duplicates >= limit {
				break
			}
			result, err := db.Ingestion().Ingest(ctx, user.ID, ingestion.Submission{Text: line})
			if err != nil {
				return err
			}
			if result.Duplicate {
				duplicates++
				continue
			}
			created++
		}
		fmt.Fprintf(c.App.Writer, "seeded %d memories (%d duplicates skipped)\n", created, duplicates)
		return nil
	})
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}
