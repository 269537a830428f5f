package main

import (
	"context"
	"fmt"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/core"
	"github.com/urfave/cli/v2"
)

func tagCommand() *cli.Command {
	return &cli.Command{
		Name:  "tag",
		Usage: "Label memories",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Tag a memory, creating the tag if needed",
				ArgsUsage: "MEMORY_ID NAME",
				Flags:     []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					return withOwnedMemory(c, func(ctx context.Context, db *memvault.Database, memoryID core.ID, name string) error {
						tag, err := db.Organizer().TagMemory(ctx, memoryID, name)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "tagged memory %d with %s\n", memoryID, tag.Name)
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a tag from a memory",
				ArgsUsage: "MEMORY_ID NAME",
				Flags:     []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					return withOwnedMemory(c, func(ctx context.Context, db *memvault.Database, memoryID core.ID, name string) error {
						if err := db.Organizer().UntagMemory(ctx, memoryID, name); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "untagged memory %d\n", memoryID)
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "List every tag",
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
						tags, err := db.Organizer().Tags(ctx)
						if err != nil {
							return err
						}
						for _, tag := range tags {
							fmt.Fprintf(c.App.Writer, "%d\t%s\n", tag.ID, tag.Name)
						}
						return nil
					})
				},
			},
		},
	}
}

// withOwnedMemory parses MEMORY_ID NAME and checks that --user owns the memory.
func withOwnedMemory(c *cli.Context, fn func(ctx context.Context, db *memvault.Database, memoryID core.ID, name string) error) error {
	memoryID, err := idArg(c, 0, "memory id")
	if err != nil {
		return err
	}
	name := c.Args().Get(1)
	if name == "" {
		return fmt.Errorf("missing tag name argument")
	}
	return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
		user, err := currentUser(ctx, c, db, false)
		if err != nil {
			return err
		}
		if _, err := db.Ingestion().Get(ctx, user.ID, memoryID); err != nil {
			return err
		}
		return fn(ctx, db, memoryID, name)
	})
}

func spaceCommand() *cli.Command {
	return &cli.Command{
		Name:  "space",
		Usage: "Group memories into named collections",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a space",
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "description"},
				},
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
						user, err := currentUser(ctx, c, db, true)
						if err != nil {
							return err
						}
						var description *string
						if c.IsSet("description") {
							description = core.Ptr(c.String("description"))
						}
						space, err := db.Organizer().CreateSpace(ctx, user.ID, c.String("name"), description)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "space %d %s\n", space.ID, space.Name)
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "List your spaces",
				Flags: []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
						user, err := currentUser(ctx, c, db, false)
						if err != nil {
							return err
						}
						spaces, err := db.Organizer().ListSpaces(ctx, user.ID)
						if err != nil {
							return err
						}
						for _, space := range spaces {
							members, err := db.Organizer().SpaceMemories(ctx, space.ID)
							if err != nil {
								return err
							}
							fmt.Fprintf(c.App.Writer, "space %d %s (%d memories)\n", space.ID, space.Name, len(members))
						}
						return nil
					})
				},
			},
			{
				Name:      "add",
				Usage:     "Add a memory to a space",
				ArgsUsage: "SPACE_ID MEMORY_ID",
				Flags:     []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					return withOwnedSpace(c, func(ctx context.Context, db *memvault.Database, spaceID, memoryID core.ID) error {
						if err := db.Organizer().AddMemoryToSpace(ctx, spaceID, memoryID); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "added memory %d to space %d\n", memoryID, spaceID)
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a memory from a space",
				ArgsUsage: "SPACE_ID MEMORY_ID",
				Flags:     []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					return withOwnedSpace(c, func(ctx context.Context, db *memvault.Database, spaceID, memoryID core.ID) error {
						if err := db.Organizer().RemoveMemoryFromSpace(ctx, spaceID, memoryID); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "removed memory %d from space %d\n", memoryID, spaceID)
						return nil
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete an empty space",
				ArgsUsage: "SPACE_ID",
				Flags:     []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					spaceID, err := idArg(c, 0, "space id")
					if err != nil {
						return err
					}
					return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
						user, err := currentUser(ctx, c, db, false)
						if err != nil {
							return err
						}
						if err := db.Organizer().DeleteSpace(ctx, user.ID, spaceID); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "deleted space %d\n", spaceID)
						return nil
					})
				},
			},
		},
	}
}

// withOwnedSpace parses SPACE_ID MEMORY_ID and checks that --user owns both.
func withOwnedSpace(c *cli.Context, fn func(ctx context.Context, db *memvault.Database, spaceID, memoryID core.ID) error) error {
	spaceID, err := idArg(c, 0, "space id")
	if err != nil {
		return err
	}
	memoryID, err := idArg(c, 1, "memory id")
	if err != nil {
		return err
	}
	return withDatabase(c, func(ctx context.Context, db *memvault.Database) error {
		user, err := currentUser(ctx, c, db, false)
		if err != nil {
			return err
		}
		if _, err := db.Organizer().OwnedSpace(ctx, user.ID, spaceID); err != nil {
			return err
		}
		if _, err := db.Ingestion().Get(ctx, user.ID, memoryID); err != nil {
			return err
		}
		return fn(ctx, db, spaceID, memoryID)
	})
}
