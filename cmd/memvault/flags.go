package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"github.com/urfave/cli/v2"
)

var userFlag = &cli.StringFlag{
	Name:     "user",
	Aliases:  []string{"u"},
	Usage:    "Email of the memory owner",
	EnvVars:  []string{"MEMVAULT_USER"},
	Required: true,
}

// currentUser resolves --user. Unknown emails are an error unless create is
// set.
func currentUser(ctx context.Context, c *cli.Context, db *memvault.Database, create bool) (*core.User, error) {
	email := c.String("user")
	if create {
		return db.EnsureUser(ctx, email)
	}
	user, err := db.Store().Users().FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("no user %q; create it with the user command", email)
	}
	return user, err
}

// idArg parses the n-th positional argument as an ID.
func idArg(c *cli.Context, n int, name string) (core.ID, error) {
	raw := c.Args().Get(n)
	if raw == "" {
		return 0, fmt.Errorf("missing %s argument", name)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return core.ID(id), nil
}

// tagIDs resolves tag names to IDs. Unknown names are an error.
func tagIDs(ctx context.Context, db *memvault.Database, names []string) ([]core.ID, error) {
	ids := make([]core.ID, 0, len(names))
	for _, name := range names {
		tag, err := db.Organizer().FindTag(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// ownedSpaceID validates --space when set and returns 0 otherwise.
func ownedSpaceID(ctx context.Context, c *cli.Context, db *memvault.Database, userID core.ID) (core.ID, error) {
	if !c.IsSet("space") {
		return 0, nil
	}
	space, err := db.Organizer().OwnedSpace(ctx, userID, core.ID(c.Uint64("space")))
	if err != nil {
		return 0, err
	}
	return space.ID, nil
}
