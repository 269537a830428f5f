// Package organize manages tags and spaces and the memberships linking them
// to memories.
package organize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// ErrOwnershipMismatch is returned when a space and a memory belong to
// different users, or a caller acts on a record it does not own.
var ErrOwnershipMismatch = errors.New("ownership mismatch")

// Graph is the organization layer over tag and space repositories.
type Graph struct {
	memories storage.MemoryRepository
	tags     storage.TagRepository
	spaces   storage.SpaceRepository
	logger   *slog.Logger
}

func NewGraph(memories storage.MemoryRepository, tags storage.TagRepository, spaces storage.SpaceRepository, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		memories: memories,
		tags:     tags,
		spaces:   spaces,
		logger:   logger.With("component", "organize"),
	}
}

// GetOrCreateTag returns the tag with the normalized name, creating it when
// needed.
func (g *Graph) GetOrCreateTag(ctx context.Context, name string) (*core.Tag, error) {
	normalized := core.NormalizeTagName(name)
	if err := core.ValidateTagName(normalized); err != nil {
		return nil, err
	}
	return g.tags.GetOrCreateTag(ctx, normalized)
}

// ResolveTags maps names to tag IDs, creating missing tags. Names that
// normalize to the same tag yield one ID; order follows first occurrence.
func (g *Graph) ResolveTags(ctx context.Context, names []string) ([]core.ID, error) {
	seen := make(map[string]struct{}, len(names))
	ids := make([]core.ID, 0, len(names))
	for _, name := range names {
		normalized := core.NormalizeTagName(name)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		tag, err := g.GetOrCreateTag(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("resolving tag %q: %w", name, err)
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// FindTag looks a tag up by name without creating it.
func (g *Graph) FindTag(ctx context.Context, name string) (*core.Tag, error) {
	return g.tags.FindTagByName(ctx, core.NormalizeTagName(name))
}

// Tags lists every tag.
func (g *Graph) Tags(ctx context.Context) ([]*core.Tag, error) {
	return g.tags.ListTags(ctx)
}

// DeleteTag removes an unused tag.
func (g *Graph) DeleteTag(ctx context.Context, id core.ID) error {
	return g.tags.DeleteTag(ctx, id)
}

// AddMemoryToTag tags a memory. Tagging twice is a no-op.
func (g *Graph) AddMemoryToTag(ctx context.Context, memoryID, tagID core.ID) error {
	return g.tags.AddMemoryTag(ctx, memoryID, tagID)
}

// RemoveMemoryFromTag untags a memory. Removing a missing tag is a no-op.
func (g *Graph) RemoveMemoryFromTag(ctx context.Context, memoryID, tagID core.ID) error {
	return g.tags.RemoveMemoryTag(ctx, memoryID, tagID)
}

// TagMemory resolves name and tags the memory with it.
func (g *Graph) TagMemory(ctx context.Context, memoryID core.ID, name string) (*core.Tag, error) {
	tag, err := g.GetOrCreateTag(ctx, name)
	if err != nil {
		return nil, err
	}
	return tag, g.AddMemoryToTag(ctx, memoryID, tag.ID)
}

// UntagMemory removes the named tag from a memory. Unknown names are a no-op.
func (g *Graph) UntagMemory(ctx context.Context, memoryID core.ID, name string) error {
	tag, err := g.FindTag(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return g.RemoveMemoryFromTag(ctx, memoryID, tag.ID)
}

// MemoryTags lists the tags of a memory ordered by name.
func (g *Graph) MemoryTags(ctx context.Context, memoryID core.ID) ([]*core.Tag, error) {
	return g.tags.ListMemoryTags(ctx, memoryID)
}

// MemoryTagNames lists the tag names of a memory ordered by name.
func (g *Graph) MemoryTagNames(ctx context.Context, memoryID core.ID) ([]string, error) {
	tags, err := g.MemoryTags(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = tag.Name
	}
	return names, nil
}

// CreateSpace creates a named space for userID.
func (g *Graph) CreateSpace(ctx context.Context, userID core.ID, name string, description *string) (*core.Space, error) {
	space := &core.Space{
		UserID:      userID,
		Name:        strings.TrimSpace(name),
		Description: description,
	}
	if err := core.ValidateSpace(space); err != nil {
		return nil, err
	}
	created, err := g.spaces.CreateSpace(ctx, space)
	if err != nil {
		return nil, err
	}
	g.logger.Info("created space", "space", created.ID, "user", userID)
	return created, nil
}

// DeleteSpace removes an empty space. Returns storage.ErrRestricted while the
// space still has members.
func (g *Graph) DeleteSpace(ctx context.Context, userID, spaceID core.ID) error {
	if _, err := g.ownedSpace(ctx, userID, spaceID); err != nil {
		return err
	}
	return g.spaces.DeleteSpace(ctx, spaceID)
}

// ListSpaces returns the spaces of userID, oldest first.
func (g *Graph) ListSpaces(ctx context.Context, userID core.ID) ([]*core.Space, error) {
	return g.spaces.ListSpaces(ctx, userID)
}

// AddMemoryToSpace adds a memory to a space. Both must belong to the same
// user. Adding twice is a no-op.
func (g *Graph) AddMemoryToSpace(ctx context.Context, spaceID, memoryID core.ID) error {
	space, err := g.spaces.GetSpace(ctx, spaceID)
	if err != nil {
		return err
	}
	memory, err := g.memories.GetMemory(ctx, memoryID)
	if err != nil {
		return err
	}
	if space.UserID != memory.UserID {
		return fmt.Errorf("%w: space %d belongs to user %d, memory %d to user %d",
			ErrOwnershipMismatch, space.ID, space.UserID, memory.ID, memory.UserID)
	}
	return g.spaces.AddSpaceMemory(ctx, spaceID, memoryID)
}

// RemoveMemoryFromSpace removes a memory from a space. Missing memberships
// are a no-op.
func (g *Graph) RemoveMemoryFromSpace(ctx context.Context, spaceID, memoryID core.ID) error {
	return g.spaces.RemoveSpaceMemory(ctx, spaceID, memoryID)
}

// SpaceMemories returns the IDs of the memories in a space.
func (g *Graph) SpaceMemories(ctx context.Context, spaceID core.ID) ([]core.ID, error) {
	return g.spaces.ListSpaceMemories(ctx, spaceID)
}

// MemorySpaces returns the IDs of the spaces containing a memory.
func (g *Graph) MemorySpaces(ctx context.Context, memoryID core.ID) ([]core.ID, error) {
	return g.spaces.ListMemorySpaces(ctx, memoryID)
}

// OwnedSpace returns the space when userID owns it.
func (g *Graph) OwnedSpace(ctx context.Context, userID, spaceID core.ID) (*core.Space, error) {
	return g.ownedSpace(ctx, userID, spaceID)
}

func (g *Graph) ownedSpace(ctx context.Context, userID, spaceID core.ID) (*core.Space, error) {
	space, err := g.spaces.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space.UserID != userID {
		return nil, fmt.Errorf("%w: space %d", ErrOwnershipMismatch, spaceID)
	}
	return space, nil
}
