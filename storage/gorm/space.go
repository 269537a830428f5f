package gorm

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SpaceRepository implements storage.SpaceRepository with gorm.
type SpaceRepository struct {
	db *gorm.DB
}

var _ storage.SpaceRepository = (*SpaceRepository)(nil)

// CreateSpace stores a new space.
func (r *SpaceRepository) CreateSpace(ctx context.Context, space *core.Space) (*core.Space, error) {
	if err := core.ValidateSpace(space); err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[userRow](tx, uint64(space.UserID)); err != nil {
			return err
		}
		row := &spaceRow{
			UserID:      uint64(space.UserID),
			Name:        strings.TrimSpace(space.Name),
			Description: space.Description,
			CreatedAt:   now(),
		}
		if err := tx.Omit(clause.Associations).Create(row).Error; err != nil {
			return err
		}
		space.ID = core.ID(row.ID)
		space.Name = row.Name
		space.CreatedAt = row.CreatedAt
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return space, nil
}

// GetSpace retrieves a space by ID.
func (r *SpaceRepository) GetSpace(ctx context.Context, id core.ID) (*core.Space, error) {
	var row spaceRow
	if err := r.db.WithContext(ctx).First(&row, uint64(id)).Error; err != nil {
		return nil, translate(err)
	}
	return toSpace(&row), nil
}

// ListSpaces returns the spaces owned by a user, oldest first.
func (r *SpaceRepository) ListSpaces(ctx context.Context, userID core.ID) ([]*core.Space, error) {
	var rows []spaceRow
	err := r.db.WithContext(ctx).Where(`"userId" = ?`, uint64(userID)).Order("id").Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	spaces := make([]*core.Space, 0, len(rows))
	for i := range rows {
		spaces = append(spaces, toSpace(&rows[i]))
	}
	return spaces, nil
}

// DeleteSpace removes a space that has no members.
func (r *SpaceRepository) DeleteSpace(ctx context.Context, id core.ID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[spaceRow](tx, uint64(id)); err != nil {
			return err
		}
		members, err := exists(tx.Model(&spaceMemoryRow{}).Where(`"spaceId" = ?`, uint64(id)))
		if err != nil {
			return err
		}
		if members {
			return storage.ErrRestricted
		}
		return tx.Delete(&spaceRow{}, uint64(id)).Error
	}))
}

// AddSpaceMemory adds a memory to a space.
func (r *SpaceRepository) AddSpaceMemory(ctx context.Context, spaceID, memoryID core.ID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[spaceRow](tx, uint64(spaceID)); err != nil {
			return fmt.Errorf("space %d: %w", spaceID, err)
		}
		if err := requireRow[memoryRow](tx, uint64(memoryID)); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).
			Create(&spaceMemoryRow{SpaceID: uint64(spaceID), MemoryID: uint64(memoryID)}).Error
	}))
}

// RemoveSpaceMemory removes a memory from a space.
func (r *SpaceRepository) RemoveSpaceMemory(ctx context.Context, spaceID, memoryID core.ID) error {
	err := r.db.WithContext(ctx).
		Where(`"spaceId" = ? AND "memoryId" = ?`, uint64(spaceID), uint64(memoryID)).
		Delete(&spaceMemoryRow{}).Error
	return translate(err)
}

// ListSpaceMemories returns the IDs of memories in a space.
func (r *SpaceRepository) ListSpaceMemories(ctx context.Context, spaceID core.ID) ([]core.ID, error) {
	return r.pluckIDs(ctx, "memoryId", `"spaceId" = ?`, spaceID)
}

// ListMemorySpaces returns the IDs of spaces containing a memory.
func (r *SpaceRepository) ListMemorySpaces(ctx context.Context, memoryID core.ID) ([]core.ID, error) {
	return r.pluckIDs(ctx, "spaceId", `"memoryId" = ?`, memoryID)
}

func (r *SpaceRepository) pluckIDs(ctx context.Context, column, where string, id core.ID) ([]core.ID, error) {
	var raw []uint64
	err := r.db.WithContext(ctx).Model(&spaceMemoryRow{}).
		Where(where, uint64(id)).
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}}).
		Pluck(column, &raw).Error
	if err != nil {
		return nil, translate(err)
	}
	ids := make([]core.ID, len(raw))
	for i, v := range raw {
		ids[i] = core.ID(v)
	}
	return ids, nil
}
