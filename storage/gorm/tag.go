package gorm

import (
	"context"
	"fmt"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository implements storage.TagRepository with gorm.
type TagRepository struct {
	db *gorm.DB
}

var _ storage.TagRepository = (*TagRepository)(nil)

// GetOrCreateTag finds or creates a tag by normalized name. Concurrent
// creators race on the unique name index; the loser reads the winner's row.
func (r *TagRepository) GetOrCreateTag(ctx context.Context, name string) (*core.Tag, error) {
	if err := core.ValidateTagName(name); err != nil {
		return nil, err
	}
	normalized := core.NormalizeTagName(name)
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tagRow{Name: normalized}).Error
	if err != nil {
		return nil, translate(err)
	}
	return findTag(db, normalized)
}

// GetTag retrieves a tag by ID.
func (r *TagRepository) GetTag(ctx context.Context, id core.ID) (*core.Tag, error) {
	var row tagRow
	if err := r.db.WithContext(ctx).First(&row, uint64(id)).Error; err != nil {
		return nil, translate(err)
	}
	return toTag(&row), nil
}

// FindTagByName retrieves a tag by name, case-insensitively.
func (r *TagRepository) FindTagByName(ctx context.Context, name string) (*core.Tag, error) {
	return findTag(r.db.WithContext(ctx), core.NormalizeTagName(name))
}

func findTag(tx *gorm.DB, normalized string) (*core.Tag, error) {
	var row tagRow
	if err := tx.Where("name = ?", normalized).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return toTag(&row), nil
}

// ListTags returns all tags ordered by name.
func (r *TagRepository) ListTags(ctx context.Context) ([]*core.Tag, error) {
	var rows []tagRow
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return toTags(rows), nil
}

// AddMemoryTag links a memory to a tag.
func (r *TagRepository) AddMemoryTag(ctx context.Context, memoryID, tagID core.ID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[memoryRow](tx, uint64(memoryID)); err != nil {
			return err
		}
		return linkMemoryTag(tx, memoryID, tagID)
	}))
}

// RemoveMemoryTag unlinks a memory from a tag.
func (r *TagRepository) RemoveMemoryTag(ctx context.Context, memoryID, tagID core.ID) error {
	err := r.db.WithContext(ctx).
		Where(`"memoryId" = ? AND "tagId" = ?`, uint64(memoryID), uint64(tagID)).
		Delete(&memoryTagRow{}).Error
	return translate(err)
}

// ListMemoryTags returns the tags linked to a memory ordered by name.
func (r *TagRepository) ListMemoryTags(ctx context.Context, memoryID core.ID) ([]*core.Tag, error) {
	db := r.db.WithContext(ctx)
	linked := db.Model(&memoryTagRow{}).Select(`"tagId"`).Where(`"memoryId" = ?`, uint64(memoryID))
	var rows []tagRow
	if err := db.Where("id IN (?)", linked).Order("name").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return toTags(rows), nil
}

// DeleteTag removes a tag that no memory is linked to.
func (r *TagRepository) DeleteTag(ctx context.Context, id core.ID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[tagRow](tx, uint64(id)); err != nil {
			return err
		}
		linked, err := exists(tx.Model(&memoryTagRow{}).Where(`"tagId" = ?`, uint64(id)))
		if err != nil {
			return err
		}
		if linked {
			return storage.ErrRestricted
		}
		return tx.Delete(&tagRow{}, uint64(id)).Error
	}))
}

// linkMemoryTag inserts a memory/tag link; an existing link is left alone.
func linkMemoryTag(tx *gorm.DB, memoryID, tagID core.ID) error {
	found, err := exists(tx.Model(&tagRow{}).Where("id = ?", uint64(tagID)))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: tag %d", storage.ErrNotFound, tagID)
	}
	return tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&memoryTagRow{MemoryID: uint64(memoryID), TagID: uint64(tagID)}).Error
}

func toTags(rows []tagRow) []*core.Tag {
	tags := make([]*core.Tag, 0, len(rows))
	for i := range rows {
		tags = append(tags, toTag(&rows[i]))
	}
	return tags
}
