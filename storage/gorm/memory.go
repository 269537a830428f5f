package gorm

import (
	"context"
	"fmt"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemoryRepository implements storage.MemoryRepository with gorm.
type MemoryRepository struct {
	db *gorm.DB
}

var _ storage.MemoryRepository = (*MemoryRepository)(nil)

// CreateMemory stores a memory and its uploads in one transaction.
func (r *MemoryRepository) CreateMemory(ctx context.Context, memory *core.Memory, uploads ...*core.Upload) (*core.Memory, error) {
	memory.Status = core.StatusProcessing
	if err := core.ValidateMemory(memory); err != nil {
		return nil, err
	}
	for _, upload := range uploads {
		if err := core.ValidateUpload(upload); err != nil {
			return nil, err
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[userRow](tx, uint64(memory.UserID)); err != nil {
			return err
		}
		row := fromMemory(memory)
		row.ID = 0
		row.CreatedAt = now()
		row.UpdatedAt = row.CreatedAt
		if err := tx.Omit(clause.Associations).Create(row).Error; err != nil {
			return err
		}
		memory.ID = core.ID(row.ID)
		memory.CreatedAt = row.CreatedAt
		memory.UpdatedAt = row.UpdatedAt
		return insertUploads(tx, memory.ID, uploads)
	})
	if err != nil {
		return nil, translate(err)
	}
	return memory, nil
}

// GetMemory retrieves a memory by ID.
func (r *MemoryRepository) GetMemory(ctx context.Context, id core.ID) (*core.Memory, error) {
	return getMemory(r.db.WithContext(ctx), id)
}

func getMemory(tx *gorm.DB, id core.ID) (*core.Memory, error) {
	var row memoryRow
	if err := tx.First(&row, uint64(id)).Error; err != nil {
		return nil, translate(err)
	}
	return toMemory(&row)
}

// GetMemories retrieves multiple memories by their IDs, in the order requested.
func (r *MemoryRepository) GetMemories(ctx context.Context, ids ...core.ID) ([]*core.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}
	var rows []memoryRow
	if err := r.db.WithContext(ctx).Where("id IN ?", raw).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	memories, err := toMemories(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[core.ID]*core.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}
	result := make([]*core.Memory, 0, len(memories))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			result = append(result, m)
		}
	}
	return result, nil
}

// FindMemoryByHash retrieves the memory with the given content hash.
func (r *MemoryRepository) FindMemoryByHash(ctx context.Context, hash string) (*core.Memory, error) {
	var row memoryRow
	if err := r.db.WithContext(ctx).Where(`"contentHash" = ?`, hash).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return toMemory(&row)
}

// ListMemories returns memories matching filter, newest first.
func (r *MemoryRepository) ListMemories(ctx context.Context, filter storage.MemoryFilter) ([]*core.Memory, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, storage.ErrInvalidQuery
	}
	db := r.db.WithContext(ctx)
	query := db.Model(&memoryRow{})
	if filter.UserID != 0 {
		query = query.Where(`"userId" = ?`, uint64(filter.UserID))
	}
	if filter.Type != "" {
		query = query.Where("type = ?", string(filter.Type))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.SpaceID != 0 {
		members := db.Model(&spaceMemoryRow{}).Select(`"memoryId"`).Where(`"spaceId" = ?`, uint64(filter.SpaceID))
		query = query.Where("id IN (?)", members)
	}
	for _, tagID := range filter.TagIDs {
		tagged := db.Model(&memoryTagRow{}).Select(`"memoryId"`).Where(`"tagId" = ?`, uint64(tagID))
		query = query.Where("id IN (?)", tagged)
	}
	query = query.Order(`"createdAt" DESC`).Order("id DESC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []memoryRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return toMemories(rows)
}

// UpdateMemory stores title, summary and source URL changes.
func (r *MemoryRepository) UpdateMemory(ctx context.Context, memory *core.Memory) (*core.Memory, error) {
	var result *core.Memory
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&memoryRow{}).Where("id = ?", uint64(memory.ID)).Updates(map[string]any{
			"title":     memory.Title,
			"summary":   memory.Summary,
			"sourceUrl": memory.SourceURL,
			"updatedAt": now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		var err error
		result, err = getMemory(tx, memory.ID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// TransitionStatus moves a memory to `to` if its status is one of from.
func (r *MemoryRepository) TransitionStatus(ctx context.Context, id core.ID, to core.Status, from ...core.Status) (*core.Memory, error) {
	if err := core.ValidateStatus(to); err != nil {
		return nil, err
	}
	var result *core.Memory
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := compareAndSwapStatus(tx, id, to, from...); err != nil {
			return err
		}
		var err error
		result, err = getMemory(tx, id)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// compareAndSwapStatus updates the status in a single conditional UPDATE so
// that concurrent writers are serialized by the row lock.
func compareAndSwapStatus(tx *gorm.DB, id core.ID, to core.Status, from ...core.Status) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	if len(allowed) == 0 {
		return fmt.Errorf("%w: memory %d has no allowed source status", storage.ErrStatusConflict, id)
	}
	res := tx.Model(&memoryRow{}).
		Where("id = ? AND status IN ?", uint64(id), allowed).
		Updates(map[string]any{"status": string(to), "updatedAt": now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	current, err := getMemory(tx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: memory %d is %s", storage.ErrStatusConflict, id, current.Status)
}

// CompleteExtraction applies an extraction result and marks the memory ready.
func (r *MemoryRepository) CompleteExtraction(ctx context.Context, id core.ID, completion *storage.Completion) (*core.Memory, error) {
	for _, extraction := range completion.Extractions {
		if err := core.ValidateExtraction(extraction); err != nil {
			return nil, err
		}
	}
	for _, embedding := range completion.Embeddings {
		if err := core.ValidateEmbedding(embedding); err != nil {
			return nil, err
		}
	}

	var result *core.Memory
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := compareAndSwapStatus(tx, id, core.StatusReady, core.StatusProcessing); err != nil {
			return err
		}

		produced := make([]string, 0, len(completion.Extractions))
		for _, extraction := range completion.Extractions {
			if err := upsertExtraction(tx, id, extraction); err != nil {
				return err
			}
			produced = append(produced, string(extraction.ExtractionType))
		}
		stale := tx.Where(`"memoryId" = ?`, uint64(id))
		if len(produced) > 0 {
			stale = stale.Where(`"extractionType" NOT IN ?`, produced)
		}
		if err := stale.Delete(&extractionRow{}).Error; err != nil {
			return err
		}

		for _, tagID := range completion.TagIDs {
			if err := linkMemoryTag(tx, id, tagID); err != nil {
				return err
			}
		}

		if completion.Embeddings != nil {
			if err := replaceEmbeddings(tx, id, completion.EmbeddingModel, completion.Embeddings); err != nil {
				return err
			}
		}

		fields := map[string]any{}
		if completion.ExtractedText != nil {
			fields["extractedText"] = *completion.ExtractedText
		}
		if completion.Summary != nil {
			fields["summary"] = *completion.Summary
		}
		if len(fields) > 0 {
			if err := tx.Model(&memoryRow{}).Where("id = ?", uint64(id)).Updates(fields).Error; err != nil {
				return err
			}
		}
		var err error
		result, err = getMemory(tx, id)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// FailExtraction marks a processing memory failed and records the cause.
func (r *MemoryRepository) FailExtraction(ctx context.Context, id core.ID, cause string) (*core.Memory, error) {
	var result *core.Memory
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := compareAndSwapStatus(tx, id, core.StatusFailed, core.StatusProcessing); err != nil {
			return err
		}
		errorRow := &core.Extraction{ExtractionType: core.ExtractionError, Content: cause}
		if err := upsertExtraction(tx, id, errorRow); err != nil {
			return err
		}
		var err error
		result, err = getMemory(tx, id)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// DeleteMemory removes a memory and every row that references it. The
// foreign keys restrict, so dependents go first.
func (r *MemoryRepository) DeleteMemory(ctx context.Context, id core.ID) ([]*core.Upload, error) {
	var removed []*core.Upload
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[memoryRow](tx, uint64(id)); err != nil {
			return err
		}
		var err error
		removed, err = listUploads(tx, id)
		if err != nil {
			return err
		}
		for _, child := range []any{&uploadRow{}, &extractionRow{}, &embeddingRow{}, &memoryTagRow{}, &spaceMemoryRow{}} {
			if err := tx.Where(`"memoryId" = ?`, uint64(id)).Delete(child).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&memoryRow{}, uint64(id)).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return removed, nil
}
