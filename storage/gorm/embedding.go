package gorm

import (
	"context"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingRepository implements storage.EmbeddingRepository with gorm.
type EmbeddingRepository struct {
	db *gorm.DB
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// ReplaceEmbeddings swaps the vectors of one (memory, model) generation.
func (r *EmbeddingRepository) ReplaceEmbeddings(ctx context.Context, memoryID core.ID, model string, embeddings []*core.Embedding) error {
	for _, embedding := range embeddings {
		if err := core.ValidateEmbedding(embedding); err != nil {
			return err
		}
	}
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[memoryRow](tx, uint64(memoryID)); err != nil {
			return err
		}
		return replaceEmbeddings(tx, memoryID, model, embeddings)
	}))
}

// ListEmbeddings returns one generation ordered by chunk index.
func (r *EmbeddingRepository) ListEmbeddings(ctx context.Context, memoryID core.ID, model string) ([]*core.Embedding, error) {
	var rows []embeddingRow
	err := whereModel(r.db.WithContext(ctx), model).
		Where(`"memoryId" = ?`, uint64(memoryID)).
		Order(`"chunkIndex"`).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	embeddings := make([]*core.Embedding, 0, len(rows))
	for i := range rows {
		embedding, err := toEmbedding(&rows[i])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, nil
}

// ListEmbeddingsForMemories returns the given model's chunks keyed by memory.
func (r *EmbeddingRepository) ListEmbeddingsForMemories(ctx context.Context, model string, memoryIDs ...core.ID) (map[core.ID][]*core.Embedding, error) {
	result := make(map[core.ID][]*core.Embedding, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return result, nil
	}
	raw := make([]uint64, len(memoryIDs))
	for i, id := range memoryIDs {
		raw[i] = uint64(id)
	}
	var rows []embeddingRow
	err := whereModel(r.db.WithContext(ctx), model).
		Where(`"memoryId" IN ?`, raw).
		Order(`"memoryId"`).Order(`"chunkIndex"`).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for i := range rows {
		embedding, err := toEmbedding(&rows[i])
		if err != nil {
			return nil, err
		}
		result[embedding.MemoryID] = append(result[embedding.MemoryID], embedding)
	}
	return result, nil
}

// PurgeEmbeddings removes one generation.
func (r *EmbeddingRepository) PurgeEmbeddings(ctx context.Context, memoryID core.ID, model string) error {
	err := whereModel(r.db.WithContext(ctx), model).
		Where(`"memoryId" = ?`, uint64(memoryID)).
		Delete(&embeddingRow{}).Error
	return translate(err)
}

// ListEmbeddingModels returns the distinct model names stored for a memory.
// Vectors stored without a model name are reported as "".
func (r *EmbeddingRepository) ListEmbeddingModels(ctx context.Context, memoryID core.ID) ([]string, error) {
	var names []*string
	err := r.db.WithContext(ctx).Model(&embeddingRow{}).
		Where(`"memoryId" = ?`, uint64(memoryID)).
		Distinct().
		Order(`"modelName"`).
		Pluck("modelName", &names).Error
	if err != nil {
		return nil, translate(err)
	}
	models := make([]string, 0, len(names))
	for _, name := range names {
		if name == nil {
			models = append(models, "")
			continue
		}
		models = append(models, *name)
	}
	return models, nil
}

// whereModel scopes query to one model generation; the empty model matches
// rows stored without a model name.
func whereModel(query *gorm.DB, model string) *gorm.DB {
	if model == "" {
		return query.Where(`"modelName" IS NULL`)
	}
	return query.Where(`"modelName" = ?`, model)
}

// replaceEmbeddings deletes the (memoryID, model) generation and inserts
// embeddings with contiguous chunk indexes.
func replaceEmbeddings(tx *gorm.DB, memoryID core.ID, model string, embeddings []*core.Embedding) error {
	err := whereModel(tx, model).Where(`"memoryId" = ?`, uint64(memoryID)).Delete(&embeddingRow{}).Error
	if err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return nil
	}
	var modelName *string
	if model != "" {
		modelName = &model
	}
	created := now()
	rows := make([]*embeddingRow, len(embeddings))
	for i, embedding := range embeddings {
		rows[i] = &embeddingRow{
			MemoryID:   uint64(memoryID),
			ChunkIndex: i,
			ChunkText:  embedding.ChunkText,
			Vector:     storage.EncodeVector(embedding.Vector),
			ModelName:  modelName,
			CreatedAt:  created,
		}
	}
	if err := tx.Omit(clause.Associations).CreateInBatches(rows, 100).Error; err != nil {
		return err
	}
	for i, embedding := range embeddings {
		embedding.ID = core.ID(rows[i].ID)
		embedding.MemoryID = memoryID
		embedding.ChunkIndex = i
		embedding.ModelName = modelName
		embedding.CreatedAt = created
	}
	return nil
}
