package gorm

import (
	"time"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// Row types reproduce the persisted schema: table names are the entity
// names and columns are camelCase. Every foreign key restricts deletes of
// the parent; the memory cascade is performed by MemoryRepository.

type userRow struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;not null;uniqueIndex:User_email_key"`
	Name      *string   `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:createdAt;not null"`
}

func (userRow) TableName() string { return "User" }

type memoryRow struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        uint64    `gorm:"column:userId;not null;index:Memory_userId_createdAt_idx,priority:1"`
	User          *userRow  `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:RESTRICT"`
	Type          string    `gorm:"column:type;not null"`
	Title         *string   `gorm:"column:title"`
	Summary       *string   `gorm:"column:summary"`
	ExtractedText *string   `gorm:"column:extractedText"`
	SourceURL     *string   `gorm:"column:sourceUrl"`
	ContentHash   string    `gorm:"column:contentHash;not null;uniqueIndex:Memory_contentHash_key"`
	Status        string    `gorm:"column:status;not null;default:processing"`
	CreatedAt     time.Time `gorm:"column:createdAt;not null;index:Memory_userId_createdAt_idx,priority:2"`
	UpdatedAt     time.Time `gorm:"column:updatedAt;not null"`
}

func (memoryRow) TableName() string { return "Memory" }

type uploadRow struct {
	ID        uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	MemoryID  uint64     `gorm:"column:memoryId;not null;index"`
	Memory    *memoryRow `gorm:"foreignKey:MemoryID;references:ID;constraint:OnDelete:RESTRICT"`
	FileURL   string     `gorm:"column:fileUrl;not null"`
	FileType  string     `gorm:"column:fileType;not null"`
	MimeType  *string    `gorm:"column:mimeType"`
	FileSize  int64      `gorm:"column:fileSize;not null"`
	CreatedAt time.Time  `gorm:"column:createdAt;not null"`
}

func (uploadRow) TableName() string { return "Upload" }

type extractionRow struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	MemoryID       uint64     `gorm:"column:memoryId;not null;uniqueIndex:Extraction_memoryId_extractionType_key,priority:1"`
	Memory         *memoryRow `gorm:"foreignKey:MemoryID;references:ID;constraint:OnDelete:RESTRICT"`
	ExtractionType string     `gorm:"column:extractionType;not null;uniqueIndex:Extraction_memoryId_extractionType_key,priority:2"`
	Content        string     `gorm:"column:content;not null"`
	Confidence     *float64   `gorm:"column:confidence"`
	CreatedAt      time.Time  `gorm:"column:createdAt;not null"`
}

func (extractionRow) TableName() string { return "Extraction" }

type embeddingRow struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	MemoryID   uint64     `gorm:"column:memoryId;not null;index:Embedding_memoryId_modelName_idx,priority:1"`
	Memory     *memoryRow `gorm:"foreignKey:MemoryID;references:ID;constraint:OnDelete:RESTRICT"`
	ChunkIndex int        `gorm:"column:chunkIndex;not null"`
	ChunkText  string     `gorm:"column:chunkText;not null"`
	Vector     []byte     `gorm:"column:vector;not null"`
	ModelName  *string    `gorm:"column:modelName;index:Embedding_memoryId_modelName_idx,priority:2"`
	CreatedAt  time.Time  `gorm:"column:createdAt;not null"`
}

func (embeddingRow) TableName() string { return "Embedding" }

type tagRow struct {
	ID   uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;not null;uniqueIndex:Tag_name_key"`
}

func (tagRow) TableName() string { return "Tag" }

type memoryTagRow struct {
	MemoryID uint64     `gorm:"column:memoryId;primaryKey;autoIncrement:false"`
	Memory   *memoryRow `gorm:"foreignKey:MemoryID;references:ID;constraint:OnDelete:RESTRICT"`
	TagID    uint64     `gorm:"column:tagId;primaryKey;autoIncrement:false;index"`
	Tag      *tagRow    `gorm:"foreignKey:TagID;references:ID;constraint:OnDelete:RESTRICT"`
}

func (memoryTagRow) TableName() string { return "MemoryTag" }

type spaceRow struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID      uint64    `gorm:"column:userId;not null;index"`
	User        *userRow  `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:RESTRICT"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:createdAt;not null"`
}

func (spaceRow) TableName() string { return "Space" }

type spaceMemoryRow struct {
	SpaceID  uint64     `gorm:"column:spaceId;primaryKey;autoIncrement:false"`
	Space    *spaceRow  `gorm:"foreignKey:SpaceID;references:ID;constraint:OnDelete:RESTRICT"`
	MemoryID uint64     `gorm:"column:memoryId;primaryKey;autoIncrement:false;index"`
	Memory   *memoryRow `gorm:"foreignKey:MemoryID;references:ID;constraint:OnDelete:RESTRICT"`
}

func (spaceMemoryRow) TableName() string { return "SpaceMemory" }

// allModels lists the rows in dependency order for migration.
func allModels() []any {
	return []any{
		&userRow{},
		&memoryRow{},
		&uploadRow{},
		&extractionRow{},
		&embeddingRow{},
		&tagRow{},
		&memoryTagRow{},
		&spaceRow{},
		&spaceMemoryRow{},
	}
}

func toUser(r *userRow) *core.User {
	return &core.User{ID: core.ID(r.ID), Email: r.Email, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

func toMemory(r *memoryRow) (*core.Memory, error) {
	memoryType, err := core.ParseMemoryType(r.Type)
	if err != nil {
		return nil, err
	}
	status, err := core.ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}
	return &core.Memory{
		ID:            core.ID(r.ID),
		UserID:        core.ID(r.UserID),
		Type:          memoryType,
		Title:         r.Title,
		Summary:       r.Summary,
		ExtractedText: r.ExtractedText,
		SourceURL:     r.SourceURL,
		ContentHash:   r.ContentHash,
		Status:        status,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}, nil
}

func toMemories(rows []memoryRow) ([]*core.Memory, error) {
	memories := make([]*core.Memory, 0, len(rows))
	for i := range rows {
		m, err := toMemory(&rows[i])
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, nil
}

func fromMemory(m *core.Memory) *memoryRow {
	return &memoryRow{
		ID:            uint64(m.ID),
		UserID:        uint64(m.UserID),
		Type:          string(m.Type),
		Title:         m.Title,
		Summary:       m.Summary,
		ExtractedText: m.ExtractedText,
		SourceURL:     m.SourceURL,
		ContentHash:   m.ContentHash,
		Status:        string(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toUpload(r *uploadRow) (*core.Upload, error) {
	fileType, err := core.ParseFileType(r.FileType)
	if err != nil {
		return nil, err
	}
	return &core.Upload{
		ID:        core.ID(r.ID),
		MemoryID:  core.ID(r.MemoryID),
		FileURL:   r.FileURL,
		FileType:  fileType,
		MimeType:  r.MimeType,
		FileSize:  r.FileSize,
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}

func toExtraction(r *extractionRow) (*core.Extraction, error) {
	extractionType, err := core.ParseExtractionType(r.ExtractionType)
	if err != nil {
		return nil, err
	}
	return &core.Extraction{
		ID:             core.ID(r.ID),
		MemoryID:       core.ID(r.MemoryID),
		ExtractionType: extractionType,
		Content:        r.Content,
		Confidence:     r.Confidence,
		CreatedAt:      r.CreatedAt.UTC(),
	}, nil
}

func toEmbedding(r *embeddingRow) (*core.Embedding, error) {
	vector, err := storage.DecodeVector(r.Vector)
	if err != nil {
		return nil, err
	}
	return &core.Embedding{
		ID:         core.ID(r.ID),
		MemoryID:   core.ID(r.MemoryID),
		ChunkIndex: r.ChunkIndex,
		ChunkText:  r.ChunkText,
		Vector:     vector,
		ModelName:  r.ModelName,
		CreatedAt:  r.CreatedAt.UTC(),
	}, nil
}

func toTag(r *tagRow) *core.Tag {
	return &core.Tag{ID: core.ID(r.ID), Name: r.Name}
}

func toSpace(r *spaceRow) *core.Space {
	return &core.Space{
		ID:          core.ID(r.ID),
		UserID:      core.ID(r.UserID),
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
