package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements storage.Store on a gorm connection.
type Store struct {
	db          *gorm.DB
	users       *UserRepository
	memories    *MemoryRepository
	uploads     *UploadRepository
	extractions *ExtractionRepository
	embeddings  *EmbeddingRepository
	tags        *TagRepository
	spaces      *SpaceRepository
}

var _ storage.Store = (*Store)(nil)

// NewStore wraps an already migrated connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		users:       &UserRepository{db: db},
		memories:    &MemoryRepository{db: db},
		uploads:     &UploadRepository{db: db},
		extractions: &ExtractionRepository{db: db},
		embeddings:  &EmbeddingRepository{db: db},
		tags:        &TagRepository{db: db},
		spaces:      &SpaceRepository{db: db},
	}
}

func (s *Store) Users() storage.UserRepository { return s.users }
func (s *Store) Memories() storage.MemoryRepository { return s.memories }
func (s *Store) Uploads() storage.UploadRepository { return s.uploads }
func (s *Store) Extractions() storage.ExtractionRepository { return s.extractions }
func (s *Store) Embeddings() storage.EmbeddingRepository { return s.embeddings }
func (s *Store) Tags() storage.TagRepository { return s.tags }
func (s *Store) Spaces() storage.SpaceRepository { return s.spaces }

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return closeDB(s.db)
}

// UserRepository implements storage.UserRepository with gorm.
type UserRepository struct {
	db *gorm.DB
}

var _ storage.UserRepository = (*UserRepository)(nil)

// AddUser stores a new user with a unique email.
func (r *UserRepository) AddUser(ctx context.Context, user *core.User) (*core.User, error) {
	if err := core.ValidateUser(user); err != nil {
		return nil, err
	}
	user.Email = core.NormalizeEmail(user.Email)
	row := &userRow{Email: user.Email, Name: user.Name, CreatedAt: now()}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, translate(err)
	}
	user.ID = core.ID(row.ID)
	user.CreatedAt = row.CreatedAt
	return user, nil
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id core.ID) (*core.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).First(&row, uint64(id)).Error; err != nil {
		return nil, translate(err)
	}
	return toUser(&row), nil
}

// FindUserByEmail retrieves a user by email.
func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).Where("email = ?", core.NormalizeEmail(email)).First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return toUser(&row), nil
}

// DeleteUser removes a user that owns no memories or spaces.
func (r *UserRepository) DeleteUser(ctx context.Context, id core.ID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[userRow](tx, uint64(id)); err != nil {
			return err
		}
		for _, child := range []any{&memoryRow{}, &spaceRow{}} {
			found, err := exists(tx.Model(child).Where(`"userId" = ?`, uint64(id)))
			if err != nil {
				return err
			}
			if found {
				return storage.ErrRestricted
			}
		}
		return tx.Delete(&userRow{}, uint64(id)).Error
	}))
}

// UploadRepository implements storage.UploadRepository with gorm.
type UploadRepository struct {
	db *gorm.DB
}

var _ storage.UploadRepository = (*UploadRepository)(nil)

// AddUploads attaches uploads to an existing memory.
func (r *UploadRepository) AddUploads(ctx context.Context, memoryID core.ID, uploads ...*core.Upload) ([]*core.Upload, error) {
	for _, upload := range uploads {
		if err := core.ValidateUpload(upload); err != nil {
			return nil, err
		}
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[memoryRow](tx, uint64(memoryID)); err != nil {
			return err
		}
		return insertUploads(tx, memoryID, uploads)
	})
	if err != nil {
		return nil, translate(err)
	}
	return uploads, nil
}

// GetUpload retrieves an upload by ID.
func (r *UploadRepository) GetUpload(ctx context.Context, id core.ID) (*core.Upload, error) {
	var row uploadRow
	if err := r.db.WithContext(ctx).First(&row, uint64(id)).Error; err != nil {
		return nil, translate(err)
	}
	return toUpload(&row)
}

// ListUploads returns the uploads of a memory in insertion order.
func (r *UploadRepository) ListUploads(ctx context.Context, memoryID core.ID) ([]*core.Upload, error) {
	return listUploads(r.db.WithContext(ctx), memoryID)
}

func listUploads(tx *gorm.DB, memoryID core.ID) ([]*core.Upload, error) {
	var rows []uploadRow
	if err := tx.Where(`"memoryId" = ?`, uint64(memoryID)).Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	uploads := make([]*core.Upload, 0, len(rows))
	for i := range rows {
		upload, err := toUpload(&rows[i])
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func insertUploads(tx *gorm.DB, memoryID core.ID, uploads []*core.Upload) error {
	for _, upload := range uploads {
		row := &uploadRow{
			MemoryID:  uint64(memoryID),
			FileURL:   upload.FileURL,
			FileType:  string(upload.FileType),
			MimeType:  upload.MimeType,
			FileSize:  upload.FileSize,
			CreatedAt: now(),
		}
		if err := tx.Omit(clause.Associations).Create(row).Error; err != nil {
			return err
		}
		upload.ID = core.ID(row.ID)
		upload.MemoryID = memoryID
		upload.CreatedAt = row.CreatedAt
	}
	return nil
}

// ExtractionRepository implements storage.ExtractionRepository with gorm.
type ExtractionRepository struct {
	db *gorm.DB
}

var _ storage.ExtractionRepository = (*ExtractionRepository)(nil)

// UpsertExtractions stores extractions keyed by (memory, type).
func (r *ExtractionRepository) UpsertExtractions(ctx context.Context, memoryID core.ID, extractions ...*core.Extraction) error {
	for _, extraction := range extractions {
		if err := core.ValidateExtraction(extraction); err != nil {
			return err
		}
	}
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow[memoryRow](tx, uint64(memoryID)); err != nil {
			return err
		}
		for _, extraction := range extractions {
			if err := upsertExtraction(tx, memoryID, extraction); err != nil {
				return err
			}
		}
		return nil
	}))
}

// GetExtraction retrieves the extraction of one type.
func (r *ExtractionRepository) GetExtraction(ctx context.Context, memoryID core.ID, extractionType core.ExtractionType) (*core.Extraction, error) {
	var row extractionRow
	err := r.db.WithContext(ctx).
		Where(`"memoryId" = ? AND "extractionType" = ?`, uint64(memoryID), string(extractionType)).
		First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return toExtraction(&row)
}

// ListExtractions returns all extractions of a memory ordered by type.
func (r *ExtractionRepository) ListExtractions(ctx context.Context, memoryID core.ID) ([]*core.Extraction, error) {
	var rows []extractionRow
	err := r.db.WithContext(ctx).
		Where(`"memoryId" = ?`, uint64(memoryID)).
		Order(`"extractionType"`).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	extractions := make([]*core.Extraction, 0, len(rows))
	for i := range rows {
		extraction, err := toExtraction(&rows[i])
		if err != nil {
			return nil, err
		}
		extractions = append(extractions, extraction)
	}
	return extractions, nil
}

// upsertExtraction overwrites the row for (memoryID, type) in place.
func upsertExtraction(tx *gorm.DB, memoryID core.ID, extraction *core.Extraction) error {
	row := &extractionRow{
		MemoryID:       uint64(memoryID),
		ExtractionType: string(extraction.ExtractionType),
		Content:        extraction.Content,
		Confidence:     extraction.Confidence,
		CreatedAt:      now(),
	}
	err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "memoryId"}, {Name: "extractionType"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "confidence", "createdAt"}),
	}).Create(row).Error
	if err != nil {
		return err
	}
	// The conflict path does not report the surviving row's ID everywhere.
	var stored extractionRow
	err = tx.Where(`"memoryId" = ? AND "extractionType" = ?`, row.MemoryID, row.ExtractionType).First(&stored).Error
	if err != nil {
		return err
	}
	extraction.ID = core.ID(stored.ID)
	extraction.MemoryID = memoryID
	extraction.CreatedAt = stored.CreatedAt.UTC()
	return nil
}

// requireRow returns storage.ErrNotFound unless a row of T has id.
func requireRow[T any](tx *gorm.DB, id uint64) error {
	var model T
	found, err := exists(tx.Model(&model).Where("id = ?", id))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %T %d", storage.ErrNotFound, model, id)
	}
	return nil
}

// exists reports whether query matches at least one row.
func exists(query *gorm.DB) (bool, error) {
	var count int64
	if err := query.Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// isNotFound reports whether err is a missing-row error from either layer.
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, storage.ErrNotFound)
}
