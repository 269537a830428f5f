package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/storage"
)

// Store implements storage.Store on BadgerDB.
type Store struct {
	backend     *Backend
	seqs        []*badger.Sequence
	users       *UserRepository
	memories    *MemoryRepository
	uploads     *UploadRepository
	extractions *ExtractionRepository
	embeddings  *EmbeddingRepository
	tags        *TagRepository
	spaces      *SpaceRepository
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates a BadgerDB store at path.
func Open(path string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

// NewStore creates the repositories on an open backend. Closing the store
// closes the backend.
func NewStore(backend *Backend) (*Store, error) {
	s := &Store{backend: backend}

	names := []string{userIDSeq, memoryIDSeq, uploadIDSeq, extractionIDSeq, embeddingIDSeq, tagIDSeq, spaceIDSeq}
	got := make(map[string]*badger.Sequence, len(names))
	for _, name := range names {
		sq, err := backend.GetSequence(name)
		if err != nil {
			s.releaseSequences()
			return nil, fmt.Errorf("allocating sequence %s: %w", name, err)
		}
		s.seqs = append(s.seqs, sq)
		got[name] = sq
	}

	ids := &sequences{
		users:       got[userIDSeq],
		memories:    got[memoryIDSeq],
		uploads:     got[uploadIDSeq],
		extractions: got[extractionIDSeq],
		embeddings:  got[embeddingIDSeq],
		tags:        got[tagIDSeq],
		spaces:      got[spaceIDSeq],
	}

	s.users = &UserRepository{backend: backend, ids: ids}
	s.memories = &MemoryRepository{backend: backend, ids: ids}
	s.uploads = &UploadRepository{backend: backend, ids: ids}
	s.extractions = &ExtractionRepository{backend: backend, ids: ids}
	s.embeddings = &EmbeddingRepository{backend: backend, ids: ids}
	s.tags = &TagRepository{backend: backend, ids: ids}
	s.spaces = &SpaceRepository{backend: backend, ids: ids}
	return s, nil
}

func (s *Store) Users() storage.UserRepository { return s.users }
func (s *Store) Memories() storage.MemoryRepository { return s.memories }
func (s *Store) Uploads() storage.UploadRepository { return s.uploads }
func (s *Store) Extractions() storage.ExtractionRepository { return s.extractions }
func (s *Store) Embeddings() storage.EmbeddingRepository { return s.embeddings }
func (s *Store) Tags() storage.TagRepository { return s.tags }
func (s *Store) Spaces() storage.SpaceRepository { return s.spaces }

// Backend exposes the underlying backend.
func (s *Store) Backend() *Backend {
	return s.backend
}

// Close releases the ID sequences and closes the database.
func (s *Store) Close() error {
	if s.backend.IsClosed() {
		return nil
	}
	seqErr := s.releaseSequences()
	return errors.Join(seqErr, s.backend.Close())
}

func (s *Store) releaseSequences() error {
	var errs []error
	for _, sq := range s.seqs {
		if err := sq.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	s.seqs = nil
	return errors.Join(errs...)
}

// sequences holds one ID sequence per entity.
type sequences struct {
	users       *badger.Sequence
	memories    *badger.Sequence
	uploads     *badger.Sequence
	extractions *badger.Sequence
	embeddings  *badger.Sequence
	tags        *badger.Sequence
	spaces      *badger.Sequence
}
