package core

import (
	"errors"
	"testing"
)

func TestValidateMemory(t *testing.T) {
	valid := func() *Memory {
		return &Memory{
			UserID:      1,
			Type:        MemoryTypeText,
			ContentHash: "abc",
			Status:      StatusProcessing,
		}
	}

	tests := []struct {
		name    string
		mutate  func(m *Memory) *Memory
		wantErr error
	}{
		{
			name:    "valid memory",
			mutate:  func(m *Memory) *Memory { return m },
			wantErr: nil,
		},
		{
			name:    "valid memory with ID 0 and no summary",
			mutate:  func(m *Memory) *Memory { m.ID = 0; m.Summary = nil; return m },
			wantErr: nil,
		},
		{
			name:    "nil memory",
			mutate:  func(m *Memory) *Memory { return nil },
			wantErr: ErrInvalidMemory,
		},
		{
			name:    "missing owner",
			mutate:  func(m *Memory) *Memory { m.UserID = 0; return m },
			wantErr: ErrMissingOwner,
		},
		{
			name:    "missing hash",
			mutate:  func(m *Memory) *Memory { m.ContentHash = ""; return m },
			wantErr: ErrEmptyContentHash,
		},
		{
			name:    "unknown type",
			mutate:  func(m *Memory) *Memory { m.Type = "podcast"; return m },
			wantErr: ErrInvalidMemoryType,
		},
		{
			name:    "unknown status",
			mutate:  func(m *Memory) *Memory { m.Status = "queued"; return m },
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMemory(tt.mutate(valid()))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMemory() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMemory() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateMemory() error = %v, want it to wrap ErrValidation", err)
			}
		})
	}
}

func TestValidateUser(t *testing.T) {
	tests := []struct {
		name    string
		user    *User
		wantErr error
	}{
		{"valid", &User{Email: "ada@example.com"}, nil},
		{"nil", nil, ErrInvalidUser},
		{"blank email", &User{Email: "   "}, ErrEmptyEmail},
		{"malformed email", &User{Email: "not-an-address"}, ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUser(tt.user)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateUser() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUser() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		upload  *Upload
		wantErr error
	}{
		{"valid", &Upload{FileURL: "/files/a.pdf", FileType: FileTypePDF, FileSize: 10}, nil},
		{"empty url", &Upload{FileType: FileTypePDF}, ErrEmptyFileURL},
		{"bad type", &Upload{FileURL: "/files/a", FileType: "zip"}, ErrInvalidFileType},
		{"negative size", &Upload{FileURL: "/files/a", FileType: FileTypeText, FileSize: -1}, ErrNegativeFileSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.upload)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateUpload() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUpload() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateExtraction(t *testing.T) {
	tooHigh := 1.5
	ok := 0.8

	tests := []struct {
		name       string
		extraction *Extraction
		wantErr    error
	}{
		{"valid", &Extraction{ExtractionType: ExtractionSummary, Confidence: &ok}, nil},
		{"no confidence", &Extraction{ExtractionType: ExtractionTags}, nil},
		{"bad type", &Extraction{ExtractionType: "ocr"}, ErrInvalidExtractionType},
		{"confidence out of range", &Extraction{ExtractionType: ExtractionSummary, Confidence: &tooHigh}, ErrInvalidConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExtraction(tt.extraction)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateExtraction() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateExtraction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSpace(t *testing.T) {
	long := make([]rune, MaxSpaceNameLength+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		space   *Space
		wantErr error
	}{
		{"valid", &Space{UserID: 1, Name: "Reading"}, nil},
		{"no owner", &Space{Name: "Reading"}, ErrMissingOwner},
		{"blank name", &Space{UserID: 1, Name: "  "}, ErrEmptySpaceName},
		{"long name", &Space{UserID: 1, Name: string(long)}, ErrSpaceNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpace(tt.space)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSpace() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSpace() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmbedding(t *testing.T) {
	if err := ValidateEmbedding(&Embedding{Vector: []float32{1}}); err != nil {
		t.Errorf("ValidateEmbedding() unexpected error = %v", err)
	}
	if err := ValidateEmbedding(&Embedding{}); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("ValidateEmbedding() error = %v, want %v", err, ErrEmptyVector)
	}
	if err := ValidateEmbedding(&Embedding{Vector: []float32{1}, ChunkIndex: -1}); !errors.Is(err, ErrNegativeChunkIndex) {
		t.Errorf("ValidateEmbedding() error = %v, want %v", err, ErrNegativeChunkIndex)
	}
}

func TestParseEnums(t *testing.T) {
	if s, err := ParseStatus("ready"); err != nil || s != StatusReady {
		t.Errorf("ParseStatus(ready) = %q, %v", s, err)
	}
	if _, err := ParseStatus("READY"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseStatus(READY) error = %v, want %v", err, ErrInvalidStatus)
	}
	if ty, err := ParseMemoryType("url"); err != nil || ty != MemoryTypeURL {
		t.Errorf("ParseMemoryType(url) = %q, %v", ty, err)
	}
	if ty, err := ParseExtractionType("error"); err != nil || ty != ExtractionError {
		t.Errorf("ParseExtractionType(error) = %q, %v", ty, err)
	}
	if _, err := ParseFileType("exe"); !errors.Is(err, ErrInvalidFileType) {
		t.Errorf("ParseFileType(exe) error = %v, want %v", err, ErrInvalidFileType)
	}
}
