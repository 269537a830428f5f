// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/memvault/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, IDMUS.Size(id))
	IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, n, err := IDMUS.Unmarshal(data)
	if err != nil {
		return 0, musError(err)
	}
	if n != len(data) {
		return 0, fmt.Errorf("%w: %d trailing bytes after id", ErrSerializationFailed, len(data)-n)
	}
	return id, nil
}

// EncodeVector packs a vector as little-endian float32 bytes.
// The vector length is len(bytes)/4.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*raw.Float32.Size(0))
	n := 0
	for _, v := range vector {
		n += raw.Float32.Marshal(v, buf[n:])
	}
	return buf
}

// DecodeVector unpacks bytes written by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	width := raw.Float32.Size(0)
	if len(data)%width != 0 {
		return nil, fmt.Errorf("%w: vector byte length %d is not a multiple of %d", ErrTruncatedData, len(data), width)
	}
	vector := make([]float32, len(data)/width)
	for i := range vector {
		v, _, err := raw.Float32.Unmarshal(data[i*width:])
		if err != nil {
			return nil, musError(err)
		}
		vector[i] = v
	}
	return vector, nil
}

// Marshal serializes a record to bytes.
func Marshal[T any](record *T) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// Unmarshal deserializes a record from bytes.
func Unmarshal[T any](data []byte) (*T, error) {
	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalEmbedding serializes an Embedding.
func MarshalEmbedding(embedding *core.Embedding) ([]byte, error) {
	if embedding == nil {
		return nil, fmt.Errorf("%w: nil embedding", ErrSerializationFailed)
	}
	buf := make([]byte, EmbeddingMUS.Size(*embedding))
	EmbeddingMUS.Marshal(*embedding, buf)
	return buf, nil
}

// UnmarshalEmbedding deserializes an Embedding.
func UnmarshalEmbedding(data []byte) (*core.Embedding, error) {
	embedding, _, err := EmbeddingMUS.Unmarshal(data)
	if err != nil {
		return nil, musError(err)
	}
	return &embedding, nil
}

func musError(err error) error {
	if errors.Is(err, mus.ErrTooSmallByteSlice) {
		return fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
	return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
}

var (
	// IDMUS is a MUS serializer for core.ID.
	IDMUS = idMUS{}

	// EmbeddingMUS is a MUS serializer for core.Embedding. Vectors are
	// length-prefixed runs of raw float32 values.
	EmbeddingMUS = embeddingMUS{}

	vectorMUS    = ord.NewSliceSer[float32](raw.Float32)
	modelNameMUS = ord.NewPtrSer[string](ord.String)
)

type idMUS struct{}

func (s idMUS) Marshal(v core.ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v core.ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return core.ID(u), n, err
}

func (s idMUS) Size(v core.ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

type embeddingMUS struct{}

func (s embeddingMUS) Marshal(v core.Embedding, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += IDMUS.Marshal(v.MemoryID, bs[n:])
	n += varint.PositiveInt.Marshal(v.ChunkIndex, bs[n:])
	n += ord.String.Marshal(v.ChunkText, bs[n:])
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	n += modelNameMUS.Marshal(v.ModelName, bs[n:])
	return n + raw.TimeUnixMicroUTC.Marshal(v.CreatedAt, bs[n:])
}

func (s embeddingMUS) Unmarshal(bs []byte) (v core.Embedding, n int, err error) {
	var n1 int
	if v.ID, n1, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	n += n1
	if v.MemoryID, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.ChunkIndex, n1, err = varint.PositiveInt.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.ChunkText, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Vector, n1, err = vectorMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.ModelName, n1, err = modelNameMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	v.CreatedAt, n1, err = raw.TimeUnixMicroUTC.Unmarshal(bs[n:])
	n += n1
	return
}

func (s embeddingMUS) Size(v core.Embedding) (size int) {
	size = IDMUS.Size(v.ID)
	size += IDMUS.Size(v.MemoryID)
	size += varint.PositiveInt.Size(v.ChunkIndex)
	size += ord.String.Size(v.ChunkText)
	size += vectorMUS.Size(v.Vector)
	size += modelNameMUS.Size(v.ModelName)
	return size + raw.TimeUnixMicroUTC.Size(v.CreatedAt)
}

func (s embeddingMUS) Skip(bs []byte) (n int, err error) {
	skips := []func([]byte) (int, error){
		IDMUS.Skip,
		IDMUS.Skip,
		varint.PositiveInt.Skip,
		ord.String.Skip,
		vectorMUS.Skip,
		modelNameMUS.Skip,
		raw.TimeUnixMicroUTC.Skip,
	}
	for _, skip := range skips {
		n1, skipErr := skip(bs[n:])
		n += n1
		if skipErr != nil {
			return n, skipErr
		}
	}
	return n, nil
}
