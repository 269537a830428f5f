package storage

import (
	"math"
	"testing"
	"time"

	"github.com/poiesic/memvault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			assert.Len(t, data, IDMUS.Size(tt.id))

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestMarshalID_Varint(t *testing.T) {
	assert.Equal(t, []byte{42}, MarshalID(42))
	assert.Len(t, MarshalID(core.ID(18446744073709551615)), 10)
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{0x80, 0x80})
	assert.ErrorIs(t, err, ErrTruncatedData)

	_, err = UnmarshalID(nil)
	assert.ErrorIs(t, err, ErrTruncatedData)

	_, err = UnmarshalID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestEncodeVector(t *testing.T) {
	vector := []float32{0, 1, -1, 0.5, math.MaxFloat32}

	data := EncodeVector(vector)
	assert.Len(t, data, len(vector)*4)
	// little-endian IEEE754: 1.0 is 0x3f800000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, data[4:8])

	decoded, err := DecodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)
}

func TestDecodeVector_BadLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestDecodeVector_Empty(t *testing.T) {
	decoded, err := DecodeVector(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestMarshalEmbedding_PacksVector(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	embedding := &core.Embedding{
		ID:         7,
		MemoryID:   3,
		ChunkIndex: 2,
		ChunkText:  "chunk",
		Vector:     []float32{0.25, -0.75},
		ModelName:  core.Ptr("nomic-embed-text"),
		CreatedAt:  now,
	}

	data, err := MarshalEmbedding(embedding)
	require.NoError(t, err)

	decoded, err := UnmarshalEmbedding(data)
	require.NoError(t, err)
	assert.Equal(t, embedding.Vector, decoded.Vector)
	assert.Equal(t, "nomic-embed-text", decoded.Model())
	assert.True(t, now.Equal(decoded.CreatedAt))
	assert.Equal(t, core.ID(7), decoded.ID)
	assert.Equal(t, core.ID(3), decoded.MemoryID)
	assert.Equal(t, 2, decoded.ChunkIndex)
	assert.Equal(t, "chunk", decoded.ChunkText)

	n, err := EmbeddingMUS.Skip(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
}

func TestMarshalEmbedding_NilModel(t *testing.T) {
	embedding := &core.Embedding{ID: 1, MemoryID: 1, Vector: []float32{1}, CreatedAt: time.Unix(0, 0).UTC()}

	data, err := MarshalEmbedding(embedding)
	require.NoError(t, err)

	decoded, err := UnmarshalEmbedding(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.ModelName)
	assert.Equal(t, "", decoded.Model())
}

func TestUnmarshalEmbedding_Truncated(t *testing.T) {
	data, err := MarshalEmbedding(&core.Embedding{
		ID:        9,
		MemoryID:  4,
		ChunkText: "some chunk text",
		Vector:    []float32{0.1, 0.2, 0.3},
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = UnmarshalEmbedding(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := Unmarshal[core.Memory]([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
