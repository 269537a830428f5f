package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/memvault/core"
)

// Key prefixes for different data types
const (
	userPrefix         = "usr"
	userEmailPrefix    = "usreml"
	userIDSeq          = "usrseq"
	memoryPrefix       = "mem"
	memoryHashPrefix   = "memhash"
	memoryUserPrefix   = "memusr"
	memoryTimePrefix   = "memtime"
	memoryIDSeq        = "memseq"
	uploadPrefix       = "upl"
	uploadIDPrefix     = "uplid"
	uploadIDSeq        = "uplseq"
	extractionPrefix   = "ext"
	extractionIDSeq    = "extseq"
	embeddingPrefix    = "emb"
	embeddingIDSeq     = "embseq"
	tagPrefix          = "tag"
	tagNamePrefix      = "tagname"
	tagIDSeq           = "tagseq"
	memoryTagPrefix    = "memtag"
	tagMemoryPrefix    = "tagmem"
	spacePrefix        = "spc"
	spaceUserPrefix    = "spcusr"
	spaceIDSeq         = "spcseq"
	spaceMemoryPrefix  = "spcmem"
	memorySpacePrefix  = "memspc"
	modelNameSeparator = 0x00
)

// makeIDKey generates a primary key for an entity by ID.
// Format: prefix:id
func makeIDKey(prefix string, id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", prefix, id))
}

// makeStringKey generates a unique-index key.
// Format: prefix:value
func makeStringKey(prefix, value string) []byte {
	return []byte(prefix + ":" + value)
}

// makeCompositeKey generates a key from a prefix and BigEndian-encoded parts.
// Format: prefix:part1part2...
func makeCompositeKey(prefix string, parts ...uint64) []byte {
	buf := make([]byte, len(prefix)+1+8*len(parts))
	offset := copy(buf, prefix+":")
	// Write in BigEndian order so lexicographic sort works correctly
	for _, p := range parts {
		binary.BigEndian.PutUint64(buf[offset:], p)
		offset += 8
	}
	return buf
}

// lastID extracts the trailing BigEndian ID from a composite key.
func lastID(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeMemoryUserKey indexes a memory under its owner by creation time.
// Format: memusr:userID createdAt memoryID
func makeMemoryUserKey(m *core.Memory) []byte {
	return makeCompositeKey(memoryUserPrefix, uint64(m.UserID), uint64(m.CreatedAt.UnixMicro()), uint64(m.ID))
}

// makeMemoryTimeKey indexes every memory by creation time.
// Format: memtime:createdAt memoryID
func makeMemoryTimeKey(m *core.Memory) []byte {
	return makeCompositeKey(memoryTimePrefix, uint64(m.CreatedAt.UnixMicro()), uint64(m.ID))
}

// makeExtractionKey generates the key for the single extraction of a type.
// Format: ext:memoryID type
func makeExtractionKey(memoryID core.ID, t core.ExtractionType) []byte {
	return append(makeCompositeKey(extractionPrefix, uint64(memoryID)), t...)
}

// makeEmbeddingModelPrefix generates the prefix shared by one embedding generation.
// Format: emb:memoryID model 0x00
func makeEmbeddingModelPrefix(memoryID core.ID, model string) []byte {
	key := append(makeCompositeKey(embeddingPrefix, uint64(memoryID)), model...)
	return append(key, modelNameSeparator)
}

// makeEmbeddingKey generates the key of one chunk.
// Format: emb:memoryID model 0x00 chunkIndex
func makeEmbeddingKey(memoryID core.ID, model string, chunkIndex int) []byte {
	key := makeEmbeddingModelPrefix(memoryID, model)
	return binary.BigEndian.AppendUint32(key, uint32(chunkIndex))
}

// createdMicros converts a timestamp to the precision stored in index keys.
func createdMicros(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
