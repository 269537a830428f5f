package embedding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Blank(t *testing.T) {
	assert.Empty(t, NewChunker().Split("   \n\n  "))
}

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	chunks := NewChunker().Split("  A single short note.  ")
	assert.Equal(t, []string{"A single short note."}, chunks)
}

func TestChunker_PacksParagraphs(t *testing.T) {
	c := &Chunker{ChunkSize: 60, Overlap: 10, MinChunk: 0}
	para := strings.Repeat("x", 25)
	chunks := c.Split(para + "\n\n" + para + "\n\n\n" + para)

	require.Len(t, chunks, 2)
	assert.Equal(t, para+"\n\n"+para, chunks[0])
	// overlap carries the tail of the previous chunk
	assert.Equal(t, strings.Repeat("x", 10)+"\n\n"+para, chunks[1])
}

func TestChunker_SplitsLongParagraphOnSentences(t *testing.T) {
	c := &Chunker{ChunkSize: 40, Overlap: 5, MinChunk: 0}
	text := "The first sentence is here. The second sentence follows! Is this the third? yes it is."

	chunks := c.Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, "The first sentence is here.", chunks[0])
	assert.Equal(t, "here. The second sentence follows!", chunks[1])
	assert.Equal(t, "lows! Is this the third? yes it is.", chunks[2])
}

func TestChunker_MergesSmallChunks(t *testing.T) {
	c := &Chunker{ChunkSize: 30, Overlap: 0, MinChunk: 10}
	chunks := c.Split("tiny\n\n" + strings.Repeat("y", 25) + "\n\n" + strings.Repeat("z", 28))

	require.Len(t, chunks, 2)
	assert.Equal(t, "tiny "+strings.Repeat("y", 25), chunks[0])
	assert.Equal(t, strings.Repeat("z", 28), chunks[1])
}

func TestChunker_SkipsMergeThatWouldOverflow(t *testing.T) {
	c := &Chunker{ChunkSize: 30, Overlap: 0, MinChunk: 10}
	chunks := c.Split("tiny\n\n" + strings.Repeat("y", 28))

	assert.Equal(t, []string{"tiny", strings.Repeat("y", 28)}, chunks)
}

func TestChunker_NeverExceedsChunkSize(t *testing.T) {
	tests := []struct {
		name    string
		chunker *Chunker
		text    string
	}{
		{"unpunctuated run", NewChunker(), strings.Repeat("lorem ipsum dolor sit amet ", 2000)},
		{"single huge word", NewChunker(), strings.Repeat("x", 3000)},
		{"csv lines", NewChunker(), strings.Repeat("2025-01-01,42,ok,", 500)},
		{"long sentences with overlap", &Chunker{ChunkSize: 50, Overlap: 40, MinChunk: 10},
			strings.Repeat("This sentence is deliberately far longer than fifty characters in total. ", 20)},
		{"paragraphs near the limit", &Chunker{ChunkSize: 40, Overlap: 30, MinChunk: 5},
			strings.Repeat(strings.Repeat("p", 38)+"\n\n", 10)},
		{"multibyte", &Chunker{ChunkSize: 20, Overlap: 5, MinChunk: 0}, strings.Repeat("héllo wörld ", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := tt.chunker.Split(tt.text)
			require.NotEmpty(t, chunks)
			for i, chunk := range chunks {
				assert.LessOrEqual(t, runeLen(chunk), tt.chunker.ChunkSize, "chunk %d", i)
				assert.NotEmpty(t, chunk)
			}
		})
	}
}

func TestChunker_LongRunKeepsAllWords(t *testing.T) {
	c := &Chunker{ChunkSize: 30, Overlap: 0, MinChunk: 0}
	text := strings.Repeat("alpha beta gamma delta ", 10)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestChunker_WindowCutsLongWords(t *testing.T) {
	c := &Chunker{ChunkSize: 4}
	assert.Equal(t, []string{"abcd", "efgh", "ij", "kl"}, c.window("abcdefghij kl"))
}

func TestChunker_Deterministic(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma. Delta epsilon zeta! ", 60) + "\n\n" + strings.Repeat("word ", 200)
	c := NewChunker()
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestSentences(t *testing.T) {
	assert.Equal(t,
		[]string{"Dr.", "Smith went home.", "He slept. version 1.2 is out"},
		sentences("Dr. Smith went home. He slept. version 1.2 is out"),
	)
	assert.Equal(t, []string{"no boundary. lowercase next"}, sentences("no boundary. lowercase next"))
}

func TestTailAndClip(t *testing.T) {
	assert.Equal(t, "llo", tail("hello", 3))
	assert.Equal(t, "hi", tail("hi", 5))
	assert.Equal(t, "", tail("hi", 0))
	assert.Equal(t, "hé", clip("héllo", 2))
}
