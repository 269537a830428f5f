package embedding

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 512
	DefaultOverlap   = 100
	DefaultMinChunk  = 100

	// MaxChunkChars caps the chunk text stored next to a vector.
	MaxChunkChars = 5000
)

// ErrInvalidChunker is returned by Validate.
var ErrInvalidChunker = errors.New("invalid chunker settings")

var paragraphBreak = regexp.MustCompile(`\n\n+`)

// Chunker splits text into overlapping chunks along paragraph and sentence
// boundaries. Sizes are measured in characters and no chunk is longer than
// ChunkSize: sentences that do not fit are cut between words, and words that
// do not fit are cut into fixed windows.
type Chunker struct {
	ChunkSize int
	Overlap   int
	MinChunk  int
}

// NewChunker returns a chunker with the default sizes.
func NewChunker() *Chunker {
	return &Chunker{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
		MinChunk:  DefaultMinChunk,
	}
}

// Validate checks that the sizes describe a chunker that always advances.
func (c *Chunker) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidChunker)
	case c.Overlap < 0 || c.Overlap >= c.ChunkSize:
		return fmt.Errorf("%w: overlap must be within [0, chunk size)", ErrInvalidChunker)
	case c.MinChunk < 0 || c.MinChunk > c.ChunkSize:
		return fmt.Errorf("%w: min chunk must be within [0, chunk size]", ErrInvalidChunker)
	}
	return nil
}

// Split returns the chunks of text in order. Blank text yields no chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		chunks  []string
		current string
	)
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if runeLen(para) > c.ChunkSize {
			emit(current)
			current = ""
			chunks = append(chunks, c.splitSentences(para)...)
			continue
		}

		candidate := para
		if current != "" {
			candidate = current + "\n\n" + para
		}
		switch {
		case runeLen(candidate) <= c.ChunkSize:
			current = candidate
		case strings.TrimSpace(current) != "":
			emit(current)
			current = c.withOverlap(current, "\n\n", para)
		default:
			current = para
		}
	}
	emit(current)

	return c.mergeSmall(chunks)
}

func (c *Chunker) splitSentences(para string) []string {
	var (
		chunks  []string
		current string
	)
	for _, piece := range c.pieces(para) {
		candidate := piece
		if current != "" {
			candidate = current + " " + piece
		}
		switch {
		case runeLen(candidate) <= c.ChunkSize:
			current = candidate
		case current != "":
			chunks = append(chunks, strings.TrimSpace(current))
			current = c.withOverlap(current, " ", piece)
		default:
			current = piece
		}
	}
	if s := strings.TrimSpace(current); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// pieces returns the sentences of para, cutting any sentence longer than
// ChunkSize with window.
func (c *Chunker) pieces(para string) []string {
	var result []string
	for _, sentence := range sentences(para) {
		if runeLen(sentence) <= c.ChunkSize {
			result = append(result, sentence)
			continue
		}
		result = append(result, c.window(sentence)...)
	}
	return result
}

// window packs the words of s into pieces of at most ChunkSize characters.
// A word longer than ChunkSize is cut into ChunkSize-character runs.
func (c *Chunker) window(s string) []string {
	var (
		result  []string
		current string
	)
	flush := func() {
		if current != "" {
			result = append(result, current)
			current = ""
		}
	}
	for _, word := range strings.Fields(s) {
		for runeLen(word) > c.ChunkSize {
			flush()
			runes := []rune(word)
			result = append(result, string(runes[:c.ChunkSize]))
			word = string(runes[c.ChunkSize:])
		}
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if runeLen(candidate) > c.ChunkSize {
			flush()
			candidate = word
		}
		current = candidate
	}
	flush()
	return result
}

// mergeSmall joins each chunk shorter than MinChunk with the one after it
// when the result still fits in ChunkSize.
func (c *Chunker) mergeSmall(chunks []string) []string {
	merged := make([]string, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		if runeLen(chunks[i]) < c.MinChunk && i < len(chunks)-1 {
			if joined := chunks[i] + " " + chunks[i+1]; runeLen(joined) <= c.ChunkSize {
				merged = append(merged, joined)
				i++
				continue
			}
		}
		merged = append(merged, chunks[i])
	}
	return merged
}

// sentences splits after '.', '!' or '?' when the following whitespace run
// is followed by an uppercase letter.
func sentences(para string) []string {
	var (
		result []string
		start  int
	)
	runes := []rune(para)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j == len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			result = append(result, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		result = append(result, s)
	}
	return result
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// tail returns the last n characters of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// withOverlap starts a chunk with up to Overlap trailing characters of prev,
// fewer when next would otherwise push the chunk past ChunkSize.
func (c *Chunker) withOverlap(prev, sep, next string) string {
	n := min(c.Overlap, c.ChunkSize-runeLen(next)-runeLen(sep))
	if overlap := tail(prev, n); overlap != "" {
		return overlap + sep + next
	}
	return next
}

// clip returns the first n characters of s.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
