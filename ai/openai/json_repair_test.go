package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid json untouched", `{"tags": ["go", "rust"]}`, `{"tags": ["go", "rust"]}`},
		{"missing opening quote", `{tags": ["go"]}`, `{"tags": ["go"]}`},
		{"missing quote after comma", `{"a": 1, b": 2}`, `{"a": 1, "b": 2}`},
		{"trailing comma in array", `{"tags": ["go", "rust",]}`, `{"tags": ["go", "rust"]}`},
		{"trailing comma in object", "{\"tags\": [],\n}", "{\"tags\": []\n}"},
		{"string contents untouched", `{"tags": ["a, }", "b\" ,]"]}`, `{"tags": ["a, }", "b\" ,]"]}`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.input))
		})
	}
}

func TestParseTags(t *testing.T) {
	tags, err := parseTags("```json\n{tags\": [\"machine-learning\", \"go\",]}\n```")
	assert.NoError(t, err)
	assert.Equal(t, []string{"machine-learning", "go"}, tags)

	_, err = parseTags("tags: go, rust")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll\n\n[Truncated...]", truncate("héllo", 4))
	assert.Equal(t, "anything", truncate("anything", 0))
}
