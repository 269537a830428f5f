package core

import "testing"

func TestNormalizeTagName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo", "foo"},
		{"  foo ", "foo"},
		{"FOO", "foo"},
		{"", ""},
		{"Machine Learning", "machine learning"},
	}
	for _, tt := range tests {
		if got := NormalizeTagName(tt.in); got != tt.want {
			t.Errorf("NormalizeTagName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryAccessors(t *testing.T) {
	m := &Memory{}
	if m.Text() != "" || m.TitleOrEmpty() != "" {
		t.Errorf("empty memory accessors should return empty strings")
	}
	m.ExtractedText = Ptr("body")
	m.Title = Ptr("title")
	if m.Text() != "body" || m.TitleOrEmpty() != "title" {
		t.Errorf("accessors returned %q / %q", m.Text(), m.TitleOrEmpty())
	}
}

func TestEmbeddingModel(t *testing.T) {
	e := &Embedding{}
	if e.Model() != "" {
		t.Errorf("Model() = %q, want empty", e.Model())
	}
	e.ModelName = Ptr("nomic")
	if e.Model() != "nomic" {
		t.Errorf("Model() = %q, want nomic", e.Model())
	}
}
