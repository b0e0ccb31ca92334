package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/continue-ai-company/aa-rag/internal/engine"
)

func TestResults_Plain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithStyles(&buf, PlainStyles())

	r.Results([]engine.Result{
		{Text: "apple pie recipe", Metadata: map[string]any{"source": "recipes.txt", "id": "1"}},
		{Text: "banana bread recipe", Metadata: nil},
	})

	out := buf.String()
	assert.Contains(t, out, "--- result 1 ---")
	assert.Contains(t, out, "apple pie recipe")
	// Metadata keys come out sorted.
	assert.Contains(t, out, "id=1 source=recipes.txt")
	assert.Contains(t, out, "--- result 2 ---")
}

func TestResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithStyles(&buf, PlainStyles())

	r.Results(nil)

	assert.Contains(t, buf.String(), "no results")
}

func TestIndexed(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithStyles(&buf, PlainStyles())

	r.Indexed("kb_hybrid_static_common", []string{"abc", "def"})

	out := buf.String()
	assert.Contains(t, out, "wrote 2 chunk(s) to kb_hybrid_static_common")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "def")
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Errorf("boom: %d", 42)
	assert.Equal(t, "boom: 42\n", buf.String())
}
