// Package parse turns external sources into documents the engine can index.
// Parsing sits outside the core pipeline: it only produces text plus flat
// metadata and never interprets metadata beyond setting provenance fields.
package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// MaxFileSize bounds how much of a file is accepted, to keep one oversized
// input from exhausting memory during chunking and embedding.
const MaxFileSize = 32 << 20 // 32 MiB

// textExtensions are the file types parsed as plain text.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".rst":      true,
	".csv":      true,
	".json":     true,
	".yaml":     true,
	".yml":      true,
	".xml":      true,
	".html":     true,
	".log":      true,
}

// Text wraps an already-loaded string as a document.
func Text(text string, metadata map[string]any) (*document.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.ValidationError("document text must not be empty", nil)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &document.Document{Text: text, Metadata: metadata}, nil
}

// File reads a text file into a document. The file's base name lands in
// metadata under "source".
func File(path string) (*document.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("cannot read %s", path), err)
	}
	if info.IsDir() {
		return nil, errors.ValidationError(fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() > MaxFileSize {
		return nil, errors.ValidationError(
			fmt.Sprintf("%s exceeds the %d byte size limit", path, int64(MaxFileSize)), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" && !textExtensions[ext] {
		return nil, errors.ValidationError(
			fmt.Sprintf("unsupported file type %q (plain-text formats only)", ext), nil).
			WithDetail("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("read %s", path), err)
	}
	if !utf8.Valid(data) {
		return nil, errors.ValidationError(
			fmt.Sprintf("%s is not valid UTF-8 text", path), nil)
	}

	return Text(string(data), map[string]any{"source": filepath.Base(path)})
}
