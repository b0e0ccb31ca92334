// Package document defines the transient data model flowing through the
// indexing pipeline: source documents and the chunks split from them.
package document

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// MetadataIDKey is the metadata field that carries a caller-supplied chunk id.
const MetadataIDKey = "id"

// Document is a parsed source text plus caller metadata.
// Documents are produced by an upstream parser and never mutated by the core.
type Document struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Chunk is a bounded-length slice of a document's text, the unit of
// indexing and retrieval. Chunks live for a single indexing call; once
// written, the store owns the records.
type Chunk struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// ContentID returns the content-derived identifier for text: the MD5 hex
// digest. MD5 is a dedup key here, not a security boundary; two chunks with
// identical text intentionally collide.
func ContentID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// AssignIDs fills in the id of every chunk that does not already have one.
// A caller-supplied metadata "id" wins verbatim; otherwise the id is the MD5
// of the chunk text. Assignment is idempotent: re-running never changes an
// already-assigned id.
func AssignIDs(chunks []*Chunk) []*Chunk {
	for _, c := range chunks {
		if c.ID != "" {
			continue
		}
		if v, ok := c.Metadata[MetadataIDKey]; ok {
			c.ID = fmt.Sprintf("%v", v)
			continue
		}
		c.ID = ContentID(c.Text)
	}
	return chunks
}

// CloneMetadata returns a shallow copy of m. Chunks split from one document
// share the document's metadata values but not the map itself, so later
// per-chunk additions (like a derived id) never leak across chunks.
func CloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
