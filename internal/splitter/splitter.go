// Package splitter turns documents into overlapping text chunks.
//
// Splitting is recursive: it first tries coarse separators (paragraph
// breaks), backing off to finer ones (lines, sentences, words, characters)
// only for pieces that still exceed the chunk size. Adjacent chunks share a
// trailing/leading overlap so context survives a chunk boundary.
package splitter

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 100
)

// DefaultSeparators is the backoff ladder: paragraph, line, sentence, word,
// character. The empty separator means a hard split on rune boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Options configures a RecursiveSplitter.
type Options struct {
	ChunkSize    int // maximum chunk length in runes (default: 512)
	ChunkOverlap int // maximum shared length between adjacent chunks (default: 100)
}

// RecursiveSplitter splits text on a prioritized separator list.
// Splitting is a pure function of (text, chunk size, overlap): identical
// inputs always produce identical chunk boundaries.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// New creates a RecursiveSplitter, applying defaults for zero values.
// chunkOverlap >= chunkSize is a caller configuration error.
func New(opts Options) (*RecursiveSplitter, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap == 0 && opts.ChunkSize > DefaultChunkOverlap {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.ChunkSize < 0 {
		return nil, errors.ConfigError("chunk_size must be positive", nil)
	}
	if opts.ChunkOverlap < 0 {
		return nil, errors.ConfigError("chunk_overlap must not be negative", nil)
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		return nil, errors.ConfigError("chunk_overlap must be smaller than chunk_size", nil).
			WithDetail("chunk_size", strconv.Itoa(opts.ChunkSize)).
			WithDetail("chunk_overlap", strconv.Itoa(opts.ChunkOverlap))
	}

	return &RecursiveSplitter{
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Split chunks a document. Every chunk inherits the document's metadata;
// the splitter adds no provenance fields of its own. Ids are not assigned
// here (see document.AssignIDs).
func (s *RecursiveSplitter) Split(doc *document.Document) []*document.Chunk {
	texts := s.SplitText(doc.Text)
	chunks := make([]*document.Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, &document.Chunk{
			Text:     t,
			Metadata: document.CloneMetadata(doc.Metadata),
		})
	}
	return chunks
}

// SplitText splits raw text into overlapping chunk texts.
// A text no longer than the chunk size comes back as a single chunk,
// byte-identical to the input.
func (s *RecursiveSplitter) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	fragments := s.fragment(text, s.separators)
	return s.merge(fragments)
}

// fragment recursively partitions text into pieces no longer than the chunk
// size. Separators stay attached to the piece they terminate, so
// concatenating all fragments reproduces the input exactly.
func (s *RecursiveSplitter) fragment(text string, separators []string) []string {
	if text == "" {
		return nil
	}

	// Pick the first separator that actually occurs in the text; the empty
	// separator (hard rune split) always matches.
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return hardSplit(text, s.chunkSize)
	}

	var fragments []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if utf8.RuneCountInString(piece) <= s.chunkSize {
			fragments = append(fragments, piece)
			continue
		}
		fragments = append(fragments, s.fragment(piece, rest)...)
	}
	return fragments
}

// merge greedily packs fragments into chunks of at most chunkSize runes,
// seeding each new chunk with the trailing fragments of the previous one up
// to chunkOverlap runes.
func (s *RecursiveSplitter) merge(fragments []string) []string {
	var chunks []string
	var window []string
	windowLen := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(window, ""))
	}

	for _, frag := range fragments {
		fragLen := utf8.RuneCountInString(frag)

		if windowLen+fragLen > s.chunkSize && windowLen > 0 {
			flush()

			// Seed the next chunk with whole trailing fragments that fit in
			// the overlap budget and still leave room for the new fragment.
			var tail []string
			tailLen := 0
			for i := len(window) - 1; i >= 0; i-- {
				l := utf8.RuneCountInString(window[i])
				if tailLen+l > s.chunkOverlap || tailLen+l+fragLen > s.chunkSize {
					break
				}
				tail = append([]string{window[i]}, tail...)
				tailLen += l
			}
			window = tail
			windowLen = tailLen
		}

		window = append(window, frag)
		windowLen += fragLen
	}

	flush()
	return chunks
}

// splitKeepSeparator splits text by sep, keeping sep attached to the end of
// each piece except possibly the last.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// hardSplit cuts text into size-rune pieces on rune boundaries.
func hardSplit(text string, size int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

