package engine

import (
	"fmt"

	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// Mode selects the reconciliation policy applied when writing chunks to a
// table. The four modes share one dispatch path so the table-missing
// override is applied uniformly.
type Mode string

const (
	// ModeInsert writes every chunk unconditionally. Duplicate ids may
	// accumulate; no uniqueness is enforced.
	ModeInsert Mode = "insert"

	// ModeDeinsert writes only chunks whose id is not already present.
	// Requires the table to exist.
	ModeDeinsert Mode = "deinsert"

	// ModeOverwrite clears the table, then writes every chunk.
	ModeOverwrite Mode = "overwrite"

	// ModeUpsert deletes rows matching the candidate ids, then writes every
	// chunk (replace-by-id). Requires the table to exist.
	ModeUpsert Mode = "upsert"
)

// ParseMode converts a mode string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeInsert, ModeDeinsert, ModeOverwrite, ModeUpsert:
		return Mode(s), nil
	default:
		return "", errors.New(errors.ErrCodeInvalidMode,
			fmt.Sprintf("invalid index mode %q (want insert, deinsert, overwrite, or upsert)", s), nil)
	}
}
