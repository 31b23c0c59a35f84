package feed

import (
	"errors"
	"fmt"
)

// ErrEmptyComment reports the no-op outcome of adding a whitespace-only
// comment. No write was performed; it is a rejection, not a failure.
var ErrEmptyComment = errors.New("comment text is empty")

// ParseError describes a single malformed remote document. Malformed
// documents are skipped during reconciliation and logged; they never abort
// the rest of the snapshot.
type ParseError struct {
	DocID  string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("document %s: field %q %s", e.DocID, e.Field, e.Reason)
}
