package aggregate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInputUnavailable reports a required document that could not be read.
	ErrInputUnavailable = errors.New("input unavailable")
	// ErrInputMalformed reports a document that exists but is not valid JSON.
	ErrInputMalformed = errors.New("input malformed")
	// ErrSchemaMismatch reports valid JSON that lacks an expected key.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// MissingKeyError names the exact segment of the aggregate key path that is
// absent, and the document it is absent from.
type MissingKeyError struct {
	Document string
	Segment  string
	Path     []string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s report: missing key %q (path %s)", e.Document, e.Segment, strings.Join(e.Path, "."))
}

func (e *MissingKeyError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

func missing(document string, path ...string) *MissingKeyError {
	return &MissingKeyError{
		Document: document,
		Segment:  path[len(path)-1],
		Path:     path,
	}
}
