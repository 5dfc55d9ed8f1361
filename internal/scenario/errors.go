package scenario

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when there are no recorded calls to synthesize from.
var ErrEmptyInput = errors.New("no recorded calls")

type MalformedURLError struct {
	Index int
	URL   string
	Err   error
}

func (e *MalformedURLError) Error() string {
	return fmt.Sprintf("call %d: malformed url %q: %v", e.Index, e.URL, e.Err)
}

func (e *MalformedURLError) Unwrap() error {
	return e.Err
}

type InvalidJSONBodyError struct {
	Index int
	URL   string
	Err   error
}

func (e *InvalidJSONBodyError) Error() string {
	return fmt.Sprintf("call %d: POST %s: body is not a JSON object: %v", e.Index, e.URL, e.Err)
}

func (e *InvalidJSONBodyError) Unwrap() error {
	return e.Err
}
