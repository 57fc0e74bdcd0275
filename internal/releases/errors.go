package releases

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown releases, snapshots and files, and
	// metadata whose bytes are missing from disk.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthenticated is the single generic failure for every identity
	// check on the upload path. Unknown token and unknown/mismatched user
	// deliberately look identical to the caller.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden means the authenticated principal lacks the capability.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError is a 400-class failure carrying a human-readable detail
// naming the offending value. Digest mismatches are validation errors too:
// an integrity failure is never silently accepted.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}
