package shared

import "errors"

// Domain error kinds. All caller-facing failures wrap exactly one of
// these so transports can map them without string matching. Transient
// infrastructure failures wrap ErrUnavailable instead, letting callers
// tell "your request is invalid" apart from "try again later".
var (
	// ErrNotFound indicates the role, assignment or change request does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates a scope-ownership or 4-eyes violation, or a locked role.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest indicates invalid input such as an unknown permission slug.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict indicates an optimistic-version mismatch or duplicate binding.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates a transient infrastructure failure.
	ErrUnavailable = errors.New("service unavailable")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
