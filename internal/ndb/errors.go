package ndb

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHeader is fatal: the container cannot be opened.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrStructural reports a violated on-disk invariant: bad signature,
	// bad depth marker, out of range index and so on.
	ErrStructural = errors.New("structural error")
	// ErrNotFound is returned where a lookup miss has to travel as an error.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported reports a recognised pattern this reader does not decode.
	ErrUnsupported = errors.New("unsupported")
	// ErrMalformedIdentifier is returned when an identifier is decoded for an
	// unknown format variant.
	ErrMalformedIdentifier = errors.New("malformed identifier")
)

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

func headerf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHeader, fmt.Sprintf(format, args...))
}
