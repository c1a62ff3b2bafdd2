package ltp

import (
	"errors"
	"fmt"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

var (
	// ErrWrongContext is returned when a heap carries another client
	// signature than the context being opened.
	ErrWrongContext = errors.New("wrong context")
	// ErrMissingRequiredProperty is returned by Require.
	ErrMissingRequiredProperty = errors.New("missing required property")
	// ErrTypeMismatch is returned by the typed accessors.
	ErrTypeMismatch = errors.New("type mismatch")
)

// InvalidPropertySizeError reports a value whose stored width does not match
// its type.
type InvalidPropertySizeError struct {
	Type     PropType
	Expected int
	Actual   int
}

func (e *InvalidPropertySizeError) Error() string {
	return fmt.Sprintf("invalid property size for %s: expected %d, got %d", e.Type, e.Expected, e.Actual)
}

// Is makes the error match ndb.ErrStructural.
func (e *InvalidPropertySizeError) Is(target error) bool { return target == ndb.ErrStructural }

// UnsupportedTypeError reports a type tag this package does not decode.
type UnsupportedTypeError struct {
	Type PropType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported property type %s", e.Type)
}

// Is makes the error match ndb.ErrUnsupported.
func (e *UnsupportedTypeError) Is(target error) bool { return target == ndb.ErrUnsupported }

// PropertyError ties a decode failure to one property.
type PropertyError struct {
	ID  PropID
	Err error
}

func (e *PropertyError) Error() string { return fmt.Sprintf("property %s: %v", e.ID, e.Err) }

func (e *PropertyError) Unwrap() error { return e.Err }

// RowError ties a decode failure to one table row.
type RowError struct {
	RowID uint32
	Err   error
}

func (e *RowError) Error() string { return fmt.Sprintf("row 0x%x: %v", e.RowID, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ndb.ErrStructural, fmt.Sprintf(format, args...))
}
