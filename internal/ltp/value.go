package ltp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

// Value is a decoded property value. The set of implementations is closed;
// switch on the concrete type or use the As* accessors.
type Value interface {
	Type() PropType
	isValue()
}

type (
	Int16        int16
	Int32        int32
	Float32      float32
	Float64      float64
	Currency     int64
	FloatingTime float64
	ErrorCode    uint32
	Bool         bool
	Int64        int64
	String       string
	String8      string
	Time         struct{ time.Time }
	GUID         uuid.UUID
	Binary       []byte
	ServerID     []byte

	MultiInt16        []int16
	MultiInt32        []int32
	MultiFloat32      []float32
	MultiFloat64      []float64
	MultiCurrency     []int64
	MultiFloatingTime []float64
	MultiInt64        []int64
	MultiString       []string
	MultiString8      []string
	MultiTime         []time.Time
	MultiGUID         []uuid.UUID
	MultiBinary       [][]byte
)

// ObjectRef points at the subnode holding an embedded object. Size is zero
// when read from a table cell.
type ObjectRef struct {
	NID  ndb.NID
	Size uint32
}

func (Int16) Type() PropType             { return PtypInteger16 }
func (Int32) Type() PropType             { return PtypInteger32 }
func (Float32) Type() PropType           { return PtypFloating32 }
func (Float64) Type() PropType           { return PtypFloating64 }
func (Currency) Type() PropType          { return PtypCurrency }
func (FloatingTime) Type() PropType      { return PtypFloatingTime }
func (ErrorCode) Type() PropType         { return PtypErrorCode }
func (Bool) Type() PropType              { return PtypBoolean }
func (Int64) Type() PropType             { return PtypInteger64 }
func (String) Type() PropType            { return PtypString }
func (String8) Type() PropType           { return PtypString8 }
func (Time) Type() PropType              { return PtypTime }
func (GUID) Type() PropType              { return PtypGuid }
func (Binary) Type() PropType            { return PtypBinary }
func (ServerID) Type() PropType          { return PtypServerID }
func (ObjectRef) Type() PropType         { return PtypObject }
func (MultiInt16) Type() PropType        { return PtypMultipleInteger16 }
func (MultiInt32) Type() PropType        { return PtypMultipleInteger32 }
func (MultiFloat32) Type() PropType      { return PtypMultipleFloating32 }
func (MultiFloat64) Type() PropType      { return PtypMultipleFloating64 }
func (MultiCurrency) Type() PropType     { return PtypMultipleCurrency }
func (MultiFloatingTime) Type() PropType { return PtypMultipleFloatingTime }
func (MultiInt64) Type() PropType        { return PtypMultipleInteger64 }
func (MultiString) Type() PropType       { return PtypMultipleString }
func (MultiString8) Type() PropType      { return PtypMultipleString8 }
func (MultiTime) Type() PropType         { return PtypMultipleTime }
func (MultiGUID) Type() PropType         { return PtypMultipleGuid }
func (MultiBinary) Type() PropType       { return PtypMultipleBinary }

func (Int16) isValue()             {}
func (Int32) isValue()             {}
func (Float32) isValue()           {}
func (Float64) isValue()           {}
func (Currency) isValue()          {}
func (FloatingTime) isValue()      {}
func (ErrorCode) isValue()         {}
func (Bool) isValue()              {}
func (Int64) isValue()             {}
func (String) isValue()            {}
func (String8) isValue()           {}
func (Time) isValue()              {}
func (GUID) isValue()              {}
func (Binary) isValue()            {}
func (ServerID) isValue()          {}
func (ObjectRef) isValue()         {}
func (MultiInt16) isValue()        {}
func (MultiInt32) isValue()        {}
func (MultiFloat32) isValue()      {}
func (MultiFloat64) isValue()      {}
func (MultiCurrency) isValue()     {}
func (MultiFloatingTime) isValue() {}
func (MultiInt64) isValue()        {}
func (MultiString) isValue()       {}
func (MultiString8) isValue()      {}
func (MultiTime) isValue()         {}
func (MultiGUID) isValue()         {}
func (MultiBinary) isValue()       {}

func mismatch(want string, v Value) error {
	if v == nil {
		return fmt.Errorf("%w: want %s, have no value", ErrTypeMismatch, want)
	}
	return fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, want, v.Type())
}

// AsString returns a String or String8 value.
func AsString(v Value) (string, error) {
	switch x := v.(type) {
	case String:
		return string(x), nil
	case String8:
		return string(x), nil
	}
	return "", mismatch("string", v)
}

// AsStrings returns a MultiString or MultiString8 value.
func AsStrings(v Value) ([]string, error) {
	switch x := v.(type) {
	case MultiString:
		return x, nil
	case MultiString8:
		return x, nil
	}
	return nil, mismatch("strings", v)
}

// AsInt32 returns an Int16 or Int32 value.
func AsInt32(v Value) (int32, error) {
	switch x := v.(type) {
	case Int16:
		return int32(x), nil
	case Int32:
		return int32(x), nil
	}
	return 0, mismatch("int32", v)
}

// AsInt64 returns any integer value widened to 64 bits.
func AsInt64(v Value) (int64, error) {
	switch x := v.(type) {
	case Int16:
		return int64(x), nil
	case Int32:
		return int64(x), nil
	case Int64:
		return int64(x), nil
	case Currency:
		return int64(x), nil
	}
	return 0, mismatch("int64", v)
}

// AsFloat64 returns a floating point value widened to 64 bits.
func AsFloat64(v Value) (float64, error) {
	switch x := v.(type) {
	case Float32:
		return float64(x), nil
	case Float64:
		return float64(x), nil
	case FloatingTime:
		return float64(x), nil
	}
	return 0, mismatch("float64", v)
}

// AsBool returns a Bool value.
func AsBool(v Value) (bool, error) {
	if x, ok := v.(Bool); ok {
		return bool(x), nil
	}
	return false, mismatch("bool", v)
}

// AsTime returns a Time value.
func AsTime(v Value) (time.Time, error) {
	if x, ok := v.(Time); ok {
		return x.Time, nil
	}
	return time.Time{}, mismatch("time", v)
}

// AsBinary returns a Binary or ServerID value.
func AsBinary(v Value) ([]byte, error) {
	switch x := v.(type) {
	case Binary:
		return x, nil
	case ServerID:
		return x, nil
	}
	return nil, mismatch("binary", v)
}

// AsGUID returns a GUID value.
func AsGUID(v Value) (uuid.UUID, error) {
	if x, ok := v.(GUID); ok {
		return uuid.UUID(x), nil
	}
	return uuid.Nil, mismatch("guid", v)
}

// AsObject returns an ObjectRef value.
func AsObject(v Value) (ObjectRef, error) {
	if x, ok := v.(ObjectRef); ok {
		return x, nil
	}
	return ObjectRef{}, mismatch("object", v)
}
