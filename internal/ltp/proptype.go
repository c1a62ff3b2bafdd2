package ltp

import "fmt"

// PropID is the 16-bit property identifier.
type PropID uint16

func (id PropID) String() string { return fmt.Sprintf("0x%04x", uint16(id)) }

// PropType is the 16-bit property type tag.
type PropType uint16

const (
	PtypUnspecified          PropType = 0x0000
	PtypNull                 PropType = 0x0001
	PtypInteger16            PropType = 0x0002
	PtypInteger32            PropType = 0x0003
	PtypFloating32           PropType = 0x0004
	PtypFloating64           PropType = 0x0005
	PtypCurrency             PropType = 0x0006
	PtypFloatingTime         PropType = 0x0007
	PtypErrorCode            PropType = 0x000A
	PtypBoolean              PropType = 0x000B
	PtypObject               PropType = 0x000D
	PtypInteger64            PropType = 0x0014
	PtypString8              PropType = 0x001E
	PtypString               PropType = 0x001F
	PtypTime                 PropType = 0x0040
	PtypGuid                 PropType = 0x0048
	PtypServerID             PropType = 0x00FB
	PtypRestriction          PropType = 0x00FD
	PtypRuleAction           PropType = 0x00FE
	PtypBinary               PropType = 0x0102
	PtypMultipleInteger16    PropType = 0x1002
	PtypMultipleInteger32    PropType = 0x1003
	PtypMultipleFloating32   PropType = 0x1004
	PtypMultipleFloating64   PropType = 0x1005
	PtypMultipleCurrency     PropType = 0x1006
	PtypMultipleFloatingTime PropType = 0x1007
	PtypMultipleInteger64    PropType = 0x1014
	PtypMultipleString8      PropType = 0x101E
	PtypMultipleString       PropType = 0x101F
	PtypMultipleTime         PropType = 0x1040
	PtypMultipleGuid         PropType = 0x1048
	PtypMultipleBinary       PropType = 0x1102
)

const multipleFlag = 0x1000

var propTypeNames = map[PropType]string{
	PtypUnspecified:          "Unspecified",
	PtypNull:                 "Null",
	PtypInteger16:            "Integer16",
	PtypInteger32:            "Integer32",
	PtypFloating32:           "Floating32",
	PtypFloating64:           "Floating64",
	PtypCurrency:             "Currency",
	PtypFloatingTime:         "FloatingTime",
	PtypErrorCode:            "ErrorCode",
	PtypBoolean:              "Boolean",
	PtypObject:               "Object",
	PtypInteger64:            "Integer64",
	PtypString8:              "String8",
	PtypString:               "String",
	PtypTime:                 "Time",
	PtypGuid:                 "Guid",
	PtypServerID:             "ServerId",
	PtypRestriction:          "Restriction",
	PtypRuleAction:           "RuleAction",
	PtypBinary:               "Binary",
	PtypMultipleInteger16:    "MultipleInteger16",
	PtypMultipleInteger32:    "MultipleInteger32",
	PtypMultipleFloating32:   "MultipleFloating32",
	PtypMultipleFloating64:   "MultipleFloating64",
	PtypMultipleCurrency:     "MultipleCurrency",
	PtypMultipleFloatingTime: "MultipleFloatingTime",
	PtypMultipleInteger64:    "MultipleInteger64",
	PtypMultipleString8:      "MultipleString8",
	PtypMultipleString:       "MultipleString",
	PtypMultipleTime:         "MultipleTime",
	PtypMultipleGuid:         "MultipleGuid",
	PtypMultipleBinary:       "MultipleBinary",
}

func (t PropType) String() string {
	if name, ok := propTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ptyp(0x%04x)", uint16(t))
}

// Multiple reports whether t is a multi-valued type.
func (t PropType) Multiple() bool { return t&multipleFlag != 0 }

// Elem returns the single-valued type of a multi-valued t.
func (t PropType) Elem() PropType { return t &^ multipleFlag }

// FixedSize is the stored width of a fixed-size value, 0 for variable-size
// types.
func (t PropType) FixedSize() int {
	switch t {
	case PtypBoolean:
		return 1
	case PtypInteger16:
		return 2
	case PtypInteger32, PtypFloating32, PtypErrorCode:
		return 4
	case PtypFloating64, PtypCurrency, PtypFloatingTime, PtypInteger64, PtypTime:
		return 8
	case PtypGuid:
		return 16
	}
	return 0
}

// Supported reports whether values of type t can be decoded.
func (t PropType) Supported() bool {
	switch t {
	case PtypString, PtypString8, PtypBinary, PtypServerID, PtypObject,
		PtypMultipleString, PtypMultipleString8, PtypMultipleBinary:
		return true
	}
	if t.Multiple() {
		_, named := propTypeNames[t]
		return named && t.Elem().FixedSize() > 0
	}
	return t.FixedSize() > 0
}

// inline reports whether a value of type t lives directly in the 4-byte
// PC slot.
func (t PropType) inline() bool {
	switch t {
	case PtypBoolean, PtypInteger16, PtypInteger32, PtypFloating32, PtypErrorCode:
		return true
	}
	return false
}

// cellSize is the width of a table cell of type t: fixed-size values up to
// eight bytes are stored in the row, everything else as a 4-byte HNID.
func (t PropType) cellSize() int {
	if n := t.FixedSize(); n > 0 && n <= 8 {
		return n
	}
	return 4
}

// PropTag is a property id and type packed as id<<16 | type.
type PropTag uint32

// MakeTag packs id and t.
func MakeTag(id PropID, t PropType) PropTag { return PropTag(uint32(id)<<16 | uint32(t)) }

// ID returns the property id.
func (t PropTag) ID() PropID { return PropID(t >> 16) }

// Type returns the property type.
func (t PropTag) Type() PropType { return PropType(t) }

func (t PropTag) String() string { return fmt.Sprintf("0x%08x", uint32(t)) }
