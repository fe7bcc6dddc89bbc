package model

// ValueKind discriminates the tagged union carried by a DataItem.
type ValueKind uint8

const (
	ValueKindString ValueKind = iota
	ValueKindDouble
	ValueKindBool
	ValueKindObject
	ValueKindBinary
)

func (k ValueKind) String() string {
	switch k {
	case ValueKindString:
		return "string"
	case ValueKindDouble:
		return "double"
	case ValueKindBool:
		return "bool"
	case ValueKindObject:
		return "object"
	case ValueKindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// NestedObject is the sub-structure carried by a DataItem whose value
// variant is ValueKindObject.
type NestedObject struct {
	Name       string
	Tags       []string
	Properties map[string]string
	CreatedAt  int64 // ms since epoch
	UpdatedAt  int64 // ms since epoch
}

// Value is the tagged union held by a DataItem. Exactly one field is
// meaningful at a time, selected by Kind.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	Obj    NestedObject
	Binary []byte
}

func StringValue(s string) Value  { return Value{Kind: ValueKindString, Str: s} }
func DoubleValue(f float64) Value { return Value{Kind: ValueKindDouble, Num: f} }
func BoolValue(b bool) Value      { return Value{Kind: ValueKindBool, Bool: b} }
func ObjectValue(o NestedObject) Value {
	return Value{Kind: ValueKindObject, Obj: o}
}
func BinaryValue(b []byte) Value { return Value{Kind: ValueKindBinary, Binary: b} }

// DataItem is the unit of storage and transport.
type DataItem struct {
	Key        int32
	SourceNode string
	Timestamp  int64 // ms since epoch at last write
	DataType   string
	Metadata   map[string]string
	Value      Value
}
