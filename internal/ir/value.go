package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ValueKind int

const (
	// None is the zero Value: an absent operand.
	None ValueKind = iota
	TempValue
	VarValue
	GlobalValue
	IntConst
	FloatConst
	StringRef
	FuncRef
)

// Value is an IR operand. Exactly one interpretation applies, selected by Kind.
type Value struct {
	Kind ValueKind
	Type Type
	// Temporary number.
	ID int
	// Variable, global or function name; string pool label.
	Name  string
	Int   int64
	Float float64
}

// ValueKey identifies a storage location independently of its type annotation.
type ValueKey struct {
	Kind ValueKind
	ID   int
	Name string
}

func Temp(id int, t Type) Value {
	return Value{Kind: TempValue, Type: t, ID: id}
}

func Var(name string, t Type) Value {
	return Value{Kind: VarValue, Type: t, Name: name}
}

func GlobalRef(name string, t Type) Value {
	return Value{Kind: GlobalValue, Type: t, Name: name}
}

func ConstInt(v int64, t Type) Value {
	return Value{Kind: IntConst, Type: t, Int: v}
}

func ConstFloat(v float64) Value {
	return Value{Kind: FloatConst, Type: F64, Float: v}
}

// Str refers to the address of a pooled string literal.
func Str(label string) Value {
	return Value{Kind: StringRef, Type: Ptr, Name: label}
}

func Func(name string) Value {
	return Value{Kind: FuncRef, Type: Ptr, Name: name}
}

func (v Value) IsNone() bool {
	return v.Kind == None
}

func (v Value) IsConst() bool {
	return v.Kind == IntConst || v.Kind == FloatConst
}

func (v Value) IsTemp() bool {
	return v.Kind == TempValue
}

func (v Value) IsVar() bool {
	return v.Kind == VarValue
}

func (v Value) IsGlobal() bool {
	return v.Kind == GlobalValue
}

// IsLocation reports whether v names something that can be assigned to.
func (v Value) IsLocation() bool {
	return v.Kind == TempValue || v.Kind == VarValue || v.Kind == GlobalValue
}

// IsIntConst reports whether v is the integer constant n.
func (v Value) IsIntConst(n int64) bool {
	return v.Kind == IntConst && v.Int == n
}

func (v Value) Key() ValueKey {
	return ValueKey{Kind: v.Kind, ID: v.ID, Name: v.Name}
}

// SameAs compares two operands including constant payloads; float constants compare bitwise.
func (v Value) SameAs(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case IntConst:
		return v.Int == o.Int && v.Type == o.Type
	case FloatConst:
		return math.Float64bits(v.Float) == math.Float64bits(o.Float)
	}
	return v.Key() == o.Key()
}

func (v Value) String() string {
	switch v.Kind {
	case None:
		return "_"
	case TempValue:
		return fmt.Sprintf("t%d", v.ID)
	case VarValue:
		return v.Name
	case GlobalValue:
		return "@" + v.Name
	case IntConst:
		return strconv.FormatInt(v.Int, 10)
	case FloatConst:
		return formatFloat(v.Float)
	case StringRef:
		return "$" + v.Name
	case FuncRef:
		return "&" + v.Name
	}
	panic(fmt.Sprintf("invalid value: %#v", v))
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}

// Wrap truncates v to the width of t and sign-extends it back, the way the target stores integers.
func Wrap(v int64, t Type) int64 {
	switch t {
	case I8:
		return int64(int8(v))
	case I32:
		return int64(int32(v))
	}
	return v
}
