package ast

import (
	"fmt"
	"strings"

	"tlog.app/go/errors"
)

// Type is a resolved source-level type attached to every expression.
type Type interface {
	fmt.Stringer
	isType()
	// Equals returns true if this type is equal to the other type
	Equals(other Type) bool
}

// BaseType represents primitive types like int, double, bool
type BaseType struct {
	Name string
}

func (b *BaseType) isType() {}

func (b *BaseType) String() string {
	return b.Name
}

func (b *BaseType) Equals(other Type) bool {
	if otherBase, ok := other.(*BaseType); ok {
		return b.Name == otherBase.Name
	}
	return false
}

// PointerType represents a pointer to another type
type PointerType struct {
	ElementType Type
}

func (p *PointerType) isType() {}

func (p *PointerType) String() string {
	return "*" + p.ElementType.String()
}

func (p *PointerType) Equals(other Type) bool {
	if otherPtr, ok := other.(*PointerType); ok {
		return p.ElementType.Equals(otherPtr.ElementType)
	}
	return false
}

func IsPointerType(typ Type) bool {
	if typ == String {
		return true
	}
	_, ok := typ.(*PointerType)
	return ok
}

// Common base types - singleton instances
var (
	Int    = &BaseType{Name: "int"}
	Long   = &BaseType{Name: "long"}
	Char   = &BaseType{Name: "char"}
	Bool   = &BaseType{Name: "bool"}
	Double = &BaseType{Name: "double"}
	Void   = &BaseType{Name: "void"}
	// String is the type of string literals, a pointer to char.
	String = &BaseType{Name: "string"}
)

func IsIntegerType(typ Type) bool {
	return typ == Int || typ == Long || typ == Char || typ == Bool
}

func IsFloatType(typ Type) bool {
	return typ == Double
}

// ElementType returns what a pointer-like type points to.
func ElementType(typ Type) (Type, bool) {
	if typ == String {
		return Char, true
	}
	if ptr, ok := typ.(*PointerType); ok {
		return ptr.ElementType, true
	}
	return nil, false
}

// SizeOf returns the storage size of a value of the type in bytes.
func SizeOf(typ Type) int {
	switch typ {
	case Char, Bool:
		return 1
	case Int:
		return 4
	case Long, Double, String:
		return 8
	case Void:
		return 0
	}
	if IsPointerType(typ) {
		return 8
	}
	return 0
}

// ParseType converts a type name such as "int", "*char" or "**long" into a Type.
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "*") {
		elem, err := ParseType(name[1:])
		if err != nil {
			return nil, err
		}
		return NewPointerType(elem), nil
	}
	switch name {
	case "int":
		return Int, nil
	case "long":
		return Long, nil
	case "char":
		return Char, nil
	case "bool":
		return Bool, nil
	case "double":
		return Double, nil
	case "void", "":
		return Void, nil
	case "string":
		return String, nil
	}
	return nil, errors.New("unknown type %q", name)
}

func NewPointerType(elementType Type) *PointerType {
	return &PointerType{ElementType: elementType}
}
