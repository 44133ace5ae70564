package asm

type Program struct {
	Functions       []Function
	StringLiterals  []StringLiteral
	FloatLiterals   []FloatLiteral
	GlobalVariables []GlobalVariable
}

type Function struct {
	Name string
	// Exported functions get a global symbol.
	Global bool
	Lines  []Line
}

type Line struct {
	Comment string
	Label   string
	Op      string
	Arity   int
	Arg1    Arg
	Arg2    Arg
}

type Arg struct {
	Reg    string
	Offset int
	Imm    *int64
	Label  string
	// Memory operand: Offset(Reg), or Label(Reg) for rip-relative addressing.
	Deref bool
}

func (a Arg) WithOffset(offset int) Arg {
	result := a
	result.Offset = offset
	return result
}

func (a Arg) AsDeref() Arg {
	result := a
	result.Deref = true
	return result
}

func (a Arg) IsReg() bool {
	return a.Reg != "" && !a.Deref && a.Label == ""
}

func (a Arg) Equal(b Arg) bool {
	if (a.Imm == nil) != (b.Imm == nil) || a.Imm != nil && *a.Imm != *b.Imm {
		return false
	}
	return a.Reg == b.Reg && a.Offset == b.Offset && a.Label == b.Label && a.Deref == b.Deref
}

type StringLiteral struct {
	Label string
	Text  string
}

// FloatLiteral holds the exact bit pattern of a double constant.
type FloatLiteral struct {
	Label string
	Bits  uint64
}

type GlobalVariable struct {
	Label string
	Size  int
	// Initial value; zero-filled when nil.
	Init *Data
}

// Data is either an integer of the variable's size or the address of a symbol.
type Data struct {
	Int int64
	Ref string
}

func Imm(value int64) Arg {
	return Arg{Imm: &value}
}

func DerefWithOffset(arg Arg, offset int) Arg {
	return arg.WithOffset(offset).AsDeref()
}

func Reg(reg string) Arg {
	return Arg{Reg: reg}
}

func Ref(label string) Arg {
	return Arg{Label: label}
}

// RipRef addresses label relative to the instruction pointer.
func RipRef(label string) Arg {
	return Arg{Label: label, Reg: "rip", Deref: true}
}

func Op0(op string) Line {
	return Line{Op: op}
}

func Op1(op string, arg Arg) Line {
	return Line{Op: op, Arity: 1, Arg1: arg}
}

func Op2(op string, arg1, arg2 Arg) Line {
	return Line{Op: op, Arity: 2, Arg1: arg1, Arg2: arg2}
}

func Comment(text string) Line {
	return Line{Comment: text}
}

func Label(text string) Line {
	return Line{Label: text}
}
