package ir

import (
	"fmt"
	"io"
	"strings"

	"github.com/iley/tacc/internal/ast"
)

/*
Intermediate representation for tacc. This sits between the typed tree and
machine code. The IR is a linear three-address code: every instruction has an
opcode, an optional result, up to three operands and an optional label.

Here are the supported operations:
  - Binary (ADD SUB MUL DIV MOD AND OR XOR SHL SHR EQ NE LT LE GT GE): result = arg1 op arg2.
  - Unary (NEG NOT LNOT): result = op arg1.
  - ASSIGN: result = arg1.
  - CAST: result = arg1 converted to the result's type.
  - LOAD: result = *arg1.
  - STORE: *arg1 = arg2.
  - ADDR: result = &arg1 where arg1 is a variable, a global or a function.
  - LABEL(label) defines a jump target, GOTO(label) jumps to it.
  - IF_FALSE(arg1, label) and IF_TRUE(arg1, label) jump when arg1 is zero / non-zero.
  - CALL(callee, args): optional result receives the return value.
  - RETURN(arg1?): leave the function.

Temporaries are numbered per function and written exactly once by the generator.
*/

type Opcode int

const (
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNeg
	OpNot
	OpLNot
	OpAssign
	OpCast
	OpLoad
	OpStore
	OpAddr
	OpLabel
	OpGoto
	OpIfFalse
	OpIfTrue
	OpCall
	OpReturn
)

type opKind int

const (
	kindBinary opKind = iota
	kindUnary
	kindStore
	kindLabel
	kindBranch
	kindCall
	kindReturn
)

type opInfo struct {
	name   string
	symbol string
	kind   opKind
}

var opcodes = [...]opInfo{
	OpAdd:     {"ADD", "+", kindBinary},
	OpSub:     {"SUB", "-", kindBinary},
	OpMul:     {"MUL", "*", kindBinary},
	OpDiv:     {"DIV", "/", kindBinary},
	OpMod:     {"MOD", "%", kindBinary},
	OpAnd:     {"AND", "&", kindBinary},
	OpOr:      {"OR", "|", kindBinary},
	OpXor:     {"XOR", "^", kindBinary},
	OpShl:     {"SHL", "<<", kindBinary},
	OpShr:     {"SHR", ">>", kindBinary},
	OpEq:      {"EQ", "==", kindBinary},
	OpNe:      {"NE", "!=", kindBinary},
	OpLt:      {"LT", "<", kindBinary},
	OpLe:      {"LE", "<=", kindBinary},
	OpGt:      {"GT", ">", kindBinary},
	OpGe:      {"GE", ">=", kindBinary},
	OpNeg:     {"NEG", "-", kindUnary},
	OpNot:     {"NOT", "~", kindUnary},
	OpLNot:    {"LNOT", "!", kindUnary},
	OpAssign:  {"ASSIGN", "", kindUnary},
	OpCast:    {"CAST", "", kindUnary},
	OpLoad:    {"LOAD", "*", kindUnary},
	OpStore:   {"STORE", "", kindStore},
	OpAddr:    {"ADDR", "&", kindUnary},
	OpLabel:   {"LABEL", "", kindLabel},
	OpGoto:    {"GOTO", "", kindLabel},
	OpIfFalse: {"IF_FALSE", "", kindBranch},
	OpIfTrue:  {"IF_TRUE", "", kindBranch},
	OpCall:    {"CALL", "", kindCall},
	OpReturn:  {"RETURN", "", kindReturn},
}

func (op Opcode) valid() bool {
	return op >= 0 && int(op) < len(opcodes)
}

func (op Opcode) String() string {
	if !op.valid() {
		return fmt.Sprintf("Opcode(%d)", int(op))
	}
	return opcodes[op].name
}

// Symbol returns the operator spelling used when printing, e.g. "+" for ADD.
func (op Opcode) Symbol() string {
	return opcodes[op].symbol
}

func (op Opcode) IsBinary() bool {
	return op.valid() && opcodes[op].kind == kindBinary
}

// IsUnary covers every single-operand opcode that produces a result.
func (op Opcode) IsUnary() bool {
	return op.valid() && opcodes[op].kind == kindUnary
}

func (op Opcode) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

func (op Opcode) IsBranch() bool {
	return op == OpGoto || op == OpIfFalse || op == OpIfTrue
}

// Type is the machine-level type of an IR value.
type Type int

const (
	Void Type = iota
	I8
	I32
	I64
	F64
	Ptr
)

func (t Type) Size() int {
	switch t {
	case I8:
		return 1
	case I32:
		return 4
	case I64, F64, Ptr:
		return 8
	}
	return 0
}

func (t Type) IsFloat() bool {
	return t == F64
}

func (t Type) IsInteger() bool {
	return t == I8 || t == I32 || t == I64 || t == Ptr
}

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case I8:
		return "i8"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F64:
		return "f64"
	case Ptr:
		return "ptr"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// TypeOf maps a source type onto its IR representation.
func TypeOf(t ast.Type) Type {
	switch t {
	case ast.Char, ast.Bool:
		return I8
	case ast.Int:
		return I32
	case ast.Long:
		return I64
	case ast.Double:
		return F64
	case ast.Void, nil:
		return Void
	}
	if ast.IsPointerType(t) {
		return Ptr
	}
	return Void
}

type Instruction struct {
	Op     Opcode
	Result Value
	Arg1   Value
	Arg2   Value
	// Reserved for three-operand forms; no current opcode uses it.
	Arg3   Value
	Label  string
	Callee string
	Args   []Value
	// Source position the instruction was lowered from, for diagnostics and debug comments.
	Pos ast.Location
}

// checked panics when ins does not have the operands its opcode requires.
// Constructors never hand out malformed instructions.
func checked(ins Instruction) Instruction {
	if err := ins.Check(); err != nil {
		panic(fmt.Sprintf("ir: %v", err))
	}
	return ins
}

// Binary creates "result = left op right".
func Binary(op Opcode, result, left, right Value) Instruction {
	if !op.IsBinary() {
		panic(fmt.Sprintf("ir: %v is not a binary opcode", op))
	}
	return checked(Instruction{Op: op, Result: result, Arg1: left, Arg2: right})
}

// Unary creates "result = op value" for NEG, NOT, LNOT, ASSIGN, CAST, LOAD and ADDR.
func Unary(op Opcode, result, value Value) Instruction {
	if !op.IsUnary() {
		panic(fmt.Sprintf("ir: %v is not a unary opcode", op))
	}
	return checked(Instruction{Op: op, Result: result, Arg1: value})
}

func Assign(result, value Value) Instruction {
	return Unary(OpAssign, result, value)
}

func Cast(result, value Value) Instruction {
	return Unary(OpCast, result, value)
}

func Load(result, addr Value) Instruction {
	return Unary(OpLoad, result, addr)
}

func Addr(result, target Value) Instruction {
	return Unary(OpAddr, result, target)
}

func Store(addr, value Value) Instruction {
	return checked(Instruction{Op: OpStore, Arg1: addr, Arg2: value})
}

func Label(label string) Instruction {
	return checked(Instruction{Op: OpLabel, Label: label})
}

func Goto(label string) Instruction {
	return checked(Instruction{Op: OpGoto, Label: label})
}

func IfFalse(cond Value, label string) Instruction {
	return checked(Instruction{Op: OpIfFalse, Arg1: cond, Label: label})
}

func IfTrue(cond Value, label string) Instruction {
	return checked(Instruction{Op: OpIfTrue, Arg1: cond, Label: label})
}

// Call creates a call; result may be None for calls whose value is unused or void.
func Call(result Value, callee string, args ...Value) Instruction {
	return checked(Instruction{Op: OpCall, Result: result, Callee: callee, Args: args})
}

// Return creates a return; value may be None for a bare return.
func Return(value Value) Instruction {
	return checked(Instruction{Op: OpReturn, Arg1: value})
}

// At attaches a source position.
func (ins Instruction) At(pos ast.Location) Instruction {
	ins.Pos = pos
	return ins
}

// Uses returns all operands read by the instruction.
func (ins *Instruction) Uses() []Value {
	var uses []Value
	for _, v := range [...]Value{ins.Arg1, ins.Arg2, ins.Arg3} {
		if !v.IsNone() {
			uses = append(uses, v)
		}
	}
	return append(uses, ins.Args...)
}

// MapUses rewrites every operand read by the instruction with fn.
// ADDR operands are left alone: they name storage, not values.
func (ins *Instruction) MapUses(fn func(Value) Value) {
	if ins.Op == OpAddr {
		return
	}
	if !ins.Arg1.IsNone() {
		ins.Arg1 = fn(ins.Arg1)
	}
	if !ins.Arg2.IsNone() {
		ins.Arg2 = fn(ins.Arg2)
	}
	if !ins.Arg3.IsNone() {
		ins.Arg3 = fn(ins.Arg3)
	}
	if len(ins.Args) != 0 {
		args := make([]Value, len(ins.Args))
		for i, a := range ins.Args {
			args[i] = fn(a)
		}
		ins.Args = args
	}
}

func (ins Instruction) String() string {
	switch {
	case ins.Op.IsBinary():
		return fmt.Sprintf("%s = %s %s %s", ins.Result, ins.Arg1, ins.Op.Symbol(), ins.Arg2)
	case ins.Op == OpAssign:
		return fmt.Sprintf("%s = %s", ins.Result, ins.Arg1)
	case ins.Op == OpCast:
		return fmt.Sprintf("%s = (%s) %s", ins.Result, ins.Result.Type, ins.Arg1)
	case ins.Op.IsUnary():
		return fmt.Sprintf("%s = %s%s", ins.Result, ins.Op.Symbol(), ins.Arg1)
	}

	switch ins.Op {
	case OpStore:
		return fmt.Sprintf("*%s = %s", ins.Arg1, ins.Arg2)
	case OpLabel:
		return ins.Label + ":"
	case OpGoto:
		return "goto " + ins.Label
	case OpIfFalse:
		return fmt.Sprintf("if_false %s goto %s", ins.Arg1, ins.Label)
	case OpIfTrue:
		return fmt.Sprintf("if_true %s goto %s", ins.Arg1, ins.Label)
	case OpCall:
		args := make([]string, len(ins.Args))
		for i, a := range ins.Args {
			args[i] = a.String()
		}
		call := fmt.Sprintf("call %s(%s)", ins.Callee, strings.Join(args, ", "))
		if ins.Result.IsNone() {
			return call
		}
		return fmt.Sprintf("%s = %s", ins.Result, call)
	case OpReturn:
		if ins.Arg1.IsNone() {
			return "return"
		}
		return "return " + ins.Arg1.String()
	}

	return fmt.Sprintf("%v(%v, %v, %v)", ins.Op, ins.Result, ins.Arg1, ins.Arg2)
}

type Param struct {
	Name string
	Type Type
}

type Local struct {
	Name string
	Type Type
}

type Function struct {
	Name       string
	Params     []Param
	ReturnType Type
	Locals     []Local
	Instrs     []Instruction

	lastTemp  int
	nextLabel int
}

func NewFunction(name string, returnType Type, params ...Param) *Function {
	return &Function{Name: name, ReturnType: returnType, Params: params}
}

// NewTemp allocates a fresh temporary. Numbers are never reused within the function.
func (f *Function) NewTemp(t Type) Value {
	f.lastTemp++
	return Temp(f.lastTemp, t)
}

// NewLabel allocates a label unique within the function.
func (f *Function) NewLabel(prefix string) string {
	label := fmt.Sprintf("%s%d", prefix, f.nextLabel)
	f.nextLabel++
	return label
}

func (f *Function) Emit(ins ...Instruction) {
	f.Instrs = append(f.Instrs, ins...)
}

// DeclareLocal registers a local variable and returns a value naming it.
func (f *Function) DeclareLocal(name string, t Type) Value {
	f.Locals = append(f.Locals, Local{Name: name, Type: t})
	return Var(name, t)
}

func (f *Function) ParamIndex(name string) int {
	for i, p := range f.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (f *Function) Clone() *Function {
	c := *f
	c.Params = append([]Param(nil), f.Params...)
	c.Locals = append([]Local(nil), f.Locals...)
	c.Instrs = make([]Instruction, len(f.Instrs))
	for i, ins := range f.Instrs {
		if ins.Args != nil {
			ins.Args = append([]Value(nil), ins.Args...)
		}
		c.Instrs[i] = ins
	}
	return &c
}

func (f *Function) Print(w io.Writer) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s %s", p.Name, p.Type)
	}
	fmt.Fprintf(w, "function %s(%s) %s:\n", f.Name, strings.Join(params, ", "), f.ReturnType)
	for i, ins := range f.Instrs {
		fmt.Fprintf(w, "%4d  %s\n", i, ins)
	}
}

type Global struct {
	Name string
	Type Type
	// Constant initializer; None means zero.
	Init Value
}

type StringLiteral struct {
	Label string
	Text  string
}

type Program struct {
	Globals   []Global
	Functions []*Function
	Strings   []StringLiteral

	stringLabels map[string]string
}

// InternString returns the pool label for text, adding it on first use.
func (p *Program) InternString(text string) string {
	if p.stringLabels == nil {
		p.stringLabels = make(map[string]string)
	}
	if label, ok := p.stringLabels[text]; ok {
		return label
	}
	label := fmt.Sprintf("str%d", len(p.Strings))
	p.stringLabels[text] = label
	p.Strings = append(p.Strings, StringLiteral{Label: label, Text: text})
	return label
}

func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (p *Program) Global(name string) (Global, bool) {
	for _, g := range p.Globals {
		if g.Name == name {
			return g, true
		}
	}
	return Global{}, false
}

// Clone returns a deep copy that passes may modify freely.
func (p *Program) Clone() *Program {
	c := &Program{
		Globals: append([]Global(nil), p.Globals...),
		Strings: append([]StringLiteral(nil), p.Strings...),
	}
	for _, f := range p.Functions {
		c.Functions = append(c.Functions, f.Clone())
	}
	if p.stringLabels != nil {
		c.stringLabels = make(map[string]string, len(p.stringLabels))
		for k, v := range p.stringLabels {
			c.stringLabels[k] = v
		}
	}
	return c
}

func (p *Program) Print(w io.Writer) {
	for _, g := range p.Globals {
		if g.Init.IsNone() {
			fmt.Fprintf(w, "global %s %s\n", g.Name, g.Type)
		} else {
			fmt.Fprintf(w, "global %s %s = %s\n", g.Name, g.Type, g.Init)
		}
	}
	for _, s := range p.Strings {
		fmt.Fprintf(w, "string %s = %q\n", s.Label, s.Text)
	}
	if len(p.Globals) != 0 || len(p.Strings) != 0 {
		fmt.Fprintf(w, "\n")
	}
	for _, f := range p.Functions {
		f.Print(w)
		fmt.Fprintf(w, "\n")
	}
}

// InstrCount is the total number of instructions across all functions.
func (p *Program) InstrCount() int {
	n := 0
	for _, f := range p.Functions {
		n += len(f.Instrs)
	}
	return n
}
