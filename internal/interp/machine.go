package interp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/iley/tacc/internal/ir"
	"github.com/iley/tacc/internal/util"
)

/*
The interpreter executes IR the way the generated machine code would. Memory
is a flat little-endian byte array starting at memoryBase: string literals and
globals are laid out first, then call frames grow and shrink on top of them.
Only variables whose address is taken live in memory; everything else is kept
in per-frame maps. Integers are wrapped to the width of their type after every
operation, so results match the target bit for bit.
*/

const (
	memoryBase   = 0x10000
	functionBase = 0x40000000

	DefaultMaxSteps  = 100_000_000
	DefaultMaxDepth  = 4096
	DefaultMaxMemory = 64 << 20
)

// External implements a function that has no body in the program.
type External func(m *Machine, args []ir.Value) (ir.Value, error)

type Options struct {
	// Externals are consulted before the builtins.
	Externals map[string]External
	// NoBuiltins disables putchar, puts, printf and exit.
	NoBuiltins bool
	// Stdout receives the output of the builtins; io.Discard when nil.
	Stdout io.Writer

	MaxSteps  int
	MaxDepth  int
	MaxMemory int
}

type Machine struct {
	prog *ir.Program
	opts Options

	mem []byte

	globals   map[string]int64
	strings   map[string]int64
	funcs     map[string]*ir.Function
	funcAddrs map[string]int64

	// Per-function analysis, computed on first call.
	labels map[*ir.Function]map[string]int
	leaked map[*ir.Function]map[string]bool

	steps int
	depth int
}

// RuntimeError reports a fault while executing an instruction.
type RuntimeError struct {
	Function string
	Index    int
	Message  string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("interp: function %s, instruction %d: %s", e.Function, e.Index, e.Message)
}

// ExitError is returned when the program calls exit.
type ExitError struct {
	Code int64
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// New lays out the static data of p. The program must not be modified while the machine is in use.
func New(p *ir.Program, opts Options) (*Machine, error) {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxMemory == 0 {
		opts.MaxMemory = DefaultMaxMemory
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	m := &Machine{
		prog:      p,
		opts:      opts,
		globals:   make(map[string]int64),
		strings:   make(map[string]int64),
		funcs:     make(map[string]*ir.Function),
		funcAddrs: make(map[string]int64),
		labels:    make(map[*ir.Function]map[string]int),
		leaked:    make(map[*ir.Function]map[string]bool),
	}

	for _, f := range p.Functions {
		m.funcs[f.Name] = f
		m.functionAddress(f.Name)
	}

	for _, s := range p.Strings {
		addr, err := m.alloc(len(s.Text)+1, 1)
		if err != nil {
			return nil, err
		}
		copy(m.mem[addr-memoryBase:], s.Text)
		m.strings[s.Label] = addr
	}

	for _, g := range p.Globals {
		size := g.Type.Size()
		if size == 0 {
			return nil, errors.New("global %s has no storage size", g.Name)
		}

		addr, err := m.alloc(size, size)
		if err != nil {
			return nil, err
		}
		m.globals[g.Name] = addr

		if g.Init.IsNone() {
			continue
		}

		init, err := m.constant(g.Init)
		if err != nil {
			return nil, errors.Wrap(err, "global %s", g.Name)
		}
		err = m.Store(addr, convert(init, g.Type), g.Type)
		if err != nil {
			return nil, errors.Wrap(err, "global %s", g.Name)
		}
	}

	return m, nil
}

// Run interprets entry of p with integer arguments and returns its result.
func Run(ctx context.Context, p *ir.Program, entry string, args []int64, opts Options) (ir.Value, error) {
	m, err := New(p, opts)
	if err != nil {
		return ir.Value{}, err
	}

	f := p.Function(entry)
	if f == nil {
		return ir.Value{}, errors.New("no function %s", entry)
	}
	if len(args) != len(f.Params) {
		return ir.Value{}, errors.New("%s takes %d arguments, got %d", entry, len(f.Params), len(args))
	}

	vals := make([]ir.Value, len(args))
	for i, a := range args {
		vals[i] = cast(f.Params[i].Type, ir.ConstInt(a, ir.I64))
	}

	return m.Call(ctx, entry, vals...)
}

// Call runs a function of the program, or an external, to completion.
func (m *Machine) Call(ctx context.Context, name string, args ...ir.Value) (res ir.Value, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "interp: call", "func", name, "args", len(args))
	defer tr.Finish("err", &err)

	res, err = m.invoke(ctx, name, args)

	var exit *ExitError
	if errors.As(err, &exit) {
		return ir.ConstInt(exit.Code, ir.I32), err
	}

	tr.V("interp").Printw("finished", "result", res, "steps", m.steps)

	return res, err
}

// Steps is the number of instructions executed so far.
func (m *Machine) Steps() int {
	return m.steps
}

// Global reads the current value of a global variable.
func (m *Machine) Global(name string) (ir.Value, error) {
	g, ok := m.prog.Global(name)
	if !ok {
		return ir.Value{}, errors.New("no global %s", name)
	}
	return m.Load(m.globals[name], g.Type)
}

// ReadString reads a NUL-terminated string starting at addr.
func (m *Machine) ReadString(addr int64) (string, error) {
	var b []byte
	for {
		v, err := m.Load(addr+int64(len(b)), ir.I8)
		if err != nil {
			return "", err
		}
		if v.Int == 0 {
			return string(b), nil
		}
		b = append(b, byte(v.Int))
	}
}

// Load reads a value of type t from memory.
func (m *Machine) Load(addr int64, t ir.Type) (ir.Value, error) {
	b, err := m.bytes(addr, t.Size())
	if err != nil {
		return ir.Value{}, err
	}

	switch t {
	case ir.I8:
		return ir.ConstInt(int64(int8(b[0])), t), nil
	case ir.I32:
		return ir.ConstInt(int64(int32(binary.LittleEndian.Uint32(b))), t), nil
	case ir.F64:
		return ir.ConstFloat(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	}

	return ir.ConstInt(int64(binary.LittleEndian.Uint64(b)), t), nil
}

// Store writes v to memory at the width of t.
func (m *Machine) Store(addr int64, v ir.Value, t ir.Type) error {
	b, err := m.bytes(addr, t.Size())
	if err != nil {
		return err
	}

	bits := uint64(v.Int)
	if v.Kind == ir.FloatConst {
		bits = math.Float64bits(v.Float)
	}

	switch t.Size() {
	case 1:
		b[0] = byte(bits)
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(bits))
	default:
		binary.LittleEndian.PutUint64(b, bits)
	}

	return nil
}

func (m *Machine) bytes(addr int64, size int) ([]byte, error) {
	if size == 0 {
		return nil, errors.New("access of zero width at 0x%x", addr)
	}

	off := addr - memoryBase
	if addr < memoryBase || off+int64(size) > int64(len(m.mem)) {
		return nil, errors.New("invalid memory access at 0x%x", addr)
	}

	return m.mem[off : off+int64(size)], nil
}

// alloc reserves zeroed memory on top of everything allocated so far.
func (m *Machine) alloc(size, align int) (int64, error) {
	off := util.Align(len(m.mem), align)
	if off+size > m.opts.MaxMemory {
		return 0, errors.New("out of memory")
	}

	m.mem = append(m.mem, make([]byte, off+size-len(m.mem))...)

	return memoryBase + int64(off), nil
}

// functionAddress gives every function name a distinct address outside of data memory.
func (m *Machine) functionAddress(name string) int64 {
	if addr, ok := m.funcAddrs[name]; ok {
		return addr
	}

	addr := functionBase + int64(len(m.funcAddrs))*16
	m.funcAddrs[name] = addr

	return addr
}

// constant resolves an operand that does not depend on a frame.
func (m *Machine) constant(v ir.Value) (ir.Value, error) {
	switch v.Kind {
	case ir.IntConst, ir.FloatConst:
		return v, nil
	case ir.StringRef:
		addr, ok := m.strings[v.Name]
		if !ok {
			return ir.Value{}, errors.New("unknown string %s", v.Name)
		}
		return ir.ConstInt(addr, ir.Ptr), nil
	case ir.FuncRef:
		return ir.ConstInt(m.functionAddress(v.Name), ir.Ptr), nil
	}

	return ir.Value{}, errors.New("%v is not a constant", v)
}

// convert reinterprets a runtime value as type t the way a register move would.
func convert(v ir.Value, t ir.Type) ir.Value {
	switch {
	case t.IsFloat() && v.Kind == ir.IntConst:
		return ir.ConstFloat(math.Float64frombits(uint64(v.Int)))
	case t.IsInteger() && v.Kind == ir.FloatConst:
		return ir.ConstInt(ir.Wrap(int64(math.Float64bits(v.Float)), t), t)
	case t.IsInteger():
		return ir.ConstInt(ir.Wrap(v.Int, t), t)
	}
	return v
}

func zero(t ir.Type) ir.Value {
	if t.IsFloat() {
		return ir.ConstFloat(0)
	}
	return ir.ConstInt(0, t)
}
