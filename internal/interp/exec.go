package interp

import (
	"context"
	"fmt"
	"math"

	"tlog.app/go/errors"

	"github.com/iley/tacc/internal/ir"
)

type frame struct {
	vals map[ir.ValueKey]ir.Value
	// Addresses of variables whose address is taken.
	cells map[string]int64
}

func (m *Machine) invoke(ctx context.Context, name string, args []ir.Value) (ir.Value, error) {
	if f, ok := m.funcs[name]; ok {
		return m.run(ctx, f, args)
	}

	if ext, ok := m.opts.Externals[name]; ok {
		return ext(m, args)
	}

	if !m.opts.NoBuiltins {
		if b, ok := builtins[name]; ok {
			return b(m, args)
		}
	}

	return ir.Value{}, errors.New("undefined function %s", name)
}

func (m *Machine) run(ctx context.Context, f *ir.Function, args []ir.Value) (res ir.Value, err error) {
	if len(args) != len(f.Params) {
		return ir.Value{}, errors.New("%s takes %d arguments, got %d", f.Name, len(f.Params), len(args))
	}

	if m.depth >= m.opts.MaxDepth {
		return ir.Value{}, errors.New("call depth limit of %d exceeded in %s", m.opts.MaxDepth, f.Name)
	}

	m.depth++
	mark := len(m.mem)

	defer func() {
		m.depth--
		m.mem = m.mem[:mark]
	}()

	fr, err := m.enter(f, args)
	if err != nil {
		return ir.Value{}, err
	}

	labels := m.labels[f]

	for pc := 0; pc < len(f.Instrs); {
		m.steps++
		if m.steps > m.opts.MaxSteps {
			return ir.Value{}, m.fault(f, pc, "step limit of %d exceeded", m.opts.MaxSteps)
		}
		if m.steps%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return ir.Value{}, err
			}
		}

		ins := &f.Instrs[pc]
		pc++

		switch ins.Op {
		case ir.OpLabel:
		case ir.OpGoto:
			pc = labels[ins.Label]
		case ir.OpIfFalse, ir.OpIfTrue:
			c, err := m.read(fr, ins.Arg1)
			if err != nil {
				return ir.Value{}, m.wrap(err, f, pc-1)
			}
			truth, _ := ir.Truth(c)
			if truth == (ins.Op == ir.OpIfTrue) {
				pc = labels[ins.Label]
			}
		case ir.OpReturn:
			if ins.Arg1.IsNone() {
				return zero(f.ReturnType), nil
			}
			v, err := m.read(fr, ins.Arg1)
			if err != nil {
				return ir.Value{}, m.wrap(err, f, pc-1)
			}
			return convert(v, f.ReturnType), nil
		default:
			if err := m.execute(ctx, fr, ins); err != nil {
				return ir.Value{}, m.wrap(err, f, pc-1)
			}
		}
	}

	// Falling off the end returns whatever zero means for the return type.
	return zero(f.ReturnType), nil
}

// enter builds a frame for f, analysing the function on first use.
func (m *Machine) enter(f *ir.Function, args []ir.Value) (*frame, error) {
	if _, ok := m.labels[f]; !ok {
		m.labels[f] = ir.LabelIndex(f)

		leaked := make(map[string]bool)
		for _, ins := range f.Instrs {
			if ins.Op == ir.OpAddr && ins.Arg1.IsVar() {
				leaked[ins.Arg1.Name] = true
			}
		}
		m.leaked[f] = leaked
	}

	fr := &frame{
		vals:  make(map[ir.ValueKey]ir.Value),
		cells: make(map[string]int64),
	}

	for _, l := range f.Locals {
		if !m.leaked[f][l.Name] {
			continue
		}
		addr, err := m.alloc(l.Type.Size(), 8)
		if err != nil {
			return nil, err
		}
		fr.cells[l.Name] = addr
	}

	for i, p := range f.Params {
		v := ir.Var(p.Name, p.Type)
		arg := convert(args[i], p.Type)

		if m.leaked[f][p.Name] {
			addr, err := m.alloc(p.Type.Size(), 8)
			if err != nil {
				return nil, err
			}
			fr.cells[p.Name] = addr
		}

		if err := m.write(fr, v, arg); err != nil {
			return nil, err
		}
	}

	return fr, nil
}

func (m *Machine) execute(ctx context.Context, fr *frame, ins *ir.Instruction) error {
	switch {
	case ins.Op.IsBinary():
		a, err := m.read(fr, ins.Arg1)
		if err != nil {
			return err
		}
		b, err := m.read(fr, ins.Arg2)
		if err != nil {
			return err
		}
		r, err := evalBinary(ins.Op, ins.Result.Type, a, b)
		if err != nil {
			return err
		}
		return m.write(fr, ins.Result, r)
	}

	switch ins.Op {
	case ir.OpNeg, ir.OpNot, ir.OpLNot:
		a, err := m.read(fr, ins.Arg1)
		if err != nil {
			return err
		}
		r, ok := ir.EvalUnary(ins.Op, ins.Result.Type, a)
		if !ok {
			return errors.New("%v is not defined for %v", ins.Op, a)
		}
		return m.write(fr, ins.Result, r)
	case ir.OpAssign:
		a, err := m.read(fr, ins.Arg1)
		if err != nil {
			return err
		}
		return m.write(fr, ins.Result, a)
	case ir.OpCast:
		a, err := m.read(fr, ins.Arg1)
		if err != nil {
			return err
		}
		return m.write(fr, ins.Result, cast(ins.Result.Type, a))
	case ir.OpLoad:
		p, err := m.read(fr, ins.Arg1)
		if err != nil {
			return err
		}
		v, err := m.Load(p.Int, ins.Result.Type)
		if err != nil {
			return err
		}
		return m.write(fr, ins.Result, v)
	case ir.OpStore:
		p, err := m.read(fr, ins.Arg1)
		if err != nil {
			return err
		}
		v, err := m.read(fr, ins.Arg2)
		if err != nil {
			return err
		}
		return m.Store(p.Int, convert(v, ins.Arg2.Type), ins.Arg2.Type)
	case ir.OpAddr:
		addr, err := m.address(fr, ins.Arg1)
		if err != nil {
			return err
		}
		return m.write(fr, ins.Result, ir.ConstInt(addr, ir.Ptr))
	case ir.OpCall:
		args := make([]ir.Value, len(ins.Args))
		for i, a := range ins.Args {
			v, err := m.read(fr, a)
			if err != nil {
				return err
			}
			args[i] = v
		}

		r, err := m.invoke(ctx, ins.Callee, args)
		if err != nil {
			return err
		}

		if ins.Result.IsNone() {
			return nil
		}
		if r.IsNone() {
			return errors.New("%s returned no value", ins.Callee)
		}
		return m.write(fr, ins.Result, r)
	}

	return errors.New("unsupported instruction %v", ins.Op)
}

func (m *Machine) read(fr *frame, v ir.Value) (ir.Value, error) {
	switch v.Kind {
	case ir.TempValue:
		r, ok := fr.vals[v.Key()]
		if !ok {
			return ir.Value{}, errors.New("read of undefined %v", v)
		}
		return r, nil
	case ir.VarValue:
		if addr, ok := fr.cells[v.Name]; ok {
			return m.Load(addr, v.Type)
		}
		r, ok := fr.vals[v.Key()]
		if !ok {
			// Uninitialized locals read as zero.
			return zero(v.Type), nil
		}
		return r, nil
	case ir.GlobalValue:
		addr, ok := m.globals[v.Name]
		if !ok {
			return ir.Value{}, errors.New("unknown global %s", v.Name)
		}
		return m.Load(addr, v.Type)
	}

	return m.constant(v)
}

func (m *Machine) write(fr *frame, dst ir.Value, v ir.Value) error {
	v = convert(v, dst.Type)

	switch dst.Kind {
	case ir.TempValue:
		fr.vals[dst.Key()] = v
		return nil
	case ir.VarValue:
		if addr, ok := fr.cells[dst.Name]; ok {
			return m.Store(addr, v, dst.Type)
		}
		fr.vals[dst.Key()] = v
		return nil
	case ir.GlobalValue:
		addr, ok := m.globals[dst.Name]
		if !ok {
			return errors.New("unknown global %s", dst.Name)
		}
		return m.Store(addr, v, dst.Type)
	}

	return errors.New("cannot assign to %v", dst)
}

func (m *Machine) address(fr *frame, v ir.Value) (int64, error) {
	switch v.Kind {
	case ir.VarValue:
		if addr, ok := fr.cells[v.Name]; ok {
			return addr, nil
		}
	case ir.GlobalValue:
		if addr, ok := m.globals[v.Name]; ok {
			return addr, nil
		}
	case ir.FuncRef:
		return m.functionAddress(v.Name), nil
	}

	return 0, errors.New("cannot take the address of %v", v)
}

// evalBinary evaluates a binary operation at run time. Where constant evaluation
// refuses, the result follows what the target instructions do.
func evalBinary(op ir.Opcode, t ir.Type, a, b ir.Value) (ir.Value, error) {
	if r, ok := ir.EvalBinary(op, t, a, b); ok {
		return r, nil
	}

	if a.Kind != b.Kind {
		return ir.Value{}, errors.New("operands of %v differ in kind: %v and %v", op, a, b)
	}

	if a.Kind == ir.FloatConst {
		if op == ir.OpDiv && t.IsFloat() {
			return ir.ConstFloat(a.Float / b.Float), nil
		}
		return ir.Value{}, errors.New("%v is not defined for floating point", op)
	}

	switch op {
	case ir.OpDiv, ir.OpMod:
		if b.Int == 0 {
			return ir.Value{}, errors.New("integer division by zero")
		}
		return ir.Value{}, errors.New("integer overflow in division")
	case ir.OpShl, ir.OpShr:
		// The count is masked to the operand width, 32 bits for the narrow types.
		mask := int64(31)
		if t.Size() == 8 {
			mask = 63
		}
		return evalBinary(op, t, a, ir.ConstInt(b.Int&mask, b.Type))
	}

	return ir.Value{}, errors.New("%v is not defined for %v", op, t)
}

// cast converts a to t. Out of range float conversions give the indefinite integer value.
func cast(t ir.Type, a ir.Value) ir.Value {
	if r, ok := ir.EvalCast(t, a); ok {
		return r
	}
	if t.IsInteger() && a.Kind == ir.FloatConst {
		return ir.ConstInt(ir.Wrap(math.MinInt64, t), t)
	}
	return convert(a, t)
}

func (m *Machine) fault(f *ir.Function, index int, format string, args ...any) error {
	return &RuntimeError{Function: f.Name, Index: index, Message: fmt.Sprintf(format, args...)}
}

// wrap attributes an error to the instruction that raised it. Errors from
// nested calls and program exits already carry their origin.
func (m *Machine) wrap(err error, f *ir.Function, index int) error {
	var rt *RuntimeError
	var exit *ExitError
	if errors.As(err, &rt) || errors.As(err, &exit) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return m.fault(f, index, "%v", err)
}
