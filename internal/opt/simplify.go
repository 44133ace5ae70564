package opt

import (
	"math"

	"github.com/iley/tacc/internal/ir"
)

// simplifyArithmetic applies algebraic identities. Floating point identities
// are only used where they are exact for every input including NaN, infinities
// and negative zero, so x*0.0 and x+0.0 are kept.
func simplifyArithmetic(f *ir.Function) bool {
	changed := false

	// Unary definitions seen since the last label, by result.
	unary := make(map[ir.ValueKey]ir.Instruction)
	leaked := addressTaken(f)

	for i := range f.Instrs {
		ins := &f.Instrs[i]

		if ins.Op == ir.OpLabel {
			clear(unary)
			continue
		}

		var repl ir.Value
		switch {
		case ins.Op.IsBinary() && ins.Result.Type.IsFloat():
			repl = simplifyFloat(ins)
		case ins.Op.IsBinary():
			repl = simplifyInt(ins)
		case ins.Op == ir.OpNeg || ins.Op == ir.OpNot:
			// -(-x) and ~(~x) are x.
			if def, ok := unary[ins.Arg1.Key()]; ok && ins.Arg1.IsLocation() && def.Op == ins.Op {
				repl = def.Arg1
			}
		}

		if !repl.IsNone() && repl.Type == ins.Result.Type {
			*ins = ir.Assign(ins.Result, repl).At(ins.Pos)
			changed = true
		}

		r := ins.Result
		if r.IsNone() {
			continue
		}

		// Anything computed from r or stored in r is stale now.
		delete(unary, r.Key())
		for k, def := range unary {
			if def.Arg1.IsLocation() && def.Arg1.Key() == r.Key() {
				delete(unary, k)
			}
		}

		if (ins.Op == ir.OpNeg || ins.Op == ir.OpNot) && ins.Arg1.Key() != r.Key() && private(r, leaked) && private(ins.Arg1, leaked) {
			unary[r.Key()] = *ins
		}
	}

	return changed
}

func simplifyInt(ins *ir.Instruction) ir.Value {
	a, b := ins.Arg1, ins.Arg2
	zero := ir.ConstInt(0, ins.Result.Type)

	switch ins.Op {
	case ir.OpAdd:
		if b.IsIntConst(0) {
			return a
		}
		if a.IsIntConst(0) {
			return b
		}
	case ir.OpSub:
		if b.IsIntConst(0) {
			return a
		}
		if a.IsLocation() && a.SameAs(b) {
			return zero
		}
	case ir.OpMul:
		if b.IsIntConst(1) {
			return a
		}
		if a.IsIntConst(1) {
			return b
		}
		if a.IsIntConst(0) || b.IsIntConst(0) {
			return zero
		}
	case ir.OpDiv:
		if b.IsIntConst(1) {
			return a
		}
	case ir.OpMod:
		if b.IsIntConst(1) {
			return zero
		}
	case ir.OpAnd:
		if a.IsIntConst(0) || b.IsIntConst(0) {
			return zero
		}
	case ir.OpOr, ir.OpXor:
		if b.IsIntConst(0) {
			return a
		}
		if a.IsIntConst(0) {
			return b
		}
	case ir.OpShl, ir.OpShr:
		if b.IsIntConst(0) {
			return a
		}
	}

	return ir.Value{}
}

func simplifyFloat(ins *ir.Instruction) ir.Value {
	a, b := ins.Arg1, ins.Arg2

	is := func(v ir.Value, c float64) bool {
		return v.Kind == ir.FloatConst && math.Float64bits(v.Float) == math.Float64bits(c)
	}

	switch ins.Op {
	case ir.OpMul:
		if is(b, 1) {
			return a
		}
		if is(a, 1) {
			return b
		}
	case ir.OpDiv:
		if is(b, 1) {
			return a
		}
	case ir.OpSub:
		// x - (+0) is x, even for x = -0.
		if is(b, 0) {
			return a
		}
	case ir.OpAdd:
		negZero := math.Copysign(0, -1)
		if is(b, negZero) {
			return a
		}
		if is(a, negZero) {
			return b
		}
	}

	return ir.Value{}
}

// private reports whether v can only change through instructions naming it.
func private(v ir.Value, leaked map[ir.ValueKey]bool) bool {
	return v.IsConst() || v.IsTemp() || v.IsVar() && !leaked[v.Key()]
}
