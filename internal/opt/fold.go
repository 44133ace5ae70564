package opt

import "github.com/iley/tacc/internal/ir"

// foldConstants replaces operations on constants with an ASSIGN of the result
// and resolves conditional jumps on constant conditions.
//
// A temporary with a single definition that assigns a constant holds that
// constant at every use the definition reaches, so such temporaries are folded
// through as well and whole constant expression trees collapse in one pass.
func foldConstants(f *ir.Function) bool {
	defs := make(map[ir.ValueKey]int)
	for i := range f.Instrs {
		if r := f.Instrs[i].Result; r.IsTemp() {
			defs[r.Key()]++
		}
	}

	consts := make(map[ir.ValueKey]ir.Value)
	changed := false
	res := f.Instrs[:0]

	for _, ins := range f.Instrs {
		ins.MapUses(func(v ir.Value) ir.Value {
			if c, ok := consts[v.Key()]; ok && v.IsTemp() && c.Type == v.Type {
				changed = true
				return c
			}
			return v
		})

		switch {
		case ins.Op.IsBinary():
			if v, ok := ir.EvalBinary(ins.Op, ins.Result.Type, ins.Arg1, ins.Arg2); ok {
				ins = ir.Assign(ins.Result, v).At(ins.Pos)
				changed = true
			}
		case ins.Op == ir.OpNeg, ins.Op == ir.OpNot, ins.Op == ir.OpLNot:
			if v, ok := ir.EvalUnary(ins.Op, ins.Result.Type, ins.Arg1); ok {
				ins = ir.Assign(ins.Result, v).At(ins.Pos)
				changed = true
			}
		case ins.Op == ir.OpCast:
			if v, ok := ir.EvalCast(ins.Result.Type, ins.Arg1); ok {
				ins = ir.Assign(ins.Result, v).At(ins.Pos)
				changed = true
			}
		case ins.Op == ir.OpIfFalse, ins.Op == ir.OpIfTrue:
			truth, ok := ir.Truth(ins.Arg1)
			if !ok {
				break
			}

			changed = true

			if truth != (ins.Op == ir.OpIfTrue) {
				// Never taken.
				continue
			}

			ins = ir.Goto(ins.Label).At(ins.Pos)
		}

		if r := ins.Result; ins.Op == ir.OpAssign && r.IsTemp() && defs[r.Key()] == 1 && ins.Arg1.IsConst() {
			consts[r.Key()] = ins.Arg1
		}

		res = append(res, ins)
	}

	f.Instrs = res

	return changed
}
