package opt

import (
	"math/bits"

	"github.com/iley/tacc/internal/ir"
)

// Peephole passes look at a window of adjacent instructions.

// forwardStores rewrites "*p = v; t = *p" to "*p = v; t = v".
func forwardStores(f *ir.Function) bool {
	changed := false

	for i := 0; i+1 < len(f.Instrs); i++ {
		st, ld := &f.Instrs[i], &f.Instrs[i+1]
		if st.Op != ir.OpStore || ld.Op != ir.OpLoad {
			continue
		}
		if !st.Arg1.SameAs(ld.Arg1) || st.Arg2.Type != ld.Result.Type {
			continue
		}
		*ld = ir.Assign(ld.Result, st.Arg2).At(ld.Pos)
		changed = true
	}

	return changed
}

// fuseAssignments rewrites "t = a op b; x = t" to "x = a op b" when t is read nowhere else.
func fuseAssignments(f *ir.Function) bool {
	uses := make(map[ir.ValueKey]int)
	for i := range f.Instrs {
		for _, v := range f.Instrs[i].Uses() {
			if v.IsTemp() {
				uses[v.Key()]++
			}
		}
	}

	changed := false
	res := f.Instrs[:0]

	for i := 0; i < len(f.Instrs); i++ {
		ins := f.Instrs[i]

		if i+1 < len(f.Instrs) {
			next := f.Instrs[i+1]
			t := ins.Result

			if fusable(ins.Op) && t.IsTemp() && uses[t.Key()] == 1 &&
				next.Op == ir.OpAssign && next.Arg1.IsTemp() && next.Arg1.Key() == t.Key() &&
				next.Result.Type == t.Type {
				ins.Result = next.Result
				res = append(res, ins)
				i++
				changed = true
				continue
			}
		}

		res = append(res, ins)
	}

	f.Instrs = res

	return changed
}

func fusable(op ir.Opcode) bool {
	switch {
	case op.IsBinary():
		return true
	}
	switch op {
	case ir.OpNeg, ir.OpNot, ir.OpLNot, ir.OpCast, ir.OpLoad, ir.OpAddr:
		return true
	}
	return false
}

// removeReverseCopies drops the second half of "x = y; y = x".
func removeReverseCopies(f *ir.Function) bool {
	changed := false
	res := f.Instrs[:0]

	for i, ins := range f.Instrs {
		if i > 0 && ins.Op == ir.OpAssign {
			prev := f.Instrs[i-1]
			if prev.Op == ir.OpAssign && prev.Arg1.IsLocation() &&
				prev.Result.Key() == ins.Arg1.Key() && prev.Arg1.Key() == ins.Result.Key() {
				changed = true
				continue
			}
		}

		res = append(res, ins)
	}

	f.Instrs = res

	return changed
}

// removeJumpsToNext drops jumps whose target label directly follows them.
func removeJumpsToNext(f *ir.Function) bool {
	changed := false
	res := f.Instrs[:0]

	for i, ins := range f.Instrs {
		if ins.Op.IsBranch() && labelFollows(f.Instrs[i+1:], ins.Label) {
			changed = true
			continue
		}

		res = append(res, ins)
	}

	f.Instrs = res

	return changed
}

// labelFollows reports whether label is defined in the run of labels at the start of instrs.
func labelFollows(instrs []ir.Instruction, label string) bool {
	for _, ins := range instrs {
		if ins.Op != ir.OpLabel {
			return false
		}
		if ins.Label == label {
			return true
		}
	}
	return false
}

// reduceMultiplications turns integer multiplication by a power of two into a shift.
func reduceMultiplications(f *ir.Function) bool {
	changed := false

	for i := range f.Instrs {
		ins := &f.Instrs[i]
		t := ins.Result.Type
		if ins.Op != ir.OpMul || !t.IsInteger() {
			continue
		}

		a, b := ins.Arg1, ins.Arg2
		if a.Kind == ir.IntConst && b.Kind != ir.IntConst {
			a, b = b, a
		}

		k, ok := log2(b, t)
		if !ok {
			continue
		}

		*ins = ir.Binary(ir.OpShl, ins.Result, a, ir.ConstInt(k, b.Type)).At(ins.Pos)
		changed = true
	}

	return changed
}

func log2(v ir.Value, t ir.Type) (int64, bool) {
	if v.Kind != ir.IntConst || v.Int <= 1 || v.Int&(v.Int-1) != 0 {
		return 0, false
	}
	k := int64(bits.TrailingZeros64(uint64(v.Int)))
	if k >= int64(t.Size()*8) {
		return 0, false
	}
	return k, true
}
