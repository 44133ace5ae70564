package opt

import "github.com/iley/tacc/internal/ir"

// eliminateIneffectiveAssignments removes ineffective variable assignments.
// An assignment is ineffective if the variable is overwritten or the function
// returns before the assigned value is read.
func eliminateIneffectiveAssignments(f *ir.Function, leaked map[ir.ValueKey]bool) bool {
	changed := false
	res := f.Instrs[:0]

	for i, ins := range f.Instrs {
		if isIneffectiveAssignment(f.Instrs, i, leaked) {
			changed = true
			continue
		}
		res = append(res, ins)
	}

	f.Instrs = res

	return changed
}

func isIneffectiveAssignment(instrs []ir.Instruction, index int, leaked map[ir.ValueKey]bool) bool {
	first := &instrs[index]
	if first.Op == ir.OpCall || first.Result.IsNone() {
		return false
	}

	target := first.Result
	if !target.IsVar() || leaked[target.Key()] {
		return false
	}

	for j := index + 1; j < len(instrs); j++ {
		ins := &instrs[j]

		for _, arg := range ins.Uses() {
			if arg.IsVar() && arg.Key() == target.Key() {
				return false
			}
		}

		switch ins.Op {
		case ir.OpGoto, ir.OpIfFalse, ir.OpIfTrue:
			// It's a jump, all bets are off.
			return false
		case ir.OpReturn:
			// Locals die with the frame.
			return true
		}

		if ins.Result.IsVar() && ins.Result.Key() == target.Key() {
			return true
		}
	}

	return false
}
