package opt

import "github.com/iley/tacc/internal/ir"

// eliminateDeadCode removes instructions whose results are never read and that
// have no other effect, until nothing more can be removed. Calls are kept but
// lose an unused result.
func eliminateDeadCode(f *ir.Function) bool {
	leaked := addressTaken(f)
	changed := false

	for {
		round := removeUnusedResults(f, leaked)
		round = eliminateIneffectiveAssignments(f, leaked) || round

		if !round {
			break
		}

		changed = true
	}

	pruneLocals(f)

	return changed
}

func removeUnusedResults(f *ir.Function, leaked map[ir.ValueKey]bool) bool {
	uses := make(map[ir.ValueKey]int)
	for i := range f.Instrs {
		for _, v := range f.Instrs[i].Uses() {
			if v.IsLocation() {
				uses[v.Key()]++
			}
		}
	}

	changed := false
	res := f.Instrs[:0]

	for _, ins := range f.Instrs {
		r := ins.Result
		dead := !r.IsNone() && uses[r.Key()] == 0 && (r.IsTemp() || r.IsVar() && !leaked[r.Key()])

		switch {
		case !dead:
		case ins.Op == ir.OpCall:
			ins.Result = ir.Value{}
			changed = true
		default:
			changed = true
			continue
		}

		res = append(res, ins)
	}

	f.Instrs = res

	return changed
}

// pruneLocals forgets locals no instruction mentions any more.
func pruneLocals(f *ir.Function) {
	seen := make(map[string]bool)
	for i := range f.Instrs {
		ins := &f.Instrs[i]
		for _, v := range append(ins.Uses(), ins.Result) {
			if v.IsVar() {
				seen[v.Name] = true
			}
		}
	}

	locals := f.Locals[:0]
	for _, l := range f.Locals {
		if seen[l.Name] {
			locals = append(locals, l)
		}
	}
	f.Locals = locals
}
