package opt

import "github.com/iley/tacc/internal/ir"

// propagation tracks what tracked locations are known to hold at the current
// instruction. Facts never survive a label: a jump target may be reached with
// different facts from each predecessor.
type propagation struct {
	// Values known to be in a location.
	known map[ir.ValueKey]ir.Value
	// Variables that can be modified through pointers. We never track those.
	leaked map[ir.ValueKey]bool
}

func newPropagation(f *ir.Function) *propagation {
	return &propagation{
		known:  make(map[ir.ValueKey]ir.Value),
		leaked: addressTaken(f),
	}
}

func (p *propagation) reset() {
	clear(p.known)
}

// tracked reports whether facts about v can be trusted between instructions.
// Globals may change behind any call or store, so only temporaries and private variables qualify.
func (p *propagation) tracked(v ir.Value) bool {
	return v.IsTemp() || v.IsVar() && !p.leaked[v.Key()]
}

// kill drops every fact about v and every fact that refers to it.
func (p *propagation) kill(v ir.Value) {
	key := v.Key()
	delete(p.known, key)
	for k, src := range p.known {
		if src.IsLocation() && src.Key() == key {
			delete(p.known, k)
		}
	}
}

func (p *propagation) run(f *ir.Function, copies bool) bool {
	changed := false

	for i := range f.Instrs {
		ins := &f.Instrs[i]

		if ins.Op == ir.OpLabel {
			p.reset()
			continue
		}

		ins.MapUses(func(v ir.Value) ir.Value {
			if !p.tracked(v) {
				return v
			}
			known, ok := p.known[v.Key()]
			if !ok || known.Type != v.Type {
				return v
			}
			changed = true
			return known
		})

		if r := ins.Result; !r.IsNone() {
			p.kill(r)

			if ins.Op == ir.OpAssign && p.tracked(r) && p.fact(ins.Arg1, r, copies) {
				p.known[r.Key()] = ins.Arg1
			}
		}

		if ins.Op == ir.OpGoto || ins.Op == ir.OpReturn {
			p.reset()
		}
	}

	return changed
}

// fact reports whether "r = src" gives a fact for the pass being run.
func (p *propagation) fact(src, r ir.Value, copies bool) bool {
	if src.Type != r.Type {
		return false
	}
	if !copies {
		return src.IsConst()
	}
	return p.tracked(src) && src.Key() != r.Key()
}

func propagateConstants(f *ir.Function) bool {
	return newPropagation(f).run(f, false)
}

func propagateCopies(f *ir.Function) bool {
	return newPropagation(f).run(f, true)
}

// addressTaken collects the variables whose address is ever taken.
func addressTaken(f *ir.Function) map[ir.ValueKey]bool {
	leaked := make(map[ir.ValueKey]bool)
	for _, ins := range f.Instrs {
		if ins.Op == ir.OpAddr && ins.Arg1.IsVar() {
			leaked[ins.Arg1.Key()] = true
		}
	}
	return leaked
}
