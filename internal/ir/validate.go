package ir

import (
	"fmt"

	"tlog.app/go/errors"
)

// Check verifies that the instruction has exactly the operands its opcode requires.
func (ins *Instruction) Check() error {
	if !ins.Op.valid() {
		return errors.New("unknown opcode %d", int(ins.Op))
	}
	if !ins.Arg3.IsNone() {
		return errors.New("%v takes no third operand", ins.Op)
	}

	noLabel := func() error {
		if ins.Label != "" || ins.Callee != "" || len(ins.Args) != 0 {
			return errors.New("%v takes no label or call operands", ins.Op)
		}
		return nil
	}

	switch opcodes[ins.Op].kind {
	case kindBinary:
		if !ins.Result.IsLocation() {
			return errors.New("%v needs an assignable result, got %v", ins.Op, ins.Result)
		}
		if ins.Arg1.IsNone() || ins.Arg2.IsNone() {
			return errors.New("%v needs two operands", ins.Op)
		}
		return noLabel()
	case kindUnary:
		if !ins.Result.IsLocation() {
			return errors.New("%v needs an assignable result, got %v", ins.Op, ins.Result)
		}
		if ins.Arg1.IsNone() || !ins.Arg2.IsNone() {
			return errors.New("%v needs exactly one operand", ins.Op)
		}
		if ins.Op == OpAddr && !(ins.Arg1.IsVar() || ins.Arg1.IsGlobal() || ins.Arg1.Kind == FuncRef) {
			return errors.New("cannot take address of %v", ins.Arg1)
		}
		return noLabel()
	case kindStore:
		if !ins.Result.IsNone() {
			return errors.New("STORE has no result")
		}
		if ins.Arg1.IsNone() || ins.Arg2.IsNone() {
			return errors.New("STORE needs an address and a value")
		}
		return noLabel()
	case kindLabel:
		if !ins.Result.IsNone() || !ins.Arg1.IsNone() || !ins.Arg2.IsNone() {
			return errors.New("%v takes no operands", ins.Op)
		}
		if ins.Label == "" {
			return errors.New("%v needs a label", ins.Op)
		}
	case kindBranch:
		if !ins.Result.IsNone() || ins.Arg1.IsNone() || !ins.Arg2.IsNone() {
			return errors.New("%v needs exactly a condition", ins.Op)
		}
		if ins.Label == "" {
			return errors.New("%v needs a label", ins.Op)
		}
	case kindCall:
		if ins.Callee == "" {
			return errors.New("CALL needs a callee")
		}
		if !ins.Result.IsNone() && !ins.Result.IsLocation() {
			return errors.New("CALL result must be assignable, got %v", ins.Result)
		}
		if !ins.Arg1.IsNone() || !ins.Arg2.IsNone() || ins.Label != "" {
			return errors.New("CALL passes operands through its argument list")
		}
		for _, a := range ins.Args {
			if a.IsNone() {
				return errors.New("CALL argument is missing")
			}
		}
	case kindReturn:
		if !ins.Result.IsNone() || !ins.Arg2.IsNone() {
			return errors.New("RETURN takes at most one operand")
		}
		return noLabel()
	}

	if ins.Op != OpCall && (ins.Callee != "" || len(ins.Args) != 0) {
		return errors.New("%v takes no call operands", ins.Op)
	}
	return nil
}

// LabelIndex maps every label defined in the function to its instruction index.
func LabelIndex(f *Function) map[string]int {
	labels := make(map[string]int)
	for i, ins := range f.Instrs {
		if ins.Op == OpLabel {
			labels[ins.Label] = i
		}
	}
	return labels
}

// Successors returns the indices control may reach after instruction i.
func Successors(f *Function, labels map[string]int, i int) []int {
	ins := &f.Instrs[i]
	next := func() []int {
		if i+1 < len(f.Instrs) {
			return []int{i + 1}
		}
		return nil
	}

	switch ins.Op {
	case OpReturn:
		return nil
	case OpGoto:
		return []int{labels[ins.Label]}
	case OpIfFalse, OpIfTrue:
		return append(next(), labels[ins.Label])
	}
	return next()
}

// Validate checks the structural invariants of a function: instruction shapes,
// unique and defined labels, a RETURN present, no fall-through past the end and
// every temporary or local defined on all paths before it is read.
func Validate(f *Function, pass string) error {
	fail := func(idx int, format string, args ...any) error {
		return &InvariantError{Function: f.Name, Pass: pass, Index: idx, Message: fmt.Sprintf(format, args...)}
	}

	if len(f.Instrs) == 0 {
		return fail(-1, "function has no instructions")
	}

	labels := make(map[string]int)
	for i := range f.Instrs {
		ins := &f.Instrs[i]
		if err := ins.Check(); err != nil {
			return fail(i, "%v", err)
		}
		if ins.Op == OpLabel {
			if prev, dup := labels[ins.Label]; dup {
				return fail(i, "label %s already defined at %d", ins.Label, prev)
			}
			labels[ins.Label] = i
		}
	}

	for i, ins := range f.Instrs {
		if ins.Op.IsBranch() {
			if _, ok := labels[ins.Label]; !ok {
				return fail(i, "undefined label %s", ins.Label)
			}
		}
	}

	last := f.Instrs[len(f.Instrs)-1].Op
	if last != OpReturn && last != OpGoto {
		return fail(len(f.Instrs)-1, "control falls off the end of the function")
	}

	returns := false
	for _, ins := range f.Instrs {
		if ins.Op == OpReturn {
			returns = true
			break
		}
	}
	if !returns {
		return fail(-1, "function has no RETURN")
	}

	// Loops without exits legitimately leave the trailing RETURN unreachable,
	// so reachability only scopes the definition check.
	seen := make([]bool, len(f.Instrs))
	work := []int{0}
	seen[0] = true
	for len(work) != 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range Successors(f, labels, i) {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}

	return checkDefinitions(f, labels, seen, fail)
}

// checkDefinitions runs a forward "definitely assigned" analysis over temporaries and locals.
func checkDefinitions(f *Function, labels map[string]int, reachable []bool, fail func(int, string, ...any) error) error {
	slots := make(map[ValueKey]int)
	for _, l := range f.Locals {
		key := Var(l.Name, l.Type).Key()
		if _, ok := slots[key]; !ok {
			slots[key] = len(slots)
		}
	}
	params := make(map[string]bool)
	for _, p := range f.Params {
		params[p.Name] = true
	}
	for i := range f.Instrs {
		ins := &f.Instrs[i]
		for _, v := range append(ins.Uses(), ins.Result) {
			if v.IsVar() && !params[v.Name] {
				if _, ok := slots[v.Key()]; !ok {
					return fail(i, "undeclared variable %v", v)
				}
			}
			if v.IsTemp() {
				if _, ok := slots[v.Key()]; !ok {
					slots[v.Key()] = len(slots)
				}
			}
		}
	}

	n := len(f.Instrs)
	words := (len(slots) + 63) / 64
	in := make([]bitset, n)
	for i := range in {
		in[i] = newBitset(words, i != 0)
	}

	preds := make([][]int, n)
	for i := 0; i < n; i++ {
		for _, s := range Successors(f, labels, i) {
			preds[s] = append(preds[s], i)
		}
	}

	out := func(i int) bitset {
		o := in[i].clone()
		r := f.Instrs[i].Result
		if slot, ok := slots[r.Key()]; ok && (r.IsTemp() || r.IsVar()) {
			o.set(slot)
		}
		return o
	}

	for changed := true; changed; {
		changed = false
		for i := 1; i < n; i++ {
			if !reachable[i] {
				continue
			}
			acc := newBitset(words, true)
			for _, p := range preds[i] {
				if reachable[p] {
					acc.intersect(out(p))
				}
			}
			if !acc.equal(in[i]) {
				in[i] = acc
				changed = true
			}
		}
	}

	for i := range f.Instrs {
		if !reachable[i] {
			continue
		}
		ins := &f.Instrs[i]
		if ins.Op == OpAddr {
			continue
		}
		for _, v := range ins.Uses() {
			if !v.IsTemp() && !v.IsVar() {
				continue
			}
			slot, ok := slots[v.Key()]
			if !ok {
				// Parameters are defined on entry.
				continue
			}
			if !in[i].has(slot) {
				return fail(i, "%v may be used before it is defined", v)
			}
		}
	}

	return nil
}

type bitset []uint64

func newBitset(words int, full bool) bitset {
	b := make(bitset, words)
	if full {
		for i := range b {
			b[i] = ^uint64(0)
		}
	}
	return b
}

func (b bitset) set(i int)      { b[i/64] |= 1 << (i % 64) }
func (b bitset) has(i int) bool { return b[i/64]&(1<<(i%64)) != 0 }

func (b bitset) clone() bitset {
	return append(bitset(nil), b...)
}

func (b bitset) intersect(o bitset) {
	for i := range b {
		b[i] &= o[i]
	}
}

func (b bitset) equal(o bitset) bool {
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}
