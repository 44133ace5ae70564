package regalloc

import (
	"fmt"
	"slices"

	"nikand.dev/go/heap"

	"github.com/iley/tacc/internal/ir"
)

type Class int

const (
	IntClass Class = iota
	FloatClass
)

func ClassOf(t ir.Type) Class {
	if t.IsFloat() {
		return FloatClass
	}
	return IntClass
}

// Config describes the register file of a target.
type Config struct {
	// Allocatable registers per class, in order of preference.
	IntRegisters   []string
	FloatRegisters []string

	// Registers the calling convention passes parameters in.
	IntArgRegisters   []string
	FloatArgRegisters []string

	// Size of a stack slot in bytes.
	SlotSize int
	// Frame offset of the first stack-passed parameter.
	StackArgOffset int
}

func (c *Config) registers(cl Class) []string {
	if cl == FloatClass {
		return c.FloatRegisters
	}
	return c.IntRegisters
}

func (c *Config) argRegisters(cl Class) []string {
	if cl == FloatClass {
		return c.FloatArgRegisters
	}
	return c.IntArgRegisters
}

// Location is either a register or a frame slot addressed relative to the frame pointer.
type Location struct {
	Reg    string
	Offset int
}

func (l Location) IsReg() bool {
	return l.Reg != ""
}

func (l Location) String() string {
	if l.IsReg() {
		return l.Reg
	}
	return fmt.Sprintf("[fp%+d]", l.Offset)
}

// Param describes where a parameter arrives and where it lives afterwards.
type Param struct {
	Value ir.Value
	// Incoming location as defined by the calling convention.
	Incoming Location
	Loc      Location
}

type Allocation struct {
	locs    map[ir.ValueKey]Location
	used    []string
	slots   int
	spilled []ir.Value
	params  []Param
	cfg     Config
}

func (a *Allocation) Lookup(v ir.Value) (Location, bool) {
	l, ok := a.locs[v.Key()]
	return l, ok
}

// UsedRegisters lists the allocatable registers holding at least one value, in configuration order.
func (a *Allocation) UsedRegisters() []string {
	return a.used
}

// FrameSize is the number of bytes of spill slots below the frame pointer.
func (a *Allocation) FrameSize() int {
	return a.slots * a.cfg.SlotSize
}

// Spilled lists the values placed in local stack slots, in allocation order.
func (a *Allocation) Spilled() []ir.Value {
	return a.spilled
}

func (a *Allocation) Params() []Param {
	return a.params
}

type interval struct {
	value      ir.Value
	start, end int
	seq        int
	class      Class
	// Storage is reachable through a pointer, so it needs a slot of its own.
	leaked bool
}

func (iv *interval) overlaps(o *interval) bool {
	return iv.start <= o.end && o.start <= iv.end
}

type slot struct {
	offset  int
	holders []*interval
}

type allocator struct {
	cfg  Config
	res  *Allocation
	regs map[string][]*interval
	// Local stack slots, offsets growing downwards.
	slots []*slot
}

// Allocate maps every temporary, local and parameter of f to a register or a stack slot.
// It never fails: values that do not fit into registers are spilled.
func Allocate(f *ir.Function, cfg Config) *Allocation {
	if cfg.SlotSize == 0 {
		cfg.SlotSize = 8
	}

	a := &allocator{
		cfg: cfg,
		res: &Allocation{
			locs: make(map[ir.ValueKey]Location),
			cfg:  cfg,
		},
		regs: make(map[string][]*interval),
	}

	ranges, byKey := liveRanges(f)

	done := make(map[*interval]bool)
	var first []*interval

	// Parameters are seeded before anything else competes for registers.
	nextArg := map[Class]int{}
	stackArgs := 0

	for _, p := range f.Params {
		iv := byKey[ir.Var(p.Name, p.Type).Key()]
		cl := ClassOf(p.Type)
		args := cfg.argRegisters(cl)

		if nextArg[cl] >= len(args) {
			loc := Location{Offset: cfg.StackArgOffset + stackArgs*cfg.SlotSize}
			stackArgs++

			a.res.locs[iv.value.Key()] = loc
			a.res.params = append(a.res.params, Param{Value: iv.value, Incoming: loc, Loc: loc})
			done[iv] = true

			continue
		}

		reg := args[nextArg[cl]]
		nextArg[cl]++

		a.res.params = append(a.res.params, Param{Value: iv.value, Incoming: Location{Reg: reg}})

		if !iv.leaked && slices.Contains(cfg.registers(cl), reg) {
			a.hold(reg, iv)
			done[iv] = true
			continue
		}

		first = append(first, iv)
	}

	for _, iv := range first {
		a.place(iv)
		done[iv] = true
	}

	q := heap.Heap[*interval]{Less: longestFirst}
	for _, iv := range ranges {
		if !done[iv] {
			q.Push(iv)
		}
	}

	for q.Len() != 0 {
		a.place(q.Pop())
	}

	for i := range a.res.params {
		p := &a.res.params[i]
		p.Loc = a.res.locs[p.Value.Key()]
	}

	for _, cl := range []Class{IntClass, FloatClass} {
		for _, r := range cfg.registers(cl) {
			if len(a.regs[r]) != 0 {
				a.res.used = append(a.res.used, r)
			}
		}
	}

	a.res.slots = len(a.slots)

	return a.res
}

// longestFirst orders candidates by descending range length, then by earliest definition.
func longestFirst(d []*interval, i, j int) bool {
	a, b := d[i], d[j]
	if la, lb := a.end-a.start, b.end-b.start; la != lb {
		return la > lb
	}
	if a.start != b.start {
		return a.start < b.start
	}
	return a.seq < b.seq
}

func (a *allocator) place(iv *interval) {
	if !iv.leaked {
		for _, r := range a.cfg.registers(iv.class) {
			if free(a.regs[r], iv) {
				a.hold(r, iv)
				return
			}
		}
	}

	a.spill(iv)
}

func (a *allocator) hold(reg string, iv *interval) {
	a.regs[reg] = append(a.regs[reg], iv)
	a.res.locs[iv.value.Key()] = Location{Reg: reg}
}

func (a *allocator) spill(iv *interval) {
	var s *slot

	if !iv.leaked {
		for _, c := range a.slots {
			if len(c.holders) != 0 && !c.holders[0].leaked && free(c.holders, iv) {
				s = c
				break
			}
		}
	}

	if s == nil {
		s = &slot{offset: -(len(a.slots) + 1) * a.cfg.SlotSize}
		a.slots = append(a.slots, s)
	}

	s.holders = append(s.holders, iv)
	a.res.locs[iv.value.Key()] = Location{Offset: s.offset}
	a.res.spilled = append(a.res.spilled, iv.value)
}

func free(holders []*interval, iv *interval) bool {
	for _, h := range holders {
		if h.overlaps(iv) {
			return false
		}
	}
	return true
}

// liveRanges computes, for every temporary, local and parameter, the span from
// its first to its last appearance in linear order. Parameters are live from
// entry. A range that is live at the target of a backward jump is stretched to
// the jump, since the loop may carry the value into the next iteration.
func liveRanges(f *ir.Function) ([]*interval, map[ir.ValueKey]*interval) {
	var list []*interval
	byKey := make(map[ir.ValueKey]*interval)

	touch := func(v ir.Value, i int) {
		iv, ok := byKey[v.Key()]
		if !ok {
			iv = &interval{value: v, start: i, end: i, seq: len(list), class: ClassOf(v.Type)}
			byKey[v.Key()] = iv
			list = append(list, iv)
		}
		iv.start = min(iv.start, i)
		iv.end = max(iv.end, i)
	}

	for _, p := range f.Params {
		touch(ir.Var(p.Name, p.Type), -1)
	}

	for i := range f.Instrs {
		ins := &f.Instrs[i]
		for _, v := range append(ins.Uses(), ins.Result) {
			if v.IsTemp() || v.IsVar() {
				touch(v, i)
			}
		}
		if ins.Op == ir.OpAddr && ins.Arg1.IsVar() {
			byKey[ins.Arg1.Key()].leaked = true
		}
	}

	labels := ir.LabelIndex(f)

	for changed := true; changed; {
		changed = false

		for j := range f.Instrs {
			ins := &f.Instrs[j]
			if !ins.Op.IsBranch() {
				continue
			}

			l, ok := labels[ins.Label]
			if !ok || l >= j {
				continue
			}

			for _, iv := range list {
				if iv.start < l && iv.end >= l && iv.end < j {
					iv.end = j
					changed = true
				}
			}
		}
	}

	return list, byKey
}
