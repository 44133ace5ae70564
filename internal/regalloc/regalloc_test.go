package regalloc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iley/tacc/internal/ir"
)

var testConfig = Config{
	IntRegisters:      []string{"r0", "r1", "r2", "r3", "r4", "r5"},
	IntArgRegisters:   []string{"a0", "a1"},
	FloatArgRegisters: []string{"f0"},
	SlotSize:          8,
	StackArgOffset:    16,
}

func i64(v int64) ir.Value { return ir.ConstInt(v, ir.I64) }

// checkNoAliasing asserts that no two values with overlapping live ranges share a location.
func checkNoAliasing(t *testing.T, f *ir.Function, a *Allocation) {
	t.Helper()

	ranges, _ := liveRanges(f)
	for i, x := range ranges {
		lx, ok := a.Lookup(x.value)
		require.True(t, ok, "%v has no location", x.value)

		for _, y := range ranges[i+1:] {
			ly, _ := a.Lookup(y.value)
			if x.overlaps(y) {
				assert.NotEqual(t, lx, ly, "%v and %v are live at the same time", x.value, y.value)
			}
		}
	}
}

func TestSpillTwentyLiveValues(t *testing.T) {
	f := ir.NewFunction("f", ir.Void)

	var args []ir.Value
	for i := 0; i < 20; i++ {
		v := f.NewTemp(ir.I64)
		f.Emit(ir.Assign(v, i64(int64(i))))
		args = append(args, v)
	}
	f.Emit(ir.Call(ir.Value{}, "sink", args...), ir.Return(ir.Value{}))

	a := Allocate(f, testConfig)

	assert.Len(t, a.Spilled(), 14)
	assert.Equal(t, testConfig.IntRegisters, a.UsedRegisters())
	assert.Equal(t, 14*8, a.FrameSize())

	offsets := make(map[int]bool)
	for _, v := range a.Spilled() {
		l, ok := a.Lookup(v)
		require.True(t, ok)
		require.False(t, l.IsReg())
		assert.Less(t, l.Offset, 0)
		assert.False(t, offsets[l.Offset], "slot %d assigned twice", l.Offset)
		offsets[l.Offset] = true
	}

	// The longest ranges win the registers.
	for i := 0; i < 6; i++ {
		l, _ := a.Lookup(args[i])
		assert.Equal(t, fmt.Sprintf("r%d", i), l.Reg)
	}

	checkNoAliasing(t, f, a)
}

func TestRegistersAreReused(t *testing.T) {
	f := ir.NewFunction("f", ir.I64)

	var sum ir.Value
	for i := 0; i < 10; i++ {
		v := f.NewTemp(ir.I64)
		f.Emit(ir.Assign(v, i64(int64(i))))
		if i == 0 {
			sum = v
			continue
		}
		next := f.NewTemp(ir.I64)
		f.Emit(ir.Binary(ir.OpAdd, next, sum, v))
		sum = next
	}
	f.Emit(ir.Return(sum))

	a := Allocate(f, testConfig)

	assert.Empty(t, a.Spilled())
	assert.Zero(t, a.FrameSize())
	assert.LessOrEqual(t, len(a.UsedRegisters()), 3)

	checkNoAliasing(t, f, a)
}

func TestSlotsAreReusedWithoutOverlap(t *testing.T) {
	cfg := testConfig
	cfg.IntRegisters = nil

	f := ir.NewFunction("f", ir.Void)
	t1, t2 := f.NewTemp(ir.I64), f.NewTemp(ir.I64)
	t3, t4 := f.NewTemp(ir.I64), f.NewTemp(ir.I64)
	f.Emit(
		ir.Assign(t1, i64(1)),
		ir.Call(ir.Value{}, "use", t1),
		ir.Assign(t2, i64(2)),
		ir.Assign(t3, i64(3)),
		ir.Call(ir.Value{}, "use", t2, t3),
		ir.Assign(t4, i64(4)),
		ir.Call(ir.Value{}, "use", t4),
		ir.Return(ir.Value{}),
	)

	a := Allocate(f, cfg)

	assert.Len(t, a.Spilled(), 4)
	assert.Equal(t, 16, a.FrameSize())
	checkNoAliasing(t, f, a)
}

func TestParameters(t *testing.T) {
	f := ir.NewFunction("f", ir.I64,
		ir.Param{Name: "a", Type: ir.I64},
		ir.Param{Name: "d", Type: ir.F64},
		ir.Param{Name: "b", Type: ir.I64},
		ir.Param{Name: "c", Type: ir.I64},
		ir.Param{Name: "e", Type: ir.F64},
	)
	t1 := f.NewTemp(ir.I64)
	f.Emit(
		ir.Binary(ir.OpAdd, t1, ir.Var("a", ir.I64), ir.Var("c", ir.I64)),
		ir.Return(t1),
	)

	a := Allocate(f, testConfig)

	params := a.Params()
	require.Len(t, params, 5)

	assert.Equal(t, Location{Reg: "a0"}, params[0].Incoming)
	assert.Equal(t, Location{Reg: "f0"}, params[1].Incoming)
	assert.Equal(t, Location{Reg: "a1"}, params[2].Incoming)
	assert.Equal(t, Location{Offset: 16}, params[3].Incoming)
	assert.Equal(t, Location{Offset: 24}, params[4].Incoming)

	// Stack-passed parameters stay in the caller's frame.
	assert.Equal(t, params[3].Incoming, params[3].Loc)
	assert.Equal(t, params[4].Incoming, params[4].Loc)

	// Register parameters are live from entry and get registers first.
	assert.Equal(t, Location{Reg: "r0"}, params[0].Loc)
	assert.Equal(t, Location{Reg: "r1"}, params[2].Loc)

	// There are no float registers to allocate.
	assert.False(t, params[1].Loc.IsReg())
	assert.Less(t, params[1].Loc.Offset, 0)

	checkNoAliasing(t, f, a)
}

func TestParameterKeepsAllocatableArgumentRegister(t *testing.T) {
	cfg := testConfig
	cfg.IntArgRegisters = []string{"r3", "r4"}

	f := ir.NewFunction("f", ir.I64, ir.Param{Name: "a", Type: ir.I64}, ir.Param{Name: "b", Type: ir.I64})
	t1 := f.NewTemp(ir.I64)
	f.Emit(
		ir.Binary(ir.OpSub, t1, ir.Var("a", ir.I64), ir.Var("b", ir.I64)),
		ir.Return(t1),
	)

	a := Allocate(f, cfg)

	assert.Equal(t, "r3", a.Params()[0].Loc.Reg)
	assert.Equal(t, "r4", a.Params()[1].Loc.Reg)
	checkNoAliasing(t, f, a)
}

func TestAddressTakenVariablesLiveOnTheStack(t *testing.T) {
	f := ir.NewFunction("f", ir.I64, ir.Param{Name: "a", Type: ir.I64})
	x := f.DeclareLocal("x", ir.I64)
	p := f.NewTemp(ir.Ptr)
	t2 := f.NewTemp(ir.I64)
	t3 := f.NewTemp(ir.I64)
	f.Emit(
		ir.Assign(x, i64(1)),
		ir.Addr(p, x),
		ir.Addr(ir.Temp(4, ir.Ptr), ir.Var("a", ir.I64)),
		ir.Assign(t3, i64(7)),
		ir.Load(t2, p),
		ir.Return(t2),
	)

	a := Allocate(f, testConfig)

	lx, _ := a.Lookup(x)
	assert.False(t, lx.IsReg())

	la, _ := a.Lookup(ir.Var("a", ir.I64))
	assert.False(t, la.IsReg())
	assert.Equal(t, Location{Reg: "a0"}, a.Params()[0].Incoming)

	// The slot of a variable whose address escapes is never shared.
	l3, _ := a.Lookup(t3)
	assert.NotEqual(t, lx, l3)
	assert.NotEqual(t, la, l3)
}

func TestLoopExtendsRanges(t *testing.T) {
	// i = 0; s = 0
	// loop: if_false (i < 10) goto end
	//   s = s + i; i = i + 1; goto loop
	// end: return s
	f := ir.NewFunction("f", ir.I64)
	i := f.DeclareLocal("i", ir.I64)
	s := f.DeclareLocal("s", ir.I64)
	c := f.NewTemp(ir.I64)
	t2 := f.NewTemp(ir.I64)
	t3 := f.NewTemp(ir.I64)
	f.Emit(
		ir.Assign(i, i64(0)),
		ir.Assign(s, i64(0)),
		ir.Label("loop"),
		ir.Binary(ir.OpLt, c, i, i64(10)),
		ir.IfFalse(c, "end"),
		ir.Binary(ir.OpAdd, t2, s, i),
		ir.Assign(s, t2),
		ir.Binary(ir.OpAdd, t3, i, i64(1)),
		ir.Assign(i, t3),
		ir.Goto("loop"),
		ir.Label("end"),
		ir.Return(s),
	)

	ranges, byKey := liveRanges(f)
	require.Len(t, ranges, 5)

	assert.Equal(t, 9, byKey[i.Key()].end)
	assert.Equal(t, 11, byKey[s.Key()].end)
	assert.Equal(t, 4, byKey[c.Key()].end)

	cfg := testConfig
	cfg.IntRegisters = []string{"r0", "r1"}

	a := Allocate(f, cfg)
	checkNoAliasing(t, f, a)

	li, _ := a.Lookup(i)
	ls, _ := a.Lookup(s)
	assert.True(t, li.IsReg())
	assert.True(t, ls.IsReg())
}

func TestDeterministic(t *testing.T) {
	build := func() *ir.Function {
		f := ir.NewFunction("f", ir.Void)
		var args []ir.Value
		for i := 0; i < 12; i++ {
			v := f.NewTemp(ir.I64)
			f.Emit(ir.Assign(v, i64(int64(i))))
			args = append(args, v)
		}
		f.Emit(ir.Call(ir.Value{}, "sink", args...), ir.Return(ir.Value{}))
		return f
	}

	f1, f2 := build(), build()
	a1, a2 := Allocate(f1, testConfig), Allocate(f2, testConfig)

	for i := range f1.Instrs[:12] {
		l1, _ := a1.Lookup(f1.Instrs[i].Result)
		l2, _ := a2.Lookup(f2.Instrs[i].Result)
		assert.Equal(t, l1, l2)
	}
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "rbx", Location{Reg: "rbx"}.String())
	assert.Equal(t, "[fp-16]", Location{Offset: -16}.String())
	assert.Equal(t, "[fp+24]", Location{Offset: 24}.String())
}
