package interp

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iley/tacc/internal/ast"
	"github.com/iley/tacc/internal/ir"
	"github.com/iley/tacc/internal/opt"
)

func i32(v int64) ir.Value { return ir.ConstInt(v, ir.I32) }
func i64(v int64) ir.Value { return ir.ConstInt(v, ir.I64) }

func program(functions ...*ir.Function) *ir.Program {
	return &ir.Program{Functions: functions}
}

func call(t *testing.T, p *ir.Program, name string, args ...ir.Value) (ir.Value, error) {
	t.Helper()

	m, err := New(p, Options{})
	require.NoError(t, err)

	return m.Call(context.Background(), name, args...)
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       ir.Opcode
		typ      ir.Type
		a, b     ir.Value
		expected ir.Value
	}{
		{"int overflow wraps", ir.OpAdd, ir.I32, i32(math.MaxInt32), i32(1), i32(math.MinInt32)},
		{"char overflow wraps", ir.OpAdd, ir.I8, ir.ConstInt(127, ir.I8), ir.ConstInt(1, ir.I8), ir.ConstInt(-128, ir.I8)},
		{"long multiply", ir.OpMul, ir.I64, i64(1 << 40), i64(3), i64(3 << 40)},
		{"division truncates", ir.OpDiv, ir.I32, i32(-7), i32(2), i32(-3)},
		{"remainder keeps sign", ir.OpMod, ir.I32, i32(-7), i32(2), i32(-1)},
		{"shift count is masked", ir.OpShl, ir.I32, i32(1), i32(33), i32(2)},
		{"wide shift count is masked", ir.OpShl, ir.I64, i64(1), i64(65), i64(2)},
		{"arithmetic shift right", ir.OpShr, ir.I32, i32(-16), i32(2), i32(-4)},
		{"float division by zero", ir.OpDiv, ir.F64, ir.ConstFloat(1), ir.ConstFloat(0), ir.ConstFloat(math.Inf(1))},
		{"pointer comparison is unsigned", ir.OpLt, ir.I32, ir.ConstInt(1, ir.Ptr), ir.ConstInt(-1, ir.Ptr), i32(1)},
		{"nan is unordered", ir.OpEq, ir.I32, ir.ConstFloat(math.NaN()), ir.ConstFloat(math.NaN()), i32(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ir.NewFunction("f", tt.typ)
			if tt.op.IsComparison() {
				f.ReturnType = ir.I32
			}
			r := f.NewTemp(f.ReturnType)
			f.Emit(ir.Binary(tt.op, r, tt.a, tt.b), ir.Return(r))

			res, err := call(t, program(f), "f")
			require.NoError(t, err)
			assert.True(t, tt.expected.SameAs(res), "expected %v, got %v", tt.expected, res)
		})
	}
}

func TestCasts(t *testing.T) {
	tests := []struct {
		name     string
		to       ir.Type
		value    ir.Value
		expected ir.Value
	}{
		{"truncate to char", ir.I8, i32(300), ir.ConstInt(44, ir.I8)},
		{"sign extend", ir.I64, i32(-5), i64(-5)},
		{"float to int truncates", ir.I32, ir.ConstFloat(-2.75), i32(-2)},
		{"float out of range", ir.I64, ir.ConstFloat(1e300), i64(math.MinInt64)},
		{"nan to int", ir.I32, ir.ConstFloat(math.NaN()), i32(0)},
		{"int to float", ir.F64, i64(-3), ir.ConstFloat(-3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ir.NewFunction("f", tt.to, ir.Param{Name: "x", Type: tt.value.Type})
			r := f.NewTemp(tt.to)
			f.Emit(ir.Cast(r, ir.Var("x", tt.value.Type)), ir.Return(r))

			res, err := call(t, program(f), "f", tt.value)
			require.NoError(t, err)
			assert.True(t, tt.expected.SameAs(res), "expected %v, got %v", tt.expected, res)
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	t.Run("division by zero", func(t *testing.T) {
		f := ir.NewFunction("f", ir.I32, ir.Param{Name: "d", Type: ir.I32})
		r := f.NewTemp(ir.I32)
		f.Emit(ir.Label("start"), ir.Binary(ir.OpDiv, r, i32(10), ir.Var("d", ir.I32)), ir.Return(r))

		_, err := call(t, program(f), "f", i32(0))

		var rt *RuntimeError
		require.ErrorAs(t, err, &rt)
		assert.Equal(t, &RuntimeError{Function: "f", Index: 1, Message: "integer division by zero"}, rt)
	})

	t.Run("error inside callee keeps its origin", func(t *testing.T) {
		g := ir.NewFunction("g", ir.I32)
		p := g.NewTemp(ir.Ptr)
		r := g.NewTemp(ir.I32)
		g.Emit(ir.Assign(p, ir.ConstInt(8, ir.Ptr)), ir.Load(r, p), ir.Return(r))

		f := ir.NewFunction("f", ir.I32)
		t1 := f.NewTemp(ir.I32)
		f.Emit(ir.Call(t1, "g"), ir.Return(t1))

		_, err := call(t, program(f, g), "f")

		var rt *RuntimeError
		require.ErrorAs(t, err, &rt)
		assert.Equal(t, "g", rt.Function)
		assert.Equal(t, 1, rt.Index)
		assert.Contains(t, rt.Message, "invalid memory access at 0x8")
	})

	t.Run("undefined function", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Void)
		f.Emit(ir.Call(ir.Value{}, "missing"), ir.Return(ir.Value{}))

		_, err := call(t, program(f), "f")
		assert.ErrorContains(t, err, "undefined function missing")
	})

	t.Run("step limit", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Void)
		f.Emit(ir.Label("loop"), ir.Goto("loop"))

		m, err := New(program(f), Options{MaxSteps: 1000})
		require.NoError(t, err)

		_, err = m.Call(context.Background(), "f")
		assert.ErrorContains(t, err, "step limit of 1000 exceeded")
	})

	t.Run("call depth", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Void)
		f.Emit(ir.Call(ir.Value{}, "f"), ir.Return(ir.Value{}))

		m, err := New(program(f), Options{MaxDepth: 50})
		require.NoError(t, err)

		_, err = m.Call(context.Background(), "f")
		assert.ErrorContains(t, err, "call depth limit of 50 exceeded")
	})

	t.Run("cancelled", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Void)
		f.Emit(ir.Label("loop"), ir.Goto("loop"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		m, err := New(program(f), Options{})
		require.NoError(t, err)

		_, err = m.Call(ctx, "f")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMemory(t *testing.T) {
	f := ir.NewFunction("f", ir.I32)
	x := f.DeclareLocal("x", ir.I32)
	p := f.NewTemp(ir.Ptr)
	r := f.NewTemp(ir.I32)
	f.Emit(
		ir.Assign(x, i32(1)),
		ir.Addr(p, x),
		ir.Store(p, i32(300)),
		ir.Assign(r, x),
		ir.Assign(ir.GlobalRef("g", ir.I8), ir.ConstInt(-1, ir.I8)),
		ir.Return(r),
	)

	prog := program(f)
	prog.Globals = []ir.Global{{Name: "g", Type: ir.I8}, {Name: "h", Type: ir.F64, Init: ir.ConstFloat(2.5)}}

	m, err := New(prog, Options{})
	require.NoError(t, err)

	res, err := m.Call(context.Background(), "f")
	require.NoError(t, err)
	assert.Equal(t, i32(300), res)

	g, err := m.Global("g")
	require.NoError(t, err)
	assert.Equal(t, ir.ConstInt(-1, ir.I8), g)

	h, err := m.Global("h")
	require.NoError(t, err)
	assert.Equal(t, ir.ConstFloat(2.5), h)
}

func TestBuiltins(t *testing.T) {
	prog := &ir.Program{}
	hello := prog.InternString("hello")
	format := prog.InternString("%d|%5.2f|%s|%c|%x|%ld|%u|100%%\n")

	f := ir.NewFunction("main", ir.I32)
	f.Emit(
		ir.Call(ir.Value{}, "puts", ir.Str(hello)),
		ir.Call(ir.Value{}, "putchar", i32('A')),
		ir.Call(ir.Value{}, "printf", ir.Str(format), i32(-42), ir.ConstFloat(3.14159), ir.Str(hello), i32('z'), i32(255), i64(1<<40), i32(-1)),
		ir.Call(ir.Value{}, "exit", i32(3)),
		ir.Return(i32(0)),
	)
	prog.Functions = append(prog.Functions, f)

	var out bytes.Buffer
	m, err := New(prog, Options{Stdout: &out})
	require.NoError(t, err)

	res, err := m.Call(context.Background(), "main")

	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, int64(3), exit.Code)
	assert.Equal(t, i32(3), res)

	assert.Equal(t, "hello\nA-42| 3.14|hello|z|ff|1099511627776|4294967295|100%\n", out.String())
}

func TestExternals(t *testing.T) {
	f := ir.NewFunction("f", ir.I64, ir.Param{Name: "x", Type: ir.I64})
	r := f.NewTemp(ir.I64)
	f.Emit(ir.Call(r, "twice", ir.Var("x", ir.I64)), ir.Return(r))

	var seen []ir.Value
	opts := Options{
		Externals: map[string]External{
			"twice": func(m *Machine, args []ir.Value) (ir.Value, error) {
				seen = append(seen, args...)
				return i64(2 * args[0].Int), nil
			},
		},
	}

	res, err := Run(context.Background(), program(f), "f", []int64{21}, opts)
	require.NoError(t, err)
	assert.Equal(t, i64(42), res)
	assert.Equal(t, []ir.Value{i64(21)}, seen)

	_, err = Run(context.Background(), program(f), "f", nil, opts)
	assert.ErrorContains(t, err, "f takes 1 arguments, got 0")

	_, err = Run(context.Background(), program(f), "g", nil, opts)
	assert.ErrorContains(t, err, "no function g")
}

var soundnessPrograms = []struct {
	name     string
	src      string
	expected int64
	output   string
}{
	{
		name: "loops with break and continue",
		src: `
functions:
  - name: main
    returns: int
    body:
      - decl: {name: sum, type: int, init: {int: 0}}
      - for:
          init: {decl: {name: i, type: int, init: {int: 0}}}
          cond: {op: "<", left: {ref: i}, right: {int: 10}}
          step: {op: "++", operand: {ref: i}}
          body:
            - if: {cond: {op: "==", left: {op: "%", left: {ref: i}, right: {int: 3}}, right: {int: 0}}, then: [{continue: true}]}
            - if: {cond: {op: ">", left: {ref: i}, right: {int: 7}}, then: [{break: true}]}
            - expr: {op: "+=", target: {ref: sum}, value: {op: "*", left: {ref: i}, right: {ref: i}}}
      - return: {value: {ref: sum}}
`,
		expected: 95,
	},
	{
		name: "recursion",
		src: `
functions:
  - name: fib
    returns: long
    params: [{name: n, type: long}]
    body:
      - if: {cond: {op: "<", left: {ref: n}, right: {long: 2}}, then: [{return: {value: {ref: n}}}]}
      - return: {value: {op: "+", left: {call: fib, args: [{op: "-", left: {ref: n}, right: {long: 1}}]}, right: {call: fib, args: [{op: "-", left: {ref: n}, right: {long: 2}}]}}}
  - name: main
    returns: int
    body:
      - return: {value: {cast: {call: fib, args: [{long: 20}]}, type: int}}
`,
		expected: 6765,
	},
	{
		name: "pointers and globals",
		src: `
globals:
  - {name: calls, type: int, init: {int: 0}}
functions:
  - name: swap
    returns: void
    params: [{name: p, type: "*int"}, {name: q, type: "*int"}]
    body:
      - decl: {name: t, type: int, init: {op: "*", operand: {ref: p}}}
      - expr: {target: {op: "*", operand: {ref: p}}, value: {op: "*", operand: {ref: q}}}
      - expr: {target: {op: "*", operand: {ref: q}}, value: {ref: t}}
      - expr: {op: "++", operand: {ref: calls}}
  - name: main
    returns: int
    body:
      - decl: {name: a, type: int, init: {int: 3}}
      - decl: {name: b, type: int, init: {int: 40}}
      - expr: {call: swap, args: [{op: "&", operand: {ref: a}}, {op: "&", operand: {ref: b}}]}
      - expr: {call: swap, args: [{op: "&", operand: {ref: a}}, {op: "&", operand: {ref: a}}]}
      - return: {value: {op: "-", left: {op: "*", left: {ref: a}, right: {int: 100}}, right: {op: "+", left: {ref: b}, right: {ref: calls}}}}
`,
		expected: 3995,
	},
	{
		name: "integer widths",
		src: `
functions:
  - name: main
    returns: long
    body:
      - decl: {name: x, type: int, init: {int: 2147483647}}
      - expr: {op: "++", operand: {ref: x}}
      - decl: {name: c, type: char, init: {int: 127}}
      - expr: {op: "++", operand: {ref: c}}
      - decl: {name: big, type: long, init: {op: "<<", left: {long: 1}, right: {int: 40}}}
      - return: {value: {op: "+", left: {op: "+", left: {ref: x}, right: {ref: c}}, right: {ref: big}}}
`,
		expected: 1101659111296,
	},
	{
		name: "floating point and output",
		src: `
functions:
  - name: main
    returns: int
    body:
      - decl: {name: d, type: double, init: {op: "/", left: {float: 1.0}, right: {float: 3.0}}}
      - decl: {name: n, type: int, init: {cast: {op: "*", left: {ref: d}, right: {float: 100.0}}, type: int}}
      - expr: {call: printf, args: [{string: "%.3f %d %s %c\n"}, {ref: d}, {ref: n}, {string: "ok"}, {char: "!"}]}
      - return: {value: {ref: n}}
`,
		expected: 33,
		output:   "0.333 33 ok !\n",
	},
	{
		name: "control flow",
		src: `
globals:
  - {name: hits, type: int}
functions:
  - name: touch
    returns: int
    params: [{name: v, type: int}]
    body:
      - expr: {op: "++", operand: {ref: hits}}
      - return: {value: {ref: v}}
  - name: classify
    returns: int
    params: [{name: k, type: int}]
    body:
      - decl: {name: r, type: int, init: {int: 0}}
      - switch:
          value: {ref: k}
          cases:
            - {value: {int: 1}, body: [{expr: {target: {ref: r}, value: {int: 10}}}, {break: true}]}
            - {value: {int: 2}, body: [{expr: {target: {ref: r}, value: {int: 20}}}]}
            - {value: {int: 3}, body: [{expr: {op: "+=", target: {ref: r}, value: {int: 5}}}, {break: true}]}
            - {default: true, body: [{expr: {target: {ref: r}, value: {int: -1}}}]}
      - return: {value: {ref: r}}
  - name: main
    returns: int
    body:
      - decl: {name: a, type: int, init: {op: "&&", left: {call: touch, args: [{int: 0}]}, right: {call: touch, args: [{int: 1}]}}}
      - decl: {name: b, type: int, init: {op: "||", left: {call: touch, args: [{int: 2}]}, right: {call: touch, args: [{int: 3}]}}}
      - decl: {name: i, type: int, init: {int: 0}}
      - do:
          body: [{expr: {op: "+=", target: {ref: i}, value: {int: 4}}}]
          cond: {op: "<", left: {ref: i}, right: {int: 10}}
      - decl: {name: s, type: int, init: {op: "+", left: {op: "+", left: {call: classify, args: [{int: 1}]}, right: {call: classify, args: [{int: 2}]}}, right: {op: "+", left: {call: classify, args: [{int: 3}]}, right: {call: classify, args: [{int: 9}]}}}}
      - return: {value: {op: "+", left: {op: "+", left: {op: "*", left: {ref: hits}, right: {int: 1000}}, right: {op: "*", left: {ref: a}, right: {int: 100}}}, right: {op: "+", left: {op: "*", left: {ref: b}, right: {int: 10}}, right: {op: "+", left: {ref: i}, right: {ref: s}}}}}
`,
		expected: 2061,
	},
	{
		name: "operands read left to right",
		src: `
globals:
  - {name: g, type: int, init: {int: 1}}
functions:
  - name: bump
    returns: int
    body:
      - expr: {target: {ref: g}, value: {int: 100}}
      - return: {value: {int: 0}}
  - name: pair
    returns: int
    params: [{name: a, type: int}, {name: b, type: int}]
    body:
      - return: {value: {op: "-", left: {ref: a}, right: {ref: b}}}
  - name: main
    returns: int
    body:
      - decl: {name: x, type: int, init: {op: "+", left: {ref: g}, right: {call: bump}}}
      - expr: {target: {ref: g}, value: {int: 5}}
      - decl: {name: y, type: int, init: {call: pair, args: [{ref: g}, {call: bump}]}}
      - expr: {target: {ref: g}, value: {int: 7}}
      - expr: {op: "+=", target: {ref: g}, value: {call: bump}}
      - return: {value: {op: "+", left: {op: "+", left: {op: "*", left: {ref: x}, right: {int: 100}}, right: {op: "*", left: {ref: y}, right: {int: 10}}}, right: {ref: g}}}
`,
		expected: 157,
	},
	{
		name: "conversion to bool",
		src: `
functions:
  - name: main
    returns: int
    body:
      - decl: {name: b, type: bool, init: {int: 256}}
      - decl: {name: big, type: long, init: {op: "<<", left: {long: 1}, right: {int: 32}}}
      - decl: {name: c, type: bool, init: {cast: {ref: big}, type: bool}}
      - decl: {name: h, type: double, init: {float: 0.5}}
      - decl: {name: d, type: bool, init: {ref: h}}
      - return:
          value:
            op: "+"
            left: {op: "+", left: {cond: {ref: b}, then: {int: 1}, else: {int: 0}}, right: {cond: {ref: c}, then: {int: 10}, else: {int: 0}}}
            right: {cond: {ref: d}, then: {int: 100}, else: {int: 0}}
`,
		expected: 111,
	},
}

func TestOptimizationSoundness(t *testing.T) {
	for _, tt := range soundnessPrograms {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ast.Decode(strings.NewReader(tt.src), "test.yaml")
			require.NoError(t, err)

			irp, err := ir.Generate(context.Background(), tree)
			require.NoError(t, err)

			for level := 0; level <= 3; level++ {
				optimized, err := opt.Optimize(context.Background(), irp, opt.Options{Level: level, Verify: true})
				require.NoError(t, err)

				var out bytes.Buffer
				res, err := Run(context.Background(), optimized, "main", nil, Options{Stdout: &out})
				require.NoError(t, err, "level %d", level)

				assert.Equal(t, tt.expected, res.Int, "level %d", level)
				assert.Equal(t, tt.output, out.String(), "level %d", level)
			}
		})
	}
}
