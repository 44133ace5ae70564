package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	x := Var("x", I32)
	t1 := Temp(1, I32)
	t2 := Temp(2, I32)

	tests := []struct {
		name   string
		locals []Local
		instrs []Instruction
		index  int
		errMsg string
	}{
		{
			name: "valid loop",
			locals: []Local{{Name: "x", Type: I32}},
			instrs: []Instruction{
				Assign(x, ConstInt(0, I32)),
				Label("top"),
				Binary(OpAdd, t1, x, ConstInt(1, I32)),
				Assign(x, t1),
				Binary(OpLt, t2, x, ConstInt(10, I32)),
				IfTrue(t2, "top"),
				Return(x),
			},
			index: -2,
		},
		{
			name: "infinite loop without reachable return",
			instrs: []Instruction{
				Label("spin"),
				Goto("spin"),
				Return(Value{}),
			},
			index: -2,
		},
		{
			name:   "empty function",
			index:  -1,
			errMsg: "function has no instructions",
		},
		{
			name: "malformed instruction",
			instrs: []Instruction{
				{Op: OpAdd, Result: t1, Arg1: ConstInt(1, I32)},
				Return(t1),
			},
			index:  0,
			errMsg: "ADD needs two operands",
		},
		{
			name: "address of constant",
			instrs: []Instruction{
				{Op: OpAddr, Result: Temp(1, Ptr), Arg1: ConstInt(1, I32)},
				Return(Value{}),
			},
			index:  0,
			errMsg: "cannot take address of 1",
		},
		{
			name: "duplicate label",
			instrs: []Instruction{
				Label("a"),
				Label("a"),
				Return(Value{}),
			},
			index:  1,
			errMsg: "label a already defined at 0",
		},
		{
			name: "undefined label",
			instrs: []Instruction{
				Goto("nowhere"),
				Return(Value{}),
			},
			index:  0,
			errMsg: "undefined label nowhere",
		},
		{
			name: "falls off the end",
			instrs: []Instruction{
				Return(Value{}),
				Label("end"),
			},
			index:  1,
			errMsg: "control falls off the end of the function",
		},
		{
			name: "no return",
			instrs: []Instruction{
				Label("spin"),
				Goto("spin"),
			},
			index:  -1,
			errMsg: "function has no RETURN",
		},
		{
			name: "temp used before definition",
			instrs: []Instruction{
				Assign(t1, t2),
				Return(t1),
			},
			index:  0,
			errMsg: "t2 may be used before it is defined",
		},
		{
			name:   "local defined on one path only",
			locals: []Local{{Name: "x", Type: I32}},
			instrs: []Instruction{
				IfFalse(Var("p", I32), "skip"),
				Assign(x, ConstInt(1, I32)),
				Label("skip"),
				Return(x),
			},
			index:  3,
			errMsg: "x may be used before it is defined",
		},
		{
			name: "undeclared variable",
			instrs: []Instruction{
				Return(Var("ghost", I32)),
			},
			index:  0,
			errMsg: "undeclared variable ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFunction("f", I32, Param{Name: "p", Type: I32})
			f.Locals = tt.locals
			f.Emit(tt.instrs...)

			err := Validate(f, "test")
			if tt.index == -2 {
				require.NoError(t, err)
				return
			}

			var invErr *InvariantError
			require.ErrorAs(t, err, &invErr)
			assert.Equal(t, "f", invErr.Function)
			assert.Equal(t, "test", invErr.Pass)
			assert.Equal(t, tt.index, invErr.Index)
			assert.Contains(t, invErr.Message, tt.errMsg)
		})
	}
}

func TestValidateAddressedVariableNeedsNoDefinition(t *testing.T) {
	f := NewFunction("f", Void)
	f.DeclareLocal("buf", I64)
	p := Temp(1, Ptr)
	f.Emit(
		Addr(p, Var("buf", I64)),
		Store(p, ConstInt(7, I64)),
		Return(Value{}),
	)

	assert.NoError(t, Validate(f, "test"))
}

func TestSuccessors(t *testing.T) {
	f := NewFunction("f", Void)
	f.Emit(
		IfFalse(ConstInt(1, I32), "end"),
		Goto("end"),
		Label("end"),
		Return(Value{}),
	)
	labels := LabelIndex(f)

	assert.Equal(t, map[string]int{"end": 2}, labels)
	assert.Equal(t, []int{1, 2}, Successors(f, labels, 0))
	assert.Equal(t, []int{2}, Successors(f, labels, 1))
	assert.Equal(t, []int{3}, Successors(f, labels, 2))
	assert.Nil(t, Successors(f, labels, 3))
}
