package ir

import "math"

// EvalBinary computes "a op b" for constant operands with the result typed as t.
// It reports false when the result is not defined on the target: division by
// zero, the overflowing MIN / -1 and shifts by a negative or too large count.
func EvalBinary(op Opcode, t Type, a, b Value) (Value, bool) {
	if a.Kind != b.Kind || !a.IsConst() {
		return Value{}, false
	}

	if op.IsComparison() {
		return compare(op, a, b)
	}

	if a.Kind == FloatConst {
		if t != F64 {
			return Value{}, false
		}
		x, y := a.Float, b.Float
		switch op {
		case OpAdd:
			return ConstFloat(x + y), true
		case OpSub:
			return ConstFloat(x - y), true
		case OpMul:
			return ConstFloat(x * y), true
		case OpDiv:
			if y == 0 {
				return Value{}, false
			}
			return ConstFloat(x / y), true
		}
		return Value{}, false
	}

	if !t.IsInteger() {
		return Value{}, false
	}

	x, y := a.Int, b.Int
	var r int64

	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpDiv, OpMod:
		if y == 0 {
			return Value{}, false
		}
		if y == -1 && x == minInt(t) {
			return Value{}, false
		}
		if op == OpDiv {
			r = x / y
		} else {
			r = x % y
		}
	case OpAnd:
		r = x & y
	case OpOr:
		r = x | y
	case OpXor:
		r = x ^ y
	case OpShl, OpShr:
		if y < 0 || y >= int64(t.Size()*8) {
			return Value{}, false
		}
		if op == OpShl {
			r = x << uint(y)
		} else {
			r = Wrap(x, t) >> uint(y)
		}
	default:
		return Value{}, false
	}

	return ConstInt(Wrap(r, t), t), true
}

func compare(op Opcode, a, b Value) (Value, bool) {
	var lt, eq bool

	if a.Kind == FloatConst {
		x, y := a.Float, b.Float
		// Every ordered comparison with NaN is false.
		if math.IsNaN(x) || math.IsNaN(y) {
			return ConstInt(b2i(op == OpNe), I32), true
		}
		lt, eq = x < y, x == y
	} else if a.Type == Ptr {
		x, y := uint64(a.Int), uint64(b.Int)
		lt, eq = x < y, x == y
	} else {
		lt, eq = a.Int < b.Int, a.Int == b.Int
	}

	var r bool
	switch op {
	case OpEq:
		r = eq
	case OpNe:
		r = !eq
	case OpLt:
		r = lt
	case OpLe:
		r = lt || eq
	case OpGt:
		r = !lt && !eq
	case OpGe:
		r = !lt
	}

	return ConstInt(b2i(r), I32), true
}

// EvalUnary computes NEG, NOT and LNOT of a constant.
func EvalUnary(op Opcode, t Type, a Value) (Value, bool) {
	switch a.Kind {
	case FloatConst:
		switch op {
		case OpNeg:
			return ConstFloat(-a.Float), true
		case OpLNot:
			return ConstInt(b2i(a.Float == 0), t), true
		}
	case IntConst:
		switch op {
		case OpNeg:
			return ConstInt(Wrap(-a.Int, t), t), true
		case OpNot:
			return ConstInt(Wrap(^a.Int, t), t), true
		case OpLNot:
			return ConstInt(b2i(a.Int == 0), t), true
		}
	}
	return Value{}, false
}

// EvalCast converts a constant to type t the way CAST does at run time.
func EvalCast(t Type, a Value) (Value, bool) {
	switch {
	case a.Kind == IntConst && t.IsFloat():
		return ConstFloat(float64(a.Int)), true
	case a.Kind == IntConst && t.IsInteger():
		return ConstInt(Wrap(a.Int, t), t), true
	case a.Kind == FloatConst && t.IsFloat():
		return a, true
	case a.Kind == FloatConst && t.IsInteger():
		f := math.Trunc(a.Float)
		// Out of range conversions produce the hardware's indefinite value; leave them to run time.
		if math.IsNaN(f) || f < -(1<<63) || f >= 1<<63 {
			return Value{}, false
		}
		return ConstInt(Wrap(int64(f), t), t), true
	}
	return Value{}, false
}

// Truth reports whether a constant is non-zero. Addresses of strings and functions are always true.
func Truth(v Value) (bool, bool) {
	switch v.Kind {
	case IntConst:
		return v.Int != 0, true
	case FloatConst:
		return v.Float != 0, true
	case StringRef, FuncRef:
		return true, true
	}
	return false, false
}

func minInt(t Type) int64 {
	switch t {
	case I8:
		return math.MinInt8
	case I32:
		return math.MinInt32
	}
	return math.MinInt64
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
