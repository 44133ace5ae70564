package ir

import (
	"context"
	"fmt"
	"strings"

	"tlog.app/go/tlog"

	"github.com/iley/tacc/internal/ast"
)

// DefaultMaxExprDepth bounds how deeply expressions may nest before the generator gives up.
const DefaultMaxExprDepth = 2048

type Generator struct {
	MaxExprDepth int

	prog    *Program
	fn      *Function
	funcs   map[string]*ast.Function
	globals map[string]Type

	// Symbol -> unique IR variable name within the current function.
	names map[ast.Symbol]string
	taken map[string]bool

	breakLabels    []string
	continueLabels []string

	hidden int
	depth  int
	pos    ast.Location
	// Source return type of the current function.
	ret ast.Type
}

func NewGenerator() *Generator {
	return &Generator{MaxExprDepth: DefaultMaxExprDepth}
}

// Generate lowers a typed program into IR.
func Generate(ctx context.Context, node *ast.Program) (irp *Program, err error) {
	tr := tlog.SpawnFromContext(ctx, "ir: generate", "functions", len(node.Functions), "globals", len(node.Globals))
	defer tr.Finish("err", &err)

	irp, err = NewGenerator().Generate(node)
	if err != nil {
		return nil, err
	}

	tr.Printw("generated", "instructions", irp.InstrCount(), "strings", len(irp.Strings))

	return irp, nil
}

func (g *Generator) Generate(node *ast.Program) (*Program, error) {
	g.prog = &Program{}
	g.funcs = make(map[string]*ast.Function)
	g.globals = make(map[string]Type)

	for i := range node.Functions {
		g.funcs[node.Functions[i].Name] = &node.Functions[i]
	}

	for i := range node.Globals {
		global, err := g.generateGlobal(&node.Globals[i])
		if err != nil {
			return nil, err
		}
		g.globals[global.Name] = global.Type
		g.prog.Globals = append(g.prog.Globals, global)
	}

	for i := range node.Functions {
		function := &node.Functions[i]
		// Prototypes only describe functions defined elsewhere.
		if function.Body == nil {
			continue
		}
		irFunc, err := g.generateFunction(function)
		if err != nil {
			return nil, err
		}
		g.prog.Functions = append(g.prog.Functions, irFunc)
	}

	return g.prog, nil
}

func (g *Generator) errorf(pos ast.Location, format string, args ...any) error {
	return &GeneratorError{Message: fmt.Sprintf(format, args...), Pos: pos}
}

func (g *Generator) generateGlobal(node *ast.GlobalDeclaration) (Global, error) {
	global := Global{Name: node.Name, Type: TypeOf(node.Type)}
	if global.Type == Void {
		return global, g.errorf(node.Loc, "global %s has no storage type", node.Name)
	}
	if node.Initializer == nil {
		return global, nil
	}

	lit, ok := node.Initializer.(*ast.Literal)
	if !ok {
		return global, g.errorf(node.Loc, "initializer of global %s is not a constant", node.Name)
	}

	value := g.literal(lit)
	if isBool(node.Type) && !isBool(lit.Type) {
		global.Init = g.truth(value)
		return global, nil
	}
	if value.Kind == IntConst && global.Type.IsFloat() {
		value = ConstFloat(float64(value.Int))
	} else if value.Kind == FloatConst && global.Type.IsInteger() {
		value = ConstInt(Wrap(int64(value.Float), global.Type), global.Type)
	} else if value.Kind == IntConst {
		value = ConstInt(Wrap(value.Int, global.Type), global.Type)
	}
	global.Init = value

	return global, nil
}

func (g *Generator) generateFunction(node *ast.Function) (*Function, error) {
	g.fn = NewFunction(node.Name, TypeOf(node.ReturnType))
	g.ret = node.ReturnType
	g.names = make(map[ast.Symbol]string)
	g.taken = make(map[string]bool)
	g.breakLabels = nil
	g.continueLabels = nil
	g.hidden = 0
	g.pos = node.Loc

	for _, param := range node.Params {
		g.fn.Params = append(g.fn.Params, Param{Name: param.Name, Type: TypeOf(param.Type)})
		g.bind(param.Symbol, param.Name)
		g.taken[param.Name] = true
	}

	if err := g.generateBlock(node.Body); err != nil {
		return nil, err
	}

	// Add implicit return in case the function doesn't end with a return.
	// We assume that presence of return with the right type is checked upstream.
	if n := len(g.fn.Instrs); n == 0 || g.fn.Instrs[n-1].Op != OpReturn {
		g.pos = node.Loc
		g.emit(Return(Value{}))
	}

	return g.fn, nil
}

func (g *Generator) emit(ins ...Instruction) {
	for _, in := range ins {
		g.fn.Emit(in.At(g.pos))
	}
}

func (g *Generator) bind(sym ast.Symbol, name string) {
	g.names[sym] = name
	// References built without symbol IDs resolve to the latest declaration of the name.
	g.names[ast.Symbol{Name: sym.Name, Scope: sym.Scope}] = name
}

// declare registers a local, renaming it if an outer declaration already took the name.
func (g *Generator) declare(sym ast.Symbol, name string, t Type) Value {
	unique := name
	for i := 1; g.taken[unique]; i++ {
		unique = fmt.Sprintf("%s.%d", name, i)
	}
	g.taken[unique] = true
	g.bind(sym, unique)
	return g.fn.DeclareLocal(unique, t)
}

// hiddenVar declares a compiler-owned variable for values merged from several paths.
func (g *Generator) hiddenVar(kind string, t Type) Value {
	g.hidden++
	name := fmt.Sprintf("$%s%d", kind, g.hidden)
	g.taken[name] = true
	return g.fn.DeclareLocal(name, t)
}

func (g *Generator) generateBlock(block *ast.Block) error {
	for _, stmt := range block.Statements {
		if err := g.generateStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) generateStatement(node ast.Statement) error {
	g.pos = node.GetLocation()

	if decl, ok := node.(*ast.VariableDeclaration); ok {
		t := TypeOf(decl.Type)
		if t == Void {
			return g.errorf(decl.Loc, "variable %s has no storage type", decl.Name)
		}
		init := zeroValue(t)
		if decl.Initializer != nil {
			v, err := g.value(decl.Initializer)
			if err != nil {
				return err
			}
			init = g.convertTo(v, decl.Initializer.GetType(), decl.Type)
		}
		// The initializer is evaluated before the new name becomes visible.
		target := g.declare(decl.Symbol, decl.Name, t)
		g.pos = decl.Loc
		g.emit(Assign(target, init))
	} else if stmt, ok := node.(*ast.ExpressionStatement); ok {
		// We ignore the result of the expression.
		_, err := g.generateExpression(stmt.Expression)
		return err
	} else if ret, ok := node.(*ast.ReturnStatement); ok {
		return g.generateReturn(ret)
	} else if stmt, ok := node.(*ast.IfStatement); ok {
		return g.generateIf(stmt)
	} else if stmt, ok := node.(*ast.WhileStatement); ok {
		return g.generateWhile(stmt)
	} else if stmt, ok := node.(*ast.DoWhileStatement); ok {
		return g.generateDoWhile(stmt)
	} else if stmt, ok := node.(*ast.ForStatement); ok {
		return g.generateFor(stmt)
	} else if stmt, ok := node.(*ast.SwitchStatement); ok {
		return g.generateSwitch(stmt)
	} else if stmt, ok := node.(*ast.BreakStatement); ok {
		if len(g.breakLabels) == 0 {
			return g.errorf(stmt.Loc, "break outside of a loop or switch")
		}
		g.emit(Goto(g.breakLabels[len(g.breakLabels)-1]))
	} else if stmt, ok := node.(*ast.ContinueStatement); ok {
		if len(g.continueLabels) == 0 {
			return g.errorf(stmt.Loc, "continue outside of a loop")
		}
		g.emit(Goto(g.continueLabels[len(g.continueLabels)-1]))
	} else if stmt, ok := node.(*ast.BlockStatement); ok {
		return g.generateBlock(&stmt.Block)
	} else {
		return g.errorf(node.GetLocation(), "unsupported statement %T", node)
	}
	return nil
}

func (g *Generator) generateReturn(ret *ast.ReturnStatement) error {
	if ret.Value == nil {
		g.emit(Return(Value{}))
		return nil
	}

	v, err := g.generateExpression(ret.Value)
	if err != nil {
		return err
	}
	g.pos = ret.Loc
	if g.fn.ReturnType == Void {
		// Evaluated for side effects only.
		g.emit(Return(Value{}))
		return nil
	}
	g.emit(Return(g.convertTo(v, ret.Value.GetType(), g.ret)))
	return nil
}

func (g *Generator) pushLoop(breakLabel, continueLabel string) {
	g.breakLabels = append(g.breakLabels, breakLabel)
	g.continueLabels = append(g.continueLabels, continueLabel)
}

func (g *Generator) popLoop() {
	g.breakLabels = g.breakLabels[:len(g.breakLabels)-1]
	g.continueLabels = g.continueLabels[:len(g.continueLabels)-1]
}

// generateIf lowers to: if_false c goto else; then; goto end; else: else-part; end:
func (g *Generator) generateIf(stmt *ast.IfStatement) error {
	cond, err := g.generateCondition(stmt.Condition)
	if err != nil {
		return err
	}

	elseLabel := g.fn.NewLabel("else")
	endLabel := g.fn.NewLabel("endif")

	g.pos = stmt.Loc
	g.emit(IfFalse(cond, elseLabel))
	if err := g.generateBlock(&stmt.ThenBlock); err != nil {
		return err
	}
	g.pos = stmt.Loc
	g.emit(Goto(endLabel), Label(elseLabel))
	if stmt.ElseBlock != nil {
		if err := g.generateBlock(stmt.ElseBlock); err != nil {
			return err
		}
	}
	g.pos = stmt.Loc
	g.emit(Label(endLabel))

	return nil
}

func (g *Generator) generateWhile(stmt *ast.WhileStatement) error {
	testLabel := g.fn.NewLabel("while")
	bodyLabel := g.fn.NewLabel("body")
	exitLabel := g.fn.NewLabel("endwhile")

	g.pos = stmt.Loc
	g.emit(Label(testLabel))
	cond, err := g.generateCondition(stmt.Condition)
	if err != nil {
		return err
	}
	g.pos = stmt.Loc
	g.emit(IfFalse(cond, exitLabel), Label(bodyLabel))

	g.pushLoop(exitLabel, testLabel)
	err = g.generateBlock(&stmt.Body)
	g.popLoop()
	if err != nil {
		return err
	}

	g.pos = stmt.Loc
	g.emit(Goto(testLabel), Label(exitLabel))
	return nil
}

func (g *Generator) generateDoWhile(stmt *ast.DoWhileStatement) error {
	bodyLabel := g.fn.NewLabel("do")
	testLabel := g.fn.NewLabel("dotest")
	exitLabel := g.fn.NewLabel("enddo")

	g.pos = stmt.Loc
	g.emit(Label(bodyLabel))

	g.pushLoop(exitLabel, testLabel)
	err := g.generateBlock(&stmt.Body)
	g.popLoop()
	if err != nil {
		return err
	}

	g.pos = stmt.Loc
	g.emit(Label(testLabel))
	cond, err := g.generateCondition(stmt.Condition)
	if err != nil {
		return err
	}
	g.pos = stmt.Loc
	g.emit(IfTrue(cond, bodyLabel), Label(exitLabel))
	return nil
}

func (g *Generator) generateFor(stmt *ast.ForStatement) error {
	if stmt.Init != nil {
		if err := g.generateStatement(stmt.Init); err != nil {
			return err
		}
	}

	testLabel := g.fn.NewLabel("for")
	bodyLabel := g.fn.NewLabel("forbody")
	stepLabel := g.fn.NewLabel("forstep")
	exitLabel := g.fn.NewLabel("endfor")

	g.pos = stmt.Loc
	g.emit(Label(testLabel))
	if stmt.Condition != nil {
		cond, err := g.generateCondition(stmt.Condition)
		if err != nil {
			return err
		}
		g.pos = stmt.Loc
		g.emit(IfFalse(cond, exitLabel))
	}
	g.emit(Label(bodyLabel))

	g.pushLoop(exitLabel, stepLabel)
	err := g.generateBlock(&stmt.Body)
	g.popLoop()
	if err != nil {
		return err
	}

	g.pos = stmt.Loc
	g.emit(Label(stepLabel))
	if stmt.Step != nil {
		if _, err := g.generateExpression(stmt.Step); err != nil {
			return err
		}
	}
	g.pos = stmt.Loc
	g.emit(Goto(testLabel), Label(exitLabel))
	return nil
}

// generateSwitch compares the scrutinee against every case in order, then falls
// through the case bodies the way C does.
func (g *Generator) generateSwitch(stmt *ast.SwitchStatement) error {
	value, err := g.value(stmt.Value)
	if err != nil {
		return err
	}

	endLabel := g.fn.NewLabel("endswitch")
	defaultLabel := endLabel
	caseLabels := make([]string, len(stmt.Cases))

	for i, c := range stmt.Cases {
		if c.Value == nil {
			caseLabels[i] = g.fn.NewLabel("default")
			defaultLabel = caseLabels[i]
			continue
		}
		caseLabels[i] = g.fn.NewLabel("case")

		cv, err := g.value(c.Value)
		if err != nil {
			return err
		}
		ct := commonType(value.Type, cv.Type)
		g.pos = c.Loc
		lhs, rhs := g.convert(value, ct), g.convert(cv, ct)
		test := g.fn.NewTemp(I32)
		g.emit(Binary(OpEq, test, lhs, rhs), IfTrue(test, caseLabels[i]))
	}
	g.pos = stmt.Loc
	g.emit(Goto(defaultLabel))

	g.breakLabels = append(g.breakLabels, endLabel)
	defer func() { g.breakLabels = g.breakLabels[:len(g.breakLabels)-1] }()

	for i, c := range stmt.Cases {
		g.pos = c.Loc
		g.emit(Label(caseLabels[i]))
		for _, s := range c.Body {
			if err := g.generateStatement(s); err != nil {
				return err
			}
		}
	}
	g.pos = stmt.Loc
	g.emit(Label(endLabel))

	return nil
}

// generateCondition evaluates an expression for a branch; floating conditions are compared against zero.
func (g *Generator) generateCondition(node ast.Expression) (Value, error) {
	v, err := g.value(node)
	if err != nil {
		return Value{}, err
	}
	if v.Type.IsFloat() {
		t := g.fn.NewTemp(I32)
		g.emit(Binary(OpNe, t, v, ConstFloat(0)))
		return t, nil
	}
	return v, nil
}

// generateExpression lowers an expression and returns the value holding its result.
func (g *Generator) generateExpression(node ast.Expression) (Value, error) {
	g.depth++
	defer func() { g.depth-- }()

	if g.MaxExprDepth > 0 && g.depth > g.MaxExprDepth {
		return Value{}, g.errorf(node.GetLocation(), "expression nesting deeper than %d levels", g.MaxExprDepth)
	}

	g.pos = node.GetLocation()

	if literal, ok := node.(*ast.Literal); ok {
		return g.literal(literal), nil
	} else if ref, ok := node.(*ast.VariableReference); ok {
		return g.variable(ref)
	} else if binOp, ok := node.(*ast.BinaryOperation); ok {
		return g.generateBinaryOperation(binOp)
	} else if op, ok := node.(*ast.UnaryOperation); ok {
		return g.generateUnaryOperation(op)
	} else if op, ok := node.(*ast.IncDec); ok {
		return g.generateIncDec(op)
	} else if assignment, ok := node.(*ast.Assignment); ok {
		return g.generateAssignment(assignment)
	} else if call, ok := node.(*ast.FunctionCall); ok {
		return g.generateFunctionCall(call)
	} else if cond, ok := node.(*ast.Conditional); ok {
		return g.generateConditional(cond)
	} else if cast, ok := node.(*ast.Cast); ok {
		v, err := g.generateExpression(cast.Value)
		if err != nil {
			return Value{}, err
		}
		g.pos = cast.Loc
		return g.convertTo(v, cast.Value.GetType(), cast.Type), nil
	} else if index, ok := node.(*ast.IndexExpression); ok {
		addr, err := g.elementAddress(index)
		if err != nil {
			return Value{}, err
		}
		t := g.fn.NewTemp(TypeOf(index.Type))
		g.emit(Load(t, addr))
		return t, nil
	} else if fa, ok := node.(*ast.FieldAccess); ok {
		return Value{}, g.errorf(fa.Loc, "member access .%s is not supported", fa.FieldName)
	}

	return Value{}, g.errorf(node.GetLocation(), "unsupported expression %T", node)
}

func (g *Generator) literal(literal *ast.Literal) Value {
	t := TypeOf(literal.Type)
	switch {
	case literal.IntValue != nil:
		if t.IsFloat() {
			return ConstFloat(float64(*literal.IntValue))
		}
		if t == Void {
			t = I32
		}
		return ConstInt(Wrap(*literal.IntValue, t), t)
	case literal.FloatValue != nil:
		return ConstFloat(*literal.FloatValue)
	case literal.BoolValue != nil:
		if *literal.BoolValue {
			return ConstInt(1, I8)
		}
		return ConstInt(0, I8)
	case literal.StringValue != nil:
		return Str(g.prog.InternString(*literal.StringValue))
	}
	// Null pointer.
	return ConstInt(0, Ptr)
}

func (g *Generator) variable(ref *ast.VariableReference) (Value, error) {
	t := TypeOf(ref.Type)
	if ref.Symbol.Scope == ast.ScopeGlobal {
		if _, ok := g.globals[ref.Name]; !ok {
			return Value{}, g.errorf(ref.Loc, "undefined global %s", ref.Name)
		}
		return GlobalRef(ref.Name, t), nil
	}

	name, ok := g.names[ref.Symbol]
	if !ok {
		name, ok = g.names[ast.Symbol{Name: ref.Symbol.Name, Scope: ref.Symbol.Scope}]
	}
	if !ok {
		return Value{}, g.errorf(ref.Loc, "undefined variable %s", ref.Name)
	}
	return Var(name, t), nil
}

func (g *Generator) generateBinaryOperation(node *ast.BinaryOperation) (Value, error) {
	if node.Operator == "&&" || node.Operator == "||" {
		return g.generateShortCircuit(node)
	}

	left, err := g.value(node.Left)
	if err != nil {
		return Value{}, err
	}
	if hasSideEffects(node.Right) {
		left = g.snapshot(left)
	}
	right, err := g.value(node.Right)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc

	return g.arith(node.Loc, node.Operator, left, node.Left.GetType(), right, node.Right.GetType(), TypeOf(node.Type))
}

var binaryOps = map[string]Opcode{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"%":  OpMod,
	"&":  OpAnd,
	"|":  OpOr,
	"^":  OpXor,
	"<<": OpShl,
	">>": OpShr,
	"==": OpEq,
	"!=": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

// arith emits a binary operation, inserting conversions and pointer scaling as needed.
func (g *Generator) arith(pos ast.Location, operator string, left Value, leftType ast.Type, right Value, rightType ast.Type, resultType Type) (Value, error) {
	op, ok := binaryOps[operator]
	if !ok {
		return Value{}, g.errorf(pos, "unsupported binary operator %s", operator)
	}

	if op.IsComparison() {
		ct := commonType(left.Type, right.Type)
		left, right = g.convert(left, ct), g.convert(right, ct)
		t := g.fn.NewTemp(I32)
		g.emit(Binary(op, t, left, right))
		return t, nil
	}

	if op == OpAdd || op == OpSub {
		lelem, lptr := ast.ElementType(leftType)
		relem, rptr := ast.ElementType(rightType)
		switch {
		case lptr && rptr && op == OpSub:
			left, right = g.convert(left, I64), g.convert(right, I64)
			diff := g.fn.NewTemp(I64)
			g.emit(Binary(OpSub, diff, left, right))
			size := int64(max(ast.SizeOf(lelem), 1))
			if size == 1 {
				return g.convert(diff, resultType), nil
			}
			t := g.fn.NewTemp(I64)
			g.emit(Binary(OpDiv, t, diff, ConstInt(size, I64)))
			return g.convert(t, resultType), nil
		case lptr && !rptr:
			return g.pointerOffset(op, left, lelem, right), nil
		case rptr && !lptr && op == OpAdd:
			return g.pointerOffset(op, right, relem, left), nil
		}
	}

	if resultType.IsFloat() {
		switch op {
		case OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr:
			return Value{}, g.errorf(pos, "operator %s is not defined on floating point values", operator)
		}
	}
	if resultType == Void {
		return Value{}, g.errorf(pos, "operator %s has no value type", operator)
	}

	left, right = g.convert(left, resultType), g.convert(right, resultType)
	t := g.fn.NewTemp(resultType)
	g.emit(Binary(op, t, left, right))
	return t, nil
}

func (g *Generator) pointerOffset(op Opcode, ptr Value, elem ast.Type, offset Value) Value {
	offset = g.convert(offset, I64)
	if size := int64(ast.SizeOf(elem)); size > 1 {
		scaled := g.fn.NewTemp(I64)
		g.emit(Binary(OpMul, scaled, offset, ConstInt(size, I64)))
		offset = scaled
	}
	ptr = g.convert(ptr, Ptr)
	t := g.fn.NewTemp(Ptr)
	g.emit(Binary(op, t, ptr, offset))
	return t
}

// generateShortCircuit lowers && and || to branches that write a compiler variable.
func (g *Generator) generateShortCircuit(node *ast.BinaryOperation) (Value, error) {
	isAnd := node.Operator == "&&"

	kind := "or"
	if isAnd {
		kind = "and"
	}
	result := g.hiddenVar(kind, I32)
	shortLabel := g.fn.NewLabel(kind + "_short")
	endLabel := g.fn.NewLabel(kind + "_end")

	branch := IfTrue
	if isAnd {
		branch = IfFalse
	}

	left, err := g.generateCondition(node.Left)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc
	g.emit(branch(left, shortLabel))

	right, err := g.generateCondition(node.Right)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc

	// Both operands evaluated: the result is 1 for && and 0 for ||.
	full, short := int64(0), int64(1)
	if isAnd {
		full, short = 1, 0
	}
	g.emit(
		branch(right, shortLabel),
		Assign(result, ConstInt(full, I32)),
		Goto(endLabel),
		Label(shortLabel),
		Assign(result, ConstInt(short, I32)),
		Label(endLabel),
	)

	return result, nil
}

func (g *Generator) generateConditional(node *ast.Conditional) (Value, error) {
	t := TypeOf(node.Type)
	result := g.hiddenVar("cond", t)
	elseLabel := g.fn.NewLabel("cond_else")
	endLabel := g.fn.NewLabel("cond_end")

	cond, err := g.generateCondition(node.Condition)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc
	g.emit(IfFalse(cond, elseLabel))

	then, err := g.branchValue(node.Then, t)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc
	if t != Void {
		g.emit(Assign(result, g.convertTo(then, node.Then.GetType(), node.Type)))
	}
	g.emit(Goto(endLabel), Label(elseLabel))

	els, err := g.branchValue(node.Else, t)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc
	if t != Void {
		g.emit(Assign(result, g.convertTo(els, node.Else.GetType(), node.Type)))
	}
	g.emit(Label(endLabel))

	if t == Void {
		return Value{}, nil
	}
	return result, nil
}

// branchValue lowers one arm of a conditional; arms of a void conditional may be void.
func (g *Generator) branchValue(node ast.Expression, t Type) (Value, error) {
	if t == Void {
		return g.generateExpression(node)
	}
	return g.value(node)
}

func (g *Generator) generateUnaryOperation(node *ast.UnaryOperation) (Value, error) {
	if node.Operator == "&" {
		return g.addressOf(node.Operand)
	}

	operand, err := g.value(node.Operand)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc
	t := TypeOf(node.Type)

	switch node.Operator {
	case "+":
		return g.convert(operand, t), nil
	case "-":
		result := g.fn.NewTemp(t)
		g.emit(Unary(OpNeg, result, g.convert(operand, t)))
		return result, nil
	case "~":
		if !t.IsInteger() {
			return Value{}, g.errorf(node.Loc, "operator ~ needs an integer operand")
		}
		result := g.fn.NewTemp(t)
		g.emit(Unary(OpNot, result, g.convert(operand, t)))
		return result, nil
	case "!":
		result := g.fn.NewTemp(I32)
		if operand.Type.IsFloat() {
			g.emit(Binary(OpEq, result, operand, ConstFloat(0)))
		} else {
			g.emit(Unary(OpLNot, result, operand))
		}
		return result, nil
	case "*":
		result := g.fn.NewTemp(t)
		g.emit(Load(result, operand))
		return result, nil
	}

	return Value{}, g.errorf(node.Loc, "unsupported unary operator %s", node.Operator)
}

// lvalue is an assignable place: either a named location or memory behind an address.
type lvalue struct {
	loc  Value
	addr Value
	typ  Type
}

func (g *Generator) lvalue(node ast.Expression) (lvalue, error) {
	if ref, ok := node.(*ast.VariableReference); ok {
		v, err := g.variable(ref)
		return lvalue{loc: v, typ: v.Type}, err
	} else if op, ok := node.(*ast.UnaryOperation); ok && op.Operator == "*" {
		addr, err := g.value(op.Operand)
		return lvalue{addr: addr, typ: TypeOf(op.Type)}, err
	} else if index, ok := node.(*ast.IndexExpression); ok {
		addr, err := g.elementAddress(index)
		return lvalue{addr: addr, typ: TypeOf(index.Type)}, err
	}
	return lvalue{}, g.errorf(node.GetLocation(), "expression %s is not assignable", node)
}

func (g *Generator) load(lv lvalue) Value {
	if lv.addr.IsNone() {
		return lv.loc
	}
	t := g.fn.NewTemp(lv.typ)
	g.emit(Load(t, lv.addr))
	return t
}

func (g *Generator) store(lv lvalue, v Value) {
	v = g.convert(v, lv.typ)
	if lv.addr.IsNone() {
		g.emit(Assign(lv.loc, v))
	} else {
		g.emit(Store(lv.addr, v))
	}
}

func (g *Generator) addressOf(node ast.Expression) (Value, error) {
	if ref, ok := node.(*ast.VariableReference); ok {
		v, err := g.variable(ref)
		if err != nil {
			return Value{}, err
		}
		t := g.fn.NewTemp(Ptr)
		g.emit(Addr(t, v))
		return t, nil
	} else if op, ok := node.(*ast.UnaryOperation); ok && op.Operator == "*" {
		// &*p is p.
		return g.value(op.Operand)
	} else if index, ok := node.(*ast.IndexExpression); ok {
		return g.elementAddress(index)
	}
	return Value{}, g.errorf(node.GetLocation(), "cannot take the address of %s", node)
}

func (g *Generator) elementAddress(node *ast.IndexExpression) (Value, error) {
	base, err := g.value(node.Array)
	if err != nil {
		return Value{}, err
	}
	if hasSideEffects(node.Index) {
		base = g.snapshot(base)
	}
	index, err := g.value(node.Index)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc
	if !index.Type.IsInteger() {
		return Value{}, g.errorf(node.Loc, "array index must be an integer")
	}
	return g.pointerOffset(OpAdd, base, node.Type, index), nil
}

func (g *Generator) generateIncDec(node *ast.IncDec) (Value, error) {
	lv, err := g.lvalue(node.Operand)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc

	op := OpAdd
	if node.Operator == "--" {
		op = OpSub
	}

	step := ConstInt(1, lv.typ)
	if lv.typ.IsFloat() {
		step = ConstFloat(1)
	} else if elem, ok := ast.ElementType(node.Operand.GetType()); ok {
		step = ConstInt(int64(max(ast.SizeOf(elem), 1)), I64)
	}

	old := g.load(lv)
	if node.Postfix && lv.addr.IsNone() {
		// Snapshot the variable before it is overwritten.
		snapshot := g.fn.NewTemp(lv.typ)
		g.emit(Assign(snapshot, old))
		old = snapshot
	}

	updated := g.fn.NewTemp(lv.typ)
	g.emit(Binary(op, updated, old, step))
	if isBool(node.Operand.GetType()) {
		updated = g.truth(updated)
	}
	g.store(lv, updated)

	if node.Postfix {
		return old, nil
	}
	return updated, nil
}

func (g *Generator) generateAssignment(node *ast.Assignment) (Value, error) {
	lv, err := g.lvalue(node.Target)
	if err != nil {
		return Value{}, err
	}
	later := hasSideEffects(node.Value)
	if later {
		// The target address is fixed before the value is evaluated.
		lv.addr = g.snapshot(lv.addr)
	}

	if node.Operator == "=" {
		value, err := g.value(node.Value)
		if err != nil {
			return Value{}, err
		}
		g.pos = node.Loc
		value = g.convertTo(value, node.Value.GetType(), node.Target.GetType())
		g.store(lv, value)
		return value, nil
	}

	operator := strings.TrimSuffix(node.Operator, "=")
	current := g.load(lv)
	if later {
		current = g.snapshot(current)
	}
	value, err := g.value(node.Value)
	if err != nil {
		return Value{}, err
	}
	g.pos = node.Loc

	targetType := node.Target.GetType()
	opType := TypeOf(targetType)
	switch {
	case ast.IsPointerType(targetType):
	case operator == "<<" || operator == ">>":
		opType = commonType(lv.typ, I32)
	default:
		opType = commonType(lv.typ, value.Type)
	}

	result, err := g.arith(node.Loc, operator, current, targetType, value, node.Value.GetType(), opType)
	if err != nil {
		return Value{}, err
	}
	// The arithmetic result is never a bool yet, so a bool target tests it.
	result = g.convertTo(result, nil, targetType)
	g.store(lv, result)
	return result, nil
}

func (g *Generator) generateFunctionCall(node *ast.FunctionCall) (Value, error) {
	var params []ast.Param
	if callee, ok := g.funcs[node.FunctionName]; ok {
		if len(callee.Params) != len(node.Args) {
			return Value{}, g.errorf(node.Loc, "%s takes %d arguments, got %d", node.FunctionName, len(callee.Params), len(node.Args))
		}
		params = callee.Params
	}

	// later[i] is set when an argument after the i-th one has side effects.
	later := make([]bool, len(node.Args))
	for i := len(node.Args) - 2; i >= 0; i-- {
		later[i] = later[i+1] || hasSideEffects(node.Args[i+1])
	}

	args := make([]Value, 0, len(node.Args))
	for i, argNode := range node.Args {
		arg, err := g.value(argNode)
		if err != nil {
			return Value{}, err
		}
		if later[i] {
			arg = g.snapshot(arg)
		}
		if params != nil {
			arg = g.convertTo(arg, argNode.GetType(), params[i].Type)
		} else if arg.Type == I8 {
			// Default argument promotion for calls to external functions.
			arg = g.convert(arg, I32)
		}
		args = append(args, arg)
	}
	g.pos = node.Loc

	t := TypeOf(node.Type)
	if t == Void {
		g.emit(Call(Value{}, node.FunctionName, args...))
		return Value{}, nil
	}

	result := g.fn.NewTemp(t)
	g.emit(Call(result, node.FunctionName, args...))
	return result, nil
}

// convert returns v as a value of type t, emitting a CAST when the representation changes.
// Integer constants are retyped in place.
func (g *Generator) convert(v Value, t Type) Value {
	if t == Void || v.IsNone() || v.Type == t {
		return v
	}
	if v.Kind == IntConst {
		if t.IsFloat() {
			return ConstFloat(float64(v.Int))
		}
		return ConstInt(Wrap(v.Int, t), t)
	}
	if v.Kind == StringRef || v.Kind == FuncRef {
		if t == Ptr || t == I64 {
			return v
		}
	}
	result := g.fn.NewTemp(t)
	g.emit(Cast(result, v))
	return result
}

// convertTo converts v from source type from to source type to. Conversion to
// bool tests against zero instead of truncating.
func (g *Generator) convertTo(v Value, from, to ast.Type) Value {
	if isBool(to) && !isBool(from) && !v.IsNone() {
		return g.truth(v)
	}
	return g.convert(v, TypeOf(to))
}

// truth returns 1 when v is non-zero and 0 otherwise, as a bool.
func (g *Generator) truth(v Value) Value {
	switch v.Kind {
	case IntConst:
		return boolConst(v.Int != 0)
	case FloatConst:
		return boolConst(v.Float != 0)
	case StringRef, FuncRef:
		return boolConst(true)
	}

	test := g.fn.NewTemp(I32)
	g.emit(Binary(OpNe, test, v, zeroValue(v.Type)))
	return g.convert(test, I8)
}

func boolConst(b bool) Value {
	if b {
		return ConstInt(1, I8)
	}
	return ConstInt(0, I8)
}

func isBool(t ast.Type) bool {
	return t != nil && t.Equals(ast.Bool)
}

// value lowers an expression whose result is consumed as an operand.
func (g *Generator) value(node ast.Expression) (Value, error) {
	v, err := g.generateExpression(node)
	if err == nil && v.IsNone() {
		return Value{}, g.errorf(node.GetLocation(), "void value of %s used as an operand", node)
	}
	return v, err
}

// snapshot copies a variable into a fresh temporary so that side effects of
// operands evaluated later cannot change the value already read.
func (g *Generator) snapshot(v Value) Value {
	if !v.IsVar() && !v.IsGlobal() {
		return v
	}
	t := g.fn.NewTemp(v.Type)
	g.emit(Assign(t, v))
	return t
}

// hasSideEffects reports whether evaluating node may call a function or
// write a variable or memory.
func hasSideEffects(node ast.Expression) bool {
	work := []ast.Expression{node}
	for len(work) != 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]

		switch n := n.(type) {
		case *ast.FunctionCall, *ast.Assignment, *ast.IncDec:
			return true
		case *ast.BinaryOperation:
			work = append(work, n.Left, n.Right)
		case *ast.UnaryOperation:
			work = append(work, n.Operand)
		case *ast.Conditional:
			work = append(work, n.Condition, n.Then, n.Else)
		case *ast.Cast:
			work = append(work, n.Value)
		case *ast.IndexExpression:
			work = append(work, n.Array, n.Index)
		case *ast.FieldAccess:
			work = append(work, n.Object)
		}
	}
	return false
}

// commonType implements the usual arithmetic conversions on IR types.
func commonType(a, b Type) Type {
	switch {
	case a == F64 || b == F64:
		return F64
	case a == Ptr || b == Ptr:
		return Ptr
	case a == I64 || b == I64:
		return I64
	}
	return I32
}

func zeroValue(t Type) Value {
	if t.IsFloat() {
		return ConstFloat(0)
	}
	return ConstInt(0, t)
}
