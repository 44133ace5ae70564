package ast

// Constructors used by tests and by the YAML loader.

func NewIntLiteral(value int64) *Literal {
	return &Literal{Type: Int, IntValue: &value}
}

func NewLongLiteral(value int64) *Literal {
	return &Literal{Type: Long, IntValue: &value}
}

func NewCharLiteral(value byte) *Literal {
	v := int64(value)
	return &Literal{Type: Char, IntValue: &v}
}

func NewFloatLiteral(value float64) *Literal {
	return &Literal{Type: Double, FloatValue: &value}
}

func NewStringLiteral(value string) *Literal {
	return &Literal{Type: String, StringValue: &value}
}

func NewBoolLiteral(value bool) *Literal {
	return &Literal{Type: Bool, BoolValue: &value}
}

func NewNullLiteral(typ Type) *Literal {
	return &Literal{Type: typ, NullValue: true}
}

func NewLocalRef(name string, typ Type) *VariableReference {
	return &VariableReference{Name: name, Type: typ, Symbol: Symbol{Name: name, Scope: ScopeLocal}}
}

func NewParamRef(name string, typ Type) *VariableReference {
	return &VariableReference{Name: name, Type: typ, Symbol: Symbol{Name: name, Scope: ScopeParam}}
}

func NewGlobalRef(name string, typ Type) *VariableReference {
	return &VariableReference{Name: name, Type: typ, Symbol: Symbol{Name: name, Scope: ScopeGlobal}}
}

func NewBinary(op string, left, right Expression, typ Type) *BinaryOperation {
	return &BinaryOperation{Operator: op, Left: left, Right: right, Type: typ}
}

func NewUnary(op string, operand Expression, typ Type) *UnaryOperation {
	return &UnaryOperation{Operator: op, Operand: operand, Type: typ}
}

func NewAssignment(target, value Expression) *Assignment {
	return &Assignment{Operator: "=", Target: target, Value: value, Type: target.GetType()}
}

func NewCall(name string, typ Type, args ...Expression) *FunctionCall {
	return &FunctionCall{FunctionName: name, Args: args, Type: typ}
}

func NewDecl(name string, typ Type, init Expression) *VariableDeclaration {
	return &VariableDeclaration{Name: name, Type: typ, Symbol: Symbol{Name: name, Scope: ScopeLocal}, Initializer: init}
}

func NewReturn(value Expression) *ReturnStatement {
	return &ReturnStatement{Value: value}
}

func NewExprStmt(expr Expression) *ExpressionStatement {
	return &ExpressionStatement{Expression: expr}
}

func NewBlock(stmts ...Statement) Block {
	return Block{Statements: stmts}
}

func NewFunction(name string, returnType Type, params []Param, stmts ...Statement) Function {
	body := NewBlock(stmts...)
	return Function{Name: name, ReturnType: returnType, Params: params, Body: &body}
}

func NewParam(name string, typ Type) Param {
	return Param{Name: name, Type: typ, Symbol: Symbol{Name: name, Scope: ScopeParam}}
}
