package ast

import (
	"fmt"
	"strings"
)

// Location points at the source construct a node was produced from.
type Location struct {
	File string
	Line int
	Col  int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Col)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

type AstNode interface {
	fmt.Stringer
	GetLocation() Location
}

// Scope says where a resolved symbol lives.
type Scope int

const (
	ScopeLocal Scope = iota
	ScopeParam
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeParam:
		return "param"
	case ScopeGlobal:
		return "global"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Symbol is the binding a reference was resolved to by semantic analysis.
// ID distinguishes shadowing declarations of the same name; zero means "by name".
type Symbol struct {
	Name  string
	Scope Scope
	ID    int
}

type Program struct {
	Loc       Location
	Globals   []GlobalDeclaration
	Functions []Function
}

func (p *Program) GetLocation() Location {
	return p.Loc
}

func (p *Program) String() string {
	var sb strings.Builder
	sb.WriteString("(program")
	for _, g := range p.Globals {
		sb.WriteString(" ")
		sb.WriteString(g.String())
	}
	for _, fn := range p.Functions {
		sb.WriteString(" ")
		sb.WriteString(fn.String())
	}
	sb.WriteString(")")
	return sb.String()
}

type GlobalDeclaration struct {
	Loc  Location
	Name string
	Type Type
	// Must be a literal if present.
	Initializer Expression
}

func (g *GlobalDeclaration) GetLocation() Location {
	return g.Loc
}

func (g *GlobalDeclaration) String() string {
	if g.Initializer != nil {
		return fmt.Sprintf("(global %s %s %s)", g.Name, g.Type, g.Initializer)
	}
	return fmt.Sprintf("(global %s %s)", g.Name, g.Type)
}

type Param struct {
	Loc    Location
	Name   string
	Type   Type
	Symbol Symbol
}

func (p *Param) GetLocation() Location {
	return p.Loc
}

func (p *Param) String() string {
	return fmt.Sprintf("(%s %s)", p.Name, p.Type)
}

type Function struct {
	Loc        Location
	Name       string
	Params     []Param
	ReturnType Type
	// Nil for prototypes.
	Body *Block
}

func (f *Function) GetLocation() Location {
	return f.Loc
}

func (f *Function) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("(func %s (", f.Name))
	for i, p := range f.Params {
		sb.WriteString(p.String())
		if i != len(f.Params)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString(") ")
	sb.WriteString(f.ReturnType.String())
	if f.Body != nil {
		sb.WriteString(" ")
		sb.WriteString(f.Body.String())
	}
	sb.WriteString(")")
	return sb.String()
}

type Block struct {
	Loc        Location
	Statements []Statement
}

func (b *Block) GetLocation() Location {
	return b.Loc
}

func (b *Block) String() string {
	var sb strings.Builder
	sb.WriteString("(block")
	for _, stmt := range b.Statements {
		sb.WriteString(" ")
		sb.WriteString(stmt.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// Statements.

type Statement interface {
	AstNode
	isStatement()
}

type VariableDeclaration struct {
	Loc         Location
	Name        string
	Type        Type
	Symbol      Symbol
	Initializer Expression
}

func (v *VariableDeclaration) GetLocation() Location { return v.Loc }
func (v *VariableDeclaration) isStatement()           {}

func (v *VariableDeclaration) String() string {
	if v.Initializer != nil {
		return fmt.Sprintf("(decl %s %s %s)", v.Name, v.Type, v.Initializer)
	}
	return fmt.Sprintf("(decl %s %s)", v.Name, v.Type)
}

type ExpressionStatement struct {
	Loc        Location
	Expression Expression
}

func (e *ExpressionStatement) GetLocation() Location { return e.Loc }
func (e *ExpressionStatement) isStatement()           {}
func (e *ExpressionStatement) String() string        { return e.Expression.String() }

type ReturnStatement struct {
	Loc   Location
	Value Expression
}

func (r *ReturnStatement) GetLocation() Location { return r.Loc }
func (r *ReturnStatement) isStatement()           {}

func (r *ReturnStatement) String() string {
	if r.Value == nil {
		return "(return)"
	}
	return fmt.Sprintf("(return %s)", r.Value)
}

type IfStatement struct {
	Loc       Location
	Condition Expression
	ThenBlock Block
	ElseBlock *Block
}

func (i *IfStatement) GetLocation() Location { return i.Loc }
func (i *IfStatement) isStatement()           {}

func (i *IfStatement) String() string {
	if i.ElseBlock != nil {
		return fmt.Sprintf("(if %s %s %s)", i.Condition, i.ThenBlock.String(), i.ElseBlock.String())
	}
	return fmt.Sprintf("(if %s %s)", i.Condition, i.ThenBlock.String())
}

type WhileStatement struct {
	Loc       Location
	Condition Expression
	Body      Block
}

func (w *WhileStatement) GetLocation() Location { return w.Loc }
func (w *WhileStatement) isStatement()           {}

func (w *WhileStatement) String() string {
	return fmt.Sprintf("(while %s %s)", w.Condition, w.Body.String())
}

type DoWhileStatement struct {
	Loc       Location
	Body      Block
	Condition Expression
}

func (d *DoWhileStatement) GetLocation() Location { return d.Loc }
func (d *DoWhileStatement) isStatement()           {}

func (d *DoWhileStatement) String() string {
	return fmt.Sprintf("(do %s %s)", d.Body.String(), d.Condition)
}

type ForStatement struct {
	Loc Location
	// Any of Init, Condition and Step may be nil.
	Init      Statement
	Condition Expression
	Step      Expression
	Body      Block
}

func (f *ForStatement) GetLocation() Location { return f.Loc }
func (f *ForStatement) isStatement()           {}

func (f *ForStatement) String() string {
	parts := []string{"(for"}
	for _, n := range []AstNode{f.Init, f.Condition, f.Step} {
		if n == nil {
			parts = append(parts, "()")
		} else {
			parts = append(parts, n.String())
		}
	}
	parts = append(parts, f.Body.String())
	return strings.Join(parts, " ") + ")"
}

type SwitchCase struct {
	Loc Location
	// Nil for the default case.
	Value Expression
	Body  []Statement
}

type SwitchStatement struct {
	Loc   Location
	Value Expression
	Cases []SwitchCase
}

func (s *SwitchStatement) GetLocation() Location { return s.Loc }
func (s *SwitchStatement) isStatement()           {}

func (s *SwitchStatement) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("(switch %s", s.Value))
	for _, c := range s.Cases {
		if c.Value == nil {
			sb.WriteString(" (default")
		} else {
			sb.WriteString(fmt.Sprintf(" (case %s", c.Value))
		}
		for _, stmt := range c.Body {
			sb.WriteString(" ")
			sb.WriteString(stmt.String())
		}
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return sb.String()
}

type BreakStatement struct {
	Loc Location
}

func (b *BreakStatement) GetLocation() Location { return b.Loc }
func (b *BreakStatement) isStatement()           {}
func (b *BreakStatement) String() string        { return "(break)" }

type ContinueStatement struct {
	Loc Location
}

func (c *ContinueStatement) GetLocation() Location { return c.Loc }
func (c *ContinueStatement) isStatement()           {}
func (c *ContinueStatement) String() string        { return "(continue)" }

type BlockStatement struct {
	Block Block
}

func (b *BlockStatement) GetLocation() Location { return b.Block.Loc }
func (b *BlockStatement) isStatement()           {}
func (b *BlockStatement) String() string        { return b.Block.String() }

// Expressions.

type Expression interface {
	AstNode
	isExpression()
	// GetType returns the type resolved by semantic analysis.
	GetType() Type
}

type Literal struct {
	Loc         Location
	Type        Type
	IntValue    *int64
	FloatValue  *float64
	StringValue *string
	BoolValue   *bool
	NullValue   bool
}

func (l *Literal) GetLocation() Location { return l.Loc }
func (l *Literal) isExpression()          {}
func (l *Literal) GetType() Type          { return l.Type }

func (l *Literal) String() string {
	switch {
	case l.IntValue != nil:
		return fmt.Sprintf("%d", *l.IntValue)
	case l.FloatValue != nil:
		return fmt.Sprintf("%g", *l.FloatValue)
	case l.StringValue != nil:
		return fmt.Sprintf("%q", *l.StringValue)
	case l.BoolValue != nil:
		return fmt.Sprintf("%t", *l.BoolValue)
	case l.NullValue:
		return "null"
	}
	return "(invalid literal)"
}

type VariableReference struct {
	Loc    Location
	Name   string
	Type   Type
	Symbol Symbol
}

func (v *VariableReference) GetLocation() Location { return v.Loc }
func (v *VariableReference) isExpression()          {}
func (v *VariableReference) GetType() Type          { return v.Type }
func (v *VariableReference) String() string         { return v.Name }

type BinaryOperation struct {
	Loc      Location
	Operator string
	Left     Expression
	Right    Expression
	Type     Type
}

func (b *BinaryOperation) GetLocation() Location { return b.Loc }
func (b *BinaryOperation) isExpression()          {}
func (b *BinaryOperation) GetType() Type          { return b.Type }

func (b *BinaryOperation) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Operator, b.Left, b.Right)
}

type UnaryOperation struct {
	Loc      Location
	Operator string
	Operand  Expression
	Type     Type
}

func (u *UnaryOperation) GetLocation() Location { return u.Loc }
func (u *UnaryOperation) isExpression()          {}
func (u *UnaryOperation) GetType() Type          { return u.Type }

func (u *UnaryOperation) String() string {
	return fmt.Sprintf("(%s %s)", u.Operator, u.Operand)
}

// IncDec is ++ or -- in prefix or postfix form.
type IncDec struct {
	Loc      Location
	Operator string
	Operand  Expression
	Postfix  bool
	Type     Type
}

func (i *IncDec) GetLocation() Location { return i.Loc }
func (i *IncDec) isExpression()          {}
func (i *IncDec) GetType() Type          { return i.Type }

func (i *IncDec) String() string {
	if i.Postfix {
		return fmt.Sprintf("(postfix%s %s)", i.Operator, i.Operand)
	}
	return fmt.Sprintf("(%s %s)", i.Operator, i.Operand)
}

type Assignment struct {
	Loc Location
	// "=" or a compound operator such as "+=".
	Operator string
	Target   Expression
	Value    Expression
	Type     Type
}

func (a *Assignment) GetLocation() Location { return a.Loc }
func (a *Assignment) isExpression()          {}
func (a *Assignment) GetType() Type          { return a.Type }

func (a *Assignment) String() string {
	return fmt.Sprintf("(%s %s %s)", a.Operator, a.Target, a.Value)
}

type FunctionCall struct {
	Loc          Location
	FunctionName string
	Args         []Expression
	Type         Type
}

func (c *FunctionCall) GetLocation() Location { return c.Loc }
func (c *FunctionCall) isExpression()          {}
func (c *FunctionCall) GetType() Type          { return c.Type }

func (c *FunctionCall) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(c.FunctionName)
	for _, arg := range c.Args {
		sb.WriteString(" ")
		sb.WriteString(arg.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// Conditional is the ternary "c ? a : b".
type Conditional struct {
	Loc       Location
	Condition Expression
	Then      Expression
	Else      Expression
	Type      Type
}

func (c *Conditional) GetLocation() Location { return c.Loc }
func (c *Conditional) isExpression()          {}
func (c *Conditional) GetType() Type          { return c.Type }

func (c *Conditional) String() string {
	return fmt.Sprintf("(? %s %s %s)", c.Condition, c.Then, c.Else)
}

type Cast struct {
	Loc   Location
	Value Expression
	Type  Type
}

func (c *Cast) GetLocation() Location { return c.Loc }
func (c *Cast) isExpression()          {}
func (c *Cast) GetType() Type          { return c.Type }
func (c *Cast) String() string         { return fmt.Sprintf("(cast %s %s)", c.Type, c.Value) }

type IndexExpression struct {
	Loc   Location
	Array Expression
	Index Expression
	Type  Type
}

func (i *IndexExpression) GetLocation() Location { return i.Loc }
func (i *IndexExpression) isExpression()          {}
func (i *IndexExpression) GetType() Type          { return i.Type }

func (i *IndexExpression) String() string {
	return fmt.Sprintf("(index %s %s)", i.Array, i.Index)
}

type FieldAccess struct {
	Loc       Location
	Object    Expression
	FieldName string
	Type      Type
}

func (f *FieldAccess) GetLocation() Location { return f.Loc }
func (f *FieldAccess) isExpression()          {}
func (f *FieldAccess) GetType() Type          { return f.Type }

func (f *FieldAccess) String() string {
	return fmt.Sprintf("(. %s %s)", f.Object, f.FieldName)
}
