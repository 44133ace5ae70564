package ast

import (
	"io"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

/*
Typed trees are exchanged as YAML documents. Each node is a mapping and its
kind is given by which keys are present:

	globals:
	  - {name: counter, type: int, init: {int: 0}}
	functions:
	  - name: add
	    returns: int
	    params: [{name: a, type: int}, {name: b, type: int}]
	    body:
	      - return: {value: {op: "+", left: {ref: a}, right: {ref: b}}}

Expressions: literals ({int: 1}, {long: 1}, {char: "a"}, {float: 1.5},
{bool: true}, {string: "hi"}, {nullptr: true, type: "*int"}), references
({ref: x}), binary ({op, left, right}), unary ({op, operand}), increment and
decrement ({op: "++", operand, postfix}), assignment ({op: "+=", target,
value}), calls ({call: f, args: [...]}), ternary ({cond, then, else}), casts
({cast: expr, type: long}), indexing ({array, index}) and member access
({object, field}).

Statements: {decl: {name, type, init}}, {expr: ...}, {return: {value}},
{if: {cond, then, else}}, {while: {cond, body}}, {do: {body, cond}},
{for: {init, cond, step, body}}, {switch: {value, cases: [{value|default, body}]}},
{break: true}, {continue: true}, {block: [...]}.

Missing types and symbol scopes are resolved lexically while loading, the
way the semantic analyser would have annotated them. Positions come from
optional line and col keys and default to where the node is in the document.
*/

type programDoc struct {
	Globals   []globalDoc   `yaml:"globals"`
	Functions []functionDoc `yaml:"functions"`
}

type globalDoc struct {
	Line int      `yaml:"line"`
	Name string   `yaml:"name"`
	Type string   `yaml:"type"`
	Init *exprDoc `yaml:"init"`
}

type paramDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type functionDoc struct {
	Line    int        `yaml:"line"`
	Name    string     `yaml:"name"`
	Returns string     `yaml:"returns"`
	Params  []paramDoc `yaml:"params"`
	Body    *[]stmtDoc `yaml:"body"`
}

type declDoc struct {
	Name string   `yaml:"name"`
	Type string   `yaml:"type"`
	Init *exprDoc `yaml:"init"`
}

type returnDoc struct {
	Value *exprDoc `yaml:"value"`
}

type ifDoc struct {
	Cond exprDoc   `yaml:"cond"`
	Then []stmtDoc `yaml:"then"`
	Else []stmtDoc `yaml:"else"`
}

type loopDoc struct {
	Cond exprDoc   `yaml:"cond"`
	Body []stmtDoc `yaml:"body"`
}

type forDoc struct {
	Init *stmtDoc  `yaml:"init"`
	Cond *exprDoc  `yaml:"cond"`
	Step *exprDoc  `yaml:"step"`
	Body []stmtDoc `yaml:"body"`
}

type caseDoc struct {
	Value   *exprDoc  `yaml:"value"`
	Default bool      `yaml:"default"`
	Body    []stmtDoc `yaml:"body"`
}

type switchDoc struct {
	Value exprDoc   `yaml:"value"`
	Cases []caseDoc `yaml:"cases"`
}

type stmtDoc struct {
	Line int `yaml:"line"`

	Decl     *declDoc   `yaml:"decl"`
	Expr     *exprDoc   `yaml:"expr"`
	Return   *returnDoc `yaml:"return"`
	If       *ifDoc     `yaml:"if"`
	While    *loopDoc   `yaml:"while"`
	Do       *loopDoc   `yaml:"do"`
	For      *forDoc    `yaml:"for"`
	Switch   *switchDoc `yaml:"switch"`
	Break    bool       `yaml:"break"`
	Continue bool       `yaml:"continue"`
	Block    *[]stmtDoc `yaml:"block"`
}

type exprDoc struct {
	Line int    `yaml:"line"`
	Col  int    `yaml:"col"`
	Type string `yaml:"type"`

	Int    *int64   `yaml:"int"`
	Long   *int64   `yaml:"long"`
	Char   *string  `yaml:"char"`
	Float  *float64 `yaml:"float"`
	Bool   *bool    `yaml:"bool"`
	String *string  `yaml:"string"`
	Null   bool     `yaml:"nullptr"`

	Ref   string `yaml:"ref"`
	Scope string `yaml:"scope"`
	ID    int    `yaml:"id"`

	Op      string   `yaml:"op"`
	Left    *exprDoc `yaml:"left"`
	Right   *exprDoc `yaml:"right"`
	Operand *exprDoc `yaml:"operand"`
	Postfix bool     `yaml:"postfix"`
	Target  *exprDoc `yaml:"target"`
	Value   *exprDoc `yaml:"value"`

	Call string    `yaml:"call"`
	Args []exprDoc `yaml:"args"`

	Cond *exprDoc `yaml:"cond"`
	Then *exprDoc `yaml:"then"`
	Else *exprDoc `yaml:"else"`

	Cast *exprDoc `yaml:"cast"`

	Array *exprDoc `yaml:"array"`
	Index *exprDoc `yaml:"index"`

	Object *exprDoc `yaml:"object"`
	Field  string   `yaml:"field"`
}

func (d *globalDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain globalDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	if d.Line == 0 {
		d.Line = n.Line
	}
	return nil
}

func (d *functionDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain functionDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	if d.Line == 0 {
		d.Line = n.Line
	}
	return nil
}

func (d *stmtDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain stmtDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	if d.Line == 0 {
		d.Line = n.Line
	}
	return nil
}

func (d *exprDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain exprDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	if d.Line == 0 {
		d.Line, d.Col = n.Line, n.Column
	}
	return nil
}

// checkFields walks n along with the document type t and rejects mapping keys
// that have no matching field.
func checkFields(n *yaml.Node, t reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}

	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := checkFields(c, t); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		if t.Kind() != reflect.Slice {
			return nil
		}
		for _, c := range n.Content {
			if err := checkFields(c, t.Elem()); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		if t.Kind() != reflect.Struct {
			return nil
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			f, ok := fieldByTag(t, key.Value)
			if !ok {
				return errors.New("line %d: field %s not found in %s", key.Line, key.Value, strings.TrimSuffix(t.Name(), "Doc"))
			}
			if err := checkFields(n.Content[i+1], f.Type); err != nil {
				return err
			}
		}
	}

	return nil
}

func fieldByTag(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

type binding struct {
	sym Symbol
	typ Type
}

type loader struct {
	file    string
	globals map[string]Type
	funcs   map[string]Type
	scopes  []map[string]binding
	nextID  int
}

// LoadFile reads a typed tree from a YAML file.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	return Decode(f, path)
}

// Decode reads a typed tree from r. file is only used in locations.
func Decode(r io.Reader, file string) (*Program, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode %v", file)
	}

	var doc programDoc
	if root.Kind != 0 {
		// Node.Decode does not know about KnownFields, so unknown keys are checked up front.
		if err := checkFields(&root, reflect.TypeOf(doc)); err != nil {
			return nil, errors.Wrap(err, "decode %v", file)
		}
		if err := root.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode %v", file)
		}
	}

	l := &loader{
		file:    file,
		globals: make(map[string]Type),
		funcs:   make(map[string]Type),
	}

	return l.program(&doc)
}

func (l *loader) loc(line, col int) Location {
	return Location{File: l.file, Line: line, Col: col}
}

func (l *loader) program(doc *programDoc) (*Program, error) {
	prog := &Program{Loc: l.loc(1, 1)}

	for _, fd := range doc.Functions {
		rt, err := ParseType(fd.Returns)
		if err != nil {
			return nil, errors.Wrap(err, "%v: function %v", l.loc(fd.Line, 0), fd.Name)
		}
		if _, dup := l.funcs[fd.Name]; dup {
			return nil, errors.New("%v: function %v redefined", l.loc(fd.Line, 0), fd.Name)
		}
		l.funcs[fd.Name] = rt
	}

	for _, gd := range doc.Globals {
		typ, err := ParseType(gd.Type)
		if err != nil {
			return nil, errors.Wrap(err, "%v: global %v", l.loc(gd.Line, 0), gd.Name)
		}
		g := GlobalDeclaration{Loc: l.loc(gd.Line, 0), Name: gd.Name, Type: typ}
		if gd.Init != nil {
			g.Initializer, err = l.expr(gd.Init)
			if err != nil {
				return nil, err
			}
		}
		l.globals[gd.Name] = typ
		prog.Globals = append(prog.Globals, g)
	}

	for _, fd := range doc.Functions {
		fn, err := l.function(&fd)
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}

	return prog, nil
}

func (l *loader) function(fd *functionDoc) (Function, error) {
	fn := Function{Loc: l.loc(fd.Line, 0), Name: fd.Name, ReturnType: l.funcs[fd.Name]}

	l.nextID = 0
	l.push()
	defer l.pop()

	for _, pd := range fd.Params {
		typ, err := ParseType(pd.Type)
		if err != nil {
			return fn, errors.Wrap(err, "%v: param %v", fn.Loc, pd.Name)
		}
		sym := l.declare(pd.Name, ScopeParam, typ)
		fn.Params = append(fn.Params, Param{Loc: fn.Loc, Name: pd.Name, Type: typ, Symbol: sym})
	}

	if fd.Body == nil {
		return fn, nil
	}

	body, err := l.block(*fd.Body, fd.Line)
	if err != nil {
		return fn, errors.Wrap(err, "function %v", fd.Name)
	}
	fn.Body = &body

	return fn, nil
}

func (l *loader) push() {
	l.scopes = append(l.scopes, make(map[string]binding))
}

func (l *loader) pop() {
	l.scopes = l.scopes[:len(l.scopes)-1]
}

func (l *loader) declare(name string, scope Scope, typ Type) Symbol {
	l.nextID++
	sym := Symbol{Name: name, Scope: scope, ID: l.nextID}
	l.scopes[len(l.scopes)-1][name] = binding{sym: sym, typ: typ}
	return sym
}

func (l *loader) lookup(name string) (binding, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if b, ok := l.scopes[i][name]; ok {
			return b, true
		}
	}
	if typ, ok := l.globals[name]; ok {
		return binding{sym: Symbol{Name: name, Scope: ScopeGlobal}, typ: typ}, true
	}
	return binding{}, false
}

func (l *loader) block(docs []stmtDoc, line int) (Block, error) {
	l.push()
	defer l.pop()

	b := Block{Loc: l.loc(line, 0)}
	for i := range docs {
		stmt, err := l.stmt(&docs[i])
		if err != nil {
			return b, err
		}
		b.Statements = append(b.Statements, stmt)
	}
	return b, nil
}

func (l *loader) stmt(d *stmtDoc) (Statement, error) {
	loc := l.loc(d.Line, 0)

	switch {
	case d.Decl != nil:
		typ, err := ParseType(d.Decl.Type)
		if err != nil {
			return nil, errors.Wrap(err, "%v: decl %v", loc, d.Decl.Name)
		}
		decl := &VariableDeclaration{Loc: loc, Name: d.Decl.Name, Type: typ}
		// The initializer cannot see the variable being declared.
		if d.Decl.Init != nil {
			decl.Initializer, err = l.expr(d.Decl.Init)
			if err != nil {
				return nil, err
			}
		}
		decl.Symbol = l.declare(d.Decl.Name, ScopeLocal, typ)
		return decl, nil
	case d.Expr != nil:
		e, err := l.expr(d.Expr)
		if err != nil {
			return nil, err
		}
		return &ExpressionStatement{Loc: loc, Expression: e}, nil
	case d.Return != nil:
		ret := &ReturnStatement{Loc: loc}
		if d.Return.Value != nil {
			v, err := l.expr(d.Return.Value)
			if err != nil {
				return nil, err
			}
			ret.Value = v
		}
		return ret, nil
	case d.If != nil:
		cond, err := l.expr(&d.If.Cond)
		if err != nil {
			return nil, err
		}
		then, err := l.block(d.If.Then, d.Line)
		if err != nil {
			return nil, err
		}
		stmt := &IfStatement{Loc: loc, Condition: cond, ThenBlock: then}
		if len(d.If.Else) != 0 {
			els, err := l.block(d.If.Else, d.Line)
			if err != nil {
				return nil, err
			}
			stmt.ElseBlock = &els
		}
		return stmt, nil
	case d.While != nil:
		cond, err := l.expr(&d.While.Cond)
		if err != nil {
			return nil, err
		}
		body, err := l.block(d.While.Body, d.Line)
		if err != nil {
			return nil, err
		}
		return &WhileStatement{Loc: loc, Condition: cond, Body: body}, nil
	case d.Do != nil:
		body, err := l.block(d.Do.Body, d.Line)
		if err != nil {
			return nil, err
		}
		cond, err := l.expr(&d.Do.Cond)
		if err != nil {
			return nil, err
		}
		return &DoWhileStatement{Loc: loc, Body: body, Condition: cond}, nil
	case d.For != nil:
		return l.forStmt(d.For, loc)
	case d.Switch != nil:
		return l.switchStmt(d.Switch, loc)
	case d.Break:
		return &BreakStatement{Loc: loc}, nil
	case d.Continue:
		return &ContinueStatement{Loc: loc}, nil
	case d.Block != nil:
		b, err := l.block(*d.Block, d.Line)
		if err != nil {
			return nil, err
		}
		return &BlockStatement{Block: b}, nil
	}

	return nil, errors.New("%v: empty statement", loc)
}

func (l *loader) forStmt(d *forDoc, loc Location) (Statement, error) {
	// The init declaration is scoped to the loop.
	l.push()
	defer l.pop()

	stmt := &ForStatement{Loc: loc}
	var err error

	if d.Init != nil {
		stmt.Init, err = l.stmt(d.Init)
		if err != nil {
			return nil, err
		}
	}
	if d.Cond != nil {
		stmt.Condition, err = l.expr(d.Cond)
		if err != nil {
			return nil, err
		}
	}
	if d.Step != nil {
		stmt.Step, err = l.expr(d.Step)
		if err != nil {
			return nil, err
		}
	}

	stmt.Body, err = l.block(d.Body, loc.Line)
	if err != nil {
		return nil, err
	}

	return stmt, nil
}

func (l *loader) switchStmt(d *switchDoc, loc Location) (Statement, error) {
	value, err := l.expr(&d.Value)
	if err != nil {
		return nil, err
	}

	stmt := &SwitchStatement{Loc: loc, Value: value}

	l.push()
	defer l.pop()

	for _, cd := range d.Cases {
		c := SwitchCase{Loc: loc}
		if !cd.Default {
			if cd.Value == nil {
				return nil, errors.New("%v: case without value", loc)
			}
			c.Value, err = l.expr(cd.Value)
			if err != nil {
				return nil, err
			}
		}
		for i := range cd.Body {
			s, err := l.stmt(&cd.Body[i])
			if err != nil {
				return nil, err
			}
			c.Body = append(c.Body, s)
		}
		stmt.Cases = append(stmt.Cases, c)
	}

	return stmt, nil
}

func (l *loader) typeOr(d *exprDoc, def Type) (Type, error) {
	if d.Type == "" {
		return def, nil
	}
	return ParseType(d.Type)
}

func (l *loader) expr(d *exprDoc) (Expression, error) {
	loc := l.loc(d.Line, d.Col)

	switch {
	case d.Int != nil:
		typ, err := l.typeOr(d, Int)
		return &Literal{Loc: loc, Type: typ, IntValue: d.Int}, err
	case d.Long != nil:
		return &Literal{Loc: loc, Type: Long, IntValue: d.Long}, nil
	case d.Char != nil:
		if len(*d.Char) != 1 {
			return nil, errors.New("%v: char literal %q must be one byte", loc, *d.Char)
		}
		v := int64((*d.Char)[0])
		return &Literal{Loc: loc, Type: Char, IntValue: &v}, nil
	case d.Float != nil:
		return &Literal{Loc: loc, Type: Double, FloatValue: d.Float}, nil
	case d.Bool != nil:
		return &Literal{Loc: loc, Type: Bool, BoolValue: d.Bool}, nil
	case d.String != nil:
		return &Literal{Loc: loc, Type: String, StringValue: d.String}, nil
	case d.Null:
		typ, err := l.typeOr(d, NewPointerType(Void))
		return &Literal{Loc: loc, Type: typ, NullValue: true}, err
	case d.Ref != "":
		return l.ref(d, loc)
	case d.Call != "":
		return l.call(d, loc)
	case d.Cast != nil:
		if d.Type == "" {
			return nil, errors.New("%v: cast without type", loc)
		}
		typ, err := ParseType(d.Type)
		if err != nil {
			return nil, err
		}
		v, err := l.expr(d.Cast)
		if err != nil {
			return nil, err
		}
		return &Cast{Loc: loc, Value: v, Type: typ}, nil
	case d.Cond != nil:
		return l.conditional(d, loc)
	case d.Object != nil:
		obj, err := l.expr(d.Object)
		if err != nil {
			return nil, err
		}
		typ, err := l.typeOr(d, Int)
		return &FieldAccess{Loc: loc, Object: obj, FieldName: d.Field, Type: typ}, err
	case d.Array != nil:
		return l.index(d, loc)
	case d.Target != nil:
		return l.assignment(d, loc)
	case d.Left != nil:
		return l.binary(d, loc)
	case d.Operand != nil:
		return l.unary(d, loc)
	}

	return nil, errors.New("%v: empty expression", loc)
}

func (l *loader) ref(d *exprDoc, loc Location) (Expression, error) {
	b, ok := l.lookup(d.Ref)
	if d.Scope != "" {
		scope, err := parseScope(d.Scope)
		if err != nil {
			return nil, errors.Wrap(err, "%v", loc)
		}
		if !ok || b.sym.Scope != scope {
			b.sym = Symbol{Name: d.Ref, Scope: scope, ID: d.ID}
		}
	} else if !ok {
		return nil, errors.New("%v: undefined variable %v", loc, d.Ref)
	}

	typ := b.typ
	if d.Type != "" {
		var err error
		typ, err = ParseType(d.Type)
		if err != nil {
			return nil, err
		}
	}
	if typ == nil {
		return nil, errors.New("%v: unknown type of %v", loc, d.Ref)
	}

	return &VariableReference{Loc: loc, Name: d.Ref, Type: typ, Symbol: b.sym}, nil
}

func parseScope(s string) (Scope, error) {
	switch s {
	case "local":
		return ScopeLocal, nil
	case "param":
		return ScopeParam, nil
	case "global":
		return ScopeGlobal, nil
	}
	return 0, errors.New("unknown scope %q", s)
}

func (l *loader) call(d *exprDoc, loc Location) (Expression, error) {
	rt, ok := l.funcs[d.Call]
	if d.Type != "" {
		var err error
		rt, err = ParseType(d.Type)
		if err != nil {
			return nil, err
		}
	} else if !ok {
		// External functions default to C's implicit int.
		rt = Int
	}

	call := &FunctionCall{Loc: loc, FunctionName: d.Call, Type: rt}
	for i := range d.Args {
		arg, err := l.expr(&d.Args[i])
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
	}

	return call, nil
}

func (l *loader) conditional(d *exprDoc, loc Location) (Expression, error) {
	if d.Then == nil || d.Else == nil {
		return nil, errors.New("%v: conditional needs then and else", loc)
	}
	cond, err := l.expr(d.Cond)
	if err != nil {
		return nil, err
	}
	then, err := l.expr(d.Then)
	if err != nil {
		return nil, err
	}
	els, err := l.expr(d.Else)
	if err != nil {
		return nil, err
	}
	typ, err := l.typeOr(d, commonType(then.GetType(), els.GetType()))
	if err != nil {
		return nil, err
	}
	return &Conditional{Loc: loc, Condition: cond, Then: then, Else: els, Type: typ}, nil
}

func (l *loader) index(d *exprDoc, loc Location) (Expression, error) {
	if d.Index == nil {
		return nil, errors.New("%v: index expression without index", loc)
	}
	arr, err := l.expr(d.Array)
	if err != nil {
		return nil, err
	}
	idx, err := l.expr(d.Index)
	if err != nil {
		return nil, err
	}
	elem, ok := ElementType(arr.GetType())
	if !ok {
		return nil, errors.New("%v: cannot index %v", loc, arr.GetType())
	}
	return &IndexExpression{Loc: loc, Array: arr, Index: idx, Type: elem}, nil
}

func (l *loader) assignment(d *exprDoc, loc Location) (Expression, error) {
	if d.Value == nil {
		return nil, errors.New("%v: assignment without value", loc)
	}
	target, err := l.expr(d.Target)
	if err != nil {
		return nil, err
	}
	value, err := l.expr(d.Value)
	if err != nil {
		return nil, err
	}
	op := d.Op
	if op == "" {
		op = "="
	}
	return &Assignment{Loc: loc, Operator: op, Target: target, Value: value, Type: target.GetType()}, nil
}

func (l *loader) binary(d *exprDoc, loc Location) (Expression, error) {
	if d.Right == nil {
		return nil, errors.New("%v: binary %v without right operand", loc, d.Op)
	}
	left, err := l.expr(d.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.expr(d.Right)
	if err != nil {
		return nil, err
	}

	var def Type
	switch d.Op {
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
		def = Int
	case "<<", ">>":
		def = left.GetType()
	case "+", "-", "*", "/", "%", "&", "|", "^":
		def = commonType(left.GetType(), right.GetType())
		if d.Op == "-" && IsPointerType(left.GetType()) && IsPointerType(right.GetType()) {
			def = Long
		}
	default:
		return nil, errors.New("%v: unknown binary operator %q", loc, d.Op)
	}

	typ, err := l.typeOr(d, def)
	if err != nil {
		return nil, err
	}
	return &BinaryOperation{Loc: loc, Operator: d.Op, Left: left, Right: right, Type: typ}, nil
}

func (l *loader) unary(d *exprDoc, loc Location) (Expression, error) {
	operand, err := l.expr(d.Operand)
	if err != nil {
		return nil, err
	}

	var def Type
	switch d.Op {
	case "++", "--":
		typ, err := l.typeOr(d, operand.GetType())
		if err != nil {
			return nil, err
		}
		return &IncDec{Loc: loc, Operator: d.Op, Operand: operand, Postfix: d.Postfix, Type: typ}, nil
	case "!":
		def = Int
	case "&":
		def = NewPointerType(operand.GetType())
	case "*":
		elem, ok := ElementType(operand.GetType())
		if !ok {
			return nil, errors.New("%v: cannot dereference %v", loc, operand.GetType())
		}
		def = elem
	case "-", "+", "~":
		def = operand.GetType()
	default:
		return nil, errors.New("%v: unknown unary operator %q", loc, d.Op)
	}

	typ, err := l.typeOr(d, def)
	if err != nil {
		return nil, err
	}
	return &UnaryOperation{Loc: loc, Operator: d.Op, Operand: operand, Type: typ}, nil
}

// commonType implements the usual arithmetic conversions for the supported types.
func commonType(a, b Type) Type {
	switch {
	case IsPointerType(a):
		return a
	case IsPointerType(b):
		return b
	case a == Double || b == Double:
		return Double
	case a == Long || b == Long:
		return Long
	}
	return Int
}
