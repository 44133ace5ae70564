package x86_64

import (
	"context"
	"fmt"
	"math"

	"tlog.app/go/tlog"

	"github.com/iley/tacc/internal/asm"
	"github.com/iley/tacc/internal/codegen/common"
	"github.com/iley/tacc/internal/ir"
	"github.com/iley/tacc/internal/regalloc"
	"github.com/iley/tacc/internal/util"
)

const slotSize = 8

var (
	// Callee-saved, so values survive calls without any save/restore around them.
	allocatableRegisters = []string{"rbx", "r12", "r13", "r14", "r15"}

	intArgRegisters   = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	floatArgRegisters = []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"}
)

// Registers describes the System V register file to the allocator. Doubles are
// kept in general purpose registers or slots as bit patterns, so no xmm register
// is allocatable.
var Registers = regalloc.Config{
	IntRegisters:      allocatableRegisters,
	IntArgRegisters:   intArgRegisters,
	FloatArgRegisters: floatArgRegisters,
	SlotSize:          slotSize,
	// Saved rbp and the return address sit between the frame and the arguments.
	StackArgOffset: 16,
}

var subRegisters = map[string][2]string{
	"rax": {"eax", "al"},
	"rbx": {"ebx", "bl"},
	"rcx": {"ecx", "cl"},
	"rdx": {"edx", "dl"},
	"rsi": {"esi", "sil"},
	"rdi": {"edi", "dil"},
	"r8":  {"r8d", "r8b"},
	"r9":  {"r9d", "r9b"},
	"r10": {"r10d", "r10b"},
	"r11": {"r11d", "r11b"},
	"r12": {"r12d", "r12b"},
	"r13": {"r13d", "r13b"},
	"r14": {"r14d", "r14b"},
	"r15": {"r15d", "r15b"},
}

type CodegenContext struct {
	features      common.Features
	program       *ir.Program
	floatLiterals map[uint64]string
	tr            tlog.Span

	// Function-specific.
	fn    *ir.Function
	alloc *regalloc.Allocation
	index int
	lines []asm.Line
}

func Generate(ctx context.Context, p *ir.Program, features common.Features) (res asm.Program, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "codegen: x86_64", "functions", len(p.Functions))
	defer tr.Finish("err", &err)

	cc := &CodegenContext{
		features:      features,
		program:       p,
		floatLiterals: make(map[uint64]string),
		tr:            tr,
	}

	for i, bits := range common.GatherFloats(p) {
		label := fmt.Sprintf(".Lflt%d", i)
		cc.floatLiterals[bits] = label
		res.FloatLiterals = append(res.FloatLiterals, asm.FloatLiteral{Label: label, Bits: bits})
	}

	for _, s := range p.Strings {
		res.StringLiterals = append(res.StringLiterals, asm.StringLiteral{Label: stringLabel(s.Label), Text: s.Text})
	}

	res.GlobalVariables, err = generateGlobalVariables(p.Globals)
	if err != nil {
		return res, err
	}

	for _, f := range p.Functions {
		fn, err := generateFunction(cc, f)
		if err != nil {
			return res, err
		}
		res.Functions = append(res.Functions, fn)
	}

	return res, nil
}

func stringLabel(label string) string {
	return ".L" + label
}

func generateGlobalVariables(globals []ir.Global) ([]asm.GlobalVariable, error) {
	var result []asm.GlobalVariable

	for _, g := range globals {
		size := g.Type.Size()
		if size == 0 || size > slotSize {
			return nil, &common.Error{Message: fmt.Sprintf("global of type %v does not fit any location", g.Type), Function: g.Name, Index: -1}
		}

		gv := asm.GlobalVariable{Label: g.Name, Size: size}

		switch v := g.Init; v.Kind {
		case ir.None:
		case ir.IntConst:
			if v.Int != 0 {
				gv.Init = &asm.Data{Int: ir.Wrap(v.Int, g.Type)}
			}
		case ir.FloatConst:
			if bits := math.Float64bits(v.Float); bits != 0 {
				gv.Init = &asm.Data{Int: int64(bits)}
			}
		case ir.StringRef:
			gv.Init = &asm.Data{Ref: stringLabel(v.Name)}
		case ir.FuncRef:
			gv.Init = &asm.Data{Ref: v.Name}
		default:
			return nil, &common.Error{Message: fmt.Sprintf("unsupported initializer %v", v), Function: g.Name, Index: -1}
		}

		result = append(result, gv)
	}

	return result, nil
}

func generateFunction(cc *CodegenContext, irfn *ir.Function) (asm.Function, error) {
	result := asm.Function{
		Name:   irfn.Name,
		Global: true,
	}

	alloc := regalloc.Allocate(irfn, Registers)

	cc.fn = irfn
	cc.alloc = alloc
	cc.index = -1
	cc.lines = nil

	used := alloc.UsedRegisters()

	// Callee-saved registers are stored right below the spill slots.
	saveArea := alloc.FrameSize()
	frameSize := util.Align(saveArea+len(used)*slotSize, 16)

	if cc.tr.If("regalloc") {
		cc.tr.Printw("allocation", "func", irfn.Name, "frame", frameSize, "used", used, "spilled", len(alloc.Spilled()))
	}

	// Function prologue
	cc.emit(
		asm.Op1("pushq", asm.Reg("rbp")),
		asm.Op2("movq", asm.Reg("rsp"), asm.Reg("rbp")))

	if frameSize > 0 {
		cc.emit(asm.Op2("subq", asm.Imm(int64(frameSize)), asm.Reg("rsp")))
	}

	for i, r := range used {
		cc.emit(asm.Op2("movq", asm.Reg(r), savedSlot(saveArea, i)))
	}

	err := cc.moveIncomingParams()
	if err != nil {
		return result, err
	}

	for i := range irfn.Instrs {
		ins := &irfn.Instrs[i]
		cc.index = i

		if cc.features.Debug {
			cc.emit(asm.Comment(ins.String()))
		}

		err := cc.generateInstruction(ins)
		if err != nil {
			return result, err
		}
	}

	// Function epilogue
	cc.emit(asm.Label(cc.exitLabel()))

	for i, r := range used {
		cc.emit(asm.Op2("movq", savedSlot(saveArea, i), asm.Reg(r)))
	}

	cc.emit(
		asm.Op2("movq", asm.Reg("rbp"), asm.Reg("rsp")),
		asm.Op1("popq", asm.Reg("rbp")),
		asm.Op0("ret"))

	result.Lines = cc.lines

	return result, nil
}

func savedSlot(saveArea, i int) asm.Arg {
	return asm.DerefWithOffset(asm.Reg("rbp"), -(saveArea + (i+1)*slotSize))
}

// Labels join the function name and the IR label with a dot, which cannot
// appear in either, so labels of different functions never collide.
func (cc *CodegenContext) exitLabel() string {
	return fmt.Sprintf(".L%s.exit", cc.fn.Name)
}

func (cc *CodegenContext) label(name string) string {
	return fmt.Sprintf(".L%s.%s", cc.fn.Name, name)
}

func (cc *CodegenContext) emit(lines ...asm.Line) {
	cc.lines = append(cc.lines, lines...)
}

func (cc *CodegenContext) errorf(format string, args ...any) error {
	return &common.Error{Message: fmt.Sprintf(format, args...), Function: cc.fn.Name, Index: cc.index}
}

// moveIncomingParams copies register-passed parameters to the locations the
// allocator picked for them. Allocatable registers never overlap argument
// registers, so the moves cannot clobber each other.
func (cc *CodegenContext) moveIncomingParams() error {
	for _, p := range cc.alloc.Params() {
		if !p.Incoming.IsReg() || p.Incoming == p.Loc {
			continue
		}

		if p.Value.Type.IsFloat() {
			cc.emit(asm.Op2("movq", asm.Reg(p.Incoming.Reg), asm.Reg("rax")))
		} else {
			cc.extendFrom(p.Incoming.Reg, p.Value.Type)
		}

		err := cc.store("rax", p.Value)
		if err != nil {
			return err
		}
	}

	return nil
}

func (cc *CodegenContext) generateInstruction(ins *ir.Instruction) error {
	for _, v := range append(ins.Uses(), ins.Result) {
		if v.IsNone() || v.IsConst() {
			continue
		}
		if size := v.Type.Size(); size == 0 || size > slotSize {
			return cc.errorf("value %v of type %v does not fit any location", v, v.Type)
		}
	}

	if ins.Op.IsBinary() {
		if ins.Arg1.Type.IsFloat() {
			return cc.generateFloatBinaryOp(ins)
		}
		return cc.generateBinaryOp(ins)
	}

	switch ins.Op {
	case ir.OpNeg, ir.OpNot:
		return cc.generateUnaryOp(ins)
	case ir.OpLNot:
		if err := cc.truth(ins.Arg1); err != nil {
			return err
		}
		cc.emit(
			asm.Op1("sete", asm.Reg("al")),
			asm.Op2("movzbl", asm.Reg("al"), asm.Reg("eax")))
		return cc.store("rax", ins.Result)
	case ir.OpAssign:
		return cc.generateAssignment(ins)
	case ir.OpCast:
		return cc.generateCast(ins)
	case ir.OpLoad:
		if err := cc.load(ins.Arg1, "rax"); err != nil {
			return err
		}
		cc.emit(asm.Op2(loadOp(ins.Result.Type), asm.DerefWithOffset(asm.Reg("rax"), 0), asm.Reg("rax")))
		return cc.store("rax", ins.Result)
	case ir.OpStore:
		if err := cc.load(ins.Arg1, "rax"); err != nil {
			return err
		}
		if err := cc.load(ins.Arg2, "rcx"); err != nil {
			return err
		}
		t := ins.Arg2.Type
		cc.emit(asm.Op2(storeOp(t), asm.Reg(sized("rcx", t)), asm.DerefWithOffset(asm.Reg("rax"), 0)))
		return nil
	case ir.OpAddr:
		return cc.generateAddressOf(ins)
	case ir.OpLabel:
		cc.emit(asm.Label(cc.label(ins.Label)))
		return nil
	case ir.OpGoto:
		cc.emit(asm.Op1("jmp", asm.Ref(cc.label(ins.Label))))
		return nil
	case ir.OpIfFalse, ir.OpIfTrue:
		if err := cc.truth(ins.Arg1); err != nil {
			return err
		}
		jump := "je"
		if ins.Op == ir.OpIfTrue {
			jump = "jne"
		}
		cc.emit(asm.Op1(jump, asm.Ref(cc.label(ins.Label))))
		return nil
	case ir.OpCall:
		return cc.generateFunctionCall(ins)
	case ir.OpReturn:
		return cc.generateReturn(ins)
	}

	return cc.errorf("unsupported instruction %v", ins.Op)
}

func (cc *CodegenContext) generateAssignment(ins *ir.Instruction) error {
	src, dst := ins.Arg1, ins.Result

	// Register to register copies need no scratch.
	if (src.IsTemp() || src.IsVar()) && (dst.IsTemp() || dst.IsVar()) {
		from, err := cc.operand(src)
		if err != nil {
			return err
		}
		to, err := cc.operand(dst)
		if err != nil {
			return err
		}
		if from.IsReg() && to.IsReg() {
			if from.Reg != to.Reg {
				cc.emit(asm.Op2("movq", from, to))
			}
			return nil
		}
	}

	if err := cc.load(src, "rax"); err != nil {
		return err
	}
	return cc.store("rax", dst)
}

func (cc *CodegenContext) generateBinaryOp(ins *ir.Instruction) error {
	if err := cc.load(ins.Arg1, "rax"); err != nil {
		return err
	}
	if err := cc.load(ins.Arg2, "rcx"); err != nil {
		return err
	}

	if ins.Op.IsComparison() {
		// Operands are sign-extended, so a 64-bit compare works for every width.
		cc.emit(
			asm.Op2("cmpq", asm.Reg("rcx"), asm.Reg("rax")),
			asm.Op1(setcc(ins.Op, ins.Arg1.Type == ir.Ptr), asm.Reg("al")),
			asm.Op2("movzbl", asm.Reg("al"), asm.Reg("eax")))
		return cc.store("rax", ins.Result)
	}

	t := ins.Result.Type
	s := suffix(t)
	rax, rcx := asm.Reg(sized("rax", wide(t))), asm.Reg(sized("rcx", wide(t)))

	switch ins.Op {
	case ir.OpAdd:
		cc.emit(asm.Op2("add"+s, rcx, rax))
	case ir.OpSub:
		cc.emit(asm.Op2("sub"+s, rcx, rax))
	case ir.OpMul:
		cc.emit(asm.Op2("imul"+s, rcx, rax))
	case ir.OpAnd:
		cc.emit(asm.Op2("and"+s, rcx, rax))
	case ir.OpOr:
		cc.emit(asm.Op2("or"+s, rcx, rax))
	case ir.OpXor:
		cc.emit(asm.Op2("xor"+s, rcx, rax))
	case ir.OpShl:
		cc.emit(asm.Op2("sal"+s, asm.Reg("cl"), rax))
	case ir.OpShr:
		cc.emit(asm.Op2("sar"+s, asm.Reg("cl"), rax))
	case ir.OpDiv, ir.OpMod:
		if s == "q" {
			cc.emit(asm.Op0("cqto"))
		} else {
			cc.emit(asm.Op0("cltd"))
		}
		cc.emit(asm.Op1("idiv"+s, rcx))
		if ins.Op == ir.OpMod {
			cc.emit(asm.Op2("movq", asm.Reg("rdx"), asm.Reg("rax")))
		}
	default:
		return cc.errorf("unsupported integer operation %v", ins.Op)
	}

	cc.extendFrom("rax", t)

	return cc.store("rax", ins.Result)
}

func (cc *CodegenContext) generateFloatBinaryOp(ins *ir.Instruction) error {
	if err := cc.loadFloat(ins.Arg1, "xmm0"); err != nil {
		return err
	}
	if err := cc.loadFloat(ins.Arg2, "xmm1"); err != nil {
		return err
	}

	x0, x1 := asm.Reg("xmm0"), asm.Reg("xmm1")

	if ins.Op.IsComparison() {
		// Unordered compares leave ZF, PF and CF set: only "above" conditions
		// and the parity-checked equalities are false for NaN.
		switch ins.Op {
		case ir.OpEq:
			cc.emit(
				asm.Op2("ucomisd", x1, x0),
				asm.Op1("sete", asm.Reg("al")),
				asm.Op1("setnp", asm.Reg("cl")),
				asm.Op2("andb", asm.Reg("cl"), asm.Reg("al")))
		case ir.OpNe:
			cc.emit(
				asm.Op2("ucomisd", x1, x0),
				asm.Op1("setne", asm.Reg("al")),
				asm.Op1("setp", asm.Reg("cl")),
				asm.Op2("orb", asm.Reg("cl"), asm.Reg("al")))
		case ir.OpGt:
			cc.emit(asm.Op2("ucomisd", x1, x0), asm.Op1("seta", asm.Reg("al")))
		case ir.OpGe:
			cc.emit(asm.Op2("ucomisd", x1, x0), asm.Op1("setae", asm.Reg("al")))
		case ir.OpLt:
			cc.emit(asm.Op2("ucomisd", x0, x1), asm.Op1("seta", asm.Reg("al")))
		case ir.OpLe:
			cc.emit(asm.Op2("ucomisd", x0, x1), asm.Op1("setae", asm.Reg("al")))
		}
		cc.emit(asm.Op2("movzbl", asm.Reg("al"), asm.Reg("eax")))
		return cc.store("rax", ins.Result)
	}

	switch ins.Op {
	case ir.OpAdd:
		cc.emit(asm.Op2("addsd", x1, x0))
	case ir.OpSub:
		cc.emit(asm.Op2("subsd", x1, x0))
	case ir.OpMul:
		cc.emit(asm.Op2("mulsd", x1, x0))
	case ir.OpDiv:
		cc.emit(asm.Op2("divsd", x1, x0))
	default:
		return cc.errorf("unsupported floating point operation %v", ins.Op)
	}

	cc.emit(asm.Op2("movq", x0, asm.Reg("rax")))

	return cc.store("rax", ins.Result)
}

func (cc *CodegenContext) generateUnaryOp(ins *ir.Instruction) error {
	if err := cc.load(ins.Arg1, "rax"); err != nil {
		return err
	}

	t := ins.Result.Type

	switch {
	case t.IsFloat() && ins.Op == ir.OpNeg:
		// Flip the sign bit.
		cc.emit(asm.Op2("btcq", asm.Imm(63), asm.Reg("rax")))
	case t.IsFloat():
		return cc.errorf("unsupported floating point operation %v", ins.Op)
	case ins.Op == ir.OpNeg:
		cc.emit(asm.Op1("neg"+suffix(t), asm.Reg(sized("rax", wide(t)))))
		cc.extendFrom("rax", t)
	default:
		cc.emit(asm.Op1("not"+suffix(t), asm.Reg(sized("rax", wide(t)))))
		cc.extendFrom("rax", t)
	}

	return cc.store("rax", ins.Result)
}

func (cc *CodegenContext) generateCast(ins *ir.Instruction) error {
	from, to := ins.Arg1.Type, ins.Result.Type

	if err := cc.load(ins.Arg1, "rax"); err != nil {
		return err
	}

	switch {
	case from.IsFloat() && to.IsFloat():
	case to.IsFloat():
		cc.emit(
			asm.Op2("cvtsi2sdq", asm.Reg("rax"), asm.Reg("xmm0")),
			asm.Op2("movq", asm.Reg("xmm0"), asm.Reg("rax")))
	case from.IsFloat():
		cc.emit(
			asm.Op2("movq", asm.Reg("rax"), asm.Reg("xmm0")),
			asm.Op2("cvttsd2siq", asm.Reg("xmm0"), asm.Reg("rax")))
		cc.extendFrom("rax", to)
	default:
		cc.extendFrom("rax", to)
	}

	return cc.store("rax", ins.Result)
}

func (cc *CodegenContext) generateAddressOf(ins *ir.Instruction) error {
	v := ins.Arg1

	switch v.Kind {
	case ir.VarValue:
		loc, ok := cc.alloc.Lookup(v)
		if !ok {
			return cc.errorf("no location for %v", v)
		}
		if loc.IsReg() {
			return cc.errorf("address of %v held in register %s", v, loc.Reg)
		}
		cc.emit(asm.Op2("leaq", asm.DerefWithOffset(asm.Reg("rbp"), loc.Offset), asm.Reg("rax")))
	case ir.GlobalValue, ir.FuncRef:
		cc.emit(asm.Op2("leaq", asm.RipRef(v.Name), asm.Reg("rax")))
	default:
		return cc.errorf("cannot take address of %v", v)
	}

	return cc.store("rax", ins.Result)
}

func (cc *CodegenContext) generateFunctionCall(ins *ir.Instruction) error {
	var ints, floats, stack []ir.Value

	for _, a := range ins.Args {
		switch {
		case a.Type.IsFloat() && len(floats) < len(floatArgRegisters):
			floats = append(floats, a)
		case !a.Type.IsFloat() && len(ints) < len(intArgRegisters):
			ints = append(ints, a)
		default:
			stack = append(stack, a)
		}
	}

	// Keep rsp 16-byte aligned at the call.
	cleanup := len(stack) * slotSize
	if len(stack)%2 == 1 {
		cc.emit(asm.Op2("subq", asm.Imm(slotSize), asm.Reg("rsp")))
		cleanup += slotSize
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if err := cc.load(stack[i], "rax"); err != nil {
			return err
		}
		cc.emit(asm.Op1("pushq", asm.Reg("rax")))
	}

	for i, v := range floats {
		if err := cc.loadFloat(v, floatArgRegisters[i]); err != nil {
			return err
		}
	}

	// Argument sources live in callee-saved registers, slots or memory, so
	// filling one argument register never clobbers another argument.
	for i, v := range ints {
		if err := cc.load(v, intArgRegisters[i]); err != nil {
			return err
		}
	}

	// Variadic callees read the number of vector registers used from al.
	cc.emit(asm.Op2("movl", asm.Imm(int64(len(floats))), asm.Reg("eax")))

	target := ins.Callee
	if cc.program.Function(target) == nil {
		target += "@PLT"
	}
	cc.emit(asm.Op1("call", asm.Ref(target)))

	if cleanup > 0 {
		cc.emit(asm.Op2("addq", asm.Imm(int64(cleanup)), asm.Reg("rsp")))
	}

	r := ins.Result
	if r.IsNone() {
		return nil
	}

	if r.Type.IsFloat() {
		cc.emit(asm.Op2("movq", asm.Reg("xmm0"), asm.Reg("rax")))
	} else {
		cc.extendFrom("rax", r.Type)
	}

	return cc.store("rax", r)
}

func (cc *CodegenContext) generateReturn(ins *ir.Instruction) error {
	if v := ins.Arg1; !v.IsNone() {
		if err := cc.load(v, "rax"); err != nil {
			return err
		}
		if v.Type.IsFloat() {
			cc.emit(asm.Op2("movq", asm.Reg("rax"), asm.Reg("xmm0")))
		}
	}

	cc.emit(asm.Op1("jmp", asm.Ref(cc.exitLabel())))

	return nil
}

// truth sets ZF when v is false. NaN is true.
func (cc *CodegenContext) truth(v ir.Value) error {
	if !v.Type.IsFloat() {
		if err := cc.load(v, "rax"); err != nil {
			return err
		}
		cc.emit(asm.Op2("testq", asm.Reg("rax"), asm.Reg("rax")))
		return nil
	}

	if err := cc.loadFloat(v, "xmm0"); err != nil {
		return err
	}
	cc.emit(
		asm.Op2("xorpd", asm.Reg("xmm1"), asm.Reg("xmm1")),
		asm.Op2("ucomisd", asm.Reg("xmm1"), asm.Reg("xmm0")),
		asm.Op1("setne", asm.Reg("al")),
		asm.Op1("setp", asm.Reg("cl")),
		asm.Op2("orb", asm.Reg("cl"), asm.Reg("al")),
		asm.Op2("testb", asm.Reg("al"), asm.Reg("al")))

	return nil
}

// operand resolves a temporary, local or global to an assembly operand.
func (cc *CodegenContext) operand(v ir.Value) (asm.Arg, error) {
	switch v.Kind {
	case ir.TempValue, ir.VarValue:
		loc, ok := cc.alloc.Lookup(v)
		if !ok {
			return asm.Arg{}, cc.errorf("no location for %v", v)
		}
		if loc.IsReg() {
			return asm.Reg(loc.Reg), nil
		}
		return asm.DerefWithOffset(asm.Reg("rbp"), loc.Offset), nil
	case ir.GlobalValue:
		return asm.RipRef(v.Name), nil
	}

	return asm.Arg{}, cc.errorf("%v is not a storage location", v)
}

// load puts v into the 64-bit register reg. Integers arrive sign-extended,
// doubles as their bit pattern.
func (cc *CodegenContext) load(v ir.Value, reg string) error {
	dst := asm.Reg(reg)

	switch v.Kind {
	case ir.IntConst:
		if util.FitsInt32(v.Int) {
			cc.emit(asm.Op2("movq", asm.Imm(v.Int), dst))
		} else {
			cc.emit(asm.Op2("movabsq", asm.Imm(v.Int), dst))
		}
		return nil
	case ir.FloatConst:
		cc.emit(asm.Op2("movq", asm.RipRef(cc.floatLiterals[math.Float64bits(v.Float)]), dst))
		return nil
	case ir.StringRef:
		cc.emit(asm.Op2("leaq", asm.RipRef(stringLabel(v.Name)), dst))
		return nil
	case ir.FuncRef:
		cc.emit(asm.Op2("leaq", asm.RipRef(v.Name), dst))
		return nil
	}

	src, err := cc.operand(v)
	if err != nil {
		return err
	}

	switch {
	case src.IsReg() && src.Reg == reg:
	case src.IsReg():
		cc.emit(asm.Op2("movq", src, dst))
	default:
		// Memory holds values at their natural width.
		cc.emit(asm.Op2(loadOp(v.Type), src, dst))
	}

	return nil
}

func (cc *CodegenContext) loadFloat(v ir.Value, xmm string) error {
	if v.Kind == ir.FloatConst {
		cc.emit(asm.Op2("movsd", asm.RipRef(cc.floatLiterals[math.Float64bits(v.Float)]), asm.Reg(xmm)))
		return nil
	}

	if err := cc.load(v, "rax"); err != nil {
		return err
	}
	cc.emit(asm.Op2("movq", asm.Reg("rax"), asm.Reg(xmm)))

	return nil
}

// store writes the 64-bit register reg to the location of dst.
func (cc *CodegenContext) store(reg string, dst ir.Value) error {
	to, err := cc.operand(dst)
	if err != nil {
		return err
	}

	switch {
	case to.IsReg() && to.Reg == reg:
	case to.IsReg():
		cc.emit(asm.Op2("movq", asm.Reg(reg), to))
	default:
		cc.emit(asm.Op2(storeOp(dst.Type), asm.Reg(sized(reg, dst.Type)), to))
	}

	return nil
}

// extendFrom sign-extends the low part of reg into rax according to t.
func (cc *CodegenContext) extendFrom(reg string, t ir.Type) {
	switch t {
	case ir.I8:
		cc.emit(asm.Op2("movsbq", asm.Reg(sized(reg, ir.I8)), asm.Reg("rax")))
	case ir.I32:
		cc.emit(asm.Op2("movslq", asm.Reg(sized(reg, ir.I32)), asm.Reg("rax")))
	default:
		if reg != "rax" {
			cc.emit(asm.Op2("movq", asm.Reg(reg), asm.Reg("rax")))
		}
	}
}

// wide maps the types computed with 32-bit instructions to I32.
func wide(t ir.Type) ir.Type {
	if t == ir.I8 {
		return ir.I32
	}
	return t
}

func suffix(t ir.Type) string {
	if t == ir.I8 || t == ir.I32 {
		return "l"
	}
	return "q"
}

// sized names the part of a 64-bit register that holds a value of type t.
func sized(reg string, t ir.Type) string {
	sub, ok := subRegisters[reg]
	if !ok {
		return reg
	}
	switch t {
	case ir.I8:
		return sub[1]
	case ir.I32:
		return sub[0]
	}
	return reg
}

func loadOp(t ir.Type) string {
	switch t {
	case ir.I8:
		return "movsbq"
	case ir.I32:
		return "movslq"
	}
	return "movq"
}

func storeOp(t ir.Type) string {
	switch t {
	case ir.I8:
		return "movb"
	case ir.I32:
		return "movl"
	}
	return "movq"
}

func setcc(op ir.Opcode, unsigned bool) string {
	switch op {
	case ir.OpEq:
		return "sete"
	case ir.OpNe:
		return "setne"
	case ir.OpLt:
		if unsigned {
			return "setb"
		}
		return "setl"
	case ir.OpLe:
		if unsigned {
			return "setbe"
		}
		return "setle"
	case ir.OpGt:
		if unsigned {
			return "seta"
		}
		return "setg"
	case ir.OpGe:
		if unsigned {
			return "setae"
		}
		return "setge"
	}
	panic(fmt.Sprintf("not a comparison: %v", op))
}
