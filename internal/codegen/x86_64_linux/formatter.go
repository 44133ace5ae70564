package x86_64_linux

import (
	"fmt"

	"github.com/nikandfor/hacked/hfmt"

	"github.com/iley/tacc/internal/asm"
	"github.com/iley/tacc/internal/util"
)

func formatProgram(b []byte, p asm.Program) []byte {
	for _, fn := range p.Functions {
		b = formatFunction(b, fn)
	}

	b = formatStringLiterals(b, p.StringLiterals)
	b = formatFloatLiterals(b, p.FloatLiterals)
	b = formatGlobalVariables(b, p.GlobalVariables)

	b = append(b, ".section .note.GNU-stack,\"\",@progbits\n"...)

	return b
}

func formatFunction(b []byte, fn asm.Function) []byte {
	b = append(b, ".text\n"...)
	if fn.Global {
		b = hfmt.Appendf(b, ".globl %s\n", fn.Name)
	}
	b = hfmt.Appendf(b, ".type %s, @function\n", fn.Name)
	b = hfmt.Appendf(b, "%s:\n", fn.Name)

	for _, line := range fn.Lines {
		b = formatLine(b, line)
	}

	b = hfmt.Appendf(b, ".size %s, .-%s\n", fn.Name, fn.Name)

	return b
}

func formatLine(b []byte, line asm.Line) []byte {
	if line.Label != "" {
		b = hfmt.Appendf(b, "%s:", line.Label)
	} else if line.Op != "" {
		b = hfmt.Appendf(b, "  %s", line.Op)

		if line.Arity >= 1 {
			b = append(b, ' ')
			b = appendArg(b, line.Arg1)
		}
		if line.Arity >= 2 {
			b = append(b, ", "...)
			b = appendArg(b, line.Arg2)
		}
	}

	if line.Comment != "" {
		b = hfmt.Appendf(b, "  # %s", line.Comment)
	}

	return append(b, '\n')
}

func appendArg(b []byte, arg asm.Arg) []byte {
	// Label relative to a register, rip-relative addressing in practice.
	if arg.Label != "" && arg.Reg != "" {
		if arg.Offset != 0 {
			return hfmt.Appendf(b, "%s%+d(%%%s)", arg.Label, arg.Offset, arg.Reg)
		}
		return hfmt.Appendf(b, "%s(%%%s)", arg.Label, arg.Reg)
	}

	if arg.Deref && arg.Reg == "" {
		panic(fmt.Errorf("invalid arg %#v. dereferencing only supported for registers", arg))
	}

	switch {
	case arg.Reg != "" && arg.Deref && arg.Offset != 0:
		return hfmt.Appendf(b, "%d(%%%s)", arg.Offset, arg.Reg)
	case arg.Reg != "" && arg.Deref:
		return hfmt.Appendf(b, "(%%%s)", arg.Reg)
	case arg.Reg != "":
		return hfmt.Appendf(b, "%%%s", arg.Reg)
	case arg.Label != "":
		return append(b, arg.Label...)
	case arg.Imm != nil:
		return hfmt.Appendf(b, "$%d", *arg.Imm)
	}

	panic(fmt.Errorf("invalid arg %#v", arg))
}

func formatStringLiterals(b []byte, stringLiterals []asm.StringLiteral) []byte {
	if len(stringLiterals) == 0 {
		return b
	}

	b = append(b, ".section .rodata\n"...)
	for _, sl := range stringLiterals {
		b = hfmt.Appendf(b, "%s:\n", sl.Label)
		b = hfmt.Appendf(b, "  .string \"%s\"\n", util.EscapeString(sl.Text))
	}

	return b
}

func formatFloatLiterals(b []byte, floatLiterals []asm.FloatLiteral) []byte {
	if len(floatLiterals) == 0 {
		return b
	}

	b = append(b, ".section .rodata\n"...)
	for _, fl := range floatLiterals {
		b = append(b, ".align 8\n"...)
		b = hfmt.Appendf(b, "%s:\n", fl.Label)
		b = hfmt.Appendf(b, "  .quad 0x%016x\n", fl.Bits)
	}

	return b
}

func formatGlobalVariables(b []byte, globals []asm.GlobalVariable) []byte {
	var data, bss []asm.GlobalVariable
	for _, g := range globals {
		if g.Init != nil {
			data = append(data, g)
		} else {
			bss = append(bss, g)
		}
	}

	if len(data) != 0 {
		b = append(b, ".data\n"...)
		for _, g := range data {
			b = formatGlobalHeader(b, g)
			b = formatData(b, g)
		}
	}

	if len(bss) != 0 {
		b = append(b, ".bss\n"...)
		for _, g := range bss {
			b = formatGlobalHeader(b, g)
			b = hfmt.Appendf(b, "  .zero %d\n", g.Size)
		}
	}

	return b
}

func formatGlobalHeader(b []byte, g asm.GlobalVariable) []byte {
	b = hfmt.Appendf(b, ".globl %s\n", g.Label)
	b = hfmt.Appendf(b, ".type %s, @object\n", g.Label)
	b = hfmt.Appendf(b, ".size %s, %d\n", g.Label, g.Size)
	b = hfmt.Appendf(b, ".align %d\n", g.Size)
	return hfmt.Appendf(b, "%s:\n", g.Label)
}

func formatData(b []byte, g asm.GlobalVariable) []byte {
	if g.Init.Ref != "" {
		return hfmt.Appendf(b, "  .quad %s\n", g.Init.Ref)
	}

	switch g.Size {
	case 1:
		return hfmt.Appendf(b, "  .byte %d\n", g.Init.Int)
	case 4:
		return hfmt.Appendf(b, "  .long %d\n", g.Init.Int)
	}

	return hfmt.Appendf(b, "  .quad %d\n", g.Init.Int)
}
