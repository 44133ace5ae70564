package x86_64_linux

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iley/tacc/internal/asm"
)

func TestFormatLine(t *testing.T) {
	tests := []struct {
		name     string
		line     asm.Line
		expected string
	}{
		{"label", asm.Label(".Lf.else0"), ".Lf.else0:\n"},
		{"no operands", asm.Op0("ret"), "  ret\n"},
		{"register", asm.Op1("pushq", asm.Reg("rbp")), "  pushq %rbp\n"},
		{"immediate", asm.Op2("subq", asm.Imm(32), asm.Reg("rsp")), "  subq $32, %rsp\n"},
		{"negative immediate", asm.Op2("movq", asm.Imm(-1), asm.Reg("rax")), "  movq $-1, %rax\n"},
		{"frame slot", asm.Op2("movq", asm.DerefWithOffset(asm.Reg("rbp"), -16), asm.Reg("rbx")), "  movq -16(%rbp), %rbx\n"},
		{"indirect", asm.Op2("movl", asm.Reg("ecx"), asm.DerefWithOffset(asm.Reg("rax"), 0)), "  movl %ecx, (%rax)\n"},
		{"rip relative", asm.Op2("leaq", asm.RipRef(".Lstr0"), asm.Reg("rdi")), "  leaq .Lstr0(%rip), %rdi\n"},
		{"rip relative with offset", asm.Op2("movq", asm.RipRef("g").WithOffset(8), asm.Reg("rax")), "  movq g+8(%rip), %rax\n"},
		{"jump", asm.Op1("jmp", asm.Ref(".Lf.exit")), "  jmp .Lf.exit\n"},
		{"comment", asm.Comment("t1 = a + b"), "  # t1 = a + b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(formatLine(nil, tt.line)))
		})
	}
}

func TestFormatProgram(t *testing.T) {
	p := asm.Program{
		Functions: []asm.Function{
			{Name: "main", Global: true, Lines: []asm.Line{asm.Op0("ret")}},
		},
		StringLiterals: []asm.StringLiteral{{Label: ".Lstr0", Text: "a\tb"}},
		FloatLiterals:  []asm.FloatLiteral{{Label: ".Lflt0", Bits: 0x3ff0000000000000}},
		GlobalVariables: []asm.GlobalVariable{
			{Label: "n", Size: 4, Init: &asm.Data{Int: -3}},
			{Label: "buf", Size: 8},
			{Label: "fp", Size: 8, Init: &asm.Data{Ref: "main"}},
		},
	}

	expected := `.text
.globl main
.type main, @function
main:
  ret
.size main, .-main
.section .rodata
.Lstr0:
  .string "a\tb"
.section .rodata
.align 8
.Lflt0:
  .quad 0x3ff0000000000000
.data
.globl n
.type n, @object
.size n, 4
.align 4
n:
  .long -3
.globl fp
.type fp, @object
.size fp, 8
.align 8
fp:
  .quad main
.bss
.globl buf
.type buf, @object
.size buf, 8
.align 8
buf:
  .zero 8
.section .note.GNU-stack,"",@progbits
`

	cg := &CodeGenerator{}
	assert.Equal(t, expected, string(cg.Format(nil, p)))
}

func TestFormatPanicsOnInvalidArg(t *testing.T) {
	assert.Panics(t, func() {
		formatLine(nil, asm.Op1("jmp", asm.Arg{}))
	})
	assert.Panics(t, func() {
		formatLine(nil, asm.Op1("jmp", asm.Arg{Deref: true}))
	})
}
