package x86_64

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iley/tacc/internal/asm"
	"github.com/iley/tacc/internal/ir"
)

func TestOptimize(t *testing.T) {
	rax, rbx := asm.Reg("rax"), asm.Reg("rbx")
	slot := asm.DerefWithOffset(asm.Reg("rbp"), -8)

	tests := []struct {
		name     string
		lines    []asm.Line
		expected []asm.Line
	}{
		{
			name: "jump to the next label",
			lines: []asm.Line{
				asm.Op1("jmp", asm.Ref(".Lf.exit")),
				asm.Label(".Lf.exit"),
				asm.Op0("ret"),
			},
			expected: []asm.Line{
				asm.Label(".Lf.exit"),
				asm.Op0("ret"),
			},
		},
		{
			name: "jump over comments and labels",
			lines: []asm.Line{
				asm.Op1("jmp", asm.Ref(".Lf.end2")),
				asm.Comment("end1:"),
				asm.Label(".Lf.end1"),
				asm.Label(".Lf.end2"),
			},
			expected: []asm.Line{
				asm.Comment("end1:"),
				asm.Label(".Lf.end1"),
				asm.Label(".Lf.end2"),
			},
		},
		{
			name: "jump over code",
			lines: []asm.Line{
				asm.Op1("jmp", asm.Ref(".Lf.exit")),
				asm.Op0("ret"),
				asm.Label(".Lf.exit"),
			},
			expected: []asm.Line{
				asm.Op1("jmp", asm.Ref(".Lf.exit")),
				asm.Op0("ret"),
				asm.Label(".Lf.exit"),
			},
		},
		{
			name: "self move",
			lines: []asm.Line{
				asm.Op2("movq", rbx, rbx),
				asm.Op2("movl", asm.Reg("eax"), asm.Reg("eax")),
			},
			expected: []asm.Line{
				asm.Op2("movl", asm.Reg("eax"), asm.Reg("eax")),
			},
		},
		{
			name: "store then reload",
			lines: []asm.Line{
				asm.Op2("movq", rax, slot),
				asm.Op2("movq", slot, rax),
				asm.Op2("movq", rax, rbx),
			},
			expected: []asm.Line{
				asm.Op2("movq", rax, slot),
				asm.Op2("movq", rax, rbx),
			},
		},
		{
			name: "reload of a different width",
			lines: []asm.Line{
				asm.Op2("movl", asm.Reg("eax"), slot),
				asm.Op2("movslq", slot, rax),
			},
			expected: []asm.Line{
				asm.Op2("movl", asm.Reg("eax"), slot),
				asm.Op2("movslq", slot, rax),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := asm.Program{Functions: []asm.Function{{Name: "f", Lines: tt.lines}}}
			result := Optimize(p)
			assert.Equal(t, tt.expected, result.Functions[0].Lines)
		})
	}
}

func TestOptimizeKeepsInput(t *testing.T) {
	lines := []asm.Line{
		asm.Op1("jmp", asm.Ref(".Lf.exit")),
		asm.Label(".Lf.exit"),
	}
	p := asm.Program{Functions: []asm.Function{{Name: "f", Lines: lines}}}

	Optimize(p)

	assert.Len(t, p.Functions[0].Lines, 2)
}

func TestSized(t *testing.T) {
	assert.Equal(t, "al", sized("rax", ir.I8))
	assert.Equal(t, "r12d", sized("r12", ir.I32))
	assert.Equal(t, "rdi", sized("rdi", ir.I64))
	assert.Equal(t, "sil", sized("rsi", ir.I8))
	assert.Equal(t, "xmm0", sized("xmm0", ir.I32))
}
