package x86_64_linux

import (
	"context"

	"github.com/iley/tacc/internal/asm"
	"github.com/iley/tacc/internal/codegen/common"
	"github.com/iley/tacc/internal/codegen/x86_64"
	"github.com/iley/tacc/internal/ir"
)

type CodeGenerator struct{}

func (cg *CodeGenerator) Generate(ctx context.Context, program *ir.Program, features common.Features) (asm.Program, error) {
	return x86_64.Generate(ctx, program, features)
}

func (cg *CodeGenerator) Optimize(p asm.Program) asm.Program {
	return x86_64.Optimize(p)
}

func (cg *CodeGenerator) Format(b []byte, p asm.Program) []byte {
	return formatProgram(b, p)
}
