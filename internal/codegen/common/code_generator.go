package common

import (
	"context"

	"github.com/iley/tacc/internal/asm"
	"github.com/iley/tacc/internal/ir"
)

type Features struct {
	// Annotate the assembly with the IR instruction each group of lines came from.
	Debug bool
}

type CodeGenerator interface {
	Generate(context.Context, *ir.Program, Features) (asm.Program, error)
	Optimize(asm.Program) asm.Program
	Format([]byte, asm.Program) []byte
}
