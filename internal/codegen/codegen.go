package codegen

import (
	"context"
	"slices"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/iley/tacc/internal/codegen/common"
	"github.com/iley/tacc/internal/codegen/x86_64_linux"
	"github.com/iley/tacc/internal/ir"
)

// Error is returned for IR the target cannot translate.
type Error = common.Error

const DefaultTarget = "x86_64-linux"

var targets = map[string]func() common.CodeGenerator{
	"x86_64-linux": func() common.CodeGenerator { return &x86_64_linux.CodeGenerator{} },
}

// Targets lists the registered target names in sorted order.
func Targets() []string {
	var names []string
	for name := range targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func IsTarget(name string) bool {
	_, ok := targets[name]
	return ok
}

type Options struct {
	Target string
	// Debug annotates the output with IR instructions.
	Debug bool
	// Optimize enables the assembly-level cleanup.
	Optimize bool
}

// Generate translates an IR program into assembly text. Either the whole
// program is translated or an error is returned.
func Generate(ctx context.Context, irp *ir.Program, opts Options) (_ string, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "codegen: generate", "target", opts.Target, "debug", opts.Debug)
	defer tr.Finish("err", &err)

	newcg, ok := targets[opts.Target]
	if !ok {
		return "", errors.New("unknown target: %s", opts.Target)
	}

	cg := newcg()

	asmProgram, err := cg.Generate(ctx, irp, common.Features{Debug: opts.Debug})
	if err != nil {
		return "", err
	}

	if opts.Optimize {
		asmProgram = cg.Optimize(asmProgram)
	}

	return string(cg.Format(nil, asmProgram)), nil
}
