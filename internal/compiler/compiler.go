package compiler

import (
	"bytes"
	"context"
	"strings"

	"tlog.app/go/tlog"

	"github.com/iley/tacc/internal/ast"
	"github.com/iley/tacc/internal/codegen"
	"github.com/iley/tacc/internal/config"
	"github.com/iley/tacc/internal/ir"
	"github.com/iley/tacc/internal/opt"
)

type Stats struct {
	Functions int
	// IR instruction counts before and after optimization.
	IRBefore int
	IRAfter  int
	AsmLines int
}

type Result struct {
	// Optimized IR the assembly was generated from.
	IR       *ir.Program
	Assembly string
	Stats    Stats
}

// Lower turns a typed tree into optimized IR. It is the front half of Compile.
func Lower(ctx context.Context, tree *ast.Program, cfg config.Config) (res *ir.Program, before int, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compiler: lower", "level", cfg.OptLevel)
	defer tr.Finish("err", &err)

	irp, err := ir.Generate(ctx, tree)
	if err != nil {
		return nil, 0, err
	}

	if tr.If("dump_ir") {
		var b bytes.Buffer
		irp.Print(&b)
		tr.Printw("generated ir", "ir", b.String())
	}

	before = irp.InstrCount()

	irp, err = opt.Optimize(ctx, irp, opt.Options{
		Level:         cfg.OptLevel,
		MaxIterations: cfg.MaxIterations,
		Verify:        cfg.Verify,
	})
	if err != nil {
		return nil, 0, err
	}

	if tr.If("dump_ir") && cfg.OptLevel > 0 {
		var b bytes.Buffer
		irp.Print(&b)
		tr.Printw("optimized ir", "ir", b.String())
	}

	return irp, before, nil
}

// Compile runs the whole pipeline over one compilation unit. No partial
// output is produced: any error aborts the unit.
func Compile(ctx context.Context, tree *ast.Program, cfg config.Config) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compiler: compile", "level", cfg.OptLevel, "target", cfg.Target)
	defer tr.Finish("err", &err)

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	irp, before, err := Lower(ctx, tree, cfg)
	if err != nil {
		return nil, err
	}

	out, err := codegen.Generate(ctx, irp, codegen.Options{
		Target:   cfg.Target,
		Debug:    cfg.Debug,
		Optimize: cfg.OptLevel > 0,
	})
	if err != nil {
		return nil, err
	}

	res = &Result{
		IR:       irp,
		Assembly: out,
		Stats: Stats{
			Functions: len(irp.Functions),
			IRBefore:  before,
			IRAfter:   irp.InstrCount(),
			AsmLines:  strings.Count(out, "\n"),
		},
	}

	tr.Printw("compiled", "functions", res.Stats.Functions, "ir_before", res.Stats.IRBefore, "ir_after", res.Stats.IRAfter, "asm_lines", res.Stats.AsmLines)

	return res, nil
}
