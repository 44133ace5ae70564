package opt

import (
	"context"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/iley/tacc/internal/ir"
)

const DefaultMaxIterations = 16

type Options struct {
	// Level selects the passes: 0 disables optimization, 3 enables everything.
	Level int
	// MaxIterations bounds the fixed-point loop over the pipeline.
	MaxIterations int
	// Verify re-validates the function after every pass.
	Verify bool
}

type pass struct {
	name  string
	level int
	run   func(f *ir.Function) bool
}

// The pipeline order matters: folding feeds propagation, which feeds simplification and DCE.
var pipeline = []pass{
	{"fold", 1, foldConstants},
	{"constprop", 2, propagateConstants},
	{"copyprop", 2, propagateCopies},
	{"simplify", 1, simplifyArithmetic},
	{"dce", 1, eliminateDeadCode},
}

var peephole = []pass{
	{"peephole-store-load", 3, forwardStores},
	{"peephole-fuse", 3, fuseAssignments},
	{"peephole-copies", 3, removeReverseCopies},
	{"peephole-jumps", 3, removeJumpsToNext},
	{"peephole-strength", 3, reduceMultiplications},
}

// Optimize returns an optimized copy of prog. The input program is not modified.
func Optimize(ctx context.Context, prog *ir.Program, opts Options) (res *ir.Program, err error) {
	if opts.Level <= 0 {
		return prog, nil
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "opt: optimize", "level", opts.Level, "functions", len(prog.Functions))
	defer tr.Finish("err", &err)

	res = prog.Clone()

	for _, f := range res.Functions {
		before := len(f.Instrs)

		err = optimizeFunction(ctx, f, opts)
		if err != nil {
			return nil, err
		}

		tr.V("opt_func").Printw("function optimized", "func", f.Name, "before", before, "after", len(f.Instrs))
	}

	return res, nil
}

type optimizer struct {
	tr   tlog.Span
	f    *ir.Function
	opts Options
}

func optimizeFunction(ctx context.Context, f *ir.Function, opts Options) error {
	o := &optimizer{
		tr:   tlog.SpanFromContext(ctx),
		f:    f,
		opts: opts,
	}

	_, err := o.fixedPoint()
	if err != nil {
		return err
	}

	if opts.Level < 3 {
		return nil
	}

	changed := false
	for _, p := range peephole {
		c, err := o.run(p)
		if err != nil {
			return err
		}
		changed = changed || c
	}

	if !changed {
		return nil
	}

	// Peephole rewrites usually leave dead code behind.
	_, err = o.fixedPoint()
	return err
}

// fixedPoint re-runs the pipeline until nothing changes or the iteration limit is hit.
func (o *optimizer) fixedPoint() (changed bool, err error) {
	for iter := 0; ; iter++ {
		if iter == o.opts.MaxIterations {
			o.tr.Printw("optimizer iteration limit reached", "func", o.f.Name, "limit", o.opts.MaxIterations)
			return changed, nil
		}

		round := false

		for _, p := range pipeline {
			if p.level > o.opts.Level {
				continue
			}

			c, err := o.run(p)
			if err != nil {
				return changed, err
			}
			if !c {
				continue
			}

			round = true

			if p.name == "dce" {
				continue
			}

			// Every other pass may leave dead results behind.
			_, err = o.run(pipeline[len(pipeline)-1])
			if err != nil {
				return changed, err
			}
		}

		if !round {
			return changed, nil
		}

		changed = true
	}
}

func (o *optimizer) run(p pass) (bool, error) {
	changed := p.run(o.f)

	if o.tr.If("opt_pass") {
		o.tr.Printw("pass", "func", o.f.Name, "pass", p.name, "changed", changed, "instrs", len(o.f.Instrs))
	}

	if !changed || !o.opts.Verify {
		return changed, nil
	}

	err := ir.Validate(o.f, p.name)
	if err != nil {
		o.tr.Printw("invariant violated", "func", o.f.Name, "pass", p.name, "err", err, "from", loc.Caller(1))
		return changed, err
	}

	return changed, nil
}
