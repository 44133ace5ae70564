package compiler

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iley/tacc/internal/ast"
	"github.com/iley/tacc/internal/config"
	"github.com/iley/tacc/internal/ir"
)

func decode(t *testing.T, src string) *ast.Program {
	t.Helper()
	tree, err := ast.Decode(strings.NewReader(src), "test.yaml")
	require.NoError(t, err)
	return tree
}

const constantProgram = `
functions:
  - name: main
    returns: int
    body:
      - decl: {name: x, type: int, init: {op: "*", left: {int: 2}, right: {int: 3}}}
      - return: {value: {op: "+", left: {ref: x}, right: {int: 4}}}
`

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		level int
	}{
		{"no optimization", 0},
		{"level 1", 1},
		{"level 2", 2},
		{"level 3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.OptLevel = tt.level

			res, err := Compile(context.Background(), decode(t, constantProgram), cfg)
			require.NoError(t, err)

			assert.Equal(t, 1, res.Stats.Functions)
			assert.LessOrEqual(t, res.Stats.IRAfter, res.Stats.IRBefore)
			assert.Equal(t, res.IR.InstrCount(), res.Stats.IRAfter)
			assert.Equal(t, strings.Count(res.Assembly, "\n"), res.Stats.AsmLines)
			assert.Contains(t, res.Assembly, "main:\n")

			if tt.level >= 2 {
				assert.Equal(t, 1, res.Stats.IRAfter)
				assert.Contains(t, res.Assembly, "movq $10, %rax")
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.OptLevel = 7

		_, err := Compile(context.Background(), decode(t, constantProgram), cfg)
		assert.ErrorContains(t, err, "optimization level must be between 0 and 3")
	})

	t.Run("unknown target", func(t *testing.T) {
		cfg := config.Default()
		cfg.Target = "pdp11"

		_, err := Compile(context.Background(), decode(t, constantProgram), cfg)
		assert.ErrorContains(t, err, "unknown target: pdp11")
	})

	t.Run("unsupported construct", func(t *testing.T) {
		tree := decode(t, `
functions:
  - name: f
    returns: int
    params: [{name: s, type: int}]
    body:
      - return: {value: {object: {ref: s}, field: x}}
`)

		res, err := Compile(context.Background(), tree, config.Default())
		assert.Nil(t, res)

		var gerr *ir.GeneratorError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, "member access .x is not supported", gerr.Message)
	})
}

func TestLower(t *testing.T) {
	cfg := config.Default()
	cfg.OptLevel = 0

	irp, before, err := Lower(context.Background(), decode(t, constantProgram), cfg)
	require.NoError(t, err)
	assert.Equal(t, irp.InstrCount(), before)

	cfg.OptLevel = 3
	optimized, before3, err := Lower(context.Background(), decode(t, constantProgram), cfg)
	require.NoError(t, err)
	assert.Equal(t, before, before3)
	assert.Equal(t, "return 10", optimized.Functions[0].Instrs[0].String())
}

func TestConcurrentCompilations(t *testing.T) {
	tree := decode(t, `
globals:
  - {name: total, type: long}
functions:
  - name: add
    returns: long
    params: [{name: n, type: long}]
    body:
      - expr: {op: "+=", target: {ref: total}, value: {ref: n}}
      - return: {value: {ref: total}}
  - name: main
    returns: int
    body:
      - for:
          init: {decl: {name: i, type: long, init: {long: 0}}}
          cond: {op: "<", left: {ref: i}, right: {long: 10}}
          step: {op: "++", operand: {ref: i}}
          body:
            - expr: {call: add, args: [{ref: i}]}
      - return: {value: {cast: {ref: total}, type: int}}
`)

	expected, err := Compile(context.Background(), tree, config.Default())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 8)
	errs := make([]error, 8)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := Compile(context.Background(), tree, config.Default())
			errs[i] = err
			if err == nil {
				results[i] = res.Assembly
			}
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, expected.Assembly, results[i])
	}
}
