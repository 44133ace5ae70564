package x86_64

import (
	"fmt"

	"github.com/iley/tacc/internal/asm"
)

func Optimize(program asm.Program) asm.Program {
	result := program
	result.Functions = make([]asm.Function, len(program.Functions))

	for i, fn := range program.Functions {
		fn.Lines = optimizeFunction(fn.Lines)
		result.Functions[i] = fn
	}

	return result
}

func optimizeFunction(lines []asm.Line) []asm.Line {
	lines = removeSelfMoves(lines)
	lines = removeRedundantLoads(lines)
	return removeIneffectiveJumps(lines)
}

func removeIneffectiveJumps(lines []asm.Line) []asm.Line {
	result := make([]asm.Line, 0, len(lines))

	for i, curr := range lines {
		if isIneffectiveJump(curr, lines[i+1:]) {
			continue
		}

		result = append(result, curr)
	}

	return result
}

// isIneffectiveJump reports whether curr jumps to a label in the run of labels
// and comments right after it.
func isIneffectiveJump(curr asm.Line, next []asm.Line) bool {
	if curr.Op != "jmp" {
		return false
	}

	label := curr.Arg1.Label
	if label == "" {
		panic(fmt.Errorf("invalid jump instruction, label missing: %#v", curr))
	}

	for _, line := range next {
		switch {
		case line.Op != "":
			return false
		case line.Label == label:
			return true
		}
	}

	return false
}

func removeSelfMoves(lines []asm.Line) []asm.Line {
	result := make([]asm.Line, 0, len(lines))

	for _, line := range lines {
		if line.Op == "movq" && line.Arg1.IsReg() && line.Arg1.Equal(line.Arg2) {
			continue
		}

		result = append(result, line)
	}

	return result
}

// removeRedundantLoads drops "movq B, A" right after "movq A, B": the value is already there.
func removeRedundantLoads(lines []asm.Line) []asm.Line {
	result := make([]asm.Line, 0, len(lines))

	for i, line := range lines {
		if i > 0 && line.Op == "movq" {
			prev := lines[i-1]
			if prev.Op == "movq" && prev.Arg1.Equal(line.Arg2) && prev.Arg2.Equal(line.Arg1) {
				continue
			}
		}

		result = append(result, line)
	}

	return result
}
