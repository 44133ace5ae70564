package ir

import (
	"fmt"

	"github.com/iley/tacc/internal/ast"
)

// GeneratorError reports a construct in the typed tree the generator cannot lower.
type GeneratorError struct {
	Message string
	Pos     ast.Location
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("%v: %s", e.Pos, e.Message)
}

// InvariantError reports IR that breaks a structural invariant, either straight
// out of the generator or after an optimization pass.
type InvariantError struct {
	Function string
	// Pass that produced the IR, or "generate".
	Pass    string
	Index   int
	Message string
}

func (e *InvariantError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid IR after %s in function %s: %s", e.Pass, e.Function, e.Message)
	}
	return fmt.Sprintf("invalid IR after %s in function %s at instruction %d: %s", e.Pass, e.Function, e.Index, e.Message)
}
