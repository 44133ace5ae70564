package common

import "fmt"

// Error reports an instruction the target cannot translate. It is terminal for
// the compilation unit.
type Error struct {
	Message  string
	Function string
	// Index of the offending IR instruction, -1 when the error is not tied to one.
	Index int
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("codegen: function %s: %s", e.Function, e.Message)
	}
	return fmt.Sprintf("codegen: function %s, instruction %d: %s", e.Function, e.Index, e.Message)
}
