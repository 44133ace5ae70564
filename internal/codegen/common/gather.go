package common

import (
	"math"

	"github.com/iley/tacc/internal/ir"
)

// GatherFloats returns the bit patterns of all float constants in p, in order of first use.
// Constants are compared bitwise so that 0.0 and -0.0 stay distinct.
func GatherFloats(p *ir.Program) []uint64 {
	seen := make(map[uint64]bool)
	var result []uint64

	add := func(v ir.Value) {
		if v.Kind != ir.FloatConst {
			return
		}
		bits := math.Float64bits(v.Float)
		if !seen[bits] {
			seen[bits] = true
			result = append(result, bits)
		}
	}

	for _, f := range p.Functions {
		for i := range f.Instrs {
			for _, v := range f.Instrs[i].Uses() {
				add(v)
			}
		}
	}

	return result
}
