// Package inputmodel implements the normalized prior over the machine's
// input alphabet (spec.md §4.1).
package inputmodel

import (
	"fmt"
	"sort"

	"github.com/brezal/dnastore/internal/decodeerr"
	"github.com/brezal/dnastore/internal/machine"
)

// Model is a normalized probability map over input symbols.
type Model struct {
	SymProb map[machine.Symbol]float64
}

// Build constructs a Model from alphabet, assigning symWeight to each data
// symbol and controlWeight to each control symbol (per isControl), then
// normalizing the result to sum to 1. Build fails with
// decodeerr.ErrEmptyAlphabet if alphabet is empty.
func Build(alphabet map[machine.Symbol]bool, isControl func(machine.Symbol) bool, symWeight, controlWeight float64) (*Model, error) {
	if len(alphabet) == 0 {
		return nil, decodeerr.ErrEmptyAlphabet
	}
	probs := make(map[machine.Symbol]float64, len(alphabet))
	var norm float64
	for sym := range alphabet {
		w := symWeight
		if isControl != nil && isControl(sym) {
			w = controlWeight
		}
		probs[sym] = w
		norm += w
	}
	for sym := range probs {
		probs[sym] /= norm
	}
	return &Model{SymProb: probs}, nil
}

// String renders the model one "symbol probability" line per symbol, sorted
// by symbol for determinism, matching the teacher's plain ostream dump.
func (m *Model) String() string {
	syms := make([]machine.Symbol, 0, len(m.SymProb))
	for s := range m.SymProb {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
	out := ""
	for _, s := range syms {
		out += fmt.Sprintf("%d %g\n", s, m.SymProb[s])
	}
	return out
}
