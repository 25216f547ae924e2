// Package machscore precomputes the per-state view of the machine the
// Viterbi fill needs (spec.md §4.2): incoming/outgoing transitions split by
// {emits a base / is null} for each state, their log-scores under the input
// model, and each state's left-context bases as base indices.
package machscore

import (
	"fmt"
	"math"

	"github.com/brezal/dnastore/internal/decodeerr"
	"github.com/brezal/dnastore/internal/inputmodel"
	"github.com/brezal/dnastore/internal/machine"
)

// EmitTrans is a transition that advances the intermediate DNA output by
// one base.
type EmitTrans struct {
	Peer  int // Incoming: source state; Outgoing: dest state
	Score float64
	In    machine.Symbol
	Base  int // 0..3 (A,C,G,T)
}

// NullTrans is an epsilon-output transition.
type NullTrans struct {
	Peer  int
	Score float64
	In    machine.Symbol
}

// StateScores is the precomputed view for a single state.
type StateScores struct {
	IncomingEmit []EmitTrans
	OutgoingEmit []EmitTrans
	IncomingNull []NullTrans
	OutgoingNull []NullTrans
	LeftContext  []int // base indices, wildcards removed
}

// Scores holds the per-state score views for an entire machine.
type Scores struct {
	State []StateScores
}

var baseOf = map[byte]int{'A': 0, 'C': 1, 'G': 2, 'T': 3}

// Build calls m.VerifyContexts() first, then walks every transition of m
// once and assigns it to the emit or null list of both its source
// (outgoing) and destination (incoming) state.
//
// Build requires every symbol in m.OutputAlphabet() to be a DNA base; it
// fails with decodeerr.ErrNonDnaOutput otherwise.
func Build(m *machine.Machine, model *inputmodel.Model) (*Scores, error) {
	if err := m.VerifyContexts(); err != nil {
		return nil, fmt.Errorf("machscore: %w", err)
	}

	for out := range m.OutputAlphabet() {
		if _, ok := baseOf[out]; !ok {
			return nil, decodeerr.ErrNonDnaOutput
		}
	}

	n := m.NStates()
	sc := &Scores{State: make([]StateScores, n)}
	for s := 0; s < n; s++ {
		sc.State[s].LeftContext = machine.LeftContextBases(m.State[s].LeftContext)
	}

	for s := 0; s < n; s++ {
		st := m.State[s]
		for _, t := range st.Trans {
			score, ok := scoreFor(t, model)
			if !ok {
				continue
			}
			if t.OutputEmpty() {
				sc.State[t.Dest].IncomingNull = append(sc.State[t.Dest].IncomingNull, NullTrans{Peer: s, Score: score, In: t.In})
				sc.State[s].OutgoingNull = append(sc.State[s].OutgoingNull, NullTrans{Peer: t.Dest, Score: score, In: t.In})
			} else {
				base := baseOf[t.Out]
				sc.State[t.Dest].IncomingEmit = append(sc.State[t.Dest].IncomingEmit, EmitTrans{Peer: s, Score: score, In: t.In, Base: base})
				sc.State[s].OutgoingEmit = append(sc.State[s].OutgoingEmit, EmitTrans{Peer: t.Dest, Score: score, In: t.In, Base: base})
			}
		}
	}
	return sc, nil
}

// scoreFor computes a transition's log-score: log(symProb[in]) for a
// data/control symbol present in the model, 0 for a null or EOF input, and
// reports false when the transition should be dropped (its input symbol is
// neither null/EOF nor present in the model).
func scoreFor(t machine.Transition, model *inputmodel.Model) (float64, bool) {
	if t.InputEmpty() || t.IsEOF() {
		return 0, true
	}
	if p, ok := model.SymProb[t.In]; ok {
		return math.Log(p), true
	}
	return 0, false
}

// MaxDupLenAt returns M_s for a state: the number of left-context bases
// available for tandem-dup emission, capped at maxDupLen.
func MaxDupLenAt(ss StateScores, maxDupLen int) int {
	m := len(ss.LeftContext)
	if m > maxDupLen {
		m = maxDupLen
	}
	return m
}

// TanDupBase returns the base emitted at dup-offset k from a state's left
// context: the context read right-to-left, so k=0 is the immediately
// preceding base.
func TanDupBase(ss StateScores, k int) int {
	return ss.LeftContext[len(ss.LeftContext)-1-k]
}
