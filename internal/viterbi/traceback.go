package viterbi

import (
	"fmt"
	"math"

	"github.com/brezal/dnastore/internal/decodeerr"
	"github.com/brezal/dnastore/internal/machine"
	"github.com/brezal/dnastore/internal/machscore"
	"github.com/brezal/dnastore/internal/vlog"
)

const relTol = 1e-6

// predecessor records one candidate predecessor cell considered while
// tracing back, along with the input symbol (if any) its transition
// carries and the base it would have emitted (for diagnostic logging).
type predecessor struct {
	state, pos, sub int
	score           float64
	in              machine.Symbol
	hasIn           bool
	base            int
	hasBase         bool
}

// Traceback recovers the most probable input-symbol string, recomputing
// and consistency-checking each predecessor against the stored matrix cell
// to a relative tolerance of 1e-6 (spec.md §4.5). If LogLikelihood() is
// -Inf, Traceback logs a warning and returns "", decodeerr.ErrNoDecoding.
func (mat *Matrix) Traceback() (string, error) {
	if math.IsInf(mat.loglike, -1) {
		mat.logger.Warnf("No valid Viterbi decoding found")
		return "", decodeerr.ErrNoDecoding
	}

	var state, pos, sub int
	var best predecessor
	found := false

	consider := func(p predecessor) {
		if !found || p.score > best.score {
			best = p
			found = true
		}
	}

	if mat.mut.Local {
		for s := 0; s < mat.nStates; s++ {
			consider(predecessor{state: s, pos: mat.seqLen, sub: subS, score: mat.getS(s, mat.seqLen)})
		}
	} else {
		s := mat.nStates - 1
		consider(predecessor{state: s, pos: mat.seqLen, sub: subS, score: mat.getS(s, mat.seqLen)})
	}
	// The chosen start cell is checked against its own stored score.
	if found {
		state, pos, sub = best.state, best.pos, best.sub
	}
	if err := mat.checkAndAdvance(&state, &pos, &sub, best, found); err != nil {
		return "", err
	}

	var out []rune
	for pos > 0 || state > 0 {
		switch {
		case sub == subS, sub == subDBit, isSubT(sub):
			curPos := pos
			best, found = mat.bestPredecessor(state, pos, sub)

			switch {
			case sub == subS:
				if best.hasBase && best.pos < curPos && mat.logger.At(vlog.LevelMutation) && mat.seq[curPos-1] != best.base {
					mat.logger.Logf(vlog.LevelMutation, "Substitution at %d: %c -> %c", curPos-1, baseChar(best.base), baseChar(mat.seq[curPos-1]))
				}
			case sub == subDBit:
				if mat.logger.At(vlog.LevelMutation) && found {
					mat.logger.Logf(vlog.LevelMutation, "Deletion between %d and %d", curPos-1, curPos)
				}
			case isSubT(sub):
				if best.sub == subS && mat.logger.At(vlog.LevelMutation) {
					mat.logger.Logf(vlog.LevelMutation, "Duplication at %d: %s", curPos, dupString(mat.ms.State[state], subTIndex(sub)))
				}
			}

			sym, hasIn := best.in, best.hasIn
			if err := mat.checkAndAdvance(&state, &pos, &sub, best, found); err != nil {
				return "", err
			}
			if hasIn {
				out = prependSymbol(out, sym)
			}
			continue

		default:
			return "", decodeerr.ErrUnknownTracebackState
		}
	}

	return string(out), nil
}

// bestPredecessor recomputes the highest-scoring predecessor candidate for
// cell (state, pos, sub), the same recurrence the fill used to write that
// cell. It does not mutate mat, so it can be used both by Traceback's step
// loop and by tests spot-checking traceback consistency on arbitrary
// interior cells (spec.md §8's random-cell scenario).
func (mat *Matrix) bestPredecessor(state, pos, sub int) (predecessor, bool) {
	ss := mat.ms.State[state]
	mdl := mat.stateMDL[state]

	var best predecessor
	found := false
	consider := func(p predecessor) {
		if !found || p.score > best.score {
			best = p
			found = true
		}
	}

	switch {
	case sub == subS:
		if pos > 0 {
			for _, it := range ss.IncomingEmit {
				score := mat.getS(it.Peer, pos-1) + it.Score + mat.mut.NoGap + mat.mut.Sub[it.Base][mat.seq[pos-1]]
				consider(predecessor{state: it.Peer, pos: pos - 1, sub: subS, score: score, in: it.In, hasIn: true, base: it.Base, hasBase: true})
			}
		}
		for _, it := range ss.IncomingNull {
			score := mat.getS(it.Peer, pos) + it.Score
			consider(predecessor{state: it.Peer, pos: pos, sub: subS, score: score, in: it.In, hasIn: true})
		}
		consider(predecessor{state: state, pos: pos, sub: subDBit, score: mat.getD(state, pos) + mat.mut.DelEnd})
		if mdl > 0 && pos > 0 {
			score := mat.getT(state, pos-1, 0) + mat.mut.Sub[machscore.TanDupBase(ss, 0)][mat.seq[pos-1]]
			consider(predecessor{state: state, pos: pos - 1, sub: subT(0), score: score})
		}
		if pos == 0 && mat.mut.Local {
			consider(predecessor{state: 0, pos: 0, sub: subS, score: 0})
		}

	case sub == subDBit:
		for _, it := range ss.IncomingEmit {
			consider(predecessor{state: it.Peer, pos: pos, sub: subDBit, score: mat.getD(it.Peer, pos) + it.Score + mat.mut.DelExtend, in: it.In, hasIn: true, base: it.Base, hasBase: true})
			consider(predecessor{state: it.Peer, pos: pos, sub: subS, score: mat.getS(it.Peer, pos) + it.Score + mat.mut.DelOpen, in: it.In, hasIn: true, base: it.Base, hasBase: true})
		}
		for _, it := range ss.IncomingNull {
			consider(predecessor{state: it.Peer, pos: pos, sub: subDBit, score: mat.getD(it.Peer, pos) + it.Score, in: it.In, hasIn: true})
		}

	case isSubT(sub):
		dupIdx := subTIndex(sub)
		if dupIdx < mdl-1 {
			score := mat.getT(state, pos-1, dupIdx+1) + mat.mut.Sub[machscore.TanDupBase(ss, dupIdx+1)][mat.seq[pos-1]]
			consider(predecessor{state: state, pos: pos - 1, sub: subT(dupIdx + 1), score: score})
		}
		consider(predecessor{state: state, pos: pos, sub: subS, score: mat.getS(state, pos) + mat.mut.TanDup + mat.mut.Len[dupIdx]})
	}

	return best, found
}

// checkAndAdvance asserts that the chosen predecessor was found and that
// its score matches the stored cell within relTol, then advances (state,
// pos, sub) to the predecessor. A mismatch or missing predecessor aborts
// with decodeerr.ErrTracebackInconsistent.
func (mat *Matrix) checkAndAdvance(state, pos, sub *int, best predecessor, found bool) error {
	if !found {
		return fmt.Errorf("%w: no predecessor found at (state=%d,pos=%d,sub=%d)", decodeerr.ErrTracebackInconsistent, *state, *pos, *sub)
	}
	expected := mat.get(*state, *pos, *sub)
	denom := math.Abs(expected)
	if denom < relTol {
		denom = 1
	}
	if math.Abs(best.score-expected)/denom > relTol {
		return fmt.Errorf("%w: at (state=%d,pos=%d,sub=%d) recomputed %g, stored %g", decodeerr.ErrTracebackInconsistent, *state, *pos, *sub, best.score, expected)
	}
	*state, *pos, *sub = best.state, best.pos, best.sub
	return nil
}

func prependSymbol(out []rune, sym machine.Symbol) []rune {
	if sym == machine.Null || sym == machine.EOF {
		return out
	}
	return append([]rune{rune(sym)}, out...)
}

func dupString(ss machscore.StateScores, fromDupIdx int) string {
	var b []byte
	for k := fromDupIdx; k >= 0; k-- {
		b = append(b, baseChar(machscore.TanDupBase(ss, k)))
	}
	return string(b)
}

func baseChar(i int) byte {
	return "ACGT"[i]
}
