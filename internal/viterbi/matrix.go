// Package viterbi implements the three-layer Viterbi dynamic program over
// (state x position x mutator-sub-state): the dense score tensor, its fill
// algorithm with epsilon-closure, the local/global start policy, and the
// consistency-checked traceback (spec.md §4.4-§4.5). This is the core of
// the decoder; every other package exists to feed it precomputed scores.
package viterbi

import (
	"fmt"
	"math"

	"github.com/brezal/dnastore/internal/decodeerr"
	"github.com/brezal/dnastore/internal/inputmodel"
	"github.com/brezal/dnastore/internal/machine"
	"github.com/brezal/dnastore/internal/machscore"
	"github.com/brezal/dnastore/internal/mutator"
	"github.com/brezal/dnastore/internal/vlog"
)

// Sub-state indices within a cell: S is 0, D is 1, T(k) is 2+k.
const (
	subS    = 0
	subDBit = 1
	subTOff = 2
)

func subT(k int) int { return subTOff + k }
func isSubT(sub int) bool { return sub >= subTOff }
func subTIndex(sub int) int { return sub - subTOff }

// Matrix is the dense Viterbi score tensor for one observed sequence. A
// Matrix is built once, filled, tracked back once, and discarded; it is
// never shared or reused across sequences (spec.md §5).
type Matrix struct {
	m         *machine.Machine
	model     *inputmodel.Model
	ms        *machscore.Scores
	mut       *mutator.Scores
	seq       []int // base indices, 0..3
	maxDupLen int
	subStates int // 2 + maxDupLen
	nStates   int
	seqLen    int
	cell      []float64
	stateMDL  []int // M_s per state, precomputed
	order     []int // decoderToposort

	logger   *vlog.Logger
	loglike  float64
}

var baseOf = map[byte]int{'A': 0, 'C': 1, 'G': 2, 'T': 3}

// Build constructs and fills a Viterbi matrix for the observed sequence
// obs against machine m, using the precomputed machine scores ms and
// mutator log-scores mut. maxDupLen is min(machine.MaxLeftContext(),
// mutatorParams.MaxDupLen()) per spec.md §4.4; obs must contain only
// A, C, G, T bytes, else Build fails with decodeerr.ErrInvalidBase.
func Build(m *machine.Machine, model *inputmodel.Model, ms *machscore.Scores, mut *mutator.Scores, maxDupLen int, obs []byte, logger *vlog.Logger) (*Matrix, error) {
	seq := make([]int, len(obs))
	for i, b := range obs {
		idx, ok := baseOf[b]
		if !ok {
			return nil, fmt.Errorf("%w: byte %q at position %d", decodeerr.ErrInvalidBase, b, i)
		}
		seq[i] = idx
	}

	if mlc := m.MaxLeftContext(); maxDupLen > mlc {
		maxDupLen = mlc
	}
	n := m.NStates()
	subStates := 2 + maxDupLen
	L := len(seq)

	mat := &Matrix{
		m:         m,
		model:     model,
		ms:        ms,
		mut:       mut,
		seq:       seq,
		maxDupLen: maxDupLen,
		subStates: subStates,
		nStates:   n,
		seqLen:    L,
		cell:      make([]float64, n*(L+1)*subStates),
		stateMDL:  make([]int, n),
		logger:    logger,
	}
	for i := range mat.cell {
		mat.cell[i] = math.Inf(-1)
	}
	for s := 0; s < n; s++ {
		mat.stateMDL[s] = machscore.MaxDupLenAt(ms.State[s], maxDupLen)
	}

	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	mat.order = m.DecoderToposort(alphabet)

	if mut.Local {
		for s := 0; s < n; s++ {
			mat.setS(s, 0, 0)
		}
	} else {
		mat.setS(0, 0, 0)
	}

	mat.fill()
	return mat, nil
}

// MaxDupLen returns the effective maximum tandem-dup length used by this
// matrix (min of the machine's longest left context and the mutator's
// configured bound).
func (mat *Matrix) MaxDupLen() int { return mat.maxDupLen }

func (mat *Matrix) idx(s, p, sub int) int {
	return (s*(mat.seqLen+1)+p)*mat.subStates + sub
}

func (mat *Matrix) get(s, p, sub int) float64 { return mat.cell[mat.idx(s, p, sub)] }
func (mat *Matrix) set(s, p, sub int, v float64) { mat.cell[mat.idx(s, p, sub)] = v }

func (mat *Matrix) getS(s, p int) float64       { return mat.get(s, p, subS) }
func (mat *Matrix) setS(s, p int, v float64)    { mat.set(s, p, subS, v) }
func (mat *Matrix) getD(s, p int) float64       { return mat.get(s, p, subDBit) }
func (mat *Matrix) setD(s, p int, v float64)    { mat.set(s, p, subDBit, v) }
func (mat *Matrix) getT(s, p, k int) float64    { return mat.get(s, p, subT(k)) }
func (mat *Matrix) setT(s, p, k int, v float64) { mat.set(s, p, subT(k), v) }

// fill runs the per-position dynamic program described in spec.md §4.4.
func (mat *Matrix) fill() {
	progress := vlog.NewProgress(mat.logger, "Filling Viterbi matrix", mat.seqLen)

	for p := 0; p <= mat.seqLen; p++ {
		progress.Tick(p)

		for _, s := range mat.order {
			ss := mat.ms.State[s]
			mdl := mat.stateMDL[s]

			// Step 1: substitution edge.
			if p > 0 {
				for _, it := range ss.IncomingEmit {
					cand := mat.getS(it.Peer, p-1) + it.Score + mat.mut.NoGap + mat.mut.Sub[it.Base][mat.seq[p-1]]
					if cand > mat.getS(s, p) {
						mat.setS(s, p, cand)
					}
				}
			}

			// Step 2: null-input edge.
			for _, it := range ss.IncomingNull {
				cand := mat.getS(it.Peer, p) + it.Score
				if cand > mat.getS(s, p) {
					mat.setS(s, p, cand)
				}
			}

			// Step 3: tandem-dup entry / extension.
			if mdl > 0 && p > 0 {
				cand := mat.getT(s, p-1, 0) + mat.mut.Sub[machscore.TanDupBase(ss, 0)][mat.seq[p-1]]
				if cand > mat.getS(s, p) {
					mat.setS(s, p, cand)
				}
				for k := 0; k <= mdl-2; k++ {
					v := mat.getT(s, p-1, k+1) + mat.mut.Sub[machscore.TanDupBase(ss, k+1)][mat.seq[p-1]]
					mat.setT(s, p, k, v)
				}
			}
		}

		mat.epsilonClosure(p)

		// Step 5: tandem-dup seed from S, after the closure so S is final.
		if p > 0 {
			for s := 0; s < mat.nStates; s++ {
				mdl := mat.stateMDL[s]
				for k := 0; k < mdl; k++ {
					cand := mat.getS(s, p) + mat.mut.TanDup + mat.mut.Len[k]
					if cand > mat.getT(s, p, k) {
						mat.setT(s, p, k, cand)
					}
				}
			}
		}
	}

	if mat.mut.Local {
		mat.loglike = math.Inf(-1)
		for s := 0; s < mat.nStates; s++ {
			if v := mat.getS(s, mat.seqLen); v > mat.loglike {
				mat.loglike = v
			}
		}
	} else {
		mat.loglike = mat.getS(mat.nStates-1, mat.seqLen)
	}

	if mat.logger.At(vlog.LevelMatrixDump) {
		mat.logger.Logf(vlog.LevelMatrixDump, "Viterbi matrix:\n%s", mat.dump())
	}
}

// epsilonClosure runs the worklist fixed-point computation of spec.md §4.4
// step 4: it propagates through the deletion layer and through null
// transitions until no cell improves. The worklist is a plain slice-backed
// stack with an on-stack bitmap, mirroring the original's
// vguard<bool> onStack / vguard<State> pushStates.
func (mat *Matrix) epsilonClosure(p int) {
	onStack := make([]bool, mat.nStates)
	stack := make([]int, len(mat.order))
	copy(stack, mat.order)
	for i := range onStack {
		onStack[i] = true
	}

	push := func(s int) {
		if !onStack[s] {
			onStack[s] = true
			stack = append(stack, s)
		}
	}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		onStack[s] = false

		ss := mat.ms.State[s]
		dsrc := mat.getD(s, p)
		ssrc := mat.getS(s, p)
		if cand := dsrc + mat.mut.DelEnd; cand > ssrc {
			ssrc = cand
		}
		mat.setS(s, p, ssrc)

		for _, ot := range ss.OutgoingEmit {
			cand := math.Max(dsrc+mat.mut.DelExtend, ssrc+mat.mut.DelOpen) + ot.Score
			if cand > mat.getD(ot.Peer, p) {
				mat.setD(ot.Peer, p, cand)
				push(ot.Peer)
			}
		}

		for _, ot := range ss.OutgoingNull {
			pushed := false
			if cand := dsrc + ot.Score; cand > mat.getD(ot.Peer, p) {
				mat.setD(ot.Peer, p, cand)
				pushed = true
			}
			if cand := ssrc + ot.Score; cand > mat.getS(ot.Peer, p) {
				mat.setS(ot.Peer, p, cand)
				pushed = true
			}
			if pushed {
				push(ot.Peer)
			}
		}
	}
}

// LogLikelihood returns the log-probability of the best joint path, or
// -Inf if none exists.
func (mat *Matrix) LogLikelihood() float64 { return mat.loglike }

func (mat *Matrix) dump() string {
	out := ""
	for p := 0; p <= mat.seqLen; p++ {
		for s := 0; s < mat.nStates; s++ {
			out += fmt.Sprintf("%4d %s %10.6g(S) %10.6g(D) ", p, mat.m.State[s].Name, mat.getS(s, p), mat.getD(s, p))
			for k := 0; k < mat.maxDupLen; k++ {
				out += fmt.Sprintf("%10.6g(T%d) ", mat.getT(s, p, k), k+1)
			}
			out += "\n"
		}
	}
	return out
}
