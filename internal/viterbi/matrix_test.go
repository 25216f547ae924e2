package viterbi

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/brezal/dnastore/internal/inputmodel"
	"github.com/brezal/dnastore/internal/machine"
	"github.com/brezal/dnastore/internal/machscore"
	"github.com/brezal/dnastore/internal/mutator"
	"github.com/brezal/dnastore/internal/vlog"
)

// neutralSub returns a substitution table that only allows exact matches.
func neutralSub() [4][4]float64 {
	return [4][4]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// buildScores is a small test helper that wires a machine + params into a
// filled matrix, the same three calls cmd/dnaviterbi-decode/main.go makes
// through internal/decoder.
func buildScores(t *testing.T, m *machine.Machine, alphabet map[machine.Symbol]bool, p *mutator.Params, obs string) *Matrix {
	t.Helper()
	model, err := inputmodel.Build(alphabet, m.IsControl, 1, 1e-8)
	if err != nil {
		t.Fatalf("inputmodel.Build: %v", err)
	}
	ms, err := machscore.Build(m, model)
	if err != nil {
		t.Fatalf("machscore.Build: %v", err)
	}
	mutScores := mutator.BuildScores(p)
	maxDupLen := p.ResolveMaxDupLen(m)
	mat, err := Build(m, model, ms, mutScores, maxDupLen, []byte(obs), nil)
	if err != nil {
		t.Fatalf("viterbi.Build: %v", err)
	}
	return mat
}

func identityMachine() *machine.Machine {
	states := []machine.State{
		{Name: "s0", Trans: []machine.Transition{
			{Dest: 0, In: machine.Symbol('A'), Out: 'A'},
			{Dest: 0, In: machine.Symbol('C'), Out: 'C'},
			{Dest: 0, In: machine.Symbol('G'), Out: 'G'},
			{Dest: 0, In: machine.Symbol('T'), Out: 'T'},
		}},
	}
	return machine.New(states, nil)
}

func neutralParams() *mutator.Params {
	return &mutator.Params{
		Sub:        neutralSub(),
		NoGap:      1,
		DelOpen:    0,
		DelExtend:  0,
		DelEnd:     1,
		TanDup:     0,
		Len:        nil,
		MaxDupLenN: 0,
	}
}

// TestIdentityMachineLaw is spec.md §8's "Identity machine" law: loglike=0
// and the traceback equals the observed sequence.
func TestIdentityMachineLaw(t *testing.T) {
	m := identityMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	mat := buildScores(t, m, alphabet, neutralParams(), "ACGTACGT")

	if mat.LogLikelihood() != 0 {
		t.Errorf("LogLikelihood() = %v, want 0", mat.LogLikelihood())
	}
	trace, err := mat.Traceback()
	if err != nil {
		t.Fatalf("Traceback: %v", err)
	}
	if trace != "ACGTACGT" {
		t.Errorf("Traceback() = %q, want %q", trace, "ACGTACGT")
	}
}

func twoSymbolLoopMachine() *machine.Machine {
	states := []machine.State{
		{Name: "s0", Trans: []machine.Transition{
			{Dest: 0, In: machine.Symbol('0'), Out: 'A'},
			{Dest: 0, In: machine.Symbol('1'), Out: 'C'},
		}},
	}
	return machine.New(states, nil)
}

// TestBasicDecode is spec.md §8 end-to-end scenario 1.
func TestBasicDecode(t *testing.T) {
	m := twoSymbolLoopMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	mat := buildScores(t, m, alphabet, neutralParams(), "ACAC")

	trace, err := mat.Traceback()
	if err != nil {
		t.Fatalf("Traceback: %v", err)
	}
	if trace != "0101" {
		t.Errorf("Traceback() = %q, want %q", trace, "0101")
	}
}

func fourStateChainMachine() *machine.Machine {
	states := []machine.State{
		{Name: "s0", Trans: []machine.Transition{{Dest: 1, In: machine.Symbol('0'), Out: 'A'}}},
		{Name: "s1", Trans: []machine.Transition{{Dest: 2, In: machine.Symbol('1'), Out: 'C'}}},
		{Name: "s2", Trans: []machine.Transition{{Dest: 3, In: machine.Symbol('0'), Out: 'A'}}},
		{Name: "s3", Trans: []machine.Transition{{Dest: 4, In: machine.Symbol('1'), Out: 'C'}}},
		{Name: "s4"},
	}
	return machine.New(states, nil)
}

// TestDeletionScenario is spec.md §8 end-to-end scenario 2: the machine's
// only path emits ACAC, but the observed sequence is missing a base, so a
// decoding is only reachable through the deletion layer.
func TestDeletionScenario(t *testing.T) {
	m := fourStateChainMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)

	p := neutralParams()
	p.DelOpen = 0.1
	p.DelExtend = 0.5
	p.DelEnd = 1

	mat := buildScores(t, m, alphabet, p, "AAC")
	if math.IsInf(mat.LogLikelihood(), -1) {
		t.Fatalf("LogLikelihood() = -Inf, want a finite decoding via deletion")
	}
	if _, err := mat.Traceback(); err != nil {
		t.Fatalf("Traceback: %v", err)
	}
}

// TestDeletionMonotonicity is spec.md §8's deletion-monotonicity law:
// increasing delOpen (less negative) never decreases loglike.
func TestDeletionMonotonicity(t *testing.T) {
	m := fourStateChainMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)

	low := neutralParams()
	low.DelOpen, low.DelExtend, low.DelEnd = 0.01, 0.5, 1
	matLow := buildScores(t, m, alphabet, low, "AAC")

	high := neutralParams()
	high.DelOpen, high.DelExtend, high.DelEnd = 0.5, 0.5, 1
	matHigh := buildScores(t, m, alphabet, high, "AAC")

	if matHigh.LogLikelihood() < matLow.LogLikelihood() {
		t.Errorf("raising delOpen decreased loglike: %v -> %v", matLow.LogLikelihood(), matHigh.LogLikelihood())
	}
}

// TestLocalDominance is spec.md §8's local-dominance law: local=true's
// loglike is >= local=false's loglike on the same inputs. An observation
// that only matches the middle of the machine's path ("CA" out of "ACAC")
// makes the difference unambiguous: global mode must start at state 0 and
// end at the accept state, so it cannot decode it at all, while local mode
// may start at any state at position 0 and end at any state at position L.
func TestLocalDominance(t *testing.T) {
	m := fourStateChainMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	obs := "CA"

	global := neutralParams()
	global.Local = false
	matGlobal := buildScores(t, m, alphabet, global, obs)

	local := neutralParams()
	local.Local = true
	matLocal := buildScores(t, m, alphabet, local, obs)

	if matLocal.LogLikelihood() < matGlobal.LogLikelihood() {
		t.Errorf("local loglike %v should be >= global loglike %v", matLocal.LogLikelihood(), matGlobal.LogLikelihood())
	}
	if math.IsInf(matLocal.LogLikelihood(), -1) {
		t.Errorf("local loglike should be finite for an exact match of the middle of the machine's path")
	}
}

// TestAllCellsNonPositive is spec.md §8's quantified invariant: every cell
// is a log-probability, so <= 0.
func TestAllCellsNonPositive(t *testing.T) {
	m := fourStateChainMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	mat := buildScores(t, m, alphabet, neutralParams(), "ACAC")

	for i, v := range mat.cell {
		if v > 0 {
			t.Fatalf("cell %d = %v, want <= 0", i, v)
		}
	}
}

// TestEpsilonClosureIdempotent is spec.md §8's quantified invariant: running
// the closure a second time on a finished column changes nothing.
func TestEpsilonClosureIdempotent(t *testing.T) {
	m := fourStateChainMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	mat := buildScores(t, m, alphabet, neutralParams(), "ACAC")

	before := make([]float64, len(mat.cell))
	copy(before, mat.cell)

	mat.epsilonClosure(mat.seqLen)

	for i := range mat.cell {
		if mat.cell[i] != before[i] {
			t.Errorf("cell %d changed on re-running epsilonClosure: %v -> %v", i, before[i], mat.cell[i])
		}
	}
}

// tandemDupMachine has a terminal state s2 whose two-base left context "AC"
// makes it eligible to close out an observation by duplicating itself
// instead of taking any further transition.
func tandemDupMachine() *machine.Machine {
	states := []machine.State{
		{Name: "s0", Trans: []machine.Transition{{Dest: 1, In: machine.Symbol('0'), Out: 'A'}}},
		{Name: "s1", Trans: []machine.Transition{{Dest: 2, In: machine.Symbol('1'), Out: 'C'}}},
		{Name: "s2", LeftContext: []byte{'A', 'C'}},
	}
	return machine.New(states, nil)
}

// TestTandemDuplicationScenario is spec.md §8 end-to-end scenario 3: the
// observed sequence is the machine's two-symbol path "AC" followed by a
// verbatim duplication of s2's left context, so the only finite decoding
// runs entirely through the T-layer once it reaches s2, and closing that
// duplication logs a "Duplication at ..." diagnostic.
func TestTandemDuplicationScenario(t *testing.T) {
	m := tandemDupMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	model, err := inputmodel.Build(alphabet, m.IsControl, 1, 1e-8)
	if err != nil {
		t.Fatalf("inputmodel.Build: %v", err)
	}
	ms, err := machscore.Build(m, model)
	if err != nil {
		t.Fatalf("machscore.Build: %v", err)
	}

	p := neutralParams()
	p.TanDup = 0.5
	p.Len = []float64{0.5, 0.5}
	p.MaxDupLenN = 2
	mutScores := mutator.BuildScores(p)

	var buf bytes.Buffer
	logger := vlog.New(&buf, vlog.LevelMutation)

	mat, err := Build(m, model, ms, mutScores, p.ResolveMaxDupLen(m), []byte("ACAC"), logger)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if math.IsInf(mat.LogLikelihood(), -1) {
		t.Fatalf("LogLikelihood() = -Inf, want a finite decoding via tandem duplication")
	}

	trace, err := mat.Traceback()
	if err != nil {
		t.Fatalf("Traceback: %v", err)
	}
	if trace != "01" {
		t.Errorf("Traceback() = %q, want %q", trace, "01")
	}
	if !strings.Contains(buf.String(), "Duplication at 2: AC") {
		t.Errorf("log output = %q, want it to contain %q", buf.String(), "Duplication at 2: AC")
	}
}

// controlSymbolMachine routes through a single control symbol, '#', between
// two ordinary data transitions. '#' emits no base of its own.
func controlSymbolMachine() *machine.Machine {
	states := []machine.State{
		{Name: "s0", Trans: []machine.Transition{{Dest: 1, In: machine.Symbol('0'), Out: 'A'}}},
		{Name: "s1", Trans: []machine.Transition{{Dest: 2, In: machine.Symbol('#'), Out: 0}}},
		{Name: "s2", Trans: []machine.Transition{{Dest: 3, In: machine.Symbol('1'), Out: 'C'}}},
		{Name: "s3"},
	}
	isControl := func(sym machine.Symbol) bool { return sym == machine.Symbol('#') }
	return machine.New(states, isControl)
}

// TestControlSymbolScenario is spec.md §8 end-to-end scenario 4: the
// machine's only path threads a control symbol between two data symbols;
// the traceback must surface that control symbol exactly once, in place.
func TestControlSymbolScenario(t *testing.T) {
	m := controlSymbolMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	mat := buildScores(t, m, alphabet, neutralParams(), "AC")

	if math.IsInf(mat.LogLikelihood(), -1) {
		t.Fatalf("LogLikelihood() = -Inf, want a finite decoding through the control symbol")
	}
	trace, err := mat.Traceback()
	if err != nil {
		t.Fatalf("Traceback: %v", err)
	}
	if trace != "0#1" {
		t.Errorf("Traceback() = %q, want %q", trace, "0#1")
	}
	if n := strings.Count(trace, "#"); n != 1 {
		t.Errorf("traceback contains %d control symbols, want exactly 1: %q", n, trace)
	}
}

// paddedJunkMachine wraps twoSymbolLoopMachine's signal state between two
// junk-absorbing states. Each junk state's self-loop consumes an input-less
// (Null-symbol) transition emitting G, so it costs nothing beyond the
// substitution score of an exact G/G match: absorbing padding is free in
// both local and global mode, the same way the signal transitions ('0'/'1')
// are identically priced whether or not the padding states exist, since
// junk transitions never enter the machine's input alphabet.
func paddedJunkMachine() *machine.Machine {
	states := []machine.State{
		{Name: "pre", Trans: []machine.Transition{
			{Dest: 0, In: machine.Null, Out: 'G'},
			{Dest: 1, In: machine.Null, Out: 0},
		}},
		{Name: "signal", Trans: []machine.Transition{
			{Dest: 1, In: machine.Symbol('0'), Out: 'A'},
			{Dest: 1, In: machine.Symbol('1'), Out: 'C'},
			{Dest: 2, In: machine.Null, Out: 0},
		}},
		{Name: "post", Trans: []machine.Transition{
			{Dest: 2, In: machine.Null, Out: 'G'},
		}},
	}
	return machine.New(states, nil)
}

// TestLocalPaddingMatchesUnpaddedGlobal is spec.md §8 end-to-end scenario 5:
// wrapping a signal in free (zero-cost) padding and decoding it in local
// mode reproduces the unpadded signal's global-mode loglike to within 1e-6,
// since the padding costs nothing in either mode and the wrapping states
// never add a symbol to the shared input alphabet.
func TestLocalPaddingMatchesUnpaddedGlobal(t *testing.T) {
	bare := twoSymbolLoopMachine()
	bareAlphabet := bare.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	global := neutralParams()
	global.Local = false
	matBare := buildScores(t, bare, bareAlphabet, global, "ACAC")

	padded := paddedJunkMachine()
	paddedAlphabet := padded.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	local := neutralParams()
	local.Local = true
	obs := strings.Repeat("G", 20) + "ACAC" + strings.Repeat("G", 20)
	matPadded := buildScores(t, padded, paddedAlphabet, local, obs)

	if math.IsInf(matPadded.LogLikelihood(), -1) {
		t.Fatalf("padded local loglike = -Inf, want a finite decoding through the junk states")
	}
	if diff := math.Abs(matPadded.LogLikelihood() - matBare.LogLikelihood()); diff > 1e-6 {
		t.Errorf("padded local loglike %v, unpadded global loglike %v, diff %v > 1e-6",
			matPadded.LogLikelihood(), matBare.LogLikelihood(), diff)
	}
}

// TestTracebackConsistencySpotCheck is spec.md §8 end-to-end scenario 6: for
// a sample of finite-scored cells drawn from a filled matrix, recomputing
// the predecessor recurrence (the same one Traceback uses to walk the
// matrix) must reproduce the stored cell's score within 1e-6 relative
// tolerance. This exercises bestPredecessor directly, on cells that may
// never lie on the optimal traceback path.
func TestTracebackConsistencySpotCheck(t *testing.T) {
	m := fourStateChainMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	p := neutralParams()
	p.DelOpen = 0.1
	p.DelExtend = 0.5
	p.DelEnd = 1
	mat := buildScores(t, m, alphabet, p, "AAC")

	var finite []int
	for s := 0; s < mat.nStates; s++ {
		for pos := 0; pos <= mat.seqLen; pos++ {
			for sub := 0; sub < mat.subStates; sub++ {
				if !math.IsInf(mat.get(s, pos, sub), -1) {
					finite = append(finite, mat.idx(s, pos, sub))
				}
			}
		}
	}
	if len(finite) == 0 {
		t.Fatal("no finite cells to sample")
	}

	rng := rand.New(rand.NewSource(1))
	checked := 0
	for i := 0; i < 100; i++ {
		idx := finite[rng.Intn(len(finite))]
		sub := idx % mat.subStates
		rest := idx / mat.subStates
		pos := rest % (mat.seqLen + 1)
		s := rest / (mat.seqLen + 1)

		if pos == 0 && s == 0 && sub == subS {
			continue // the fixed base case, has no predecessor to recompute
		}
		best, found := mat.bestPredecessor(s, pos, sub)
		if !found {
			t.Errorf("cell (s=%d,pos=%d,sub=%d): bestPredecessor found no candidate for a finite cell", s, pos, sub)
			continue
		}
		stored := mat.get(s, pos, sub)
		denom := math.Abs(stored)
		if denom < relTol {
			denom = 1
		}
		if math.Abs(best.score-stored)/denom > relTol {
			t.Errorf("cell (s=%d,pos=%d,sub=%d): recomputed %v, stored %v", s, pos, sub, best.score, stored)
		}
		checked++
	}
	if checked == 0 {
		t.Fatal("no non-trivial finite cells were sampled")
	}
}

// TestLengthScalingSubadditivity is spec.md §8's length-scaling law: under
// the identity machine, decoding two concatenated copies of an observation
// never scores better than twice decoding one copy, since any joint path
// over the concatenation restricts to a valid path over each half.
func TestLengthScalingSubadditivity(t *testing.T) {
	m := identityMachine()
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	p := neutralParams()
	p.NoGap = 0.9
	p.DelOpen = 0.1
	p.DelExtend = 0.5
	p.DelEnd = 1

	one := buildScores(t, m, alphabet, p, "ACGT")
	two := buildScores(t, m, alphabet, p, "ACGTACGT")

	if two.LogLikelihood() > 2*one.LogLikelihood()+1e-9 {
		t.Errorf("loglike(obs+obs) = %v, want <= 2*loglike(obs) = %v", two.LogLikelihood(), 2*one.LogLikelihood())
	}
}
