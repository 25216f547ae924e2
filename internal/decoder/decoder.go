// Package decoder implements the thin per-batch orchestrator named in
// spec.md §2/§4.9: build one InputModel and one MachineScores for the
// whole run, then for each observed record build a fresh ViterbiMatrix,
// fill it, and take its traceback. It is grounded on the original
// decodeFastSeqs free function (original_source/src/viterbi.cpp).
package decoder

import (
	"errors"
	"math"

	"github.com/brezal/dnastore/internal/decodeerr"
	"github.com/brezal/dnastore/internal/fastaio"
	"github.com/brezal/dnastore/internal/inputmodel"
	"github.com/brezal/dnastore/internal/machine"
	"github.com/brezal/dnastore/internal/machscore"
	"github.com/brezal/dnastore/internal/mutator"
	"github.com/brezal/dnastore/internal/viterbi"
	"github.com/brezal/dnastore/internal/vlog"
)

// Result is one decoded (name, inputString) pair.
type Result struct {
	Name        string
	InputString string
	LogLike     float64
	Err         error
}

// DecodeAll decodes every record in obs against m under params, using
// symWeight/controlWeight to build the shared input model (the original's
// "somewhat arbitrary" controlWeight default is
// 4^(-4*maxDupLen), expressed by DefaultControlWeight).
func DecodeAll(m *machine.Machine, params *mutator.Params, obs []fastaio.Record, symWeight, controlWeight float64, logger *vlog.Logger) ([]Result, error) {
	alphabet := m.InputAlphabet(machine.Relaxed | machine.Control | machine.SEOF)
	model, err := inputmodel.Build(alphabet, m.IsControl, symWeight, controlWeight)
	if err != nil {
		return nil, err
	}
	if logger.At(vlog.LevelInputModel) {
		logger.Logf(vlog.LevelInputModel, "Input model for Viterbi decoding:\n%s", model.String())
	}

	ms, err := machscore.Build(m, model)
	if err != nil {
		return nil, err
	}

	mutScores := mutator.BuildScores(params)
	maxDupLen := params.ResolveMaxDupLen(m)

	results := make([]Result, 0, len(obs))
	for _, rec := range obs {
		mat, err := viterbi.Build(m, model, ms, mutScores, maxDupLen, rec.Seq, logger)
		if err != nil {
			results = append(results, Result{Name: rec.Name, Err: err})
			continue
		}
		trace, err := mat.Traceback()
		if err != nil && !errors.Is(err, decodeerr.ErrNoDecoding) {
			results = append(results, Result{Name: rec.Name, LogLike: math.Inf(-1), Err: err})
			continue
		}
		results = append(results, Result{Name: rec.Name, InputString: trace, LogLike: mat.LogLikelihood(), Err: nil})
	}
	return results, nil
}

// DefaultControlWeight returns the original decoder's default penalty for
// spurious control-symbol insertions: maxDupLen is typically half of a
// codeword length, and paths to control symbols are typically at most 1.5x
// codeword length, so 4^(-4*maxDupLen) keeps such paths unlikely without
// forbidding them outright.
func DefaultControlWeight(maxDupLen int) float64 {
	return math.Pow(4, -4*float64(maxDupLen))
}
