// Package mutator implements the noisy channel applied to the machine's
// intermediate DNA output: substitution, affine deletion, and tandem
// duplication log-scores (spec.md §4.3). The on-disk parameter file format
// is an external collaborator per spec.md §1; this package supplies only
// the in-memory struct and a small JSON loader, grounded on the teacher's
// DBConf/DefaultDBConf flag-bindable-config pattern (dbconf.go).
package mutator

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/brezal/dnastore/internal/machine"
)

// Params holds the mutator's tunable log-score parameters, in natural
// units (probabilities, not logs) as read from the parameter file; BuildScores
// converts them to the log-score table the fill actually uses.
type Params struct {
	Sub        [4][4]float64 // substitution probabilities, Sub[i][j] = P(observed j | emitted i)
	NoGap      float64       // probability of taking the no-gap path through a substitution
	DelOpen    float64
	DelExtend  float64
	DelEnd     float64
	TanDup     float64
	Len        []float64 // Len[k] = P(tandem-dup length exactly k+1)
	Local      bool
	MaxDupLenN int // 0 means "unbounded by the mutator": defer to the machine's own maxLeftContext
}

// MaxDupLen returns the mutator's own configured cap on tandem-dup length,
// as read from the parameter file: 0 if the file left maxDupLen unset.
// Callers computing the effective cap to pass to viterbi.Build should use
// ResolveMaxDupLen instead, which applies the "0 means unbounded" rule.
func (p *Params) MaxDupLen() int { return p.MaxDupLenN }

// ResolveMaxDupLen returns the effective tandem-dup length cap to use
// against machine m: MaxDupLenN if the parameter file set it, or
// m.MaxLeftContext() if it didn't (MaxDupLenN == 0), per the "0 means
// unbounded by the mutator" rule documented on MaxDupLenN and spec.md
// §4.4's literal min(machine.maxLeftContext, mutatorParams.maxDupLen)
// formula, read as "an unset mutator bound imposes no cap of its own."
func (p *Params) ResolveMaxDupLen(m *machine.Machine) int {
	if p.MaxDupLenN > 0 {
		return p.MaxDupLenN
	}
	return m.MaxLeftContext()
}

// Default is a neutral starting configuration: identity substitutions, no
// gaps, no duplications. Callers typically override fields from a loaded
// file or CLI flags, the same way cmd/cablastp-compress/main.go binds flags
// directly onto a copy of DefaultDBConf.
var Default = &Params{
	Sub: [4][4]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	},
	NoGap:      1,
	DelOpen:    0,
	DelExtend:  0,
	DelEnd:     1,
	TanDup:     0,
	Len:        []float64{1},
	Local:      false,
	MaxDupLenN: 1,
}

// fileParams mirrors the on-disk JSON shape; kept separate from Params so
// the wire format can evolve (e.g. extra metadata fields) without touching
// the in-memory struct every package imports.
type fileParams struct {
	Sub       [4][4]float64 `json:"sub"`
	NoGap     float64       `json:"noGap"`
	DelOpen   float64       `json:"delOpen"`
	DelExtend float64       `json:"delExtend"`
	DelEnd    float64       `json:"delEnd"`
	TanDup    float64       `json:"tanDup"`
	Len       []float64     `json:"len"`
	Local     bool          `json:"local"`
	MaxDupLen int           `json:"maxDupLen"`
}

// Load parses a mutator-parameter JSON document, validating the affine
// deletion invariant (delOpen, delExtend, delEnd <= 0 once converted to log
// scores, i.e. the file's probabilities must each be in [0, 1]; 0 converts
// to a -Inf log score).
func Load(r io.Reader) (*Params, error) {
	var fp fileParams
	if err := json.NewDecoder(r).Decode(&fp); err != nil {
		return nil, fmt.Errorf("mutator: decode params: %w", err)
	}
	p := &Params{
		Sub:        fp.Sub,
		NoGap:      fp.NoGap,
		DelOpen:    fp.DelOpen,
		DelExtend:  fp.DelExtend,
		DelEnd:     fp.DelEnd,
		TanDup:     fp.TanDup,
		Len:        fp.Len,
		Local:      fp.Local,
		MaxDupLenN: fp.MaxDupLen,
	}
	for _, prob := range []float64{p.NoGap, p.DelOpen, p.DelExtend, p.DelEnd, p.TanDup} {
		if prob < 0 || prob > 1 {
			return nil, fmt.Errorf("mutator: probability %g out of range [0,1]", prob)
		}
	}
	for _, l := range p.Len {
		if l < 0 || l > 1 {
			return nil, fmt.Errorf("mutator: tandem-dup length probability %g out of range [0,1]", l)
		}
	}
	return p, nil
}
