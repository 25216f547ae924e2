package mutator

import "math"

// Scores is the mutator's log-score table (spec.md §4.3): natural-log
// probabilities, so every field is <= 0 and "-Inf" represents impossibility.
type Scores struct {
	Sub       [4][4]float64
	NoGap     float64
	DelOpen   float64
	DelExtend float64
	DelEnd    float64
	TanDup    float64
	Len       []float64 // Len[k] = log P(tandem-dup length exactly k+1)
	Local     bool
}

// BuildScores converts Params (natural probabilities) into Scores (natural
// logs). A zero probability maps to -Inf, matching log(0).
func BuildScores(p *Params) *Scores {
	s := &Scores{
		NoGap:     logProb(p.NoGap),
		DelOpen:   logProb(p.DelOpen),
		DelExtend: logProb(p.DelExtend),
		DelEnd:    logProb(p.DelEnd),
		TanDup:    logProb(p.TanDup),
		Len:       make([]float64, len(p.Len)),
		Local:     p.Local,
	}
	for i := range p.Sub {
		for j := range p.Sub[i] {
			s.Sub[i][j] = logProb(p.Sub[i][j])
		}
	}
	for k, l := range p.Len {
		s.Len[k] = logProb(l)
	}
	return s
}

func logProb(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}
