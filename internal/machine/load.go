package machine

import (
	"encoding/json"
	"io"
)

// fileTransition mirrors the on-disk JSON shape for one transition. In is
// a single rune; an empty string means Null (epsilon input), and the
// literal string "$" denotes EOF, matching the distinguished end-of-input
// marker.
type fileTransition struct {
	Dest int    `json:"dest"`
	In   string `json:"in"`
	Out  string `json:"out"`
}

type fileState struct {
	Name        string           `json:"name"`
	LeftContext string           `json:"leftContext"`
	Trans       []fileTransition `json:"trans"`
}

type fileMachine struct {
	States  []fileState `json:"states"`
	Control string      `json:"control"` // the set of runes treated as control symbols
}

// Load parses a machine description from JSON. This is a minimal ambient
// loader for the in-memory graph shape only; construction and composition
// of a machine from a higher-level codeword grammar remains the external
// collaborator named in spec.md §1.
func Load(r io.Reader) (*Machine, error) {
	var fm fileMachine
	if err := json.NewDecoder(r).Decode(&fm); err != nil {
		return nil, err
	}
	control := make(map[Symbol]bool, len(fm.Control))
	for _, c := range fm.Control {
		control[Symbol(c)] = true
	}

	states := make([]State, len(fm.States))
	for i, fs := range fm.States {
		st := State{
			Name:        fs.Name,
			LeftContext: []byte(fs.LeftContext),
		}
		st.Trans = make([]Transition, len(fs.Trans))
		for j, ft := range fs.Trans {
			t := Transition{Dest: ft.Dest}
			switch ft.In {
			case "":
				t.In = Null
			case "$":
				t.In = EOF
			default:
				t.In = Symbol([]rune(ft.In)[0])
			}
			if ft.Out != "" {
				t.Out = []byte(ft.Out)[0]
			}
			st.Trans[j] = t
		}
		states[i] = st
	}

	return New(states, func(sym Symbol) bool { return control[sym] }), nil
}
