package machine

// DecoderToposort returns the states in an order such that, after
// restricting the transition graph to edges whose input symbol is Null or
// is a member of inputAlphabet, every predecessor of a state appears before
// it. This mirrors the longest-path-by-topological-order technique used to
// order an alignment graph (see the example pack's alignment path finder):
// here we only need the order itself, not a longest path, so a depth-first
// post-order over the restricted successor graph, reversed, suffices.
//
// If the restricted graph contains a cycle (for example a self-looping emit
// transition, or a null-input, null-output cycle), the returned order is not a true topological order for
// the cyclic states; the fill's epsilon-closure (run to a monotone fixed
// point) is what guarantees correctness regardless, per spec.md §9.
func (m *Machine) DecoderToposort(inputAlphabet map[Symbol]bool) []int {
	n := len(m.State)
	succ := make([][]int, n)
	for s, st := range m.State {
		for _, t := range st.Trans {
			if t.In == Null || inputAlphabet[t.In] {
				succ[s] = append(succ[s], t.Dest)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	mark := make([]int, n)
	order := make([]int, 0, n)

	var visit func(s int)
	visit = func(s int) {
		if mark[s] == done || mark[s] == visiting {
			return
		}
		mark[s] = visiting
		for _, d := range succ[s] {
			visit(d)
		}
		mark[s] = done
		order = append(order, s)
	}

	for s := 0; s < n; s++ {
		visit(s)
	}

	// visit emits a postorder (successors before predecessors), so
	// reverse it to get predecessors-before-successors.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
