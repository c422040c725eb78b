// Package ordering sorts dependent items so that every item comes after the
// items it depends on.
package ordering

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the dependencies form a cycle.
var ErrCycle = errors.New("ordering: cycle detected")

// Sort returns the indices 0..n-1 in execution order.
//
// deps(i) yields indices that must come before i. When several nodes are
// ready, first(a, b) picks the one to emit; nil picks the smallest index.
// The result is deterministic for a deterministic deps.
func Sort(n int, deps func(i int) []int, first func(a, b int) bool) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	if first == nil {
		first = func(a, b int) bool { return a < b }
	}

	indeg := make([]int, n)
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		for _, d := range deps(i) {
			if d < 0 || d >= n {
				return nil, fmt.Errorf("ordering: dependency index out of range: %d depends on %d", i, d)
			}
			indeg[i]++
			out[d] = append(out[d], i)
		}
	}

	var ready []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		sort.SliceStable(ready, func(a, b int) bool { return first(ready[a], ready[b]) })
		i := ready[0]
		ready = ready[1:]

		order = append(order, i)
		for _, j := range out[i] {
			indeg[j]--
			if indeg[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(order) != n {
		return nil, fmt.Errorf("%w among %d of %d items", ErrCycle, n-len(order), n)
	}
	return order, nil
}
