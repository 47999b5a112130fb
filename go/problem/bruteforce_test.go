package problem_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnbadopt/dcop/go/agent"
	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/problem"
	"github.com/bnbadopt/dcop/go/stats"
	"github.com/bnbadopt/dcop/go/transport"
)

// TestOptimality_CycleMatchesBruteForce: for a small cycle with one
// pseudo-edge, the converged solution's total cost must equal the
// true minimum found by exhaustive enumeration.
func TestOptimality_CycleMatchesBruteForce(t *testing.T) {
	names := []string{"v0", "v1", "v2", "v3"}
	domain := []core.Value{0, 1, 2}
	adj := map[string][]string{
		"v0": {"v1", "v3"},
		"v1": {"v0", "v2"},
		"v2": {"v1", "v3"},
		"v3": {"v2", "v0"},
	}

	cost := func(a, b core.Value) core.Utility {
		// An asymmetric cost so the test can't pass by accident on a
		// trivially symmetric formula.
		diff := int64(a) - 2*int64(b)
		if diff < 0 {
			diff = -diff
		}
		return core.Utility(diff)
	}
	edges := func(f func(a, b string)) {
		seen := map[[2]string]bool{}
		for a, nbrs := range adj {
			for _, b := range nbrs {
				k := [2]string{a, b}
				if k[0] > k[1] {
					k[0], k[1] = k[1], k[0]
				}
				if seen[k] {
					continue
				}
				seen[k] = true
				f(a, b)
			}
		}
	}

	bruteForceMin := func() core.Utility {
		best := core.CostInf
		var assignment map[string]core.Value
		var rec func(i int)
		rec = func(i int) {
			if i == len(names) {
				var total core.Utility
				edges(func(a, b string) {
					total = core.AddUtility(total, cost(assignment[a], assignment[b]))
				})
				if total < best {
					best = total
				}
				return
			}
			for _, d := range domain {
				if assignment == nil {
					assignment = make(map[string]core.Value)
				}
				assignment[names[i]] = d
				rec(i + 1)
			}
		}
		rec(0)
		return best
	}

	tree := problem.BuildTree(adj, []string{"v0"})

	binary := problem.Binary{}
	for _, a := range domain {
		row := make(map[core.Value]core.Utility, len(domain))
		for _, b := range domain {
			row[b] = cost(a, b)
		}
		binary[a] = row
	}

	costFunc := func(assignment map[string]core.Value) core.Utility {
		var total core.Utility
		edges(func(a, b string) {
			total = core.AddUtility(total, cost(assignment[a], assignment[b]))
		})
		return total
	}

	sink := stats.NewSink(len(names), costFunc, nil)
	net := transport.NewInProcNetwork(64)
	owner := make(map[string]string, len(names))
	for _, n := range names {
		owner[n] = n
	}

	dispatchers := make(map[string]*agent.Dispatcher, len(names))
	for _, name := range names {
		inbox := net.Register(name)
		dispatchers[name] = agent.NewDispatcher(name, inbox, owner, sink, 1)
	}
	for _, name := range names {
		for _, other := range names {
			if other != name {
				dispatchers[name].AddPeer(other, net.Peer(other))
			}
		}
	}

	for _, name := range names {
		d := dispatchers[name]
		d.Register(name, domain, false)

		var parent string
		hasParent := tree.HasParent[name]
		if hasParent {
			parent = tree.Parent[name]
		}
		children := tree.Children[name]
		pseudoParents := tree.PseudoParents[name]
		pseudoChildren := tree.PseudoChildren[name]

		// Each edge is attributed to exactly one endpoint's Space: the
		// descendant pins the ancestor's value from its own context,
		// so only parent + pseudoParents need a binary table here.
		space := problem.NewSpace(name)
		if hasParent {
			require.NoError(t, space.AddBinary(parent, binary))
		}
		for _, other := range pseudoParents {
			require.NoError(t, space.AddBinary(other, binary))
		}

		hSelf, hChild := problem.ZeroHeuristic(domain, children)
		d.InitVariable(name, parent, hasParent, pseudoParents, children, pseudoChildren, space, hSelf, hChild)
	}

	for _, name := range names {
		go dispatchers[name].Run()
	}

	select {
	case sol := <-sink.Done():
		assert.Equal(t, bruteForceMin(), sol.TotalCost, "converged cost must equal the brute-force minimum")
	case <-time.After(10 * time.Second):
		t.Fatal("cycle scenario did not converge")
	}
}
