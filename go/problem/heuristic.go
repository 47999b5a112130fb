package problem

import "github.com/bnbadopt/dcop/go/core"

// ZeroHeuristic returns h(self, d) = 0 for every value in domain and
// h_child(c) = 0 for every name in children. BnB-ADOPT is correct
// under any admissible heuristic, and the zero heuristic is always
// admissible; it simply prunes nothing, which is all this package
// needs to drive the engine end to end.
func ZeroHeuristic(domain []core.Value, children []string) (hSelf map[core.Value]core.Utility, hChild map[string]core.Utility) {
	hSelf = make(map[core.Value]core.Utility, len(domain))
	for _, d := range domain {
		hSelf[d] = 0
	}
	hChild = make(map[string]core.Utility, len(children))
	for _, c := range children {
		hChild[c] = 0
	}
	return hSelf, hChild
}
