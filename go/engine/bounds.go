// Package engine implements the BnB-ADOPT Variable Engine: the Bounds
// Table, the Context Store, and the state machine that drives one
// owned variable's search.
package engine

import "github.com/bnbadopt/dcop/go/core"

// BoundsTable holds, per domain value, the per-child lower/upper
// bounds and saved contexts, plus their running sums. Indices into the
// per-child slices follow the fixed child order handed down by the
// pseudo-tree ("lowerNeighbours = children ++ pseudoChildren").
//
// Update and Reset rebuild the sums from scratch on every call rather
// than patching them incrementally; this is cheap because the number
// of children per variable is small.
type BoundsTable struct {
	domain      []core.Value
	numChildren int

	lb  map[core.Value][]core.Utility
	ub  map[core.Value][]core.Utility
	ctx map[core.Value][]core.Context

	lbSum map[core.Value]core.Utility
	ubSum map[core.Value]core.Utility
}

// NewBoundsTable allocates a bounds table for the given domain and
// number of children.
func NewBoundsTable(domain []core.Value, numChildren int) *BoundsTable {
	bt := &BoundsTable{
		domain:      append([]core.Value{}, domain...),
		numChildren: numChildren,
		lb:          make(map[core.Value][]core.Utility, len(domain)),
		ub:          make(map[core.Value][]core.Utility, len(domain)),
		ctx:         make(map[core.Value][]core.Context, len(domain)),
		lbSum:       make(map[core.Value]core.Utility, len(domain)),
		ubSum:       make(map[core.Value]core.Utility, len(domain)),
	}
	for _, d := range domain {
		bt.lb[d] = make([]core.Utility, numChildren)
		bt.ub[d] = make([]core.Utility, numChildren)
		bt.ctx[d] = make([]core.Context, numChildren)
		for i := 0; i < numChildren; i++ {
			bt.ub[d][i] = core.CostInf
		}
		bt.recomputeSums(d)
	}
	return bt
}

// InitChild seeds child childIndex's bound for value d. The lower
// bound seed is always 0 rather than hChild: it is tighter, since
// LB(d) is dominated by the max against h(self,d) regardless.
func (bt *BoundsTable) InitChild(d core.Value, childIndex int, hChild core.Utility) {
	_ = hChild // retained in the signature; the tighter seed is 0, not hChild.
	bt.lb[d][childIndex] = 0
	bt.ub[d][childIndex] = core.CostInf
	bt.ctx[d][childIndex] = nil
	bt.recomputeSums(d)
}

// Update tightens child childIndex's bound for value d to the max of
// the old and new lower bound, and the min of the old and new upper
// bound, recording ctx as the context the update was computed under.
func (bt *BoundsTable) Update(d core.Value, childIndex int, newLB, newUB core.Utility, ctx core.Context) {
	bt.lb[d][childIndex] = core.MaxUtility(bt.lb[d][childIndex], newLB)
	bt.ub[d][childIndex] = core.MinUtility(bt.ub[d][childIndex], newUB)
	bt.ctx[d][childIndex] = ctx
	bt.recomputeSums(d)
}

// Reset clears child childIndex's bound for value d back to (0, +∞),
// restoring it to its just-seeded state.
func (bt *BoundsTable) Reset(d core.Value, childIndex int) {
	bt.lb[d][childIndex] = 0
	bt.ub[d][childIndex] = core.CostInf
	bt.ctx[d][childIndex] = nil
	bt.recomputeSums(d)
}

// SavedContext returns the context recorded alongside child
// childIndex's bound for value d, or nil if none has been recorded.
func (bt *BoundsTable) SavedContext(d core.Value, childIndex int) core.Context {
	return bt.ctx[d][childIndex]
}

// LB returns lb[d][childIndex].
func (bt *BoundsTable) LB(d core.Value, childIndex int) core.Utility {
	return bt.lb[d][childIndex]
}

// UB returns ub[d][childIndex].
func (bt *BoundsTable) UB(d core.Value, childIndex int) core.Utility {
	return bt.ub[d][childIndex]
}

// LBSum returns lbSum[d] = Σ_i lb[d][i], kept in sync with lb by
// recomputeSums.
func (bt *BoundsTable) LBSum(d core.Value) core.Utility {
	return bt.lbSum[d]
}

// UBSum returns ubSum[d] = Σ_i ub[d][i], kept in sync with ub by
// recomputeSums.
func (bt *BoundsTable) UBSum(d core.Value) core.Utility {
	return bt.ubSum[d]
}

// NumChildren returns the fixed number of children this table tracks.
func (bt *BoundsTable) NumChildren() int {
	return bt.numChildren
}

func (bt *BoundsTable) recomputeSums(d core.Value) {
	var lbSum, ubSum core.Utility
	for i := 0; i < bt.numChildren; i++ {
		lbSum = core.AddUtility(lbSum, bt.lb[d][i])
		ubSum = core.AddUtility(ubSum, bt.ub[d][i])
	}
	bt.lbSum[d] = lbSum
	bt.ubSum[d] = ubSum
}
