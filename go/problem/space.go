// Package problem provides the minimal utility-space algebra and
// pseudo-tree construction that sits outside the engine's own scope,
// but that any end-to-end run still needs from somewhere. It exists
// only to exercise go/engine and go/agent in tests and cmd/dcopsim,
// not as a general DCOP file-format parser.
package problem

import (
	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/engine"
)

var _ engine.CostSpace = (*Space)(nil)

// Unary is a unary cost table over one variable's domain.
type Unary map[core.Value]core.Utility

// Binary is a binary cost table over two variables' domains, keyed by
// this variable's value first; it need not be symmetric.
type Binary map[core.Value]map[core.Value]core.Utility

// Space is the join of every cost table assigned to one variable: its
// own unary table plus one binary table per neighbour it shares a
// constraint with. It implements engine.CostSpace.
type Space struct {
	self    string
	unary   Unary
	binary  map[string]Binary
}

// NewSpace returns an empty Space for variable self.
func NewSpace(self string) *Space {
	return &Space{self: self, binary: make(map[string]Binary)}
}

// AddUnary merges u into this space's unary table.
func (s *Space) AddUnary(u Unary) {
	if s.unary == nil {
		s.unary = make(Unary, len(u))
	}
	for d, c := range u {
		s.unary[d] = c
	}
}

// AddBinary assigns the binary table constraining self against other.
// Costs must be non-negative (core.ErrNegativeCost): a negative cost
// would break the pruning bounds' soundness.
func (s *Space) AddBinary(other string, b Binary) error {
	for _, row := range b {
		for _, c := range row {
			if c < 0 {
				return core.ErrNegativeCost
			}
		}
	}
	s.binary[other] = b
	return nil
}

// Eval evaluates delta(d) = h_unary(d) + sum over every neighbour
// already fixed in ctx of the pairwise cost, pinning self to d and
// projecting out every other free variable.
func (s *Space) Eval(self string, d core.Value, ctx core.Context) core.Utility {
	total := s.unary[d]
	for other, table := range s.binary {
		vs, ok := ctx[other]
		if !ok {
			continue
		}
		row, ok := table[d]
		if !ok {
			continue
		}
		total = core.AddUtility(total, row[vs.Value])
	}
	return total
}
