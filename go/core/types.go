// Package core holds the shared definitions that the engine, agent,
// transport, and stats layers all need to agree on in order to speak
// the BnB-ADOPT wire protocol: message shapes, stamps, contexts, and
// the concrete Value/Utility types and the saturating Utility
// arithmetic helpers the engine is built against.
package core

import "math"

// Value is the concrete realisation of the spec's bounded type
// parameter V: equality, hashing, and a natural order are all free on
// a plain int64, which is sufficient for every domain this module
// needs to represent.
type Value = int64

// Utility is the concrete realisation of U. CostInf stands in for +∞.
type Utility int64

// CostInf represents +∞ in Utility arithmetic.
const CostInf Utility = math.MaxInt64 / 2

// AddUtility computes x+y with the usual saturating-at-infinity rule:
// x + ∞ = ∞ for any finite x.
func AddUtility(x, y Utility) Utility {
	if x >= CostInf || y >= CostInf {
		return CostInf
	}
	return x + y
}

// SubUtility computes x-y, never descending below zero: the algorithm
// only ever subtracts non-negative costs from non-negative bounds.
func SubUtility(x, y Utility) Utility {
	if y >= CostInf {
		return 0
	}
	if x >= CostInf {
		return CostInf
	}
	d := x - y
	if d < 0 {
		return 0
	}
	return d
}

// MaxUtility returns the greater of x and y.
func MaxUtility(x, y Utility) Utility {
	if x > y {
		return x
	}
	return y
}

// MinUtility returns the lesser of x and y.
func MinUtility(x, y Utility) Utility {
	if x < y {
		return x
	}
	return y
}

// Stamp is the monotonically non-decreasing per-sender sequence number
// used to break ties between racing VALUE messages.
type Stamp uint64

// ValuedStamp records an assignment together with the stamp it was
// sent with, exactly the source's "assignval" pair.
type ValuedStamp struct {
	Value Value
	Stamp Stamp
}

// Context is a variable's current belief about its ancestors'
// assignments: name -> (value, stamp). Compatible ignores the stamps
// and compares values only.
type Context map[string]ValuedStamp

// Clone returns an independent copy of c.
func (c Context) Clone() Context {
	n := make(Context, len(c))
	for k, v := range c {
		n[k] = v
	}
	return n
}

// Compatible reports whether a and b agree on every key present in
// both — stamps are ignored.
func Compatible(a, b Context) bool {
	for k, va := range a {
		if vb, ok := b[k]; ok && vb.Value != va.Value {
			return false
		}
	}
	return true
}
