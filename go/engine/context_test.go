package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/engine"
)

func TestContextStore_PriorityMergeRejectsStaleStamps(t *testing.T) {
	cs := engine.NewContextStore()

	assert.True(t, cs.PriorityMerge("A", 1, 5))
	assert.False(t, cs.PriorityMerge("A", 2, 5), "equal stamp must not overwrite")
	assert.False(t, cs.PriorityMerge("A", 2, 3), "older stamp must not overwrite")
	assert.True(t, cs.PriorityMerge("A", 2, 6), "strictly newer stamp must overwrite")

	vs, ok := cs.Get("A")
	assert.True(t, ok)
	assert.Equal(t, core.Value(2), vs.Value)
	assert.Equal(t, core.Stamp(6), vs.Stamp)
}

func TestContextStore_PriorityMergeManyHonoursExclude(t *testing.T) {
	cs := engine.NewContextStore()
	other := core.Context{
		"A": {Value: 1, Stamp: 1},
		"B": {Value: 2, Stamp: 1},
	}
	changed := cs.PriorityMergeMany(other, map[string]bool{"B": true})
	assert.True(t, changed)

	_, hasA := cs.Get("A")
	_, hasB := cs.Get("B")
	assert.True(t, hasA)
	assert.False(t, hasB, "excluded keys must never be merged")
}

func TestContextStore_AdoptIsUnconditional(t *testing.T) {
	cs := engine.NewContextStore()
	cs.PriorityMerge("A", 1, 100) // a very "fresh" existing stamp

	// Adopt must still overwrite it: on_terminate trusts the
	// terminating ancestor's context wholesale.
	cs.Adopt(core.Context{"A": {Value: 9, Stamp: 1}}, nil)

	vs, ok := cs.Get("A")
	assert.True(t, ok)
	assert.Equal(t, core.Value(9), vs.Value)
}

func TestContextStore_Compatible(t *testing.T) {
	cs := engine.NewContextStore()
	cs.PriorityMerge("A", 1, 1)

	assert.True(t, cs.Compatible(core.Context{"A": {Value: 1, Stamp: 99}}), "stamps are ignored by Compatible")
	assert.False(t, cs.Compatible(core.Context{"A": {Value: 2, Stamp: 1}}))
	assert.True(t, cs.Compatible(core.Context{"B": {Value: 2, Stamp: 1}}), "keys absent from the store never conflict")
}
