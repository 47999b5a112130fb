package engine

import "github.com/bnbadopt/dcop/go/core"

// ContextStore is a variable's mapping from ancestor name to the
// (value, stamp) pair it currently believes about that ancestor.
type ContextStore struct {
	m core.Context
}

// NewContextStore returns an empty context store.
func NewContextStore() *ContextStore {
	return &ContextStore{m: core.Context{}}
}

// Snapshot returns an independent copy of the current context, for use
// as a before-image when checking whether a merge actually changed
// anything, or as the saved context attached to a bound update.
func (cs *ContextStore) Snapshot() core.Context {
	return cs.m.Clone()
}

// Get returns the current entry for name, if any.
func (cs *ContextStore) Get(name string) (core.ValuedStamp, bool) {
	vs, ok := cs.m[name]
	return vs, ok
}

// PriorityMerge writes (value, stamp) for sender if the store has no
// entry for sender yet, or its stamp is strictly less than stamp.
// Equal or lower stamps are dropped — the mechanism that makes the
// store track only the most recent assignment per ancestor.
func (cs *ContextStore) PriorityMerge(sender string, value core.Value, stamp core.Stamp) bool {
	cur, ok := cs.m[sender]
	if ok && cur.Stamp >= stamp {
		return false
	}
	cs.m[sender] = core.ValuedStamp{Value: value, Stamp: stamp}
	return true
}

// PriorityMergeMany merges every entry of other whose key is not in
// exclude, via PriorityMerge. Returns true if any entry changed.
func (cs *ContextStore) PriorityMergeMany(other core.Context, exclude map[string]bool) bool {
	changed := false
	for k, vs := range other {
		if exclude[k] {
			continue
		}
		if cs.PriorityMerge(k, vs.Value, vs.Stamp) {
			changed = true
		}
	}
	return changed
}

// Adopt replaces the store's entries for every key in ctx that is not
// in exclude, unconditionally — used when handling TERMINATE, which
// adopts the ancestor portion of the sender's context wholesale rather
// than going through the stamp-priority rule.
func (cs *ContextStore) Adopt(ctx core.Context, exclude map[string]bool) {
	for k, vs := range ctx {
		if exclude[k] {
			continue
		}
		cs.m[k] = vs
	}
}

// Compatible reports whether ctx agrees with the store's current
// contents on every key present in both.
func (cs *ContextStore) Compatible(ctx core.Context) bool {
	return core.Compatible(ctx, cs.m)
}
