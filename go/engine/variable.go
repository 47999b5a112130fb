package engine

import "github.com/bnbadopt/dcop/go/core"

// State is one of the four Variable Engine lifecycle states:
// Uninitialised, Ready, Running, Terminated.
type State int

const (
	Uninitialised State = iota
	Ready
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "Uninitialised"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// CostSpace evaluates the local cost space a variable owns: the join
// of unary/binary cost tables assigned to it by the pseudo-tree
// constructor. This is the interface boundary at which the engine
// consumes that constraint space, without needing to know how it was
// built or parsed.
type CostSpace interface {
	Eval(self string, d core.Value, ctx core.Context) core.Utility
}

// Outcome bundles everything a handler call may produce: outbound
// messages for the Agent Dispatcher to route, and, at most once over
// a variable's lifetime, a final Assignment and optional
// ConvergenceTrace.
type Outcome struct {
	Messages   []core.Message
	Assignment *core.Assignment
	Trace      *core.ConvergenceTrace
	Terminated bool
}

type msgKey struct {
	kind   core.Kind
	sender string
}

// Variable is one owned variable's BnB-ADOPT Variable Engine.
type Variable struct {
	name   string
	domain []core.Value

	hasParent      bool
	parent         string
	pseudoParents  []string
	children       []string
	pseudoChildren []string
	childIndex     map[string]int // name -> index within children

	space CostSpace

	hSelf          map[core.Value]core.Utility
	hChild         map[string]core.Utility
	haveHSelf      bool
	childHReceived map[string]bool
	haveDFSView    bool

	ctx    *ContextStore
	bounds *BoundsTable

	state State

	currentAssignment core.Value
	stamp             core.Stamp
	threshold         core.Utility
	terminateReceived bool

	lbOfD map[core.Value]core.Utility
	ubOfD map[core.Value]core.Utility
	delta map[core.Value]core.Utility

	lb  core.Utility
	ub  core.Utility
	lbD core.Value
	ubD core.Value

	collectTrace bool
	trace        []core.ConvergenceEvent

	lastReceived map[msgKey]core.Message
}

// NewVariable allocates a Variable Engine for the given owned
// variable name and finite ordered domain. If collectTrace is true,
// the engine records a ConvergenceEvent on every value reselection
// and emits it alongside the final Assignment.
func NewVariable(name string, domain []core.Value, collectTrace bool) *Variable {
	return &Variable{
		name:           name,
		domain:         append([]core.Value{}, domain...),
		hSelf:          make(map[core.Value]core.Utility, len(domain)),
		hChild:         make(map[string]core.Utility),
		childHReceived: make(map[string]bool),
		ctx:            NewContextStore(),
		state:          Uninitialised,
		lbOfD:          make(map[core.Value]core.Utility, len(domain)),
		ubOfD:          make(map[core.Value]core.Utility, len(domain)),
		delta:          make(map[core.Value]core.Utility, len(domain)),
		collectTrace:   collectTrace,
		lastReceived:   make(map[msgKey]core.Message),
	}
}

// Name returns the variable's name.
func (v *Variable) Name() string { return v.name }

// State returns the current lifecycle state.
func (v *Variable) State() State { return v.state }

// CurrentAssignment returns the value currently held.
func (v *Variable) CurrentAssignment() core.Value { return v.currentAssignment }

// Stamp returns the current outgoing-VALUE stamp.
func (v *Variable) Stamp() core.Stamp { return v.stamp }

// Threshold returns the current allocation threshold.
func (v *Variable) Threshold() core.Utility { return v.threshold }

// LB returns the aggregate lower bound min_d LB(d).
func (v *Variable) LB() core.Utility { return v.lb }

// UB returns the aggregate upper bound min_d UB(d).
func (v *Variable) UB() core.Utility { return v.ub }

// LBD returns the argmin achieving LB.
func (v *Variable) LBD() core.Value { return v.lbD }

// UBD returns the argmin achieving UB.
func (v *Variable) UBD() core.Value { return v.ubD }

// LBOfD returns LB(d) for the given domain value.
func (v *Variable) LBOfD(d core.Value) core.Utility { return v.lbOfD[d] }

// UBOfD returns UB(d) for the given domain value.
func (v *Variable) UBOfD(d core.Value) core.Utility { return v.ubOfD[d] }

// Delta returns delta(d) for the given domain value.
func (v *Variable) Delta(d core.Value) core.Utility { return v.delta[d] }

// Bounds exposes the underlying Bounds Table, mainly for tests
// asserting the accounting and bound invariants directly.
func (v *Variable) Bounds() *BoundsTable { return v.bounds }

// ContextSnapshot returns a copy of the current Context Store.
func (v *Variable) ContextSnapshot() core.Context { return v.ctx.Snapshot() }

// ContextCompatible reports whether ctx agrees with the current
// Context Store on every ancestor present in both.
func (v *Variable) ContextCompatible(ctx core.Context) bool { return v.ctx.Compatible(ctx) }

// Children returns the fixed-order child list.
func (v *Variable) Children() []string { return append([]string{}, v.children...) }

// Domain returns the variable's domain, in the order passed to
// NewVariable.
func (v *Variable) Domain() []core.Value { return append([]core.Value{}, v.domain...) }

// HSelf returns h(self, d), the static heuristic estimate for d.
func (v *Variable) HSelf(d core.Value) core.Utility { return v.hSelf[d] }

func childSet(children []string) map[string]bool {
	s := make(map[string]bool, len(children))
	for _, c := range children {
		s[c] = true
	}
	return s
}

func (v *Variable) ancestors() []string {
	var a []string
	if v.hasParent {
		a = append(a, v.parent)
	}
	return append(a, v.pseudoParents...)
}

func (v *Variable) lowerNeighbours() []string {
	return append(append([]string{}, v.children...), v.pseudoChildren...)
}

// OnDFSView establishes the pseudo-tree neighbours and joined
// constraint space for this variable. space may be nil if no
// constraint space was assigned to this variable.
func (v *Variable) OnDFSView(parent string, hasParent bool, pseudoParents, children, pseudoChildren []string, space CostSpace) *Outcome {
	v.hasParent = hasParent
	v.parent = parent
	v.pseudoParents = append([]string{}, pseudoParents...)
	v.children = append([]string{}, children...)
	v.pseudoChildren = append([]string{}, pseudoChildren...)
	v.space = space

	v.childIndex = make(map[string]int, len(v.children))
	for i, c := range v.children {
		v.childIndex[c] = i
	}
	v.bounds = NewBoundsTable(v.domain, len(v.children))
	v.haveDFSView = true

	return v.maybeInit()
}

// OnHeuristic stores this variable's own heuristic h(self, ·).
func (v *Variable) OnHeuristic(hSelf map[core.Value]core.Utility) *Outcome {
	for d, h := range hSelf {
		v.hSelf[d] = h
	}
	v.haveHSelf = true
	return v.maybeInit()
}

// OnChildHeuristic stores the per-child scalar h_child(c).
func (v *Variable) OnChildHeuristic(childName string, hChild core.Utility) *Outcome {
	v.hChild[childName] = hChild
	v.childHReceived[childName] = true
	return v.maybeInit()
}

func (v *Variable) readyToInit() bool {
	if v.state != Uninitialised {
		return false
	}
	if !v.haveDFSView || !v.haveHSelf {
		return false
	}
	for _, c := range v.children {
		if !v.childHReceived[c] {
			return false
		}
	}
	return true
}

func (v *Variable) maybeInit() *Outcome {
	if !v.readyToInit() {
		if v.bounds != nil && v.state == Uninitialised {
			v.recomputeBounds()
		}
		return &Outcome{}
	}
	v.state = Ready
	return v.init()
}

// init runs the one-time initialisation procedure once both the
// pseudo-tree view and the heuristics have arrived, including the
// singleton special case.
func (v *Variable) init() *Outcome {
	if len(v.lowerNeighbours()) == 0 && len(v.ancestors()) == 0 {
		return v.initSingleton()
	}

	// 1. Seed the Context Store with a placeholder for every ancestor.
	for _, a := range v.ancestors() {
		v.ctx.PriorityMerge(a, v.domain[0], 1)
	}

	// 2. stamp = 0
	v.stamp = 0

	// 3. Seed every child's bound for every value.
	for _, d := range v.domain {
		for i, c := range v.children {
			v.bounds.InitChild(d, i, v.hChild[c])
		}
	}

	// 4-5. delta, then aggregate bounds and pick the initial assignment.
	v.setDelta()
	v.initSelf()

	v.state = Running

	// 6. Emit initial VALUE/COST messages.
	return v.backtrack()
}

// initSingleton handles the case of a variable with no pseudo-tree
// neighbours at all: it can pick its cheapest value and terminate
// immediately, with nobody to tell.
func (v *Variable) initSingleton() *Outcome {
	v.setDelta()

	best := v.domain[0]
	bestCost := v.delta[best]
	for _, d := range v.domain[1:] {
		if v.delta[d] < bestCost {
			best, bestCost = d, v.delta[d]
		}
	}
	v.currentAssignment = best
	v.stamp = 1
	v.lb, v.ub = bestCost, bestCost
	v.lbD, v.ubD = best, best
	v.state = Terminated

	out := &Outcome{
		Assignment: &core.Assignment{Var: v.name, Value: best},
		Terminated: true,
	}
	if v.collectTrace {
		v.trace = append(v.trace, core.ConvergenceEvent{Stamp: v.stamp, Value: best})
		out.Trace = &core.ConvergenceTrace{Var: v.name, Events: v.trace}
	}
	return out
}

// setDelta recomputes delta(d), the local cost of assigning d given
// the current context, for every domain value.
func (v *Variable) setDelta() {
	ctx := v.ctx.Snapshot()
	for _, d := range v.domain {
		if v.space == nil {
			v.delta[d] = 0
			continue
		}
		v.delta[d] = v.space.Eval(v.name, d, ctx)
	}
}

// recomputeBounds refreshes LB(d)/UB(d) for every value from the
// bounds table's current sums and h(self,d), then the aggregates
// LB/UB/lbD/ubD, without touching currentAssignment or stamp. Callers
// that merely tightened the bounds table (a bounds.Update, with no
// context change) use this directly so backtrack()'s own
// threshold-gated reselect() sees fresh numbers.
func (v *Variable) recomputeBounds() {
	for _, d := range v.domain {
		v.lbOfD[d] = core.MaxUtility(v.hSelf[d], core.AddUtility(v.delta[d], v.bounds.LBSum(d)))
		v.ubOfD[d] = core.AddUtility(v.delta[d], v.bounds.UBSum(d))
	}
	v.recomputeAggregates()
}

// initSelf recomputes LB(d)/UB(d) and the aggregates via
// recomputeBounds, then (re)selects currentAssignment = lbD, bumping
// the stamp. Used wherever the context itself changed, since a new
// context also means a new delta(d).
func (v *Variable) initSelf() {
	v.recomputeBounds()
	v.currentAssignment = v.lbD
	v.stamp++
	v.threshold = core.CostInf
}

// recomputeAggregates refreshes LB, UB, lbD, ubD from LB(d)/UB(d),
// tie-breaking by domain iteration order.
func (v *Variable) recomputeAggregates() {
	v.lbD, v.ubD = v.domain[0], v.domain[0]
	v.lb, v.ub = v.lbOfD[v.domain[0]], v.ubOfD[v.domain[0]]
	for _, d := range v.domain[1:] {
		if v.lbOfD[d] < v.lb {
			v.lb, v.lbD = v.lbOfD[d], d
		}
		if v.ubOfD[d] < v.ub {
			v.ub, v.ubD = v.ubOfD[d], d
		}
	}
}

// resetStaleChildren resets every (d, childIndex) whose saved context
// is incompatible with the current Context Store. Returns true if any
// reset occurred.
func (v *Variable) resetStaleChildren() bool {
	changed := false
	for _, d := range v.domain {
		for i := range v.children {
			saved := v.bounds.SavedContext(d, i)
			if saved != nil && !v.ctx.Compatible(saved) {
				v.bounds.Reset(d, i)
				changed = true
			}
		}
	}
	return changed
}

func (v *Variable) dedupe(kind core.Kind, sender string, msg core.Message) bool {
	key := msgKey{kind: kind, sender: sender}
	if last, ok := v.lastReceived[key]; ok && last.Equal(msg) {
		return true
	}
	v.lastReceived[key] = msg
	return false
}

// OnValue handles an incoming VALUE message.
func (v *Variable) OnValue(sender string, value core.Value, stamp core.Stamp, threshold core.Utility, hasThresh bool) *Outcome {
	msg := core.Message{Kind: core.ValueMsg, Sender: sender, Receiver: v.name,
		Value: value, Stamp: stamp, Threshold: threshold, HasThresh: hasThresh}
	if v.dedupe(core.ValueMsg, sender, msg) {
		return &Outcome{}
	}

	if v.state == Uninitialised || v.state == Ready {
		v.ctx.PriorityMerge(sender, value, stamp)
		return &Outcome{}
	}
	if v.state == Terminated {
		return &Outcome{}
	}

	ctxBefore := v.ctx.Snapshot()
	v.ctx.PriorityMerge(sender, value, stamp)

	var changed bool
	if len(v.children) == 0 {
		changed = !core.Compatible(ctxBefore, v.ctx.Snapshot())
	} else {
		changed = v.resetStaleChildren()
	}
	if changed {
		v.setDelta()
		v.initSelf()
	}

	if hasThresh && v.hasParent && sender == v.parent {
		v.threshold = threshold
	}

	return v.backtrack()
}

// OnCost handles an incoming COST message. sender must be one of
// v.children, since COST only ever flows child -> parent.
func (v *Variable) OnCost(sender string, ctx core.Context, lb, ub core.Utility) *Outcome {
	msg := core.Message{Kind: core.CostMsg, Sender: sender, Receiver: v.name, Context: ctx, LB: lb, UB: ub}
	if v.dedupe(core.CostMsg, sender, msg) {
		return &Outcome{}
	}

	if !v.haveDFSView {
		// This variable doesn't know its tree position yet, so there is
		// no bounds table to update against; nothing sound to do.
		return &Outcome{}
	}

	ctxMap := ctx.Clone()
	dStar, hasDStar := ctxMap[v.name]
	if hasDStar {
		delete(ctxMap, v.name)
	}

	if v.state != Terminated {
		exclude := childSet(v.children)
		mergeChanged := v.ctx.PriorityMergeMany(ctxMap, exclude)
		resetChanged := v.resetStaleChildren()
		if mergeChanged || resetChanged {
			v.setDelta()
			v.initSelf()
		}
	}

	if v.ctx.Compatible(ctxMap) {
		childIdx, ok := v.childIndex[sender]
		if ok {
			if hasDStar {
				v.bounds.Update(dStar.Value, childIdx, lb, ub, ctxMap)
			} else {
				for _, d := range v.domain {
					v.bounds.Update(d, childIdx, lb, ub, ctxMap)
				}
			}
			// A bounds.Update tightens LB(d)/UB(d) even when the
			// context itself didn't change, so refresh the aggregates
			// backtrack() reads regardless of mergeChanged/resetChanged
			// above.
			v.recomputeBounds()
		}
	}

	if v.state != Running && v.state != Terminated {
		// init() hasn't run yet: the bound/context bookkeeping above
		// still applies, but there is nothing to backtrack with until
		// this variable's own heuristic/DFS-view messages arrive.
		return &Outcome{}
	}
	return v.backtrack()
}

// OnTerminate handles an incoming TERMINATE message.
func (v *Variable) OnTerminate(sender string, ctx core.Context) *Outcome {
	msg := core.Message{Kind: core.TerminateMsg, Sender: sender, Receiver: v.name, Context: ctx}
	if v.dedupe(core.TerminateMsg, sender, msg) {
		return &Outcome{}
	}

	v.terminateReceived = true

	if !v.haveDFSView {
		return &Outcome{}
	}

	exclude := childSet(v.children)
	v.ctx.Adopt(ctx, exclude)

	if v.state != Running && v.state != Terminated {
		// Dispatcher only forwards TERMINATE once a variable has
		// completed init(), so this is belt-and-braces for callers
		// driving the engine directly: terminateReceived above is
		// enough to honour termination once init() does run.
		return &Outcome{}
	}

	if len(v.children) == 0 {
		v.setDelta()
		v.initSelf()
	} else {
		resetChanged := v.resetStaleChildren()
		v.setDelta()
		if resetChanged {
			v.initSelf()
		}
	}

	return v.backtrack()
}
