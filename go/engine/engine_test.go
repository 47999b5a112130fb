package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/engine"
)

// invariantWalker checks the Bounds Table accounting identities and
// formulas against a *Variable's exposed state after every handler
// call, and carries enough history across calls to check the two
// monotonicity properties that can't be checked from a single
// snapshot alone.
type invariantWalker struct {
	t            *testing.T
	lastStamp    map[string]core.Stamp
	lastCtxStamp map[string]map[string]core.Stamp
}

func newInvariantWalker(t *testing.T) *invariantWalker {
	return &invariantWalker{
		t:            t,
		lastStamp:    make(map[string]core.Stamp),
		lastCtxStamp: make(map[string]map[string]core.Stamp),
	}
}

func (w *invariantWalker) check(v *engine.Variable) {
	t := w.t
	t.Helper()
	name := v.Name()
	bt := v.Bounds()
	domain := v.Domain()

	for _, d := range domain {
		var lbSum, ubSum core.Utility
		for i := 0; i < bt.NumChildren(); i++ {
			lbSum = core.AddUtility(lbSum, bt.LB(d, i))
			ubSum = core.AddUtility(ubSum, bt.UB(d, i))
		}
		assert.Equal(t, lbSum, bt.LBSum(d), "%s d=%d: lbSum must equal the sum of per-child lb", name, d)
		assert.Equal(t, ubSum, bt.UBSum(d), "%s d=%d: ubSum must equal the sum of per-child ub", name, d)

		wantLB := core.MaxUtility(v.HSelf(d), core.AddUtility(v.Delta(d), bt.LBSum(d)))
		assert.Equal(t, wantLB, v.LBOfD(d), "%s d=%d: LB(d) formula", name, d)

		wantUB := core.AddUtility(v.Delta(d), bt.UBSum(d))
		assert.Equal(t, wantUB, v.UBOfD(d), "%s d=%d: UB(d) formula", name, d)

		for i := 0; i < bt.NumChildren(); i++ {
			saved := bt.SavedContext(d, i)
			if !v.ContextCompatible(saved) {
				assert.Equal(t, core.Utility(0), bt.LB(d, i), "%s d=%d child=%d: bound stale against a changed ancestor must reset lb to 0", name, d, i)
				assert.Equal(t, core.CostInf, bt.UB(d, i), "%s d=%d child=%d: bound stale against a changed ancestor must reset ub to +inf", name, d, i)
			}
		}

		assert.LessOrEqual(t, int64(v.LB()), int64(v.LBOfD(d)), "%s: aggregate LB must be the min over d", name)
		assert.LessOrEqual(t, int64(v.UB()), int64(v.UBOfD(d)), "%s: aggregate UB must be the min over d", name)
	}
	assert.Equal(t, v.LBOfD(v.LBD()), v.LB(), "%s: LB must actually be achieved at lbD", name)
	assert.Equal(t, v.UBOfD(v.UBD()), v.UB(), "%s: UB must actually be achieved at ubD", name)

	if last, ok := w.lastStamp[name]; ok {
		assert.GreaterOrEqual(t, int64(v.Stamp()), int64(last), "%s: outgoing stamp must never decrease", name)
	}
	w.lastStamp[name] = v.Stamp()

	lastCtx := w.lastCtxStamp[name]
	if lastCtx == nil {
		lastCtx = make(map[string]core.Stamp)
		w.lastCtxStamp[name] = lastCtx
	}
	for a, vs := range v.ContextSnapshot() {
		if last, ok := lastCtx[a]; ok {
			assert.GreaterOrEqual(t, int64(vs.Stamp), int64(last), "%s: stored stamp for ancestor %s must never decrease", name, a)
		}
		lastCtx[a] = vs.Stamp
	}
}

// deliver hands msg to the variable it names and records every
// resulting outbound message onto the queue, checking every
// invariant immediately after the handler returns.
func deliver(w *invariantWalker, vars map[string]*engine.Variable, msg core.Message, queue *[]core.Message) {
	v := vars[msg.Receiver]
	var out *engine.Outcome
	switch msg.Kind {
	case core.ValueMsg:
		out = v.OnValue(msg.Sender, msg.Value, msg.Stamp, msg.Threshold, msg.HasThresh)
	case core.CostMsg:
		out = v.OnCost(msg.Sender, msg.Context, msg.LB, msg.UB)
	case core.TerminateMsg:
		out = v.OnTerminate(msg.Sender, msg.Context)
	}
	w.check(v)
	*queue = append(*queue, out.Messages...)
}

// TestEngine_InvariantsHoldAcrossChainRun drives a 3-variable chain
// A-B-C (each constrained against its parent by |self-parent|)
// through init and every subsequent handler call to termination,
// checking the Bounds Table accounting and bound formulas and the two
// monotonicity properties after every single handler return.
func TestEngine_InvariantsHoldAcrossChainRun(t *testing.T) {
	domain := []core.Value{0, 1, 2}
	w := newInvariantWalker(t)

	a := engine.NewVariable("A", domain, false)
	b := engine.NewVariable("B", domain, false)
	c := engine.NewVariable("C", domain, false)
	vars := map[string]*engine.Variable{"A": a, "B": b, "C": c}

	var queue []core.Message

	out := a.OnDFSView("", false, nil, []string{"B"}, nil, zeroSpace{})
	w.check(a)
	queue = append(queue, out.Messages...)
	out = a.OnHeuristic(zeroHeuristic(domain))
	w.check(a)
	queue = append(queue, out.Messages...)
	out = a.OnChildHeuristic("B", 0)
	w.check(a)
	queue = append(queue, out.Messages...)

	out = b.OnDFSView("A", true, nil, []string{"C"}, nil, absSpace{neighbour: "A"})
	w.check(b)
	queue = append(queue, out.Messages...)
	out = b.OnHeuristic(zeroHeuristic(domain))
	w.check(b)
	queue = append(queue, out.Messages...)
	out = b.OnChildHeuristic("C", 0)
	w.check(b)
	queue = append(queue, out.Messages...)

	out = c.OnDFSView("B", true, nil, nil, nil, absSpace{neighbour: "B"})
	w.check(c)
	queue = append(queue, out.Messages...)
	out = c.OnHeuristic(zeroHeuristic(domain))
	w.check(c)
	queue = append(queue, out.Messages...)

	const maxSteps = 10000
	steps := 0
	for len(queue) > 0 {
		steps++
		if steps > maxSteps {
			t.Fatalf("chain did not converge within %d message deliveries", maxSteps)
		}
		msg := queue[0]
		queue = queue[1:]
		deliver(w, vars, msg, &queue)
	}

	for _, name := range []string{"A", "B", "C"} {
		assert.Equal(t, engine.Terminated, vars[name].State(), "%s must reach Terminated", name)
	}
	first := a.CurrentAssignment()
	assert.Equal(t, first, b.CurrentAssignment(), "a chain of |self-parent| costs is minimised by every variable agreeing")
	assert.Equal(t, first, c.CurrentAssignment(), "a chain of |self-parent| costs is minimised by every variable agreeing")
}
