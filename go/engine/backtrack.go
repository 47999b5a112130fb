package engine

import "github.com/bnbadopt/dcop/go/core"

// backtrack runs the value-reselection rule, termination detection,
// and message emission. It is the single exit point of every handler
// once a variable is Running.
func (v *Variable) backtrack() *Outcome {
	v.reselect()

	if v.shouldTerminate() {
		return v.terminate()
	}
	return v.continueRunning()
}

// reselect switches currentAssignment to lbD whenever the current
// value's lower bound has met or exceeded the threshold or the
// aggregate upper bound, bumping the stamp and recording a
// convergence event if the value actually changes.
func (v *Variable) reselect() {
	i := v.currentAssignment
	if v.lbOfD[i] < v.threshold && v.lbOfD[i] < v.ub {
		return
	}
	if v.lbD == v.currentAssignment {
		return
	}
	v.currentAssignment = v.lbD
	v.stamp++
	if v.collectTrace {
		v.trace = append(v.trace, core.ConvergenceEvent{Stamp: v.stamp, Value: v.currentAssignment})
	}
}

func (v *Variable) shouldTerminate() bool {
	return v.terminateReceived || (!v.hasParent && v.ub <= v.lb)
}

// terminate sends TERMINATE to every child, emits the final
// assignment (and convergence trace, if requested), and marks the
// variable Terminated.
func (v *Variable) terminate() *Outcome {
	v.state = Terminated

	selfEntry := core.ValuedStamp{Value: v.currentAssignment, Stamp: v.stamp}
	out := &Outcome{
		Assignment: &core.Assignment{Var: v.name, Value: v.currentAssignment},
		Terminated: true,
	}
	for _, c := range v.children {
		ctx := v.ctx.Snapshot()
		ctx[v.name] = selfEntry
		out.Messages = append(out.Messages, core.Message{
			Kind: core.TerminateMsg, Sender: v.name, Receiver: c, Context: ctx,
		})
	}
	if v.collectTrace {
		out.Trace = &core.ConvergenceTrace{Var: v.name, Events: v.trace}
	}
	return out
}

// continueRunning sends VALUE to every lower neighbour (with a real
// allocation threshold to children, +∞ to pseudo-children) and, if
// there is a parent, a COST message upward.
func (v *Variable) continueRunning() *Outcome {
	out := &Outcome{}

	lower := v.lowerNeighbours()
	for k, lnb := range lower {
		var childThreshold core.Utility
		hasThresh := true
		if k < len(v.children) {
			childThreshold = v.allocationThreshold(k)
		} else {
			childThreshold = core.CostInf
		}
		out.Messages = append(out.Messages, core.Message{
			Kind: core.ValueMsg, Sender: v.name, Receiver: lnb,
			Value: v.currentAssignment, Stamp: v.stamp,
			Threshold: childThreshold, HasThresh: hasThresh,
		})
	}

	if v.hasParent {
		out.Messages = append(out.Messages, core.Message{
			Kind: core.CostMsg, Sender: v.name, Receiver: v.parent,
			Context: v.ctx.Snapshot(), LB: v.lb, UB: v.ub,
		})
	}
	return out
}

// allocationThreshold computes the threshold allocated to child k:
//
//	childThreshold = min(threshold, UB) - delta(currentAssignment) - Σ_{j≠k} lb[i][j]
//
// clamped at 0, where i = currentAssignment.
func (v *Variable) allocationThreshold(k int) core.Utility {
	i := v.currentAssignment
	minThreshUB := core.MinUtility(v.threshold, v.ub)
	afterDelta := core.SubUtility(minThreshUB, v.delta[i])
	otherChildrenSum := core.SubUtility(v.bounds.LBSum(i), v.bounds.LB(i, k))
	return core.SubUtility(afterDelta, otherChildrenSum)
}
