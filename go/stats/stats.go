// Package stats accumulates the Assignment and ConvergenceTrace
// messages emitted by terminated Variable Engines into a final
// Solution, and exports Prometheus counters for operational
// visibility — an ambient concern the core itself has no opinion on.
package stats

import (
	"sync"

	"github.com/bnbadopt/dcop/go/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Solution is the aggregated result of a run: one value per variable,
// and the total cost evaluated over the joint assignment.
type Solution struct {
	Assignments map[string]core.Value
	TotalCost   core.Utility
}

// CostFunc evaluates the total joint cost of a complete assignment,
// used to fill in Solution.TotalCost once every variable has reported.
type CostFunc func(assignment map[string]core.Value) core.Utility

// Metrics is the set of Prometheus collectors the Sink maintains.
type Metrics struct {
	Assignments  prometheus.Counter
	Terminations prometheus.Counter
	ValueChanges prometheus.Counter
}

// NewMetrics registers a fresh set of collectors with reg. Pass a
// prometheus.NewRegistry() in tests to avoid collisions with the
// default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Assignments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcop_assignments_total",
			Help: "Number of final variable assignments emitted.",
		}),
		Terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcop_terminations_total",
			Help: "Number of variables that have reached the Terminated state.",
		}),
		ValueChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcop_value_changes_total",
			Help: "Number of convergence-trace value reselections observed.",
		}),
	}
	reg.MustRegister(m.Assignments, m.Terminations, m.ValueChanges)
	return m
}

// Sink collects Assignment/ConvergenceTrace messages from every
// variable in a run and produces the aggregated Solution once all of
// them have reported.
type Sink struct {
	mu      sync.Mutex
	want    int
	metrics *Metrics
	cost    CostFunc

	assignments map[string]core.Value
	traces      map[string]core.ConvergenceTrace
	done        chan Solution
	closed      bool
}

// NewSink creates a Sink expecting wantVars final assignments, scoring
// the aggregate with cost once complete. metrics may be nil to skip
// instrumentation.
func NewSink(wantVars int, cost CostFunc, metrics *Metrics) *Sink {
	return &Sink{
		want:        wantVars,
		metrics:     metrics,
		cost:        cost,
		assignments: make(map[string]core.Value, wantVars),
		traces:      make(map[string]core.ConvergenceTrace),
		done:        make(chan Solution, 1),
	}
}

// Assignment records a variable's final assignment. Once every
// expected variable has reported, the Solution becomes available on
// Done().
func (s *Sink) Assignment(a core.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.Var] = a.Value
	if s.metrics != nil {
		s.metrics.Assignments.Inc()
		s.metrics.Terminations.Inc()
	}
	s.maybeFinish()
}

// ConvergenceTrace records a variable's convergence trace, if the
// dispatcher was asked to collect one.
func (s *Sink) ConvergenceTrace(t core.ConvergenceTrace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[t.Var] = t
	if s.metrics != nil {
		s.metrics.ValueChanges.Add(float64(len(t.Events)))
	}
}

func (s *Sink) maybeFinish() {
	if s.closed || len(s.assignments) < s.want {
		return
	}
	s.closed = true
	total := core.Utility(0)
	if s.cost != nil {
		total = s.cost(s.assignments)
	}
	sol := Solution{Assignments: cloneAssignments(s.assignments), TotalCost: total}
	s.done <- sol
	close(s.done)
}

// Done returns a channel that receives exactly one Solution once
// every expected variable has reported its final assignment.
func (s *Sink) Done() <-chan Solution {
	return s.done
}

func cloneAssignments(m map[string]core.Value) map[string]core.Value {
	n := make(map[string]core.Value, len(m))
	for k, v := range m {
		n[k] = v
	}
	return n
}
