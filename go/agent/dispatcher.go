// Package agent implements the Agent Dispatcher: the process-local
// goroutine that owns one or more Variable Engines, routes inbound
// messages to the right one by name, resolves outbound messages to a
// transport Peer by the destination variable's owning agent, and
// reports each owned variable's final assignment to a stats.Sink.
package agent

import (
	"fmt"
	"log"
	"sync"

	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/engine"
	"github.com/bnbadopt/dcop/go/stats"
	"github.com/bnbadopt/dcop/go/transport"
)

// Dispatcher owns every Variable Engine local to one agent ID, and the
// static routing tables needed to deliver messages to and from them.
type Dispatcher struct {
	id string

	mu    sync.Mutex
	vars  map[string]*engine.Variable
	owner map[string]string      // variable name -> owning agent ID, shared across every agent
	peers map[string]transport.Peer
	// pending holds TERMINATE messages that arrived for a variable
	// before it reached Running, keyed by receiver name, replayed in
	// arrival order once that variable's init() has completed.
	pending map[string][]core.Message

	inbox <-chan []byte
	sink  *stats.Sink

	wg       sync.WaitGroup
	finished chan struct{}
	doneOnce sync.Once
	want     int
	done     int
}

// NewDispatcher creates a Dispatcher for agent id, consuming framed
// wire messages from inbox (as returned by transport.InProcNetwork.
// Register or ListenTCP's delivery callback fed through a channel).
// owner is the shared, read-only variable-name -> agent-ID routing
// table built once at startup by the problem/tree layer; want is the
// number of locally-owned variables expected to terminate.
func NewDispatcher(id string, inbox <-chan []byte, owner map[string]string, sink *stats.Sink, want int) *Dispatcher {
	return &Dispatcher{
		id:       id,
		vars:     make(map[string]*engine.Variable),
		owner:    owner,
		peers:    make(map[string]transport.Peer),
		pending:  make(map[string][]core.Message),
		inbox:    inbox,
		sink:     sink,
		finished: make(chan struct{}),
		want:     want,
	}
}

// AddPeer registers the Peer used to reach agentID.
func (d *Dispatcher) AddPeer(agentID string, p transport.Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[agentID] = p
}

// Register creates and returns a new, locally-owned Variable Engine.
func (d *Dispatcher) Register(name string, domain []core.Value, collectTrace bool) *engine.Variable {
	v := engine.NewVariable(name, domain, collectTrace)
	d.mu.Lock()
	d.vars[name] = v
	d.mu.Unlock()
	return v
}

// InitVariable delivers the pseudo-tree position, own heuristic, and
// every child heuristic to a locally-owned variable in one call,
// mirroring how cmd/dcopsim's problem.Tree builder wires up variables
// that all live in the same process. Any outbound messages the
// resulting init() produces are routed immediately.
func (d *Dispatcher) InitVariable(name, parent string, hasParent bool, pseudoParents, children, pseudoChildren []string,
	space engine.CostSpace, hSelf map[core.Value]core.Utility, hChild map[string]core.Utility) {
	v := d.variable(name)
	out := v.OnDFSView(parent, hasParent, pseudoParents, children, pseudoChildren, space)
	d.handle(v, out)
	out = v.OnHeuristic(hSelf)
	d.handle(v, out)
	for c, h := range hChild {
		out = v.OnChildHeuristic(c, h)
		d.handle(v, out)
	}
	d.drainPending(v)
}

func (d *Dispatcher) variable(name string) *engine.Variable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vars[name]
}

// Run drains the inbox until it is closed, decoding and routing each
// message in turn. It returns once the inbox closes, or after routing
// a message once every locally-owned variable has terminated; it does
// not return while the inbox stays open and empty.
func (d *Dispatcher) Run() {
	for raw := range d.inbox {
		msg, _, err := core.Decode(raw)
		if err != nil {
			log.Printf("agent %s: dropping malformed message: %v", d.id, err)
			continue
		}
		d.route(msg)
		select {
		case <-d.finished:
			return
		default:
		}
	}
}

// route delivers one message to the local variable it names, or
// re-enqueues a TERMINATE for later if that variable has not yet
// reached Running. That re-enqueue is an expected control-flow branch,
// not an error.
func (d *Dispatcher) route(msg core.Message) {
	v := d.variable(msg.Receiver)
	if v == nil {
		d.fatal(fmt.Errorf("%w: %s", core.ErrUnknownVariable, msg.Receiver))
		return
	}

	if msg.Kind == core.TerminateMsg && v.State() == engine.Uninitialised {
		d.mu.Lock()
		d.pending[msg.Receiver] = append(d.pending[msg.Receiver], msg)
		d.mu.Unlock()
		return
	}

	var out *engine.Outcome
	switch msg.Kind {
	case core.ValueMsg:
		out = v.OnValue(msg.Sender, msg.Value, msg.Stamp, msg.Threshold, msg.HasThresh)
	case core.CostMsg:
		out = v.OnCost(msg.Sender, msg.Context, msg.LB, msg.UB)
	case core.TerminateMsg:
		out = v.OnTerminate(msg.Sender, msg.Context)
	default:
		d.fatal(fmt.Errorf("agent %s: unknown message kind %d", d.id, msg.Kind))
		return
	}
	d.handle(v, out)
	d.drainPending(v)
}

// drainPending replays any TERMINATE messages queued for v while it
// was Uninitialised, in arrival order, now that init() has run.
func (d *Dispatcher) drainPending(v *engine.Variable) {
	if v.State() == engine.Uninitialised {
		return
	}
	d.mu.Lock()
	queued := d.pending[v.Name()]
	delete(d.pending, v.Name())
	d.mu.Unlock()
	for _, m := range queued {
		d.route(m)
	}
}

// handle routes every outbound message an Outcome carries, reports a
// final assignment/trace to the stats sink, and tracks local
// completion toward AGENT_FINISHED.
func (d *Dispatcher) handle(v *engine.Variable, out *engine.Outcome) {
	for _, msg := range out.Messages {
		d.send(msg)
	}
	if out.Assignment != nil && d.sink != nil {
		d.sink.Assignment(*out.Assignment)
	}
	if out.Trace != nil && d.sink != nil {
		d.sink.ConvergenceTrace(*out.Trace)
	}
	if out.Terminated {
		d.noteLocalTermination()
	}
}

// send resolves msg.Receiver's owning agent and hands it to that
// agent's Peer. A transport failure, or a Receiver with no known
// owner, is reported through fatal and the message is dropped: there
// is no retry path for a message the algorithm itself emitted.
func (d *Dispatcher) send(msg core.Message) {
	d.mu.Lock()
	ownerID, ok := d.owner[msg.Receiver]
	if !ok {
		d.mu.Unlock()
		d.fatal(fmt.Errorf("%w: %s", core.ErrUnknownVariable, msg.Receiver))
		return
	}
	peer, ok := d.peers[ownerID]
	d.mu.Unlock()
	if !ok {
		d.fatal(fmt.Errorf("agent %s: no peer registered for agent %s", d.id, ownerID))
		return
	}
	if err := peer.Send(msg); err != nil {
		d.fatal(fmt.Errorf("agent %s: transport failure sending to %s: %w", d.id, ownerID, err))
	}
}

// noteLocalTermination records one more locally-owned variable
// reaching Terminated, closing Finished() once every expected variable
// has.
func (d *Dispatcher) noteLocalTermination() {
	d.mu.Lock()
	d.done++
	done, want := d.done, d.want
	d.mu.Unlock()
	if done >= want {
		d.doneOnce.Do(func() { close(d.finished) })
	}
}

// Finished returns a channel that is closed once every locally-owned
// variable has terminated (AGENT_FINISHED).
func (d *Dispatcher) Finished() <-chan struct{} {
	return d.finished
}

// fatal reports an unrecoverable protocol or transport error by
// logging it. Such errors are not retried. fatal does not stop the
// dispatcher: Run keeps draining the inbox afterwards, and Finished is
// not closed by it.
func (d *Dispatcher) fatal(err error) {
	log.Printf("agent %s: fatal: %v", d.id, err)
}
