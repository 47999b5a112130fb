package transport

import (
	"sync"

	"github.com/bnbadopt/dcop/go/core"
)

// InProcNetwork is an in-process message bus used by tests and
// cmd/dcopsim: each agent registers an inbox, and callers obtain a
// Peer per destination agent that encodes outgoing messages through
// the cbe wire codec (core.Encode) before handing the framed bytes to
// the destination's inbox channel, so the same wire format a real
// socket transport uses is exercised even though no sockets are
// involved.
type InProcNetwork struct {
	mu     sync.Mutex
	inbox  map[string]chan []byte
	bufLen int
}

// NewInProcNetwork returns an empty network. bufLen sizes each
// registered agent's inbox channel.
func NewInProcNetwork(bufLen int) *InProcNetwork {
	if bufLen <= 0 {
		bufLen = 256
	}
	return &InProcNetwork{inbox: make(map[string]chan []byte), bufLen: bufLen}
}

// Register creates and returns the inbox channel for agentID. Calling
// Register twice for the same id replaces its inbox.
func (n *InProcNetwork) Register(agentID string) <-chan []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan []byte, n.bufLen)
	n.inbox[agentID] = ch
	return ch
}

// Close closes every registered agent's inbox, signalling their
// receive loops to exit.
func (n *InProcNetwork) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.inbox {
		close(ch)
	}
}

// Peer returns the Peer that sends encoded messages into dstAgentID's
// inbox. Send blocks if the destination's inbox is full, exactly like
// a bounded channel link would.
func (n *InProcNetwork) Peer(dstAgentID string) Peer {
	return PeerFunc(func(msg core.Message) error {
		n.mu.Lock()
		ch, ok := n.inbox[dstAgentID]
		n.mu.Unlock()
		if !ok {
			return errUnknownAgent(dstAgentID)
		}
		ch <- core.Encode(nil, msg)
		return nil
	})
}

type errUnknownAgent string

func (e errUnknownAgent) Error() string { return "transport: unknown agent " + string(e) }
