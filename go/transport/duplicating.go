package transport

import "github.com/bnbadopt/dcop/go/core"

// Duplicating wraps a Peer and sends every message to it twice,
// back-to-back. It exists to drive duplicate-message robustness: the
// engine's idempotence rule on incoming messages must make the second
// delivery of any message a no-op.
type Duplicating struct {
	Peer
}

// Send transmits msg twice in a row through the wrapped Peer.
func (d Duplicating) Send(msg core.Message) error {
	if err := d.Peer.Send(msg); err != nil {
		return err
	}
	return d.Peer.Send(msg)
}
