// Package transport implements point-to-point, per-sender-to-receiver-
// FIFO links: two Peer implementations (an in-process one for tests
// and the CLI, and a net.Conn-backed one for separate-process
// deployment), plus a message-duplicating decorator used to exercise
// duplicate delivery.
package transport

import "github.com/bnbadopt/dcop/go/core"

// Peer is the transport-level send side of a single directed link
// from one agent to another. Send must preserve FIFO order relative
// to other calls to Send on the same Peer value; no ordering is
// assumed across distinct Peer values.
type Peer interface {
	Send(msg core.Message) error
}

// PeerFunc adapts a plain function to the Peer interface.
type PeerFunc func(msg core.Message) error

func (f PeerFunc) Send(msg core.Message) error { return f(msg) }
