package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/transport"
)

func TestTCP_SendAndDeliver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan core.Message, 1)
	addr, err := transport.ListenTCP(ctx, "127.0.0.1:0", func(msg core.Message) {
		received <- msg
	}, nil)
	require.NoError(t, err)

	peer, err := transport.DialTCP(ctx, addr.String())
	require.NoError(t, err)
	defer peer.Close()

	msg := core.Message{Kind: core.ValueMsg, Sender: "a", Receiver: "b", Value: 2, Stamp: 1}
	require.NoError(t, peer.Send(msg))

	select {
	case got := <-received:
		assert.True(t, msg.Equal(got))
	case <-time.After(2 * time.Second):
		t.Fatal("message never delivered over TCP")
	}
}

// TestTCP_DialRetriesUntilListenerStarts drives DialTCP's backoff
// reconnect loop: the address is unreachable when dialing begins, and
// only starts accepting connections partway through, so a successful
// connect proves the retry loop actually ran rather than failing fast.
func TestTCP_DialRetriesUntilListenerStarts(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialed := make(chan *transport.TCP, 1)
	dialErrs := make(chan error, 1)
	go func() {
		peer, err := transport.DialTCP(ctx, addr)
		if err != nil {
			dialErrs <- err
			return
		}
		dialed <- peer
	}()

	time.Sleep(150 * time.Millisecond)
	_, err = transport.ListenTCP(ctx, addr, func(core.Message) {}, nil)
	require.NoError(t, err)

	select {
	case peer := <-dialed:
		peer.Close()
	case err := <-dialErrs:
		t.Fatalf("DialTCP gave up instead of retrying: %v", err)
	case <-time.After(4 * time.Second):
		t.Fatal("DialTCP never reconnected once the listener started")
	}
}
