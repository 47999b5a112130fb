package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/lib/backoff"
)

// TCP is a net.Conn-backed Peer for running agents as separate OS
// processes, framed with a 4-byte big-endian length prefix around each
// core.Encode payload (a real byte stream needs an outer frame that
// the in-process channel transport does not).
type TCP struct {
	conn net.Conn
	wr   *bufio.Writer
}

// DialTCP connects to addr, retrying with exponential backoff until
// ctx is done. The backoff loop retries the connection attempt only;
// once connected, a failure is reported to the caller as a Send
// error — there is no reconnect-and-resume once a TCP peer has been
// handed out.
func DialTCP(ctx context.Context, addr string) (*TCP, error) {
	var conn net.Conn
	err := backoff.Config{MaxWait: 5 * time.Second}.Retry(ctx, func() error {
		c, dialErr := net.Dial("tcp", addr)
		if dialErr != nil {
			return dialErr
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &TCP{conn: conn, wr: bufio.NewWriter(conn)}, nil
}

// Send writes one length-prefixed, cbe-encoded message and flushes.
func (t *TCP) Send(msg core.Message) error {
	b := core.Encode(nil, msg)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := t.wr.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := t.wr.Write(b); err != nil {
		return err
	}
	return t.wr.Flush()
}

// Close closes the underlying connection.
func (t *TCP) Close() error { return t.conn.Close() }

// ListenTCP binds addr and returns its resolved network address
// immediately; pass "127.0.0.1:0" to let the OS pick a free port and
// read back the actual one, e.g. for tests. The accept loop itself
// runs on a separate goroutine and invokes deliver for every framed
// message received on every accepted connection, until ctx is done.
// Each accepted connection is read on its own goroutine, so
// per-connection (per-sender) FIFO order is preserved. serveErrs, if
// non-nil, receives the terminal error from the accept loop (nil on a
// clean shutdown via ctx).
func ListenTCP(ctx context.Context, addr string, deliver func(core.Message), serveErrs chan<- error) (net.Addr, error) {
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		lst.Close()
	}()

	go func() {
		err := serveTCP(lst, deliver, ctx)
		if serveErrs != nil {
			serveErrs <- err
		}
	}()

	return lst.Addr(), nil
}

func serveTCP(lst net.Listener, deliver func(core.Message), ctx context.Context) error {
	for {
		conn, err := lst.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go readLoop(conn, deliver)
	}
}

func readLoop(conn net.Conn, deliver func(core.Message)) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for {
		var lenBuf [4]byte
		if _, err := rdFull(rd, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := rdFull(rd, buf); err != nil {
			return
		}
		msg, _, err := core.Decode(buf)
		if err != nil {
			continue // malformed frame: drop and keep reading
		}
		deliver(msg)
	}
}

func rdFull(rd *bufio.Reader, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := rd.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}
