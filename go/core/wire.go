package core

import (
	"encoding/binary"
	"fmt"

	"github.com/bford/cofo/cbe"
)

// Encode appends the cbe-framed wire form of m to b and returns the
// extended slice: a length-prefixed byte string per field, kind first,
// then sender and receiver names, then the payload fields specific to
// m.Kind.
func Encode(b []byte, m Message) []byte {
	b = cbe.Encode(b, []byte{byte(m.Kind)})
	b = cbe.Encode(b, []byte(m.Sender))
	b = cbe.Encode(b, []byte(m.Receiver))

	switch m.Kind {
	case ValueMsg:
		b = cbe.Encode(b, encodeInt(int64(m.Value)))
		b = cbe.Encode(b, encodeInt(int64(m.Stamp)))
		has := byte(0)
		if m.HasThresh {
			has = 1
		}
		b = cbe.Encode(b, []byte{has})
		b = cbe.Encode(b, encodeInt(int64(m.Threshold)))
	case CostMsg:
		b = cbe.Encode(b, encodeInt(int64(m.LB)))
		b = cbe.Encode(b, encodeInt(int64(m.UB)))
		b = encodeContext(b, m.Context)
	case TerminateMsg:
		b = encodeContext(b, m.Context)
	}
	return b
}

// Decode parses one Message from the front of b, returning the
// remaining unconsumed bytes.
func Decode(b []byte) (Message, []byte, error) {
	var m Message

	kindB, b, err := cbe.Decode(b)
	if err != nil || len(kindB) != 1 {
		return m, b, fmt.Errorf("core: decode kind: %w", err)
	}
	m.Kind = Kind(kindB[0])

	senderB, b, err := cbe.Decode(b)
	if err != nil {
		return m, b, fmt.Errorf("core: decode sender: %w", err)
	}
	m.Sender = string(senderB)

	recvB, b, err := cbe.Decode(b)
	if err != nil {
		return m, b, fmt.Errorf("core: decode receiver: %w", err)
	}
	m.Receiver = string(recvB)

	switch m.Kind {
	case ValueMsg:
		var vb, sb, hb, tb []byte
		if vb, b, err = cbe.Decode(b); err != nil {
			return m, b, err
		}
		if sb, b, err = cbe.Decode(b); err != nil {
			return m, b, err
		}
		if hb, b, err = cbe.Decode(b); err != nil {
			return m, b, err
		}
		if tb, b, err = cbe.Decode(b); err != nil {
			return m, b, err
		}
		m.Value = Value(decodeInt(vb))
		m.Stamp = Stamp(decodeInt(sb))
		m.HasThresh = len(hb) == 1 && hb[0] == 1
		m.Threshold = Utility(decodeInt(tb))
	case CostMsg:
		var lbB, ubB []byte
		if lbB, b, err = cbe.Decode(b); err != nil {
			return m, b, err
		}
		if ubB, b, err = cbe.Decode(b); err != nil {
			return m, b, err
		}
		m.LB = Utility(decodeInt(lbB))
		m.UB = Utility(decodeInt(ubB))
		if m.Context, b, err = decodeContext(b); err != nil {
			return m, b, err
		}
	case TerminateMsg:
		if m.Context, b, err = decodeContext(b); err != nil {
			return m, b, err
		}
	default:
		return m, b, fmt.Errorf("core: unknown message kind %d", m.Kind)
	}
	return m, b, nil
}

func encodeContext(b []byte, ctx Context) []byte {
	b = cbe.Encode(b, encodeInt(int64(len(ctx))))
	for name, vs := range ctx {
		b = cbe.Encode(b, []byte(name))
		b = cbe.Encode(b, encodeInt(int64(vs.Value)))
		b = cbe.Encode(b, encodeInt(int64(vs.Stamp)))
	}
	return b
}

func decodeContext(b []byte) (Context, []byte, error) {
	nB, b, err := cbe.Decode(b)
	if err != nil {
		return nil, b, err
	}
	n := decodeInt(nB)
	ctx := make(Context, n)
	for i := int64(0); i < n; i++ {
		nameB, b2, err := cbe.Decode(b)
		if err != nil {
			return nil, b, err
		}
		valB, b3, err := cbe.Decode(b2)
		if err != nil {
			return nil, b, err
		}
		stampB, b4, err := cbe.Decode(b3)
		if err != nil {
			return nil, b, err
		}
		ctx[string(nameB)] = ValuedStamp{
			Value: Value(decodeInt(valB)),
			Stamp: Stamp(decodeInt(stampB)),
		}
		b = b4
	}
	return ctx, b, nil
}

func encodeInt(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func decodeInt(b []byte) int64 {
	var buf [8]byte
	copy(buf[:], b)
	return int64(binary.BigEndian.Uint64(buf[:]))
}
