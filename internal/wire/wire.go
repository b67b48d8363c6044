// Package wire implements the deterministic binary encoding used on the
// transport: a tagged ProtocolMessage carrying either a gossiped Event or a
// Hello coordinate announcement.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"spacetimekv/internal/event"
)

// Message tags, fixed by spec.md §6.
const (
	tagGossip byte = 0x00
	tagHello  byte = 0x01
)

// ProtocolMessage is the tagged variant exchanged between replicas.
type ProtocolMessage interface {
	isProtocolMessage()
}

// Gossip carries a single event a replica wants its peer to admit.
type Gossip struct {
	Event event.Event
}

func (Gossip) isProtocolMessage() {}

// Hello announces a peer's spatial position. The replica driver logs it on
// release; Gossip distances are computed from each event's own coordinates.
type Hello struct {
	X, Y, Z float64
}

func (Hello) isProtocolMessage() {}

// Encode produces the canonical byte sequence for msg.
func Encode(msg ProtocolMessage) ([]byte, error) {
	var buf bytes.Buffer
	switch m := msg.(type) {
	case Gossip:
		buf.WriteByte(tagGossip)
		if err := event.EncodeBody(&buf, m.Event); err != nil {
			return nil, fmt.Errorf("wire: encode gossip: %w", err)
		}
	case Hello:
		buf.WriteByte(tagHello)
		writeFloat(&buf, m.X)
		writeFloat(&buf, m.Y)
		writeFloat(&buf, m.Z)
	default:
		return nil, fmt.Errorf("wire: unknown message type %T", msg)
	}
	return buf.Bytes(), nil
}

// Decode parses a byte sequence produced by Encode. Malformed input is
// reported, never panics: per spec.md §7, a decode failure is a
// Serialization error the caller logs and drops, not a fatal condition.
func Decode(data []byte) (ProtocolMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wire: %w: empty message", ErrMalformed)
	}
	r := bytes.NewReader(data)
	tag, _ := r.ReadByte()

	switch tag {
	case tagGossip:
		e, err := event.DecodeBody(r)
		if err != nil {
			return nil, fmt.Errorf("wire: %w: %v", ErrMalformed, err)
		}
		return Gossip{Event: e}, nil
	case tagHello:
		x, err := readFloat(r)
		if err != nil {
			return nil, fmt.Errorf("wire: %w: %v", ErrMalformed, err)
		}
		y, err := readFloat(r)
		if err != nil {
			return nil, fmt.Errorf("wire: %w: %v", ErrMalformed, err)
		}
		z, err := readFloat(r)
		if err != nil {
			return nil, fmt.Errorf("wire: %w: %v", ErrMalformed, err)
		}
		return Hello{X: x, Y: y, Z: z}, nil
	default:
		return nil, fmt.Errorf("wire: %w: unknown tag 0x%02x", ErrMalformed, tag)
	}
}

func writeFloat(w io.Writer, f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	_, _ = w.Write(buf[:])
}

func readFloat(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}
