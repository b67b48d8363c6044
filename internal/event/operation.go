package event

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Operation tags the mutation an Event carries. Put/Delete/Merge/Genesis
// mirror the four variants spec.md names; Merge is an application-defined
// placeholder the store never interprets itself.
type Operation interface {
	// Tag is the wire/hash tag byte for this operation, fixed by the wire
	// format in §6 of the specification (Put=0, Delete=1, Merge=2,
	// Genesis=3).
	Tag() byte
	isOperation()
}

// Put inserts or overwrites Key with Value.
type Put struct {
	Key   string
	Value []byte
}

func (Put) Tag() byte { return 0 }
func (Put) isOperation() {}

// Delete removes Key.
type Delete struct {
	Key string
}

func (Delete) Tag() byte { return 1 }
func (Delete) isOperation() {}

// Merge is an application-defined conflict-resolution placeholder; the
// store never assigns it semantics beyond carrying it through the DAG.
type Merge struct{}

func (Merge) Tag() byte { return 2 }
func (Merge) isOperation() {}

// Genesis anchors the DAG; exactly one resident event carries it.
type Genesis struct{}

func (Genesis) Tag() byte { return 3 }
func (Genesis) isOperation() {}

// encodeOperation writes op's canonical, length-prefixed encoding, used
// identically for the content hash feed (§4.2) and the wire format (§6).
func encodeOperation(w io.Writer, op Operation) error {
	if _, err := w.Write([]byte{op.Tag()}); err != nil {
		return err
	}
	switch v := op.(type) {
	case Put:
		if err := writeBytes(w, []byte(v.Key)); err != nil {
			return err
		}
		return writeBytes(w, v.Value)
	case Delete:
		return writeBytes(w, []byte(v.Key))
	case Merge, Genesis:
		return nil
	default:
		return fmt.Errorf("event: unknown operation type %T", op)
	}
}

func writeBytes(w io.Writer, b []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// decodeOperation reads a canonically-encoded Operation.
func decodeOperation(r io.Reader) (Operation, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return nil, err
	}
	switch tagBuf[0] {
	case 0:
		key, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		val, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return Put{Key: string(key), Value: val}, nil
	case 1:
		key, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return Delete{Key: string(key)}, nil
	case 2:
		return Merge{}, nil
	case 3:
		return Genesis{}, nil
	default:
		return nil, fmt.Errorf("event: unknown operation tag %d", tagBuf[0])
	}
}
