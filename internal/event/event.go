// Package event defines the immutable, content-addressed unit of
// replication: an Event carries a causal parent set, a spacetime
// coordinate, and a payload operation, and derives a BLAKE3 content hash
// from all three plus its random identifier.
package event

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"spacetimekv/internal/spacetime"
)

func floatBits(f float64) uint64     { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

// HashSize is the width of an EventHash in bytes (a BLAKE3 digest).
const HashSize = 32

// Hash is a content address: a 256-bit BLAKE3 digest over an event's
// canonical encoding. Equality and ordering are byte-wise.
type Hash [HashSize]byte

// Less reports whether h sorts before other in the fixed ascending
// byte-wise order the DAG and wire format require for parent sets.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// SortHashes sorts hashes ascending byte-wise, the canonical order parent
// sets must be iterated in so hashing is deterministic.
func SortHashes(hashes []Hash) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
}

// Event is an immutable, content-addressed database mutation. Once
// constructed, no field may change; Hash is derived once at construction
// and never recomputed except by a receiver verifying wire bytes.
type Event struct {
	ID      uuid.UUID
	Parents []Hash // always kept in ascending byte-wise order, deduplicated
	Coords  spacetime.Coord
	Payload Operation
	Hash    Hash
}

// New constructs an Event from its causal parents, spacetime coordinate,
// and payload, generating a fresh random identifier and deriving the
// content hash. Construction is total: there are no error conditions.
func New(parents []Hash, coords spacetime.Coord, payload Operation) Event {
	sorted := dedupSorted(parents)
	id := uuid.New()
	e := Event{
		ID:      id,
		Parents: sorted,
		Coords:  coords,
		Payload: payload,
	}
	e.Hash = computeHash(e)
	return e
}

func dedupSorted(parents []Hash) []Hash {
	out := make([]Hash, len(parents))
	copy(out, parents)
	SortHashes(out)
	// parents is typically already a deduplicated set (DAG heads); guard
	// against accidental duplicates so hashing stays deterministic.
	deduped := out[:0]
	for i, h := range out {
		if i == 0 || h != out[i-1] {
			deduped = append(deduped, h)
		}
	}
	return deduped
}

// computeHash derives the BLAKE3 content hash over id, parents, coords,
// and payload, in the exact field order EncodeBody writes them.
func computeHash(e Event) Hash {
	var buf bytes.Buffer
	// EncodeBody never errors against a bytes.Buffer.
	_ = EncodeBody(&buf, e)
	sum := blake3.Sum256(buf.Bytes())
	return Hash(sum)
}

// EncodeBody writes the canonical encoding of an event's hashed/wire
// content: id, parents (length-prefixed, ascending order), coordinate
// time, spatial coordinates, and payload. This is shared verbatim between
// the content hash feed (§4.2) and the wire format (§6): the hash is taken
// over exactly these bytes.
func EncodeBody(w io.Writer, e Event) error {
	if _, err := w.Write(e.ID[:]); err != nil {
		return err
	}

	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(len(e.Parents)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, p := range e.Parents {
		if _, err := w.Write(p[:]); err != nil {
			return err
		}
	}

	var coordBuf [32]byte
	binary.LittleEndian.PutUint64(coordBuf[0:8], e.Coords.T)
	binary.LittleEndian.PutUint64(coordBuf[8:16], floatBits(e.Coords.X))
	binary.LittleEndian.PutUint64(coordBuf[16:24], floatBits(e.Coords.Y))
	binary.LittleEndian.PutUint64(coordBuf[24:32], floatBits(e.Coords.Z))
	if _, err := w.Write(coordBuf[:]); err != nil {
		return err
	}

	return encodeOperation(w, e.Payload)
}

// DecodeBody reads an event back from its canonical encoding and
// recomputes its content hash, matching spec.md §6's "the hash field is
// not transmitted; the receiver recomputes it."
func DecodeBody(r io.Reader) (Event, error) {
	var e Event
	if _, err := io.ReadFull(r, e.ID[:]); err != nil {
		return Event{}, fmt.Errorf("event: read id: %w", err)
	}

	var countBuf [8]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return Event{}, fmt.Errorf("event: read parent count: %w", err)
	}
	n := binary.LittleEndian.Uint64(countBuf[:])
	e.Parents = make([]Hash, n)
	for i := range e.Parents {
		if _, err := io.ReadFull(r, e.Parents[i][:]); err != nil {
			return Event{}, fmt.Errorf("event: read parent %d: %w", i, err)
		}
	}

	var coordBuf [32]byte
	if _, err := io.ReadFull(r, coordBuf[:]); err != nil {
		return Event{}, fmt.Errorf("event: read coords: %w", err)
	}
	e.Coords = spacetime.Coord{
		T: binary.LittleEndian.Uint64(coordBuf[0:8]),
		X: floatFromBits(binary.LittleEndian.Uint64(coordBuf[8:16])),
		Y: floatFromBits(binary.LittleEndian.Uint64(coordBuf[16:24])),
		Z: floatFromBits(binary.LittleEndian.Uint64(coordBuf[24:32])),
	}

	op, err := decodeOperation(r)
	if err != nil {
		return Event{}, fmt.Errorf("event: read payload: %w", err)
	}
	e.Payload = op
	e.Hash = computeHash(e)
	return e, nil
}
