// Package clock provides the logical clocks that order StateUpdates across
// replicas. ScalarClock is the clock used throughout the crdt package; the
// crdt types take a *ScalarClock, so another clock cannot be substituted
// into them. StringClock is a standalone clock with string timestamps and
// does not satisfy Clock.
package clock

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Polqt/crdts/wrapper"
)

// Clock is the contract ScalarClock satisfies: read the current timestamp,
// fold a peer's timestamp into local state, and order two timestamps
// relative to each other.
type Clock interface {
	UUID() []byte
	DefaultTS() int
	Read() int
	Update(data int) int
	IsLater(ts1, ts2 int) bool
	AreConcurrent(ts1, ts2 int) bool
	Compare(ts1, ts2 int) int
	Pack() []byte
	WrapTS(ts int) wrapper.Packable
}

func init() {
	wrapper.RegisterGlobal("ScalarClock", func(data []byte) (wrapper.Packable, error) {
		c, err := UnpackScalarClock(data)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// ScalarClock is a Lamport logical clock: a monotonic counter plus the uuid
// of the replica carrying it, used to disambiguate concurrent updates made
// at the same counter value.
type ScalarClock struct {
	counter   int
	uuidBytes []byte
	defaultTS int
}

// NewScalarClock creates a clock starting at counter 1 with a random uuid.
// Pass an explicit id to share a clock's identity across CRDTs that must
// agree on which replica's updates they are tracking (e.g. an LWWMap and its
// embedded ORSet of names).
func NewScalarClock(id ...[]byte) *ScalarClock {
	u := uuid.New()
	idBytes := u[:]
	if len(id) > 0 && id[0] != nil {
		idBytes = id[0]
	}
	return &ScalarClock{counter: 1, uuidBytes: idBytes, defaultTS: 0}
}

func (c *ScalarClock) UUID() []byte     { return c.uuidBytes }
func (c *ScalarClock) DefaultTS() int   { return c.defaultTS }
func (c *ScalarClock) Read() int        { return c.counter }

// Update folds data into the clock. If data is at least as large as the
// current counter, the counter advances to data+1; otherwise it is left
// unchanged (data is already causally behind). Called with the current
// counter, as a local write does, it advances by one.
func (c *ScalarClock) Update(data int) int {
	if data >= c.counter {
		c.counter = data + 1
	}
	return c.counter
}

// Advance increments the counter unconditionally, used when preparing a
// local write's timestamp rather than merging a remote one.
func (c *ScalarClock) Advance() int {
	c.counter++
	return c.counter
}

// IsLater reports whether ts1 happened after ts2.
func (c *ScalarClock) IsLater(ts1, ts2 int) bool { return ts1 > ts2 }

// AreConcurrent reports whether neither timestamp happened after the other.
// For a scalar counter this is only true when the two are equal.
func (c *ScalarClock) AreConcurrent(ts1, ts2 int) bool {
	return !(ts1 > ts2) && !(ts2 > ts1)
}

// Compare returns 1 if ts1 is later than ts2, -1 if ts2 is later than ts1,
// and 0 if they are concurrent.
func (c *ScalarClock) Compare(ts1, ts2 int) int {
	if c.IsLater(ts1, ts2) {
		return 1
	}
	if c.IsLater(ts2, ts1) {
		return -1
	}
	return 0
}

// Pack serializes the clock as counter || uuid.
func (c *ScalarClock) Pack() []byte {
	out := make([]byte, 0, 4+len(c.uuidBytes))
	out = binary.BigEndian.AppendUint32(out, uint32(c.counter))
	out = append(out, c.uuidBytes...)
	return out
}

// UnpackScalarClock deserializes a clock packed with Pack.
func UnpackScalarClock(data []byte) (*ScalarClock, error) {
	if len(data) < 5 {
		return nil, errors.New("clock: ScalarClock payload must be at least 5 bytes")
	}
	counter := int(binary.BigEndian.Uint32(data[0:4]))
	id := append([]byte{}, data[4:]...)
	return &ScalarClock{counter: counter, uuidBytes: id, defaultTS: 0}, nil
}

// WrapTS boxes a raw timestamp as a Packable so it can travel through
// StateUpdate.Pack alongside the value it is attached to.
func (c *ScalarClock) WrapTS(ts int) wrapper.Packable {
	return wrapper.IntWrapper{Value: int64(ts)}
}
