package clock

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Polqt/crdts/wrapper"
)

func init() {
	wrapper.RegisterGlobal("StringClock", func(data []byte) (wrapper.Packable, error) {
		return UnpackStringClock(data)
	})
}

// StringClock is a worked example of an alternative clock: timestamps are
// strings ordered by length rather than an integer counter. Its methods take
// and return strings, so it does not satisfy Clock, and the crdt types,
// which take a *ScalarClock, cannot be built on it; the tests exercise it on
// its own.
type StringClock struct {
	current   string
	uuidBytes []byte
}

// NewStringClock creates a clock whose current timestamp is the empty
// string.
func NewStringClock(id ...[]byte) *StringClock {
	u := uuid.New()
	idBytes := u[:]
	if len(id) > 0 && id[0] != nil {
		idBytes = id[0]
	}
	return &StringClock{current: "", uuidBytes: idBytes}
}

func (c *StringClock) UUID() []byte   { return c.uuidBytes }
func (c *StringClock) DefaultTSStr() string { return "" }

// Read returns the current timestamp string.
func (c *StringClock) Read() string { return c.current }

// Update grows the clock's timestamp to data if data is at least as long,
// appending one character to guarantee forward progress, mirroring
// ScalarClock's "advance past whatever was observed" behavior but in string
// space instead of integer space.
func (c *StringClock) Update(data string) string {
	if len(data) >= len(c.current) {
		c.current = data + "."
	}
	return c.current
}

// IsLater reports whether ts1 is strictly longer than ts2.
func (c *StringClock) IsLater(ts1, ts2 string) bool { return len(ts1) > len(ts2) }

// AreConcurrent reports whether ts1 and ts2 have the same length.
func (c *StringClock) AreConcurrent(ts1, ts2 string) bool {
	return !c.IsLater(ts1, ts2) && !c.IsLater(ts2, ts1)
}

// Compare returns 1 if ts1 is later, -1 if ts2 is later, 0 if concurrent.
func (c *StringClock) Compare(ts1, ts2 string) int {
	if c.IsLater(ts1, ts2) {
		return 1
	}
	if c.IsLater(ts2, ts1) {
		return -1
	}
	return 0
}

// Pack serializes the clock as current || uuid, length-prefixing current so
// Unpack can tell where it ends.
func (c *StringClock) Pack() []byte {
	out := make([]byte, 0, 1+len(c.current)+len(c.uuidBytes))
	out = append(out, byte(len(c.current)))
	out = append(out, []byte(c.current)...)
	out = append(out, c.uuidBytes...)
	return out
}

// UnpackStringClock deserializes a clock packed with Pack.
func UnpackStringClock(data []byte) (*StringClock, error) {
	if len(data) < 1 {
		return nil, errors.New("clock: StringClock payload must be at least 1 byte")
	}
	n := int(data[0])
	if len(data) < 1+n {
		return nil, errors.New("clock: StringClock payload truncated")
	}
	current := string(data[1 : 1+n])
	id := append([]byte{}, data[1+n:]...)
	return &StringClock{current: current, uuidBytes: id}, nil
}

// WrapTS boxes a string timestamp for transport inside a StateUpdate.
func (c *StringClock) WrapTS(ts string) wrapper.Packable {
	return wrapper.StrWrapper{Value: ts}
}
