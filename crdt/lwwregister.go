package crdt

import (
	"bytes"
	"hash/crc32"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// LWWRegister is a Last-Write-Wins Register CRDT: a single value, a
// timestamp it was written at, and the writer id that wrote it, used to
// break ties when two writes are concurrent.
type LWWRegister struct {
	name       wrapper.Packable
	value      wrapper.Packable
	clock      *clock.ScalarClock
	lastUpdate int
	lastWriter int
}

// NewLWWRegister creates a register holding NoneWrapper{}, sharing c (or a
// fresh clock if c is nil).
func NewLWWRegister(name wrapper.Packable, c *clock.ScalarClock) *LWWRegister {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &LWWRegister{
		name:       name,
		value:      wrapper.NoneWrapper{},
		clock:      c,
		lastUpdate: c.DefaultTS(),
		lastWriter: 0,
	}
}

// Clock returns the register's shared clock.
func (r *LWWRegister) Clock() *clock.ScalarClock { return r.clock }

// Name returns the register's key.
func (r *LWWRegister) Name() wrapper.Packable { return r.name }

// Read returns the current value.
func (r *LWWRegister) Read() wrapper.Packable { return r.value }

// compareValues reports whether v1 should be preferred over v2 when breaking
// a tie between writers of equal id, by comparing their packed bytes.
func compareValues(v1, v2 wrapper.Packable) bool {
	return bytes.Compare(v1.Pack(), v2.Pack()) > 0
}

// Update applies a remote StateUpdate whose Data is a (writer, value) pair.
// A later write always wins; a concurrent write is broken first by higher
// writer id, then by comparing the packed bytes of the competing values.
// The concurrency check intentionally runs against lastUpdate *after* the
// is-later branch may have already advanced it — mirroring upstream's
// sequential coupling between the two checks rather than snapshotting
// lastUpdate up front.
func (r *LWWRegister) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(r.clock.UUID()) {
		return newErr(KindUsage, "LWWRegister.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	pair, ok := su.Data.(wrapper.Tuple)
	if !ok || len(pair) != 2 {
		return newErr(KindTypeInvalid, "LWWRegister.Update", "state_update.data must be a (writer, value) tuple")
	}
	writer, ok := pair[0].(int)
	if !ok {
		return newErr(KindTypeInvalid, "LWWRegister.Update", "writer must be int")
	}
	value, ok := pair[1].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "LWWRegister.Update", "value must be Packable")
	}

	if r.clock.IsLater(su.TS, r.lastUpdate) {
		r.lastUpdate = su.TS
		r.lastWriter = writer
		r.value = value
	}

	if r.clock.AreConcurrent(su.TS, r.lastUpdate) {
		if writer > r.lastWriter || (writer == r.lastWriter && compareValues(value, r.value)) {
			r.lastWriter = writer
			r.value = value
		}
	}

	r.clock.Update(su.TS)
	return nil
}

// Checksums returns (lastUpdate, lastWriter, crc32 of the packed value).
func (r *LWWRegister) Checksums() (int, int, uint32) {
	return r.lastUpdate, r.lastWriter, crc32.ChecksumIEEE(r.value.Pack())
}

// History returns the single StateUpdate that reconstructs the current
// (writer, value) state.
func (r *LWWRegister) History() []update.StateUpdate {
	return []update.StateUpdate{
		update.New(r.clock.UUID(), r.lastUpdate, wrapper.Tuple{r.lastWriter, r.value}),
	}
}

// Write creates, applies, and returns a StateUpdate that writes value as writer.
func (r *LWWRegister) Write(value wrapper.Packable, writer int) (update.StateUpdate, error) {
	su := update.New(r.clock.UUID(), r.clock.Read(), wrapper.Tuple{writer, value})
	if err := r.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
