package crdt

import (
	"bytes"
	"hash/crc32"
	"sort"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// MVRegister is a Multi-Value Register CRDT: rather than picking a single
// winner among concurrent writes like LWWRegister, it preserves all of them
// until a later write supersedes the whole set.
type MVRegister struct {
	name       wrapper.Packable
	values     []wrapper.Packable
	clock      *clock.ScalarClock
	lastUpdate int
}

// NewMVRegister creates a register holding no values, sharing c (or a fresh
// clock if c is nil).
func NewMVRegister(name wrapper.Packable, c *clock.ScalarClock) *MVRegister {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &MVRegister{name: name, clock: c, lastUpdate: c.DefaultTS()}
}

// Clock returns the register's shared clock.
func (r *MVRegister) Clock() *clock.ScalarClock { return r.clock }

// Name returns the register's key.
func (r *MVRegister) Name() wrapper.Packable { return r.name }

// Read returns every concurrently-written value still live.
func (r *MVRegister) Read() []wrapper.Packable {
	out := make([]wrapper.Packable, len(r.values))
	copy(out, r.values)
	return out
}

func containsValue(values []wrapper.Packable, v wrapper.Packable) bool {
	for _, existing := range values {
		if bytes.Equal(existing.Pack(), v.Pack()) && className(existing) == className(v) {
			return true
		}
	}
	return false
}

// Update applies a remote StateUpdate whose Data is the value being
// written. As with LWWRegister, the concurrency check runs against
// lastUpdate after the is-later branch may have already advanced it,
// mirroring upstream's sequential coupling.
func (r *MVRegister) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(r.clock.UUID()) {
		return newErr(KindUsage, "MVRegister.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	value, ok := su.Data.(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "MVRegister.Update", "state_update.data must be Packable")
	}

	if r.clock.IsLater(su.TS, r.lastUpdate) {
		r.lastUpdate = su.TS
		r.values = []wrapper.Packable{value}
	}

	if r.clock.AreConcurrent(su.TS, r.lastUpdate) {
		if !containsValue(r.values, value) {
			r.values = append(r.values, value)
			sort.Slice(r.values, func(i, j int) bool {
				return bytes.Compare(r.values[i].Pack(), r.values[j].Pack()) < 0
			})
		}
	}

	r.clock.Update(su.TS)
	return nil
}

// Checksums returns (lastUpdate, sum of crc32 of every value mod 2^32).
func (r *MVRegister) Checksums() (int, uint32) {
	var sum uint32
	for _, v := range r.values {
		sum += crc32.ChecksumIEEE(v.Pack())
	}
	return r.lastUpdate, sum
}

// History returns one StateUpdate per concurrently-held value.
func (r *MVRegister) History() []update.StateUpdate {
	out := make([]update.StateUpdate, 0, len(r.values))
	for _, v := range r.values {
		out = append(out, update.New(r.clock.UUID(), r.lastUpdate, v))
	}
	return out
}

// Write creates, applies, and returns a StateUpdate that writes value,
// replacing any concurrent values held previously.
func (r *MVRegister) Write(value wrapper.Packable) (update.StateUpdate, error) {
	su := update.New(r.clock.UUID(), r.clock.Read(), value)
	if err := r.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
