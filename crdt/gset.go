package crdt

import (
	"hash/crc32"
	"sort"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// memberKey returns a stable map key for a wrapped member value, combining
// its registered class name with its packed bytes so that e.g. a
// StrWrapper("1") and an IntWrapper(1) never collide.
func memberKey(m wrapper.Packable) string {
	return className(m) + ":" + string(m.Pack())
}

// className returns wrapper.TypeName(v), the class name crdt uses for its
// own keying and ordering.
func className(v any) string {
	return wrapper.TypeName(v)
}

// GSet is a Grow-only Set CRDT: members are only ever added, never removed,
// so any merge order converges to the union of everything ever observed.
type GSet struct {
	members       map[string]wrapper.Packable
	updateHistory map[string]update.StateUpdate
	clock         *clock.ScalarClock
}

// NewGSet creates an empty GSet sharing c (or a fresh clock if c is nil).
func NewGSet(c *clock.ScalarClock) *GSet {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &GSet{
		members:       make(map[string]wrapper.Packable),
		updateHistory: make(map[string]update.StateUpdate),
		clock:         c,
	}
}

// Clock returns the set's shared clock.
func (s *GSet) Clock() *clock.ScalarClock { return s.clock }

// Read returns the eventually-consistent membership.
func (s *GSet) Read() []wrapper.Packable {
	out := make([]wrapper.Packable, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// Update applies a remote StateUpdate whose Data is the member being
// observed. Re-observing an already-present member still refreshes its
// stored history entry, so the most recent envelope for a member is always
// what gets replayed.
func (s *GSet) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(s.clock.UUID()) {
		return newErr(KindUsage, "GSet.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	member, ok := su.Data.(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "GSet.Update", "state_update.data must be a Packable member")
	}
	key := memberKey(member)
	if _, present := s.members[key]; !present {
		s.members[key] = member
	}
	s.updateHistory[key] = su
	s.clock.Update(su.TS)
	return nil
}

// Checksums returns (untilTS or clock.Read(), count of members observed in
// [fromTS, untilTS], crc32 sum of those members mod 2^32). Pass nil for
// either bound to leave it open.
func (s *GSet) Checksums(fromTS, untilTS *int) (int, int, uint32) {
	until := s.clock.Read()
	if untilTS != nil {
		until = *untilTS
	}
	count := 0
	var sum uint32
	for key, member := range s.members {
		su := s.updateHistory[key]
		if fromTS != nil && su.TS < *fromTS {
			continue
		}
		if untilTS != nil && su.TS > *untilTS {
			continue
		}
		count++
		sum += crc32.ChecksumIEEE(member.Pack())
	}
	return until, count, sum
}

// History returns the StateUpdates in [fromTS, untilTS] needed to replay
// this set's membership, sorted by timestamp for determinism.
func (s *GSet) History(fromTS, untilTS *int) []update.StateUpdate {
	var out []update.StateUpdate
	for _, su := range s.updateHistory {
		if fromTS != nil && su.TS < *fromTS {
			continue
		}
		if untilTS != nil && su.TS > *untilTS {
			continue
		}
		out = append(out, su)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out
}

// Add creates, applies, and returns a StateUpdate that adds member to the
// set.
func (s *GSet) Add(member wrapper.Packable) (update.StateUpdate, error) {
	su := update.New(s.clock.UUID(), s.clock.Read(), member)
	if err := s.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
