package crdt

import (
	"hash/crc32"
	"sort"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// ORSet is an Observed-Remove Set CRDT: both adds and removes carry their
// own timestamp, and whichever side happened later for a given member wins,
// so a member can be re-added after removal (unlike a plain two-phase set).
type ORSet struct {
	observed         map[string]wrapper.Packable
	observedMetadata map[string]int
	removed          map[string]wrapper.Packable
	removedMetadata  map[string]int
	clock            *clock.ScalarClock

	cacheValid bool
	cacheAt    int
	cache      []wrapper.Packable
}

// NewORSet creates an empty ORSet sharing c (or a fresh clock if c is nil).
func NewORSet(c *clock.ScalarClock) *ORSet {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &ORSet{
		observed:         make(map[string]wrapper.Packable),
		observedMetadata: make(map[string]int),
		removed:          make(map[string]wrapper.Packable),
		removedMetadata:  make(map[string]int),
		clock:            c,
	}
}

// Clock returns the set's shared clock.
func (s *ORSet) Clock() *clock.ScalarClock { return s.clock }

// Read returns the eventually-consistent membership (observed minus
// removed), memoized against the clock's counter so repeated reads between
// updates are cheap.
func (s *ORSet) Read() []wrapper.Packable {
	if s.cacheValid && s.cacheAt == s.clock.Read() {
		return s.cache
	}
	diff := make([]wrapper.Packable, 0, len(s.observed))
	for key, m := range s.observed {
		if _, removed := s.removed[key]; !removed {
			diff = append(diff, m)
		}
	}
	s.cache = diff
	s.cacheAt = s.clock.Read()
	s.cacheValid = true
	return diff
}

func (s *ORSet) invalidateCache() { s.cacheValid = false }

// Update applies a remote StateUpdate whose Data is a ('o'|'r', member)
// tuple.
func (s *ORSet) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(s.clock.UUID()) {
		return newErr(KindUsage, "ORSet.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	pair, ok := su.Data.(wrapper.Tuple)
	if !ok || len(pair) != 2 {
		return newErr(KindTypeInvalid, "ORSet.Update", "state_update.data must be an (op, member) tuple")
	}
	op, ok := pair[0].(string)
	if !ok || (op != "o" && op != "r") {
		return newErr(KindValueInvalid, "ORSet.Update", "op must be \"o\" or \"r\"")
	}
	member, ok := pair[1].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "ORSet.Update", "member must be Packable")
	}
	key := memberKey(member)
	ts := su.TS

	if op == "o" {
		removedTS, wasRemoved := s.removedMetadata[key]
		if !wasRemoved || !s.clock.IsLater(removedTS, ts) {
			s.observed[key] = member
			if oldTS, present := s.observedMetadata[key]; !present || s.clock.IsLater(ts, oldTS) {
				s.observedMetadata[key] = ts
			}
			if wasRemoved {
				delete(s.removed, key)
				delete(s.removedMetadata, key)
			}
		}
	} else {
		observedTS, wasObserved := s.observedMetadata[key]
		if !wasObserved || !s.clock.IsLater(observedTS, ts) {
			s.removed[key] = member
			if oldTS, present := s.removedMetadata[key]; !present || s.clock.IsLater(ts, oldTS) {
				s.removedMetadata[key] = ts
			}
			if wasObserved {
				delete(s.observed, key)
				delete(s.observedMetadata, key)
			}
		}
	}

	s.clock.Update(ts)
	s.invalidateCache()
	return nil
}

// Checksums returns (observed count, removed count, crc32 of observed mod
// 2^32, crc32 of removed mod 2^32) within [fromTS, untilTS].
func (s *ORSet) Checksums(fromTS, untilTS *int) (int, int, uint32, uint32) {
	inWindow := func(ts int) bool {
		if fromTS != nil && ts < *fromTS {
			return false
		}
		if untilTS != nil && ts > *untilTS {
			return false
		}
		return true
	}
	observedCount, removedCount := 0, 0
	var observedSum, removedSum uint32
	for key, m := range s.observed {
		if inWindow(s.observedMetadata[key]) {
			observedCount++
			observedSum += crc32.ChecksumIEEE(m.Pack())
		}
	}
	for key, m := range s.removed {
		if inWindow(s.removedMetadata[key]) {
			removedCount++
			removedSum += crc32.ChecksumIEEE(m.Pack())
		}
	}
	return observedCount, removedCount, observedSum, removedSum
}

// History returns one StateUpdate per observed member and one per removed
// member within [fromTS, untilTS], sorted by timestamp for determinism.
func (s *ORSet) History(fromTS, untilTS *int) []update.StateUpdate {
	inWindow := func(ts int) bool {
		if fromTS != nil && ts < *fromTS {
			return false
		}
		if untilTS != nil && ts > *untilTS {
			return false
		}
		return true
	}
	var out []update.StateUpdate
	for key, m := range s.observed {
		ts := s.observedMetadata[key]
		if inWindow(ts) {
			out = append(out, update.New(s.clock.UUID(), ts, wrapper.Tuple{"o", m}))
		}
	}
	for key, m := range s.removed {
		ts := s.removedMetadata[key]
		if inWindow(ts) {
			out = append(out, update.New(s.clock.UUID(), ts, wrapper.Tuple{"r", m}))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out
}

// Observe creates, applies, and returns a StateUpdate that adds member.
func (s *ORSet) Observe(member wrapper.Packable) (update.StateUpdate, error) {
	su := update.New(s.clock.UUID(), s.clock.Read(), wrapper.Tuple{"o", member})
	if err := s.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// Remove creates, applies, and returns a StateUpdate that removes member.
func (s *ORSet) Remove(member wrapper.Packable) (update.StateUpdate, error) {
	su := update.New(s.clock.UUID(), s.clock.Read(), wrapper.Tuple{"r", member})
	if err := s.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
