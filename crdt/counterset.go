package crdt

import (
	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// CounterSet is a composite CRDT: a GSet of counter ids paired with one
// PNCounter per id, letting independently-named counters (e.g. per-user vote
// tallies) converge as a group while still being addressable individually.
type CounterSet struct {
	clock      *clock.ScalarClock
	counterIDs *GSet
	counters   map[string]*PNCounter
	idValues   map[string]wrapper.Packable
}

// NewCounterSet creates an empty CounterSet sharing c (or a fresh clock if c
// is nil).
func NewCounterSet(c *clock.ScalarClock) *CounterSet {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &CounterSet{
		clock:      c,
		counterIDs: NewGSet(c),
		counters:   make(map[string]*PNCounter),
		idValues:   make(map[string]wrapper.Packable),
	}
}

// Clock returns the set's shared clock.
func (s *CounterSet) Clock() *clock.ScalarClock { return s.clock }

// Read returns the sum of every counter's value.
func (s *CounterSet) Read() int {
	total := 0
	for _, c := range s.counters {
		total += c.Read()
	}
	return total
}

// ReadFull returns each live counter id mapped to its value.
func (s *CounterSet) ReadFull() map[string]int {
	out := make(map[string]int)
	for _, id := range s.counterIDs.Read() {
		key := memberKey(id)
		if c, ok := s.counters[key]; ok {
			out[key] = c.Read()
		}
	}
	return out
}

func (s *CounterSet) counterFor(key string) *PNCounter {
	c, ok := s.counters[key]
	if !ok {
		c = NewPNCounter(s.clock)
		s.counters[key] = c
	}
	return c
}

// Update applies a remote StateUpdate whose Data is a (counterID, positive,
// negative) triple.
func (s *CounterSet) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(s.clock.UUID()) {
		return newErr(KindUsage, "CounterSet.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	triple, ok := su.Data.(wrapper.Tuple)
	if !ok || len(triple) != 3 {
		return newErr(KindTypeInvalid, "CounterSet.Update", "state_update.data must be a 3-tuple")
	}
	id, ok := triple[0].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "CounterSet.Update", "counter_id must be Packable")
	}
	positive, ok1 := triple[1].(int)
	negative, ok2 := triple[2].(int)
	if !ok1 || !ok2 {
		return newErr(KindTypeInvalid, "CounterSet.Update", "positive/negative must be int")
	}

	idSU := update.New(s.clock.UUID(), su.TS, id)
	if err := s.counterIDs.Update(idSU); err != nil {
		return err
	}

	key := memberKey(id)
	s.idValues[key] = id
	counter := s.counterFor(key)
	return counter.Update(update.New(s.clock.UUID(), su.TS, wrapper.Tuple{positive, negative}))
}

// Checksums aggregates the id-set's checksums with every counter's.
func (s *CounterSet) Checksums() (int, int, uint32, []int) {
	until, count, crc := s.counterIDs.Checksums(nil, nil)
	var counterSums []int
	for _, c := range s.counters {
		counterSums = append(counterSums, c.Checksums()...)
	}
	return until, count, crc, counterSums
}

// History returns one StateUpdate per counter id, timestamped with the id's
// own observation time in counterIDs and carrying that counter's current
// (positive, negative) pair.
func (s *CounterSet) History(fromTS, untilTS *int) []update.StateUpdate {
	var out []update.StateUpdate
	for _, su := range s.counterIDs.History(fromTS, untilTS) {
		id, ok := su.Data.(wrapper.Packable)
		if !ok {
			continue
		}
		key := memberKey(id)
		counter, ok := s.counters[key]
		if !ok {
			continue
		}
		out = append(out, update.New(s.clock.UUID(), su.TS, wrapper.Tuple{id, counter.positive, counter.negative}))
	}
	return out
}

// Increase creates, applies, and returns a StateUpdate that adds amount to
// the counter named by id (creating it if it doesn't exist yet).
func (s *CounterSet) Increase(id wrapper.Packable, amount int) (update.StateUpdate, error) {
	if amount <= 0 {
		return update.StateUpdate{}, newErr(KindValueInvalid, "CounterSet.Increase", "amount must be positive")
	}
	key := memberKey(id)
	counter := s.counterFor(key)
	su := update.New(s.clock.UUID(), s.clock.Read(), wrapper.Tuple{id, counter.positive + amount, counter.negative})
	if err := s.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// Decrease creates, applies, and returns a StateUpdate that adds amount to
// the negative side of the counter named by id (creating it if needed).
func (s *CounterSet) Decrease(id wrapper.Packable, amount int) (update.StateUpdate, error) {
	if amount <= 0 {
		return update.StateUpdate{}, newErr(KindValueInvalid, "CounterSet.Decrease", "amount must be positive")
	}
	key := memberKey(id)
	counter := s.counterFor(key)
	su := update.New(s.clock.UUID(), s.clock.Read(), wrapper.Tuple{id, counter.positive, counter.negative + amount})
	if err := s.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
