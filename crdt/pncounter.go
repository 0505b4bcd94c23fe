package crdt

import (
	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// PNCounter is a Positive-Negative Counter CRDT: independent grow-only
// positive and negative accumulators whose difference is the logical value,
// letting the counter support both increment and decrement without losing
// convergence.
type PNCounter struct {
	positive int
	negative int
	clock    *clock.ScalarClock
}

// NewPNCounter creates a zeroed PN-Counter sharing c (or a fresh clock if c
// is nil).
func NewPNCounter(c *clock.ScalarClock) *PNCounter {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &PNCounter{clock: c}
}

// Clock returns the counter's shared clock.
func (c *PNCounter) Clock() *clock.ScalarClock { return c.clock }

// Read returns positive - negative.
func (c *PNCounter) Read() int { return c.positive - c.negative }

// Update applies a remote StateUpdate whose Data is a (positive, negative)
// pair, taking the max of each component.
func (c *PNCounter) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(c.clock.UUID()) {
		return newErr(KindUsage, "PNCounter.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	pair, ok := su.Data.(wrapper.Tuple)
	if !ok || len(pair) != 2 {
		return newErr(KindTypeInvalid, "PNCounter.Update", "state_update.data must be a 2-tuple of ints")
	}
	positive, ok1 := pair[0].(int)
	negative, ok2 := pair[1].(int)
	if !ok1 || !ok2 {
		return newErr(KindTypeInvalid, "PNCounter.Update", "state_update.data must be a 2-tuple of ints")
	}
	if positive > c.positive {
		c.positive = positive
	}
	if negative > c.negative {
		c.negative = negative
	}
	c.clock.Update(su.TS)
	return nil
}

// Checksums returns (clock.Read(), positive, negative).
func (c *PNCounter) Checksums() []int { return []int{c.clock.Read(), c.positive, c.negative} }

// History returns the single StateUpdate that reconstructs (positive, negative).
func (c *PNCounter) History() []update.StateUpdate {
	data := wrapper.Tuple{c.positive, c.negative}
	return []update.StateUpdate{update.New(c.clock.UUID(), c.clock.Read()-1, data)}
}

// Increase creates, applies, and returns a StateUpdate that adds amount to
// the positive accumulator.
func (c *PNCounter) Increase(amount int) (update.StateUpdate, error) {
	if amount <= 0 {
		return update.StateUpdate{}, newErr(KindValueInvalid, "PNCounter.Increase", "amount must be positive")
	}
	su := update.New(c.clock.UUID(), c.clock.Read(), wrapper.Tuple{c.positive + amount, c.negative})
	if err := c.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// Decrease creates, applies, and returns a StateUpdate that adds amount to
// the negative accumulator.
func (c *PNCounter) Decrease(amount int) (update.StateUpdate, error) {
	if amount <= 0 {
		return update.StateUpdate{}, newErr(KindValueInvalid, "PNCounter.Decrease", "amount must be positive")
	}
	su := update.New(c.clock.UUID(), c.clock.Read(), wrapper.Tuple{c.positive, c.negative + amount})
	if err := c.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
