package crdt

import (
	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
)

// Counter is a Grow-only Counter CRDT (G-Counter): a single non-negative
// integer that only ever increases, merged by taking the max of any two
// replicas' values.
type Counter struct {
	counter int
	clock   *clock.ScalarClock
}

// NewCounter creates a zeroed counter sharing c (or a fresh clock if c is
// nil).
func NewCounter(c *clock.ScalarClock) *Counter {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &Counter{clock: c}
}

// Clock returns the counter's shared clock.
func (c *Counter) Clock() *clock.ScalarClock { return c.clock }

// Read returns the current counter value.
func (c *Counter) Read() int { return c.counter }

// Update applies a remote StateUpdate, whose Data must be the int value of
// counter observed by the sender. The result is the max of the two values,
// which is what makes this a convergent CRDT regardless of delivery order.
func (c *Counter) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(c.clock.UUID()) {
		return newErr(KindUsage, "Counter.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	value, ok := su.Data.(int)
	if !ok {
		return newErr(KindTypeInvalid, "Counter.Update", "state_update.data must be int")
	}
	if value > c.counter {
		c.counter = value
	}
	c.clock.Update(su.TS)
	return nil
}

// Checksums returns a single-element checksum tuple for resynchronization
// comparisons.
func (c *Counter) Checksums() []int { return []int{c.counter} }

// History returns the single StateUpdate that reconstructs the current
// value.
func (c *Counter) History() []update.StateUpdate {
	return []update.StateUpdate{update.New(c.clock.UUID(), c.clock.Read()-1, c.counter)}
}

// Increase creates, applies, and returns a StateUpdate that adds amount to
// the counter. amount must be strictly positive; otherwise Increase fails
// with KindValueInvalid.
func (c *Counter) Increase(amount int) (update.StateUpdate, error) {
	if amount <= 0 {
		return update.StateUpdate{}, newErr(KindValueInvalid, "Counter.Increase", "amount must be positive")
	}
	su := update.New(c.clock.UUID(), c.clock.Read(), c.counter+amount)
	if err := c.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
