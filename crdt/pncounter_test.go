package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/crdt"
)

func TestPNCounterIncreaseDecrease(t *testing.T) {
	c := crdt.NewPNCounter(nil)
	_, err := c.Increase(10)
	require.NoError(t, err)
	_, err = c.Decrease(3)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Read())
}

func TestPNCounterRejectsNonPositiveAmounts(t *testing.T) {
	c := crdt.NewPNCounter(nil)
	_, err := c.Increase(-1)
	assert.Error(t, err)
	_, err = c.Decrease(0)
	assert.Error(t, err)
}

func TestPNCounterConvergesBothDirections(t *testing.T) {
	sharedClock := clock.NewScalarClock()
	a := crdt.NewPNCounter(sharedClock)
	b := crdt.NewPNCounter(clock.NewScalarClock(sharedClock.UUID()))

	suInc, err := a.Increase(5)
	require.NoError(t, err)
	suDec, err := b.Decrease(1)
	require.NoError(t, err)

	require.NoError(t, a.Update(suDec))
	require.NoError(t, b.Update(suInc))

	assert.Equal(t, a.Read(), b.Read())
	assert.Equal(t, 4, a.Read())
}

func TestPNCounterHistoryRoundTrip(t *testing.T) {
	a := crdt.NewPNCounter(nil)
	_, err := a.Increase(6)
	require.NoError(t, err)
	_, err = a.Decrease(2)
	require.NoError(t, err)

	b := crdt.NewPNCounter(clock.NewScalarClock(a.Clock().UUID()))
	for _, su := range a.History() {
		require.NoError(t, b.Update(su))
	}
	assert.Equal(t, a.Read(), b.Read())
}
