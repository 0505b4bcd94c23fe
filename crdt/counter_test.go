package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/update"
)

func TestCounterIncrease(t *testing.T) {
	c := crdt.NewCounter(nil)
	_, err := c.Increase(3)
	require.NoError(t, err)
	_, err = c.Increase(2)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Read())
}

func TestCounterIncreaseRejectsNonPositive(t *testing.T) {
	c := crdt.NewCounter(nil)
	_, err := c.Increase(0)
	assert.Error(t, err)
	assert.True(t, crdt.IsKind(err, crdt.KindValueInvalid))
}

func TestCounterMergeTakesMax(t *testing.T) {
	sharedClock := clock.NewScalarClock()
	a := crdt.NewCounter(sharedClock)
	b := crdt.NewCounter(clock.NewScalarClock(sharedClock.UUID()))

	suA, err := a.Increase(10)
	require.NoError(t, err)
	_, err = b.Increase(4)
	require.NoError(t, err)

	require.NoError(t, b.Update(suA))
	assert.Equal(t, 10, b.Read())
}

func TestCounterUpdateRejectsWrongClockUUID(t *testing.T) {
	c := crdt.NewCounter(nil)
	su := update.New([]byte("other-uuid"), 1, 5)
	err := c.Update(su)
	assert.Error(t, err)
	assert.True(t, crdt.IsKind(err, crdt.KindUsage))
}

func TestCounterHistoryReconstructsValue(t *testing.T) {
	a := crdt.NewCounter(nil)
	_, err := a.Increase(7)
	require.NoError(t, err)

	b := crdt.NewCounter(clock.NewScalarClock(a.Clock().UUID()))
	for _, su := range a.History() {
		require.NoError(t, b.Update(su))
	}
	assert.Equal(t, a.Read(), b.Read())
}
