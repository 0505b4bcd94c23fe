package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/wrapper"
)

func TestCounterSetTracksIndependentCounters(t *testing.T) {
	s := crdt.NewCounterSet(nil)
	alice := wrapper.StrWrapper{Value: "alice"}
	bob := wrapper.StrWrapper{Value: "bob"}

	_, err := s.Increase(alice, 3)
	require.NoError(t, err)
	_, err = s.Increase(bob, 10)
	require.NoError(t, err)
	_, err = s.Decrease(bob, 4)
	require.NoError(t, err)

	assert.Equal(t, 9, s.Read())
	full := s.ReadFull()
	assert.Len(t, full, 2)
}

func TestCounterSetMergeConverges(t *testing.T) {
	sharedClock := clock.NewScalarClock()
	a := crdt.NewCounterSet(sharedClock)
	b := crdt.NewCounterSet(clock.NewScalarClock(sharedClock.UUID()))

	id := wrapper.StrWrapper{Value: "votes"}
	_, err := a.Increase(id, 5)
	require.NoError(t, err)
	_, err = b.Increase(id, 2)
	require.NoError(t, err)

	for _, su := range b.History(nil, nil) {
		require.NoError(t, a.Update(su))
	}
	for _, su := range a.History(nil, nil) {
		require.NoError(t, b.Update(su))
	}

	assert.Equal(t, a.Read(), b.Read())
}

func TestCounterSetIncreaseRejectsNonPositive(t *testing.T) {
	s := crdt.NewCounterSet(nil)
	_, err := s.Increase(wrapper.StrWrapper{Value: "x"}, 0)
	assert.Error(t, err)
}
