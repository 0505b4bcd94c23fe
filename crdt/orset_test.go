package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

func TestORSetObserveThenRemove(t *testing.T) {
	s := crdt.NewORSet(nil)
	_, err := s.Observe(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	assert.Len(t, s.Read(), 1)

	_, err = s.Remove(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	assert.Empty(t, s.Read())
}

func TestORSetReAddAfterRemoveIsVisible(t *testing.T) {
	s := crdt.NewORSet(nil)
	_, err := s.Observe(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	_, err = s.Remove(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	_, err = s.Observe(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)

	assert.Len(t, s.Read(), 1)
}

func TestORSetLaterAddBeatsEarlierRemoveRegardlessOfApplyOrder(t *testing.T) {
	// A remove only wins against an add whose timestamp it causally follows.
	// When the add strictly postdates the remove, the member must end up
	// present no matter which order the two updates are replayed in.
	member := wrapper.StrWrapper{Value: "x"}

	build := func(applyRemoveFirst bool) []wrapper.Packable {
		s := crdt.NewORSet(nil)
		uuid := s.Clock().UUID()
		removeSU := update.New(uuid, 1, wrapper.Tuple{"r", wrapper.Packable(member)})
		addSU := update.New(uuid, 5, wrapper.Tuple{"o", wrapper.Packable(member)})

		if applyRemoveFirst {
			require.NoError(t, s.Update(removeSU))
			require.NoError(t, s.Update(addSU))
		} else {
			require.NoError(t, s.Update(addSU))
			require.NoError(t, s.Update(removeSU))
		}
		return s.Read()
	}

	assert.Equal(t, build(true), build(false))
	assert.Len(t, build(true), 1)
}

func TestORSetChecksumsCountBothSides(t *testing.T) {
	s := crdt.NewORSet(nil)
	_, err := s.Observe(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	_, err = s.Remove(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)

	observedCount, removedCount, _, _ := s.Checksums(nil, nil)
	assert.Equal(t, 0, observedCount)
	assert.Equal(t, 1, removedCount)
}

func TestORSetReadIsMemoizedBetweenUpdates(t *testing.T) {
	s := crdt.NewORSet(nil)
	_, err := s.Observe(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)

	first := s.Read()
	second := s.Read()
	assert.Equal(t, first, second)

	_, err = s.Observe(wrapper.StrWrapper{Value: "b"})
	require.NoError(t, err)
	assert.Len(t, s.Read(), 2)
}
