package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/wrapper"
)

func TestLWWMapSetAndRead(t *testing.T) {
	m := crdt.NewLWWMap(nil)
	key := wrapper.StrWrapper{Value: "name"}
	_, err := m.Set(key, wrapper.StrWrapper{Value: "alice"}, 1)
	require.NoError(t, err)

	out := m.Read()
	require.Len(t, out, 1)
	for _, v := range out {
		assert.Equal(t, wrapper.StrWrapper{Value: "alice"}, v)
	}
}

func TestLWWMapUnsetRemovesKey(t *testing.T) {
	m := crdt.NewLWWMap(nil)
	key := wrapper.StrWrapper{Value: "name"}
	_, err := m.Set(key, wrapper.StrWrapper{Value: "alice"}, 1)
	require.NoError(t, err)
	_, err = m.Unset(key, 1)
	require.NoError(t, err)

	assert.Empty(t, m.Read())
}

func TestLWWMapMergeConverges(t *testing.T) {
	sharedClock := clock.NewScalarClock()
	a := crdt.NewLWWMap(sharedClock)
	b := crdt.NewLWWMap(clock.NewScalarClock(sharedClock.UUID()))

	key := wrapper.StrWrapper{Value: "color"}
	_, err := a.Set(key, wrapper.StrWrapper{Value: "red"}, 1)
	require.NoError(t, err)
	_, err = b.Set(key, wrapper.StrWrapper{Value: "blue"}, 2)
	require.NoError(t, err)

	for _, su := range b.History() {
		require.NoError(t, a.Update(su))
	}
	for _, su := range a.History() {
		require.NoError(t, b.Update(su))
	}

	assert.Equal(t, a.Read(), b.Read())
}
