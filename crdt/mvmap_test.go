package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

func TestMVMapSetAndRead(t *testing.T) {
	m := crdt.NewMVMap(nil)
	key := wrapper.StrWrapper{Value: "name"}
	_, err := m.Set(key, wrapper.StrWrapper{Value: "alice"})
	require.NoError(t, err)

	out := m.Read()
	require.Len(t, out, 1)
	for _, values := range out {
		assert.Equal(t, []wrapper.Packable{wrapper.StrWrapper{Value: "alice"}}, values)
	}
}

func TestMVMapUnsetRemovesKey(t *testing.T) {
	m := crdt.NewMVMap(nil)
	key := wrapper.StrWrapper{Value: "name"}
	_, err := m.Set(key, wrapper.StrWrapper{Value: "alice"})
	require.NoError(t, err)
	_, err = m.Unset(key)
	require.NoError(t, err)

	assert.Empty(t, m.Read())
}

func TestMVMapConcurrentWritesPreserveBoth(t *testing.T) {
	sharedClock := clock.NewScalarClock()
	a := crdt.NewMVMap(sharedClock)
	b := crdt.NewMVMap(clock.NewScalarClock(sharedClock.UUID()))

	key := wrapper.StrWrapper{Value: "color"}
	suA, err := a.Set(key, wrapper.StrWrapper{Value: "red"})
	require.NoError(t, err)
	suB, err := b.Set(key, wrapper.StrWrapper{Value: "blue"})
	require.NoError(t, err)

	require.NoError(t, a.Update(suB))
	require.NoError(t, b.Update(suA))

	assert.Equal(t, a.Read(), b.Read())
	for _, values := range a.Read() {
		assert.Len(t, values, 2)
	}
}

func TestMVMapListenerSeesUpdatesBeforeMutation(t *testing.T) {
	m := crdt.NewMVMap(nil)
	var seen []update.StateUpdate
	var keysDuringListener []int
	m.AddListener(func(su update.StateUpdate) {
		seen = append(seen, su)
		keysDuringListener = append(keysDuringListener, len(m.Read()))
	})

	_, err := m.Set(wrapper.StrWrapper{Value: "k"}, wrapper.StrWrapper{Value: "v"})
	require.NoError(t, err)

	assert.Len(t, seen, 1)
	assert.Equal(t, []int{0}, keysDuringListener)
	assert.Len(t, m.Read(), 1)
}
