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

func TestGSetAddIsIdempotent(t *testing.T) {
	g := crdt.NewGSet(nil)
	_, err := g.Add(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	_, err = g.Add(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)

	assert.Len(t, g.Read(), 1)
}

func TestGSetNeverForgetsMembers(t *testing.T) {
	g := crdt.NewGSet(nil)
	_, err := g.Add(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	_, err = g.Add(wrapper.StrWrapper{Value: "b"})
	require.NoError(t, err)
	assert.Len(t, g.Read(), 2)
}

func TestGSetChecksumsRespectWindow(t *testing.T) {
	g := crdt.NewGSet(nil)
	_, err := g.Add(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	until, count, _ := g.Checksums(nil, nil)
	assert.Equal(t, 1, count)
	assert.True(t, until >= 1)

	from := until + 100
	_, windowed, _ := g.Checksums(&from, nil)
	assert.Equal(t, 0, windowed)
}

func TestGSetMergeConverges(t *testing.T) {
	sharedClock := clock.NewScalarClock()
	a := crdt.NewGSet(sharedClock)
	b := crdt.NewGSet(clock.NewScalarClock(sharedClock.UUID()))

	_, err := a.Add(wrapper.StrWrapper{Value: "a"})
	require.NoError(t, err)
	_, err = b.Add(wrapper.StrWrapper{Value: "b"})
	require.NoError(t, err)

	for _, su := range b.History(nil, nil) {
		require.NoError(t, a.Update(su))
	}
	for _, su := range a.History(nil, nil) {
		require.NoError(t, b.Update(su))
	}

	assert.ElementsMatch(t, a.Read(), b.Read())
	assert.Len(t, a.Read(), 2)
}

func TestGSetUpdateRejectsNonPackableData(t *testing.T) {
	g := crdt.NewGSet(nil)
	su := update.New(g.Clock().UUID(), 1, "not packable")
	err := g.Update(su)
	assert.Error(t, err)
}
