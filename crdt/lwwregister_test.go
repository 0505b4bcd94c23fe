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

func TestLWWRegisterWriteReplacesValue(t *testing.T) {
	r := crdt.NewLWWRegister(wrapper.StrWrapper{Value: "key"}, nil)
	_, err := r.Write(wrapper.StrWrapper{Value: "one"}, 1)
	require.NoError(t, err)
	assert.Equal(t, wrapper.StrWrapper{Value: "one"}, r.Read())

	_, err = r.Write(wrapper.StrWrapper{Value: "two"}, 1)
	require.NoError(t, err)
	assert.Equal(t, wrapper.StrWrapper{Value: "two"}, r.Read())
}

func TestLWWRegisterLaterWriteWins(t *testing.T) {
	r := crdt.NewLWWRegister(wrapper.StrWrapper{Value: "key"}, nil)
	uuid := r.Clock().UUID()

	early := update.New(uuid, 1, wrapper.Tuple{1, wrapper.Packable(wrapper.StrWrapper{Value: "early"})})
	late := update.New(uuid, 9, wrapper.Tuple{1, wrapper.Packable(wrapper.StrWrapper{Value: "late"})})

	require.NoError(t, r.Update(late))
	require.NoError(t, r.Update(early))

	assert.Equal(t, wrapper.StrWrapper{Value: "late"}, r.Read())
}

func TestLWWRegisterConcurrentWriteBreaksTieByWriter(t *testing.T) {
	r := crdt.NewLWWRegister(wrapper.StrWrapper{Value: "key"}, nil)
	uuid := r.Clock().UUID()

	low := update.New(uuid, 5, wrapper.Tuple{1, wrapper.Packable(wrapper.StrWrapper{Value: "low-writer"})})
	high := update.New(uuid, 5, wrapper.Tuple{2, wrapper.Packable(wrapper.StrWrapper{Value: "high-writer"})})

	require.NoError(t, r.Update(low))
	require.NoError(t, r.Update(high))
	assert.Equal(t, wrapper.StrWrapper{Value: "high-writer"}, r.Read())
}

func TestLWWRegisterHistoryRoundTrip(t *testing.T) {
	a := crdt.NewLWWRegister(wrapper.StrWrapper{Value: "key"}, nil)
	_, err := a.Write(wrapper.StrWrapper{Value: "v"}, 3)
	require.NoError(t, err)

	b := crdt.NewLWWRegister(wrapper.StrWrapper{Value: "key"}, clock.NewScalarClock(a.Clock().UUID()))
	for _, su := range a.History() {
		require.NoError(t, b.Update(su))
	}
	assert.Equal(t, a.Read(), b.Read())
}
