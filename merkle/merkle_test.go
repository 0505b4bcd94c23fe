package merkle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/merkle"
	"github.com/Polqt/crdts/wrapper"
)

func TestGetIsDeterministic(t *testing.T) {
	c := clock.NewScalarClock()
	r := crdt.NewRGArray(c)
	_, err := r.Append(wrapper.StrWrapper{Value: "a"}, 1)
	require.NoError(t, err)
	_, err = r.Append(wrapper.StrWrapper{Value: "b"}, 1)
	require.NoError(t, err)

	h1 := merkle.Get(r)
	h2 := merkle.Get(r)
	assert.Equal(t, h1.Root, h2.Root)
	assert.Equal(t, h1.Leaves, h2.Leaves)
}

func TestGetChangesRootOnNewUpdate(t *testing.T) {
	c := clock.NewScalarClock()
	r := crdt.NewRGArray(c)
	_, err := r.Append(wrapper.StrWrapper{Value: "a"}, 1)
	require.NoError(t, err)
	before := merkle.Get(r)

	_, err = r.Append(wrapper.StrWrapper{Value: "b"}, 1)
	require.NoError(t, err)
	after := merkle.Get(r)

	assert.NotEqual(t, before.Root, after.Root)
}

func TestResolveMatchingRootsReturnsNil(t *testing.T) {
	c := clock.NewScalarClock()
	r := crdt.NewRGArray(c)
	_, err := r.Append(wrapper.StrWrapper{Value: "a"}, 1)
	require.NoError(t, err)

	h := merkle.Get(r)
	missing, err := merkle.Resolve(r, h.Root, h.Leaves)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestResolveReturnsMissingLeaves(t *testing.T) {
	localClock := clock.NewScalarClock()
	local := crdt.NewRGArray(localClock)
	_, err := local.Append(wrapper.StrWrapper{Value: "a"}, 1)
	require.NoError(t, err)

	peerClock := clock.NewScalarClock(localClock.UUID())
	peer := crdt.NewRGArray(peerClock)
	_, err = peer.Append(wrapper.StrWrapper{Value: "a"}, 1)
	require.NoError(t, err)
	_, err = peer.Append(wrapper.StrWrapper{Value: "b"}, 1)
	require.NoError(t, err)

	peerHistory := merkle.Get(peer)
	missing, err := merkle.Resolve(local, peerHistory.Root, peerHistory.Leaves)
	require.NoError(t, err)
	assert.Len(t, missing, 1)
}

func TestResolveRejectsNilPeerRoot(t *testing.T) {
	c := clock.NewScalarClock()
	r := crdt.NewRGArray(c)
	_, err := merkle.Resolve(r, nil, nil)
	assert.Error(t, err)
}
