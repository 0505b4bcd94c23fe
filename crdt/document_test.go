package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/wrapper"
)

func TestDocumentCreatePartAndUpdate(t *testing.T) {
	doc := crdt.NewDocument()
	id, part, err := doc.CreatePart(crdt.PartCounter)
	require.NoError(t, err)

	counter, ok := part.(*crdt.Counter)
	require.True(t, ok)
	_, err = counter.Increase(5)
	require.NoError(t, err)

	got, ok := doc.Part(id)
	require.True(t, ok)
	assert.Equal(t, counter, got)
	assert.Equal(t, 5, counter.Read())
}

func TestDocumentPackUnpackRoundTrip(t *testing.T) {
	doc := crdt.NewDocument()
	id, part, err := doc.CreatePart(crdt.PartGSet)
	require.NoError(t, err)

	gset, ok := part.(*crdt.GSet)
	require.True(t, ok)
	_, err = gset.Add(wrapper.StrWrapper{Value: "x"})
	require.NoError(t, err)

	packed := doc.Pack()
	restored, err := crdt.UnpackDocument(packed, wrapper.DefaultRegistry())
	require.NoError(t, err)

	restoredPart, ok := restored.Part(id)
	require.True(t, ok)
	restoredGSet, ok := restoredPart.(*crdt.GSet)
	require.True(t, ok)

	assert.ElementsMatch(t, gset.Read(), restoredGSet.Read())
}

func TestDocumentHistoryCoversEveryLivePart(t *testing.T) {
	doc := crdt.NewDocument()
	_, part, err := doc.CreatePart(crdt.PartLWWRegister)
	require.NoError(t, err)

	reg, ok := part.(*crdt.LWWRegister)
	require.True(t, ok)
	_, err = reg.Write(wrapper.StrWrapper{Value: "v"}, 1)
	require.NoError(t, err)

	history := doc.History()
	assert.Len(t, history, 1)
}

func TestDocumentUpdatePartRejectsUnknownIdentifier(t *testing.T) {
	doc := crdt.NewDocument()
	other := crdt.NewDocument()
	_, part, err := other.CreatePart(crdt.PartCounter)
	require.NoError(t, err)
	counter := part.(*crdt.Counter)
	su, err := counter.Increase(1)
	require.NoError(t, err)

	unknownID := crdt.Identifier{UUID: []byte("not-a-real-part"), TypeID: crdt.PartCounter}
	err = doc.UpdatePart(unknownID, su)
	assert.Error(t, err)
}
