package wrapper_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/wrapper"
)

func TestStrWrapperRoundTrip(t *testing.T) {
	w := wrapper.StrWrapper{Value: "hello"}
	got, err := wrapper.UnpackStrWrapper(w.Pack())
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestBytesWrapperRoundTrip(t *testing.T) {
	w := wrapper.BytesWrapper{Value: []byte{1, 2, 3}}
	got, err := wrapper.UnpackBytesWrapper(w.Pack())
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestIntWrapperRoundTrip(t *testing.T) {
	w := wrapper.IntWrapper{Value: -12345}
	got, err := wrapper.UnpackIntWrapper(w.Pack())
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestIntWrapperRejectsShortPayload(t *testing.T) {
	_, err := wrapper.UnpackIntWrapper([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecimalWrapperRoundTrip(t *testing.T) {
	w := wrapper.DecimalWrapper{Value: decimal.RequireFromString("3.14159")}
	got, err := wrapper.UnpackDecimalWrapper(w.Pack())
	require.NoError(t, err)
	assert.True(t, w.Value.Equal(got.Value))
}

func TestDecimalWrapperLess(t *testing.T) {
	a := wrapper.DecimalWrapper{Value: decimal.RequireFromString("1")}
	b := wrapper.DecimalWrapper{Value: decimal.RequireFromString("2")}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestNoneWrapperPacksEmpty(t *testing.T) {
	w := wrapper.NoneWrapper{}
	assert.Empty(t, w.Pack())
	got, err := wrapper.UnpackNoneWrapper(nil)
	require.NoError(t, err)
	assert.Equal(t, wrapper.NoneWrapper{}, got)
}

func TestRGAItemWrapperRoundTrip(t *testing.T) {
	w := wrapper.RGAItemWrapper{Item: wrapper.StrWrapper{Value: "a"}, TS: 7, Writer: 3}
	got, err := wrapper.UnpackRGAItemWrapper(w.Pack(), wrapper.DefaultRegistry())
	require.NoError(t, err)
	assert.True(t, w.Equal(got))
}

func TestRGAItemWrapperEqual(t *testing.T) {
	a := wrapper.RGAItemWrapper{Item: wrapper.StrWrapper{Value: "x"}, TS: 1, Writer: 1}
	b := wrapper.RGAItemWrapper{Item: wrapper.StrWrapper{Value: "x"}, TS: 1, Writer: 1}
	c := wrapper.RGAItemWrapper{Item: wrapper.StrWrapper{Value: "y"}, TS: 1, Writer: 1}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestRGAItemWrapperSortKey(t *testing.T) {
	w := wrapper.RGAItemWrapper{Item: wrapper.StrWrapper{Value: "z"}, TS: 5, Writer: 2}
	ts, writer, class, val := w.SortKey()
	assert.Equal(t, 5, ts)
	assert.Equal(t, 2, writer)
	assert.Equal(t, "StrWrapper", class)
	assert.Equal(t, "z", val)
}

func TestCTDataWrapperRoundTrip(t *testing.T) {
	w := wrapper.NewCTDataWrapper(wrapper.StrWrapper{Value: "datum"}, []byte("uuid-1"), []byte("uuid-parent"))
	got, err := wrapper.UnpackCTDataWrapper(w.Pack(), wrapper.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, w.Value, got.Value)
	assert.Equal(t, w.UUID, got.UUID)
	assert.Equal(t, w.ParentUUID, got.ParentUUID)
	assert.Equal(t, w.Visible, got.Visible)
}

func TestCTDataWrapperParentChildLinks(t *testing.T) {
	parent := wrapper.NewCTDataWrapper(wrapper.StrWrapper{Value: "p"}, []byte("p"), []byte{})
	child := wrapper.NewCTDataWrapper(wrapper.StrWrapper{Value: "c"}, []byte("c"), []byte("p"))

	parent.AddChild(child)
	child.SetParent(parent)

	assert.Same(t, parent, child.Parent())
	require.Len(t, parent.Children(), 1)
	assert.Same(t, child, parent.Children()[0])
}

func TestTypeNameDereferencesPointers(t *testing.T) {
	datum := wrapper.NewCTDataWrapper(wrapper.NoneWrapper{}, nil, nil)
	assert.Equal(t, "CTDataWrapper", wrapper.TypeName(datum))
	assert.Equal(t, "StrWrapper", wrapper.TypeName(wrapper.StrWrapper{}))
}
