package wrapper_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/wrapper"
)

func TestSerializePartScalars(t *testing.T) {
	for _, v := range []any{42, "hello", []byte("raw"), 3.5} {
		packed, err := wrapper.SerializePart(v)
		require.NoError(t, err)

		got, err := wrapper.DeserializePart(packed, nil)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestSerializePartTuple(t *testing.T) {
	in := wrapper.Tuple{"o", 7, wrapper.StrWrapper{Value: "x"}}
	packed, err := wrapper.SerializePart(in)
	require.NoError(t, err)

	got, err := wrapper.DeserializePart(packed, nil)
	require.NoError(t, err)

	out, ok := got.(wrapper.Tuple)
	require.True(t, ok)
	require.Len(t, out, 3)
	assert.Equal(t, "o", out[0])
	assert.Equal(t, 7, out[1])
	assert.Equal(t, wrapper.StrWrapper{Value: "x"}, out[2])
}

func TestSerializePartNestedList(t *testing.T) {
	in := []any{1, []any{2, 3}, "tail"}
	packed, err := wrapper.SerializePart(in)
	require.NoError(t, err)

	got, err := wrapper.DeserializePart(packed, nil)
	require.NoError(t, err)

	out, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, out, 3)
	assert.Equal(t, 1, out[0])
	assert.Equal(t, "tail", out[2])
	inner, ok := out[1].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{2, 3}, inner)
}

func TestSerializePartUnsupportedType(t *testing.T) {
	_, err := wrapper.SerializePart(struct{ X int }{X: 1})
	assert.Error(t, err)
}

func TestRegistryUnknownClass(t *testing.T) {
	r := wrapper.NewRegistry()
	_, err := r.Unpack("NotRegistered", []byte("data"))
	assert.Error(t, err)
}

func TestRegistryWithInjectedOverrides(t *testing.T) {
	base := wrapper.NewRegistry()
	base.Register("Thing", func(data []byte) (wrapper.Packable, error) {
		return wrapper.StrWrapper{Value: "base"}, nil
	})
	override := wrapper.NewRegistry()
	override.Register("Thing", func(data []byte) (wrapper.Packable, error) {
		return wrapper.StrWrapper{Value: "override"}, nil
	})

	merged := base.WithInjected(override)
	got, err := merged.Unpack("Thing", nil)
	require.NoError(t, err)
	assert.Equal(t, wrapper.StrWrapper{Value: "override"}, got)
	assert.True(t, merged.Has("Thing"))
}

func TestDefaultRegistryResolvesBuiltinWrappers(t *testing.T) {
	reg := wrapper.DefaultRegistry()
	assert.True(t, reg.Has("StrWrapper"))
	assert.True(t, reg.Has("IntWrapper"))
	assert.True(t, reg.Has("BytesWrapper"))
	assert.True(t, reg.Has("DecimalWrapper"))
	assert.True(t, reg.Has("NoneWrapper"))
	assert.True(t, reg.Has("RGAItemWrapper"))
	assert.True(t, reg.Has("CTDataWrapper"))
}

func TestSerializePartPackableRoundTrip(t *testing.T) {
	in := wrapper.Packable(wrapper.DecimalWrapper{Value: decimal.RequireFromString("1.25")})
	packed, err := wrapper.SerializePart(in)
	require.NoError(t, err)

	got, err := wrapper.DeserializePart(packed, nil)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}
