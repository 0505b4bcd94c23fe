package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdts/clock"
)

func TestScalarClockRead(t *testing.T) {
	c := clock.NewScalarClock()
	assert.Equal(t, 1, c.Read())
}

func TestScalarClockUpdateAdvancesPastObserved(t *testing.T) {
	c := clock.NewScalarClock()

	assert.Equal(t, 6, c.Update(5))
	assert.Equal(t, 6, c.Read())

	// Updating with something causally behind leaves the counter untouched.
	assert.Equal(t, 6, c.Update(2))
	assert.Equal(t, 6, c.Read())
}

func TestScalarClockAdvance(t *testing.T) {
	c := clock.NewScalarClock()
	assert.Equal(t, 2, c.Advance())
	assert.Equal(t, 3, c.Advance())
}

func TestScalarClockOrdering(t *testing.T) {
	c := clock.NewScalarClock()

	assert.True(t, c.IsLater(5, 3))
	assert.False(t, c.IsLater(3, 5))
	assert.True(t, c.AreConcurrent(4, 4))
	assert.False(t, c.AreConcurrent(4, 5))

	assert.Equal(t, 1, c.Compare(5, 3))
	assert.Equal(t, -1, c.Compare(3, 5))
	assert.Equal(t, 0, c.Compare(4, 4))
}

func TestScalarClockPackRoundTrip(t *testing.T) {
	id := []byte("replica-one-uuid")
	c := clock.NewScalarClock(id)
	c.Update(41)

	packed := c.Pack()
	unpacked, err := clock.UnpackScalarClock(packed)
	require.NoError(t, err)

	assert.Equal(t, c.Read(), unpacked.Read())
	assert.Equal(t, c.UUID(), unpacked.UUID())
}

func TestScalarClockSharedIdentity(t *testing.T) {
	id := []byte("shared-uuid")
	a := clock.NewScalarClock(id)
	b := clock.NewScalarClock(id)
	assert.Equal(t, a.UUID(), b.UUID())
}

func TestStringClockGrowsMonotonically(t *testing.T) {
	c := clock.NewStringClock()
	assert.Equal(t, "", c.Read())

	got := c.Update("aa")
	assert.Equal(t, "aa.", got)

	// A shorter observation doesn't regress the clock.
	got = c.Update("a")
	assert.Equal(t, "aa.", got)
}

func TestStringClockOrdering(t *testing.T) {
	c := clock.NewStringClock()
	assert.True(t, c.IsLater("aaa", "aa"))
	assert.True(t, c.AreConcurrent("aa", "bb"))
	assert.Equal(t, 1, c.Compare("aaa", "aa"))
	assert.Equal(t, -1, c.Compare("aa", "aaa"))
	assert.Equal(t, 0, c.Compare("aa", "bb"))
}

func TestStringClockPackRoundTrip(t *testing.T) {
	c := clock.NewStringClock([]byte("id-bytes"))
	c.Update("hello")

	unpacked, err := clock.UnpackStringClock(c.Pack())
	require.NoError(t, err)
	assert.Equal(t, c.Read(), unpacked.Read())
	assert.Equal(t, c.UUID(), unpacked.UUID())
}
