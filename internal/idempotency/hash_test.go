package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalHash_StableUnderKeyPermutation(t *testing.T) {
	a := []byte(`{"showtime_id":"show-1","seats":["A1","A2"]}`)
	b := []byte(`{"seats":["A1","A2"],"showtime_id":"show-1"}`)

	ha, err := CanonicalHash(a)
	require.NoError(t, err)
	hb, err := CanonicalHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestCanonicalHash_PreservesSliceOrder(t *testing.T) {
	a := []byte(`{"seats":["A1","A2"]}`)
	b := []byte(`{"seats":["A2","A1"]}`)

	ha, err := CanonicalHash(a)
	require.NoError(t, err)
	hb, err := CanonicalHash(b)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestCanonicalHash_NestedObjects(t *testing.T) {
	a := []byte(`{"outer":{"b":2,"a":1},"x":1}`)
	b := []byte(`{"x":1,"outer":{"a":1,"b":2}}`)

	ha, err := CanonicalHash(a)
	require.NoError(t, err)
	hb, err := CanonicalHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestCanonicalHash_DifferentBodiesDiffer(t *testing.T) {
	ha, err := CanonicalHash([]byte(`{"seats":["A1"]}`))
	require.NoError(t, err)
	hb, err := CanonicalHash([]byte(`{"seats":["A2"]}`))
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}
