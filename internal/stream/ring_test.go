package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsLastCapacityItems(t *testing.T) {
	t.Parallel()

	r := NewRing[int](200)
	for i := 0; i < 250; i++ {
		r.Append(i)
	}
	got := r.Snapshot()
	require.Len(t, got, 200)
	assert.Equal(t, 50, got[0])
	assert.Equal(t, 249, got[199])
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1]+1, got[i])
	}
	assert.Equal(t, 200, r.Len())
}

func TestRingPartialAndMinimumCapacity(t *testing.T) {
	t.Parallel()

	r := NewRing[string](5)
	assert.Empty(t, r.Snapshot())
	r.Append("a")
	r.Append("b")
	assert.Equal(t, []string{"a", "b"}, r.Snapshot())

	tiny := NewRing[string](0)
	tiny.Append("x")
	tiny.Append("y")
	assert.Equal(t, []string{"y"}, tiny.Snapshot())
}
