package dispatch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func blob(n int) []byte { return []byte(fmt.Sprintf("blob-%d", n)) }

func TestRing_KeepsAllUnderCapacity(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 3; i++ {
		r.Push(blob(i))
	}
	assert.Equal(t, 3, r.Len())
	snap := r.Snapshot()
	for i, b := range snap {
		assert.Equal(t, string(blob(i)), string(b))
	}
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Push(blob(i))
	}
	assert.Equal(t, 3, r.Len())

	snap := r.Snapshot()
	want := []string{"blob-2", "blob-3", "blob-4"}
	for i, b := range snap {
		assert.Equal(t, want[i], string(b))
	}
}

func TestRing_DefaultCapacity(t *testing.T) {
	r := NewRing(0)
	assert.Equal(t, 10000, r.capacity)
}
