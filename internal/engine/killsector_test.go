package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKillSectorListAddContains(t *testing.T) {
	k := NewKillSectorList()
	assert.False(t, k.Contains(100))

	k.Add(100)
	assert.True(t, k.Contains(100))
	assert.Equal(t, 1, k.Len())
}

func TestKillSectorListSectorsIsSorted(t *testing.T) {
	k := NewKillSectorList()
	k.Add(300)
	k.Add(100)
	k.Add(200)

	assert.Equal(t, []int64{100, 200, 300}, k.Sectors())
}
