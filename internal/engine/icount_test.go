package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestICountFetchDefaultsToZero(t *testing.T) {
	c := NewICount(100)
	assert.EqualValues(t, 0, c.Fetch(42))
}

func TestICountSingletonFastPath(t *testing.T) {
	c := NewICount(100)
	c.Set(42, 1)
	assert.EqualValues(t, 1, c.Fetch(42))

	c.Set(42, 0)
	assert.EqualValues(t, 0, c.Fetch(42))
}

func TestICountSparseOverflow(t *testing.T) {
	c := NewICount(100)
	c.Set(7, 5)
	assert.EqualValues(t, 5, c.Fetch(7))

	// dropping back to 1 must clear the sparse entry and use the bitmap
	c.Set(7, 1)
	assert.EqualValues(t, 1, c.Fetch(7))
}

func TestICountIncrementDecrement(t *testing.T) {
	c := NewICount(100)
	c.Increment(3)
	c.Increment(3)
	c.Increment(3)
	assert.EqualValues(t, 3, c.Fetch(3))

	c.Decrement(3)
	assert.EqualValues(t, 2, c.Fetch(3))
}

func TestICountDecrementFlooredAtZero(t *testing.T) {
	c := NewICount(100)
	c.Decrement(9)
	assert.EqualValues(t, 0, c.Fetch(9))
}
