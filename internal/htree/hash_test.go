package htree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLegacyHashIsDeterministic(t *testing.T) {
	h1 := legacyHash("README.md")
	h2 := legacyHash("README.md")
	assert.Equal(t, h1, h2)
}

func TestLegacyHashDistinguishesNames(t *testing.T) {
	assert.NotEqual(t, legacyHash("a"), legacyHash("b"))
}

func TestTeaHashIsDeterministic(t *testing.T) {
	seed := [4]uint32{1, 2, 3, 4}
	h1, m1 := teaHash(seed, "some-file.txt")
	h2, m2 := teaHash(seed, "some-file.txt")
	assert.Equal(t, h1, h2)
	assert.Equal(t, m1, m2)
}

func TestTeaHashDependsOnSeed(t *testing.T) {
	a, _ := teaHash([4]uint32{1, 2, 3, 4}, "name")
	b, _ := teaHash([4]uint32{5, 6, 7, 8}, "name")
	assert.NotEqual(t, a, b)
}

func TestHashNameDispatchesByVersion(t *testing.T) {
	seed := [4]uint32{0, 0, 0, 0}

	legacy, legacyMinor := hashName(HashVersionLegacy, seed, "entry")
	assert.Equal(t, legacyHash("entry"), legacy)
	assert.EqualValues(t, 0, legacyMinor)

	tea, teaMinor := hashName(HashVersionTea, seed, "entry")
	wantTea, wantTeaMinor := teaHash(seed, "entry")
	assert.Equal(t, wantTea, tea)
	assert.Equal(t, wantTeaMinor, teaMinor)
}

func TestPadNameAlwaysEndsWithNullWord(t *testing.T) {
	words := padName("abcd") // exactly 4 bytes, must still get a trailing zero word
	assert.Equal(t, uint32(0), words[len(words)-1])
}
