package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevokeTableShouldReplayDefaultsTrue(t *testing.T) {
	r := NewRevokeTable()
	assert.True(t, r.ShouldReplay(42, 1))
}

func TestRevokeTableShouldReplayAfterRecord(t *testing.T) {
	r := NewRevokeTable()
	r.Record(42, 10)

	assert.False(t, r.ShouldReplay(42, 5))
	assert.False(t, r.ShouldReplay(42, 10))
	assert.True(t, r.ShouldReplay(42, 11))
}

func TestRevokeTableRecordKeepsHighestSequence(t *testing.T) {
	r := NewRevokeTable()
	r.Record(42, 5)
	r.Record(42, 10)
	r.Record(42, 3) // lower sequence after a higher one must not regress

	assert.False(t, r.ShouldReplay(42, 10))
	assert.True(t, r.ShouldReplay(42, 11))
}

func TestRevokeTableCancelRemovesRecord(t *testing.T) {
	r := NewRevokeTable()
	r.Record(42, 10)
	r.Cancel(42)

	assert.True(t, r.ShouldReplay(42, 1))
	assert.Equal(t, 0, r.Len())
}

func TestRevokeTableLen(t *testing.T) {
	r := NewRevokeTable()
	r.Record(1, 1)
	r.Record(2, 1)
	assert.Equal(t, 2, r.Len())
}
