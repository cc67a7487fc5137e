package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

func newTestContext(t *testing.T, sb *ondisk.Superblock) *Context {
	t.Helper()
	dev := ondisk.NewMemDevice(sb.BlockSize() * 16)
	probEngine := problem.NewEngine(testView{}, "test-device", false, true, false)
	return NewContext(dev, sb, nil, testView{}, probEngine)
}

func TestRunPass0GeneratesUUIDWhenNil(t *testing.T) {
	sb := &ondisk.Superblock{TotalInodes: 16, TotalBlocks: 256, LogBlockSize: 0, InodesPerGroup: 16, BlocksPerGroup: 256}
	ctx := newTestContext(t, sb)

	require.NoError(t, RunPass0(ctx))

	assert.NotEqual(t, [16]byte{}, ctx.SB.UUID)
}

func TestRunPass0LeavesExistingUUIDAlone(t *testing.T) {
	sb := &ondisk.Superblock{TotalInodes: 16, TotalBlocks: 256, LogBlockSize: 0, InodesPerGroup: 16, BlocksPerGroup: 256}
	sb.UUID = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	want := sb.UUID
	ctx := newTestContext(t, sb)

	require.NoError(t, RunPass0(ctx))

	assert.Equal(t, want, ctx.SB.UUID)
}

func TestRunPass0ClearsMismatchedJournalUUID(t *testing.T) {
	sb := &ondisk.Superblock{TotalInodes: 16, TotalBlocks: 256, LogBlockSize: 0, InodesPerGroup: 16, BlocksPerGroup: 256}
	sb.UUID = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sb.JournalUUID = [16]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	sb.FeatureCompat = ondisk.CompatHasJournal
	ctx := newTestContext(t, sb)

	require.NoError(t, RunPass0(ctx))

	assert.Equal(t, [16]byte{}, ctx.SB.JournalUUID)
}

func TestIsNilUUID(t *testing.T) {
	assert.True(t, isNilUUID([16]byte{}))
	assert.False(t, isNilUUID([16]byte{1}))
}
