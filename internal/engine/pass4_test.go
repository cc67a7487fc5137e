package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/e2fsck/internal/ondisk"
)

func newPass4TestContext(t *testing.T) *Context {
	t.Helper()
	sb := &ondisk.Superblock{
		TotalInodes:    64,
		TotalBlocks:    256,
		InodesPerGroup: 64,
		BlocksPerGroup: 256,
		FirstDataBlock: 1,
		LogBlockSize:   0,
	}
	return newTestContext(t, sb)
}

func TestCheckRefCountSkipsUnusedInode(t *testing.T) {
	ctx := newPass4TestContext(t)
	require.NoError(t, checkRefCount(ctx, 20))
}

func TestCheckRefCountFixesMismatchedLinksCount(t *testing.T) {
	ctx := newPass4TestContext(t)
	ino := int64(20)

	in := &ondisk.Inode{Mode: ondisk.ModeRegular, LinksCount: 3}
	require.NoError(t, ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in))
	ctx.InodeUsed.Set(ino)
	ctx.LinkCounted.Set(ino, 1)

	require.NoError(t, checkRefCount(ctx, ino))

	got, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ino)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.LinksCount)
}

func TestCheckRefCountReconnectsZeroLinkInode(t *testing.T) {
	ctx := newPass4TestContext(t)
	require.NoError(t, ensureRoot(ctx))

	ino := int64(20)
	in := &ondisk.Inode{Mode: ondisk.ModeRegular, LinksCount: 1}
	require.NoError(t, ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in))
	ctx.InodeUsed.Set(ino)
	// LinkCounted left at zero: pass2 observed no directory entry for it.

	require.NoError(t, checkRefCount(ctx, ino))

	assert.NotZero(t, ctx.LostFoundIno)
	assert.EqualValues(t, 1, ctx.LinkCounted.Fetch(ino))
}
