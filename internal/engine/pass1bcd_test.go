package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/e2fsck/internal/ondisk"
)

func newPass1bcdTestContext(t *testing.T) *Context {
	t.Helper()
	sb := &ondisk.Superblock{
		TotalInodes:    64,
		TotalBlocks:    256,
		InodesPerGroup: 64,
		BlocksPerGroup: 256,
		FirstDataBlock: 1,
		LogBlockSize:   0,
	}
	groups := []ondisk.GroupDescriptor{{BlockBitmapAddr: 1, InodeBitmapAddr: 2, InodeTableAddr: 3}}
	ctx := newTestContext(t, sb)
	ctx.Groups = groups
	return ctx
}

func TestRunPass1BCDNoopWhenNoDuplicates(t *testing.T) {
	ctx := newPass1bcdTestContext(t)
	require.NoError(t, RunPass1BCD(ctx))
}

func TestCloneInodeGivesPrivateCopyOfDupBlocks(t *testing.T) {
	ctx := newPass1bcdTestContext(t)

	in := &ondisk.Inode{Mode: ondisk.ModeRegular, LinksCount: 1}
	in.Block[0] = 50
	require.NoError(t, ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, 20, in))

	ctx.BlockFound.Set(50)
	ctx.BlockDup.Set(50)
	ctx.InodeDup.Set(20)

	require.NoError(t, cloneInode(ctx, 20))

	got, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, 20)
	require.NoError(t, err)
	assert.NotEqualValues(t, 50, got.Block[0])
	assert.False(t, ctx.InodeDup.Test(20))
}

func TestDeleteInodeClearsInode(t *testing.T) {
	ctx := newPass1bcdTestContext(t)

	in := &ondisk.Inode{Mode: ondisk.ModeRegular, LinksCount: 1}
	require.NoError(t, ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, 20, in))
	ctx.InodeUsed.Set(20)
	ctx.InodeDup.Set(20)

	require.NoError(t, deleteInode(ctx, 20))

	got, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.Mode)
	assert.False(t, ctx.InodeDup.Test(20))
}

func TestBlockAllocatorSkipsClaimedBlocks(t *testing.T) {
	ctx := newPass1bcdTestContext(t)
	ctx.BlockFound.Set(1)
	ctx.BlockFound.Set(2)

	alloc := ctx.blockAllocator()
	blk, ok := alloc()
	require.True(t, ok)
	assert.EqualValues(t, 3, blk)
}

func TestInodeAllocatorSkipsUsedInodes(t *testing.T) {
	ctx := newPass1bcdTestContext(t)
	for i := int64(ondisk.FirstReservedInode); i < ondisk.FirstReservedInode+3; i++ {
		ctx.InodeUsed.Set(i)
	}

	alloc := ctx.inodeAllocator()
	ino, ok := alloc()
	require.True(t, ok)
	assert.EqualValues(t, ondisk.FirstReservedInode+3, ino)
}
