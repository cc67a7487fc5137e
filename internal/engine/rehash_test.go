package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/e2fsck/internal/ondisk"
)

func TestRunHTreeRehashNoopWhenNothingTracked(t *testing.T) {
	sb := &ondisk.Superblock{TotalInodes: 16, TotalBlocks: 64, InodesPerGroup: 16, BlocksPerGroup: 64, FirstDataBlock: 1}
	ctx := newTestContext(t, sb)
	require.NoError(t, RunHTreeRehash(ctx))
}

func TestRunHTreeRehashNoopWhenNoneDirty(t *testing.T) {
	sb := &ondisk.Superblock{TotalInodes: 16, TotalBlocks: 64, InodesPerGroup: 16, BlocksPerGroup: 64, FirstDataBlock: 1}
	ctx := newTestContext(t, sb)
	ctx.DxDirInfo.Add(5) // tracked but never marked dirty
	require.NoError(t, RunHTreeRehash(ctx))
}

func TestRunHTreeRehashRebuildsDirtyDirectoryAndClearsIndexFlag(t *testing.T) {
	sb := &ondisk.Superblock{
		TotalInodes:    16,
		TotalBlocks:    64,
		InodesPerGroup: 16,
		BlocksPerGroup: 64,
		FirstDataBlock: 1,
		LogBlockSize:   0,
	}
	ctx := newTestContext(t, sb)

	dirIno := int64(5)
	alloc := newCounting(2)
	blk, err := ondisk.NewDirBlock(ctx.Device, ctx.SB, alloc, uint32(dirIno), ondisk.RootInode, false)
	require.NoError(t, err)
	require.NoError(t, ondisk.Link(ctx.Device, ctx.SB, []int64{blk}, false, "zz", 50, ondisk.FileTypeRegular))

	in := &ondisk.Inode{Mode: ondisk.ModeDirectory, Flags: ondisk.InodeFlagIndex}
	in.Block[0] = uint32(blk)
	in.BlocksLo = uint32(ctx.SB.BlockSize() / ondisk.SectorSize)
	in.SetSize(ctx.SB.BlockSize())
	require.NoError(t, ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, dirIno, in))

	e := ctx.DxDirInfo.Add(dirIno)
	e.Dirty = true

	require.NoError(t, RunHTreeRehash(ctx))

	got, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, dirIno)
	require.NoError(t, err)
	assert.Zero(t, got.Flags&ondisk.InodeFlagIndex, "Rebuild only produces a plain linear directory")

	blocks, err := ondisk.DirBlockList(ctx.Device, ctx.SB, got)
	require.NoError(t, err)
	_, _, found, err := ondisk.Lookup(ctx.Device, ctx.SB, blocks, false, "zz")
	require.NoError(t, err)
	assert.True(t, found)

	ino, _, found, err := ondisk.Lookup(ctx.Device, ctx.SB, blocks, false, ".")
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, dirIno, ino)

	_, _, found, err = ondisk.Lookup(ctx.Device, ctx.SB, blocks, false, "..")
	require.NoError(t, err)
	assert.True(t, found)
}
