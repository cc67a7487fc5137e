package ondisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInodeSizeRoundTrips64Bit(t *testing.T) {
	in := &Inode{}
	in.SetSize(1<<33 + 42)
	assert.EqualValues(t, 1<<33+42, in.Size())
}

func TestInodeModeClassification(t *testing.T) {
	dir := &Inode{Mode: ModeDirectory}
	assert.True(t, dir.IsDir())
	assert.False(t, dir.IsRegular())
	assert.Equal(t, FileTypeDir, dir.FileType())

	reg := &Inode{Mode: ModeRegular}
	assert.True(t, reg.IsRegular())
	assert.Equal(t, FileTypeRegular, reg.FileType())

	sym := &Inode{Mode: ModeSymlink}
	assert.True(t, sym.IsSymlink())
	assert.True(t, sym.FastSymlink()) // BlocksLo == 0
}

func TestInodeFastSymlinkRequiresZeroBlocks(t *testing.T) {
	sym := &Inode{Mode: ModeSymlink, BlocksLo: 8}
	assert.False(t, sym.FastSymlink())
	assert.True(t, sym.HasBlocks())
}

func TestInodeHasBlocksExcludesSpecialFiles(t *testing.T) {
	fifo := &Inode{Mode: ModeFIFO}
	assert.True(t, fifo.IsSpecial())
	assert.False(t, fifo.HasBlocks())
}

func TestInodeAllocatedByLinksOrDeleteTime(t *testing.T) {
	live := &Inode{Mode: ModeRegular, LinksCount: 1}
	assert.True(t, live.Allocated())

	freed := &Inode{Mode: 0, DeleteTime: 1234}
	assert.False(t, freed.Allocated())

	zombie := &Inode{Mode: ModeRegular, DeleteTime: 0}
	assert.True(t, zombie.Allocated())
}

func TestReadWriteInodeRoundTrip(t *testing.T) {
	sb := &Superblock{TotalInodes: 32, InodesPerGroup: 32, InodeSize: 128}
	descs := []GroupDescriptor{{InodeTableAddr: 1}}
	dev := NewMemDevice(sb.BlockSize() * 8)

	want := &Inode{Mode: ModeRegular, LinksCount: 1, SizeLo: 4096}
	want.Block[0] = 10
	require.NoError(t, WriteInode(dev, sb, descs, 5, want))

	got, err := ReadInode(dev, sb, descs, 5)
	require.NoError(t, err)
	assert.Equal(t, want.Mode, got.Mode)
	assert.Equal(t, want.LinksCount, got.LinksCount)
	assert.Equal(t, want.Block[0], got.Block[0])
}

func TestReadInodeRejectsOutOfRange(t *testing.T) {
	sb := &Superblock{TotalInodes: 4, InodesPerGroup: 4, InodeSize: 128}
	descs := []GroupDescriptor{{InodeTableAddr: 1}}
	dev := NewMemDevice(sb.BlockSize() * 4)

	_, err := ReadInode(dev, sb, descs, 0)
	assert.Error(t, err)

	_, err = ReadInode(dev, sb, descs, 999)
	assert.Error(t, err)
}
