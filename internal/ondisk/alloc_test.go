package ondisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingAllocator(start int64) BlockAllocator {
	next := start
	return func() (int64, bool) {
		b := next
		next++
		return b, true
	}
}

func TestNewBlockZeroesContent(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	// dirty the target block first so we can prove NewBlock clears it
	require.NoError(t, dev.WriteAt([]byte{0xFF, 0xFF}, 2*sb.BlockSize()))

	blk, err := NewBlock(dev, sb, newCountingAllocator(2))
	require.NoError(t, err)
	assert.EqualValues(t, 2, blk)

	buf := make([]byte, sb.BlockSize())
	require.NoError(t, dev.ReadAt(buf, blk*sb.BlockSize()))
	for _, b := range buf {
		assert.EqualValues(t, 0, b)
	}
}

func TestNewDirBlockWritesDotEntries(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	blk, err := NewDirBlock(dev, sb, newCountingAllocator(2), 5, 2, false)
	require.NoError(t, err)

	ino, _, found, err := Lookup(dev, sb, []int64{blk}, false, ".")
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 5, ino)

	ino, _, found, err = Lookup(dev, sb, []int64{blk}, false, "..")
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 2, ino)
}

func TestLinkAndLookupRoundTrip(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	blk, err := NewDirBlock(dev, sb, newCountingAllocator(2), 2, 2, true)
	require.NoError(t, err)
	blocks := []int64{blk}

	require.NoError(t, Link(dev, sb, blocks, true, "hello", 42, FileTypeRegular))

	ino, ft, found, err := Lookup(dev, sb, blocks, true, "hello")
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 42, ino)
	assert.Equal(t, uint8(FileTypeRegular), ft)
}

func TestLinkReturnsErrDirNoSpaceWhenFull(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	blk, err := NewBlock(dev, sb, newCountingAllocator(2))
	require.NoError(t, err)
	blocks := []int64{blk}

	// pack the block with back-to-back minimally-sized, tightly-fit
	// entries (rec_len == MinRecLen) so no entry has tail slack Link
	// could carve a new entry out of.
	buf := make([]byte, sb.BlockSize())
	reclen := int(MinRecLen(0)) // 8, an exact divisor of the block size
	for offset := 0; offset+reclen <= len(buf); offset += reclen {
		EncodeDirent(buf, &Dirent{Offset: offset, Inode: 1, RecLen: uint16(reclen)}, false)
	}
	require.NoError(t, dev.WriteAt(buf, blk*sb.BlockSize()))

	err = Link(dev, sb, blocks, false, "y", 2, FileTypeRegular)
	assert.ErrorIs(t, err, ErrDirNoSpace)
}

func TestUnlinkMergesIntoPreviousEntry(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	blk, err := NewDirBlock(dev, sb, newCountingAllocator(2), 2, 2, false)
	require.NoError(t, err)
	blocks := []int64{blk}

	require.NoError(t, Link(dev, sb, blocks, false, "target", 99, FileTypeRegular))

	found, err := Unlink(dev, sb, blocks, false, "target")
	require.NoError(t, err)
	assert.True(t, found)

	_, _, found, err = Lookup(dev, sb, blocks, false, "target")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnlinkMissingNameReturnsFalse(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	blk, err := NewDirBlock(dev, sb, newCountingAllocator(2), 2, 2, false)
	require.NoError(t, err)

	found, err := Unlink(dev, sb, []int64{blk}, false, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpandDirAppendsBlockAndGrowsSize(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	blk, err := NewDirBlock(dev, sb, newCountingAllocator(2), 2, 2, false)
	require.NoError(t, err)

	in := &Inode{Mode: ModeDirectory}
	in.Block[0] = uint32(blk)
	in.BlocksLo = uint32(sb.BlockSize() / SectorSize)
	in.SetSize(sb.BlockSize())

	newBlk, err := ExpandDir(dev, sb, in, newCountingAllocator(3))
	require.NoError(t, err)
	assert.NotZero(t, newBlk)
	assert.EqualValues(t, sb.BlockSize()*2, in.Size())
	assert.EqualValues(t, newBlk, in.Block[1])
}

func TestDirIterateVisitsAllBlocksInOrder(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0}
	dev := NewMemDevice(sb.BlockSize() * 8)

	b1, err := NewDirBlock(dev, sb, newCountingAllocator(2), 2, 2, false)
	require.NoError(t, err)
	b2, err := NewBlock(dev, sb, newCountingAllocator(3))
	require.NoError(t, err)

	empty := make([]byte, sb.BlockSize())
	EncodeDirent(empty, &Dirent{Offset: 0, Inode: 0, RecLen: uint16(sb.BlockSize())}, false)
	require.NoError(t, dev.WriteAt(empty, b2*sb.BlockSize()))

	var blockIdxs []int
	err = DirIterate(dev, sb, []int64{b1, b2}, false, func(bi int, block []byte, d *Dirent) (bool, error) {
		blockIdxs = append(blockIdxs, bi)
		return true, nil
	})
	require.NoError(t, err)
	assert.Contains(t, blockIdxs, 0)
}
