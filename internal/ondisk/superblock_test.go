package ondisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockBlockSizeFromLog(t *testing.T) {
	sb := &Superblock{LogBlockSize: 2}
	assert.EqualValues(t, 4096, sb.BlockSize())
}

func TestSuperblockInodesPerBlockDefaultsSize(t *testing.T) {
	sb := &Superblock{LogBlockSize: 0, InodeSize: 0}
	assert.EqualValues(t, sb.BlockSize()/DefaultInodeSize, sb.InodesPerBlock())
}

func TestSuperblockGroupCount(t *testing.T) {
	sb := &Superblock{FirstDataBlock: 1, TotalBlocks: 8193, BlocksPerGroup: 8192}
	assert.EqualValues(t, 1, sb.GroupCount())
}

func TestSuperblockFeatureFlagChecks(t *testing.T) {
	sb := &Superblock{FeatureCompat: 0x3, FeatureIncompat: 0x1}
	assert.True(t, sb.HasFeatureCompat(0x1))
	assert.True(t, sb.HasFeatureCompat(0x3))
	assert.False(t, sb.HasFeatureCompat(0x4))
	assert.True(t, sb.HasFeatureIncompat(0x1))
	assert.False(t, sb.HasFeatureIncompat(0x2))
}

func TestSuperblockValidRejectsBadSignature(t *testing.T) {
	sb := &Superblock{Signature: 0, TotalBlocks: 100, FirstDataBlock: 1}
	assert.Error(t, sb.Valid())
}

func TestSuperblockValidRejectsFirstDataBlockOutOfRange(t *testing.T) {
	sb := &Superblock{Signature: Signature, TotalBlocks: 100, FirstDataBlock: 100}
	assert.Error(t, sb.Valid())
}

func TestSuperblockValidAccepts(t *testing.T) {
	sb := &Superblock{Signature: Signature, TotalBlocks: 100, FirstDataBlock: 1}
	assert.NoError(t, sb.Valid())
}

func TestReadWriteSuperblockRoundTrip(t *testing.T) {
	dev := NewMemDevice(1024 * 1024)
	want := &Superblock{
		Signature:      Signature,
		TotalBlocks:    4096,
		FirstDataBlock: 1,
		LogBlockSize:   2,
		BlocksPerGroup: 4096,
		InodeSize:      128,
	}
	require.NoError(t, WriteSuperblock(dev, want, 0))

	got, err := ReadSuperblock(dev, 0)
	require.NoError(t, err)
	assert.Equal(t, want.TotalBlocks, got.TotalBlocks)
	assert.Equal(t, want.LogBlockSize, got.LogBlockSize)
}
