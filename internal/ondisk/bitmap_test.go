package ondisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapSetClearTest(t *testing.T) {
	bm := NewBitmap(100)
	assert.False(t, bm.Test(5))

	bm.Set(5)
	assert.True(t, bm.Test(5))

	bm.Clear(5)
	assert.False(t, bm.Test(5))
}

func TestBitmapOutOfRangeIsNoop(t *testing.T) {
	bm := NewBitmap(10)
	bm.Set(-1)
	bm.Set(10)
	assert.False(t, bm.Test(-1))
	assert.False(t, bm.Test(10))
}

func TestBitmapPopcount(t *testing.T) {
	bm := NewBitmap(130)
	for _, i := range []int64{0, 1, 63, 64, 65, 129} {
		bm.Set(i)
	}
	assert.EqualValues(t, 6, bm.Popcount())
}

func TestBitmapPopcountIgnoresTrailingWordPastN(t *testing.T) {
	bm := NewBitmap(65)
	bm.Set(64)
	assert.EqualValues(t, 1, bm.Popcount())
}

func TestBitmapFirstClear(t *testing.T) {
	bm := NewBitmap(10)
	for i := int64(0); i < 5; i++ {
		bm.Set(i)
	}
	assert.EqualValues(t, 5, bm.FirstClear(0))
	assert.EqualValues(t, -1, bm.FirstClear(10))
}

func TestReadWriteBlockBitmapRoundTrip(t *testing.T) {
	sb := &Superblock{LogBlockSize: 2, BlocksPerGroup: 32}
	groups := []GroupDescriptor{{BlockBitmapAddr: 1}}
	dev := NewMemDevice(int64(sb.BlockSize()) * 4)

	bm := NewBitmap(int64(sb.BlocksPerGroup))
	bm.Set(0)
	bm.Set(3)
	bm.Set(31)

	require.NoError(t, WriteBlockBitmap(dev, sb, groups, 0, bm))

	got, err := ReadBlockBitmap(dev, sb, groups, 0)
	require.NoError(t, err)

	for i := int64(0); i < 32; i++ {
		assert.Equal(t, bm.Test(i), got.Test(i), "bit %d", i)
	}
}
