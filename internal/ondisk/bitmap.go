package ondisk

import (
	"github.com/pkg/errors"
)

// Bitmap is a simple bit-indexed set, used both for the on-disk
// block/inode-used bitmaps (read and written verbatim) and for the
// in-core computed bitmaps pass1 builds (block_found_map, inode_used,
// inode_dir, inode_bad, ...). Bit 0 corresponds to the lowest member
// of whatever range the caller has decided the bitmap covers.
type Bitmap struct {
	bits []uint64
	n    int64
}

// NewBitmap allocates a zeroed bitmap covering n bits.
func NewBitmap(n int64) *Bitmap {
	return &Bitmap{bits: make([]uint64, (n+63)/64), n: n}
}

// Len returns the number of addressable bits.
func (b *Bitmap) Len() int64 { return b.n }

// Test reports whether bit i is set.
func (b *Bitmap) Test(i int64) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.bits[i/64]&(1<<uint(i%64)) != 0
}

// Set marks bit i used.
func (b *Bitmap) Set(i int64) {
	if i < 0 || i >= b.n {
		return
	}
	b.bits[i/64] |= 1 << uint(i%64)
}

// Clear marks bit i unused.
func (b *Bitmap) Clear(i int64) {
	if i < 0 || i >= b.n {
		return
	}
	b.bits[i/64] &^= 1 << uint(i%64)
}

// Popcount returns the number of set bits in [0,n).
func (b *Bitmap) Popcount() int64 {
	var c int64
	for i, w := range b.bits {
		// mask off any padding bits in the final word
		if int64(i) == b.n/64 {
			rem := uint(b.n % 64)
			if rem != 0 {
				w &= (1 << rem) - 1
			} else if int64(i)*64 >= b.n {
				w = 0
			}
		}
		c += int64(popcount64(w))
	}
	return c
}

// FirstClear returns the lowest-numbered clear bit at or above start,
// or -1 if none exists within the bitmap.
func (b *Bitmap) FirstClear(start int64) int64 {
	for i := start; i < b.n; i++ {
		if !b.Test(i) {
			return i
		}
	}
	return -1
}

func popcount64(x uint64) int {
	var c int
	for x != 0 {
		x &= x - 1
		c++
	}
	return c
}

// ReadBlockBitmap reads group g's block-usage bitmap into a Bitmap
// covering exactly sb.BlocksPerGroup bits (padding bits beyond
// TotalBlocks in the last group are preserved as read).
func ReadBlockBitmap(dev Device, sb *Superblock, descs []GroupDescriptor, g int64) (*Bitmap, error) {
	return readRawBitmap(dev, int64(descs[g].BlockBitmapAddr)*sb.BlockSize(), int64(sb.BlocksPerGroup), sb.BlockSize())
}

// WriteBlockBitmap writes bm back as group g's block-usage bitmap.
func WriteBlockBitmap(dev Device, sb *Superblock, descs []GroupDescriptor, g int64, bm *Bitmap) error {
	return writeRawBitmap(dev, int64(descs[g].BlockBitmapAddr)*sb.BlockSize(), bm, sb.BlockSize())
}

// ReadInodeBitmap reads group g's inode-usage bitmap.
func ReadInodeBitmap(dev Device, sb *Superblock, descs []GroupDescriptor, g int64) (*Bitmap, error) {
	return readRawBitmap(dev, int64(descs[g].InodeBitmapAddr)*sb.BlockSize(), int64(sb.InodesPerGroup), sb.BlockSize())
}

// WriteInodeBitmap writes bm back as group g's inode-usage bitmap.
func WriteInodeBitmap(dev Device, sb *Superblock, descs []GroupDescriptor, g int64, bm *Bitmap) error {
	return writeRawBitmap(dev, int64(descs[g].InodeBitmapAddr)*sb.BlockSize(), bm, sb.BlockSize())
}

func readRawBitmap(dev Device, offset, nbits, blockSize int64) (*Bitmap, error) {
	buf := make([]byte, blockSize)
	if err := dev.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrap(err, "reading bitmap block")
	}

	bm := NewBitmap(nbits)
	for i := int64(0); i < nbits; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		if buf[byteIdx]&(1<<bitIdx) != 0 {
			bm.Set(i)
		}
	}
	return bm, nil
}

func writeRawBitmap(dev Device, offset int64, bm *Bitmap, blockSize int64) error {
	buf := make([]byte, blockSize)
	for i := int64(0); i < bm.Len(); i++ {
		if bm.Test(i) {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	// bits beyond the bitmap's own range, up to the end of the block,
	// must read back as used (§4.6 padding invariant).
	for i := bm.Len(); i < blockSize*8; i++ {
		buf[i/8] |= 1 << uint(i%8)
	}
	return dev.WriteAt(buf, offset)
}
