package ondisk

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// GroupDescriptor is one block group's descriptor record (§3).
type GroupDescriptor struct {
	BlockBitmapAddr uint32
	InodeBitmapAddr uint32
	InodeTableAddr  uint32
	FreeBlocks      uint16
	FreeInodes      uint16
	Directories     uint16
	Flags           uint16
	_               uint32
	_, _            uint16
	UnusedInodes    uint16
	_               uint16
}

// ValidateWithin checks the invariant that a group descriptor's
// bitmap/table locations lie within the group's own block range.
func (g *GroupDescriptor) ValidateWithin(groupFirstBlock, groupLastBlock int64) error {
	for _, addr := range []uint32{g.BlockBitmapAddr, g.InodeBitmapAddr, g.InodeTableAddr} {
		a := int64(addr)
		if a < groupFirstBlock || a > groupLastBlock {
			return errors.Errorf("group descriptor location %d outside group range [%d,%d]", a, groupFirstBlock, groupLastBlock)
		}
	}
	return nil
}

// groupDescTableOffset returns the byte offset of the group
// descriptor table, immediately after the block containing the
// superblock (§6).
func groupDescTableOffset(sb *Superblock) int64 {
	bs := sb.BlockSize()
	return ((SuperblockOffset / bs) + 1) * bs
}

// ReadGroupDescriptors reads the full group descriptor array following sb.
func ReadGroupDescriptors(dev Device, sb *Superblock) ([]GroupDescriptor, error) {
	n := sb.GroupCount()
	buf := make([]byte, n*GroupDescSize)
	if err := dev.ReadAt(buf, groupDescTableOffset(sb)); err != nil {
		return nil, errors.Wrap(err, "reading group descriptor table")
	}

	descs := make([]GroupDescriptor, n)
	r := bytes.NewReader(buf)
	for i := range descs {
		if err := binary.Read(r, binary.LittleEndian, &descs[i]); err != nil {
			return nil, errors.Wrap(err, "decoding group descriptor")
		}
	}
	return descs, nil
}

// WriteGroupDescriptors writes the full group descriptor array back.
func WriteGroupDescriptors(dev Device, sb *Superblock, descs []GroupDescriptor) error {
	buf := new(bytes.Buffer)
	for i := range descs {
		if err := binary.Write(buf, binary.LittleEndian, &descs[i]); err != nil {
			return errors.Wrap(err, "encoding group descriptor")
		}
	}
	return dev.WriteAt(buf.Bytes(), groupDescTableOffset(sb))
}

// GroupBlockRange returns [first, last] block numbers belonging to group g.
func GroupBlockRange(sb *Superblock, g int64) (first, last int64) {
	first = int64(sb.FirstDataBlock) + g*int64(sb.BlocksPerGroup)
	last = first + int64(sb.BlocksPerGroup) - 1
	if last >= int64(sb.TotalBlocks) {
		last = int64(sb.TotalBlocks) - 1
	}
	return
}
