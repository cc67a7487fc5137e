package ondisk

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrDirNoSpace mirrors EXT2_ET_DIR_NO_SPACE: a directory's existing
// blocks have no free rec_len for a new entry and it must be expanded
// (§4.4 reconnect procedure) before Link is retried.
var ErrDirNoSpace = errors.New("directory has no space for new entry")

// BlockAllocator hands out one free block number at a time; the
// engine supplies an implementation backed by its in-core
// block_found_map so every allocation this package makes is
// immediately visible to the rest of the pass (§4.9 bookkeeping).
type BlockAllocator func() (block int64, ok bool)

// InodeAllocator hands out one free inode number at a time, backed by
// the engine's inode_used bitmap.
type InodeAllocator func() (inode int64, ok bool)

// ErrNoSpace is returned when an allocator is exhausted.
var ErrNoSpace = errors.New("no free block or inode available")

// ZeroBlock writes a block of zero bytes at blockNum.
func ZeroBlock(dev Device, sb *Superblock, blockNum int64) error {
	return dev.WriteAt(make([]byte, sb.BlockSize()), blockNum*sb.BlockSize())
}

// NewBlock allocates and zeroes a fresh block.
func NewBlock(dev Device, sb *Superblock, alloc BlockAllocator) (int64, error) {
	blk, ok := alloc()
	if !ok {
		return 0, ErrNoSpace
	}
	if err := ZeroBlock(dev, sb, blk); err != nil {
		return 0, err
	}
	return blk, nil
}

// NewDirBlock allocates a block and initializes it as an empty
// directory block containing only '.' and '..', the shape pass3's
// root and lost+found creation need.
func NewDirBlock(dev Device, sb *Superblock, alloc BlockAllocator, selfIno, parentIno uint32, hasFiletype bool) (int64, error) {
	blk, err := NewBlock(dev, sb, alloc)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, sb.BlockSize())
	writeDotEntries(buf, selfIno, parentIno, hasFiletype)

	if err := dev.WriteAt(buf, blk*sb.BlockSize()); err != nil {
		return 0, err
	}
	return blk, nil
}

// writeDotEntries lays out '.' as a 12-byte entry followed by '..'
// occupying the rest of the block, matching pass2's synthesized-dot
// layout (§4.3 item 4).
func writeDotEntries(block []byte, selfIno, parentIno uint32, hasFiletype bool) {
	dot := &Dirent{Offset: 0, Inode: selfIno, RecLen: 12, NameLen: 1, Name: "."}
	if hasFiletype {
		dot.FileType = FileTypeDir
	}
	EncodeDirent(block, dot, hasFiletype)

	dotdot := &Dirent{Offset: 12, Inode: parentIno, RecLen: uint16(len(block) - 12), NameLen: 2, Name: ".."}
	if hasFiletype {
		dotdot.FileType = FileTypeDir
	}
	EncodeDirent(block, dotdot, hasFiletype)
}

// NewInode allocates a fresh inode number, leaving the caller to fill
// in and write the Inode record itself.
func NewInode(alloc InodeAllocator) (int64, error) {
	ino, ok := alloc()
	if !ok {
		return 0, ErrNoSpace
	}
	return ino, nil
}

// AppendBlockToInode stores blockNum as the next logical block of in,
// using the first free direct slot or, failing that, the first free
// slot of the single-indirect block (allocating the indirect block
// itself via alloc if needed). This covers the expand-dir scenarios
// pass3 triggers in practice (lost+found and small reconnected
// directories); deeper (double/triple-indirect) growth is out of
// scope for in-place expansion and returns an error instead of
// silently doing the wrong thing.
func AppendBlockToInode(dev Device, sb *Superblock, in *Inode, blockNum int64, alloc BlockAllocator) error {
	for i := 0; i < DirectBlocks; i++ {
		if in.Block[i] == 0 {
			in.Block[i] = uint32(blockNum)
			in.BlocksLo += uint32(sb.BlockSize() / SectorSize)
			return nil
		}
	}

	if in.Block[IndBlockIdx] == 0 {
		indBlk, err := NewBlock(dev, sb, alloc)
		if err != nil {
			return err
		}
		in.Block[IndBlockIdx] = uint32(indBlk)
		in.BlocksLo += uint32(sb.BlockSize() / SectorSize)
	}

	buf := make([]byte, sb.BlockSize())
	indOff := int64(in.Block[IndBlockIdx]) * sb.BlockSize()
	if err := dev.ReadAt(buf, indOff); err != nil {
		return errors.Wrap(err, "reading indirect block")
	}

	ppb := int(sb.BlockSize() / 4)
	for i := 0; i < ppb; i++ {
		if binary.LittleEndian.Uint32(buf[i*4:]) == 0 {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(blockNum))
			if err := dev.WriteAt(buf, indOff); err != nil {
				return err
			}
			in.BlocksLo += uint32(sb.BlockSize() / SectorSize)
			return nil
		}
	}

	return errors.New("single-indirect block is full; deeper expansion unsupported")
}

// SectorSize is the fixed 512-byte unit i_blocks is expressed in (§3).
const SectorSize = 512

// DirBlockList reads every direct/indirect-resident block number for a
// directory inode, in logical order, skipping holes. It does not
// support extent-mapped directories with index depth > 0 beyond what
// IterateBlocks already walks.
func DirBlockList(dev Device, sb *Superblock, in *Inode) ([]int64, error) {
	var blocks []int64
	err := IterateBlocks(dev, sb, in, IterateOptions{}, func(ref *BlockRef, depth int, logicalIndex int64, metadata bool) (Action, error) {
		if !metadata {
			blocks = append(blocks, int64(ref.Get()))
		}
		return ActionContinue, nil
	})
	return blocks, err
}

// DirIterate walks every directory entry across blocks in order,
// reading each block once.
func DirIterate(dev Device, sb *Superblock, blocks []int64, hasFiletype bool, fn func(blockIdx int, block []byte, d *Dirent) (bool, error)) error {
	for bi, blk := range blocks {
		buf := make([]byte, sb.BlockSize())
		if blk != 0 {
			if err := dev.ReadAt(buf, blk*sb.BlockSize()); err != nil {
				return errors.Wrapf(err, "reading directory block %d", blk)
			}
		}

		keepGoing := true
		err := IterateDirents(buf, hasFiletype, func(d *Dirent) (bool, error) {
			kg, err := fn(bi, buf, d)
			keepGoing = kg
			return kg, err
		})
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

// Lookup finds name among a directory's entries, returning its inode
// number and file-type hint.
func Lookup(dev Device, sb *Superblock, blocks []int64, hasFiletype bool, name string) (ino uint32, fileType uint8, found bool, err error) {
	err = DirIterate(dev, sb, blocks, hasFiletype, func(_ int, _ []byte, d *Dirent) (bool, error) {
		if d.Inode != 0 && d.Name == name {
			ino, fileType, found = d.Inode, d.FileType, true
			return false, nil
		}
		return true, nil
	})
	return
}

// Link inserts a new (name -> ino) entry into the first block with
// enough free rec_len, splitting an existing entry's tail space the
// way the on-disk codec's ext2fs_link does. Returns ErrDirNoSpace if
// no existing block has room; the caller (pass3's reconnect
// procedure) then calls ExpandDir and retries once.
func Link(dev Device, sb *Superblock, blocks []int64, hasFiletype bool, name string, ino uint32, fileType uint8) error {
	need := MinRecLen(len(name))

	for _, blk := range blocks {
		if blk == 0 {
			continue
		}
		buf := make([]byte, sb.BlockSize())
		if err := dev.ReadAt(buf, blk*sb.BlockSize()); err != nil {
			return errors.Wrapf(err, "reading directory block %d", blk)
		}

		changed := false
		err := IterateDirents(buf, hasFiletype, func(d *Dirent) (bool, error) {
			var used uint16
			if d.Inode != 0 {
				used = MinRecLen(len(d.Name))
			}
			free := d.RecLen - used

			if free < need {
				return true, nil
			}

			newEntry := &Dirent{
				Offset:   d.Offset + int(used),
				Inode:    ino,
				RecLen:   d.RecLen - used,
				NameLen:  uint8(len(name)),
				FileType: fileType,
				Name:     name,
			}

			if d.Inode != 0 {
				d.RecLen = used
				EncodeDirent(buf, d, hasFiletype)
			}
			EncodeDirent(buf, newEntry, hasFiletype)
			changed = true
			return false, nil
		})
		if err != nil {
			return err
		}

		if changed {
			return dev.WriteAt(buf, blk*sb.BlockSize())
		}
	}

	return ErrDirNoSpace
}

// Unlink zeroes the inode field of the entry named name, merging its
// rec_len into the preceding entry so the block stays well-formed.
func Unlink(dev Device, sb *Superblock, blocks []int64, hasFiletype bool, name string) (found bool, err error) {
	for _, blk := range blocks {
		if blk == 0 {
			continue
		}
		buf := make([]byte, sb.BlockSize())
		if err := dev.ReadAt(buf, blk*sb.BlockSize()); err != nil {
			return false, errors.Wrapf(err, "reading directory block %d", blk)
		}

		var prev *Dirent
		changed := false
		err := IterateDirents(buf, hasFiletype, func(d *Dirent) (bool, error) {
			if d.Inode != 0 && d.Name == name {
				if prev != nil {
					prev.RecLen += d.RecLen
					EncodeDirent(buf, prev, hasFiletype)
				} else {
					d.Inode = 0
					d.NameLen = 0
					d.FileType = 0
					EncodeDirent(buf, d, hasFiletype)
				}
				changed = true
				return false, nil
			}
			cp := *d
			prev = &cp
			return true, nil
		})
		if err != nil {
			return false, err
		}
		if changed {
			found = true
			return found, dev.WriteAt(buf, blk*sb.BlockSize())
		}
	}
	return false, nil
}

// ExpandDir appends one freshly allocated, empty (all-free) block to
// a directory inode and returns its block number so the caller can
// retry Link.
func ExpandDir(dev Device, sb *Superblock, in *Inode, alloc BlockAllocator) (int64, error) {
	blk, err := NewBlock(dev, sb, alloc)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, sb.BlockSize())
	free := &Dirent{Offset: 0, Inode: 0, RecLen: uint16(sb.BlockSize()), NameLen: 0}
	EncodeDirent(buf, free, false)
	if err := dev.WriteAt(buf, blk*sb.BlockSize()); err != nil {
		return 0, err
	}

	if err := AppendBlockToInode(dev, sb, in, blk, alloc); err != nil {
		return 0, err
	}

	in.SetSize(in.Size() + sb.BlockSize())
	return blk, nil
}
