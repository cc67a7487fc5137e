package engine

import (
	"sort"
	"unicode"

	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// RunPass2 is the directory-structure check of spec.md §4.3: it
// revisits every directory block pass1 recorded, validates '.'/'..'
// placement, salvages corrupted entries, and cross-checks each entry's
// inode and filetype hint. Directory holes are not filled: pass1
// records only allocated directory blocks, so pass2 never visits one.
func RunPass2(ctx *Context) error {
	byInode := groupDirBlocksByInode(ctx.DirBlocks)

	order := make([]int64, 0, len(byInode))
	for ino := range byInode {
		order = append(order, ino)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	prog := ctx.View.NewProgress("pass2", int64(len(order)))
	defer prog.Finish()

	hasFT := ctx.SB.HasFeatureIncompat(ondisk.IncompatFiletype)

	for _, ino := range order {
		prog.Increment(1)
		if err := checkDirectory(ctx, ino, byInode[ino], hasFT); err != nil {
			return errors.Wrapf(err, "pass2: inode %d", ino)
		}
	}

	return nil
}

func groupDirBlocksByInode(refs []DirBlockRef) map[int64][]DirBlockRef {
	out := make(map[int64][]DirBlockRef)
	for _, r := range refs {
		out[r.Ino] = append(out[r.Ino], r)
	}
	for ino := range out {
		sort.Slice(out[ino], func(i, j int) bool { return out[ino][i].LogBlock < out[ino][j].LogBlock })
	}
	return out
}

func checkDirectory(ctx *Context, ino int64, blockRefs []DirBlockRef, hasFT bool) error {
	in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ino)
	if err != nil {
		return err
	}

	blocks := make([]int64, len(blockRefs))
	for i, r := range blockRefs {
		blocks[i] = r.PhysBlock
	}

	sawDot, sawDotDot := false, false
	dotDotTarget := int64(-1)

	for bi, blk := range blocks {
		buf := make([]byte, ctx.SB.BlockSize())
		if err := ctx.Device.ReadAt(buf, blk*ctx.SB.BlockSize()); err != nil {
			return err
		}

		dirty := false
		salvaged, err := walkOrSalvage(ctx, ino, blk, buf, hasFT, func(d *ondisk.Dirent) (bool, error) {
			if d.Inode == 0 {
				return true, nil
			}

			if bi == 0 && d.Offset == 0 {
				sawDot = true
				if d.Name == "." && int64(d.Inode) != ino {
					if ctx.Fix(problem.Code("PR_2_LINK_DOT"), &problem.Context{Ino: ino}) {
						d.Inode = uint32(ino)
						ondisk.EncodeDirent(buf, d, hasFT)
						dirty = true
					}
				}
				ctx.LinkCounted.Increment(int64(d.Inode))
				return true, nil
			}
			if bi == 0 && d.Name == ".." {
				sawDotDot = true
				dotDotTarget = int64(d.Inode)
				if int64(d.Inode) == ino {
					if ctx.Fix(problem.Code("PR_2_LINK_DOT_DOT"), &problem.Context{Ino: ino}) {
						d.Inode = uint32(ondisk.RootInode)
						ondisk.EncodeDirent(buf, d, hasFT)
						dirty = true
					}
				}
				ctx.LinkCounted.Increment(int64(d.Inode))
				return true, nil
			}

			ok, err := validateEntry(ctx, ino, blk, buf, d, hasFT)
			if err != nil {
				return false, err
			}
			if !ok {
				dirty = true
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		if salvaged {
			dirty = true
			if dxEntry, found := ctx.DxDirInfo.Get(ino); found {
				dxEntry.Dirty = true
			}
		}

		if dirty {
			if err := ctx.Device.WriteAt(buf, blk*ctx.SB.BlockSize()); err != nil {
				return err
			}
		}
	}

	if !sawDot {
		if ctx.Fix(problem.Code("PR_2_MISSING_DOT"), &problem.Context{Ino: ino}) {
			if err := synthesizeDot(ctx, ino, blocks[0], hasFT, true); err != nil {
				return err
			}
		}
	}
	if !sawDotDot {
		if ctx.Fix(problem.Code("PR_2_MISSING_DOT_DOT"), &problem.Context{Ino: ino}) {
			if err := synthesizeDot(ctx, ino, blocks[0], hasFT, false); err != nil {
				return err
			}
		}
	} else if dotDotTarget >= 0 {
		ctx.DirInfo.SetParent(ino, dotDotTarget)
	}

	return ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in)
}

// walkOrSalvage iterates dirents in buf; a decode error triggers the
// salvage prompt and truncates the block to what parsed cleanly,
// matching §4.3's "found a corrupt entry" behavior: the corrupt entry
// and everything after it become one free entry running to the end of
// the block (the whole block, if fewer than 8 bytes remain there).
func walkOrSalvage(ctx *Context, ino, blk int64, buf []byte, hasFT bool, fn func(d *ondisk.Dirent) (bool, error)) (salvaged bool, err error) {
	next := 0 // offset just past the last entry that parsed cleanly
	err = ondisk.IterateDirents(buf, hasFT, func(d *ondisk.Dirent) (bool, error) {
		next = d.Offset + int(d.RecLen)
		return fn(d)
	})
	if err == nil {
		return false, nil
	}

	if ctx.Fix(problem.Code("PR_2_DIR_CORRUPTED"), &problem.Context{Ino: ino, Blk: blk}) {
		if len(buf)-next < ondisk.DirentHeaderSize {
			next = 0
		}
		salvageBlock(buf[next:])
		return true, nil
	}
	return false, err
}

// salvageBlock rewrites buf (a whole block, or the tail of one) as a
// single free entry spanning all of it, the simplest recoverable state
// once an entry's rec_len can't be trusted.
func salvageBlock(buf []byte) {
	free := &ondisk.Dirent{Offset: 0, Inode: 0, RecLen: uint16(len(buf)), NameLen: 0}
	ondisk.EncodeDirent(buf, free, false)
}

func validateEntry(ctx *Context, parentIno, blk int64, buf []byte, d *ondisk.Dirent, hasFT bool) (ok bool, err error) {
	ok = true

	if d.NameLen == 0 {
		if ctx.Fix(problem.Code("PR_2_NULL_NAME"), &problem.Context{Ino: parentIno}) {
			clearDirent(buf, d, hasFT)
			return false, nil
		}
	}

	if len(d.Name) > 255 {
		if ctx.Fix(problem.Code("PR_2_FILENAME_LONG"), &problem.Context{Ino: parentIno, Str: d.Name, Num: 255}) {
			d.Name = d.Name[:255]
			d.NameLen = 255
			ondisk.EncodeDirent(buf, d, hasFT)
			ok = false
		}
	}

	if hasIllegalChars(d.Name) {
		if ctx.Fix(problem.Code("PR_2_BAD_NAME"), &problem.Context{Ino: parentIno, Str: d.Name}) {
			clearDirent(buf, d, hasFT)
			return false, nil
		}
	}

	if int64(d.Inode) == ondisk.RootInode {
		if ctx.Fix(problem.Code("PR_2_LINK_ROOT"), &problem.Context{Ino: parentIno, Str: d.Name}) {
			clearDirent(buf, d, hasFT)
			return false, nil
		}
	}

	if !ctx.InodeUsed.Test(int64(d.Inode)) || int64(d.Inode) > int64(ctx.SB.TotalInodes) {
		if ctx.Fix(problem.Code("PR_2_UNUSED_INODE"), &problem.Context{Ino: parentIno, Str: d.Name, Num: int64(d.Inode)}) {
			clearDirent(buf, d, hasFT)
			return false, nil
		}
	}

	if ctx.InodeBad.Test(int64(d.Inode)) {
		if ctx.Fix(problem.Code("PR_2_DEALLOC_INODE"), &problem.Context{Ino: int64(d.Inode)}) {
			clearDirent(buf, d, hasFT)
			return false, nil
		}
	}

	expectFT := inodeFileType(ctx, int64(d.Inode))
	if hasFT && d.FileType != expectFT {
		if ctx.Fix(problem.Code("PR_2_BAD_FILETYPE"), &problem.Context{Ino: parentIno, Str: d.Name}) {
			d.FileType = expectFT
			ondisk.EncodeDirent(buf, d, hasFT)
			ok = false
		}
	} else if !hasFT && d.FileType != 0 {
		if ctx.Fix(problem.Code("PR_2_SET_FILETYPE"), &problem.Context{Ino: parentIno, Str: d.Name}) {
			d.FileType = 0
			ondisk.EncodeDirent(buf, d, hasFT)
			ok = false
		}
	}

	ctx.LinkCounted.Increment(int64(d.Inode))

	if ctx.InodeDir.Test(int64(d.Inode)) {
		if entry, found := ctx.DirInfo.Get(int64(d.Inode)); found && entry.Parent != -1 && entry.Parent != parentIno {
			if ctx.Fix(problem.Code("PR_2_LINK_DIR"), &problem.Context{Ino: int64(d.Inode), BlkCount: int64(d.Offset)}) {
				clearDirent(buf, d, hasFT)
				return false, nil
			}
		}
		ctx.DirInfo.SetParent(int64(d.Inode), parentIno)
	}

	return ok, nil
}

func clearDirent(buf []byte, d *ondisk.Dirent, hasFT bool) {
	d.Inode = 0
	d.NameLen = 0
	d.FileType = 0
	d.Name = ""
	ondisk.EncodeDirent(buf, d, hasFT)
}

func hasIllegalChars(name string) bool {
	for _, r := range name {
		if r == 0 || r == '/' || unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func inodeFileType(ctx *Context, ino int64) uint8 {
	in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ino)
	if err != nil {
		return ondisk.FileTypeUnknown
	}
	return in.FileType()
}

// synthesizeDot writes a missing '.' or '..' entry into the directory's
// first block, shrinking the block's first entry to make room the way
// NewDirBlock lays out a fresh block (§4.3 item 4).
func synthesizeDot(ctx *Context, ino, firstBlock int64, hasFT bool, dot bool) error {
	buf := make([]byte, ctx.SB.BlockSize())
	if err := ctx.Device.ReadAt(buf, firstBlock*ctx.SB.BlockSize()); err != nil {
		return err
	}

	name := "."
	recLen := uint16(12)
	target := uint32(ino)
	offset := 0
	if !dot {
		name = ".."
		entry, found := ctx.DirInfo.Get(ino)
		if found && entry.Parent > 0 {
			target = uint32(entry.Parent)
		} else {
			target = ondisk.RootInode
		}
		offset = 12
	}

	d := &ondisk.Dirent{Offset: offset, Inode: target, RecLen: recLen, NameLen: uint8(len(name)), Name: name}
	if hasFT {
		d.FileType = ondisk.FileTypeDir
	}
	ondisk.EncodeDirent(buf, d, hasFT)

	return ctx.Device.WriteAt(buf, firstBlock*ctx.SB.BlockSize())
}
