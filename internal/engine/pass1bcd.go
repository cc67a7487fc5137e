package engine

import (
	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// RunPass1BCD resolves every duplicate-block claim pass1 recorded
// (spec.md §4.2's "1B/1C/1D" sub-passes): 1B finds which blocks are
// shared, 1C finds the owning files' pathnames by re-scanning
// directories, 1D offers to clone or delete each offending file.
// Filesystems with no duplicate claims skip this entirely.
func RunPass1BCD(ctx *Context) error {
	dupBlocks := ctx.DupRegistry.DuplicatedBlocks()
	if len(dupBlocks) == 0 {
		return nil
	}

	ctx.View.Infof("pass1b: %d duplicate blocks found", len(dupBlocks))

	for _, ino := range ctx.DupRegistry.Inodes() {
		if !ctx.InodeDup.Test(ino) {
			continue
		}

		ctx.Fix(problem.Code("PR_1B_DUP_BLOCK"), &problem.Context{Ino: ino})

		path := findPathTo(ctx, ino)
		dupCount := countDupBlocks(ctx, ino)
		owners := sharedWith(ctx, ino)

		ctx.Fix(problem.Code("PR_1D_DUP_FILE"), &problem.Context{
			Ino:     ino,
			Str:     path,
			Num:     int64(len(owners)),
			BlkCount: int64(dupCount),
		})

		if ctx.Fix(problem.Code("PR_1D_CLONE_QUESTION"), &problem.Context{Ino: ino}) {
			if err := cloneInode(ctx, ino); err != nil {
				return errors.Wrapf(err, "pass1d: cloning inode %d", ino)
			}
			continue
		}

		if ctx.Fix(problem.Code("PR_1D_DELETE_QUESTION"), &problem.Context{Ino: ino}) {
			if err := deleteInode(ctx, ino); err != nil {
				return errors.Wrapf(err, "pass1d: deleting inode %d", ino)
			}
		}
	}

	return nil
}

// findPathTo does a best-effort directory search for a name pointing
// at ino, used only to make PR_1D_DUP_FILE's message readable; a
// failed search falls back to "???" the way the reference does when
// get_pathname can't resolve a dangling link.
func findPathTo(ctx *Context, ino int64) string {
	var found string
	ctx.DirInfo.Iterate(func(e DirInfoEntry) {
		if found != "" {
			return
		}
		in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, e.Ino)
		if err != nil || !in.IsDir() {
			return
		}
		blocks, err := ondisk.DirBlockList(ctx.Device, ctx.SB, in)
		if err != nil {
			return
		}
		hasFT := ctx.SB.HasFeatureIncompat(ondisk.IncompatFiletype)
		_ = ondisk.DirIterate(ctx.Device, ctx.SB, blocks, hasFT, func(_ int, _ []byte, d *ondisk.Dirent) (bool, error) {
			if int64(d.Inode) == ino {
				found = d.Name
				return false, nil
			}
			return true, nil
		})
	})
	if found == "" {
		return "???"
	}
	return found
}

func countDupBlocks(ctx *Context, ino int64) int {
	n := 0
	for _, blk := range ctx.DupRegistry.InodeBlocks(ino) {
		if ctx.BlockDup.Test(blk) {
			n++
		}
	}
	return n
}

func sharedWith(ctx *Context, ino int64) []int64 {
	seen := make(map[int64]bool)
	for _, blk := range ctx.DupRegistry.InodeBlocks(ino) {
		if !ctx.BlockDup.Test(blk) {
			continue
		}
		for _, owner := range ctx.DupRegistry.BlockOwners(blk) {
			if owner.Ino != ino {
				seen[owner.Ino] = true
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	return out
}

// cloneInode gives ino a private copy of every block it shares with
// another owner, so the duplication is resolved without deleting
// either file. Extent-mapped leaf blocks cannot be relocated (see
// ondisk.BlockRef's documented limitation on extent leaves) and are
// left shared, matching the reference's own limitation for files it
// cannot safely split.
func cloneInode(ctx *Context, ino int64) error {
	in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ino)
	if err != nil {
		return err
	}

	alloc := ctx.blockAllocator()

	err = ondisk.IterateBlocks(ctx.Device, ctx.SB, in, ondisk.IterateOptions{}, func(ref *ondisk.BlockRef, depth int, logicalIndex int64, metadata bool) (ondisk.Action, error) {
		blk := int64(ref.Get())
		if blk == 0 || !ctx.BlockDup.Test(blk) {
			return ondisk.ActionContinue, nil
		}

		newBlk, ok := alloc()
		if !ok {
			return ondisk.ActionAbort, ErrAllocExhausted
		}

		buf := make([]byte, ctx.SB.BlockSize())
		if err := ctx.Device.ReadAt(buf, blk*ctx.SB.BlockSize()); err != nil {
			return ondisk.ActionAbort, err
		}
		if err := ctx.Device.WriteAt(buf, newBlk*ctx.SB.BlockSize()); err != nil {
			return ondisk.ActionAbort, err
		}

		ref.Set(uint32(newBlk))
		ctx.BlockFound.Set(newBlk)
		return ondisk.ActionContinue, nil
	})
	if err != nil {
		return err
	}

	ctx.InodeDup.Clear(ino)
	return ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in)
}

// deleteInode frees ino outright (the PR_1D_DELETE_QUESTION answer),
// relying on pass4 to notice its now-zero reference count is already
// satisfied since the inode itself is cleared here.
func deleteInode(ctx *Context, ino int64) error {
	in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ino)
	if err != nil {
		return err
	}
	clearInode(ctx, ino, in)
	ctx.InodeDup.Clear(ino)
	return ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in)
}

// ErrAllocExhausted signals a clone operation ran out of free blocks
// partway through.
var ErrAllocExhausted = errors.New("no free blocks remaining to clone duplicate blocks")

// blockAllocator returns a BlockAllocator backed by ctx.BlockFound,
// the in-core map pass1 already populated with every claimed block.
func (ctx *Context) blockAllocator() ondisk.BlockAllocator {
	next := int64(ctx.SB.FirstDataBlock)
	return func() (int64, bool) {
		for ; next < int64(ctx.SB.TotalBlocks); next++ {
			if !ctx.BlockFound.Test(next) {
				ctx.BlockFound.Set(next)
				found := next
				next++
				return found, true
			}
		}
		return 0, false
	}
}

// inodeAllocator returns an InodeAllocator backed by ctx.InodeUsed.
func (ctx *Context) inodeAllocator() ondisk.InodeAllocator {
	next := int64(ondisk.FirstReservedInode)
	return func() (int64, bool) {
		for ; next <= int64(ctx.SB.TotalInodes); next++ {
			if !ctx.InodeUsed.Test(next) {
				ctx.InodeUsed.Set(next)
				found := next
				next++
				return found, true
			}
		}
		return 0, false
	}
}
