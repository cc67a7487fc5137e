package engine

import (
	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

const maxIllegalBlocksPerInode = 20

// RunPass1 is the inode/block scan of spec.md §4.2: it walks every
// inode slot in every group, validates its mode/size/link metadata,
// walks its block tree marking block_found/block_dup/inode_bad, and
// records directory blocks for pass2 and duplicate claims for
// pass1b-d.
func RunPass1(ctx *Context) error {
	total := int64(ctx.SB.TotalInodes)
	prog := ctx.View.NewProgress("pass1", total)
	defer prog.Finish()

	batches, wait := readInodesAhead(ctx, total)
	for batch := range batches {
		for i, in := range batch.inos {
			ino := batch.first + int64(i)
			prog.Increment(1)
			if err := processInode(ctx, ino, in); err != nil {
				return err
			}
		}
	}

	if err := wait(); err != nil {
		return errors.Wrap(err, "pass1: reading inodes")
	}

	return nil
}

func processInode(ctx *Context, ino int64, in *ondisk.Inode) error {
	if !in.Allocated() {
		return checkUnallocatedInode(ctx, ino, in)
	}

	if ino < ondisk.FirstReservedInode && ino != ondisk.RootInode && ino != ondisk.BadBlocksInode {
		if in.Mode != 0 {
			if ctx.Fix(problem.Code("PR_1_RESERVED_BAD_MODE"), &problem.Context{Ino: ino}) {
				in.Mode = 0
				return ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in)
			}
		}
	}

	if ino == ondisk.RootInode && !in.IsDir() {
		if ctx.Fix(problem.Code("PR_1_ROOT_NO_DIR"), &problem.Context{Ino: ino}) {
			clearInode(ctx, ino, in)
			return ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in)
		}
	}

	if in.Flags&ondisk.InodeFlagExtents != 0 && !ctx.SB.HasFeatureIncompat(ondisk.IncompatExtents) {
		if ctx.Fix(problem.Code("PR_1_EXTENT_FEATURE"), &problem.Context{Ino: ino}) {
			in.Flags &^= ondisk.InodeFlagExtents
			if err := ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in); err != nil {
				return err
			}
		}
	}

	ctx.InodeUsed.Set(ino)
	if in.Mode == 0 && in.LinksCount > 0 {
		ctx.InodeBad.Set(ino)
	}

	ctx.LinkCount.Set(ino, in.LinksCount)
	ctx.Stats.InodesUsed++

	if in.IsDir() {
		ctx.InodeDir.Set(ino)
		ctx.DirInfo.Add(ino)
		ctx.Stats.DirectoryCount++
	} else if in.IsRegular() {
		ctx.InodeReg.Set(ino)
	}

	if in.Flags&ondisk.InodeFlagIndex != 0 {
		ctx.DxDirInfo.Add(ino)
	}

	if !in.HasBlocks() {
		return nil
	}

	return scanInodeBlocks(ctx, ino, in)
}

// checkUnallocatedInode covers the §4.2 "deleted but dtime==0" and
// "zero-length allocated, links_count==0" edge cases: an inode that
// looks free by links_count but whose other fields disagree.
func checkUnallocatedInode(ctx *Context, ino int64, in *ondisk.Inode) error {
	if in.Mode == 0 {
		return nil
	}

	if in.DeleteTime == 0 {
		if ctx.Fix(problem.Code("PR_1_ZERO_DTIME"), &problem.Context{Ino: ino}) {
			in.DeleteTime = in.ModifyTime
			if in.DeleteTime == 0 {
				in.DeleteTime = 1
			}
			return ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in)
		}
	}

	return nil
}

// clearInode wipes an inode's mode/size/block tree in place, the
// common body behind several PromptClear/PromptClearInode answers.
func clearInode(ctx *Context, ino int64, in *ondisk.Inode) {
	in.Mode = 0
	in.LinksCount = 0
	in.SetSize(0)
	in.BlocksLo = 0
	for i := range in.Block {
		in.Block[i] = 0
	}
	ctx.InodeUsed.Clear(ino)
	ctx.InodeDir.Clear(ino)
	ctx.InodeReg.Clear(ino)
	ctx.Stats.FixedCount++
}

func scanInodeBlocks(ctx *Context, ino int64, in *ondisk.Inode) error {
	var (
		illegalCount int
		blockCount   int64
		logBlock     int64
	)

	err := ondisk.IterateBlocks(ctx.Device, ctx.SB, in, ondisk.IterateOptions{}, func(ref *ondisk.BlockRef, depth int, logicalIndex int64, metadata bool) (ondisk.Action, error) {
		blk := int64(ref.Get())

		if !ctx.BlockInRange(blk) || isReservedMetadata(ctx, blk) || blockOnKillSectorList(ctx, blk) {
			if ctx.Fix(problem.Code("PR_1_ILLEGAL_BLOCK_NUM"), &problem.Context{Ino: ino, Blk: blk, Num: logicalIndex}) {
				ref.Set(0)
			}
			illegalCount++
			if illegalCount%maxIllegalBlocksPerInode == 0 {
				if ctx.Fix(problem.Code("PR_1_TOO_MANY_BAD_BLOCKS"), &problem.Context{Ino: ino}) {
					clearInode(ctx, ino, in)
					return ondisk.ActionAbort, nil
				}
			}
			return ondisk.ActionContinue, nil
		}

		if ctx.BlockFound.Test(blk) {
			ctx.BlockDup.Set(blk)
			ctx.InodeDup.Set(ino)
			ctx.Stats.DupBlocksFound++
		} else {
			ctx.BlockFound.Set(blk)
		}
		ctx.DupRegistry.Add(ino, blk, metadata)

		if !metadata {
			blockCount++
			logBlock = logicalIndex
			if in.IsDir() {
				ctx.DirBlocks = append(ctx.DirBlocks, DirBlockRef{Ino: ino, LogBlock: logicalIndex, PhysBlock: blk})
			}
		}

		ctx.Stats.BlocksUsed++
		return ondisk.ActionContinue, nil
	})
	if err != nil {
		return errors.Wrapf(err, "pass1: walking blocks of inode %d", ino)
	}

	expectBlocks := uint32(blockCount * (ctx.SB.BlockSize() / ondisk.SectorSize))
	if in.BlocksLo != expectBlocks {
		if ctx.Fix(problem.Code("PR_1_BAD_I_BLOCKS"), &problem.Context{Ino: ino, IsValue: int64(in.BlocksLo), Num: int64(expectBlocks)}) {
			in.BlocksLo = expectBlocks
			if err := ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in); err != nil {
				return err
			}
		}
	}

	if in.IsRegular() || in.IsDir() {
		expectSize := (logBlock + 1) * ctx.SB.BlockSize()
		if in.Size() > expectSize {
			// a file may legitimately be shorter than its block count
			// implies (sparse tail) but never larger than the highest
			// block it has blocks for; only shrink when it overshoots.
			if ctx.Fix(problem.Code("PR_1_BAD_I_SIZE"), &problem.Context{Ino: ino, IsValue: in.Size(), Num: expectSize}) {
				in.SetSize(expectSize)
				if err := ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// isReservedMetadata reports whether blk is the block bitmap, the
// inode bitmap or part of the inode table of the group blk falls in,
// which no file is allowed to claim (§4.2 illegal-block checks).
// Superblock and group-descriptor blocks are not checked here.
func isReservedMetadata(ctx *Context, blk int64) bool {
	g := (blk - int64(ctx.SB.FirstDataBlock)) / int64(ctx.SB.BlocksPerGroup)
	if g < 0 || g >= int64(len(ctx.Groups)) {
		return false
	}
	desc := ctx.Groups[g]
	switch blk {
	case int64(desc.BlockBitmapAddr), int64(desc.InodeBitmapAddr):
		return true
	}
	itabStart := int64(desc.InodeTableAddr)
	itabBlocks := divCeilInt(int64(ctx.SB.InodesPerGroup)*int64(ctx.SB.InodeSize), ctx.SB.BlockSize())
	return blk >= itabStart && blk < itabStart+itabBlocks
}

func divCeilInt(a, b int64) int64 {
	return (a + b - 1) / b
}

// blockOnKillSectorList reports whether any sector covered by blk was
// recorded as bad in the kill-sector list, which holds the sectors
// read from the operator's -l bad-block file.
func blockOnKillSectorList(ctx *Context, blk int64) bool {
	if ctx.KillSectors.Len() == 0 {
		return false
	}
	sectorsPerBlock := ctx.SB.BlockSize() / ondisk.SectorSize
	first := blk * sectorsPerBlock
	for s := first; s < first+sectorsPerBlock; s++ {
		if ctx.KillSectors.Contains(s) {
			return true
		}
	}
	return false
}
