package engine

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// RunPass5 reconciles the on-disk block/inode bitmaps, group
// descriptors, and superblock free counts against what passes 1-4
// actually found in core (spec.md §4.6). It is the only pass that
// writes the bitmaps themselves; every earlier pass worked purely
// from the in-core BlockFound/InodeUsed maps.
func RunPass5(ctx *Context) error {
	if err := reconcileBlockBitmaps(ctx); err != nil {
		return errors.Wrap(err, "pass5: block bitmaps")
	}
	if err := reconcileInodeBitmaps(ctx); err != nil {
		return errors.Wrap(err, "pass5: inode bitmaps")
	}
	return reconcileSuperblockCounts(ctx)
}

func reconcileBlockBitmaps(ctx *Context) error {
	var totalFree int64

	for g := int64(0); g < int64(len(ctx.Groups)); g++ {
		first, last := ondisk.GroupBlockRange(ctx.SB, g)

		onDisk, err := ondisk.ReadBlockBitmap(ctx.Device, ctx.SB, ctx.Groups, g)
		if err != nil {
			return err
		}

		var diffs []int64
		var freeInGroup int64
		for blk := first; blk <= last; blk++ {
			idx := blk - first
			computed := ctx.BlockFound.Test(blk)
			if !computed {
				freeInGroup++
			}
			if onDisk.Test(idx) != computed {
				diffs = append(diffs, blk)
			}
		}

		if len(diffs) > 0 {
			if ctx.Fix(problem.Code("PR_5_FREE_BLOCK_COUNT_GROUP"), &problem.Context{Group: g, Str: summarizeRanges(diffs)}) {
				for _, blk := range diffs {
					idx := blk - first
					if ctx.BlockFound.Test(blk) {
						onDisk.Set(idx)
					} else {
						onDisk.Clear(idx)
					}
				}
				if err := ondisk.WriteBlockBitmap(ctx.Device, ctx.SB, ctx.Groups, g, onDisk); err != nil {
					return err
				}
			}
		}

		desc := &ctx.Groups[g]
		if int64(desc.FreeBlocks) != freeInGroup {
			if ctx.Fix(problem.Code("PR_5_FREE_BLOCK_COUNT"), &problem.Context{Group: g, IsValue: int64(desc.FreeBlocks), Num: freeInGroup}) {
				desc.FreeBlocks = uint16(freeInGroup)
			}
		}
		totalFree += freeInGroup
	}

	if err := ondisk.WriteGroupDescriptors(ctx.Device, ctx.SB, ctx.Groups); err != nil {
		return err
	}

	if int64(ctx.SB.UnallocatedBlocks) != totalFree {
		if ctx.Fix(problem.Code("PR_5_FREE_BLOCK_COUNT_SB"), &problem.Context{IsValue: int64(ctx.SB.UnallocatedBlocks), Num: totalFree}) {
			ctx.SB.UnallocatedBlocks = uint32(totalFree)
		}
	}

	return nil
}

func reconcileInodeBitmaps(ctx *Context) error {
	var totalFree int64
	ipg := int64(ctx.SB.InodesPerGroup)

	for g := int64(0); g < int64(len(ctx.Groups)); g++ {
		first := g*ipg + 1
		last := first + ipg - 1
		if last > int64(ctx.SB.TotalInodes) {
			last = int64(ctx.SB.TotalInodes)
		}

		onDisk, err := ondisk.ReadInodeBitmap(ctx.Device, ctx.SB, ctx.Groups, g)
		if err != nil {
			return err
		}

		var diffs []int64
		var freeInGroup, dirsInGroup int64
		for ino := first; ino <= last; ino++ {
			idx := ino - first
			computed := ctx.InodeUsed.Test(ino)
			if !computed {
				freeInGroup++
			}
			if ctx.InodeDir.Test(ino) {
				dirsInGroup++
			}
			if onDisk.Test(idx) != computed {
				diffs = append(diffs, ino)
			}
		}

		if len(diffs) > 0 {
			if ctx.Fix(problem.Code("PR_5_FREE_INODE_COUNT_GROUP"), &problem.Context{Group: g, Str: summarizeRanges(diffs)}) {
				for _, ino := range diffs {
					idx := ino - first
					if ctx.InodeUsed.Test(ino) {
						onDisk.Set(idx)
					} else {
						onDisk.Clear(idx)
					}
				}
				if err := ondisk.WriteInodeBitmap(ctx.Device, ctx.SB, ctx.Groups, g, onDisk); err != nil {
					return err
				}
			}
		}

		desc := &ctx.Groups[g]
		if int64(desc.FreeInodes) != freeInGroup {
			if ctx.Fix(problem.Code("PR_5_FREE_INODE_COUNT"), &problem.Context{Group: g, IsValue: int64(desc.FreeInodes), Num: freeInGroup}) {
				desc.FreeInodes = uint16(freeInGroup)
			}
		}
		if int64(desc.Directories) != dirsInGroup {
			if ctx.Fix(problem.Code("PR_5_USED_DIR_COUNT"), &problem.Context{Group: g, IsValue: int64(desc.Directories), Num: dirsInGroup}) {
				desc.Directories = uint16(dirsInGroup)
			}
		}
		totalFree += freeInGroup
	}

	if err := ondisk.WriteGroupDescriptors(ctx.Device, ctx.SB, ctx.Groups); err != nil {
		return err
	}

	if int64(ctx.SB.UnallocatedInodes) != totalFree {
		if ctx.Fix(problem.Code("PR_5_FREE_INODE_COUNT_SB"), &problem.Context{IsValue: int64(ctx.SB.UnallocatedInodes), Num: totalFree}) {
			ctx.SB.UnallocatedInodes = uint32(totalFree)
		}
	}

	return nil
}

func reconcileSuperblockCounts(ctx *Context) error {
	return ondisk.WriteSuperblock(ctx.Device, ctx.SB, 0)
}

// summarizeRanges renders a sorted block/inode number list as
// comma-separated runs ("a-b") the way the reference implementation's
// PR_LATCH_BBLOCK/PR_LATCH_IBITMAP collate their diff message, instead
// of one line per number.
func summarizeRanges(nums []int64) string {
	if len(nums) == 0 {
		return ""
	}
	out := ""
	start, prev := nums[0], nums[0]
	flush := func() {
		if out != "" {
			out += ", "
		}
		if start == prev {
			out += fmt.Sprintf("%d", start)
		} else {
			out += fmt.Sprintf("%d-%d", start, prev)
		}
	}
	for _, n := range nums[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()
	return out
}
