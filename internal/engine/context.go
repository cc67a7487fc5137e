// Package engine drives the five-pass consistency check described in
// spec.md §4: it owns the in-core bookkeeping (bitmaps, icounts,
// directory tables, duplicate-block registry) that each pass reads
// and updates, and the pass1-5 entry points that walk the filesystem
// through ondisk and ask internal/problem to resolve anything wrong.
package engine

import (
	"github.com/vorteil/e2fsck/internal/elog"
	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// Stats accumulates the summary counters printed at the end of a run
// (and consumed by -v), mirroring e2fsck's ext2_fsck_struct counters.
type Stats struct {
	InodesUsed      int64
	InodesBad       int64
	DirectoryCount  int64
	FragmentedFiles int64
	BlocksUsed      int64
	DupBlocksFound  int64
	FixedCount      int64
}

// Context is the engine's top-level, single-run state: every pass
// receives a *Context rather than threading a dozen separate
// arguments, matching the reference implementation's e2fsck_t.
type Context struct {
	Device ondisk.Device
	SB     *ondisk.Superblock
	Groups []ondisk.GroupDescriptor

	View    elog.View
	Problem *problem.Engine

	// in-core computed bitmaps, indexed directly by block or inode
	// number (block bitmaps cover [0,N), inode bitmaps [0,N]).
	BlockFound   *ondisk.Bitmap // every block claimed by some inode, metadata included
	BlockDup     *ondisk.Bitmap // blocks claimed by more than one owner
	BlockIllegal *ondisk.Bitmap // blocks referencing reserved/out-of-range numbers
	InodeUsed    *ondisk.Bitmap
	InodeDir     *ondisk.Bitmap
	InodeReg     *ondisk.Bitmap
	InodeBad     *ondisk.Bitmap
	InodeDup     *ondisk.Bitmap
	InodeBB      *ondisk.Bitmap // inodes with blocks shared with the bad-blocks inode
	InodeDone    *ondisk.Bitmap // pass1 has finished attaching this inode's blocks (not set by any pass)

	LinkCounted  *ICount // observed links while walking directories (pass2)
	LinkCount    *ICount // links_count copied from on-disk inodes (pass1)
	RefCount     *ICount // "is referenced at all" tracking (not used by any pass)

	DirInfo   *DirInfoTable
	DxDirInfo *DxDirInfoTable
	DupRegistry *DupRegistry
	KillSectors *KillSectorList

	// DirBlocks lists every (inode, logical block, physical block)
	// triple pass1 discovered belongs to a directory, the working set
	// pass2 iterates to validate directory contents.
	DirBlocks []DirBlockRef

	LostFoundIno int64 // 0 until pass3 creates or locates /lost+found

	DirsToHash []int64 // not filled by any pass; rehash candidates carry DxDirInfo's Dirty flag

	Stats Stats

	Restart bool // pass1 requested a restart (e.g. after bad-blocks inode processing)
	Abort   bool
}

// DirBlockRef names one directory-owned block by its owning inode and
// logical position, the unit pass2 iterates over.
type DirBlockRef struct {
	Ino      int64
	LogBlock int64
	PhysBlock int64
}

// NewContext builds a fresh engine context from an already-read
// superblock and group descriptor table.
func NewContext(dev ondisk.Device, sb *ondisk.Superblock, groups []ondisk.GroupDescriptor, view elog.View, probEngine *problem.Engine) *Context {
	totalInodes := int64(sb.TotalInodes)
	totalBlocks := int64(sb.TotalBlocks)

	return &Context{
		Device: dev,
		SB:     sb,
		Groups: groups,

		View:    view,
		Problem: probEngine,

		BlockFound:   ondisk.NewBitmap(totalBlocks),
		BlockDup:     ondisk.NewBitmap(totalBlocks),
		BlockIllegal: ondisk.NewBitmap(totalBlocks),
		InodeUsed:    ondisk.NewBitmap(totalInodes + 1),
		InodeDir:     ondisk.NewBitmap(totalInodes + 1),
		InodeReg:     ondisk.NewBitmap(totalInodes + 1),
		InodeBad:     ondisk.NewBitmap(totalInodes + 1),
		InodeDup:     ondisk.NewBitmap(totalInodes + 1),
		InodeBB:      ondisk.NewBitmap(totalInodes + 1),
		InodeDone:    ondisk.NewBitmap(totalInodes + 1),

		LinkCounted: NewICount(totalInodes),
		LinkCount:   NewICount(totalInodes),
		RefCount:    NewICount(totalInodes),

		DirInfo:     NewDirInfoTable(),
		DxDirInfo:   NewDxDirInfoTable(),
		DupRegistry: NewDupRegistry(),
		KillSectors: NewKillSectorList(),
	}
}

// Fix is a thin convenience wrapper so passes can call ctx.Fix(code,
// &problem.Context{...}) instead of ctx.Problem.FixProblem(...).
func (c *Context) Fix(code problem.Code, pctx *problem.Context) bool {
	return c.Problem.FixProblem(code, pctx)
}

// GroupOf returns the block group index containing inode ino.
func (c *Context) GroupOf(ino int64) int64 {
	return (ino - 1) / int64(c.SB.InodesPerGroup)
}

// BlockInRange reports whether block is a plausible data block number
// for this filesystem (at or above the first data block, below the
// total block count); it does not check for reserved metadata blocks,
// which BlockIllegal tracks separately per group.
func (c *Context) BlockInRange(block int64) bool {
	return block >= int64(c.SB.FirstDataBlock) && block < int64(c.SB.TotalBlocks)
}
