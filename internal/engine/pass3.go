package engine

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// RunPass3 is the connectivity check of spec.md §4.4: every directory
// found in pass1/2 must trace a chain of '..' entries back to the
// root without looping, or it gets reconnected under /lost+found.
// Also handles root-inode recreation and '..'  fixups once the true
// parent is known from pass2's DirInfo table.
func RunPass3(ctx *Context) error {
	if err := ensureRoot(ctx); err != nil {
		return err
	}

	prog := ctx.View.NewProgress("pass3", int64(ctx.DirInfo.Len()))
	defer prog.Finish()

	var toReconnect []int64

	ctx.DirInfo.Iterate(func(e DirInfoEntry) {
		prog.Increment(1)
		if e.Ino == ondisk.RootInode {
			return
		}
		if connected, looped := traceToRoot(ctx, e.Ino); !connected {
			if looped {
				ctx.Fix(problem.Code("PR_3_LOOP"), &problem.Context{Ino: e.Ino})
			} else {
				ctx.Fix(problem.Code("PR_3_UNCONNECTED_DIR"), &problem.Context{Ino: e.Ino, Path: fmt.Sprintf("inode #%d", e.Parent)})
			}
			toReconnect = append(toReconnect, e.Ino)
		}
	})

	for _, ino := range toReconnect {
		if err := reconnect(ctx, ino); err != nil {
			return errors.Wrapf(err, "pass3: reconnecting inode %d", ino)
		}
	}

	return fixDotDotEntries(ctx)
}

// traceToRoot walks '..' links from ino toward the root, bounded by
// the total directory count so a cycle can't spin forever.
func traceToRoot(ctx *Context, ino int64) (connected, looped bool) {
	seen := make(map[int64]bool)
	cur := ino

	for i := 0; i < ctx.DirInfo.Len()+2; i++ {
		if cur == ondisk.RootInode {
			return true, false
		}
		if seen[cur] {
			return false, true
		}
		seen[cur] = true

		entry, found := ctx.DirInfo.Get(cur)
		if !found || entry.Parent <= 0 {
			return false, false
		}
		cur = entry.Parent
	}

	return false, true
}

// ensureRoot recreates the root directory inode if pass1 found it
// missing or not a directory, the §4.4 "Root repair" operation.
func ensureRoot(ctx *Context) error {
	if ctx.InodeDir.Test(ondisk.RootInode) {
		return nil
	}

	if !ctx.Fix(problem.Code("PR_3_NO_ROOT_INODE"), &problem.Context{Ino: ondisk.RootInode}) {
		return errors.New("pass3: root inode missing and operator declined to recreate it")
	}

	alloc := ctx.blockAllocator()
	blk, err := ondisk.NewDirBlock(ctx.Device, ctx.SB, alloc, ondisk.RootInode, ondisk.RootInode, ctx.SB.HasFeatureIncompat(ondisk.IncompatFiletype))
	if err != nil {
		return err
	}

	in := &ondisk.Inode{Mode: ondisk.ModeDirectory | 0755, LinksCount: 2}
	in.Block[0] = uint32(blk)
	in.BlocksLo = uint32(ctx.SB.BlockSize() / ondisk.SectorSize)
	in.SetSize(ctx.SB.BlockSize())

	if err := ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ondisk.RootInode, in); err != nil {
		return err
	}

	ctx.InodeUsed.Set(ondisk.RootInode)
	ctx.InodeDir.Set(ondisk.RootInode)
	ctx.DirInfo.Add(ondisk.RootInode)
	ctx.DirInfo.SetParent(ondisk.RootInode, ondisk.RootInode)
	ctx.LinkCounted.Set(ondisk.RootInode, 2)
	return nil
}

// lostAndFound returns /lost+found's inode number, creating it under
// root on first use (§4.4).
func lostAndFound(ctx *Context) (int64, error) {
	if ctx.LostFoundIno != 0 {
		return ctx.LostFoundIno, nil
	}

	rootIn, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ondisk.RootInode)
	if err != nil {
		return 0, err
	}
	rootBlocks, err := ondisk.DirBlockList(ctx.Device, ctx.SB, rootIn)
	if err != nil {
		return 0, err
	}
	hasFT := ctx.SB.HasFeatureIncompat(ondisk.IncompatFiletype)

	if ino, _, found, err := ondisk.Lookup(ctx.Device, ctx.SB, rootBlocks, hasFT, ondisk.LostFoundName); err != nil {
		return 0, err
	} else if found {
		ctx.LostFoundIno = int64(ino)
		return ctx.LostFoundIno, nil
	}

	if !ctx.Fix(problem.Code("PR_3_NO_LF_DIR"), &problem.Context{}) {
		return 0, errors.New("pass3: /lost+found missing and operator declined to create it")
	}

	inodeAlloc := ctx.inodeAllocator()
	newIno, err := ondisk.NewInode(inodeAlloc)
	if err != nil {
		return 0, err
	}

	blockAlloc := ctx.blockAllocator()
	blk, err := ondisk.NewDirBlock(ctx.Device, ctx.SB, blockAlloc, uint32(newIno), ondisk.RootInode, hasFT)
	if err != nil {
		return 0, err
	}

	in := &ondisk.Inode{Mode: ondisk.ModeDirectory | 0700, LinksCount: 2}
	in.Block[0] = uint32(blk)
	in.BlocksLo = uint32(ctx.SB.BlockSize() / ondisk.SectorSize)
	in.SetSize(ctx.SB.BlockSize())
	if err := ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, newIno, in); err != nil {
		return 0, err
	}

	if err := ondisk.Link(ctx.Device, ctx.SB, rootBlocks, hasFT, ondisk.LostFoundName, uint32(newIno), ondisk.FileTypeDir); err != nil {
		return 0, err
	}

	ctx.InodeDir.Set(newIno)
	ctx.DirInfo.Add(newIno)
	ctx.DirInfo.SetParent(newIno, ondisk.RootInode)
	ctx.LinkCounted.Set(newIno, 2)
	ctx.LinkCounted.Increment(ondisk.RootInode)
	ctx.LostFoundIno = newIno
	return newIno, nil
}

// reconnect links an orphaned inode (a directory from pass3, or any
// inode pass4 found unreferenced) into /lost+found by its inode number
// as a name, expanding lost+found first if it has no room (§4.4
// reconnect procedure).
func reconnect(ctx *Context, ino int64) error {
	lf, err := lostAndFound(ctx)
	if err != nil {
		return err
	}

	lfIn, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, lf)
	if err != nil {
		return err
	}
	blocks, err := ondisk.DirBlockList(ctx.Device, ctx.SB, lfIn)
	if err != nil {
		return err
	}

	hasFT := ctx.SB.HasFeatureIncompat(ondisk.IncompatFiletype)
	name := fmt.Sprintf("#%d", ino)

	isDir := ctx.InodeDir.Test(ino)
	ftHint := uint8(ondisk.FileTypeRegular)
	if isDir {
		ftHint = ondisk.FileTypeDir
	}

	err = ondisk.Link(ctx.Device, ctx.SB, blocks, hasFT, name, uint32(ino), ftHint)
	if errors.Is(err, ondisk.ErrDirNoSpace) {
		if !ctx.Fix(problem.Code("PR_3_EXPAND_LF_DIR"), &problem.Context{}) {
			return errors.New("pass3: lost+found full and operator declined to expand it")
		}
		alloc := ctx.blockAllocator()
		if _, err := ondisk.ExpandDir(ctx.Device, ctx.SB, lfIn, alloc); err != nil {
			return err
		}
		if err := ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, lf, lfIn); err != nil {
			return err
		}
		blocks, err = ondisk.DirBlockList(ctx.Device, ctx.SB, lfIn)
		if err != nil {
			return err
		}
		err = ondisk.Link(ctx.Device, ctx.SB, blocks, hasFT, name, uint32(ino), ftHint)
	}
	if err != nil {
		return err
	}

	if isDir {
		ctx.DirInfo.SetParent(ino, lf)
		ctx.DirInfo.SetDotDot(ino, lf)
		ctx.LinkCounted.Increment(lf)
	}
	ctx.LinkCounted.Increment(ino)
	return nil
}

// fixDotDotEntries rewrites each directory's on-disk '..' entry to
// match the corrected parent recorded in DirInfo, after reconnection
// may have changed it (§4.4).
func fixDotDotEntries(ctx *Context) error {
	hasFT := ctx.SB.HasFeatureIncompat(ondisk.IncompatFiletype)
	var walkErr error

	ctx.DirInfo.Iterate(func(e DirInfoEntry) {
		if walkErr != nil || e.Ino == ondisk.RootInode {
			return
		}
		want := e.DotDot
		if want == -1 {
			want = e.Parent
		}
		if want <= 0 {
			return
		}

		in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, e.Ino)
		if err != nil {
			walkErr = err
			return
		}
		blocks, err := ondisk.DirBlockList(ctx.Device, ctx.SB, in)
		if err != nil || len(blocks) == 0 {
			walkErr = err
			return
		}

		buf := make([]byte, ctx.SB.BlockSize())
		if err := ctx.Device.ReadAt(buf, blocks[0]*ctx.SB.BlockSize()); err != nil {
			walkErr = err
			return
		}

		d, err := ondisk.DecodeDirent(buf, 12, hasFT)
		if err != nil || d.Name != ".." {
			return
		}
		if int64(d.Inode) == want {
			return
		}

		if !ctx.Fix(problem.Code("PR_3_BAD_DOT_DOT"), &problem.Context{Ino: e.Ino, Ino2: int64(d.Inode), Path: fmt.Sprintf("#%d", want)}) {
			return
		}

		d.Inode = uint32(want)
		ondisk.EncodeDirent(buf, d, hasFT)
		if err := ctx.Device.WriteAt(buf, blocks[0]*ctx.SB.BlockSize()); err != nil {
			walkErr = err
			return
		}
	})

	return walkErr
}
