package engine

import (
	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// RunPass4 reconciles reference counts (spec.md §4.5): every used
// inode's on-disk links_count must equal the number of directory
// entries pass2 actually observed pointing at it. An inode with zero
// observed links is reconnected via pass3's lost+found machinery
// rather than freed outright, since an orphan is still live data
// until the operator says otherwise.
func RunPass4(ctx *Context) error {
	prog := ctx.View.NewProgress("pass4", int64(ctx.SB.TotalInodes))
	defer prog.Finish()

	for ino := int64(ondisk.FirstReservedInode); ino <= int64(ctx.SB.TotalInodes); ino++ {
		prog.Increment(1)
		if err := checkRefCount(ctx, ino); err != nil {
			return errors.Wrapf(err, "pass4: inode %d", ino)
		}
	}
	if ctx.InodeDir.Test(ondisk.RootInode) {
		return checkRefCount(ctx, ondisk.RootInode)
	}
	return nil
}

func checkRefCount(ctx *Context, ino int64) error {
	if !ctx.InodeUsed.Test(ino) {
		return nil
	}

	observed := ctx.LinkCounted.Fetch(ino)

	if observed == 0 {
		if !ctx.Fix(problem.Code("PR_4_ZERO_LINK_COUNT"), &problem.Context{Ino: ino}) {
			return nil
		}
		if err := reconnect(ctx, ino); err != nil {
			return err
		}
		observed = ctx.LinkCounted.Fetch(ino)
	}

	in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ino)
	if err != nil {
		return err
	}

	if in.LinksCount != observed {
		if ctx.Fix(problem.Code("PR_4_BAD_REF_COUNT"), &problem.Context{Ino: ino, IsValue: int64(in.LinksCount), Num: int64(observed)}) {
			in.LinksCount = observed
			if err := ondisk.WriteInode(ctx.Device, ctx.SB, ctx.Groups, ino, in); err != nil {
				return err
			}
		}
	}

	return nil
}
