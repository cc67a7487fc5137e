package engine

import "github.com/vorteil/e2fsck/internal/htree"

// RunHTreeRehash rewrites every hash-indexed directory that pass2 had
// to salvage (spec.md §4.8) as a plain linear directory, and clears
// its INDEX_FL flag. No dx_root/dx_entry index is rebuilt, and an
// index's hash version or tree shape is not checked.
func RunHTreeRehash(ctx *Context) error {
	if ctx.DxDirInfo.Len() == 0 {
		return nil
	}

	var reqs []htree.RehashRequest
	ctx.DxDirInfo.Iterate(func(e *DxDirInfoEntry) {
		if !e.Dirty {
			return
		}
		reqs = append(reqs, htree.RehashRequest{
			Ino:     e.Ino,
			Version: htree.HashVersion(ctx.SB.DefHashVersion),
			Seed:    ctx.SB.HashSeed,
		})
	})

	if len(reqs) == 0 {
		return nil
	}

	ctx.View.Infof("rehashing %d indexed directories", len(reqs))
	return htree.RehashAll(ctx.Device, ctx.SB, ctx.Groups, reqs)
}
