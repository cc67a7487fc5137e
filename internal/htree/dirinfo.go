package htree

import "github.com/vorteil/e2fsck/internal/ondisk"

// RehashRequest is what the engine hands htree for one flagged
// directory, grounded on dx_dirinfo.c's per-directory record: the
// inode plus the hash version and seed used to rebuild it.
type RehashRequest struct {
	Ino      int64
	Version  HashVersion
	Seed     [4]uint32
}

// RehashAll rebuilds every requested directory's index in turn,
// stopping at the first failure so the caller can surface it through
// the same error path as any other pass.
func RehashAll(dev ondisk.Device, sb *ondisk.Superblock, groups []ondisk.GroupDescriptor, reqs []RehashRequest) error {
	for _, r := range reqs {
		in, err := ondisk.ReadInode(dev, sb, groups, r.Ino)
		if err != nil {
			return err
		}
		if err := Rebuild(dev, sb, r.Ino, in, r.Version, r.Seed); err != nil {
			return err
		}
		// Rebuild only ever writes a plain linear directory (no
		// dx_root/dx_entry tree); clear INDEX_FL so a reader honoring
		// it doesn't misparse block 0 as an htree root.
		in.Flags &^= ondisk.InodeFlagIndex
		if err := ondisk.WriteInode(dev, sb, groups, r.Ino, in); err != nil {
			return err
		}
	}
	return nil
}
