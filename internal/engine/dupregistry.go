package engine

// dupRecord is one (inode, physical block) ownership record for a
// block that pass1 found referenced more than once.
type dupRecord struct {
	Ino   int64
	Block int64 // physical block number
	Meta  bool  // true when owned as an indirect/extent metadata block
}

// DupRegistry is the cross-pass duplicate-block bookkeeping of
// DESIGN NOTES §9: an arena of dupRecord plus index maps from both
// physical block and owning inode to the records that reference it,
// so pass1b/c/d never chase pointers through a linked structure --
// every lookup is a slice index.
type DupRegistry struct {
	arena      []dupRecord
	byBlock    map[int64][]int // block -> indices into arena
	byInode    map[int64][]int // ino -> indices into arena
}

// NewDupRegistry returns an empty registry.
func NewDupRegistry() *DupRegistry {
	return &DupRegistry{
		byBlock: make(map[int64][]int),
		byInode: make(map[int64][]int),
	}
}

// Add records that ino claims block (as metadata when meta is true).
func (d *DupRegistry) Add(ino, block int64, meta bool) {
	idx := len(d.arena)
	d.arena = append(d.arena, dupRecord{Ino: ino, Block: block, Meta: meta})
	d.byBlock[block] = append(d.byBlock[block], idx)
	d.byInode[ino] = append(d.byInode[ino], idx)
}

// BlockOwners returns every (inode, meta) pair claiming block.
func (d *DupRegistry) BlockOwners(block int64) []struct {
	Ino  int64
	Meta bool
} {
	idxs := d.byBlock[block]
	out := make([]struct {
		Ino  int64
		Meta bool
	}, 0, len(idxs))
	for _, i := range idxs {
		r := d.arena[i]
		out = append(out, struct {
			Ino  int64
			Meta bool
		}{r.Ino, r.Meta})
	}
	return out
}

// InodeBlocks returns every block number ino claims in the registry.
func (d *DupRegistry) InodeBlocks(ino int64) []int64 {
	idxs := d.byInode[ino]
	out := make([]int64, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, d.arena[i].Block)
	}
	return out
}

// DuplicatedBlocks returns every physical block claimed by more than
// one owner, the working set pass1b/c/d iterate over.
func (d *DupRegistry) DuplicatedBlocks() []int64 {
	var out []int64
	for block, idxs := range d.byBlock {
		if len(idxs) > 1 {
			out = append(out, block)
		}
	}
	return out
}

// Inodes returns every distinct inode that owns at least one recorded
// duplicate, the set pass1c re-scans directories to find names for.
func (d *DupRegistry) Inodes() []int64 {
	out := make([]int64, 0, len(d.byInode))
	for ino := range d.byInode {
		out = append(out, ino)
	}
	return out
}

// Len reports the number of recorded (inode, block) claims.
func (d *DupRegistry) Len() int { return len(d.arena) }
