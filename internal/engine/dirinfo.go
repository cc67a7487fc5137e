package engine

import "sort"

// DirInfoEntry tracks one directory inode's parent and dotdot linkage
// across passes 2-3 (§4.9: "sorted array, binary search").
type DirInfoEntry struct {
	Ino    int64
	Parent int64 // set in pass2 from an entry naming this directory and from its own ".." entry; the later write wins
	DotDot int64 // parent as fixed up by pass3's reconnection logic
}

// DirInfoTable is a sorted-by-inode array of DirInfoEntry with
// binary-search lookup, grounded on e2fsck's dir_info list: small,
// append-then-sort-once beats a map for this access pattern because
// pass2 fills it in roughly increasing inode order and pass3/4 do
// almost nothing but ordered scans and point lookups.
type DirInfoTable struct {
	entries []DirInfoEntry
	sorted  bool
}

// NewDirInfoTable returns an empty table.
func NewDirInfoTable() *DirInfoTable {
	return &DirInfoTable{}
}

// Add registers a directory inode discovered during pass1/pass2.
func (t *DirInfoTable) Add(ino int64) {
	if _, ok := t.find(ino); ok {
		return
	}
	t.entries = append(t.entries, DirInfoEntry{Ino: ino, Parent: -1, DotDot: -1})
	t.sorted = false
}

func (t *DirInfoTable) ensureSorted() {
	if t.sorted {
		return
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].Ino < t.entries[j].Ino })
	t.sorted = true
}

func (t *DirInfoTable) find(ino int64) (int, bool) {
	t.ensureSorted()
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Ino >= ino })
	if i < len(t.entries) && t.entries[i].Ino == ino {
		return i, true
	}
	return i, false
}

// Get returns the entry for ino, if present.
func (t *DirInfoTable) Get(ino int64) (DirInfoEntry, bool) {
	i, ok := t.find(ino)
	if !ok {
		return DirInfoEntry{}, false
	}
	return t.entries[i], true
}

// SetParent records the parent inode observed in ino's ".." entry.
func (t *DirInfoTable) SetParent(ino, parent int64) {
	t.Add(ino)
	i, _ := t.find(ino)
	t.entries[i].Parent = parent
}

// SetDotDot records the corrected parent after pass3 reconnection.
func (t *DirInfoTable) SetDotDot(ino, parent int64) {
	t.Add(ino)
	i, _ := t.find(ino)
	t.entries[i].DotDot = parent
}

// Iterate walks entries in ascending inode order. Callers that add new
// entries inside fn should not rely on the new entry being visited in
// the same pass, matching the reference's "don't mutate the list
// you're walking" discipline.
func (t *DirInfoTable) Iterate(fn func(DirInfoEntry)) {
	t.ensureSorted()
	for _, e := range t.entries {
		fn(e)
	}
}

// Len reports the number of tracked directories.
func (t *DirInfoTable) Len() int { return len(t.entries) }

// Merge folds another table's entries into t via stable sort rather
// than naive concatenation, preserving ascending-inode order required
// by binary search (§4.9: "merge by stable sort, never simple
// concatenation").
func (t *DirInfoTable) Merge(other *DirInfoTable) {
	if other == nil || len(other.entries) == 0 {
		return
	}
	seen := make(map[int64]bool, len(t.entries))
	for _, e := range t.entries {
		seen[e.Ino] = true
	}
	for _, e := range other.entries {
		if seen[e.Ino] {
			continue
		}
		t.entries = append(t.entries, e)
	}
	sort.SliceStable(t.entries, func(i, j int) bool { return t.entries[i].Ino < t.entries[j].Ino })
	t.sorted = true
}
