package engine

import "sort"

// KillSectorList records physical sectors known to be bad. Run fills
// it from the operator's -l bad-block file before pass1, and pass1
// treats any block covering a listed sector as an illegal block. The
// list is not written into the bad-blocks inode.
type KillSectorList struct {
	sectors map[int64]bool
}

// NewKillSectorList returns an empty list.
func NewKillSectorList() *KillSectorList {
	return &KillSectorList{sectors: make(map[int64]bool)}
}

// Add records sector as bad.
func (k *KillSectorList) Add(sector int64) {
	k.sectors[sector] = true
}

// Contains reports whether sector was previously recorded.
func (k *KillSectorList) Contains(sector int64) bool {
	return k.sectors[sector]
}

// Sectors returns every recorded sector in ascending order.
func (k *KillSectorList) Sectors() []int64 {
	out := make([]int64, 0, len(k.sectors))
	for s := range k.sectors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len reports how many sectors are recorded.
func (k *KillSectorList) Len() int { return len(k.sectors) }
