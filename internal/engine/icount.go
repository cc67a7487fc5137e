package engine

import "github.com/vorteil/e2fsck/internal/ondisk"

// ICount is the compact inode->count mapping of spec.md §4.9: a
// singleton bitmap carries every inode whose count is exactly 1 (the
// overwhelmingly common case), and a sparse map carries the rest
// (count 0 is implicit, never stored; count >= 2 lives in the map).
type ICount struct {
	singleton *ondisk.Bitmap
	rest      map[int64]uint16
	n         int64
}

// NewICount allocates an ICount covering inodes [1, n].
func NewICount(n int64) *ICount {
	return &ICount{
		singleton: ondisk.NewBitmap(n + 1),
		rest:      make(map[int64]uint16),
		n:         n,
	}
}

// Fetch returns the current count for ino (0 if never touched).
func (c *ICount) Fetch(ino int64) uint16 {
	if v, ok := c.rest[ino]; ok {
		return v
	}
	if c.singleton.Test(ino) {
		return 1
	}
	return 0
}

// Set records an explicit count for ino, matching the reference's
// monotonic-store fast path during pass1 fills (§4.9).
func (c *ICount) Set(ino int64, v uint16) {
	switch v {
	case 0:
		c.singleton.Clear(ino)
		delete(c.rest, ino)
	case 1:
		c.singleton.Set(ino)
		delete(c.rest, ino)
	default:
		c.singleton.Clear(ino)
		c.rest[ino] = v
	}
}

// Increment adds one to ino's count.
func (c *ICount) Increment(ino int64) {
	c.Set(ino, c.Fetch(ino)+1)
}

// Decrement subtracts one from ino's count, floored at 0.
func (c *ICount) Decrement(ino int64) {
	v := c.Fetch(ino)
	if v == 0 {
		return
	}
	c.Set(ino, v-1)
}
