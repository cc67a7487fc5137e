// Package journal implements replay of a committed JBD-style journal
// (spec.md §4.7), grounded on the original recovery.c/revoke.c
// three-pass scan/revoke/replay algorithm, and internal/ondisk's
// journal block codecs for the wire format itself.
package journal

// RevokeTable tracks, for every block number, the highest transaction
// sequence in which a revoke record for it was seen. A data block
// written by a transaction at or before that sequence must not be
// replayed (recovery.c's "only the last revoke counts, entries beyond
// it still replay"). A plain map serves this instead of the original
// kernel's open-chained hash table; Go's map already gives the same
// amortized O(1) lookup without the original's fixed bucket count.
type RevokeTable struct {
	revoked map[uint32]uint32
}

// NewRevokeTable returns an empty table.
func NewRevokeTable() *RevokeTable {
	return &RevokeTable{revoked: make(map[uint32]uint32)}
}

// Record notes that block was revoked as of sequence, keeping the
// higher sequence if the block was already recorded.
func (r *RevokeTable) Record(block, sequence uint32) {
	if cur, ok := r.revoked[block]; !ok || sequence > cur {
		r.revoked[block] = sequence
	}
}

// Cancel removes block's revoke record entirely: journaling the block
// again within the same transaction it was revoked in means the new
// write should win (revoke.c's "journaled after revoked" case).
func (r *RevokeTable) Cancel(block uint32) {
	delete(r.revoked, block)
}

// ShouldReplay reports whether a data write to block from the given
// transaction sequence should be applied.
func (r *RevokeTable) ShouldReplay(block, sequence uint32) bool {
	maxSeq, ok := r.revoked[block]
	if !ok {
		return true
	}
	return sequence > maxSeq
}

// Len reports how many distinct blocks carry a revoke record.
func (r *RevokeTable) Len() int { return len(r.revoked) }
