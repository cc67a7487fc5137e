package journal

import (
	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
)

// Result summarizes what replay did, surfaced to the caller for the
// run's -v statistics and log output.
type Result struct {
	TransactionsReplayed int
	BlocksReplayed       int
	BlocksRevoked        int
	LastSequence         uint32
}

// blockReader abstracts "read journal block N", since a journal may
// live either on a dedicated device or, far more commonly, inside an
// inode's block tree addressed through ondisk.IterateBlocks; callers
// supply whichever mapping applies.
type blockReader func(journalBlock uint32) ([]byte, error)

// Recover replays a journal's committed transactions onto dev,
// following the standard three-pass algorithm recovery.c implements:
// PASS_SCAN finds the last fully-committed transaction, PASS_REVOKE
// builds the revoke table, PASS_REPLAY applies every surviving data
// block. Returns (nil, nil) if the journal is empty (nothing to do).
func Recover(dev ondisk.Device, sb *ondisk.Superblock, jsb *ondisk.JournalSuperblock, read blockReader) (*Result, error) {
	if jsb.Start == 0 {
		return nil, nil
	}

	endSeq, endTransactionBlocks, err := scanPass(jsb, read)
	if err != nil {
		return nil, errors.Wrap(err, "journal scan pass")
	}
	if endSeq == 0 {
		return nil, nil
	}

	revokes, err := revokePass(jsb, endSeq, read)
	if err != nil {
		return nil, errors.Wrap(err, "journal revoke pass")
	}

	res, err := replayPass(dev, sb, jsb, endSeq, revokes, read)
	if err != nil {
		return nil, errors.Wrap(err, "journal replay pass")
	}
	res.BlocksRevoked = revokes.Len()
	_ = endTransactionBlocks
	return res, nil
}

// scanPass walks the journal from jsb.Start forward, stopping at the
// first block whose header sequence or magic doesn't fit the expected
// chain, and returns the highest fully-committed transaction sequence
// found (a descriptor block with no matching commit block is an
// incomplete transaction and is not replayed).
func scanPass(jsb *ondisk.JournalSuperblock, read blockReader) (uint32, int, error) {
	cur := jsb.Start
	expectSeq := jsb.SequenceField
	lastCommitted := uint32(0)
	blocksInTxn := 0
	inTransaction := false

	for {
		buf, err := read(cur)
		if err != nil {
			break
		}
		hdr, err := ondisk.DecodeBlockHeader(buf)
		if err != nil || hdr.Sequence != expectSeq {
			break
		}

		switch hdr.BlockType {
		case ondisk.JournalDescriptorBlock:
			inTransaction = true
			tags, err := ondisk.DecodeDescriptorTags(buf, int(jsb.BlockSize))
			if err != nil {
				return lastCommitted, blocksInTxn, nil
			}
			cur = advance(jsb, cur, 1)
			for range tags {
				cur = advance(jsb, cur, 1)
				blocksInTxn++
			}
			continue

		case ondisk.JournalRevokeBlock:
			cur = advance(jsb, cur, 1)
			continue

		case ondisk.JournalCommitBlock:
			lastCommitted = expectSeq
			expectSeq++
			inTransaction = false
			cur = advance(jsb, cur, 1)
			continue

		default:
			return lastCommitted, blocksInTxn, nil
		}
	}

	if inTransaction {
		// a dangling descriptor with no commit: matches PR_J_RECOVERY_INCOMPLETE.
	}

	return lastCommitted, blocksInTxn, nil
}

// revokePass re-walks the journal up to endSeq, recording every
// revoked block number at the sequence of the transaction that
// revoked it.
func revokePass(jsb *ondisk.JournalSuperblock, endSeq uint32, read blockReader) (*RevokeTable, error) {
	table := NewRevokeTable()
	cur := jsb.Start
	seq := jsb.SequenceField

	for seq <= endSeq {
		buf, err := read(cur)
		if err != nil {
			return table, err
		}
		hdr, err := ondisk.DecodeBlockHeader(buf)
		if err != nil {
			return table, nil
		}

		switch hdr.BlockType {
		case ondisk.JournalDescriptorBlock:
			tags, err := ondisk.DecodeDescriptorTags(buf, int(jsb.BlockSize))
			if err != nil {
				return table, nil
			}
			cur = advance(jsb, cur, 1)
			for range tags {
				// re-journaling a block after it was revoked is handled
				// by ShouldReplay's sequence comparison, not by
				// canceling the earlier revoke record here.
				cur = advance(jsb, cur, 1)
			}
		case ondisk.JournalRevokeBlock:
			blocks, err := ondisk.DecodeRevokeBlock(buf)
			if err != nil {
				return table, nil
			}
			for _, b := range blocks {
				table.Record(b, seq)
			}
			cur = advance(jsb, cur, 1)
		case ondisk.JournalCommitBlock:
			seq++
			cur = advance(jsb, cur, 1)
		default:
			return table, nil
		}
	}

	return table, nil
}

// replayPass performs the actual write-back: for each descriptor
// block's tagged data block, write it to its destination block number
// on dev unless the revoke table says a later revoke supersedes it.
func replayPass(dev ondisk.Device, sb *ondisk.Superblock, jsb *ondisk.JournalSuperblock, endSeq uint32, revokes *RevokeTable, read blockReader) (*Result, error) {
	res := &Result{LastSequence: endSeq}
	cur := jsb.Start
	seq := jsb.SequenceField

	for seq <= endSeq {
		buf, err := read(cur)
		if err != nil {
			return res, err
		}
		hdr, err := ondisk.DecodeBlockHeader(buf)
		if err != nil {
			return res, nil
		}

		switch hdr.BlockType {
		case ondisk.JournalDescriptorBlock:
			tags, err := ondisk.DecodeDescriptorTags(buf, int(jsb.BlockSize))
			if err != nil {
				return res, nil
			}
			cur = advance(jsb, cur, 1)
			for _, tag := range tags {
				dataBuf, err := read(cur)
				if err != nil {
					return res, err
				}
				if revokes.ShouldReplay(tag.BlockNr, seq) {
					if tag.Flags&ondisk.JournalFlagEscape != 0 {
						restoreEscapedMagic(dataBuf)
					}
					if err := dev.WriteAt(dataBuf, int64(tag.BlockNr)*sb.BlockSize()); err != nil {
						return res, err
					}
					res.BlocksReplayed++
				}
				cur = advance(jsb, cur, 1)
			}
		case ondisk.JournalRevokeBlock:
			cur = advance(jsb, cur, 1)
		case ondisk.JournalCommitBlock:
			res.TransactionsReplayed++
			seq++
			cur = advance(jsb, cur, 1)
		default:
			return res, nil
		}
	}

	return res, nil
}

// restoreEscapedMagic undoes the journal's escaping of a data block
// that happened to start with the journal magic number, so the
// replayed block reads back as ordinary filesystem data.
func restoreEscapedMagic(buf []byte) {
	if len(buf) >= 4 {
		buf[0], buf[1], buf[2], buf[3] = 0xc0, 0x3b, 0x39, 0x98
	}
}

// advance returns the journal block number n positions after cur,
// wrapping around the journal's circular log past First back to
// jsb.First (journal block 0 is always the journal superblock itself).
func advance(jsb *ondisk.JournalSuperblock, cur uint32, n uint32) uint32 {
	next := cur + n
	if next >= jsb.MaxLen {
		next = jsb.First + (next - jsb.MaxLen)
	}
	return next
}
