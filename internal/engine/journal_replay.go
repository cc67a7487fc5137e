package engine

import (
	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/journal"
	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// RunJournalRecovery replays a pending journal before the five main
// passes run (spec.md §4.7): ext3/4 filesystems mounted uncleanly
// leave committed-but-unflushed transactions in the journal inode,
// and the checker must apply them before any of its own consistency
// reasoning is meaningful.
func RunJournalRecovery(ctx *Context) error {
	if !ctx.SB.HasFeatureCompat(ondisk.CompatHasJournal) || ctx.SB.JournalInum == 0 {
		return nil
	}

	jIno := int64(ctx.SB.JournalInum)
	jIn, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, jIno)
	if err != nil {
		return errors.Wrap(err, "journal recovery: reading journal inode")
	}

	blocks, err := ondisk.DirBlockList(ctx.Device, ctx.SB, jIn)
	if err != nil {
		return errors.Wrap(err, "journal recovery: mapping journal blocks")
	}
	if len(blocks) == 0 {
		return nil
	}

	sbBuf := make([]byte, ctx.SB.BlockSize())
	if err := ctx.Device.ReadAt(sbBuf, blocks[0]*ctx.SB.BlockSize()); err != nil {
		return errors.Wrap(err, "journal recovery: reading journal superblock")
	}
	jsb, err := ondisk.DecodeJournalSuperblock(sbBuf)
	if err != nil {
		// no valid journal superblock: nothing committed to replay.
		return nil
	}

	read := func(journalBlock uint32) ([]byte, error) {
		if int(journalBlock) >= len(blocks) {
			return nil, errors.New("journal recovery: block index out of range")
		}
		buf := make([]byte, ctx.SB.BlockSize())
		if err := ctx.Device.ReadAt(buf, blocks[journalBlock]*ctx.SB.BlockSize()); err != nil {
			return nil, err
		}
		return buf, nil
	}

	res, err := journal.Recover(ctx.Device, ctx.SB, jsb, read)
	if err != nil {
		ctx.Fix(problem.Code("PR_J_RECOVERY_INCOMPLETE"), &problem.Context{})
		return err
	}
	if res != nil {
		ctx.View.Infof("journal recovery: replayed %d transactions, %d blocks (%d revoked)",
			res.TransactionsReplayed, res.BlocksReplayed, res.BlocksRevoked)
	}

	return nil
}
