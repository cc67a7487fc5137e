package engine

import (
	"github.com/google/uuid"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// RunPass0 performs the superblock/journal sanity checks the real
// passes assume already hold: a usable filesystem UUID, and (for
// journal-enabled filesystems) an external journal UUID that actually
// matches the filesystem it claims to belong to. It runs once, before
// RunJournalRecovery and the five numbered passes.
func RunPass0(ctx *Context) error {
	if isNilUUID(ctx.SB.UUID) {
		if ctx.Fix(problem.Code("PR_0_NULL_UUID"), &problem.Context{}) {
			fresh := uuid.New()
			copy(ctx.SB.UUID[:], fresh[:])
			if err := ondisk.WriteSuperblock(ctx.Device, ctx.SB, 0); err != nil {
				return err
			}
		}
	}

	if ctx.SB.HasFeatureCompat(ondisk.CompatHasJournal) && !isNilUUID(ctx.SB.JournalUUID) {
		have, err := uuid.FromBytes(ctx.SB.JournalUUID[:])
		if err != nil {
			return nil
		}
		want, err := uuid.FromBytes(ctx.SB.UUID[:])
		if err != nil {
			return nil
		}
		if have != want {
			if ctx.Fix(problem.Code("PR_0_JOURNAL_UUID_MISMATCH"), &problem.Context{Str: have.String()}) {
				ctx.SB.JournalUUID = [16]byte{}
				if err := ondisk.WriteSuperblock(ctx.Device, ctx.SB, 0); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func isNilUUID(b [16]byte) bool {
	return b == [16]byte{}
}
