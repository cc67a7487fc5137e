package engine

import (
	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/elog"
	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

// Options controls one checker invocation, mirroring the -p/-a/-y/-n/-f
// flags of spec.md §6.
type Options struct {
	Preen       bool
	AssumeYes   bool
	AssumeNo    bool
	Force       bool // check even if the filesystem's clean flag is set
	ReadOnly    bool
	BadSectors  []int64 // operator-supplied -l bad-block-file contents
}

// Run executes journal recovery followed by the five main passes
// against dev, returning the final Context for the caller to inspect
// (stats, Aborted/Valid flags) and an error only for unrecoverable
// I/O or structural failures; ordinary inconsistencies are resolved
// through the problem engine and never returned as Go errors.
func Run(dev ondisk.Device, view elog.View, device string, opts Options) (*Context, error) {
	sb, err := ondisk.ReadSuperblock(dev, 0)
	if err != nil {
		return nil, errors.Wrap(err, "reading superblock")
	}

	if sb.State&ondisk.StateValid != 0 && !opts.Force {
		view.Infof("%s: clean, check skipped (use -f to force)", device)
		ctx := NewContext(dev, sb, nil, view, problem.NewEngine(view, device, opts.Preen, opts.AssumeYes, opts.AssumeNo))
		return ctx, nil
	}

	groups, err := ondisk.ReadGroupDescriptors(dev, sb)
	if err != nil {
		return nil, errors.Wrap(err, "reading group descriptors")
	}

	probEngine := problem.NewEngine(view, device, opts.Preen, opts.AssumeYes, opts.AssumeNo)
	ctx := NewContext(dev, sb, groups, view, probEngine)
	for _, sector := range opts.BadSectors {
		ctx.KillSectors.Add(sector)
	}

	if err := RunPass0(ctx); err != nil {
		return ctx, errors.Wrap(err, "running pass0")
	}
	if probEngine.Aborted {
		return ctx, nil
	}

	if err := RunJournalRecovery(ctx); err != nil {
		return ctx, err
	}
	if probEngine.Aborted {
		return ctx, nil
	}

	type step struct {
		name string
		run  func(*Context) error
	}
	steps := []step{
		{"pass1", RunPass1},
		{"pass1bcd", RunPass1BCD},
		{"pass2", RunPass2},
		{"pass3", RunPass3},
		{"pass4", RunPass4},
		{"htree rehash", RunHTreeRehash},
		{"pass5", RunPass5},
	}

	for _, s := range steps {
		track := StartTrack(s.name)
		if err := s.run(ctx); err != nil {
			return ctx, errors.Wrapf(err, "running %s", s.name)
		}
		if view.IsVerbose() {
			view.Infof("%s: %s", s.name, track.Stop())
		}
		if probEngine.Aborted {
			break
		}
	}

	if probEngine.Valid && !probEngine.Aborted {
		sb.State |= ondisk.StateValid
		sb.TimeLastCheck = sb.LastMountTime
		if err := ondisk.WriteSuperblock(dev, sb, 0); err != nil {
			return ctx, err
		}
	}

	return ctx, nil
}

// ExitCode computes the fsck-conventional bitmask exit status from
// the final context (§6): 0 no errors, 1 errors corrected, 2 errors
// corrected and a reboot is recommended (unused by this offline
// tool), 4 errors left uncorrected, 8 operational error, 16 usage
// error (handled by the CLI layer itself), 128 shared-library error
// (unused).
func ExitCode(ctx *Context) int {
	code := 0
	if ctx.Stats.FixedCount > 0 {
		code |= 1
	}
	if ctx.Problem.Aborted {
		code |= 8
	}
	if !ctx.Problem.Valid {
		code |= 4
	}
	return code
}
