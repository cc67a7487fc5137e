package problem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogger struct {
	lines []string
}

func (f *fakeLogger) Debugf(format string, x ...interface{}) {}
func (f *fakeLogger) Errorf(format string, x ...interface{}) { f.lines = append(f.lines, format) }
func (f *fakeLogger) Infof(format string, x ...interface{})  {}
func (f *fakeLogger) Printf(format string, x ...interface{}) { f.lines = append(f.lines, format) }
func (f *fakeLogger) Warnf(format string, x ...interface{})  {}
func (f *fakeLogger) IsVerbose() bool                        { return false }

func TestFixProblemAssumeYesAnswersYes(t *testing.T) {
	log := &fakeLogger{}
	e := NewEngine(log, "dev0", false, true, false)

	got := e.FixProblem("PR_1_ZERO_DTIME", &Context{Ino: 12})
	assert.True(t, got)
	assert.True(t, e.Valid)
}

func TestFixProblemAssumeNoAnswersNoAndClearsValid(t *testing.T) {
	log := &fakeLogger{}
	e := NewEngine(log, "dev0", false, false, true)

	got := e.FixProblem("PR_1_ZERO_DTIME", &Context{Ino: 12})
	assert.False(t, got)
	assert.False(t, e.Valid)
}

func TestFixProblemUnknownCodeReturnsFalse(t *testing.T) {
	log := &fakeLogger{}
	e := NewEngine(log, "dev0", false, true, false)

	got := e.FixProblem(Code("PR_NOT_A_REAL_CODE"), &Context{})
	assert.False(t, got)
}

func TestFixProblemPreenHaltsOnInteractiveOnlyProblem(t *testing.T) {
	log := &fakeLogger{}
	e := NewEngine(log, "dev0", true, false, false)

	// PR_1_BB_FILE_NO_DIR is not marked FlagPreenOK, so preen mode must
	// halt rather than silently answering.
	got := e.FixProblem("PR_1_BB_FILE_NO_DIR", &Context{Blk: 5})
	assert.False(t, got)
	assert.True(t, e.Aborted)
}

func TestFixProblemLatchSharesAnswerAcrossCalls(t *testing.T) {
	log := &fakeLogger{}
	e := NewEngine(log, "dev0", false, true, false)

	first := e.FixProblem("PR_1_ILLEGAL_BLOCK_NUM", &Context{Ino: 1, Blk: 10})
	require.True(t, first)

	// switch the policy to -n: the latched "yes" must still win.
	e.Yes, e.No = false, true
	second := e.FixProblem("PR_1_ILLEGAL_BLOCK_NUM", &Context{Ino: 2, Blk: 20})
	assert.True(t, second)
}

func TestNewEngineDefaultsValidTrue(t *testing.T) {
	e := NewEngine(&fakeLogger{}, "dev0", false, false, false)
	assert.True(t, e.Valid)
	assert.False(t, e.Aborted)
}
