package engine

import "github.com/vorteil/e2fsck/internal/elog"

// testView is a no-op elog.View for tests that need a Context but don't
// care about log output, avoiding a dependency on *elog.CLI's
// logrus/mpb side effects in unit tests.
type testView struct{}

func (testView) Debugf(string, ...interface{}) {}
func (testView) Errorf(string, ...interface{}) {}
func (testView) Infof(string, ...interface{})  {}
func (testView) Printf(string, ...interface{}) {}
func (testView) Warnf(string, ...interface{})  {}
func (testView) IsVerbose() bool               { return false }

func (testView) NewProgress(string, int64) elog.Progress { return testProgress{} }

type testProgress struct{}

func (testProgress) Increment(int64) {}
func (testProgress) Finish()         {}

var _ elog.View = testView{}
