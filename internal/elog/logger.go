// Package elog provides the checker's logging and progress-reporting
// surface. It mirrors the teacher CLI's logging package: a thin
// interface over logrus with a preen-mode device-name prefix and
// mpb-backed progress bars for long passes.
package elog

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Logger is the subset of logging the engine needs; it hides
// debug/info noise unless verbose/debug modes are enabled.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsVerbose() bool
}

// ProgressReporter creates progress bars for long-running passes.
type ProgressReporter interface {
	NewProgress(label string, total int64) Progress
}

// Progress tracks incremental work within a single pass.
type Progress interface {
	Increment(n int64)
	Finish()
}

// View combines logging and progress reporting, the shape every
// engine component receives.
type View interface {
	Logger
	ProgressReporter
}

// CLI is the default View backed by logrus + mpb, matching the
// teacher's pkg/elog.CLI.
type CLI struct {
	DeviceName    string
	Preen         bool
	DisableColors bool
	Verbose       bool
	Debug         bool

	lock     sync.Mutex
	progress *mpb.Progress
}

// NewCLI builds a CLI logger for the given device name.
func NewCLI(device string, preen, verbose, debug bool) *CLI {
	return &CLI{DeviceName: device, Preen: preen, Verbose: verbose, Debug: debug}
}

func (c *CLI) prefix() string {
	if !c.Preen {
		return ""
	}
	name := c.DeviceName
	if !c.DisableColors {
		name = color.New(color.FgYellow).Sprint(name)
	}
	return name + ": "
}

// Debugf logs at trace level, gated on Debug.
func (c *CLI) Debugf(format string, x ...interface{}) {
	if c.Debug {
		logrus.Tracef(c.prefix()+format, x...)
	}
}

// Errorf logs at error level unconditionally.
func (c *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(c.prefix()+format, x...)
}

// Infof logs at debug level, gated on Verbose.
func (c *CLI) Infof(format string, x ...interface{}) {
	if c.Verbose {
		logrus.Debugf(c.prefix()+format, x...)
	}
}

// Printf emits the checker's primary problem/status output; in preen
// mode every line carries the device-name prefix, matching the
// reference implementation's -p output.
func (c *CLI) Printf(format string, x ...interface{}) {
	fmt.Print(c.prefix())
	logrus.Printf(format, x...)
}

// Warnf logs at warn level unconditionally.
func (c *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(c.prefix()+format, x...)
}

// IsVerbose reports whether -v statistics should be printed.
func (c *CLI) IsVerbose() bool {
	return c.Verbose
}

type barProgress struct {
	bar *mpb.Bar
}

func (p *barProgress) Increment(n int64) {
	p.bar.IncrInt64(n)
}

func (p *barProgress) Finish() {
	p.bar.SetTotal(p.bar.Current(), true)
}

// NewProgress returns a progress bar for a pass with `total` units of
// work (inodes scanned, directory blocks checked, journal blocks
// replayed). In preen mode no bar is shown since preen output must
// stay line-oriented.
func (c *CLI) NewProgress(label string, total int64) Progress {
	if c.Preen || total <= 0 {
		return noopProgress{}
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.progress == nil {
		c.progress = mpb.New(mpb.WithWidth(40))
	}

	bar := c.progress.AddBar(total,
		mpb.PrependDecorators(decor.Name(label)),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	return &barProgress{bar: bar}
}

type noopProgress struct{}

func (noopProgress) Increment(int64) {}
func (noopProgress) Finish()         {}
