package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vorteil/e2fsck/internal/elog"
	"github.com/vorteil/e2fsck/internal/engine"
	"github.com/vorteil/e2fsck/internal/ondisk"
)

var (
	flagPreen     bool
	flagYes       bool
	flagNo        bool
	flagForce     bool
	flagReadOnly  bool
	flagVerbose   bool
	flagDebug     bool
	flagNoColor   bool
	flagBadBlocks string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(8)
	}
}

// newRootCmd builds the checker's command tree, mirroring the
// teacher CLI's cobra+pflag wiring: one root command, flags bound
// with pflag, and a viper-backed config layer for anything an
// operator might otherwise repeat on every invocation.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "e2fsck [flags] device",
		Short: "Check and repair an ext2/3/4-style filesystem image",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}

	flags := root.Flags()
	flags.BoolVarP(&flagPreen, "preen", "p", false, "automatically fix simple problems without asking")
	flags.BoolVarP(&flagPreen, "auto", "a", false, "alias for -p, preen mode")
	flags.BoolVarP(&flagYes, "yes", "y", false, "assume yes to all questions")
	flags.BoolVarP(&flagNo, "no", "n", false, "assume no to all questions")
	flags.BoolVarP(&flagForce, "force", "f", false, "force a check even if the filesystem looks clean")
	flags.BoolVarP(&flagReadOnly, "read-only", "r", false, "accepted but not acted on: the device is opened read-write either way")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "print pass timing and summary statistics")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug-level logging")
	flags.BoolVar(&flagNoColor, "no-color", false, "disable colored preen-mode output")
	flags.StringVarP(&flagBadBlocks, "bad-blocks-file", "l", "", "treat sectors listed in this file as bad; pass1 offers to clear block pointers covering them")

	viper.SetEnvPrefix("E2FSCK")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	return root
}

func runCheck(cmd *cobra.Command, args []string) error {
	device := args[0]

	if flagYes && flagNo {
		return fmt.Errorf("usage error: -y and -n are mutually exclusive")
	}

	path, err := homedir.Expand(device)
	if err != nil {
		return fmt.Errorf("resolving device path: %w", err)
	}

	view := elog.NewCLI(device, viper.GetBool("preen"), viper.GetBool("verbose"), viper.GetBool("debug"))
	view.DisableColors = flagNoColor
	switch {
	case viper.GetBool("debug"):
		logrus.SetLevel(logrus.TraceLevel)
	case viper.GetBool("verbose"):
		logrus.SetLevel(logrus.DebugLevel)
	}

	dev, err := ondisk.OpenFile(path, nil)
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}
	defer dev.Close()

	var badSectors []int64
	if flagBadBlocks != "" {
		var err error
		badSectors, err = readBadBlocksFile(flagBadBlocks)
		if err != nil {
			view.Warnf("bad-blocks file %s: %v", flagBadBlocks, err)
		}
	}

	opts := engine.Options{
		Preen:      viper.GetBool("preen"),
		AssumeYes:  viper.GetBool("yes"),
		AssumeNo:   viper.GetBool("no"),
		Force:      viper.GetBool("force"),
		ReadOnly:   viper.GetBool("read-only"),
		BadSectors: badSectors,
	}

	ctx, err := engine.Run(dev, view, device, opts)
	if err != nil {
		return fmt.Errorf("checking %s: %w", device, err)
	}

	if view.IsVerbose() {
		view.Infof("%s: %d/%d inodes, %d/%d blocks used",
			device, ctx.Stats.InodesUsed, ctx.SB.TotalInodes, ctx.Stats.BlocksUsed, ctx.SB.TotalBlocks)
	}

	code := engine.ExitCode(ctx)
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// readBadBlocksFile reads an operator-supplied list of known-bad
// sector numbers (one per line), expanding any leading "~" in the
// path first. The parsed sectors are added to the in-core kill-sector
// list before pass1 runs, and pass1 treats any block covering one of
// them as an illegal block.
func readBadBlocksFile(path string) ([]int64, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}

	var sectors []int64
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		sectors = append(sectors, n)
	}
	return sectors, nil
}
