package problem

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/vorteil/e2fsck/internal/elog"
)

// latchState tracks whether a latch's shared question has been asked
// yet and what answer it is bound to (§4.1 Latches).
type latchState struct {
	asked    bool
	answered bool
	yes      bool
	suppress bool
}

// Engine drives fix_problem for one checker run. It owns the
// preen/yes/no policy, the filesystem-valid flag, and every latch's
// state, so the decision logic lives in exactly one place regardless
// of which pass is asking.
type Engine struct {
	Log    elog.Logger
	Preen  bool
	Yes    bool
	No     bool
	Device string

	// Valid tracks whether the in-memory superblock's VALID flag should
	// stay set; any unresolved "no" answer on a non-no-ok problem clears it.
	Valid bool
	// Aborted is set when a fatal problem or an Abort-prompt "yes"
	// answer should terminate the run.
	Aborted bool

	latches map[string]*latchState
	reader  *bufio.Reader
}

// NewEngine constructs a problem engine bound to the given
// preen/yes/no policy, matching the -p/-a, -y, -n CLI flags of §6.
func NewEngine(log elog.Logger, device string, preen, yes, no bool) *Engine {
	return &Engine{
		Log:     log,
		Preen:   preen,
		Yes:     yes,
		No:      no,
		Device:  device,
		Valid:   true,
		latches: make(map[string]*latchState),
	}
}

func (e *Engine) defaultAnswer(entry Entry) bool {
	if e.Yes {
		return true
	}
	if e.No {
		return false
	}
	if e.Preen {
		return entry.Flags&FlagDefaultNo == 0
	}
	return entry.Flags&FlagDefaultNo == 0
}

func actionTag(entry Entry, answer bool) string {
	if !answer {
		return "IGNORED"
	}
	switch entry.Prompt {
	case PromptFix:
		return "FIXED"
	case PromptClear, PromptClearInode:
		return "CLEARED"
	case PromptRelocate:
		return "RELOCATED"
	case PromptAllocate:
		return "ALLOCATED"
	case PromptExpand:
		return "EXPANDED"
	case PromptConnect:
		return "RECONNECTED"
	case PromptCreate:
		return "CREATED"
	case PromptSalvage:
		return "SALVAGED"
	case PromptTruncate:
		return "TRUNCATED"
	case PromptSplit:
		return "SPLIT"
	case PromptClone:
		return "CLONED"
	case PromptDelete:
		return "DELETED"
	case PromptUnlink:
		return "UNLINKED"
	default:
		return "FIXED"
	}
}

// FixProblem implements the §4.1 contract end to end and returns the
// operator's (or policy-derived) answer.
func (e *Engine) FixProblem(code Code, pctx *Context) bool {
	entry, ok := Catalog[code]
	if !ok {
		e.Log.Errorf("internal error: unknown problem code %q", code)
		return false
	}

	answer := e.fixOne(entry, pctx)

	if answer && entry.Flags&FlagAfterCode != 0 && entry.FollowUp != "" {
		e.FixProblem(entry.FollowUp, pctx)
	}

	if entry.Prompt == PromptAbort && answer {
		e.Aborted = true
	}

	return answer
}

func (e *Engine) fixOne(entry Entry, pctx *Context) bool {
	def := e.defaultAnswer(entry)

	// step 3: latched problems ask their shared question once, then
	// every further problem sharing the latch inherits that answer.
	var latch *latchState
	if entry.Latch != "" {
		latch = e.latches[entry.Latch]
		if latch == nil {
			latch = &latchState{}
			e.latches[entry.Latch] = latch
		}
	}

	if latch != nil && latch.answered {
		return e.finish(entry, pctx, latch.yes)
	}

	// step 4: print the expanded message unless suppressed.
	if !(e.Preen && entry.Flags&FlagPreenNoMsg != 0) {
		e.printMessage(entry, pctx)
	}

	// step 5: an interactive-only problem in preen mode halts the run.
	if e.Preen && entry.Flags&FlagPreenOK == 0 && entry.Prompt != PromptNone {
		e.preenhalt()
		return false
	}

	// step 6: fatal problems abort unconditionally.
	if entry.Flags&FlagFatal != 0 {
		e.Aborted = true
		return false
	}

	// step 7: obtain the answer.
	var answer bool
	switch {
	case latch != nil:
		answer = def
		if !e.Preen && !e.Yes && !e.No {
			answer = e.prompt("Fix all problems of this kind for the rest of this pass", def)
		}
		latch.answered = true
		latch.yes = answer
	case e.Preen:
		answer = def
		if entry.Flags&FlagPreenNo != 0 && answer {
			e.Aborted = true
		}
	case e.Yes:
		answer = true
	case e.No:
		answer = false
	case entry.Prompt == PromptNone:
		answer = def
	default:
		answer = e.prompt(entry.Code.question(), def)
	}

	if e.Preen && entry.Flags&FlagPreenNoMsg == 0 {
		e.Log.Printf("%s", actionTag(entry, answer))
	}

	return e.finish(entry, pctx, answer)
}

// preenhalt mirrors the reference implementation's preenhalt(): an
// interactive-only prompt reached while preening means the run cannot
// proceed safely unattended, so it stops and asks for manual -y/-n.
func (e *Engine) preenhalt() {
	e.Log.Errorf("%s: UNEXPECTED INCONSISTENCY; RUN fsck MANUALLY.", e.Device)
	e.Aborted = true
}

func (e *Engine) finish(entry Entry, pctx *Context, answer bool) bool {
	if !answer && entry.Flags&FlagNoOK == 0 {
		e.Valid = false
	}
	if answer {
		e.Log.Printf("%s", actionTag(entry, answer))
	}
	_ = pctx
	return answer
}

func (e *Engine) printMessage(entry Entry, pctx *Context) {
	e.Log.Printf("%s", Expand(entry.Message, pctx))
}

// question renders a generic yes/no question for a code lacking a
// catalog-specific prompt string; most catalog entries rely on their
// Message already reading as a question-free statement followed by
// this generic tail, matching the reference's terse "Fix? yes"
// convention.
func (c Code) question() string {
	return "Fix"
}

func yn(def bool) string {
	if def {
		return "y"
	}
	return "n"
}

// prompt reads one interactive yes/no answer from stdin. When stdin
// is not a terminal (piped input, CI, batch runs without -y/-n) it
// falls back to the computed default rather than blocking forever,
// the same accommodation go-isatty lets the teacher's CLI make for
// non-interactive shells.
func (e *Engine) prompt(question string, def bool) bool {
	fmt.Printf("%s%s? %s/%s ", e.devicePrefix(), question, ynWord(true), ynWord(false))

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Println(yn(def))
		return def
	}

	if e.reader == nil {
		e.reader = bufio.NewReader(os.Stdin)
	}

	line, err := e.reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(strings.ToLower(line))
	if line == "" {
		return def
	}
	return line[0] == 'y'
}

func (e *Engine) devicePrefix() string {
	if e.Preen {
		return e.Device + ": "
	}
	return ""
}

func ynWord(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
