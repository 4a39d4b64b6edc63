// Package adapter runs toolchain commands in the execution environment and
// translates controller paths into that environment's addressing.
package adapter

import (
	"context"
	"strings"
	"time"
)

// TimeoutExitStatus is reported when a command exceeds its time limit.
const TimeoutExitStatus = 124

// Result is the structured outcome of one command.
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
	TimedOut   bool
	Duration   time.Duration
}

// OK reports a zero exit status.
func (r *Result) OK() bool { return r.ExitStatus == 0 }

// Adapter executes a shell command in the execution environment. A non-nil
// error means the command could not be run at all; a command that ran and
// failed is reported through Result.ExitStatus.
type Adapter interface {
	Execute(ctx context.Context, command string) (*Result, error)
	// ExecPath maps a controller filesystem path to the execution
	// environment's path for the same file.
	ExecPath(hostPath string) string
}

// Quote single-quotes s for inclusion in a POSIX shell command.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@%+,", r)
}
