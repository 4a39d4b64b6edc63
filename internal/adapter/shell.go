package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Shell runs commands through a local shell, optionally behind a launcher
// such as "wsl".
type Shell struct {
	// Launcher is prepended to the shell invocation, e.g. ["wsl"].
	Launcher []string
	// Shell defaults to "bash".
	Shell   string
	Env     []string
	Timeout time.Duration
	Mapper  func(string) string
	Logger  *slog.Logger
}

// NewLocal runs commands with bash on the controller host; paths are unchanged.
func NewLocal(env []string, timeout time.Duration, logger *slog.Logger) *Shell {
	return &Shell{Shell: "bash", Env: env, Timeout: timeout, Logger: logger}
}

// NewWSL runs commands inside the Windows Subsystem for Linux and maps Windows
// drive paths to their /mnt mount points.
func NewWSL(env []string, timeout time.Duration, logger *slog.Logger) *Shell {
	return &Shell{
		Launcher: []string{"wsl"},
		Shell:    "bash",
		Env:      env,
		Timeout:  timeout,
		Mapper:   WindowsToWSLPath,
		Logger:   logger,
	}
}

func (s *Shell) ExecPath(hostPath string) string {
	if s.Mapper != nil {
		return s.Mapper(hostPath)
	}
	return hostPath
}

func (s *Shell) Execute(ctx context.Context, command string) (*Result, error) {
	shell := s.Shell
	if shell == "" {
		shell = "bash"
	}
	args := append(append([]string{}, s.Launcher...), shell, "-c", command)

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Env = append(os.Environ(), s.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if s.Logger != nil {
		s.Logger.Debug("exec", "command", command)
	}
	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			res.ExitStatus = TimeoutExitStatus
			res.TimedOut = true
		case errors.As(err, &exitErr):
			res.ExitStatus = exitErr.ExitCode()
			if res.ExitStatus < 0 {
				res.ExitStatus = 1
			}
		default:
			return nil, fmt.Errorf("running %s: %w", args[0], err)
		}
	}
	return res, nil
}

// WindowsToWSLPath converts "Z:\dir\file" to "/mnt/z/dir/file". Other paths
// only have their separators normalized.
func WindowsToWSLPath(p string) string {
	if len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
		drive := strings.ToLower(p[:1])
		rest := strings.ReplaceAll(p[3:], `\`, "/")
		return "/mnt/" + drive + "/" + rest
	}
	return filepath.ToSlash(strings.ReplaceAll(p, `\`, "/"))
}
