// Package executor runs firmware commands with the privileges needed to touch
// sysfs and the ACPI call interface.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Elevation modes.
const (
	ElevateAuto   = "auto"
	ElevateNone   = "none"
	ElevatePkexec = "pkexec"
	ElevateSudo   = "sudo"
)

// Executor runs a command string and returns its trimmed standard output.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// ExecError describes a command that could not run or exited non-zero.
type ExecError struct {
	Command  string
	ExitCode int // -1 when the process never started
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.ExitCode >= 0 {
		return fmt.Sprintf("exit status %d: %s", e.ExitCode, detail)
	}
	return detail
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// FailureText renders err the way failed probes are shown to the user.
func FailureText(err error) string {
	return "Error: " + err.Error()
}

// IsExecError reports whether err (or anything it wraps) is an *ExecError.
func IsExecError(err error) bool {
	var execErr *ExecError
	return errors.As(err, &execErr)
}

// Shell runs commands through a shell, optionally behind pkexec or sudo.
type Shell struct {
	shell   string
	elevate string
}

// NewShell creates a shell executor. shell defaults to "bash"; elevate is one
// of the Elevate* modes and defaults to ElevateAuto.
func NewShell(shell, elevate string) (*Shell, error) {
	if shell == "" {
		shell = "bash"
	}
	if elevate == "" {
		elevate = ElevateAuto
	}
	switch elevate {
	case ElevateAuto:
		if os.Geteuid() == 0 {
			elevate = ElevateNone
		} else {
			elevate = ElevatePkexec
		}
	case ElevateNone, ElevatePkexec, ElevateSudo:
	default:
		return nil, fmt.Errorf("unknown elevation mode %q", elevate)
	}
	return &Shell{shell: shell, elevate: elevate}, nil
}

// Elevation returns the resolved elevation mode.
func (s *Shell) Elevation() string {
	return s.elevate
}

// Argv returns the process arguments used to run command.
func (s *Shell) Argv(command string) []string {
	argv := []string{s.shell, "-c", command}
	switch s.elevate {
	case ElevatePkexec:
		return append([]string{"pkexec"}, argv...)
	case ElevateSudo:
		return append([]string{"sudo", "-n"}, argv...)
	default:
		return argv
	}
}

// Execute runs command to completion. The context is only checked before the
// process starts: a firmware command that has been issued is never killed.
func (s *Shell) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ExecError{Command: command, ExitCode: -1, Err: err}
	}

	argv := s.Argv(command)
	cmd := exec.Command(argv[0], argv[1:]...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	log.Debug().Str("command", command).Str("elevate", s.elevate).Msg("Executing firmware command")

	err := cmd.Run()
	if err != nil {
		execErr := &ExecError{
			Command:  command,
			ExitCode: -1,
			Stderr:   errBuf.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		log.Debug().Err(execErr).Str("command", command).Msg("Firmware command failed")
		return "", execErr
	}

	return strings.TrimSpace(outBuf.String()), nil
}
