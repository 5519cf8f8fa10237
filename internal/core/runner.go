// Package core implements the subprocess interface used by the executor.
package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// RunOutput holds the captured result of a spawned command.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner spawns a command, captures its output, and enforces the context
// deadline. The executor treats it as an opaque subprocess interface so tests
// can substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, command string) (*RunOutput, error)
}

// ShellRunner runs commands through the shell, inheriting the process
// environment.
type ShellRunner struct {
	// Shell overrides the shell binary. Defaults to $SHELL, then /bin/sh.
	Shell string
	// Dir is the working directory for spawned commands.
	Dir string
}

// Run executes the command with separate stdout/stderr capture. A context
// deadline forcibly terminates the process; the caller distinguishes timeouts
// via ctx.Err().
func (r *ShellRunner) Run(ctx context.Context, command string) (*RunOutput, error) {
	shell := r.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = r.Dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	out := &RunOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Spawn failure: the process never started.
		return nil, err
	}

	return out, nil
}
