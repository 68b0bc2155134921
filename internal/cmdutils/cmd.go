// Package cmdutils provides utility functions for running external commands.
package cmdutils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// maxStderrExcerpt bounds how much captured stderr is carried inside an ExitError.
// ffmpeg in particular can emit megabytes of filter diagnostics.
const maxStderrExcerpt = 2000

// ExitError is returned when a command runs but exits with a non-zero status.
// It carries an excerpt of the captured stderr for diagnostics.
type ExitError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed: %v: %s", e.Cmd, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Run executes the command specified by cmd with arguments args using the provided context.
// Returns stdout and stderr output; a non-zero exit is reported as an *ExitError.
func Run(ctx context.Context, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	return RunWithEnv(ctx, nil, cmd, args...)
}

// RunWithEnv is like Run but appends extraEnv entries ("KEY=value") to the command environment.
func RunWithEnv(ctx context.Context, extraEnv []string, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	stdout = &bytes.Buffer{}
	stderr = &bytes.Buffer{}

	c := exec.CommandContext(ctx, cmd, args...)
	c.Stdout = stdout
	c.Stderr = stderr
	c.Env = append(c.Env, "LANG=C")
	c.Env = append(c.Env, os.Environ()...)
	c.Env = append(c.Env, extraEnv...)

	if err := c.Run(); err != nil {
		excerpt := stderr.String()
		if len(excerpt) > maxStderrExcerpt {
			excerpt = excerpt[:maxStderrExcerpt]
		}
		return stdout, stderr, &ExitError{Cmd: cmd, Stderr: excerpt, Err: err}
	}

	return stdout, stderr, nil
}

// RunWithTimeout calls Run but a timeout is added to the provided context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return Run(c, cmd, args...)
}
