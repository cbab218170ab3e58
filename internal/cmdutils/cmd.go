// Package cmdutils provides utility functions for running commands.
package cmdutils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Run executes the command specified by cmd with arguments args using the provided context.
// Returns stdout and stderr output and error code.
func Run(ctx context.Context, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	stdout = &bytes.Buffer{}
	stderr = &bytes.Buffer{}

	c := exec.CommandContext(ctx, cmd, args...)
	c.Stdout = stdout
	c.Stderr = stderr
	c.Env = append(c.Env, "LANG=C")
	c.Env = append(c.Env, os.Environ()...)
	err = c.Run()

	return stdout, stderr, err
}

// RunWithTimeout calls Run but a timeout is added to the provided context.
// A zero timeout only uses the provided context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	if timeout <= 0 {
		return Run(ctx, cmd, args...)
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return Run(c, cmd, args...)
}

// Describe formats a failed command and its trimmed stderr for error messages.
func Describe(cmd string, args []string, stderr *bytes.Buffer) string {
	line := strings.TrimSpace(strings.Join(append([]string{cmd}, args...), " "))
	if stderr == nil || strings.TrimSpace(stderr.String()) == "" {
		return line
	}
	return fmt.Sprintf("%s (stderr: %s)", line, strings.TrimSpace(stderr.String()))
}
