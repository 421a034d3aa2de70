// Package tools wraps invocation of external disk utilities (smartctl,
// badblocks, lsblk, dd, mkfs, ...). Every test worker does its real work in
// a child OS process started through this package, which is what isolates
// one drive's blocking I/O from every other drive's.
package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Command describes one external tool invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
	// Timeout bounds the invocation; zero means no tool-level bound (the
	// caller's context still applies).
	Timeout time.Duration
}

// Result carries the captured output of a finished invocation. A nonzero
// ExitCode is not an error at this layer; handlers decide what it means.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external tools. The interface exists so handler and
// scanner tests can substitute canned output for real invocations.
type Runner interface {
	// Output runs the command to completion and captures stdout/stderr.
	Output(ctx context.Context, cmd Command) (Result, error)
	// Stream runs the command, invoking onLine for every output line as it
	// appears. badblocks and dd report progress incrementally on stderr.
	Stream(ctx context.Context, cmd Command, onLine func(line string)) (Result, error)
}

// ExecRunner runs commands as real child processes. On context cancellation
// the child receives SIGTERM and, after GracePeriod, SIGKILL.
type ExecRunner struct {
	// GracePeriod is the delay between cooperative and forceful termination.
	GracePeriod time.Duration
}

var _ Runner = (*ExecRunner)(nil)

// ErrToolNotFound wraps exec.ErrNotFound for callers that degrade gracefully
// when an optional tool (fio, hdsentinel) is not installed.
var ErrToolNotFound = exec.ErrNotFound

const defaultGracePeriod = 5 * time.Second

func (r *ExecRunner) grace() time.Duration {
	if r.GracePeriod > 0 {
		return r.GracePeriod
	}
	return defaultGracePeriod
}

func (r *ExecRunner) build(ctx context.Context, cmd Command) (*exec.Cmd, context.CancelFunc) {
	cancel := func() {}
	if cmd.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Cancel = func() error {
		// Cooperative first; WaitDelay escalates to SIGKILL.
		return c.Process.Signal(syscall.SIGTERM)
	}
	c.WaitDelay = r.grace()
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	return c, cancel
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, cmd Command) (Result, error) {
	c, cancel := r.build(ctx, cmd)
	defer cancel()

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: c.ProcessState.ExitCode(),
	}
	return finish(ctx, cmd, res, err)
}

// Stream implements Runner.
func (r *ExecRunner) Stream(ctx context.Context, cmd Command, onLine func(string)) (Result, error) {
	c, cancel := r.build(ctx, cmd)
	defer cancel()

	stdoutPipe, err := c.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%s: stdout pipe: %w", cmd.Name, err)
	}
	stderrPipe, err := c.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%s: stderr pipe: %w", cmd.Name, err)
	}

	if err = c.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%s: start: %w", cmd.Name, err)
	}

	var mu sync.Mutex
	var stdout, stderr strings.Builder
	emit := func(dst *strings.Builder, line string) {
		mu.Lock()
		dst.WriteString(line)
		dst.WriteByte('\n')
		mu.Unlock()
		if onLine != nil {
			onLine(line)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdoutPipe, func(line string) { emit(&stdout, line) })
	}()
	go func() {
		defer wg.Done()
		scanLines(stderrPipe, func(line string) { emit(&stderr, line) })
	}()
	wg.Wait()

	err = c.Wait()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: c.ProcessState.ExitCode(),
	}
	return finish(ctx, cmd, res, err)
}

// finish normalizes run errors: nonzero exits surface through
// Result.ExitCode, context expiry takes precedence over the resulting kill
// error, and anything else (binary missing, permission) is a real error.
func finish(ctx context.Context, cmd Command, res Result, err error) (Result, error) {
	if cerr := ctx.Err(); cerr != nil {
		return res, cerr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Tool-level timeout shows up as a killed child.
			return res, nil
		}
		return res, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return res, nil
}

// scanLines splits on both newlines and carriage returns so progress lines
// that tools rewrite in place (badblocks, dd status) are still observed.
func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(splitProgressLines)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			fn(line)
		}
	}
}

func splitProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
