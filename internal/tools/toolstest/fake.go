// Package toolstest provides a canned-output Runner for handler and scanner
// tests.
package toolstest

import (
	"context"
	"strings"
	"sync"

	"github.com/compudrive/drivebench/internal/tools"
)

// Response is one scripted reply for a command.
type Response struct {
	Result tools.Result
	// Lines are delivered through the Stream onLine callback before the
	// result is returned.
	Lines []string
	Err   error
}

// FakeRunner replays scripted responses keyed by command line prefix. The
// longest matching key wins, so "smartctl -l" can be scripted separately
// from "smartctl -t".
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []tools.Command
}

var _ tools.Runner = (*FakeRunner)(nil)

// NewFakeRunner constructs an empty fake runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]Response)}
}

// Script registers a response for command lines starting with prefix,
// e.g. "smartctl -a" or "lsblk".
func (f *FakeRunner) Script(prefix string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = resp
}

// Calls returns every command observed so far.
func (f *FakeRunner) Calls() []tools.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tools.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallLines renders observed calls as command-line strings for assertions.
func (f *FakeRunner) CallLines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = commandLine(c)
	}
	return out
}

func (f *FakeRunner) lookup(cmd tools.Command) (Response, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	line := commandLine(cmd)
	var best string
	for prefix := range f.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Response{}, false
	}
	return f.responses[best], true
}

// Output implements tools.Runner.
func (f *FakeRunner) Output(ctx context.Context, cmd tools.Command) (tools.Result, error) {
	if err := ctx.Err(); err != nil {
		return tools.Result{ExitCode: -1}, err
	}
	resp, ok := f.lookup(cmd)
	if !ok {
		return tools.Result{ExitCode: 0}, nil
	}
	return resp.Result, resp.Err
}

// Stream implements tools.Runner.
func (f *FakeRunner) Stream(ctx context.Context, cmd tools.Command, onLine func(string)) (tools.Result, error) {
	if err := ctx.Err(); err != nil {
		return tools.Result{ExitCode: -1}, err
	}
	resp, ok := f.lookup(cmd)
	if !ok {
		return tools.Result{ExitCode: 0}, nil
	}
	for _, line := range resp.Lines {
		select {
		case <-ctx.Done():
			return resp.Result, ctx.Err()
		default:
		}
		if onLine != nil {
			onLine(line)
		}
	}
	return resp.Result, resp.Err
}

func commandLine(cmd tools.Command) string {
	if len(cmd.Args) == 0 {
		return cmd.Name
	}
	return cmd.Name + " " + strings.Join(cmd.Args, " ")
}
