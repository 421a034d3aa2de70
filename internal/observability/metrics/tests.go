// Package metrics standardizes the lifecycle metrics emitted by the test
// executor.
package metrics

import (
	"time"

	obserrors "github.com/compudrive/drivebench/internal/observability/errors"
	"github.com/compudrive/drivebench/internal/observability/statsd"
)

// Transition constants for metric tagging.
const (
	TransitionStarted  = "started"
	TransitionFinished = "finished"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultNoop      = "noop"
)

// TestMetric captures one test lifecycle event for metric emission.
type TestMetric struct {
	TestType   string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitTestLifecycle emits the standard counter and timing for a lifecycle
// event. A nil sink is a no-op.
func EmitTestLifecycle(sink statsd.Sink, in TestMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"test_type":  in.TestType,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("test.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("test.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags shallow-copies a tag map, dropping empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k != "" {
			out[k] = v
		}
	}
	return out
}
