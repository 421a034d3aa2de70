// Package testexec contains the test execution engine: the immutable
// handler registry and the supervisor that runs at most one isolated test
// worker per device.
package testexec

import (
	"sort"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

// Registry maps test types to their handlers. It is populated once during
// bootstrap and read-only afterwards, so lookups need no locking.
type Registry struct {
	handlers map[model.TestType]core.TestHandler
}

// NewRegistry builds a registry from the given handler set. Every key must
// be a known test type with a non-nil handler.
func NewRegistry(handlers map[model.TestType]core.TestHandler) (*Registry, error) {
	m := make(map[model.TestType]core.TestHandler, len(handlers))
	for t, h := range handlers {
		if !t.Valid() {
			return nil, apperrors.UnknownTestType(string(t))
		}
		if h == nil {
			return nil, apperrors.Internalf("nil handler registered for test type %q", t)
		}
		m[t] = h
	}
	return &Registry{handlers: m}, nil
}

// Lookup returns the handler for a test type.
func (r *Registry) Lookup(t model.TestType) (core.TestHandler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, apperrors.UnknownTestType(string(t))
	}
	return h, nil
}

// Types returns the registered test types in stable order.
func (r *Registry) Types() []model.TestType {
	out := make([]model.TestType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
