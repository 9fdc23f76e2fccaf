// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dispatch runs the machine's request cycle: long-poll the rollup
// node, route each request to its handler, and report the resulting
// status on the next poll. Handler failures resolve to "reject" and the
// loop continues; only transport and envelope failures are fatal.
package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/luxfi/zkverify/rollup"
)

// Handler processes one rollup request. The returned status becomes the
// next finish payload; handlers never terminate the loop.
type Handler interface {
	Handle(ctx context.Context, req *rollup.Request) rollup.Status
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *rollup.Request) rollup.Status

func (f HandlerFunc) Handle(ctx context.Context, req *rollup.Request) rollup.Status {
	return f(ctx, req)
}

// Registry maps request types to handlers. Registration happens at
// construction time; the registry is read-only while the loop runs.
type Registry struct {
	handlers map[rollup.RequestType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[rollup.RequestType]Handler)}
}

// Register binds a handler to a request type.
func (r *Registry) Register(requestType rollup.RequestType, h Handler) error {
	if requestType == "" {
		return fmt.Errorf("request type must not be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %s must not be nil", requestType)
	}
	if _, exists := r.handlers[requestType]; exists {
		return fmt.Errorf("request type %s already has a handler", requestType)
	}
	r.handlers[requestType] = h
	return nil
}

// Handler returns the handler bound to requestType.
func (r *Registry) Handler(requestType rollup.RequestType) (Handler, bool) {
	h, ok := r.handlers[requestType]
	return h, ok
}

// Types returns the registered request types, sorted to ensure
// deterministic iteration.
func (r *Registry) Types() []rollup.RequestType {
	types := make([]rollup.RequestType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
