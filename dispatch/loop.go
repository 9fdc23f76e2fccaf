// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"context"
	"errors"
	"strings"

	log "github.com/luxfi/log"

	"github.com/luxfi/zkverify/metrics"
	"github.com/luxfi/zkverify/rollup"
	"github.com/luxfi/zkverify/verdict"
)

// Finisher is the loop's view of the rollup node: the finish cycle plus
// the one-shot exception endpoint. Satisfied by rollup.Client.
type Finisher interface {
	Finish(ctx context.Context, status rollup.Status) (*rollup.Request, error)
	SendException(ctx context.Context, description string) error
}

// Loop is the machine's single logical thread of control. It processes
// requests strictly in delivery order, one at a time.
type Loop struct {
	client   Finisher
	registry *Registry
	log      log.Logger
}

// NewLoop creates the dispatch loop over a handler registry.
func NewLoop(client Finisher, registry *Registry, logger log.Logger) *Loop {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Loop{client: client, registry: registry, log: logger}
}

// Run polls until ctx is cancelled or the transport fails. Each cycle
// reports the previous status ("accept" on the first iteration), waits
// for work, dispatches by request type, and carries the handler's status
// into the next cycle. Unknown request types reject and continue; a
// transport or envelope failure posts a best-effort exception and
// returns a transport_fatal error, relying on external supervision for
// restart. Context cancellation is a clean stop, not an error.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("dispatch loop started", log.String("handlers", l.handlerNames()))

	status := rollup.StatusAccept
	for {
		req, err := l.client.Finish(ctx, status)
		if errors.Is(err, rollup.ErrNoPendingWork) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info("dispatch loop stopped")
				return nil
			}
			fatal := verdict.E(verdict.KindTransportFatal, "dispatch.Run", err)
			l.log.Error("transport failure, terminating", log.String("error", fatal.Error()))
			if exErr := l.client.SendException(ctx, fatal.Error()); exErr != nil {
				l.log.Warn("exception submission failed", log.String("error", exErr.Error()))
			}
			return fatal
		}

		handler, ok := l.registry.Handler(req.Type)
		if !ok {
			l.log.Warn("unknown request type rejected",
				log.String("requestType", string(req.Type)),
			)
			status = rollup.StatusReject
			metrics.RecordRequest(string(req.Type), string(status))
			continue
		}

		status = handler.Handle(ctx, req)
		metrics.RecordRequest(string(req.Type), string(status))
	}
}

func (l *Loop) handlerNames() string {
	types := l.registry.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}
