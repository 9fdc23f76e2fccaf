// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	log "github.com/luxfi/log"

	"github.com/luxfi/zkverify/metrics"
	"github.com/luxfi/zkverify/payload"
	"github.com/luxfi/zkverify/rollup"
	"github.com/luxfi/zkverify/store"
	"github.com/luxfi/zkverify/verifier"
)

// auditQuerySize is the decoded length that selects the audit-query path.
// A combined proof payload is always larger than its 32-byte identity
// suffix, so the two shapes cannot collide.
const auditQuerySize = 8

// AuditReader looks up audit records. Satisfied by store.Store.
type AuditReader interface {
	Get(index uint64) (*store.Record, error)
}

// InspectHandler answers inspect_state requests: audit queries by input
// index, and dry-run verifications for any other payload shape. Inspect
// never mutates consensus state.
type InspectHandler struct {
	verifier *verifier.Verifier
	reporter *Reporter
	audit    AuditReader
	log      log.Logger
}

// NewInspectHandler wires the read-only query path.
func NewInspectHandler(v *verifier.Verifier, r *Reporter, audit AuditReader, logger log.Logger) *InspectHandler {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &InspectHandler{verifier: v, reporter: r, audit: audit, log: logger}
}

// Handle disambiguates by decoded payload shape: exactly 8 bytes is a
// little-endian u64 audit query, anything else a dry-run verification.
func (h *InspectHandler) Handle(ctx context.Context, req *rollup.Request) rollup.Status {
	data, err := payload.Decode(req.Data.Payload)
	if err != nil {
		return h.reporter.Reject(ctx, err, Lengths{Payload: len(req.Data.Payload)}).Status
	}

	if len(data) == auditQuerySize {
		return h.answerAuditQuery(ctx, binary.LittleEndian.Uint64(data))
	}

	receiptBytes, identityBytes, err := payload.Split(data)
	if err != nil {
		return h.reporter.Reject(ctx, err, Lengths{Payload: len(data)}).Status
	}

	sizes := Lengths{Payload: len(data), Receipt: len(receiptBytes), Identity: len(identityBytes)}
	started := time.Now()
	res := h.verifier.Verify(receiptBytes, identityBytes)
	metrics.RecordVerification(res.Kind.String(), res.CacheHit, time.Since(started))

	return h.reporter.Inspect(ctx, res, sizes, payloadFingerprint(data)).Status
}

func (h *InspectHandler) answerAuditQuery(ctx context.Context, index uint64) rollup.Status {
	rec, err := h.audit.Get(index)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Warn("audit query failed",
				log.Uint64("inputIndex", index),
				log.String("error", err.Error()),
			)
		}
		h.reporter.ReportAuditMiss(ctx, index, err)
		return rollup.StatusReject
	}

	h.log.Debug("audit query answered", log.Uint64("inputIndex", index))
	h.reporter.ReportAuditRecord(ctx, rec)
	return rollup.StatusAccept
}
