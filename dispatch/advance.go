// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"context"
	"time"

	"github.com/luxfi/geth/common/hexutil"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/zkverify/metrics"
	"github.com/luxfi/zkverify/payload"
	"github.com/luxfi/zkverify/rollup"
	"github.com/luxfi/zkverify/store"
	"github.com/luxfi/zkverify/verdict"
	"github.com/luxfi/zkverify/verifier"
)

// Recorder persists audit records. Satisfied by store.Store.
type Recorder interface {
	Put(rec *store.Record) error
}

// AdvanceHandler verifies combined proof payloads from advance_state
// requests and persists one audit record per input.
type AdvanceHandler struct {
	verifier *verifier.Verifier
	reporter *Reporter
	recorder Recorder
	log      log.Logger
}

// NewAdvanceHandler wires the verification pipeline for advance requests.
func NewAdvanceHandler(v *verifier.Verifier, r *Reporter, rec Recorder, logger log.Logger) *AdvanceHandler {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &AdvanceHandler{verifier: v, reporter: r, recorder: rec, log: logger}
}

// Handle runs Codec, Verifier, Reporter, then writes the audit record.
// The machine must not accept an input it failed to record, so a store
// write failure degrades the final status to "reject".
func (h *AdvanceHandler) Handle(ctx context.Context, req *rollup.Request) rollup.Status {
	data, err := payload.Decode(req.Data.Payload)
	if err != nil {
		out := h.reporter.Reject(ctx, err, Lengths{Payload: len(req.Data.Payload)})
		return h.record(req, out, &store.Record{PayloadLen: len(req.Data.Payload)})
	}

	fingerprint := payloadFingerprint(data)
	receiptBytes, identityBytes, err := payload.Split(data)
	if err != nil {
		out := h.reporter.Reject(ctx, err, Lengths{Payload: len(data)})
		return h.record(req, out, &store.Record{
			PayloadLen:  len(data),
			Fingerprint: fingerprint,
		})
	}

	sizes := Lengths{Payload: len(data), Receipt: len(receiptBytes), Identity: len(identityBytes)}
	started := time.Now()
	res := h.verifier.Verify(receiptBytes, identityBytes)
	metrics.RecordVerification(res.Kind.String(), res.CacheHit, time.Since(started))

	out := h.reporter.Report(ctx, res, sizes, fingerprint)
	rec := &store.Record{
		PayloadLen:  len(data),
		ReceiptLen:  res.ReceiptLen,
		JournalLen:  len(res.Journal),
		Fingerprint: fingerprint,
	}
	if out.Status == rollup.StatusAccept {
		rec.Result = res.Value.Render()
	}
	return h.record(req, out, rec)
}

// record fills the outcome fields and persists the audit record.
func (h *AdvanceHandler) record(req *rollup.Request, out Outcome, rec *store.Record) rollup.Status {
	rec.InputIndex = req.Index()
	rec.Status = out.Status
	rec.Metadata = req.Data.Metadata
	if out.Kind != verdict.KindNone {
		rec.Kind = out.Kind.String()
	}

	if err := h.recorder.Put(rec); err != nil {
		h.log.Error("audit record write failed, degrading to reject",
			log.Uint64("inputIndex", rec.InputIndex),
			log.String("error", err.Error()),
		)
		return rollup.StatusReject
	}
	return out.Status
}

func payloadFingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hexutil.Encode(sum[:])
}
