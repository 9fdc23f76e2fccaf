// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"context"
	"encoding/json"

	log "github.com/luxfi/log"

	"github.com/luxfi/zkverify/metrics"
	"github.com/luxfi/zkverify/rollup"
	"github.com/luxfi/zkverify/store"
	"github.com/luxfi/zkverify/verdict"
	"github.com/luxfi/zkverify/verifier"
)

// NodeClient is the reporter's view of the rollup node: the outbound
// output endpoints, without the finish cycle.
type NodeClient interface {
	SendNotice(ctx context.Context, notice *rollup.Notice) error
	SendReport(ctx context.Context, report *rollup.Report) error
}

// Outcome is the reporter's resolution of one request: the protocol
// status plus the error kind behind a rejection.
type Outcome struct {
	Status rollup.Status
	Kind   verdict.Kind
	Err    error
}

// Lengths carries the sizes logged with every verification decision. The
// receipt and identity lengths stay zero when the payload never split.
type Lengths struct {
	Payload  int
	Receipt  int
	Identity int
}

// diagnosticReport is the JSON posted to the report endpoint for every
// rejection. Reports are operator-visible diagnostics, not consensus
// outputs.
type diagnosticReport struct {
	Kind        string `json:"kind"`
	Reason      string `json:"reason"`
	PayloadLen  int    `json:"payload_len"`
	ReceiptLen  int    `json:"receipt_len"`
	IdentityLen int    `json:"identity_len"`
	Fingerprint string `json:"payload_fingerprint,omitempty"`
}

// inspectReport is the JSON posted for a dry-run verification answer.
type inspectReport struct {
	Status         string `json:"status"`
	Kind           string `json:"kind,omitempty"`
	Reason         string `json:"reason,omitempty"`
	VerifiedResult any    `json:"verified_result,omitempty"`
	PayloadLen     int    `json:"payload_len"`
	ReceiptLen     int    `json:"receipt_len"`
	Fingerprint    string `json:"payload_fingerprint,omitempty"`
}

// auditReport is the JSON posted in answer to an audit query.
type auditReport struct {
	Found  bool          `json:"found"`
	Index  uint64        `json:"input_index"`
	Record *store.Record `json:"record,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Reporter turns verification results into protocol responses: status
// mapping, notice construction on acceptance, diagnostic reports on
// rejection.
type Reporter struct {
	node NodeClient
	log  log.Logger
}

// NewReporter creates a reporter posting through node.
func NewReporter(node NodeClient, logger log.Logger) *Reporter {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Reporter{node: node, log: logger}
}

// Report resolves an advance verification result. A valid result submits
// the derived notice and maps to "accept"; if that submission fails the
// status degrades to "reject" with notice_submission_error kind, because
// acceptance without the derived output would be unverifiable downstream.
// Invalid results map to "reject" and best-effort post a diagnostic
// report.
func (r *Reporter) Report(ctx context.Context, res *verifier.Result, sizes Lengths, fingerprint string) Outcome {
	if !res.Valid {
		r.log.Info("proof rejected",
			log.String("kind", res.Kind.String()),
			log.Int("payloadLen", sizes.Payload),
			log.Int("receiptLen", sizes.Receipt),
			log.Int("identityLen", sizes.Identity),
			log.String("error", res.Err.Error()),
		)
		r.sendDiagnostic(ctx, res.Kind, res.Err, sizes, fingerprint)
		return Outcome{Status: rollup.StatusReject, Kind: res.Kind, Err: res.Err}
	}

	rendered := res.Value.Render()
	notice, err := rollup.NewNotice(rendered)
	if err == nil {
		err = r.node.SendNotice(ctx, notice)
	}
	if err != nil {
		metrics.RecordNotice(false)
		wrapped := verdict.E(verdict.KindNoticeSubmission, "dispatch.Report", err)
		r.log.Warn("notice submission failed, degrading to reject",
			log.Int("payloadLen", sizes.Payload),
			log.Int("receiptLen", sizes.Receipt),
			log.String("error", err.Error()),
		)
		r.sendDiagnostic(ctx, verdict.KindNoticeSubmission, wrapped, sizes, fingerprint)
		return Outcome{Status: rollup.StatusReject, Kind: verdict.KindNoticeSubmission, Err: wrapped}
	}

	metrics.RecordNotice(true)
	r.log.Info("proof accepted",
		log.Int("payloadLen", sizes.Payload),
		log.Int("receiptLen", sizes.Receipt),
		log.Int("identityLen", sizes.Identity),
		log.String("verifiedResult", res.Value.String()),
	)
	return Outcome{Status: rollup.StatusAccept}
}

// Reject resolves a request that failed before verification could run,
// such as an undecodable payload.
func (r *Reporter) Reject(ctx context.Context, cause error, sizes Lengths) Outcome {
	kind := verdict.KindOf(cause)
	r.log.Info("request rejected",
		log.String("kind", kind.String()),
		log.Int("payloadLen", sizes.Payload),
		log.String("error", cause.Error()),
	)
	r.sendDiagnostic(ctx, kind, cause, sizes, "")
	return Outcome{Status: rollup.StatusReject, Kind: kind, Err: cause}
}

// Inspect resolves a dry-run verification: the outcome is reported via
// the report endpoint only, never as a notice, and nothing persists.
func (r *Reporter) Inspect(ctx context.Context, res *verifier.Result, sizes Lengths, fingerprint string) Outcome {
	out := inspectReport{
		Status:      string(rollup.StatusAccept),
		PayloadLen:  sizes.Payload,
		ReceiptLen:  sizes.Receipt,
		Fingerprint: fingerprint,
	}
	outcome := Outcome{Status: rollup.StatusAccept}
	if res.Valid {
		out.VerifiedResult = res.Value.Render()
	} else {
		out.Status = string(rollup.StatusReject)
		out.Kind = res.Kind.String()
		out.Reason = res.Err.Error()
		outcome = Outcome{Status: rollup.StatusReject, Kind: res.Kind, Err: res.Err}
	}

	r.log.Info("dry-run verification answered",
		log.String("status", out.Status),
		log.Int("payloadLen", sizes.Payload),
		log.Int("receiptLen", sizes.Receipt),
	)
	r.sendJSON(ctx, out)
	return outcome
}

// ReportAuditRecord answers an audit query with the stored record.
func (r *Reporter) ReportAuditRecord(ctx context.Context, rec *store.Record) {
	r.sendJSON(ctx, auditReport{Found: true, Index: rec.InputIndex, Record: rec})
}

// ReportAuditMiss answers an audit query for an unknown input index.
func (r *Reporter) ReportAuditMiss(ctx context.Context, index uint64, cause error) {
	r.sendJSON(ctx, auditReport{Found: false, Index: index, Reason: cause.Error()})
}

func (r *Reporter) sendDiagnostic(ctx context.Context, kind verdict.Kind, cause error, sizes Lengths, fingerprint string) {
	r.sendJSON(ctx, diagnosticReport{
		Kind:        kind.String(),
		Reason:      cause.Error(),
		PayloadLen:  sizes.Payload,
		ReceiptLen:  sizes.Receipt,
		IdentityLen: sizes.Identity,
		Fingerprint: fingerprint,
	})
}

func (r *Reporter) sendJSON(ctx context.Context, body any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		r.log.Error("diagnostic encoding failed", log.String("error", err.Error()))
		return
	}
	if err := r.node.SendReport(ctx, rollup.NewReport(encoded)); err != nil {
		// Reports never change the status; a failed one is only logged.
		r.log.Warn("diagnostic report failed", log.String("error", err.Error()))
	}
}
