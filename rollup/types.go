// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rollup speaks the rollup node's HTTP contract: the long-poll
// finish cycle that delivers pending requests, and the notice, report,
// and exception endpoints for publishing derived outputs. The service is
// purely a client of this contract; the server belongs to the node.
package rollup

import (
	"encoding/json"

	"github.com/luxfi/geth/common/hexutil"
)

// Status is the one-bit protocol answer reported upstream for each
// processed request. No other values are legal on the wire.
type Status string

const (
	StatusAccept Status = "accept"
	StatusReject Status = "reject"
)

// RequestType discriminates the request envelope.
type RequestType string

const (
	// RequestAdvance mutates consensus-relevant state.
	RequestAdvance RequestType = "advance_state"

	// RequestInspect is a read-only, non-recorded query.
	RequestInspect RequestType = "inspect_state"
)

// Metadata carries the sequencer's framing of an advance input. All
// fields default to zero when the node omits them.
type Metadata struct {
	MsgSender   string `json:"msg_sender"`
	EpochIndex  uint64 `json:"epoch_index"`
	InputIndex  uint64 `json:"input_index"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
}

// RequestData is the payload section of a request envelope.
type RequestData struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	Payload  string    `json:"payload"`
}

// Request is one unit of pending work delivered by the finish cycle.
// Immutable once received.
type Request struct {
	Type RequestType `json:"request_type"`
	Data RequestData `json:"data"`
}

// Index returns the sequencer input index, or zero when metadata is
// absent (inspect requests carry none).
func (r *Request) Index() uint64 {
	if r.Data.Metadata == nil {
		return 0
	}
	return r.Data.Metadata.InputIndex
}

// finishRequest is the body posted to the finish endpoint each cycle.
type finishRequest struct {
	Status Status `json:"status"`
}

// Notice is a consensus-visible derived output. Its payload is hex over
// the application JSON, matching how request payloads arrive.
type Notice struct {
	Payload string `json:"payload"`
}

// noticeBody is the application JSON wrapped inside a notice payload.
type noticeBody struct {
	VerifiedResult any `json:"verified_result"`
}

// NewNotice wraps a verified result value into the notice wire form.
func NewNotice(verifiedResult any) (*Notice, error) {
	body, err := json.Marshal(noticeBody{VerifiedResult: verifiedResult})
	if err != nil {
		return nil, err
	}
	return &Notice{Payload: hexutil.Encode(body)}, nil
}

// DecodeNoticeResult extracts the verified result from a notice payload.
// The inverse of NewNotice; used by tests and tooling.
func DecodeNoticeResult(payloadHex string) (any, error) {
	raw, err := hexutil.Decode(payloadHex)
	if err != nil {
		return nil, err
	}
	var body noticeBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body.VerifiedResult, nil
}

// Report is a diagnostic output: visible to the node operator, never part
// of consensus state.
type Report struct {
	Payload string `json:"payload"`
}

// NewReport wraps arbitrary diagnostic bytes into the report wire form.
func NewReport(diagnostic []byte) *Report {
	return &Report{Payload: hexutil.Encode(diagnostic)}
}

// exceptionRequest is the body posted once before terminating on a fatal
// error.
type exceptionRequest struct {
	Payload string `json:"payload"`
}
