// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/luxfi/geth/common/hexutil"
	log "github.com/luxfi/log"
)

// Errors
var (
	ErrNoPendingWork     = errors.New("no pending work")
	ErrMalformedEnvelope = errors.New("malformed request envelope")
	ErrUnexpectedStatus  = errors.New("unexpected rollup server status")
)

// Client talks to one rollup node. The finish call long-polls with no
// client-side timeout; cancellation comes from the caller's context, and
// production deployments bound the wait by the node's own heartbeat.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     log.Logger
}

// NewClient creates a client for the node at baseURL.
func NewClient(baseURL string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		log:     logger,
	}
}

// BaseURL returns the configured node address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpc.Do(req)
}

// Finish reports the previous cycle's status and blocks until the node
// hands over the next request. A 202 means the node has nothing pending:
// the caller loops immediately with the same status. Any transport
// failure, unexpected status code, or unparseable envelope is returned as
// an error for the caller to treat as fatal.
func (c *Client) Finish(ctx context.Context, status Status) (*Request, error) {
	resp, err := c.post(ctx, "/finish", finishRequest{Status: status})
	if err != nil {
		return nil, fmt.Errorf("finish: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrNoPendingWork
	default:
		return nil, fmt.Errorf("finish: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("finish: read body: %w", err)
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("finish: %w: %v", ErrMalformedEnvelope, err)
	}
	if req.Type == "" {
		return nil, fmt.Errorf("finish: %w: missing request_type", ErrMalformedEnvelope)
	}

	c.log.Debug("request received",
		log.String("requestType", string(req.Type)),
		log.Int("payloadLen", len(req.Data.Payload)),
		log.Uint64("inputIndex", req.Index()),
	)
	return &req, nil
}

// SendNotice publishes a derived output for the current advance input.
func (c *Client) SendNotice(ctx context.Context, notice *Notice) error {
	resp, err := c.post(ctx, "/notice", notice)
	if err != nil {
		return fmt.Errorf("notice: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notice: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// SendReport publishes diagnostic bytes for the current request.
func (c *Client) SendReport(ctx context.Context, report *Report) error {
	resp, err := c.post(ctx, "/report", report)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("report: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// SendException notifies the node that the machine is halting on an
// unrecoverable error. Callers usually ignore the returned error since
// the process is about to terminate either way.
func (c *Client) SendException(ctx context.Context, description string) error {
	body := exceptionRequest{Payload: hexutil.Encode([]byte(description))}
	resp, err := c.post(ctx, "/exception", body)
	if err != nil {
		return fmt.Errorf("exception: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("exception: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
