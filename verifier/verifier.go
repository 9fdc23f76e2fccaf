// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verifier runs the full receipt verification pipeline for one
// deployed program: envelope deserialization, seal verification against
// the configured image ID, and journal decoding under the deployment's
// output schema. Every failure folds into a rejected Result; nothing on
// this path terminates the process.
package verifier

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/luxfi/geth/common/hexutil"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/zkverify/groth16"
	"github.com/luxfi/zkverify/payload"
	"github.com/luxfi/zkverify/receipt"
	"github.com/luxfi/zkverify/verdict"
)

// Errors
var (
	ErrNoVerifyingKey = errors.New("verifier requires a verifying key")
)

// Config parameterizes a verifier instance. ImageID and Key are fixed per
// deployment; one binary serves any program by configuration alone.
type Config struct {
	ImageID   payload.ImageID
	Key       *groth16.VerifyingKey
	Schema    receipt.Schema
	CacheSize int // 0 disables the outcome cache
	Log       log.Logger
}

// Result is the outcome of one verification attempt. Valid results carry
// the decoded journal value; rejected results carry the kind and cause.
type Result struct {
	Valid      bool
	Kind       verdict.Kind
	Err        error
	Value      receipt.Value
	Journal    []byte
	ReceiptLen int
	CacheHit   bool
}

// Stats is a snapshot of verifier counters.
type Stats struct {
	Verifications uint64
	Accepted      uint64
	Rejected      uint64
	CacheHits     uint64
}

// Verifier verifies receipts for a single configured program identity.
// Safe for use from one request loop plus concurrent stat readers.
type Verifier struct {
	imageID payload.ImageID
	key     *groth16.VerifyingKey
	schema  receipt.Schema
	cache   *lru.Cache[[32]byte, *Result]
	log     log.Logger

	verifications uint64
	accepted      uint64
	rejected      uint64
	cacheHits     uint64
	mu            sync.RWMutex
}

// New creates a verifier from its deployment configuration.
func New(cfg Config) (*Verifier, error) {
	if cfg.Key == nil {
		return nil, ErrNoVerifyingKey
	}

	logger := cfg.Log
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}

	v := &Verifier{
		imageID: cfg.ImageID,
		key:     cfg.Key,
		schema:  cfg.Schema,
		log:     logger,
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *Result](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		v.cache = cache
	}

	fp := cfg.Key.Fingerprint()
	logger.Info("verifier ready",
		log.String("imageID", cfg.ImageID.Hex()),
		log.String("keyFingerprint", hexutil.Encode(fp[:])),
		log.String("journalSchema", cfg.Schema.String()),
		log.Int("cacheSize", cfg.CacheSize),
	)
	return v, nil
}

// ImageID returns the configured program identity.
func (v *Verifier) ImageID() payload.ImageID {
	return v.imageID
}

// Verify checks receiptBytes against the configured program. identityBytes
// are the payload's trailing 32 bytes; they feed the mismatch diagnostic
// only and never influence the outcome. Verification is deterministic in
// its inputs, so outcomes are cacheable by input fingerprint.
func (v *Verifier) Verify(receiptBytes, identityBytes []byte) *Result {
	keyed := make([]byte, 0, len(receiptBytes)+len(identityBytes))
	keyed = append(keyed, receiptBytes...)
	keyed = append(keyed, identityBytes...)
	fingerprint := blake3.Sum256(keyed)

	if v.cache != nil {
		if cached, ok := v.cache.Get(fingerprint); ok {
			replay := *cached
			replay.CacheHit = true
			v.count(&replay, true)
			return &replay
		}
	}

	res := v.verify(receiptBytes, identityBytes)
	if v.cache != nil {
		v.cache.Add(fingerprint, res)
	}
	v.count(res, false)
	return res
}

func (v *Verifier) verify(receiptBytes, identityBytes []byte) *Result {
	rec, err := receipt.Decode(receiptBytes)
	if err != nil {
		v.log.Debug("receipt rejected",
			log.String("kind", verdict.KindOf(err).String()),
			log.Int("receiptLen", len(receiptBytes)),
			log.String("error", err.Error()),
		)
		return &Result{Kind: verdict.KindOf(err), Err: err, ReceiptLen: len(receiptBytes)}
	}

	claim := groth16.ClaimDigest(v.imageID, rec.Journal)
	if err := v.key.VerifySeal(rec.Seal, claim); err != nil {
		err = verdict.E(verdict.KindVerificationFailure, "verifier.Verify", err)
		v.log.Debug("receipt rejected",
			log.String("kind", verdict.KindVerificationFailure.String()),
			log.Int("receiptLen", len(receiptBytes)),
			log.Int("journalLen", len(rec.Journal)),
			log.String("error", err.Error()),
		)
		v.logIdentityDiagnostic(identityBytes)
		return &Result{Kind: verdict.KindVerificationFailure, Err: err, ReceiptLen: len(receiptBytes)}
	}

	value, err := receipt.DecodeJournal(v.schema, rec.Journal)
	if err != nil {
		v.log.Debug("journal rejected",
			log.String("kind", verdict.KindOf(err).String()),
			log.Int("journalLen", len(rec.Journal)),
			log.String("error", err.Error()),
		)
		return &Result{Kind: verdict.KindOf(err), Err: err, ReceiptLen: len(receiptBytes)}
	}

	v.log.Debug("receipt verified",
		log.Int("receiptLen", len(receiptBytes)),
		log.Int("journalLen", len(rec.Journal)),
		log.String("value", value.String()),
	)
	return &Result{
		Valid:      true,
		Value:      value,
		Journal:    rec.Journal,
		ReceiptLen: len(receiptBytes),
	}
}

// logIdentityDiagnostic compares the payload's trailing image ID words
// with the configured identity. The comparison is logging only; the
// cryptographic result above has already decided the outcome.
func (v *Verifier) logIdentityDiagnostic(identityBytes []byte) {
	id, err := payload.ParseImageID(identityBytes)
	if err != nil {
		v.log.Debug("payload identity unparseable", log.Int("identityLen", len(identityBytes)))
		return
	}
	if id != v.imageID {
		v.log.Warn("payload image id differs from configured image id",
			log.String("payload", id.Hex()),
			log.String("configured", v.imageID.Hex()),
		)
	}
}

func (v *Verifier) count(res *Result, hit bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.verifications++
	if hit {
		v.cacheHits++
	}
	if res.Valid {
		v.accepted++
	} else {
		v.rejected++
	}
}

// Stats returns a snapshot of the verifier counters.
func (v *Verifier) Stats() Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return Stats{
		Verifications: v.verifications,
		Accepted:      v.accepted,
		Rejected:      v.rejected,
		CacheHits:     v.cacheHits,
	}
}
