// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists one audit record per processed advance input.
// Records are keyed by input index and derived only from the request and
// its verification outcome, never from wall-clock time, so replaying the
// same input sequence rebuilds an identical database.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	log "github.com/luxfi/log"

	"github.com/luxfi/zkverify/rollup"
)

// recordPrefix namespaces audit records inside the shared database.
var recordPrefix = []byte("zkv/record/")

// Errors
var (
	ErrNotFound = errors.New("record not found")
)

// Record is the audit trail entry for one advance input. Every field is
// deterministic in the input bytes and the configured program identity.
type Record struct {
	InputIndex  uint64           `json:"input_index"`
	Status      rollup.Status    `json:"status"`
	Kind        string           `json:"kind,omitempty"`
	PayloadLen  int              `json:"payload_len"`
	ReceiptLen  int              `json:"receipt_len"`
	JournalLen  int              `json:"journal_len"`
	Fingerprint string           `json:"payload_fingerprint,omitempty"`
	Result      any              `json:"verified_result,omitempty"`
	Metadata    *rollup.Metadata `json:"metadata,omitempty"`
}

// Store wraps a key-value database with the audit record codec.
type Store struct {
	db  database.Database
	log log.Logger
}

// New creates a store over db. The database lifetime belongs to the
// caller except for Close, which is forwarded.
func New(db database.Database, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Store{db: db, log: logger}
}

// recordKey is recordPrefix followed by the big-endian input index, so
// database iteration order matches input order.
func recordKey(index uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], index)
	return key
}

// Put writes the audit record for rec.InputIndex, overwriting any
// previous record at that index.
func (s *Store) Put(rec *Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record %d: %w", rec.InputIndex, err)
	}
	if err := s.db.Put(recordKey(rec.InputIndex), value); err != nil {
		return fmt.Errorf("store: put record %d: %w", rec.InputIndex, err)
	}
	s.log.Debug("audit record written",
		log.Uint64("inputIndex", rec.InputIndex),
		log.String("status", string(rec.Status)),
		log.Int("valueLen", len(value)),
	)
	return nil
}

// Get returns the audit record at index, or ErrNotFound.
func (s *Store) Get(index uint64) (*Record, error) {
	value, err := s.db.Get(recordKey(index))
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("store: record %d: %w", index, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("store: get record %d: %w", index, err)
	}

	rec := new(Record)
	if err := json.Unmarshal(value, rec); err != nil {
		return nil, fmt.Errorf("store: decode record %d: %w", index, err)
	}
	return rec, nil
}

// Has reports whether an audit record exists at index.
func (s *Store) Has(index uint64) (bool, error) {
	ok, err := s.db.Has(recordKey(index))
	if err != nil {
		return false, fmt.Errorf("store: has record %d: %w", index, err)
	}
	return ok, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
