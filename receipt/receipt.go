// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package receipt implements the canonical binary envelope for proof
// receipts exchanged with the proving pipeline, and the journal output
// schemas applications commit their results under. Decoding is strict:
// any deviation from the producer's serialization fails closed with a
// distinct error, never silently.
package receipt

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/zkverify/verdict"
)

// Wire layout, version 1:
//
//	[0:4]    magic "LZKR", u32 little-endian
//	[4:8]    version, u32 little-endian
//	[8:12]   seal length, u32 little-endian, must equal SealSize
//	[12:268] seal: Groth16 A (64) || B (128) || C (64)
//	[268:272] journal length, u32 little-endian
//	[272:...] journal bytes, exact
const (
	Magic   = uint32(0x524B5A4C)
	Version = uint32(1)

	// SealSize is the fixed Groth16 seal length in version 1.
	SealSize = 256

	// MaxJournalSize bounds the committed output section.
	MaxJournalSize = 1 << 20

	headerSize  = 12
	MinEncoded  = headerSize + SealSize + 4
	sealOffset  = headerSize
	countOffset = headerSize + SealSize
)

// Errors
var (
	ErrTruncated       = errors.New("receipt truncated")
	ErrBadMagic        = errors.New("bad receipt magic")
	ErrBadVersion      = errors.New("unsupported receipt version")
	ErrSealSize        = errors.New("unexpected seal length")
	ErrJournalTooLarge = errors.New("journal exceeds maximum size")
	ErrTrailingBytes   = errors.New("trailing bytes after journal")
)

// Receipt is the deserialized proof artifact: the seal carries the
// cryptographic proof material, the journal the committed outputs.
// Never mutated after Decode.
type Receipt struct {
	Seal    []byte
	Journal []byte
}

// Decode parses receipt bytes against the version-1 envelope. Every
// failure is a deserialization verdict with a distinct underlying cause.
func Decode(data []byte) (*Receipt, error) {
	const op = "receipt.Decode"

	if len(data) < MinEncoded {
		return nil, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: %d bytes, need at least %d", ErrTruncated, len(data), MinEncoded)
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != Magic {
		return nil, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: 0x%08x", ErrBadMagic, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != Version {
		return nil, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: %d", ErrBadVersion, version)
	}
	if sealLen := binary.LittleEndian.Uint32(data[8:12]); sealLen != SealSize {
		return nil, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: %d", ErrSealSize, sealLen)
	}

	journalLen := binary.LittleEndian.Uint32(data[countOffset : countOffset+4])
	if journalLen > MaxJournalSize {
		return nil, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: %d bytes", ErrJournalTooLarge, journalLen)
	}

	total := MinEncoded + int(journalLen)
	if len(data) < total {
		return nil, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: %d bytes, journal header wants %d", ErrTruncated, len(data), total)
	}
	if len(data) > total {
		return nil, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: %d past end", ErrTrailingBytes, len(data)-total)
	}

	return &Receipt{
		Seal:    data[sealOffset : sealOffset+SealSize],
		Journal: data[MinEncoded:total],
	}, nil
}

// Encode serializes the receipt back to its wire form. The producer side
// and tests use this; Decode is its exact inverse.
func (r *Receipt) Encode() []byte {
	out := make([]byte, MinEncoded+len(r.Journal))
	binary.LittleEndian.PutUint32(out[0:4], Magic)
	binary.LittleEndian.PutUint32(out[4:8], Version)
	binary.LittleEndian.PutUint32(out[8:12], SealSize)
	copy(out[sealOffset:], r.Seal)
	binary.LittleEndian.PutUint32(out[countOffset:countOffset+4], uint32(len(r.Journal)))
	copy(out[MinEncoded:], r.Journal)
	return out
}
