// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload decodes the combined proof payload submitted through the
// rollup: hex text carrying opaque receipt bytes with a fixed 32-byte
// program image ID at the tail. The package is a pure codec; it holds no
// state and never decides acceptance.
package payload

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/zkverify/verdict"
)

const (
	// IdentityWords is the number of 32-bit words in an image ID.
	IdentityWords = 8

	// IdentitySize is the byte length of the trailing image ID.
	IdentitySize = IdentityWords * 4
)

// Errors
var (
	ErrPayloadTooSmall = errors.New("payload too small to carry an image id")
	ErrIdentitySize    = errors.New("image id must be exactly 32 bytes")
)

// ImageID identifies the guest program a receipt may attest to,
// as 8 little-endian 32-bit words.
type ImageID [IdentityWords]uint32

// Normalize strips the optional 0x prefix from a hex payload string.
func Normalize(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Decode converts a request payload string, with or without a 0x prefix,
// into raw bytes. Invalid characters and odd lengths are malformed-payload
// failures.
func Decode(s string) ([]byte, error) {
	raw, err := hexutil.Decode("0x" + Normalize(s))
	if err != nil {
		return nil, verdict.E(verdict.KindMalformedPayload, "payload.Decode", err)
	}
	return raw, nil
}

// Split separates decoded payload bytes into the receipt portion and the
// trailing image ID bytes. The boundary is total length minus IdentitySize;
// there is no length prefix on the wire. Payloads of IdentitySize bytes or
// fewer cannot carry a receipt and fail before any deserialization.
func Split(data []byte) (receiptBytes, identityBytes []byte, err error) {
	if len(data) <= IdentitySize {
		return nil, nil, verdict.Errorf(verdict.KindMalformedPayload, "payload.Split",
			"%w: got %d bytes", ErrPayloadTooSmall, len(data))
	}
	boundary := len(data) - IdentitySize
	return data[:boundary], data[boundary:], nil
}

// ParseImageID interprets identity bytes as 8 little-endian u32 words.
// The words are diagnostic only; acceptance is decided by receipt
// verification, never by comparing these bytes.
func ParseImageID(b []byte) (ImageID, error) {
	var id ImageID
	if len(b) != IdentitySize {
		return id, verdict.Errorf(verdict.KindMalformedPayload, "payload.ParseImageID",
			"%w: got %d bytes", ErrIdentitySize, len(b))
	}
	for i := 0; i < IdentityWords; i++ {
		id[i] = binary.LittleEndian.Uint32(b[i*4 : (i+1)*4])
	}
	return id, nil
}

// ImageIDFromHex parses a configuration image ID from hex text,
// with or without a 0x prefix.
func ImageIDFromHex(s string) (ImageID, error) {
	raw, err := Decode(s)
	if err != nil {
		return ImageID{}, err
	}
	return ParseImageID(raw)
}

// Bytes encodes the image ID back to its 32-byte little-endian wire form.
func (id ImageID) Bytes() []byte {
	out := make([]byte, IdentitySize)
	for i, word := range id {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], word)
	}
	return out
}

// Hex returns the 0x-prefixed hex encoding of the image ID.
func (id ImageID) Hex() string {
	return hexutil.Encode(id.Bytes())
}

func (id ImageID) String() string {
	return id.Hex()
}
