// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package groth16 verifies receipt seals against a deployment's verifying
// key over BN254. A seal is bound to the guest program and its committed
// journal through the claim digest, whose two halves are the only public
// inputs of the wrapped circuit. Verification is a pure function of
// (key, seal, claim digest); identical inputs always produce identical
// results.
package groth16

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/luxfi/crypto/bn256"
	"github.com/zeebo/blake3"

	"github.com/luxfi/zkverify/payload"
)

const (
	g1Size = 64
	g2Size = 128

	// SealSize is the encoded proof length: A (G1) || B (G2) || C (G1).
	SealSize = g1Size + g2Size + g1Size

	// PublicInputCount is fixed by the wrapped circuit: the two 128-bit
	// halves of the claim digest.
	PublicInputCount = 2

	icCount = PublicInputCount + 1

	// KeySize is the encoded verifying key length:
	// alpha G1 || beta G2 || gamma G2 || delta G2 || ic count u32 || IC points.
	KeySize = g1Size + 3*g2Size + 4 + icCount*g1Size
)

// Errors
var (
	ErrKeySize       = errors.New("unexpected verifying key length")
	ErrKeyMalformed  = errors.New("malformed verifying key point")
	ErrKeyICCount    = errors.New("unexpected input constraint count")
	ErrSealSize      = errors.New("unexpected seal length")
	ErrSealMalformed = errors.New("malformed seal point")
	ErrPairingFailed = errors.New("pairing check failed")
)

// claimTag domain-separates receipt claims from any other digests the
// machine computes.
var claimTag = sha256.Sum256([]byte("zkverify.ReceiptClaim.v1"))

// VerifyingKey is a parsed Groth16 verifying key. Parsed once at startup
// and immutable afterwards; point validity is checked at parse time so the
// request path never sees a malformed key.
type VerifyingKey struct {
	alpha *bn256.G1
	beta  *bn256.G2
	gamma *bn256.G2
	delta *bn256.G2
	ic    []*bn256.G1

	raw         []byte
	fingerprint [32]byte
}

// ParseVerifyingKey decodes and validates a verifying key from its wire
// form: alpha (64) || beta (128) || gamma (128) || delta (128) ||
// ic count u32 LE || IC points (64 each).
func ParseVerifyingKey(data []byte) (*VerifyingKey, error) {
	if len(data) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrKeySize, len(data), KeySize)
	}

	vk := &VerifyingKey{
		alpha: new(bn256.G1),
		beta:  new(bn256.G2),
		gamma: new(bn256.G2),
		delta: new(bn256.G2),
	}

	off := 0
	if _, err := vk.alpha.Unmarshal(data[off : off+g1Size]); err != nil {
		return nil, fmt.Errorf("%w: alpha: %v", ErrKeyMalformed, err)
	}
	off += g1Size
	if _, err := vk.beta.Unmarshal(data[off : off+g2Size]); err != nil {
		return nil, fmt.Errorf("%w: beta: %v", ErrKeyMalformed, err)
	}
	off += g2Size
	if _, err := vk.gamma.Unmarshal(data[off : off+g2Size]); err != nil {
		return nil, fmt.Errorf("%w: gamma: %v", ErrKeyMalformed, err)
	}
	off += g2Size
	if _, err := vk.delta.Unmarshal(data[off : off+g2Size]); err != nil {
		return nil, fmt.Errorf("%w: delta: %v", ErrKeyMalformed, err)
	}
	off += g2Size

	if count := binary.LittleEndian.Uint32(data[off : off+4]); count != icCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrKeyICCount, count, icCount)
	}
	off += 4

	vk.ic = make([]*bn256.G1, icCount)
	for i := range vk.ic {
		vk.ic[i] = new(bn256.G1)
		if _, err := vk.ic[i].Unmarshal(data[off : off+g1Size]); err != nil {
			return nil, fmt.Errorf("%w: ic[%d]: %v", ErrKeyMalformed, i, err)
		}
		off += g1Size
	}

	vk.raw = append([]byte{}, data...)
	vk.fingerprint = blake3.Sum256(vk.raw)
	return vk, nil
}

// Fingerprint identifies the key in logs and deployment audits.
func (vk *VerifyingKey) Fingerprint() [32]byte {
	return vk.fingerprint
}

// Bytes returns a copy of the key's wire form.
func (vk *VerifyingKey) Bytes() []byte {
	return append([]byte{}, vk.raw...)
}

// ClaimDigest binds a receipt to the guest program and its committed
// journal: SHA-256(tag || imageID || SHA-256(journal)). All fields are
// fixed length, so the construction is unambiguous.
func ClaimDigest(id payload.ImageID, journal []byte) [32]byte {
	journalDigest := sha256.Sum256(journal)

	h := sha256.New()
	h.Write(claimTag[:])
	h.Write(id.Bytes())
	h.Write(journalDigest[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// publicInputs maps the claim digest into the scalar field as two
// big-endian 128-bit halves. Values below 2^128 are always below the
// field modulus, so the mapping never reduces and stays injective.
func publicInputs(claim [32]byte) []*big.Int {
	var front, back fr.Element
	front.SetBytes(claim[:16])
	back.SetBytes(claim[16:])
	return []*big.Int{
		front.BigInt(new(big.Int)),
		back.BigInt(new(big.Int)),
	}
}

// VerifySeal checks the Groth16 verification equation
//
//	e(A, B) · e(-α, β) · e(-vk_x, γ) · e(-C, δ) = 1
//
// where vk_x = IC[0] + front·IC[1] + back·IC[2] over the claim digest
// halves. A nil return means the seal is valid for this key and claim.
func (vk *VerifyingKey) VerifySeal(seal []byte, claim [32]byte) error {
	if len(seal) != SealSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSealSize, len(seal), SealSize)
	}

	var a bn256.G1
	if _, err := a.Unmarshal(seal[:g1Size]); err != nil {
		return fmt.Errorf("%w: a: %v", ErrSealMalformed, err)
	}
	var b bn256.G2
	if _, err := b.Unmarshal(seal[g1Size : g1Size+g2Size]); err != nil {
		return fmt.Errorf("%w: b: %v", ErrSealMalformed, err)
	}
	var c bn256.G1
	if _, err := c.Unmarshal(seal[g1Size+g2Size:]); err != nil {
		return fmt.Errorf("%w: c: %v", ErrSealMalformed, err)
	}

	// vk_x = IC[0] + Σᵢ inputᵢ · IC[i+1]
	inputs := publicInputs(claim)
	vkX := new(bn256.G1)
	vkX.ScalarMult(vk.ic[0], big.NewInt(1))
	for i, input := range inputs {
		tmp := new(bn256.G1)
		tmp.ScalarMult(vk.ic[i+1], input)
		vkX.Add(vkX, tmp)
	}

	negAlpha := new(bn256.G1)
	negAlpha.ScalarMult(vk.alpha, big.NewInt(-1))

	negVkX := new(bn256.G1)
	negVkX.ScalarMult(vkX, big.NewInt(-1))

	negC := new(bn256.G1)
	negC.ScalarMult(&c, big.NewInt(-1))

	g1Points := []*bn256.G1{&a, negAlpha, negVkX, negC}
	g2Points := []*bn256.G2{&b, vk.beta, vk.gamma, vk.delta}

	if !bn256.PairingCheck(g1Points, g2Points) {
		return ErrPairingFailed
	}
	return nil
}
