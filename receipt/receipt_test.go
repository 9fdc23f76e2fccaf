// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package receipt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/luxfi/zkverify/verdict"
)

func testReceipt(journal []byte) *Receipt {
	seal := make([]byte, SealSize)
	for i := range seal {
		seal[i] = byte(i)
	}
	return &Receipt{Seal: seal, Journal: journal}
}

// TestEncodeDecodeRoundTrip tests that Decode inverts Encode
func TestEncodeDecodeRoundTrip(t *testing.T) {
	journals := [][]byte{
		nil,
		{0x01},
		{0x01, 0x00, 0x00, 0x00},
		bytes.Repeat([]byte{0xab}, 4096),
	}

	for _, journal := range journals {
		r := testReceipt(journal)
		decoded, err := Decode(r.Encode())
		if err != nil {
			t.Fatalf("Decode failed for %d-byte journal: %v", len(journal), err)
		}
		if !bytes.Equal(decoded.Seal, r.Seal) {
			t.Error("Seal did not survive the round trip")
		}
		if !bytes.Equal(decoded.Journal, r.Journal) {
			t.Errorf("Journal did not survive the round trip: %x != %x", decoded.Journal, r.Journal)
		}
	}
}

// TestDecodeEmptyJournal tests the minimal envelope
func TestDecodeEmptyJournal(t *testing.T) {
	encoded := testReceipt(nil).Encode()
	if len(encoded) != MinEncoded {
		t.Fatalf("Expected %d encoded bytes, got %d", MinEncoded, len(encoded))
	}

	r, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(r.Journal) != 0 {
		t.Errorf("Expected empty journal, got %d bytes", len(r.Journal))
	}
}

// TestDecodeMalformations tests that each framing violation yields its distinct error
func TestDecodeMalformations(t *testing.T) {
	valid := testReceipt([]byte{0x01, 0x00, 0x00, 0x00}).Encode()

	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte{}, valid...)
		return f(b)
	}

	testCases := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrTruncated},
		{"below header", make([]byte, 11), ErrTruncated},
		{"below minimum", make([]byte, MinEncoded-1), ErrTruncated},
		{"bad magic", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[0:4], 0x4b5a4c52)
			return b
		}), ErrBadMagic},
		{"future version", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:8], 2)
			return b
		}), ErrBadVersion},
		{"wrong seal length", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:12], 128)
			return b
		}), ErrSealSize},
		{"journal over bound", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[MinEncoded-4:MinEncoded], MaxJournalSize+1)
			return b
		}), ErrJournalTooLarge},
		{"journal shorter than header claims", mutate(func(b []byte) []byte {
			return b[:len(b)-1]
		}), ErrTruncated},
		{"trailing bytes", mutate(func(b []byte) []byte {
			return append(b, 0x00)
		}), ErrTrailingBytes},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if err == nil {
				t.Fatal("Expected a decode error")
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
			if verdict.KindOf(err) != verdict.KindDeserialization {
				t.Errorf("Expected deserialization kind, got %s", verdict.KindOf(err))
			}
		})
	}
}

// TestDecodeTruncationSweep tests that every prefix of a valid encoding fails
func TestDecodeTruncationSweep(t *testing.T) {
	valid := testReceipt([]byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}).Encode()

	for n := 0; n < len(valid); n++ {
		if _, err := Decode(valid[:n]); err == nil {
			t.Fatalf("Expected truncation at %d of %d bytes to fail", n, len(valid))
		}
	}

	if _, err := Decode(valid); err != nil {
		t.Fatalf("Full encoding should decode: %v", err)
	}
}

// TestDecodeMaxJournal tests the boundary journal size
func TestDecodeMaxJournal(t *testing.T) {
	r := testReceipt(bytes.Repeat([]byte{0x55}, MaxJournalSize))
	decoded, err := Decode(r.Encode())
	if err != nil {
		t.Fatalf("Decode failed at the journal bound: %v", err)
	}
	if len(decoded.Journal) != MaxJournalSize {
		t.Errorf("Expected %d journal bytes, got %d", MaxJournalSize, len(decoded.Journal))
	}
}

// BenchmarkDecode benchmarks envelope parsing with a mid-size journal
func BenchmarkDecode(b *testing.B) {
	encoded := testReceipt(bytes.Repeat([]byte{0x77}, 1024)).Encode()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(encoded); err != nil {
			b.Fatal(err)
		}
	}
}
