// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package receipt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/zkverify/verdict"
)

// Schema selects how an application's journal bytes decode into the
// published result value. Fixed per deployment, agreed with the guest
// program.
type Schema uint8

const (
	SchemaBool Schema = iota // 4-byte little-endian word, 0 or 1
	SchemaU64                // 8-byte little-endian
	SchemaU256               // 32-byte big-endian
	SchemaRaw                // opaque bytes, passed through
)

// Errors
var (
	ErrJournalSize   = errors.New("journal size does not match schema")
	ErrJournalValue  = errors.New("journal value out of range for schema")
	ErrUnknownSchema = errors.New("unknown journal schema")
)

// String returns the configuration name of the schema.
func (s Schema) String() string {
	switch s {
	case SchemaBool:
		return "bool"
	case SchemaU64:
		return "u64"
	case SchemaU256:
		return "u256"
	case SchemaRaw:
		return "raw"
	default:
		return fmt.Sprintf("schema(%d)", uint8(s))
	}
}

// ParseSchema parses a configuration schema name.
func ParseSchema(s string) (Schema, error) {
	switch s {
	case "bool":
		return SchemaBool, nil
	case "u64":
		return SchemaU64, nil
	case "u256":
		return SchemaU256, nil
	case "raw":
		return SchemaRaw, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSchema, s)
	}
}

// Value is a journal decoded under one schema. Only the field matching
// the schema is meaningful.
type Value struct {
	Schema Schema
	Bool   bool
	U64    uint64
	U256   *uint256.Int
	Raw    []byte
}

// DecodeJournal decodes committed output bytes under the given schema.
// Size and range violations are deserialization verdicts, handled the
// same way as a receipt that does not parse.
func DecodeJournal(schema Schema, journal []byte) (Value, error) {
	const op = "receipt.DecodeJournal"

	switch schema {
	case SchemaBool:
		if len(journal) != 4 {
			return Value{}, verdict.Errorf(verdict.KindDeserialization, op,
				"%w: bool wants 4 bytes, got %d", ErrJournalSize, len(journal))
		}
		// The guest serializes bool as a full little-endian word.
		word := binary.LittleEndian.Uint32(journal)
		if word > 1 {
			return Value{}, verdict.Errorf(verdict.KindDeserialization, op,
				"%w: bool word %d", ErrJournalValue, word)
		}
		return Value{Schema: schema, Bool: word == 1}, nil

	case SchemaU64:
		if len(journal) != 8 {
			return Value{}, verdict.Errorf(verdict.KindDeserialization, op,
				"%w: u64 wants 8 bytes, got %d", ErrJournalSize, len(journal))
		}
		return Value{Schema: schema, U64: binary.LittleEndian.Uint64(journal)}, nil

	case SchemaU256:
		if len(journal) != 32 {
			return Value{}, verdict.Errorf(verdict.KindDeserialization, op,
				"%w: u256 wants 32 bytes, got %d", ErrJournalSize, len(journal))
		}
		return Value{Schema: schema, U256: new(uint256.Int).SetBytes(journal)}, nil

	case SchemaRaw:
		return Value{Schema: schema, Raw: journal}, nil

	default:
		return Value{}, verdict.Errorf(verdict.KindDeserialization, op,
			"%w: %d", ErrUnknownSchema, uint8(schema))
	}
}

// Render returns the JSON-embeddable form of the value: booleans and u64
// as native JSON values, u256 and raw bytes as 0x-hex strings.
func (v Value) Render() any {
	switch v.Schema {
	case SchemaBool:
		return v.Bool
	case SchemaU64:
		return v.U64
	case SchemaU256:
		return v.U256.Hex()
	default:
		return hexutil.Encode(v.Raw)
	}
}

// String renders the value for logs.
func (v Value) String() string {
	return fmt.Sprintf("%s:%v", v.Schema, v.Render())
}
