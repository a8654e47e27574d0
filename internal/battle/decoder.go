// internal/battle/decoder.go
package battle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// BattleStateDiscriminator is the Anchor account discriminator of TokenBattleState.
var BattleStateDiscriminator = []byte{54, 102, 185, 22, 231, 3, 228, 117}

var (
	ErrTooShort         = errors.New("account data shorter than any known layout")
	ErrUnknownVersion   = errors.New("account data length matches no known layout")
	ErrBadDiscriminator = errors.New("account discriminator mismatch")
	ErrInvalidStatus    = errors.New("battle status out of range")
	errFieldOutOfBounds = errors.New("field out of bounds")
)

const maxMetadataStringLen = 512

// DecodeError carries the account length alongside the failure class.
type DecodeError struct {
	Err    error
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode battle state (%d bytes): %v", e.Length, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode maps raw battle_state account bytes to a BattleState, selecting the
// layout by total length.
//
// Absent fields default as follows: legacy accounts have Tier=TierTest and
// RealSolReserves=SolCollected; current accounts have QualificationTimestamp=0
// and SolCollected=RealSolReserves.
func Decode(data []byte) (*BattleState, error) {
	if err := checkPrefix(data); err != nil {
		return nil, err
	}
	schema, ok := SchemaForSize(len(data))
	if !ok {
		return nil, &DecodeError{Err: ErrUnknownVersion, Length: len(data)}
	}
	return DecodeWith(data, schema)
}

// DecodeBestEffort decodes data of an unrecognised length with the largest
// known layout whose fixed prefix fits. Callers use it after Decode returned
// ErrUnknownVersion and they choose to proceed.
func DecodeBestEffort(data []byte) (*BattleState, error) {
	if err := checkPrefix(data); err != nil {
		return nil, err
	}
	var (
		best  Schema
		found bool
	)
	for _, s := range Schemas {
		if s.FixedSize <= len(data) && (!found || s.FixedSize > best.FixedSize) {
			best, found = s, true
		}
	}
	if !found {
		return nil, &DecodeError{Err: ErrTooShort, Length: len(data)}
	}
	return DecodeWith(data, best)
}

func checkPrefix(data []byte) error {
	if len(data) < MinFixedSize() {
		return &DecodeError{Err: ErrTooShort, Length: len(data)}
	}
	if !bytes.Equal(data[:len(BattleStateDiscriminator)], BattleStateDiscriminator) {
		return &DecodeError{Err: ErrBadDiscriminator, Length: len(data)}
	}
	return nil
}

// DecodeWith decodes data using an explicit layout.
func DecodeWith(data []byte, schema Schema) (*BattleState, error) {
	if len(data) < schema.FixedSize {
		return nil, &DecodeError{Err: ErrTooShort, Length: len(data)}
	}
	r := fieldReader{data: data, schema: schema}

	st := &BattleState{
		Version:                schema.Version,
		Mint:                   r.pubkey(FieldMint),
		Tier:                   Tier(r.u8(FieldTier)),
		Status:                 Status(r.u8(FieldStatus)),
		OpponentMint:           r.pubkey(FieldOpponentMint),
		SolCollected:           r.u64(FieldSolCollected),
		RealSolReserves:        r.u64(FieldRealSolReserves),
		RealTokenReserves:      r.u64(FieldRealTokenReserves),
		VirtualSolReserves:     r.u64(FieldVirtualSolReserves),
		VirtualTokenReserves:   r.u64(FieldVirtualTokenReserves),
		TokensSold:             r.u64(FieldTokensSold),
		TotalTradeVolume:       r.u64(FieldTotalTradeVolume),
		IsActive:               r.u8(FieldIsActive) != 0,
		CreationTimestamp:      r.i64(FieldCreationTimestamp),
		LastTradeTimestamp:     r.i64(FieldLastTradeTimestamp),
		QualificationTimestamp: r.i64(FieldQualificationTimestamp),
		BattleStartTimestamp:   r.i64(FieldBattleStartTimestamp),
		VictoryTimestamp:       r.i64(FieldVictoryTimestamp),
		ListingTimestamp:       r.i64(FieldListingTimestamp),
		Bump:                   r.u8(FieldBump),
	}
	if r.err != nil {
		return nil, &DecodeError{Err: r.err, Length: len(data)}
	}
	if !st.Status.Valid() {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(st.Status)), Length: len(data)}
	}

	if !schema.Has(FieldRealSolReserves) {
		st.RealSolReserves = st.SolCollected
	}
	if !schema.Has(FieldSolCollected) {
		st.SolCollected = st.RealSolReserves
	}

	// Metadata strings are informational; a truncated tail leaves them empty.
	st.Name, st.Symbol, st.URI = readMetadata(data, schema.FixedSize)
	return st, nil
}

type fieldReader struct {
	data   []byte
	schema Schema
	err    error
}

func (r *fieldReader) slice(f Field) ([]byte, bool) {
	spec, ok := r.schema.Fields[f]
	if !ok {
		return nil, false
	}
	end := spec.Offset + spec.Kind.Width()
	if spec.Offset < 0 || end > len(r.data) {
		if r.err == nil {
			r.err = fmt.Errorf("%w: field %d at %d", errFieldOutOfBounds, f, spec.Offset)
		}
		return nil, false
	}
	return r.data[spec.Offset:end], true
}

func (r *fieldReader) u8(f Field) uint8 {
	b, ok := r.slice(f)
	if !ok {
		return 0
	}
	return b[0]
}

func (r *fieldReader) u64(f Field) uint64 {
	b, ok := r.slice(f)
	if !ok {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *fieldReader) i64(f Field) int64 {
	return int64(r.u64(f))
}

func (r *fieldReader) pubkey(f Field) solana.PublicKey {
	b, ok := r.slice(f)
	if !ok {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func readMetadata(data []byte, offset int) (name, symbol, uri string) {
	dec := bin.NewBorshDecoder(data)
	if err := dec.SetPosition(uint(offset)); err != nil {
		return "", "", ""
	}
	out := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		if dec.Remaining() < 4 {
			break
		}
		s, err := dec.ReadString()
		if err != nil || len(s) > maxMetadataStringLen {
			break
		}
		out = append(out, strings.TrimSpace(strings.ReplaceAll(s, "\x00", "")))
	}
	for len(out) < 3 {
		out = append(out, "")
	}
	return out[0], out[1], out[2]
}
