// internal/battle/encoder.go
package battle

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Encode writes st in the layout of its Version, padded to the allocated
// account size. It is the inverse of Decode and is used by local ledger
// fixtures.
func Encode(st *BattleState) ([]byte, error) {
	for _, s := range Schemas {
		if s.Version == st.Version {
			return EncodeWith(st, s)
		}
	}
	return nil, fmt.Errorf("encode battle state: unknown version %s", st.Version)
}

// EncodeWith writes st using an explicit layout.
func EncodeWith(st *BattleState, schema Schema) ([]byte, error) {
	data := make([]byte, schema.Size)
	copy(data, BattleStateDiscriminator)

	values := map[Field]uint64{
		FieldTier:                   uint64(st.Tier),
		FieldStatus:                 uint64(st.Status),
		FieldSolCollected:           st.SolCollected,
		FieldRealSolReserves:        st.RealSolReserves,
		FieldRealTokenReserves:      st.RealTokenReserves,
		FieldVirtualSolReserves:     st.VirtualSolReserves,
		FieldVirtualTokenReserves:   st.VirtualTokenReserves,
		FieldTokensSold:             st.TokensSold,
		FieldTotalTradeVolume:       st.TotalTradeVolume,
		FieldCreationTimestamp:      uint64(st.CreationTimestamp),
		FieldLastTradeTimestamp:     uint64(st.LastTradeTimestamp),
		FieldQualificationTimestamp: uint64(st.QualificationTimestamp),
		FieldBattleStartTimestamp:   uint64(st.BattleStartTimestamp),
		FieldVictoryTimestamp:       uint64(st.VictoryTimestamp),
		FieldListingTimestamp:       uint64(st.ListingTimestamp),
		FieldBump:                   uint64(st.Bump),
	}
	if st.IsActive {
		values[FieldIsActive] = 1
	} else {
		values[FieldIsActive] = 0
	}

	for f, spec := range schema.Fields {
		switch spec.Kind {
		case KindPubkey:
			switch f {
			case FieldMint:
				copy(data[spec.Offset:], st.Mint[:])
			case FieldOpponentMint:
				copy(data[spec.Offset:], st.OpponentMint[:])
			}
		case KindU8, KindBool:
			data[spec.Offset] = byte(values[f])
		case KindU64, KindI64:
			binary.LittleEndian.PutUint64(data[spec.Offset:], values[f])
		}
	}

	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	for _, s := range []string{st.Name, st.Symbol, st.URI} {
		if err := enc.WriteString(s); err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
	}
	if schema.FixedSize+buf.Len() > schema.Size {
		return nil, fmt.Errorf("encode battle state: metadata exceeds %d bytes", schema.Size-schema.FixedSize)
	}
	copy(data[schema.FixedSize:], buf.Bytes())
	return data, nil
}
