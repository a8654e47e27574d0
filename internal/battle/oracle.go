// internal/battle/oracle.go
package battle

import (
	"bytes"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// PriceOracleDiscriminator is the Anchor account discriminator of PriceOracle.
var PriceOracleDiscriminator = []byte{57, 140, 120, 176, 191, 65, 52, 89}

// PriceOracle is the program's SOL/USD price account. Prices carry 6 decimals.
type PriceOracle struct {
	SolPriceUSD         uint64
	LastUpdateTimestamp int64
	NextUpdateTimestamp int64
	KeeperAuthority     solana.PublicKey
	UpdateCount         uint64
}

// DecodePriceOracle decodes the price_oracle account.
func DecodePriceOracle(data []byte) (*PriceOracle, error) {
	if len(data) < 8+72 {
		return nil, &DecodeError{Err: ErrTooShort, Length: len(data)}
	}
	if !bytes.Equal(data[:8], PriceOracleDiscriminator) {
		return nil, &DecodeError{Err: ErrBadDiscriminator, Length: len(data)}
	}
	var out PriceOracle
	if err := bin.NewBorshDecoder(data[8:]).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode price oracle: %w", err)
	}
	return &out, nil
}

// UpdateDue reports whether the program accepts a new price at now.
func (o *PriceOracle) UpdateDue(now time.Time) bool {
	return now.Unix() >= o.NextUpdateTimestamp
}

// EncodePriceOracle is the inverse of DecodePriceOracle.
func EncodePriceOracle(o *PriceOracle) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(PriceOracleDiscriminator)
	if err := bin.NewBorshEncoder(&buf).Encode(o); err != nil {
		return nil, fmt.Errorf("encode price oracle: %w", err)
	}
	return buf.Bytes(), nil
}
