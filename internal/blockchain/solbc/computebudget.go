// internal/blockchain/solbc/computebudget.go
package solbc

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ComputeBudgetProgramID is the native compute budget program.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	setComputeUnitLimit uint8 = 2
	setComputeUnitPrice uint8 = 3
)

// ComputeBudget sets the compute unit limit and the priority fee.
type ComputeBudget struct {
	Units uint32
	// MicroLamports per compute unit; 0 sends no price instruction.
	MicroLamports uint64
}

// Instructions returns the budget instructions to prepend, or nil when the
// budget is empty.
func (b ComputeBudget) Instructions() ([]solana.Instruction, error) {
	var out []solana.Instruction
	if b.Units > 0 {
		ix, err := budgetInstruction(setComputeUnitLimit, b.Units)
		if err != nil {
			return nil, fmt.Errorf("failed to build compute unit limit instruction: %w", err)
		}
		out = append(out, ix)
	}
	if b.MicroLamports > 0 {
		ix, err := budgetInstruction(setComputeUnitPrice, b.MicroLamports)
		if err != nil {
			return nil, fmt.Errorf("failed to build compute unit price instruction: %w", err)
		}
		out = append(out, ix)
	}
	return out, nil
}

func budgetInstruction(discriminator uint8, arg interface{}) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(discriminator); err != nil {
		return nil, err
	}
	var err error
	switch v := arg.(type) {
	case uint32:
		err = enc.WriteUint32(v, bin.LE)
	case uint64:
		err = enc.WriteUint64(v, bin.LE)
	default:
		err = fmt.Errorf("unsupported budget argument %T", arg)
	}
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, buf.Bytes()), nil
}
