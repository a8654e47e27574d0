// internal/watcher/source.go
package watcher

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// Update is one changed account owned by the battle program.
type Update struct {
	Account  solana.PublicKey
	Slot     uint64
	Lamports uint64
	Data     []byte
}

// Source streams program account updates into out until ctx is done or the
// stream breaks.
type Source interface {
	Stream(ctx context.Context, out chan<- Update) error
}

// WSSource is a Source backed by a programSubscribe websocket subscription.
type WSSource struct {
	URL        string
	ProgramID  solana.PublicKey
	Commitment rpc.CommitmentType
}

// Stream implements Source.
func (s *WSSource) Stream(ctx context.Context, out chan<- Update) error {
	client, err := ws.Connect(ctx, s.URL)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.URL, err)
	}
	defer client.Close()

	commitment := s.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	sub, err := client.ProgramSubscribeWithOpts(s.ProgramID, commitment, solana.EncodingBase64, nil)
	if err != nil {
		return fmt.Errorf("program subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		res, err := sub.Recv(ctx)
		if err != nil {
			return err
		}
		acc := res.Value.Account
		if acc == nil || acc.Data == nil {
			continue
		}
		u := Update{
			Account:  res.Value.Pubkey,
			Slot:     res.Context.Slot,
			Lamports: acc.Lamports,
			Data:     acc.Data.GetBinary(),
		}
		select {
		case out <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
