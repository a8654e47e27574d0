// internal/blockchain/ledgertest/ledger.go
//
// Package ledgertest provides an in-memory blockchain.Ledger that applies the
// battle program's instruction semantics to encoded accounts.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
)

const (
	// errAccountNotInitialized is Anchor's AccountNotInitialized framework error.
	errAccountNotInitialized = 3012

	spoilsBps      = 5000
	feeBps         = 500
	keeperShareBps = 8000
	bpsDenominator = 10_000

	lamportsPerByteYear = 3480
	exemptionYears      = 2
	accountOverhead     = 128
)

// Ledger is a fake ledger. It is safe for concurrent use.
type Ledger struct {
	Program    *program.Program
	Thresholds battle.Thresholds
	Now        func() time.Time
	// PriceInterval is the oracle's minimum spacing between price updates.
	PriceInterval time.Duration

	// BeforeSubmit runs under no lock before an instruction is applied. It
	// lets tests interleave a competing writer.
	BeforeSubmit func(name string)
	// FailSubmits makes the next N submits fail with a transport error.
	FailSubmits int

	mu          sync.Mutex
	accounts    map[solana.PublicKey]*blockchain.Account
	tokens      map[solana.PublicKey]uint64
	submissions []string
	seq         uint64
}

// New creates an empty ledger for prog.
func New(prog *program.Program, thresholds battle.Thresholds) *Ledger {
	return &Ledger{
		Program:       prog,
		Thresholds:    thresholds,
		Now:           time.Now,
		PriceInterval: time.Minute,
		accounts:      make(map[solana.PublicKey]*blockchain.Account),
		tokens:        make(map[solana.PublicKey]uint64),
	}
}

// Rent is the rent-exempt minimum of an account of size bytes.
func Rent(size int) uint64 {
	return uint64(accountOverhead+size) * lamportsPerByteYear * exemptionYears
}

// PutBattle stores st at its battle state PDA. Lamports = rent + real SOL
// reserves; the mint account and the curve's token account are created too.
func (l *Ledger) PutBattle(st *battle.BattleState, curveTokens uint64) solana.PublicKey {
	l.mu.Lock()
	defer l.mu.Unlock()

	pda, err := l.Program.BattleStatePDA(st.Mint)
	if err != nil {
		panic(err)
	}
	data, err := battle.Encode(st)
	if err != nil {
		panic(err)
	}
	l.accounts[pda] = &blockchain.Account{
		Address:  pda,
		Owner:    l.Program.ID,
		Lamports: Rent(len(data)) + st.RealSolReserves,
		Data:     data,
	}
	if _, ok := l.accounts[st.Mint]; !ok {
		l.accounts[st.Mint] = &blockchain.Account{
			Address:  st.Mint,
			Owner:    solana.TokenProgramID,
			Lamports: Rent(82),
			Data:     make([]byte, 82),
		}
	}
	contractATA, err := program.AssociatedTokenAddress(pda, st.Mint, solana.TokenProgramID)
	if err != nil {
		panic(err)
	}
	l.createTokenAccount(contractATA)
	l.tokens[contractATA] = curveTokens
	return pda
}

// PutOracle stores the price oracle account.
func (l *Ledger) PutOracle(o *battle.PriceOracle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr, err := l.Program.PriceOraclePDA()
	if err != nil {
		panic(err)
	}
	data, err := battle.EncodePriceOracle(o)
	if err != nil {
		panic(err)
	}
	l.accounts[addr] = &blockchain.Account{Address: addr, Owner: l.Program.ID, Lamports: Rent(len(data)), Data: data}
}

// Battle returns the decoded state of mint.
func (l *Ledger) Battle(mint solana.PublicKey) *battle.BattleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, _ := l.battleLocked(mint)
	return st
}

// Mutate applies fn to the stored state of mint, as an external writer would.
func (l *Ledger) Mutate(mint solana.PublicKey, fn func(st *battle.BattleState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, acc := l.battleLocked(mint)
	if st == nil {
		panic(fmt.Sprintf("no battle state for %s", mint))
	}
	before := st.RealSolReserves
	fn(st)
	if st.RealSolReserves >= before {
		acc.Lamports += st.RealSolReserves - before
	} else {
		acc.Lamports -= before - st.RealSolReserves
	}
	l.storeLocked(acc, st)
}

// Lamports returns the balance of addr.
func (l *Ledger) Lamports(addr solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Lamports
	}
	return 0
}

// TokenBalance returns the token amount held by a token account.
func (l *Ledger) TokenBalance(addr solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens[addr]
}

// Submissions lists the instruction names applied or rejected, in order.
func (l *Ledger) Submissions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.submissions...)
}

// Count returns how many times name was submitted.
func (l *Ledger) Count(name string) int {
	n := 0
	for _, s := range l.Submissions() {
		if s == name {
			n++
		}
	}
	return n
}

// ReadAccount implements blockchain.Ledger.
func (l *Ledger) ReadAccount(_ context.Context, address solana.PublicKey) (*blockchain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok {
		return nil, fmt.Errorf("%s: %w", address, blockchain.ErrAccountNotFound)
	}
	return copyAccount(acc), nil
}

// ReadAccounts implements blockchain.Ledger.
func (l *Ledger) ReadAccounts(_ context.Context, addresses []solana.PublicKey) ([]*blockchain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*blockchain.Account, len(addresses))
	for i, a := range addresses {
		if acc, ok := l.accounts[a]; ok {
			out[i] = copyAccount(acc)
		}
	}
	return out, nil
}

// MinimumBalanceForRentExemption implements blockchain.Ledger.
func (l *Ledger) MinimumBalanceForRentExemption(_ context.Context, dataSize uint64) (uint64, error) {
	return Rent(int(dataSize)), nil
}

// TokenAccountBalance implements blockchain.Ledger.
func (l *Ledger) TokenAccountBalance(_ context.Context, account solana.PublicKey) (uint64, error) {
	return l.TokenBalance(account), nil
}

// Submit implements blockchain.Ledger.
func (l *Ledger) Submit(_ context.Context, ix solana.Instruction, signer *wallet.Wallet) (blockchain.SubmitResult, error) {
	data, err := ix.Data()
	if err != nil {
		return blockchain.SubmitResult{}, err
	}
	name := program.InstructionName(data)
	if ix.ProgramID().Equals(solana.SPLAssociatedTokenAccountProgramID) {
		name = "create_ata"
	}
	if l.BeforeSubmit != nil {
		l.BeforeSubmit(name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailSubmits > 0 {
		l.FailSubmits--
		return blockchain.SubmitResult{}, errors.New("connection reset by peer")
	}

	l.seq++
	sig := signatureFor(l.seq)
	l.submissions = append(l.submissions, name)

	accs := ix.Accounts()
	var rejectCode int
	switch {
	case name == "create_ata":
		l.createTokenAccount(accs[1].PublicKey)
	case !ix.ProgramID().Equals(l.Program.ID):
		return blockchain.SubmitResult{}, fmt.Errorf("unknown program %s", ix.ProgramID())
	case !l.Program.Keeper.IsZero() && name != program.NameCheckVictory && !signer.PublicKey.Equals(l.Program.Keeper):
		rejectCode = program.CodeUnauthorized
	default:
		rejectCode = l.apply(name, accs, data)
	}

	if rejectCode != 0 {
		return blockchain.SubmitResult{
			Outcome:   blockchain.OutcomeRejected,
			Signature: sig,
			Reject:    &blockchain.AnchorError{Code: rejectCode, Name: program.ErrorName(rejectCode)},
			Err:       fmt.Errorf("custom program error: %#x", rejectCode),
		}, nil
	}
	return blockchain.SubmitResult{Outcome: blockchain.OutcomeConfirmed, Signature: sig}, nil
}

func (l *Ledger) apply(name string, accs []*solana.AccountMeta, data []byte) int {
	now := l.Now().Unix()
	switch name {
	case program.NameCheckVictory:
		acc, st := l.stateAt(accs[0].PublicKey)
		if st == nil {
			return errAccountNotInitialized
		}
		if st.Status != battle.StatusInBattle {
			return program.CodeNotInBattle
		}
		if l.Thresholds.Meets(st) {
			st.Status = battle.StatusVictoryPending
			st.VictoryTimestamp = now
			l.storeLocked(acc, st)
		}

	case program.NameFinalizeDuel:
		wAcc, winner := l.stateAt(accs[0].PublicKey)
		lAcc, loser := l.stateAt(accs[1].PublicKey)
		if winner == nil || loser == nil {
			return errAccountNotInitialized
		}
		if !accs[2].PublicKey.Equals(l.Program.Treasury) {
			return program.CodeInvalidTreasury
		}
		switch {
		case winner.Status != battle.StatusVictoryPending:
			return program.CodeInvalidBattleState
		case loser.Status != battle.StatusInBattle:
			return program.CodeNotInBattle
		case !winner.IsOpponentOf(loser):
			return program.CodeNotOpponents
		}
		spoils := loser.RealSolReserves * spoilsBps / bpsDenominator
		fee := (winner.RealSolReserves + spoils) * feeBps / bpsDenominator
		keeperFee := fee * keeperShareBps / bpsDenominator

		loser.RealSolReserves -= spoils
		loser.SolCollected = loser.RealSolReserves
		lAcc.Lamports -= spoils
		winner.RealSolReserves += spoils - fee
		winner.SolCollected = winner.RealSolReserves
		wAcc.Lamports += spoils - fee
		l.credit(l.Program.Treasury, fee-keeperFee)
		l.credit(accs[3].PublicKey, keeperFee)

		winner.Status = battle.StatusListed
		winner.IsActive = false
		winner.OpponentMint = solana.PublicKey{}
		winner.ListingTimestamp = now
		loser.Status = battle.StatusQualified
		loser.IsActive = true
		loser.OpponentMint = solana.PublicKey{}
		l.storeLocked(wAcc, winner)
		l.storeLocked(lAcc, loser)

	case program.NameWithdraw:
		acc, st := l.stateAt(accs[0].PublicKey)
		if st == nil {
			return errAccountNotInitialized
		}
		if st.Status != battle.StatusListed {
			return program.CodeNotReadyForListing
		}
		rent := Rent(len(acc.Data))
		if acc.Lamports <= rent {
			return program.CodeNoLiquidityToWithdraw
		}
		contractATA, keeperATA := accs[2].PublicKey, accs[3].PublicKey
		if _, ok := l.accounts[keeperATA]; !ok {
			return errAccountNotInitialized
		}
		available := acc.Lamports - rent
		acc.Lamports = rent
		l.credit(accs[4].PublicKey, available)
		l.tokens[keeperATA] += l.tokens[contractATA]
		l.tokens[contractATA] = 0
		st.SolCollected = 0
		st.RealSolReserves = 0
		l.storeLocked(acc, st)

	case program.NameStartBattle:
		aAcc, a := l.stateAt(accs[0].PublicKey)
		bAcc, b := l.stateAt(accs[1].PublicKey)
		if a == nil || b == nil {
			return errAccountNotInitialized
		}
		if a.Mint.Equals(b.Mint) {
			return program.CodeSelfBattle
		}
		if a.Status != battle.StatusQualified || b.Status != battle.StatusQualified {
			return program.CodeNotQualified
		}
		if err := l.Thresholds.CanPair(a, b); err != nil {
			return program.CodeUnfairMatch
		}
		a.Status, b.Status = battle.StatusInBattle, battle.StatusInBattle
		a.OpponentMint, b.OpponentMint = b.Mint, a.Mint
		a.BattleStartTimestamp, b.BattleStartTimestamp = now, now
		l.storeLocked(aAcc, a)
		l.storeLocked(bAcc, b)

	case program.NameUpdatePrice:
		acc, ok := l.accounts[accs[0].PublicKey]
		if !ok {
			return errAccountNotInitialized
		}
		o, err := battle.DecodePriceOracle(acc.Data)
		if err != nil {
			return errAccountNotInitialized
		}
		if now < o.NextUpdateTimestamp {
			return program.CodePriceUpdateTooSoon
		}
		o.SolPriceUSD = binary.LittleEndian.Uint64(data[8:16])
		o.LastUpdateTimestamp = now
		o.NextUpdateTimestamp = now + int64(l.PriceInterval/time.Second)
		o.UpdateCount++
		acc.Data, _ = battle.EncodePriceOracle(o)

	default:
		return program.CodeInvalidBattleState
	}
	return 0
}

func (l *Ledger) battleLocked(mint solana.PublicKey) (*battle.BattleState, *blockchain.Account) {
	pda, err := l.Program.BattleStatePDA(mint)
	if err != nil {
		return nil, nil
	}
	acc, st := l.stateAt(pda)
	return st, acc
}

func (l *Ledger) stateAt(addr solana.PublicKey) (*blockchain.Account, *battle.BattleState) {
	acc, ok := l.accounts[addr]
	if !ok {
		return nil, nil
	}
	st, err := battle.Decode(acc.Data)
	if err != nil {
		return acc, nil
	}
	st.Lamports = acc.Lamports
	return acc, st
}

func (l *Ledger) storeLocked(acc *blockchain.Account, st *battle.BattleState) {
	data, err := battle.Encode(st)
	if err != nil {
		panic(err)
	}
	acc.Data = data
}

func (l *Ledger) createTokenAccount(addr solana.PublicKey) {
	if _, ok := l.accounts[addr]; ok {
		return
	}
	l.accounts[addr] = &blockchain.Account{Address: addr, Owner: solana.TokenProgramID, Lamports: Rent(165), Data: make([]byte, 165)}
}

func (l *Ledger) credit(addr solana.PublicKey, lamports uint64) {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &blockchain.Account{Address: addr, Owner: solana.SystemProgramID}
		l.accounts[addr] = acc
	}
	acc.Lamports += lamports
}

func copyAccount(acc *blockchain.Account) *blockchain.Account {
	out := *acc
	out.Data = append([]byte(nil), acc.Data...)
	return &out
}

func signatureFor(seq uint64) solana.Signature {
	var sig solana.Signature
	h := sha256.Sum256([]byte(fmt.Sprintf("tx-%d", seq)))
	copy(sig[:], h[:])
	copy(sig[32:], h[:])
	return sig
}

var _ blockchain.Ledger = (*Ledger)(nil)
