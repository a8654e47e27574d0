package program

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProgramID = "6LdnckDuYxXn4UkyyD5YB7w9j2k49AsuZCNmQ3GhR2Eq"
	testTreasury  = "5t46DVegMLyVQ2nstgPPUNDn5WCEFwgQCXfbSx1nHrdf"
	testKeeper    = "753pndtcJx31bTXJNQPYvnesghXyQpBwTaYEACz7wQE3"
)

func testProgram(t *testing.T) *Program {
	t.Helper()
	p, err := New(testProgramID, testTreasury, testKeeper)
	require.NoError(t, err)
	return p
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("not-a-key", testTreasury, testKeeper)
	assert.Error(t, err)
	_, err = New(testProgramID, "", testKeeper)
	assert.Error(t, err)
}

func TestBattleStatePDAIsDeterministicPerMint(t *testing.T) {
	p := testProgram(t)
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	a1, err := p.BattleStatePDA(mintA)
	require.NoError(t, err)
	a2, err := p.BattleStatePDA(mintA)
	require.NoError(t, err)
	b, err := p.BattleStatePDA(mintB)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.False(t, solana.IsOnCurve(a1.Bytes()))
}

func TestAssociatedTokenAddressMatchesLibraryForClassicToken(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	got, err := AssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got2022, err := AssociatedTokenAddress(owner, mint, solana.Token2022ProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, want, got2022)
}

func TestFinalizeDuelAccountOrder(t *testing.T) {
	p := testProgram(t)
	winner := solana.NewWallet().PublicKey()
	loser := solana.NewWallet().PublicKey()

	ix, err := p.FinalizeDuel(winner, loser)
	require.NoError(t, err)

	winnerState, _ := p.BattleStatePDA(winner)
	loserState, _ := p.BattleStatePDA(loser)
	accs := ix.Accounts()
	require.Len(t, accs, 5)
	assert.Equal(t, winnerState, accs[0].PublicKey)
	assert.Equal(t, loserState, accs[1].PublicKey)
	assert.Equal(t, p.Treasury, accs[2].PublicKey)
	assert.Equal(t, p.Keeper, accs[3].PublicKey)
	assert.True(t, accs[3].IsSigner)
	assert.Equal(t, solana.SystemProgramID, accs[4].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, NameFinalizeDuel, InstructionName(data))
}

func TestWithdrawForListingAccounts(t *testing.T) {
	p := testProgram(t)
	mint := solana.NewWallet().PublicKey()

	acc, err := p.WithdrawAccountsFor(mint, solana.Token2022ProgramID)
	require.NoError(t, err)
	ix := p.WithdrawForListing(mint, acc)

	accs := ix.Accounts()
	require.Len(t, accs, 8)
	assert.Equal(t, acc.BattleState, accs[0].PublicKey)
	assert.Equal(t, mint, accs[1].PublicKey)
	assert.Equal(t, acc.ContractATA, accs[2].PublicKey)
	assert.Equal(t, acc.KeeperATA, accs[3].PublicKey)
	assert.Equal(t, solana.Token2022ProgramID, accs[6].PublicKey)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, accs[7].PublicKey)
}

func TestUpdateSolPriceEncodesArgument(t *testing.T) {
	p := testProgram(t)
	ix, err := p.UpdateSolPrice(152_340_000)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)
	assert.Equal(t, NameUpdatePrice, InstructionName(data))
	assert.Equal(t, uint64(152_340_000), binary.LittleEndian.Uint64(data[8:]))
}

func TestCheckVictoryDataIsNotShared(t *testing.T) {
	p := testProgram(t)
	mint := solana.NewWallet().PublicKey()
	ix, err := p.CheckVictoryConditions(mint)
	require.NoError(t, err)
	data, _ := ix.Data()
	data[0] = 0

	ix2, err := p.CheckVictoryConditions(mint)
	require.NoError(t, err)
	data2, _ := ix2.Data()
	assert.Equal(t, NameCheckVictory, InstructionName(data2))
}

func TestErrorTable(t *testing.T) {
	assert.Equal(t, "NotInBattle", ErrorName(CodeNotInBattle))
	assert.Equal(t, "NoLiquidityToWithdraw", ErrorName(0x1788))
	assert.Equal(t, "PriceUpdateTooSoon", ErrorName(CodePriceUpdateTooSoon))
	assert.Equal(t, "Custom(42)", ErrorName(42))

	code, ok := ErrorCode("NotOpponents")
	assert.True(t, ok)
	assert.Equal(t, CodeNotOpponents, code)

	assert.True(t, IsStalePrecondition(CodeInvalidBattleState))
	assert.False(t, IsStalePrecondition(CodeNoVictoryAchieved))
	assert.False(t, IsStalePrecondition(CodeUnauthorized))
}

func TestTokenProgramForMintOwner(t *testing.T) {
	got, err := TokenProgramForMintOwner(solana.Token2022ProgramID)
	require.NoError(t, err)
	assert.Equal(t, solana.Token2022ProgramID, got)

	_, err = TokenProgramForMintOwner(solana.SystemProgramID)
	assert.Error(t, err)
}
