package battle

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceOracleRoundTrip(t *testing.T) {
	in := &PriceOracle{
		SolPriceUSD:         152_340_000,
		LastUpdateTimestamp: 1_700_000_000,
		NextUpdateTimestamp: 1_700_000_060,
		KeeperAuthority:     solana.NewWallet().PublicKey(),
		UpdateCount:         17,
	}
	data, err := EncodePriceOracle(in)
	require.NoError(t, err)
	require.Len(t, data, 80)

	out, err := DecodePriceOracle(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	assert.False(t, out.UpdateDue(time.Unix(1_700_000_059, 0)))
	assert.True(t, out.UpdateDue(time.Unix(1_700_000_060, 0)))
}

func TestPriceOracleRejectsBattleAccount(t *testing.T) {
	data := make([]byte, 80)
	copy(data, BattleStateDiscriminator)
	_, err := DecodePriceOracle(data)
	assert.ErrorIs(t, err, ErrBadDiscriminator)
}
