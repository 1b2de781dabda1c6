package curve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
)

func u(n uint64) uint256.Int { return *uint256.NewInt(n) }

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	k, err := p.K()
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000000000", k.Dec())
}

func TestValidate(t *testing.T) {
	p := DefaultParams()
	p.FeeBps = 501
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)

	p = DefaultParams()
	p.TotalSupply = uint256.Int{}
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)

	p = DefaultParams()
	p.VirtualStx.Lsh(uint256.NewInt(1), 100)
	p.TotalSupply.Lsh(uint256.NewInt(1), 100)
	assert.ErrorIs(t, p.Validate(), ErrOverflow)
}

func TestBuy_FirstPurchaseAtDefaults(t *testing.T) {
	p := DefaultParams()

	q, err := Buy(p, u(0), u(0), u(100_000000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000000), q.Fee.Uint64())
	assert.Equal(t, uint64(99_000000), q.NetStx.Uint64())
	assert.False(t, q.TokensOut.IsZero())

	free := p
	free.FeeBps = 0
	fq, err := Buy(free, u(0), u(0), u(100_000000))
	require.NoError(t, err)
	assert.True(t, q.TokensOut.Lt(&fq.TokensOut), "fee must reduce tokens out")
	assert.True(t, fq.Fee.IsZero())

	assert.Equal(t, q.NetStx, q.NewStxReserve)
	assert.Equal(t, q.TokensOut, q.NewTokensSold)
}

func TestBuySell_RoundTripNeverPaysOutMore(t *testing.T) {
	for _, fee := range []uint64{0, 1, 100, 500} {
		p := DefaultParams()
		p.FeeBps = fee

		reserve, sold := u(0), u(0)
		for _, amount := range []uint64{1_000000, 250_000000, 7, 3_333_333333} {
			b, err := Buy(p, reserve, sold, u(amount))
			require.NoError(t, err)

			s, err := Sell(p, b.NewStxReserve, b.NewTokensSold, b.TokensOut)
			require.NoError(t, err)
			in := u(amount)
			assert.False(t, in.Lt(&s.StxOut), "fee %d amount %d: got %s back", fee, amount, s.StxOut.Dec())

			reserve, sold = b.NewStxReserve, b.NewTokensSold
		}
	}
}

func TestBuySell_ZeroFeeFromEmptyIsExact(t *testing.T) {
	p := DefaultParams()
	p.FeeBps = 0

	b, err := Buy(p, u(0), u(0), u(42_000000))
	require.NoError(t, err)
	s, err := Sell(p, b.NewStxReserve, b.NewTokensSold, b.TokensOut)
	require.NoError(t, err)

	assert.Equal(t, uint64(42_000000), s.StxOut.Uint64())
	assert.True(t, s.NewStxReserve.IsZero())
	assert.True(t, s.NewTokensSold.IsZero())
}

func TestBuy_Errors(t *testing.T) {
	p := DefaultParams()

	_, err := Buy(p, u(0), u(0), u(0))
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = Buy(p, u(0), p.TotalSupply, u(10))
	assert.ErrorIs(t, err, ErrSoldOut)
}

func TestSell_Errors(t *testing.T) {
	p := DefaultParams()

	_, err := Sell(p, u(0), u(0), u(0))
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = Sell(p, u(1_000000), u(10), u(11))
	assert.ErrorIs(t, err, ErrInsufficientReserve)

	b, err := Buy(p, u(0), u(0), u(500_000000))
	require.NoError(t, err)

	// returning every token from a drained reserve quotes what is left
	all, err := Sell(p, u(1), b.NewTokensSold, b.TokensOut)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), all.GrossStx.Uint64())
	assert.True(t, all.NewStxReserve.IsZero())

	// a partial sell implies a reserve far above what the curve holds
	_, err = Sell(p, u(1), b.NewTokensSold, u(1_000_000))
	assert.ErrorIs(t, err, ErrInsufficientReserve)
}

func TestPrice(t *testing.T) {
	p := DefaultParams()

	start, err := Price(p, u(0), u(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000000), start.Uint64())

	b, err := Buy(p, u(0), u(0), u(1_000_000000))
	require.NoError(t, err)
	after, err := Price(p, b.NewStxReserve, b.NewTokensSold)
	require.NoError(t, err)
	assert.True(t, start.Lt(&after))

	_, err = Price(p, u(0), p.TotalSupply)
	assert.ErrorIs(t, err, ErrSoldOut)
}

func TestGraduationProgress(t *testing.T) {
	assert.Equal(t, uint64(0), GraduationProgress(u(0), u(1000)))
	assert.Equal(t, uint64(100), GraduationProgress(u(1000), u(1000)))
	assert.Equal(t, uint64(100), GraduationProgress(u(2000), u(1000)))
	assert.Equal(t, uint64(100), GraduationProgress(u(0), u(0)))
	assert.Equal(t, uint64(100), GraduationProgress(u(12345), u(0)))
	assert.Equal(t, uint64(49), GraduationProgress(u(499), u(1000)))
}

func TestParamsFromRecord(t *testing.T) {
	rec := clarity.Record{
		"fee-bps":      clarity.UintValue(250),
		"total-supply": clarity.UintValue(5_000_000),
	}
	p := ParamsFromRecord(rec, DefaultParams())

	assert.Equal(t, uint64(250), p.FeeBps)
	assert.Equal(t, uint64(5_000_000), p.TotalSupply.Uint64())
	assert.Equal(t, DefaultParams().VirtualStx, p.VirtualStx)
	assert.Equal(t, DefaultParams().GraduationStx, p.GraduationStx)
}
