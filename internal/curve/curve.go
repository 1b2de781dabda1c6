// Package curve implements the constant-product bonding curve used by the
// launchpad contract. Every result must match the on-chain quote exactly, so
// all arithmetic is unsigned integer math with truncating division and a hard
// 128-bit ceiling on intermediates.
package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
)

// PriceScale is the fixed-point scale of Price results.
const PriceScale = 1_000_000_000_000

// MaxFeeBps is the highest fee the launchpad accepts.
const MaxFeeBps = 500

const bpsDenominator = 10_000

var (
	ErrZeroAmount          = errors.New("curve: amount must be positive")
	ErrSoldOut             = errors.New("curve: no tokens left on the curve")
	ErrInsufficientReserve = errors.New("curve: trade exceeds curve reserves")
	ErrOverflow            = errors.New("curve: intermediate exceeds 128 bits")
	ErrInvalidParams       = errors.New("curve: invalid parameters")
)

// Params are the static pricing constants of one curve.
type Params struct {
	VirtualStx    uint256.Int
	TotalSupply   uint256.Int
	GraduationStx uint256.Int
	FeeBps        uint64
}

// DefaultParams returns the launchpad defaults: 10k STX virtual reserve,
// one billion tokens with six decimals, graduation at ~16.67k STX, 1% fee.
func DefaultParams() Params {
	var p Params
	p.VirtualStx.SetUint64(10_000_000000)
	p.TotalSupply.SetUint64(1_000_000_000_000000)
	p.GraduationStx.SetUint64(16_666_666667)
	p.FeeBps = 100
	return p
}

// Validate rejects parameter sets the contract would never deploy.
func (p Params) Validate() error {
	switch {
	case p.FeeBps > MaxFeeBps:
		return fmt.Errorf("%w: fee %d bps above %d", ErrInvalidParams, p.FeeBps, MaxFeeBps)
	case p.TotalSupply.IsZero():
		return fmt.Errorf("%w: zero total supply", ErrInvalidParams)
	case p.VirtualStx.IsZero():
		return fmt.Errorf("%w: zero virtual reserve", ErrInvalidParams)
	}
	if _, err := p.K(); err != nil {
		return err
	}
	return nil
}

// K is the curve invariant virtualStx × totalSupply.
func (p Params) K() (uint256.Int, error) {
	return mul(&p.VirtualStx, &p.TotalSupply)
}

// ParamsFromRecord reads a get-curve tuple. Fields that are missing fall back
// to def, so a partial record still yields usable params.
func ParamsFromRecord(rec clarity.Record, def Params) Params {
	return Params{
		VirtualStx:    rec.AmountOr("virtual-stx", def.VirtualStx),
		TotalSupply:   rec.AmountOr("total-supply", def.TotalSupply),
		GraduationStx: rec.AmountOr("graduation-stx", def.GraduationStx),
		FeeBps:        rec.Uint64("fee-bps", def.FeeBps),
	}
}

// BuyQuote is the outcome of spending StxIn on the curve.
type BuyQuote struct {
	StxIn         uint256.Int
	Fee           uint256.Int
	NetStx        uint256.Int
	TokensOut     uint256.Int
	NewStxReserve uint256.Int
	NewTokensSold uint256.Int
}

// SellQuote is the outcome of returning TokensIn to the curve.
type SellQuote struct {
	TokensIn      uint256.Int
	GrossStx      uint256.Int
	Fee           uint256.Int
	StxOut        uint256.Int
	NewStxReserve uint256.Int
	NewTokensSold uint256.Int
}

// Buy quotes a purchase of tokens for stxIn micro-STX at the given state.
func Buy(p Params, stxReserve, tokensSold, stxIn uint256.Int) (BuyQuote, error) {
	if stxIn.IsZero() {
		return BuyQuote{}, ErrZeroAmount
	}
	if tokensSold.Cmp(&p.TotalSupply) >= 0 {
		return BuyQuote{}, ErrSoldOut
	}
	k, err := p.K()
	if err != nil {
		return BuyQuote{}, err
	}
	fee, err := feeOf(&stxIn, p.FeeBps)
	if err != nil {
		return BuyQuote{}, err
	}

	var netStx, tokenReserve, newTokenReserve, tokensOut uint256.Int
	netStx.Sub(&stxIn, &fee)
	tokenReserve.Sub(&p.TotalSupply, &tokensSold)

	denom, err := add(&p.VirtualStx, &stxReserve)
	if err != nil {
		return BuyQuote{}, err
	}
	if denom, err = add(&denom, &netStx); err != nil {
		return BuyQuote{}, err
	}
	newTokenReserve.Div(&k, &denom)
	if newTokenReserve.Cmp(&tokenReserve) > 0 {
		// the supplied state lies off the curve
		return BuyQuote{}, ErrInsufficientReserve
	}
	tokensOut.Sub(&tokenReserve, &newTokenReserve)

	q := BuyQuote{StxIn: stxIn, Fee: fee, NetStx: netStx, TokensOut: tokensOut}
	q.NewStxReserve.Add(&stxReserve, &netStx)
	q.NewTokensSold.Add(&tokensSold, &tokensOut)
	return q, nil
}

// Sell quotes returning tokensIn to the curve at the given state.
func Sell(p Params, stxReserve, tokensSold, tokensIn uint256.Int) (SellQuote, error) {
	if tokensIn.IsZero() {
		return SellQuote{}, ErrZeroAmount
	}
	if tokensIn.Cmp(&tokensSold) > 0 || tokensSold.Cmp(&p.TotalSupply) > 0 {
		return SellQuote{}, ErrInsufficientReserve
	}
	k, err := p.K()
	if err != nil {
		return SellQuote{}, err
	}

	var tokenReserve, newTokenReserve, virtualAfter, newStxReserve, gross uint256.Int
	tokenReserve.Sub(&p.TotalSupply, &tokensSold)
	newTokenReserve.Add(&tokenReserve, &tokensIn)

	virtualAfter.Div(&k, &newTokenReserve)
	if virtualAfter.Cmp(&p.VirtualStx) < 0 {
		return SellQuote{}, ErrInsufficientReserve
	}
	newStxReserve.Sub(&virtualAfter, &p.VirtualStx)
	if newStxReserve.Cmp(&stxReserve) > 0 {
		return SellQuote{}, ErrInsufficientReserve
	}
	gross.Sub(&stxReserve, &newStxReserve)

	fee, err := feeOf(&gross, p.FeeBps)
	if err != nil {
		return SellQuote{}, err
	}
	q := SellQuote{TokensIn: tokensIn, GrossStx: gross, Fee: fee, NewStxReserve: newStxReserve}
	q.StxOut.Sub(&gross, &fee)
	q.NewTokensSold.Sub(&tokensSold, &tokensIn)
	return q, nil
}

// Price is the marginal price (virtualStx + stxReserve) / (totalSupply −
// tokensSold), multiplied by PriceScale before dividing.
func Price(p Params, stxReserve, tokensSold uint256.Int) (uint256.Int, error) {
	if tokensSold.Cmp(&p.TotalSupply) >= 0 {
		return uint256.Int{}, ErrSoldOut
	}
	num, err := add(&p.VirtualStx, &stxReserve)
	if err != nil {
		return uint256.Int{}, err
	}
	if num, err = mul(&num, uint256.NewInt(PriceScale)); err != nil {
		return uint256.Int{}, err
	}
	var remaining, out uint256.Int
	remaining.Sub(&p.TotalSupply, &tokensSold)
	out.Div(&num, &remaining)
	return out, nil
}

// GraduationProgress returns how far the reserve is toward the graduation
// threshold as a whole percentage in [0, 100]. A zero threshold counts as
// already graduated.
func GraduationProgress(stxReserve, graduationStx uint256.Int) uint64 {
	if graduationStx.IsZero() {
		return 100
	}
	if stxReserve.Cmp(&graduationStx) >= 0 {
		return 100
	}
	var pct uint256.Int
	if _, overflow := pct.MulOverflow(&stxReserve, uint256.NewInt(100)); overflow {
		return 100
	}
	pct.Div(&pct, &graduationStx)
	return pct.Uint64()
}

func feeOf(amount *uint256.Int, bps uint64) (uint256.Int, error) {
	fee, err := mul(amount, uint256.NewInt(bps))
	if err != nil {
		return uint256.Int{}, err
	}
	fee.Div(&fee, uint256.NewInt(bpsDenominator))
	return fee, nil
}

func mul(a, b *uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(a, b); overflow || z.BitLen() > 128 {
		return uint256.Int{}, ErrOverflow
	}
	return z, nil
}

func add(a, b *uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	z.Add(a, b)
	if z.BitLen() > 128 {
		return uint256.Int{}, ErrOverflow
	}
	return z, nil
}
