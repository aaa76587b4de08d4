package credit

import (
	"fmt"
	"math/big"
	"time"
)

// DefaultStalenessWindow bounds how old an oracle reading may be before the
// triggering operation is rejected.
const DefaultStalenessWindow = time.Hour

// PriceSource resolves validated quotes for registered assets. Stable assets
// synthesize a unit price locally; oracle assets consult the injected
// QuoteOracle and are rejected when the reading is stale, incomplete or
// malformed. A failed validation always aborts the caller, never substitutes
// a fallback value.
type PriceSource struct {
	oracle QuoteOracle
	maxAge time.Duration
	clock  func() time.Time
}

// NewPriceSource constructs a source with the supplied oracle capability.
// A non-positive maxAge falls back to DefaultStalenessWindow.
func NewPriceSource(oracle QuoteOracle, maxAge time.Duration) *PriceSource {
	if maxAge <= 0 {
		maxAge = DefaultStalenessWindow
	}
	return &PriceSource{oracle: oracle, maxAge: maxAge, clock: time.Now}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (p *PriceSource) SetClock(clock func() time.Time) {
	if p == nil || clock == nil {
		return
	}
	p.clock = clock
}

// Quote returns a validated price for the asset. Stable assets cost no
// external call: price 1 at zero decimals makes credit conversion a pure
// precision rescale.
func (p *PriceSource) Quote(desc AssetDescriptor) (Quote, error) {
	if p == nil {
		return Quote{}, fmt.Errorf("credit: price source not configured")
	}
	if desc.Mode == PriceModeStable {
		return Quote{
			Price:         big.NewInt(1),
			Decimals:      0,
			UpdatedAt:     p.clock().Unix(),
			RoundComplete: true,
		}, nil
	}
	if p.oracle == nil {
		return Quote{}, fmt.Errorf("%w: no oracle configured", ErrInvalidPrice)
	}
	quote, err := p.oracle.LatestQuote(desc.OracleRef)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, desc.OracleRef, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: %s: non-positive answer", ErrInvalidPrice, desc.OracleRef)
	}
	if quote.UpdatedAt <= 0 {
		return Quote{}, fmt.Errorf("%w: %s: missing timestamp", ErrInvalidPrice, desc.OracleRef)
	}
	if !quote.RoundComplete {
		return Quote{}, fmt.Errorf("%w: %s: round incomplete", ErrInvalidPrice, desc.OracleRef)
	}
	if age := p.clock().Unix() - quote.UpdatedAt; age > int64(p.maxAge/time.Second) {
		return Quote{}, fmt.Errorf("%w: %s: %ds old", ErrStalePrice, desc.OracleRef, age)
	}
	return quote, nil
}

// CreditValue converts a native asset amount into credits:
// amount * price rescaled from (assetPrecision + priceDecimals) down to the
// credit precision. Truncation rounds in the ledger's favor.
func (p *PriceSource) CreditValue(desc AssetDescriptor, amount *big.Int) (*big.Int, error) {
	quote, err := p.Quote(desc)
	if err != nil {
		return nil, err
	}
	return creditValueAt(desc, quote, amount), nil
}

// AssetValue is the numeric inverse of CreditValue. Integer division makes
// AssetValue(CreditValue(x)) <= x in general; the loss is one-directional.
func (p *PriceSource) AssetValue(desc AssetDescriptor, credits *big.Int) (*big.Int, error) {
	quote, err := p.Quote(desc)
	if err != nil {
		return nil, err
	}
	return assetValueAt(desc, quote, credits), nil
}

func creditValueAt(desc AssetDescriptor, quote Quote, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	raw := new(big.Int).Mul(amount, quote.Price)
	return ConvertPrecision(raw, desc.Precision+quote.Decimals, CreditDecimals)
}

func assetValueAt(desc AssetDescriptor, quote Quote, credits *big.Int) *big.Int {
	if credits == nil || credits.Sign() <= 0 {
		return big.NewInt(0)
	}
	raw := ConvertPrecision(credits, CreditDecimals, desc.Precision+quote.Decimals)
	return raw.Quo(raw, quote.Price)
}
