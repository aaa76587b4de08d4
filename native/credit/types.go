package credit

import "math/big"

// CreditDecimals is the fixed precision of the ledger's internal unit of
// account. Every asset amount is rescaled to this precision on deposit.
const CreditDecimals uint8 = 18

// PriceMode selects how an asset's deposits are valued.
type PriceMode uint8

const (
	// PriceModeStable values the asset 1:1 against the credit's reference
	// currency with no oracle lookup.
	PriceModeStable PriceMode = iota
	// PriceModeOracle values the asset with a live oracle quote.
	PriceModeOracle
)

func (m PriceMode) Valid() bool {
	return m == PriceModeStable || m == PriceModeOracle
}

func (m PriceMode) String() string {
	switch m {
	case PriceModeStable:
		return "stable"
	case PriceModeOracle:
		return "oracle"
	default:
		return "unknown"
	}
}

// AssetDescriptor describes one registered asset type.
type AssetDescriptor struct {
	Asset     [20]byte
	Precision uint8
	Mode      PriceMode
	OracleRef string
}

// Quote is a validated price reading. Price is denominated at Decimals
// decimal places against the credit's reference currency.
type Quote struct {
	Price         *big.Int
	Decimals      uint8
	UpdatedAt     int64
	RoundComplete bool
}

// Bucket is one entry of a user's per-asset credit breakdown.
type Bucket struct {
	Asset   [20]byte
	Credits *big.Int
}

// QuoteOracle resolves a raw price reading for an oracle reference. Readings
// are validated by the PriceSource before any arithmetic uses them.
type QuoteOracle interface {
	LatestQuote(ref string) (Quote, error)
}

// AssetVault abstracts the external token surface: pulling deposits into
// ledger custody, paying out, and reading the ledger's on-hand balance.
type AssetVault interface {
	TransferIn(asset [20]byte, from [20]byte, amount *big.Int) error
	TransferOut(asset [20]byte, to [20]byte, amount *big.Int) error
	LedgerBalance(asset [20]byte) (*big.Int, error)
}

// Storage abstracts the subset of state manager functionality the credit
// engine requires.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}
