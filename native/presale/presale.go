// Package presale implements a fixed-price token sale window paid in a
// designated payment asset.
package presale

import (
	"errors"
	"math/big"
	"time"

	"creditnet/core/events"
)

var (
	ErrUnauthorized      = errors.New("presale: unauthorized")
	ErrNotConfigured     = errors.New("presale: not configured")
	ErrAlreadyConfigured = errors.New("presale: already configured")
	ErrInvalidAmount     = errors.New("presale: amount must be positive")
	ErrInvalidPrice      = errors.New("presale: price must be positive")
	ErrInvalidWindow     = errors.New("presale: invalid sale window")
	ErrSaleClosed        = errors.New("presale: sale closed")
	ErrSaleOpen          = errors.New("presale: sale still open")
	ErrHardCapExceeded   = errors.New("presale: hard cap exceeded")
	ErrFinalized         = errors.New("presale: already finalized")
)

type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type Funds interface {
	Transfer(asset, from, to [20]byte, amount *big.Int) error
}

// storedSale holds the sale configuration and running totals. Price is the
// payment-asset cost of one whole sale token; token amounts are expressed at
// the sale asset's native precision.
type storedSale struct {
	SaleAsset     [20]byte
	PaymentAsset  [20]byte
	Price         *big.Int
	HardCap       *big.Int
	Sold          *big.Int
	Raised        *big.Int
	SalePrecision uint8
	Start         uint64
	End           uint64
	Configured    bool
	Finalized     bool
}

var saleKey = []byte("presale/sale")

type Engine struct {
	st       Storage
	funds    Funds
	treasury [20]byte
	owner    [20]byte
	emitter  events.Emitter
	clock    func() time.Time
}

// NewEngine binds the presale engine. The treasury holds the sale inventory
// and collects payments.
func NewEngine(st Storage, funds Funds, treasury, owner [20]byte) *Engine {
	return &Engine{st: st, funds: funds, treasury: treasury, owner: owner, emitter: events.NoopEmitter{}, clock: time.Now}
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

// Configure opens the sale. Owner only, once.
func (e *Engine) Configure(caller [20]byte, saleAsset, paymentAsset [20]byte, salePrecision uint8, price, hardCap *big.Int, start, end int64) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	sale := storedSale{}
	if _, err := e.st.KVGet(saleKey, &sale); err != nil {
		return err
	}
	if sale.Configured {
		return ErrAlreadyConfigured
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if hardCap == nil || hardCap.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if start <= 0 || end <= start {
		return ErrInvalidWindow
	}
	sale = storedSale{
		SaleAsset:     saleAsset,
		PaymentAsset:  paymentAsset,
		Price:         new(big.Int).Set(price),
		HardCap:       new(big.Int).Set(hardCap),
		Sold:          big.NewInt(0),
		Raised:        big.NewInt(0),
		SalePrecision: salePrecision,
		Start:         uint64(start),
		End:           uint64(end),
		Configured:    true,
	}
	if err := e.st.KVPut(saleKey, sale); err != nil {
		return err
	}
	e.emitter.Emit(events.PresaleConfigured{
		SaleAsset:    saleAsset,
		PaymentAsset: paymentAsset,
		Price:        new(big.Int).Set(price),
		HardCap:      new(big.Int).Set(hardCap),
	})
	return nil
}

// Buy exchanges paid units of the payment asset for sale tokens at the fixed
// price: tokens = paid * 10^salePrecision / price, truncated.
func (e *Engine) Buy(buyer [20]byte, paid *big.Int) (*big.Int, error) {
	sale, err := e.load()
	if err != nil {
		return nil, err
	}
	if paid == nil || paid.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	now := uint64(e.clock().Unix())
	if now < sale.Start || now > sale.End || sale.Finalized {
		return nil, ErrSaleClosed
	}
	tokens := new(big.Int).Mul(paid, pow10(sale.SalePrecision))
	tokens.Quo(tokens, sale.Price)
	if tokens.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	sold := new(big.Int).Add(sale.Sold, tokens)
	if sold.Cmp(sale.HardCap) > 0 {
		return nil, ErrHardCapExceeded
	}
	if err := e.funds.Transfer(sale.PaymentAsset, buyer, e.treasury, paid); err != nil {
		return nil, err
	}
	if err := e.funds.Transfer(sale.SaleAsset, e.treasury, buyer, tokens); err != nil {
		return nil, err
	}
	sale.Sold = sold
	sale.Raised = new(big.Int).Add(sale.Raised, paid)
	if err := e.st.KVPut(saleKey, *sale); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PresalePurchased{
		Buyer:   buyer,
		Paid:    new(big.Int).Set(paid),
		Tokens:  new(big.Int).Set(tokens),
		SoldNow: new(big.Int).Set(sale.Sold),
	})
	return tokens, nil
}

// Finalize closes the books after the window ends. Owner only.
func (e *Engine) Finalize(caller [20]byte) (*big.Int, error) {
	if caller != e.owner {
		return nil, ErrUnauthorized
	}
	sale, err := e.load()
	if err != nil {
		return nil, err
	}
	if sale.Finalized {
		return nil, ErrFinalized
	}
	if uint64(e.clock().Unix()) <= sale.End {
		return nil, ErrSaleOpen
	}
	sale.Finalized = true
	if err := e.st.KVPut(saleKey, *sale); err != nil {
		return nil, err
	}
	raised := new(big.Int).Set(sale.Raised)
	e.emitter.Emit(events.PresaleFinalized{Raised: raised})
	return raised, nil
}

// Sold reports how many tokens the sale has moved.
func (e *Engine) Sold() (*big.Int, error) {
	sale, err := e.load()
	if err != nil {
		return nil, err
	}
	return sale.Sold, nil
}

func (e *Engine) load() (*storedSale, error) {
	sale := storedSale{}
	ok, err := e.st.KVGet(saleKey, &sale)
	if err != nil {
		return nil, err
	}
	if !ok || !sale.Configured {
		return nil, ErrNotConfigured
	}
	for _, field := range []**big.Int{&sale.Price, &sale.HardCap, &sale.Sold, &sale.Raised} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return &sale, nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
