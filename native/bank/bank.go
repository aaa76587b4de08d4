package bank

import (
	"errors"
	"math/big"

	"creditnet/core/events"
)

var (
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
)

// Storage abstracts the subset of state manager functionality the bank needs.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var balancePrefix = []byte("bank/balance/")

func balanceKey(asset, holder [20]byte) []byte {
	key := make([]byte, 0, len(balancePrefix)+40)
	key = append(key, balancePrefix...)
	key = append(key, asset[:]...)
	key = append(key, holder[:]...)
	return key
}

// Ledger tracks per-holder balances of every asset held in node custody. It
// stands in for the external token contracts at the ledger's trust boundary.
type Ledger struct {
	st      Storage
	emitter events.Emitter
}

func NewLedger(st Storage) *Ledger {
	return &Ledger{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Balance returns the holder's balance of the asset.
func (l *Ledger) Balance(asset, holder [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := l.st.KVGet(balanceKey(asset, holder), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// Mint credits the holder with freshly issued units. Genesis funding and
// faucets are the only callers.
func (l *Ledger) Mint(asset, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.Balance(asset, to)
	if err != nil {
		return err
	}
	if err := l.st.KVPut(balanceKey(asset, to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.BankMinted{Asset: asset, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves units between holders, failing when the source balance is
// short. Both balances are written back only after the debit check passes.
func (l *Ledger) Transfer(asset, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	source, err := l.Balance(asset, from)
	if err != nil {
		return err
	}
	if source.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	dest, err := l.Balance(asset, to)
	if err != nil {
		return err
	}
	if err := l.st.KVPut(balanceKey(asset, from), new(big.Int).Sub(source, amount)); err != nil {
		return err
	}
	if err := l.st.KVPut(balanceKey(asset, to), new(big.Int).Add(dest, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.BankTransferred{Asset: asset, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Vault adapts the bank to the credit engine's AssetVault capability: custody
// is one designated bank account.
type Vault struct {
	ledger  *Ledger
	custody [20]byte
}

func NewVault(ledger *Ledger, custody [20]byte) *Vault {
	return &Vault{ledger: ledger, custody: custody}
}

func (v *Vault) TransferIn(asset [20]byte, from [20]byte, amount *big.Int) error {
	return v.ledger.Transfer(asset, from, v.custody, amount)
}

func (v *Vault) TransferOut(asset [20]byte, to [20]byte, amount *big.Int) error {
	return v.ledger.Transfer(asset, v.custody, to, amount)
}

func (v *Vault) LedgerBalance(asset [20]byte) (*big.Int, error) {
	return v.ledger.Balance(asset, v.custody)
}
