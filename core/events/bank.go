package events

import (
	"math/big"

	"creditnet/core/types"
)

const (
	TypeBankMinted      = "bank.minted"
	TypeBankTransferred = "bank.transferred"
)

type BankMinted struct {
	Asset  [20]byte
	To     [20]byte
	Amount *big.Int
}

func (BankMinted) EventType() string { return TypeBankMinted }

func (e BankMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeBankMinted,
		Attributes: map[string]string{
			"asset":  addrHex(e.Asset),
			"to":     addrHex(e.To),
			"amount": amountString(e.Amount),
		},
	}
}

type BankTransferred struct {
	Asset  [20]byte
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (BankTransferred) EventType() string { return TypeBankTransferred }

func (e BankTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeBankTransferred,
		Attributes: map[string]string{
			"asset":  addrHex(e.Asset),
			"from":   addrHex(e.From),
			"to":     addrHex(e.To),
			"amount": amountString(e.Amount),
		},
	}
}
