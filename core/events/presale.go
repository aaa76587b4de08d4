package events

import (
	"math/big"

	"creditnet/core/types"
)

const (
	TypePresaleConfigured = "presale.configured"
	TypePresalePurchased  = "presale.purchased"
	TypePresaleFinalized  = "presale.finalized"
)

type PresaleConfigured struct {
	SaleAsset    [20]byte
	PaymentAsset [20]byte
	Price        *big.Int
	HardCap      *big.Int
}

func (PresaleConfigured) EventType() string { return TypePresaleConfigured }

func (e PresaleConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypePresaleConfigured,
		Attributes: map[string]string{
			"saleAsset":    addrHex(e.SaleAsset),
			"paymentAsset": addrHex(e.PaymentAsset),
			"price":        amountString(e.Price),
			"hardCap":      amountString(e.HardCap),
		},
	}
}

type PresalePurchased struct {
	Buyer   [20]byte
	Paid    *big.Int
	Tokens  *big.Int
	SoldNow *big.Int
}

func (PresalePurchased) EventType() string { return TypePresalePurchased }

func (e PresalePurchased) Event() *types.Event {
	return &types.Event{
		Type: TypePresalePurchased,
		Attributes: map[string]string{
			"buyer":     addrHex(e.Buyer),
			"paid":      amountString(e.Paid),
			"tokens":    amountString(e.Tokens),
			"totalSold": amountString(e.SoldNow),
		},
	}
}

type PresaleFinalized struct {
	Raised *big.Int
}

func (PresaleFinalized) EventType() string { return TypePresaleFinalized }

func (e PresaleFinalized) Event() *types.Event {
	return &types.Event{
		Type:       TypePresaleFinalized,
		Attributes: map[string]string{"raised": amountString(e.Raised)},
	}
}
