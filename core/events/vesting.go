package events

import (
	"math/big"
	"strconv"

	"creditnet/core/types"
)

const (
	TypeVestingCreated = "vesting.created"
	TypeVestingClaimed = "vesting.claimed"
	TypeVestingRevoked = "vesting.revoked"
)

type VestingCreated struct {
	ID          uint64
	Beneficiary [20]byte
	Asset       [20]byte
	Total       *big.Int
	Start       int64
	Cliff       int64
	Duration    int64
}

func (VestingCreated) EventType() string { return TypeVestingCreated }

func (e VestingCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeVestingCreated,
		Attributes: map[string]string{
			"id":          strconv.FormatUint(e.ID, 10),
			"beneficiary": addrHex(e.Beneficiary),
			"asset":       addrHex(e.Asset),
			"total":       amountString(e.Total),
			"start":       strconv.FormatInt(e.Start, 10),
			"cliff":       strconv.FormatInt(e.Cliff, 10),
			"duration":    strconv.FormatInt(e.Duration, 10),
		},
	}
}

type VestingClaimed struct {
	ID          uint64
	Beneficiary [20]byte
	Amount      *big.Int
}

func (VestingClaimed) EventType() string { return TypeVestingClaimed }

func (e VestingClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeVestingClaimed,
		Attributes: map[string]string{
			"id":          strconv.FormatUint(e.ID, 10),
			"beneficiary": addrHex(e.Beneficiary),
			"amount":      amountString(e.Amount),
		},
	}
}

type VestingRevoked struct {
	ID       uint64
	Refunded *big.Int
}

func (VestingRevoked) EventType() string { return TypeVestingRevoked }

func (e VestingRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeVestingRevoked,
		Attributes: map[string]string{
			"id":       strconv.FormatUint(e.ID, 10),
			"refunded": amountString(e.Refunded),
		},
	}
}
