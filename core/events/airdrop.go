package events

import (
	"math/big"
	"strconv"

	"creditnet/core/types"
)

const (
	TypeAirdropFunded    = "airdrop.funded"
	TypeAirdropClaimed   = "airdrop.claimed"
	TypeAirdropReclaimed = "airdrop.reclaimed"
)

type AirdropFunded struct {
	ID       uint64
	Asset    [20]byte
	Amount   *big.Int
	Deadline int64
}

func (AirdropFunded) EventType() string { return TypeAirdropFunded }

func (e AirdropFunded) Event() *types.Event {
	return &types.Event{
		Type: TypeAirdropFunded,
		Attributes: map[string]string{
			"id":       strconv.FormatUint(e.ID, 10),
			"asset":    addrHex(e.Asset),
			"amount":   amountString(e.Amount),
			"deadline": strconv.FormatInt(e.Deadline, 10),
		},
	}
}

type AirdropClaimed struct {
	ID       uint64
	Claimant [20]byte
	Amount   *big.Int
}

func (AirdropClaimed) EventType() string { return TypeAirdropClaimed }

func (e AirdropClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeAirdropClaimed,
		Attributes: map[string]string{
			"id":       strconv.FormatUint(e.ID, 10),
			"claimant": addrHex(e.Claimant),
			"amount":   amountString(e.Amount),
		},
	}
}

type AirdropReclaimed struct {
	ID     uint64
	Amount *big.Int
}

func (AirdropReclaimed) EventType() string { return TypeAirdropReclaimed }

func (e AirdropReclaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeAirdropReclaimed,
		Attributes: map[string]string{
			"id":     strconv.FormatUint(e.ID, 10),
			"amount": amountString(e.Amount),
		},
	}
}
