package events

import (
	"math/big"

	"creditnet/core/types"
)

const (
	TypeStakeDeposited = "stake.deposited"
	TypeStakeWithdrawn = "stake.withdrawn"
	TypeStakeRewarded  = "stake.rewarded"
)

type StakeDeposited struct {
	Staker [20]byte
	Amount *big.Int
}

func (StakeDeposited) EventType() string { return TypeStakeDeposited }

func (e StakeDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeDeposited,
		Attributes: map[string]string{
			"staker": addrHex(e.Staker),
			"amount": amountString(e.Amount),
		},
	}
}

type StakeWithdrawn struct {
	Staker [20]byte
	Amount *big.Int
}

func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeWithdrawn,
		Attributes: map[string]string{
			"staker": addrHex(e.Staker),
			"amount": amountString(e.Amount),
		},
	}
}

type StakeRewarded struct {
	Staker [20]byte
	Reward *big.Int
}

func (StakeRewarded) EventType() string { return TypeStakeRewarded }

func (e StakeRewarded) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeRewarded,
		Attributes: map[string]string{
			"staker": addrHex(e.Staker),
			"reward": amountString(e.Reward),
		},
	}
}
