package events

import (
	"math/big"
	"strconv"

	"creditnet/core/types"
)

const (
	TypeCreditAssetRegistered   = "credit.asset.registered"
	TypeCreditAssetRemoved      = "credit.asset.removed"
	TypeCreditDeposited         = "credit.deposited"
	TypeCreditWithdrawn         = "credit.withdrawn"
	TypeCreditConsumed          = "credit.consumed"
	TypeCreditTransferred       = "credit.transferred"
	TypeCreditReclaimed         = "credit.reclaimed"
	TypeCreditRelayerAuthorized = "credit.relayer.authorized"
	TypeCreditRelayerRevoked    = "credit.relayer.revoked"
	TypeCreditPaused            = "credit.paused"
	TypeCreditUnpaused          = "credit.unpaused"
	TypeCreditEmergencyDrained  = "credit.emergency_drained"
)

// CreditAssetRegistered is emitted when the owner adds an asset to the
// registry.
type CreditAssetRegistered struct {
	Asset     [20]byte
	Precision uint8
	Stable    bool
	OracleRef string
}

func (CreditAssetRegistered) EventType() string { return TypeCreditAssetRegistered }

func (e CreditAssetRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditAssetRegistered,
		Attributes: map[string]string{
			"asset":     addrHex(e.Asset),
			"precision": strconv.Itoa(int(e.Precision)),
			"stable":    strconv.FormatBool(e.Stable),
			"oracleRef": e.OracleRef,
		},
	}
}

// CreditAssetRemoved is emitted when the owner deregisters an asset.
type CreditAssetRemoved struct {
	Asset [20]byte
}

func (CreditAssetRemoved) EventType() string { return TypeCreditAssetRemoved }

func (e CreditAssetRemoved) Event() *types.Event {
	return &types.Event{
		Type:       TypeCreditAssetRemoved,
		Attributes: map[string]string{"asset": addrHex(e.Asset)},
	}
}

// CreditDeposited carries the asset amount pulled into custody and the credit
// value it converted to.
type CreditDeposited struct {
	User    [20]byte
	Asset   [20]byte
	Amount  *big.Int
	Credits *big.Int
}

func (CreditDeposited) EventType() string { return TypeCreditDeposited }

func (e CreditDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditDeposited,
		Attributes: map[string]string{
			"user":    addrHex(e.User),
			"asset":   addrHex(e.Asset),
			"amount":  amountString(e.Amount),
			"credits": amountString(e.Credits),
		},
	}
}

// CreditWithdrawn reports the credit amount requested and the portion the
// ledger could actually satisfy.
type CreditWithdrawn struct {
	User      [20]byte
	Requested *big.Int
	Satisfied *big.Int
}

func (CreditWithdrawn) EventType() string { return TypeCreditWithdrawn }

func (e CreditWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditWithdrawn,
		Attributes: map[string]string{
			"user":      addrHex(e.User),
			"requested": amountString(e.Requested),
			"satisfied": amountString(e.Satisfied),
		},
	}
}

// CreditConsumed is emitted when an authorized relayer debits a user.
type CreditConsumed struct {
	Relayer [20]byte
	User    [20]byte
	Credits *big.Int
}

func (CreditConsumed) EventType() string { return TypeCreditConsumed }

func (e CreditConsumed) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditConsumed,
		Attributes: map[string]string{
			"relayer": addrHex(e.Relayer),
			"user":    addrHex(e.User),
			"credits": amountString(e.Credits),
		},
	}
}

// CreditTransferred records an internal re-attribution between two accounts.
type CreditTransferred struct {
	Sender   [20]byte
	Receiver [20]byte
	Credits  *big.Int
}

func (CreditTransferred) EventType() string { return TypeCreditTransferred }

func (e CreditTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditTransferred,
		Attributes: map[string]string{
			"sender":   addrHex(e.Sender),
			"receiver": addrHex(e.Receiver),
			"credits":  amountString(e.Credits),
		},
	}
}

// CreditReclaimed reports one owner sweep against consumed credits.
type CreditReclaimed struct {
	Owner   [20]byte
	Credits *big.Int
}

func (CreditReclaimed) EventType() string { return TypeCreditReclaimed }

func (e CreditReclaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditReclaimed,
		Attributes: map[string]string{
			"owner":   addrHex(e.Owner),
			"credits": amountString(e.Credits),
		},
	}
}

// CreditRelayerAuthorized is emitted when the owner grants consume rights.
type CreditRelayerAuthorized struct {
	Relayer [20]byte
}

func (CreditRelayerAuthorized) EventType() string { return TypeCreditRelayerAuthorized }

func (e CreditRelayerAuthorized) Event() *types.Event {
	return &types.Event{
		Type:       TypeCreditRelayerAuthorized,
		Attributes: map[string]string{"relayer": addrHex(e.Relayer)},
	}
}

// CreditRelayerRevoked is emitted when the owner revokes consume rights.
type CreditRelayerRevoked struct {
	Relayer [20]byte
}

func (CreditRelayerRevoked) EventType() string { return TypeCreditRelayerRevoked }

func (e CreditRelayerRevoked) Event() *types.Event {
	return &types.Event{
		Type:       TypeCreditRelayerRevoked,
		Attributes: map[string]string{"relayer": addrHex(e.Relayer)},
	}
}

// CreditPaused marks the start of a pause window.
type CreditPaused struct {
	Owner [20]byte
}

func (CreditPaused) EventType() string { return TypeCreditPaused }

func (e CreditPaused) Event() *types.Event {
	return &types.Event{
		Type:       TypeCreditPaused,
		Attributes: map[string]string{"owner": addrHex(e.Owner)},
	}
}

// CreditUnpaused marks the end of a pause window.
type CreditUnpaused struct {
	Owner [20]byte
}

func (CreditUnpaused) EventType() string { return TypeCreditUnpaused }

func (e CreditUnpaused) Event() *types.Event {
	return &types.Event{
		Type:       TypeCreditUnpaused,
		Attributes: map[string]string{"owner": addrHex(e.Owner)},
	}
}

// CreditEmergencyDrained records a pause-gated sweep of one asset's full
// on-hand balance to the owner.
type CreditEmergencyDrained struct {
	Owner  [20]byte
	Asset  [20]byte
	Amount *big.Int
}

func (CreditEmergencyDrained) EventType() string { return TypeCreditEmergencyDrained }

func (e CreditEmergencyDrained) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditEmergencyDrained,
		Attributes: map[string]string{
			"owner":  addrHex(e.Owner),
			"asset":  addrHex(e.Asset),
			"amount": amountString(e.Amount),
		},
	}
}
