// Package airdrop implements owner-funded claim campaigns: each allocated
// address claims exactly once, and the owner reclaims the unclaimed
// remainder after the deadline.
package airdrop

import (
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	"creditnet/core/events"
)

var (
	ErrUnauthorized     = errors.New("airdrop: unauthorized")
	ErrNotFound         = errors.New("airdrop: campaign not found")
	ErrInvalidAmount    = errors.New("airdrop: amount must be positive")
	ErrInvalidDeadline  = errors.New("airdrop: deadline must be in the future")
	ErrNoAllocation     = errors.New("airdrop: no allocation")
	ErrAlreadyClaimed   = errors.New("airdrop: already claimed")
	ErrCampaignClosed   = errors.New("airdrop: campaign closed")
	ErrCampaignOpen     = errors.New("airdrop: campaign still open")
	ErrOverAllocated    = errors.New("airdrop: allocations exceed funding")
	ErrNothingToReclaim = errors.New("airdrop: nothing to reclaim")
)

type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type Funds interface {
	Transfer(asset, from, to [20]byte, amount *big.Int) error
}

type storedCampaign struct {
	ID        uint64
	Asset     [20]byte
	Funded    *big.Int
	Allocated *big.Int
	Remaining *big.Int
	Deadline  uint64
	Reclaimed bool
}

var (
	campaignPrefix = []byte("airdrop/campaign/")
	allocPrefix    = []byte("airdrop/alloc/")
	claimedPrefix  = []byte("airdrop/claimed/")
	nextIDKey      = []byte("airdrop/nextid")
)

func campaignKey(id uint64) []byte {
	key := make([]byte, len(campaignPrefix)+8)
	copy(key, campaignPrefix)
	binary.BigEndian.PutUint64(key[len(campaignPrefix):], id)
	return key
}

func perAddressKey(prefix []byte, id uint64, addr [20]byte) []byte {
	key := make([]byte, len(prefix)+8+20)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	copy(key[len(prefix)+8:], addr[:])
	return key
}

type Engine struct {
	st      Storage
	funds   Funds
	custody [20]byte
	owner   [20]byte
	emitter events.Emitter
	clock   func() time.Time
}

func NewEngine(st Storage, funds Funds, custody, owner [20]byte) *Engine {
	return &Engine{st: st, funds: funds, custody: custody, owner: owner, emitter: events.NoopEmitter{}, clock: time.Now}
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

// Fund opens a campaign backed by the owner's balance.
func (e *Engine) Fund(caller [20]byte, asset [20]byte, amount *big.Int, deadline int64) (uint64, error) {
	if caller != e.owner {
		return 0, ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if deadline <= e.clock().Unix() {
		return 0, ErrInvalidDeadline
	}
	var next uint64
	if _, err := e.st.KVGet(nextIDKey, &next); err != nil {
		return 0, err
	}
	id := next + 1
	if err := e.funds.Transfer(asset, caller, e.custody, amount); err != nil {
		return 0, err
	}
	campaign := storedCampaign{
		ID:        id,
		Asset:     asset,
		Funded:    new(big.Int).Set(amount),
		Allocated: big.NewInt(0),
		Remaining: new(big.Int).Set(amount),
		Deadline:  uint64(deadline),
	}
	if err := e.st.KVPut(campaignKey(id), campaign); err != nil {
		return 0, err
	}
	if err := e.st.KVPut(nextIDKey, id); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.AirdropFunded{ID: id, Asset: asset, Amount: new(big.Int).Set(amount), Deadline: deadline})
	return id, nil
}

// Allocate assigns a claimable amount to an address. The sum of allocations
// can never exceed the campaign's funding.
func (e *Engine) Allocate(caller [20]byte, id uint64, claimant [20]byte, amount *big.Int) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	campaign, err := e.load(id)
	if err != nil {
		return err
	}
	allocated := new(big.Int).Add(campaign.Allocated, amount)
	if allocated.Cmp(campaign.Funded) > 0 {
		return ErrOverAllocated
	}
	existing := new(big.Int)
	if _, err := e.st.KVGet(perAddressKey(allocPrefix, id, claimant), existing); err != nil {
		return err
	}
	if err := e.st.KVPut(perAddressKey(allocPrefix, id, claimant), new(big.Int).Add(existing, amount)); err != nil {
		return err
	}
	campaign.Allocated = allocated
	return e.st.KVPut(campaignKey(id), *campaign)
}

// Claim pays out the caller's allocation. Each address claims once.
func (e *Engine) Claim(caller [20]byte, id uint64) (*big.Int, error) {
	campaign, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if e.clock().Unix() > int64(campaign.Deadline) || campaign.Reclaimed {
		return nil, ErrCampaignClosed
	}
	var claimed bool
	if _, err := e.st.KVGet(perAddressKey(claimedPrefix, id, caller), &claimed); err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}
	allocation := new(big.Int)
	ok, err := e.st.KVGet(perAddressKey(allocPrefix, id, caller), allocation)
	if err != nil {
		return nil, err
	}
	if !ok || allocation.Sign() == 0 {
		return nil, ErrNoAllocation
	}
	if err := e.funds.Transfer(campaign.Asset, e.custody, caller, allocation); err != nil {
		return nil, err
	}
	if err := e.st.KVPut(perAddressKey(claimedPrefix, id, caller), true); err != nil {
		return nil, err
	}
	campaign.Remaining = new(big.Int).Sub(campaign.Remaining, allocation)
	if err := e.st.KVPut(campaignKey(id), *campaign); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.AirdropClaimed{ID: id, Claimant: caller, Amount: new(big.Int).Set(allocation)})
	return allocation, nil
}

// Reclaim returns the unclaimed remainder to the owner once the deadline has
// passed.
func (e *Engine) Reclaim(caller [20]byte, id uint64) (*big.Int, error) {
	if caller != e.owner {
		return nil, ErrUnauthorized
	}
	campaign, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if e.clock().Unix() <= int64(campaign.Deadline) {
		return nil, ErrCampaignOpen
	}
	if campaign.Reclaimed || campaign.Remaining.Sign() == 0 {
		return nil, ErrNothingToReclaim
	}
	remainder := new(big.Int).Set(campaign.Remaining)
	if err := e.funds.Transfer(campaign.Asset, e.custody, e.owner, remainder); err != nil {
		return nil, err
	}
	campaign.Remaining = big.NewInt(0)
	campaign.Reclaimed = true
	if err := e.st.KVPut(campaignKey(id), *campaign); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.AirdropReclaimed{ID: id, Amount: remainder})
	return remainder, nil
}

func (e *Engine) load(id uint64) (*storedCampaign, error) {
	campaign := storedCampaign{}
	ok, err := e.st.KVGet(campaignKey(id), &campaign)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if campaign.Funded == nil {
		campaign.Funded = big.NewInt(0)
	}
	if campaign.Allocated == nil {
		campaign.Allocated = big.NewInt(0)
	}
	if campaign.Remaining == nil {
		campaign.Remaining = big.NewInt(0)
	}
	return &campaign, nil
}
