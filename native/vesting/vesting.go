// Package vesting implements owner-funded vesting schedules with a cliff and
// linear release.
package vesting

import (
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	"creditnet/core/events"
)

var (
	ErrUnauthorized   = errors.New("vesting: unauthorized")
	ErrNotFound       = errors.New("vesting: schedule not found")
	ErrInvalidAmount  = errors.New("vesting: amount must be positive")
	ErrInvalidWindow  = errors.New("vesting: invalid schedule window")
	ErrNothingVested  = errors.New("vesting: nothing vested")
	ErrRevoked        = errors.New("vesting: schedule revoked")
	ErrAlreadyRevoked = errors.New("vesting: schedule already revoked")
)

type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Funds moves asset units between holders; the bank ledger satisfies it.
type Funds interface {
	Transfer(asset, from, to [20]byte, amount *big.Int) error
}

// Schedule releases Total linearly over Duration seconds from Start, with
// nothing claimable before Start+Cliff.
type Schedule struct {
	ID          uint64
	Beneficiary [20]byte
	Asset       [20]byte
	Total       *big.Int
	Claimed     *big.Int
	Start       int64
	Cliff       int64
	Duration    int64
	Revoked     bool
}

type storedSchedule struct {
	ID          uint64
	Beneficiary [20]byte
	Asset       [20]byte
	Total       *big.Int
	Claimed     *big.Int
	Start       uint64
	Cliff       uint64
	Duration    uint64
	Revoked     bool
}

var (
	schedulePrefix = []byte("vesting/schedule/")
	nextIDKey      = []byte("vesting/nextid")
)

func scheduleKey(id uint64) []byte {
	key := make([]byte, len(schedulePrefix)+8)
	copy(key, schedulePrefix)
	binary.BigEndian.PutUint64(key[len(schedulePrefix):], id)
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

// SetClock overrides the time source (primarily for deterministic testing).
func (e *Engine) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

// Create funds a new schedule out of the caller's balance. Owner only.
func (e *Engine) Create(caller [20]byte, beneficiary, asset [20]byte, total *big.Int, start, cliff, duration int64) (uint64, error) {
	if caller != e.owner {
		return 0, ErrUnauthorized
	}
	if total == nil || total.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if start <= 0 || duration <= 0 || cliff < 0 || cliff > duration {
		return 0, ErrInvalidWindow
	}
	var next uint64
	if _, err := e.st.KVGet(nextIDKey, &next); err != nil {
		return 0, err
	}
	id := next + 1
	if err := e.funds.Transfer(asset, caller, e.custody, total); err != nil {
		return 0, err
	}
	stored := storedSchedule{
		ID:          id,
		Beneficiary: beneficiary,
		Asset:       asset,
		Total:       new(big.Int).Set(total),
		Claimed:     big.NewInt(0),
		Start:       uint64(start),
		Cliff:       uint64(cliff),
		Duration:    uint64(duration),
	}
	if err := e.st.KVPut(scheduleKey(id), stored); err != nil {
		return 0, err
	}
	if err := e.st.KVPut(nextIDKey, id); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.VestingCreated{
		ID:          id,
		Beneficiary: beneficiary,
		Asset:       asset,
		Total:       new(big.Int).Set(total),
		Start:       start,
		Cliff:       cliff,
		Duration:    duration,
	})
	return id, nil
}

// Claim pays the beneficiary everything vested and not yet claimed.
func (e *Engine) Claim(caller [20]byte, id uint64) (*big.Int, error) {
	schedule, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if caller != schedule.Beneficiary {
		return nil, ErrUnauthorized
	}
	if schedule.Revoked {
		return nil, ErrRevoked
	}
	vested := schedule.vestedAt(e.clock().Unix())
	claimable := new(big.Int).Sub(vested, schedule.Claimed)
	if claimable.Sign() <= 0 {
		return nil, ErrNothingVested
	}
	if err := e.funds.Transfer(schedule.Asset, e.custody, schedule.Beneficiary, claimable); err != nil {
		return nil, err
	}
	schedule.Claimed = new(big.Int).Add(schedule.Claimed, claimable)
	if err := e.store(schedule); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VestingClaimed{ID: id, Beneficiary: schedule.Beneficiary, Amount: new(big.Int).Set(claimable)})
	return claimable, nil
}

// Revoke settles a schedule: the vested-but-unclaimed portion is paid to the
// beneficiary and the unvested remainder refunded to the owner.
func (e *Engine) Revoke(caller [20]byte, id uint64) (*big.Int, error) {
	if caller != e.owner {
		return nil, ErrUnauthorized
	}
	schedule, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if schedule.Revoked {
		return nil, ErrAlreadyRevoked
	}
	vested := schedule.vestedAt(e.clock().Unix())
	owed := new(big.Int).Sub(vested, schedule.Claimed)
	if owed.Sign() > 0 {
		if err := e.funds.Transfer(schedule.Asset, e.custody, schedule.Beneficiary, owed); err != nil {
			return nil, err
		}
		schedule.Claimed = new(big.Int).Add(schedule.Claimed, owed)
	}
	refund := new(big.Int).Sub(schedule.Total, vested)
	if refund.Sign() > 0 {
		if err := e.funds.Transfer(schedule.Asset, e.custody, e.owner, refund); err != nil {
			return nil, err
		}
	}
	schedule.Total = vested
	schedule.Revoked = true
	if err := e.store(schedule); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VestingRevoked{ID: id, Refunded: new(big.Int).Set(refund)})
	return refund, nil
}

// Get returns the schedule by id.
func (e *Engine) Get(id uint64) (*Schedule, error) {
	return e.load(id)
}

func (s *Schedule) vestedAt(now int64) *big.Int {
	if now < s.Start+s.Cliff {
		return big.NewInt(0)
	}
	elapsed := now - s.Start
	if elapsed >= s.Duration {
		return new(big.Int).Set(s.Total)
	}
	vested := new(big.Int).Mul(s.Total, big.NewInt(elapsed))
	return vested.Quo(vested, big.NewInt(s.Duration))
}

func (e *Engine) load(id uint64) (*Schedule, error) {
	stored := storedSchedule{}
	ok, err := e.st.KVGet(scheduleKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	schedule := &Schedule{
		ID:          stored.ID,
		Beneficiary: stored.Beneficiary,
		Asset:       stored.Asset,
		Total:       stored.Total,
		Claimed:     stored.Claimed,
		Start:       int64(stored.Start),
		Cliff:       int64(stored.Cliff),
		Duration:    int64(stored.Duration),
		Revoked:     stored.Revoked,
	}
	if schedule.Total == nil {
		schedule.Total = big.NewInt(0)
	}
	if schedule.Claimed == nil {
		schedule.Claimed = big.NewInt(0)
	}
	return schedule, nil
}

func (e *Engine) store(s *Schedule) error {
	stored := storedSchedule{
		ID:          s.ID,
		Beneficiary: s.Beneficiary,
		Asset:       s.Asset,
		Total:       s.Total,
		Claimed:     s.Claimed,
		Start:       uint64(s.Start),
		Cliff:       uint64(s.Cliff),
		Duration:    uint64(s.Duration),
		Revoked:     s.Revoked,
	}
	return e.st.KVPut(scheduleKey(s.ID), stored)
}
