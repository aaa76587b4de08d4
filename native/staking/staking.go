// Package staking implements single-asset staking with linear reward accrual
// paid from an owner-funded reward pool.
package staking

import (
	"errors"
	"math/big"
	"time"

	"creditnet/core/events"
)

var (
	ErrUnauthorized      = errors.New("staking: unauthorized")
	ErrNotConfigured     = errors.New("staking: not configured")
	ErrInvalidAmount     = errors.New("staking: amount must be positive")
	ErrInsufficientStake = errors.New("staking: insufficient stake")
	ErrNothingToClaim    = errors.New("staking: nothing to claim")
)

// accrualScale is the fixed-point scale of the reward rate
// (reward units per staked unit per second, scaled by 1e18).
var accrualScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type Funds interface {
	Transfer(asset, from, to [20]byte, amount *big.Int) error
}

type storedParams struct {
	Asset      [20]byte
	RewardRate *big.Int
	Configured bool
}

type storedPosition struct {
	Staked    *big.Int
	Accrued   *big.Int
	UpdatedAt uint64
}

var (
	paramsKey      = []byte("staking/params")
	positionPrefix = []byte("staking/position/")
)

func positionKey(staker [20]byte) []byte {
	return append(append([]byte(nil), positionPrefix...), staker[:]...)
}

type Engine struct {
	st      Storage
	funds   Funds
	custody [20]byte
	pool    [20]byte
	owner   [20]byte
	emitter events.Emitter
	clock   func() time.Time
}

// NewEngine binds the staking engine. Stakes sit at custody; rewards pay out
// of the pool address.
func NewEngine(st Storage, funds Funds, custody, pool, owner [20]byte) *Engine {
	return &Engine{st: st, funds: funds, custody: custody, pool: pool, owner: owner, emitter: events.NoopEmitter{}, clock: time.Now}
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

// Configure sets the staked asset and the reward rate (scaled by 1e18).
// Owner only; may be called again to retune the rate.
func (e *Engine) Configure(caller [20]byte, asset [20]byte, rewardRate *big.Int) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	if rewardRate == nil || rewardRate.Sign() < 0 {
		return ErrInvalidAmount
	}
	params := storedParams{Asset: asset, RewardRate: new(big.Int).Set(rewardRate), Configured: true}
	return e.st.KVPut(paramsKey, params)
}

// Stake moves amount from the staker into custody and starts accrual.
func (e *Engine) Stake(staker [20]byte, amount *big.Int) error {
	params, err := e.params()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	position, err := e.accrued(params, staker)
	if err != nil {
		return err
	}
	if err := e.funds.Transfer(params.Asset, staker, e.custody, amount); err != nil {
		return err
	}
	position.Staked = new(big.Int).Add(position.Staked, amount)
	if err := e.st.KVPut(positionKey(staker), position); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeDeposited{Staker: staker, Amount: new(big.Int).Set(amount)})
	return nil
}

// Unstake returns amount to the staker; accrued rewards remain claimable.
func (e *Engine) Unstake(staker [20]byte, amount *big.Int) error {
	params, err := e.params()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	position, err := e.accrued(params, staker)
	if err != nil {
		return err
	}
	if position.Staked.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	if err := e.funds.Transfer(params.Asset, e.custody, staker, amount); err != nil {
		return err
	}
	position.Staked = new(big.Int).Sub(position.Staked, amount)
	if err := e.st.KVPut(positionKey(staker), position); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeWithdrawn{Staker: staker, Amount: new(big.Int).Set(amount)})
	return nil
}

// Claim pays out everything accrued so far from the reward pool.
func (e *Engine) Claim(staker [20]byte) (*big.Int, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	position, err := e.accrued(params, staker)
	if err != nil {
		return nil, err
	}
	if position.Accrued.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	reward := new(big.Int).Set(position.Accrued)
	if err := e.funds.Transfer(params.Asset, e.pool, staker, reward); err != nil {
		return nil, err
	}
	position.Accrued = big.NewInt(0)
	if err := e.st.KVPut(positionKey(staker), position); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.StakeRewarded{Staker: staker, Reward: reward})
	return reward, nil
}

// StakedBalance returns the staker's current stake.
func (e *Engine) StakedBalance(staker [20]byte) (*big.Int, error) {
	position, err := e.load(staker)
	if err != nil {
		return nil, err
	}
	return position.Staked, nil
}

// PendingReward returns what a claim would pay right now.
func (e *Engine) PendingReward(staker [20]byte) (*big.Int, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	position, err := e.accrued(params, staker)
	if err != nil {
		return nil, err
	}
	return position.Accrued, nil
}

// accrued loads the position and rolls its reward accumulator forward to now:
// staked * rate * elapsed / 1e18, truncated.
func (e *Engine) accrued(params *storedParams, staker [20]byte) (*storedPosition, error) {
	position, err := e.load(staker)
	if err != nil {
		return nil, err
	}
	now := uint64(e.clock().Unix())
	if position.UpdatedAt > 0 && now > position.UpdatedAt && position.Staked.Sign() > 0 {
		elapsed := new(big.Int).SetUint64(now - position.UpdatedAt)
		reward := new(big.Int).Mul(position.Staked, params.RewardRate)
		reward.Mul(reward, elapsed)
		reward.Quo(reward, accrualScale)
		position.Accrued = new(big.Int).Add(position.Accrued, reward)
	}
	position.UpdatedAt = now
	return position, nil
}

func (e *Engine) params() (*storedParams, error) {
	params := storedParams{}
	ok, err := e.st.KVGet(paramsKey, &params)
	if err != nil {
		return nil, err
	}
	if !ok || !params.Configured {
		return nil, ErrNotConfigured
	}
	if params.RewardRate == nil {
		params.RewardRate = big.NewInt(0)
	}
	return &params, nil
}

func (e *Engine) load(staker [20]byte) (*storedPosition, error) {
	position := storedPosition{}
	if _, err := e.st.KVGet(positionKey(staker), &position); err != nil {
		return nil, err
	}
	if position.Staked == nil {
		position.Staked = big.NewInt(0)
	}
	if position.Accrued == nil {
		position.Accrued = big.NewInt(0)
	}
	return &position, nil
}
