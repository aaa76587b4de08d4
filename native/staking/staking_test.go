package staking

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

type mockStorage struct {
	kv map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{kv: make(map[string][]byte)}
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

type mockFunds struct {
	balances map[string]*big.Int
}

func newMockFunds() *mockFunds {
	return &mockFunds{balances: make(map[string]*big.Int)}
}

func fundsKey(asset, holder [20]byte) string {
	return string(asset[:]) + string(holder[:])
}

func (m *mockFunds) fund(asset, holder [20]byte, amount int64) {
	m.balances[fundsKey(asset, holder)] = big.NewInt(amount)
}

func (m *mockFunds) balance(asset, holder [20]byte) *big.Int {
	if bal, ok := m.balances[fundsKey(asset, holder)]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (m *mockFunds) Transfer(asset, from, to [20]byte, amount *big.Int) error {
	src := m.balance(asset, from)
	if src.Cmp(amount) < 0 {
		return errors.New("mock funds: insufficient balance")
	}
	m.balances[fundsKey(asset, from)] = src.Sub(src, amount)
	dst := m.balance(asset, to)
	m.balances[fundsKey(asset, to)] = dst.Add(dst, amount)
	return nil
}

func addr(last byte) [20]byte {
	var a [20]byte
	a[19] = last
	return a
}

var (
	ownerAddr   = addr(0xF0)
	custodyAddr = addr(0xCC)
	poolAddr    = addr(0xEE)
	assetAddr   = addr(0xA0)
	stakerAddr  = addr(0x01)
)

const stakeNow = int64(1_700_000_000)

// ratePerSecond accrues 0.001 of the stake each second once scaled by 1e18.
var ratePerSecond = big.NewInt(1_000_000_000_000_000)

func newTestEngine(t *testing.T) (*Engine, *mockFunds, func(int64)) {
	t.Helper()
	funds := newMockFunds()
	funds.fund(assetAddr, stakerAddr, 10_000)
	funds.fund(assetAddr, poolAddr, 10_000)
	engine := NewEngine(newMockStorage(), funds, custodyAddr, poolAddr, ownerAddr)
	now := stakeNow
	engine.SetClock(func() time.Time { return time.Unix(now, 0) })
	if err := engine.Configure(ownerAddr, assetAddr, ratePerSecond); err != nil {
		t.Fatalf("configure: %v", err)
	}
	advance := func(to int64) { now = to }
	return engine, funds, advance
}

func TestStakeAccrueClaim(t *testing.T) {
	engine, funds, advance := newTestEngine(t)
	if err := engine.Stake(stakerAddr, big.NewInt(1_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if got := funds.balance(assetAddr, custodyAddr); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("custody %s", got)
	}

	advance(stakeNow + 100)
	pending, err := engine.PendingReward(stakerAddr)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pending after 100s %s", pending)
	}
	reward, err := engine.Claim(stakerAddr)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if reward.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("reward %s", reward)
	}
	if got := funds.balance(assetAddr, poolAddr); got.Cmp(big.NewInt(9_900)) != 0 {
		t.Fatalf("pool after claim %s", got)
	}
	if _, err := engine.Claim(stakerAddr); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("empty claim: %v", err)
	}
}

func TestUnstakeKeepsAccrued(t *testing.T) {
	engine, funds, advance := newTestEngine(t)
	if err := engine.Stake(stakerAddr, big.NewInt(1_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	advance(stakeNow + 50)
	if err := engine.Unstake(stakerAddr, big.NewInt(1_000)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if got := funds.balance(assetAddr, stakerAddr); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("staker balance %s", got)
	}

	// Accrual stops with the stake gone but the earned reward survives.
	advance(stakeNow + 500)
	reward, err := engine.Claim(stakerAddr)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if reward.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("reward %s", reward)
	}
}

func TestUnstakeMoreThanStaked(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.Stake(stakerAddr, big.NewInt(100)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := engine.Unstake(stakerAddr, big.NewInt(101)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected insufficient stake, got %v", err)
	}
}

func TestConfigureGuards(t *testing.T) {
	engine := NewEngine(newMockStorage(), newMockFunds(), custodyAddr, poolAddr, ownerAddr)
	if err := engine.Stake(stakerAddr, big.NewInt(1)); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("stake before configure: %v", err)
	}
	if err := engine.Configure(stakerAddr, assetAddr, ratePerSecond); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner configure: %v", err)
	}
	if err := engine.Configure(ownerAddr, assetAddr, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative rate: %v", err)
	}
}
