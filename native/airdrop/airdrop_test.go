package airdrop

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
	assetAddr   = addr(0xA0)
	aliceAddr   = addr(0x01)
	bobAddr     = addr(0x02)
)

const campaignNow = int64(1_700_000_000)

func newTestEngine(t *testing.T) (*Engine, *mockFunds, func(int64)) {
	t.Helper()
	funds := newMockFunds()
	funds.fund(assetAddr, ownerAddr, 1_000)
	engine := NewEngine(newMockStorage(), funds, custodyAddr, ownerAddr)
	now := campaignNow
	engine.SetClock(func() time.Time { return time.Unix(now, 0) })
	advance := func(to int64) { now = to }
	return engine, funds, advance
}

func TestClaimOncePerAddress(t *testing.T) {
	engine, funds, _ := newTestEngine(t)
	id, err := engine.Fund(ownerAddr, assetAddr, big.NewInt(100), campaignNow+1_000)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.Allocate(ownerAddr, id, aliceAddr, big.NewInt(60)); err != nil {
		t.Fatalf("allocate alice: %v", err)
	}
	if err := engine.Allocate(ownerAddr, id, bobAddr, big.NewInt(40)); err != nil {
		t.Fatalf("allocate bob: %v", err)
	}

	paid, err := engine.Claim(aliceAddr, id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("alice paid %s", paid)
	}
	if _, err := engine.Claim(aliceAddr, id); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("double claim: %v", err)
	}
	if got := funds.balance(assetAddr, custodyAddr); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("custody after claim %s", got)
	}
}

func TestAllocationsCappedByFunding(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	id, err := engine.Fund(ownerAddr, assetAddr, big.NewInt(100), campaignNow+1_000)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.Allocate(ownerAddr, id, aliceAddr, big.NewInt(70)); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := engine.Allocate(ownerAddr, id, bobAddr, big.NewInt(31)); !errors.Is(err, ErrOverAllocated) {
		t.Fatalf("expected over-allocated, got %v", err)
	}
	if err := engine.Allocate(aliceAddr, id, aliceAddr, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner allocate: %v", err)
	}
}

func TestClaimWindowAndReclaim(t *testing.T) {
	engine, funds, advance := newTestEngine(t)
	id, err := engine.Fund(ownerAddr, assetAddr, big.NewInt(100), campaignNow+1_000)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.Allocate(ownerAddr, id, aliceAddr, big.NewInt(60)); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := engine.Claim(bobAddr, id); !errors.Is(err, ErrNoAllocation) {
		t.Fatalf("unallocated claim: %v", err)
	}
	if _, err := engine.Reclaim(ownerAddr, id); !errors.Is(err, ErrCampaignOpen) {
		t.Fatalf("early reclaim: %v", err)
	}

	advance(campaignNow + 1_001)
	if _, err := engine.Claim(aliceAddr, id); !errors.Is(err, ErrCampaignClosed) {
		t.Fatalf("late claim: %v", err)
	}
	remainder, err := engine.Reclaim(ownerAddr, id)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if remainder.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("reclaimed %s", remainder)
	}
	if got := funds.balance(assetAddr, ownerAddr); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("owner balance after reclaim %s", got)
	}
	if _, err := engine.Reclaim(ownerAddr, id); !errors.Is(err, ErrNothingToReclaim) {
		t.Fatalf("double reclaim: %v", err)
	}
}

func TestFundValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Fund(aliceAddr, assetAddr, big.NewInt(10), campaignNow+10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner fund: %v", err)
	}
	if _, err := engine.Fund(ownerAddr, assetAddr, big.NewInt(0), campaignNow+10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero fund: %v", err)
	}
	if _, err := engine.Fund(ownerAddr, assetAddr, big.NewInt(10), campaignNow); !errors.Is(err, ErrInvalidDeadline) {
		t.Fatalf("stale deadline: %v", err)
	}
	if _, err := engine.Claim(aliceAddr, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("claim unknown campaign: %v", err)
	}
}
