package credit

import (
	"errors"
	"fmt"
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
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockStorage) KVDelete(key []byte) error {
	delete(m.kv, string(key))
	return nil
}

type vaultKey struct {
	asset  [20]byte
	holder [20]byte
}

type mockVault struct {
	custody    map[[20]byte]*big.Int
	holders    map[vaultKey]*big.Int
	failOut    bool
	failOutFor map[[20]byte]bool
	outCalls   int
}

func newMockVault() *mockVault {
	return &mockVault{
		custody:    make(map[[20]byte]*big.Int),
		holders:    make(map[vaultKey]*big.Int),
		failOutFor: make(map[[20]byte]bool),
	}
}

func (v *mockVault) fund(asset, holder [20]byte, amount int64) {
	v.holders[vaultKey{asset, holder}] = big.NewInt(amount)
}

func (v *mockVault) holderBalance(asset, holder [20]byte) *big.Int {
	if b, ok := v.holders[vaultKey{asset, holder}]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (v *mockVault) setCustody(asset [20]byte, amount *big.Int) {
	v.custody[asset] = new(big.Int).Set(amount)
}

func (v *mockVault) TransferIn(asset, from [20]byte, amount *big.Int) error {
	have := v.holderBalance(asset, from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("holder balance %s short of %s", have, amount)
	}
	v.holders[vaultKey{asset, from}] = have.Sub(have, amount)
	onHand, ok := v.custody[asset]
	if !ok {
		onHand = big.NewInt(0)
	}
	v.custody[asset] = onHand.Add(onHand, amount)
	return nil
}

func (v *mockVault) TransferOut(asset, to [20]byte, amount *big.Int) error {
	v.outCalls++
	if v.failOut || v.failOutFor[asset] {
		return fmt.Errorf("transfer rejected")
	}
	onHand, ok := v.custody[asset]
	if !ok || onHand.Cmp(amount) < 0 {
		return fmt.Errorf("custody short")
	}
	v.custody[asset] = new(big.Int).Sub(onHand, amount)
	have := v.holderBalance(asset, to)
	v.holders[vaultKey{asset, to}] = have.Add(have, amount)
	return nil
}

func (v *mockVault) LedgerBalance(asset [20]byte) (*big.Int, error) {
	if onHand, ok := v.custody[asset]; ok {
		return new(big.Int).Set(onHand), nil
	}
	return big.NewInt(0), nil
}

type stubOracle struct {
	quotes map[string]Quote
}

func newStubOracle() *stubOracle {
	return &stubOracle{quotes: make(map[string]Quote)}
}

func (o *stubOracle) set(ref string, price *big.Int, decimals uint8, updatedAt int64) {
	o.quotes[ref] = Quote{Price: price, Decimals: decimals, UpdatedAt: updatedAt, RoundComplete: true}
}

func (o *stubOracle) LatestQuote(ref string) (Quote, error) {
	quote, ok := o.quotes[ref]
	if !ok {
		return Quote{}, fmt.Errorf("no feed for %q", ref)
	}
	return quote, nil
}

var (
	testNow   = time.Unix(1700000000, 0)
	ownerAddr = addr(0x01)
	userAddr  = addr(0x02)
	peerAddr  = addr(0x03)
	relayAddr = addr(0x04)
	assetA    = addr(0xA0)
	assetB    = addr(0xB0)
)

func addr(last byte) [20]byte {
	var a [20]byte
	a[19] = last
	return a
}

func newTestEngine(t *testing.T) (*Engine, *mockVault, *stubOracle) {
	t.Helper()
	st := newMockStorage()
	vault := newMockVault()
	orc := newStubOracle()
	pricing := NewPriceSource(orc, time.Hour)
	pricing.SetClock(func() time.Time { return testNow })
	engine := NewEngine(st, vault, pricing)
	if err := engine.InitOwner(ownerAddr); err != nil {
		t.Fatalf("init owner: %v", err)
	}
	return engine, vault, orc
}

func assertConsistent(t *testing.T, engine *Engine, user [20]byte) {
	t.Helper()
	aggregate, err := engine.CreditBalanceOf(user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if aggregate.Sign() < 0 {
		t.Fatalf("negative aggregate %s", aggregate)
	}
	breakdown, err := engine.AssetCreditBreakdown(user)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	sum := big.NewInt(0)
	for _, bucket := range breakdown {
		if bucket.Credits.Sign() < 0 {
			t.Fatalf("negative bucket %s", bucket.Credits)
		}
		sum.Add(sum, bucket.Credits)
	}
	if sum.Cmp(aggregate) != 0 {
		t.Fatalf("breakdown sum %s != aggregate %s", sum, aggregate)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	if err := engine.RegisterAsset(ownerAddr, assetA, 6, PriceModeStable, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	vault.fund(assetA, userAddr, 100_000000)

	credits, err := engine.Deposit(userAddr, assetA, big.NewInt(100_000000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	want, _ := new(big.Int).SetString("100000000000000000000", 10)
	if credits.Cmp(want) != 0 {
		t.Fatalf("credited %s, want %s", credits, want)
	}
	assertConsistent(t, engine, userAddr)

	satisfied, err := engine.Withdraw(userAddr, want)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if satisfied.Cmp(want) != 0 {
		t.Fatalf("satisfied %s, want %s", satisfied, want)
	}
	if got := vault.holderBalance(assetA, userAddr); got.Cmp(big.NewInt(100_000000)) != 0 {
		t.Fatalf("user received %s, want 100000000", got)
	}
	aggregate, _ := engine.CreditBalanceOf(userAddr)
	if aggregate.Sign() != 0 {
		t.Fatalf("residual aggregate %s", aggregate)
	}
	assertConsistent(t, engine, userAddr)
}

func TestOraclePricedDeposit(t *testing.T) {
	engine, vault, orc := newTestEngine(t)
	if err := engine.RegisterAsset(ownerAddr, assetA, 18, PriceModeOracle, "ETH/USD"); err != nil {
		t.Fatalf("register: %v", err)
	}
	orc.set("ETH/USD", big.NewInt(2_00000000), 8, testNow.Unix())
	amount, _ := new(big.Int).SetString("10000000000000000000", 10)
	vault.holders[vaultKey{assetA, userAddr}] = new(big.Int).Set(amount)

	credits, err := engine.Deposit(userAddr, assetA, amount)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	want, _ := new(big.Int).SetString("20000000000000000000", 10)
	if credits.Cmp(want) != 0 {
		t.Fatalf("credited %s, want %s", credits, want)
	}
	assertConsistent(t, engine, userAddr)
}

func TestStalePriceRejected(t *testing.T) {
	engine, vault, orc := newTestEngine(t)
	if err := engine.RegisterAsset(ownerAddr, assetA, 18, PriceModeOracle, "ETH/USD"); err != nil {
		t.Fatalf("register: %v", err)
	}
	orc.set("ETH/USD", big.NewInt(2_00000000), 8, testNow.Add(-2*time.Hour).Unix())
	vault.fund(assetA, userAddr, 1_000_000)

	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(1000)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("deposit: expected stale price, got %v", err)
	}
	if got := vault.holderBalance(assetA, userAddr); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("user balance changed: %s", got)
	}
	aggregate, _ := engine.CreditBalanceOf(userAddr)
	if aggregate.Sign() != 0 {
		t.Fatalf("aggregate changed: %s", aggregate)
	}

	// Fund credit at a fresh price, then stale the feed: withdraw must also
	// reject without touching balances.
	orc.set("ETH/USD", big.NewInt(2_00000000), 8, testNow.Unix())
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before, _ := engine.CreditBalanceOf(userAddr)
	orc.set("ETH/USD", big.NewInt(2_00000000), 8, testNow.Add(-2*time.Hour).Unix())
	if _, err := engine.Withdraw(userAddr, before); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("withdraw: expected stale price, got %v", err)
	}
	after, _ := engine.CreditBalanceOf(userAddr)
	if after.Cmp(before) != 0 {
		t.Fatalf("aggregate changed on failed withdraw: %s -> %s", before, after)
	}
	assertConsistent(t, engine, userAddr)
}

func registerTwoStableAssets(t *testing.T, engine *Engine, vault *mockVault) {
	t.Helper()
	if err := engine.RegisterAsset(ownerAddr, assetA, 18, PriceModeStable, ""); err != nil {
		t.Fatalf("register A: %v", err)
	}
	if err := engine.RegisterAsset(ownerAddr, assetB, 18, PriceModeStable, ""); err != nil {
		t.Fatalf("register B: %v", err)
	}
	vault.fund(assetA, userAddr, 1000)
	vault.fund(assetB, userAddr, 1000)
}

func TestConsumeProportionalAcrossAssets(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if err := engine.AuthorizeRelayer(ownerAddr, relayAddr); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(30)); err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetB, big.NewInt(20)); err != nil {
		t.Fatalf("deposit B: %v", err)
	}

	cost, err := engine.Consume(relayAddr, userAddr, big.NewInt(40))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if cost.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("cost %s, want 40", cost)
	}
	breakdown, err := engine.AssetCreditBreakdown(userAddr)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(breakdown) != 1 || breakdown[0].Asset != assetB || breakdown[0].Credits.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected breakdown %+v", breakdown)
	}
	aggregate, _ := engine.CreditBalanceOf(userAddr)
	if aggregate.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("aggregate %s, want 10", aggregate)
	}
	consumed, _ := engine.TotalConsumed()
	if consumed.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("totalConsumed %s, want 40", consumed)
	}
	assertConsistent(t, engine, userAddr)
}

func TestConsumeFlooredByThreshold(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if err := engine.AuthorizeRelayer(ownerAddr, relayAddr); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := engine.SetMinimumConsumeThreshold(ownerAddr, big.NewInt(25)); err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	cost, err := engine.Consume(relayAddr, userAddr, big.NewInt(5))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if cost.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("cost %s, want floored 25", cost)
	}
	assertConsistent(t, engine, userAddr)
}

func TestConsumeRequiresAuthorizedRelayer(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Consume(relayAddr, userAddr, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if err := engine.AuthorizeRelayer(ownerAddr, relayAddr); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := engine.Consume(relayAddr, userAddr, big.NewInt(10)); err != nil {
		t.Fatalf("consume after authorize: %v", err)
	}
	if err := engine.RevokeRelayer(ownerAddr, relayAddr); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := engine.Consume(relayAddr, userAddr, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized after revoke, got %v", err)
	}
}

func TestConsumeInsufficientCredit(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if err := engine.AuthorizeRelayer(ownerAddr, relayAddr); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Consume(relayAddr, userAddr, big.NewInt(10)); !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}
	aggregate, _ := engine.CreditBalanceOf(userAddr)
	if aggregate.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("aggregate changed: %s", aggregate)
	}
}

func TestTransferCreditMovesBuckets(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(30)); err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetB, big.NewInt(20)); err != nil {
		t.Fatalf("deposit B: %v", err)
	}

	if err := engine.TransferCredit(userAddr, peerAddr, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	senderAgg, _ := engine.CreditBalanceOf(userAddr)
	receiverAgg, _ := engine.CreditBalanceOf(peerAddr)
	if senderAgg.Cmp(big.NewInt(10)) != 0 || receiverAgg.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("aggregates %s/%s, want 10/40", senderAgg, receiverAgg)
	}
	breakdown, _ := engine.AssetCreditBreakdown(peerAddr)
	if len(breakdown) != 2 {
		t.Fatalf("receiver breakdown %+v", breakdown)
	}
	if breakdown[0].Asset != assetA || breakdown[0].Credits.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("receiver bucket A %+v", breakdown[0])
	}
	if breakdown[1].Asset != assetB || breakdown[1].Credits.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("receiver bucket B %+v", breakdown[1])
	}
	assertConsistent(t, engine, userAddr)
	assertConsistent(t, engine, peerAddr)

	if err := engine.TransferCredit(userAddr, peerAddr, big.NewInt(11)); !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}
}

func TestWithdrawPartialWhenCustodyShort(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Drain most of the custody out-of-band; only 40 units remain on hand.
	vault.setCustody(assetA, big.NewInt(40))

	satisfied, err := engine.Withdraw(userAddr, big.NewInt(100))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if satisfied.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("satisfied %s, want 40", satisfied)
	}
	aggregate, _ := engine.CreditBalanceOf(userAddr)
	if aggregate.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("aggregate %s, want 60", aggregate)
	}
	assertConsistent(t, engine, userAddr)
}

func TestWithdrawRollsBackOnTransferFailure(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	vault.failOut = true

	if _, err := engine.Withdraw(userAddr, big.NewInt(50)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	aggregate, _ := engine.CreditBalanceOf(userAddr)
	if aggregate.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("aggregate not rolled back: %s", aggregate)
	}
	assertConsistent(t, engine, userAddr)
}

func TestWithdrawReversesPaidLegsOnLaterFailure(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(30)); err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetB, big.NewInt(20)); err != nil {
		t.Fatalf("deposit B: %v", err)
	}
	// First leg (asset A) pays out, second leg is rejected.
	vault.failOutFor[assetB] = true

	if _, err := engine.Withdraw(userAddr, big.NewInt(50)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	aggregate, _ := engine.CreditBalanceOf(userAddr)
	if aggregate.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("aggregate not rolled back: %s", aggregate)
	}
	// The paid first leg must be back in custody, not left with the user.
	if got := vault.holderBalance(assetA, userAddr); got.Cmp(big.NewInt(970)) != 0 {
		t.Fatalf("user kept asset A payout: %s", got)
	}
	onHand, _ := vault.LedgerBalance(assetA)
	if onHand.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("custody A not restored: %s", onHand)
	}
	breakdown, err := engine.AssetCreditBreakdown(userAddr)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(breakdown) != 2 || breakdown[0].Credits.Cmp(big.NewInt(30)) != 0 || breakdown[1].Credits.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("buckets not rolled back: %+v", breakdown)
	}
	assertConsistent(t, engine, userAddr)
}

func TestDeregisterGuardedByBalance(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// The guard holds no matter how often removal is retried.
	for i := 0; i < 3; i++ {
		if err := engine.DeregisterAsset(ownerAddr, assetA); !errors.Is(err, ErrNonZeroBalance) {
			t.Fatalf("attempt %d: expected balance guard, got %v", i, err)
		}
	}
	if err := engine.DeregisterAsset(ownerAddr, assetB); err != nil {
		t.Fatalf("deregister empty asset: %v", err)
	}
	if err := engine.DeregisterAsset(ownerAddr, assetB); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected unknown asset, got %v", err)
	}
}

func TestRegistryReorderOnReadd(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)

	if err := engine.DeregisterAsset(ownerAddr, assetA); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if err := engine.RegisterAsset(ownerAddr, assetA, 18, PriceModeStable, ""); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	assets, err := engine.ListAssets()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(assets) != 2 || assets[0].Asset != assetB || assets[1].Asset != assetA {
		t.Fatalf("unexpected order %+v", assets)
	}
}

func TestRegisterValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.RegisterAsset(userAddr, assetA, 6, PriceModeStable, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.RegisterAsset(ownerAddr, assetA, 6, PriceModeOracle, "  "); !errors.Is(err, ErrOracleRefRequired) {
		t.Fatalf("expected missing oracle ref, got %v", err)
	}
	if err := engine.RegisterAsset(ownerAddr, assetA, 6, PriceModeStable, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.RegisterAsset(ownerAddr, assetA, 6, PriceModeStable, ""); !errors.Is(err, ErrAssetExists) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if err := engine.AuthorizeRelayer(ownerAddr, relayAddr); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := engine.Pause(userAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized pause, got %v", err)
	}
	if err := engine.Pause(ownerAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("deposit during pause: %v", err)
	}
	if _, err := engine.Withdraw(userAddr, big.NewInt(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("withdraw during pause: %v", err)
	}
	if err := engine.TransferCredit(userAddr, peerAddr, big.NewInt(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("transfer during pause: %v", err)
	}
	if _, err := engine.ReclaimConsumed(ownerAddr); !errors.Is(err, ErrPaused) {
		t.Fatalf("reclaim during pause: %v", err)
	}
	// Consume is relayer-backed and deliberately not pause-gated.
	if _, err := engine.Consume(relayAddr, userAddr, big.NewInt(5)); err != nil {
		t.Fatalf("consume during pause: %v", err)
	}

	if err := engine.Unpause(ownerAddr); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(1)); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestEmergencyDrainRequiresPause(t *testing.T) {
	engine, vault, _ := newTestEngine(t)
	registerTwoStableAssets(t, engine, vault)
	if _, err := engine.Deposit(userAddr, assetA, big.NewInt(70)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := engine.EmergencyDrain(ownerAddr); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected pause gate, got %v", err)
	}
	if err := engine.Pause(ownerAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := engine.EmergencyDrain(userAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.EmergencyDrain(ownerAddr); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := vault.holderBalance(assetA, ownerAddr); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("owner received %s, want 70", got)
	}
	onHand, _ := vault.LedgerBalance(assetA)
	if onHand.Sign() != 0 {
		t.Fatalf("custody not emptied: %s", onHand)
	}
}

func TestInitOwnerOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.InitOwner(userAddr); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected already initialised, got %v", err)
	}
	owner, err := engine.Owner()
	if err != nil || owner != ownerAddr {
		t.Fatalf("owner %x err %v", owner, err)
	}
}
