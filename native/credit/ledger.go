package credit

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"creditnet/core/events"
)

// ModuleName tags the credit ledger in pause state and event routing.
const ModuleName = "credit"

type storedParams struct {
	Owner       [20]byte
	MinConsume  *big.Int
	Paused      bool
	Initialised bool
}

type storedTotals struct {
	Consumed  *big.Int
	Reclaimed *big.Int
}

type storedBucket struct {
	Asset   [20]byte
	Credits *big.Int
}

type storedAccount struct {
	Aggregate *big.Int
	Buckets   []storedBucket
}

// Engine is the multi-asset credit ledger. All mutating operations serialize
// on a single lock; queries take the read side and observe a consistent
// snapshot of aggregate and breakdown.
type Engine struct {
	mu      sync.RWMutex
	st      Storage
	vault   AssetVault
	pricing *PriceSource
	emitter events.Emitter
}

// NewEngine binds the engine to its storage, vault and price source
// capabilities.
func NewEngine(st Storage, vault AssetVault, pricing *PriceSource) *Engine {
	return &Engine{st: st, vault: vault, pricing: pricing, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// InitOwner records the owner address. It may be called exactly once, at
// genesis or first boot.
func (e *Engine) InitOwner(owner [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	if params.Initialised {
		return ErrAlreadyInitialised
	}
	params.Owner = owner
	params.Initialised = true
	return e.storeParams(params)
}

// Owner returns the configured owner address.
func (e *Engine) Owner() ([20]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	params, err := e.loadParams()
	if err != nil {
		return [20]byte{}, err
	}
	if !params.Initialised {
		return [20]byte{}, ErrNotInitialised
	}
	return params.Owner, nil
}

// Deposit pulls amount of the asset from the user into ledger custody and
// credits the user with its current market value.
func (e *Engine) Deposit(user [20]byte, asset [20]byte, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guardPaused(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	desc, err := e.lookupAsset(asset)
	if err != nil {
		return nil, err
	}
	credits, err := e.pricing.CreditValue(desc, amount)
	if err != nil {
		return nil, err
	}
	account, err := e.loadAccount(user)
	if err != nil {
		return nil, err
	}
	if err := e.vault.TransferIn(asset, user, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	account.Aggregate = new(big.Int).Add(account.Aggregate, credits)
	addToBucket(account, asset, credits)
	if err := e.storeAccount(user, account); err != nil {
		// The pull already happened; push it back so custody matches state.
		if refundErr := e.vault.TransferOut(asset, user, amount); refundErr != nil {
			return nil, fmt.Errorf("credit: state write failed (%v) and refund failed: %w", err, refundErr)
		}
		return nil, err
	}
	e.emit(events.CreditDeposited{User: user, Asset: asset, Amount: new(big.Int).Set(amount), Credits: new(big.Int).Set(credits)})
	return credits, nil
}

// withdrawalLeg is one planned asset payout of a proportional walk.
type withdrawalLeg struct {
	asset  [20]byte
	amount *big.Int
}

// payLegs executes the planned transfers in order. When a later leg is
// rejected, every leg already paid is pulled back into custody so the
// external side matches the caller's internal rollback. A reversal failure
// is surfaced as its own error and does not carry ErrTransferFailed, since
// the two sides are no longer reconcilable by a state restore.
func (e *Engine) payLegs(recipient [20]byte, legs []withdrawalLeg) error {
	for i, leg := range legs {
		if err := e.vault.TransferOut(leg.asset, recipient, leg.amount); err != nil {
			for j := i - 1; j >= 0; j-- {
				if reverseErr := e.vault.TransferIn(legs[j].asset, recipient, legs[j].amount); reverseErr != nil {
					return fmt.Errorf("credit: leg reversal failed after transfer error (%v): %v", err, reverseErr)
				}
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return nil
}

// Withdraw redeems up to creditAmount of the user's credits back into
// underlying assets, walking the registry in insertion order. When on-hand
// balances cannot cover the full request only the satisfiable portion is
// withdrawn; the credits actually redeemed are returned.
func (e *Engine) Withdraw(user [20]byte, creditAmount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guardPaused(); err != nil {
		return nil, err
	}
	if creditAmount == nil || creditAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	account, err := e.loadAccount(user)
	if err != nil {
		return nil, err
	}
	if account.Aggregate.Cmp(creditAmount) < 0 {
		return nil, ErrInsufficientCredit
	}
	assets, err := e.listAssetsLocked()
	if err != nil {
		return nil, err
	}

	// Phase one: plan every leg against current quotes and balances without
	// touching state.
	prior := cloneAccount(account)
	remaining := new(big.Int).Set(creditAmount)
	satisfied := big.NewInt(0)
	legs := make([]withdrawalLeg, 0, len(assets))
	for _, desc := range assets {
		if remaining.Sign() == 0 {
			break
		}
		bucket := bucketAmount(account, desc.Asset)
		if bucket.Sign() == 0 {
			continue
		}
		onHand, err := e.vault.LedgerBalance(desc.Asset)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if onHand == nil || onHand.Sign() == 0 {
			continue
		}
		quote, err := e.pricing.Quote(desc)
		if err != nil {
			return nil, err
		}
		share := minBig(remaining, bucket)
		assetAmt := assetValueAt(desc, quote, share)
		if assetAmt.Cmp(onHand) > 0 {
			// Partially backed bucket: pay out what is on hand and debit the
			// credits it is worth.
			assetAmt = new(big.Int).Set(onHand)
			share = creditValueAt(desc, quote, assetAmt)
			if share.Cmp(bucket) > 0 {
				share = new(big.Int).Set(bucket)
			}
		}
		if assetAmt.Sign() == 0 || share.Sign() == 0 {
			continue
		}
		subFromBucket(account, desc.Asset, share)
		remaining.Sub(remaining, share)
		satisfied.Add(satisfied, share)
		legs = append(legs, withdrawalLeg{asset: desc.Asset, amount: assetAmt})
	}
	if satisfied.Sign() == 0 {
		return big.NewInt(0), nil
	}

	// Phase two: finalize internal state, then pay out. A rejected transfer
	// rolls both sides back: executed legs return to custody, the account
	// returns to its prior snapshot.
	account.Aggregate = new(big.Int).Sub(account.Aggregate, satisfied)
	if err := e.storeAccount(user, account); err != nil {
		return nil, err
	}
	if err := e.payLegs(user, legs); err != nil {
		if errors.Is(err, ErrTransferFailed) {
			if restoreErr := e.storeAccount(user, prior); restoreErr != nil {
				return nil, fmt.Errorf("credit: rollback failed after transfer error (%v): %w", err, restoreErr)
			}
		}
		return nil, err
	}
	e.emit(events.CreditWithdrawn{User: user, Requested: new(big.Int).Set(creditAmount), Satisfied: new(big.Int).Set(satisfied)})
	return satisfied, nil
}

// Consume debits creditCost = max(value, minimum threshold) from the user on
// behalf of an authorized relayer. The underlying assets stay in custody for
// later reclamation, so the bucket walk always succeeds in full.
func (e *Engine) Consume(relayer [20]byte, user [20]byte, value *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	authorized, err := e.isRelayerLocked(relayer)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrUnauthorized
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	cost := new(big.Int).Set(value)
	if params.MinConsume != nil && cost.Cmp(params.MinConsume) < 0 {
		cost.Set(params.MinConsume)
	}
	account, err := e.loadAccount(user)
	if err != nil {
		return nil, err
	}
	if account.Aggregate.Cmp(cost) < 0 {
		return nil, ErrInsufficientCredit
	}
	assets, err := e.listAssetsLocked()
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Set(cost)
	for _, desc := range assets {
		if remaining.Sign() == 0 {
			break
		}
		bucket := bucketAmount(account, desc.Asset)
		if bucket.Sign() == 0 {
			continue
		}
		share := minBig(remaining, bucket)
		subFromBucket(account, desc.Asset, share)
		remaining.Sub(remaining, share)
	}
	if remaining.Sign() != 0 {
		return nil, fmt.Errorf("credit: breakdown short of aggregate by %s", remaining)
	}
	account.Aggregate = new(big.Int).Sub(account.Aggregate, cost)
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	totals.Consumed = new(big.Int).Add(totals.Consumed, cost)
	if err := e.storeAccount(user, account); err != nil {
		return nil, err
	}
	if err := e.storeTotals(totals); err != nil {
		return nil, err
	}
	e.emit(events.CreditConsumed{Relayer: relayer, User: user, Credits: new(big.Int).Set(cost)})
	return cost, nil
}

// TransferCredit re-attributes credits from sender to receiver. No asset
// moves; the sender's buckets are walked proportionally and the touched
// shares land in the receiver's matching buckets.
func (e *Engine) TransferCredit(sender, receiver [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guardPaused(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	from, err := e.loadAccount(sender)
	if err != nil {
		return err
	}
	if from.Aggregate.Cmp(amount) < 0 {
		return ErrInsufficientCredit
	}
	if sender == receiver {
		return nil
	}
	to, err := e.loadAccount(receiver)
	if err != nil {
		return err
	}
	assets, err := e.listAssetsLocked()
	if err != nil {
		return err
	}
	remaining := new(big.Int).Set(amount)
	for _, desc := range assets {
		if remaining.Sign() == 0 {
			break
		}
		bucket := bucketAmount(from, desc.Asset)
		if bucket.Sign() == 0 {
			continue
		}
		share := minBig(remaining, bucket)
		subFromBucket(from, desc.Asset, share)
		addToBucket(to, desc.Asset, share)
		remaining.Sub(remaining, share)
	}
	if remaining.Sign() != 0 {
		return fmt.Errorf("credit: breakdown short of aggregate by %s", remaining)
	}
	from.Aggregate = new(big.Int).Sub(from.Aggregate, amount)
	to.Aggregate = new(big.Int).Add(to.Aggregate, amount)
	if err := e.storeAccount(sender, from); err != nil {
		return err
	}
	if err := e.storeAccount(receiver, to); err != nil {
		return err
	}
	e.emit(events.CreditTransferred{Sender: sender, Receiver: receiver, Credits: new(big.Int).Set(amount)})
	return nil
}

// AuthorizeRelayer grants consume rights to the relayer address.
func (e *Engine) AuthorizeRelayer(caller, relayer [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.st.KVPut(relayerKey(relayer), true); err != nil {
		return err
	}
	e.emit(events.CreditRelayerAuthorized{Relayer: relayer})
	return nil
}

// RevokeRelayer removes the relayer's consume rights.
func (e *Engine) RevokeRelayer(caller, relayer [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.st.KVDelete(relayerKey(relayer)); err != nil {
		return err
	}
	e.emit(events.CreditRelayerRevoked{Relayer: relayer})
	return nil
}

// SetMinimumConsumeThreshold floors the cost of every consume call.
func (e *Engine) SetMinimumConsumeThreshold(caller [20]byte, threshold *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if threshold == nil || threshold.Sign() < 0 {
		return ErrInvalidAmount
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	params.MinConsume = new(big.Int).Set(threshold)
	return e.storeParams(params)
}

// Pause blocks deposit, withdraw, transfer and reclaim until Unpause.
func (e *Engine) Pause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	params.Paused = true
	if err := e.storeParams(params); err != nil {
		return err
	}
	e.emit(events.CreditPaused{Owner: params.Owner})
	return nil
}

// Unpause lifts an active pause.
func (e *Engine) Unpause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	params.Paused = false
	if err := e.storeParams(params); err != nil {
		return err
	}
	e.emit(events.CreditUnpaused{Owner: params.Owner})
	return nil
}

// CreditBalanceOf returns the user's aggregate credit balance.
func (e *Engine) CreditBalanceOf(user [20]byte) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	account, err := e.loadAccount(user)
	if err != nil {
		return nil, err
	}
	return account.Aggregate, nil
}

// AssetCreditBreakdown returns the user's non-zero per-asset buckets in
// registry insertion order.
func (e *Engine) AssetCreditBreakdown(user [20]byte) ([]Bucket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	account, err := e.loadAccount(user)
	if err != nil {
		return nil, err
	}
	assets, err := e.listAssetsLocked()
	if err != nil {
		return nil, err
	}
	out := make([]Bucket, 0, len(account.Buckets))
	for _, desc := range assets {
		amount := bucketAmount(account, desc.Asset)
		if amount.Sign() == 0 {
			continue
		}
		out = append(out, Bucket{Asset: desc.Asset, Credits: amount})
	}
	return out, nil
}

// TotalConsumed reports the cumulative credits removed via Consume.
func (e *Engine) TotalConsumed() (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	return totals.Consumed, nil
}

// TotalReclaimed reports the cumulative credits the owner has swept.
func (e *Engine) TotalReclaimed() (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	return totals.Reclaimed, nil
}

// MinimumConsumeThreshold reports the current consume floor.
func (e *Engine) MinimumConsumeThreshold() (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if params.MinConsume == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(params.MinConsume), nil
}

// IsPaused reports whether the ledger is paused.
func (e *Engine) IsPaused() (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	params, err := e.loadParams()
	if err != nil {
		return false, err
	}
	return params.Paused, nil
}

// IsRelayer reports whether the address may invoke Consume.
func (e *Engine) IsRelayer(relayer [20]byte) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRelayerLocked(relayer)
}

func (e *Engine) isRelayerLocked(relayer [20]byte) (bool, error) {
	var authorized bool
	ok, err := e.st.KVGet(relayerKey(relayer), &authorized)
	if err != nil {
		return false, err
	}
	return ok && authorized, nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	if !params.Initialised {
		return ErrNotInitialised
	}
	if caller != params.Owner {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) guardPaused() error {
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	if params.Paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) loadParams() (*storedParams, error) {
	params := &storedParams{}
	if _, err := e.st.KVGet(paramsKey, params); err != nil {
		return nil, err
	}
	if params.MinConsume == nil {
		params.MinConsume = big.NewInt(0)
	}
	return params, nil
}

func (e *Engine) storeParams(params *storedParams) error {
	return e.st.KVPut(paramsKey, params)
}

func (e *Engine) loadTotals() (*storedTotals, error) {
	totals := &storedTotals{}
	if _, err := e.st.KVGet(totalsKey, totals); err != nil {
		return nil, err
	}
	if totals.Consumed == nil {
		totals.Consumed = big.NewInt(0)
	}
	if totals.Reclaimed == nil {
		totals.Reclaimed = big.NewInt(0)
	}
	return totals, nil
}

func (e *Engine) storeTotals(totals *storedTotals) error {
	return e.st.KVPut(totalsKey, totals)
}

func (e *Engine) loadAccount(user [20]byte) (*storedAccount, error) {
	account := &storedAccount{}
	if _, err := e.st.KVGet(accountKey(user), account); err != nil {
		return nil, err
	}
	if account.Aggregate == nil {
		account.Aggregate = big.NewInt(0)
	}
	for i := range account.Buckets {
		if account.Buckets[i].Credits == nil {
			account.Buckets[i].Credits = big.NewInt(0)
		}
	}
	return account, nil
}

func (e *Engine) storeAccount(user [20]byte, account *storedAccount) error {
	compact := make([]storedBucket, 0, len(account.Buckets))
	for _, b := range account.Buckets {
		if b.Credits == nil || b.Credits.Sign() == 0 {
			continue
		}
		compact = append(compact, b)
	}
	account.Buckets = compact
	return e.st.KVPut(accountKey(user), account)
}

func cloneAccount(account *storedAccount) *storedAccount {
	clone := &storedAccount{Aggregate: new(big.Int).Set(account.Aggregate)}
	clone.Buckets = make([]storedBucket, len(account.Buckets))
	for i, b := range account.Buckets {
		clone.Buckets[i] = storedBucket{Asset: b.Asset, Credits: new(big.Int).Set(b.Credits)}
	}
	return clone
}

func bucketAmount(account *storedAccount, asset [20]byte) *big.Int {
	for _, b := range account.Buckets {
		if b.Asset == asset {
			return new(big.Int).Set(b.Credits)
		}
	}
	return big.NewInt(0)
}

func addToBucket(account *storedAccount, asset [20]byte, credits *big.Int) {
	for i := range account.Buckets {
		if account.Buckets[i].Asset == asset {
			account.Buckets[i].Credits = new(big.Int).Add(account.Buckets[i].Credits, credits)
			return
		}
	}
	account.Buckets = append(account.Buckets, storedBucket{Asset: asset, Credits: new(big.Int).Set(credits)})
}

func subFromBucket(account *storedAccount, asset [20]byte, credits *big.Int) {
	for i := range account.Buckets {
		if account.Buckets[i].Asset == asset {
			account.Buckets[i].Credits = new(big.Int).Sub(account.Buckets[i].Credits, credits)
			return
		}
	}
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
