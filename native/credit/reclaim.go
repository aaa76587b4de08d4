package credit

import (
	"errors"
	"fmt"
	"math/big"

	"creditnet/core/events"
)

// ReclaimConsumed pays the owner the unreclaimed consumed value out of the
// ledger's on-hand balances, sliced proportionally to each asset's current
// credit-equivalent value in registry order. Integer rounding may leave a
// small remainder; repeated calls converge on the consumed total without ever
// exceeding it.
func (e *Engine) ReclaimConsumed(caller [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := e.guardPaused(); err != nil {
		return nil, err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(totals.Consumed, totals.Reclaimed)
	if delta.Sign() == 0 {
		return nil, ErrNothingToReclaim
	}
	assets, err := e.listAssetsLocked()
	if err != nil {
		return nil, err
	}

	remaining := new(big.Int).Set(delta)
	legs := make([]withdrawalLeg, 0, len(assets))
	for _, desc := range assets {
		if remaining.Sign() == 0 {
			break
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
		value := creditValueAt(desc, quote, onHand)
		if value.Sign() == 0 {
			continue
		}
		share := minBig(remaining, value)
		// Proportional slice of the on-hand balance: B * share / V.
		assetAmt := new(big.Int).Mul(onHand, share)
		assetAmt.Quo(assetAmt, value)
		if assetAmt.Sign() == 0 {
			continue
		}
		legs = append(legs, withdrawalLeg{asset: desc.Asset, amount: assetAmt})
		remaining.Sub(remaining, share)
	}

	reclaimed := new(big.Int).Sub(delta, remaining)
	if reclaimed.Sign() == 0 {
		return nil, ErrNothingToReclaim
	}
	prior := &storedTotals{Consumed: new(big.Int).Set(totals.Consumed), Reclaimed: new(big.Int).Set(totals.Reclaimed)}
	totals.Reclaimed = new(big.Int).Add(totals.Reclaimed, reclaimed)
	if err := e.storeTotals(totals); err != nil {
		return nil, err
	}
	owner := caller
	if err := e.payLegs(owner, legs); err != nil {
		if errors.Is(err, ErrTransferFailed) {
			if restoreErr := e.storeTotals(prior); restoreErr != nil {
				return nil, fmt.Errorf("credit: rollback failed after transfer error (%v): %w", err, restoreErr)
			}
		}
		return nil, err
	}
	e.emit(events.CreditReclaimed{Owner: owner, Credits: new(big.Int).Set(reclaimed)})
	return reclaimed, nil
}

// EmergencyDrain sweeps every registered asset's full on-hand balance to the
// owner, bypassing credit accounting. It is a last-resort escape hatch and
// only runs while the ledger is paused.
func (e *Engine) EmergencyDrain(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	if !params.Paused {
		return ErrNotPaused
	}
	assets, err := e.listAssetsLocked()
	if err != nil {
		return err
	}
	for _, desc := range assets {
		onHand, err := e.vault.LedgerBalance(desc.Asset)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if onHand == nil || onHand.Sign() == 0 {
			continue
		}
		if err := e.vault.TransferOut(desc.Asset, caller, onHand); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		e.emit(events.CreditEmergencyDrained{Owner: caller, Asset: desc.Asset, Amount: new(big.Int).Set(onHand)})
	}
	return nil
}
