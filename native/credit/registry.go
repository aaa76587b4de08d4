package credit

import (
	"fmt"
	"strings"

	"creditnet/core/events"
)

type storedAsset struct {
	Asset     [20]byte
	Precision uint8
	Mode      uint8
	OracleRef string
}

// RegisterAsset adds an asset type to the registry. Enumeration order is
// insertion order; the proportional walks in withdraw, consume, transfer and
// reclaim all iterate it, so the index is persisted explicitly rather than
// derived from map iteration.
func (e *Engine) RegisterAsset(caller [20]byte, asset [20]byte, precision uint8, mode PriceMode, oracleRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("credit: invalid price mode %d", mode)
	}
	oracleRef = strings.TrimSpace(oracleRef)
	if mode == PriceModeOracle && oracleRef == "" {
		return ErrOracleRefRequired
	}
	if mode == PriceModeStable {
		oracleRef = ""
	}
	ok, err := e.st.KVGet(assetKey(asset), new(storedAsset))
	if err != nil {
		return err
	}
	if ok {
		return ErrAssetExists
	}
	stored := storedAsset{Asset: asset, Precision: precision, Mode: uint8(mode), OracleRef: oracleRef}
	if err := e.st.KVPut(assetKey(asset), stored); err != nil {
		return err
	}
	index, err := e.loadAssetIndex()
	if err != nil {
		return err
	}
	index = append(index, asset)
	if err := e.st.KVPut(assetIndexKey, index); err != nil {
		return err
	}
	e.emit(events.CreditAssetRegistered{
		Asset:     asset,
		Precision: precision,
		Stable:    mode == PriceModeStable,
		OracleRef: oracleRef,
	})
	return nil
}

// DeregisterAsset removes an asset type. The ledger must hold a zero on-hand
// balance of it, otherwise value would be orphaned with no accounting path.
// A removed and re-added asset moves to the end of the enumeration order.
func (e *Engine) DeregisterAsset(caller [20]byte, asset [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	ok, err := e.st.KVGet(assetKey(asset), new(storedAsset))
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownAsset
	}
	onHand, err := e.vault.LedgerBalance(asset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if onHand != nil && onHand.Sign() != 0 {
		return ErrNonZeroBalance
	}
	if err := e.st.KVDelete(assetKey(asset)); err != nil {
		return err
	}
	index, err := e.loadAssetIndex()
	if err != nil {
		return err
	}
	filtered := index[:0]
	for _, entry := range index {
		if entry != asset {
			filtered = append(filtered, entry)
		}
	}
	if err := e.st.KVPut(assetIndexKey, filtered); err != nil {
		return err
	}
	e.emit(events.CreditAssetRemoved{Asset: asset})
	return nil
}

// ListAssets enumerates the currently registered assets in insertion order.
func (e *Engine) ListAssets() ([]AssetDescriptor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listAssetsLocked()
}

// QuoteFor returns the validated current quote for a registered asset.
func (e *Engine) QuoteFor(asset [20]byte) (Quote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	desc, err := e.lookupAsset(asset)
	if err != nil {
		return Quote{}, err
	}
	return e.pricing.Quote(desc)
}

func (e *Engine) lookupAsset(asset [20]byte) (AssetDescriptor, error) {
	stored := storedAsset{}
	ok, err := e.st.KVGet(assetKey(asset), &stored)
	if err != nil {
		return AssetDescriptor{}, err
	}
	if !ok {
		return AssetDescriptor{}, ErrUnknownAsset
	}
	return AssetDescriptor{
		Asset:     stored.Asset,
		Precision: stored.Precision,
		Mode:      PriceMode(stored.Mode),
		OracleRef: stored.OracleRef,
	}, nil
}

func (e *Engine) listAssetsLocked() ([]AssetDescriptor, error) {
	index, err := e.loadAssetIndex()
	if err != nil {
		return nil, err
	}
	out := make([]AssetDescriptor, 0, len(index))
	for _, asset := range index {
		desc, err := e.lookupAsset(asset)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func (e *Engine) loadAssetIndex() ([][20]byte, error) {
	var index [][20]byte
	if _, err := e.st.KVGet(assetIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}
