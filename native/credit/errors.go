package credit

import "errors"

var (
	ErrUnauthorized       = errors.New("credit: unauthorized")
	ErrNotInitialised     = errors.New("credit: owner not initialised")
	ErrAlreadyInitialised = errors.New("credit: owner already initialised")
	ErrUnknownAsset       = errors.New("credit: unknown asset")
	ErrAssetExists        = errors.New("credit: asset already registered")
	ErrNonZeroBalance     = errors.New("credit: asset balance must be zero on removal")
	ErrOracleRefRequired  = errors.New("credit: oracle ref required")
	ErrInvalidAmount      = errors.New("credit: amount must be positive")
	ErrInsufficientCredit = errors.New("credit: insufficient credit")
	ErrStalePrice         = errors.New("credit: stale price")
	ErrInvalidPrice       = errors.New("credit: invalid price")
	ErrNothingToReclaim   = errors.New("credit: nothing to reclaim")
	ErrPaused             = errors.New("credit: ledger paused")
	ErrNotPaused          = errors.New("credit: ledger not paused")
	ErrTransferFailed     = errors.New("credit: asset transfer failed")
)
