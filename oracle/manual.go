// Package oracle provides QuoteOracle implementations for the credit engine.
package oracle

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"creditnet/native/credit"
)

// Manual is an in-memory quote source used for tests and operator overrides
// during incident response. Feeds are keyed by oracle reference.
type Manual struct {
	mu     sync.RWMutex
	quotes map[string]credit.Quote
}

func NewManual() *Manual {
	return &Manual{quotes: make(map[string]credit.Quote)}
}

// Set records a completed round for the reference.
func (m *Manual) Set(ref string, price *big.Int, decimals uint8, updatedAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[normaliseRef(ref)] = credit.Quote{
		Price:         new(big.Int).Set(price),
		Decimals:      decimals,
		UpdatedAt:     updatedAt,
		RoundComplete: true,
	}
}

// SetQuote records a raw quote verbatim, incomplete rounds included.
func (m *Manual) SetQuote(ref string, quote credit.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quote.Price != nil {
		quote.Price = new(big.Int).Set(quote.Price)
	}
	m.quotes[normaliseRef(ref)] = quote
}

// LatestQuote implements credit.QuoteOracle.
func (m *Manual) LatestQuote(ref string) (credit.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	quote, ok := m.quotes[normaliseRef(ref)]
	if !ok {
		return credit.Quote{}, fmt.Errorf("oracle: no feed for %q", ref)
	}
	if quote.Price != nil {
		quote.Price = new(big.Int).Set(quote.Price)
	}
	return quote, nil
}

func normaliseRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}
