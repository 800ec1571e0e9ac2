// Package ledger provides the built-in money store. Hosts embedding the
// engine can supply their own domain.Ledger; the daemon uses this one.
// Balances are exact decimals; a debit either applies in full or fails
// without effect.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// Bank holds per-account balances. Thread-safe via RWMutex.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[string]decimal.Decimal)}
}

// Credit deposits amount into the account, creating it on first use.
func (b *Bank) Credit(_ context.Context, accountID string, amount decimal.Decimal, _ string) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("credit of %s: negative amount", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[accountID] = b.balances[accountID].Add(amount)
	return nil
}

// Debit withdraws amount, refusing overdrafts.
func (b *Bank) Debit(_ context.Context, accountID string, amount decimal.Decimal, memo string) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("debit of %s: negative amount", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balances[accountID]
	if bal.LessThan(amount) {
		return fmt.Errorf("debit %s for %q: balance %s: %w",
			amount, memo, bal, domain.ErrInsufficientFunds)
	}
	b.balances[accountID] = bal.Sub(amount)
	return nil
}

// Balance returns the current account balance (zero for unknown accounts).
func (b *Bank) Balance(_ context.Context, accountID string) (decimal.Decimal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[accountID], nil
}

// Load sets an account's balance directly, for snapshot restore and seeding.
func (b *Bank) Load(accountID string, balance decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[accountID] = balance
}

// Balances returns a copy of every balance, for persistence sweeps.
func (b *Bank) Balances() map[string]decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(b.balances))
	for k, v := range b.balances {
		out[k] = v
	}
	return out
}
