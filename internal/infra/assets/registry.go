// Package assets provides the built-in equipment registry. It tracks which
// account owns which asset and whether the asset is held as deal collateral.
// Held assets refuse ordinary removal (sale, trade-in) until released or
// seized by repossession.
package assets

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// Registry holds per-account asset sets. Thread-safe via RWMutex.
type Registry struct {
	mu    sync.RWMutex
	owned map[string]map[string]domain.Asset // accountID → ref → asset
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{owned: make(map[string]map[string]domain.Asset)}
}

// Add registers an asset under the account. Re-adding an existing ref
// replaces its record (value refresh), preserving any hold.
func (r *Registry) Add(_ context.Context, accountID string, a domain.Asset) error {
	if a.Ref == "" {
		return fmt.Errorf("asset with empty ref")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.owned[accountID]
	if !ok {
		set = make(map[string]domain.Asset)
		r.owned[accountID] = set
	}
	if prev, ok := set[a.Ref]; ok && prev.Held {
		a.Held = true
	}
	set[a.Ref] = a
	return nil
}

// Get returns the asset record.
func (r *Registry) Get(_ context.Context, accountID, ref string) (domain.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.owned[accountID][ref]
	if !ok {
		return domain.Asset{}, fmt.Errorf("asset %q of %q: %w", ref, accountID, domain.ErrAssetNotFound)
	}
	return a, nil
}

// Remove releases an unheld asset from the account. Collateralized assets
// refuse removal until the hold is released or the asset is seized.
func (r *Registry) Remove(_ context.Context, accountID, ref string) (domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.owned[accountID][ref]
	if !ok {
		return domain.Asset{}, fmt.Errorf("asset %q of %q: %w", ref, accountID, domain.ErrAssetNotFound)
	}
	if a.Held {
		return domain.Asset{}, fmt.Errorf("asset %q is pledged collateral: %w", ref, domain.ErrIneligible)
	}
	delete(r.owned[accountID], ref)
	return a, nil
}

// Seize removes an asset regardless of holds. Repossession path.
func (r *Registry) Seize(_ context.Context, accountID, ref string) (domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.owned[accountID][ref]
	if !ok {
		return domain.Asset{}, fmt.Errorf("asset %q of %q: %w", ref, accountID, domain.ErrAssetNotFound)
	}
	delete(r.owned[accountID], ref)
	return a, nil
}

// Hold pledges an asset as collateral.
func (r *Registry) Hold(_ context.Context, accountID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.owned[accountID][ref]
	if !ok {
		return fmt.Errorf("asset %q of %q: %w", ref, accountID, domain.ErrAssetNotFound)
	}
	a.Held = true
	r.owned[accountID][ref] = a
	return nil
}

// ReleaseHold unpledges an asset.
func (r *Registry) ReleaseHold(_ context.Context, accountID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.owned[accountID][ref]
	if !ok {
		return fmt.Errorf("asset %q of %q: %w", ref, accountID, domain.ErrAssetNotFound)
	}
	a.Held = false
	r.owned[accountID][ref] = a
	return nil
}

// TotalValue sums the account's asset values, collateral included.
func (r *Registry) TotalValue(_ context.Context, accountID string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := decimal.Zero
	for _, a := range r.owned[accountID] {
		total = total.Add(a.Value)
	}
	return total, nil
}

// List returns the account's assets in ref order.
func (r *Registry) List(_ context.Context, accountID string) ([]domain.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Asset, 0, len(r.owned[accountID]))
	for _, a := range r.owned[accountID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

// Dump returns a copy of every holding keyed by account, in ref order,
// for persistence sweeps.
func (r *Registry) Dump() map[string][]domain.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]domain.Asset, len(r.owned))
	for accountID, set := range r.owned {
		assets := make([]domain.Asset, 0, len(set))
		for _, a := range set {
			assets = append(assets, a)
		}
		sort.Slice(assets, func(i, j int) bool { return assets[i].Ref < assets[j].Ref })
		out[accountID] = assets
	}
	return out
}

// LoadAssets replaces one account's holdings from a snapshot.
func (r *Registry) LoadAssets(accountID string, assets []domain.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]domain.Asset, len(assets))
	for _, a := range assets {
		if a.Ref == "" {
			continue
		}
		set[a.Ref] = a
	}
	r.owned[accountID] = set
}
