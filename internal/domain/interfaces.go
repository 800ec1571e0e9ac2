package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the engine depends on them. Ledger and
// AssetRegistry are owned by the host; the engine never assumes their calls
// are infallible (see ErrTransient).

// Ledger abstracts the account money store. Debit refuses overdrafts with
// ErrInsufficientFunds; any other failure is treated as transient.
type Ledger interface {
	// Debit withdraws amount from the account, or fails without effect.
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, memo string) error

	// Credit deposits amount into the account.
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, memo string) error

	// Balance returns the current account balance.
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// Balances returns a copy of every balance, for persistence sweeps.
	Balances() map[string]decimal.Decimal

	// Load restores one balance from a snapshot.
	Load(accountID string, balance decimal.Decimal)
}

// AssetRegistry abstracts ownership of equipment. Held assets are pledged as
// deal collateral and refuse Remove until released or seized.
type AssetRegistry interface {
	Add(ctx context.Context, accountID string, a Asset) error
	Get(ctx context.Context, accountID, ref string) (Asset, error)

	// Remove releases an unheld asset from the account (sale, trade-in).
	Remove(ctx context.Context, accountID, ref string) (Asset, error)

	// Seize removes an asset regardless of holds (repossession).
	Seize(ctx context.Context, accountID, ref string) (Asset, error)

	// Hold and ReleaseHold pledge/unpledge an asset as collateral.
	Hold(ctx context.Context, accountID, ref string) error
	ReleaseHold(ctx context.Context, accountID, ref string) error

	// TotalValue sums the account's asset values (collateral included).
	TotalValue(ctx context.Context, accountID string) (decimal.Decimal, error)

	// List returns the account's assets in ref order.
	List(ctx context.Context, accountID string) ([]Asset, error)

	// Dump returns a copy of every holding, for persistence sweeps.
	Dump() map[string][]Asset

	// LoadAssets replaces one account's holdings from a snapshot.
	LoadAssets(accountID string, assets []Asset)
}

// Depreciator synthesizes condition attributes for found items.
// Deterministic per (seed, ageMonths).
type Depreciator interface {
	Condition(seed int64, ageMonths int) (damage, wear float64)
}

// Notifier receives engine events for out-of-band delivery. Implementations
// absorb their own failures; delivery is best-effort by contract.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// ─── Persistence ────────────────────────────────────────────────────────────

// Store persists engine state. Every record carries a monotonic Seq; stores
// keep the highest Seq per key and ignore stale replays.
type Store interface {
	SaveAccount(a Account) error
	SaveProfile(p CreditProfile) error
	SaveDeal(d Deal) error
	SaveSearch(s SearchRequest) error
	SaveListing(l SaleListing) error
	SaveBalance(accountID string, balance decimal.Decimal) error
	SaveAssets(accountID string, assets []Asset) error
	SaveTick(t Timestamp) error

	// Snapshot loads everything for engine start-up.
	Snapshot() (*Snapshot, error)

	Close() error
}

// Snapshot is the full persisted state of the engine. Tick is -1 when the
// engine has never processed an hour.
type Snapshot struct {
	Tick     Timestamp
	Accounts []Account
	Profiles []CreditProfile
	Deals    []Deal
	Searches []SearchRequest
	Listings []SaleListing
	Balances map[string]decimal.Decimal
	Assets   map[string][]Asset
}
