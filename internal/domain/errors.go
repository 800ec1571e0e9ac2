package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency. Callers classify
// with errors.Is; infra layers wrap these with context via fmt.Errorf("%w").

var (
	// Validation errors
	ErrBelowMinimumAmount = errors.New("deal amount below configured minimum")
	ErrInvalidMode        = errors.New("invalid request parameter")
	ErrIneligible         = errors.New("asset ineligible for this operation")
	ErrInsufficientCredit = errors.New("credit rating too low for requested amount")

	// Domain-state errors
	ErrDealNotFound    = errors.New("deal not found")
	ErrSearchNotFound  = errors.New("search request not found")
	ErrListingNotFound = errors.New("sale listing not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account name already registered")
	ErrAlreadyPaidOff  = errors.New("deal already paid off")
	ErrDealTerminal    = errors.New("deal is in a terminal state")
	ErrNotActive       = errors.New("request is no longer active")
	ErrAlreadyListed   = errors.New("asset already has an active listing")
	ErrNoOffer         = errors.New("listing has no pending offer")
	ErrOfferExpired    = errors.New("pending offer has expired")
	ErrAssetNotFound   = errors.New("asset not found in registry")

	// Funds errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Collaborator errors. A transient failure downgrades the affected
	// operation to a miss for that tick only; the engine retries next tick.
	ErrTransient = errors.New("transient collaborator failure")
)
