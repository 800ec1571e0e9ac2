// Package deals implements the deal lifecycle: creation under a credit gate,
// monthly servicing with configurable payment behavior, default and
// repossession, and early payoff.
//
// The state machine is Pending → Active → {PaidOff, Defaulted, Repossessed};
// terminal states never transition again. Servicing is idempotent per month:
// each deal remembers the last month index it was serviced for, so replayed
// ticks are no-ops. Underpayment is a feature, not a bug: paying less than
// accrued interest capitalizes the shortfall into the balance (negative
// amortization) and is never auto-corrected.
package deals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/credit"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/finance"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/rng"
)

// paidOffEpsilon is the residual balance treated as fully settled, absorbing
// cent-rounding drift on the final payment.
var paidOffEpsilon = decimal.NewFromFloat(0.005)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the deal book.
type Config struct {
	// MinDealAmount is the smallest acceptable principal.
	MinDealAmount decimal.Decimal

	// BaseAnnualRate is the annual interest rate before the credit-rating
	// adjustment.
	BaseAnnualRate float64

	// LeaseResidualFraction sets a lease's balloon value as a share of the
	// purchase price.
	LeaseResidualFraction float64

	// DefaultThreshold is how many consecutive missed payments put a deal
	// into default.
	DefaultThreshold int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinDealAmount:         decimal.NewFromInt(1000),
		BaseAnnualRate:        0.06,
		LeaseResidualFraction: 0.30,
		DefaultThreshold:      3,
	}
}

// ─── Book ───────────────────────────────────────────────────────────────────

// Book owns every deal. Thread-safe; the engine additionally serializes
// calls per account.
type Book struct {
	mu  sync.RWMutex
	cfg Config

	ledger domain.Ledger
	assets domain.AssetRegistry
	bureau *credit.Bureau

	deals map[uuid.UUID]*domain.Deal
}

// NewBook creates a deal book against the given collaborators.
func NewBook(cfg Config, ledger domain.Ledger, assets domain.AssetRegistry, bureau *credit.Bureau) *Book {
	if cfg.MinDealAmount.Sign() <= 0 {
		cfg.MinDealAmount = decimal.NewFromInt(1000)
	}
	if cfg.BaseAnnualRate < 0 {
		cfg.BaseAnnualRate = 0.06
	}
	if cfg.LeaseResidualFraction < 0 || cfg.LeaseResidualFraction >= 1 {
		cfg.LeaseResidualFraction = 0.30
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = 3
	}
	return &Book{
		cfg:    cfg,
		ledger: ledger,
		assets: assets,
		bureau: bureau,
		deals:  make(map[uuid.UUID]*domain.Deal),
	}
}

// ─── Creation ───────────────────────────────────────────────────────────────

// CreateParams carries everything needed to open a deal.
type CreateParams struct {
	AccountID    string
	Kind         domain.DealKind
	Principal    decimal.Decimal // purchase price, or requested loan amount
	TermMonths   int
	DownFraction float64
	Collateral   []string // asset refs pledged against the deal
	TradeInRef   string   // optional asset traded against the price
	SameBrand    bool     // trade-in brand matches the purchase
}

// Create opens a deal: credit gate, trade-in valuation, down payment, then
// funding. The returned deal is Pending only if funding hit a transient
// ledger failure; it activates on a later tick.
func (bk *Book) Create(ctx context.Context, p CreateParams, now domain.Timestamp) (domain.Deal, []domain.Event, error) {
	if !p.Kind.Valid() {
		return domain.Deal{}, nil, fmt.Errorf("deal kind %q: %w", p.Kind, domain.ErrInvalidMode)
	}
	if p.TermMonths < 1 {
		return domain.Deal{}, nil, fmt.Errorf("term %d months: %w", p.TermMonths, domain.ErrInvalidMode)
	}
	if p.DownFraction < 0 || p.DownFraction >= 1 {
		return domain.Deal{}, nil, fmt.Errorf("down payment fraction %v: %w", p.DownFraction, domain.ErrInvalidMode)
	}
	if p.Principal.LessThan(bk.cfg.MinDealAmount) {
		return domain.Deal{}, nil, fmt.Errorf("principal %s under %s: %w",
			p.Principal, bk.cfg.MinDealAmount, domain.ErrBelowMinimumAmount)
	}

	// Credit gate. The ceiling is checked before the trade-in is valued, so
	// a refused application never consumes the traded asset.
	assetsValue, err := bk.assets.TotalValue(ctx, p.AccountID)
	if err != nil {
		return domain.Deal{}, nil, fmt.Errorf("asset registry: %w", err)
	}
	debt := bk.DebtFor(p.AccountID)
	score := bk.bureau.Score(p.AccountID, assetsValue, debt)
	rating := credit.RatingFor(score)
	if rating == domain.RatingSubprime {
		return domain.Deal{}, nil, fmt.Errorf("rating %s (score %d): %w", rating, score, domain.ErrInsufficientCredit)
	}

	down := p.Principal.Mul(decimal.NewFromFloat(p.DownFraction)).Round(2)
	financed := p.Principal.Sub(down)
	ceiling := assetsValue.Mul(decimal.NewFromFloat(credit.LoanSizeMultiplier(rating)))
	if financed.GreaterThan(ceiling) {
		return domain.Deal{}, nil, fmt.Errorf("financing %s exceeds %s ceiling %s: %w",
			financed, rating, ceiling, domain.ErrInsufficientCredit)
	}

	// Validate the trade-in and all collateral before any money moves.
	var tradeIn *domain.Asset
	if p.TradeInRef != "" {
		a, err := bk.assets.Get(ctx, p.AccountID, p.TradeInRef)
		if err != nil {
			return domain.Deal{}, nil, err
		}
		if a.Held {
			return domain.Deal{}, nil, fmt.Errorf("trade-in %q is pledged collateral: %w", p.TradeInRef, domain.ErrIneligible)
		}
		tradeIn = &a
	}
	for _, ref := range p.Collateral {
		if ref == p.TradeInRef {
			return domain.Deal{}, nil, fmt.Errorf("asset %q cannot be both trade-in and collateral: %w", ref, domain.ErrIneligible)
		}
		a, err := bk.assets.Get(ctx, p.AccountID, ref)
		if err != nil {
			return domain.Deal{}, nil, err
		}
		if a.Held {
			return domain.Deal{}, nil, fmt.Errorf("collateral %q already pledged: %w", ref, domain.ErrIneligible)
		}
	}

	id := uuid.New()
	if tradeIn != nil {
		value := finance.TradeInValue(rng.Stream(id, "deal.tradein", 0),
			tradeIn.Value, p.SameBrand, tradeIn.Damage, tradeIn.Wear)
		financed = financed.Sub(value)
	}
	if financed.Sign() <= 0 {
		return domain.Deal{}, nil, fmt.Errorf("down payment and trade-in cover the full price: %w", domain.ErrBelowMinimumAmount)
	}

	// Settlement. Holds first (trivially reversible), then the down payment,
	// then the trade-in leaves the registry.
	for i, ref := range p.Collateral {
		if err := bk.assets.Hold(ctx, p.AccountID, ref); err != nil {
			releaseHolds(ctx, bk.assets, p.AccountID, p.Collateral[:i])
			return domain.Deal{}, nil, err
		}
	}
	if down.Sign() > 0 {
		if err := bk.ledger.Debit(ctx, p.AccountID, down, fmt.Sprintf("down payment on %s", p.Kind)); err != nil {
			releaseHolds(ctx, bk.assets, p.AccountID, p.Collateral)
			return domain.Deal{}, nil, err
		}
	}
	if tradeIn != nil {
		if _, err := bk.assets.Remove(ctx, p.AccountID, p.TradeInRef); err != nil {
			releaseHolds(ctx, bk.assets, p.AccountID, p.Collateral)
			if down.Sign() > 0 {
				_ = bk.ledger.Credit(ctx, p.AccountID, down, "down payment refund")
			}
			return domain.Deal{}, nil, err
		}
	}

	rate := bk.cfg.BaseAnnualRate + credit.InterestAdjustment(rating)/100
	if rate < 0 {
		rate = 0
	}

	var quoted, residual decimal.Decimal
	if p.Kind == domain.KindLease {
		residual = p.Principal.Mul(decimal.NewFromFloat(bk.cfg.LeaseResidualFraction)).Round(2)
		quoted = finance.LeasePayment(financed, rate, p.TermMonths, residual)
	} else {
		quoted = finance.StandardPayment(financed, rate, p.TermMonths)
	}

	d := &domain.Deal{
		ID:            id,
		AccountID:     p.AccountID,
		Kind:          p.Kind,
		Status:        domain.DealPending,
		Principal:     financed,
		Balance:       financed,
		AnnualRate:    rate,
		TermMonths:    p.TermMonths,
		QuotedPayment: quoted,
		Mode:          domain.PayStandard,
		Residual:      residual,
		Collateral:    append([]string(nil), p.Collateral...),
		CreatedAt:     now,
		LastServiced:  -1,
		Seq:           1,
	}
	events := bk.fund(ctx, d, now)

	bk.mu.Lock()
	bk.deals[id] = d
	bk.mu.Unlock()
	return cloneDeal(d), events, nil
}

// fund moves a deal from Pending to Active. Loans push cash to the account;
// finance and lease deals fund on paper only. A ledger refusal leaves the
// deal Pending for the next tick's retry.
func (bk *Book) fund(ctx context.Context, d *domain.Deal, now domain.Timestamp) []domain.Event {
	if d.Kind == domain.KindLoan {
		if err := bk.ledger.Credit(ctx, d.AccountID, d.Principal, "loan proceeds"); err != nil {
			return nil
		}
	}
	d.Status = domain.DealActive
	d.Seq++
	return []domain.Event{{
		Type:      domain.EventDealActivated,
		At:        now,
		AccountID: d.AccountID,
		Ref:       d.ID,
		Amount:    d.Principal,
	}}
}

// RetryFunding re-attempts activation of the account's pending deals.
// Runs every simulated hour until the ledger cooperates.
func (bk *Book) RetryFunding(ctx context.Context, accountID string, now domain.Timestamp) []domain.Event {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	var events []domain.Event
	for _, d := range bk.dealsForLocked(accountID) {
		if d.Status != domain.DealPending {
			continue
		}
		events = append(events, bk.fund(ctx, d, now)...)
	}
	return events
}

// ─── Payment Modes ──────────────────────────────────────────────────────────

// SetPaymentMode switches how the monthly due amount is derived, effective
// at the next servicing. A custom amount of zero is allowed and resolves to
// a deliberate missed payment each month; a custom amount between zero and
// the current minimum payment is rejected.
func (bk *Book) SetPaymentMode(accountID string, dealID uuid.UUID, mode domain.PaymentMode, customAmount decimal.Decimal) error {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	d, ok := bk.deals[dealID]
	if !ok || d.AccountID != accountID {
		return fmt.Errorf("deal %s: %w", dealID, domain.ErrDealNotFound)
	}
	if d.Status == domain.DealPaidOff {
		return fmt.Errorf("deal %s: %w", dealID, domain.ErrAlreadyPaidOff)
	}
	if d.Terminal() {
		return fmt.Errorf("deal %s is %s: %w", dealID, d.Status, domain.ErrDealTerminal)
	}
	if !mode.Valid() {
		return fmt.Errorf("payment mode %q: %w", mode, domain.ErrInvalidMode)
	}

	if mode == domain.PayCustom {
		floor := finance.MinimumPayment(d.Balance, d.AnnualRate)
		if customAmount.Sign() < 0 || (customAmount.Sign() > 0 && customAmount.LessThan(floor)) {
			return fmt.Errorf("custom amount %s under minimum payment %s: %w",
				customAmount, floor, domain.ErrInvalidMode)
		}
		d.CustomAmount = customAmount
	} else {
		d.CustomAmount = decimal.Zero
	}
	d.Mode = mode
	d.Seq++
	return nil
}

// ─── Early Payoff ───────────────────────────────────────────────────────────

// PayEarly settles the full remaining balance in one debit. Success zeroes
// the balance, releases collateral, and posts the one-time payoff bonus to
// the credit history.
func (bk *Book) PayEarly(ctx context.Context, accountID string, dealID uuid.UUID, now domain.Timestamp) ([]domain.Event, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	d, ok := bk.deals[dealID]
	if !ok || d.AccountID != accountID {
		return nil, fmt.Errorf("deal %s: %w", dealID, domain.ErrDealNotFound)
	}
	if d.Status == domain.DealPaidOff {
		return nil, fmt.Errorf("deal %s: %w", dealID, domain.ErrAlreadyPaidOff)
	}
	if d.Terminal() {
		return nil, fmt.Errorf("deal %s is %s: %w", dealID, d.Status, domain.ErrDealTerminal)
	}
	if d.Status == domain.DealPending {
		return nil, fmt.Errorf("deal %s is not yet funded: %w", dealID, domain.ErrNotActive)
	}

	amount := d.Balance
	if err := bk.ledger.Debit(ctx, d.AccountID, amount, fmt.Sprintf("early payoff of deal %s", d.ID)); err != nil {
		return nil, err
	}

	d.Balance = decimal.Zero
	d.Status = domain.DealPaidOff
	d.ClosedAt = now
	d.MissedStreak = 0
	d.Seq++
	bk.releaseCollateralLocked(ctx, d)
	bk.bureau.Record(d.AccountID, domain.ReasonEarlyPayoff, now)

	return []domain.Event{{
		Type:      domain.EventDealPaidOff,
		At:        now,
		AccountID: d.AccountID,
		Ref:       d.ID,
		Amount:    amount,
		Detail:    "early payoff",
	}}, nil
}

// ─── Monthly Servicing ──────────────────────────────────────────────────────

// ServiceMonth runs the month-boundary pass for one account. month is the
// absolute month index of the boundary; deals already serviced for that
// index are skipped, so replayed ticks are no-ops.
func (bk *Book) ServiceMonth(ctx context.Context, accountID string, month int, now domain.Timestamp) []domain.Event {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	var events []domain.Event
	for _, d := range bk.dealsForLocked(accountID) {
		if d.Status != domain.DealActive || d.LastServiced >= month {
			continue
		}
		d.LastServiced = month
		events = append(events, bk.serviceDealLocked(ctx, d, now)...)
	}
	return events
}

// serviceDealLocked settles one deal for one month: accrue interest, derive
// the due amount from the payment mode, collect, and apply.
func (bk *Book) serviceDealLocked(ctx context.Context, d *domain.Deal, now domain.Timestamp) []domain.Event {
	interest := finance.MinimumPayment(d.Balance, d.AnnualRate)
	due := dueThisMonth(d, interest)
	d.MonthsElapsed++
	d.Seq++

	if due.Sign() == 0 {
		// A zero custom amount is deliberate delinquency: the miss happens
		// without a ledger call.
		return bk.missLocked(ctx, d, now, interest)
	}
	if err := bk.ledger.Debit(ctx, d.AccountID, due, fmt.Sprintf("payment on deal %s", d.ID)); err != nil {
		return bk.missLocked(ctx, d, now, interest)
	}
	return bk.settleLocked(ctx, d, now, due, interest)
}

// dueThisMonth derives the amount to collect. Past the term (negative
// amortization overrun or a lease balloon) the full payoff is due
// regardless of mode; otherwise the mode amount, capped at the payoff so
// the final payment never overshoots.
func dueThisMonth(d *domain.Deal, interest decimal.Decimal) decimal.Decimal {
	payoff := d.Balance.Add(interest)
	if d.MonthsElapsed >= d.TermMonths {
		return payoff
	}

	var due decimal.Decimal
	switch d.Mode {
	case domain.PayMinimum:
		due = interest
	case domain.PayExtra15:
		due = d.QuotedPayment.Mul(decimal.NewFromFloat(1.5)).Round(2)
	case domain.PayExtra2:
		due = d.QuotedPayment.Mul(decimal.NewFromInt(2))
	case domain.PayCustom:
		due = d.CustomAmount
	default:
		due = d.QuotedPayment
	}
	if due.GreaterThan(payoff) {
		return payoff
	}
	return due
}

// settleLocked applies a collected payment. Paying less than accrued
// interest capitalizes the shortfall (negative amortization); paying it
// all the way down closes the deal.
func (bk *Book) settleLocked(ctx context.Context, d *domain.Deal, now domain.Timestamp, due, interest decimal.Decimal) []domain.Event {
	d.MissedStreak = 0
	negAm := due.LessThan(interest)
	if negAm {
		d.Balance = d.Balance.Add(interest.Sub(due))
	} else {
		d.Balance = d.Balance.Sub(due.Sub(interest))
	}
	if d.Balance.Sign() < 0 {
		d.Balance = decimal.Zero
	}
	bk.bureau.Record(d.AccountID, domain.ReasonOnTimePayment, now)

	events := []domain.Event{{
		Type:      domain.EventPaymentApplied,
		At:        now,
		AccountID: d.AccountID,
		Ref:       d.ID,
		Amount:    due,
		NegAm:     negAm,
	}}

	if d.Balance.LessThanOrEqual(paidOffEpsilon) {
		d.Balance = decimal.Zero
		d.Status = domain.DealPaidOff
		d.ClosedAt = now
		bk.releaseCollateralLocked(ctx, d)
		events = append(events, domain.Event{
			Type:      domain.EventDealPaidOff,
			At:        now,
			AccountID: d.AccountID,
			Ref:       d.ID,
			Detail:    "final payment",
		})
	}
	return events
}

// missLocked records a missed payment: the streak grows, unpaid interest
// capitalizes into the balance, and at the default threshold the deal
// defaults, seizing collateral if any is pledged.
func (bk *Book) missLocked(ctx context.Context, d *domain.Deal, now domain.Timestamp, interest decimal.Decimal) []domain.Event {
	d.MissedStreak++
	d.Balance = d.Balance.Add(interest)
	bk.bureau.Record(d.AccountID, domain.ReasonMissedPayment, now)

	events := []domain.Event{{
		Type:      domain.EventPaymentMissed,
		At:        now,
		AccountID: d.AccountID,
		Ref:       d.ID,
		Amount:    interest,
		Detail:    fmt.Sprintf("streak %d", d.MissedStreak),
	}}
	if d.MissedStreak < bk.cfg.DefaultThreshold {
		return events
	}

	d.Status = domain.DealDefaulted
	d.ClosedAt = now
	events = append(events, domain.Event{
		Type:      domain.EventDealDefaulted,
		At:        now,
		AccountID: d.AccountID,
		Ref:       d.ID,
		Amount:    d.Balance,
	})
	if !d.Secured() {
		return events
	}

	for _, ref := range d.Collateral {
		if _, err := bk.assets.Seize(ctx, d.AccountID, ref); err != nil {
			continue // already gone, nothing left to seize
		}
	}
	d.Status = domain.DealRepossessed
	bk.bureau.Record(d.AccountID, domain.ReasonRepossession, now)
	events = append(events, domain.Event{
		Type:      domain.EventDealRepossessed,
		At:        now,
		AccountID: d.AccountID,
		Ref:       d.ID,
		Detail:    strings.Join(d.Collateral, ","),
	})
	return events
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Deal returns a copy of the account's deal.
func (bk *Book) Deal(accountID string, dealID uuid.UUID) (domain.Deal, error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	d, ok := bk.deals[dealID]
	if !ok || d.AccountID != accountID {
		return domain.Deal{}, fmt.Errorf("deal %s: %w", dealID, domain.ErrDealNotFound)
	}
	return cloneDeal(d), nil
}

// DealsFor returns copies of the account's deals in creation order.
func (bk *Book) DealsFor(accountID string) []domain.Deal {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	live := bk.dealsForLocked(accountID)
	out := make([]domain.Deal, 0, len(live))
	for _, d := range live {
		out = append(out, cloneDeal(d))
	}
	return out
}

// DebtFor sums the account's live deal balances. Pending deals count: an
// approved-but-unfunded deal is already committed.
func (bk *Book) DebtFor(accountID string) decimal.Decimal {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	debt := decimal.Zero
	for _, d := range bk.deals {
		if d.AccountID == accountID && !d.Terminal() {
			debt = debt.Add(d.Balance)
		}
	}
	return debt
}

// Counts returns the number of pending and active deals, for gauges.
func (bk *Book) Counts() (pending, active int) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	for _, d := range bk.deals {
		switch d.Status {
		case domain.DealPending:
			pending++
		case domain.DealActive:
			active++
		}
	}
	return pending, active
}

// ─── Persistence ────────────────────────────────────────────────────────────

// Deals returns copies of every deal, for persistence sweeps.
func (bk *Book) Deals() []domain.Deal {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	out := make([]domain.Deal, 0, len(bk.deals))
	for _, d := range bk.deals {
		out = append(out, cloneDeal(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// LoadDeal restores a deal from a snapshot, ignoring stale replays (lower
// or equal seq than what is already live).
func (bk *Book) LoadDeal(d domain.Deal) {
	bk.mu.Lock()
	defer bk.mu.Unlock()

	if cur, ok := bk.deals[d.ID]; ok && cur.Seq >= d.Seq {
		return
	}
	copied := cloneDeal(&d)
	bk.deals[d.ID] = &copied
}

// ─── Internal Helpers ───────────────────────────────────────────────────────

// dealsForLocked returns the account's deal pointers in creation order
// (ID as tie-break for same-hour creations).
func (bk *Book) dealsForLocked(accountID string) []*domain.Deal {
	var out []*domain.Deal
	for _, d := range bk.deals {
		if d.AccountID == accountID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// releaseCollateralLocked lifts the holds on a closed deal's collateral.
// Best effort: a ref that already left the registry has nothing to release.
func (bk *Book) releaseCollateralLocked(ctx context.Context, d *domain.Deal) {
	for _, ref := range d.Collateral {
		_ = bk.assets.ReleaseHold(ctx, d.AccountID, ref)
	}
}

func releaseHolds(ctx context.Context, reg domain.AssetRegistry, accountID string, refs []string) {
	for _, ref := range refs {
		_ = reg.ReleaseHold(ctx, accountID, ref)
	}
}

func cloneDeal(d *domain.Deal) domain.Deal {
	out := *d
	out.Collateral = append([]string(nil), d.Collateral...)
	return out
}
