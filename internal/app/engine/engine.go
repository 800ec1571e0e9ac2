// Package engine composes the simulation. It owns the account set and the
// clock position, serializes work per account with striped locks, and fronts
// every player operation: deals, searches, listings, credit reports, quotes.
//
// Time advances in whole simulated hours. AdvanceTick(ts) processes every
// hour in (lastTick, ts] exactly once: hourly work is funding retries and
// offer-expiry sweeps; on month boundaries deals are serviced and market
// queues advance. Replayed ticks (ts ≤ lastTick) are no-ops, which makes the
// scheduler and the admin endpoint safe to race.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/catalog"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/credit"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/deals"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/finance"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/market"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/observability"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/rng"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the engine.
type Config struct {
	// HoursPerMonth sets the month boundary interval in simulated hours.
	HoursPerMonth int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{HoursPerMonth: domain.DefaultHoursPerMonth}
}

// Deps wires the engine's collaborators. Book, Broker, Bureau, Ledger and
// Assets are required; Catalog, Store, Notifier and Tracer are optional.
type Deps struct {
	Log      *logrus.Logger
	Book     *deals.Book
	Broker   *market.Broker
	Bureau   *credit.Bureau
	Ledger   domain.Ledger
	Assets   domain.AssetRegistry
	Catalog  *catalog.Catalog
	Store    domain.Store
	Notifier domain.Notifier
	Tracer   *observability.Tracer
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine is the simulation orchestrator.
type Engine struct {
	cfg    Config
	log    *logrus.Logger
	tracer *observability.Tracer

	book    *deals.Book
	broker  *market.Broker
	bureau  *credit.Bureau
	ledger  domain.Ledger
	assets  domain.AssetRegistry
	catalog *catalog.Catalog
	store   domain.Store
	notify  domain.Notifier

	// tickMu serializes whole AdvanceTick calls; mu guards the maps and the
	// clock position. Account locks stripe all per-account mutations.
	tickMu sync.Mutex
	mu     sync.Mutex

	accounts   map[string]domain.Account
	locks      map[string]*sync.Mutex
	lastRating map[string]domain.Rating
	lastTick   domain.Timestamp
}

// New builds an engine over the given collaborators.
func New(cfg Config, deps Deps) *Engine {
	if cfg.HoursPerMonth <= 0 {
		cfg.HoursPerMonth = domain.DefaultHoursPerMonth
	}
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer(observability.DefaultTracerConfig())
	}
	return &Engine{
		cfg:        cfg,
		log:        deps.Log,
		tracer:     deps.Tracer,
		book:       deps.Book,
		broker:     deps.Broker,
		bureau:     deps.Bureau,
		ledger:     deps.Ledger,
		assets:     deps.Assets,
		catalog:    deps.Catalog,
		store:      deps.Store,
		notify:     deps.Notifier,
		accounts:   make(map[string]domain.Account),
		locks:      make(map[string]*sync.Mutex),
		lastRating: make(map[string]domain.Rating),
		lastTick:   -1,
	}
}

// Restore loads a persisted snapshot. Call once, before the first tick.
func (e *Engine) Restore(snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	e.mu.Lock()
	for _, a := range snap.Accounts {
		e.accounts[a.ID] = a
	}
	e.lastTick = snap.Tick
	e.mu.Unlock()

	for _, p := range snap.Profiles {
		e.bureau.Load(p)
	}
	for _, d := range snap.Deals {
		e.book.LoadDeal(d)
	}
	for _, s := range snap.Searches {
		e.broker.LoadSearch(s)
	}
	for _, l := range snap.Listings {
		e.broker.LoadListing(l)
	}
	for id, b := range snap.Balances {
		e.ledger.Load(id, b)
	}
	for id, as := range snap.Assets {
		e.assets.LoadAssets(id, as)
	}

	// Prime the rating baselines so the first boundary after a restart only
	// reports genuine shifts, not the gap left by the restart itself.
	ctx := context.Background()
	for _, a := range snap.Accounts {
		av, err := e.assets.TotalValue(ctx, a.ID)
		if err != nil {
			continue
		}
		rating := credit.RatingFor(e.bureau.Score(a.ID, av, e.book.DebtFor(a.ID)))
		e.mu.Lock()
		e.lastRating[a.ID] = rating
		e.mu.Unlock()
	}
	e.refreshGauges()
}

// ─── Clock ──────────────────────────────────────────────────────────────────

// LastTick returns the last processed simulated hour, -1 before the first.
func (e *Engine) LastTick() domain.Timestamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTick
}

// now is the timestamp operations stamp onto events between ticks.
func (e *Engine) now() domain.Timestamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastTick < 0 {
		return 0
	}
	return e.lastTick
}

// AdvanceHours advances the clock by the given number of simulated hours.
func (e *Engine) AdvanceHours(ctx context.Context, hours int64) []domain.Event {
	if hours <= 0 {
		return nil
	}
	return e.AdvanceTick(ctx, e.LastTick()+domain.Timestamp(hours))
}

// AdvanceTick processes every simulated hour in (lastTick, ts] and returns
// the ordered event list. A ts at or before lastTick is a replay: no-op,
// empty list.
func (e *Engine) AdvanceTick(ctx context.Context, ts domain.Timestamp) []domain.Event {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if ts <= e.LastTick() {
		return nil
	}

	span := e.tracer.StartSpan(ctx, "advance_tick", map[string]string{"to": ts.String()})
	start := time.Now()

	var events []domain.Event
	for h := e.LastTick() + 1; h <= ts; h++ {
		events = append(events, e.advanceHour(ctx, h)...)
		observability.HoursProcessed.Inc()
		e.mu.Lock()
		e.lastTick = h
		e.mu.Unlock()
	}

	e.mirror(ctx, events)
	e.persistAll(ts)
	e.refreshGauges()
	observability.TickDuration.Observe(time.Since(start).Seconds())
	e.tracer.EndSpan(span, nil)
	e.log.WithFields(logrus.Fields{
		"tick":   ts.String(),
		"events": len(events),
	}).Debug("tick advanced")
	return events
}

// advanceHour runs one simulated hour across every account in sorted order,
// so identical state always yields identical event order.
func (e *Engine) advanceHour(ctx context.Context, h domain.Timestamp) []domain.Event {
	monthStart := h.IsMonthStart(e.cfg.HoursPerMonth)
	month := h.Month(e.cfg.HoursPerMonth)

	var events []domain.Event
	for _, id := range e.accountIDs() {
		unlock := e.lockAccount(id)
		events = append(events, e.book.RetryFunding(ctx, id, h)...)
		events = append(events, e.broker.SweepOffers(id, h)...)
		if monthStart {
			events = append(events, e.book.ServiceMonth(ctx, id, month, h)...)
			events = append(events, e.broker.AdvanceMonth(id, h)...)
			if ev, ok := e.ratingShift(ctx, id, h); ok {
				events = append(events, ev)
			}
		}
		unlock()
	}
	return events
}

// ratingShift compares the account's rating tier against the last boundary.
// The first observation only primes the baseline.
func (e *Engine) ratingShift(ctx context.Context, accountID string, now domain.Timestamp) (domain.Event, bool) {
	assetsValue, err := e.assets.TotalValue(ctx, accountID)
	if err != nil {
		return domain.Event{}, false // transient, next boundary retries
	}
	rating := credit.RatingFor(e.bureau.Score(accountID, assetsValue, e.book.DebtFor(accountID)))

	e.mu.Lock()
	prev, seen := e.lastRating[accountID]
	e.lastRating[accountID] = rating
	e.mu.Unlock()

	if !seen || prev == rating {
		return domain.Event{}, false
	}
	return domain.Event{
		Type:      domain.EventCreditChanged,
		At:        now,
		AccountID: accountID,
		Detail:    fmt.Sprintf("%s to %s", prev, rating),
	}, true
}

// ─── Accounts ───────────────────────────────────────────────────────────────

// RegisterAccount creates an account. Name must be unique; PassHash is the
// caller's already-hashed credential (the engine never sees passphrases).
func (e *Engine) RegisterAccount(ctx context.Context, name, email, passHash string) (domain.Account, error) {
	if name == "" {
		return domain.Account{}, fmt.Errorf("account name is empty: %w", domain.ErrInvalidMode)
	}

	e.mu.Lock()
	for _, a := range e.accounts {
		if a.Name == name {
			e.mu.Unlock()
			return domain.Account{}, fmt.Errorf("account %q: %w", name, domain.ErrAccountExists)
		}
	}
	a := domain.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		PassHash:  passHash,
		CreatedAt: time.Now().UTC(),
	}
	e.accounts[a.ID] = a
	total := len(e.accounts)
	e.mu.Unlock()

	e.saveAccount(a)
	observability.AccountsRegistered.Set(float64(total))
	e.log.WithFields(logrus.Fields{"account": a.ID, "name": name}).Info("account registered")
	return a, nil
}

// Account returns the account by ID.
func (e *Engine) Account(accountID string) (domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.accounts[accountID]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %q: %w", accountID, domain.ErrAccountNotFound)
	}
	return a, nil
}

// AccountByName returns the account by its unique name, for login.
func (e *Engine) AccountByName(name string) (domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return domain.Account{}, fmt.Errorf("account %q: %w", name, domain.ErrAccountNotFound)
}

// Accounts returns every account in ID order.
func (e *Engine) Accounts() []domain.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Account, 0, len(e.accounts))
	for _, a := range e.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AccountEmail resolves an account's notification address. Implements the
// notify directory contract.
func (e *Engine) AccountEmail(accountID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.accounts[accountID]
	if !ok || a.Email == "" {
		return "", false
	}
	return a.Email, true
}

func (e *Engine) requireAccount(accountID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.accounts[accountID]; !ok {
		return fmt.Errorf("account %q: %w", accountID, domain.ErrAccountNotFound)
	}
	return nil
}

// ─── Deal Operations ────────────────────────────────────────────────────────

// CreateDeal opens a financing deal for the account.
func (e *Engine) CreateDeal(ctx context.Context, p deals.CreateParams) (domain.Deal, error) {
	span := e.tracer.StartSpan(ctx, "create_deal", map[string]string{"account": p.AccountID})
	d, err := e.createDeal(ctx, p)
	e.tracer.EndSpan(span, err)
	return d, err
}

func (e *Engine) createDeal(ctx context.Context, p deals.CreateParams) (domain.Deal, error) {
	if err := e.requireAccount(p.AccountID); err != nil {
		return domain.Deal{}, err
	}
	unlock := e.lockAccount(p.AccountID)
	defer unlock()

	d, events, err := e.book.Create(ctx, p, e.now())
	if err != nil {
		return domain.Deal{}, err
	}
	e.mirror(ctx, events)
	e.persistAccount(ctx, p.AccountID)
	return d, nil
}

// SetPaymentMode changes how a deal's monthly due amount is derived,
// effective at the next month boundary.
func (e *Engine) SetPaymentMode(ctx context.Context, accountID string, dealID uuid.UUID, mode domain.PaymentMode, customAmount decimal.Decimal) (domain.Deal, error) {
	if err := e.requireAccount(accountID); err != nil {
		return domain.Deal{}, err
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	if err := e.book.SetPaymentMode(accountID, dealID, mode, customAmount); err != nil {
		return domain.Deal{}, err
	}
	d, err := e.book.Deal(accountID, dealID)
	if err != nil {
		return domain.Deal{}, err
	}
	e.saveDeal(d)
	return d, nil
}

// PayEarly settles a deal's full balance immediately.
func (e *Engine) PayEarly(ctx context.Context, accountID string, dealID uuid.UUID) (domain.Deal, error) {
	span := e.tracer.StartSpan(ctx, "pay_early", map[string]string{"account": accountID})
	d, err := e.payEarly(ctx, accountID, dealID)
	e.tracer.EndSpan(span, err)
	return d, err
}

func (e *Engine) payEarly(ctx context.Context, accountID string, dealID uuid.UUID) (domain.Deal, error) {
	if err := e.requireAccount(accountID); err != nil {
		return domain.Deal{}, err
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	events, err := e.book.PayEarly(ctx, accountID, dealID, e.now())
	if err != nil {
		return domain.Deal{}, err
	}
	e.mirror(ctx, events)
	e.persistAccount(ctx, accountID)
	return e.book.Deal(accountID, dealID)
}

// Deal returns one deal of the account.
func (e *Engine) Deal(accountID string, dealID uuid.UUID) (domain.Deal, error) {
	return e.book.Deal(accountID, dealID)
}

// Deals returns the account's deals in creation order.
func (e *Engine) Deals(accountID string) []domain.Deal {
	return e.book.DealsFor(accountID)
}

// ─── Market Operations ──────────────────────────────────────────────────────

// StartSearchParams carries a buy-side search request. When CatalogRef is
// set the base price is resolved from the equipment catalog and BasePrice
// is ignored.
type StartSearchParams struct {
	AccountID  string
	Tier       domain.SearchTier
	Spec       domain.DesiredSpec
	BasePrice  decimal.Decimal
	CatalogRef string
}

// StartSearch opens an agent search for equipment.
func (e *Engine) StartSearch(ctx context.Context, p StartSearchParams) (domain.SearchRequest, error) {
	span := e.tracer.StartSpan(ctx, "start_search", map[string]string{"account": p.AccountID})
	s, err := e.startSearch(ctx, p)
	e.tracer.EndSpan(span, err)
	return s, err
}

func (e *Engine) startSearch(ctx context.Context, p StartSearchParams) (domain.SearchRequest, error) {
	if err := e.requireAccount(p.AccountID); err != nil {
		return domain.SearchRequest{}, err
	}

	base := p.BasePrice
	if p.CatalogRef != "" {
		item, err := e.catalogItem(p.CatalogRef)
		if err != nil {
			return domain.SearchRequest{}, err
		}
		base = item.BasePrice
	}

	unlock := e.lockAccount(p.AccountID)
	defer unlock()

	s, err := e.broker.StartSearch(ctx, p.AccountID, p.Tier, p.Spec, base, e.now())
	if err != nil {
		return domain.SearchRequest{}, err
	}
	e.saveSearch(s)
	e.persistAccount(ctx, p.AccountID)
	return s, nil
}

// CancelSearch abandons an open search. The fee is not refunded.
func (e *Engine) CancelSearch(ctx context.Context, accountID string, id uuid.UUID) error {
	if err := e.requireAccount(accountID); err != nil {
		return err
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	if err := e.broker.CancelSearch(accountID, id, e.now()); err != nil {
		return err
	}
	if s, err := e.broker.Search(accountID, id); err == nil {
		e.saveSearch(s)
	}
	return nil
}

// ListForSale puts an owned asset on the market through an agent.
func (e *Engine) ListForSale(ctx context.Context, accountID, assetRef string, agent domain.AgentTier, price domain.PriceTier) (domain.SaleListing, error) {
	span := e.tracer.StartSpan(ctx, "list_for_sale", map[string]string{"account": accountID})
	l, err := e.listForSale(ctx, accountID, assetRef, agent, price)
	e.tracer.EndSpan(span, err)
	return l, err
}

func (e *Engine) listForSale(ctx context.Context, accountID, assetRef string, agent domain.AgentTier, price domain.PriceTier) (domain.SaleListing, error) {
	if err := e.requireAccount(accountID); err != nil {
		return domain.SaleListing{}, err
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	l, err := e.broker.ListForSale(ctx, accountID, assetRef, agent, price, e.now())
	if err != nil {
		return domain.SaleListing{}, err
	}
	e.saveListing(l)
	e.persistAccount(ctx, accountID)
	return l, nil
}

// RespondOffer accepts or declines a listing's pending offer. Acceptance
// settles the sale: the asset leaves the registry and the proceeds are
// credited.
func (e *Engine) RespondOffer(ctx context.Context, accountID string, id uuid.UUID, accept bool) (domain.SaleListing, error) {
	if err := e.requireAccount(accountID); err != nil {
		return domain.SaleListing{}, err
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	events, err := e.broker.RespondOffer(ctx, accountID, id, accept, e.now())
	e.mirror(ctx, events) // expiry events surface even when the call fails
	if err == nil {
		if accept {
			observability.OffersAccepted.Inc()
		} else {
			observability.OffersDeclined.Inc()
		}
	}
	e.persistAccount(ctx, accountID)
	if err != nil {
		return domain.SaleListing{}, err
	}
	return e.broker.Listing(accountID, id)
}

// CancelListing withdraws a listing. The commission is not refunded; a
// pending offer is discarded.
func (e *Engine) CancelListing(ctx context.Context, accountID string, id uuid.UUID) error {
	if err := e.requireAccount(accountID); err != nil {
		return err
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	if err := e.broker.CancelListing(accountID, id, e.now()); err != nil {
		return err
	}
	if l, err := e.broker.Listing(accountID, id); err == nil {
		e.saveListing(l)
	}
	return nil
}

// Search returns one search of the account.
func (e *Engine) Search(accountID string, id uuid.UUID) (domain.SearchRequest, error) {
	return e.broker.Search(accountID, id)
}

// Searches returns the account's searches in creation order.
func (e *Engine) Searches(accountID string) []domain.SearchRequest {
	return e.broker.SearchesFor(accountID)
}

// Listing returns one listing of the account.
func (e *Engine) Listing(accountID string, id uuid.UUID) (domain.SaleListing, error) {
	return e.broker.Listing(accountID, id)
}

// Listings returns the account's listings in creation order.
func (e *Engine) Listings(accountID string) []domain.SaleListing {
	return e.broker.ListingsFor(accountID)
}

// ─── Credit, Quotes, Holdings ───────────────────────────────────────────────

// CreditReport assembles the account's score, rating, trend and history tail.
func (e *Engine) CreditReport(ctx context.Context, accountID string, tail int) (domain.CreditReport, error) {
	if err := e.requireAccount(accountID); err != nil {
		return domain.CreditReport{}, err
	}
	assetsValue, err := e.assets.TotalValue(ctx, accountID)
	if err != nil {
		return domain.CreditReport{}, fmt.Errorf("asset registry: %w", err)
	}
	return e.bureau.Report(accountID, assetsValue, e.book.DebtFor(accountID), tail), nil
}

// TradeInQuote prices an owned asset for trade-in. Advisory only: quotes are
// drawn from the interactive stream and nothing is committed.
func (e *Engine) TradeInQuote(ctx context.Context, accountID, ref string, sameBrand bool) (decimal.Decimal, error) {
	if err := e.requireAccount(accountID); err != nil {
		return decimal.Zero, err
	}
	a, err := e.assets.Get(ctx, accountID, ref)
	if err != nil {
		return decimal.Zero, err
	}
	return finance.TradeInValue(rng.Interactive(), a.Value, sameBrand, a.Damage, a.Wear), nil
}

// AddAsset registers equipment under the account.
func (e *Engine) AddAsset(ctx context.Context, accountID string, a domain.Asset) error {
	if err := e.requireAccount(accountID); err != nil {
		return err
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	if a.Ref == "" || a.Value.Sign() <= 0 {
		return fmt.Errorf("asset needs a ref and a positive value: %w", domain.ErrInvalidMode)
	}
	if err := e.assets.Add(ctx, accountID, a); err != nil {
		return err
	}
	e.persistAccount(ctx, accountID)
	return nil
}

// Assets returns the account's holdings in ref order.
func (e *Engine) Assets(ctx context.Context, accountID string) ([]domain.Asset, error) {
	if err := e.requireAccount(accountID); err != nil {
		return nil, err
	}
	return e.assets.List(ctx, accountID)
}

// Balance returns the account's ledger balance.
func (e *Engine) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if err := e.requireAccount(accountID); err != nil {
		return decimal.Zero, err
	}
	return e.ledger.Balance(ctx, accountID)
}

// Deposit credits the account. Host-side funding, not a player operation.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if err := e.requireAccount(accountID); err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("deposit must be positive: %w", domain.ErrInvalidMode)
	}
	unlock := e.lockAccount(accountID)
	defer unlock()

	if err := e.ledger.Credit(ctx, accountID, amount, "deposit"); err != nil {
		return err
	}
	e.persistAccount(ctx, accountID)
	return nil
}

// CatalogItems lists the equipment catalog, empty when disabled.
func (e *Engine) CatalogItems() []catalog.Item {
	if e.catalog == nil {
		return nil
	}
	return e.catalog.Items()
}

func (e *Engine) catalogItem(ref string) (catalog.Item, error) {
	if e.catalog == nil {
		return catalog.Item{}, fmt.Errorf("no equipment catalog configured: %w", domain.ErrIneligible)
	}
	item, ok := e.catalog.Get(ref)
	if !ok {
		return catalog.Item{}, fmt.Errorf("catalog item %q: %w", ref, domain.ErrIneligible)
	}
	return item, nil
}

// ─── Status ─────────────────────────────────────────────────────────────────

// Status is the admin-facing engine summary.
type Status struct {
	LastTick     domain.Timestamp `json:"last_tick"`
	Accounts     int              `json:"accounts"`
	PendingDeals int              `json:"pending_deals"`
	ActiveDeals  int              `json:"active_deals"`
	OpenSearches int              `json:"open_searches"`
	OpenListings int              `json:"open_listings"`
	Spans        int              `json:"trace_spans"`
}

// Status reports current engine counts.
func (e *Engine) Status() Status {
	pending, active := e.book.Counts()
	searches, listings := e.broker.Counts()
	e.mu.Lock()
	accounts := len(e.accounts)
	last := e.lastTick
	e.mu.Unlock()
	return Status{
		LastTick:     last,
		Accounts:     accounts,
		PendingDeals: pending,
		ActiveDeals:  active,
		OpenSearches: searches,
		OpenListings: listings,
		Spans:        e.tracer.SpanCount(),
	}
}

// ─── Internal Helpers ───────────────────────────────────────────────────────

// lockAccount acquires the account's stripe and returns its release.
func (e *Engine) lockAccount(accountID string) func() {
	e.mu.Lock()
	l, ok := e.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[accountID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (e *Engine) accountIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.accounts))
	for id := range e.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mirror feeds events to metrics and the notifier.
func (e *Engine) mirror(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		observability.RecordEvent(ev)
		if e.notify != nil {
			e.notify.Notify(ctx, ev)
		}
	}
}

func (e *Engine) refreshGauges() {
	pending, active := e.book.Counts()
	searches, listings := e.broker.Counts()
	e.mu.Lock()
	accounts := len(e.accounts)
	e.mu.Unlock()
	observability.SetQueueGauges(pending, active, searches, listings, accounts)
}

// ─── Persistence ────────────────────────────────────────────────────────────
// Saves are best-effort: a refused write is logged and retried by the next
// sweep, since every record carries its seq.

func (e *Engine) saveAccount(a domain.Account) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveAccount(a); err != nil {
		e.log.WithError(err).WithField("account", a.ID).Warn("persist account")
	}
}

func (e *Engine) saveDeal(d domain.Deal) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveDeal(d); err != nil {
		e.log.WithError(err).WithField("deal", d.ID).Warn("persist deal")
	}
}

func (e *Engine) saveSearch(s domain.SearchRequest) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSearch(s); err != nil {
		e.log.WithError(err).WithField("search", s.ID).Warn("persist search")
	}
}

func (e *Engine) saveListing(l domain.SaleListing) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveListing(l); err != nil {
		e.log.WithError(err).WithField("listing", l.ID).Warn("persist listing")
	}
}

// persistAccount writes everything one operation may have touched for the
// account: deals, profile, balance, assets.
func (e *Engine) persistAccount(ctx context.Context, accountID string) {
	if e.store == nil {
		return
	}
	for _, d := range e.book.DealsFor(accountID) {
		e.saveDeal(d)
	}
	if err := e.store.SaveProfile(e.bureau.Profile(accountID)); err != nil {
		e.log.WithError(err).WithField("account", accountID).Warn("persist profile")
	}
	if b, err := e.ledger.Balance(ctx, accountID); err == nil {
		if err := e.store.SaveBalance(accountID, b); err != nil {
			e.log.WithError(err).WithField("account", accountID).Warn("persist balance")
		}
	}
	if as, err := e.assets.List(ctx, accountID); err == nil {
		if err := e.store.SaveAssets(accountID, as); err != nil {
			e.log.WithError(err).WithField("account", accountID).Warn("persist assets")
		}
	}
}

// persistAll sweeps the full state after a tick.
func (e *Engine) persistAll(ts domain.Timestamp) {
	if e.store == nil {
		return
	}
	for _, p := range e.bureau.Profiles() {
		if err := e.store.SaveProfile(p); err != nil {
			e.log.WithError(err).Warn("persist profile")
		}
	}
	for _, d := range e.book.Deals() {
		e.saveDeal(d)
	}
	for _, s := range e.broker.Searches() {
		e.saveSearch(s)
	}
	for _, l := range e.broker.Listings() {
		e.saveListing(l)
	}
	for id, b := range e.ledger.Balances() {
		if err := e.store.SaveBalance(id, b); err != nil {
			e.log.WithError(err).WithField("account", id).Warn("persist balance")
		}
	}
	for id, as := range e.assets.Dump() {
		if err := e.store.SaveAssets(id, as); err != nil {
			e.log.WithError(err).WithField("account", id).Warn("persist assets")
		}
	}
	if err := e.store.SaveTick(ts); err != nil {
		e.log.WithError(err).Warn("persist tick")
	}
}
