// Package market implements the tiered agent marketplace: buy-side search
// requests and sell-side sale listings.
//
// Both queues run the same machine. Creation charges a fee up front
// (non-refundable, always, including on cancel) and draws a delay in months
// from the tier's range. Month boundaries count the delay down; at zero a
// single probabilistic resolution rolls against the tier's success rate and
// draws an outcome from the tier's range. Every draw comes off a stream
// seeded by the item's UUID plus a purpose label, so re-simulating a
// persisted item replays the identical outcome.
package market

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/rng"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the broker.
type Config struct {
	// OfferExpiryHours is how long a pending offer stays open, in simulated
	// hours, before it lapses as declined.
	OfferExpiryHours int

	// MaxOfferRetries caps re-rolls on a listing. Failed resolution rolls,
	// declined offers, and expired offers all draw from this one budget;
	// exceeding it expires the listing permanently.
	MaxOfferRetries int

	// EarlySearchChance is the per-month probability that an open search
	// resolves successfully ahead of its TTL. Zero disables early hits.
	EarlySearchChance float64

	// MaxFoundAgeMonths bounds the age of synthesized finds when the
	// desired spec does not set its own ceiling.
	MaxFoundAgeMonths int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		OfferExpiryHours:  48,
		MaxOfferRetries:   3,
		EarlySearchChance: 0.10,
		MaxFoundAgeMonths: 120,
	}
}

// ─── Broker ─────────────────────────────────────────────────────────────────

// Broker owns both marketplace queues. Thread-safe; the engine additionally
// serializes calls per account.
type Broker struct {
	mu  sync.RWMutex
	cfg Config

	ledger    domain.Ledger
	assets    domain.AssetRegistry
	condition domain.Depreciator

	searches map[uuid.UUID]*domain.SearchRequest
	listings map[uuid.UUID]*domain.SaleListing
}

// NewBroker creates a broker against the given collaborators.
func NewBroker(cfg Config, ledger domain.Ledger, assets domain.AssetRegistry, condition domain.Depreciator) *Broker {
	if cfg.OfferExpiryHours <= 0 {
		cfg.OfferExpiryHours = 48
	}
	if cfg.MaxOfferRetries <= 0 {
		cfg.MaxOfferRetries = 3
	}
	if cfg.EarlySearchChance < 0 {
		cfg.EarlySearchChance = 0
	}
	if cfg.EarlySearchChance > 1 {
		cfg.EarlySearchChance = 1
	}
	if cfg.MaxFoundAgeMonths <= 0 {
		cfg.MaxFoundAgeMonths = 120
	}
	return &Broker{
		cfg:       cfg,
		ledger:    ledger,
		assets:    assets,
		condition: condition,
		searches:  make(map[uuid.UUID]*domain.SearchRequest),
		listings:  make(map[uuid.UUID]*domain.SaleListing),
	}
}

// ─── Buy Side: Search Requests ──────────────────────────────────────────────

// StartSearch opens a tiered agent search. The fee is debited immediately
// and never refunded; the TTL is drawn from the tier's delay range.
func (b *Broker) StartSearch(ctx context.Context, accountID string, tier domain.SearchTier, spec domain.DesiredSpec, basePrice decimal.Decimal, now domain.Timestamp) (domain.SearchRequest, error) {
	if !tier.Valid() {
		return domain.SearchRequest{}, fmt.Errorf("search tier %q: %w", tier, domain.ErrInvalidMode)
	}
	if basePrice.Sign() <= 0 {
		return domain.SearchRequest{}, fmt.Errorf("base price %s: %w", basePrice, domain.ErrBelowMinimumAmount)
	}

	p := searchTable[tier]
	id := uuid.New()
	fee := basePrice.Mul(decimal.NewFromFloat(p.feeFrac)).Round(2)
	memo := fmt.Sprintf("agent search fee (%s)", tier)
	if err := b.ledger.Debit(ctx, accountID, fee, memo); err != nil {
		return domain.SearchRequest{}, err
	}

	s := &domain.SearchRequest{
		ID:        id,
		AccountID: accountID,
		Tier:      tier,
		Spec:      spec,
		BasePrice: basePrice,
		Fee:       fee,
		Status:    domain.SearchOpen,
		TTLMonths: rng.IntBetween(rng.Stream(id, "search.ttl", 0), p.delayLo, p.delayHi),
		CreatedAt: now,
		Seq:       1,
	}

	b.mu.Lock()
	b.searches[id] = s
	b.mu.Unlock()
	return cloneSearch(s), nil
}

// CancelSearch stops an open search. The fee is kept.
func (b *Broker) CancelSearch(accountID string, id uuid.UUID, now domain.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.searches[id]
	if !ok || s.AccountID != accountID {
		return fmt.Errorf("search %s: %w", id, domain.ErrSearchNotFound)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("search %s is %s: %w", id, s.Status, domain.ErrNotActive)
	}
	s.Status = domain.SearchCancelled
	s.ResolvedAt = now
	s.Seq++
	return nil
}

// advanceSearchLocked runs one month of life for an open search: an early
// success roll, the TTL decrement, and the forced resolution at zero.
func (b *Broker) advanceSearchLocked(s *domain.SearchRequest, now domain.Timestamp) []domain.Event {
	if b.cfg.EarlySearchChance > 0 &&
		rng.Chance(rng.Stream(s.ID, "search.early", s.TTLMonths), b.cfg.EarlySearchChance) {
		return b.resolveSearchLocked(s, now, true)
	}

	s.TTLMonths--
	s.Seq++
	if s.TTLMonths > 0 {
		return nil
	}
	hit := rng.Chance(rng.Stream(s.ID, "search.resolve", 0), searchTable[s.Tier].success)
	return b.resolveSearchLocked(s, now, hit)
}

// resolveSearchLocked settles a search exactly once. No refund on failure.
func (b *Broker) resolveSearchLocked(s *domain.SearchRequest, now domain.Timestamp, hit bool) []domain.Event {
	s.ResolvedAt = now
	s.Seq++
	if !hit {
		s.Status = domain.SearchFailed
		return []domain.Event{{
			Type:      domain.EventSearchResolved,
			At:        now,
			AccountID: s.AccountID,
			Ref:       s.ID,
			Detail:    "failed",
		}}
	}

	s.Status = domain.SearchSucceeded
	s.Found = b.synthesizeFind(s)
	return []domain.Event{{
		Type:      domain.EventSearchResolved,
		At:        now,
		AccountID: s.AccountID,
		Ref:       s.ID,
		Amount:    s.Found.Price,
		Detail:    "succeeded",
	}}
}

// synthesizeFind builds the found item: price discounted off base by the
// tier's range, condition from the depreciation model at a drawn age.
func (b *Broker) synthesizeFind(s *domain.SearchRequest) *domain.FoundItem {
	p := searchTable[s.Tier]
	discount := rng.Uniform(rng.Stream(s.ID, "search.discount", 0), p.discountLo, p.discountHi)
	price := s.BasePrice.Mul(decimal.NewFromFloat(1 - discount)).Round(2)

	ageHi := b.cfg.MaxFoundAgeMonths
	if s.Spec.MaxAgeMonths > 0 && s.Spec.MaxAgeMonths < ageHi {
		ageHi = s.Spec.MaxAgeMonths
	}
	age := rng.IntBetween(rng.Stream(s.ID, "search.age", 0), 1, ageHi)
	damage, wear := b.condition.Condition(rng.Seed(s.ID, "search.condition", 0), age)
	if s.Spec.MaxWear > 0 && wear > s.Spec.MaxWear {
		wear = s.Spec.MaxWear
	}
	return &domain.FoundItem{Price: price, AgeMonths: age, Damage: damage, Wear: wear}
}

// ─── Sell Side: Sale Listings ───────────────────────────────────────────────

// ListForSale queues an owned, unpledged asset with a sale agent. The
// commission is debited immediately; the private tier is fee-exempt.
func (b *Broker) ListForSale(ctx context.Context, accountID, assetRef string, agent domain.AgentTier, price domain.PriceTier, now domain.Timestamp) (domain.SaleListing, error) {
	if !agent.Valid() {
		return domain.SaleListing{}, fmt.Errorf("agent tier %q: %w", agent, domain.ErrInvalidMode)
	}
	if !price.Valid() {
		return domain.SaleListing{}, fmt.Errorf("price tier %q: %w", price, domain.ErrInvalidMode)
	}

	asset, err := b.assets.Get(ctx, accountID, assetRef)
	if err != nil {
		return domain.SaleListing{}, err
	}
	if asset.Held {
		return domain.SaleListing{}, fmt.Errorf("asset %q is pledged collateral: %w", assetRef, domain.ErrIneligible)
	}

	b.mu.Lock()
	if other := b.openListingForLocked(accountID, assetRef); other != nil {
		b.mu.Unlock()
		return domain.SaleListing{}, fmt.Errorf("asset %q on listing %s: %w", assetRef, other.ID, domain.ErrAlreadyListed)
	}
	b.mu.Unlock()

	p := agentTable[agent]
	id := uuid.New()
	fee := asset.Value.Mul(decimal.NewFromFloat(p.feeFrac)).Round(2)
	if fee.Sign() > 0 {
		memo := fmt.Sprintf("sale commission (%s)", agent)
		if err := b.ledger.Debit(ctx, accountID, fee, memo); err != nil {
			return domain.SaleListing{}, err
		}
	}

	l := &domain.SaleListing{
		ID:          id,
		AccountID:   accountID,
		AssetRef:    assetRef,
		AgentTier:   agent,
		PriceTier:   price,
		AskPrice:    asset.Value,
		Fee:         fee,
		Status:      domain.ListingOpen,
		DelayMonths: rng.IntBetween(rng.Stream(id, "listing.delay", 0), p.delayLo, p.delayHi),
		CreatedAt:   now,
		Seq:         1,
	}

	b.mu.Lock()
	b.listings[id] = l
	b.mu.Unlock()
	return cloneListing(l), nil
}

// RespondOffer accepts or declines the pending offer. Accept removes the
// asset and credits the proceeds; decline consumes a retry and relists.
// Responding to a lapsed offer runs the expiry path and reports it.
func (b *Broker) RespondOffer(ctx context.Context, accountID string, id uuid.UUID, accept bool, now domain.Timestamp) ([]domain.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.listings[id]
	if !ok || l.AccountID != accountID {
		return nil, fmt.Errorf("listing %s: %w", id, domain.ErrListingNotFound)
	}
	if l.Status.Terminal() {
		return nil, fmt.Errorf("listing %s is %s: %w", id, l.Status, domain.ErrNotActive)
	}
	if l.Offer == nil {
		return nil, fmt.Errorf("listing %s: %w", id, domain.ErrNoOffer)
	}
	if l.Offer.Expired(now) {
		// Read before consumeRetryLocked clears l.Offer; argument
		// evaluation order between the literal and the call is not
		// specified.
		expiredAmount := l.Offer.Amount
		events := append(
			[]domain.Event{{
				Type:      domain.EventOfferExpired,
				At:        now,
				AccountID: l.AccountID,
				Ref:       l.ID,
				Amount:    expiredAmount,
				Detail:    "offer lapsed unanswered",
			}},
			b.consumeRetryLocked(l, now)...,
		)
		return events, fmt.Errorf("listing %s: %w", id, domain.ErrOfferExpired)
	}

	if !accept {
		return b.consumeRetryLocked(l, now), nil
	}

	// Settle before mutating listing state, so a collaborator failure
	// leaves the offer open for a retry.
	amount := l.Offer.Amount
	if _, err := b.assets.Remove(ctx, l.AccountID, l.AssetRef); err != nil {
		return nil, err
	}
	if err := b.ledger.Credit(ctx, l.AccountID, amount, fmt.Sprintf("sale of %q", l.AssetRef)); err != nil {
		_ = b.assets.Add(ctx, l.AccountID, domain.Asset{Ref: l.AssetRef, Value: l.AskPrice})
		return nil, err
	}

	l.Status = domain.ListingSold
	l.Offer = nil
	l.ResolvedAt = now
	l.Seq++
	return []domain.Event{{
		Type:      domain.EventListingSold,
		At:        now,
		AccountID: l.AccountID,
		Ref:       l.ID,
		Amount:    amount,
		Detail:    l.AssetRef,
	}}, nil
}

// CancelListing withdraws a listing, discarding any pending offer. The
// commission is kept.
func (b *Broker) CancelListing(accountID string, id uuid.UUID, now domain.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.listings[id]
	if !ok || l.AccountID != accountID {
		return fmt.Errorf("listing %s: %w", id, domain.ErrListingNotFound)
	}
	if l.Status.Terminal() {
		return fmt.Errorf("listing %s is %s: %w", id, l.Status, domain.ErrNotActive)
	}
	l.Status = domain.ListingCancelled
	l.Offer = nil
	l.ResolvedAt = now
	l.Seq++
	return nil
}

// advanceListingLocked runs one month of life for an open listing: the
// delay decrement, then a resolution roll at zero. Offers awaiting a
// response age by the hour, not the month.
func (b *Broker) advanceListingLocked(l *domain.SaleListing, now domain.Timestamp) []domain.Event {
	if l.Status != domain.ListingOpen {
		return nil
	}

	l.DelayMonths--
	l.Seq++
	if l.DelayMonths > 0 {
		return nil
	}

	if !rng.Chance(rng.Stream(l.ID, "listing.resolve", l.Retries), closeRate(l.AgentTier, l.PriceTier)) {
		return b.consumeRetryLocked(l, now)
	}

	p := priceTable[l.PriceTier]
	mult := rng.Uniform(rng.Stream(l.ID, "listing.offer", l.Retries), p.offerLo, p.offerHi)
	amount := l.AskPrice.Mul(decimal.NewFromFloat(mult)).Round(2)
	l.Offer = &domain.PendingOffer{
		Amount:    amount,
		IssuedAt:  now,
		ExpiresAt: now.Add(int64(b.cfg.OfferExpiryHours)),
	}
	l.Status = domain.ListingOfferPending
	l.Seq++
	return []domain.Event{{
		Type:      domain.EventOfferGenerated,
		At:        now,
		AccountID: l.AccountID,
		Ref:       l.ID,
		Amount:    amount,
	}}
}

// consumeRetryLocked spends one unit of the shared retry budget after a
// failed roll, a declined offer, or an expired offer. Within budget the
// listing relists with a fresh delay; beyond it the listing expires for
// good.
func (b *Broker) consumeRetryLocked(l *domain.SaleListing, now domain.Timestamp) []domain.Event {
	l.Offer = nil
	l.Retries++
	l.Seq++

	if l.Retries > b.cfg.MaxOfferRetries {
		l.Status = domain.ListingExpired
		l.ResolvedAt = now
		return []domain.Event{{
			Type:      domain.EventListingExpired,
			At:        now,
			AccountID: l.AccountID,
			Ref:       l.ID,
			Detail:    "retry budget exhausted",
		}}
	}

	p := agentTable[l.AgentTier]
	l.Status = domain.ListingOpen
	l.DelayMonths = rng.IntBetween(rng.Stream(l.ID, "listing.delay", l.Retries), p.delayLo, p.delayHi)
	return nil
}

// ─── Clock Hooks ────────────────────────────────────────────────────────────

// AdvanceMonth runs the month-boundary pass for one account: search TTLs
// and listing delays count down, due items resolve. Items advance in
// creation order so replays emit identical event sequences.
func (b *Broker) AdvanceMonth(accountID string, now domain.Timestamp) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []domain.Event
	for _, s := range b.searchesForLocked(accountID) {
		if s.Status != domain.SearchOpen {
			continue
		}
		events = append(events, b.advanceSearchLocked(s, now)...)
	}
	for _, l := range b.listingsForLocked(accountID) {
		events = append(events, b.advanceListingLocked(l, now)...)
	}
	return events
}

// SweepOffers expires pending offers past their deadline for one account.
// Runs every simulated hour; a lapsed offer declines itself.
func (b *Broker) SweepOffers(accountID string, now domain.Timestamp) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []domain.Event
	for _, l := range b.listingsForLocked(accountID) {
		if l.Status != domain.ListingOfferPending || !l.Offer.Expired(now) {
			continue
		}
		events = append(events, domain.Event{
			Type:      domain.EventOfferExpired,
			At:        now,
			AccountID: l.AccountID,
			Ref:       l.ID,
			Amount:    l.Offer.Amount,
			Detail:    "offer lapsed unanswered",
		})
		events = append(events, b.consumeRetryLocked(l, now)...)
	}
	return events
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Search returns a copy of the account's search request.
func (b *Broker) Search(accountID string, id uuid.UUID) (domain.SearchRequest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.searches[id]
	if !ok || s.AccountID != accountID {
		return domain.SearchRequest{}, fmt.Errorf("search %s: %w", id, domain.ErrSearchNotFound)
	}
	return cloneSearch(s), nil
}

// Listing returns a copy of the account's sale listing.
func (b *Broker) Listing(accountID string, id uuid.UUID) (domain.SaleListing, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	l, ok := b.listings[id]
	if !ok || l.AccountID != accountID {
		return domain.SaleListing{}, fmt.Errorf("listing %s: %w", id, domain.ErrListingNotFound)
	}
	return cloneListing(l), nil
}

// SearchesFor returns copies of the account's searches in creation order.
func (b *Broker) SearchesFor(accountID string) []domain.SearchRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()

	live := b.searchesForLocked(accountID)
	out := make([]domain.SearchRequest, 0, len(live))
	for _, s := range live {
		out = append(out, cloneSearch(s))
	}
	return out
}

// ListingsFor returns copies of the account's listings in creation order.
func (b *Broker) ListingsFor(accountID string) []domain.SaleListing {
	b.mu.RLock()
	defer b.mu.RUnlock()

	live := b.listingsForLocked(accountID)
	out := make([]domain.SaleListing, 0, len(live))
	for _, l := range live {
		out = append(out, cloneListing(l))
	}
	return out
}

// Counts returns the number of open searches and open listings (offer
// pending included), for gauges.
func (b *Broker) Counts() (openSearches, openListings int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.searches {
		if s.Status == domain.SearchOpen {
			openSearches++
		}
	}
	for _, l := range b.listings {
		if !l.Status.Terminal() {
			openListings++
		}
	}
	return openSearches, openListings
}

// ─── Persistence ────────────────────────────────────────────────────────────

// Searches returns copies of every search request, for persistence sweeps.
func (b *Broker) Searches() []domain.SearchRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.SearchRequest, 0, len(b.searches))
	for _, s := range b.searches {
		out = append(out, cloneSearch(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Listings returns copies of every sale listing, for persistence sweeps.
func (b *Broker) Listings() []domain.SaleListing {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.SaleListing, 0, len(b.listings))
	for _, l := range b.listings {
		out = append(out, cloneListing(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// LoadSearch restores a search from a snapshot. Stale replays (lower or
// equal seq than what is already live) are ignored.
func (b *Broker) LoadSearch(s domain.SearchRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.searches[s.ID]; ok && cur.Seq >= s.Seq {
		return
	}
	copied := cloneSearch(&s)
	b.searches[s.ID] = &copied
}

// LoadListing restores a listing from a snapshot, ignoring stale replays.
func (b *Broker) LoadListing(l domain.SaleListing) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.listings[l.ID]; ok && cur.Seq >= l.Seq {
		return
	}
	copied := cloneListing(&l)
	b.listings[l.ID] = &copied
}

// ─── Internal Helpers ───────────────────────────────────────────────────────

// openListingForLocked finds a live listing for the asset, if any.
func (b *Broker) openListingForLocked(accountID, assetRef string) *domain.SaleListing {
	for _, l := range b.listings {
		if l.AccountID == accountID && l.AssetRef == assetRef && !l.Status.Terminal() {
			return l
		}
	}
	return nil
}

// searchesForLocked returns the account's live search pointers in creation
// order (ID as tie-break for same-hour creations).
func (b *Broker) searchesForLocked(accountID string) []*domain.SearchRequest {
	var out []*domain.SearchRequest
	for _, s := range b.searches {
		if s.AccountID == accountID {
			out = append(out, s)
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

// listingsForLocked returns the account's listing pointers in creation order.
func (b *Broker) listingsForLocked(accountID string) []*domain.SaleListing {
	var out []*domain.SaleListing
	for _, l := range b.listings {
		if l.AccountID == accountID {
			out = append(out, l)
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

func cloneSearch(s *domain.SearchRequest) domain.SearchRequest {
	out := *s
	if s.Found != nil {
		f := *s.Found
		out.Found = &f
	}
	return out
}

func cloneListing(l *domain.SaleListing) domain.SaleListing {
	out := *l
	if l.Offer != nil {
		o := *l.Offer
		out.Offer = &o
	}
	return out
}
