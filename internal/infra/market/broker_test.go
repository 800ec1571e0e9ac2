package market

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/assets"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/depreciation"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/ledger"
)

type testEnv struct {
	broker *Broker
	bank   *ledger.Bank
	reg    *assets.Registry
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	bank := ledger.NewBank()
	reg := assets.NewRegistry()
	return &testEnv{
		broker: NewBroker(cfg, bank, reg, depreciation.NewModel()),
		bank:   bank,
		reg:    reg,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fixedID builds a deterministic UUID for injection-based tests.
func fixedID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-%012d", n))
}

// openSearch builds a live search for LoadSearch injection.
func openSearch(n int, tier domain.SearchTier, base string, ttl int) domain.SearchRequest {
	return domain.SearchRequest{
		ID:        fixedID(n),
		AccountID: "acct-1",
		Tier:      tier,
		BasePrice: dec(base),
		Status:    domain.SearchOpen,
		TTLMonths: ttl,
		Seq:       1,
	}
}

// openListing builds a live listing for LoadListing injection.
func openListing(n int, agent domain.AgentTier, price domain.PriceTier, ask string, delay, retries int) domain.SaleListing {
	return domain.SaleListing{
		ID:          fixedID(n),
		AccountID:   "acct-1",
		AssetRef:    "asset-1",
		AgentTier:   agent,
		PriceTier:   price,
		AskPrice:    dec(ask),
		Status:      domain.ListingOpen,
		DelayMonths: delay,
		Retries:     retries,
		Seq:         1,
	}
}

// pendingListing builds a listing with an open offer awaiting response.
func pendingListing(n int, amount string, expires domain.Timestamp, retries int) domain.SaleListing {
	l := openListing(n, domain.AgentLocal, domain.PriceMarket, "100000", 0, retries)
	l.Status = domain.ListingOfferPending
	l.Offer = &domain.PendingOffer{Amount: dec(amount), IssuedAt: expires - 48, ExpiresAt: expires}
	return l
}

// ─── Search Creation ────────────────────────────────────────────────────────

func TestStartSearch_FeeChargedUpFront(t *testing.T) {
	tests := []struct {
		tier    domain.SearchTier
		wantFee string
	}{
		{domain.SearchLocal, "1500"},
		{domain.SearchRegional, "3000"},
		{domain.SearchNational, "5000"},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			env := newTestEnv(t, DefaultConfig())
			ctx := context.Background()
			env.bank.Load("acct-1", dec("100000"))

			s, err := env.broker.StartSearch(ctx, "acct-1", tt.tier, domain.DesiredSpec{}, dec("100000"), 0)
			if err != nil {
				t.Fatalf("StartSearch: %v", err)
			}
			if !s.Fee.Equal(dec(tt.wantFee)) {
				t.Errorf("fee = %s, want %s", s.Fee, tt.wantFee)
			}
			bal, _ := env.bank.Balance(ctx, "acct-1")
			if !bal.Equal(dec("100000").Sub(dec(tt.wantFee))) {
				t.Errorf("balance = %s after fee %s", bal, tt.wantFee)
			}
			if s.Status != domain.SearchOpen {
				t.Errorf("status = %s, want %s", s.Status, domain.SearchOpen)
			}

			p := searchTable[tt.tier]
			if s.TTLMonths < p.delayLo || s.TTLMonths > p.delayHi {
				t.Errorf("ttl = %d, want within [%d,%d]", s.TTLMonths, p.delayLo, p.delayHi)
			}
		})
	}
}

func TestStartSearch_Validation(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()
	env.bank.Load("acct-1", dec("10"))

	if _, err := env.broker.StartSearch(ctx, "acct-1", "galactic", domain.DesiredSpec{}, dec("100000"), 0); !errors.Is(err, domain.ErrInvalidMode) {
		t.Errorf("unknown tier: err = %v, want ErrInvalidMode", err)
	}
	if _, err := env.broker.StartSearch(ctx, "acct-1", domain.SearchLocal, domain.DesiredSpec{}, dec("0"), 0); !errors.Is(err, domain.ErrBelowMinimumAmount) {
		t.Errorf("zero base: err = %v, want ErrBelowMinimumAmount", err)
	}
	if _, err := env.broker.StartSearch(ctx, "acct-1", domain.SearchLocal, domain.DesiredSpec{}, dec("100000"), 0); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("unfunded: err = %v, want ErrInsufficientFunds", err)
	}
	if got := env.broker.SearchesFor("acct-1"); len(got) != 0 {
		t.Errorf("failed starts must not store requests, got %d", len(got))
	}
}

// ─── Search Lifecycle ───────────────────────────────────────────────────────

func TestSearch_TTLStrictlyDecreases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EarlySearchChance = 0 // deterministic countdown
	env := newTestEnv(t, cfg)

	env.broker.LoadSearch(openSearch(1, domain.SearchRegional, "100000", 3))
	id := fixedID(1)

	for want := 2; want >= 1; want-- {
		env.broker.AdvanceMonth("acct-1", domain.Timestamp(720*(3-want)))
		s, err := env.broker.Search("acct-1", id)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if s.Status != domain.SearchOpen {
			t.Fatalf("resolved early with EarlySearchChance=0 at ttl %d", want)
		}
		if s.TTLMonths != want {
			t.Errorf("ttl = %d, want %d", s.TTLMonths, want)
		}
	}

	events := env.broker.AdvanceMonth("acct-1", 2160)
	s, _ := env.broker.Search("acct-1", id)
	if !s.Status.Terminal() {
		t.Fatalf("status = %s, want terminal at ttl 0", s.Status)
	}
	if len(events) != 1 || events[0].Type != domain.EventSearchResolved {
		t.Fatalf("events = %v, want one SearchResolved", events)
	}
	if s.ResolvedAt != 2160 {
		t.Errorf("resolvedAt = %d, want 2160", s.ResolvedAt)
	}

	// Resolution happens exactly once: further months are silent.
	if extra := env.broker.AdvanceMonth("acct-1", 2880); len(extra) != 0 {
		t.Errorf("terminal search produced events: %v", extra)
	}
}

func TestSearch_OutcomeShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EarlySearchChance = 0
	env := newTestEnv(t, cfg)

	env.broker.LoadSearch(openSearch(2, domain.SearchLocal, "100000", 1))
	env.broker.AdvanceMonth("acct-1", 720)

	s, _ := env.broker.Search("acct-1", fixedID(2))
	switch s.Status {
	case domain.SearchSucceeded:
		if s.Found == nil {
			t.Fatal("succeeded search must carry a found item")
		}
		// Local discount 25–40% off base 100000.
		if s.Found.Price.LessThan(dec("60000")) || s.Found.Price.GreaterThan(dec("75000")) {
			t.Errorf("found price %s outside [60000,75000]", s.Found.Price)
		}
		if s.Found.AgeMonths < 1 || s.Found.AgeMonths > cfg.MaxFoundAgeMonths {
			t.Errorf("age = %d, want within [1,%d]", s.Found.AgeMonths, cfg.MaxFoundAgeMonths)
		}
		if s.Found.Damage < 0 || s.Found.Damage > 0.85 || s.Found.Wear < 0 || s.Found.Wear > 0.85 {
			t.Errorf("condition out of range: damage=%v wear=%v", s.Found.Damage, s.Found.Wear)
		}
	case domain.SearchFailed:
		if s.Found != nil {
			t.Error("failed search must not carry a found item")
		}
	default:
		t.Fatalf("status = %s, want terminal", s.Status)
	}
}

func TestSearch_SpecConstrainsFind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EarlySearchChance = 0
	env := newTestEnv(t, cfg)

	spec := domain.DesiredSpec{MaxAgeMonths: 24, MaxWear: 0.3}
	for i := 0; i < 30; i++ {
		s := openSearch(100+i, domain.SearchNational, "50000", 1)
		s.Spec = spec
		env.broker.LoadSearch(s)
	}
	env.broker.AdvanceMonth("acct-1", 720)

	for _, s := range env.broker.SearchesFor("acct-1") {
		if s.Status != domain.SearchSucceeded {
			continue
		}
		if s.Found.AgeMonths > 24 {
			t.Errorf("search %s: age %d exceeds spec ceiling 24", s.ID, s.Found.AgeMonths)
		}
		if s.Found.Wear > 0.3 {
			t.Errorf("search %s: wear %v exceeds spec ceiling 0.3", s.ID, s.Found.Wear)
		}
	}
}

func TestSearch_PopulationResolves(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	const n = 40
	for i := 0; i < n; i++ {
		env.broker.LoadSearch(openSearch(200+i, domain.SearchNational, "100000", 3+i%4))
	}

	var resolved int
	for m := 1; m <= 8; m++ {
		for _, ev := range env.broker.AdvanceMonth("acct-1", domain.Timestamp(m*720)) {
			if ev.Type == domain.EventSearchResolved {
				resolved++
			}
		}
	}

	if resolved != n {
		t.Fatalf("resolved %d of %d searches within the delay ceiling", resolved, n)
	}

	var succeeded int
	for _, s := range env.broker.SearchesFor("acct-1") {
		if !s.Status.Terminal() {
			t.Errorf("search %s still %s after 8 months", s.ID, s.Status)
		}
		if s.Status == domain.SearchSucceeded {
			succeeded++
			// National discount 35–60% off base 100000.
			if s.Found.Price.LessThan(dec("40000")) || s.Found.Price.GreaterThan(dec("65000")) {
				t.Errorf("found price %s outside [40000,65000]", s.Found.Price)
			}
		}
	}
	if succeeded == 0 {
		t.Error("no success among 40 national searches at 0.95 success rate")
	}
}

func TestCancelSearch(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()
	env.bank.Load("acct-1", dec("100000"))

	s, err := env.broker.StartSearch(ctx, "acct-1", domain.SearchLocal, domain.DesiredSpec{}, dec("100000"), 0)
	if err != nil {
		t.Fatalf("StartSearch: %v", err)
	}

	if err := env.broker.CancelSearch("intruder", s.ID, 1); !errors.Is(err, domain.ErrSearchNotFound) {
		t.Errorf("foreign cancel: err = %v, want ErrSearchNotFound", err)
	}
	if err := env.broker.CancelSearch("acct-1", s.ID, 1); err != nil {
		t.Fatalf("CancelSearch: %v", err)
	}

	got, _ := env.broker.Search("acct-1", s.ID)
	if got.Status != domain.SearchCancelled {
		t.Errorf("status = %s, want %s", got.Status, domain.SearchCancelled)
	}
	bal, _ := env.bank.Balance(ctx, "acct-1")
	if !bal.Equal(dec("98500")) {
		t.Errorf("fee must be kept on cancel, balance = %s", bal)
	}
	if err := env.broker.CancelSearch("acct-1", s.ID, 2); !errors.Is(err, domain.ErrNotActive) {
		t.Errorf("double cancel: err = %v, want ErrNotActive", err)
	}

	// Cancelled searches stop counting down.
	if events := env.broker.AdvanceMonth("acct-1", 720); len(events) != 0 {
		t.Errorf("cancelled search produced events: %v", events)
	}
}

// ─── Listing Creation ───────────────────────────────────────────────────────

func TestListForSale_Commission(t *testing.T) {
	tests := []struct {
		agent   domain.AgentTier
		wantFee string
	}{
		{domain.AgentPrivate, "0"},
		{domain.AgentLocal, "800"},
		{domain.AgentRegional, "1600"},
		{domain.AgentNational, "2400"},
	}

	for _, tt := range tests {
		t.Run(string(tt.agent), func(t *testing.T) {
			env := newTestEnv(t, DefaultConfig())
			ctx := context.Background()
			env.bank.Load("acct-1", dec("5000"))
			env.reg.Add(ctx, "acct-1", domain.Asset{Ref: "baler-1", Kind: "baler", Value: dec("80000")})

			l, err := env.broker.ListForSale(ctx, "acct-1", "baler-1", tt.agent, domain.PriceMarket, 0)
			if err != nil {
				t.Fatalf("ListForSale: %v", err)
			}
			if !l.Fee.Equal(dec(tt.wantFee)) {
				t.Errorf("fee = %s, want %s", l.Fee, tt.wantFee)
			}
			bal, _ := env.bank.Balance(ctx, "acct-1")
			if !bal.Equal(dec("5000").Sub(dec(tt.wantFee))) {
				t.Errorf("balance = %s after commission %s", bal, tt.wantFee)
			}
			if !l.AskPrice.Equal(dec("80000")) {
				t.Errorf("ask price = %s, want asset value 80000", l.AskPrice)
			}

			p := agentTable[tt.agent]
			if l.DelayMonths < p.delayLo || l.DelayMonths > p.delayHi {
				t.Errorf("delay = %d, want within [%d,%d]", l.DelayMonths, p.delayLo, p.delayHi)
			}
		})
	}
}

func TestListForSale_Validation(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()
	env.bank.Load("acct-1", dec("100"))
	env.reg.Add(ctx, "acct-1", domain.Asset{Ref: "combine-1", Value: dec("80000")})
	env.reg.Add(ctx, "acct-1", domain.Asset{Ref: "pledged-1", Value: dec("40000")})
	env.reg.Hold(ctx, "acct-1", "pledged-1")

	if _, err := env.broker.ListForSale(ctx, "acct-1", "ghost", domain.AgentPrivate, domain.PriceMarket, 0); !errors.Is(err, domain.ErrAssetNotFound) {
		t.Errorf("missing asset: err = %v, want ErrAssetNotFound", err)
	}
	if _, err := env.broker.ListForSale(ctx, "acct-1", "pledged-1", domain.AgentPrivate, domain.PriceMarket, 0); !errors.Is(err, domain.ErrIneligible) {
		t.Errorf("collateral: err = %v, want ErrIneligible", err)
	}
	if _, err := env.broker.ListForSale(ctx, "acct-1", "combine-1", "interstellar", domain.PriceMarket, 0); !errors.Is(err, domain.ErrInvalidMode) {
		t.Errorf("bad agent tier: err = %v, want ErrInvalidMode", err)
	}
	if _, err := env.broker.ListForSale(ctx, "acct-1", "combine-1", domain.AgentPrivate, "bargain", 0); !errors.Is(err, domain.ErrInvalidMode) {
		t.Errorf("bad price tier: err = %v, want ErrInvalidMode", err)
	}
	if _, err := env.broker.ListForSale(ctx, "acct-1", "combine-1", domain.AgentLocal, domain.PriceMarket, 0); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("unfunded commission: err = %v, want ErrInsufficientFunds", err)
	}

	// Private tier charges nothing, so the broke account can still list.
	if _, err := env.broker.ListForSale(ctx, "acct-1", "combine-1", domain.AgentPrivate, domain.PriceMarket, 0); err != nil {
		t.Fatalf("fee-exempt listing: %v", err)
	}
	if _, err := env.broker.ListForSale(ctx, "acct-1", "combine-1", domain.AgentPrivate, domain.PriceMarket, 0); !errors.Is(err, domain.ErrAlreadyListed) {
		t.Errorf("double listing: err = %v, want ErrAlreadyListed", err)
	}
}

// ─── Listing Lifecycle ──────────────────────────────────────────────────────

func TestListing_QuickTierOfferBounds(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	const n = 50
	for i := 0; i < n; i++ {
		env.broker.LoadListing(openListing(300+i, domain.AgentLocal, domain.PriceQuick, "100000", 1, 0))
	}

	var offers int
	for m := 1; m <= 12; m++ {
		for _, ev := range env.broker.AdvanceMonth("acct-1", domain.Timestamp(m*720)) {
			if ev.Type != domain.EventOfferGenerated {
				continue
			}
			offers++
			if ev.Amount.LessThan(dec("60000")) || ev.Amount.GreaterThan(dec("75000")) {
				t.Errorf("quick-tier offer %s outside [60000,75000]", ev.Amount)
			}
		}
		// Generated offers sit waiting for a response; expire them so the
		// listing re-rolls and the retry budget keeps draining.
		env.broker.SweepOffers("acct-1", domain.Timestamp(m*720+100))
	}

	if offers == 0 {
		t.Error("no offer among 50 quick-tier listings at 0.90 close rate")
	}
}

func TestListing_RetryBudgetExhaustion(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	// Three retries already burned: the next consume expires the listing.
	l := pendingListing(400, "70000", 48, 3)
	env.broker.LoadListing(l)

	events, err := env.broker.RespondOffer(context.Background(), "acct-1", l.ID, false, 10)
	if err != nil {
		t.Fatalf("RespondOffer: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.EventListingExpired {
		t.Fatalf("events = %v, want one ListingExpired", events)
	}

	got, _ := env.broker.Listing("acct-1", l.ID)
	if got.Status != domain.ListingExpired {
		t.Errorf("status = %s, want %s", got.Status, domain.ListingExpired)
	}
	if got.Retries != 4 {
		t.Errorf("retries = %d, want 4", got.Retries)
	}
}

func TestRespondOffer_Accept(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()
	env.reg.Add(ctx, "acct-1", domain.Asset{Ref: "asset-1", Value: dec("100000")})

	l := pendingListing(401, "70000", 48, 0)
	env.broker.LoadListing(l)

	events, err := env.broker.RespondOffer(ctx, "acct-1", l.ID, true, 10)
	if err != nil {
		t.Fatalf("RespondOffer: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.EventListingSold {
		t.Fatalf("events = %v, want one ListingSold", events)
	}
	if !events[0].Amount.Equal(dec("70000")) {
		t.Errorf("sold amount = %s, want 70000", events[0].Amount)
	}

	bal, _ := env.bank.Balance(ctx, "acct-1")
	if !bal.Equal(dec("70000")) {
		t.Errorf("proceeds not credited, balance = %s", bal)
	}
	if _, err := env.reg.Get(ctx, "acct-1", "asset-1"); !errors.Is(err, domain.ErrAssetNotFound) {
		t.Errorf("sold asset still registered: %v", err)
	}

	got, _ := env.broker.Listing("acct-1", l.ID)
	if got.Status != domain.ListingSold {
		t.Errorf("status = %s, want %s", got.Status, domain.ListingSold)
	}
	if _, err := env.broker.RespondOffer(ctx, "acct-1", l.ID, true, 11); !errors.Is(err, domain.ErrNotActive) {
		t.Errorf("respond after sale: err = %v, want ErrNotActive", err)
	}
}

func TestRespondOffer_AcceptBlockedByHold(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()
	env.reg.Add(ctx, "acct-1", domain.Asset{Ref: "asset-1", Value: dec("100000")})

	l := pendingListing(402, "70000", 48, 0)
	env.broker.LoadListing(l)

	// Asset was pledged as collateral after listing: settlement must fail
	// and leave the offer open.
	env.reg.Hold(ctx, "acct-1", "asset-1")

	if _, err := env.broker.RespondOffer(ctx, "acct-1", l.ID, true, 10); !errors.Is(err, domain.ErrIneligible) {
		t.Fatalf("held asset: err = %v, want ErrIneligible", err)
	}
	got, _ := env.broker.Listing("acct-1", l.ID)
	if got.Status != domain.ListingOfferPending || got.Offer == nil {
		t.Errorf("failed settlement must keep the offer open, got %s", got.Status)
	}
	bal, _ := env.bank.Balance(ctx, "acct-1")
	if !bal.IsZero() {
		t.Errorf("no proceeds expected, balance = %s", bal)
	}
}

func TestRespondOffer_Decline(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	l := pendingListing(403, "70000", 48, 0)
	env.broker.LoadListing(l)

	events, err := env.broker.RespondOffer(ctx, "acct-1", l.ID, false, 10)
	if err != nil {
		t.Fatalf("RespondOffer: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("in-budget decline is silent, got %v", events)
	}

	got, _ := env.broker.Listing("acct-1", l.ID)
	if got.Status != domain.ListingOpen {
		t.Errorf("status = %s, want %s", got.Status, domain.ListingOpen)
	}
	if got.Offer != nil {
		t.Error("declined offer must be discarded")
	}
	if got.Retries != 1 {
		t.Errorf("retries = %d, want 1", got.Retries)
	}
	p := agentTable[got.AgentTier]
	if got.DelayMonths < p.delayLo || got.DelayMonths > p.delayHi {
		t.Errorf("re-rolled delay = %d, want within [%d,%d]", got.DelayMonths, p.delayLo, p.delayHi)
	}

	if _, err := env.broker.RespondOffer(ctx, "acct-1", l.ID, false, 11); !errors.Is(err, domain.ErrNoOffer) {
		t.Errorf("relisted listing has no offer: err = %v, want ErrNoOffer", err)
	}
}

func TestRespondOffer_Expired(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	l := pendingListing(404, "70000", 48, 0)
	env.broker.LoadListing(l)

	events, err := env.broker.RespondOffer(ctx, "acct-1", l.ID, true, 48)
	if !errors.Is(err, domain.ErrOfferExpired) {
		t.Fatalf("err = %v, want ErrOfferExpired", err)
	}
	if len(events) != 1 || events[0].Type != domain.EventOfferExpired {
		t.Fatalf("events = %v, want one OfferExpired", events)
	}

	got, _ := env.broker.Listing("acct-1", l.ID)
	if got.Status != domain.ListingOpen || got.Retries != 1 {
		t.Errorf("expiry must relist within budget, got %s retries=%d", got.Status, got.Retries)
	}
}

func TestSweepOffers(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	stale := pendingListing(405, "50000", 100, 0)
	stale.AssetRef = "asset-a"
	fresh := pendingListing(406, "60000", 200, 0)
	fresh.AssetRef = "asset-b"
	exhausted := pendingListing(407, "70000", 100, 3)
	exhausted.AssetRef = "asset-c"
	env.broker.LoadListing(stale)
	env.broker.LoadListing(fresh)
	env.broker.LoadListing(exhausted)

	events := env.broker.SweepOffers("acct-1", 100)

	var expired, listingExpired int
	for _, ev := range events {
		switch ev.Type {
		case domain.EventOfferExpired:
			expired++
		case domain.EventListingExpired:
			listingExpired++
		}
	}
	if expired != 2 {
		t.Errorf("expired offers = %d, want 2", expired)
	}
	if listingExpired != 1 {
		t.Errorf("expired listings = %d, want 1", listingExpired)
	}

	if got, _ := env.broker.Listing("acct-1", stale.ID); got.Status != domain.ListingOpen {
		t.Errorf("stale: status = %s, want relisted", got.Status)
	}
	if got, _ := env.broker.Listing("acct-1", fresh.ID); got.Status != domain.ListingOfferPending {
		t.Errorf("fresh: status = %s, want untouched", got.Status)
	}
	if got, _ := env.broker.Listing("acct-1", exhausted.ID); got.Status != domain.ListingExpired {
		t.Errorf("exhausted: status = %s, want expired", got.Status)
	}
}

func TestCancelListing(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	l := pendingListing(408, "70000", 48, 0)
	env.broker.LoadListing(l)

	if err := env.broker.CancelListing("intruder", l.ID, 10); !errors.Is(err, domain.ErrListingNotFound) {
		t.Errorf("foreign cancel: err = %v, want ErrListingNotFound", err)
	}
	if err := env.broker.CancelListing("acct-1", l.ID, 10); err != nil {
		t.Fatalf("CancelListing: %v", err)
	}

	got, _ := env.broker.Listing("acct-1", l.ID)
	if got.Status != domain.ListingCancelled {
		t.Errorf("status = %s, want %s", got.Status, domain.ListingCancelled)
	}
	if got.Offer != nil {
		t.Error("cancel must discard the pending offer")
	}
	if err := env.broker.CancelListing("acct-1", l.ID, 11); !errors.Is(err, domain.ErrNotActive) {
		t.Errorf("double cancel: err = %v, want ErrNotActive", err)
	}
}

// ─── Determinism ────────────────────────────────────────────────────────────

func TestBroker_DeterministicReplay(t *testing.T) {
	run := func() ([]domain.SearchRequest, []domain.SaleListing) {
		env := newTestEnv(t, DefaultConfig())
		for i := 0; i < 10; i++ {
			env.broker.LoadSearch(openSearch(500+i, domain.SearchRegional, "120000", 2+i%3))
			env.broker.LoadListing(openListing(600+i, domain.AgentPrivate, domain.PricePremium, "90000", 1+i%4, 0))
		}
		for m := 1; m <= 24; m++ {
			env.broker.AdvanceMonth("acct-1", domain.Timestamp(m*720))
			env.broker.SweepOffers("acct-1", domain.Timestamp(m*720+60))
		}
		return env.broker.Searches(), env.broker.Listings()
	}

	s1, l1 := run()
	s2, l2 := run()

	for i := range s1 {
		a, b := s1[i], s2[i]
		if a.Status != b.Status || a.TTLMonths != b.TTLMonths || a.ResolvedAt != b.ResolvedAt {
			t.Errorf("search %s diverged between replays: %+v vs %+v", a.ID, a, b)
		}
		if (a.Found == nil) != (b.Found == nil) {
			t.Fatalf("search %s: found presence diverged", a.ID)
		}
		if a.Found != nil && (!a.Found.Price.Equal(b.Found.Price) || a.Found.AgeMonths != b.Found.AgeMonths) {
			t.Errorf("search %s: found item diverged: %+v vs %+v", a.ID, a.Found, b.Found)
		}
	}
	for i := range l1 {
		a, b := l1[i], l2[i]
		if a.Status != b.Status || a.Retries != b.Retries || a.DelayMonths != b.DelayMonths {
			t.Errorf("listing %s diverged between replays: %+v vs %+v", a.ID, a, b)
		}
		if (a.Offer == nil) != (b.Offer == nil) {
			t.Fatalf("listing %s: offer presence diverged", a.ID)
		}
		if a.Offer != nil && !a.Offer.Amount.Equal(b.Offer.Amount) {
			t.Errorf("listing %s: offer diverged: %s vs %s", a.ID, a.Offer.Amount, b.Offer.Amount)
		}
	}
}

func TestAdvanceMonth_AccountIsolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EarlySearchChance = 0
	env := newTestEnv(t, cfg)

	mine := openSearch(700, domain.SearchRegional, "100000", 3)
	theirs := openSearch(701, domain.SearchRegional, "100000", 3)
	theirs.AccountID = "acct-2"
	env.broker.LoadSearch(mine)
	env.broker.LoadSearch(theirs)

	env.broker.AdvanceMonth("acct-1", 720)

	got, _ := env.broker.Search("acct-2", theirs.ID)
	if got.TTLMonths != 3 {
		t.Errorf("foreign account ttl = %d, want untouched 3", got.TTLMonths)
	}
}

// ─── Persistence Hooks ──────────────────────────────────────────────────────

func TestLoad_StaleReplayIgnored(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	s := openSearch(800, domain.SearchLocal, "100000", 2)
	s.Seq = 5
	env.broker.LoadSearch(s)

	stale := s
	stale.Seq = 3
	stale.TTLMonths = 9
	env.broker.LoadSearch(stale)

	got, _ := env.broker.Search("acct-1", s.ID)
	if got.TTLMonths != 2 || got.Seq != 5 {
		t.Errorf("stale replay applied: ttl=%d seq=%d", got.TTLMonths, got.Seq)
	}

	newer := s
	newer.Seq = 8
	newer.TTLMonths = 1
	env.broker.LoadSearch(newer)

	got, _ = env.broker.Search("acct-1", s.ID)
	if got.TTLMonths != 1 || got.Seq != 8 {
		t.Errorf("newer replay ignored: ttl=%d seq=%d", got.TTLMonths, got.Seq)
	}
}

func TestCounts(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	env.broker.LoadSearch(openSearch(900, domain.SearchLocal, "100000", 2))
	done := openSearch(901, domain.SearchLocal, "100000", 0)
	done.Status = domain.SearchFailed
	env.broker.LoadSearch(done)

	open := openListing(902, domain.AgentLocal, domain.PriceMarket, "50000", 1, 0)
	open.AssetRef = "asset-a"
	env.broker.LoadListing(open)
	pending := pendingListing(903, "40000", 48, 0)
	pending.AssetRef = "asset-b"
	env.broker.LoadListing(pending)
	sold := openListing(904, domain.AgentLocal, domain.PriceMarket, "50000", 0, 0)
	sold.AssetRef = "asset-c"
	sold.Status = domain.ListingSold
	env.broker.LoadListing(sold)

	searches, listings := env.broker.Counts()
	if searches != 1 {
		t.Errorf("open searches = %d, want 1", searches)
	}
	if listings != 2 {
		t.Errorf("open listings = %d, want 2", listings)
	}
}
