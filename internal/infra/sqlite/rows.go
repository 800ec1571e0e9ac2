package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// ─── Row Types ──────────────────────────────────────────────────────────────
// Money travels as decimal strings so sqlite never sees a float; nested
// structures (credit history, collateral refs, found items, offers) travel
// as JSON text. Seq rides along so stale writes can be refused.

type accountRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	PassHash  string `db:"pass_hash"`
	CreatedAt string `db:"created_at"`
}

type profileRow struct {
	AccountID string `db:"account_id"`
	Events    string `db:"events_json"`
	Seq       int64  `db:"seq"`
}

type dealRow struct {
	ID            string  `db:"id"`
	AccountID     string  `db:"account_id"`
	Kind          string  `db:"kind"`
	Status        string  `db:"status"`
	Principal     string  `db:"principal"`
	Balance       string  `db:"balance"`
	AnnualRate    float64 `db:"annual_rate"`
	TermMonths    int     `db:"term_months"`
	MonthsElapsed int     `db:"months_elapsed"`
	QuotedPayment string  `db:"quoted_payment"`
	PaymentMode   string  `db:"payment_mode"`
	CustomAmount  string  `db:"custom_amount"`
	Residual      string  `db:"residual"`
	MissedStreak  int     `db:"missed_streak"`
	Collateral    string  `db:"collateral_json"`
	CreatedAt     int64   `db:"created_at"`
	ClosedAt      int64   `db:"closed_at"`
	LastServiced  int     `db:"last_serviced"`
	Seq           int64   `db:"seq"`
}

type searchRow struct {
	ID         string `db:"id"`
	AccountID  string `db:"account_id"`
	Tier       string `db:"tier"`
	Spec       string `db:"spec_json"`
	BasePrice  string `db:"base_price"`
	Fee        string `db:"fee"`
	Status     string `db:"status"`
	TTLMonths  int    `db:"ttl_months"`
	Found      string `db:"found_json"`
	CreatedAt  int64  `db:"created_at"`
	ResolvedAt int64  `db:"resolved_at"`
	Seq        int64  `db:"seq"`
}

type listingRow struct {
	ID          string `db:"id"`
	AccountID   string `db:"account_id"`
	AssetRef    string `db:"asset_ref"`
	AgentTier   string `db:"agent_tier"`
	PriceTier   string `db:"price_tier"`
	AskPrice    string `db:"ask_price"`
	Fee         string `db:"fee"`
	Status      string `db:"status"`
	DelayMonths int    `db:"delay_months"`
	Retries     int    `db:"retries"`
	Offer       string `db:"offer_json"`
	CreatedAt   int64  `db:"created_at"`
	ResolvedAt  int64  `db:"resolved_at"`
	Seq         int64  `db:"seq"`
}

type assetRow struct {
	AccountID string  `db:"account_id"`
	Ref       string  `db:"ref"`
	Kind      string  `db:"kind"`
	Brand     string  `db:"brand"`
	Value     string  `db:"value"`
	Damage    float64 `db:"damage"`
	Wear      float64 `db:"wear"`
	Held      bool    `db:"held"`
}

type balanceRow struct {
	AccountID string `db:"account_id"`
	Balance   string `db:"balance"`
}

// ─── Converters ─────────────────────────────────────────────────────────────

func accountToRow(a domain.Account) accountRow {
	return accountRow{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		PassHash:  a.PassHash,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func rowToAccount(r accountRow) (domain.Account, error) {
	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s: bad created_at %q: %w", r.ID, r.CreatedAt, err)
	}
	return domain.Account{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		PassHash:  r.PassHash,
		CreatedAt: created,
	}, nil
}

func profileToRow(p domain.CreditProfile) (profileRow, error) {
	events, err := json.Marshal(p.Events)
	if err != nil {
		return profileRow{}, fmt.Errorf("profile %s: marshal events: %w", p.AccountID, err)
	}
	return profileRow{AccountID: p.AccountID, Events: string(events), Seq: int64(p.Seq)}, nil
}

func rowToProfile(r profileRow) (domain.CreditProfile, error) {
	p := domain.CreditProfile{AccountID: r.AccountID, Seq: uint64(r.Seq)}
	if err := json.Unmarshal([]byte(r.Events), &p.Events); err != nil {
		return domain.CreditProfile{}, fmt.Errorf("profile %s: unmarshal events: %w", r.AccountID, err)
	}
	return p, nil
}

func dealToRow(d domain.Deal) (dealRow, error) {
	collateral, err := json.Marshal(d.Collateral)
	if err != nil {
		return dealRow{}, fmt.Errorf("deal %s: marshal collateral: %w", d.ID, err)
	}
	return dealRow{
		ID:            d.ID.String(),
		AccountID:     d.AccountID,
		Kind:          string(d.Kind),
		Status:        string(d.Status),
		Principal:     d.Principal.String(),
		Balance:       d.Balance.String(),
		AnnualRate:    d.AnnualRate,
		TermMonths:    d.TermMonths,
		MonthsElapsed: d.MonthsElapsed,
		QuotedPayment: d.QuotedPayment.String(),
		PaymentMode:   string(d.Mode),
		CustomAmount:  d.CustomAmount.String(),
		Residual:      d.Residual.String(),
		MissedStreak:  d.MissedStreak,
		Collateral:    string(collateral),
		CreatedAt:     int64(d.CreatedAt),
		ClosedAt:      int64(d.ClosedAt),
		LastServiced:  d.LastServiced,
		Seq:           int64(d.Seq),
	}, nil
}

func rowToDeal(r dealRow) (domain.Deal, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("deal %s: bad id: %w", r.ID, err)
	}
	d := domain.Deal{
		ID:            id,
		AccountID:     r.AccountID,
		Kind:          domain.DealKind(r.Kind),
		Status:        domain.DealStatus(r.Status),
		AnnualRate:    r.AnnualRate,
		TermMonths:    r.TermMonths,
		MonthsElapsed: r.MonthsElapsed,
		Mode:          domain.PaymentMode(r.PaymentMode),
		MissedStreak:  r.MissedStreak,
		CreatedAt:     domain.Timestamp(r.CreatedAt),
		ClosedAt:      domain.Timestamp(r.ClosedAt),
		LastServiced:  r.LastServiced,
		Seq:           uint64(r.Seq),
	}
	for _, f := range []struct {
		name string
		text string
		dst  *decimal.Decimal
	}{
		{"principal", r.Principal, &d.Principal},
		{"balance", r.Balance, &d.Balance},
		{"quoted_payment", r.QuotedPayment, &d.QuotedPayment},
		{"custom_amount", r.CustomAmount, &d.CustomAmount},
		{"residual", r.Residual, &d.Residual},
	} {
		v, err := decimal.NewFromString(f.text)
		if err != nil {
			return domain.Deal{}, fmt.Errorf("deal %s: bad %s %q: %w", r.ID, f.name, f.text, err)
		}
		*f.dst = v
	}
	if err := json.Unmarshal([]byte(r.Collateral), &d.Collateral); err != nil {
		return domain.Deal{}, fmt.Errorf("deal %s: unmarshal collateral: %w", r.ID, err)
	}
	return d, nil
}

func searchToRow(s domain.SearchRequest) (searchRow, error) {
	spec, err := json.Marshal(s.Spec)
	if err != nil {
		return searchRow{}, fmt.Errorf("search %s: marshal spec: %w", s.ID, err)
	}
	found, err := json.Marshal(s.Found)
	if err != nil {
		return searchRow{}, fmt.Errorf("search %s: marshal found: %w", s.ID, err)
	}
	return searchRow{
		ID:         s.ID.String(),
		AccountID:  s.AccountID,
		Tier:       string(s.Tier),
		Spec:       string(spec),
		BasePrice:  s.BasePrice.String(),
		Fee:        s.Fee.String(),
		Status:     string(s.Status),
		TTLMonths:  s.TTLMonths,
		Found:      string(found),
		CreatedAt:  int64(s.CreatedAt),
		ResolvedAt: int64(s.ResolvedAt),
		Seq:        int64(s.Seq),
	}, nil
}

func rowToSearch(r searchRow) (domain.SearchRequest, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("search %s: bad id: %w", r.ID, err)
	}
	base, err := decimal.NewFromString(r.BasePrice)
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("search %s: bad base_price %q: %w", r.ID, r.BasePrice, err)
	}
	fee, err := decimal.NewFromString(r.Fee)
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("search %s: bad fee %q: %w", r.ID, r.Fee, err)
	}
	s := domain.SearchRequest{
		ID:         id,
		AccountID:  r.AccountID,
		Tier:       domain.SearchTier(r.Tier),
		BasePrice:  base,
		Fee:        fee,
		Status:     domain.SearchStatus(r.Status),
		TTLMonths:  r.TTLMonths,
		CreatedAt:  domain.Timestamp(r.CreatedAt),
		ResolvedAt: domain.Timestamp(r.ResolvedAt),
		Seq:        uint64(r.Seq),
	}
	if err := json.Unmarshal([]byte(r.Spec), &s.Spec); err != nil {
		return domain.SearchRequest{}, fmt.Errorf("search %s: unmarshal spec: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Found), &s.Found); err != nil {
		return domain.SearchRequest{}, fmt.Errorf("search %s: unmarshal found: %w", r.ID, err)
	}
	return s, nil
}

func listingToRow(l domain.SaleListing) (listingRow, error) {
	offer, err := json.Marshal(l.Offer)
	if err != nil {
		return listingRow{}, fmt.Errorf("listing %s: marshal offer: %w", l.ID, err)
	}
	return listingRow{
		ID:          l.ID.String(),
		AccountID:   l.AccountID,
		AssetRef:    l.AssetRef,
		AgentTier:   string(l.AgentTier),
		PriceTier:   string(l.PriceTier),
		AskPrice:    l.AskPrice.String(),
		Fee:         l.Fee.String(),
		Status:      string(l.Status),
		DelayMonths: l.DelayMonths,
		Retries:     l.Retries,
		Offer:       string(offer),
		CreatedAt:   int64(l.CreatedAt),
		ResolvedAt:  int64(l.ResolvedAt),
		Seq:         int64(l.Seq),
	}, nil
}

func rowToListing(r listingRow) (domain.SaleListing, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.SaleListing{}, fmt.Errorf("listing %s: bad id: %w", r.ID, err)
	}
	ask, err := decimal.NewFromString(r.AskPrice)
	if err != nil {
		return domain.SaleListing{}, fmt.Errorf("listing %s: bad ask_price %q: %w", r.ID, r.AskPrice, err)
	}
	fee, err := decimal.NewFromString(r.Fee)
	if err != nil {
		return domain.SaleListing{}, fmt.Errorf("listing %s: bad fee %q: %w", r.ID, r.Fee, err)
	}
	l := domain.SaleListing{
		ID:          id,
		AccountID:   r.AccountID,
		AssetRef:    r.AssetRef,
		AgentTier:   domain.AgentTier(r.AgentTier),
		PriceTier:   domain.PriceTier(r.PriceTier),
		AskPrice:    ask,
		Fee:         fee,
		Status:      domain.ListingStatus(r.Status),
		DelayMonths: r.DelayMonths,
		Retries:     r.Retries,
		CreatedAt:   domain.Timestamp(r.CreatedAt),
		ResolvedAt:  domain.Timestamp(r.ResolvedAt),
		Seq:         uint64(r.Seq),
	}
	if err := json.Unmarshal([]byte(r.Offer), &l.Offer); err != nil {
		return domain.SaleListing{}, fmt.Errorf("listing %s: unmarshal offer: %w", r.ID, err)
	}
	return l, nil
}

func assetToRow(accountID string, a domain.Asset) assetRow {
	return assetRow{
		AccountID: accountID,
		Ref:       a.Ref,
		Kind:      a.Kind,
		Brand:     a.Brand,
		Value:     a.Value.String(),
		Damage:    a.Damage,
		Wear:      a.Wear,
		Held:      a.Held,
	}
}

func rowToAsset(r assetRow) (domain.Asset, error) {
	v, err := decimal.NewFromString(r.Value)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("asset %s/%s: bad value %q: %w", r.AccountID, r.Ref, r.Value, err)
	}
	return domain.Asset{
		Ref:    r.Ref,
		Kind:   r.Kind,
		Brand:  r.Brand,
		Value:  v,
		Damage: r.Damage,
		Wear:   r.Wear,
		Held:   r.Held,
	}, nil
}
