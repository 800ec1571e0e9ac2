package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/app/engine"
	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/deals"
)

// pathID parses the {id} route parameter.
func pathID(r *http.Request, w http.ResponseWriter) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed id")
		return uuid.Nil, false
	}
	return id, true
}

// ─── Account ────────────────────────────────────────────────────────────────

// handleAccount returns the caller's account and balance.
// GET /v1/account
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	acct, err := s.eng.Account(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	balance, err := s.eng.Balance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": acct,
		"balance": balance,
	})
}

// handleBalance returns the ledger balance.
// GET /v1/balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.eng.Balance(r.Context(), accountID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// handleDeposit credits the account.
// POST /v1/deposit
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.eng.Deposit(r.Context(), accountID(r), req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	balance, err := s.eng.Balance(r.Context(), accountID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

// ─── Deals ──────────────────────────────────────────────────────────────────

type createDealRequest struct {
	Kind         string          `json:"kind"`
	Principal    decimal.Decimal `json:"principal"`
	TermMonths   int             `json:"term_months"`
	DownFraction float64         `json:"down_fraction,omitempty"`
	Collateral   []string        `json:"collateral,omitempty"`
	TradeInRef   string          `json:"trade_in_ref,omitempty"`
	SameBrand    bool            `json:"same_brand,omitempty"`
}

// handleCreateDeal opens a finance, lease, or loan deal.
// POST /v1/deals
func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deal, err := s.eng.CreateDeal(r.Context(), deals.CreateParams{
		AccountID:    accountID(r),
		Kind:         domain.DealKind(req.Kind),
		Principal:    req.Principal,
		TermMonths:   req.TermMonths,
		DownFraction: req.DownFraction,
		Collateral:   req.Collateral,
		TradeInRef:   req.TradeInRef,
		SameBrand:    req.SameBrand,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// handleListDeals returns the caller's deals, oldest first.
// GET /v1/deals
func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deals": s.eng.Deals(accountID(r)),
	})
}

// GET /v1/deals/{id}
func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	deal, err := s.eng.Deal(accountID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

type setModeRequest struct {
	Mode         string          `json:"mode"`
	CustomAmount decimal.Decimal `json:"custom_amount,omitempty"`
}

// handleSetPaymentMode switches the monthly payment strategy. The change
// applies from the next month boundary.
// PUT /v1/deals/{id}/mode
func (s *Server) handleSetPaymentMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	var req setModeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deal, err := s.eng.SetPaymentMode(r.Context(), accountID(r), id, domain.PaymentMode(req.Mode), req.CustomAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// handlePayEarly settles the full balance immediately.
// POST /v1/deals/{id}/payoff
func (s *Server) handlePayEarly(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	deal, err := s.eng.PayEarly(r.Context(), accountID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// ─── Searches ───────────────────────────────────────────────────────────────

type startSearchRequest struct {
	Tier       string             `json:"tier"`
	Spec       domain.DesiredSpec `json:"spec,omitempty"`
	BasePrice  decimal.Decimal    `json:"base_price,omitempty"`
	CatalogRef string             `json:"catalog_ref,omitempty"`
}

// handleStartSearch opens a buy-side agent search. A catalog ref resolves
// the base price from the equipment catalog.
// POST /v1/searches
func (s *Server) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	var req startSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search, err := s.eng.StartSearch(r.Context(), engine.StartSearchParams{
		AccountID:  accountID(r),
		Tier:       domain.SearchTier(req.Tier),
		Spec:       req.Spec,
		BasePrice:  req.BasePrice,
		CatalogRef: req.CatalogRef,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, search)
}

// GET /v1/searches
func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"searches": s.eng.Searches(accountID(r)),
	})
}

// GET /v1/searches/{id}
func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	search, err := s.eng.Search(accountID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, search)
}

// handleCancelSearch abandons an open search. The fee stays spent.
// DELETE /v1/searches/{id}
func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	if err := s.eng.CancelSearch(r.Context(), accountID(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ─── Listings ───────────────────────────────────────────────────────────────

type listForSaleRequest struct {
	AssetRef  string `json:"asset_ref"`
	AgentTier string `json:"agent_tier"`
	PriceTier string `json:"price_tier"`
}

// handleListForSale puts an owned asset on the market.
// POST /v1/listings
func (s *Server) handleListForSale(w http.ResponseWriter, r *http.Request) {
	var req listForSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := s.eng.ListForSale(r.Context(), accountID(r), req.AssetRef,
		domain.AgentTier(req.AgentTier), domain.PriceTier(req.PriceTier))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// GET /v1/listings
func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listings": s.eng.Listings(accountID(r)),
	})
}

// GET /v1/listings/{id}
func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	listing, err := s.eng.Listing(accountID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

type respondOfferRequest struct {
	Accept bool `json:"accept"`
}

// handleRespondOffer accepts or declines the pending offer. Accepting
// settles the sale; declining spends one retry and relists.
// POST /v1/listings/{id}/offer
func (s *Server) handleRespondOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	var req respondOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := s.eng.RespondOffer(r.Context(), accountID(r), id, req.Accept)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// handleCancelListing withdraws a listing. The commission stays spent.
// DELETE /v1/listings/{id}
func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, w)
	if !ok {
		return
	}
	if err := s.eng.CancelListing(r.Context(), accountID(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ─── Credit, Assets, Catalog ────────────────────────────────────────────────

// handleCreditReport returns score, rating, trend, and a history tail.
// GET /v1/credit-report?tail=N
func (s *Server) handleCreditReport(w http.ResponseWriter, r *http.Request) {
	tail := 10
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "tail must be a non-negative integer")
			return
		}
		tail = n
	}
	report, err := s.eng.CreditReport(r.Context(), accountID(r), tail)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type addAssetRequest struct {
	Ref    string          `json:"ref"`
	Kind   string          `json:"kind,omitempty"`
	Brand  string          `json:"brand,omitempty"`
	Value  decimal.Decimal `json:"value"`
	Damage float64         `json:"damage,omitempty"`
	Wear   float64         `json:"wear,omitempty"`
}

// handleAddAsset registers equipment under the account. Holds are engine
// business; registered assets always start free.
// POST /v1/assets
func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req addAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset := domain.Asset{
		Ref:    req.Ref,
		Kind:   req.Kind,
		Brand:  req.Brand,
		Value:  req.Value,
		Damage: req.Damage,
		Wear:   req.Wear,
	}
	if err := s.eng.AddAsset(r.Context(), accountID(r), asset); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// GET /v1/assets
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.eng.Assets(r.Context(), accountID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

// handleTradeInQuote prices an owned asset for trade-in. Advisory: each call
// draws a fresh quote and nothing is committed.
// GET /v1/assets/{ref}/quote?same_brand=true
func (s *Server) handleTradeInQuote(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	sameBrand := r.URL.Query().Get("same_brand") == "true"
	quote, err := s.eng.TradeInQuote(r.Context(), accountID(r), ref, sameBrand)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ref":        ref,
		"same_brand": sameBrand,
		"quote":      quote,
	})
}

// handleCatalog lists the equipment catalog, empty when none is configured.
// GET /v1/catalog
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	items := s.eng.CatalogItems()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// ─── Admin ──────────────────────────────────────────────────────────────────

type tickRequest struct {
	Hours int64 `json:"hours"`
}

// handleAdminTick advances the simulation. An empty body or zero hours
// advances one hour.
// POST /v1/admin/tick
func (s *Server) handleAdminTick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Hours < 0 {
		writeError(w, http.StatusBadRequest, "hours must be non-negative")
		return
	}
	if req.Hours == 0 {
		req.Hours = 1
	}
	events := s.eng.AdvanceHours(r.Context(), req.Hours)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_tick": s.eng.LastTick(),
		"events":    events,
	})
}

// GET /v1/admin/status
func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Status())
}
