// Package sqlite persists engine state in an embedded database. The engine
// saves best-effort after operations and sweeps everything after each tick;
// every versioned record carries its seq, and the upserts refuse to overwrite
// a newer row with an older one, so repeated or out-of-order saves are
// harmless. Snapshot loads the whole world back for engine start-up.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// Store is the sqlite-backed domain.Store.
type Store struct {
	db *sqlx.DB
}

var _ domain.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
// WAL keeps tick sweeps from blocking API reads.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// migrations returns the schema statements. Each string is one statement;
// sqlite executes them one at a time.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL DEFAULT '',
			pass_hash  TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS credit_profiles (
			account_id  TEXT PRIMARY KEY,
			events_json TEXT NOT NULL DEFAULT '[]',
			seq         INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS deals (
			id              TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL,
			kind            TEXT NOT NULL,
			status          TEXT NOT NULL,
			principal       TEXT NOT NULL,
			balance         TEXT NOT NULL,
			annual_rate     REAL NOT NULL,
			term_months     INTEGER NOT NULL,
			months_elapsed  INTEGER NOT NULL DEFAULT 0,
			quoted_payment  TEXT NOT NULL,
			payment_mode    TEXT NOT NULL,
			custom_amount   TEXT NOT NULL DEFAULT '0',
			residual        TEXT NOT NULL DEFAULT '0',
			missed_streak   INTEGER NOT NULL DEFAULT 0,
			collateral_json TEXT NOT NULL DEFAULT 'null',
			created_at      INTEGER NOT NULL,
			closed_at       INTEGER NOT NULL DEFAULT 0,
			last_serviced   INTEGER NOT NULL DEFAULT -1,
			seq             INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deals_account ON deals(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status)`,

		`CREATE TABLE IF NOT EXISTS searches (
			id          TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL,
			tier        TEXT NOT NULL,
			spec_json   TEXT NOT NULL DEFAULT '{}',
			base_price  TEXT NOT NULL,
			fee         TEXT NOT NULL,
			status      TEXT NOT NULL,
			ttl_months  INTEGER NOT NULL DEFAULT 0,
			found_json  TEXT NOT NULL DEFAULT 'null',
			created_at  INTEGER NOT NULL,
			resolved_at INTEGER NOT NULL DEFAULT 0,
			seq         INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_account ON searches(account_id)`,

		`CREATE TABLE IF NOT EXISTS listings (
			id           TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			asset_ref    TEXT NOT NULL,
			agent_tier   TEXT NOT NULL,
			price_tier   TEXT NOT NULL,
			ask_price    TEXT NOT NULL,
			fee          TEXT NOT NULL,
			status       TEXT NOT NULL,
			delay_months INTEGER NOT NULL DEFAULT 0,
			retries      INTEGER NOT NULL DEFAULT 0,
			offer_json   TEXT NOT NULL DEFAULT 'null',
			created_at   INTEGER NOT NULL,
			resolved_at  INTEGER NOT NULL DEFAULT 0,
			seq          INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_account ON listings(account_id)`,

		`CREATE TABLE IF NOT EXISTS balances (
			account_id TEXT PRIMARY KEY,
			balance    TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS assets (
			account_id TEXT NOT NULL,
			ref        TEXT NOT NULL,
			kind       TEXT NOT NULL DEFAULT '',
			brand      TEXT NOT NULL DEFAULT '',
			value      TEXT NOT NULL,
			damage     REAL NOT NULL DEFAULT 0,
			wear       REAL NOT NULL DEFAULT 0,
			held       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (account_id, ref)
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
}

func (s *Store) migrate() error {
	for i, stmt := range migrations() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

// ─── Saves ──────────────────────────────────────────────────────────────────

// SaveAccount upserts one account. Names are unique across accounts.
func (s *Store) SaveAccount(a domain.Account) error {
	_, err := s.db.NamedExec(`
		INSERT INTO accounts (id, name, email, pass_hash, created_at)
		VALUES (:id, :name, :email, :pass_hash, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			email      = excluded.email,
			pass_hash  = excluded.pass_hash,
			created_at = excluded.created_at
	`, accountToRow(a))
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

// SaveProfile upserts one credit profile unless the stored row is newer.
func (s *Store) SaveProfile(p domain.CreditProfile) error {
	row, err := profileToRow(p)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExec(`
		INSERT INTO credit_profiles (account_id, events_json, seq)
		VALUES (:account_id, :events_json, :seq)
		ON CONFLICT(account_id) DO UPDATE SET
			events_json = excluded.events_json,
			seq         = excluded.seq
		WHERE excluded.seq >= credit_profiles.seq
	`, row)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.AccountID, err)
	}
	return nil
}

// SaveDeal upserts one deal unless the stored row is newer.
func (s *Store) SaveDeal(d domain.Deal) error {
	row, err := dealToRow(d)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExec(`
		INSERT INTO deals (id, account_id, kind, status, principal, balance,
			annual_rate, term_months, months_elapsed, quoted_payment,
			payment_mode, custom_amount, residual, missed_streak,
			collateral_json, created_at, closed_at, last_serviced, seq)
		VALUES (:id, :account_id, :kind, :status, :principal, :balance,
			:annual_rate, :term_months, :months_elapsed, :quoted_payment,
			:payment_mode, :custom_amount, :residual, :missed_streak,
			:collateral_json, :created_at, :closed_at, :last_serviced, :seq)
		ON CONFLICT(id) DO UPDATE SET
			status          = excluded.status,
			balance         = excluded.balance,
			months_elapsed  = excluded.months_elapsed,
			payment_mode    = excluded.payment_mode,
			custom_amount   = excluded.custom_amount,
			missed_streak   = excluded.missed_streak,
			collateral_json = excluded.collateral_json,
			closed_at       = excluded.closed_at,
			last_serviced   = excluded.last_serviced,
			seq             = excluded.seq
		WHERE excluded.seq >= deals.seq
	`, row)
	if err != nil {
		return fmt.Errorf("save deal %s: %w", d.ID, err)
	}
	return nil
}

// SaveSearch upserts one search unless the stored row is newer.
func (s *Store) SaveSearch(sr domain.SearchRequest) error {
	row, err := searchToRow(sr)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExec(`
		INSERT INTO searches (id, account_id, tier, spec_json, base_price, fee,
			status, ttl_months, found_json, created_at, resolved_at, seq)
		VALUES (:id, :account_id, :tier, :spec_json, :base_price, :fee,
			:status, :ttl_months, :found_json, :created_at, :resolved_at, :seq)
		ON CONFLICT(id) DO UPDATE SET
			status      = excluded.status,
			ttl_months  = excluded.ttl_months,
			found_json  = excluded.found_json,
			resolved_at = excluded.resolved_at,
			seq         = excluded.seq
		WHERE excluded.seq >= searches.seq
	`, row)
	if err != nil {
		return fmt.Errorf("save search %s: %w", sr.ID, err)
	}
	return nil
}

// SaveListing upserts one listing unless the stored row is newer.
func (s *Store) SaveListing(l domain.SaleListing) error {
	row, err := listingToRow(l)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExec(`
		INSERT INTO listings (id, account_id, asset_ref, agent_tier, price_tier,
			ask_price, fee, status, delay_months, retries, offer_json,
			created_at, resolved_at, seq)
		VALUES (:id, :account_id, :asset_ref, :agent_tier, :price_tier,
			:ask_price, :fee, :status, :delay_months, :retries, :offer_json,
			:created_at, :resolved_at, :seq)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			delay_months = excluded.delay_months,
			retries      = excluded.retries,
			offer_json   = excluded.offer_json,
			resolved_at  = excluded.resolved_at,
			seq          = excluded.seq
		WHERE excluded.seq >= listings.seq
	`, row)
	if err != nil {
		return fmt.Errorf("save listing %s: %w", l.ID, err)
	}
	return nil
}

// SaveBalance upserts one account balance.
func (s *Store) SaveBalance(accountID string, balance decimal.Decimal) error {
	_, err := s.db.Exec(`
		INSERT INTO balances (account_id, balance)
		VALUES (?, ?)
		ON CONFLICT(account_id) DO UPDATE SET balance = excluded.balance
	`, accountID, balance.String())
	if err != nil {
		return fmt.Errorf("save balance %s: %w", accountID, err)
	}
	return nil
}

// SaveAssets replaces the account's full holdings in one transaction.
func (s *Store) SaveAssets(accountID string, assets []domain.Asset) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("save assets %s: %w", accountID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM assets WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("save assets %s: clear: %w", accountID, err)
	}
	stmt, err := tx.PrepareNamed(`
		INSERT INTO assets (account_id, ref, kind, brand, value, damage, wear, held)
		VALUES (:account_id, :ref, :kind, :brand, :value, :damage, :wear, :held)
	`)
	if err != nil {
		return fmt.Errorf("save assets %s: %w", accountID, err)
	}
	defer stmt.Close()

	for _, a := range assets {
		if _, err := stmt.Exec(assetToRow(accountID, a)); err != nil {
			return fmt.Errorf("save asset %s/%s: %w", accountID, a.Ref, err)
		}
	}
	return tx.Commit()
}

// SaveTick records the last fully processed simulated hour.
func (s *Store) SaveTick(t domain.Timestamp) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO meta (key, value) VALUES ('last_tick', ?)
	`, strconv.FormatInt(int64(t), 10))
	if err != nil {
		return fmt.Errorf("save tick: %w", err)
	}
	return nil
}

// ─── Snapshot ───────────────────────────────────────────────────────────────

// Snapshot loads the full persisted world. A database that has never seen a
// tick reports Tick -1 so the engine starts from hour zero.
func (s *Store) Snapshot() (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		Tick:     -1,
		Balances: make(map[string]decimal.Decimal),
		Assets:   make(map[string][]domain.Asset),
	}

	var tickStr string
	err := s.db.Get(&tickStr, `SELECT value FROM meta WHERE key = 'last_tick'`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh database
	case err != nil:
		return nil, fmt.Errorf("load tick: %w", err)
	default:
		t, err := strconv.ParseInt(tickStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("load tick: bad value %q: %w", tickStr, err)
		}
		snap.Tick = domain.Timestamp(t)
	}

	var accounts []accountRow
	if err := s.db.Select(&accounts, `SELECT * FROM accounts ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	for _, r := range accounts {
		a, err := rowToAccount(r)
		if err != nil {
			return nil, err
		}
		snap.Accounts = append(snap.Accounts, a)
	}

	var profiles []profileRow
	if err := s.db.Select(&profiles, `SELECT * FROM credit_profiles ORDER BY account_id`); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	for _, r := range profiles {
		p, err := rowToProfile(r)
		if err != nil {
			return nil, err
		}
		snap.Profiles = append(snap.Profiles, p)
	}

	var deals []dealRow
	if err := s.db.Select(&deals, `SELECT * FROM deals ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("load deals: %w", err)
	}
	for _, r := range deals {
		d, err := rowToDeal(r)
		if err != nil {
			return nil, err
		}
		snap.Deals = append(snap.Deals, d)
	}

	var searches []searchRow
	if err := s.db.Select(&searches, `SELECT * FROM searches ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("load searches: %w", err)
	}
	for _, r := range searches {
		sr, err := rowToSearch(r)
		if err != nil {
			return nil, err
		}
		snap.Searches = append(snap.Searches, sr)
	}

	var listings []listingRow
	if err := s.db.Select(&listings, `SELECT * FROM listings ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	for _, r := range listings {
		l, err := rowToListing(r)
		if err != nil {
			return nil, err
		}
		snap.Listings = append(snap.Listings, l)
	}

	var balances []balanceRow
	if err := s.db.Select(&balances, `SELECT * FROM balances`); err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	for _, r := range balances {
		b, err := decimal.NewFromString(r.Balance)
		if err != nil {
			return nil, fmt.Errorf("balance %s: bad value %q: %w", r.AccountID, r.Balance, err)
		}
		snap.Balances[r.AccountID] = b
	}

	var assets []assetRow
	if err := s.db.Select(&assets, `SELECT * FROM assets ORDER BY account_id, ref`); err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}
	for _, r := range assets {
		a, err := rowToAsset(r)
		if err != nil {
			return nil, err
		}
		snap.Assets[r.AccountID] = append(snap.Assets[r.AccountID], a)
	}

	return snap, nil
}
