package cli

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/XelaNull/UsedPlus-sub003/internal/app/engine"
	"github.com/XelaNull/UsedPlus-sub003/internal/daemon"
	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/deals"
)

// ─── simulate ───────────────────────────────────────────────────────────────

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an offline simulation and print a summary",
	Long: `Populate a fresh in-memory world with accounts, equipment, deals,
searches, and sale listings, advance the clock the requested number of
months, and print the resulting event tally and account standings.

The seed fixes the generated scenario; outcome draws inside the engine are
always derived from each request's own ID, so a given scenario replays
identically run after run.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Int("months", 24, "Simulated months to run")
	simulateCmd.Flags().Int("accounts", 4, "Accounts to populate")
	simulateCmd.Flags().Int64("seed", 1, "Scenario generation seed")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	months, _ := cmd.Flags().GetInt("months")
	accounts, _ := cmd.Flags().GetInt("accounts")
	seed, _ := cmd.Flags().GetInt64("seed")
	if months < 1 || accounts < 1 {
		return fmt.Errorf("months and accounts must be at least 1")
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := daemon.Load(cfgPath)
	if err != nil {
		return err
	}
	// Offline run: in-memory only, no scheduler, no outbound sinks, and op
	// logging quieted so the summary stays readable.
	cfg.Storage.Path = ""
	cfg.Clock.Enabled = false
	cfg.Notify.Email.Enabled = false
	cfg.Notify.Telegram.Enabled = false
	cfg.Log.Level = "warn"

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	eng := d.Engine()
	ctx := cmd.Context()

	ids, err := populate(ctx, eng, rand.New(rand.NewSource(seed)), accounts)
	if err != nil {
		return err
	}

	hoursPerMonth := cfg.Engine.HoursPerMonth
	if hoursPerMonth <= 0 {
		hoursPerMonth = 720
	}
	events := eng.AdvanceHours(ctx, int64(months)*int64(hoursPerMonth))

	return printSummary(ctx, eng, ids, months, events)
}

var simBrands = []string{"Haverlund", "Ostfeld", "Brenner", "Калина", "Torvik"}

// populate builds the scenario: every account gets cash, two machines, a
// finance deal, and a buy-side search; alternating accounts also take a
// collateralized loan and list their second machine for sale. Every third
// account starts cash-lean so missed payments and defaults show up in the
// summary.
func populate(ctx context.Context, eng *engine.Engine, scen *rand.Rand, accounts int) ([]string, error) {
	searchTiers := []domain.SearchTier{domain.SearchLocal, domain.SearchRegional, domain.SearchNational}
	agentTiers := []domain.AgentTier{domain.AgentPrivate, domain.AgentLocal, domain.AgentRegional, domain.AgentNational}
	priceTiers := []domain.PriceTier{domain.PriceQuick, domain.PriceMarket, domain.PricePremium}

	ids := make([]string, 0, accounts)
	for i := 0; i < accounts; i++ {
		name := fmt.Sprintf("farm-%02d", i+1)
		a, err := eng.RegisterAccount(ctx, name, "", "")
		if err != nil {
			return nil, err
		}
		ids = append(ids, a.ID)

		cash := decimal.NewFromInt(int64(150000 + scen.Intn(100000)))
		if i%3 == 2 {
			cash = decimal.NewFromInt(25000)
		}
		if err := eng.Deposit(ctx, a.ID, cash); err != nil {
			return nil, err
		}

		brand := simBrands[scen.Intn(len(simBrands))]
		tractor := domain.Asset{
			Ref:   fmt.Sprintf("%s-tractor-%02d", name, i+1),
			Kind:  "tractor",
			Brand: brand,
			Value: decimal.NewFromInt(int64(80000 + scen.Intn(60000))),
		}
		harvester := domain.Asset{
			Ref:    fmt.Sprintf("%s-harvester-%02d", name, i+1),
			Kind:   "harvester",
			Brand:  simBrands[scen.Intn(len(simBrands))],
			Value:  decimal.NewFromInt(int64(60000 + scen.Intn(80000))),
			Damage: scen.Float64() * 0.3,
			Wear:   scen.Float64() * 0.4,
		}
		for _, asset := range []domain.Asset{tractor, harvester} {
			if err := eng.AddAsset(ctx, a.ID, asset); err != nil {
				return nil, err
			}
		}

		if _, err := eng.CreateDeal(ctx, deals.CreateParams{
			AccountID:    a.ID,
			Kind:         domain.KindFinance,
			Principal:    decimal.NewFromInt(int64(30000 + scen.Intn(60000))),
			TermMonths:   []int{36, 48, 60}[scen.Intn(3)],
			DownFraction: 0.10,
		}); err != nil {
			return nil, fmt.Errorf("%s: finance deal: %w", name, err)
		}

		if i%2 == 1 {
			if _, err := eng.CreateDeal(ctx, deals.CreateParams{
				AccountID:  a.ID,
				Kind:       domain.KindLoan,
				Principal:  decimal.NewFromInt(int64(20000 + scen.Intn(20000))),
				TermMonths: 24,
				Collateral: []string{tractor.Ref},
			}); err != nil {
				return nil, fmt.Errorf("%s: loan: %w", name, err)
			}

			if _, err := eng.ListForSale(ctx, a.ID, harvester.Ref,
				agentTiers[scen.Intn(len(agentTiers))],
				priceTiers[scen.Intn(len(priceTiers))]); err != nil {
				return nil, fmt.Errorf("%s: listing: %w", name, err)
			}
		}

		if _, err := eng.StartSearch(ctx, engine.StartSearchParams{
			AccountID: a.ID,
			Tier:      searchTiers[i%len(searchTiers)],
			Spec:      domain.DesiredSpec{Category: "tractor", MaxWear: 0.6},
			BasePrice: decimal.NewFromInt(int64(45000 + scen.Intn(40000))),
		}); err != nil {
			return nil, fmt.Errorf("%s: search: %w", name, err)
		}
	}
	return ids, nil
}

func printSummary(ctx context.Context, eng *engine.Engine, ids []string, months int, events []domain.Event) error {
	fmt.Fprintf(os.Stdout, "Simulated %d months (%d events)\n\n", months, len(events))

	tally := map[domain.EventType]int{}
	for _, ev := range events {
		tally[ev.Type]++
	}
	types := make([]string, 0, len(tally))
	for t := range tally {
		types = append(types, string(t))
	}
	sort.Strings(types)
	fmt.Fprintln(os.Stdout, "Events:")
	for _, t := range types {
		fmt.Fprintf(os.Stdout, "  %-20s %d\n", t, tally[domain.EventType(t)])
	}

	fmt.Fprintln(os.Stdout, "\nAccounts:")
	for _, id := range ids {
		a, err := eng.Account(id)
		if err != nil {
			return err
		}
		balance, err := eng.Balance(ctx, id)
		if err != nil {
			return err
		}
		report, err := eng.CreditReport(ctx, id, 0)
		if err != nil {
			return err
		}

		byStatus := map[domain.DealStatus]int{}
		for _, dl := range eng.Deals(id) {
			byStatus[dl.Status]++
		}
		fmt.Fprintf(os.Stdout, "  %-10s balance %12s  score %d (%s, %s)  deals", a.Name, balance.StringFixed(2), report.Score, report.Rating, report.Trend)
		statuses := make([]string, 0, len(byStatus))
		for s := range byStatus {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(os.Stdout, " %s=%d", s, byStatus[domain.DealStatus(s)])
		}
		fmt.Fprintln(os.Stdout)
	}

	st := eng.Status()
	fmt.Fprintf(os.Stdout, "\nClock at hour %d: %d pending / %d active deals, %d open searches, %d open listings\n",
		st.LastTick, st.PendingDeals, st.ActiveDeals, st.OpenSearches, st.OpenListings)
	return nil
}
