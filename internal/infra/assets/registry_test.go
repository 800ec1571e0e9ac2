package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	t.Helper()
	r := NewRegistry()
	ctx := context.Background()
	if err := r.Add(ctx, "farm-1", domain.Asset{Ref: "tractor-1", Kind: "tractor", Brand: "Fendt", Value: dec("85000")}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(ctx, "farm-1", domain.Asset{Ref: "plow-1", Kind: "plow", Value: dec("12000")}); err != nil {
		t.Fatalf("add: %v", err)
	}
	return r, ctx
}

func TestRegistry_AddGetList(t *testing.T) {
	r, ctx := newTestRegistry(t)

	a, err := r.Get(ctx, "farm-1", "tractor-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Brand != "Fendt" || !a.Value.Equal(dec("85000")) {
		t.Errorf("unexpected asset: %+v", a)
	}

	list, err := r.List(ctx, "farm-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Ref != "plow-1" || list[1].Ref != "tractor-1" {
		t.Errorf("list should be ref-ordered, got %+v", list)
	}

	if _, err := r.Get(ctx, "farm-1", "combine-9"); !errors.Is(err, domain.ErrAssetNotFound) {
		t.Errorf("missing asset err = %v, want ErrAssetNotFound", err)
	}
}

func TestRegistry_TotalValue(t *testing.T) {
	r, ctx := newTestRegistry(t)
	total, err := r.TotalValue(ctx, "farm-1")
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if !total.Equal(dec("97000")) {
		t.Errorf("total = %s, want 97000", total)
	}

	empty, _ := r.TotalValue(ctx, "farm-unknown")
	if empty.Sign() != 0 {
		t.Errorf("unknown account total = %s, want 0", empty)
	}
}

func TestRegistry_HoldBlocksRemove(t *testing.T) {
	r, ctx := newTestRegistry(t)

	if err := r.Hold(ctx, "farm-1", "tractor-1"); err != nil {
		t.Fatalf("hold: %v", err)
	}

	if _, err := r.Remove(ctx, "farm-1", "tractor-1"); !errors.Is(err, domain.ErrIneligible) {
		t.Fatalf("remove of held asset err = %v, want ErrIneligible", err)
	}

	if err := r.ReleaseHold(ctx, "farm-1", "tractor-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := r.Remove(ctx, "farm-1", "tractor-1"); err != nil {
		t.Errorf("remove after release: %v", err)
	}
}

func TestRegistry_SeizeIgnoresHold(t *testing.T) {
	r, ctx := newTestRegistry(t)

	if err := r.Hold(ctx, "farm-1", "tractor-1"); err != nil {
		t.Fatalf("hold: %v", err)
	}
	a, err := r.Seize(ctx, "farm-1", "tractor-1")
	if err != nil {
		t.Fatalf("seize: %v", err)
	}
	if a.Ref != "tractor-1" {
		t.Errorf("seized %q, want tractor-1", a.Ref)
	}
	if _, err := r.Get(ctx, "farm-1", "tractor-1"); !errors.Is(err, domain.ErrAssetNotFound) {
		t.Error("seized asset should be gone")
	}
}

func TestRegistry_ReAddPreservesHold(t *testing.T) {
	r, ctx := newTestRegistry(t)

	if err := r.Hold(ctx, "farm-1", "tractor-1"); err != nil {
		t.Fatalf("hold: %v", err)
	}
	// Value refresh must not silently drop the collateral hold.
	if err := r.Add(ctx, "farm-1", domain.Asset{Ref: "tractor-1", Value: dec("80000")}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if _, err := r.Remove(ctx, "farm-1", "tractor-1"); !errors.Is(err, domain.ErrIneligible) {
		t.Errorf("hold lost on re-add: err = %v", err)
	}
}
