package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	"PriceServer/internal/repository"
	"PriceServer/pkg/cache"
	"PriceServer/pkg/logger"
)

type countingRepo struct {
	*repository.MemoryInstrumentRepo
	gets int
}

func (r *countingRepo) Get(ctx context.Context, id int64) (*models.Instrument, error) {
	r.gets++
	return r.MemoryInstrumentRepo.Get(ctx, id)
}

func TestInstrumentService_CRUDWithCache(t *testing.T) {
	repo := &countingRepo{MemoryInstrumentRepo: repository.NewMemoryInstrumentRepo()}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	svc := NewInstrumentService(repo, mc, time.Minute, logger.NewNop())
	ctx := context.Background()

	inst, err := svc.Create(ctx, models.InstrumentCreateRequest{Symbol: "EURUSD", Name: "Euro / US Dollar", AssetType: "CURRENCY"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		got, err := svc.Get(ctx, inst.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Symbol != "EURUSD" {
			t.Fatalf("symbol = %s", got.Symbol)
		}
	}
	if repo.gets != 1 {
		t.Fatalf("repo hit %d times, want 1", repo.gets)
	}

	name := "Euro"
	updated, err := svc.Update(ctx, inst.ID, models.InstrumentPatch{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Euro" || updated.UpdatedAt == nil {
		t.Fatalf("updated = %+v", updated)
	}
	got, _ := svc.Get(ctx, inst.ID)
	if got.Name != "Euro" {
		t.Fatal("stale cache after update")
	}

	if err := svc.Delete(ctx, inst.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, inst.ID); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("get after delete err = %v", err)
	}
}

func TestInstrumentService_Conflict(t *testing.T) {
	svc := NewInstrumentService(repository.NewMemoryInstrumentRepo(), nil, time.Minute, logger.NewNop())
	ctx := context.Background()
	req := models.InstrumentCreateRequest{Symbol: "BTCUSD", Name: "Bitcoin", AssetType: "CRYPTO"}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, req); !errors.Is(err, domrepo.ErrConflict) {
		t.Fatalf("err = %v", err)
	}
	bad := models.AssetType("BOND")
	if _, err := svc.Update(ctx, 1, models.InstrumentPatch{AssetType: &bad}); !errors.Is(err, domrepo.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestInstrumentService_List(t *testing.T) {
	svc := NewInstrumentService(repository.NewMemoryInstrumentRepo(), cache.Nop{}, time.Minute, logger.NewNop())
	ctx := context.Background()
	for _, sym := range []string{"A", "B", "C"} {
		if _, err := svc.Create(ctx, models.InstrumentCreateRequest{Symbol: sym, Name: sym, AssetType: "EQUITY"}); err != nil {
			t.Fatal(err)
		}
	}
	page, err := svc.List(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].Symbol != "C" {
		t.Fatalf("page = %+v", page)
	}
	if _, err := svc.List(ctx, 0, 2); !errors.Is(err, domrepo.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}
