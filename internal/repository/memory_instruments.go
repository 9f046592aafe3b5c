package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
)

// MemoryInstrumentRepo implements InstrumentRepository in process memory.
type MemoryInstrumentRepo struct {
	mu     sync.RWMutex
	byID   map[int64]models.Instrument
	nextID int64
}

func NewMemoryInstrumentRepo() *MemoryInstrumentRepo {
	return &MemoryInstrumentRepo{byID: make(map[int64]models.Instrument)}
}

var _ domrepo.InstrumentRepository = (*MemoryInstrumentRepo)(nil)

func (r *MemoryInstrumentRepo) Init(context.Context) error { return nil }

func (r *MemoryInstrumentRepo) Create(_ context.Context, inst *models.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.symbolTaken(inst.Symbol, 0) {
		return fmt.Errorf("create instrument: symbol already exists: %w", domrepo.ErrConflict)
	}
	r.nextID++
	inst.ID = r.nextID
	inst.CreatedAt = time.Now().UTC()
	inst.UpdatedAt = nil
	r.byID[inst.ID] = cloneInstrument(*inst)
	return nil
}

func (r *MemoryInstrumentRepo) Get(_ context.Context, id int64) (*models.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("get instrument %d: %w", id, domrepo.ErrNotFound)
	}
	out := cloneInstrument(inst)
	return &out, nil
}

func (r *MemoryInstrumentRepo) GetBySymbol(_ context.Context, symbol string) (*models.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.byID {
		if inst.Symbol == symbol {
			out := cloneInstrument(inst)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("get instrument %q: %w", symbol, domrepo.ErrNotFound)
}

func (r *MemoryInstrumentRepo) List(_ context.Context, offset, limit int) ([]models.Instrument, error) {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.Instrument, 0)
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, cloneInstrument(r.byID[ids[i]]))
	}
	r.mu.RUnlock()
	return out, nil
}

func (r *MemoryInstrumentRepo) Count(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

func (r *MemoryInstrumentRepo) Update(_ context.Context, inst *models.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inst.ID]; !ok {
		return fmt.Errorf("update instrument %d: %w", inst.ID, domrepo.ErrNotFound)
	}
	if r.symbolTaken(inst.Symbol, inst.ID) {
		return fmt.Errorf("update instrument %d: symbol already exists: %w", inst.ID, domrepo.ErrConflict)
	}
	now := time.Now().UTC()
	inst.UpdatedAt = &now
	r.byID[inst.ID] = cloneInstrument(*inst)
	return nil
}

func (r *MemoryInstrumentRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("delete instrument %d: %w", id, domrepo.ErrNotFound)
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryInstrumentRepo) Health(context.Context) error { return nil }

func (r *MemoryInstrumentRepo) Close() error { return nil }

// symbolTaken must be called with r.mu held.
func (r *MemoryInstrumentRepo) symbolTaken(symbol string, except int64) bool {
	for id, inst := range r.byID {
		if id != except && inst.Symbol == symbol {
			return true
		}
	}
	return false
}

func cloneInstrument(in models.Instrument) models.Instrument {
	if in.Description != nil {
		d := *in.Description
		in.Description = &d
	}
	if in.UpdatedAt != nil {
		u := *in.UpdatedAt
		in.UpdatedAt = &u
	}
	return in
}
