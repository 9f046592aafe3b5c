package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	"PriceServer/pkg/cache"
	"PriceServer/pkg/logger"
)

const instrumentCachePrefix = "instrument"

// InstrumentService manages instruments. Lookups by id are served from the cache and
// every write invalidates the cached entry.
type InstrumentService struct {
	repo   domrepo.InstrumentRepository
	cache  cache.Service
	ttl    time.Duration
	logger *logger.Logger
}

func NewInstrumentService(repo domrepo.InstrumentRepository, c cache.Service, ttl time.Duration, lgr *logger.Logger) *InstrumentService {
	if c == nil {
		c = cache.Nop{}
	}
	return &InstrumentService{repo: repo, cache: c, ttl: ttl, logger: lgr}
}

type InstrumentPage struct {
	Items []models.Instrument
	Total int64
	Page  int
	Size  int
}

func (s *InstrumentService) Create(ctx context.Context, req models.InstrumentCreateRequest) (*models.Instrument, error) {
	inst := &models.Instrument{
		Symbol:      strings.TrimSpace(req.Symbol),
		Name:        strings.TrimSpace(req.Name),
		AssetType:   models.AssetType(req.AssetType),
		Description: req.Description,
	}
	if inst.Symbol == "" || inst.Name == "" {
		return nil, fmt.Errorf("%w: symbol and name are required", domrepo.ErrInvalidInput)
	}
	if !inst.AssetType.Valid() {
		return nil, fmt.Errorf("%w: unknown asset type %q", domrepo.ErrInvalidInput, req.AssetType)
	}
	if err := s.repo.Create(ctx, inst); err != nil {
		return nil, err
	}
	s.logger.Info("instrument created", logger.Int64("id", inst.ID), logger.String("symbol", inst.Symbol))
	return inst, nil
}

func (s *InstrumentService) Get(ctx context.Context, id int64) (*models.Instrument, error) {
	key := cache.GenerateKey(instrumentCachePrefix, id)

	var cached models.Instrument
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("instrument cache read", logger.String("key", key), logger.Error(err))
	}

	inst, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, inst, s.ttl); err != nil {
		s.logger.Warn("instrument cache write", logger.String("key", key), logger.Error(err))
	}
	return inst, nil
}

// List returns a 1-based page of instruments ordered by id.
func (s *InstrumentService) List(ctx context.Context, page, size int) (*InstrumentPage, error) {
	if page < 1 || size < 1 {
		return nil, fmt.Errorf("%w: page and size must be positive", domrepo.ErrInvalidInput)
	}
	items, err := s.repo.List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count instruments: %w", err)
	}
	return &InstrumentPage{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *InstrumentService) Update(ctx context.Context, id int64, patch models.InstrumentPatch) (*models.Instrument, error) {
	if patch.AssetType != nil && !patch.AssetType.Valid() {
		return nil, fmt.Errorf("%w: unknown asset type %q", domrepo.ErrInvalidInput, *patch.AssetType)
	}
	inst, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(inst)
	if err := s.repo.Update(ctx, inst); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return inst, nil
}

func (s *InstrumentService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.logger.Info("instrument deleted", logger.Int64("id", id))
	return nil
}

func (s *InstrumentService) invalidate(ctx context.Context, id int64) {
	key := cache.GenerateKey(instrumentCachePrefix, id)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("instrument cache invalidate", logger.String("key", key), logger.Error(err))
	}
}
