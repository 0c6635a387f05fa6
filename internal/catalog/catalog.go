// Package catalog serves read views over the shared coin catalog. Every
// read goes through the query cache; writes elsewhere invalidate by tag.
package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// Page size bounds for the public coin browser and the admin history
// browser. Out-of-range requests fall back to the default.
const (
	DefaultPageSize        = 50
	MaxPageSize            = 200
	DefaultHistoryPageSize = 100
	MaxHistoryPageSize     = 500
)

// CatalogStore is the slice of the warehouse the catalog reads.
type CatalogStore interface {
	GetCoins(ctx context.Context, filter domain.CoinFilter, limit, offset int) ([]schema.Coin, error)
	CountCoins(ctx context.Context, filter domain.CoinFilter) (int64, error)
	GetCoinByID(ctx context.Context, coinID string) (*schema.Coin, error)
	GetCatalogStats(ctx context.Context) (*domain.CatalogStats, error)
	GetFilterOptions(ctx context.Context) (*domain.FilterOptions, error)
	GetHistoryPage(ctx context.Context, filter store.HistoryPageFilter, limit, offset int) ([]schema.OwnershipEvent, int64, error)
	HistoryNames(ctx context.Context) ([]string, error)
}

// CoinPage is one page of catalog coins with its pagination metadata.
type CoinPage struct {
	Coins []schema.Coin `json:"coins"`
	Page  domain.Page   `json:"page"`
}

// HistoryPage is one page of raw ledger events for the admin browser.
type HistoryPage struct {
	Events []domain.EventRecord `json:"events"`
	Page   domain.Page          `json:"page"`
}

// Service exposes cached catalog reads.
type Service struct {
	store CatalogStore
	cache *cache.Service
}

// NewService creates a catalog service
func NewService(store CatalogStore, cacheSvc *cache.Service) *Service {
	return &Service{store: store, cache: cacheSvc}
}

// Coins returns one catalog page for the public browser, ordered year DESC
// then country ASC.
func (s *Service) Coins(ctx context.Context, filter domain.CoinFilter, page, pageSize int) (*CoinPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	spec := cache.Spec{
		Query: "catalog_coins",
		Params: map[string]string{
			"filter":    coinFilterKey(filter),
			"page":      strconv.Itoa(page),
			"page_size": strconv.Itoa(pageSize),
		},
		Tags: []string{cache.TagCatalog},
	}
	return cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) (*CoinPage, error) {
		coins, err := s.store.GetCoins(ctx, filter, pageSize, (page-1)*pageSize)
		if err != nil {
			return nil, err
		}
		total, err := s.store.CountCoins(ctx, filter)
		if err != nil {
			return nil, err
		}
		totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
		return &CoinPage{
			Coins: coins,
			Page: domain.Page{
				Page:       page,
				PageSize:   pageSize,
				TotalItems: total,
				TotalPages: totalPages,
			},
		}, nil
	})
}

// CoinByID fetches one coin. Returns ErrCoinNotFound for unknown ids.
func (s *Service) CoinByID(ctx context.Context, coinID string) (*schema.Coin, error) {
	spec := cache.Spec{
		Query:  "catalog_coin",
		Params: map[string]string{"coin_id": coinID},
		Tags:   []string{cache.TagCatalog, cache.TagCoin(coinID)},
	}
	coin, err := cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) (*schema.Coin, error) {
		return s.store.GetCoinByID(ctx, coinID)
	})
	if err != nil {
		return nil, err
	}
	if coin == nil {
		return nil, domain.ErrCoinNotFound
	}
	return coin, nil
}

// Stats returns catalog-wide counts.
func (s *Service) Stats(ctx context.Context) (*domain.CatalogStats, error) {
	spec := cache.Spec{
		Query: "catalog_stats",
		Tags:  []string{cache.TagCatalog},
	}
	return cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) (*domain.CatalogStats, error) {
		return s.store.GetCatalogStats(ctx)
	})
}

// FilterOptions returns the distinct values the catalog browser can filter
// on: countries, commemorative series and denominations.
func (s *Service) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	spec := cache.Spec{
		Query: "catalog_filter_options",
		Tags:  []string{cache.TagCatalog},
	}
	return cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) (*domain.FilterOptions, error) {
		return s.store.GetFilterOptions(ctx)
	})
}

// HistoryEvents returns one page of raw ledger rows for the admin browser,
// newest first.
func (s *Service) HistoryEvents(ctx context.Context, filter store.HistoryPageFilter, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxHistoryPageSize {
		pageSize = DefaultHistoryPageSize
	}

	spec := cache.Spec{
		Query: "history_events",
		Params: map[string]string{
			"name":      filter.Name,
			"month":     filter.Month,
			"search":    filter.Search,
			"page":      strconv.Itoa(page),
			"page_size": strconv.Itoa(pageSize),
		},
		Tags: []string{cache.TagOwnership},
	}
	return cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) (*HistoryPage, error) {
		events, total, err := s.store.GetHistoryPage(ctx, filter, pageSize, (page-1)*pageSize)
		if err != nil {
			return nil, err
		}
		records := make([]domain.EventRecord, 0, len(events))
		for _, e := range events {
			records = append(records, domain.EventRecord{
				ID:        e.ID,
				Name:      e.Name,
				CoinID:    e.CoinID,
				Date:      e.Date,
				CreatedAt: e.CreatedAt,
				CreatedBy: e.CreatedBy,
				IsActive:  e.IsActive,
			})
		}
		totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
		return &HistoryPage{
			Events: records,
			Page: domain.Page{
				Page:       page,
				PageSize:   pageSize,
				TotalItems: total,
				TotalPages: totalPages,
			},
		}, nil
	})
}

// HistoryNames lists the distinct owner names present in the ledger.
func (s *Service) HistoryNames(ctx context.Context) ([]string, error) {
	spec := cache.Spec{
		Query: "history_names",
		Tags:  []string{cache.TagOwnership},
	}
	return cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) ([]string, error) {
		return s.store.HistoryNames(ctx)
	})
}

func coinFilterKey(f domain.CoinFilter) string {
	value := ""
	if f.Value != nil {
		value = f.Value.String()
	}
	return fmt.Sprintf("%s|%s|%d|%s|%s|%s",
		f.CoinType, f.Country, f.Year, f.Series, value, f.Search)
}
