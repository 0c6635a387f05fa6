package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/catalog"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/mocks"
	"github.com/myeurocoins/coin-catalog/internal/store"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

type fakeCatalogStore struct {
	coins     []schema.Coin
	events    []schema.OwnershipEvent
	getCalls  int
	statCalls int
}

func (f *fakeCatalogStore) GetCoins(_ context.Context, filter domain.CoinFilter, limit, offset int) ([]schema.Coin, error) {
	f.getCalls++
	var out []schema.Coin
	for _, c := range f.coins {
		if filter.Country != "" && c.Country != filter.Country {
			continue
		}
		if filter.Year != 0 && c.Year != filter.Year {
			continue
		}
		out = append(out, c)
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCatalogStore) CountCoins(_ context.Context, filter domain.CoinFilter) (int64, error) {
	var n int64
	for _, c := range f.coins {
		if filter.Country != "" && c.Country != filter.Country {
			continue
		}
		if filter.Year != 0 && c.Year != filter.Year {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeCatalogStore) GetCoinByID(_ context.Context, coinID string) (*schema.Coin, error) {
	for _, c := range f.coins {
		if c.CoinID == coinID {
			copied := c
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalogStore) GetCatalogStats(_ context.Context) (*domain.CatalogStats, error) {
	f.statCalls++
	return &domain.CatalogStats{TotalCoins: int64(len(f.coins))}, nil
}

func (f *fakeCatalogStore) GetFilterOptions(_ context.Context) (*domain.FilterOptions, error) {
	seen := make(map[string]struct{})
	var opts domain.FilterOptions
	for _, c := range f.coins {
		if _, ok := seen[c.Country]; !ok {
			seen[c.Country] = struct{}{}
			opts.Countries = append(opts.Countries, c.Country)
		}
	}
	return &opts, nil
}

func (f *fakeCatalogStore) GetHistoryPage(_ context.Context, filter store.HistoryPageFilter, limit, offset int) ([]schema.OwnershipEvent, int64, error) {
	var matched []schema.OwnershipEvent
	for _, e := range f.events {
		if filter.Name != "" && e.Name != filter.Name {
			continue
		}
		matched = append(matched, e)
	}
	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (f *fakeCatalogStore) HistoryNames(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, e := range f.events {
		if _, ok := seen[e.Name]; !ok {
			seen[e.Name] = struct{}{}
			names = append(names, e.Name)
		}
	}
	return names, nil
}

func testCoin(id, country string, year int) schema.Coin {
	return schema.Coin{
		CoinID:   id,
		CoinType: domain.CoinTypeRegular,
		Year:     year,
		Country:  country,
		Value:    decimal.NewFromFloat(2.00),
	}
}

func newService(t *testing.T, fs *fakeCatalogStore) (*catalog.Service, *cache.Service) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Now()).AnyTimes()

	cacheSvc := cache.New(clock, time.Minute)
	return catalog.NewService(fs, cacheSvc), cacheSvc
}

func TestCoinsPagination(t *testing.T) {
	fs := &fakeCatalogStore{coins: []schema.Coin{
		testCoin("a", "Austria", 2002),
		testCoin("b", "Belgium", 2002),
		testCoin("c", "Cyprus", 2008),
	}}
	svc, _ := newService(t, fs)

	page, err := svc.Coins(context.Background(), domain.CoinFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Coins, 1)
	assert.Equal(t, int64(3), page.Page.TotalItems)
	assert.Equal(t, 2, page.Page.TotalPages)
	assert.Equal(t, 2, page.Page.Page)
}

func TestCoinsCachedPerFilter(t *testing.T) {
	fs := &fakeCatalogStore{coins: []schema.Coin{
		testCoin("a", "Austria", 2002),
		testCoin("b", "Belgium", 2002),
	}}
	svc, _ := newService(t, fs)
	ctx := context.Background()

	_, err := svc.Coins(ctx, domain.CoinFilter{Country: "Austria"}, 1, 50)
	require.NoError(t, err)
	_, err = svc.Coins(ctx, domain.CoinFilter{Country: "Austria"}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.getCalls)

	// A different filter is a different cache entry.
	_, err = svc.Coins(ctx, domain.CoinFilter{Country: "Belgium"}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, fs.getCalls)
}

func TestCoinsInvalidatedByCatalogTag(t *testing.T) {
	fs := &fakeCatalogStore{coins: []schema.Coin{testCoin("a", "Austria", 2002)}}
	svc, cacheSvc := newService(t, fs)
	ctx := context.Background()

	_, err := svc.Coins(ctx, domain.CoinFilter{}, 1, 50)
	require.NoError(t, err)

	cacheSvc.Invalidate(cache.TagCatalog)

	_, err = svc.Coins(ctx, domain.CoinFilter{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, fs.getCalls)
}

func TestCoinByID(t *testing.T) {
	fs := &fakeCatalogStore{coins: []schema.Coin{testCoin("a", "Austria", 2002)}}
	svc, _ := newService(t, fs)

	coin, err := svc.CoinByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Austria", coin.Country)

	_, err = svc.CoinByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrCoinNotFound)
}

func TestStatsCached(t *testing.T) {
	fs := &fakeCatalogStore{coins: []schema.Coin{testCoin("a", "Austria", 2002)}}
	svc, _ := newService(t, fs)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalCoins)
	}
	assert.Equal(t, 1, fs.statCalls)
}

func TestHistoryEvents(t *testing.T) {
	fs := &fakeCatalogStore{events: []schema.OwnershipEvent{
		{ID: "1", Name: "alice", CoinID: "a", IsActive: true},
		{ID: "2", Name: "bob", CoinID: "a", IsActive: true},
		{ID: "3", Name: "alice", CoinID: "b", IsActive: false},
	}}
	svc, _ := newService(t, fs)

	page, err := svc.HistoryEvents(context.Background(), store.HistoryPageFilter{Name: "alice"}, 1, 100)
	require.NoError(t, err)
	assert.Len(t, page.Events, 2)
	assert.Equal(t, int64(2), page.Page.TotalItems)

	names, err := svc.HistoryNames(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)
}
