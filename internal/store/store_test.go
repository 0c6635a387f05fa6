package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

func buildTestCoin(coinID string, coinType domain.CoinType, year int, country string) schema.Coin {
	return schema.Coin{
		CoinID:   coinID,
		CoinType: coinType,
		Year:     year,
		Country:  country,
		Series:   fmt.Sprintf("%s-%d", country, year),
		Value:    decimal.NewFromInt(2),
	}
}

func buildTestEvent(name, coinID string, date time.Time, active bool) schema.OwnershipEvent {
	return schema.OwnershipEvent{
		ID:        uuid.NewString(),
		Name:      name,
		CoinID:    coinID,
		Date:      date,
		CreatedAt: time.Now().UTC(),
		CreatedBy: "test",
		IsActive:  active,
	}
}

func buildTestGroup(key, name string) *schema.Group {
	return &schema.Group{
		ID:       uuid.NewString(),
		GroupKey: key,
		Name:     name,
		IsActive: true,
	}
}

func buildTestMember(groupID, name, alias string) *schema.GroupMember {
	return &schema.GroupMember{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		Name:     name,
		Alias:    alias,
		IsActive: true,
	}
}

// =============================================================================
// Test: Catalog
// =============================================================================

func testInsertAndGetCoins(t *testing.T, store Store) {
	ctx := context.Background()

	coins := []schema.Coin{
		buildTestCoin("RE1999FRA-A-RE1-200", domain.CoinTypeRegular, 1999, "France"),
		buildTestCoin("RE2002DEU-A-RE1-200", domain.CoinTypeRegular, 2002, "Germany"),
		buildTestCoin("CC2004GRC-A-CC1-200", domain.CoinTypeCommemorative, 2004, "Greece"),
	}
	require.NoError(t, store.InsertCoins(ctx, coins))

	t.Run("ordered year DESC, country ASC", func(t *testing.T) {
		got, err := store.GetCoins(ctx, domain.CoinFilter{}, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "CC2004GRC-A-CC1-200", got[0].CoinID)
		assert.Equal(t, "RE2002DEU-A-RE1-200", got[1].CoinID)
		assert.Equal(t, "RE1999FRA-A-RE1-200", got[2].CoinID)
	})

	t.Run("filter by type", func(t *testing.T) {
		got, err := store.GetCoins(ctx, domain.CoinFilter{CoinType: domain.CoinTypeCommemorative}, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "CC2004GRC-A-CC1-200", got[0].CoinID)
	})

	t.Run("filter by country and year", func(t *testing.T) {
		got, err := store.GetCoins(ctx, domain.CoinFilter{Country: "Germany", Year: 2002}, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("search matches coin id", func(t *testing.T) {
		got, err := store.GetCoins(ctx, domain.CoinFilter{Search: "1999fra"}, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "RE1999FRA-A-RE1-200", got[0].CoinID)
	})

	t.Run("count honors filter", func(t *testing.T) {
		total, err := store.CountCoins(ctx, domain.CoinFilter{CoinType: domain.CoinTypeRegular})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})

	t.Run("pagination", func(t *testing.T) {
		got, err := store.GetCoins(ctx, domain.CoinFilter{}, 2, 2)
		require.NoError(t, err)
		require.Len(t, got, 1)
	})
}

func testGetCoinByID(t *testing.T, store Store) {
	ctx := context.Background()

	coin := buildTestCoin("RE1999FRA-A-RE1-100", domain.CoinTypeRegular, 1999, "France")
	require.NoError(t, store.InsertCoins(ctx, []schema.Coin{coin}))

	t.Run("existing coin", func(t *testing.T) {
		got, err := store.GetCoinByID(ctx, "RE1999FRA-A-RE1-100")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "France", got.Country)
		assert.True(t, got.Value.Equal(decimal.NewFromInt(2)))
	})

	t.Run("missing coin returns nil without error", func(t *testing.T) {
		got, err := store.GetCoinByID(ctx, "RE1999XXX-A-RE1-100")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func testExistingCoinIDs(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.InsertCoins(ctx, []schema.Coin{
		buildTestCoin("RE1999FRA-A-RE1-100", domain.CoinTypeRegular, 1999, "France"),
	}))

	got, err := store.ExistingCoinIDs(ctx, []string{"RE1999FRA-A-RE1-100", "RE2002DEU-A-RE1-100"})
	require.NoError(t, err)
	assert.Equal(t, []string{"RE1999FRA-A-RE1-100"}, got)

	got, err = store.ExistingCoinIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testCatalogStats(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.InsertCoins(ctx, []schema.Coin{
		buildTestCoin("RE1999FRA-A-RE1-200", domain.CoinTypeRegular, 1999, "France"),
		buildTestCoin("RE2002DEU-A-RE1-200", domain.CoinTypeRegular, 2002, "Germany"),
		buildTestCoin("CC2004GRC-A-CC1-200", domain.CoinTypeCommemorative, 2004, "Greece"),
	}))

	stats, err := store.GetCatalogStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCoins)
	assert.Equal(t, int64(3), stats.TotalCountries)
	assert.Equal(t, int64(2), stats.RegularCoins)
	assert.Equal(t, int64(1), stats.CommemorativeCoins)
}

func testFilterOptions(t *testing.T, store Store) {
	ctx := context.Background()

	franc := buildTestCoin("RE1999FRA-A-RE1-100", domain.CoinTypeRegular, 1999, "France")
	franc.Value = decimal.NewFromFloat(1)
	commemorative := buildTestCoin("CC2004GRC-A-CC1-200", domain.CoinTypeCommemorative, 2004, "Greece")
	commemorative.Series = "CC-2004-Olympics"
	require.NoError(t, store.InsertCoins(ctx, []schema.Coin{franc, commemorative}))

	options, err := store.GetFilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Greece"}, options.Countries)
	assert.Equal(t, []string{"CC-2004-Olympics"}, options.Commemoratives)
	require.Len(t, options.Denominations, 2)
}

func testResetCatalog(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.InsertCoins(ctx, []schema.Coin{
		buildTestCoin("RE1999FRA-A-RE1-100", domain.CoinTypeRegular, 1999, "France"),
	}))
	require.NoError(t, store.ResetCatalog(ctx))

	total, err := store.CountCoins(ctx, domain.CoinFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

// =============================================================================
// Test: History
// =============================================================================

func testOwnershipEvents(t *testing.T, store Store) {
	ctx := context.Background()
	acquired := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	event := buildTestEvent("alice", "RE1999FRA-A-RE1-100", acquired, true)
	require.NoError(t, store.InsertOwnershipEvent(ctx, &event))
	require.NoError(t, store.InsertOwnershipEvents(ctx, []schema.OwnershipEvent{
		buildTestEvent("alice", "RE1999FRA-A-RE1-100", acquired.AddDate(0, 1, 0), false),
		buildTestEvent("bob", "RE2002DEU-A-RE1-100", acquired, true),
	}))

	t.Run("events for coin ordered date DESC", func(t *testing.T) {
		events, err := store.GetEventsForCoin(ctx, "RE1999FRA-A-RE1-100", "")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.False(t, events[0].IsActive)
		assert.True(t, events[1].IsActive)
	})

	t.Run("events for coin scoped to one name", func(t *testing.T) {
		events, err := store.GetEventsForCoin(ctx, "RE2002DEU-A-RE1-100", "alice")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("events for owner", func(t *testing.T) {
		events, err := store.GetEventsForOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "RE2002DEU-A-RE1-100", events[0].CoinID)
	})

	t.Run("events for owners", func(t *testing.T) {
		events, err := store.GetEventsForOwners(ctx, []string{"alice", "bob"})
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("events for coins", func(t *testing.T) {
		events, err := store.GetEventsForCoins(ctx, []string{"RE1999FRA-A-RE1-100"})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("all events", func(t *testing.T) {
		events, err := store.GetAllEvents(ctx)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})
}

func testHistoryPage(t *testing.T, store Store) {
	ctx := context.Background()

	march := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertOwnershipEvents(ctx, []schema.OwnershipEvent{
		buildTestEvent("alice", "RE1999FRA-A-RE1-100", march, true),
		buildTestEvent("alice", "RE2002DEU-A-RE1-100", april, true),
		buildTestEvent("bob", "RE1999FRA-A-RE1-100", april, true),
	}))

	t.Run("filter by name", func(t *testing.T) {
		events, total, err := store.GetHistoryPage(ctx, HistoryPageFilter{Name: "alice"}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, events, 2)
	})

	t.Run("filter by month", func(t *testing.T) {
		events, total, err := store.GetHistoryPage(ctx, HistoryPageFilter{Month: "2024-04"}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, events, 2)
	})

	t.Run("search over coin id", func(t *testing.T) {
		_, total, err := store.GetHistoryPage(ctx, HistoryPageFilter{Search: "2002deu"}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("pagination with total", func(t *testing.T) {
		events, total, err := store.GetHistoryPage(ctx, HistoryPageFilter{}, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, events, 1)
	})

	t.Run("distinct names", func(t *testing.T) {
		names, err := store.HistoryNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, names)
	})
}

func testResetHistory(t *testing.T, store Store) {
	ctx := context.Background()

	event := buildTestEvent("alice", "RE1999FRA-A-RE1-100", time.Now().UTC(), true)
	require.NoError(t, store.InsertOwnershipEvent(ctx, &event))
	require.NoError(t, store.ResetHistory(ctx))

	events, err := store.GetAllEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// =============================================================================
// Test: Groups
// =============================================================================

func testGroupLifecycle(t *testing.T, store Store) {
	ctx := context.Background()

	group := buildTestGroup("euro-fans", "Euro Fans")
	require.NoError(t, store.InsertGroup(ctx, group))

	t.Run("get by key", func(t *testing.T) {
		got, err := store.GetGroupByKey(ctx, "euro-fans")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, group.ID, got.ID)
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := store.GetGroupByID(ctx, group.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("missing key returns nil without error", func(t *testing.T) {
		got, err := store.GetGroupByKey(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rename", func(t *testing.T) {
		require.NoError(t, store.UpdateGroupName(ctx, group.ID, "Euro Friends"))
		got, err := store.GetGroupByID(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, "Euro Friends", got.Name)
		assert.Equal(t, "euro-fans", got.GroupKey)
	})

	t.Run("list active ordered by name", func(t *testing.T) {
		other := buildTestGroup("coin-club", "Coin Club")
		require.NoError(t, store.InsertGroup(ctx, other))

		groups, err := store.ListActiveGroups(ctx)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "Coin Club", groups[0].Name)
	})
}

func testSoftDeleteGroupCascades(t *testing.T, store Store) {
	ctx := context.Background()

	group := buildTestGroup("euro-fans", "Euro Fans")
	require.NoError(t, store.InsertGroup(ctx, group))
	require.NoError(t, store.InsertMember(ctx, buildTestMember(group.ID, "alice", "Allie")))
	require.NoError(t, store.InsertMember(ctx, buildTestMember(group.ID, "bob", "")))

	require.NoError(t, store.SoftDeleteGroup(ctx, group.ID))

	got, err := store.GetGroupByKey(ctx, "euro-fans")
	require.NoError(t, err)
	assert.Nil(t, got)

	members, err := store.GetActiveMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	err = store.SoftDeleteGroup(ctx, group.ID)
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func testGroupMembers(t *testing.T, store Store) {
	ctx := context.Background()

	group := buildTestGroup("euro-fans", "Euro Fans")
	require.NoError(t, store.InsertGroup(ctx, group))
	require.NoError(t, store.InsertMember(ctx, buildTestMember(group.ID, "zoe", "Arrow")))
	require.NoError(t, store.InsertMember(ctx, buildTestMember(group.ID, "bob", "")))

	t.Run("active members ordered by display name", func(t *testing.T) {
		members, err := store.GetActiveMembers(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		// alias sorts for zoe, bare name for bob
		assert.Equal(t, "zoe", members[0].Name)
		assert.Equal(t, "bob", members[1].Name)
	})

	t.Run("get member", func(t *testing.T) {
		member, err := store.GetMember(ctx, group.ID, "bob")
		require.NoError(t, err)
		require.NotNil(t, member)

		member, err = store.GetMember(ctx, group.ID, "ghost")
		require.NoError(t, err)
		assert.Nil(t, member)
	})

	t.Run("update alias", func(t *testing.T) {
		require.NoError(t, store.UpdateMemberAlias(ctx, group.ID, "bob", "Bobby"))
		member, err := store.GetMember(ctx, group.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, "Bobby", member.Alias)

		err = store.UpdateMemberAlias(ctx, group.ID, "ghost", "x")
		assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	})

	t.Run("soft delete member", func(t *testing.T) {
		require.NoError(t, store.SoftDeleteMember(ctx, group.ID, "zoe"))
		members, err := store.GetActiveMembers(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)

		err = store.SoftDeleteMember(ctx, group.ID, "zoe")
		assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	})
}

// =============================================================================
// Suite runner
// =============================================================================

// RunStoreTests runs the full store suite against an implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"InsertAndGetCoins", testInsertAndGetCoins},
		{"GetCoinByID", testGetCoinByID},
		{"ExistingCoinIDs", testExistingCoinIDs},
		{"CatalogStats", testCatalogStats},
		{"FilterOptions", testFilterOptions},
		{"ResetCatalog", testResetCatalog},
		{"OwnershipEvents", testOwnershipEvents},
		{"HistoryPage", testHistoryPage},
		{"ResetHistory", testResetHistory},
		{"GroupLifecycle", testGroupLifecycle},
		{"SoftDeleteGroupCascades", testSoftDeleteGroupCascades},
		{"GroupMembers", testGroupMembers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
