package store

import (
	"context"

	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// HistoryPageFilter narrows the admin history browser. Zero values mean "no
// constraint". Month is a "2006-01" year-month string matched against the
// effective date.
type HistoryPageFilter struct {
	Name   string
	Month  string
	Search string
}

// Store defines the interface for warehouse operations. It is a pure
// adapter: parameterized reads and batch appends against the catalog,
// history, groups and group_users tables. Resolution, caching and business
// rules live in the services above it.
type Store interface {
	// GetCoins retrieves a catalog page matching the filter,
	// ordered year DESC, country ASC, series ASC
	GetCoins(ctx context.Context, filter domain.CoinFilter, limit, offset int) ([]schema.Coin, error)
	// CountCoins counts catalog rows matching the filter
	CountCoins(ctx context.Context, filter domain.CoinFilter) (int64, error)
	// GetCoinByID retrieves a coin by its catalog identifier
	GetCoinByID(ctx context.Context, coinID string) (*schema.Coin, error)
	// GetCoinsByIDs retrieves multiple coins by their catalog identifiers
	GetCoinsByIDs(ctx context.Context, coinIDs []string) ([]schema.Coin, error)
	// ExistingCoinIDs returns the subset of the given ids already present in the catalog
	ExistingCoinIDs(ctx context.Context, coinIDs []string) ([]string, error)
	// InsertCoins appends catalog rows in one batch
	InsertCoins(ctx context.Context, coins []schema.Coin) error
	// GetAllCoinsForExport retrieves the whole catalog ordered year ASC, series ASC, country ASC
	GetAllCoinsForExport(ctx context.Context) ([]schema.Coin, error)
	// GetCatalogStats computes catalog-wide summary counts
	GetCatalogStats(ctx context.Context) (*domain.CatalogStats, error)
	// GetFilterOptions lists distinct countries, commemorative series and denominations
	GetFilterOptions(ctx context.Context) (*domain.FilterOptions, error)
	// ResetCatalog deletes every catalog row. Destructive admin operation.
	ResetCatalog(ctx context.Context) error

	// InsertOwnershipEvent appends one ledger event
	InsertOwnershipEvent(ctx context.Context, event *schema.OwnershipEvent) error
	// InsertOwnershipEvents appends ledger events in one batch
	InsertOwnershipEvents(ctx context.Context, events []schema.OwnershipEvent) error
	// GetEventsForCoin retrieves all events for a coin, optionally filtered to one owner name
	GetEventsForCoin(ctx context.Context, coinID, name string) ([]schema.OwnershipEvent, error)
	// GetEventsForCoins retrieves all events touching any of the given coins
	GetEventsForCoins(ctx context.Context, coinIDs []string) ([]schema.OwnershipEvent, error)
	// GetEventsForOwner retrieves all events recorded for one owner name
	GetEventsForOwner(ctx context.Context, name string) ([]schema.OwnershipEvent, error)
	// GetEventsForOwners retrieves all events recorded for any of the given owner names
	GetEventsForOwners(ctx context.Context, names []string) ([]schema.OwnershipEvent, error)
	// GetAllEvents retrieves the full ledger ordered by effective date descending
	GetAllEvents(ctx context.Context) ([]schema.OwnershipEvent, error)
	// GetHistoryPage retrieves a filtered ledger page plus the total matching count
	GetHistoryPage(ctx context.Context, filter HistoryPageFilter, limit, offset int) ([]schema.OwnershipEvent, int64, error)
	// HistoryNames lists the distinct owner names present in the ledger
	HistoryNames(ctx context.Context) ([]string, error)
	// ResetHistory deletes every ledger row. Destructive admin operation.
	ResetHistory(ctx context.Context) error

	// InsertGroup appends a group row
	InsertGroup(ctx context.Context, group *schema.Group) error
	// UpdateGroupName renames an active group
	UpdateGroupName(ctx context.Context, groupID, name string) error
	// SoftDeleteGroup flips is_active on the group and all its members in one transaction
	SoftDeleteGroup(ctx context.Context, groupID string) error
	// GetGroupByKey retrieves an active group by its slug
	GetGroupByKey(ctx context.Context, groupKey string) (*schema.Group, error)
	// GetGroupByID retrieves an active group by id
	GetGroupByID(ctx context.Context, groupID string) (*schema.Group, error)
	// ListActiveGroups retrieves all active groups ordered by name
	ListActiveGroups(ctx context.Context) ([]schema.Group, error)
	// InsertMember appends a membership row
	InsertMember(ctx context.Context, member *schema.GroupMember) error
	// UpdateMemberAlias updates an active member's alias
	UpdateMemberAlias(ctx context.Context, groupID, name, alias string) error
	// SoftDeleteMember flips is_active on one membership row
	SoftDeleteMember(ctx context.Context, groupID, name string) error
	// GetMember retrieves an active member of a group by name
	GetMember(ctx context.Context, groupID, name string) (*schema.GroupMember, error)
	// GetActiveMembers retrieves a group's active members ordered by alias
	GetActiveMembers(ctx context.Context, groupID string) ([]schema.GroupMember, error)
}
