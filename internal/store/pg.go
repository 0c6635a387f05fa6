package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// calculateSafeBatchSize computes the batch size for bulk inserts that stays
// under PostgreSQL's extended-protocol limit of 65535 parameters per query.
// Each record consumes one parameter per inserted field, and a fixed headroom
// covers GORM bookkeeping and batch-level overhead.
func calculateSafeBatchSize(totalRecords int, fieldsPerRecord int) int {
	const maxParams = 65535
	const totalHeadroom = 1000

	availableParams := maxParams - totalHeadroom
	safeBatchSize := max(availableParams/fieldsPerRecord, 1)

	if safeBatchSize > totalRecords {
		return totalRecords
	}

	return safeBatchSize
}

// applyCoinFilter translates the catalog filter into WHERE clauses. The
// OwnedBy and OwnershipStatus fields are resolved against the ledger by the
// view composer and are deliberately ignored here.
func applyCoinFilter(query *gorm.DB, filter domain.CoinFilter) *gorm.DB {
	if filter.CoinType != "" {
		query = query.Where("coin_type = ?", filter.CoinType)
	}
	if filter.Country != "" {
		query = query.Where("country = ?", filter.Country)
	}
	if filter.Year != 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.Series != "" {
		query = query.Where("series = ?", filter.Series)
	}
	if filter.Value != nil {
		query = query.Where("value = ?", *filter.Value)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where(
			"coin_id ILIKE ? OR country ILIKE ? OR series ILIKE ? OR feature ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	return query
}

// GetCoins retrieves a catalog page matching the filter
func (s *pgStore) GetCoins(ctx context.Context, filter domain.CoinFilter, limit, offset int) ([]schema.Coin, error) {
	var coins []schema.Coin
	query := applyCoinFilter(s.db.WithContext(ctx).Model(&schema.Coin{}), filter).
		Order("year DESC").
		Order("country ASC").
		Order("series ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&coins).Error; err != nil {
		return nil, fmt.Errorf("failed to get coins: %w", err)
	}
	return coins, nil
}

// CountCoins counts catalog rows matching the filter
func (s *pgStore) CountCoins(ctx context.Context, filter domain.CoinFilter) (int64, error) {
	var count int64
	query := applyCoinFilter(s.db.WithContext(ctx).Model(&schema.Coin{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count coins: %w", err)
	}
	return count, nil
}

// GetCoinByID retrieves a coin by its catalog identifier
func (s *pgStore) GetCoinByID(ctx context.Context, coinID string) (*schema.Coin, error) {
	var coin schema.Coin
	err := s.db.WithContext(ctx).Where("coin_id = ?", coinID).First(&coin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get coin by id: %w", err)
	}
	return &coin, nil
}

// GetCoinsByIDs retrieves multiple coins by their catalog identifiers
func (s *pgStore) GetCoinsByIDs(ctx context.Context, coinIDs []string) ([]schema.Coin, error) {
	if len(coinIDs) == 0 {
		return nil, nil
	}
	var coins []schema.Coin
	if err := s.db.WithContext(ctx).
		Where("coin_id IN ?", coinIDs).
		Find(&coins).Error; err != nil {
		return nil, fmt.Errorf("failed to get coins by ids: %w", err)
	}
	return coins, nil
}

// ExistingCoinIDs returns the subset of the given ids already present in the catalog
func (s *pgStore) ExistingCoinIDs(ctx context.Context, coinIDs []string) ([]string, error) {
	if len(coinIDs) == 0 {
		return nil, nil
	}
	var existing []string
	if err := s.db.WithContext(ctx).
		Model(&schema.Coin{}).
		Where("coin_id IN ?", coinIDs).
		Pluck("coin_id", &existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing coin ids: %w", err)
	}
	return existing, nil
}

// InsertCoins appends catalog rows in one batch
func (s *pgStore) InsertCoins(ctx context.Context, coins []schema.Coin) error {
	if len(coins) == 0 {
		return nil
	}
	batchSize := calculateSafeBatchSize(len(coins), 11)
	if err := s.db.WithContext(ctx).CreateInBatches(coins, batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert coins: %w", err)
	}
	return nil
}

// GetAllCoinsForExport retrieves the whole catalog in export order
func (s *pgStore) GetAllCoinsForExport(ctx context.Context) ([]schema.Coin, error) {
	var coins []schema.Coin
	if err := s.db.WithContext(ctx).
		Order("year ASC").
		Order("series ASC").
		Order("country ASC").
		Find(&coins).Error; err != nil {
		return nil, fmt.Errorf("failed to get coins for export: %w", err)
	}
	return coins, nil
}

// GetCatalogStats computes catalog-wide summary counts
func (s *pgStore) GetCatalogStats(ctx context.Context) (*domain.CatalogStats, error) {
	var stats domain.CatalogStats
	db := s.db.WithContext(ctx).Model(&schema.Coin{})

	if err := db.Session(&gorm.Session{}).Count(&stats.TotalCoins).Error; err != nil {
		return nil, fmt.Errorf("failed to count coins: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Distinct("country").
		Count(&stats.TotalCountries).Error; err != nil {
		return nil, fmt.Errorf("failed to count countries: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Where("coin_type = ?", domain.CoinTypeRegular).
		Count(&stats.RegularCoins).Error; err != nil {
		return nil, fmt.Errorf("failed to count regular coins: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Where("coin_type = ?", domain.CoinTypeCommemorative).
		Count(&stats.CommemorativeCoins).Error; err != nil {
		return nil, fmt.Errorf("failed to count commemorative coins: %w", err)
	}

	return &stats, nil
}

// GetFilterOptions lists distinct countries, commemorative series and denominations
func (s *pgStore) GetFilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	var options domain.FilterOptions

	if err := s.db.WithContext(ctx).
		Model(&schema.Coin{}).
		Distinct("country").
		Order("country ASC").
		Pluck("country", &options.Countries).Error; err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Model(&schema.Coin{}).
		Where("coin_type = ? AND series <> ''", domain.CoinTypeCommemorative).
		Distinct("series").
		Order("series ASC").
		Pluck("series", &options.Commemoratives).Error; err != nil {
		return nil, fmt.Errorf("failed to list commemorative series: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Model(&schema.Coin{}).
		Distinct("value").
		Order("value ASC").
		Pluck("value", &options.Denominations).Error; err != nil {
		return nil, fmt.Errorf("failed to list denominations: %w", err)
	}

	return &options, nil
}

// ResetCatalog deletes every catalog row
func (s *pgStore) ResetCatalog(ctx context.Context) error {
	if err := s.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&schema.Coin{}).Error; err != nil {
		return fmt.Errorf("failed to reset catalog: %w", err)
	}
	return nil
}

// InsertOwnershipEvent appends one ledger event
func (s *pgStore) InsertOwnershipEvent(ctx context.Context, event *schema.OwnershipEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert ownership event: %w", err)
	}
	return nil
}

// InsertOwnershipEvents appends ledger events in one batch
func (s *pgStore) InsertOwnershipEvents(ctx context.Context, events []schema.OwnershipEvent) error {
	if len(events) == 0 {
		return nil
	}
	batchSize := calculateSafeBatchSize(len(events), 7)
	if err := s.db.WithContext(ctx).CreateInBatches(events, batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert ownership events: %w", err)
	}
	return nil
}

// GetEventsForCoin retrieves all events for a coin, optionally for one owner name
func (s *pgStore) GetEventsForCoin(ctx context.Context, coinID, name string) ([]schema.OwnershipEvent, error) {
	var events []schema.OwnershipEvent
	query := s.db.WithContext(ctx).Where("coin_id = ?", coinID)
	if name != "" {
		query = query.Where("name = ?", name)
	}
	if err := query.Order("date DESC, created_at DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get events for coin: %w", err)
	}
	return events, nil
}

// GetEventsForCoins retrieves all events touching any of the given coins
func (s *pgStore) GetEventsForCoins(ctx context.Context, coinIDs []string) ([]schema.OwnershipEvent, error) {
	if len(coinIDs) == 0 {
		return nil, nil
	}
	var events []schema.OwnershipEvent
	if err := s.db.WithContext(ctx).
		Where("coin_id IN ?", coinIDs).
		Order("date DESC, created_at DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get events for coins: %w", err)
	}
	return events, nil
}

// GetEventsForOwner retrieves all events recorded for one owner name
func (s *pgStore) GetEventsForOwner(ctx context.Context, name string) ([]schema.OwnershipEvent, error) {
	var events []schema.OwnershipEvent
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Order("date DESC, created_at DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get events for owner: %w", err)
	}
	return events, nil
}

// GetEventsForOwners retrieves all events recorded for any of the given owner names
func (s *pgStore) GetEventsForOwners(ctx context.Context, names []string) ([]schema.OwnershipEvent, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var events []schema.OwnershipEvent
	if err := s.db.WithContext(ctx).
		Where("name IN ?", names).
		Order("date DESC, created_at DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get events for owners: %w", err)
	}
	return events, nil
}

// GetAllEvents retrieves the full ledger ordered by effective date descending
func (s *pgStore) GetAllEvents(ctx context.Context) ([]schema.OwnershipEvent, error) {
	var events []schema.OwnershipEvent
	if err := s.db.WithContext(ctx).
		Order("date DESC, created_at DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get all events: %w", err)
	}
	return events, nil
}

// GetHistoryPage retrieves a filtered ledger page plus the total matching count
func (s *pgStore) GetHistoryPage(ctx context.Context, filter HistoryPageFilter, limit, offset int) ([]schema.OwnershipEvent, int64, error) {
	query := s.db.WithContext(ctx).Model(&schema.OwnershipEvent{})
	if filter.Name != "" {
		query = query.Where("name = ?", filter.Name)
	}
	if filter.Month != "" {
		query = query.Where("to_char(date, 'YYYY-MM') = ?", filter.Month)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("coin_id ILIKE ? OR name ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count history rows: %w", err)
	}

	var events []schema.OwnershipEvent
	if err := query.
		Order("date DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get history page: %w", err)
	}
	return events, total, nil
}

// HistoryNames lists the distinct owner names present in the ledger
func (s *pgStore) HistoryNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&schema.OwnershipEvent{}).
		Distinct("name").
		Order("name ASC").
		Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list history names: %w", err)
	}
	return names, nil
}

// ResetHistory deletes every ledger row
func (s *pgStore) ResetHistory(ctx context.Context) error {
	if err := s.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&schema.OwnershipEvent{}).Error; err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}
	return nil
}

// InsertGroup appends a group row
func (s *pgStore) InsertGroup(ctx context.Context, group *schema.Group) error {
	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// UpdateGroupName renames an active group
func (s *pgStore) UpdateGroupName(ctx context.Context, groupID, name string) error {
	result := s.db.WithContext(ctx).
		Model(&schema.Group{}).
		Where("id = ? AND is_active = true", groupID).
		Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("failed to update group name: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

// SoftDeleteGroup flips is_active on the group and all its members in one transaction
func (s *pgStore) SoftDeleteGroup(ctx context.Context, groupID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.Group{}).
			Where("id = ? AND is_active = true", groupID).
			Update("is_active", false)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrGroupNotFound
		}
		return tx.Model(&schema.GroupMember{}).
			Where("group_id = ? AND is_active = true", groupID).
			Update("is_active", false).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return err
		}
		return fmt.Errorf("failed to soft delete group: %w", err)
	}
	return nil
}

// GetGroupByKey retrieves an active group by its slug
func (s *pgStore) GetGroupByKey(ctx context.Context, groupKey string) (*schema.Group, error) {
	var group schema.Group
	err := s.db.WithContext(ctx).
		Where("group_key = ? AND is_active = true", groupKey).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group by key: %w", err)
	}
	return &group, nil
}

// GetGroupByID retrieves an active group by id
func (s *pgStore) GetGroupByID(ctx context.Context, groupID string) (*schema.Group, error) {
	var group schema.Group
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = true", groupID).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group by id: %w", err)
	}
	return &group, nil
}

// ListActiveGroups retrieves all active groups ordered by name
func (s *pgStore) ListActiveGroups(ctx context.Context) ([]schema.Group, error) {
	var groups []schema.Group
	if err := s.db.WithContext(ctx).
		Where("is_active = true").
		Order("name ASC").
		Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list active groups: %w", err)
	}
	return groups, nil
}

// InsertMember appends a membership row
func (s *pgStore) InsertMember(ctx context.Context, member *schema.GroupMember) error {
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// UpdateMemberAlias updates an active member's alias
func (s *pgStore) UpdateMemberAlias(ctx context.Context, groupID, name, alias string) error {
	result := s.db.WithContext(ctx).
		Model(&schema.GroupMember{}).
		Where("group_id = ? AND name = ? AND is_active = true", groupID, name).
		Update("alias", alias)
	if result.Error != nil {
		return fmt.Errorf("failed to update member alias: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// SoftDeleteMember flips is_active on one membership row
func (s *pgStore) SoftDeleteMember(ctx context.Context, groupID, name string) error {
	result := s.db.WithContext(ctx).
		Model(&schema.GroupMember{}).
		Where("group_id = ? AND name = ? AND is_active = true", groupID, name).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to soft delete member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// GetMember retrieves an active member of a group by name
func (s *pgStore) GetMember(ctx context.Context, groupID, name string) (*schema.GroupMember, error) {
	var member schema.GroupMember
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND name = ? AND is_active = true", groupID, name).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &member, nil
}

// GetActiveMembers retrieves a group's active members ordered by alias
func (s *pgStore) GetActiveMembers(ctx context.Context, groupID string) ([]schema.GroupMember, error) {
	var members []schema.GroupMember
	if err := s.db.WithContext(ctx).
		Where("group_id = ? AND is_active = true", groupID).
		Order("COALESCE(NULLIF(alias, ''), name) ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to get active members: %w", err)
	}
	return members, nil
}
