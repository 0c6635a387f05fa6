package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoinType identifies the catalog series a coin belongs to
type CoinType string

const (
	// CoinTypeRegular represents regular circulation coins
	CoinTypeRegular CoinType = "RE"
	// CoinTypeCommemorative represents 2-euro commemorative coins
	CoinTypeCommemorative CoinType = "CC"
)

// IsValidCoinType checks if a coin type is one of the known catalog series
func IsValidCoinType(t CoinType) bool {
	return t == CoinTypeRegular || t == CoinTypeCommemorative
}

// OwnershipStatus filters group views by whether a coin has any current owner
type OwnershipStatus string

const (
	OwnershipStatusOwned   OwnershipStatus = "owned"
	OwnershipStatusMissing OwnershipStatus = "missing"
)

// HistoryDateLayout is the wire format for effective dates in history CSVs
const HistoryDateLayout = "2006-01-02 15:04:05"

// CoinFilter narrows catalog queries. Zero values mean "no constraint".
type CoinFilter struct {
	CoinType        CoinType
	Country         string
	Year            int
	Series          string
	Value           *decimal.Decimal
	OwnedBy         string
	OwnershipStatus OwnershipStatus
	Search          string
}

// OwnershipRequest carries one acquisition or release. Date is the
// user-stated effective date; CreatedBy identifies the acting principal.
type OwnershipRequest struct {
	Name      string    `json:"name"`
	CoinID    string    `json:"coin_id"`
	Date      time.Time `json:"date"`
	CreatedBy string    `json:"-"`
}

// Ownership is a resolved current-state answer for one (name, coin) pair
type Ownership struct {
	Name         string    `json:"name"`
	CoinID       string    `json:"coin_id"`
	AcquiredDate time.Time `json:"acquired_date"`
}

// Owner annotates a coin in a group-scoped view. Alias is the group-local
// display name; it falls back to the raw owner name when no alias is set.
type Owner struct {
	Name         string    `json:"name"`
	Alias        string    `json:"alias"`
	AcquiredDate time.Time `json:"acquired_date"`
}

// OwnedCoin is a catalog coin joined with its acquisition date for one owner
type OwnedCoin struct {
	CoinID       string          `json:"coin_id"`
	CoinType     CoinType        `json:"coin_type"`
	Year         int             `json:"year"`
	Country      string          `json:"country"`
	Series       string          `json:"series"`
	Value        decimal.Decimal `json:"value"`
	AcquiredDate time.Time       `json:"acquired_date"`
}

// EventRecord is one raw ledger event, exposed for owner history views
type EventRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CoinID    string    `json:"coin_id"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	IsActive  bool      `json:"is_active"`
}

// HistoryEntry is the (name, coin, date) tuple carried by history CSVs
type HistoryEntry struct {
	Name   string    `json:"name"`
	CoinID string    `json:"coin_id"`
	Date   time.Time `json:"date"`
}

// CatalogStats summarizes the whole catalog
type CatalogStats struct {
	TotalCoins         int64 `json:"total_coins"`
	TotalCountries     int64 `json:"total_countries"`
	RegularCoins       int64 `json:"regular_coins"`
	CommemorativeCoins int64 `json:"commemorative_coins"`
}

// GroupStats summarizes one group's collection activity
type GroupStats struct {
	TotalMembers          int `json:"total_members"`
	TotalCoinsOwned       int `json:"total_coins_owned"`
	TotalOwnershipRecords int `json:"total_ownership_records"`
}

// GroupMemberView is one active member as shown in group context
type GroupMemberView struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// GroupContext bundles everything a group page needs besides the coins
type GroupContext struct {
	ID       string            `json:"id"`
	GroupKey string            `json:"group_key"`
	Name     string            `json:"name"`
	Members  []GroupMemberView `json:"members"`
	Stats    GroupStats        `json:"stats"`
}

// GroupCoin is a catalog coin annotated with group-scoped ownership
type GroupCoin struct {
	CoinID   string          `json:"coin_id"`
	CoinType CoinType        `json:"coin_type"`
	Year     int             `json:"year"`
	Country  string          `json:"country"`
	Series   string          `json:"series"`
	Value    decimal.Decimal `json:"value"`
	ImageURL *string         `json:"image_url,omitempty"`
	Feature  *string         `json:"feature,omitempty"`
	Volume   *string         `json:"volume,omitempty"`
	Owners   []Owner         `json:"owners"`
	IsOwned  bool            `json:"is_owned"`
}

// Page carries pagination metadata alongside a result slice
type Page struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// FilterOptions lists the distinct values available for catalog filtering
type FilterOptions struct {
	Countries      []string          `json:"countries"`
	Commemoratives []string          `json:"commemoratives"`
	Denominations  []decimal.Decimal `json:"denominations"`
}
