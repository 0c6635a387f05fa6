package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/myeurocoins/coin-catalog/internal/domain"
)

// Coin represents the catalog table - the immutable euro coin catalog.
// Rows are created by the import reconciler and never mutated in place;
// replacing the catalog requires a destructive reset followed by a reimport.
type Coin struct {
	// CoinID is the globally unique catalog identifier (e.g. "RE1999FRA-A-RE1-100")
	CoinID string `gorm:"column:coin_id;primaryKey;type:text"`
	// CoinType is the catalog series: RE (regular) or CC (commemorative)
	CoinType domain.CoinType `gorm:"column:coin_type;not null;type:text;index:idx_catalog_type_country,priority:1"`
	// Year is the issue year
	Year int `gorm:"column:year;not null"`
	// Country is the issuing country
	Country string `gorm:"column:country;not null;type:text;index:idx_catalog_type_country,priority:2"`
	// Series is the series identifier (commemorative series start with "CC-")
	Series string `gorm:"column:series;not null;type:text"`
	// Value is the face value with 2-decimal semantics
	Value decimal.Decimal `gorm:"column:value;not null;type:numeric(10,2)"`
	// ImageURL points at the coin image (nil when no image is known)
	ImageURL *string `gorm:"column:image_url;type:text"`
	// Feature describes the special feature, mainly for commemorative coins
	Feature *string `gorm:"column:feature;type:text"`
	// Volume is the mintage volume, mainly for commemorative coins
	Volume *string `gorm:"column:volume;type:text"`
	// CreatedAt is the import timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt mirrors CreatedAt; kept for parity with the warehouse layout
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Coin model
func (Coin) TableName() string {
	return "catalog"
}
