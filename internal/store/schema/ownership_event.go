package schema

import "time"

// OwnershipEvent represents the history table - the append-only ownership
// ledger. An event is a fact: it is never updated or deleted. "Removing"
// ownership appends a new event with IsActive=false. The current state for a
// (name, coin_id) pair is the IsActive of the event with the greatest
// (date, created_at) tuple; created_at breaks exact date ties.
type OwnershipEvent struct {
	// ID is a UUID assigned at write time
	ID string `gorm:"column:id;primaryKey;type:uuid"`
	// Name is the owner's canonical identity, the join key into group_users
	Name string `gorm:"column:name;not null;type:text;index:idx_history_name_coin,priority:1"`
	// CoinID references catalog.coin_id; validated by the ledger, not a constraint
	CoinID string `gorm:"column:coin_id;not null;type:text;index:idx_history_name_coin,priority:2"`
	// Date is the caller-supplied effective acquisition/removal timestamp
	Date time.Time `gorm:"column:date;not null;type:timestamptz"`
	// CreatedAt is the server-assigned write timestamp, the resolution tiebreaker
	CreatedAt time.Time `gorm:"column:created_at;not null;type:timestamptz"`
	// CreatedBy is a free-text provenance tag (api, import, admin, ...)
	CreatedBy string `gorm:"column:created_by;not null;type:text"`
	// IsActive is true for acquisitions and false for removals
	IsActive bool `gorm:"column:is_active;not null"`
}

// TableName specifies the table name for the OwnershipEvent model
func (OwnershipEvent) TableName() string {
	return "history"
}
