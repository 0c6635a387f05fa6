package schema

// Group represents the groups table. Groups are soft-deleted only: deletion
// flips IsActive and cascades the flip to every member row.
type Group struct {
	// ID is a UUID assigned at creation
	ID string `gorm:"column:id;primaryKey;type:uuid"`
	// GroupKey is the URL-safe slug, unique among active groups
	GroupKey string `gorm:"column:group_key;not null;type:text;index"`
	// Name is the display name
	Name string `gorm:"column:name;not null;type:text"`
	// IsActive is the soft-delete flag
	IsActive bool `gorm:"column:is_active;not null;default:true"`

	// Associations
	Members []GroupMember `gorm:"foreignKey:GroupID;references:ID"`
}

// TableName specifies the table name for the Group model
func (Group) TableName() string {
	return "groups"
}

// GroupMember represents the group_users table. Name is an advisory link to
// history.name (no referential constraint); Alias is purely presentational
// and substitutes for Name in group-scoped views.
type GroupMember struct {
	// ID is a UUID assigned at creation
	ID string `gorm:"column:id;primaryKey;type:uuid"`
	// GroupID references groups.id
	GroupID string `gorm:"column:group_id;not null;type:uuid;index:idx_group_users_group_name,priority:1"`
	// Name is the owner identity used as the join key into the ledger
	Name string `gorm:"column:name;not null;type:text;index:idx_group_users_group_name,priority:2"`
	// Alias is the group-local display name
	Alias string `gorm:"column:alias;not null;type:text"`
	// IsActive is the soft-delete flag
	IsActive bool `gorm:"column:is_active;not null;default:true"`
}

// TableName specifies the table name for the GroupMember model
func (GroupMember) TableName() string {
	return "group_users"
}
