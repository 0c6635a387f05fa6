package domain

import "errors"

var (
	// ErrCoinNotFound is returned when a coin is not present in the catalog
	ErrCoinNotFound = errors.New("coin not found")

	// ErrGroupNotFound is returned when a group lookup misses or the group is inactive
	ErrGroupNotFound = errors.New("group not found")

	// ErrMemberNotFound is returned when a member lookup misses within an active group
	ErrMemberNotFound = errors.New("member not found")

	// ErrAlreadyOwned is returned when adding an acquisition for a coin the owner already holds
	ErrAlreadyOwned = errors.New("coin already owned")

	// ErrNotCurrentlyOwned is returned when removing ownership the owner does not currently hold
	ErrNotCurrentlyOwned = errors.New("coin not currently owned")

	// ErrDuplicateGroupKey is returned when creating a group whose key collides with an active group
	ErrDuplicateGroupKey = errors.New("group key already exists")

	// ErrDuplicateMember is returned when adding a member name that already exists in an active group
	ErrDuplicateMember = errors.New("member already exists in group")

	// ErrCoinAlreadyExists is returned when importing a coin whose id is already in the catalog
	ErrCoinAlreadyExists = errors.New("coin already exists in catalog")

	// ErrInvalidUpload is returned when an uploaded CSV is structurally unusable
	// (missing headers, unparseable values). Nothing is written when it is returned.
	ErrInvalidUpload = errors.New("invalid upload")
)
