// Package groups manages shared collection groups and their memberships.
// Groups and members are soft-deleted: is_active flips to false and the
// rows stay for audit, so readers must always filter on is_active.
package groups

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// GroupStore is the slice of the warehouse the directory needs.
type GroupStore interface {
	InsertGroup(ctx context.Context, group *schema.Group) error
	UpdateGroupName(ctx context.Context, groupID, name string) error
	SoftDeleteGroup(ctx context.Context, groupID string) error
	GetGroupByKey(ctx context.Context, groupKey string) (*schema.Group, error)
	GetGroupByID(ctx context.Context, groupID string) (*schema.Group, error)
	ListActiveGroups(ctx context.Context) ([]schema.Group, error)
	InsertMember(ctx context.Context, member *schema.GroupMember) error
	UpdateMemberAlias(ctx context.Context, groupID, name, alias string) error
	SoftDeleteMember(ctx context.Context, groupID, name string) error
	GetMember(ctx context.Context, groupID, name string) (*schema.GroupMember, error)
	GetActiveMembers(ctx context.Context, groupID string) ([]schema.GroupMember, error)
}

// Directory exposes group CRUD on top of the store.
type Directory struct {
	store GroupStore
	cache *cache.Service
}

// NewDirectory creates a group directory service
func NewDirectory(store GroupStore, cacheSvc *cache.Service) *Directory {
	return &Directory{store: store, cache: cacheSvc}
}

// GroupKey derives the URL-safe key for a group name.
func GroupKey(name string) string {
	return slug.Make(name)
}

// Create registers a new group. The group key is derived from the name and
// must not collide with any active group.
func (d *Directory) Create(ctx context.Context, name string) (*schema.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name must not be empty")
	}
	key := GroupKey(name)

	existing, err := d.store.GetGroupByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check group key: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateGroupKey
	}

	group := schema.Group{
		ID:       uuid.New().String(),
		GroupKey: key,
		Name:     name,
		IsActive: true,
	}
	if err := d.store.InsertGroup(ctx, &group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	d.cache.Invalidate(cache.TagGroups)
	return &group, nil
}

// Rename changes a group's display name. The group key is immutable; links
// to the group keep working across renames.
func (d *Directory) Rename(ctx context.Context, groupKey, name string) (*schema.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name must not be empty")
	}

	group, err := d.requireGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}
	if err := d.store.UpdateGroupName(ctx, group.ID, name); err != nil {
		return nil, fmt.Errorf("failed to rename group: %w", err)
	}
	group.Name = name

	d.cache.Invalidate(cache.TagGroups, cache.TagGroup(group.ID))
	return group, nil
}

// Delete soft-deletes a group and every one of its memberships.
func (d *Directory) Delete(ctx context.Context, groupKey string) error {
	group, err := d.requireGroup(ctx, groupKey)
	if err != nil {
		return err
	}
	if err := d.store.SoftDeleteGroup(ctx, group.ID); err != nil {
		return err
	}

	d.cache.Invalidate(cache.TagGroups, cache.TagGroup(group.ID))
	return nil
}

// Get fetches an active group by key.
func (d *Directory) Get(ctx context.Context, groupKey string) (*schema.Group, error) {
	return d.requireGroup(ctx, groupKey)
}

// List fetches all active groups.
func (d *Directory) List(ctx context.Context) ([]schema.Group, error) {
	spec := cache.Spec{
		Query: "groups_list",
		Tags:  []string{cache.TagGroups},
	}
	return cache.Fetch(ctx, d.cache, spec, func(ctx context.Context) ([]schema.Group, error) {
		groups, err := d.store.ListActiveGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list groups: %w", err)
		}
		return groups, nil
	})
}

// AddMember enrolls an owner name into a group, optionally under a
// group-local alias. An active member with the same name is rejected; a
// previously removed member may be re-added as a fresh row.
func (d *Directory) AddMember(ctx context.Context, groupKey, name, alias string) (*schema.GroupMember, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("member name must not be empty")
	}

	group, err := d.requireGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}

	existing, err := d.store.GetMember(ctx, group.ID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check member: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateMember
	}

	member := schema.GroupMember{
		ID:       uuid.New().String(),
		GroupID:  group.ID,
		Name:     name,
		Alias:    strings.TrimSpace(alias),
		IsActive: true,
	}
	if err := d.store.InsertMember(ctx, &member); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	d.cache.Invalidate(cache.TagGroups, cache.TagGroup(group.ID))
	return &member, nil
}

// SetMemberAlias updates the group-local alias of an active member. An
// empty alias clears it, falling back to the raw owner name in views.
func (d *Directory) SetMemberAlias(ctx context.Context, groupKey, name, alias string) error {
	group, err := d.requireGroup(ctx, groupKey)
	if err != nil {
		return err
	}
	if err := d.store.UpdateMemberAlias(ctx, group.ID, name, strings.TrimSpace(alias)); err != nil {
		return err
	}

	d.cache.Invalidate(cache.TagGroups, cache.TagGroup(group.ID))
	return nil
}

// RemoveMember soft-deletes one membership. The member's ownership history
// is untouched; their coins simply stop appearing in this group's views.
func (d *Directory) RemoveMember(ctx context.Context, groupKey, name string) error {
	group, err := d.requireGroup(ctx, groupKey)
	if err != nil {
		return err
	}
	if err := d.store.SoftDeleteMember(ctx, group.ID, name); err != nil {
		return err
	}

	d.cache.Invalidate(cache.TagGroups, cache.TagGroup(group.ID))
	return nil
}

// Members fetches a group's active members.
func (d *Directory) Members(ctx context.Context, groupKey string) ([]schema.GroupMember, error) {
	group, err := d.requireGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}
	members, err := d.store.GetActiveMembers(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	return members, nil
}

func (d *Directory) requireGroup(ctx context.Context, groupKey string) (*schema.Group, error) {
	group, err := d.store.GetGroupByKey(ctx, groupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}
	return group, nil
}
