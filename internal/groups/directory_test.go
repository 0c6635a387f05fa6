package groups_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/groups"
	"github.com/myeurocoins/coin-catalog/internal/mocks"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// fakeGroupStore keeps groups and members in memory with soft-delete
// semantics matching the warehouse.
type fakeGroupStore struct {
	groups  map[string]*schema.Group
	members []*schema.GroupMember
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{groups: make(map[string]*schema.Group)}
}

func (f *fakeGroupStore) InsertGroup(_ context.Context, group *schema.Group) error {
	g := *group
	f.groups[g.ID] = &g
	return nil
}

func (f *fakeGroupStore) UpdateGroupName(_ context.Context, groupID, name string) error {
	g, ok := f.groups[groupID]
	if !ok || !g.IsActive {
		return domain.ErrGroupNotFound
	}
	g.Name = name
	return nil
}

func (f *fakeGroupStore) SoftDeleteGroup(_ context.Context, groupID string) error {
	g, ok := f.groups[groupID]
	if !ok || !g.IsActive {
		return domain.ErrGroupNotFound
	}
	g.IsActive = false
	for _, m := range f.members {
		if m.GroupID == groupID {
			m.IsActive = false
		}
	}
	return nil
}

func (f *fakeGroupStore) GetGroupByKey(_ context.Context, groupKey string) (*schema.Group, error) {
	for _, g := range f.groups {
		if g.GroupKey == groupKey && g.IsActive {
			copied := *g
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeGroupStore) GetGroupByID(_ context.Context, groupID string) (*schema.Group, error) {
	g, ok := f.groups[groupID]
	if !ok || !g.IsActive {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

func (f *fakeGroupStore) ListActiveGroups(_ context.Context) ([]schema.Group, error) {
	var out []schema.Group
	for _, g := range f.groups {
		if g.IsActive {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeGroupStore) InsertMember(_ context.Context, member *schema.GroupMember) error {
	m := *member
	f.members = append(f.members, &m)
	return nil
}

func (f *fakeGroupStore) UpdateMemberAlias(_ context.Context, groupID, name, alias string) error {
	for _, m := range f.members {
		if m.GroupID == groupID && m.Name == name && m.IsActive {
			m.Alias = alias
			return nil
		}
	}
	return domain.ErrMemberNotFound
}

func (f *fakeGroupStore) SoftDeleteMember(_ context.Context, groupID, name string) error {
	for _, m := range f.members {
		if m.GroupID == groupID && m.Name == name && m.IsActive {
			m.IsActive = false
			return nil
		}
	}
	return domain.ErrMemberNotFound
}

func (f *fakeGroupStore) GetMember(_ context.Context, groupID, name string) (*schema.GroupMember, error) {
	for _, m := range f.members {
		if m.GroupID == groupID && m.Name == name && m.IsActive {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeGroupStore) GetActiveMembers(_ context.Context, groupID string) ([]schema.GroupMember, error) {
	var out []schema.GroupMember
	for _, m := range f.members {
		if m.GroupID == groupID && m.IsActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

func newTestDirectory(t *testing.T) (*groups.Directory, *fakeGroupStore) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Now()).AnyTimes()

	store := newFakeGroupStore()
	return groups.NewDirectory(store, cache.New(clock, time.Minute)), store
}

func TestGroupKeySlug(t *testing.T) {
	assert.Equal(t, "euro-fans-2024", groups.GroupKey("Euro Fans 2024"))
	assert.Equal(t, "cafe-munzen", groups.GroupKey("Café Münzen"))
}

func TestCreateGroup(t *testing.T) {
	dir, _ := newTestDirectory(t)

	group, err := dir.Create(context.Background(), "Euro Fans")
	require.NoError(t, err)
	assert.Equal(t, "euro-fans", group.GroupKey)
	assert.Equal(t, "Euro Fans", group.Name)
	assert.True(t, group.IsActive)
	assert.NotEmpty(t, group.ID)
}

func TestCreateGroupDuplicateKey(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "Euro Fans")
	require.NoError(t, err)

	// Different display name, same derived key.
	_, err = dir.Create(ctx, "euro FANS")
	assert.ErrorIs(t, err, domain.ErrDuplicateGroupKey)
}

func TestCreateGroupKeyReusableAfterDelete(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "Euro Fans")
	require.NoError(t, err)
	require.NoError(t, dir.Delete(ctx, "euro-fans"))

	_, err = dir.Create(ctx, "Euro Fans")
	assert.NoError(t, err)
}

func TestRenameKeepsKey(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "Euro Fans")
	require.NoError(t, err)

	renamed, err := dir.Rename(ctx, "euro-fans", "Euro Enthusiasts")
	require.NoError(t, err)
	assert.Equal(t, "Euro Enthusiasts", renamed.Name)
	assert.Equal(t, "euro-fans", renamed.GroupKey)

	got, err := dir.Get(ctx, "euro-fans")
	require.NoError(t, err)
	assert.Equal(t, "Euro Enthusiasts", got.Name)
}

func TestDeleteCascadesToMembers(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()

	group, err := dir.Create(ctx, "Euro Fans")
	require.NoError(t, err)
	_, err = dir.AddMember(ctx, "euro-fans", "alice", "Alice")
	require.NoError(t, err)
	_, err = dir.AddMember(ctx, "euro-fans", "bob", "")
	require.NoError(t, err)

	require.NoError(t, dir.Delete(ctx, "euro-fans"))

	_, err = dir.Get(ctx, "euro-fans")
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)

	members, err := store.GetActiveMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestDeleteUnknownGroup(t *testing.T) {
	dir, _ := newTestDirectory(t)
	err := dir.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestAddMemberDuplicate(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "Euro Fans")
	require.NoError(t, err)
	_, err = dir.AddMember(ctx, "euro-fans", "alice", "")
	require.NoError(t, err)

	_, err = dir.AddMember(ctx, "euro-fans", "alice", "someone else")
	assert.ErrorIs(t, err, domain.ErrDuplicateMember)
}

func TestReAddMemberAfterRemoval(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "Euro Fans")
	require.NoError(t, err)
	_, err = dir.AddMember(ctx, "euro-fans", "alice", "")
	require.NoError(t, err)
	require.NoError(t, dir.RemoveMember(ctx, "euro-fans", "alice"))

	_, err = dir.AddMember(ctx, "euro-fans", "alice", "Alice again")
	require.NoError(t, err)

	// Removal is soft: the old membership row stays for audit.
	assert.Len(t, store.members, 2)
}

func TestSetMemberAlias(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "Euro Fans")
	require.NoError(t, err)
	_, err = dir.AddMember(ctx, "euro-fans", "alice", "")
	require.NoError(t, err)

	require.NoError(t, dir.SetMemberAlias(ctx, "euro-fans", "alice", "Allie"))

	members, err := dir.Members(ctx, "euro-fans")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Allie", members[0].Alias)

	err = dir.SetMemberAlias(ctx, "euro-fans", "who", "x")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}
