// Package view composes group-scoped pages: catalog coins annotated with
// the current owners among a group's active members. Ownership is resolved
// from the ledger at read time, never denormalized.
package view

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// Pagination bounds. Group coin pages are always paginated; a missing or
// out-of-range page size falls back to the default.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// GroupReader is the slice of the group directory the composer needs.
type GroupReader interface {
	GetGroupByKey(ctx context.Context, groupKey string) (*schema.Group, error)
	GetActiveMembers(ctx context.Context, groupID string) ([]schema.GroupMember, error)
}

// CoinReader is the slice of the catalog the composer needs.
type CoinReader interface {
	GetCoins(ctx context.Context, filter domain.CoinFilter, limit, offset int) ([]schema.Coin, error)
	CountCoins(ctx context.Context, filter domain.CoinFilter) (int64, error)
	GetCoinByID(ctx context.Context, coinID string) (*schema.Coin, error)
}

// HoldingsResolver answers current-ownership questions from the ledger.
type HoldingsResolver interface {
	HoldingsFor(ctx context.Context, names []string) ([]domain.Ownership, error)
}

// Composer builds group views.
type Composer struct {
	groups   GroupReader
	coins    CoinReader
	holdings HoldingsResolver
	cache    *cache.Service
}

// NewComposer creates a group view composer
func NewComposer(groups GroupReader, coins CoinReader, holdings HoldingsResolver, cacheSvc *cache.Service) *Composer {
	return &Composer{
		groups:   groups,
		coins:    coins,
		holdings: holdings,
		cache:    cacheSvc,
	}
}

// GroupContext assembles the group header: display name, active members
// and collection stats. Stats count resolved current holdings only, so a
// released coin drops out of every number immediately.
func (c *Composer) GroupContext(ctx context.Context, groupKey string) (*domain.GroupContext, error) {
	group, err := c.requireGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}

	spec := cache.Spec{
		Query:  "group_context",
		Params: map[string]string{"group_key": groupKey},
		Tags:   []string{cache.TagGroups, cache.TagGroup(group.ID), cache.TagOwnership},
	}
	return cache.Fetch(ctx, c.cache, spec, func(ctx context.Context) (*domain.GroupContext, error) {
		members, err := c.groups.GetActiveMembers(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load members: %w", err)
		}

		names := memberNames(members)
		holdings, err := c.holdings.HoldingsFor(ctx, names)
		if err != nil {
			return nil, err
		}

		distinctCoins := make(map[string]struct{}, len(holdings))
		for _, h := range holdings {
			distinctCoins[h.CoinID] = struct{}{}
		}

		view := &domain.GroupContext{
			ID:       group.ID,
			GroupKey: group.GroupKey,
			Name:     group.Name,
			Members:  make([]domain.GroupMemberView, 0, len(members)),
			Stats: domain.GroupStats{
				TotalMembers:          len(members),
				TotalCoinsOwned:       len(distinctCoins),
				TotalOwnershipRecords: len(holdings),
			},
		}
		for _, m := range members {
			view.Members = append(view.Members, domain.GroupMemberView{
				Name:  m.Name,
				Alias: m.Alias,
			})
		}
		return view, nil
	})
}

// GroupCoins returns one page of catalog coins annotated with owners among
// the group's active members. Page numbering starts at 1. When the filter
// constrains ownership (owned_by or ownership_status) the whole matching
// catalog is annotated first and paginated after, so page sizes stay exact.
func (c *Composer) GroupCoins(ctx context.Context, groupKey string, filter domain.CoinFilter, page, pageSize int) ([]domain.GroupCoin, *domain.Page, error) {
	group, err := c.requireGroup(ctx, groupKey)
	if err != nil {
		return nil, nil, err
	}
	page, pageSize = clampPage(page, pageSize)

	type result struct {
		Coins []domain.GroupCoin `json:"coins"`
		Page  domain.Page        `json:"page"`
	}
	spec := cache.Spec{
		Query: "group_coins",
		Params: map[string]string{
			"group_key": groupKey,
			"filter":    filterKey(filter),
			"page":      strconv.Itoa(page),
			"page_size": strconv.Itoa(pageSize),
		},
		Tags: []string{cache.TagGroups, cache.TagGroup(group.ID), cache.TagOwnership, cache.TagCatalog},
	}
	res, err := cache.Fetch(ctx, c.cache, spec, func(ctx context.Context) (*result, error) {
		coins, meta, err := c.composeCoins(ctx, group, filter, page, pageSize)
		if err != nil {
			return nil, err
		}
		return &result{Coins: coins, Page: *meta}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Coins, &res.Page, nil
}

// CoinOwners reports which active members of a group currently hold one
// coin, with aliases applied.
func (c *Composer) CoinOwners(ctx context.Context, groupKey, coinID string) ([]domain.Owner, error) {
	group, err := c.requireGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}
	coin, err := c.coins.GetCoinByID(ctx, coinID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up coin: %w", err)
	}
	if coin == nil {
		return nil, domain.ErrCoinNotFound
	}

	spec := cache.Spec{
		Query: "group_coin_owners",
		Params: map[string]string{
			"group_key": groupKey,
			"coin_id":   coinID,
		},
		Tags: []string{cache.TagGroups, cache.TagGroup(group.ID), cache.TagOwnership, cache.TagCoin(coinID)},
	}
	return cache.Fetch(ctx, c.cache, spec, func(ctx context.Context) ([]domain.Owner, error) {
		members, err := c.groups.GetActiveMembers(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load members: %w", err)
		}
		holdings, err := c.holdings.HoldingsFor(ctx, memberNames(members))
		if err != nil {
			return nil, err
		}

		byName := memberIndex(members)
		owners := make([]domain.Owner, 0)
		for _, h := range holdings {
			if h.CoinID != coinID {
				continue
			}
			m, ok := byName[h.Name]
			if !ok {
				// Holdings resolved for a name that is no longer an
				// active member. Skip rather than leak.
				continue
			}
			owners = append(owners, ownerView(m, h))
		}
		sortOwners(owners)
		return owners, nil
	})
}

func (c *Composer) composeCoins(ctx context.Context, group *schema.Group, filter domain.CoinFilter, page, pageSize int) ([]domain.GroupCoin, *domain.Page, error) {
	members, err := c.groups.GetActiveMembers(ctx, group.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load members: %w", err)
	}
	holdings, err := c.holdings.HoldingsFor(ctx, memberNames(members))
	if err != nil {
		return nil, nil, err
	}
	byName := memberIndex(members)

	// Owners per coin, restricted to active members.
	ownersByCoin := make(map[string][]domain.Owner)
	for _, h := range holdings {
		m, ok := byName[h.Name]
		if !ok {
			continue
		}
		ownersByCoin[h.CoinID] = append(ownersByCoin[h.CoinID], ownerView(m, h))
	}
	for _, owners := range ownersByCoin {
		sortOwners(owners)
	}

	ownershipFiltered := filter.OwnedBy != "" || filter.OwnershipStatus != ""

	var coins []schema.Coin
	var meta domain.Page
	if ownershipFiltered {
		coins, err = c.coins.GetCoins(ctx, filter, 0, 0)
	} else {
		coins, err = c.coins.GetCoins(ctx, filter, pageSize, (page-1)*pageSize)
	}
	if err != nil {
		return nil, nil, err
	}

	annotated := make([]domain.GroupCoin, 0, len(coins))
	for _, coin := range coins {
		owners := ownersByCoin[coin.CoinID]
		if owners == nil {
			owners = []domain.Owner{}
		}
		gc := domain.GroupCoin{
			CoinID:   coin.CoinID,
			CoinType: coin.CoinType,
			Year:     coin.Year,
			Country:  coin.Country,
			Series:   coin.Series,
			Value:    coin.Value,
			ImageURL: coin.ImageURL,
			Feature:  coin.Feature,
			Volume:   coin.Volume,
			Owners:   owners,
			IsOwned:  len(owners) > 0,
		}
		if !matchesOwnership(gc, filter, byName) {
			continue
		}
		annotated = append(annotated, gc)
	}

	if ownershipFiltered {
		total := int64(len(annotated))
		start := (page - 1) * pageSize
		if start > len(annotated) {
			start = len(annotated)
		}
		end := min(start+pageSize, len(annotated))
		annotated = annotated[start:end]
		meta = pageMeta(page, pageSize, total)
	} else {
		total, err := c.coins.CountCoins(ctx, filter)
		if err != nil {
			return nil, nil, err
		}
		meta = pageMeta(page, pageSize, total)
	}

	return annotated, &meta, nil
}

func (c *Composer) requireGroup(ctx context.Context, groupKey string) (*schema.Group, error) {
	group, err := c.groups.GetGroupByKey(ctx, groupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}
	return group, nil
}

// matchesOwnership applies the group-scoped ownership filters. OwnedBy
// accepts either the raw member name or the group alias.
func matchesOwnership(coin domain.GroupCoin, filter domain.CoinFilter, members map[string]schema.GroupMember) bool {
	if filter.OwnershipStatus == domain.OwnershipStatusOwned && !coin.IsOwned {
		return false
	}
	if filter.OwnershipStatus == domain.OwnershipStatusMissing && coin.IsOwned {
		return false
	}
	if filter.OwnedBy != "" {
		target := filter.OwnedBy
		if m, ok := members[target]; ok {
			target = m.Name
		} else {
			for _, m := range members {
				if m.Alias == filter.OwnedBy {
					target = m.Name
					break
				}
			}
		}
		for _, o := range coin.Owners {
			if o.Name == target {
				return true
			}
		}
		return false
	}
	return true
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func pageMeta(page, pageSize int, total int64) domain.Page {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return domain.Page{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

func filterKey(f domain.CoinFilter) string {
	value := ""
	if f.Value != nil {
		value = f.Value.String()
	}
	return fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		f.CoinType, f.Country, f.Year, f.Series, value, f.OwnedBy, f.OwnershipStatus, f.Search)
}

func memberNames(members []schema.GroupMember) []string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

func memberIndex(members []schema.GroupMember) map[string]schema.GroupMember {
	byName := make(map[string]schema.GroupMember, len(members))
	for _, m := range members {
		byName[m.Name] = m
	}
	return byName
}

func ownerView(m schema.GroupMember, h domain.Ownership) domain.Owner {
	alias := m.Alias
	if alias == "" {
		alias = m.Name
	}
	return domain.Owner{
		Name:         m.Name,
		Alias:        alias,
		AcquiredDate: h.AcquiredDate,
	}
}

func sortOwners(owners []domain.Owner) {
	sort.SliceStable(owners, func(i, j int) bool {
		return owners[i].Alias < owners[j].Alias
	})
}
