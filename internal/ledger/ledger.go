// Package ledger maintains the append-only ownership history. Rows are
// never updated or deleted: acquiring a coin appends an active event,
// releasing it appends an inactive one, and current ownership is resolved
// from the latest event per (name, coin_id).
package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/myeurocoins/coin-catalog/internal/adapter"
	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// EventStore is the slice of the warehouse the ledger reads and appends.
type EventStore interface {
	InsertOwnershipEvent(ctx context.Context, event *schema.OwnershipEvent) error
	InsertOwnershipEvents(ctx context.Context, events []schema.OwnershipEvent) error
	GetEventsForCoin(ctx context.Context, coinID, name string) ([]schema.OwnershipEvent, error)
	GetEventsForCoins(ctx context.Context, coinIDs []string) ([]schema.OwnershipEvent, error)
	GetEventsForOwner(ctx context.Context, name string) ([]schema.OwnershipEvent, error)
	GetEventsForOwners(ctx context.Context, names []string) ([]schema.OwnershipEvent, error)
	GetCoinByID(ctx context.Context, coinID string) (*schema.Coin, error)
	GetCoinsByIDs(ctx context.Context, coinIDs []string) ([]schema.Coin, error)
	GetMember(ctx context.Context, groupID, name string) (*schema.GroupMember, error)
}

// Service exposes ownership operations on top of the event store.
type Service struct {
	store EventStore
	cache *cache.Service
	clock adapter.Clock

	// Serializes the check-then-append window per (name, coin_id) so two
	// concurrent adds cannot both observe "not owned" and both append.
	locks keyedMutex
}

// NewService creates a ledger service
func NewService(store EventStore, cacheSvc *cache.Service, clock adapter.Clock) *Service {
	return &Service{
		store: store,
		cache: cacheSvc,
		clock: clock,
	}
}

// Resolve reduces a set of raw events to the current holdings they imply.
// For each (name, coin_id) pair the event with the greatest effective date
// wins; ties on date fall to the greatest created_at. Insertion order is
// irrelevant, so backfilled events with past dates resolve correctly.
func Resolve(events []schema.OwnershipEvent) []domain.Ownership {
	type pairKey struct {
		name   string
		coinID string
	}
	latest := make(map[pairKey]schema.OwnershipEvent)
	for _, e := range events {
		k := pairKey{name: e.Name, coinID: e.CoinID}
		cur, ok := latest[k]
		if !ok || e.Date.After(cur.Date) ||
			(e.Date.Equal(cur.Date) && e.CreatedAt.After(cur.CreatedAt)) {
			latest[k] = e
		}
	}

	holdings := make([]domain.Ownership, 0, len(latest))
	for _, e := range latest {
		if !e.IsActive {
			continue
		}
		holdings = append(holdings, domain.Ownership{
			Name:         e.Name,
			CoinID:       e.CoinID,
			AcquiredDate: e.Date,
		})
	}
	return holdings
}

// IsOwned reports whether the events resolve to active ownership. The
// events must all belong to one (name, coin_id) pair.
func IsOwned(events []schema.OwnershipEvent) bool {
	return len(Resolve(events)) > 0
}

// Add appends an acquisition event and returns its id. The effective date
// comes from the request; created_at is stamped server-side. Returns
// ErrCoinNotFound for an unknown coin and ErrAlreadyOwned when the owner's
// resolved state for the coin is already active.
func (s *Service) Add(ctx context.Context, req domain.OwnershipRequest) (string, error) {
	coin, err := s.store.GetCoinByID(ctx, req.CoinID)
	if err != nil {
		return "", fmt.Errorf("failed to look up coin: %w", err)
	}
	if coin == nil {
		return "", domain.ErrCoinNotFound
	}

	unlock := s.locks.lock(req.Name + "\x00" + req.CoinID)
	defer unlock()

	events, err := s.store.GetEventsForCoin(ctx, req.CoinID, req.Name)
	if err != nil {
		return "", fmt.Errorf("failed to load ownership events: %w", err)
	}
	if IsOwned(events) {
		return "", domain.ErrAlreadyOwned
	}

	event := schema.OwnershipEvent{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CoinID:    req.CoinID,
		Date:      req.Date,
		CreatedAt: s.clock.Now().UTC(),
		CreatedBy: req.CreatedBy,
		IsActive:  true,
	}
	if err := s.store.InsertOwnershipEvent(ctx, &event); err != nil {
		return "", fmt.Errorf("failed to append acquisition event: %w", err)
	}

	s.invalidate(req.Name, req.CoinID)
	return event.ID, nil
}

// Remove appends a release event and returns its id. Returns
// ErrNotCurrentlyOwned when the owner's resolved state for the coin is not
// active. The history row stays; only the resolved state flips.
func (s *Service) Remove(ctx context.Context, req domain.OwnershipRequest) (string, error) {
	unlock := s.locks.lock(req.Name + "\x00" + req.CoinID)
	defer unlock()

	events, err := s.store.GetEventsForCoin(ctx, req.CoinID, req.Name)
	if err != nil {
		return "", fmt.Errorf("failed to load ownership events: %w", err)
	}
	if !IsOwned(events) {
		return "", domain.ErrNotCurrentlyOwned
	}

	event := schema.OwnershipEvent{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CoinID:    req.CoinID,
		Date:      req.Date,
		CreatedAt: s.clock.Now().UTC(),
		CreatedBy: req.CreatedBy,
		IsActive:  false,
	}
	if err := s.store.InsertOwnershipEvent(ctx, &event); err != nil {
		return "", fmt.Errorf("failed to append release event: %w", err)
	}

	s.invalidate(req.Name, req.CoinID)
	return event.ID, nil
}

// CurrentOwners resolves the active owners of one coin.
func (s *Service) CurrentOwners(ctx context.Context, coinID string) ([]domain.Ownership, error) {
	spec := cache.Spec{
		Query:  "ledger_coin_owners",
		Params: map[string]string{"coin_id": coinID},
		Tags:   []string{cache.TagOwnership, cache.TagCoin(coinID)},
	}
	return cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) ([]domain.Ownership, error) {
		events, err := s.store.GetEventsForCoin(ctx, coinID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load ownership events: %w", err)
		}
		return Resolve(events), nil
	})
}

// OwnedCoins resolves one owner's current holdings joined with catalog
// details, ordered year DESC then country ASC. A non-empty groupID scopes
// the answer to group membership: holdings are returned only when the owner
// is an active member of that group.
func (s *Service) OwnedCoins(ctx context.Context, name, groupID string) ([]domain.OwnedCoin, error) {
	spec := cache.Spec{
		Query:  "ledger_owned_coins",
		Params: map[string]string{"name": name, "group": groupID},
		Tags:   []string{cache.TagOwnership, cache.TagOwner(name), cache.TagCatalog, cache.TagGroups},
	}
	return cache.Fetch(ctx, s.cache, spec, func(ctx context.Context) ([]domain.OwnedCoin, error) {
		if groupID != "" {
			member, err := s.store.GetMember(ctx, groupID, name)
			if err != nil {
				return nil, fmt.Errorf("failed to check group membership: %w", err)
			}
			if member == nil {
				return []domain.OwnedCoin{}, nil
			}
		}
		events, err := s.store.GetEventsForOwner(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load ownership events: %w", err)
		}
		return s.ownedCoinDetails(ctx, Resolve(events))
	})
}

// HoldingsFor resolves current holdings for a set of owner names without
// touching the cache. The view composer layers its own caching on top.
func (s *Service) HoldingsFor(ctx context.Context, names []string) ([]domain.Ownership, error) {
	if len(names) == 0 {
		return nil, nil
	}
	events, err := s.store.GetEventsForOwners(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load ownership events: %w", err)
	}
	return Resolve(events), nil
}

// History returns the raw event trail for one owner and coin, newest first.
func (s *Service) History(ctx context.Context, name, coinID string) ([]domain.EventRecord, error) {
	events, err := s.store.GetEventsForCoin(ctx, coinID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load ownership events: %w", err)
	}
	records := make([]domain.EventRecord, 0, len(events))
	for _, e := range events {
		records = append(records, eventRecord(e))
	}
	return records, nil
}

// ImportBatch appends pre-screened events in bulk and invalidates derived
// state once, not per row.
func (s *Service) ImportBatch(ctx context.Context, entries []domain.EventRecord) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	now := s.clock.Now().UTC()
	events := make([]schema.OwnershipEvent, 0, len(entries))
	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := entry.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		events = append(events, schema.OwnershipEvent{
			ID:        id,
			Name:      entry.Name,
			CoinID:    entry.CoinID,
			Date:      entry.Date,
			CreatedAt: createdAt,
			CreatedBy: entry.CreatedBy,
			IsActive:  entry.IsActive,
		})
	}
	if err := s.store.InsertOwnershipEvents(ctx, events); err != nil {
		return 0, fmt.Errorf("failed to import ownership events: %w", err)
	}

	s.cache.Invalidate(cache.TagOwnership, cache.TagGroups)
	return len(events), nil
}

func (s *Service) ownedCoinDetails(ctx context.Context, holdings []domain.Ownership) ([]domain.OwnedCoin, error) {
	if len(holdings) == 0 {
		return []domain.OwnedCoin{}, nil
	}
	coinIDs := make([]string, 0, len(holdings))
	acquired := make(map[string]domain.Ownership, len(holdings))
	for _, h := range holdings {
		coinIDs = append(coinIDs, h.CoinID)
		acquired[h.CoinID] = h
	}

	coins, err := s.store.GetCoinsByIDs(ctx, coinIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load owned coin details: %w", err)
	}

	owned := make([]domain.OwnedCoin, 0, len(coins))
	for _, c := range coins {
		h := acquired[c.CoinID]
		owned = append(owned, domain.OwnedCoin{
			CoinID:       c.CoinID,
			CoinType:     c.CoinType,
			Year:         c.Year,
			Country:      c.Country,
			Series:       c.Series,
			Value:        c.Value,
			AcquiredDate: h.AcquiredDate,
		})
	}
	sortOwnedCoins(owned)
	return owned, nil
}

func sortOwnedCoins(coins []domain.OwnedCoin) {
	sort.SliceStable(coins, func(i, j int) bool {
		if coins[i].Year != coins[j].Year {
			return coins[i].Year > coins[j].Year
		}
		return coins[i].Country < coins[j].Country
	})
}

func (s *Service) invalidate(name, coinID string) {
	s.cache.Invalidate(
		cache.TagOwnership,
		cache.TagCoin(coinID),
		cache.TagOwner(name),
		cache.TagGroups,
	)
}

func eventRecord(e schema.OwnershipEvent) domain.EventRecord {
	return domain.EventRecord{
		ID:        e.ID,
		Name:      e.Name,
		CoinID:    e.CoinID,
		Date:      e.Date,
		CreatedAt: e.CreatedAt,
		CreatedBy: e.CreatedBy,
		IsActive:  e.IsActive,
	}
}
