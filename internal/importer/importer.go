// Package importer reconciles uploaded CSV files against the live catalog
// and ledger. Uploads are classified first and committed separately, so an
// operator reviews what a file would change before anything is written.
package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/myeurocoins/coin-catalog/internal/adapter"
	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

// Row classification outcomes.
const (
	StatusNew       = "new"
	StatusDuplicate = "duplicate"
	StatusConflict  = "conflict"
)

// CoinRow is one parsed catalog upload row.
type CoinRow struct {
	CoinID   string          `json:"id"`
	CoinType domain.CoinType `json:"type"`
	Year     int             `json:"year"`
	Country  string          `json:"country"`
	Series   string          `json:"series"`
	Value    decimal.Decimal `json:"value"`
	ImageURL string          `json:"image"`
	Feature  string          `json:"feature"`
	Volume   string          `json:"volume"`
}

// FieldDiff records one differing field between an upload row and the
// catalog row with the same id.
type FieldDiff struct {
	Field    string `json:"field"`
	Existing string `json:"existing"`
	Uploaded string `json:"uploaded"`
}

// CoinClassification is the review verdict for one upload row.
type CoinClassification struct {
	Row    CoinRow     `json:"row"`
	Status string      `json:"status"`
	Diffs  []FieldDiff `json:"diffs,omitempty"`
}

// HistoryRow is one parsed history upload row.
type HistoryRow struct {
	Entry  domain.HistoryEntry `json:"entry"`
	Status string              `json:"status"`
}

// ImportResult summarizes a commit.
type ImportResult struct {
	Inserted int      `json:"inserted"`
	Skipped  []string `json:"skipped,omitempty"`
}

// CatalogWriter is the slice of the warehouse the reconciler needs.
type CatalogWriter interface {
	GetCoinsByIDs(ctx context.Context, coinIDs []string) ([]schema.Coin, error)
	ExistingCoinIDs(ctx context.Context, coinIDs []string) ([]string, error)
	InsertCoins(ctx context.Context, coins []schema.Coin) error
	GetAllCoinsForExport(ctx context.Context) ([]schema.Coin, error)
	GetAllEvents(ctx context.Context) ([]schema.OwnershipEvent, error)
}

// HistoryImporter appends screened history rows through the ledger.
type HistoryImporter interface {
	ImportBatch(ctx context.Context, entries []domain.EventRecord) (int, error)
}

// Service reconciles uploads.
type Service struct {
	store   CatalogWriter
	history HistoryImporter
	cache   *cache.Service
	clock   adapter.Clock
}

// NewService creates an import reconciler
func NewService(store CatalogWriter, history HistoryImporter, cacheSvc *cache.Service, clock adapter.Clock) *Service {
	return &Service{
		store:   store,
		history: history,
		cache:   cacheSvc,
		clock:   clock,
	}
}

// ClassifyCoins compares upload rows against the catalog. A row whose id is
// absent is new. A present id is a duplicate when its feature matches the
// stored one after empty normalization, a conflict otherwise; conflicts
// carry the full field diff so an operator can see what else changed.
func (s *Service) ClassifyCoins(ctx context.Context, rows []CoinRow) ([]CoinClassification, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CoinID)
	}
	existing, err := s.store.GetCoinsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing coins: %w", err)
	}
	byID := make(map[string]schema.Coin, len(existing))
	for _, c := range existing {
		byID[c.CoinID] = c
	}

	verdicts := make([]CoinClassification, 0, len(rows))
	for _, row := range rows {
		current, ok := byID[row.CoinID]
		if !ok {
			verdicts = append(verdicts, CoinClassification{Row: row, Status: StatusNew})
			continue
		}
		if normalize(deref(current.Feature)) == normalize(row.Feature) {
			verdicts = append(verdicts, CoinClassification{Row: row, Status: StatusDuplicate})
		} else {
			verdicts = append(verdicts, CoinClassification{Row: row, Status: StatusConflict, Diffs: diffCoin(current, row)})
		}
	}
	return verdicts, nil
}

// ImportCoins commits the selected rows. Existence is re-checked at commit
// time: an id that appeared in the catalog since classification fails the
// whole batch with ErrCoinAlreadyExists, nothing is written. Rows repeated
// inside the upload collapse to one insert and are reported as skipped. The
// whole query cache is swept once because a catalog import can touch any
// number of coins.
func (s *Service) ImportCoins(ctx context.Context, rows []CoinRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return &ImportResult{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CoinID)
	}
	existing, err := s.store.ExistingCoinIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to re-check existing coins: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrCoinAlreadyExists, strings.Join(existing, ", "))
	}

	result := &ImportResult{}
	coins := make([]schema.Coin, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.CoinID]; ok {
			result.Skipped = append(result.Skipped, row.CoinID)
			continue
		}
		seen[row.CoinID] = struct{}{}
		coins = append(coins, coinFromRow(row))
	}

	if len(coins) > 0 {
		if err := s.store.InsertCoins(ctx, coins); err != nil {
			return nil, fmt.Errorf("failed to insert coins: %w", err)
		}
		s.cache.Clear()
	}
	result.Inserted = len(coins)
	return result, nil
}

// ClassifyHistory compares upload rows against the ledger. A row is a
// duplicate when an event with the same name, coin id and second-precision
// date already exists; every other row is new.
func (s *Service) ClassifyHistory(ctx context.Context, entries []domain.HistoryEntry) ([]HistoryRow, error) {
	events, err := s.store.GetAllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	existing := make(map[string]struct{}, len(events))
	for _, e := range events {
		existing[historyKey(e.Name, e.CoinID, e.Date.Format(domain.HistoryDateLayout))] = struct{}{}
	}

	rows := make([]HistoryRow, 0, len(entries))
	for _, entry := range entries {
		key := historyKey(entry.Name, entry.CoinID, entry.Date.Format(domain.HistoryDateLayout))
		status := StatusNew
		if _, ok := existing[key]; ok {
			status = StatusDuplicate
		} else {
			// Rows duplicated inside the upload collapse to one insert.
			existing[key] = struct{}{}
		}
		rows = append(rows, HistoryRow{Entry: entry, Status: status})
	}
	return rows, nil
}

// ImportHistory classifies and commits history rows in one pass. Only rows
// classified new are appended; the ledger sweeps derived state once.
func (s *Service) ImportHistory(ctx context.Context, entries []domain.HistoryEntry) (*ImportResult, error) {
	rows, err := s.ClassifyHistory(ctx, entries)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	records := make([]domain.EventRecord, 0, len(rows))
	for _, row := range rows {
		if row.Status == StatusDuplicate {
			result.Skipped = append(result.Skipped,
				historyKey(row.Entry.Name, row.Entry.CoinID, row.Entry.Date.Format(domain.HistoryDateLayout)))
			continue
		}
		records = append(records, domain.EventRecord{
			Name:     row.Entry.Name,
			CoinID:   row.Entry.CoinID,
			Date:     row.Entry.Date,
			IsActive: true,
		})
	}

	inserted, err := s.history.ImportBatch(ctx, records)
	if err != nil {
		return nil, err
	}
	result.Inserted = inserted
	return result, nil
}

func coinFromRow(row CoinRow) schema.Coin {
	coin := schema.Coin{
		CoinID:   row.CoinID,
		CoinType: row.CoinType,
		Year:     row.Year,
		Country:  row.Country,
		Series:   row.Series,
		Value:    row.Value,
	}
	if row.ImageURL != "" {
		coin.ImageURL = &row.ImageURL
	}
	if row.Feature != "" {
		coin.Feature = &row.Feature
	}
	if row.Volume != "" {
		coin.Volume = &row.Volume
	}
	return coin
}

// diffCoin compares a catalog row against an upload row field by field.
// NULL and empty string are the same absent value.
func diffCoin(current schema.Coin, row CoinRow) []FieldDiff {
	var diffs []FieldDiff
	add := func(field, existing, uploaded string) {
		if normalize(existing) != normalize(uploaded) {
			diffs = append(diffs, FieldDiff{Field: field, Existing: existing, Uploaded: uploaded})
		}
	}

	add("type", string(current.CoinType), string(row.CoinType))
	add("year", fmt.Sprintf("%d", current.Year), fmt.Sprintf("%d", row.Year))
	add("country", current.Country, row.Country)
	add("series", current.Series, row.Series)
	if !current.Value.Equal(row.Value) {
		diffs = append(diffs, FieldDiff{Field: "value", Existing: current.Value.String(), Uploaded: row.Value.String()})
	}
	add("image", deref(current.ImageURL), row.ImageURL)
	add("feature", deref(current.Feature), row.Feature)
	add("volume", deref(current.Volume), row.Volume)

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs
}

func normalize(v string) string {
	return strings.TrimSpace(v)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func historyKey(name, coinID, date string) string {
	return name + "_" + coinID + "_" + date
}
