package importer_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/importer"
	"github.com/myeurocoins/coin-catalog/internal/mocks"
	"github.com/myeurocoins/coin-catalog/internal/store/schema"
)

type fakeCatalogWriter struct {
	coins    []schema.Coin
	events   []schema.OwnershipEvent
	inserted []schema.Coin
}

func (f *fakeCatalogWriter) GetCoinsByIDs(_ context.Context, coinIDs []string) ([]schema.Coin, error) {
	want := make(map[string]struct{}, len(coinIDs))
	for _, id := range coinIDs {
		want[id] = struct{}{}
	}
	var out []schema.Coin
	for _, c := range f.coins {
		if _, ok := want[c.CoinID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCatalogWriter) ExistingCoinIDs(_ context.Context, coinIDs []string) ([]string, error) {
	want := make(map[string]struct{}, len(coinIDs))
	for _, id := range coinIDs {
		want[id] = struct{}{}
	}
	var out []string
	for _, c := range f.coins {
		if _, ok := want[c.CoinID]; ok {
			out = append(out, c.CoinID)
		}
	}
	return out, nil
}

func (f *fakeCatalogWriter) InsertCoins(_ context.Context, coins []schema.Coin) error {
	f.inserted = append(f.inserted, coins...)
	f.coins = append(f.coins, coins...)
	return nil
}

func (f *fakeCatalogWriter) GetAllCoinsForExport(_ context.Context) ([]schema.Coin, error) {
	return f.coins, nil
}

func (f *fakeCatalogWriter) GetAllEvents(_ context.Context) ([]schema.OwnershipEvent, error) {
	return f.events, nil
}

type fakeHistoryImporter struct {
	records []domain.EventRecord
}

func (f *fakeHistoryImporter) ImportBatch(_ context.Context, entries []domain.EventRecord) (int, error) {
	f.records = append(f.records, entries...)
	return len(entries), nil
}

func newService(t *testing.T, store *fakeCatalogWriter, history *fakeHistoryImporter) (*importer.Service, *cache.Service) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)).AnyTimes()
	clock.EXPECT().Parse(gomock.Any(), gomock.Any()).DoAndReturn(time.Parse).AnyTimes()

	cacheSvc := cache.New(clock, time.Minute)
	return importer.NewService(store, history, cacheSvc, clock), cacheSvc
}

func existingCoin(id string, feature *string) schema.Coin {
	return schema.Coin{
		CoinID:   id,
		CoinType: domain.CoinTypeRegular,
		Year:     1999,
		Country:  "France",
		Series:   "A",
		Value:    decimal.NewFromFloat(1.00),
		Feature:  feature,
	}
}

const coinCSV = `type,year,country,series,value,id,image,feature,volume
RE,1999,France,A,1.00,RE1999FRA-A-RE1-100,,,
CC,2004,Greece,OLY,2.00,CC2004GRC-OLY-200,http://img,Olympics,50000000
`

func TestParseCoinCSV(t *testing.T) {
	svc, _ := newService(t, &fakeCatalogWriter{}, &fakeHistoryImporter{})

	rows, err := svc.ParseCoinCSV(strings.NewReader(coinCSV))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "RE1999FRA-A-RE1-100", rows[0].CoinID)
	assert.Equal(t, domain.CoinTypeRegular, rows[0].CoinType)
	assert.Equal(t, 1999, rows[0].Year)
	assert.True(t, rows[0].Value.Equal(decimal.NewFromFloat(1.00)))

	assert.Equal(t, "Olympics", rows[1].Feature)
	assert.Equal(t, "50000000", rows[1].Volume)
}

func TestParseCoinCSVColumnOrderIrrelevant(t *testing.T) {
	svc, _ := newService(t, &fakeCatalogWriter{}, &fakeHistoryImporter{})

	shuffled := `id,volume,feature,image,value,series,country,year,type
RE1999FRA-A-RE1-100,,,,1.00,A,France,1999,RE
`
	rows, err := svc.ParseCoinCSV(strings.NewReader(shuffled))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "France", rows[0].Country)
}

func TestParseCoinCSVRejectsBadHeader(t *testing.T) {
	svc, _ := newService(t, &fakeCatalogWriter{}, &fakeHistoryImporter{})

	tests := []struct {
		name string
		csv  string
	}{
		{"missing column", "type,year,country,series,value,id,image,feature\nRE,1999,France,A,1.00,x,,,\n"},
		{"unknown column", "type,year,country,series,value,id,image,feature,bonus\nRE,1999,France,A,1.00,x,,,\n"},
		{"empty file", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ParseCoinCSV(strings.NewReader(tc.csv))
			assert.ErrorIs(t, err, domain.ErrInvalidUpload)
		})
	}
}

func TestParseCoinCSVRejectsBadValues(t *testing.T) {
	svc, _ := newService(t, &fakeCatalogWriter{}, &fakeHistoryImporter{})

	badYear := "type,year,country,series,value,id,image,feature,volume\nRE,abc,France,A,1.00,x,,,\n"
	_, err := svc.ParseCoinCSV(strings.NewReader(badYear))
	assert.ErrorIs(t, err, domain.ErrInvalidUpload)

	badType := "type,year,country,series,value,id,image,feature,volume\nXX,1999,France,A,1.00,x,,,\n"
	_, err = svc.ParseCoinCSV(strings.NewReader(badType))
	assert.ErrorIs(t, err, domain.ErrInvalidUpload)
}

func TestClassifyCoins(t *testing.T) {
	feature := "Sower"
	store := &fakeCatalogWriter{coins: []schema.Coin{
		existingCoin("dup", nil),
		existingCoin("conflict", &feature),
	}}
	svc, _ := newService(t, store, &fakeHistoryImporter{})

	rows := []importer.CoinRow{
		{CoinID: "fresh", CoinType: domain.CoinTypeRegular, Year: 1999, Country: "France", Series: "A", Value: decimal.NewFromFloat(1.00)},
		// NULL feature in the catalog, empty string in the upload: equal.
		{CoinID: "dup", CoinType: domain.CoinTypeRegular, Year: 1999, Country: "France", Series: "A", Value: decimal.NewFromFloat(1.00), Feature: ""},
		// A differing year alone does not make a conflict; identity is the
		// feature field.
		{CoinID: "dup", CoinType: domain.CoinTypeRegular, Year: 2002, Country: "France", Series: "A", Value: decimal.NewFromFloat(1.00), Feature: ""},
		{CoinID: "conflict", CoinType: domain.CoinTypeRegular, Year: 1999, Country: "France", Series: "A", Value: decimal.NewFromFloat(1.00), Feature: "Different"},
	}

	verdicts, err := svc.ClassifyCoins(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, verdicts, 4)

	assert.Equal(t, importer.StatusNew, verdicts[0].Status)
	assert.Equal(t, importer.StatusDuplicate, verdicts[1].Status)
	assert.Equal(t, importer.StatusDuplicate, verdicts[2].Status)
	assert.Equal(t, importer.StatusConflict, verdicts[3].Status)
	require.Len(t, verdicts[3].Diffs, 1)
	assert.Equal(t, "feature", verdicts[3].Diffs[0].Field)
	assert.Equal(t, "Sower", verdicts[3].Diffs[0].Existing)
}

func TestImportCoinsFailsOnExistingAtCommit(t *testing.T) {
	store := &fakeCatalogWriter{coins: []schema.Coin{existingCoin("taken", nil)}}
	svc, _ := newService(t, store, &fakeHistoryImporter{})

	_, err := svc.ImportCoins(context.Background(), []importer.CoinRow{
		{CoinID: "taken", CoinType: domain.CoinTypeRegular, Year: 1999, Country: "France", Value: decimal.NewFromFloat(1.00)},
		{CoinID: "fresh", CoinType: domain.CoinTypeRegular, Year: 2002, Country: "Germany", Value: decimal.NewFromFloat(2.00)},
	})
	assert.ErrorIs(t, err, domain.ErrCoinAlreadyExists)
	assert.Empty(t, store.inserted)
}

func TestImportCoinsCollapsesUploadDuplicates(t *testing.T) {
	store := &fakeCatalogWriter{}
	svc, cacheSvc := newService(t, store, &fakeHistoryImporter{})

	// Warm the cache so the post-commit sweep is observable.
	_, _, err := cacheSvc.GetOrCompute(context.Background(),
		cache.Spec{Query: "warm", Tags: []string{cache.TagCatalog}},
		func(ctx context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)

	result, err := svc.ImportCoins(context.Background(), []importer.CoinRow{
		{CoinID: "fresh", CoinType: domain.CoinTypeRegular, Year: 2002, Country: "Germany", Value: decimal.NewFromFloat(2.00)},
		{CoinID: "fresh", CoinType: domain.CoinTypeRegular, Year: 2002, Country: "Germany", Value: decimal.NewFromFloat(2.00)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, []string{"fresh"}, result.Skipped)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "fresh", store.inserted[0].CoinID)
	assert.Equal(t, 0, cacheSvc.Len())
}

func TestImportCoinsEmpty(t *testing.T) {
	store := &fakeCatalogWriter{}
	svc, _ := newService(t, store, &fakeHistoryImporter{})

	result, err := svc.ImportCoins(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Inserted)
	assert.Empty(t, store.inserted)
}

func TestParseHistoryCSV(t *testing.T) {
	svc, _ := newService(t, &fakeCatalogWriter{}, &fakeHistoryImporter{})

	entries, err := svc.ParseHistoryCSV(strings.NewReader(
		"name,id,date\nalice,RE1999FRA-A-RE1-100,2020-01-01 10:30:00\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Name)
	assert.Equal(t, time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC), entries[0].Date)

	_, err = svc.ParseHistoryCSV(strings.NewReader("name,id,date\nalice,x,2020-01-01\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidUpload)
}

func TestClassifyHistory(t *testing.T) {
	d := time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)
	store := &fakeCatalogWriter{events: []schema.OwnershipEvent{
		{Name: "alice", CoinID: "a", Date: d, IsActive: true},
	}}
	svc, _ := newService(t, store, &fakeHistoryImporter{})

	rows, err := svc.ClassifyHistory(context.Background(), []domain.HistoryEntry{
		{Name: "alice", CoinID: "a", Date: d},
		{Name: "alice", CoinID: "a", Date: d.Add(time.Second)},
		{Name: "bob", CoinID: "a", Date: d},
		// Same triple twice inside one upload: second one is a duplicate.
		{Name: "bob", CoinID: "a", Date: d},
	})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, importer.StatusDuplicate, rows[0].Status)
	assert.Equal(t, importer.StatusNew, rows[1].Status)
	assert.Equal(t, importer.StatusNew, rows[2].Status)
	assert.Equal(t, importer.StatusDuplicate, rows[3].Status)
}

func TestImportHistoryInsertsOnlyNew(t *testing.T) {
	d := time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)
	store := &fakeCatalogWriter{events: []schema.OwnershipEvent{
		{Name: "alice", CoinID: "a", Date: d, IsActive: true},
	}}
	history := &fakeHistoryImporter{}
	svc, _ := newService(t, store, history)

	result, err := svc.ImportHistory(context.Background(), []domain.HistoryEntry{
		{Name: "alice", CoinID: "a", Date: d},
		{Name: "bob", CoinID: "a", Date: d},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Len(t, result.Skipped, 1)
	require.Len(t, history.records, 1)
	assert.Equal(t, "bob", history.records[0].Name)
	assert.True(t, history.records[0].IsActive)
}

func TestExportCoins(t *testing.T) {
	feature := "Sower"
	store := &fakeCatalogWriter{coins: []schema.Coin{existingCoin("RE1999FRA-A-RE1-100", &feature)}}
	svc, _ := newService(t, store, &fakeHistoryImporter{})

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCoins(context.Background(), &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "type,year,country,series,value,id,image,feature,volume", lines[0])
	assert.Equal(t, "RE,1999,France,A,1.00,RE1999FRA-A-RE1-100,,Sower,", lines[1])
}

func TestExportHistory(t *testing.T) {
	d := time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)
	store := &fakeCatalogWriter{events: []schema.OwnershipEvent{
		{Name: "alice", CoinID: "a", Date: d, IsActive: true},
		// Acquired then released; the release wins and the pair stays out
		// of the export.
		{Name: "bob", CoinID: "b", Date: d, IsActive: true},
		{Name: "bob", CoinID: "b", Date: d.AddDate(0, 1, 0), IsActive: false},
		{Name: "alice", CoinID: "c", Date: d.AddDate(0, 0, 3), IsActive: true},
	}}
	svc, _ := newService(t, store, &fakeHistoryImporter{})

	var buf bytes.Buffer
	require.NoError(t, svc.ExportHistory(context.Background(), &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "name,id,date", lines[0])
	assert.Equal(t, "alice,a,2020-01-01 10:30:00", lines[1])
	assert.Equal(t, "alice,c,2020-01-04 10:30:00", lines[2])
}
