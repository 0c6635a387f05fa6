package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/ledger"
)

var coinHeader = []string{"type", "year", "country", "series", "value", "id", "image", "feature", "volume"}
var historyHeader = []string{"name", "id", "date"}

// ParseCoinCSV reads a catalog upload. The header must carry exactly the
// expected column names; order does not matter. Returns ErrInvalidUpload
// wrapped with detail on any structural problem.
func (s *Service) ParseCoinCSV(r io.Reader) ([]CoinRow, error) {
	records, index, err := readCSV(r, coinHeader)
	if err != nil {
		return nil, err
	}

	rows := make([]CoinRow, 0, len(records))
	for i, record := range records {
		line := i + 2 // header is line 1

		year, err := strconv.Atoi(strings.TrimSpace(record[index["year"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid year %q", domain.ErrInvalidUpload, line, record[index["year"]])
		}
		value, err := decimal.NewFromString(strings.TrimSpace(record[index["value"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid value %q", domain.ErrInvalidUpload, line, record[index["value"]])
		}
		coinType := domain.CoinType(strings.TrimSpace(record[index["type"]]))
		if !domain.IsValidCoinType(coinType) {
			return nil, fmt.Errorf("%w: line %d: unknown coin type %q", domain.ErrInvalidUpload, line, coinType)
		}
		coinID := strings.TrimSpace(record[index["id"]])
		if coinID == "" {
			return nil, fmt.Errorf("%w: line %d: empty coin id", domain.ErrInvalidUpload, line)
		}

		rows = append(rows, CoinRow{
			CoinID:   coinID,
			CoinType: coinType,
			Year:     year,
			Country:  strings.TrimSpace(record[index["country"]]),
			Series:   strings.TrimSpace(record[index["series"]]),
			Value:    value,
			ImageURL: strings.TrimSpace(record[index["image"]]),
			Feature:  strings.TrimSpace(record[index["feature"]]),
			Volume:   strings.TrimSpace(record[index["volume"]]),
		})
	}
	return rows, nil
}

// ParseHistoryCSV reads a history upload. Dates must be second-precision
// "2006-01-02 15:04:05" strings.
func (s *Service) ParseHistoryCSV(r io.Reader) ([]domain.HistoryEntry, error) {
	records, index, err := readCSV(r, historyHeader)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.HistoryEntry, 0, len(records))
	for i, record := range records {
		line := i + 2

		name := strings.TrimSpace(record[index["name"]])
		coinID := strings.TrimSpace(record[index["id"]])
		if name == "" || coinID == "" {
			return nil, fmt.Errorf("%w: line %d: empty name or coin id", domain.ErrInvalidUpload, line)
		}
		date, err := s.clock.Parse(domain.HistoryDateLayout, strings.TrimSpace(record[index["date"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid date %q", domain.ErrInvalidUpload, line, record[index["date"]])
		}

		entries = append(entries, domain.HistoryEntry{
			Name:   name,
			CoinID: coinID,
			Date:   date,
		})
	}
	return entries, nil
}

// ExportCoins writes the whole catalog as CSV in upload-compatible column
// order, sorted year ASC, series ASC, country ASC.
func (s *Service) ExportCoins(ctx context.Context, w io.Writer) error {
	coins, err := s.store.GetAllCoinsForExport(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(coinHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, c := range coins {
		record := []string{
			string(c.CoinType),
			strconv.Itoa(c.Year),
			c.Country,
			c.Series,
			c.Value.StringFixed(2),
			c.CoinID,
			deref(c.ImageURL),
			deref(c.Feature),
			deref(c.Volume),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportHistory writes current holdings as CSV in upload-compatible form.
// The ledger is resolved first, so released coins are absent and importing
// the file elsewhere reproduces the current state, not every historic row.
func (s *Service) ExportHistory(ctx context.Context, w io.Writer) error {
	events, err := s.store.GetAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load history for export: %w", err)
	}
	holdings := ledger.Resolve(events)
	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].Name != holdings[j].Name {
			return holdings[i].Name < holdings[j].Name
		}
		return holdings[i].CoinID < holdings[j].CoinID
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, h := range holdings {
		record := []string{
			h.Name,
			h.CoinID,
			h.AcquiredDate.Format(domain.HistoryDateLayout),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// readCSV pulls all records and validates that the header is exactly the
// expected column set. Returns the data records plus a name-to-position
// index so callers are independent of column order.
func readCSV(r io.Reader, expected []string) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty file", domain.ErrInvalidUpload)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpload, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if len(index) != len(expected) {
		return nil, nil, fmt.Errorf("%w: expected columns %v, got %v", domain.ErrInvalidUpload, expected, header)
	}
	for _, name := range expected {
		if _, ok := index[name]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", domain.ErrInvalidUpload, name)
		}
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpload, err)
		}
		records = append(records, record)
	}
	return records, index, nil
}
