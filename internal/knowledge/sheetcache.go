package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SheetCache caches the CSV export of a spreadsheet-backed knowledge base.
// Refresh re-downloads the export and re-parses it only when the content
// hash changed; GetSnapshot serves whatever the cache currently holds.
type SheetCache struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu        sync.RWMutex
	headers   []string
	rows      []map[string]string
	hash      string
	fetchedAt time.Time
}

// NewSheetCache creates a cache over the CSV export at url.
func NewSheetCache(url string, fetchTimeout time.Duration, logger *slog.Logger) *SheetCache {
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SheetCache{
		url:    url,
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger.With("component", "knowledge_cache"),
	}
}

// Refresh downloads the export and swaps in new rows when the content hash
// changed. Intended to run on the scheduler poll; safe to call concurrently
// with GetSnapshot.
func (c *SheetCache) Refresh(ctx context.Context) error {
	if c.url == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build knowledge fetch request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("knowledge fetch failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "Error closing knowledge fetch body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("knowledge fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read knowledge export: %w", err)
	}

	sum := sha256.Sum256(body)
	newHash := hex.EncodeToString(sum[:])

	c.mu.RLock()
	unchanged := newHash == c.hash
	c.mu.RUnlock()
	if unchanged {
		c.logger.DebugContext(ctx, "Knowledge export unchanged, keeping cached rows", "hash", newHash[:12])
		return nil
	}

	headers, rows, err := parseCSV(body)
	if err != nil {
		return fmt.Errorf("failed to parse knowledge export: %w", err)
	}

	c.mu.Lock()
	c.headers = headers
	c.rows = rows
	c.hash = newHash
	c.fetchedAt = time.Now().UTC()
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Knowledge cache refreshed", "rows", len(rows), "hash", newHash[:12])
	return nil
}

// GetSnapshot filters the cached rows by queryType (matched against a
// "type" column when present) and exact-match params. It never triggers a
// refresh; staleness is acceptable by contract.
func (c *SheetCache) GetSnapshot(ctx context.Context, userID int64, queryType string, params map[string]string) (Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []map[string]string
	for _, row := range c.rows {
		if queryType != "" {
			if rowType, ok := row["type"]; ok && !strings.EqualFold(rowType, queryType) {
				continue
			}
		}
		if !rowMatches(row, params) {
			continue
		}
		matched = append(matched, row)
	}

	summary := fmt.Sprintf("%d knowledge rows", len(matched))
	if queryType != "" {
		summary = fmt.Sprintf("%d knowledge rows for %q", len(matched), queryType)
	}

	return Snapshot{
		Rows:      matched,
		Summary:   summary,
		FetchedAt: c.fetchedAt,
	}, nil
}

func rowMatches(row map[string]string, params map[string]string) bool {
	for key, want := range params {
		if got, ok := row[key]; !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

func parseCSV(body []byte) ([]string, []map[string]string, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}
