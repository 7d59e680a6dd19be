// Package catalog loads the instrument catalog: the broker's full CSV dump
// of tradable instruments, cached on disk for a day.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/deepuanant/tickrelay/internal/model"
)

// DefaultURL is the public instruments dump endpoint.
const DefaultURL = "https://api.kite.trade/instruments"

// Client fetches and caches the instrument catalog.
type Client struct {
	url        string
	cachePath  string
	cacheTTL   time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCacheTTL overrides the cache validity window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// New creates a catalog Client caching at cachePath.
func New(url, cachePath string, opts ...Option) *Client {
	c := &Client{
		url:       url,
		cachePath: cachePath,
		cacheTTL:  24 * time.Hour,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.Default(),
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the catalog, preferring a fresh cache, then the broker, then a
// stale cache. Fails when the fetch fails and no cache exists, or when the
// fetch fails and the stale cache cannot be read or parsed.
func (c *Client) Load(ctx context.Context) ([]model.Instrument, error) {
	if c.cacheValid() {
		instruments, err := c.loadCache()
		if err == nil {
			c.logger.Info("using cached instrument catalog",
				"path", c.cachePath,
				"count", len(instruments),
			)
			return instruments, nil
		}
		c.logger.Warn("instrument cache unreadable, refetching", "error", err)
	}

	instruments, err := c.Fetch(ctx)
	if err != nil {
		if c.cacheExists() {
			c.logger.Warn("catalog fetch failed, falling back to stale cache", "error", err)
			return c.loadCache()
		}
		return nil, fmt.Errorf("fetch instrument catalog: %w", err)
	}

	if err := c.saveCache(instruments); err != nil {
		c.logger.Warn("failed to write instrument cache", "error", err)
	}

	c.logger.Info("fetched instrument catalog", "count", len(instruments))
	return instruments, nil
}

// Fetch downloads and parses the instruments dump.
func (c *Client) Fetch(ctx context.Context) ([]model.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instruments endpoint returned %s", resp.Status)
	}

	return parseCSV(resp.Body)
}

// parseCSV parses the instruments dump. Rows that do not parse are skipped
// rather than failing the whole load.
func parseCSV(r io.Reader) ([]model.Instrument, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "segment", "exchange"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("instruments csv missing column %q", required)
		}
	}

	var instruments []model.Instrument
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("read instruments csv: %w", err)
		}

		token, err := strconv.ParseUint(field(row, idx, "instrument_token"), 10, 32)
		if err != nil {
			continue
		}
		exchToken, _ := strconv.ParseUint(field(row, idx, "exchange_token"), 10, 32)
		strike, _ := strconv.ParseFloat(field(row, idx, "strike"), 64)
		tickSize, _ := strconv.ParseFloat(field(row, idx, "tick_size"), 64)
		lotSize, _ := strconv.Atoi(field(row, idx, "lot_size"))

		var expiry time.Time
		if v := field(row, idx, "expiry"); v != "" {
			expiry, _ = time.Parse("2006-01-02", v)
		}

		instruments = append(instruments, model.Instrument{
			InstrumentToken: uint32(token),
			ExchangeToken:   uint32(exchToken),
			Tradingsymbol:   field(row, idx, "tradingsymbol"),
			Name:            field(row, idx, "name"),
			Expiry:          expiry,
			Strike:          strike,
			TickSize:        tickSize,
			LotSize:         lotSize,
			InstrumentType:  field(row, idx, "instrument_type"),
			Segment:         field(row, idx, "segment"),
			Exchange:        field(row, idx, "exchange"),
		})
	}

	return instruments, nil
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
