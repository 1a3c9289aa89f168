package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seolens/searchsync/internal/search"
)

const (
	// DefaultPageSize is the fixed row limit per fetch.
	DefaultPageSize = 1000
	// MaxHourlyLookbackDays bounds how far back hourly data is available
	// upstream; requests beyond this window return nothing.
	MaxHourlyLookbackDays = 10

	dateFormat = "2006-01-02"
)

// Config controls the HTTP client for the upstream analytics API.
type Config struct {
	// BaseURL is the API root, e.g. https://searchanalytics.example.com.
	BaseURL string
	// TokenURL is the OAuth token endpoint used to refresh access tokens.
	TokenURL string
	// ClientID/ClientSecret/RefreshToken authenticate token refreshes.
	ClientID     string
	ClientSecret string
	RefreshToken string
	// AccessToken seeds the first request; refreshed automatically on 401.
	AccessToken string
	// Timeout bounds each HTTP round trip.
	Timeout time.Duration
}

// HTTPClient talks to the upstream searchanalytics query endpoint with
// bearer-token auth, automatic token refresh, and jittered retry on
// transient failures.
type HTTPClient struct {
	mu          sync.RWMutex
	accessToken string
	cfg         Config
	httpClient  *http.Client
	retry       *retryPolicy
	logger      *zap.Logger
}

// statusError carries the upstream HTTP status for retry/refresh decisions.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.code, e.body)
}

// NewHTTPClient validates the config and builds a client.
func NewHTTPClient(cfg Config, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("searchapi.base_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		accessToken: cfg.AccessToken,
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		retry:       newRetryPolicy(),
		logger:      logger,
	}, nil
}

// FetchPage fetches one page of rows for (property, date, offset). A 401
// triggers one token refresh and retry; transient failures are retried with
// jittered backoff.
func (c *HTTPClient) FetchPage(ctx context.Context, req PageRequest) ([]Row, error) {
	if req.RowLimit <= 0 {
		req.RowLimit = DefaultPageSize
	}
	var rows []Row
	var err error
	refreshed := false
	for attempt := 0; ; attempt++ {
		rows, err = c.fetchOnce(ctx, req)
		if err == nil {
			return rows, nil
		}
		var sErr *statusError
		if errors.As(err, &sErr) && sErr.code == http.StatusUnauthorized {
			// One refresh per invocation: a 401 on a freshly issued token
			// means the credential itself is bad, not the token.
			if refreshed {
				return nil, fmt.Errorf("still unauthorized after token refresh: %w", err)
			}
			if refreshErr := c.refreshAccessToken(ctx); refreshErr != nil {
				return nil, fmt.Errorf("refresh access token: %w", refreshErr)
			}
			refreshed = true
			c.logger.Info("access token refreshed after 401, retrying fetch",
				zap.String("property", req.Property))
			continue
		}
		if !c.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		delay := c.retry.Backoff(attempt)
		c.logger.Warn("transient fetch failure, backing off",
			zap.String("property", req.Property),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *HTTPClient) fetchOnce(ctx context.Context, req PageRequest) ([]Row, error) {
	day := req.Date.UTC().Format(dateFormat)
	payload := queryRequest{
		StartDate:  day,
		EndDate:    day,
		Dimensions: dimensionsFor(req.SyncType),
		SearchType: search.DefaultSearchType,
		RowLimit:   req.RowLimit,
		StartRow:   req.StartRow,
	}
	if req.SyncType == search.SyncHourly {
		payload.DataState = "hourly_all"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sites/%s/searchanalytics/query",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(req.Property))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute query request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{code: resp.StatusCode, body: string(b)}
	}
	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return c.mapRows(decoded, req.SyncType), nil
}

// mapRows converts the raw response into typed rows, dropping malformed ones
// with a warning rather than failing the page.
func (c *HTTPClient) mapRows(decoded queryResponse, syncType search.SyncType) []Row {
	wantKeys := len(dimensionsFor(syncType))
	rows := make([]Row, 0, len(decoded.Rows))
	for _, raw := range decoded.Rows {
		if len(raw.Keys) < wantKeys {
			c.logger.Warn("skipping malformed row with missing dimension keys",
				zap.Int("keys", len(raw.Keys)),
				zap.Int("want", wantKeys))
			continue
		}
		row := Row{
			Clicks:      int64(raw.Clicks),
			Impressions: int64(raw.Impressions),
			CTR:         raw.CTR,
			Position:    raw.Position,
		}
		keys := raw.Keys
		if syncType == search.SyncHourly {
			hour, err := parseHour(keys[0])
			if err != nil {
				c.logger.Warn("skipping row with unparseable hour key",
					zap.String("key", keys[0]),
					zap.Error(err))
				continue
			}
			row.Hour = &hour
			keys = keys[1:]
		}
		row.Query = keys[0]
		row.Page = keys[1]
		if len(keys) > 2 {
			row.Device = keys[2]
		}
		if len(keys) > 3 {
			row.Country = keys[3]
		}
		rows = append(rows, row)
	}
	return rows
}

func (c *HTTPClient) refreshAccessToken(ctx context.Context) error {
	if c.cfg.TokenURL == "" || c.cfg.RefreshToken == "" {
		return fmt.Errorf("token refresh is not configured")
	}
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", c.cfg.RefreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("token refresh returned status %d: %s", resp.StatusCode, string(b))
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.mu.Unlock()
	return nil
}

// dimensionsFor returns the request dimensions in key order. The hour
// dimension leads for hourly fetches so the timestamp is always keys[0].
func dimensionsFor(syncType search.SyncType) []string {
	if syncType == search.SyncHourly {
		return []string{"hour", "query", "page", "device", "country"}
	}
	return []string{"query", "page", "device", "country"}
}
