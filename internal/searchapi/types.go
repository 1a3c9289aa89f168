// Package searchapi implements the client for the external search-analytics API.
package searchapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seolens/searchsync/internal/search"
)

// PageRequest identifies one page of analytics rows.
type PageRequest struct {
	// Property is the site identifier registered with the upstream API.
	Property string
	// Date scopes the request to a single day.
	Date time.Time
	// StartRow is the pagination offset.
	StartRow int
	// RowLimit is the fixed page size; a response shorter than this signals
	// exhaustion for the date.
	RowLimit int
	// SyncType selects daily or hourly granularity.
	SyncType search.SyncType
}

// Client fetches pages of analytics rows. Implementations must be invoked
// strictly sequentially per job; the upstream API degrades under concurrent
// access from the same credential.
type Client interface {
	FetchPage(ctx context.Context, req PageRequest) ([]Row, error)
}

// Row is one analytics observation mapped from the upstream response at the
// boundary, so downstream code never handles loosely-typed payloads.
type Row struct {
	Query       string
	Page        string
	Device      string
	Country     string
	Hour        *int
	Clicks      int64
	Impressions int64
	CTR         float64
	Position    float64
}

// ToRecord converts the row to a typed performance record for the given site
// and date, filling default dimension sentinels where the source omitted them.
func (r Row) ToRecord(siteID int64, date time.Time) search.PerformanceRecord {
	rec := search.PerformanceRecord{
		SiteID:      siteID,
		Date:        search.Day(date),
		Hour:        r.Hour,
		Query:       r.Query,
		Page:        r.Page,
		Device:      r.Device,
		Country:     r.Country,
		SearchType:  search.DefaultSearchType,
		Clicks:      r.Clicks,
		Impressions: r.Impressions,
		CTR:         r.CTR,
		Position:    r.Position,
	}
	if rec.Device == "" {
		rec.Device = search.DefaultDevice
	}
	if rec.Country == "" {
		rec.Country = search.DefaultCountry
	}
	return rec
}

// queryRequest is the upstream searchanalytics query payload.
type queryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	SearchType string   `json:"searchType,omitempty"`
	DataState  string   `json:"dataState,omitempty"`
	RowLimit   int      `json:"rowLimit"`
	StartRow   int      `json:"startRow"`
}

// queryResponse mirrors the upstream response shape.
type queryResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

// tokenResponse is the OAuth token refresh payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// parseHour extracts the hour from an hour-bearing timestamp key such as
// "2025-01-01T13:00:00-07:00".
func parseHour(key string) (int, error) {
	idx := strings.IndexByte(key, 'T')
	if idx < 0 || idx+3 > len(key) {
		return 0, fmt.Errorf("no hour component in %q", key)
	}
	hour, err := strconv.Atoi(key[idx+1 : idx+3])
	if err != nil {
		return 0, fmt.Errorf("parse hour in %q: %w", key, err)
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour %d out of range in %q", hour, key)
	}
	return hour, nil
}
