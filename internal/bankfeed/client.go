// Package bankfeed is the boundary to the bank aggregation provider. The
// provider owns transaction history; this package only fetches deltas and
// normalizes them for the reconciler.
package bankfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrFeedUnavailable = errors.New("bank feed unavailable")

// Record is one aggregator transaction. Amount keeps the provider's signed
// decimal string; the caller decides how to interpret the sign. Category is
// the provider's suggested label, absent when the provider could not label
// the record.
type Record struct {
	ExternalID  string
	Amount      string
	Currency    string
	Date        time.Time
	Description string
	Category    *string
	Pending     bool
}

type RemovedRecord struct {
	ExternalID string
}

// DeltaPage is one page of changes since a cursor. HasMore with NextCursor
// drives pagination; the last page has HasMore false.
type DeltaPage struct {
	Added      []Record
	Modified   []Record
	Removed    []RemovedRecord
	NextCursor string
	HasMore    bool
}

// Client is the capability the reconciler needs from the aggregator.
type Client interface {
	// Refresh asks the provider to pull fresh data for the item behind the
	// feed token before deltas are read.
	Refresh(ctx context.Context, feedToken string) error
	// Delta returns changes since cursor. An empty cursor starts from the
	// beginning of the provider's history.
	Delta(ctx context.Context, feedToken, cursor string) (DeltaPage, error)
}

type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type refreshRequest struct {
	FeedToken string `json:"feed_token"`
}

type deltaRequest struct {
	FeedToken string `json:"feed_token"`
	Cursor    string `json:"cursor,omitempty"`
}

type wireRecord struct {
	ExternalID  string  `json:"external_id"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"iso_currency_code"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Category    *string `json:"category"`
	Pending     bool    `json:"pending"`
}

type wireRemoved struct {
	ExternalID string `json:"external_id"`
}

type deltaResponse struct {
	Added      []wireRecord  `json:"added"`
	Modified   []wireRecord  `json:"modified"`
	Removed    []wireRemoved `json:"removed"`
	NextCursor string        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

func (c *HTTPClient) Refresh(ctx context.Context, feedToken string) error {
	return c.post(ctx, "/v1/refresh", refreshRequest{FeedToken: feedToken}, nil)
}

func (c *HTTPClient) Delta(ctx context.Context, feedToken, cursor string) (DeltaPage, error) {
	var body deltaResponse
	if err := c.post(ctx, "/v1/delta", deltaRequest{FeedToken: feedToken, Cursor: cursor}, &body); err != nil {
		return DeltaPage{}, err
	}
	page := DeltaPage{
		NextCursor: body.NextCursor,
		HasMore:    body.HasMore,
	}
	for _, raw := range body.Added {
		record, err := fromWire(raw)
		if err != nil {
			return DeltaPage{}, err
		}
		page.Added = append(page.Added, record)
	}
	for _, raw := range body.Modified {
		record, err := fromWire(raw)
		if err != nil {
			return DeltaPage{}, err
		}
		page.Modified = append(page.Modified, record)
	}
	for _, raw := range body.Removed {
		page.Removed = append(page.Removed, RemovedRecord{ExternalID: raw.ExternalID})
	}
	return page, nil
}

func fromWire(raw wireRecord) (Record, error) {
	date, err := time.Parse("2006-01-02", raw.Date)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad record date %q", ErrFeedUnavailable, raw.Date)
	}
	return Record{
		ExternalID:  raw.ExternalID,
		Amount:      raw.Amount,
		Currency:    raw.Currency,
		Date:        date,
		Description: raw.Description,
		Category:    raw.Category,
		Pending:     raw.Pending,
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrFeedUnavailable, path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
