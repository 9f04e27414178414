// Package extraction is the boundary to the document extraction service,
// which turns uploaded receipts and invoices into structured fields.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"soleledger/internal/docmatch"
	"soleledger/internal/money"
)

var ErrExtractorUnavailable = errors.New("extraction service unavailable")

type LineItem struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// Result is what the extractor found. Financial false means the document is
// not a receipt or invoice at all; the remaining fields are then empty.
// Monetary fields stay decimal strings until the caller converts them.
type Result struct {
	Financial    bool       `json:"financial"`
	DocumentType string     `json:"document_type"`
	Vendor       string     `json:"vendor"`
	TotalAmount  *string    `json:"total_amount"`
	Currency     string     `json:"currency"`
	Date         *string    `json:"date"`
	Tax          *string    `json:"tax"`
	LineItems    []LineItem `json:"line_items"`
	Confidence   float64    `json:"confidence"`
}

// Extractor is the capability handlers need from the extraction service.
type Extractor interface {
	Extract(ctx context.Context, documentURL string) (Result, error)
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
			Timeout: 60 * time.Second,
		},
	}
}

type extractRequest struct {
	DocumentURL string `json:"document_url"`
}

func (c *HTTPClient) Extract(ctx context.Context, documentURL string) (Result, error) {
	encoded, err := json.Marshal(extractRequest{DocumentURL: documentURL})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(encoded))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtractorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: extract returned %d: %s", ErrExtractorUnavailable, resp.StatusCode, snippet)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// ToDocument converts an extraction result into the matcher's document
// shape. Fields the extractor could not find stay nil; malformed amounts or
// dates are treated as missing rather than failing the whole document.
func ToDocument(result Result) docmatch.Document {
	doc := docmatch.Document{
		Vendor:   result.Vendor,
		Currency: result.Currency,
	}
	if result.TotalAmount != nil {
		if cents, err := money.ParseSignedCents(*result.TotalAmount); err == nil {
			doc.TotalCents = &cents
		}
	}
	if result.Tax != nil {
		if cents, err := money.ParseSignedCents(*result.Tax); err == nil {
			doc.TaxCents = &cents
		}
	}
	if result.Date != nil {
		if parsed, err := time.Parse("2006-01-02", *result.Date); err == nil {
			doc.Date = &parsed
		}
	}
	for _, item := range result.LineItems {
		cents, err := money.ParseSignedCents(item.Amount)
		if err != nil {
			continue
		}
		doc.LineItems = append(doc.LineItems, docmatch.LineItem{
			Description: item.Description,
			AmountCents: cents,
		})
	}
	return doc
}
