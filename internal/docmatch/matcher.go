// Package docmatch scores extracted documents against ledger transactions.
// Matching is advisory and pure: it proposes candidates with confidence
// scores, and never writes anything. Acceptance is the caller's call.
package docmatch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"soleledger/internal/money"
)

const (
	// dateWindowDays bounds how far a transaction date may drift from the
	// document date and still count.
	dateWindowDays = 7

	// amountTolerance is the relative amount slack for a full-total match.
	amountTolerance = 0.05
)

// Document is the extracted view of a receipt or invoice. Total and date are
// pointers because extraction may fail to find them; either missing makes
// the document unmatchable.
type Document struct {
	Vendor     string
	TotalCents *int64
	Date       *time.Time
	TaxCents   *int64
	Currency   string
	LineItems  []LineItem
}

type LineItem struct {
	Description string
	AmountCents int64
}

// Candidate is a ledger transaction eligible for matching.
type Candidate struct {
	TransactionID string
	AmountCents   int64
	Date          time.Time
	Description   string
}

// Match is one scored proposal. Confidence is in [0, 1]; Reason explains the
// score in plain language.
type Match struct {
	TransactionID string  `json:"transaction_id"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

// Run scores candidates against the document and returns proposals sorted by
// descending confidence. A document without a usable total or date yields no
// proposals. Full-total matches are tried first; candidates left unmatched
// are then tried against individual line items at reduced confidence.
func Run(doc Document, candidates []Candidate) []Match {
	if doc.TotalCents == nil || doc.Date == nil {
		return nil
	}

	matches := make([]Match, 0, len(candidates))
	matched := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		match, ok := scoreFull(doc, candidate)
		if !ok {
			continue
		}
		matches = append(matches, match)
		matched[candidate.TransactionID] = struct{}{}
	}

	if len(doc.LineItems) > 0 {
		for _, candidate := range candidates {
			if _, done := matched[candidate.TransactionID]; done {
				continue
			}
			match, ok := scorePartial(doc, candidate)
			if !ok {
				continue
			}
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

func scoreFull(doc Document, candidate Candidate) (Match, bool) {
	gapDays, ok := dateGap(*doc.Date, candidate.Date)
	if !ok {
		return Match{}, false
	}
	closeness, ok := amountCloseness(*doc.TotalCents, candidate.AmountCents)
	if !ok {
		return Match{}, false
	}

	confidence := 0.5 +
		0.3*dateProximity(gapDays) +
		0.3*closeness +
		0.2*overlapRatio(doc.Vendor, candidate.Description)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return Match{
		TransactionID: candidate.TransactionID,
		Confidence:    confidence,
		Reason: fmt.Sprintf("total %s within %d day(s) of %q",
			money.FormatCents(candidate.AmountCents), gapDays, candidate.Description),
	}, true
}

// scorePartial matches a single line item against the candidate, for
// documents that cover only part of a card transaction. The first line item
// that clears the amount tolerance wins.
func scorePartial(doc Document, candidate Candidate) (Match, bool) {
	gapDays, ok := dateGap(*doc.Date, candidate.Date)
	if !ok {
		return Match{}, false
	}
	for _, item := range doc.LineItems {
		closeness, ok := amountCloseness(item.AmountCents, candidate.AmountCents)
		if !ok {
			continue
		}
		confidence := 0.3 +
			0.2*dateProximity(gapDays) +
			0.2*closeness +
			0.15*overlapRatio(item.Description, candidate.Description)
		if confidence > 0.8 {
			confidence = 0.8
		}
		return Match{
			TransactionID: candidate.TransactionID,
			Confidence:    confidence,
			Reason: fmt.Sprintf("line item %q (%s) against %q",
				item.Description, money.FormatCents(item.AmountCents), candidate.Description),
		}, true
	}
	return Match{}, false
}

func dateGap(docDate, candidateDate time.Time) (int, bool) {
	gap := docDate.Sub(candidateDate)
	if gap < 0 {
		gap = -gap
	}
	gapDays := int(gap.Hours() / 24)
	if gapDays > dateWindowDays {
		return 0, false
	}
	return gapDays, true
}

func dateProximity(gapDays int) float64 {
	return 1.0 - float64(gapDays)/float64(dateWindowDays)
}

// amountCloseness returns how near the candidate amount is to the target
// within the relative tolerance, or false when it falls outside.
func amountCloseness(target, actual int64) (float64, bool) {
	diff := float64(money.Abs(target - actual))
	tolerance := amountTolerance * float64(money.Abs(target))
	if tolerance == 0 {
		if diff == 0 {
			return 1.0, true
		}
		return 0, false
	}
	if diff > tolerance {
		return 0, false
	}
	return 1.0 - diff/tolerance, true
}

// overlapRatio measures how much of the shorter string's characters appear
// in the longer one, case-insensitively. Substring containment counts as a
// full overlap; transaction descriptors usually embed the vendor name.
func overlapRatio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1.0
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	counts := make(map[rune]int)
	for _, r := range longer {
		counts[r]++
	}
	common := 0
	total := 0
	for _, r := range shorter {
		total++
		if counts[r] > 0 {
			counts[r]--
			common++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(common) / float64(total)
}
