// Package chart defines the chart-of-accounts structure: account types,
// their fixed numeric code bands, and the default chart a business starts
// with.
package chart

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	Asset     = "asset"
	Liability = "liability"
	Equity    = "equity"
	Income    = "income"
	Expense   = "expense"
)

// Reserved codes the posting engine depends on.
const (
	CashCode          = "1000"
	OpeningEquityCode = "3900"
)

var ErrUnknownAccountType = errors.New("unknown account type")

// Band is the inclusive numeric code range an account type owns.
type Band struct {
	Low  int
	High int
}

var bands = map[string]Band{
	Asset:     {Low: 1000, High: 1999},
	Liability: {Low: 2000, High: 2999},
	Equity:    {Low: 3000, High: 3999},
	Income:    {Low: 4000, High: 4999},
	Expense:   {Low: 6000, High: 6999},
}

func BandFor(accountType string) (Band, error) {
	band, ok := bands[accountType]
	if !ok {
		return Band{}, fmt.Errorf("%w: %q", ErrUnknownAccountType, accountType)
	}
	return band, nil
}

// CodeInBand reports whether a code string parses as a number inside the
// type's band. Codes are stored as strings so they sort numerically only
// within a band, which is all the resolver relies on.
func CodeInBand(code, accountType string) bool {
	band, ok := bands[accountType]
	if !ok {
		return false
	}
	parsed, err := strconv.Atoi(code)
	if err != nil {
		return false
	}
	return parsed >= band.Low && parsed <= band.High
}

// Node is one default-chart entry.
type Node struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type chartFile struct {
	Categories []Node `yaml:"categories"`
}

// LoadFile reads a default chart from YAML and validates every code against
// its type's band.
func LoadFile(path string) ([]Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chart file: %w", err)
	}
	var parsed chartFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse chart file: %w", err)
	}
	if len(parsed.Categories) == 0 {
		return nil, errors.New("chart file has no categories")
	}
	for _, node := range parsed.Categories {
		if !CodeInBand(node.Code, node.Type) {
			return nil, fmt.Errorf("chart code %s outside %s band", node.Code, node.Type)
		}
	}
	return parsed.Categories, nil
}

// Default is the built-in chart used when no chart file is configured.
func Default() []Node {
	return []Node{
		{Code: CashCode, Name: "Cash", Type: Asset},
		{Code: "1100", Name: "Accounts Receivable", Type: Asset},
		{Code: "2000", Name: "Accounts Payable", Type: Liability},
		{Code: "2100", Name: "Credit Card", Type: Liability},
		{Code: "3000", Name: "Owner's Equity", Type: Equity},
		{Code: OpeningEquityCode, Name: "Opening Balance Equity", Type: Equity},
		{Code: "4000", Name: "Sales", Type: Income},
		{Code: "4100", Name: "Service Revenue", Type: Income},
		{Code: "6000", Name: "General Expenses", Type: Expense},
		{Code: "6100", Name: "Office Supplies", Type: Expense},
		{Code: "6200", Name: "Meals & Entertainment", Type: Expense},
		{Code: "6300", Name: "Travel", Type: Expense},
	}
}
