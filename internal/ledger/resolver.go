package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"soleledger/internal/chart"
	"soleledger/internal/store"

	"github.com/google/uuid"
)

// CategoryCache resolves category labels against a business's chart of
// accounts without touching storage. It is loaded once per sync run and
// never shared between concurrent runs: code allocation advances an
// in-memory counter per type, so a batch of new labels gets unique,
// strictly increasing codes even though the rows commit later.
type CategoryCache struct {
	businessID string
	byLabel    map[string]string
	nextCode   map[string]int
	staged     []store.CategoryInput
}

// NewCategoryCache seeds the cache from the business's existing categories.
// Each type's counter starts at the highest code already used in its band,
// or one below the band floor when the band is empty.
func NewCategoryCache(businessID string, existing []store.Category) *CategoryCache {
	cache := &CategoryCache{
		businessID: businessID,
		byLabel:    make(map[string]string, len(existing)),
		nextCode:   make(map[string]int),
	}
	for _, category := range existing {
		cache.byLabel[labelKey(category.Type, category.Name)] = category.ID
		code, err := strconv.Atoi(category.Code)
		if err != nil {
			continue
		}
		if !chart.CodeInBand(category.Code, category.Type) {
			continue
		}
		if code > cache.highestCode(category.Type) {
			cache.nextCode[category.Type] = code
		}
	}
	return cache
}

// Resolve returns the category id for a (type, label) pair, allocating and
// staging a new category when no existing or staged one matches.
func (c *CategoryCache) Resolve(accountType, label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", fmt.Errorf("empty category label")
	}
	if id, ok := c.byLabel[labelKey(accountType, label)]; ok {
		return id, nil
	}
	band, err := chart.BandFor(accountType)
	if err != nil {
		return "", err
	}
	code := c.highestCodeOr(accountType, band.Low-1) + 1
	if code > band.High {
		return "", fmt.Errorf("%w: %s", ErrBandExhausted, accountType)
	}
	c.nextCode[accountType] = code

	id := uuid.NewString()
	c.staged = append(c.staged, store.CategoryInput{
		ID:         id,
		BusinessID: c.businessID,
		Code:       strconv.Itoa(code),
		Name:       label,
		Type:       accountType,
	})
	c.byLabel[labelKey(accountType, label)] = id
	return id, nil
}

// Staged returns the categories allocated during this run, in allocation
// order, for a skip-if-exists batch insert.
func (c *CategoryCache) Staged() []store.CategoryInput {
	return c.staged
}

func (c *CategoryCache) highestCode(accountType string) int {
	return c.nextCode[accountType]
}

func (c *CategoryCache) highestCodeOr(accountType string, fallback int) int {
	if code, ok := c.nextCode[accountType]; ok {
		return code
	}
	return fallback
}

func labelKey(accountType, label string) string {
	return accountType + "|" + strings.ToLower(strings.TrimSpace(label))
}
