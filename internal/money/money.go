package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrAmountTooLarge  = errors.New("amount exceeds supported magnitude")
)

// MaxMagnitudeCents bounds any single balance or transaction magnitude.
// One trillion in cents is far beyond anything a small-business ledger holds.
const MaxMagnitudeCents int64 = 1_000_000_000_000_00

// ParseCents parses a decimal money string into signed cents. At most two
// decimal places are accepted; nothing is rounded implicitly.
func ParseCents(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	parts := strings.SplitN(trimmed, ".", 2)
	wholePart := parts[0]
	if wholePart == "" {
		wholePart = "0"
	}
	if !isDigits(wholePart) {
		return 0, ErrInvalidAmount
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > 2 {
		return 0, ErrTooManyDecimals
	}
	if fracPart != "" && !isDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	frac := int64(0)
	if len(fracPart) == 1 {
		frac = int64(fracPart[0]-'0') * 10
	} else if len(fracPart) == 2 {
		value, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		frac = value
	}
	cents := whole*100 + frac
	if cents > MaxMagnitudeCents {
		return 0, ErrAmountTooLarge
	}
	return sign * cents, nil
}

// ParseSignedCents converts an aggregator decimal amount into signed cents,
// rounding half-even at cent precision. Feed amounts may carry more than two
// decimals (card networks report sub-cent amounts).
func ParseSignedCents(input string) (int64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := value.Mul(decimal.NewFromInt(100)).RoundBank(0).IntPart()
	if cents > MaxMagnitudeCents || cents < -MaxMagnitudeCents {
		return 0, ErrAmountTooLarge
	}
	return cents, nil
}

// ValidateBalance checks a user-supplied balance string and returns it in
// cents. Used before any posting side effects occur.
func ValidateBalance(input string) (int64, error) {
	cents, err := ParseCents(input)
	if err != nil {
		return 0, err
	}
	if cents < -MaxMagnitudeCents {
		return 0, ErrAmountTooLarge
	}
	return cents, nil
}

func FormatCents(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := value / 100
	frac := value % 100
	formatted := fmt.Sprintf("%d.%02d", whole, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

func Abs(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
