package money

import "testing"

func TestParseCents(t *testing.T) {
	cases := []struct {
		input   string
		want    int64
		wantErr error
	}{
		{"2500.00", 250000, nil},
		{"2500", 250000, nil},
		{"0.5", 50, nil},
		{"-54.32", -5432, nil},
		{"+12.30", 1230, nil},
		{".99", 99, nil},
		{"", 0, ErrInvalidAmount},
		{"abc", 0, ErrInvalidAmount},
		{"10.999", 0, ErrTooManyDecimals},
		{"12,50", 0, ErrInvalidAmount},
		{"99999999999999999", 0, ErrAmountTooLarge},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.input)
		if err != tc.wantErr {
			t.Fatalf("ParseCents(%q) error = %v, want %v", tc.input, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Fatalf("ParseCents(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestParseSignedCentsRoundsSubCent(t *testing.T) {
	got, err := ParseSignedCents("-12.345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -1234 {
		t.Fatalf("expected -1234, got %d", got)
	}
}

func TestValidateBalanceRejectsOversized(t *testing.T) {
	if _, err := ValidateBalance("9999999999999999.00"); err != ErrAmountTooLarge {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestFormatCents(t *testing.T) {
	if got := FormatCents(250000); got != "2500.00" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatCents(-5432); got != "-54.32" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatCents(5); got != "0.05" {
		t.Fatalf("unexpected format: %s", got)
	}
}
