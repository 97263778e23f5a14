package validation

import (
	"strings"
	"testing"

	"github.com/xtxerr/coinlake/internal/errors"
)

func TestValidateBucket(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "raw", false},
		{"with hyphen", "crypto-raw", false},
		{"with dot", "crypto.raw", false},
		{"digits", "bucket2024", false},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 64), true},
		{"upper", "Raw", true},
		{"underscore", "raw_data", true},
		{"leading hyphen", "-raw", true},
		{"trailing dot", "raw.", true},
		{"double dot", "raw..data", true},
		{"slash", "raw/data", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucket(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBucket(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidName) {
				t.Errorf("expected ErrInvalidName, got %v", err)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"flat", "prices.csv", false},
		{"nested", "2024/01/prices.parquet", false},
		{"spaces", "market data.json", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"parent", "a/../b", true},
		{"current", "./a", true},
		{"backslash", "a\\b", true},
		{"control", "a\x01b", true},
		{"too long", strings.Repeat("k", 1025), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"raw", false},
		{"daily_prices", false},
		{"_tmp", false},
		{"Prices2", false},
		{"", true},
		{"1st", true},
		{"a-b", true},
		{"a b", true},
		{`a"b`, true},
		{"täble", true},
	}

	for _, tt := range tests {
		err := ValidateIdentifier(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestQuote(t *testing.T) {
	if got := QuoteIdent(`a"b`); got != `"a""b"` {
		t.Errorf("QuoteIdent = %s", got)
	}
	if got := QuoteLiteral("/tmp/it's.csv"); got != "'/tmp/it''s.csv'" {
		t.Errorf("QuoteLiteral = %s", got)
	}
}
