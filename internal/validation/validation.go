// Package validation provides centralized input validation for coinlake.
//
// Bucket names follow the S3 naming rules, object keys the subset that is
// safe for both the S3 and the filesystem backend, and table names the
// identifier rules of the analytical engine.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xtxerr/coinlake/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength     int
	MaxLength     int
	AllowDots     bool
	AllowHyphens  bool
	AllowUnders   bool
	AllowUpper    bool
	LeadingLetter bool
}

// BucketRules returns the rules for object store bucket names.
func BucketRules() NameRules {
	return NameRules{
		MinLength:    3,
		MaxLength:    63,
		AllowDots:    true,
		AllowHyphens: true,
	}
}

// IdentifierRules returns the rules for engine table names.
func IdentifierRules() NameRules {
	return NameRules{
		MinLength:     1,
		MaxLength:     128,
		AllowUnders:   true,
		AllowUpper:    true,
		LeadingLetter: true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if i == 0 && rules.LeadingLetter && !(r == '_' || isASCIILetter(r)) {
			return fmt.Errorf("name must start with a letter or underscore")
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if r > unicode.MaxASCII {
		return false
	}
	if unicode.IsDigit(r) || (r >= 'a' && r <= 'z') {
		return true
	}
	if r >= 'A' && r <= 'Z' {
		return rules.AllowUpper
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// =============================================================================
// Object Store Names
// =============================================================================

// ValidateBucket validates a bucket name.
func ValidateBucket(bucket string) error {
	if err := ValidateName(bucket, BucketRules()); err != nil {
		return fmt.Errorf("bucket %q: %v: %w", bucket, err, errors.ErrInvalidName)
	}
	first, last := bucket[0], bucket[len(bucket)-1]
	if first == '.' || first == '-' || last == '.' || last == '-' {
		return fmt.Errorf("bucket %q: must start and end with a letter or digit: %w", bucket, errors.ErrInvalidName)
	}
	if strings.Contains(bucket, "..") {
		return fmt.Errorf("bucket %q: cannot contain '..': %w", bucket, errors.ErrInvalidName)
	}
	return nil
}

// ValidateKey validates an object key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("object key cannot be empty: %w", errors.ErrInvalidKey)
	}
	if len(key) > 1024 {
		return fmt.Errorf("object key too long: maximum 1024 bytes: %w", errors.ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key %q cannot start with '/': %w", key, errors.ErrInvalidKey)
	}
	for i, r := range key {
		if r < 32 || r == 127 {
			return fmt.Errorf("object key cannot contain control characters at position %d: %w", i, errors.ErrInvalidKey)
		}
		if r == '\\' {
			return fmt.Errorf("object key cannot contain '\\': %w", errors.ErrInvalidKey)
		}
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("object key %q cannot contain '.' or '..' segments: %w", key, errors.ErrInvalidKey)
		}
	}
	return nil
}

// =============================================================================
// Engine Identifiers
// =============================================================================

// ValidateIdentifier validates a table name for the analytical engine.
func ValidateIdentifier(name string) error {
	if err := ValidateName(name, IdentifierRules()); err != nil {
		return fmt.Errorf("table name %q: %v: %w", name, err, errors.ErrInvalidName)
	}
	return nil
}

// QuoteIdent returns name as a double-quoted SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral returns s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
