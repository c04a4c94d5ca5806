// Package naming builds and checks canonical document filenames of the form
// {date}_{vendor}_{invoiceNumber}_{amount}.{ext}.
package naming

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

const (
	DefaultVendor    = "UnknownVendor"
	DefaultAmount    = "0.00"
	DefaultExtension = "pdf"

	maxFieldLength    = 40
	maxFilenameLength = 180
)

var (
	canonicalPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_[^_/\\]+_[^_/\\]+_\d+\.\d{2}\.[A-Za-z0-9]{1,5}$`)
	amountPattern    = regexp.MustCompile(`-?\d+(\.\d+)?`)
	forbiddenChars   = `/\:*?"<>|`
)

// Canonicalize builds the canonical filename for a classified document. It
// never fails: missing or unusable fields are replaced with defaults, and a
// name that does not pass ValidateFilename is replaced by a fallback that does.
func Canonicalize(c domain.Classification, originalName string, now time.Time) string {
	date := CanonicalDate(c.Date, now)
	vendor := SanitizeField(c.VendorName)
	if vendor == "" {
		vendor = DefaultVendor
	}
	invoice := SanitizeField(c.InvoiceNumber)
	if invoice == "" {
		invoice = GeneratedInvoiceNumber(originalName)
	}
	amount, _ := NormalizeAmount(c.Amount)

	name := fmt.Sprintf("%s_%s_%s_%s.%s", date, vendor, invoice, amount, Extension(originalName))
	if err := ValidateFilename(name); err != nil {
		return fallbackName(originalName, now)
	}
	return name
}

func fallbackName(originalName string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s.%s",
		now.Format(domain.DateLayout),
		DefaultVendor,
		GeneratedInvoiceNumber(originalName),
		DefaultAmount,
		Extension(originalName),
	)
}

// CanonicalDate formats raw as YYYY-MM-DD, or now when raw does not parse.
func CanonicalDate(raw string, now time.Time) string {
	if t, ok := domain.ParseDocumentDate(raw); ok {
		return t.Format(domain.DateLayout)
	}
	return now.Format(domain.DateLayout)
}

// GeneratedInvoiceNumber derives a stable placeholder invoice number from the
// original attachment name.
func GeneratedInvoiceNumber(originalName string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(originalName))))
	return "NOINV-" + strings.ToUpper(hex.EncodeToString(sum[:])[:6])
}

// NormalizeAmount renders raw as a non-negative amount with two decimals.
// The second result is false when raw held no usable number.
func NormalizeAmount(raw string) (string, bool) {
	match := amountPattern.FindString(strings.ReplaceAll(raw, ",", ""))
	if match == "" {
		return DefaultAmount, false
	}
	amount, err := decimal.NewFromString(match)
	if err != nil {
		return DefaultAmount, false
	}
	return amount.Abs().StringFixed(2), true
}

// IsPositiveAmount reports whether raw parses to an amount greater than zero.
func IsPositiveAmount(raw string) bool {
	match := amountPattern.FindString(strings.ReplaceAll(raw, ",", ""))
	if match == "" {
		return false
	}
	amount, err := decimal.NewFromString(match)
	return err == nil && amount.IsPositive()
}

// SanitizeField keeps letters, digits, '&' and '.' and collapses every other
// run of characters into a single '-'.
func SanitizeField(raw string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.TrimSpace(raw) {
		allowed := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' || r == '.')
		if !allowed {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "-.")
	if len(out) > maxFieldLength {
		out = strings.Trim(out[:maxFieldLength], "-.")
	}
	return out
}

// Extension returns the lower-case extension of name without the dot.
func Extension(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))
	if ext == "" || len(ext) > 5 {
		return DefaultExtension
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return DefaultExtension
		}
	}
	return ext
}

// ValidateFilename is the validator shared by generated and user-authored names.
func ValidateFilename(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return &domain.ValidationError{Field: "filename", Message: "empty"}
	case len(name) > maxFilenameLength:
		return &domain.ValidationError{Field: "filename", Message: fmt.Sprintf("longer than %d characters", maxFilenameLength)}
	case strings.ContainsAny(name, forbiddenChars):
		return &domain.ValidationError{Field: "filename", Message: "contains a reserved character"}
	case strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") || strings.HasSuffix(name, " "):
		return &domain.ValidationError{Field: "filename", Message: "leading dot or trailing dot/space"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &domain.ValidationError{Field: "filename", Message: "contains a control character"}
		}
	}
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return &domain.ValidationError{Field: "filename", Message: "missing extension"}
	}
	for _, field := range strings.Split(strings.TrimSuffix(name, name[dot:]), "_") {
		if field == "" && strings.Contains(name, "_") {
			return &domain.ValidationError{Field: "filename", Message: "blank field"}
		}
	}
	return nil
}

// LooksCanonical reports whether name has the canonical filename shape.
func LooksCanonical(name string) bool {
	return canonicalPattern.MatchString(strings.TrimSpace(name))
}

// LooksOriginal reports whether name still looks like the attachment name the
// document arrived with.
func LooksOriginal(name string) bool {
	return strings.TrimSpace(name) != "" && !LooksCanonical(name)
}

// CanonicalFields splits a canonical name into date, vendor, invoice number
// and amount.
func CanonicalFields(name string) (date, vendor, invoice, amount string, ok bool) {
	if !LooksCanonical(name) {
		return "", "", "", "", false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	return parts[0], parts[1], parts[2], parts[3], true
}
