package usecase

import (
	"context"
	"regexp"
	"strings"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/naming"
)

var (
	heuristicDate    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{2}[/.-]\d{2}[/.-]\d{4})\b`)
	heuristicInvoice = regexp.MustCompile(`(?i)\b(?:invoice|bill|inv)[ \t]*(?:no|number|num|#)?\.?[ \t]*[:#-]?[ \t]*([A-Z0-9][A-Z0-9/-]{2,})`)
	heuristicAmount  = regexp.MustCompile(`(?i)\b(?:grand total|total amount|amount due|net payable|total|amount)\s*[:-]?\s*(?:rs\.?|inr|usd|eur|gbp|\$|€|£|₹)?\s*([\d,]+(?:\.\d{1,2})?)`)
	heuristicVendor  = regexp.MustCompile(`(?im)^\s*(?:from|vendor|supplier|seller|billed by|sold by)\s*[:-]\s*(.+?)\s*$`)
)

const (
	maxHeuristicText   = 20000
	maxFilenameTokens  = 4
	maxVendorLineChars = 60
)

// heuristicClassify extracts what it can from the document text without the
// classifier. The result is never authoritative: it is always irrelevant, so
// the document lands in triage, but every field carries a usable value.
func (a *ClassificationAdapter) heuristicClassify(ctx context.Context, data []byte, mimeType, filename, cause string) domain.Classification {
	text := ""
	if a.extractor != nil {
		extracted, err := a.extractor.ExtractText(ctx, data, mimeType, filename)
		if err != nil {
			a.logger.Debug("heuristic_extract_failed", "filename", filename, "error", err)
		}
		text = extracted
	}
	if len(text) > maxHeuristicText {
		text = text[:maxHeuristicText]
	}

	cls := domain.Classification{
		InvoiceStatus: domain.InvoiceIrrelevant,
		Source:        domain.SourceHeuristic,
		Notes:         "heuristic fallback: " + cause,
	}
	if m := heuristicDate.FindStringSubmatch(text); m != nil {
		if t, ok := domain.ParseDocumentDate(m[1]); ok {
			cls.Date = t.Format(domain.DateLayout)
		}
	}
	for _, m := range heuristicInvoice.FindAllStringSubmatch(text, -1) {
		if hasDigit(m[1]) {
			cls.InvoiceNumber = strings.Trim(m[1], "/-")
			break
		}
	}
	if m := heuristicAmount.FindStringSubmatch(text); m != nil {
		if amount, ok := naming.NormalizeAmount(m[1]); ok {
			cls.Amount = amount
		}
	}
	cls.VendorName = vendorFromText(text)

	if cls.Date == "" && cls.InvoiceNumber == "" && cls.Amount == "" && cls.VendorName == "" {
		tokens := naming.MeaningfulTokens(filename, a.rules.FilenameStopwords, maxFilenameTokens)
		cls.VendorName = strings.Join(tokens, "-")
	}
	return a.withDefaults(cls, filename)
}

func (a *ClassificationAdapter) withDefaults(cls domain.Classification, filename string) domain.Classification {
	if cls.VendorName == "" {
		cls.VendorName = naming.DefaultVendor
	}
	if cls.InvoiceNumber == "" {
		cls.InvoiceNumber = naming.GeneratedInvoiceNumber(filename)
	}
	if cls.Amount == "" {
		cls.Amount = naming.DefaultAmount
	}
	if cls.Date == "" {
		cls.Date = a.now().Format(domain.DateLayout)
	}
	return cls
}

func vendorFromText(text string) string {
	if m := heuristicVendor.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > maxVendorLineChars {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "invoice") || strings.Contains(lower, "bill") || !hasLetter(line) {
			continue
		}
		return line
	}
	return ""
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
