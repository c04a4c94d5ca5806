package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/naming"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

// ClassificationAdapter wraps the external classifier. Raw classifier output
// is validated against the invoice rules before it is used for routing, and
// a heuristic extractor answers whenever the classifier cannot.
type ClassificationAdapter struct {
	classifier ports.InvoiceClassifier
	extractor  ports.TextExtractor
	rules      domain.Rules
	nonInvoice []*regexp.Regexp

	logger  *slog.Logger
	now     func() time.Time
	metrics ports.PipelineMetrics
}

// NewClassificationAdapter accepts a nil classifier (no credentials
// configured) and a nil extractor; both degrade to the filename heuristic.
func NewClassificationAdapter(
	classifier ports.InvoiceClassifier,
	extractor ports.TextExtractor,
	opts ...Option,
) *ClassificationAdapter {
	s := newSettings(opts)
	return &ClassificationAdapter{
		classifier: classifier,
		extractor:  extractor,
		rules:      s.rules,
		nonInvoice: compileWordPatterns(s.rules.NonInvoiceFilenamePatterns),
		logger:     s.logger,
		now:        s.now,
		metrics:    s.metrics,
	}
}

func (a *ClassificationAdapter) Classify(ctx context.Context, data []byte, mimeType, filename string) domain.Classification {
	if a.classifier == nil {
		cls := a.heuristicClassify(ctx, data, mimeType, filename, "classifier not configured")
		a.metrics.ObserveClassification(cls.Source, cls.InvoiceStatus)
		return cls
	}

	raw, err := a.classifier.Classify(ctx, data, mimeType, filename)
	if err != nil {
		a.logger.Warn("classifier_fallback",
			"filename", filename,
			"temporary", domain.IsKind(err, domain.ErrTemporary),
			"error", err,
		)
		cls := a.heuristicClassify(ctx, data, mimeType, filename, err.Error())
		a.metrics.ObserveClassification(cls.Source, cls.InvoiceStatus)
		return cls
	}

	cls := a.validate(raw, filename)
	a.metrics.ObserveClassification(cls.Source, cls.InvoiceStatus)
	return cls
}

// validate applies the invoice rules to raw classifier output. A document is
// routed as inflow/outflow only if it has a vendor, an invoice number, a
// positive amount and a parseable date, is invoice-like, and its filename does
// not look like a non-invoice document.
func (a *ClassificationAdapter) validate(raw domain.RawClassification, filename string) domain.Classification {
	cls := domain.Classification{
		InvoiceStatus: a.remapStatus(raw.InvoiceStatus, raw.IsFinancialDocument),
		VendorName:    strings.TrimSpace(raw.VendorName),
		InvoiceNumber: strings.TrimSpace(raw.InvoiceNumber),
		Amount:        strings.TrimSpace(raw.Amount),
		Date:          strings.TrimSpace(raw.Date),
		GST:           strings.TrimSpace(raw.GST),
		TDS:           strings.TrimSpace(raw.TDS),
		OtherTax:      strings.TrimSpace(raw.OT),
		Notes:         strings.TrimSpace(raw.NA),
		Source:        domain.SourceClassifier,
	}
	if amount, ok := naming.NormalizeAmount(cls.Amount); ok {
		cls.Amount = amount
	}
	if t, ok := domain.ParseDocumentDate(cls.Date); ok {
		cls.Date = t.Format(domain.DateLayout)
	}

	if !cls.InvoiceStatus.IsFlow() {
		return cls
	}
	if reason := a.downgradeReason(raw, cls, filename); reason != "" {
		cls.InvoiceStatus = domain.InvoiceIrrelevant
		cls.Notes = joinNotes(cls.Notes, "downgraded: "+reason)
	}
	return cls
}

func (a *ClassificationAdapter) downgradeReason(raw domain.RawClassification, cls domain.Classification, filename string) string {
	switch {
	case cls.InvoiceNumber == "":
		return "missing invoice number"
	case !naming.IsPositiveAmount(raw.Amount):
		return "missing or non-positive amount"
	case !isParseableDate(cls.Date):
		return "unparseable date"
	case cls.VendorName == "":
		return "missing vendor"
	case !a.isInvoiceLike(raw):
		return "document type is not invoice-like"
	case a.matchesNonInvoice(filename):
		return "filename matches a non-invoice pattern"
	}
	return ""
}

func (a *ClassificationAdapter) isInvoiceLike(raw domain.RawClassification) bool {
	docType := strings.ToLower(strings.TrimSpace(raw.DocumentType))
	if docType == "" {
		return raw.IsFinancialDocument
	}
	for _, t := range a.rules.InvoiceDocumentTypes {
		if strings.Contains(docType, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func (a *ClassificationAdapter) matchesNonInvoice(filename string) bool {
	lower := strings.ToLower(filename)
	for _, re := range a.nonInvoice {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// remapStatus restricts classifier output to the four known statuses.
// Ambiguous financial documents default to outflow because most business
// attachments are costs.
func (a *ClassificationAdapter) remapStatus(raw string, financial bool) domain.InvoiceStatus {
	status := strings.ToLower(strings.TrimSpace(raw))
	switch domain.InvoiceStatus(status) {
	case domain.InvoiceInflow, domain.InvoiceOutflow, domain.InvoiceIrrelevant, domain.InvoiceUnknown:
		return domain.InvoiceStatus(status)
	}
	if status != "" {
		switch {
		case containsAny(status, a.rules.IrrelevantKeywords):
			return domain.InvoiceIrrelevant
		case containsAny(status, a.rules.InflowKeywords):
			return domain.InvoiceInflow
		case containsAny(status, a.rules.OutflowKeywords):
			return domain.InvoiceOutflow
		}
	}
	if financial {
		return domain.InvoiceOutflow
	}
	return domain.InvoiceIrrelevant
}

func isParseableDate(raw string) bool {
	_, ok := domain.ParseDocumentDate(raw)
	return ok
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func joinNotes(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}

// compileWordPatterns turns keywords into case-insensitive whole-word matchers.
func compileWordPatterns(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		out = append(out, regexp.MustCompile(fmt.Sprintf(`(^|[^a-z])%s([^a-z]|$)`, regexp.QuoteMeta(strings.ToLower(w)))))
	}
	return out
}
