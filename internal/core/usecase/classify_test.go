package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/naming"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

func newAdapter(classifier ports.InvoiceClassifier, extractor ports.TextExtractor) *ClassificationAdapter {
	return NewClassificationAdapter(classifier, extractor, WithClock(func() time.Time { return testNow }))
}

func validRaw() domain.RawClassification {
	return domain.RawClassification{
		Date:                "01/05/2024",
		VendorName:          " Acme ",
		InvoiceNumber:       "INV-1",
		Amount:              "Rs. 1,250.50",
		InvoiceStatus:       "outflow",
		DocumentType:        "Tax Invoice",
		IsFinancialDocument: true,
		GST:                 "18%",
	}
}

func TestClassifyAcceptsValidInvoice(t *testing.T) {
	adapter := newAdapter(&invoiceClassifierFake{raw: validRaw()}, nil)

	cls := adapter.Classify(context.Background(), []byte("pdf"), "application/pdf", "acme.pdf")

	if cls.InvoiceStatus != domain.InvoiceOutflow || cls.Source != domain.SourceClassifier {
		t.Fatalf("unexpected classification %+v", cls)
	}
	if cls.VendorName != "Acme" || cls.Amount != "1250.50" || cls.Date != "2024-05-01" || cls.GST != "18%" {
		t.Fatalf("fields were not normalized: %+v", cls)
	}
}

func TestClassifyDowngradesIncompleteInvoices(t *testing.T) {
	cases := map[string]func(*domain.RawClassification){
		"missing invoice number": func(r *domain.RawClassification) { r.InvoiceNumber = "" },
		"zero amount":            func(r *domain.RawClassification) { r.Amount = "0" },
		"negative amount":        func(r *domain.RawClassification) { r.Amount = "-5" },
		"bad date":               func(r *domain.RawClassification) { r.Date = "sometime" },
		"missing vendor":         func(r *domain.RawClassification) { r.VendorName = " " },
		"not invoice-like":       func(r *domain.RawClassification) { r.DocumentType = "bank statement" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			raw := validRaw()
			mutate(&raw)
			adapter := newAdapter(&invoiceClassifierFake{raw: raw}, nil)

			cls := adapter.Classify(context.Background(), nil, "application/pdf", "acme.pdf")

			if cls.InvoiceStatus != domain.InvoiceIrrelevant || !strings.Contains(cls.Notes, "downgraded") {
				t.Fatalf("expected downgrade, got %+v", cls)
			}
		})
	}
}

func TestClassifyDowngradesNonInvoiceFilename(t *testing.T) {
	adapter := newAdapter(&invoiceClassifierFake{raw: validRaw()}, nil)

	cls := adapter.Classify(context.Background(), nil, "application/pdf", "Monthly_Statement_May.pdf")

	if cls.InvoiceStatus != domain.InvoiceIrrelevant {
		t.Fatalf("expected statement to be downgraded, got %+v", cls)
	}
}

func TestClassifyRemapsUnknownStatuses(t *testing.T) {
	cases := []struct {
		status    string
		financial bool
		want      domain.InvoiceStatus
	}{
		{status: "Purchase bill", financial: true, want: domain.InvoiceOutflow},
		{status: "Sales invoice", financial: true, want: domain.InvoiceInflow},
		{status: "n/a", financial: true, want: domain.InvoiceIrrelevant},
		{status: "something", financial: true, want: domain.InvoiceOutflow},
		{status: "something", financial: false, want: domain.InvoiceIrrelevant},
		{status: "UNKNOWN", financial: true, want: domain.InvoiceUnknown},
	}
	for _, tc := range cases {
		raw := validRaw()
		raw.InvoiceStatus = tc.status
		raw.IsFinancialDocument = tc.financial
		adapter := newAdapter(&invoiceClassifierFake{raw: raw}, nil)

		cls := adapter.Classify(context.Background(), nil, "application/pdf", "acme.pdf")

		if cls.InvoiceStatus != tc.want {
			t.Fatalf("%q (financial=%v): expected %s, got %s", tc.status, tc.financial, tc.want, cls.InvoiceStatus)
		}
	}
}

func TestClassifyFallsBackToHeuristicOnError(t *testing.T) {
	classifier := &invoiceClassifierFake{err: domain.WrapError(domain.ErrTemporary, "classify", errors.New("status 500"))}
	extractor := &extractorFake{text: "Beta Supplies Pvt Ltd\nTax Invoice\nInvoice No: INV-77\nDate: 02/05/2024\nGrand Total: Rs. 1,250.50\n"}
	adapter := newAdapter(classifier, extractor)

	cls := adapter.Classify(context.Background(), []byte("pdf"), "application/pdf", "scan.pdf")

	if cls.Source != domain.SourceHeuristic || cls.InvoiceStatus != domain.InvoiceIrrelevant {
		t.Fatalf("unexpected fallback classification %+v", cls)
	}
	if cls.InvoiceNumber != "INV-77" || cls.Amount != "1250.50" || cls.Date != "2024-05-02" || cls.VendorName != "Beta Supplies Pvt Ltd" {
		t.Fatalf("unexpected extracted fields %+v", cls)
	}
	if classifier.calls != 1 {
		t.Fatalf("expected a single classifier call, got %d", classifier.calls)
	}
}

func TestClassifyWithoutClassifierUsesFilenameTokens(t *testing.T) {
	adapter := newAdapter(nil, nil)

	cls := adapter.Classify(context.Background(), []byte("img"), "image/jpeg", "scan_of_Orion_Travels_receipt.jpg")

	if cls.VendorName != "Orion-Travels-receipt" {
		t.Fatalf("unexpected vendor %q", cls.VendorName)
	}
	if cls.Amount != naming.DefaultAmount || cls.Date != "2024-06-10" || !strings.HasPrefix(cls.InvoiceNumber, "NOINV-") {
		t.Fatalf("expected defaults, got %+v", cls)
	}
	name := naming.Canonicalize(cls, "scan_of_Orion_Travels_receipt.jpg", testNow)
	if err := naming.ValidateFilename(name); err != nil || !naming.LooksCanonical(name) {
		t.Fatalf("fallback must still produce a canonical name, got %q (%v)", name, err)
	}
}
