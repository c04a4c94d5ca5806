package naming

import (
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

var fixedNow = time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC)

func TestCanonicalizeBuildsCanonicalName(t *testing.T) {
	name := Canonicalize(domain.Classification{
		VendorName:    "Acme",
		InvoiceNumber: "INV-1",
		Amount:        "100.00",
		Date:          "2024-05-01",
	}, "scan.PDF", fixedNow)

	if name != "2024-05-01_Acme_INV-1_100.00.pdf" {
		t.Fatalf("unexpected canonical name %q", name)
	}
	if !LooksCanonical(name) {
		t.Fatalf("expected %q to look canonical", name)
	}
}

func TestCanonicalizeSanitizesFields(t *testing.T) {
	name := Canonicalize(domain.Classification{
		VendorName:    "  Acme   Corp_Ltd / India ",
		InvoiceNumber: "INV/2024#7",
		Amount:        "Rs. 1,250.5",
		Date:          "01/05/2024",
	}, "bill.pdf", fixedNow)

	if name != "2024-05-01_Acme-Corp-Ltd-India_INV-2024-7_1250.50.pdf" {
		t.Fatalf("unexpected canonical name %q", name)
	}
}

func TestCanonicalizeIsTotal(t *testing.T) {
	inputs := []struct {
		cls      domain.Classification
		original string
	}{
		{domain.Classification{}, ""},
		{domain.Classification{}, "invoice.pdf"},
		{domain.Classification{VendorName: "___", InvoiceNumber: "///", Amount: "abc", Date: "yesterday"}, "x"},
		{domain.Classification{VendorName: strings.Repeat("Vendor", 100)}, "a.tar.gz"},
		{domain.Classification{VendorName: "\x00\x01", InvoiceNumber: "\t"}, "..."},
		{domain.Classification{Amount: "-42"}, "weird:name?.PDF"},
		{domain.Classification{VendorName: "Ünïcödé GmbH"}, "rechnung.pdf"},
	}

	for _, in := range inputs {
		name := Canonicalize(in.cls, in.original, fixedNow)
		if err := ValidateFilename(name); err != nil {
			t.Fatalf("Canonicalize(%+v, %q) = %q fails validation: %v", in.cls, in.original, name, err)
		}
		if !LooksCanonical(name) {
			t.Fatalf("Canonicalize(%+v, %q) = %q does not look canonical", in.cls, in.original, name)
		}
		date, vendor, invoice, amount, ok := CanonicalFields(name)
		if !ok || date == "" || vendor == "" || invoice == "" || amount == "" {
			t.Fatalf("blank field in %q", name)
		}
	}
}

func TestCanonicalizeDefaults(t *testing.T) {
	name := Canonicalize(domain.Classification{}, "report.docx", fixedNow)
	want := "2024-06-03_UnknownVendor_" + GeneratedInvoiceNumber("report.docx") + "_0.00.docx"
	if name != want {
		t.Fatalf("expected %q, got %q", want, name)
	}
}

func TestGeneratedInvoiceNumberIsStable(t *testing.T) {
	if GeneratedInvoiceNumber("Bill.pdf") != GeneratedInvoiceNumber(" bill.pdf ") {
		t.Fatalf("expected case and whitespace insensitive invoice number")
	}
	if GeneratedInvoiceNumber("a.pdf") == GeneratedInvoiceNumber("b.pdf") {
		t.Fatalf("expected distinct invoice numbers for distinct names")
	}
}

func TestValidateFilenameRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "noext", "a/b.pdf", ".hidden.pdf", "trailing.", "a__b.pdf", strings.Repeat("a", 200) + ".pdf"} {
		if err := ValidateFilename(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		} else if !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("expected validation kind for %q, got %v", name, err)
		}
	}
	if err := ValidateFilename("Invoice March.pdf"); err != nil {
		t.Fatalf("expected user-authored name to pass, got %v", err)
	}
}

func TestLooksOriginal(t *testing.T) {
	if !LooksOriginal("Invoice_March.pdf") {
		t.Fatalf("expected original name")
	}
	if LooksOriginal("2024-05-01_Acme_INV-1_100.00.pdf") {
		t.Fatalf("expected canonical name not to look original")
	}
	if LooksOriginal("  ") {
		t.Fatalf("blank name is neither")
	}
}

func TestNormalizeAmount(t *testing.T) {
	cases := map[string]string{
		"100":        "100.00",
		"1,234.567":  "1234.57",
		"$ -20.1":    "20.10",
		"":           "0.00",
		"no numbers": "0.00",
	}
	for in, want := range cases {
		if got, _ := NormalizeAmount(in); got != want {
			t.Fatalf("NormalizeAmount(%q) = %q, want %q", in, got, want)
		}
	}
	if IsPositiveAmount("0") || !IsPositiveAmount("0.01") {
		t.Fatalf("unexpected positivity")
	}
}

func TestMeaningfulTokens(t *testing.T) {
	tokens := MeaningfulTokens("Scanned copy of Acme invoice 2024 final.pdf", domain.DefaultRules().FilenameStopwords, 4)
	if strings.Join(tokens, " ") != "Acme invoice" {
		t.Fatalf("unexpected tokens %v", tokens)
	}
}
