package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/infrastructure/resilience"
)

type extractorStub struct {
	text string
	err  error
}

func (s extractorStub) ExtractText(context.Context, []byte, string, string) (string, error) {
	return s.text, s.err
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

const invoiceAnswer = "```json\n{\"date\":\"2024-05-01\",\"vendorName\":\"Acme\",\"invoiceNumber\":\"INV-1\",\"amount\":\"100.00\",\"invoiceStatus\":\"outflow\",\"documentType\":\"tax invoice\",\"isFinancialDocument\":true,\"gst\":\"18\"}\n```"

func TestClassifierParsesFencedAnswer(t *testing.T) {
	var payload map[string]any
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": invoiceAnswer})
	}))
	defer server.Close()

	client := New(server.URL, "llama3.2", Options{APIKey: "secret"})
	classifier := NewClassifier(client, extractorStub{text: "Invoice INV-1 from Acme"})

	raw, err := classifier.Classify(context.Background(), []byte("%PDF-1.4"), "application/pdf", "scan.pdf")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if raw.VendorName != "Acme" || raw.InvoiceNumber != "INV-1" || !raw.IsFinancialDocument || raw.GST != "18" {
		t.Fatalf("unexpected classification %+v", raw)
	}
	if auth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
	prompt, _ := payload["prompt"].(string)
	if !strings.Contains(prompt, "Invoice INV-1 from Acme") || !strings.Contains(prompt, "scan.pdf") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	if _, ok := payload["images"]; ok {
		t.Fatal("pdf must be sent as text")
	}
}

func TestClassifierSendsImagesInline(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": invoiceAnswer})
	}))
	defer server.Close()

	classifier := NewClassifier(New(server.URL, "llava", Options{}), extractorStub{err: errors.New("must not be called")})
	if _, err := classifier.Classify(context.Background(), []byte{0xff, 0xd8}, "image/jpeg", "photo.jpg"); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	images, ok := payload["images"].([]any)
	if !ok || len(images) != 1 || images[0] != "/9g=" {
		t.Fatalf("expected base64 image, got %v", payload["images"])
	}
}

func TestClassifierRetriesServerErrorsOnce(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "model loading", http.StatusInternalServerError)
	}))
	defer server.Close()

	classifier := NewClassifier(New(server.URL, "gen", Options{ResilienceExecutor: testExecutor()}), nil)
	_, err := classifier.Classify(context.Background(), []byte("text"), "text/plain", "a.txt")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClassifierDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer server.Close()

	classifier := NewClassifier(New(server.URL, "gen", Options{ResilienceExecutor: testExecutor()}), nil)
	_, err := classifier.Classify(context.Background(), []byte("text"), "text/plain", "a.txt")
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestClassifierReportsMalformedAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "I could not read this document."})
	}))
	defer server.Close()

	classifier := NewClassifier(New(server.URL, "gen", Options{ResilienceExecutor: testExecutor()}), nil)
	_, err := classifier.Classify(context.Background(), []byte("text"), "text/plain", "a.txt")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
