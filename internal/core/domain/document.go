package domain

import "time"

type InvoiceStatus string

const (
	InvoiceInflow     InvoiceStatus = "inflow"
	InvoiceOutflow    InvoiceStatus = "outflow"
	InvoiceIrrelevant InvoiceStatus = "irrelevant"
	InvoiceUnknown    InvoiceStatus = "unknown"
)

// IsFlow reports whether documents with this status belong in a flow log.
func (s InvoiceStatus) IsFlow() bool {
	return s == InvoiceInflow || s == InvoiceOutflow
}

type BufferStatus string

const (
	StatusActive BufferStatus = "Active"
	StatusDelete BufferStatus = "Delete"
)

type Relevance string

const (
	RelevancePending Relevance = ""
	RelevanceYes     Relevance = "Yes"
	RelevanceNo      Relevance = "No"
)

// Storage reference sentinels written into the logs instead of a locator.
const (
	RefDeleted  = "DELETED"
	RefNotFound = "NOT_FOUND"
)

// IsLiveRef reports whether ref is a concrete locator rather than a sentinel.
func IsLiveRef(ref string) bool {
	return ref != "" && ref != RefDeleted && ref != RefNotFound
}

type ClassificationSource string

const (
	SourceClassifier ClassificationSource = "classifier"
	SourceHeuristic  ClassificationSource = "heuristic"
	SourceManual     ClassificationSource = "manual"
)

// RawClassification is the unvalidated answer of the external classifier.
type RawClassification struct {
	Date                string `json:"date"`
	VendorName          string `json:"vendorName"`
	InvoiceNumber       string `json:"invoiceNumber"`
	Amount              string `json:"amount"`
	InvoiceStatus       string `json:"invoiceStatus"`
	DocumentType        string `json:"documentType"`
	IsFinancialDocument bool   `json:"isFinancialDocument"`
	GST                 string `json:"gst"`
	TDS                 string `json:"tds"`
	OT                  string `json:"ot"`
	NA                  string `json:"na"`
}

type Classification struct {
	InvoiceStatus InvoiceStatus        `json:"invoice_status"`
	VendorName    string               `json:"vendor_name"`
	InvoiceNumber string               `json:"invoice_number"`
	Amount        string               `json:"amount"`
	Date          string               `json:"date"`
	GST           string               `json:"gst,omitempty"`
	TDS           string               `json:"tds,omitempty"`
	OtherTax      string               `json:"other_tax,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	Source        ClassificationSource `json:"source"`
}

// Document is a physical file together with its classification metadata.
type Document struct {
	OriginalName       string         `json:"original_name"`
	CanonicalName      string         `json:"canonical_name"`
	StorageRef         string         `json:"storage_ref"`
	SourceMessageID    string         `json:"source_message_id"`
	SourceAttachmentID string         `json:"source_attachment_id"`
	MimeType           string         `json:"mime_type"`
	Classification     Classification `json:"classification"`
	UniqueID           string         `json:"unique_id,omitempty"`
	Status             BufferStatus   `json:"status,omitempty"`
	Relevance          Relevance      `json:"relevance,omitempty"`
	CompanyName        string         `json:"company_name"`
	FinancialYear      string         `json:"financial_year"`
	Month              string         `json:"month"`
	ReferenceDate      time.Time      `json:"reference_date"`
}
