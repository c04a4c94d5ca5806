package domain

import "time"

// LogKind names one of the per-company tabular logs.
type LogKind string

const (
	LogBuffer  LogKind = "buffer"
	LogBuffer2 LogKind = "buffer2"
	LogMain    LogKind = "main"
	LogInflow  LogKind = "inflow"
	LogOutflow LogKind = "outflow"
)

// FlowLogFor returns the flow log that receives documents with the given status.
func FlowLogFor(status InvoiceStatus) (LogKind, bool) {
	switch status {
	case InvoiceInflow:
		return LogInflow, true
	case InvoiceOutflow:
		return LogOutflow, true
	default:
		return "", false
	}
}

// TableRef addresses a log table.
type TableRef struct {
	Company string
	Kind    LogKind
}

// BufferRecord is one row of the company buffer log. The buffer log is the
// only durable owner of UniqueID. CanonicalName is fixed at intake;
// FileName is the name the store gave the file, which can carry a collision
// suffix such as " (2)".
type BufferRecord struct {
	Row            int
	UniqueID       string
	MessageID      string
	AttachmentName string
	CanonicalName  string
	FileName       string
	StorageRef     string
	Status         BufferStatus
	Reason         string
	RepeatedRef    int
	Classification Classification
	FinancialYear  string
	Month          string
	ReferenceDate  string
	LoggedAt       time.Time
}

// StoredName is the file name to look for in storage.
func (r BufferRecord) StoredName() string {
	return storedName(r.FileName, r.CanonicalName)
}

// IsDuplicate reports whether the row records a repeated intake.
func (r BufferRecord) IsDuplicate() bool {
	return r.RepeatedRef > 0 && r.Status == StatusDelete && r.StorageRef == RefDeleted
}

// TriageRecord is one row of the low-confidence Buffer2 log.
type TriageRecord struct {
	Row            int
	MessageID      string
	AttachmentName string
	CanonicalName  string
	FileName       string
	StorageRef     string
	Relevance      Relevance
	Reason         string
	Classification Classification
	FinancialYear  string
	Month          string
	ReferenceDate  string
	LoggedAt       time.Time
}

func (r TriageRecord) StoredName() string {
	return storedName(r.FileName, r.CanonicalName)
}

func storedName(fileName, canonicalName string) string {
	if fileName != "" {
		return fileName
	}
	return canonicalName
}

// FlowLogRow is the denormalized projection of a document into the main,
// inflow or outflow log.
type FlowLogRow struct {
	Row            int
	UniqueID       string
	CanonicalName  string
	StorageRef     string
	MessageID      string
	Classification Classification
	FinancialYear  string
	Month          string
	LoggedAt       time.Time
}
