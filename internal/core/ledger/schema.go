// Package ledger maps the per-company logs onto typed records. Column
// positions live here and nowhere else.
package ledger

import (
	"strconv"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

const (
	bufUniqueID = iota
	bufMessageID
	bufAttachmentName
	bufCanonicalName
	bufFileName
	bufStorageRef
	bufStatus
	bufReason
	bufRepeatedRef
	bufFinancialYear
	bufMonth
	bufReferenceDate
	bufLoggedAt
	bufClassification
)

const (
	triMessageID = iota
	triAttachmentName
	triCanonicalName
	triFileName
	triStorageRef
	triRelevance
	triReason
	triFinancialYear
	triMonth
	triReferenceDate
	triLoggedAt
	triClassification
)

const (
	flowUniqueID = iota
	flowCanonicalName
	flowStorageRef
	flowMessageID
	flowFinancialYear
	flowMonth
	flowLoggedAt
	flowClassification
)

var classificationHeaders = []string{
	"Invoice Status", "Vendor", "Invoice Number", "Amount", "Date", "GST", "TDS", "Other Tax", "Notes", "Source",
}

var (
	bufferHeaders = append([]string{
		"Unique ID", "Message ID", "Attachment Name", "Canonical Name", "Stored As", "File Ref", "Status", "Reason", "Repeated Row",
		"Financial Year", "Month", "Reference Date", "Logged At",
	}, classificationHeaders...)
	triageHeaders = append([]string{
		"Message ID", "Attachment Name", "Canonical Name", "Stored As", "File Ref", "Relevance", "Reason",
		"Financial Year", "Month", "Reference Date", "Logged At",
	}, classificationHeaders...)
	flowHeaders = append([]string{
		"Unique ID", "Canonical Name", "File Ref", "Message ID", "Financial Year", "Month", "Logged At",
	}, classificationHeaders...)
)

// Headers returns the header row of a log kind.
func Headers(kind domain.LogKind) []string {
	switch kind {
	case domain.LogBuffer:
		return bufferHeaders
	case domain.LogBuffer2:
		return triageHeaders
	default:
		return flowHeaders
	}
}

func encodeBuffer(r domain.BufferRecord) []string {
	cells := make([]string, bufClassification, len(bufferHeaders))
	cells[bufUniqueID] = r.UniqueID
	cells[bufMessageID] = r.MessageID
	cells[bufAttachmentName] = r.AttachmentName
	cells[bufCanonicalName] = r.CanonicalName
	cells[bufFileName] = r.FileName
	cells[bufStorageRef] = r.StorageRef
	cells[bufStatus] = string(r.Status)
	cells[bufReason] = r.Reason
	cells[bufRepeatedRef] = formatRow(r.RepeatedRef)
	cells[bufFinancialYear] = r.FinancialYear
	cells[bufMonth] = r.Month
	cells[bufReferenceDate] = r.ReferenceDate
	cells[bufLoggedAt] = formatTime(r.LoggedAt)
	return append(cells, encodeClassification(r.Classification)...)
}

func decodeBuffer(number int, cells []string) domain.BufferRecord {
	cells = pad(cells, len(bufferHeaders))
	return domain.BufferRecord{
		Row:            number,
		UniqueID:       cells[bufUniqueID],
		MessageID:      cells[bufMessageID],
		AttachmentName: cells[bufAttachmentName],
		CanonicalName:  cells[bufCanonicalName],
		FileName:       cells[bufFileName],
		StorageRef:     cells[bufStorageRef],
		Status:         domain.BufferStatus(cells[bufStatus]),
		Reason:         cells[bufReason],
		RepeatedRef:    parseRow(cells[bufRepeatedRef]),
		FinancialYear:  cells[bufFinancialYear],
		Month:          cells[bufMonth],
		ReferenceDate:  cells[bufReferenceDate],
		LoggedAt:       parseTime(cells[bufLoggedAt]),
		Classification: decodeClassification(cells[bufClassification:]),
	}
}

func encodeTriage(r domain.TriageRecord) []string {
	cells := make([]string, triClassification, len(triageHeaders))
	cells[triMessageID] = r.MessageID
	cells[triAttachmentName] = r.AttachmentName
	cells[triCanonicalName] = r.CanonicalName
	cells[triFileName] = r.FileName
	cells[triStorageRef] = r.StorageRef
	cells[triRelevance] = string(r.Relevance)
	cells[triReason] = r.Reason
	cells[triFinancialYear] = r.FinancialYear
	cells[triMonth] = r.Month
	cells[triReferenceDate] = r.ReferenceDate
	cells[triLoggedAt] = formatTime(r.LoggedAt)
	return append(cells, encodeClassification(r.Classification)...)
}

func decodeTriage(number int, cells []string) domain.TriageRecord {
	cells = pad(cells, len(triageHeaders))
	return domain.TriageRecord{
		Row:            number,
		MessageID:      cells[triMessageID],
		AttachmentName: cells[triAttachmentName],
		CanonicalName:  cells[triCanonicalName],
		FileName:       cells[triFileName],
		StorageRef:     cells[triStorageRef],
		Relevance:      domain.Relevance(cells[triRelevance]),
		Reason:         cells[triReason],
		FinancialYear:  cells[triFinancialYear],
		Month:          cells[triMonth],
		ReferenceDate:  cells[triReferenceDate],
		LoggedAt:       parseTime(cells[triLoggedAt]),
		Classification: decodeClassification(cells[triClassification:]),
	}
}

func encodeFlow(r domain.FlowLogRow) []string {
	cells := make([]string, flowClassification, len(flowHeaders))
	cells[flowUniqueID] = r.UniqueID
	cells[flowCanonicalName] = r.CanonicalName
	cells[flowStorageRef] = r.StorageRef
	cells[flowMessageID] = r.MessageID
	cells[flowFinancialYear] = r.FinancialYear
	cells[flowMonth] = r.Month
	cells[flowLoggedAt] = formatTime(r.LoggedAt)
	return append(cells, encodeClassification(r.Classification)...)
}

func decodeFlow(number int, cells []string) domain.FlowLogRow {
	cells = pad(cells, len(flowHeaders))
	return domain.FlowLogRow{
		Row:            number,
		UniqueID:       cells[flowUniqueID],
		CanonicalName:  cells[flowCanonicalName],
		StorageRef:     cells[flowStorageRef],
		MessageID:      cells[flowMessageID],
		FinancialYear:  cells[flowFinancialYear],
		Month:          cells[flowMonth],
		LoggedAt:       parseTime(cells[flowLoggedAt]),
		Classification: decodeClassification(cells[flowClassification:]),
	}
}

func encodeClassification(c domain.Classification) []string {
	return []string{
		string(c.InvoiceStatus), c.VendorName, c.InvoiceNumber, c.Amount, c.Date,
		c.GST, c.TDS, c.OtherTax, c.Notes, string(c.Source),
	}
}

func decodeClassification(cells []string) domain.Classification {
	cells = pad(cells, len(classificationHeaders))
	return domain.Classification{
		InvoiceStatus: domain.InvoiceStatus(cells[0]),
		VendorName:    cells[1],
		InvoiceNumber: cells[2],
		Amount:        cells[3],
		Date:          cells[4],
		GST:           cells[5],
		TDS:           cells[6],
		OtherTax:      cells[7],
		Notes:         cells[8],
		Source:        domain.ClassificationSource(cells[9]),
	}
}

// pad restores trailing blank cells that table stores drop on read.
func pad(cells []string, n int) []string {
	if len(cells) >= n {
		return cells
	}
	out := make([]string, n)
	copy(out, cells)
	return out
}

func formatRow(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func parseRow(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
