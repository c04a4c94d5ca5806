package ledger

import (
	"context"
	"fmt"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

// Ledger gives typed access to a company's buffer, Buffer2 and flow logs.
type Ledger struct {
	store ports.TableStore
}

func New(store ports.TableStore) *Ledger {
	return &Ledger{store: store}
}

func table(company string, kind domain.LogKind) domain.TableRef {
	return domain.TableRef{Company: company, Kind: kind}
}

func (l *Ledger) AppendBuffer(ctx context.Context, company string, rec *domain.BufferRecord) error {
	row, err := l.store.Append(ctx, table(company, domain.LogBuffer), encodeBuffer(*rec))
	if err != nil {
		return fmt.Errorf("append buffer row: %w", err)
	}
	rec.Row = row
	return nil
}

func (l *Ledger) BufferRecords(ctx context.Context, company string) ([]domain.BufferRecord, error) {
	rows, err := l.store.ReadAll(ctx, table(company, domain.LogBuffer))
	if err != nil {
		return nil, fmt.Errorf("read buffer log: %w", err)
	}
	out := make([]domain.BufferRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeBuffer(row.Number, row.Cells))
	}
	return out, nil
}

func (l *Ledger) BufferRecord(ctx context.Context, company string, number int) (domain.BufferRecord, error) {
	records, err := l.BufferRecords(ctx, company)
	if err != nil {
		return domain.BufferRecord{}, err
	}
	for _, rec := range records {
		if rec.Row == number {
			return rec, nil
		}
	}
	return domain.BufferRecord{}, domain.WrapError(domain.ErrDocumentNotFound, "read buffer row", fmt.Errorf("row %d", number))
}

func (l *Ledger) UpdateBuffer(ctx context.Context, company string, rec domain.BufferRecord) error {
	if err := l.store.Update(ctx, table(company, domain.LogBuffer), rec.Row, encodeBuffer(rec)); err != nil {
		return fmt.Errorf("update buffer row %d: %w", rec.Row, err)
	}
	return nil
}

// HighlightBuffer marks a buffer row for human review when the store supports it.
func (l *Ledger) HighlightBuffer(ctx context.Context, company string, number int) error {
	highlighter, ok := l.store.(ports.RowHighlighter)
	if !ok {
		return nil
	}
	return highlighter.Highlight(ctx, table(company, domain.LogBuffer), number)
}

// LookupUniqueID finds the id already owned by a document, first by its
// storage reference, then by an active row with the same canonical name.
func (l *Ledger) LookupUniqueID(ctx context.Context, company, storageRef, canonicalName string) (string, bool, error) {
	records, err := l.BufferRecords(ctx, company)
	if err != nil {
		return "", false, err
	}
	if domain.IsLiveRef(storageRef) {
		for _, rec := range records {
			if rec.StorageRef == storageRef && rec.UniqueID != "" {
				return rec.UniqueID, true, nil
			}
		}
	}
	if canonicalName != "" {
		for _, rec := range records {
			if rec.CanonicalName == canonicalName && rec.Status == domain.StatusActive && rec.UniqueID != "" {
				return rec.UniqueID, true, nil
			}
		}
	}
	return "", false, nil
}

// UniqueIDs lists every id present in the buffer log.
func (l *Ledger) UniqueIDs(ctx context.Context, company string) ([]string, error) {
	records, err := l.BufferRecords(ctx, company)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.UniqueID != "" {
			ids = append(ids, rec.UniqueID)
		}
	}
	return ids, nil
}

func (l *Ledger) AppendTriage(ctx context.Context, company string, rec *domain.TriageRecord) error {
	row, err := l.store.Append(ctx, table(company, domain.LogBuffer2), encodeTriage(*rec))
	if err != nil {
		return fmt.Errorf("append buffer2 row: %w", err)
	}
	rec.Row = row
	return nil
}

func (l *Ledger) TriageRecords(ctx context.Context, company string) ([]domain.TriageRecord, error) {
	rows, err := l.store.ReadAll(ctx, table(company, domain.LogBuffer2))
	if err != nil {
		return nil, fmt.Errorf("read buffer2 log: %w", err)
	}
	out := make([]domain.TriageRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeTriage(row.Number, row.Cells))
	}
	return out, nil
}

func (l *Ledger) TriageRecord(ctx context.Context, company string, number int) (domain.TriageRecord, error) {
	records, err := l.TriageRecords(ctx, company)
	if err != nil {
		return domain.TriageRecord{}, err
	}
	for _, rec := range records {
		if rec.Row == number {
			return rec, nil
		}
	}
	return domain.TriageRecord{}, domain.WrapError(domain.ErrDocumentNotFound, "read buffer2 row", fmt.Errorf("row %d", number))
}

func (l *Ledger) UpdateTriage(ctx context.Context, company string, rec domain.TriageRecord) error {
	if err := l.store.Update(ctx, table(company, domain.LogBuffer2), rec.Row, encodeTriage(rec)); err != nil {
		return fmt.Errorf("update buffer2 row %d: %w", rec.Row, err)
	}
	return nil
}

// AppendFlow appends to the main, inflow or outflow log.
func (l *Ledger) AppendFlow(ctx context.Context, company string, kind domain.LogKind, rec *domain.FlowLogRow) error {
	row, err := l.store.Append(ctx, table(company, kind), encodeFlow(*rec))
	if err != nil {
		return fmt.Errorf("append %s row: %w", kind, err)
	}
	rec.Row = row
	return nil
}

func (l *Ledger) FlowRows(ctx context.Context, company string, kind domain.LogKind) ([]domain.FlowLogRow, error) {
	rows, err := l.store.ReadAll(ctx, table(company, kind))
	if err != nil {
		return nil, fmt.Errorf("read %s log: %w", kind, err)
	}
	out := make([]domain.FlowLogRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeFlow(row.Number, row.Cells))
	}
	return out, nil
}

// DeleteFlowRows removes a document's rows from a main, inflow or outflow
// log. Rows are matched by unique id, or by canonical name when the document
// has no id yet.
func (l *Ledger) DeleteFlowRows(ctx context.Context, company string, kind domain.LogKind, uniqueID, canonicalName string) (int, error) {
	if uniqueID == "" && canonicalName == "" {
		return 0, nil
	}
	removed, err := l.store.Delete(ctx, table(company, kind), func(cells []string) bool {
		cells = pad(cells, len(flowHeaders))
		if uniqueID != "" {
			return cells[flowUniqueID] == uniqueID
		}
		return cells[flowCanonicalName] == canonicalName
	})
	if err != nil {
		return 0, fmt.Errorf("delete %s rows: %w", kind, err)
	}
	return removed, nil
}

// LoggedAttachments returns the (message id, attachment name) pairs already
// present in the buffer or Buffer2 log, keyed by AttachmentKey.
func (l *Ledger) LoggedAttachments(ctx context.Context, company string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	buffer, err := l.BufferRecords(ctx, company)
	if err != nil {
		return nil, err
	}
	for _, rec := range buffer {
		if rec.MessageID != "" {
			out[AttachmentKey(rec.MessageID, rec.AttachmentName)] = struct{}{}
		}
	}
	triage, err := l.TriageRecords(ctx, company)
	if err != nil {
		return nil, err
	}
	for _, rec := range triage {
		if rec.MessageID != "" {
			out[AttachmentKey(rec.MessageID, rec.AttachmentName)] = struct{}{}
		}
	}
	return out, nil
}

func AttachmentKey(messageID, attachmentName string) string {
	return messageID + "\x00" + attachmentName
}
