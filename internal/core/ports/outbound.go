package ports

import (
	"context"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

// Row is a raw log row. Number is the 1-based data row index (header excluded).
type Row struct {
	Number int
	Cells  []string
}

// RowPredicate selects rows by their raw cells.
type RowPredicate func(cells []string) bool

// TableStore is the tabular log store. Rows keep their numbers until a delete
// removes rows above them.
type TableStore interface {
	Append(ctx context.Context, table domain.TableRef, cells []string) (int, error)
	Find(ctx context.Context, table domain.TableRef, match RowPredicate) ([]Row, error)
	Delete(ctx context.Context, table domain.TableRef, match RowPredicate) (int, error)
	ReadAll(ctx context.Context, table domain.TableRef) ([]Row, error)
	Update(ctx context.Context, table domain.TableRef, number int, cells []string) error
}

// RowHighlighter marks rows for human review. Table stores without a visual
// surface need not implement it.
type RowHighlighter interface {
	Highlight(ctx context.Context, table domain.TableRef, number int) error
}

// FileStore is the hierarchical file store.
type FileStore interface {
	Root(ctx context.Context) (domain.FolderRef, error)
	GetOrCreateFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error)
	FindFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, bool, error)
	CreateFile(ctx context.Context, folder domain.FolderRef, name string, data []byte) (domain.StoredFile, error)
	MoveFile(ctx context.Context, file domain.StoredFile, to domain.FolderRef) (domain.StoredFile, error)
	CopyFile(ctx context.Context, file domain.StoredFile, to domain.FolderRef, newName string) (domain.StoredFile, error)
	Trash(ctx context.Context, file domain.StoredFile) error
	FindByName(ctx context.Context, folder domain.FolderRef, name string) ([]domain.StoredFile, error)
	ListFiles(ctx context.Context, folder domain.FolderRef) ([]domain.StoredFile, error)
	Stat(ctx context.Context, ref string) (domain.StoredFile, error)
	Read(ctx context.Context, file domain.StoredFile) ([]byte, error)
}

// InvoiceClassifier is the external AI classifier. It is unreliable and its
// output is never used for routing without validation.
type InvoiceClassifier interface {
	Classify(ctx context.Context, data []byte, mimeType, filename string) (domain.RawClassification, error)
}

// TextExtractor pulls plain text out of document bytes for the heuristic
// fallback.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType, filename string) (string, error)
}

// MessageLedger persists the ids of fully processed mail messages.
type MessageLedger interface {
	ProcessedMessageIDs(ctx context.Context, company string) (map[string]struct{}, error)
	MarkProcessed(ctx context.Context, company, messageID string, at time.Time) error
}

// CompanyLocker serializes intake and lifecycle work per company.
type CompanyLocker interface {
	Acquire(ctx context.Context, company string) (release func(), err error)
}

// StatusChangeQueue carries operator status edits to the worker.
type StatusChangeQueue interface {
	PublishStatusChange(ctx context.Context, change domain.StatusChange) error
	SubscribeStatusChanges(ctx context.Context, handler func(context.Context, domain.StatusChange) error) error
}

// TransitionPublisher announces completed or failed lifecycle transitions.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, result domain.TransitionResult) error
}

// PipelineMetrics observes intake, classification and lifecycle outcomes.
type PipelineMetrics interface {
	ObserveIntake(outcome domain.IntakeOutcome)
	ObserveClassification(source domain.ClassificationSource, status domain.InvoiceStatus)
	ObserveTransition(transition domain.Transition, duration time.Duration, err error)
}
