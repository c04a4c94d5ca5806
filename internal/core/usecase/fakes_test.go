package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

type tablesFake struct {
	mu          sync.Mutex
	rows        map[domain.TableRef][][]string
	highlighted map[domain.TableRef][]int
	appendErr   map[domain.LogKind]error
	deleteErr   map[domain.LogKind]error
	updateErr   error
	// afterAppend runs after every successful append, with the lock held.
	afterAppend func(domain.TableRef)
}

func newTablesFake() *tablesFake {
	return &tablesFake{
		rows:        make(map[domain.TableRef][][]string),
		highlighted: make(map[domain.TableRef][]int),
		appendErr:   make(map[domain.LogKind]error),
		deleteErr:   make(map[domain.LogKind]error),
	}
}

func (f *tablesFake) Append(ctx context.Context, table domain.TableRef, cells []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.appendErr[table.Kind]; err != nil {
		return 0, err
	}
	f.rows[table] = append(f.rows[table], append([]string(nil), cells...))
	if f.afterAppend != nil {
		f.afterAppend(table)
	}
	return len(f.rows[table]), nil
}

func (f *tablesFake) Find(ctx context.Context, table domain.TableRef, match ports.RowPredicate) ([]ports.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.Row
	for i, cells := range f.rows[table] {
		if match(cells) {
			out = append(out, ports.Row{Number: i + 1, Cells: append([]string(nil), cells...)})
		}
	}
	return out, nil
}

func (f *tablesFake) Delete(ctx context.Context, table domain.TableRef, match ports.RowPredicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[table.Kind]; err != nil {
		return 0, err
	}
	kept := f.rows[table][:0]
	removed := 0
	for _, cells := range f.rows[table] {
		if match(cells) {
			removed++
			continue
		}
		kept = append(kept, cells)
	}
	f.rows[table] = kept
	return removed, nil
}

func (f *tablesFake) ReadAll(ctx context.Context, table domain.TableRef) ([]ports.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.Row, 0, len(f.rows[table]))
	for i, cells := range f.rows[table] {
		out = append(out, ports.Row{Number: i + 1, Cells: append([]string(nil), cells...)})
	}
	return out, nil
}

func (f *tablesFake) Update(ctx context.Context, table domain.TableRef, number int, cells []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if number < 1 || number > len(f.rows[table]) {
		return fmt.Errorf("row %d: %w", number, domain.ErrDocumentNotFound)
	}
	f.rows[table][number-1] = append([]string(nil), cells...)
	return nil
}

func (f *tablesFake) Highlight(ctx context.Context, table domain.TableRef, number int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.highlighted[table] = append(f.highlighted[table], number)
	return nil
}

func (f *tablesFake) count(company string, kind domain.LogKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[domain.TableRef{Company: company, Kind: kind}])
}

// filesFake keeps folders as slash-separated paths; a file id is its full path.
type filesFake struct {
	mu      sync.Mutex
	folders map[domain.FolderRef]bool
	files   map[string]domain.StoredFile
	data    map[string][]byte
	trashed []domain.StoredFile
	moveErr error
	copyErr error
}

func newFilesFake() *filesFake {
	return &filesFake{
		folders: map[domain.FolderRef]bool{"": true},
		files:   make(map[string]domain.StoredFile),
		data:    make(map[string][]byte),
	}
}

func (f *filesFake) Root(ctx context.Context) (domain.FolderRef, error) { return "", ctx.Err() }

func (f *filesFake) GetOrCreateFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.folders[parent] {
		return "", domain.WrapError(domain.ErrFolderMissing, "get or create folder", errors.New(string(parent)))
	}
	ref := domain.FolderRef(path.Join(string(parent), name))
	f.folders[ref] = true
	return ref, nil
}

func (f *filesFake) FindFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := domain.FolderRef(path.Join(string(parent), name))
	return ref, f.folders[ref], nil
}

func (f *filesFake) CreateFile(ctx context.Context, folder domain.FolderRef, name string, data []byte) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.folders[folder] {
		return domain.StoredFile{}, domain.WrapError(domain.ErrFolderMissing, "create file", errors.New(string(folder)))
	}
	return f.put(folder, name, data), nil
}

func (f *filesFake) MoveFile(ctx context.Context, file domain.StoredFile, to domain.FolderRef) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return domain.StoredFile{}, f.moveErr
	}
	if !f.folders[to] {
		return domain.StoredFile{}, domain.WrapError(domain.ErrFolderMissing, "move file", errors.New(string(to)))
	}
	current, ok := f.files[file.ID]
	if !ok {
		return domain.StoredFile{}, domain.WrapError(domain.ErrDocumentNotFound, "move file", errors.New(file.ID))
	}
	data := f.data[current.ID]
	delete(f.files, current.ID)
	delete(f.data, current.ID)
	return f.put(to, current.Name, data), nil
}

func (f *filesFake) CopyFile(ctx context.Context, file domain.StoredFile, to domain.FolderRef, newName string) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copyErr != nil {
		return domain.StoredFile{}, f.copyErr
	}
	if !f.folders[to] {
		return domain.StoredFile{}, domain.WrapError(domain.ErrFolderMissing, "copy file", errors.New(string(to)))
	}
	if _, ok := f.files[file.ID]; !ok {
		return domain.StoredFile{}, domain.WrapError(domain.ErrDocumentNotFound, "copy file", errors.New(file.ID))
	}
	return f.put(to, newName, f.data[file.ID]), nil
}

func (f *filesFake) Trash(ctx context.Context, file domain.StoredFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[file.ID]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "trash", errors.New(file.ID))
	}
	f.trashed = append(f.trashed, f.files[file.ID])
	delete(f.files, file.ID)
	delete(f.data, file.ID)
	return nil
}

func (f *filesFake) FindByName(ctx context.Context, folder domain.FolderRef, name string) ([]domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StoredFile
	for _, file := range f.files {
		if file.Folder == folder && file.Name == name {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *filesFake) ListFiles(ctx context.Context, folder domain.FolderRef) ([]domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StoredFile
	for _, file := range f.files {
		if file.Folder == folder {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *filesFake) Stat(ctx context.Context, ref string) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[ref]
	if !ok {
		return domain.StoredFile{}, domain.WrapError(domain.ErrDocumentNotFound, "stat", errors.New(ref))
	}
	return file, nil
}

func (f *filesFake) Read(ctx context.Context, file domain.StoredFile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[file.ID]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "read", errors.New(file.ID))
	}
	return data, nil
}

func (f *filesFake) put(folder domain.FolderRef, name string, data []byte) domain.StoredFile {
	final := name
	for i := 2; ; i++ {
		if _, taken := f.files[path.Join(string(folder), final)]; !taken {
			break
		}
		ext := path.Ext(name)
		final = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), i, ext)
	}
	file := domain.StoredFile{
		ID:     path.Join(string(folder), final),
		Name:   final,
		Folder: folder,
		Size:   int64(len(data)),
	}
	f.files[file.ID] = file
	f.data[file.ID] = append([]byte(nil), data...)
	return file
}

func (f *filesFake) in(folder string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, file := range f.files {
		if string(file.Folder) == folder {
			names = append(names, file.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (f *filesFake) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, id)
	delete(f.data, id)
}

func (f *filesFake) dropFolder(folder string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.folders, domain.FolderRef(folder))
}

// documentClassifierFake answers by attachment name.
type documentClassifierFake struct {
	byName   map[string]domain.Classification
	fallback domain.Classification
	calls    int
	onCall   func(filename string)
}

func (f *documentClassifierFake) Classify(_ context.Context, _ []byte, _ string, filename string) domain.Classification {
	f.calls++
	if f.onCall != nil {
		f.onCall(filename)
	}
	if cls, ok := f.byName[filename]; ok {
		return cls
	}
	return f.fallback
}

type invoiceClassifierFake struct {
	raw   domain.RawClassification
	err   error
	calls int
}

func (f *invoiceClassifierFake) Classify(context.Context, []byte, string, string) (domain.RawClassification, error) {
	f.calls++
	if f.err != nil {
		return domain.RawClassification{}, f.err
	}
	return f.raw, nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) ExtractText(context.Context, []byte, string, string) (string, error) {
	return f.text, f.err
}

type lockerFake struct {
	err      error
	acquired int
	released int
}

func (f *lockerFake) Acquire(context.Context, string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() { f.released++ }, nil
}

type messageLedgerFake struct {
	known  map[string]struct{}
	marked []string
}

func (f *messageLedgerFake) ProcessedMessageIDs(ctx context.Context, _ string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.known, nil
}

func (f *messageLedgerFake) MarkProcessed(ctx context.Context, _ string, messageID string, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.marked = append(f.marked, messageID)
	return nil
}

type publisherFake struct {
	results []domain.TransitionResult
}

func (f *publisherFake) PublishTransition(_ context.Context, result domain.TransitionResult) error {
	f.results = append(f.results, result)
	return nil
}

const testCompany = "Acme Holdings"

var testNow = time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	tables     *tablesFake
	files      *filesFake
	classifier *documentClassifierFake
	locker     *lockerFake
	messages   *messageLedgerFake
	publisher  *publisherFake
	router     *FolderRouter
	intake     *IntakeUseCase
	lifecycle  *LifecycleUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tables:     newTablesFake(),
		files:      newFilesFake(),
		classifier: &documentClassifierFake{byName: map[string]domain.Classification{}},
		locker:     &lockerFake{},
		messages:   &messageLedgerFake{known: map[string]struct{}{}},
		publisher:  &publisherFake{},
	}
	opts := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return testNow }),
	}
	h.router = NewFolderRouter(h.files)
	h.intake = NewIntakeUseCase(h.tables, h.files, h.router, h.classifier, h.locker, h.messages, opts...)
	h.lifecycle = NewLifecycleUseCase(h.tables, h.files, h.router, h.classifier, h.locker, h.publisher, opts...)
	return h
}

func acmeInvoice() domain.Classification {
	return domain.Classification{
		InvoiceStatus: domain.InvoiceOutflow,
		VendorName:    "Acme",
		InvoiceNumber: "INV-1",
		Amount:        "100.00",
		Date:          "2024-05-01",
		Source:        domain.SourceClassifier,
	}
}

func message(id string, names ...string) domain.MailMessage {
	msg := domain.MailMessage{MessageID: id, Date: testNow}
	for _, name := range names {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Name:     name,
			Data:     []byte("%PDF " + id + " " + name),
			MimeType: "application/pdf",
		})
	}
	return msg
}

const (
	acmeName      = "2024-05-01_Acme_INV-1_100.00.pdf"
	activeFolder  = "Acme Holdings/2024-2025/Accruals/Buffer/Active"
	deletedFolder = "Acme Holdings/2024-2025/Accruals/Buffer/Deleted"
	triageFolder  = "Acme Holdings/2024-2025/Accruals/Buffer2"
	outflowFolder = "Acme Holdings/2024-2025/Accruals/BillsAndInvoices/May/Outflow"
)
