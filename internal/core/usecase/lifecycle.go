package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ledger"
	"github.com/kirillkom/accruals-router/internal/core/naming"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

var (
	deleteSearch   = []domain.FolderKind{domain.FolderBufferActive, domain.FolderInflow, domain.FolderOutflow, domain.FolderBufferDeleted}
	activateSearch = []domain.FolderKind{domain.FolderBufferDeleted, domain.FolderBufferActive, domain.FolderInflow, domain.FolderOutflow}
	promoteSearch  = []domain.FolderKind{domain.FolderBuffer2, domain.FolderBufferActive}
	projectionLogs = []domain.LogKind{domain.LogMain, domain.LogInflow, domain.LogOutflow}
)

// LifecycleUseCase applies operator status edits: it moves the document's
// file and reconciles every log that references it.
type LifecycleUseCase struct {
	ledger     *ledger.Ledger
	files      ports.FileStore
	router     *FolderRouter
	resolver   *RecoveryResolver
	classifier ports.DocumentClassifier
	locker     ports.CompanyLocker
	publisher  ports.TransitionPublisher

	logger   *slog.Logger
	now      func() time.Time
	metrics  ports.PipelineMetrics
	idPrefix string
}

// NewLifecycleUseCase accepts a nil publisher when no one listens for
// transition events.
func NewLifecycleUseCase(
	tables ports.TableStore,
	files ports.FileStore,
	router *FolderRouter,
	classifier ports.DocumentClassifier,
	locker ports.CompanyLocker,
	publisher ports.TransitionPublisher,
	opts ...Option,
) *LifecycleUseCase {
	s := newSettings(opts)
	return &LifecycleUseCase{
		ledger:     ledger.New(tables),
		files:      files,
		router:     router,
		resolver:   NewRecoveryResolver(files, router),
		classifier: classifier,
		locker:     locker,
		publisher:  publisher,
		logger:     s.logger,
		now:        s.now,
		metrics:    s.metrics,
		idPrefix:   s.idPrefix,
	}
}

// Apply runs the transition named by change. The returned result is filled in
// on failure too; Reverted reports that the edited field was set back to its
// prior value, FileMoved with LogsReconciled=false reports a ConsistencyError.
func (uc *LifecycleUseCase) Apply(ctx context.Context, change domain.StatusChange) (domain.TransitionResult, error) {
	change.Company = strings.TrimSpace(change.Company)
	transition, err := transitionFor(change)
	result := domain.TransitionResult{
		Transition: transition,
		Company:    change.Company,
		Row:        change.Row,
		From:       change.OldValue,
		To:         change.NewValue,
	}
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	if uc.locker != nil {
		release, err := uc.locker.Acquire(ctx, change.Company)
		if err != nil {
			err = domain.NewOperationError(change.Company, "", string(transition)+": acquire company lock", err)
			result.Error = err.Error()
			return result, err
		}
		defer release()
	}
	// A started transition is not interrupted by the caller going away.
	ctx = context.WithoutCancel(ctx)

	started := uc.now()
	switch transition {
	case domain.TransitionDelete:
		err = uc.deactivate(ctx, change, &result)
	case domain.TransitionActivate:
		err = uc.activate(ctx, change, &result)
	case domain.TransitionAccept:
		err = uc.promote(ctx, change, &result, domain.RelevanceYes)
	case domain.TransitionReject:
		err = uc.promote(ctx, change, &result, domain.RelevanceNo)
	}
	uc.metrics.ObserveTransition(transition, uc.now().Sub(started), err)

	attrs := []any{
		"company", result.Company,
		"transition", result.Transition,
		"row", result.Row,
		"unique_id", result.UniqueID,
		"canonical_name", result.CanonicalName,
		"found_in", result.FoundIn,
		"file_moved", result.FileMoved,
	}
	switch {
	case err == nil:
		uc.logger.Info("transition_applied", attrs...)
	case domain.IsKind(err, domain.ErrConsistency):
		result.Error = err.Error()
		uc.logger.Error("transition_inconsistent", append(attrs, "error", err)...)
	default:
		result.Error = err.Error()
		uc.logger.Warn("transition_failed", append(attrs, "reverted", result.Reverted, "error", err)...)
	}

	if uc.publisher != nil {
		if pubErr := uc.publisher.PublishTransition(ctx, result); pubErr != nil {
			uc.logger.Warn("transition_publish_failed", "company", result.Company, "row", result.Row, "error", pubErr)
		}
	}
	return result, err
}

func transitionFor(change domain.StatusChange) (domain.Transition, error) {
	if change.Company == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "status change", errors.New("company is required"))
	}
	if change.Row < 1 {
		return "", domain.WrapError(domain.ErrInvalidInput, "status change", fmt.Errorf("invalid row %d", change.Row))
	}
	switch change.Field {
	case domain.FieldStatus:
		target, ok := parseBufferStatus(change.NewValue)
		if !ok {
			return "", domain.WrapError(domain.ErrInvalidInput, "status change", fmt.Errorf("unknown status %q", change.NewValue))
		}
		if target == domain.StatusDelete {
			return domain.TransitionDelete, nil
		}
		return domain.TransitionActivate, nil
	case domain.FieldRelevance:
		target, ok := parseRelevance(change.NewValue)
		switch {
		case !ok || target == domain.RelevancePending:
			return "", domain.WrapError(domain.ErrInvalidInput, "relevance change", fmt.Errorf("unsupported relevance %q", change.NewValue))
		case target == domain.RelevanceYes:
			return domain.TransitionAccept, nil
		default:
			return domain.TransitionReject, nil
		}
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "status change", fmt.Errorf("unknown field %q", change.Field))
	}
}

// deactivate moves an active document into the deleted buffer and removes its
// main and flow log rows.
func (uc *LifecycleUseCase) deactivate(ctx context.Context, change domain.StatusChange, result *domain.TransitionResult) error {
	rec, err := uc.ledger.BufferRecord(ctx, change.Company, change.Row)
	if err != nil {
		return err
	}
	fillFromBuffer(result, rec)

	prior := priorStatus(change.OldValue, rec.Status, domain.StatusDelete)
	if prior == domain.StatusDelete {
		return domain.WrapError(domain.ErrInvalidInput, "delete document", fmt.Errorf("row %d is already deleted", rec.Row))
	}
	if strings.TrimSpace(change.Reason) == "" {
		return uc.revertBuffer(ctx, rec, prior, "", result,
			&domain.ValidationError{Field: "reason", Message: "a reason is required to delete a document"})
	}

	found, ok, err := uc.resolver.Resolve(ctx, uc.bufferQuery(change.Company, rec, deleteSearch))
	if err != nil {
		return uc.revertBuffer(ctx, rec, prior, "", result,
			domain.NewOperationError(change.Company, rec.CanonicalName, "resolve document", err))
	}
	if !ok {
		return uc.revertBuffer(ctx, rec, prior, domain.RefNotFound, result, notFound(change.Company, rec.CanonicalName))
	}
	result.FoundIn = found.Location
	result.NameMismatch = found.NameMismatch

	fy, month := uc.homeOf(rec.FinancialYear, rec.Month, found)
	moved := found.File
	if found.Location != domain.LocationBufferDeleted {
		moved, err = uc.moveTo(ctx, change.Company, fy, month, domain.FolderBufferDeleted, found.File)
		if err != nil {
			return uc.revertBuffer(ctx, rec, prior, "", result,
				domain.NewOperationError(change.Company, rec.CanonicalName, "move to deleted buffer", err))
		}
		result.FileMoved = true
	}

	// The file has moved; from here on failures are reported, never undone.
	var problems []error
	problems = append(problems, uc.trashFlowCopies(ctx, change.Company, rec, moved, fy, month)...)
	for _, kind := range projectionLogs {
		n, err := uc.ledger.DeleteFlowRows(ctx, change.Company, kind, rec.UniqueID, rec.CanonicalName)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		result.RowsRemoved += n
	}

	rec.Status = domain.StatusDelete
	rec.StorageRef = domain.RefDeleted
	rec.Reason = change.Reason
	rec.FileName = moved.Name
	if err := uc.ledger.UpdateBuffer(ctx, change.Company, rec); err != nil {
		problems = append(problems, err)
	}
	result.CanonicalName = rec.CanonicalName
	result.StorageRef = domain.RefDeleted
	return uc.reconciled(result, problems)
}

// activate brings a deleted document back into the active buffer and
// re-projects it into the main and flow logs.
func (uc *LifecycleUseCase) activate(ctx context.Context, change domain.StatusChange, result *domain.TransitionResult) error {
	rec, err := uc.ledger.BufferRecord(ctx, change.Company, change.Row)
	if err != nil {
		return err
	}
	fillFromBuffer(result, rec)

	prior := priorStatus(change.OldValue, rec.Status, domain.StatusActive)
	if prior == domain.StatusActive {
		return domain.WrapError(domain.ErrInvalidInput, "activate document", fmt.Errorf("row %d is already active", rec.Row))
	}
	if strings.TrimSpace(change.Reason) == "" {
		return uc.revertBuffer(ctx, rec, prior, "", result,
			&domain.ValidationError{Field: "reason", Message: "a reason is required to reactivate a document"})
	}
	namesake, clash, err := uc.activeNamesake(ctx, change.Company, rec.CanonicalName, rec.Row)
	if err != nil {
		return uc.revertBuffer(ctx, rec, prior, "", result,
			domain.NewOperationError(change.Company, rec.CanonicalName, "check active documents", err))
	}
	if clash {
		return uc.revertBuffer(ctx, rec, prior, "", result,
			domain.WrapError(domain.ErrDuplicate, "activate document", fmt.Errorf("%s is already active in row %d", rec.CanonicalName, namesake.Row)))
	}

	found, ok, err := uc.resolver.Resolve(ctx, uc.bufferQuery(change.Company, rec, activateSearch))
	if err != nil {
		return uc.revertBuffer(ctx, rec, prior, "", result,
			domain.NewOperationError(change.Company, rec.CanonicalName, "resolve document", err))
	}
	if !ok {
		return uc.revertBuffer(ctx, rec, prior, domain.RefNotFound, result, notFound(change.Company, rec.CanonicalName))
	}
	result.FoundIn = found.Location
	result.NameMismatch = found.NameMismatch

	cls := uc.reclassify(ctx, rec.Classification, found.File)
	fy, month := uc.homeOf(rec.FinancialYear, rec.Month, found)
	moved := found.File
	if found.Location != domain.LocationBufferActive {
		moved, err = uc.moveTo(ctx, change.Company, fy, month, domain.FolderBufferActive, found.File)
		if err != nil {
			return uc.revertBuffer(ctx, rec, prior, "", result,
				domain.NewOperationError(change.Company, rec.CanonicalName, "move to active buffer", err))
		}
		result.FileMoved = true
	}

	var problems []error
	uniqueID, err := uc.resolveUniqueID(ctx, change.Company, rec.UniqueID, moved.ID, rec.CanonicalName)
	if err != nil {
		problems = append(problems, err)
	}
	rec.UniqueID = uniqueID
	rec.Status = domain.StatusActive
	rec.StorageRef = moved.ID
	rec.FileName = moved.Name
	rec.Reason = change.Reason
	rec.Classification = cls
	rec.FinancialYear = fy
	rec.Month = month
	if err := uc.ledger.UpdateBuffer(ctx, change.Company, rec); err != nil {
		problems = append(problems, err)
	}
	problems = append(problems, uc.project(ctx, change.Company, rec, moved, result)...)

	result.UniqueID = rec.UniqueID
	result.CanonicalName = rec.CanonicalName
	result.StorageRef = rec.StorageRef
	return uc.reconciled(result, problems)
}

// promote moves a triaged document into the active buffer. Yes and No take
// the same path and differ only in the audit reason; both force outflow.
func (uc *LifecycleUseCase) promote(ctx context.Context, change domain.StatusChange, result *domain.TransitionResult, relevance domain.Relevance) error {
	trec, err := uc.ledger.TriageRecord(ctx, change.Company, change.Row)
	if err != nil {
		return err
	}
	result.CanonicalName = trec.CanonicalName
	result.StorageRef = trec.StorageRef

	prior := priorRelevance(change.OldValue)
	if prior != domain.RelevancePending {
		return domain.WrapError(domain.ErrInvalidInput, "triage document", fmt.Errorf("row %d was already triaged as %s", trec.Row, prior))
	}

	own, hasOwn, err := uc.promotedRow(ctx, change.Company, trec)
	if err != nil {
		return uc.revertTriage(ctx, trec, prior, "", result,
			domain.NewOperationError(change.Company, trec.CanonicalName, "read buffer log", err))
	}
	skipRow := 0
	if hasOwn {
		skipRow = own.Row
	}
	namesake, clash, err := uc.activeNamesake(ctx, change.Company, trec.CanonicalName, skipRow)
	if err != nil {
		return uc.revertTriage(ctx, trec, prior, "", result,
			domain.NewOperationError(change.Company, trec.CanonicalName, "check active documents", err))
	}
	if clash {
		return uc.revertTriage(ctx, trec, prior, "", result,
			domain.WrapError(domain.ErrDuplicate, "triage document", fmt.Errorf("%s is already active in row %d", trec.CanonicalName, namesake.Row)))
	}

	found, ok, err := uc.resolver.Resolve(ctx, RecoveryQuery{
		Company:       change.Company,
		CanonicalName: trec.CanonicalName,
		FileName:      trec.FileName,
		LastKnownRef:  trec.StorageRef,
		FinancialYear: trec.FinancialYear,
		Month:         trec.Month,
		Locations:     promoteSearch,
		Hints:         recoveryHints(trec.Classification),
	})
	if err != nil {
		return uc.revertTriage(ctx, trec, prior, "", result,
			domain.NewOperationError(change.Company, trec.CanonicalName, "resolve document", err))
	}
	if !ok {
		return uc.revertTriage(ctx, trec, prior, domain.RefNotFound, result, notFound(change.Company, trec.CanonicalName))
	}
	result.FoundIn = found.Location
	result.NameMismatch = found.NameMismatch

	fy, month := uc.homeOf(trec.FinancialYear, trec.Month, found)
	moved := found.File
	if found.Location != domain.LocationBufferActive {
		moved, err = uc.moveTo(ctx, change.Company, fy, month, domain.FolderBufferActive, found.File)
		if err != nil {
			return uc.revertTriage(ctx, trec, prior, "", result,
				domain.NewOperationError(change.Company, trec.CanonicalName, "move to active buffer", err))
		}
		result.FileMoved = true
	}

	// TODO: let the operator pick inflow when accepting; both answers are
	// filed as outflow today.
	cls := trec.Classification
	cls.InvoiceStatus = domain.InvoiceOutflow
	cls.Source = domain.SourceManual
	audit := triageAudit(relevance, change.Reason)
	cls.Notes = joinNotes(cls.Notes, audit)

	var problems []error
	rec := own
	uniqueID, err := uc.resolveUniqueID(ctx, change.Company, own.UniqueID, moved.ID, trec.CanonicalName)
	if err != nil {
		problems = append(problems, err)
	}
	rec.UniqueID = uniqueID
	rec.MessageID = trec.MessageID
	rec.AttachmentName = trec.AttachmentName
	rec.CanonicalName = trec.CanonicalName
	rec.FileName = moved.Name
	rec.StorageRef = moved.ID
	rec.Status = domain.StatusActive
	rec.Reason = audit
	rec.Classification = cls
	rec.FinancialYear = fy
	rec.Month = month
	rec.ReferenceDate = trec.ReferenceDate
	if hasOwn {
		if err := uc.ledger.UpdateBuffer(ctx, change.Company, rec); err != nil {
			problems = append(problems, err)
		}
	} else {
		rec.LoggedAt = uc.now()
		if err := uc.ledger.AppendBuffer(ctx, change.Company, &rec); err != nil {
			problems = append(problems, err)
		} else {
			result.RowsAppended++
		}
	}
	problems = append(problems, uc.project(ctx, change.Company, rec, moved, result)...)

	trec.Relevance = relevance
	trec.StorageRef = moved.ID
	trec.FileName = moved.Name
	trec.Reason = audit
	if err := uc.ledger.UpdateTriage(ctx, change.Company, trec); err != nil {
		problems = append(problems, err)
	}

	result.UniqueID = rec.UniqueID
	result.CanonicalName = rec.CanonicalName
	result.StorageRef = rec.StorageRef
	return uc.reconciled(result, problems)
}

// project replaces the document's main and flow log rows with fresh ones.
// Flow documents also get a copy in the flow folder of their month.
func (uc *LifecycleUseCase) project(ctx context.Context, company string, rec domain.BufferRecord, file domain.StoredFile, result *domain.TransitionResult) []error {
	var problems []error
	for _, kind := range projectionLogs {
		n, err := uc.ledger.DeleteFlowRows(ctx, company, kind, rec.UniqueID, rec.CanonicalName)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		result.RowsRemoved += n
	}

	mainRow := flowRow(rec, file.ID, uc.now())
	if err := uc.ledger.AppendFlow(ctx, company, domain.LogMain, &mainRow); err != nil {
		problems = append(problems, err)
	} else {
		result.RowsAppended++
	}

	flowLog, isFlow := domain.FlowLogFor(rec.Classification.InvoiceStatus)
	if !isFlow {
		return problems
	}
	flowKind, _ := domain.FlowFolderFor(rec.Classification.InvoiceStatus)
	copied, err := uc.flowCopy(ctx, company, rec, file, flowKind)
	if err != nil {
		return append(problems, fmt.Errorf("copy to %s: %w", flowKind, err))
	}
	row := flowRow(rec, copied.ID, uc.now())
	if err := uc.ledger.AppendFlow(ctx, company, flowLog, &row); err != nil {
		return append(problems, err)
	}
	result.RowsAppended++
	return problems
}

// flowCopy reuses a same-named file already present in the flow folder.
func (uc *LifecycleUseCase) flowCopy(ctx context.Context, company string, rec domain.BufferRecord, file domain.StoredFile, kind domain.FolderKind) (domain.StoredFile, error) {
	folder, err := uc.router.ResolveIn(ctx, company, rec.FinancialYear, rec.Month, kind)
	if err != nil {
		return domain.StoredFile{}, err
	}
	existing, err := uc.files.FindByName(ctx, folder, file.Name)
	if err != nil {
		return domain.StoredFile{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	copied, err := uc.files.CopyFile(ctx, file, folder, file.Name)
	if domain.IsKind(err, domain.ErrFolderMissing) {
		uc.router.Invalidate()
		if folder, err = uc.router.ResolveIn(ctx, company, rec.FinancialYear, rec.Month, kind); err != nil {
			return domain.StoredFile{}, err
		}
		copied, err = uc.files.CopyFile(ctx, file, folder, file.Name)
	}
	return copied, err
}

// trashFlowCopies removes the inflow/outflow copies of a document being
// deleted, found through the flow log rows or by name in the flow folders.
func (uc *LifecycleUseCase) trashFlowCopies(ctx context.Context, company string, rec domain.BufferRecord, moved domain.StoredFile, fy, month string) []error {
	var problems []error
	trashed := map[string]bool{moved.ID: true}
	for _, kind := range []domain.LogKind{domain.LogInflow, domain.LogOutflow} {
		rows, err := uc.ledger.FlowRows(ctx, company, kind)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		for _, row := range rows {
			if !sameDocument(row, rec) || !domain.IsLiveRef(row.StorageRef) || trashed[row.StorageRef] {
				continue
			}
			file, err := uc.files.Stat(ctx, row.StorageRef)
			if domain.IsKind(err, domain.ErrDocumentNotFound) {
				continue
			}
			if err != nil {
				problems = append(problems, err)
				continue
			}
			if err := uc.files.Trash(ctx, file); err != nil {
				problems = append(problems, fmt.Errorf("trash %s copy: %w", kind, err))
				continue
			}
			trashed[file.ID] = true
		}
	}

	for _, kind := range []domain.FolderKind{domain.FolderInflow, domain.FolderOutflow} {
		folder, exists, err := uc.router.Lookup(ctx, company, fy, month, kind)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if !exists {
			continue
		}
		var files []domain.StoredFile
		for _, name := range uniqueNames(rec.StoredName(), rec.CanonicalName) {
			found, err := uc.files.FindByName(ctx, folder, name)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			files = append(files, found...)
		}
		for _, f := range files {
			if trashed[f.ID] {
				continue
			}
			if err := uc.files.Trash(ctx, f); err != nil {
				problems = append(problems, fmt.Errorf("trash %s copy: %w", kind, err))
				continue
			}
			trashed[f.ID] = true
		}
	}
	return problems
}

func uniqueNames(names ...string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func sameDocument(row domain.FlowLogRow, rec domain.BufferRecord) bool {
	if rec.UniqueID != "" {
		return row.UniqueID == rec.UniqueID
	}
	return row.CanonicalName == rec.CanonicalName
}

// moveTo moves file into the given folder. A folder reported missing is
// resolved again without the cache and the move retried once.
func (uc *LifecycleUseCase) moveTo(ctx context.Context, company, fy, month string, kind domain.FolderKind, file domain.StoredFile) (domain.StoredFile, error) {
	folder, err := uc.router.ResolveIn(ctx, company, fy, month, kind)
	if err != nil {
		return domain.StoredFile{}, err
	}
	if file.Folder == folder {
		return file, nil
	}
	moved, err := uc.files.MoveFile(ctx, file, folder)
	if domain.IsKind(err, domain.ErrFolderMissing) {
		uc.logger.Warn("folder_cache_stale", "company", company, "kind", kind, "folder", folder)
		uc.router.Invalidate()
		if folder, err = uc.router.ResolveIn(ctx, company, fy, month, kind); err != nil {
			return domain.StoredFile{}, err
		}
		moved, err = uc.files.MoveFile(ctx, file, folder)
	}
	return moved, err
}

// reclassify runs the classifier again on reactivation. A heuristic answer
// does not replace a stored inflow/outflow classification.
func (uc *LifecycleUseCase) reclassify(ctx context.Context, stored domain.Classification, file domain.StoredFile) domain.Classification {
	if uc.classifier == nil {
		return stored
	}
	data, err := uc.files.Read(ctx, file)
	if err != nil {
		uc.logger.Warn("reclassify_read_failed", "storage_ref", file.ID, "error", err)
		return stored
	}
	cls := uc.classifier.Classify(ctx, data, mime.TypeByExtension(path.Ext(file.Name)), file.Name)
	if cls.Source == domain.SourceHeuristic && stored.InvoiceStatus.IsFlow() {
		return stored
	}
	return cls
}

func (uc *LifecycleUseCase) activeNamesake(ctx context.Context, company, canonicalName string, row int) (domain.BufferRecord, bool, error) {
	records, err := uc.ledger.BufferRecords(ctx, company)
	if err != nil {
		return domain.BufferRecord{}, false, err
	}
	for _, rec := range records {
		if rec.Row != row && rec.Status == domain.StatusActive && domain.IsLiveRef(rec.StorageRef) && rec.CanonicalName == canonicalName {
			return rec, true, nil
		}
	}
	return domain.BufferRecord{}, false, nil
}

// promotedRow finds the buffer row written by an earlier promotion of the same
// triage item.
func (uc *LifecycleUseCase) promotedRow(ctx context.Context, company string, trec domain.TriageRecord) (domain.BufferRecord, bool, error) {
	records, err := uc.ledger.BufferRecords(ctx, company)
	if err != nil {
		return domain.BufferRecord{}, false, err
	}
	for _, rec := range records {
		if rec.IsDuplicate() {
			continue
		}
		if trec.MessageID != "" && rec.MessageID == trec.MessageID && rec.AttachmentName == trec.AttachmentName {
			return rec, true, nil
		}
		if domain.IsLiveRef(trec.StorageRef) && rec.StorageRef == trec.StorageRef {
			return rec, true, nil
		}
	}
	return domain.BufferRecord{}, false, nil
}

// resolveUniqueID returns the existing id, the one the buffer log already
// holds for the document, or a new one.
func (uc *LifecycleUseCase) resolveUniqueID(ctx context.Context, company, existing, storageRef, canonicalName string) (string, error) {
	if existing != "" {
		return existing, nil
	}
	id, found, err := uc.ledger.LookupUniqueID(ctx, company, storageRef, canonicalName)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}
	ids, err := uc.ledger.UniqueIDs(ctx, company)
	if err != nil {
		return "", err
	}
	return naming.NewIDAllocator(uc.idPrefix, naming.HighestID(uc.idPrefix, ids)).Assign(storageRef), nil
}

func (uc *LifecycleUseCase) revertBuffer(ctx context.Context, rec domain.BufferRecord, prior domain.BufferStatus, ref string, result *domain.TransitionResult, cause error) error {
	rec.Status = prior
	rec.Reason = "transition failed: " + cause.Error()
	if ref != "" {
		rec.StorageRef = ref
		result.StorageRef = ref
	}
	if err := uc.ledger.UpdateBuffer(ctx, result.Company, rec); err != nil {
		return errors.Join(cause, fmt.Errorf("revert status: %w", err))
	}
	result.Reverted = true
	return cause
}

func (uc *LifecycleUseCase) revertTriage(ctx context.Context, trec domain.TriageRecord, prior domain.Relevance, ref string, result *domain.TransitionResult, cause error) error {
	trec.Relevance = prior
	trec.Reason = "transition failed: " + cause.Error()
	if ref != "" {
		trec.StorageRef = ref
		result.StorageRef = ref
	}
	if err := uc.ledger.UpdateTriage(ctx, result.Company, trec); err != nil {
		return errors.Join(cause, fmt.Errorf("revert relevance: %w", err))
	}
	result.Reverted = true
	return cause
}

func (uc *LifecycleUseCase) reconciled(result *domain.TransitionResult, problems []error) error {
	if len(problems) == 0 {
		result.LogsReconciled = true
		return nil
	}
	return domain.NewOperationError(result.Company, result.CanonicalName, "reconcile logs",
		domain.WrapError(domain.ErrConsistency, string(result.Transition), errors.Join(problems...)))
}

func (uc *LifecycleUseCase) bufferQuery(company string, rec domain.BufferRecord, locations []domain.FolderKind) RecoveryQuery {
	return RecoveryQuery{
		Company:       company,
		CanonicalName: rec.CanonicalName,
		FileName:      rec.FileName,
		LastKnownRef:  rec.StorageRef,
		FinancialYear: rec.FinancialYear,
		Month:         rec.Month,
		Locations:     locations,
		Hints:         recoveryHints(rec.Classification),
	}
}

// homeOf is the financial year and month a document is filed under.
func (uc *LifecycleUseCase) homeOf(fy, month string, found Recovered) (string, string) {
	now := uc.now()
	if fy == "" {
		fy = found.FinancialYear
	}
	if fy == "" {
		fy = domain.FinancialYear(now)
	}
	if month == "" {
		month = domain.MonthName(now)
	}
	return fy, month
}

func fillFromBuffer(result *domain.TransitionResult, rec domain.BufferRecord) {
	result.UniqueID = rec.UniqueID
	result.CanonicalName = rec.CanonicalName
	result.StorageRef = rec.StorageRef
}

func notFound(company, canonicalName string) error {
	return domain.NewOperationError(company, canonicalName, "resolve document",
		domain.WrapError(domain.ErrDocumentNotFound, "recovery", errors.New("no plausible location holds the file")))
}

func recoveryHints(cls domain.Classification) []string {
	var hints []string
	for _, v := range []string{cls.InvoiceNumber, cls.VendorName} {
		if s := strings.ToLower(naming.SanitizeField(v)); s != "" && s != strings.ToLower(naming.DefaultVendor) {
			hints = append(hints, s)
		}
	}
	return hints
}

func triageAudit(relevance domain.Relevance, reason string) string {
	audit := "triage accepted as relevant"
	if relevance == domain.RelevanceNo {
		audit = "triage accepted as not relevant"
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		audit += ": " + reason
	}
	return audit
}

func parseBufferStatus(raw string) (domain.BufferStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return domain.StatusActive, true
	case "delete", "deleted":
		return domain.StatusDelete, true
	default:
		return "", false
	}
}

func parseRelevance(raw string) (domain.Relevance, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending":
		return domain.RelevancePending, true
	case "yes", "y":
		return domain.RelevanceYes, true
	case "no", "n":
		return domain.RelevanceNo, true
	default:
		return "", false
	}
}

// priorStatus is the status to restore on failure. The signal's old value
// wins; otherwise the stored status, unless the store already shows target.
func priorStatus(old string, stored, target domain.BufferStatus) domain.BufferStatus {
	if s, ok := parseBufferStatus(old); ok {
		return s
	}
	if stored != "" && stored != target {
		return stored
	}
	if target == domain.StatusActive {
		return domain.StatusDelete
	}
	return domain.StatusActive
}

func priorRelevance(old string) domain.Relevance {
	if r, ok := parseRelevance(old); ok {
		return r
	}
	return domain.RelevancePending
}
