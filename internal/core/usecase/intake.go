package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ledger"
	"github.com/kirillkom/accruals-router/internal/core/naming"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

// IntakeUseCase stores new mail attachments in the company buffer.
type IntakeUseCase struct {
	ledger     *ledger.Ledger
	files      ports.FileStore
	router     *FolderRouter
	classifier ports.DocumentClassifier
	locker     ports.CompanyLocker
	messages   ports.MessageLedger

	logger       *slog.Logger
	now          func() time.Time
	metrics      ports.PipelineMetrics
	idPrefix     string
	placeholders []*regexp.Regexp
}

// NewIntakeUseCase accepts a nil message ledger; processed message ids then
// come only from the request.
func NewIntakeUseCase(
	tables ports.TableStore,
	files ports.FileStore,
	router *FolderRouter,
	classifier ports.DocumentClassifier,
	locker ports.CompanyLocker,
	messages ports.MessageLedger,
	opts ...Option,
) *IntakeUseCase {
	s := newSettings(opts)
	placeholders := make([]*regexp.Regexp, 0, len(s.rules.PlaceholderPatterns))
	for _, p := range s.rules.PlaceholderPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			s.logger.Warn("placeholder_pattern_invalid", "pattern", p, "error", err)
			continue
		}
		placeholders = append(placeholders, re)
	}
	return &IntakeUseCase{
		ledger:       ledger.New(tables),
		files:        files,
		router:       router,
		classifier:   classifier,
		locker:       locker,
		messages:     messages,
		logger:       s.logger,
		now:          s.now,
		metrics:      s.metrics,
		idPrefix:     s.idPrefix,
		placeholders: placeholders,
	}
}

type intakeCandidate struct {
	message    domain.MailMessage
	attachment domain.Attachment
	// repair is set for an attachment already in the buffer log whose main
	// or flow row is missing.
	repair *domain.BufferRecord
}

// intakeRun is the state of one intake run. Nothing in it outlives the run;
// the buffer log is re-read at the start of every run.
type intakeRun struct {
	company   string
	ids       *naming.IDAllocator
	known     map[string]struct{}
	logged    map[string]struct{}
	active    map[string]domain.BufferRecord
	unproject map[string]domain.BufferRecord
	processed map[string]struct{}
	pending   map[string]int
	failed    map[string]bool
	result    domain.IntakeResult
}

func (r *intakeRun) record(d domain.IntakeDecision) {
	r.result.Decisions = append(r.result.Decisions, d)
	switch d.Outcome {
	case domain.OutcomeStored:
		r.result.Stored++
	case domain.OutcomeDuplicate:
		r.result.Duplicates++
	case domain.OutcomeTriaged:
		r.result.Triaged++
	case domain.OutcomeRepaired:
		r.result.Repaired++
	case domain.OutcomeFailed:
		r.result.Failed++
	default:
		r.result.Skipped++
	}
}

// Intake runs in two passes. The first pass only decides which attachments
// need work, so a run cancelled before the second pass has no side effects.
// In the second pass cancellation is checked between attachments: an
// attachment whose classification was interrupted is left untouched, and one
// that started writing files and rows runs to the end. The partial result is
// returned with Cancelled set.
func (uc *IntakeUseCase) Intake(ctx context.Context, req domain.IntakeRequest) (domain.IntakeResult, error) {
	company := strings.TrimSpace(req.Company)
	if company == "" {
		return domain.IntakeResult{}, domain.WrapError(domain.ErrInvalidInput, "intake", errors.New("company is required"))
	}
	if uc.locker != nil {
		release, err := uc.locker.Acquire(ctx, company)
		if err != nil {
			return domain.IntakeResult{}, domain.NewOperationError(company, "", "intake: acquire company lock", err)
		}
		defer release()
	}

	run, err := uc.startRun(ctx, company, req)
	if err != nil {
		return domain.IntakeResult{}, domain.NewOperationError(company, "", "intake: load logs", err)
	}
	logger := uc.logger.With("company", company, "run_id", run.result.RunID)

	candidates, empty := uc.plan(run, req.Messages)
	run.result.Total = len(candidates)
	if ctx.Err() != nil {
		run.result.Cancelled = true
		logger.Info("intake_cancelled", "stage", "plan")
		return run.result, nil
	}

	commit := context.WithoutCancel(ctx)
	for i, c := range candidates {
		if ctx.Err() != nil {
			run.result.Cancelled = true
			logger.Info("intake_cancelled", "stage", "process", "done", i, "total", len(candidates))
			break
		}
		var decision domain.IntakeDecision
		if c.repair != nil {
			decision = uc.repairProjection(commit, run, c.message, c.attachment, *c.repair)
		} else {
			cls := uc.classifier.Classify(ctx, c.attachment.Data, c.attachment.MimeType, c.attachment.Name)
			if ctx.Err() != nil {
				run.result.Cancelled = true
				logger.Info("intake_cancelled", "stage", "classify", "done", i, "total", len(candidates))
				break
			}
			decision = uc.processAttachment(commit, run, c.message, c.attachment, cls)
		}
		run.record(decision)
		run.result.Processed++
		uc.metrics.ObserveIntake(decision.Outcome)
		if decision.Outcome == domain.OutcomeFailed {
			run.failed[c.message.MessageID] = true
			logger.Error("intake_item_failed",
				"message_id", c.message.MessageID,
				"attachment", c.attachment.Name,
				"canonical_name", decision.CanonicalName,
				"error", decision.Error,
			)
		} else {
			logger.Info("intake_item_"+string(decision.Outcome),
				"message_id", c.message.MessageID,
				"attachment", c.attachment.Name,
				"canonical_name", decision.CanonicalName,
				"unique_id", decision.UniqueID,
				"row", decision.BufferRow,
			)
		}

		run.pending[c.message.MessageID]--
		if run.pending[c.message.MessageID] == 0 && !run.failed[c.message.MessageID] {
			uc.markProcessed(commit, run, c.message.MessageID)
		}
		if req.Progress != nil {
			req.Progress(i+1, len(candidates))
		}
	}
	if ctx.Err() != nil {
		run.result.Cancelled = true
	}
	if !run.result.Cancelled {
		for _, id := range empty {
			uc.markProcessed(commit, run, id)
		}
	}

	logger.Info("intake_finished",
		"total", run.result.Total,
		"stored", run.result.Stored,
		"duplicates", run.result.Duplicates,
		"triaged", run.result.Triaged,
		"repaired", run.result.Repaired,
		"skipped", run.result.Skipped,
		"failed", run.result.Failed,
		"cancelled", run.result.Cancelled,
	)
	return run.result, nil
}

func (uc *IntakeUseCase) startRun(ctx context.Context, company string, req domain.IntakeRequest) (*intakeRun, error) {
	records, err := uc.ledger.BufferRecords(ctx, company)
	if err != nil {
		return nil, err
	}
	logged, err := uc.ledger.LoggedAttachments(ctx, company)
	if err != nil {
		return nil, err
	}

	unprojected, err := uc.unprojected(ctx, company, records)
	if err != nil {
		return nil, err
	}

	run := &intakeRun{
		company:   company,
		known:     make(map[string]struct{}),
		logged:    logged,
		active:    make(map[string]domain.BufferRecord),
		unproject: unprojected,
		processed: make(map[string]struct{}),
		pending:   make(map[string]int),
		failed:    make(map[string]bool),
		result: domain.IntakeResult{
			RunID:     uuid.NewString(),
			Company:   company,
			Decisions: []domain.IntakeDecision{},
		},
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.UniqueID != "" {
			ids = append(ids, rec.UniqueID)
		}
		if rec.Status == domain.StatusActive && domain.IsLiveRef(rec.StorageRef) && rec.CanonicalName != "" {
			if _, seen := run.active[rec.CanonicalName]; !seen {
				run.active[rec.CanonicalName] = rec
			}
		}
	}
	run.ids = naming.NewIDAllocator(uc.idPrefix, naming.HighestID(uc.idPrefix, ids))

	for _, id := range req.AlreadyProcessedMessageIDs {
		run.known[id] = struct{}{}
	}
	for _, name := range req.AlreadyProcessedCanonicalNames {
		if name = strings.TrimSpace(name); name != "" {
			run.processed[name] = struct{}{}
		}
	}
	if uc.messages != nil {
		stored, err := uc.messages.ProcessedMessageIDs(ctx, company)
		if err != nil {
			uc.logger.Warn("message_ledger_unavailable", "company", company, "error", err)
		}
		for id := range stored {
			run.known[id] = struct{}{}
		}
	}
	return run, nil
}

// plan is the first pass. It records skip decisions and returns the
// attachments that need processing, plus the ids of unseen messages that have
// nothing left to process.
func (uc *IntakeUseCase) plan(run *intakeRun, messages []domain.MailMessage) ([]intakeCandidate, []string) {
	var candidates []intakeCandidate
	var empty []string
	for _, msg := range messages {
		if _, ok := run.known[msg.MessageID]; ok && msg.MessageID != "" {
			for _, att := range msg.Attachments {
				run.record(skipDecision(msg, att, domain.OutcomeSkippedMessage))
			}
			continue
		}
		queued := 0
		for _, att := range msg.Attachments {
			switch {
			case uc.isPlaceholder(att.Name):
				run.record(skipDecision(msg, att, domain.OutcomeSkippedPlacehold))
			case run.isLogged(msg.MessageID, att.Name):
				rec, broken := run.unproject[ledger.AttachmentKey(msg.MessageID, att.Name)]
				if !broken {
					run.record(skipDecision(msg, att, domain.OutcomeSkippedLogged))
					continue
				}
				candidates = append(candidates, intakeCandidate{message: msg, attachment: att, repair: &rec})
				queued++
			default:
				candidates = append(candidates, intakeCandidate{message: msg, attachment: att})
				queued++
			}
		}
		if queued == 0 && msg.MessageID != "" {
			empty = append(empty, msg.MessageID)
		}
		run.pending[msg.MessageID] += queued
	}
	return candidates, empty
}

func (r *intakeRun) isLogged(messageID, attachmentName string) bool {
	if messageID == "" {
		return false
	}
	_, ok := r.logged[ledger.AttachmentKey(messageID, attachmentName)]
	return ok
}

func (uc *IntakeUseCase) isPlaceholder(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	for _, re := range uc.placeholders {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func skipDecision(msg domain.MailMessage, att domain.Attachment, outcome domain.IntakeOutcome) domain.IntakeDecision {
	return domain.IntakeDecision{
		MessageID:      msg.MessageID,
		AttachmentName: att.Name,
		Outcome:        outcome,
	}
}

// processAttachment files one classified attachment. ctx must not be
// cancellable: the steps after the first write are not undone.
func (uc *IntakeUseCase) processAttachment(ctx context.Context, run *intakeRun, msg domain.MailMessage, att domain.Attachment, cls domain.Classification) domain.IntakeDecision {
	now := uc.now()
	refDate := referenceDate(cls, msg.Date, now)
	canonical := naming.Canonicalize(cls, att.Name, refDate)

	decision := domain.IntakeDecision{
		MessageID:      msg.MessageID,
		AttachmentName: att.Name,
		CanonicalName:  canonical,
		Classification: cls,
	}
	doc := domain.Document{
		OriginalName:       att.Name,
		CanonicalName:      canonical,
		SourceMessageID:    msg.MessageID,
		SourceAttachmentID: att.ID,
		MimeType:           att.MimeType,
		Classification:     cls,
		CompanyName:        run.company,
		FinancialYear:      domain.FinancialYear(refDate),
		Month:              domain.MonthName(refDate),
		ReferenceDate:      refDate,
	}

	var err error
	switch {
	case !cls.InvoiceStatus.IsFlow():
		err = uc.triage(ctx, run, &doc, att.Data, &decision)
	default:
		if original, ok := run.active[canonical]; ok {
			err = uc.duplicate(ctx, run, doc, &original, &decision)
		} else if _, ok := run.processed[canonical]; ok {
			err = uc.duplicate(ctx, run, doc, nil, &decision)
		} else {
			err = uc.storeActive(ctx, run, &doc, att.Data, &decision)
		}
	}
	if err != nil {
		decision.Outcome = domain.OutcomeFailed
		decision.Error = err.Error()
	}
	run.logged[ledger.AttachmentKey(msg.MessageID, att.Name)] = struct{}{}
	return decision
}

func (uc *IntakeUseCase) triage(ctx context.Context, run *intakeRun, doc *domain.Document, data []byte, decision *domain.IntakeDecision) error {
	folder, err := uc.router.Resolve(ctx, run.company, doc.ReferenceDate, domain.FolderBuffer2)
	if err != nil {
		return err
	}
	file, err := uc.files.CreateFile(ctx, folder, doc.CanonicalName, data)
	if err != nil {
		return domain.NewOperationError(run.company, doc.CanonicalName, "store triage file", err)
	}

	rec := domain.TriageRecord{
		MessageID:      doc.SourceMessageID,
		AttachmentName: doc.OriginalName,
		CanonicalName:  doc.CanonicalName,
		FileName:       file.Name,
		StorageRef:     file.ID,
		Relevance:      domain.RelevancePending,
		Reason:         "low confidence: " + string(doc.Classification.InvoiceStatus),
		Classification: doc.Classification,
		FinancialYear:  doc.FinancialYear,
		Month:          doc.Month,
		ReferenceDate:  doc.ReferenceDate.Format(domain.DateLayout),
		LoggedAt:       uc.now(),
	}
	if err := uc.ledger.AppendTriage(ctx, run.company, &rec); err != nil {
		if trashErr := uc.files.Trash(ctx, file); trashErr != nil {
			uc.logger.Error("triage_file_orphaned", "company", run.company, "storage_ref", file.ID, "error", trashErr)
		}
		return domain.NewOperationError(run.company, file.Name, "append buffer2 row", err)
	}

	decision.Outcome = domain.OutcomeTriaged
	decision.StorageRef = file.ID
	decision.BufferRow = rec.Row
	return nil
}

// duplicate logs a repeated intake of an active canonical name without
// storing the file again. original is nil when the name is only known from
// the caller-supplied processed set.
func (uc *IntakeUseCase) duplicate(ctx context.Context, run *intakeRun, doc domain.Document, original *domain.BufferRecord, decision *domain.IntakeDecision) error {
	rec := domain.BufferRecord{
		MessageID:      doc.SourceMessageID,
		AttachmentName: doc.OriginalName,
		CanonicalName:  doc.CanonicalName,
		StorageRef:     domain.RefDeleted,
		Status:         domain.StatusDelete,
		Reason:         "duplicate of previously processed document",
		Classification: doc.Classification,
		FinancialYear:  doc.FinancialYear,
		Month:          doc.Month,
		ReferenceDate:  doc.ReferenceDate.Format(domain.DateLayout),
		LoggedAt:       uc.now(),
	}
	if original != nil {
		rec.RepeatedRef = original.Row
		rec.Reason = fmt.Sprintf("duplicate of row %d (%s)", original.Row, original.UniqueID)
	}
	if err := uc.ledger.AppendBuffer(ctx, run.company, &rec); err != nil {
		return domain.NewOperationError(run.company, doc.CanonicalName, "append duplicate buffer row", err)
	}
	if err := uc.ledger.HighlightBuffer(ctx, run.company, rec.Row); err != nil {
		uc.logger.Warn("duplicate_highlight_failed", "company", run.company, "row", rec.Row, "error", err)
	}
	if original != nil && original.RepeatedRef == 0 {
		original.RepeatedRef = rec.Row
		if err := uc.ledger.UpdateBuffer(ctx, run.company, *original); err != nil {
			uc.logger.Warn("duplicate_backref_failed", "company", run.company, "row", original.Row, "error", err)
		} else {
			run.active[original.CanonicalName] = *original
		}
	}

	decision.Outcome = domain.OutcomeDuplicate
	decision.BufferRow = rec.Row
	decision.RepeatedRef = rec.RepeatedRef
	decision.StorageRef = rec.StorageRef
	return nil
}

// storeActive creates the buffer file and its flow copy, then appends the
// buffer, main and flow rows. A failure before any row is written removes
// the files again.
func (uc *IntakeUseCase) storeActive(ctx context.Context, run *intakeRun, doc *domain.Document, data []byte, decision *domain.IntakeDecision) error {
	flowFolderKind, _ := domain.FlowFolderFor(doc.Classification.InvoiceStatus)
	flowLog, _ := domain.FlowLogFor(doc.Classification.InvoiceStatus)

	activeFolder, err := uc.router.Resolve(ctx, run.company, doc.ReferenceDate, domain.FolderBufferActive)
	if err != nil {
		return err
	}
	flowFolder, err := uc.router.Resolve(ctx, run.company, doc.ReferenceDate, flowFolderKind)
	if err != nil {
		return err
	}

	file, err := uc.files.CreateFile(ctx, activeFolder, doc.CanonicalName, data)
	if err != nil {
		return domain.NewOperationError(run.company, doc.CanonicalName, "store buffer file", err)
	}
	flowCopy, err := uc.files.CopyFile(ctx, file, flowFolder, file.Name)
	if err != nil {
		uc.discard(ctx, run.company, file)
		return domain.NewOperationError(run.company, doc.CanonicalName, "copy to "+string(flowFolderKind), err)
	}

	uniqueID, err := uc.uniqueID(ctx, run, file.ID, doc.CanonicalName)
	if err != nil {
		uc.discard(ctx, run.company, file, flowCopy)
		return domain.NewOperationError(run.company, doc.CanonicalName, "lookup unique id", err)
	}
	doc.UniqueID = uniqueID
	doc.StorageRef = file.ID
	doc.Status = domain.StatusActive

	rec := domain.BufferRecord{
		UniqueID:       uniqueID,
		MessageID:      doc.SourceMessageID,
		AttachmentName: doc.OriginalName,
		CanonicalName:  doc.CanonicalName,
		FileName:       file.Name,
		StorageRef:     file.ID,
		Status:         domain.StatusActive,
		Reason:         "stored by intake",
		Classification: doc.Classification,
		FinancialYear:  doc.FinancialYear,
		Month:          doc.Month,
		ReferenceDate:  doc.ReferenceDate.Format(domain.DateLayout),
		LoggedAt:       uc.now(),
	}
	if err := uc.ledger.AppendBuffer(ctx, run.company, &rec); err != nil {
		uc.discard(ctx, run.company, file, flowCopy)
		return domain.NewOperationError(run.company, file.Name, "append buffer row", err)
	}
	run.active[rec.CanonicalName] = rec

	decision.Outcome = domain.OutcomeStored
	decision.UniqueID = uniqueID
	decision.StorageRef = file.ID
	decision.BufferRow = rec.Row

	mainRow := flowRow(rec, file.ID, uc.now())
	if err := uc.ledger.AppendFlow(ctx, run.company, domain.LogMain, &mainRow); err != nil {
		return domain.NewOperationError(run.company, file.Name, "append main row", domain.WrapError(domain.ErrConsistency, "intake", err))
	}
	flow := flowRow(rec, flowCopy.ID, uc.now())
	if err := uc.ledger.AppendFlow(ctx, run.company, flowLog, &flow); err != nil {
		return domain.NewOperationError(run.company, file.Name, "append "+string(flowLog)+" row", domain.WrapError(domain.ErrConsistency, "intake", err))
	}
	return nil
}

// unprojected returns the active buffer rows, keyed by attachment, that lack
// their main row or, for flow documents, their inflow/outflow row.
func (uc *IntakeUseCase) unprojected(ctx context.Context, company string, records []domain.BufferRecord) (map[string]domain.BufferRecord, error) {
	out := make(map[string]domain.BufferRecord)
	projections := make(map[domain.LogKind][]domain.FlowLogRow, len(projectionLogs))
	for _, kind := range projectionLogs {
		rows, err := uc.ledger.FlowRows(ctx, company, kind)
		if err != nil {
			return nil, err
		}
		projections[kind] = rows
	}
	for _, rec := range records {
		if rec.Status != domain.StatusActive || !domain.IsLiveRef(rec.StorageRef) || rec.MessageID == "" {
			continue
		}
		missing := !projectedIn(projections[domain.LogMain], rec)
		if flowLog, ok := domain.FlowLogFor(rec.Classification.InvoiceStatus); ok && !projectedIn(projections[flowLog], rec) {
			missing = true
		}
		if missing {
			out[ledger.AttachmentKey(rec.MessageID, rec.AttachmentName)] = rec
		}
	}
	return out, nil
}

func projectedIn(rows []domain.FlowLogRow, rec domain.BufferRecord) bool {
	for _, row := range rows {
		if sameDocument(row, rec) {
			return true
		}
	}
	return false
}

// repairProjection writes the main and flow rows, and the flow copy, that an
// earlier run stored the buffer file for but never recorded.
func (uc *IntakeUseCase) repairProjection(ctx context.Context, run *intakeRun, msg domain.MailMessage, att domain.Attachment, rec domain.BufferRecord) domain.IntakeDecision {
	decision := domain.IntakeDecision{
		MessageID:      msg.MessageID,
		AttachmentName: att.Name,
		CanonicalName:  rec.CanonicalName,
		UniqueID:       rec.UniqueID,
		StorageRef:     rec.StorageRef,
		BufferRow:      rec.Row,
		Classification: rec.Classification,
		Outcome:        domain.OutcomeRepaired,
	}
	fail := func(step string, err error) domain.IntakeDecision {
		decision.Outcome = domain.OutcomeFailed
		decision.Error = domain.NewOperationError(run.company, rec.CanonicalName, step, err).Error()
		return decision
	}

	file, err := uc.files.Stat(ctx, rec.StorageRef)
	if err != nil {
		return fail("stat buffer file", err)
	}
	mainRows, err := uc.ledger.FlowRows(ctx, run.company, domain.LogMain)
	if err != nil {
		return fail("read main log", err)
	}
	if !projectedIn(mainRows, rec) {
		row := flowRow(rec, file.ID, uc.now())
		if err := uc.ledger.AppendFlow(ctx, run.company, domain.LogMain, &row); err != nil {
			return fail("append main row", err)
		}
	}

	flowLog, isFlow := domain.FlowLogFor(rec.Classification.InvoiceStatus)
	if !isFlow {
		return decision
	}
	flows, err := uc.ledger.FlowRows(ctx, run.company, flowLog)
	if err != nil {
		return fail("read "+string(flowLog)+" log", err)
	}
	if projectedIn(flows, rec) {
		return decision
	}
	kind, _ := domain.FlowFolderFor(rec.Classification.InvoiceStatus)
	folder, err := uc.router.ResolveIn(ctx, run.company, rec.FinancialYear, rec.Month, kind)
	if err != nil {
		return fail("resolve "+string(kind)+" folder", err)
	}
	existing, err := uc.files.FindByName(ctx, folder, file.Name)
	if err != nil {
		return fail("find "+string(kind)+" copy", err)
	}
	var copied domain.StoredFile
	if len(existing) > 0 {
		copied = existing[0]
	} else if copied, err = uc.files.CopyFile(ctx, file, folder, file.Name); err != nil {
		return fail("copy to "+string(kind), err)
	}
	row := flowRow(rec, copied.ID, uc.now())
	if err := uc.ledger.AppendFlow(ctx, run.company, flowLog, &row); err != nil {
		return fail("append "+string(flowLog)+" row", err)
	}
	return decision
}

// uniqueID reads the buffer log before minting, so an id that already
// belongs to the document is reused.
func (uc *IntakeUseCase) uniqueID(ctx context.Context, run *intakeRun, storageRef, canonicalName string) (string, error) {
	id, found, err := uc.ledger.LookupUniqueID(ctx, run.company, storageRef, canonicalName)
	if err != nil {
		return "", err
	}
	if found {
		run.ids.Remember(storageRef, id)
		return id, nil
	}
	return run.ids.Assign(storageRef), nil
}

func (uc *IntakeUseCase) discard(ctx context.Context, company string, files ...domain.StoredFile) {
	for _, f := range files {
		if err := uc.files.Trash(ctx, f); err != nil {
			uc.logger.Error("intake_file_orphaned", "company", company, "storage_ref", f.ID, "error", err)
		}
	}
}

func (uc *IntakeUseCase) markProcessed(ctx context.Context, run *intakeRun, messageID string) {
	if uc.messages == nil || messageID == "" {
		return
	}
	if err := uc.messages.MarkProcessed(ctx, run.company, messageID, uc.now()); err != nil {
		uc.logger.Warn("message_mark_failed", "company", run.company, "message_id", messageID, "error", err)
	}
}

func flowRow(rec domain.BufferRecord, storageRef string, at time.Time) domain.FlowLogRow {
	return domain.FlowLogRow{
		UniqueID:       rec.UniqueID,
		CanonicalName:  rec.CanonicalName,
		StorageRef:     storageRef,
		MessageID:      rec.MessageID,
		Classification: rec.Classification,
		FinancialYear:  rec.FinancialYear,
		Month:          rec.Month,
		LoggedAt:       at,
	}
}

// referenceDate picks the date a document is filed under: the classified
// document date, else the message date, else now.
func referenceDate(cls domain.Classification, messageDate, now time.Time) time.Time {
	if t, ok := domain.ParseDocumentDate(cls.Date); ok {
		return t
	}
	if !messageDate.IsZero() {
		return messageDate.UTC()
	}
	return now
}
