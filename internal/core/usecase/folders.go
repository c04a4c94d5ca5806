package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

const (
	folderAccruals = "Accruals"
	folderBuffer   = "Buffer"
	folderActive   = "Active"
	folderDeleted  = "Deleted"
	folderBuffer2  = "Buffer2"
	folderBills    = "BillsAndInvoices"
	folderInflow   = "Inflow"
	folderOutflow  = "Outflow"
)

// FolderRouter resolves the storage folder of a document:
//
//	Company / FinancialYear / Accruals / Buffer / {Active, Deleted}
//	                                   / Buffer2
//	                                   / BillsAndInvoices / Month / {Inflow, Outflow}
//
// Folder handles are cached per path. The cache only saves lookups; Invalidate
// drops it when the store reports a cached folder as gone.
type FolderRouter struct {
	files ports.FileStore

	mu    sync.Mutex
	cache map[string]domain.FolderRef
}

func NewFolderRouter(files ports.FileStore) *FolderRouter {
	return &FolderRouter{
		files: files,
		cache: make(map[string]domain.FolderRef),
	}
}

// Resolve returns, creating it if needed, the folder of kind for a document
// dated ref.
func (r *FolderRouter) Resolve(ctx context.Context, company string, ref time.Time, kind domain.FolderKind) (domain.FolderRef, error) {
	return r.ResolveIn(ctx, company, domain.FinancialYear(ref), domain.MonthName(ref), kind)
}

// ResolveIn is Resolve for an explicit financial year and month.
func (r *FolderRouter) ResolveIn(ctx context.Context, company, financialYear, month string, kind domain.FolderKind) (domain.FolderRef, error) {
	segments, err := folderPath(company, financialYear, month, kind)
	if err != nil {
		return "", err
	}
	folder, _, err := r.walk(ctx, segments, true)
	if err != nil {
		return "", domain.NewOperationError(company, "", "resolve folder "+strings.Join(segments, "/"), err)
	}
	return folder, nil
}

// Lookup is ResolveIn without creating missing folders.
func (r *FolderRouter) Lookup(ctx context.Context, company, financialYear, month string, kind domain.FolderKind) (domain.FolderRef, bool, error) {
	segments, err := folderPath(company, financialYear, month, kind)
	if err != nil {
		return "", false, err
	}
	return r.walk(ctx, segments, false)
}

// Invalidate forgets every cached folder handle.
func (r *FolderRouter) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]domain.FolderRef)
}

func (r *FolderRouter) walk(ctx context.Context, segments []string, create bool) (domain.FolderRef, bool, error) {
	parent, err := r.files.Root(ctx)
	if err != nil {
		return "", false, fmt.Errorf("open root folder: %w", err)
	}
	for i, name := range segments {
		key := strings.Join(segments[:i+1], "/")
		if cached, ok := r.cached(key); ok {
			parent = cached
			continue
		}

		var next domain.FolderRef
		if create {
			next, err = r.files.GetOrCreateFolder(ctx, parent, name)
			if err != nil {
				return "", false, fmt.Errorf("get or create folder %q: %w", key, err)
			}
		} else {
			var found bool
			next, found, err = r.files.FindFolder(ctx, parent, name)
			if err != nil {
				return "", false, fmt.Errorf("find folder %q: %w", key, err)
			}
			if !found {
				return "", false, nil
			}
		}
		r.remember(key, next)
		parent = next
	}
	return parent, true, nil
}

func (r *FolderRouter) cached(key string) (domain.FolderRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.cache[key]
	return ref, ok
}

func (r *FolderRouter) remember(key string, ref domain.FolderRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = ref
}

func folderPath(company, financialYear, month string, kind domain.FolderKind) ([]string, error) {
	company = folderName(company)
	if company == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve folder", fmt.Errorf("company is required"))
	}
	if financialYear == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve folder", fmt.Errorf("financial year is required"))
	}
	base := []string{company, financialYear, folderAccruals}
	switch kind {
	case domain.FolderBufferActive:
		return append(base, folderBuffer, folderActive), nil
	case domain.FolderBufferDeleted:
		return append(base, folderBuffer, folderDeleted), nil
	case domain.FolderBuffer2:
		return append(base, folderBuffer2), nil
	case domain.FolderInflow, domain.FolderOutflow:
		if month == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "resolve folder", fmt.Errorf("month is required for %s", kind))
		}
		leaf := folderInflow
		if kind == domain.FolderOutflow {
			leaf = folderOutflow
		}
		return append(base, folderBills, month, leaf), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve folder", fmt.Errorf("unknown folder kind %q", kind))
	}
}

func folderName(raw string) string {
	return strings.TrimSpace(strings.NewReplacer("/", "-", `\`, "-").Replace(raw))
}
