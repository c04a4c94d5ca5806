package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/naming"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

var defaultRecoveryLocations = []domain.FolderKind{
	domain.FolderBufferActive,
	domain.FolderBufferDeleted,
	domain.FolderInflow,
	domain.FolderOutflow,
}

// RecoveryQuery describes a document whose stored reference may be stale.
type RecoveryQuery struct {
	Company       string
	CanonicalName string
	// FileName is the last physical name, which may carry a collision
	// suffix. It is searched before CanonicalName.
	FileName      string
	LastKnownRef  string
	FinancialYear string
	Month         string
	// Locations limits and orders the folders searched by name. Empty means
	// Active, Deleted, Inflow, Outflow.
	Locations []domain.FolderKind
	// Hints are lower-case tokens a pattern match must contain one of,
	// typically vendor and invoice number.
	Hints []string
}

// Recovered is the first physical file found for a RecoveryQuery.
type Recovered struct {
	File          domain.StoredFile
	Location      domain.LocationKind
	FinancialYear string
	NameMismatch  bool
}

// RecoveryResolver re-establishes a document's storage reference by searching
// a bounded set of plausible locations.
type RecoveryResolver struct {
	files  ports.FileStore
	router *FolderRouter
}

func NewRecoveryResolver(files ports.FileStore, router *FolderRouter) *RecoveryResolver {
	return &RecoveryResolver{files: files, router: router}
}

// Resolve returns the first match. Found is false when every location was
// exhausted; callers treat that as a hard failure.
func (r *RecoveryResolver) Resolve(ctx context.Context, q RecoveryQuery) (Recovered, bool, error) {
	if domain.IsLiveRef(q.LastKnownRef) {
		file, err := r.files.Stat(ctx, q.LastKnownRef)
		switch {
		case err == nil:
			loc, fy := r.locate(ctx, q, file.Folder)
			return Recovered{
				File:          file,
				Location:      loc,
				FinancialYear: fy,
				NameMismatch:  q.CanonicalName != "" && !q.knownName(file.Name),
			}, true, nil
		case domain.IsKind(err, domain.ErrDocumentNotFound):
		default:
			return Recovered{}, false, fmt.Errorf("stat last known reference %q: %w", q.LastKnownRef, err)
		}
	}
	if q.CanonicalName == "" {
		return Recovered{}, false, nil
	}

	found, ok, err := r.search(ctx, q, func(folder domain.FolderRef) ([]domain.StoredFile, error) {
		if q.FileName != "" && q.FileName != q.CanonicalName {
			files, err := r.files.FindByName(ctx, folder, q.FileName)
			if err != nil || len(files) > 0 {
				return files, err
			}
		}
		return r.files.FindByName(ctx, folder, q.CanonicalName)
	})
	if err != nil || ok {
		return found, ok, err
	}
	if !naming.LooksOriginal(q.CanonicalName) {
		return Recovered{}, false, nil
	}

	ext := strings.ToLower(path.Ext(q.CanonicalName))
	hints := q.Hints
	found, ok, err = r.search(ctx, q, func(folder domain.FolderRef) ([]domain.StoredFile, error) {
		files, err := r.files.ListFiles(ctx, folder)
		if err != nil {
			return nil, err
		}
		var out []domain.StoredFile
		for _, f := range files {
			if matchesCanonicalShape(f.Name, ext, hints) {
				out = append(out, f)
			}
		}
		return out, nil
	})
	if ok {
		found.NameMismatch = true
	}
	return found, ok, err
}

func (q RecoveryQuery) knownName(name string) bool {
	return name == q.CanonicalName || (q.FileName != "" && name == q.FileName)
}

func (r *RecoveryResolver) search(ctx context.Context, q RecoveryQuery, match func(domain.FolderRef) ([]domain.StoredFile, error)) (Recovered, bool, error) {
	years := domain.AdjacentFinancialYears(q.FinancialYear)
	for _, kind := range r.locations(q) {
		for _, fy := range years {
			if err := ctx.Err(); err != nil {
				return Recovered{}, false, err
			}
			month := q.Month
			if month == "" && (kind == domain.FolderInflow || kind == domain.FolderOutflow) {
				continue
			}
			folder, exists, err := r.router.Lookup(ctx, q.Company, fy, month, kind)
			if err != nil {
				return Recovered{}, false, fmt.Errorf("lookup %s folder for %s: %w", kind, fy, err)
			}
			if !exists {
				continue
			}
			files, err := match(folder)
			if err != nil {
				return Recovered{}, false, fmt.Errorf("search %s folder for %s: %w", kind, fy, err)
			}
			if len(files) > 0 {
				return Recovered{
					File:          files[0],
					Location:      domain.LocationOf(kind),
					FinancialYear: fy,
					NameMismatch:  !q.knownName(files[0].Name),
				}, true, nil
			}
		}
	}
	return Recovered{}, false, nil
}

// locate names the hierarchy node holding folder, or LocationLastKnown when
// it is none of the searched ones.
func (r *RecoveryResolver) locate(ctx context.Context, q RecoveryQuery, folder domain.FolderRef) (domain.LocationKind, string) {
	kinds := append([]domain.FolderKind{domain.FolderBuffer2}, r.locations(q)...)
	for _, fy := range domain.AdjacentFinancialYears(q.FinancialYear) {
		for _, kind := range kinds {
			ref, exists, err := r.router.Lookup(ctx, q.Company, fy, q.Month, kind)
			if err != nil || !exists {
				continue
			}
			if ref == folder {
				return domain.LocationOf(kind), fy
			}
		}
	}
	return domain.LocationLastKnown, q.FinancialYear
}

func (r *RecoveryResolver) locations(q RecoveryQuery) []domain.FolderKind {
	if len(q.Locations) > 0 {
		return q.Locations
	}
	return defaultRecoveryLocations
}

func matchesCanonicalShape(name, ext string, hints []string) bool {
	if !naming.LooksCanonical(name) {
		return false
	}
	if ext != "" && strings.ToLower(path.Ext(name)) != ext {
		return false
	}
	if len(hints) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, h := range hints {
		if h != "" && strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}
