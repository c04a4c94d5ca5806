package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ledger"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

const defaultSheet = "Sheet1"

var sheetNames = map[domain.LogKind]string{
	domain.LogBuffer:  "Buffer",
	domain.LogBuffer2: "Buffer2",
	domain.LogMain:    "Main",
	domain.LogInflow:  "Inflow",
	domain.LogOutflow: "Outflow",
}

var sheetOrder = []domain.LogKind{domain.LogBuffer, domain.LogBuffer2, domain.LogMain, domain.LogInflow, domain.LogOutflow}

// Store keeps one workbook per company with a sheet per log kind. Data row N
// lives on sheet row N+1 below the header.
type Store struct {
	dir string

	mu sync.Mutex
	// styles holds the highlight style id of each workbook written by this
	// store, keyed by workbook path.
	styles map[string]int
}

var highlightFill = excelize.Style{
	Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFFF00"}},
}

func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./data/logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &Store{dir: dir, styles: make(map[string]int)}, nil
}

func (s *Store) Append(ctx context.Context, table domain.TableRef, cells []string) (int, error) {
	var number int
	err := s.withSheet(ctx, table, true, func(f *excelize.File, sheet string) error {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		next := len(rows) + 1
		if err := writeRow(f, sheet, next, cells); err != nil {
			return err
		}
		number = next - 1
		return nil
	})
	return number, err
}

func (s *Store) Find(ctx context.Context, table domain.TableRef, match ports.RowPredicate) ([]ports.Row, error) {
	rows, err := s.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]ports.Row, 0)
	for _, row := range rows {
		if match(row.Cells) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, table domain.TableRef, match ports.RowPredicate) (int, error) {
	removed := 0
	err := s.withSheet(ctx, table, true, func(f *excelize.File, sheet string) error {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		// Bottom-up so earlier sheet rows keep their positions.
		for i := len(rows) - 1; i >= 1; i-- {
			if !match(rows[i]) {
				continue
			}
			if err := f.RemoveRow(sheet, i+1); err != nil {
				return fmt.Errorf("remove row %d: %w", i, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Store) ReadAll(ctx context.Context, table domain.TableRef) ([]ports.Row, error) {
	var out []ports.Row
	err := s.withSheet(ctx, table, false, func(f *excelize.File, sheet string) error {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		out = make([]ports.Row, 0, len(rows))
		for i := 1; i < len(rows); i++ {
			out = append(out, ports.Row{Number: i, Cells: rows[i]})
		}
		return nil
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, table domain.TableRef, number int, cells []string) error {
	return s.withSheet(ctx, table, true, func(f *excelize.File, sheet string) error {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		if number < 1 || number >= len(rows) {
			return domain.WrapError(domain.ErrDocumentNotFound, "update row", fmt.Errorf("%s row %d", table.Kind, number))
		}
		if extra := len(rows[number]) - len(cells); extra > 0 {
			cells = append(cells, make([]string, extra)...)
		}
		return writeRow(f, sheet, number+1, cells)
	})
}

// Highlight fills a data row yellow for human review.
func (s *Store) Highlight(ctx context.Context, table domain.TableRef, number int) error {
	return s.withSheet(ctx, table, true, func(f *excelize.File, sheet string) error {
		path := s.workbookPath(table.Company)
		style, err := s.highlightStyle(f, path)
		if err != nil {
			return err
		}
		first, err := excelize.CoordinatesToCellName(1, number+1)
		if err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(ledger.Headers(table.Kind)), number+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, first, last, style); err != nil {
			delete(s.styles, path)
			return fmt.Errorf("highlight row %d: %w", number, err)
		}
		return nil
	})
}

// highlightStyle returns the workbook's highlight style, adding it on first
// use. Callers hold s.mu.
func (s *Store) highlightStyle(f *excelize.File, path string) (int, error) {
	if id, ok := s.styles[path]; ok {
		return id, nil
	}
	id, err := f.NewStyle(&highlightFill)
	if err != nil {
		return 0, fmt.Errorf("create highlight style: %w", err)
	}
	s.styles[path] = id
	return id, nil
}

// withSheet opens the company workbook, creating it with every log sheet when
// missing, and saves it afterwards when save is set.
func (s *Store) withSheet(ctx context.Context, table domain.TableRef, save bool, fn func(*excelize.File, string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sheet, ok := sheetNames[table.Kind]
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "open log", fmt.Errorf("unknown log kind %q", table.Kind))
	}
	if strings.TrimSpace(table.Company) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "open log", errors.New("company is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.workbookPath(table.Company)
	f, created, err := openOrCreate(path)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "open workbook", err)
	}
	defer f.Close()
	if created {
		delete(s.styles, path)
	}

	if err := fn(f, sheet); err != nil {
		return err
	}
	if !save && !created {
		return nil
	}
	if err := f.SaveAs(path); err != nil {
		return domain.WrapError(domain.ErrTemporary, "save workbook", err)
	}
	return nil
}

func (s *Store) workbookPath(company string) string {
	name := strings.NewReplacer("/", "-", "\\", "-").Replace(strings.TrimSpace(company))
	return filepath.Join(s.dir, name+".xlsx")
}

func openOrCreate(path string) (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}

	f = excelize.NewFile()
	for _, kind := range sheetOrder {
		name := sheetNames[kind]
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, false, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeRow(f, name, 1, ledger.Headers(kind)); err != nil {
			_ = f.Close()
			return nil, false, err
		}
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("drop default sheet: %w", err)
	}
	return f, true, nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := append([]string(nil), cells...)
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
