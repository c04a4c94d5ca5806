package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

const trashDir = ".trash"

// Storage is a FileStore over a local directory tree. Folder refs and file ids
// are slash-separated paths relative to the base directory; the root folder is
// the empty ref.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(filepath.Join(basePath, trashDir), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Root(context.Context) (domain.FolderRef, error) {
	return "", nil
}

func (s *Storage) GetOrCreateFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.requireFolder(parent, "get or create folder"); err != nil {
		return "", err
	}
	ref, err := child(parent, name)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(s.abs(string(ref)), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("create folder %s: %w", ref, err)
	}
	return ref, nil
}

func (s *Storage) FindFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	ref, err := child(parent, name)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(s.abs(string(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("stat folder %s: %w", ref, err)
	}
	return ref, info.IsDir(), nil
}

func (s *Storage) CreateFile(ctx context.Context, folder domain.FolderRef, name string, data []byte) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	if err := s.requireFolder(folder, "create file"); err != nil {
		return domain.StoredFile{}, err
	}
	f, id, err := s.createUnique(folder, name)
	if err != nil {
		return domain.StoredFile{}, err
	}
	defer f.Close()

	written, err := f.Write(data)
	if err != nil {
		_ = os.Remove(s.abs(id))
		return domain.StoredFile{}, fmt.Errorf("write file %s: %w", id, err)
	}
	return stored(id, int64(written)), nil
}

func (s *Storage) MoveFile(ctx context.Context, file domain.StoredFile, to domain.FolderRef) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	current, err := s.Stat(ctx, file.ID)
	if err != nil {
		return domain.StoredFile{}, err
	}
	if err := s.requireFolder(to, "move file"); err != nil {
		return domain.StoredFile{}, err
	}
	if current.Folder == to {
		return current, nil
	}
	target, id, err := s.createUnique(to, current.Name)
	if err != nil {
		return domain.StoredFile{}, err
	}
	_ = target.Close()
	if err := os.Rename(s.abs(current.ID), s.abs(id)); err != nil {
		_ = os.Remove(s.abs(id))
		return domain.StoredFile{}, fmt.Errorf("move %s to %s: %w", current.ID, to, err)
	}
	return stored(id, current.Size), nil
}

func (s *Storage) CopyFile(ctx context.Context, file domain.StoredFile, to domain.FolderRef, newName string) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	src, err := os.Open(s.abs(file.ID))
	if errors.Is(err, os.ErrNotExist) {
		return domain.StoredFile{}, domain.WrapError(domain.ErrDocumentNotFound, "copy file", errors.New(file.ID))
	}
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("open %s: %w", file.ID, err)
	}
	defer src.Close()

	if err := s.requireFolder(to, "copy file"); err != nil {
		return domain.StoredFile{}, err
	}
	if newName == "" {
		newName = path.Base(file.ID)
	}
	dst, id, err := s.createUnique(to, newName)
	if err != nil {
		return domain.StoredFile{}, err
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		_ = os.Remove(s.abs(id))
		return domain.StoredFile{}, fmt.Errorf("copy %s to %s: %w", file.ID, id, err)
	}
	return stored(id, written), nil
}

// Trash moves the file into the hidden trash directory under a unique name.
func (s *Storage) Trash(ctx context.Context, file domain.StoredFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.Stat(ctx, file.ID); err != nil {
		return err
	}
	target := path.Join(trashDir, uuid.NewString()+"-"+path.Base(file.ID))
	if err := os.Rename(s.abs(file.ID), s.abs(target)); err != nil {
		return fmt.Errorf("trash %s: %w", file.ID, err)
	}
	return nil
}

func (s *Storage) FindByName(ctx context.Context, folder domain.FolderRef, name string) ([]domain.StoredFile, error) {
	files, err := s.ListFiles(ctx, folder)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoredFile, 0, 1)
	for _, file := range files {
		if file.Name == name {
			out = append(out, file)
		}
	}
	return out, nil
}

func (s *Storage) ListFiles(ctx context.Context, folder domain.FolderRef) ([]domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.abs(string(folder)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrFolderMissing, "list files", errors.New(string(folder)))
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	out := make([]domain.StoredFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, stored(path.Join(string(folder), entry.Name()), info.Size()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Storage) Stat(ctx context.Context, ref string) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, err
	}
	id, ok := cleanRef(ref)
	if !ok {
		return domain.StoredFile{}, domain.WrapError(domain.ErrDocumentNotFound, "stat", fmt.Errorf("invalid ref %q", ref))
	}
	info, err := os.Stat(s.abs(id))
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return domain.StoredFile{}, domain.WrapError(domain.ErrDocumentNotFound, "stat", errors.New(id))
	}
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("stat %s: %w", id, err)
	}
	return stored(id, info.Size()), nil
}

func (s *Storage) Read(ctx context.Context, file domain.StoredFile) ([]byte, error) {
	current, err := s.Stat(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.abs(current.ID))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", current.ID, err)
	}
	return data, nil
}

// createUnique creates name inside folder, appending " (2)", " (3)"... when
// the name is taken.
func (s *Storage) createUnique(folder domain.FolderRef, name string) (*os.File, string, error) {
	if _, err := child(folder, name); err != nil {
		return nil, "", err
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	final := name
	for i := 2; ; i++ {
		id := path.Join(string(folder), final)
		f, err := os.OpenFile(s.abs(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, id, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", id, err)
		}
		final = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
}

func (s *Storage) requireFolder(folder domain.FolderRef, operation string) error {
	info, err := os.Stat(s.abs(string(folder)))
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return domain.WrapError(domain.ErrFolderMissing, operation, errors.New(string(folder)))
	}
	if err != nil {
		return fmt.Errorf("%s: stat %s: %w", operation, folder, err)
	}
	return nil
}

func (s *Storage) abs(ref string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(ref))
}

func child(parent domain.FolderRef, name string) (domain.FolderRef, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", domain.WrapError(domain.ErrInvalidInput, "name entry", fmt.Errorf("invalid name %q", name))
	}
	return domain.FolderRef(path.Join(string(parent), name)), nil
}

func cleanRef(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	cleaned := path.Clean(strings.ReplaceAll(ref, `\`, "/"))
	if cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." || path.IsAbs(cleaned) {
		return "", false
	}
	if strings.HasPrefix(cleaned, trashDir+"/") {
		return "", false
	}
	return cleaned, true
}

func stored(id string, size int64) domain.StoredFile {
	folder := path.Dir(id)
	if folder == "." {
		folder = ""
	}
	return domain.StoredFile{
		ID:     id,
		Name:   path.Base(id),
		Folder: domain.FolderRef(folder),
		Size:   size,
	}
}
