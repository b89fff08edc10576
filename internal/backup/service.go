package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

// Archive entry layout. The database always lands under database/ and
// the two file trees keep their directory names.
const (
	archiveDBDir     = "database"
	archiveDBName    = "laboratory.db"
	archiveUploads   = "uploads"
	archiveShared    = "shared_files"
	backupNamePrefix = "samplyze_backup_"
)

// Paths bundles the filesystem locations a backup covers.
type Paths struct {
	DBPath    string
	UploadDir string
	SharedDir string
	BackupDir string
}

// Service builds and restores full-installation snapshots. mu keeps
// restores single-shot: a restore swaps the store file and both file
// trees, so nothing else may read or replace them mid-swap.
type Service struct {
	logger *slog.Logger
	handle *db.Handle
	paths  Paths
	clock  *shared.Clock
	group  singleflight.Group
	mu     sync.Mutex
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, handle *db.Handle, paths Paths, clock *shared.Clock) *Service {
	return &Service{logger: logger, handle: handle, paths: paths, clock: clock}
}

// Create writes a snapshot zip into the backup directory and returns
// its path. Concurrent calls share a single build.
func (s *Service) Create(ctx context.Context) (string, error) {
	path, err, _ := s.group.Do("create", func() (any, error) {
		return s.create(ctx)
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

func (s *Service) create(ctx context.Context) (string, error) {
	// A snapshot must not read the store while a restore is swapping it.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.paths.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("backup: create backup dir: %w", err)
	}

	name := backupNamePrefix + s.clock.Stamp(s.clock.Now()) + ".zip"
	target := filepath.Join(s.paths.BackupDir, name)

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("backup: create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	if err := s.writeDatabase(ctx, zw); err != nil {
		zw.Close()
		os.Remove(target)
		return "", err
	}
	for _, dir := range []struct{ src, prefix string }{
		{s.paths.UploadDir, archiveUploads},
		{s.paths.SharedDir, archiveShared},
	} {
		if err := addTree(zw, dir.src, dir.prefix); err != nil {
			zw.Close()
			os.Remove(target)
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("backup: finalize archive: %w", err)
	}
	s.logger.Info("backup created", slog.String("path", target))
	return target, nil
}

// writeDatabase copies the live database file into the archive. SQLite
// keeps the file consistent for readers, so a plain copy suffices with
// the write lock held.
func (s *Service) writeDatabase(ctx context.Context, zw *zip.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(s.handle.Path())
	if err != nil {
		return fmt.Errorf("backup: open database: %w", err)
	}
	defer src.Close()

	entry, err := zw.Create(archiveDBDir + "/" + archiveDBName)
	if err != nil {
		return fmt.Errorf("backup: create database entry: %w", err)
	}
	if _, err := io.Copy(entry, src); err != nil {
		return fmt.Errorf("backup: copy database: %w", err)
	}
	return nil
}

// addTree walks src and stores every regular file under prefix/. A
// missing source directory is not an error; fresh installs have none.
func addTree(zw *zip.Writer, src, prefix string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("backup: stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup: %s is not a directory", src)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create(prefix + "/" + filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("backup: create entry %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("backup: open %s: %w", path, err)
		}
		defer f.Close()
		if _, err := io.Copy(entry, f); err != nil {
			return fmt.Errorf("backup: copy %s: %w", path, err)
		}
		return nil
	})
}

// List returns backup filenames in the backup directory, newest first
// by name (the timestamp format sorts lexicographically).
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.paths.BackupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup: read backup dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), backupNamePrefix) && strings.HasSuffix(e.Name(), ".zip") {
			names = append(names, e.Name())
		}
	}
	// lexicographic timestamp order, newest first
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}

// Restore replaces the entire installation state with the archive's
// contents. The archive is validated before anything is touched: an
// invalid upload leaves the running system as it was. At most one
// restore runs at a time; a second upload waits for the first to
// finish rather than interleaving file swaps with it.
func (s *Service) Restore(ctx context.Context, archivePath string, sessions *shared.SessionManager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return shared.ErrInvalidArchive
	}
	defer zr.Close()

	if err := validateArchive(&zr.Reader); err != nil {
		return err
	}

	if err := s.handle.Close(); err != nil {
		return fmt.Errorf("backup: close database: %w", err)
	}

	if err := os.Remove(s.handle.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backup: remove database: %w", err)
	}
	for _, dir := range []string{s.paths.UploadDir, s.paths.SharedDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("backup: clear %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("backup: recreate %s: %w", dir, err)
		}
	}

	if err := s.extract(&zr.Reader); err != nil {
		return err
	}

	if err := s.handle.Reopen(ctx); err != nil {
		return fmt.Errorf("backup: reopen database: %w", err)
	}

	if err := sessions.DestroyAll(ctx); err != nil {
		s.logger.Warn("failed to purge sessions after restore", slog.Any("error", err))
	}
	s.logger.Info("backup restored", slog.String("archive", filepath.Base(archivePath)))
	return nil
}

// validateArchive requires the database entry before restore starts.
func validateArchive(zr *zip.Reader) error {
	for _, f := range zr.File {
		if f.Name == archiveDBDir+"/"+archiveDBName {
			return nil
		}
	}
	return shared.ErrInvalidArchive
}

func (s *Service) extract(zr *zip.Reader) error {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, ok := s.targetFor(f.Name)
		if !ok {
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// targetFor maps an archive entry to its on-disk destination. Entries
// outside the three known roots, and any path escaping its root, are
// skipped.
func (s *Service) targetFor(name string) (string, bool) {
	clean := filepath.ToSlash(filepath.Clean(name))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", false
	}
	switch {
	case clean == archiveDBDir+"/"+archiveDBName:
		return s.handle.Path(), true
	case strings.HasPrefix(clean, archiveUploads+"/"):
		return filepath.Join(s.paths.UploadDir, strings.TrimPrefix(clean, archiveUploads+"/")), true
	case strings.HasPrefix(clean, archiveShared+"/"):
		return filepath.Join(s.paths.SharedDir, strings.TrimPrefix(clean, archiveShared+"/")), true
	}
	return "", false
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("backup: create dir for %s: %w", f.Name, err)
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("backup: open entry %s: %w", f.Name, err)
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("backup: create %s: %w", target, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("backup: extract %s: %w", f.Name, err)
	}
	return nil
}
