package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/phanxgames/tileflat"
)

// IndexFile is the default index database name, created under the root.
const IndexFile = ".tileflat-assets.db"

// ErrNotFound is returned for references the index does not know.
var ErrNotFound = errors.New("assets: not found")

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	ref     TEXT PRIMARY KEY,
	path    TEXT NOT NULL,
	bytes   INTEGER NOT NULL,
	created INTEGER NOT NULL
)`

// Record is one indexed asset.
type Record struct {
	Ref     string    `json:"ref"`
	Path    string    `json:"path"`
	Bytes   int64     `json:"bytes"`
	Created time.Time `json:"created"`
}

// FileStore writes assets under a root directory.
type FileStore struct {
	root string
	db   *sql.DB
	now  func() time.Time
}

var _ tileflat.AssetStore = (*FileStore)(nil)

// Open creates root if needed and opens its index. An empty indexPath uses
// IndexFile under root.
func Open(root, indexPath string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("assets: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("assets: create root: %w", err)
	}
	if indexPath == "" {
		indexPath = filepath.Join(root, IndexFile)
	}
	db, err := sql.Open("sqlite3", indexPath)
	if err != nil {
		return nil, fmt.Errorf("assets: open index: %w", err)
	}
	// One writer keeps sqlite from reporting the database as locked.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("assets: create index: %w", err)
	}
	return &FileStore{root: root, db: db, now: time.Now}, nil
}

// Root returns the directory assets are written under.
func (s *FileStore) Root() string { return s.root }

// Close closes the index.
func (s *FileStore) Close() error {
	return s.db.Close()
}

// Upload writes data to root/targetPath/filename and indexes it. An existing
// file with the same reference is replaced.
func (s *FileStore) Upload(ctx context.Context, data []byte, targetPath, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := makeRef(targetPath, filename)
	if err != nil {
		return "", err
	}
	full := s.resolve(ref)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("assets: create directory: %w", err)
	}
	if err := writeFile(full, data); err != nil {
		return "", err
	}

	created := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO assets (ref, path, bytes, created) VALUES (?, ?, ?, ?)`,
		ref, full, len(data), created.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("assets: index %s: %w", ref, err)
	}
	tileflat.Logger().WithFields(logrus.Fields{"ref": ref, "bytes": len(data)}).Debug("assets: stored")
	return ref, nil
}

// Open opens the file behind ref for reading.
func (s *FileStore) Open(ref string) (io.ReadCloser, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	f, err := os.Open(s.resolve(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return f, err
}

// Lookup returns the index record of ref.
func (s *FileStore) Lookup(ctx context.Context, ref string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT ref, path, bytes, created FROM assets WHERE ref = ?`, ref)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return rec, err
}

// List returns the records whose reference starts with prefix, oldest first.
func (s *FileStore) List(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ref, path, bytes, created FROM assets
		 WHERE substr(ref, 1, length(?)) = ?
		 ORDER BY created, ref`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("assets: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Remove deletes the file behind ref and its index record. A file that is
// already gone is not an error.
func (s *FileStore) Remove(ctx context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	if err := os.Remove(s.resolve(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("assets: remove %s: %w", ref, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE ref = ?`, ref); err != nil {
		return fmt.Errorf("assets: unindex %s: %w", ref, err)
	}
	return nil
}

func (s *FileStore) resolve(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var rec Record
	var created int64
	if err := sc.Scan(&rec.Ref, &rec.Path, &rec.Bytes, &created); err != nil {
		return Record{}, err
	}
	rec.Created = time.UnixMilli(created).UTC()
	return rec, nil
}

// makeRef joins targetPath and filename into a slash-separated reference
// that stays inside the root.
func makeRef(targetPath, filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || filename == "." || filename == ".." {
		return "", fmt.Errorf("assets: invalid file name %q", filename)
	}
	ref := path.Join(filepath.ToSlash(targetPath), filename)
	if err := checkRef(ref); err != nil {
		return "", err
	}
	return ref, nil
}

func checkRef(ref string) error {
	if ref == "" || path.IsAbs(ref) || filepath.IsAbs(ref) || !filepath.IsLocal(filepath.FromSlash(ref)) {
		return fmt.Errorf("assets: reference %q escapes the root", ref)
	}
	return nil
}

// writeFile writes data through a temporary file so readers never see a
// partial raster.
func writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".upload-*")
	if err != nil {
		return fmt.Errorf("assets: write: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("assets: write: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("assets: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("assets: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("assets: write: %w", err)
	}
	return nil
}
