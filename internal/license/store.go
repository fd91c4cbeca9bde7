package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrNoStoredLicense indicates that no license has been synced yet.
var ErrNoStoredLicense = errors.New("no license stored")

// Store persists the organization license a self-hosted deployment trusts.
// The stored file is the unit every entitlement check reads; Replace is a
// single atomic swap, so a reader observes either the previous license or
// the new one, never a partial write. A cancelled or failed sync leaves the
// stored license untouched.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store writing to path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With(slog.String("component", "license_store")),
	}
}

// Path returns the location of the stored license file.
func (s *Store) Path() string { return s.path }

// Load reads and decodes the stored license. A missing file is reported as
// ErrNoStoredLicense.
func (s *Store) Load(ctx context.Context) (*OrganizationLicense, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoStoredLicense
		}
		return nil, fmt.Errorf("read license file %s: %w", s.path, err)
	}

	var l OrganizationLicense
	if err := json.Unmarshal(data, &l); err != nil {
		s.logger.ErrorContext(ctx, "stored license is unreadable",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("decode license file %s: %w", s.path, err)
	}
	return &l, nil
}

// Replace atomically swaps the stored license for l. The license is written
// to a temporary file in the same directory and renamed over the old one.
func (s *Store) Replace(ctx context.Context, l *OrganizationLicense) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode license: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create license directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".license-*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary license file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temporary license file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temporary license file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary license file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("set license file permissions: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace license file %s: %w", s.path, err)
	}

	s.logger.InfoContext(ctx, "stored license replaced",
		slog.String("path", s.path),
		slog.String("license_id", l.ID.String()),
		slog.Int("version", l.Version),
		slog.Time("expires", l.Expires),
		slog.Int("size_bytes", len(data)),
	)
	return nil
}
