// Package store keeps the list of saved engine config files in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yllada/trusttunnel-desktop/common"
)

// SavedConfig is an engine config file remembered by the application.
type SavedConfig struct {
	// Path is the absolute path of the TOML file. It identifies the entry.
	Path string
	// Name is a display name, defaulting to the file name without extension.
	Name     string
	Added    time.Time
	LastUsed time.Time
}

// Store is the saved-config database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. An empty path uses
// the application config directory.
func Open(path string) (*Store, error) {
	if path == "" {
		dir, err := common.GetConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, common.ConfigsDBFileName)
	} else if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS configs (
		path      TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		added     INTEGER NOT NULL,  -- Unix timestamp in milliseconds
		last_used INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_configs_last_used ON configs(last_used);
	`)
	return err
}

// Add remembers the config at path. Adding a known path only refreshes
// its name. The file must exist.
func (s *Store) Add(path, name string) (*SavedConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !common.FileExists(abs) {
		return nil, fmt.Errorf("%w: %s", common.ErrConfigNotFound, abs)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}

	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO configs (path, name, added) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET name = excluded.name`,
		abs, name, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to save config entry: %w", err)
	}
	return s.Get(abs)
}

// Get returns the entry for path.
func (s *Store) Get(path string) (*SavedConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT path, name, added, last_used FROM configs WHERE path = ?`, abs)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrConfigNotFound, abs)
	}
	return cfg, err
}

// Remove forgets path. The file itself is left alone.
func (s *Store) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM configs WHERE path = ?`, abs)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", common.ErrConfigNotFound, abs)
	}
	return nil
}

// List returns every entry, most recently used first.
func (s *Store) List() ([]*SavedConfig, error) {
	rows, err := s.db.Query(`
		SELECT path, name, added, last_used FROM configs
		ORDER BY last_used DESC, added DESC, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SavedConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// MarkUsed records that path was just used to connect.
func (s *Store) MarkUsed(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE configs SET last_used = ? WHERE path = ?`, time.Now().UnixMilli(), abs)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", common.ErrConfigNotFound, abs)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*SavedConfig, error) {
	var (
		cfg             SavedConfig
		added, lastUsed int64
	)
	if err := row.Scan(&cfg.Path, &cfg.Name, &added, &lastUsed); err != nil {
		return nil, err
	}
	cfg.Added = time.UnixMilli(added)
	if lastUsed > 0 {
		cfg.LastUsed = time.UnixMilli(lastUsed)
	}
	return &cfg, nil
}
