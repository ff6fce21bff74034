package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_manifest_id START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_module_id START 1;`,

		`CREATE TABLE IF NOT EXISTS manifests (
			id INTEGER PRIMARY KEY,
			url TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(url)
		)`,

		`CREATE TABLE IF NOT EXISTS modules (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			module_dir TEXT NOT NULL,
			loaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(name)
		)`,

		// not UNIQUE: locations are replaced wholesale inside one transaction
		`CREATE TABLE IF NOT EXISTS locations (
			module_id INTEGER NOT NULL,
			dri TEXT NOT NULL,
			path TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_module ON locations (module_id)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_dri ON locations (dri)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Manifest operations ---

// ManifestRecord points a manifest URL at the body stored in the CAS.
type ManifestRecord struct {
	ID          int
	URL         string
	ContentHash string
	FetchedAt   time.Time
}

func (db *DB) UpsertManifest(url, contentHash string) error {
	var id int
	err := db.conn.QueryRow(`SELECT id FROM manifests WHERE url = ?`, url).Scan(&id)
	if err == nil {
		_, err = db.conn.Exec(
			`UPDATE manifests SET content_hash = ?, fetched_at = ? WHERE id = ?`,
			contentHash, time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("updating manifest: %w", err)
		}
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking manifest: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO manifests (id, url, content_hash, fetched_at) VALUES (nextval('seq_manifest_id'), ?, ?, ?)`,
		url, contentHash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting manifest: %w", err)
	}
	return nil
}

func (db *DB) GetManifest(url string) (*ManifestRecord, error) {
	var m ManifestRecord
	err := db.conn.QueryRow(
		`SELECT id, url, content_hash, fetched_at FROM manifests WHERE url = ?`, url,
	).Scan(&m.ID, &m.URL, &m.ContentHash, &m.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (db *DB) ListManifests() ([]ManifestRecord, error) {
	rows, err := db.conn.Query(`SELECT id, url, content_hash, fetched_at FROM manifests ORDER BY url`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManifestRecord
	for rows.Next() {
		var m ManifestRecord
		if err := rows.Scan(&m.ID, &m.URL, &m.ContentHash, &m.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteManifests forgets every cached manifest and returns how many there were.
func (db *DB) DeleteManifests() (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM manifests`)
	if err != nil {
		return 0, fmt.Errorf("deleting manifests: %w", err)
	}
	return res.RowsAffected()
}

// --- Module operations ---

type Module struct {
	ID        int
	Name      string
	ModuleDir string
	LoadedAt  time.Time
}

func (db *DB) UpsertModule(name, moduleDir string) (*Module, error) {
	var m Module
	err := db.conn.QueryRow(
		`SELECT id, name, module_dir, loaded_at FROM modules WHERE name = ?`, name,
	).Scan(&m.ID, &m.Name, &m.ModuleDir, &m.LoadedAt)

	if err == nil {
		if _, err := db.conn.Exec(
			`UPDATE modules SET module_dir = ?, loaded_at = ? WHERE id = ?`,
			moduleDir, time.Now().UTC(), m.ID,
		); err != nil {
			return nil, fmt.Errorf("updating module: %w", err)
		}
		m.ModuleDir = moduleDir
		m.LoadedAt = time.Now()
		return &m, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("checking module: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO modules (id, name, module_dir, loaded_at) VALUES (nextval('seq_module_id'), ?, ?, ?)`,
		name, moduleDir, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting module: %w", err)
	}

	var id int
	if err := db.conn.QueryRow("SELECT currval('seq_module_id')").Scan(&id); err != nil {
		return nil, fmt.Errorf("getting module id: %w", err)
	}

	return &Module{ID: id, Name: name, ModuleDir: moduleDir, LoadedAt: time.Now()}, nil
}

func (db *DB) GetModule(name string) (*Module, error) {
	var m Module
	err := db.conn.QueryRow(
		`SELECT id, name, module_dir, loaded_at FROM modules WHERE name = ?`, name,
	).Scan(&m.ID, &m.Name, &m.ModuleDir, &m.LoadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (db *DB) ListModules() ([]Module, error) {
	rows, err := db.conn.Query(`SELECT id, name, module_dir, loaded_at FROM modules ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.ModuleDir, &m.LoadedAt); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// --- Location operations ---

// ReplaceLocations swaps the published ID-to-path table of one module.
func (db *DB) ReplaceLocations(moduleID int, locations map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM locations WHERE module_id = ?`, moduleID); err != nil {
		return fmt.Errorf("clearing locations: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO locations (module_id, dri, path) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing location insert: %w", err)
	}
	defer stmt.Close()

	keys := make([]string, 0, len(locations))
	for k := range locations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := stmt.Exec(moduleID, k, locations[k]); err != nil {
			return fmt.Errorf("inserting location %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// FindLocation returns the published path of an ID inside the named module.
func (db *DB) FindLocation(module, dri string) (string, bool, error) {
	var path string
	err := db.conn.QueryRow(
		`SELECT l.path FROM locations l JOIN modules m ON m.id = l.module_id
		 WHERE m.name = ? AND l.dri = ? LIMIT 1`, module, dri,
	).Scan(&path)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

func (db *DB) CountLocations(moduleID int) (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM locations WHERE module_id = ?`, moduleID).Scan(&count)
	return count, err
}
