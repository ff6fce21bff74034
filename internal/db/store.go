package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jcdickinson/docref/internal/cas"
)

// ManifestStore keeps manifest bodies in the CAS and indexes them by URL.
type ManifestStore struct {
	db *DB
}

func NewManifestStore(db *DB) *ManifestStore {
	return &ManifestStore{db: db}
}

func (s *ManifestStore) Get(url string) ([]byte, time.Time, bool) {
	rec, err := s.db.GetManifest(url)
	if err != nil {
		slog.Warn("manifest index lookup failed", "url", url, "error", err)
		return nil, time.Time{}, false
	}
	if rec == nil {
		return nil, time.Time{}, false
	}
	body, err := cas.Read(rec.ContentHash)
	if err != nil {
		slog.Warn("manifest body missing", "url", url, "hash", rec.ContentHash, "error", err)
		return nil, time.Time{}, false
	}
	return body, rec.FetchedAt, true
}

func (s *ManifestStore) Put(url string, body []byte) error {
	hash, err := cas.Write(body)
	if err != nil {
		return fmt.Errorf("storing manifest body: %w", err)
	}
	return s.db.UpsertManifest(url, hash)
}

// Clear drops the index and the bodies.
func (s *ManifestStore) Clear() (int64, error) {
	n, err := s.db.DeleteManifests()
	if err != nil {
		return 0, err
	}
	if err := cas.Clear(); err != nil {
		return n, err
	}
	return n, nil
}
