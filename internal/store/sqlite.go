package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const coverSchema = `
CREATE TABLE IF NOT EXISTS covers (
	identity     TEXT PRIMARY KEY,
	artist       TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	album        TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL DEFAULT '',
	artwork_url  TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	image        BLOB,
	not_found    INTEGER NOT NULL DEFAULT 0,
	resolved_at  INTEGER NOT NULL
);
`

// coverDB persists cover entries in SQLite so a restart does not re-resolve
// tracks that are still playing.
type coverDB struct {
	db *sql.DB
}

func openCoverDB(path string) (*coverDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cover cache database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(coverSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cover cache schema: %w", err)
	}

	return &coverDB{db: db}, nil
}

func (c *coverDB) close() error {
	return c.db.Close()
}

func (c *coverDB) loadAll() ([]*Entry, error) {
	rows, err := c.db.Query(`SELECT identity, artist, title, album, provider,
		artwork_url, content_type, image, not_found, resolved_at
		FROM covers ORDER BY resolved_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cover cache: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var notFound int
		var resolvedAt int64
		if err := rows.Scan(&entry.Identity, &entry.Artist, &entry.Title, &entry.Album,
			&entry.Provider, &entry.ArtworkURL, &entry.ContentType, &entry.Image,
			&notFound, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cover row: %w", err)
		}
		entry.NotFound = notFound != 0
		entry.ResolvedAt = time.Unix(resolvedAt, 0).UTC()
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (c *coverDB) put(entry *Entry) error {
	notFound := 0
	if entry.NotFound {
		notFound = 1
	}

	_, err := c.db.Exec(`INSERT INTO covers
		(identity, artist, title, album, provider, artwork_url, content_type, image, not_found, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			artist=excluded.artist, title=excluded.title, album=excluded.album,
			provider=excluded.provider, artwork_url=excluded.artwork_url,
			content_type=excluded.content_type, image=excluded.image,
			not_found=excluded.not_found, resolved_at=excluded.resolved_at`,
		entry.Identity, entry.Artist, entry.Title, entry.Album, entry.Provider,
		entry.ArtworkURL, entry.ContentType, entry.Image, notFound, entry.ResolvedAt.Unix())
	return err
}

func (c *coverDB) delete(identity string) error {
	_, err := c.db.Exec(`DELETE FROM covers WHERE identity = ?`, identity)
	return err
}

func (c *coverDB) clear() error {
	_, err := c.db.Exec(`DELETE FROM covers`)
	return err
}
