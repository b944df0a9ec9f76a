// Package store caches compiled programs keyed by source content hash.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferrite-lang/ferrite/pkg/bytecode"
)

// ErrNotCached indicates no compiled program exists for the source hash.
var ErrNotCached = errors.New("program not cached")

// Cache is a SQLite-backed store of serialized programs. The key is the
// SHA-256 of the source text, so a cache hit is always safe: the same
// source deterministically compiles to the same program.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		source_hash TEXT PRIMARY KEY,
		image       BLOB NOT NULL,
		created_at  INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating programs table: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// HashSource returns the cache key for a source text.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Put stores the compiled program for the given source text.
func (c *Cache) Put(source string, program *bytecode.Program) error {
	image, err := bytecode.MarshalProgram(program)
	if err != nil {
		return fmt.Errorf("serializing program: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO programs (source_hash, image, created_at) VALUES (?, ?, ?)",
		HashSource(source), image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	return nil
}

// Get loads the compiled program for the given source text. Returns
// ErrNotCached when the source has not been compiled before.
func (c *Cache) Get(source string) (*bytecode.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var image []byte
	err := c.db.QueryRow(
		"SELECT image FROM programs WHERE source_hash = ?", HashSource(source),
	).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	program, err := bytecode.UnmarshalProgram(image)
	if err != nil {
		// A corrupt entry is dropped rather than returned.
		c.db.Exec("DELETE FROM programs WHERE source_hash = ?", HashSource(source))
		return nil, ErrNotCached
	}
	return program, nil
}

// Purge removes every cached program.
func (c *Cache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec("DELETE FROM programs"); err != nil {
		return fmt.Errorf("purging cache: %w", err)
	}
	return nil
}

// Len reports the number of cached programs.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}
