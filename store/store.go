// Package store keeps compiled module images in a SQLite database, keyed
// by module name and content hash.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// ErrNotFound indicates the requested module doesn't exist.
var ErrNotFound = errors.New("module not found")

// Hash is the SHA-256 of a module image.
type Hash [sha256.Size]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// ParseHash decodes the hex form produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash has %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

// Entry describes one stored module.
type Entry struct {
	Name string
	Hash Hash
	ID   uuid.UUID
	Size int
}

// Store is a module image database.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// an in-memory database lives as long as its connection
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS modules (
		name  TEXT PRIMARY KEY,
		hash  BLOB NOT NULL,
		id    TEXT NOT NULL,
		image BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS modules_hash ON modules (hash)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	s := &Store{db: db, log: commonlog.GetLogger("ymsl.store")}
	s.log.Debugf("opened module store %s", path)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores m and every module it imports, replacing older images of the
// same names, and returns the hash of m's image.
func (s *Store) Put(ctx context.Context, m *vm.Module) (Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, _ := vm.Flatten(m)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Hash{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var h Hash
	for _, mod := range order {
		data, err := vm.MarshalModule(mod)
		if err != nil {
			return Hash{}, fmt.Errorf("encoding module %s: %w", mod.Name, err)
		}
		h = sha256.Sum256(data)
		_, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO modules (name, hash, id, image) VALUES (?, ?, ?, ?)",
			mod.Name, h[:], mod.ID.String(), data,
		)
		if err != nil {
			return Hash{}, fmt.Errorf("saving module %s: %w", mod.Name, err)
		}
		s.log.Debugf("stored %s (%s, %d bytes)", mod.Name, h, len(data))
	}
	if err := tx.Commit(); err != nil {
		return Hash{}, fmt.Errorf("committing: %w", err)
	}
	// m is last in dependency order
	return h, nil
}

// Get loads the named module. Imports are loaded from the store as well
// unless opts.Resolve is set; a module imported along several paths is
// decoded once, so the result links as a single program.
func (s *Store) Get(ctx context.Context, name string, opts vm.ImageOptions) (*vm.Module, error) {
	return s.loader(ctx, opts).load(name)
}

// GetByHash loads the module whose image has hash h.
func (s *Store) GetByHash(ctx context.Context, h Hash, opts vm.ImageOptions) (*vm.Module, error) {
	data, err := s.query(ctx, "SELECT image FROM modules WHERE hash = ?", h[:])
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", h, err)
	}
	return s.loader(ctx, opts).decode(data)
}

// Has reports whether an image with hash h is stored.
func (s *Store) Has(ctx context.Context, h Hash) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM modules WHERE hash = ?", h[:]).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying hash: %w", err)
	}
	return n > 0, nil
}

// Names returns the stored module names in order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// List describes every stored module, ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, hash, id, length(image) FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			hash []byte
			id   string
		)
		if err := rows.Scan(&e.Name, &hash, &id, &e.Size); err != nil {
			return nil, fmt.Errorf("scanning module row: %w", err)
		}
		copy(e.Hash[:], hash)
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("module %s: bad id %q: %w", e.Name, id, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the named module.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM modules WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting module %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("module %s: %w", name, ErrNotFound)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, arg any) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Loading with import resolution
// ---------------------------------------------------------------------------

type loader struct {
	s      *Store
	ctx    context.Context
	opts   vm.ImageOptions
	loaded map[string]*vm.Module
}

func (s *Store) loader(ctx context.Context, opts vm.ImageOptions) *loader {
	l := &loader{s: s, ctx: ctx, opts: opts, loaded: make(map[string]*vm.Module)}
	if l.opts.Types == nil {
		l.opts.Types = types.NewTable()
	}
	if l.opts.Resolve == nil {
		l.opts.Resolve = l.load
	}
	return l
}

func (l *loader) load(name string) (*vm.Module, error) {
	if m, ok := l.loaded[name]; ok {
		return m, nil
	}
	data, err := l.s.query(l.ctx, "SELECT image FROM modules WHERE name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	m, err := l.decode(data)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	l.loaded[name] = m
	return m, nil
}

func (l *loader) decode(data []byte) (*vm.Module, error) {
	return vm.UnmarshalModule(data, l.opts)
}
