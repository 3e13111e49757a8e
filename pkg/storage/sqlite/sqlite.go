// Package sqlite implements storage.Backend on a single SQLite file using
// the pure-Go modernc.org/sqlite driver.
//
// Document ids are stored as SQLite INTEGERs by reinterpreting their bits,
// so the full uint64 range round-trips.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // registers the "sqlite" driver.

	"github.com/Sumatoshi-tech/narrowdown/pkg/safeconv"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

const driverName = "sqlite"

// counterLastDocID names the auto-id cursor row in the counters table.
const counterLastDocID = "last_doc_id"

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id   INTEGER PRIMARY KEY,
	body BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS buckets (
	band_id   INTEGER NOT NULL,
	band_hash INTEGER NOT NULL,
	doc_id    INTEGER NOT NULL,
	PRIMARY KEY (band_id, band_hash, doc_id)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);`

// Store is a storage.Backend backed by SQLite. It is safe for concurrent
// use; writes are serialized in-process.
type Store struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex
	closed atomic.Bool
}

var _ storage.Backend = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)", "synchronous(NORMAL)"},
	}.Encode()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", storage.ErrIO, path, err)
	}

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: init schema %s: %w", storage.ErrIO, path, err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// InsertSetting implements storage.Backend.
func (s *Store) InsertSetting(ctx context.Context, key, value string) error {
	return s.exec(ctx, "insert setting",
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
}

// QuerySetting implements storage.Backend.
func (s *Store) QuerySetting(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}

	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, s.wrap("query setting", err)
	}

	return value, true, nil
}

// InsertDocument implements storage.Backend. The first unused id above the
// cursor is assigned and becomes the new cursor.
func (s *Store) InsertDocument(ctx context.Context, document []byte) (uint64, error) {
	var id uint64

	err := s.inTx(ctx, "insert document", func(tx *sql.Tx) error {
		var err error

		if id, err = nextFreeID(ctx, tx); err != nil {
			return err
		}

		return upsertDocument(ctx, tx, id, document)
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// PutDocument implements storage.Backend.
func (s *Store) PutDocument(ctx context.Context, documentID uint64, document []byte) error {
	return s.inTx(ctx, "put document", func(tx *sql.Tx) error {
		return upsertDocument(ctx, tx, documentID, document)
	})
}

// inTx runs fn in a write transaction under the writer lock.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if err := s.check(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("begin "+op, err)
	}

	defer func() { _ = tx.Rollback() }()

	if err = fn(tx); err != nil {
		return s.wrap(op, err)
	}

	return s.wrap("commit "+op, tx.Commit())
}

func upsertDocument(ctx context.Context, tx *sql.Tx, id uint64, document []byte) error {
	if document == nil {
		document = []byte{}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, body) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
		safeconv.Uint64AsInt64(id), document)

	return err
}

func nextFreeID(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var cursor int64

	err := tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, counterLastDocID).Scan(&cursor)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	id := safeconv.Int64AsUint64(cursor) + 1

	for {
		if id != 0 {
			var taken int

			err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, safeconv.Uint64AsInt64(id)).Scan(&taken)
			if errors.Is(err, sql.ErrNoRows) {
				break
			}

			if err != nil {
				return 0, err
			}
		}

		id++
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO counters (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		counterLastDocID, safeconv.Uint64AsInt64(id))
	if err != nil {
		return 0, err
	}

	return id, nil
}

// QueryDocument implements storage.Backend.
func (s *Store) QueryDocument(ctx context.Context, documentID uint64) ([]byte, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}

	var body []byte

	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`,
		safeconv.Uint64AsInt64(documentID)).Scan(&body)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, s.wrap("query document", err)
	}

	if body == nil {
		body = []byte{}
	}

	return body, true, nil
}

// RemoveDocument implements storage.Backend. Buckets are left untouched.
func (s *Store) RemoveDocument(ctx context.Context, documentID uint64) error {
	return s.exec(ctx, "remove document",
		`DELETE FROM documents WHERE id = ?`, safeconv.Uint64AsInt64(documentID))
}

// AddDocumentToBucket implements storage.Backend.
func (s *Store) AddDocumentToBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error {
	return s.exec(ctx, "add to bucket",
		`INSERT OR IGNORE INTO buckets (band_id, band_hash, doc_id) VALUES (?, ?, ?)`,
		bandID, bandHash, safeconv.Uint64AsInt64(documentID))
}

// QueryIDsFromBucket implements storage.Backend. Ids are returned ascending.
func (s *Store) QueryIDsFromBucket(ctx context.Context, bandID, bandHash uint32) ([]uint64, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id FROM buckets WHERE band_id = ? AND band_hash = ?`, bandID, bandHash)
	if err != nil {
		return nil, s.wrap("query bucket", err)
	}
	defer rows.Close()

	ids := []uint64{}

	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, s.wrap("scan bucket", err)
		}

		ids = append(ids, safeconv.Int64AsUint64(id))
	}

	if err = rows.Err(); err != nil {
		return nil, s.wrap("iterate bucket", err)
	}

	slices.Sort(ids)

	return ids, nil
}

// RemoveIDFromBucket implements storage.Backend.
func (s *Store) RemoveIDFromBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error {
	return s.exec(ctx, "remove from bucket",
		`DELETE FROM buckets WHERE band_id = ? AND band_hash = ? AND doc_id = ?`,
		bandID, bandHash, safeconv.Uint64AsInt64(documentID))
}

// Close closes the database. Later calls fail with storage.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return s.wrap("close", err)
	}

	return nil
}

func (s *Store) exec(ctx context.Context, what, query string, args ...any) error {
	if err := s.check(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.wrap(what, err)
	}

	return nil
}

func (s *Store) check() error {
	if s.closed.Load() {
		return storage.ErrClosed
	}

	return nil
}

func (s *Store) wrap(what string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("sqlite %s: %w", what, err)
	}

	return fmt.Errorf("%w: sqlite %s %s: %w", storage.ErrIO, what, s.path, err)
}
