// Package redis implements storage.Backend on Redis with go-redis.
//
// Keys live under a common prefix:
//
//	<prefix>:settings              hash of settings
//	<prefix>:doc:<id>              document bytes
//	<prefix>:bucket:<band>:<hash>  set of document ids
//	<prefix>:last_doc_id           auto-id cursor
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

const (
	pingTimeout = 5 * time.Second

	// maxTxRetries bounds optimistic retries of auto-id assignment.
	maxTxRetries = 64

	scanBatch = 100
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a storage.Backend backed by Redis. It is safe for concurrent use.
type Store struct {
	rdb    *goredis.Client
	prefix string
	closed atomic.Bool
}

var _ storage.Backend = (*Store)(nil)

// Open connects to Redis and verifies the connection with a PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("%w: redis ping %s: %w", storage.ErrIO, opts.Addr, err)
	}

	return &Store{rdb: rdb, prefix: opts.Prefix}, nil
}

func (s *Store) settingsKey() string { return s.prefix + ":settings" }
func (s *Store) cursorKey() string   { return s.prefix + ":last_doc_id" }

func (s *Store) docKey(id uint64) string {
	return s.prefix + ":doc:" + strconv.FormatUint(id, 10)
}

func (s *Store) bucketKey(bandID, bandHash uint32) string {
	return s.prefix + ":bucket:" + strconv.FormatUint(uint64(bandID), 10) + ":" + strconv.FormatUint(uint64(bandHash), 10)
}

// InsertSetting implements storage.Backend.
func (s *Store) InsertSetting(ctx context.Context, key, value string) error {
	if err := s.check(); err != nil {
		return err
	}

	return s.wrap("insert setting", s.rdb.HSet(ctx, s.settingsKey(), key, value).Err())
}

// QuerySetting implements storage.Backend.
func (s *Store) QuerySetting(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}

	v, err := s.rdb.HGet(ctx, s.settingsKey(), key).Result()

	switch {
	case errors.Is(err, goredis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, s.wrap("query setting", err)
	}

	return v, true, nil
}

// InsertDocument implements storage.Backend. The transaction watches the
// cursor and every probed document key, and retries when another client
// touches one of them before it commits.
func (s *Store) InsertDocument(ctx context.Context, document []byte) (uint64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	for range maxTxRetries {
		id, err := s.insertAuto(ctx, document)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}

		return id, s.wrap("insert document", err)
	}

	return 0, s.wrap("insert document", goredis.TxFailedErr)
}

// PutDocument implements storage.Backend.
func (s *Store) PutDocument(ctx context.Context, documentID uint64, document []byte) error {
	if err := s.check(); err != nil {
		return err
	}

	return s.wrap("put document", s.rdb.Set(ctx, s.docKey(documentID), document, 0).Err())
}

func (s *Store) insertAuto(ctx context.Context, document []byte) (uint64, error) {
	var id uint64

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cursor, err := tx.Get(ctx, s.cursorKey()).Uint64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}

		id, err = s.probeFreeID(ctx, tx, cursor+1)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, s.docKey(id), document, 0)
			pipe.Set(ctx, s.cursorKey(), strconv.FormatUint(id, 10), 0)

			return nil
		})

		return err
	}, s.cursorKey())

	return id, err
}

// probeFreeID returns the first id from start, skipping 0, whose document
// key is unset. Each key is watched before it is checked, so a concurrent
// write to the chosen key aborts the surrounding transaction.
func (s *Store) probeFreeID(ctx context.Context, tx *goredis.Tx, start uint64) (uint64, error) {
	for id := start; ; id++ {
		if id == 0 {
			continue
		}

		key := s.docKey(id)

		if err := tx.Watch(ctx, key).Err(); err != nil {
			return 0, err
		}

		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return 0, err
		}

		if n == 0 {
			return id, nil
		}
	}
}

// QueryDocument implements storage.Backend.
func (s *Store) QueryDocument(ctx context.Context, documentID uint64) ([]byte, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}

	b, err := s.rdb.Get(ctx, s.docKey(documentID)).Bytes()

	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, s.wrap("query document", err)
	}

	return b, true, nil
}

// RemoveDocument implements storage.Backend. Buckets are left untouched.
func (s *Store) RemoveDocument(ctx context.Context, documentID uint64) error {
	if err := s.check(); err != nil {
		return err
	}

	return s.wrap("remove document", s.rdb.Del(ctx, s.docKey(documentID)).Err())
}

// AddDocumentToBucket implements storage.Backend.
func (s *Store) AddDocumentToBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error {
	if err := s.check(); err != nil {
		return err
	}

	err := s.rdb.SAdd(ctx, s.bucketKey(bandID, bandHash), strconv.FormatUint(documentID, 10)).Err()

	return s.wrap("add to bucket", err)
}

// QueryIDsFromBucket implements storage.Backend. Ids are returned ascending.
func (s *Store) QueryIDsFromBucket(ctx context.Context, bandID, bandHash uint32) ([]uint64, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	members, err := s.rdb.SMembers(ctx, s.bucketKey(bandID, bandHash)).Result()
	if err != nil {
		return nil, s.wrap("query bucket", err)
	}

	ids := make([]uint64, 0, len(members))

	for _, m := range members {
		id, perr := strconv.ParseUint(m, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("%w: bucket member %q: %w", storage.ErrMalformedSnapshot, m, perr)
		}

		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids, nil
}

// RemoveIDFromBucket implements storage.Backend.
func (s *Store) RemoveIDFromBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error {
	if err := s.check(); err != nil {
		return err
	}

	err := s.rdb.SRem(ctx, s.bucketKey(bandID, bandHash), strconv.FormatUint(documentID, 10)).Err()

	return s.wrap("remove from bucket", err)
}

// Flush deletes every key under the store prefix and returns how many were removed.
func (s *Store) Flush(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	var deleted int64

	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, s.wrap("flush "+iter.Val(), err)
		}

		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, s.wrap("flush scan", err)
	}

	return deleted, nil
}

// Close closes the connection pool. Later calls fail with storage.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	return s.wrap("close", s.rdb.Close())
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
		return fmt.Errorf("redis %s: %w", what, err)
	}

	return fmt.Errorf("%w: redis %s: %w", storage.ErrIO, what, err)
}
