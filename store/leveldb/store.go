// Package leveldb is an embedded Store backed by goleveldb. Records are
// JSON encoded under typed key prefixes; multi-key updates go through a
// single batch so they land atomically.
package leveldb

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/store"
)

var _ store.Store = (*Store)(nil)

var (
	accountPrefix     = []byte("a/")
	settlementPrefix  = []byte("s/")
	statusIndexPrefix = []byte("x/")
)

// Options options for creating a level db store.
type Options struct {
	CacheSize              int
	OpenFilesCacheCapacity int
}

var writeOpt = opt.WriteOptions{Sync: true}
var readOpt = opt.ReadOptions{}

// Store wraps a level db instance.
type Store struct {
	db *leveldb.DB
	// mu serializes read-check-write sequences; leveldb has no conditional put.
	mu sync.Mutex
}

// New creates a persistent store at path.
// Create an empty one if not exists, or open if already there.
func New(path string, opts Options) (*Store, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "new persistent level db")
	}
	return open(stg, opts.CacheSize, opts.OpenFilesCacheCapacity)
}

// NewMem creates a store in memory.
func NewMem() (*Store, error) {
	return open(storage.NewMemStorage(), 0, 0)
}

func open(stg storage.Storage, cacheSize, openFilesCacheCapacity int) (*Store, error) {
	if cacheSize < 16 {
		cacheSize = 16
	}
	if openFilesCacheCapacity < 16 {
		openFilesCacheCapacity = 16
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFilesCacheCapacity,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	return &Store{db: db}, nil
}

func accountKey(p account.Principal) []byte {
	return append(append([]byte{}, accountPrefix...), string(p)...)
}

func settlementKey(settlementID id.SettlementID) []byte {
	return append(append([]byte{}, settlementPrefix...), settlementID.String()...)
}

func statusPrefix(status settlement.Status) []byte {
	k := append(append([]byte{}, statusIndexPrefix...), string(status)...)
	return append(k, '/')
}

func statusKey(status settlement.Status, settlementID id.SettlementID) []byte {
	return append(statusPrefix(status), settlementID.String()...)
}

func (s *Store) get(key []byte, v any, notFound error) error {
	data, err := s.db.Get(key, &readOpt)
	if errors.Is(err, leveldb.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return errors.Wrapf(err, "get %q", key)
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode %q", key)
}

// ──────────────────────────────────────────────────
// Account Store
// ──────────────────────────────────────────────────

func (s *Store) GetAccount(_ context.Context, p account.Principal) (*account.Account, error) {
	var a account.Account
	if err := s.get(accountKey(p), &a, custody.ErrAccountNotFound); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) PutAccount(_ context.Context, a *account.Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "encode account")
	}
	return errors.Wrap(s.db.Put(accountKey(a.Principal), data, &writeOpt), "put account")
}

func (s *Store) DeleteAccount(_ context.Context, p account.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey(p)
	ok, err := s.db.Has(key, &readOpt)
	if err != nil {
		return errors.Wrap(err, "delete account")
	}
	if !ok {
		return custody.ErrAccountNotFound
	}
	return errors.Wrap(s.db.Delete(key, &writeOpt), "delete account")
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	it := s.db.NewIterator(util.BytesPrefix(accountPrefix), &readOpt)
	defer it.Release()

	var result []*account.Account
	skipped := 0
	for it.Next() {
		if skipped < opts.Offset {
			skipped++
			continue
		}
		var a account.Account
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return nil, errors.Wrapf(err, "decode %q", it.Key())
		}
		result = append(result, &a)
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	return result, errors.Wrap(it.Error(), "list accounts")
}

// ──────────────────────────────────────────────────
// Settlement Store
// ──────────────────────────────────────────────────

func (s *Store) CreateSettlement(_ context.Context, st *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := settlementKey(st.ID)
	exists, err := s.db.Has(key, &readOpt)
	if err != nil {
		return errors.Wrap(err, "create settlement")
	}
	if exists {
		return custody.ErrAlreadyExists
	}

	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode settlement")
	}
	batch := new(leveldb.Batch)
	batch.Put(key, data)
	batch.Put(statusKey(st.Status, st.ID), nil)
	return errors.Wrap(s.db.Write(batch, &writeOpt), "create settlement")
}

func (s *Store) GetSettlement(_ context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	var st settlement.Settlement
	if err := s.get(settlementKey(settlementID), &st, custody.ErrSettlementNotFound); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListSettlements(ctx context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	prefix := settlementPrefix
	if opts.Status != "" {
		prefix = statusPrefix(opts.Status)
	}

	it := s.db.NewIterator(util.BytesPrefix(prefix), &readOpt)
	defer it.Release()

	var result []*settlement.Settlement
	skipped := 0
	for it.Next() {
		var st *settlement.Settlement
		if opts.Status != "" {
			settlementID, err := id.ParseSettlementID(string(bytes.TrimPrefix(it.Key(), prefix)))
			if err != nil {
				return nil, errors.Wrapf(err, "index key %q", it.Key())
			}
			if st, err = s.GetSettlement(ctx, settlementID); err != nil {
				return nil, err
			}
		} else {
			st = new(settlement.Settlement)
			if err := json.Unmarshal(it.Value(), st); err != nil {
				return nil, errors.Wrapf(err, "decode %q", it.Key())
			}
		}

		if opts.Sender != "" && st.Sender != opts.Sender {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, st)
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	return result, errors.Wrap(it.Error(), "list settlements")
}

func (s *Store) TransitionSettlement(ctx context.Context, from settlement.Status, next *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetSettlement(ctx, next.ID)
	if err != nil {
		return err
	}
	if current.Status != from {
		return custody.ErrSettlementConflict
	}

	data, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "encode settlement")
	}
	batch := new(leveldb.Batch)
	batch.Put(settlementKey(next.ID), data)
	batch.Delete(statusKey(from, next.ID))
	batch.Put(statusKey(next.Status, next.ID), nil)
	return errors.Wrap(s.db.Write(batch, &writeOpt), "transition settlement")
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

// Migrate is a no-op; the key layout needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	if errors.Is(err, leveldb.ErrClosed) {
		return custody.ErrStoreClosed
	}
	return errors.Wrap(err, "ping level db")
}

// Close close the level db.
// Later operations will all fail.
func (s *Store) Close() error {
	return s.db.Close()
}
