package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"pidgate/pkg/platform/sentinel"
)

// BadgerStore keeps snapshots in an embedded Badger database for single-node
// deployments. Keys are "<kind>/<zero-padded version>" so iteration order is
// version order.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func badgerPrefix(kind string) []byte {
	return []byte(kind + "/")
}

func badgerKey(kind string, version uint64) []byte {
	return fmt.Appendf(nil, "%s/%020d", kind, version)
}

func (s *BadgerStore) Put(_ context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		latest, err := latestIn(txn, rec.Kind)
		switch {
		case err == nil && latest.Version >= rec.Version:
			return fmt.Errorf("snapshot %s v%d: %w", rec.Kind, rec.Version, sentinel.ErrConflict)
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return err
		}
		return txn.Set(badgerKey(rec.Kind, rec.Version), data)
	})
}

func (s *BadgerStore) Get(_ context.Context, kind string, version uint64) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(kind, version))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decodeRecord(val)
			return err
		})
	})
	return rec, err
}

func (s *BadgerStore) Latest(_ context.Context, kind string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = latestIn(txn, kind)
		return err
	})
	return rec, err
}

func (s *BadgerStore) AtOrBefore(_ context.Context, kind string, t time.Time) (Record, error) {
	var found *Record
	err := s.db.View(func(txn *badger.Txn) error {
		return reverseScan(txn, kind, func(rec Record) bool {
			if !rec.Timestamp.After(t) {
				found = &rec
				return false
			}
			return true
		})
	})
	if err != nil {
		return Record{}, err
	}
	if found == nil {
		return Record{}, sentinel.ErrNotFound
	}
	return *found, nil
}

func (s *BadgerStore) List(_ context.Context, kind string, limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		return reverseScan(txn, kind, func(rec Record) bool {
			out = append(out, rec)
			return limit <= 0 || len(out) < limit
		})
	})
	return out, err
}

func latestIn(txn *badger.Txn, kind string) (Record, error) {
	var found *Record
	err := reverseScan(txn, kind, func(rec Record) bool {
		found = &rec
		return false
	})
	if err != nil {
		return Record{}, err
	}
	if found == nil {
		return Record{}, sentinel.ErrNotFound
	}
	return *found, nil
}

// reverseScan visits records of kind newest first until fn returns false.
func reverseScan(txn *badger.Txn, kind string, fn func(Record) bool) error {
	prefix := badgerPrefix(kind)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte(nil), prefix...), 0xff)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		var rec Record
		err := it.Item().Value(func(val []byte) error {
			var err error
			rec, err = decodeRecord(val)
			return err
		})
		if err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}
