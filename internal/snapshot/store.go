// Package snapshot persists versioned, signed state (registry roots and
// revocation lists) so verifiers can fetch a specific version or the version
// in force at a timestamp. Records are append-only per kind and versions must
// strictly increase.
package snapshot

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Record is one published version of a kind of state.
type Record struct {
	Kind      string    `msgpack:"kind" json:"kind"`
	Version   uint64    `msgpack:"version" json:"version"`
	Timestamp time.Time `msgpack:"timestamp" json:"timestamp"`
	Payload   []byte    `msgpack:"payload" json:"payload"`
}

// Store is implemented by every snapshot backend. Lookups return
// sentinel.ErrNotFound; Put returns sentinel.ErrConflict for a version that
// already exists or does not advance the latest one.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, kind string, version uint64) (Record, error)
	Latest(ctx context.Context, kind string) (Record, error)
	AtOrBefore(ctx context.Context, kind string, t time.Time) (Record, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, kind string, limit int) ([]Record, error)
}

func encodeRecord(rec Record) ([]byte, error) {
	return msgpack.Marshal(rec)
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	err := msgpack.Unmarshal(data, &rec)
	return rec, err
}
