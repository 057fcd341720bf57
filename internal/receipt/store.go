package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no record exists under the given key.
var ErrNotFound = errors.New("record not found")

// StoreError reports a failed record store operation. The orchestrator decides
// what the failure means for the user; store implementations never log and
// swallow on their own.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// RecordStore is the gateway to the keyed document store. Collection paths are
// slash-separated and always carry the per-user prefix, so implementations
// need no notion of users. Put is an upsert; GetAll and DeleteAll operate on a
// whole collection, including nested ones under an umbrella path.
type RecordStore interface {
	Put(ctx context.Context, path, key string, record any) error
	Get(ctx context.Context, path, key string) (json.RawMessage, error)
	GetAll(ctx context.Context, path string) (map[string]json.RawMessage, error)
	Delete(ctx context.Context, path, key string) error
	DeleteAll(ctx context.Context, path string) error
	Close() error
}
