package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore implements RecordStore on a local bbolt file. Each slash-separated
// path segment maps to a nested bucket, so the umbrella path for a user is a
// bucket holding its Receipts and Items buckets.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// createBuckets walks the path, creating each nested bucket as needed.
func createBuckets(tx *bbolt.Tx, segments []string) (*bbolt.Bucket, error) {
	bucket, err := tx.CreateBucketIfNotExists([]byte(segments[0]))
	if err != nil {
		return nil, err
	}
	for _, segment := range segments[1:] {
		bucket, err = bucket.CreateBucketIfNotExists([]byte(segment))
		if err != nil {
			return nil, err
		}
	}
	return bucket, nil
}

// findBucket walks the path without creating anything; nil when any segment
// is missing.
func findBucket(tx *bbolt.Tx, segments []string) *bbolt.Bucket {
	bucket := tx.Bucket([]byte(segments[0]))
	for _, segment := range segments[1:] {
		if bucket == nil {
			return nil
		}
		bucket = bucket.Bucket([]byte(segment))
	}
	return bucket
}

// Put upserts a record under path/key.
func (b *BoltStore) Put(ctx context.Context, path, key string, record any) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := createBuckets(tx, splitPath(path))
		if err != nil {
			return err
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put([]byte(key), data)
	})
	if err != nil {
		return &StoreError{Op: "put", Path: path, Err: err}
	}
	return nil
}

// Get retrieves one record by key; ErrNotFound when the key or any path
// segment is absent.
func (b *BoltStore) Get(ctx context.Context, path, key string) (json.RawMessage, error) {
	var record json.RawMessage
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := findBucket(tx, splitPath(path))
		if bucket == nil {
			return ErrNotFound
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction
		record = append(json.RawMessage(nil), data...)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Path: path, Err: err}
	}
	return record, nil
}

// GetAll retrieves a whole collection as a key-to-record mapping. Nested
// buckets under an umbrella path become nested JSON objects. A missing
// collection yields an empty map.
func (b *BoltStore) GetAll(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	records := make(map[string]json.RawMessage)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := findBucket(tx, splitPath(path))
		if bucket == nil {
			return nil
		}
		var err error
		records, err = collectBucket(bucket)
		return err
	})
	if err != nil {
		return nil, &StoreError{Op: "get", Path: path, Err: err}
	}
	return records, nil
}

func collectBucket(bucket *bbolt.Bucket) (map[string]json.RawMessage, error) {
	records := make(map[string]json.RawMessage)
	err := bucket.ForEach(func(k, v []byte) error {
		if v == nil {
			nested, err := collectBucket(bucket.Bucket(k))
			if err != nil {
				return err
			}
			data, err := json.Marshal(nested)
			if err != nil {
				return err
			}
			records[string(k)] = data
			return nil
		}
		records[string(k)] = append(json.RawMessage(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes one record by key. Deleting a missing record is a no-op.
func (b *BoltStore) Delete(ctx context.Context, path, key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := findBucket(tx, splitPath(path))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return &StoreError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// DeleteAll removes a whole collection, nested collections included.
// Deleting a missing collection is a no-op.
func (b *BoltStore) DeleteAll(ctx context.Context, path string) error {
	segments := splitPath(path)
	err := b.db.Update(func(tx *bbolt.Tx) error {
		name := []byte(segments[len(segments)-1])
		if len(segments) == 1 {
			err := tx.DeleteBucket(name)
			if errors.Is(err, bbolt.ErrBucketNotFound) {
				return nil
			}
			return err
		}
		parent := findBucket(tx, segments[:len(segments)-1])
		if parent == nil {
			return nil
		}
		err := parent.DeleteBucket(name)
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return &StoreError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// Close closes the database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
