package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FirebaseStore implements RecordStore against the Firebase Realtime Database
// REST API. Every node is addressable as {base}/{path}[/{key}].json; a GET on
// a missing node returns the literal "null".
type FirebaseStore struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewFirebaseStore creates a new FirebaseStore. authToken is optional and is
// appended as the auth query parameter when set.
func NewFirebaseStore(baseURL, authToken string) (*FirebaseStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("firebase base url is required")
	}

	return &FirebaseStore{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (f *FirebaseStore) nodeURL(path, key string) string {
	u := f.baseURL + "/" + path
	if key != "" {
		u += "/" + key
	}
	u += ".json"
	if f.authToken != "" {
		u += "?auth=" + f.authToken
	}
	return u
}

// do issues one REST call and returns the response body.
func (f *FirebaseStore) do(ctx context.Context, op, method, path, key string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.nodeURL(path, key), reader)
	if err != nil {
		return nil, &StoreError{Op: op, Path: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &StoreError{Op: op, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StoreError{Op: op, Path: path, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StoreError{
			Op:   op,
			Path: path,
			Err:  fmt.Errorf("firebase API error (status %d): %s", resp.StatusCode, string(data)),
		}
	}
	return data, nil
}

// Put upserts a record under path/key.
func (f *FirebaseStore) Put(ctx context.Context, path, key string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return &StoreError{Op: "put", Path: path, Err: err}
	}
	_, err = f.do(ctx, "put", http.MethodPut, path, key, body)
	return err
}

// Get retrieves one record by key; ErrNotFound when the node is absent.
func (f *FirebaseStore) Get(ctx context.Context, path, key string) (json.RawMessage, error) {
	data, err := f.do(ctx, "get", http.MethodGet, path, key, nil)
	if err != nil {
		return nil, err
	}
	if isNullBody(data) {
		return nil, ErrNotFound
	}
	return json.RawMessage(data), nil
}

// GetAll retrieves a whole collection as a key-to-record mapping. A missing
// collection yields an empty map.
func (f *FirebaseStore) GetAll(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	data, err := f.do(ctx, "get", http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if isNullBody(data) {
		return map[string]json.RawMessage{}, nil
	}

	records := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &StoreError{Op: "get", Path: path, Err: err}
	}
	return records, nil
}

// Delete removes one record by key.
func (f *FirebaseStore) Delete(ctx context.Context, path, key string) error {
	_, err := f.do(ctx, "delete", http.MethodDelete, path, key, nil)
	return err
}

// DeleteAll removes a whole collection.
func (f *FirebaseStore) DeleteAll(ctx context.Context, path string) error {
	_, err := f.do(ctx, "delete", http.MethodDelete, path, "", nil)
	return err
}

// Close closes the store (no-op for the HTTP client).
func (f *FirebaseStore) Close() error {
	return nil
}

func isNullBody(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "null"
}
