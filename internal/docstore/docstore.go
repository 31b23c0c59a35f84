// Package docstore is the gateway to the remote document collection: plain
// writes plus live query observation. Observe delivers the complete current
// result set on every change, never a diff.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrWriteFailed  = errors.New("document write failed")
	ErrUpdateFailed = errors.New("document update failed")
	ErrDeleteFailed = errors.New("document delete failed")
)

// Document is one remote document: a store-assigned id and its loosely typed
// field data, exactly as the store holds it.
type Document struct {
	ID   string
	Data map[string]any
}

// Snapshot is the complete current result set of an observed collection.
type Snapshot []Document

// ServerTimestamp marks a field whose value the store fills in with its own
// clock at write time.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

// Store is the gateway contract. Collection paths are slash-separated, e.g.
// "posts" or "posts/<id>/comments" for a nested sub-collection.
type Store interface {
	// Add writes a new document and returns its store-assigned id.
	Add(ctx context.Context, path string, data map[string]any) (string, error)
	// Set writes a document under a caller-chosen id, merging data into
	// any fields it already has.
	Set(ctx context.Context, path, id string, data map[string]any) error
	// Update merges patch fields into an existing document.
	Update(ctx context.Context, path, id string, patch map[string]any) error
	// Delete removes one document.
	Delete(ctx context.Context, path, id string) error
	// DeleteAll removes every document in a collection.
	DeleteAll(ctx context.Context, path string) error
	// Observe returns a lazy, infinite stream of full snapshots for the
	// collection: one snapshot immediately, then one per change
	// notification. The channel closes when ctx is done or the
	// subscription is lost.
	Observe(ctx context.Context, path string) (<-chan Snapshot, error)
	Close() error
}

// encodeBody serializes document data, resolving ServerTimestamp markers and
// normalizing time values to RFC 3339.
func encodeBody(data map[string]any) ([]byte, error) {
	out := make(map[string]any, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case serverTimestamp:
			out[key] = time.Now().UTC().Format(time.RFC3339Nano)
		case time.Time:
			out[key] = v.UTC().Format(time.RFC3339Nano)
		default:
			out[key] = value
		}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return body, nil
}

func decodeBody(id string, body []byte) (Document, error) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return Document{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return Document{ID: id, Data: data}, nil
}
