// Package store persists the reference backend's records. Every collection
// holds schemaless JSON documents keyed by a string id.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"brdconsole.org/internal/resource"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: already exists")
)

// Record is one stored document.
type Record map[string]any

// Filter selects records whose field renders to the given text. An empty
// filter matches everything.
type Filter map[string]string

// Store is the persistence contract of the reference backend.
type Store interface {
	// NextID returns the next numeric identifier of a collection.
	NextID(ctx context.Context, collection string) (int64, error)
	List(ctx context.Context, collection string, filter Filter) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	// Insert stores rec under id. ErrConflict when id is taken.
	Insert(ctx context.Context, collection, id string, rec Record) error
	// Replace overwrites an existing record. ErrNotFound when absent.
	Replace(ctx context.Context, collection, id string, rec Record) error
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Text renders a field value the way filters compare it: the console's
// rendering, so a query parameter matches what the list page shows.
func Text(v any) string { return resource.Stringify(v) }

// Matches reports whether rec satisfies every filter entry.
func (f Filter) Matches(rec Record) bool {
	for k, want := range f {
		if Text(rec[k]) != want {
			return false
		}
	}
	return true
}

// Clone deep-copies rec through JSON so callers never share nested maps.
func Clone(rec Record) (Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	out := Record{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
