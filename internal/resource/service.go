// Package resource binds backend collections to typed CRUD services. Each
// method issues exactly one request through the API client and returns the
// backend's answer as is: there is no caching and no client-side mutation of
// records.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrMissingID is returned when an item operation receives a blank id.
var ErrMissingID = errors.New("resource id is required")

// Doer is the slice of the API client the services need.
type Doer interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error
}

// Spec describes one backend collection.
type Spec struct {
	// Name is the console's name for the collection, e.g. "organizations".
	Name string
	// Path is the collection path relative to the API base, with a
	// trailing slash, e.g. "tenants/branches/".
	Path string
	// UpdateMethod is PATCH or PUT, matching what the backend view expects.
	UpdateMethod string
	// IDField is "id" or "uuid".
	IDField string
}

// ItemPath returns the path of one record.
func (s Spec) ItemPath(id string) string {
	return s.Path + url.PathEscape(id) + "/"
}

// Service is the CRUD surface of one collection.
type Service[T any] struct {
	api  Doer
	spec Spec
}

// New binds a service to a collection.
func New[T any](api Doer, spec Spec) *Service[T] {
	if spec.UpdateMethod == "" {
		spec.UpdateMethod = http.MethodPatch
	}
	if spec.IDField == "" {
		spec.IDField = "id"
	}
	return &Service[T]{api: api, spec: spec}
}

// Spec returns the collection description.
func (s *Service[T]) Spec() Spec { return s.spec }

// List fetches the collection. filters become query parameters. Both a bare
// JSON array and a paginated {"results": [...]} envelope are accepted.
func (s *Service[T]) List(ctx context.Context, filters url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := s.api.Do(ctx, http.MethodGet, s.spec.Path, filters, nil, &raw); err != nil {
		return nil, err
	}
	items, err := DecodeList[T](raw)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.spec.Name, err)
	}
	return items, nil
}

// Get fetches one record.
func (s *Service[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	if strings.TrimSpace(id) == "" {
		return out, ErrMissingID
	}
	err := s.api.Do(ctx, http.MethodGet, s.spec.ItemPath(id), nil, nil, &out)
	return out, err
}

// Create posts payload to the collection and returns the stored record.
func (s *Service[T]) Create(ctx context.Context, payload any) (T, error) {
	var out T
	err := s.api.Do(ctx, http.MethodPost, s.spec.Path, nil, payload, &out)
	return out, err
}

// Update sends payload with the collection's update verb.
func (s *Service[T]) Update(ctx context.Context, id string, payload any) (T, error) {
	var out T
	if strings.TrimSpace(id) == "" {
		return out, ErrMissingID
	}
	err := s.api.Do(ctx, s.spec.UpdateMethod, s.spec.ItemPath(id), nil, payload, &out)
	return out, err
}

// Delete removes one record. Soft-delete endpoints answer with a message
// body, which is ignored.
func (s *Service[T]) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingID
	}
	return s.api.Do(ctx, http.MethodDelete, s.spec.ItemPath(id), nil, nil, nil)
}

// DecodeList accepts either a JSON array or an object with a results array.
func DecodeList[T any](raw []byte) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	if raw[0] == '{' {
		var page struct {
			Results []T `json:"results"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, err
		}
		if page.Results == nil {
			return []T{}, nil
		}
		return page.Results, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Record is an opaque backend object. The console reads a handful of fields
// and passes everything else through untouched.
type Record map[string]any

// Key returns the identifier stored under field ("id" or "uuid").
func (r Record) Key(field string) string {
	return Stringify(r[field])
}

// ID returns the "id" field, falling back to "uuid".
func (r Record) ID() string {
	if id := r.Key("id"); id != "" {
		return id
	}
	return r.Key("uuid")
}

// String returns a field rendered as text.
func (r Record) String(field string) string {
	return Stringify(r[field])
}

// Clone returns a shallow copy safe to edit as a form draft.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Stringify renders JSON scalars the way they appear in the UI. Whole
// numbers lose the trailing ".0" that float64 decoding would add; numbers
// beyond int64 keep the float form.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<63 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
