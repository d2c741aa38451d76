package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.NextID(ctx, "tenants")
	if err != nil || id != 1 {
		t.Fatalf("NextID = %d, %v", id, err)
	}
	if err := m.Insert(ctx, "tenants", "1", Record{"id": 1, "name": "Acme"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert(ctx, "tenants", "1", Record{"id": 1}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate insert: %v", err)
	}
	if err := m.Insert(ctx, "tenants", "5", Record{"id": 5, "name": "Zen"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if next, _ := m.NextID(ctx, "tenants"); next != 6 {
		t.Fatalf("sequence did not observe inserted id, got %d", next)
	}

	got, err := m.Get(ctx, "tenants", "1")
	if err != nil || got["name"] != "Acme" {
		t.Fatalf("Get: %v %v", got, err)
	}
	got["name"] = "mutated"
	again, _ := m.Get(ctx, "tenants", "1")
	if again["name"] != "Acme" {
		t.Fatal("Get returned shared state")
	}

	if err := m.Replace(ctx, "tenants", "1", Record{"id": 1, "name": "Acme Two"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := m.Replace(ctx, "tenants", "9", Record{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Replace missing: %v", err)
	}

	rows, err := m.List(ctx, "tenants", Filter{"name": "Zen"})
	if err != nil || len(rows) != 1 || Text(rows[0]["id"]) != "5" {
		t.Fatalf("filtered list: %v %v", rows, err)
	}

	if err := m.Delete(ctx, "tenants", "1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "tenants", "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted record still readable: %v", err)
	}
	rows, _ = m.List(ctx, "tenants", nil)
	if len(rows) != 1 {
		t.Fatalf("expected one remaining row, got %d", len(rows))
	}
	if err := m.Delete(ctx, "tenants", "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestListUnknownCollectionIsEmpty(t *testing.T) {
	rows, err := NewMemory().List(context.Background(), "nothing", nil)
	if err != nil || rows == nil || len(rows) != 0 {
		t.Fatalf("List = %v, %v", rows, err)
	}
}

func TestText(t *testing.T) {
	cases := map[string]any{
		"3": 3.0, "2.5": 2.5, "true": true, "": nil, "x": "x", "7": int64(7),
		"-12":                  -12.0,
		"10000000000000000000": 1e19,
		"[1,2]":                []any{1.0, 2.0},
	}
	for want, in := range cases {
		if got := Text(in); got != want {
			t.Fatalf("Text(%v) = %q, want %q", in, got, want)
		}
	}
}
