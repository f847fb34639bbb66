// Copyright 2025 Certen Protocol

package kvdb

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func TestGetSetRoundTrip(t *testing.T) {
	a := NewKVAdapter(dbm.NewMemDB())

	if v, err := a.Get([]byte("missing")); err != nil || v != nil {
		t.Fatalf("expected nil, nil for missing key, got %v, %v", v, err)
	}

	if err := a.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := a.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("expected v, got %q", v)
	}
}

func TestIterateOrdersByKey(t *testing.T) {
	a := NewKVAdapter(dbm.NewMemDB())
	for _, k := range []string{"b", "a", "c"} {
		if err := a.Set([]byte(k), []byte(k)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	var seen []string
	err := a.Iterate(nil, nil, func(key, value []byte) bool {
		seen = append(seen, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 3 || seen[0] != "a" || seen[1] != "b" || seen[2] != "c" {
		t.Fatalf("expected ascending a,b,c, got %v", seen)
	}
}

func TestIterateStopsEarly(t *testing.T) {
	a := NewKVAdapter(dbm.NewMemDB())
	for _, k := range []string{"a", "b", "c"} {
		a.Set([]byte(k), []byte(k))
	}

	count := 0
	a.Iterate(nil, nil, func(key, value []byte) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("expected iteration to stop after 2, got %d", count)
	}
}

func TestNilDBIsSafe(t *testing.T) {
	a := NewKVAdapter(nil)
	if v, err := a.Get([]byte("x")); v != nil || err != nil {
		t.Fatalf("expected nil, nil, got %v, %v", v, err)
	}
	if err := a.Set([]byte("x"), []byte("y")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := a.Iterate(nil, nil, func(k, v []byte) bool { return true }); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
