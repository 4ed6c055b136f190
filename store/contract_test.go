package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

type contractStore interface {
	Store
	Swapper
}

// runContract exercises behavior every backend must share. advance moves
// the backend's notion of time forward so TTLs can be checked.
func runContract(t *testing.T, s contractStore, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, "ns:login:missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set get delete", func(t *testing.T) {
		if err := s.Set(ctx, "ns:login:a", []byte("v1"), 0); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, err := s.Get(ctx, "ns:login:a")
		if err != nil || string(got) != "v1" {
			t.Fatalf("expected v1, got %q (%v)", got, err)
		}
		if err := s.Delete(ctx, "ns:login:a"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, "ns:login:a"); err != nil {
			t.Fatalf("second delete should be idempotent: %v", err)
		}
		if _, err := s.Get(ctx, "ns:login:a"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("list keys by prefix", func(t *testing.T) {
		for _, k := range []string{"ns:login:x", "ns:login:y", "other:login:z", "ns*:login:w"} {
			if err := s.Set(ctx, k, []byte("1"), 0); err != nil {
				t.Fatalf("set %s: %v", k, err)
			}
		}
		keys, err := s.ListKeys(ctx, "ns:")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		sort.Strings(keys)
		if len(keys) != 2 || keys[0] != "ns:login:x" || keys[1] != "ns:login:y" {
			t.Fatalf("unexpected keys %v", keys)
		}
		for _, k := range []string{"ns:login:x", "ns:login:y", "other:login:z", "ns*:login:w"} {
			_ = s.Delete(ctx, k)
		}
	})

	t.Run("compare and swap", func(t *testing.T) {
		key := "ns:login:cas"
		ok, err := s.CompareAndSwap(ctx, key, nil, []byte("one"), 0)
		if err != nil || !ok {
			t.Fatalf("expected create to succeed, got %v (%v)", ok, err)
		}
		ok, err = s.CompareAndSwap(ctx, key, nil, []byte("dup"), 0)
		if err != nil || ok {
			t.Fatalf("expected create-if-absent to fail on existing key, got %v (%v)", ok, err)
		}
		ok, err = s.CompareAndSwap(ctx, key, []byte("stale"), []byte("two"), 0)
		if err != nil || ok {
			t.Fatalf("expected stale swap to fail, got %v (%v)", ok, err)
		}
		ok, err = s.CompareAndSwap(ctx, key, []byte("one"), []byte("two"), 0)
		if err != nil || !ok {
			t.Fatalf("expected swap to succeed, got %v (%v)", ok, err)
		}
		got, _ := s.Get(ctx, key)
		if string(got) != "two" {
			t.Fatalf("expected two, got %q", got)
		}

		ok, err = s.CompareAndDelete(ctx, key, []byte("one"))
		if err != nil || ok {
			t.Fatalf("expected stale delete to fail, got %v (%v)", ok, err)
		}
		ok, err = s.CompareAndDelete(ctx, key, []byte("two"))
		if err != nil || !ok {
			t.Fatalf("expected delete to succeed, got %v (%v)", ok, err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected key gone, got %v", err)
		}
	})

	t.Run("create if absent over a set key", func(t *testing.T) {
		key := "ns:login:held"
		if err := s.Set(ctx, key, []byte("held"), time.Minute); err != nil {
			t.Fatalf("set: %v", err)
		}
		ok, err := s.CompareAndSwap(ctx, key, nil, []byte("intruder"), 0)
		if err != nil || ok {
			t.Fatalf("expected create-if-absent to fail, got %v (%v)", ok, err)
		}
		got, _ := s.Get(ctx, key)
		if string(got) != "held" {
			t.Fatalf("expected held, got %q", got)
		}
		_ = s.Delete(ctx, key)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		key := "ns:login:ttl"
		if err := s.Set(ctx, key, []byte("v"), 2*time.Second); err != nil {
			t.Fatalf("set: %v", err)
		}
		advance(time.Second)
		if _, err := s.Get(ctx, key); err != nil {
			t.Fatalf("expected key alive, got %v", err)
		}
		advance(2 * time.Second)
		if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected key expired, got %v", err)
		}
		keys, err := s.ListKeys(ctx, "ns:login:ttl")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(keys) != 0 {
			t.Fatalf("expected expired key to be hidden, got %v", keys)
		}
		ok, err := s.CompareAndSwap(ctx, key, nil, []byte("fresh"), 0)
		if err != nil || !ok {
			t.Fatalf("expected create over expired key to succeed, got %v (%v)", ok, err)
		}
		_ = s.Delete(ctx, key)
	})
}
