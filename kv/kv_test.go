package kv_test

import (
	"context"
	"errors"
	"testing"

	"go-ac7/kv"
)

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return map[string]kv.Store{"memory": kv.NewMemory(), "badger": b}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"param", "30", "0"}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get missing: %v", err)
			}
			if err := s.Set(ctx, key, []byte{2}); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || len(got) != 1 || got[0] != 2 {
				t.Fatalf("Get = %v, %v", got, err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after delete: %v", err)
			}
			if err := s.Delete(ctx, kv.Key{"no", "such"}); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []kv.Key{{"param", "3", "1"}, {"param", "3", "0"}, {"param", "30", "0"}, {"other"}} {
				if err := s.Set(ctx, k, []byte(k.String())); err != nil {
					t.Fatal(err)
				}
			}
			var got []string
			for e, err := range s.List(ctx, kv.Key{"param", "3"}) {
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, e.Key.String())
				if string(e.Value) != e.Key.String() {
					t.Errorf("value of %s = %q", e.Key, e.Value)
				}
			}
			want := []string{"param:3:0", "param:3:1"}
			if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
				t.Errorf("List = %v, want %v", got, want)
			}
		})
	}
}

func TestMemoryCopies(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemory()
	v := []byte{1, 2}
	s.Set(ctx, kv.Key{"a"}, v)
	v[0] = 9
	got, _ := s.Get(ctx, kv.Key{"a"})
	if got[0] != 1 {
		t.Error("Set kept caller's slice")
	}
	got[1] = 9
	again, _ := s.Get(ctx, kv.Key{"a"})
	if again[1] != 2 {
		t.Error("Get returned internal slice")
	}
}
