package tier

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
)

func testStores(t *testing.T) map[string]Store {
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("could not open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"mem":    NewMemStore(),
		"sqlite": sqlite,
	}
}

func TestName(t *testing.T) {
	if name := Name(RoleStatic, "v3"); name != "static-v3" {
		t.Fatalf("got tier name %s", name)
	}
	if name := Name(RoleDynamic, "v3"); name != "dynamic-v3" {
		t.Fatalf("got tier name %s", name)
	}
}

func TestPutGet(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put("static-v1", "GET:/a.css", []byte("body a")); err != nil {
				t.Fatalf("put: %v", err)
			}
			bytes, ok, err := s.Get("static-v1", "GET:/a.css")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !ok {
				t.Fatal("entry not found after put")
			}
			if string(bytes) != "body a" {
				t.Fatalf("got bytes %q", bytes)
			}
			if _, ok, err := s.Get("static-v1", "GET:/missing"); err != nil || ok {
				t.Fatalf("missing key: ok=%v err=%v", ok, err)
			}
			if _, ok, err := s.Get("no-such-tier", "GET:/a.css"); err != nil || ok {
				t.Fatalf("missing tier: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestOldestKeysOrder(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 5; i++ {
				key := fmt.Sprintf("GET:/%d", i)
				if err := s.Put("dynamic-v1", key, []byte("x")); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			keys, err := s.OldestKeys("dynamic-v1", 3)
			if err != nil {
				t.Fatalf("oldest keys: %v", err)
			}
			want := []string{"GET:/1", "GET:/2", "GET:/3"}
			if !reflect.DeepEqual(keys, want) {
				t.Fatalf("got keys %v, want %v", keys, want)
			}
			keys, err = s.OldestKeys("dynamic-v1", 10)
			if err != nil {
				t.Fatalf("oldest keys: %v", err)
			}
			if len(keys) != 5 {
				t.Fatalf("got %d keys, want all 5", len(keys))
			}
		})
	}
}

func TestReplaceMovesToBack(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"GET:/a", "GET:/b", "GET:/c"} {
				if err := s.Put("dynamic-v1", key, []byte("first")); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			if err := s.Put("dynamic-v1", "GET:/a", []byte("second")); err != nil {
				t.Fatalf("replace: %v", err)
			}
			count, err := s.Count("dynamic-v1")
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != 3 {
				t.Fatalf("got count %d after replace, want 3", count)
			}
			keys, err := s.OldestKeys("dynamic-v1", 3)
			if err != nil {
				t.Fatalf("oldest keys: %v", err)
			}
			want := []string{"GET:/b", "GET:/c", "GET:/a"}
			if !reflect.DeepEqual(keys, want) {
				t.Fatalf("got keys %v, want %v", keys, want)
			}
			bytes, ok, _ := s.Get("dynamic-v1", "GET:/a")
			if !ok || string(bytes) != "second" {
				t.Fatalf("replaced entry not readable: ok=%v bytes=%q", ok, bytes)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put("dynamic-v1", "GET:/a", []byte("x")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Delete("dynamic-v1", "GET:/a"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := s.Get("dynamic-v1", "GET:/a"); ok {
				t.Fatal("entry still present after delete")
			}
			if err := s.Delete("dynamic-v1", "GET:/missing"); err != nil {
				t.Fatalf("delete of missing key: %v", err)
			}
		})
	}
}

func TestTiersAndDrop(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put("static-v1", "GET:/a", []byte("x")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Put("dynamic-v1", "GET:/b", []byte("y")); err != nil {
				t.Fatalf("put: %v", err)
			}
			tiers, err := s.Tiers()
			if err != nil {
				t.Fatalf("tiers: %v", err)
			}
			if !reflect.DeepEqual(tiers, []string{"dynamic-v1", "static-v1"}) {
				t.Fatalf("got tiers %v", tiers)
			}
			if err := s.Drop("static-v1"); err != nil {
				t.Fatalf("drop: %v", err)
			}
			if _, ok, _ := s.Get("static-v1", "GET:/a"); ok {
				t.Fatal("entry survived tier drop")
			}
			bytes, ok, _ := s.Get("dynamic-v1", "GET:/b")
			if !ok || string(bytes) != "y" {
				t.Fatal("drop removed entries of another tier")
			}
		})
	}
}

func TestPutAll(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			entries := []Entry{
				{Key: "GET:/", Bytes: []byte("shell")},
				{Key: "GET:/site.css", Bytes: []byte("css")},
				{Key: "GET:/app.js", Bytes: []byte("js")},
			}
			if err := s.PutAll("static-v2", entries); err != nil {
				t.Fatalf("put all: %v", err)
			}
			count, err := s.Count("static-v2")
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != 3 {
				t.Fatalf("got count %d, want 3", count)
			}
			for _, entry := range entries {
				bytes, ok, err := s.Get("static-v2", entry.Key)
				if err != nil || !ok {
					t.Fatalf("get %s: ok=%v err=%v", entry.Key, ok, err)
				}
				if string(bytes) != string(entry.Bytes) {
					t.Fatalf("got bytes %q for %s", bytes, entry.Key)
				}
			}
		})
	}
}
