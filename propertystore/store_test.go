package propertystore

import (
	"path/filepath"
	"testing"
)

func TestMemoryStoreContract(t *testing.T) {
	testStoreContract(t, func() Store { return OpenMemory() })
}

func TestBoltStoreContract(t *testing.T) {
	dir := t.TempDir()
	n := 0
	testStoreContract(t, func() Store {
		n++
		s, err := OpenBolt(filepath.Join(dir, "props"+string(rune('0'+n))+".db"))
		if err != nil {
			t.Fatalf("OpenBolt: %v", err)
		}
		return s
	})
}

// testStoreContract exercises the operations every property store
// backend must support. newStore must return a fresh, empty store each
// call.
func testStoreContract(t *testing.T, newStore func() Store) {
	t.Helper()

	t.Run("store and contains", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		k := Key{Interface: "org.example.Foo", Path: "/a"}
		ok, err := s.Contains(k, 0, []byte("x"))
		if err != nil || ok {
			t.Fatalf("Contains on empty store: ok=%v err=%v", ok, err)
		}
		if err := s.StoreRow(k, 1, []byte("hello")); err != nil {
			t.Fatalf("StoreRow: %v", err)
		}
		ok, err = s.Contains(k, 1, []byte("hello"))
		if err != nil || !ok {
			t.Fatalf("Contains after store: ok=%v err=%v", ok, err)
		}
		ok, err = s.Contains(k, 2, []byte("hello"))
		if err != nil || ok {
			t.Fatalf("Contains with wrong major should be false: ok=%v err=%v", ok, err)
		}
	})

	t.Run("store upserts", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		k := Key{Interface: "org.example.Foo", Path: "/a"}
		_ = s.StoreRow(k, 1, []byte("v1"))
		_ = s.StoreRow(k, 1, []byte("v2"))
		rows, err := s.All()
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected a single upserted row, got %d", len(rows))
		}
		if string(rows[0].Value) != "v2" {
			t.Fatalf("got %q want v2", rows[0].Value)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		k := Key{Interface: "org.example.Foo", Path: "/a"}
		if err := s.Delete(k); err != ErrNotFound {
			t.Fatalf("Delete on absent row: err=%v want ErrNotFound", err)
		}
		_ = s.StoreRow(k, 1, []byte("v"))
		if err := s.Delete(k); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(k); err != ErrNotFound {
			t.Fatalf("second Delete: err=%v want ErrNotFound", err)
		}
	})

	t.Run("iterate delete current row", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		keys := []Key{
			{Interface: "org.example.Foo", Path: "/a"},
			{Interface: "org.example.Foo", Path: "/b"},
			{Interface: "org.example.Foo", Path: "/c"},
		}
		for _, k := range keys {
			_ = s.StoreRow(k, 1, []byte(k.Path))
		}
		var visited []string
		err := s.Iterate(func(row Row) bool {
			visited = append(visited, row.Path)
			if row.Path == "/b" {
				if err := s.Delete(row.Key); err != nil {
					t.Fatalf("delete current row: %v", err)
				}
			}
			return true
		})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if len(visited) != 3 {
			t.Fatalf("expected to visit all 3 rows before deletion took effect, got %v", visited)
		}
		remaining, err := s.All()
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(remaining) != 2 {
			t.Fatalf("expected 2 rows remaining after delete, got %d", len(remaining))
		}
	})

	t.Run("iterate stop early", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		for _, p := range []string{"/a", "/b", "/c"} {
			_ = s.StoreRow(Key{Interface: "iface", Path: p}, 1, nil)
		}
		count := 0
		_ = s.Iterate(func(Row) bool {
			count++
			return count < 2
		})
		if count != 2 {
			t.Fatalf("got %d visits, want 2 (stopped early)", count)
		}
	})
}
