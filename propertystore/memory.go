package propertystore

import (
	"bytes"
	"sort"
	"sync"
)

// MemoryStore is a Store backed by an in-process map, used by the
// session engine's tests in place of a real broker-adjacent database.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[Key]Row
}

// OpenMemory returns a ready-to-use, empty MemoryStore.
func OpenMemory() *MemoryStore {
	return &MemoryStore{rows: make(map[Key]Row)}
}

func (s *MemoryStore) Contains(key Key, major int32, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok {
		return false, nil
	}
	return row.Major == major && bytes.Equal(row.Value, value), nil
}

func (s *MemoryStore) StoreRow(key Key, major int32, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.rows[key] = Row{Key: key, Major: major, Value: cp}
	return nil
}

func (s *MemoryStore) Delete(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[key]; !ok {
		return ErrNotFound
	}
	delete(s.rows, key)
	return nil
}

func (s *MemoryStore) All() ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	sortRows(out)
	return out, nil
}

// Iterate snapshots all rows up front via All, satisfying the "delete the
// current row" mutation guarantee by construction: the walk never
// consults the live map again.
func (s *MemoryStore) Iterate(fn func(Row) bool) error {
	rows, err := s.All()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !fn(row) {
			break
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Interface != rows[j].Interface {
			return rows[i].Interface < rows[j].Interface
		}
		return rows[i].Path < rows[j].Path
	})
}
