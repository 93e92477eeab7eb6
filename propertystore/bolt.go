package propertystore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"
)

var bucketProperties = []byte("properties")

// BoltStore is a Store backed by a single go.etcd.io/bbolt file,
// following cuemby-warren's pkg/storage/boltdb.go bucket-per-concern
// layout: one bucket, Update for writes, View for reads, ForEach for
// iteration.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) a bbolt database at path and
// ensures the properties bucket exists.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("propertystore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProperties)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("propertystore: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func rowKey(key Key) []byte {
	return []byte(key.Interface + "\x00" + key.Path)
}

func decodeKey(raw []byte) Key {
	s := string(raw)
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return Key{Interface: s[:i], Path: s[i+1:]}
		}
	}
	return Key{Interface: s}
}

func encodeRow(major int32, value []byte) []byte {
	out := make([]byte, 4+len(value))
	binary.BigEndian.PutUint32(out[:4], uint32(major))
	copy(out[4:], value)
	return out
}

func decodeRow(raw []byte) (int32, []byte) {
	if len(raw) < 4 {
		return 0, nil
	}
	major := int32(binary.BigEndian.Uint32(raw[:4]))
	value := make([]byte, len(raw)-4)
	copy(value, raw[4:])
	return major, value
}

func (s *BoltStore) Contains(key Key, major int32, value []byte) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketProperties).Get(rowKey(key))
		if raw == nil {
			return nil
		}
		gotMajor, gotValue := decodeRow(raw)
		found = gotMajor == major && bytes.Equal(gotValue, value)
		return nil
	})
	return found, err
}

func (s *BoltStore) StoreRow(key Key, major int32, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProperties).Put(rowKey(key), encodeRow(major, value))
	})
}

func (s *BoltStore) Delete(key Key) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProperties)
		if b.Get(rowKey(key)) == nil {
			return ErrNotFound
		}
		return b.Delete(rowKey(key))
	})
}

func (s *BoltStore) All() ([]Row, error) {
	var rows []Row
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProperties).ForEach(func(k, v []byte) error {
			major, value := decodeRow(v)
			rows = append(rows, Row{Key: decodeKey(k), Major: major, Value: value})
			return nil
		})
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Interface != rows[j].Interface {
			return rows[i].Interface < rows[j].Interface
		}
		return rows[i].Path < rows[j].Path
	})
	return rows, err
}

// Iterate snapshots all rows within a single read transaction, then
// walks the snapshot. A fn-triggered Delete therefore never disturbs the
// walk, satisfying the iteration-safety invariant by construction
// rather than by tracking bbolt cursor positions across transactions
// (bbolt cursors are only valid for the lifetime of their transaction,
// so holding one open across a caller-driven deletion is not an option).
func (s *BoltStore) Iterate(fn func(Row) bool) error {
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

func (s *BoltStore) Close() error { return s.db.Close() }
