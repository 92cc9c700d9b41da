package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrNoID         = errors.New("record has no id field")
	ErrNoCollection = errors.New("unknown collection")
	ErrNoIndex      = errors.New("unknown index")
)

// Record is a free-form persisted entity. Every record carries a string "id"
// primary key; foreign keys are soft references the store does not enforce.
type Record = map[string]any

type IndexSpec struct {
	Field  string
	Unique bool
}

type CollectionSpec struct {
	Name    string
	Indexes []IndexSpec
}

// DefaultSchema declares the collections the offline client persists.
func DefaultSchema() []CollectionSpec {
	return []CollectionSpec{
		{Name: "workflows", Indexes: []IndexSpec{
			{Field: "alias", Unique: true},
			{Field: "category"},
			{Field: "updatedAt"},
		}},
		{Name: "nodes", Indexes: []IndexSpec{
			{Field: "workflowId"},
			{Field: "type"},
		}},
		{Name: "validationRules", Indexes: []IndexSpec{
			{Field: "nodeId"},
		}},
		{Name: "executions", Indexes: []IndexSpec{
			{Field: "workflowId"},
			{Field: "status"},
		}},
		{Name: "connectors", Indexes: []IndexSpec{
			{Field: "type"},
		}},
		{Name: "syncQueue", Indexes: []IndexSpec{
			{Field: "status"},
			{Field: "entityType"},
		}},
	}
}

const metaBucket = "meta"

// Store is a schema-versioned local database backed by bbolt. Collections are
// declared once at construction; every mutating call runs in its own
// read-write transaction. The underlying connection opens lazily and callers
// never manage it directly.
type Store struct {
	path    string
	version int
	schema  []CollectionSpec

	mu sync.Mutex
	db *bolt.DB
}

func New(path string, version int, schema []CollectionSpec) *Store {
	return &Store{path: path, version: version, schema: schema}
}

func (s *Store) ensureOpen() (*bolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return err
		}
		for _, spec := range s.schema {
			if _, err := tx.CreateBucketIfNotExists([]byte(spec.Name)); err != nil {
				return err
			}
			for _, idx := range spec.Indexes {
				if _, err := tx.CreateBucketIfNotExists(indexBucket(spec.Name, idx.Field)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.db = db
	return db, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) spec(collection string) (*CollectionSpec, error) {
	for i := range s.schema {
		if s.schema[i].Name == collection {
			return &s.schema[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoCollection, collection)
}

func indexBucket(collection, field string) []byte {
	return []byte(collection + "/" + field)
}

// indexKey builds "<value>\x00<id>" so non-unique indexes keep one entry per
// record while prefix scans return all matches for a value.
func indexKey(value, id string) []byte {
	return append(append([]byte(value), 0), []byte(id)...)
}

func indexValue(rec Record, field string) (string, bool) {
	v, ok := rec[field]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func recordID(rec Record) (string, error) {
	id, ok := rec["id"].(string)
	if !ok || id == "" {
		return "", ErrNoID
	}
	return id, nil
}

// Save writes one record in a single transaction, replacing any existing
// record with the same id and maintaining the collection's indexes.
func (s *Store) Save(collection string, rec Record) error {
	spec, err := s.spec(collection)
	if err != nil {
		return err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx, spec, rec)
	})
}

// SaveAll writes every record in one transaction: either all succeed or none
// are observable.
func (s *Store) SaveAll(collection string, recs []Record) error {
	spec, err := s.spec(collection)
	if err != nil {
		return err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		for _, rec := range recs {
			if err := putRecord(tx, spec, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func putRecord(tx *bolt.Tx, spec *CollectionSpec, rec Record) error {
	id, err := recordID(rec)
	if err != nil {
		return err
	}

	bucket := tx.Bucket([]byte(spec.Name))

	// Drop index entries for the record being replaced.
	if old := bucket.Get([]byte(id)); old != nil {
		var oldRec Record
		if err := json.Unmarshal(old, &oldRec); err == nil {
			removeIndexEntries(tx, spec, oldRec, id)
		}
	}

	for _, idx := range spec.Indexes {
		value, ok := indexValue(rec, idx.Field)
		if !ok {
			continue
		}
		ib := tx.Bucket(indexBucket(spec.Name, idx.Field))
		if idx.Unique {
			if existing := firstIDForValue(ib, value); existing != "" && existing != id {
				return fmt.Errorf("unique index %s.%s violated by value %q", spec.Name, idx.Field, value)
			}
		}
		if err := ib.Put(indexKey(value, id), []byte(id)); err != nil {
			return err
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return bucket.Put([]byte(id), data)
}

func removeIndexEntries(tx *bolt.Tx, spec *CollectionSpec, rec Record, id string) {
	for _, idx := range spec.Indexes {
		value, ok := indexValue(rec, idx.Field)
		if !ok {
			continue
		}
		tx.Bucket(indexBucket(spec.Name, idx.Field)).Delete(indexKey(value, id))
	}
}

func firstIDForValue(ib *bolt.Bucket, value string) string {
	prefix := append([]byte(value), 0)
	c := ib.Cursor()
	k, v := c.Seek(prefix)
	if k != nil && bytes.HasPrefix(k, prefix) {
		return string(v)
	}
	return ""
}

func (s *Store) Get(collection, id string) (Record, error) {
	if _, err := s.spec(collection); err != nil {
		return nil, err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	var rec Record
	err = db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(collection)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) GetAll(collection string) ([]Record, error) {
	if _, err := s.spec(collection); err != nil {
		return nil, err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	var recs []Record
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(collection)).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Query returns every record whose indexed field equals value. Duplicates are
// allowed unless the index was declared unique.
func (s *Store) Query(collection, index string, value any) ([]Record, error) {
	spec, err := s.spec(collection)
	if err != nil {
		return nil, err
	}
	found := false
	for _, idx := range spec.Indexes {
		if idx.Field == index {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoIndex, collection, index)
	}

	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	prefix := append([]byte(fmt.Sprintf("%v", value)), 0)

	var recs []Record
	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		ib := tx.Bucket(indexBucket(collection, index))
		c := ib.Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			data := bucket.Get(id)
			if data == nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) Delete(collection, id string) error {
	spec, err := s.spec(collection)
	if err != nil {
		return err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		return deleteRecord(tx, spec, id)
	})
}

func (s *Store) DeleteAll(collection string, ids []string) error {
	spec, err := s.spec(collection)
	if err != nil {
		return err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		for _, id := range ids {
			if err := deleteRecord(tx, spec, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteRecord(tx *bolt.Tx, spec *CollectionSpec, id string) error {
	bucket := tx.Bucket([]byte(spec.Name))
	data := bucket.Get([]byte(id))
	if data != nil {
		var rec Record
		if err := json.Unmarshal(data, &rec); err == nil {
			removeIndexEntries(tx, spec, rec, id)
		}
	}
	return bucket.Delete([]byte(id))
}

// Clear drops every record and index entry in the collection.
func (s *Store) Clear(collection string) error {
	spec, err := s.spec(collection)
	if err != nil {
		return err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(spec.Name)); err != nil {
			return err
		}
		if _, err := tx.CreateBucket([]byte(spec.Name)); err != nil {
			return err
		}
		for _, idx := range spec.Indexes {
			if err := tx.DeleteBucket(indexBucket(spec.Name, idx.Field)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(indexBucket(spec.Name, idx.Field)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Count(collection string) (int, error) {
	if _, err := s.spec(collection); err != nil {
		return 0, err
	}
	db, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}

	count := 0
	err = db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(collection)).Stats().KeyN
		return nil
	})
	return count, err
}

// GetMeta reads a value from the meta bucket; empty string when absent.
func (s *Store) GetMeta(key string) (string, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return "", err
	}

	var value string
	err = db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(metaBucket)).Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

func (s *Store) PutMeta(key, value string) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Put([]byte(key), []byte(value))
	})
}
