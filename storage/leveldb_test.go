package storage

import (
	"errors"
	"testing"
)

func openTestDB(t *testing.T) *LevelDB {
	t.Helper()
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLevelDBSetGetDelete(t *testing.T) {
	db := openTestDB(t)

	if err := db.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, err := db.Get([]byte("k1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1" {
		t.Errorf("Get = %q, want v1", got)
	}

	if err := db.Delete([]byte("k1")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get([]byte("k1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLevelDBGetMissingKeyReturnsErrNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Get([]byte("absent")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLevelDBBatchAppliesAllOrNothing(t *testing.T) {
	db := openTestDB(t)
	if err := db.Set([]byte("existing"), []byte("old")); err != nil {
		t.Fatal(err)
	}

	batch := db.NewBatch()
	batch.Set([]byte("existing"), []byte("new"))
	batch.Set([]byte("added"), []byte("value"))
	batch.Delete([]byte("nonexistent"))
	if err := batch.Write(); err != nil {
		t.Fatal(err)
	}

	got, err := db.Get([]byte("existing"))
	if err != nil || string(got) != "new" {
		t.Errorf("existing = %q, %v; want new, nil", got, err)
	}
	got, err = db.Get([]byte("added"))
	if err != nil || string(got) != "value" {
		t.Errorf("added = %q, %v; want value, nil", got, err)
	}
}

func TestLevelDBBatchResetDiscardsPendingOps(t *testing.T) {
	db := openTestDB(t)
	batch := db.NewBatch()
	batch.Set([]byte("k"), []byte("v"))
	batch.Reset()
	if err := batch.Write(); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Error("expected reset batch to discard its pending write")
	}
}

func TestLevelDBNewIteratorWalksPrefix(t *testing.T) {
	db := openTestDB(t)
	for _, kv := range []struct{ k, v string }{
		{"evt:a", "1"}, {"evt:b", "2"}, {"alloc:x", "3"},
	} {
		if err := db.Set([]byte(kv.k), []byte(kv.v)); err != nil {
			t.Fatal(err)
		}
	}

	it := db.NewIterator([]byte("evt:"))
	defer it.Release()
	count := 0
	for it.Next() {
		count++
	}
	if err := it.Error(); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("iterator over evt: prefix visited %d keys, want 2", count)
	}
}
