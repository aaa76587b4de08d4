package state

import (
	"testing"

	"creditnet/storage"
)

type record struct {
	Name  string
	Count uint64
}

func TestManagerPutGetDelete(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	ok, err := m.KVGet([]byte("missing"), new(record))
	if err != nil || ok {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}

	in := record{Name: "alpha", Count: 7}
	if err := m.KVPut([]byte("r"), in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out record
	ok, err = m.KVGet([]byte("r"), &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Fatalf("unexpected record %+v", out)
	}

	if err := m.KVDelete([]byte("r")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = m.KVGet([]byte("r"), &out)
	if err != nil || ok {
		t.Fatalf("expected deleted key to read as absent, ok=%v err=%v", ok, err)
	}
}

func TestManagerListAppend(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	var list [][]byte
	if err := m.KVGetList([]byte("idx"), &list); err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d entries", len(list))
	}

	if err := m.KVAppend([]byte("idx"), []byte{1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.KVAppend([]byte("idx"), []byte{2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.KVGetList([]byte("idx"), &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0][0] != 1 || list[1][0] != 2 {
		t.Fatalf("unexpected list %v", list)
	}
}
