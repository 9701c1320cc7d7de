package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/profdex/internal/db"
)

type expireCall struct {
	key string
	ttl time.Duration
	nx  bool
}

type mockStore struct {
	data    map[string][]byte
	incrs   map[string]int64
	expires []expireCall
	incrErr error
	getErr  error
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string][]byte{}, incrs: map[string]int64{}}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) IncrBy(_ context.Context, key string, val int64) error {
	if m.incrErr != nil {
		return m.incrErr
	}
	m.incrs[key] += val
	return nil
}

func (m *mockStore) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	m.expires = append(m.expires, expireCall{key: key, ttl: ttl, nx: nx})
	return nil
}

func TestAdd_IncrementsAndSetsTTLOnce(t *testing.T) {
	ms := newMockStore()
	s := New(ms)

	if err := s.Add(context.Background(), "k", 10, time.Hour); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ms.incrs["k"] != 10 {
		t.Errorf("expected 10, got %d", ms.incrs["k"])
	}
	if len(ms.expires) != 1 || ms.expires[0] != (expireCall{key: "k", ttl: time.Hour, nx: true}) {
		t.Errorf("unexpected expire calls: %+v", ms.expires)
	}
}

func TestAdd_NoTTL(t *testing.T) {
	ms := newMockStore()
	if err := New(ms).Add(context.Background(), "k", 1, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(ms.expires) != 0 {
		t.Errorf("expected no EXPIRE, got %+v", ms.expires)
	}
}

func TestAdd_IncrError(t *testing.T) {
	ms := newMockStore()
	ms.incrErr = errors.New("connection refused")
	if err := New(ms).Add(context.Background(), "k", 1, time.Hour); err == nil {
		t.Fatal("expected error")
	}
	if len(ms.expires) != 0 {
		t.Error("EXPIRE must not run after a failed INCRBY")
	}
}

func TestLoad(t *testing.T) {
	ms := newMockStore()
	ms.data["present"] = []byte("1234")
	ms.data["garbage"] = []byte("12x")
	s := New(ms)

	if v, err := s.Load(context.Background(), "present"); err != nil || v != 1234 {
		t.Errorf("present: got %d, %v", v, err)
	}
	if v, err := s.Load(context.Background(), "absent"); err != nil || v != 0 {
		t.Errorf("absent: got %d, %v", v, err)
	}
	if _, err := s.Load(context.Background(), "garbage"); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_StoreError(t *testing.T) {
	ms := newMockStore()
	ms.getErr = &db.Error{Op: db.OpGet, Err: errors.New("timeout")}
	if _, err := New(ms).Load(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}
