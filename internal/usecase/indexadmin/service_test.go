package indexadmin

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/profdex/internal/domain"
)

// --- Mocks ---

type mockIndex struct {
	info     domain.IndexInfo
	created  bool
	err      error
	cleared  int
	lastNS   domain.Namespace
	lastSpec domain.IndexSpec
}

func (m *mockIndex) EnsureIndex(_ context.Context, spec domain.IndexSpec) (domain.IndexInfo, bool, error) {
	m.lastSpec = spec
	return m.info, m.created, m.err
}

func (m *mockIndex) Describe(_ context.Context) (domain.IndexInfo, error) { return m.info, m.err }

func (m *mockIndex) DeleteIndex(_ context.Context) error { return m.err }

func (m *mockIndex) ClearNamespace(_ context.Context, ns domain.Namespace) (int, error) {
	m.lastNS = ns
	return m.cleared, m.err
}

var readyInfo = domain.IndexInfo{Name: "profiles", Dimension: 1536, Metric: domain.MetricCosine, Status: domain.IndexStatusReady}

// --- Tests ---

func TestEnsureIndex(t *testing.T) {
	tests := []struct {
		name    string
		created bool
		want    string
	}{
		{"created", true, "index created"},
		{"existing", false, "index already exists with matching configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &mockIndex{info: readyInfo, created: tt.created}
			res, err := New(idx).EnsureIndex(context.Background(), domain.IndexSpec{Dimension: 1536, Metric: domain.MetricCosine})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Success || res.Message != tt.want || res.IndexInfo == nil || res.IndexInfo.Name != "profiles" {
				t.Errorf("unexpected result: %+v", res)
			}
			if idx.lastSpec.Dimension != 1536 {
				t.Errorf("spec = %+v", idx.lastSpec)
			}
		})
	}
}

func TestEnsureIndex_ConflictSurfaces(t *testing.T) {
	conflict := domain.NewIndexConfigConflict("profiles",
		domain.IndexSpec{Dimension: 768, Metric: domain.MetricCosine},
		domain.IndexSpec{Dimension: 1536, Metric: domain.MetricCosine})
	res, err := New(&mockIndex{err: conflict}).EnsureIndex(context.Background(), domain.IndexSpec{Dimension: 1536})

	if !errors.Is(err, domain.ErrIndexConfigConflict) {
		t.Fatalf("expected ErrIndexConfigConflict, got %v", err)
	}
	if res.Success || !strings.Contains(res.Message, "768") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestDescribeIndex(t *testing.T) {
	res, err := New(&mockIndex{info: readyInfo}).DescribeIndex(context.Background())
	if err != nil || !res.Success || res.IndexInfo.Dimension != 1536 || res.Message != "index ready" {
		t.Errorf("res=%+v err=%v", res, err)
	}

	res, err = New(&mockIndex{err: domain.ErrIndexNotFound}).DescribeIndex(context.Background())
	if !errors.Is(err, domain.ErrIndexNotFound) || res.Success || res.IndexInfo != nil {
		t.Errorf("res=%+v err=%v", res, err)
	}
}

func TestDeleteIndex(t *testing.T) {
	res, err := New(&mockIndex{}).DeleteIndex(context.Background())
	if err != nil || !res.Success {
		t.Errorf("res=%+v err=%v", res, err)
	}
}

func TestClearNamespace(t *testing.T) {
	idx := &mockIndex{cleared: 42}
	res, err := New(idx).ClearNamespace(context.Background(), domain.MustNamespace("ns-a"))
	if err != nil || !res.Success || res.Message != "cleared 42 records from namespace ns-a" {
		t.Errorf("res=%+v err=%v", res, err)
	}
	if idx.lastNS.String() != "ns-a" {
		t.Errorf("namespace = %v", idx.lastNS)
	}
}
