package store

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) *InvestigationRecord {
	return &InvestigationRecord{
		ID:              id,
		Target:          "Jane Doe",
		Context:         "fintech founder",
		Phase:           "complete",
		Iterations:      3,
		FindingCount:    12,
		RiskCount:       2,
		ConnectionCount: 5,
		RiskScore:       5.8,
		RiskLevel:       "MEDIUM",
		Report:          "# Investigation Report: Jane Doe",
		ErrorCount:      1,
		StartedAt:       time.Now().Add(-time.Minute),
		CompletedAt:     time.Now(),
	}
}

func TestSaveAndGetInvestigation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("inv-1")
	if err := s.SaveInvestigation(ctx, rec); err != nil {
		t.Fatalf("SaveInvestigation: %v", err)
	}

	got, err := s.GetInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvestigation: %v", err)
	}
	if got.Target != "Jane Doe" || got.RiskLevel != "MEDIUM" || got.RiskScore != 5.8 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Report != rec.Report {
		t.Errorf("report not preserved: %q", got.Report)
	}
}

func TestSaveUpsertsByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("inv-1")
	rec.Phase = "initial_search"
	if err := s.SaveInvestigation(ctx, rec); err != nil {
		t.Fatalf("first save: %v", err)
	}

	rec.Phase = "complete"
	rec.FindingCount = 20
	if err := s.SaveInvestigation(ctx, rec); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.GetInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvestigation: %v", err)
	}
	if got.Phase != "complete" || got.FindingCount != 20 {
		t.Errorf("upsert did not apply: %+v", got)
	}

	list, err := s.ListInvestigations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListInvestigations: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("upsert must not duplicate, got %d rows", len(list))
	}
}

func TestGetMissingInvestigation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetInvestigation(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing record")
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleRecord("inv-old")
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := sampleRecord("inv-new")
	newer.StartedAt = time.Now()

	for _, rec := range []*InvestigationRecord{older, newer} {
		if err := s.SaveInvestigation(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	list, err := s.ListInvestigations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListInvestigations: %v", err)
	}
	if len(list) != 2 || list[0].ID != "inv-new" {
		t.Errorf("expected newest first, got %v", list)
	}
}

func TestDeleteInvestigation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveInvestigation(ctx, sampleRecord("inv-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteInvestigation(ctx, "inv-1"); err != nil {
		t.Fatalf("DeleteInvestigation: %v", err)
	}
	if _, err := s.GetInvestigation(ctx, "inv-1"); err == nil {
		t.Fatal("deleted record should not be found")
	}
}

func TestSaveRequiresID(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord("")
	if err := s.SaveInvestigation(context.Background(), rec); err == nil {
		t.Fatal("expected error for empty ID")
	}
}
