package memory

import (
	"context"
	"testing"

	"sem/internal/core"
)

func TestAppendAndRecords(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := core.Validate(core.RawFields{
		Date: "2023-01-05", Category: "E", Amount: "12.50", Justification: "coffee",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	ref, err := s.Append(ctx, rec)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}

	got := s.Records()
	if len(got) != 1 || got[0].Justification != "coffee" {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := New()
	if _, err := s.Append(context.Background(), core.Record{Category: "XY"}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(s.Records()) != 0 {
		t.Error("invalid record must not be stored")
	}
}

func TestMarkDeleted(t *testing.T) {
	s := New()
	if err := s.MarkDeleted(context.Background(), []int64{3, 7}); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	got := s.Deleted()
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Errorf("deleted = %v, want [3 7]", got)
	}
}
