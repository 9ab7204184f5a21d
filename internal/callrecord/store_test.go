package callrecord

import (
	"context"
	"testing"
	"time"
)

func validRecord() CallRecord {
	started := time.Unix(1700000000, 0).UTC()
	conf := 0.91
	return CallRecord{
		SessionID:      "call_1700000000000_abcd1234",
		ProviderCallID: "CA123",
		PhoneNumber:    "+910000000001",
		Purpose:        "order update",
		FinalStatus:    "completed",
		StartedAt:      started,
		EndedAt:        started.Add(42 * time.Second),
		DurationMs:     42000,
		Turns: []Turn{
			{Role: "assistant", Content: "Hello, this is a confirmation call", SpokenAt: started},
			{Role: "user", Content: "Yes, confirmed", Confidence: &conf, SpokenAt: started.Add(5 * time.Second)},
		},
	}
}

func TestCallRecordValidate(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	rec := validRecord()
	rec.SessionID = ""
	if err := rec.Validate(); err == nil {
		t.Fatalf("expected error for missing session id")
	}

	rec = validRecord()
	rec.PhoneNumber = ""
	if err := rec.Validate(); err == nil {
		t.Fatalf("expected error for missing phone number")
	}

	rec = validRecord()
	rec.FinalStatus = ""
	if err := rec.Validate(); err == nil {
		t.Fatalf("expected error for missing final status")
	}

	rec = validRecord()
	rec.EndedAt = rec.StartedAt.Add(-time.Second)
	if err := rec.Validate(); err == nil {
		t.Fatalf("expected error for negative duration window")
	}
}

func TestMemoryStoreSaveAndList(t *testing.T) {
	s := NewMemoryStore()

	if err := s.SaveCallRecord(context.Background(), validRecord()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	records := s.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].SessionID != "call_1700000000000_abcd1234" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	if len(records[0].Turns) != 2 {
		t.Fatalf("expected transcript preserved, got %d turns", len(records[0].Turns))
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	s := NewMemoryStore()
	rec := validRecord()
	rec.SessionID = ""
	if err := s.SaveCallRecord(context.Background(), rec); err == nil {
		t.Fatalf("expected error")
	}
	if len(s.Records()) != 0 {
		t.Fatalf("expected nothing stored")
	}
}
