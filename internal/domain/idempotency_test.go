package domain

import (
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		ttlAt time.Time
		want  bool
	}{
		{name: "no ttl", ttlAt: time.Time{}, want: false},
		{name: "future", ttlAt: now.Add(time.Minute), want: false},
		{name: "exactly now", ttlAt: now, want: true},
		{name: "past", ttlAt: now.Add(-time.Minute), want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record := IdempotencyRecord{Key: "k", TTLAt: tc.ttlAt}
			if got := record.Expired(now); got != tc.want {
				t.Fatalf("Expired()=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewProcessingRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	record, err := NewProcessingRecord(" customer:7:abc ", " hash ", time.Time{}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Key != "customer:7:abc" || record.RequestHash != "hash" {
		t.Fatalf("key and hash must be trimmed: %+v", record)
	}
	if record.Status != IdempotencyStatusProcessing {
		t.Fatalf("unexpected status: %s", record.Status)
	}
	if !record.TTLAt.Equal(now.Add(DefaultIdempotencyTTL)) {
		t.Fatalf("unexpected default ttl: %s", record.TTLAt)
	}

	if _, err := NewProcessingRecord(" ", "hash", now, now); err != ErrIdempotencyKeyRequired {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := NewProcessingRecord("key", "", now, now); err != ErrIdempotencyRequestHashRequired {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestIdempotencyRecordConflictWith(t *testing.T) {
	record := IdempotencyRecord{Key: "k", RequestHash: "h1"}

	if err := record.ConflictWith("h1"); err != ErrIdempotencyKeyAlreadyExists {
		t.Fatalf("same payload: got %v", err)
	}
	if err := record.ConflictWith("h2"); err != ErrIdempotencyHashMismatch {
		t.Fatalf("different payload: got %v", err)
	}
	if !IsIdempotencyConflict(record.ConflictWith("h2")) {
		t.Fatal("hash mismatch must be a conflict")
	}
}
