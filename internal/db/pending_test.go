package db

import (
	"bytes"
	"context"
	"testing"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

func TestPending_EnqueueRoundTripsPayload(t *testing.T) {
	ctx := context.Background()
	store := NewPending(setupTestDB(t))

	audio := []byte{0x00, 0x01, 0xfe, 0xff, 0x00, 0x80}
	id, err := store.Enqueue(ctx, lead.VoiceCapture(audio, "audio/webm"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got.Payload, audio) {
		t.Errorf("Payload = %v, want %v", got.Payload, audio)
	}
	if got.Type != lead.CaptureVoice || got.MimeType != "audio/webm" {
		t.Errorf("Type/MimeType = %s/%s", got.Type, got.MimeType)
	}
	if got.Status != lead.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
}

func TestPending_TextPayload(t *testing.T) {
	ctx := context.Background()
	store := NewPending(setupTestDB(t))

	id, err := store.Enqueue(ctx, lead.TextCapture("Maya from Stripe"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c := got.Capture(); c.Text != "Maya from Stripe" {
		t.Errorf("Capture().Text = %q", c.Text)
	}
}

func TestPending_ListPending_OrderAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewPending(setupTestDB(t))

	var ids []string
	for _, text := range []string{"one", "two", "three", "four"} {
		id, err := store.Enqueue(ctx, lead.TextCapture(text))
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		ids = append(ids, id)
	}

	if err := store.MarkProcessing(ctx, ids[1]); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if err := store.MarkFailed(ctx, ids[2], "boom"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 2 || pending[0].ID != ids[0] || pending[1].ID != ids[3] {
		t.Fatalf("ListPending() = %v, want [%s %s]", pendingIDs(pending), ids[0], ids[3])
	}

	failedStatus := lead.StatusFailed
	failed, err := store.List(ctx, &failedStatus)
	if err != nil {
		t.Fatalf("List(failed) error = %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "boom" {
		t.Fatalf("List(failed) = %+v", failed)
	}

	all, err := store.List(ctx, nil)
	if err != nil {
		t.Fatalf("List(nil) error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("List(nil) len = %d, want 4", len(all))
	}
}

func TestPending_RetryAndComplete(t *testing.T) {
	ctx := context.Background()
	store := NewPending(setupTestDB(t))

	id, err := store.Enqueue(ctx, lead.TextCapture("x"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := store.MarkFailed(ctx, id, "timeout"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if err := store.Retry(ctx, id); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != lead.StatusPending || got.Error != "" {
		t.Errorf("after Retry: status=%s error=%q", got.Status, got.Error)
	}

	if err := store.MarkComplete(ctx, id); err != nil {
		t.Fatalf("MarkComplete() error = %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Get() after MarkComplete error = %v, want NOT_FOUND", err)
	}
}

func TestPending_MissingID(t *testing.T) {
	ctx := context.Background()
	store := NewPending(setupTestDB(t))

	if err := store.Retry(ctx, "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Retry() error = %v, want NOT_FOUND", err)
	}
	if err := store.MarkFailed(ctx, "missing", "x"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("MarkFailed() error = %v, want NOT_FOUND", err)
	}
	if err := store.MarkComplete(ctx, "missing"); err != nil {
		t.Errorf("MarkComplete() error = %v, want nil", err)
	}
}

func TestPending_ResetProcessing(t *testing.T) {
	ctx := context.Background()
	store := NewPending(setupTestDB(t))

	id, err := store.Enqueue(ctx, lead.TextCapture("x"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := store.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}

	n, err := store.ResetProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetProcessing() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ResetProcessing() = %d, want 1", n)
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("ListPending() len = %d, want 1", len(pending))
	}
}

func TestPending_CountsAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewPending(setupTestDB(t))

	for i := 0; i < 3; i++ {
		if _, err := store.Enqueue(ctx, lead.CardCapture([]byte{byte(i + 1)}, "image/png")); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	pending, _ := store.ListPending(ctx)
	if err := store.MarkFailed(ctx, pending[0].ID, "bad"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts[lead.StatusPending] != 2 || counts[lead.StatusFailed] != 1 || counts[lead.StatusProcessing] != 0 {
		t.Errorf("Counts() = %v", counts)
	}

	n, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Clear() = %d, want 3", n)
	}
	all, _ := store.List(ctx, nil)
	if len(all) != 0 {
		t.Errorf("List() after Clear len = %d", len(all))
	}
}

func pendingIDs(items []lead.PendingCapture) []string {
	ids := make([]string, len(items))
	for i, p := range items {
		ids[i] = p.ID
	}
	return ids
}
