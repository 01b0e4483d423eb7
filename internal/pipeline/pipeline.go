// Package pipeline owns the stateful side of capture: connectivity, the
// deferred-capture drainer, and the orchestrator that routes each capture to
// extraction, merge or the queue.
package pipeline

import (
	"context"

	"github.com/hpungsan/leadcap/internal/lead"
)

// Records is the subset of the record store the pipeline writes through.
// GetByID must always read from the store, never a cache.
type Records interface {
	Add(ctx context.Context, f lead.Fields) (*lead.Lead, error)
	GetByID(ctx context.Context, id string) (*lead.Lead, error)
	Update(ctx context.Context, id string, p lead.Patch) (*lead.Lead, error)
	Delete(ctx context.Context, id string) error
}

// Queue is the durable store of deferred captures.
type Queue interface {
	Enqueue(ctx context.Context, c lead.Capture) (string, error)
	ListPending(ctx context.Context) ([]lead.PendingCapture, error)
	List(ctx context.Context, status *lead.PendingStatus) ([]lead.PendingCapture, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkComplete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
	Retry(ctx context.Context, id string) error
	Clear(ctx context.Context) (int, error)
	ResetProcessing(ctx context.Context) (int, error)
	Counts(ctx context.Context) (map[lead.PendingStatus]int, error)
}

// Extractor turns a capture into a candidate carrying one source tag.
type Extractor interface {
	Process(ctx context.Context, c lead.Capture) (*lead.Fields, error)
}

// Prober reports whether the extraction service is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// ImageStore keeps card photos so card source refs resolve later.
type ImageStore interface {
	Put(ctx context.Context, data []byte, mimeType string) (string, error)
}

// saveCardImage stores the photo behind a card capture. Other types are a no-op.
func saveCardImage(ctx context.Context, images ImageStore, c lead.Capture) error {
	if images == nil || c.Type != lead.CaptureCard {
		return nil
	}
	_, err := images.Put(ctx, c.Data, c.MimeType)
	return err
}
