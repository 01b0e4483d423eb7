package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// Drainer replays deferred captures once connectivity is available.
// Items are processed one at a time in enqueue order, and every successful
// item becomes a new lead.
type Drainer struct {
	queue     Queue
	records   Records
	extractor Extractor
	images    ImageStore
	monitor   *Monitor

	draining atomic.Bool
	wg       sync.WaitGroup

	mu     sync.Mutex
	subs   map[int]func()
	nextID int
}

// NewDrainer creates a drainer. images may be nil.
func NewDrainer(queue Queue, records Records, extractor Extractor, images ImageStore, monitor *Monitor) *Drainer {
	return &Drainer{
		queue:     queue,
		records:   records,
		extractor: extractor,
		images:    images,
		monitor:   monitor,
		subs:      make(map[int]func()),
	}
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Skipped   bool         `json:"skipped,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Created   []string     `json:"created"`
	Failures  []DrainError `json:"failures,omitempty"`
}

// DrainError records why one item failed.
type DrainError struct {
	PendingID string           `json:"pending_id"`
	Type      lead.CaptureType `json:"type"`
	Code      errors.ErrorCode `json:"code,omitempty"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"` // transient, worth another drain
}

// Skip reasons.
const (
	ReasonOffline  = "offline"
	ReasonDraining = "already draining"
)

// Enqueue defers a capture. When already online a background drain is kicked.
func (d *Drainer) Enqueue(ctx context.Context, c lead.Capture) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	id, err := d.queue.Enqueue(ctx, c)
	if err != nil {
		return "", err
	}
	d.notify()
	if d.monitor.Online() {
		d.Kick()
	}
	return id, nil
}

// Drain processes every item that is pending when it starts. It is a no-op
// while offline or when another drain is running. Item failures are recorded
// on the item and never abort the pass; only queue read errors are returned.
func (d *Drainer) Drain(ctx context.Context) (*DrainReport, error) {
	if !d.monitor.Online() {
		return &DrainReport{Skipped: true, Reason: ReasonOffline, Created: []string{}}, nil
	}
	if !d.draining.CompareAndSwap(false, true) {
		return &DrainReport{Skipped: true, Reason: ReasonDraining, Created: []string{}}, nil
	}
	defer d.draining.Store(false)
	defer d.notify()

	items, err := d.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	report := &DrainReport{Created: []string{}}
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		item := &items[i]
		report.Processed++

		created, err := d.process(ctx, item)
		if err != nil {
			if errors.Is(err, errors.ErrCancelled) {
				// Put it back for the next pass rather than failing it.
				report.Processed--
				if rErr := d.queue.Retry(context.WithoutCancel(ctx), item.ID); rErr != nil {
					log.Printf("drain: requeue %s: %v", item.ID, rErr)
				}
				break
			}
			report.Failed++
			report.Failures = append(report.Failures, drainError(item, err))
			d.fail(ctx, item, err)
			continue
		}
		report.Succeeded++
		report.Created = append(report.Created, created.ID)
	}
	return report, nil
}

func (d *Drainer) process(ctx context.Context, item *lead.PendingCapture) (*lead.Lead, error) {
	if err := d.queue.MarkProcessing(ctx, item.ID); err != nil {
		return nil, err
	}

	c := item.Capture()
	fields, err := d.extractor.Process(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := saveCardImage(ctx, d.images, c); err != nil {
		return nil, err
	}
	created, err := d.records.Add(ctx, *fields)
	if err != nil {
		return nil, err
	}
	if err := d.queue.MarkComplete(ctx, item.ID); err != nil {
		// Lead is already committed; count the item as done.
		log.Printf("drain: complete %s: %v", item.ID, err)
	}
	return created, nil
}

func (d *Drainer) fail(ctx context.Context, item *lead.PendingCapture, cause error) {
	code := errors.ErrInternal
	if lErr, ok := errors.As(cause); ok {
		code = lErr.Code
	}
	log.Printf("drain: pending %s (%s) failed: [%s] %v", item.ID, item.Type, code, cause)
	if err := d.queue.MarkFailed(context.WithoutCancel(ctx), item.ID, cause.Error()); err != nil {
		log.Printf("drain: mark failed %s: %v", item.ID, err)
	}
}

func drainError(item *lead.PendingCapture, err error) DrainError {
	de := DrainError{PendingID: item.ID, Type: item.Type, Message: err.Error(), Retryable: errors.Retryable(err)}
	if lErr, ok := errors.As(err); ok {
		de.Code = lErr.Code
		de.Message = lErr.Message
	}
	return de
}

// Kick starts a drain in the background. Wait blocks until kicked drains finish.
func (d *Drainer) Kick() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.Drain(context.Background()); err != nil {
			log.Printf("drain: %v", err)
		}
	}()
}

// Wait blocks until every kicked drain has returned.
func (d *Drainer) Wait() {
	d.wg.Wait()
}

// Retry returns a failed item to pending and drains.
func (d *Drainer) Retry(ctx context.Context, id string) (*DrainReport, error) {
	if err := d.queue.Retry(ctx, id); err != nil {
		return nil, err
	}
	d.notify()
	return d.Drain(ctx)
}

// Clear drops every queued item regardless of status.
func (d *Drainer) Clear(ctx context.Context) (int, error) {
	n, err := d.queue.Clear(ctx)
	if err != nil {
		return 0, err
	}
	d.notify()
	return n, nil
}

// Recover returns items a previous process left in processing to pending.
func (d *Drainer) Recover(ctx context.Context) (int, error) {
	n, err := d.queue.ResetProcessing(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("drain: recovered %d interrupted item(s)", n)
	}
	return n, nil
}

// QueueItem describes a queued capture without its payload.
type QueueItem struct {
	ID          string             `json:"id"`
	Type        lead.CaptureType   `json:"type"`
	Status      lead.PendingStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	MimeType    string             `json:"mime_type,omitempty"`
	PayloadSize int                `json:"payload_size"`
	CreatedAt   time.Time          `json:"created_at"`
}

// QueueStatus is a snapshot of the queue.
type QueueStatus struct {
	Online     bool        `json:"online"`
	Draining   bool        `json:"draining"`
	Pending    int         `json:"pending"`
	Processing int         `json:"processing"`
	Failed     int         `json:"failed"`
	Items      []QueueItem `json:"items"`
}

// Status returns counts by status and every queued item, oldest first.
func (d *Drainer) Status(ctx context.Context) (*QueueStatus, error) {
	counts, err := d.queue.Counts(ctx)
	if err != nil {
		return nil, err
	}
	items, err := d.queue.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	st := &QueueStatus{
		Online:     d.monitor.Online(),
		Draining:   d.draining.Load(),
		Pending:    counts[lead.StatusPending],
		Processing: counts[lead.StatusProcessing],
		Failed:     counts[lead.StatusFailed],
		Items:      make([]QueueItem, 0, len(items)),
	}
	for _, p := range items {
		st.Items = append(st.Items, QueueItem{
			ID:          p.ID,
			Type:        p.Type,
			Status:      p.Status,
			Error:       p.Error,
			MimeType:    p.MimeType,
			PayloadSize: len(p.Payload),
			CreatedAt:   p.CreatedAt,
		})
	}
	return st, nil
}

// Draining reports whether a drain pass is running.
func (d *Drainer) Draining() bool {
	return d.draining.Load()
}

// Subscribe registers fn to be called whenever the queue changes and returns
// a function that removes it.
func (d *Drainer) Subscribe(fn func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// Watch kicks a drain whenever m reports connectivity restored. The returned
// function stops watching.
func (d *Drainer) Watch(m *Monitor) func() {
	return m.Subscribe(func(online bool) {
		if online {
			d.Kick()
		}
	})
}

func (d *Drainer) notify() {
	d.mu.Lock()
	subs := make([]func(), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
