package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// DefaultUndoWindow is how long the last capture result stays undoable.
const DefaultUndoWindow = 10 * time.Second

// CaptureStatus is how a capture landed.
type CaptureStatus string

const (
	StatusCreated  CaptureStatus = "created"
	StatusMerged   CaptureStatus = "merged"
	StatusDeferred CaptureStatus = "deferred"
)

// CaptureResult is the outcome of Capture. Lead is set for created and
// merged results, PendingID for deferred ones.
type CaptureResult struct {
	Status    CaptureStatus `json:"status"`
	Lead      *lead.Lead    `json:"lead,omitempty"`
	PendingID string        `json:"pending_id,omitempty"`
}

// AppendTarget is the lead the next capture will be merged into.
type AppendTarget struct {
	LeadID   string `json:"lead_id"`
	LeadName string `json:"lead_name"`
}

// UndoTarget is the most recent undoable capture result.
type UndoTarget struct {
	LeadID    string        `json:"lead_id"`
	Status    CaptureStatus `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Orchestrator routes captures: offline captures are deferred to the
// drainer, online captures are extracted and either merged into the armed
// append target or created as new leads.
type Orchestrator struct {
	records    Records
	extractor  Extractor
	images     ImageStore
	drainer    *Drainer
	monitor    *Monitor
	undoWindow time.Duration
	now        func() time.Time

	mu     sync.Mutex
	target *AppendTarget
	undo   *UndoTarget
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithUndoWindow overrides DefaultUndoWindow.
func WithUndoWindow(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.undoWindow = d
		}
	}
}

// WithClock overrides the clock used for merges and the undo window.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithImages stores card photos before their lead is written.
func WithImages(images ImageStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.images = images
	}
}

// NewOrchestrator wires an orchestrator. The drainer and monitor are shared
// with whatever else in the process drains or probes.
func NewOrchestrator(records Records, extractor Extractor, drainer *Drainer, monitor *Monitor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		records:    records,
		extractor:  extractor,
		drainer:    drainer,
		monitor:    monitor,
		undoWindow: DefaultUndoWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Capture processes one capture. Errors leave the stores as they were.
// Once accepted, a capture runs to completion even if ctx is cancelled;
// the gateway's per-call timeout still bounds extraction.
func (o *Orchestrator) Capture(ctx context.Context, c lead.Capture) (*CaptureResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	if !o.monitor.Online() {
		id, err := o.drainer.Enqueue(ctx, c)
		if err != nil {
			return nil, err
		}
		return &CaptureResult{Status: StatusDeferred, PendingID: id}, nil
	}

	candidate, err := o.extractor.Process(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := saveCardImage(ctx, o.images, c); err != nil {
		return nil, err
	}

	if target := o.AppendTarget(); target != nil {
		merged, err := o.mergeInto(ctx, target, candidate)
		if err != nil {
			return nil, err
		}
		if merged != nil {
			o.remember(merged.ID, StatusMerged)
			return &CaptureResult{Status: StatusMerged, Lead: merged}, nil
		}
	}

	created, err := o.records.Add(ctx, *candidate)
	if err != nil {
		return nil, err
	}
	o.remember(created.ID, StatusCreated)
	return &CaptureResult{Status: StatusCreated, Lead: created}, nil
}

// mergeInto merges candidate into a fresh read of the target and clears the
// target. It returns nil, nil when the target no longer exists.
func (o *Orchestrator) mergeInto(ctx context.Context, target *AppendTarget, candidate *lead.Fields) (*lead.Lead, error) {
	existing, err := o.records.GetByID(ctx, target.LeadID)
	if errors.Is(err, errors.ErrNotFound) {
		o.clearTarget(target.LeadID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	merged := lead.Merge(*existing, *candidate, o.now())
	updated, err := o.records.Update(ctx, existing.ID, lead.PatchFrom(merged.Fields()))
	if errors.Is(err, errors.ErrNotFound) {
		o.clearTarget(target.LeadID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.clearTarget(target.LeadID)
	return updated, nil
}

// ArmAppendMode makes the next online capture merge into leadID.
func (o *Orchestrator) ArmAppendMode(leadID, leadName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = &AppendTarget{LeadID: leadID, LeadName: leadName}
}

// CancelAppendMode clears the append target.
func (o *Orchestrator) CancelAppendMode() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = nil
}

// AppendTarget returns a copy of the armed target, or nil.
func (o *Orchestrator) AppendTarget() *AppendTarget {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.target == nil {
		return nil
	}
	t := *o.target
	return &t
}

// clearTarget clears the target only if it still points at leadID; it may
// have been re-armed while a capture was in flight.
func (o *Orchestrator) clearTarget(leadID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.target != nil && o.target.LeadID == leadID {
		o.target = nil
	}
}

// DeleteLead removes a lead and drops any append or undo state pointing at it.
func (o *Orchestrator) DeleteLead(ctx context.Context, id string) error {
	if err := o.records.Delete(ctx, id); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.target != nil && o.target.LeadID == id {
		o.target = nil
	}
	if o.undo != nil && o.undo.LeadID == id {
		o.undo = nil
	}
	return nil
}

// Reset drops the append target and undo slot. Used after bulk deletes.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = nil
	o.undo = nil
}

// Undo deletes the lead produced by the most recent capture if it is still
// inside the undo window. Undoing a merge deletes the whole lead.
func (o *Orchestrator) Undo(ctx context.Context) (*UndoTarget, error) {
	o.mu.Lock()
	u := o.undo
	if u == nil || !o.now().Before(u.ExpiresAt) {
		o.undo = nil
		o.mu.Unlock()
		return nil, errors.NewNothingToUndo()
	}
	o.undo = nil
	o.mu.Unlock()

	if err := o.DeleteLead(ctx, u.LeadID); err != nil {
		return nil, err
	}
	return u, nil
}

// UndoTarget returns the live undo target, or nil once the window has passed.
func (o *Orchestrator) UndoTarget() *UndoTarget {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.undo == nil || !o.now().Before(o.undo.ExpiresAt) {
		return nil
	}
	u := *o.undo
	return &u
}

func (o *Orchestrator) remember(leadID string, status CaptureStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.undo = &UndoTarget{LeadID: leadID, Status: status, ExpiresAt: o.now().Add(o.undoWindow)}
}

// Online reports the monitor's current state.
func (o *Orchestrator) Online() bool {
	return o.monitor.Online()
}

// Drainer returns the drainer captures are deferred to.
func (o *Orchestrator) Drainer() *Drainer {
	return o.drainer
}
