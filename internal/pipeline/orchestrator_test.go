package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

func TestCapture_EndToEndText(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.extractor.fn = fixedFields(lead.Fields{Name: "Maya", Company: "Stripe", Notes: "wants enterprise demo", Confidence: 0.8})

	older, err := h.leads.Add(ctx, lead.Fields{Name: "Earlier"})
	require.NoError(t, err)

	res, err := h.orch.Capture(ctx, lead.TextCapture("Maya from Stripe, wants enterprise demo"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, res.Status)
	require.Equal(t, "Maya", res.Lead.Name)
	require.Len(t, res.Lead.Sources, 1)
	require.Equal(t, lead.CaptureText, res.Lead.Sources[0].Type)

	all, err := h.leads.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, res.Lead.ID, all[0].ID)
	require.Equal(t, older.ID, all[1].ID)
}

func TestCapture_OfflineDefers(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	captures := []lead.Capture{
		lead.TextCapture("call Tom back"),
		lead.VoiceCapture([]byte{0, 1, 2, 255}, "audio/mp4"),
		lead.CardCapture([]byte{0xff, 0xd8}, ""),
	}
	for _, c := range captures {
		res, err := h.orch.Capture(ctx, c)
		require.NoError(t, err)
		require.Equal(t, StatusDeferred, res.Status)
		require.NotEmpty(t, res.PendingID)
		require.Nil(t, res.Lead)
	}

	require.Empty(t, h.extractor.calls())

	items, err := h.pending.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, lead.CaptureText, items[0].Type)
	require.Equal(t, []byte("call Tom back"), items[0].Payload)
	require.Equal(t, lead.CaptureVoice, items[1].Type)
	require.Equal(t, []byte{0, 1, 2, 255}, items[1].Payload)
	require.Equal(t, "audio/mp4", items[1].MimeType)
	require.Equal(t, lead.DefaultImageMIME, items[2].MimeType)

	count, err := h.leads.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCapture_InvalidInput(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.orch.Capture(context.Background(), lead.TextCapture("   "))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	items, err := h.pending.List(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestCapture_ExtractionErrorLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.extractor.fn = func(lead.Capture) (*lead.Fields, error) {
		return nil, errors.NewTimeout("extract-lead")
	}

	_, err := h.orch.Capture(ctx, lead.TextCapture("hello"))
	require.True(t, errors.Is(err, errors.ErrTimeout))

	count, err := h.leads.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Nil(t, h.orch.UndoTarget())
}

func TestCapture_CompletesAfterCallerCancels(t *testing.T) {
	h := newHarness(t, true)
	h.extractor.fn = fixedFields(lead.Fields{Name: "Rosa", Company: "Initech", Confidence: 0.6})

	started := make(chan struct{})
	release := make(chan struct{})
	h.extractor.block = func(ctx context.Context) error {
		close(started)
		<-release
		if ctx.Err() != nil {
			return errors.NewCancelled("extract-lead")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
		close(release)
	}()

	res, err := h.orch.Capture(ctx, lead.TextCapture("Rosa from Initech"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, res.Status)

	stored, err := h.leads.GetByID(context.Background(), res.Lead.ID)
	require.NoError(t, err)
	require.Equal(t, "Rosa", stored.Name)
	require.NotNil(t, h.orch.UndoTarget())
}

func TestCapture_AppendModeMerges(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	target, err := h.leads.Add(ctx, lead.Fields{
		Name: "Maya", Email: "maya@stripe.com", Title: "VP", Notes: "Met at booth", Confidence: 0.4,
		Sources: []lead.Source{{Type: lead.CaptureCard, Timestamp: time.Now().UTC(), ImageRef: "sha256:abc"}},
	})
	require.NoError(t, err)

	h.extractor.fn = fixedFields(lead.Fields{
		Name: "M. Chen", Email: "other@example.com", Phone: "555-1234",
		Title: "VP of Engineering", Notes: "Wants demo", Confidence: 0.9,
	})
	h.orch.ArmAppendMode(target.ID, target.Name)

	res, err := h.orch.Capture(ctx, lead.TextCapture("also wants a demo"))
	require.NoError(t, err)
	require.Equal(t, StatusMerged, res.Status)
	require.Equal(t, target.ID, res.Lead.ID)
	require.Equal(t, "Maya", res.Lead.Name)
	require.Equal(t, "maya@stripe.com", res.Lead.Email)
	require.Equal(t, "555-1234", res.Lead.Phone)
	require.Equal(t, "VP of Engineering", res.Lead.Title)
	require.Equal(t, "Met at booth | Wants demo", res.Lead.Notes)
	require.Equal(t, 0.9, res.Lead.Confidence)
	require.Len(t, res.Lead.Sources, 2)
	require.Equal(t, lead.CaptureCard, res.Lead.Sources[0].Type)
	require.Equal(t, lead.CaptureText, res.Lead.Sources[1].Type)
	require.True(t, res.Lead.CreatedAt.Equal(target.CreatedAt))

	require.Nil(t, h.orch.AppendTarget(), "target clears after a merge")

	count, err := h.leads.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCapture_AppendReadsFresh(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	target, err := h.leads.Add(ctx, lead.Fields{Name: "Maya"})
	require.NoError(t, err)
	h.orch.ArmAppendMode(target.ID, target.Name)

	// Edited after arming; the merge must see the edit.
	company := "Stripe"
	_, err = h.leads.Update(ctx, target.ID, lead.Patch{Company: &company})
	require.NoError(t, err)

	h.extractor.fn = fixedFields(lead.Fields{Company: "Acme", Notes: "follow up"})
	res, err := h.orch.Capture(ctx, lead.TextCapture("follow up"))
	require.NoError(t, err)
	require.Equal(t, "Stripe", res.Lead.Company)
}

func TestCapture_AppendTargetClearedOnDelete(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	target, err := h.leads.Add(ctx, lead.Fields{Name: "X"})
	require.NoError(t, err)
	h.orch.ArmAppendMode(target.ID, target.Name)

	require.NoError(t, h.orch.DeleteLead(ctx, target.ID))
	require.Nil(t, h.orch.AppendTarget())

	res, err := h.orch.Capture(ctx, lead.TextCapture("new person"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, res.Status)
	require.NotEqual(t, target.ID, res.Lead.ID)
}

func TestCapture_AppendTargetDeletedElsewhere(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	target, err := h.leads.Add(ctx, lead.Fields{Name: "X"})
	require.NoError(t, err)
	h.orch.ArmAppendMode(target.ID, target.Name)

	// Deleted straight through the store, bypassing the orchestrator.
	require.NoError(t, h.leads.Delete(ctx, target.ID))

	res, err := h.orch.Capture(ctx, lead.TextCapture("new person"))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, res.Status)
	require.Nil(t, h.orch.AppendTarget())
}

func TestCapture_OfflineKeepsAppendTarget(t *testing.T) {
	h := newHarness(t, false)
	h.orch.ArmAppendMode("01TARGET", "Maya")

	res, err := h.orch.Capture(context.Background(), lead.TextCapture("later"))
	require.NoError(t, err)
	require.Equal(t, StatusDeferred, res.Status)
	require.NotNil(t, h.orch.AppendTarget())

	h.orch.CancelAppendMode()
	require.Nil(t, h.orch.AppendTarget())
}

func TestCapture_CardStoresImage(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	img := []byte{0xff, 0xd8, 0xff, 0xe0}
	_, err := h.orch.Capture(ctx, lead.CardCapture(img, "image/jpeg"))
	require.NoError(t, err)

	data, mime, err := h.images.Get(ctx, lead.ImageRef(img))
	require.NoError(t, err)
	require.Equal(t, img, data)
	require.Equal(t, "image/jpeg", mime)
}

func TestUndo(t *testing.T) {
	t.Run("within window deletes", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()

		res, err := h.orch.Capture(ctx, lead.TextCapture("someone"))
		require.NoError(t, err)

		h.clock.Advance(9 * time.Second)
		u, err := h.orch.Undo(ctx)
		require.NoError(t, err)
		require.Equal(t, res.Lead.ID, u.LeadID)

		_, err = h.leads.GetByID(ctx, res.Lead.ID)
		require.True(t, errors.Is(err, errors.ErrNotFound))

		_, err = h.orch.Undo(ctx)
		require.True(t, errors.Is(err, errors.ErrNothingToUndo))
	})

	t.Run("after window", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()

		res, err := h.orch.Capture(ctx, lead.TextCapture("someone"))
		require.NoError(t, err)

		h.clock.Advance(DefaultUndoWindow)
		require.Nil(t, h.orch.UndoTarget())
		_, err = h.orch.Undo(ctx)
		require.True(t, errors.Is(err, errors.ErrNothingToUndo))

		_, err = h.leads.GetByID(ctx, res.Lead.ID)
		require.NoError(t, err)
	})

	t.Run("latest capture replaces target", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()

		first, err := h.orch.Capture(ctx, lead.TextCapture("first"))
		require.NoError(t, err)
		h.clock.Advance(8 * time.Second)
		second, err := h.orch.Capture(ctx, lead.TextCapture("second"))
		require.NoError(t, err)

		// The window restarted with the second capture.
		h.clock.Advance(8 * time.Second)
		u, err := h.orch.Undo(ctx)
		require.NoError(t, err)
		require.Equal(t, second.Lead.ID, u.LeadID)

		_, err = h.leads.GetByID(ctx, first.Lead.ID)
		require.NoError(t, err)
	})

	t.Run("merge undo deletes the lead", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()

		target, err := h.leads.Add(ctx, lead.Fields{Name: "Maya"})
		require.NoError(t, err)
		h.orch.ArmAppendMode(target.ID, target.Name)
		res, err := h.orch.Capture(ctx, lead.TextCapture("more"))
		require.NoError(t, err)
		require.Equal(t, StatusMerged, res.Status)

		u, err := h.orch.Undo(ctx)
		require.NoError(t, err)
		require.Equal(t, StatusMerged, u.Status)

		_, err = h.leads.GetByID(ctx, target.ID)
		require.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("deleting the lead drops undo", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()

		res, err := h.orch.Capture(ctx, lead.TextCapture("someone"))
		require.NoError(t, err)
		require.NoError(t, h.orch.DeleteLead(ctx, res.Lead.ID))
		require.Nil(t, h.orch.UndoTarget())
	})
}
