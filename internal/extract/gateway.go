// Package extract turns raw capture payloads into candidate leads by calling
// an extraction backend with a bounded timeout and classified errors.
package extract

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 30 * time.Second

// FallbackConfidence is assigned when text extraction output was unusable
// and the raw input is kept as notes instead.
const FallbackConfidence = 0.3

// pingTimeout caps health probes regardless of the call timeout.
const pingTimeout = 5 * time.Second

// Backend is a structured-extraction service.
type Backend interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	ExtractCard(ctx context.Context, image []byte, mimeType string) (*lead.Fields, error)
	ExtractLead(ctx context.Context, text string) (*lead.Fields, error)
	Ping(ctx context.Context) error
}

// Gateway wraps a Backend with timeouts, rate limiting, error classification
// and the composite per-modality operations.
type Gateway struct {
	backend Backend
	timeout time.Duration
	limiter *rate.Limiter
	now     func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit caps outbound calls per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(g *Gateway) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithClock overrides the clock used for source timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// NewGateway creates a Gateway over backend.
func NewGateway(backend Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend: backend,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TranscribeAudio returns the transcript of audio. A blank transcript is
// reported as EMPTY_TRANSCRIPT.
func (g *Gateway) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var transcript string
	err := g.call(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		transcript, err = g.backend.Transcribe(ctx, audio, mimeType)
		return err
	})
	if err != nil {
		return "", err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", errors.NewEmptyTranscript()
	}
	return transcript, nil
}

// ExtractFromImage extracts contact fields from a business card photo.
func (g *Gateway) ExtractFromImage(ctx context.Context, image []byte, mimeType string) (*lead.Fields, error) {
	var fields *lead.Fields
	err := g.call(ctx, "extract-card", func(ctx context.Context) error {
		var err error
		fields, err = g.backend.ExtractCard(ctx, image, mimeType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return clean(fields), nil
}

// ExtractFromText extracts contact fields from free text. If the service
// answers with something unparseable, the text is kept as notes with
// FallbackConfidence rather than failing.
func (g *Gateway) ExtractFromText(ctx context.Context, text string) (*lead.Fields, error) {
	var fields *lead.Fields
	err := g.call(ctx, "extract-lead", func(ctx context.Context) error {
		var err error
		fields, err = g.backend.ExtractLead(ctx, text)
		return err
	})
	if errors.Is(err, errors.ErrExtractionFailed) {
		return &lead.Fields{Notes: text, Confidence: FallbackConfidence}, nil
	}
	if err != nil {
		return nil, err
	}
	return clean(fields), nil
}

// ProcessVoice transcribes audio, extracts fields from the transcript and
// tags the candidate with a voice source.
func (g *Gateway) ProcessVoice(ctx context.Context, audio []byte, mimeType string) (*lead.Fields, error) {
	transcript, err := g.TranscribeAudio(ctx, audio, mimeType)
	if err != nil {
		return nil, err
	}
	fields, err := g.ExtractFromText(ctx, transcript)
	if err != nil {
		return nil, err
	}
	fields.Sources = []lead.Source{{Type: lead.CaptureVoice, Timestamp: g.now().UTC(), Transcript: transcript}}
	return fields, nil
}

// ProcessCard extracts fields from a card photo and tags the candidate with
// a card source referencing the image by content hash.
func (g *Gateway) ProcessCard(ctx context.Context, image []byte, mimeType string) (*lead.Fields, error) {
	fields, err := g.ExtractFromImage(ctx, image, mimeType)
	if err != nil {
		return nil, err
	}
	fields.Sources = []lead.Source{{Type: lead.CaptureCard, Timestamp: g.now().UTC(), ImageRef: lead.ImageRef(image)}}
	return fields, nil
}

// ProcessText extracts fields from text and tags the candidate with a text source.
func (g *Gateway) ProcessText(ctx context.Context, text string) (*lead.Fields, error) {
	fields, err := g.ExtractFromText(ctx, text)
	if err != nil {
		return nil, err
	}
	fields.Sources = []lead.Source{{Type: lead.CaptureText, Timestamp: g.now().UTC(), Text: text}}
	return fields, nil
}

// Process runs the composite operation matching the capture's type.
// The returned candidate carries exactly one source.
func (g *Gateway) Process(ctx context.Context, c lead.Capture) (*lead.Fields, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Type {
	case lead.CaptureVoice:
		return g.ProcessVoice(ctx, c.Data, c.MimeType)
	case lead.CaptureCard:
		return g.ProcessCard(ctx, c.Data, c.MimeType)
	default:
		return g.ProcessText(ctx, c.Text)
	}
}

// Ping reports whether the backend is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, min(g.timeout, pingTimeout))
	defer cancel()
	if err := g.backend.Ping(ctx); err != nil {
		return classify(ctx, "health", err)
	}
	return nil
}

// call waits for the rate limiter, then runs fn under the call timeout.
func (g *Gateway) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if stderrors.Is(err, context.Canceled) {
				return errors.NewCancelled(op)
			}
			return errors.NewTimeout(op)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := fn(callCtx); err != nil {
		return classify(callCtx, op, err)
	}
	return nil
}

// classify maps transport-level failures onto the error taxonomy.
// Errors that are already classified pass through.
func classify(ctx context.Context, op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewTimeout(op)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.NewCancelled(op)
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return errors.NewTimeout(op)
	}
	return Unreachable(op, err)
}

// Unreachable reports a transport failure that never reached the service.
func Unreachable(op string, err error) *errors.LeadError {
	lErr := errors.NewServiceError(503, "UNREACHABLE", op+": extraction service unreachable: "+err.Error())
	lErr.Err = err
	return lErr
}

// clean trims extracted values and clamps confidence.
func clean(f *lead.Fields) *lead.Fields {
	if f == nil {
		return &lead.Fields{}
	}
	f.Name = lead.CleanField(f.Name)
	f.Company = lead.CleanField(f.Company)
	f.Email = lead.CleanField(f.Email)
	f.Phone = lead.CleanField(f.Phone)
	f.Title = lead.CleanField(f.Title)
	f.Notes = strings.TrimSpace(f.Notes)
	f.Confidence = lead.ClampConfidence(f.Confidence)
	return f
}
