package lead

import (
	"strings"
	"time"

	"github.com/hpungsan/leadcap/internal/errors"
)

// Default MIME types when a caller does not provide one.
const (
	DefaultAudioMIME = "audio/webm"
	DefaultImageMIME = "image/jpeg"
)

// Capture is one user-initiated input: audio for voice, image bytes for card,
// text for text.
type Capture struct {
	Type     CaptureType
	Data     []byte
	MimeType string
	Text     string
}

// VoiceCapture builds a voice capture.
func VoiceCapture(audio []byte, mimeType string) Capture {
	return Capture{Type: CaptureVoice, Data: audio, MimeType: mimeType}
}

// CardCapture builds a business card capture.
func CardCapture(image []byte, mimeType string) Capture {
	return Capture{Type: CaptureCard, Data: image, MimeType: mimeType}
}

// TextCapture builds a text capture.
func TextCapture(text string) Capture {
	return Capture{Type: CaptureText, Text: text}
}

// Validate checks that the capture carries a payload for its type and fills
// in default MIME types.
func (c *Capture) Validate() error {
	switch c.Type {
	case CaptureText:
		if strings.TrimSpace(c.Text) == "" {
			return errors.NewInvalidRequest("text is required")
		}
	case CaptureVoice:
		if len(c.Data) == 0 {
			return errors.NewInvalidRequest("audio is required")
		}
		if c.MimeType == "" {
			c.MimeType = DefaultAudioMIME
		}
	case CaptureCard:
		if len(c.Data) == 0 {
			return errors.NewInvalidRequest("image is required")
		}
		if c.MimeType == "" {
			c.MimeType = DefaultImageMIME
		}
	default:
		return errors.NewInvalidRequest("unknown capture type: " + string(c.Type))
	}
	return nil
}

// Payload returns the bytes persisted for a deferred capture.
func (c Capture) Payload() []byte {
	if c.Type == CaptureText {
		return []byte(c.Text)
	}
	return c.Data
}

// PendingStatus is the lifecycle state of a deferred capture.
type PendingStatus string

const (
	StatusPending    PendingStatus = "pending"
	StatusProcessing PendingStatus = "processing"
	StatusFailed     PendingStatus = "failed"
)

// ParsePendingStatus validates a pending status string.
func ParsePendingStatus(s string) (PendingStatus, error) {
	switch st := PendingStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusFailed:
		return st, nil
	}
	return "", errors.NewInvalidRequest("unknown status: " + s)
}

// PendingCapture is a capture deferred until the extraction service is reachable.
type PendingCapture struct {
	ID        string        `json:"id"`
	Type      CaptureType   `json:"type"`
	Payload   []byte        `json:"-"`
	MimeType  string        `json:"mime_type,omitempty"`
	Status    PendingStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Capture rebuilds the original capture from the stored payload.
func (p *PendingCapture) Capture() Capture {
	c := Capture{Type: p.Type, MimeType: p.MimeType}
	if p.Type == CaptureText {
		c.Text = string(p.Payload)
	} else {
		c.Data = p.Payload
	}
	return c
}
