package lead

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CaptureType is the modality of a capture.
type CaptureType string

const (
	CaptureVoice CaptureType = "voice"
	CaptureCard  CaptureType = "card"
	CaptureText  CaptureType = "text"
)

// ParseCaptureType validates a capture type string.
func ParseCaptureType(s string) (CaptureType, error) {
	switch t := CaptureType(strings.ToLower(strings.TrimSpace(s))); t {
	case CaptureVoice, CaptureCard, CaptureText:
		return t, nil
	}
	return "", fmt.Errorf("unknown capture type %q (want voice, card or text)", s)
}

// Source is an immutable provenance entry on a lead. Exactly one of
// Transcript, ImageRef or Text is set, matching Type.
type Source struct {
	Type       CaptureType `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	Transcript string      `json:"transcript,omitempty"`
	ImageRef   string      `json:"image_ref,omitempty"`
	Text       string      `json:"text,omitempty"`
}

// Equal reports whether s and o describe the same capture.
func (s Source) Equal(o Source) bool {
	return s.Type == o.Type &&
		s.Timestamp.Equal(o.Timestamp) &&
		s.Transcript == o.Transcript &&
		s.ImageRef == o.ImageRef &&
		s.Text == o.Text
}

// Extends reports whether next keeps every entry of prev, in order, as its prefix.
func Extends(prev, next []Source) bool {
	if len(next) < len(prev) {
		return false
	}
	for i := range prev {
		if !prev[i].Equal(next[i]) {
			return false
		}
	}
	return true
}

// ImageRefPrefix prefixes content-addressed card image references.
const ImageRefPrefix = "sha256:"

// ImageRef returns the content-addressed reference for an image.
func ImageRef(data []byte) string {
	sum := sha256.Sum256(data)
	return ImageRefPrefix + hex.EncodeToString(sum[:])
}
