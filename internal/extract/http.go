package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPBackend talks to the hosted extraction functions over JSON/HTTP.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend creates a backend rooted at baseURL (for example
// https://project.supabase.co/functions/v1). A nil client uses http.DefaultClient.
func NewHTTPBackend(baseURL, apiKey string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type transcribeRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType"`
}

type transcribeResponse struct {
	Transcript *string `json:"transcript"`
	Text       *string `json:"text"`
}

type cardRequest struct {
	Image    string `json:"image"`
	MimeType string `json:"mimeType,omitempty"`
}

type leadRequest struct {
	Text string `json:"text"`
}

// fieldsResponse is the extraction result; absent values arrive as null.
type fieldsResponse struct {
	Name       *string  `json:"name"`
	Company    *string  `json:"company"`
	Email      *string  `json:"email"`
	Phone      *string  `json:"phone"`
	Title      *string  `json:"title"`
	Notes      *string  `json:"notes"`
	Confidence *float64 `json:"confidence"`
}

func (r *fieldsResponse) fields() *lead.Fields {
	f := &lead.Fields{
		Name:    deref(r.Name),
		Company: deref(r.Company),
		Email:   deref(r.Email),
		Phone:   deref(r.Phone),
		Title:   deref(r.Title),
		Notes:   deref(r.Notes),
	}
	if r.Confidence != nil {
		f.Confidence = *r.Confidence
	}
	return f
}

type errorResponse struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// Transcribe posts base64 audio to /transcribe.
func (b *HTTPBackend) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = lead.DefaultAudioMIME
	}
	var resp transcribeResponse
	err := b.post(ctx, "/transcribe", transcribeRequest{
		Audio:    base64.StdEncoding.EncodeToString(audio),
		MimeType: mimeType,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Transcript != nil {
		return *resp.Transcript, nil
	}
	return deref(resp.Text), nil
}

// ExtractCard posts a base64 image to /extract-card.
func (b *HTTPBackend) ExtractCard(ctx context.Context, image []byte, mimeType string) (*lead.Fields, error) {
	var resp fieldsResponse
	err := b.post(ctx, "/extract-card", cardRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		MimeType: mimeType,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.fields(), nil
}

// ExtractLead posts free text to /extract-lead.
func (b *HTTPBackend) ExtractLead(ctx context.Context, text string) (*lead.Fields, error) {
	var resp fieldsResponse
	if err := b.post(ctx, "/extract-lead", leadRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.fields(), nil
}

// Ping issues GET /health and expects a 2xx.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewServiceError(resp.StatusCode, "", "health check failed")
	}
	return nil
}

func (b *HTTPBackend) authorize(req *http.Request) {
	if b.apiKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("apikey", b.apiKey)
}

func (b *HTTPBackend) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return serviceError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewExtractionFailed(fmt.Sprintf("%s: invalid response: %v", strings.TrimPrefix(path, "/"), err))
	}
	return nil
}

// serviceError builds a SERVICE_ERROR from a non-2xx body. The message comes
// from "error" (string or {message, code}) or "message", falling back to a
// generic text.
func serviceError(status int, body []byte) *errors.LeadError {
	var er errorResponse
	if json.Unmarshal(body, &er) != nil {
		return errors.NewServiceError(status, "", "API request failed")
	}

	msg, code := er.Message, er.Code
	if len(er.Error) > 0 {
		var s string
		if json.Unmarshal(er.Error, &s) == nil {
			msg = s
		} else {
			var nested struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			}
			if json.Unmarshal(er.Error, &nested) == nil {
				if nested.Message != "" {
					msg = nested.Message
				}
				if nested.Code != "" {
					code = nested.Code
				}
			}
		}
	}
	if msg == "" {
		msg = "API request failed"
	}
	return errors.NewServiceError(status, code, msg)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
