package extract

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// DefaultGeminiHost is dialed by Ping when no base URL override is set.
const DefaultGeminiHost = "generativelanguage.googleapis.com"

// GeminiConfig configures a GeminiBackend.
type GeminiConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// GeminiBackend calls a Gemini model directly instead of hosted functions.
type GeminiBackend struct {
	client  *genai.Client
	model   string
	pingURL string
}

// NewGeminiBackend creates a Gemini-backed extractor.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.NewInvalidRequest("GEMINI_API_KEY is required for the gemini backend")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.NewInvalidRequest("gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	pingURL := "https://" + DefaultGeminiHost
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
		pingURL = cc.HTTPOptions.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &GeminiBackend{
		client:  client,
		model:   strings.TrimSpace(cfg.Model),
		pingURL: pingURL,
	}, nil
}

type geminiFields struct {
	Name       string  `json:"name"`
	Company    string  `json:"company"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Title      string  `json:"title"`
	Notes      string  `json:"notes"`
	Confidence float64 `json:"confidence"`
}

var leadSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":       {Type: genai.TypeString},
		"company":    {Type: genai.TypeString},
		"email":      {Type: genai.TypeString},
		"phone":      {Type: genai.TypeString},
		"title":      {Type: genai.TypeString},
		"notes":      {Type: genai.TypeString},
		"confidence": {Type: genai.TypeNumber},
	},
	Required: []string{"name", "company", "email", "phone", "title", "notes", "confidence"},
}

const transcribePrompt = `Transcribe this recording verbatim. Return only the spoken words, with no commentary. If nothing intelligible is said, return an empty response.`

const cardPrompt = `Extract contact information from this business card photo.

Return ONLY a single JSON object with these keys:
- name, company, email, phone, title (strings)
- notes (string; anything else on the card worth keeping)
- confidence (number from 0 to 1; how legible and complete the card was)

Rules:
- If a field is not on the card, set it to an empty string.
- Do not include extra keys.`

const leadPrompt = `Extract contact information about a sales lead from the following note.

Return ONLY a single JSON object with these keys:
- name, company, email, phone, title (strings)
- notes (string; context such as interests, follow-ups or where you met)
- confidence (number from 0 to 1)

Rules:
- If a field is not mentioned, set it to an empty string.
- Do not include extra keys.

Note: `

// Transcribe sends the audio inline and returns the model's transcript.
func (b *GeminiBackend) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = lead.DefaultAudioMIME
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(transcribePrompt),
		genai.NewPartFromBytes(audio, mimeType),
	}, genai.RoleUser)}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, &genai.GenerateContentConfig{
		CandidateCount: 1,
	})
	if err != nil {
		return "", classifyGemini(err)
	}
	return resp.Text(), nil
}

// ExtractCard sends the card image inline with a structured-output schema.
func (b *GeminiBackend) ExtractCard(ctx context.Context, image []byte, mimeType string) (*lead.Fields, error) {
	if mimeType == "" {
		mimeType = lead.DefaultImageMIME
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(cardPrompt),
		genai.NewPartFromBytes(image, mimeType),
	}, genai.RoleUser)}
	return b.structured(ctx, "extract-card", contents)
}

// ExtractLead asks the model to structure free text.
func (b *GeminiBackend) ExtractLead(ctx context.Context, text string) (*lead.Fields, error) {
	return b.structured(ctx, "extract-lead", genai.Text(leadPrompt+text))
}

// Ping dials the API host. It does not spend a model call.
func (b *GeminiBackend) Ping(ctx context.Context) error {
	u, err := url.Parse(b.pingURL)
	if err != nil {
		return errors.NewInternal(err)
	}
	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (b *GeminiBackend) structured(ctx context.Context, op string, contents []*genai.Content) (*lead.Fields, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		ResponseSchema:   leadSchema,
	})
	if err != nil {
		return nil, classifyGemini(err)
	}
	return parseFieldsJSON(op, resp.Text())
}

// parseFieldsJSON decodes the first JSON object found in text. Models
// sometimes wrap output in prose or code fences.
func parseFieldsJSON(op, text string) (*lead.Fields, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.NewExtractionFailed(op + ": no JSON object in model output")
	}

	var parsed geminiFields
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, errors.NewExtractionFailed(fmt.Sprintf("%s: parse structured json: %v", op, err))
	}
	return &lead.Fields{
		Name:       parsed.Name,
		Company:    parsed.Company,
		Email:      parsed.Email,
		Phone:      parsed.Phone,
		Title:      parsed.Title,
		Notes:      parsed.Notes,
		Confidence: parsed.Confidence,
	}, nil
}

// classifyGemini maps API errors onto SERVICE_ERROR; transport errors are
// left for the gateway to classify.
func classifyGemini(err error) error {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewServiceError(apiErr.Code, apiErr.Status, apiErr.Message)
	}
	return err
}
