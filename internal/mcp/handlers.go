package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
	"github.com/hpungsan/leadcap/internal/ops"
	"github.com/hpungsan/leadcap/internal/pipeline"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db   *sql.DB
	cfg  *config.Config
	orch *pipeline.Orchestrator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, orch *pipeline.Orchestrator) *Handlers {
	return &Handlers{db: db, cfg: cfg, orch: orch}
}

// Request types for each tool

// CaptureTextRequest represents the arguments for capture_text.
type CaptureTextRequest struct {
	Text string `json:"text"`
}

// CaptureBinaryRequest represents the arguments for capture_voice and capture_card.
type CaptureBinaryRequest struct {
	Audio    string `json:"audio,omitempty"`
	Image    string `json:"image,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// IDRequest represents the arguments for tools addressing one item.
type IDRequest struct {
	ID string `json:"id"`
}

// PageRequest represents the arguments for lead_list.
type PageRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// SearchRequest represents the arguments for lead_search.
type SearchRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// UpdateRequest represents the arguments for lead_update.
type UpdateRequest struct {
	ID      string  `json:"id"`
	Name    *string `json:"name,omitempty"`
	Company *string `json:"company,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Title   *string `json:"title,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

// ConfirmRequest represents the arguments for destructive bulk tools.
type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

// ExportRequest represents the arguments for lead_export.
type ExportRequest struct {
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
}

// ImportRequest represents the arguments for lead_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Response types that have no ops counterpart

// UndoOutput is the result of capture_undo.
type UndoOutput struct {
	Undone  *pipeline.UndoTarget `json:"undone"`
	Message string               `json:"message"`
}

// AppendStatusOutput is the result of the append_* tools.
type AppendStatusOutput struct {
	Armed  bool                   `json:"armed"`
	Target *pipeline.AppendTarget `json:"target,omitempty"`
	Undo   *pipeline.UndoTarget   `json:"undo,omitempty"`
	Online bool                   `json:"online"`
}

// QueueClearOutput is the result of queue_clear.
type QueueClearOutput struct {
	Cleared int `json:"cleared"`
}

// Capture handlers

// HandleCaptureText handles the capture_text tool call.
func (h *Handlers) HandleCaptureText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureTextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.capture(ctx, lead.TextCapture(input.Text))
}

// HandleCaptureVoice handles the capture_voice tool call.
func (h *Handlers) HandleCaptureVoice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureBinaryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	audio, err := decodeBinary("audio", input.Audio)
	if err != nil {
		return errorResult(err), nil
	}
	return h.capture(ctx, lead.VoiceCapture(audio, input.MimeType))
}

// HandleCaptureCard handles the capture_card tool call.
func (h *Handlers) HandleCaptureCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureBinaryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	image, err := decodeBinary("image", input.Image)
	if err != nil {
		return errorResult(err), nil
	}
	return h.capture(ctx, lead.CardCapture(image, input.MimeType))
}

func (h *Handlers) capture(ctx context.Context, c lead.Capture) (*mcp.CallToolResult, error) {
	result, err := h.orch.Capture(ctx, c)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleUndo handles the capture_undo tool call.
func (h *Handlers) HandleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	undone, err := h.orch.Undo(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	msg := "Removed the new lead"
	if undone.Status == pipeline.StatusMerged {
		msg = "Removed the merged lead"
	}
	return successResult(UndoOutput{Undone: undone, Message: msg})
}

// Append handlers

// HandleAppendArm handles the append_arm tool call.
func (h *Handlers) HandleAppendArm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	target, err := ops.Fetch(ctx, h.db, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	h.orch.ArmAppendMode(target.ID, target.DisplayName)
	return successResult(h.appendStatus())
}

// HandleAppendCancel handles the append_cancel tool call.
func (h *Handlers) HandleAppendCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.orch.CancelAppendMode()
	return successResult(h.appendStatus())
}

// HandleAppendStatus handles the append_status tool call.
func (h *Handlers) HandleAppendStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.appendStatus())
}

func (h *Handlers) appendStatus() AppendStatusOutput {
	target := h.orch.AppendTarget()
	return AppendStatusOutput{
		Armed:  target != nil,
		Target: target,
		Undo:   h.orch.UndoTarget(),
		Online: h.orch.Online(),
	}
}

// Lead handlers

// HandleList handles the lead_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSearch handles the lead_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Search(ctx, h.db, ops.SearchInput{
		Query:  input.Query,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleGet handles the lead_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleUpdate handles the lead_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Update(ctx, h.db, ops.UpdateInput{
		ID:      input.ID,
		Name:    input.Name,
		Company: input.Company,
		Email:   input.Email,
		Phone:   input.Phone,
		Title:   input.Title,
		Notes:   input.Notes,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the lead_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.db, h.orch, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePurge handles the lead_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfirmRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.db, h.orch, ops.PurgeInput{Confirm: input.Confirm})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the lead_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path:   input.Path,
		Format: ops.ExportFormat(input.Format),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the lead_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Queue handlers

// HandleQueueStatus handles the queue_status tool call.
func (h *Handlers) HandleQueueStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.orch.Drainer().Status(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleQueueDrain handles the queue_drain tool call.
func (h *Handlers) HandleQueueDrain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.orch.Drainer().Drain(context.WithoutCancel(ctx))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleQueueRetry handles the queue_retry tool call.
func (h *Handlers) HandleQueueRetry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	id, err := ops.ValidateID(input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.orch.Drainer().Retry(context.WithoutCancel(ctx), id)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleQueueClear handles the queue_clear tool call.
func (h *Handlers) HandleQueueClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfirmRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if !input.Confirm {
		return errorResult(errors.NewInvalidRequest("confirm must be true to clear the queue")), nil
	}

	n, err := h.orch.Drainer().Clear(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(QueueClearOutput{Cleared: n})
}

// Result helpers

// errorResult creates an MCP error result from any error. IsError is set so
// clients treat it as a failure. INTERNAL and STORAGE errors never expose
// their details, which may hold paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if lErr, ok := errors.As(err); ok {
		msg := lErr.Message
		// Keep wrapper context, e.g. "drain: TIMEOUT: ..." → "drain: ...".
		if full := err.Error(); full != lErr.Error() {
			msg = strings.TrimSuffix(full, lErr.Error()) + lErr.Message
		}
		errorObj := map[string]any{
			"code":    lErr.Code,
			"message": msg,
			"status":  lErr.Status,
		}
		if lErr.Code != errors.ErrInternal && lErr.Code != errors.ErrStorage && lErr.Details != nil {
			errorObj["details"] = lErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
