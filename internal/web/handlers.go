package web

import (
	"context"
	"database/sql"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
	"github.com/hpungsan/leadcap/internal/ops"
	"github.com/hpungsan/leadcap/internal/pipeline"
)

// maxUploadBytes bounds a voice or card upload.
const maxUploadBytes = 25 << 20

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	orch     *pipeline.Orchestrator
	images   *db.Images
	renderer *Renderer
}

// page fills the common page fields from the live capture session.
func (h *Handlers) page(r *http.Request, title, nav string) PageData {
	p := PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		Notice:  r.URL.Query().Get("notice"),
		Online:  h.orch.Online(),
		Append:  h.orch.AppendTarget(),
		Undo:    h.orch.UndoTarget(),
	}
	if status, err := h.orch.Drainer().Status(r.Context()); err == nil {
		p.Pending = status.Pending + status.Processing
	}
	return p
}

// HandleList handles GET /leads: list leads, or search them with ?q=.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := parseIntParam(r, "limit", ops.DefaultListLimit)
	offset := parseIntParam(r, "offset", 0)

	data := LeadsPageData{
		PageData: h.page(r, "Leads", "leads"),
		Query:    query,
	}

	if query == "" {
		result, err := ops.List(r.Context(), h.db, ops.ListInput{Limit: limit, Offset: offset})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if wantsJSON(r) {
			renderJSON(w, http.StatusOK, result)
			return
		}
		for _, l := range result.Items {
			data.Items = append(data.Items, LeadRow{Lead: l, DisplayName: l.DisplayName()})
		}
		data.Pagination = result.Pagination
	} else {
		result, err := ops.Search(r.Context(), h.db, ops.SearchInput{Query: query, Limit: limit, Offset: offset})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if wantsJSON(r) {
			renderJSON(w, http.StatusOK, result)
			return
		}
		for _, item := range result.Items {
			data.Items = append(data.Items, LeadRow{
				Lead:         item.Lead,
				DisplayName:  item.Lead.DisplayName(),
				MatchedField: item.MatchedField,
				Snippet:      template.HTML(item.Snippet), // escaped by ops.Search
			})
		}
		data.Pagination = result.Pagination
	}

	if backup, err := ops.BackupStatus(r.Context(), h.db, h.cfg, ops.BackupStatusInput{}); err == nil {
		data.Backup = backup
	}

	h.renderer.renderPage(w, "leads", data)
}

// HandleDetail handles GET /leads/{id}: one lead with its sources.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	l, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, l)
		return
	}

	sources := make([]SourceView, 0, len(l.Sources))
	for _, s := range l.Sources {
		body := s.Text
		if s.Type == lead.CaptureVoice {
			body = s.Transcript
		}
		sources = append(sources, SourceView{Source: s, Body: renderMarkdown(body)})
	}

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: h.page(r, l.DisplayName, "leads"),
		Lead:     l,
		Notes:    renderMarkdown(l.Notes),
		Sources:  sources,
	})
}

// HandleUpdate handles POST /leads/{id}/edit. Only submitted fields change.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	field := func(name string) *string {
		if _, ok := r.PostForm[name]; !ok {
			return nil
		}
		v := r.PostForm.Get(name)
		return &v
	}

	id := r.PathValue("id")
	result, err := ops.Update(r.Context(), h.db, ops.UpdateInput{
		ID:      id,
		Name:    field("name"),
		Company: field("company"),
		Email:   field("email"),
		Phone:   field("phone"),
		Title:   field("title"),
		Notes:   field("notes"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	redirect(w, r, "/leads/"+url.PathEscape(id), "Saved")
}

// HandleDelete handles POST /leads/{id}/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(r.Context(), h.db, h.orch, ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	redirect(w, r, "/leads", "Lead deleted")
}

// HandleAppendArm handles POST /leads/{id}/append: merge the next capture into this lead.
func (h *Handlers) HandleAppendArm(w http.ResponseWriter, r *http.Request) {
	l, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.orch.ArmAppendMode(l.ID, l.DisplayName)

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"armed": true, "target": h.orch.AppendTarget()})
		return
	}
	redirect(w, r, "/leads", "Next capture will be added to "+l.DisplayName)
}

// HandleAppendCancel handles POST /append/cancel.
func (h *Handlers) HandleAppendCancel(w http.ResponseWriter, r *http.Request) {
	h.orch.CancelAppendMode()
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"armed": false})
		return
	}
	redirect(w, r, "/leads", "")
}

// HandleCaptureText handles POST /capture/text with a "text" form field.
func (h *Handlers) HandleCaptureText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	h.capture(w, r, lead.TextCapture(r.PostForm.Get("text")))
}

// HandleCaptureFile handles POST /capture/{kind} for voice and card uploads.
// The multipart "file" part carries the payload; its Content-Type is the MIME type.
func (h *Handlers) HandleCaptureFile(w http.ResponseWriter, r *http.Request) {
	kind, err := lead.ParseCaptureType(r.PathValue("kind"))
	if err != nil || kind == lead.CaptureText {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("capture kind must be voice or card"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("a file upload named \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("failed to read upload"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	c := lead.VoiceCapture(data, mimeType)
	if kind == lead.CaptureCard {
		c = lead.CardCapture(data, mimeType)
	}
	h.capture(w, r, c)
}

func (h *Handlers) capture(w http.ResponseWriter, r *http.Request, c lead.Capture) {
	result, err := h.orch.Capture(r.Context(), c)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	switch result.Status {
	case pipeline.StatusDeferred:
		redirect(w, r, "/leads", "Offline: capture saved and will be processed when back online")
	case pipeline.StatusMerged:
		redirect(w, r, "/leads/"+url.PathEscape(result.Lead.ID), "Added to "+result.Lead.DisplayName())
	default:
		redirect(w, r, "/leads/"+url.PathEscape(result.Lead.ID), "Lead captured")
	}
}

// HandleUndo handles POST /undo.
func (h *Handlers) HandleUndo(w http.ResponseWriter, r *http.Request) {
	undone, err := h.orch.Undo(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"undone": undone})
		return
	}
	redirect(w, r, "/leads", "Capture undone")
}

// HandleQueue handles GET /queue: deferred captures and their errors.
func (h *Handlers) HandleQueue(w http.ResponseWriter, r *http.Request) {
	status, err := h.orch.Drainer().Status(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, status)
		return
	}
	h.renderer.renderPage(w, "queue", QueuePageData{
		PageData: h.page(r, "Queue", "queue"),
		Status:   status,
	})
}

// HandleDrain handles POST /queue/drain. The pass outlives a client disconnect.
func (h *Handlers) HandleDrain(w http.ResponseWriter, r *http.Request) {
	report, err := h.orch.Drainer().Drain(context.WithoutCancel(r.Context()))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, report)
		return
	}
	redirect(w, r, "/queue", drainNotice(report))
}

// HandleRetry handles POST /queue/{id}/retry.
func (h *Handlers) HandleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := ops.ValidateID(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	report, err := h.orch.Drainer().Retry(context.WithoutCancel(r.Context()), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, report)
		return
	}
	redirect(w, r, "/queue", drainNotice(report))
}

// HandleQueueClear handles POST /queue/clear. Requires confirm=true.
func (h *Handlers) HandleQueueClear(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	n, err := h.orch.Drainer().Clear(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"cleared": n})
		return
	}
	redirect(w, r, "/queue", "Queue cleared")
}

// HandleExport handles POST /export: write an export file into the exports directory.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	result, err := ops.Export(r.Context(), h.db, h.cfg, ops.ExportInput{
		Format: ops.ExportFormat(r.FormValue("format")),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	redirect(w, r, "/leads", "Exported "+strconv.Itoa(result.Count)+" leads to "+result.Path)
}

// HandleCardImage handles GET /cards/{ref}: the photo behind a card source.
func (h *Handlers) HandleCardImage(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	if !strings.HasPrefix(ref, lead.ImageRefPrefix) {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid image reference"))
		return
	}
	data, mimeType, err := h.images.Get(r.Context(), ref)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	// Content-addressed, so the bytes behind a ref never change.
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := h.orch.Drainer().Status(r.Context())
	if err != nil {
		renderJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error"})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"online":   status.Online,
		"draining": status.Draining,
		"pending":  status.Pending,
		"failed":   status.Failed,
	})
}

func drainNotice(report *pipeline.DrainReport) string {
	if report.Skipped {
		return "Drain skipped: " + report.Reason
	}
	return strconv.Itoa(report.Succeeded) + " processed, " + strconv.Itoa(report.Failed) + " failed"
}

// redirect sends a 303 to path, carrying notice for the banner.
func redirect(w http.ResponseWriter, r *http.Request, path, notice string) {
	if notice != "" {
		path += "?notice=" + url.QueryEscape(notice)
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
