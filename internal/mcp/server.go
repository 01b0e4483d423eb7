package mcp

import (
	"database/sql"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/pipeline"
)

// KnownTypes lists the tool groups that disabled_types may name.
var KnownTypes = []string{"capture", "append", "lead", "queue"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     toolDef
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handlers.
var toolRegistry = map[string]toolEntry{
	"capture_text": {
		def:     captureTextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureText },
	},
	"capture_voice": {
		def:     captureVoiceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureVoice },
	},
	"capture_card": {
		def:     captureCardToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureCard },
	},
	"capture_undo": {
		def:     captureUndoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUndo },
	},
	"append_arm": {
		def:     appendArmToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAppendArm },
	},
	"append_cancel": {
		def:     appendCancelToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAppendCancel },
	},
	"append_status": {
		def:     appendStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAppendStatus },
	},
	"lead_list": {
		def:     leadListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"lead_search": {
		def:     leadSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearch },
	},
	"lead_get": {
		def:     leadGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"lead_update": {
		def:     leadUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdate },
	},
	"lead_delete": {
		def:     leadDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"lead_purge": {
		def:     leadPurgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
	"lead_export": {
		def:     leadExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"lead_import": {
		def:     leadImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"queue_status": {
		def:     queueStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueueStatus },
	},
	"queue_drain": {
		def:     queueDrainToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueueDrain },
	},
	"queue_retry": {
		def:     queueRetryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueueRetry },
	},
	"queue_clear": {
		def:     queueClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueueClear },
	},
}

// AllToolNames returns every registered tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns the names that are not known tools.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns the names that are not known tool groups.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool returns the group prefix of a tool name ("lead_get" → "lead").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given groups.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates an MCP server exposing capture, lead and queue tools.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes are
// not registered.
func NewServer(db *sql.DB, cfg *config.Config, orch *pipeline.Orchestrator, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"leadcap",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, orch)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def.tool(name), entry.handler(h))
	}

	return s
}

// Run serves MCP over stdio until stdin closes.
func Run(db *sql.DB, cfg *config.Config, orch *pipeline.Orchestrator, version string) error {
	return server.ServeStdio(NewServer(db, cfg, orch, version))
}
