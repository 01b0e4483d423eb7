package mcp

import "github.com/mark3labs/mcp-go/mcp"

// toolDef describes a tool; its name comes from the registry key.
type toolDef struct {
	description string
	params      []mcp.ToolOption
}

func (d toolDef) tool(name string) mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription(d.description)}, d.params...)
	return mcp.NewTool(name, opts...)
}

var mimeParam = mcp.WithString("mime_type",
	mcp.Description("MIME type of the payload. Defaults to audio/webm for voice and image/jpeg for cards."))

var captureTextToolDef = toolDef{
	description: "Capture a lead from free text such as meeting notes. " +
		"Online: extracts contact fields and creates a lead, or merges into the armed append target. " +
		"Offline: queues the text for later extraction and returns status=deferred.",
	params: []mcp.ToolOption{
		mcp.WithString("text", mcp.Required(), mcp.Description("Free-form text describing the contact")),
	},
}

var captureVoiceToolDef = toolDef{
	description: "Capture a lead from a voice memo. The recording is transcribed, then fields are extracted from the transcript.",
	params: []mcp.ToolOption{
		mcp.WithString("audio", mcp.Required(), mcp.Description("Base64-encoded audio recording")),
		mimeParam,
	},
}

var captureCardToolDef = toolDef{
	description: "Capture a lead from a business card photo. The image is kept so the lead's source can show it later.",
	params: []mcp.ToolOption{
		mcp.WithString("image", mcp.Required(), mcp.Description("Base64-encoded card image")),
		mimeParam,
	},
}

var captureUndoToolDef = toolDef{
	description: "Undo the most recent capture within the undo window (10 seconds by default). Deletes the created or merged lead.",
}

var appendArmToolDef = toolDef{
	description: "Arm append mode: the next online capture is merged into this lead instead of creating a new one.",
	params: []mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Lead ID to append to")),
	},
}

var appendCancelToolDef = toolDef{
	description: "Cancel append mode.",
}

var appendStatusToolDef = toolDef{
	description: "Show the armed append target and the live undo target, if any.",
}

var leadListToolDef = toolDef{
	description: "List leads, newest first.",
	params: []mcp.ToolOption{
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Items to skip")),
	},
}

var leadSearchToolDef = toolDef{
	description: "Search leads by name, company or email. Case-insensitive substring match; results keep newest-first order.",
	params: []mcp.ToolOption{
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Items to skip")),
	},
}

var leadGetToolDef = toolDef{
	description: "Fetch one lead with all of its sources.",
	params: []mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Lead ID")),
	},
}

var leadUpdateToolDef = toolDef{
	description: "Edit contact fields of a lead. Omitted fields are unchanged; name cannot be blank.",
	params: []mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Lead ID")),
		mcp.WithString("name"),
		mcp.WithString("company"),
		mcp.WithString("email"),
		mcp.WithString("phone"),
		mcp.WithString("title"),
		mcp.WithString("notes"),
	},
}

var leadDeleteToolDef = toolDef{
	description: "Permanently delete a lead.",
	params: []mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Lead ID")),
	},
}

var leadPurgeToolDef = toolDef{
	description: "Permanently delete every lead. Requires confirm=true.",
	params: []mcp.ToolOption{
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	},
}

var leadExportToolDef = toolDef{
	description: "Export all leads to CSV (spreadsheet) or JSONL (importable backup). " +
		"Files go to the exports directory unless path names an allowed location.",
	params: []mcp.ToolOption{
		mcp.WithString("format", mcp.Enum("csv", "jsonl"), mcp.Description("Default csv, or inferred from path")),
		mcp.WithString("path", mcp.Description("Destination file")),
	},
}

var leadImportToolDef = toolDef{
	description: "Restore leads from a JSONL export.",
	params: []mcp.ToolOption{
		mcp.WithString("path", mcp.Required(), mcp.Description("JSONL export file")),
		mcp.WithString("mode", mcp.Enum("error", "replace", "rename"),
			mcp.Description("On id collision: error aborts (default), replace overwrites, rename imports under a new id")),
	},
}

var queueStatusToolDef = toolDef{
	description: "Show deferred captures: counts by status, each item's error, connectivity and whether a drain is running.",
}

var queueDrainToolDef = toolDef{
	description: "Process pending captures now. Skipped when offline or when a drain is already running.",
}

var queueRetryToolDef = toolDef{
	description: "Move a failed capture back to pending and drain.",
	params: []mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Pending capture ID")),
	},
}

var queueClearToolDef = toolDef{
	description: "Drop every deferred capture, whatever its status. Requires confirm=true.",
	params: []mcp.ToolOption{
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	},
}
