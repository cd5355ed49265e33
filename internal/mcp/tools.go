package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = map[string]any{"type": "string"}

var statusToolDef = mcp.NewTool("selection_status",
	mcp.WithDescription("Show which project files are included in the bundle, as a checkbox tree with a summary."),
	mcp.WithNumber("max_depth", mcp.Description("Stop descending below this depth (0 = unlimited)")),
	mcp.WithBoolean("collapse", mcp.Description("Hide the children of fully included or excluded directories")),
	mcp.WithBoolean("no_tree", mcp.Description("Omit the rendered tree")),
)

var toggleToolDef = mcp.NewTool("selection_toggle",
	mcp.WithDescription("Flip files or directories in or out of the selection. A directory becomes fully included unless it already is, in which case it is fully excluded."),
	mcp.WithArray("paths", mcp.Required(), mcp.Items(stringItems),
		mcp.Description("Paths relative to the project root")),
)

var applyPatternToolDef = mcp.NewTool("selection_apply_pattern",
	mcp.WithDescription("Include or exclude every file matching glob patterns, applied in order (last wins). `*` stays within a path segment, `**` crosses segments."),
	mcp.WithArray("include", mcp.Items(stringItems), mcp.Description("Globs to include, applied first")),
	mcp.WithArray("exclude", mcp.Items(stringItems), mcp.Description("Globs to exclude, applied after include")),
)

var refreshToolDef = mcp.NewTool("selection_refresh",
	mcp.WithDescription("Rescan the project after files were added, edited or removed. Vanished files leave the selection."),
)

var tokensToolDef = mcp.NewTool("tokens_report",
	mcp.WithDescription("Count the tokens of the selected files and compare the total to the model's context window."),
	mcp.WithString("model", mcp.Description("Model id (claude, gpt-4, gpt-4o, gemini, llama); default from config")),
	mcp.WithBoolean("all_models", mcp.Description("Report every known model")),
	mcp.WithBoolean("per_file", mcp.Description("Include per-file counts, largest first")),
)

var suggestToolDef = mcp.NewTool("related_suggest",
	mcp.WithDescription("Suggest files related to the selection: imported modules and test companions."),
	mcp.WithNumber("limit", mcp.Description("Maximum suggestions (default from config)")),
	mcp.WithBoolean("apply", mcp.Description("Include every suggestion")),
)

var bundleToolDef = mcp.NewTool("bundle_render",
	mcp.WithDescription("Render the selected files into one document. Returns the content unless write is set."),
	mcp.WithString("format", mcp.Enum("markdown", "json", "html", "template"), mcp.Description("Output format (default from config)")),
	mcp.WithString("template", mcp.Description("text/template file inside the project")),
	mcp.WithBoolean("write", mcp.Description("Write to output instead of returning the content")),
	mcp.WithString("output", mcp.Description("Output file inside the project (default from config)")),
	mcp.WithBoolean("manifest", mcp.Description("Also write a manifest next to the output")),
	mcp.WithString("changed_since", mcp.Description("Manifest of an earlier dump; only changed files are rendered")),
	mcp.WithString("model", mcp.Description("Model for token counts")),
	mcp.WithBoolean("skip_tokens", mcp.Description("Do not count tokens")),
)

var snapshotStoreToolDef = mcp.NewTool("snapshot_store",
	mcp.WithDescription("Save the current selection under a name."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Unique per project, case-insensitive")),
	mcp.WithBoolean("with_tokens", mcp.Description("Record the token total")),
)

var snapshotListToolDef = mcp.NewTool("snapshot_list",
	mcp.WithDescription("List saved selections for this project, newest first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var snapshotRestoreToolDef = mcp.NewTool("snapshot_restore",
	mcp.WithDescription("Replace the selection with a saved one. Files that no longer exist are reported as stale."),
	mcp.WithString("ref", mcp.Required(), mcp.Description("Snapshot id or name")),
)

var snapshotDeleteToolDef = mcp.NewTool("snapshot_delete",
	mcp.WithDescription("Delete a saved selection."),
	mcp.WithString("ref", mcp.Required(), mcp.Description("Snapshot id or name")),
)
