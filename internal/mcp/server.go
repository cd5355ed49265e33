package mcp

import (
	"database/sql"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/ctxpack/internal/session"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"selection", "tokens", "related", "bundle", "snapshot"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"selection_status": {
		def:     statusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
	"selection_toggle": {
		def:     toggleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleToggle },
	},
	"selection_apply_pattern": {
		def:     applyPatternToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleApplyPattern },
	},
	"selection_refresh": {
		def:     refreshToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRefresh },
	},
	"tokens_report": {
		def:     tokensToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTokens },
	},
	"related_suggest": {
		def:     suggestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSuggest },
	},
	"bundle_render": {
		def:     bundleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundle },
	},
	"snapshot_store": {
		def:     snapshotStoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshotStore },
	},
	"snapshot_list": {
		def:     snapshotListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshotList },
	},
	"snapshot_restore": {
		def:     snapshotRestoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshotRestore },
	},
	"snapshot_delete": {
		def:     snapshotDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshotDelete },
	},
}

// AllToolNames returns every valid tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
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

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "snapshot_store" → "snapshot").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
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

// NewServer creates an MCP server exposing the session's operations.
// Tools listed in the session config's disabled_tools or belonging to its
// disabled_types are not registered.
func NewServer(db *sql.DB, sess *session.Session, version string, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"ctxpack",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, sess, logger)
	cfg := sess.Config

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
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, sess *session.Session, version string, logger *zap.Logger) error {
	s := NewServer(db, sess, version, logger)
	return server.ServeStdio(s)
}
