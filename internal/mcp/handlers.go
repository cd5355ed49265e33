package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/logging"
	"github.com/hpungsan/ctxpack/internal/ops"
	"github.com/hpungsan/ctxpack/internal/selection"
	"github.com/hpungsan/ctxpack/internal/session"
)

// Handlers holds dependencies for MCP tool handlers. The session is not
// safe for concurrent use, so every handler holds mu while touching it.
type Handlers struct {
	db     *sql.DB
	logger *zap.Logger

	mu   sync.Mutex
	sess *session.Session
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, sess *session.Session, logger *zap.Logger) *Handlers {
	return &Handlers{db: db, sess: sess, logger: logging.OrNop(logger)}
}

// Request types for each tool

// StatusRequest represents the arguments for selection_status.
type StatusRequest struct {
	MaxDepth int  `json:"max_depth,omitempty"`
	Collapse bool `json:"collapse,omitempty"`
	NoTree   bool `json:"no_tree,omitempty"`
}

// ToggleRequest represents the arguments for selection_toggle.
type ToggleRequest struct {
	Paths []string `json:"paths"`
}

// ApplyPatternRequest represents the arguments for selection_apply_pattern.
type ApplyPatternRequest struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// TokensRequest represents the arguments for tokens_report.
type TokensRequest struct {
	Model     string `json:"model,omitempty"`
	AllModels bool   `json:"all_models,omitempty"`
	PerFile   bool   `json:"per_file,omitempty"`
}

// SuggestRequest represents the arguments for related_suggest.
type SuggestRequest struct {
	Limit int  `json:"limit,omitempty"`
	Apply bool `json:"apply,omitempty"`
}

// BundleRequest represents the arguments for bundle_render.
type BundleRequest struct {
	Format       string `json:"format,omitempty"`
	Template     string `json:"template,omitempty"`
	Write        bool   `json:"write,omitempty"`
	Output       string `json:"output,omitempty"`
	Manifest     bool   `json:"manifest,omitempty"`
	ChangedSince string `json:"changed_since,omitempty"`
	Model        string `json:"model,omitempty"`
	SkipTokens   bool   `json:"skip_tokens,omitempty"`
}

// SnapshotStoreRequest represents the arguments for snapshot_store.
type SnapshotStoreRequest struct {
	Name       string `json:"name"`
	WithTokens bool   `json:"with_tokens,omitempty"`
}

// SnapshotListRequest represents the arguments for snapshot_list.
type SnapshotListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// SnapshotRefRequest represents the arguments for snapshot_restore and
// snapshot_delete.
type SnapshotRefRequest struct {
	Ref string `json:"ref"`
}

// Handler implementations

// HandleStatus handles the selection_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.Status(h.sess, ops.StatusInput{
		MaxDepth: input.MaxDepth,
		Collapse: input.Collapse,
		NoTree:   input.NoTree,
	})
	if err != nil {
		return h.fail("selection_status", err), nil
	}
	return successResult(result)
}

// HandleToggle handles the selection_toggle tool call.
func (h *Handlers) HandleToggle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ToggleRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.Toggle(h.sess, ops.ToggleInput{Paths: input.Paths})
	if err != nil {
		return h.fail("selection_toggle", err), nil
	}
	return successResult(result)
}

// HandleApplyPattern handles the selection_apply_pattern tool call.
func (h *Handlers) HandleApplyPattern(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ApplyPatternRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	patterns := append(ops.Patterns(selection.Include, input.Include...), ops.Patterns(selection.Exclude, input.Exclude...)...)

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.ApplyPatterns(h.sess, ops.PatternInput{Ops: patterns})
	if err != nil {
		return h.fail("selection_apply_pattern", err), nil
	}
	return successResult(result)
}

// HandleRefresh handles the selection_refresh tool call.
func (h *Handlers) HandleRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := decode[struct{}](req); err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.Refresh(ctx, h.sess)
	if err != nil {
		return h.fail("selection_refresh", err), nil
	}
	return successResult(result)
}

// HandleTokens handles the tokens_report tool call.
func (h *Handlers) HandleTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokensRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.Tokens(ctx, h.sess, ops.TokensInput{
		Model:     input.Model,
		AllModels: input.AllModels,
		PerFile:   input.PerFile,
	})
	if err != nil {
		return h.fail("tokens_report", err), nil
	}
	return successResult(result)
}

// HandleSuggest handles the related_suggest tool call.
func (h *Handlers) HandleSuggest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SuggestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.Suggest(h.sess, ops.SuggestInput{Limit: input.Limit, Apply: input.Apply})
	if err != nil {
		return h.fail("related_suggest", err), nil
	}
	return successResult(result)
}

// HandleBundle handles the bundle_render tool call. Paths are confined to
// the project root.
func (h *Handlers) HandleBundle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BundleRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if !input.Write && (input.Output != "" || input.Manifest) {
		return errorResult(errors.NewInvalidRequest("output and manifest require write")), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.Dump(ctx, h.sess, ops.DumpInput{
		Output:       input.Output,
		Format:       input.Format,
		Template:     input.Template,
		Manifest:     input.Manifest,
		ChangedSince: input.ChangedSince,
		Model:        input.Model,
		SkipTokens:   input.SkipTokens,
		Inline:       !input.Write,
	})
	if err != nil {
		return h.fail("bundle_render", err), nil
	}
	return successResult(result)
}

// HandleSnapshotStore handles the snapshot_store tool call.
func (h *Handlers) HandleSnapshotStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SnapshotStoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.SnapshotStore(ctx, h.db, h.sess, ops.SnapshotStoreInput{
		Name:       input.Name,
		WithTokens: input.WithTokens,
	})
	if err != nil {
		return h.fail("snapshot_store", err), nil
	}
	return successResult(result)
}

// HandleSnapshotList handles the snapshot_list tool call.
func (h *Handlers) HandleSnapshotList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SnapshotListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.SnapshotList(h.db, h.sess, ops.SnapshotListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return h.fail("snapshot_list", err), nil
	}
	return successResult(result)
}

// HandleSnapshotRestore handles the snapshot_restore tool call.
func (h *Handlers) HandleSnapshotRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SnapshotRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.SnapshotRestore(h.db, h.sess, ops.SnapshotRef{Ref: input.Ref})
	if err != nil {
		return h.fail("snapshot_restore", err), nil
	}
	return successResult(result)
}

// HandleSnapshotDelete handles the snapshot_delete tool call.
func (h *Handlers) HandleSnapshotDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SnapshotRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := ops.SnapshotDelete(h.db, h.sess, ops.SnapshotRef{Ref: input.Ref})
	if err != nil {
		return h.fail("snapshot_delete", err), nil
	}
	return successResult(result)
}

// Result helpers

// fail logs err and converts it to a tool error result.
func (h *Handlers) fail(tool string, err error) *mcp.CallToolResult {
	if pErr, ok := errors.As(err); ok && !pErr.Fatal() {
		h.logger.Debug("Tool call failed", zap.String("tool", tool), zap.Error(err))
	} else {
		h.logger.Error("Tool call failed", zap.String("tool", tool), zap.Error(err))
	}
	return errorResult(err)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if pErr, ok := errors.As(err); ok {
		message := pErr.Message
		// keep wrapper context such as "restore: "
		if prefix, ok := strings.CutSuffix(err.Error(), pErr.Error()); ok {
			message = prefix + pErr.Message
		}
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": message,
		}
		if pErr.Code != errors.ErrInternal && pErr.Details != nil {
			errorObj["details"] = pErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
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
