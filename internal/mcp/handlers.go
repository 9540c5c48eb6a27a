package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
	"github.com/hpungsan/salon/internal/ops"
	"github.com/hpungsan/salon/internal/persona"
	"github.com/hpungsan/salon/internal/tasks"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db        *sql.DB
	cfg       *config.Config
	catalog   persona.Catalog
	generator *capsule.Generator
	extractor *discussion.Extractor
	tasks     *tasks.Manager
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		db:        deps.DB,
		cfg:       deps.Config,
		catalog:   deps.Catalog,
		generator: deps.Generator,
		extractor: deps.Extractor,
		tasks:     deps.Tasks,
	}
}

// TaskSubmitRequest represents the arguments for task_submit.
type TaskSubmitRequest struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// TaskRequest addresses one task.
type TaskRequest struct {
	TaskID string `json:"task_id"`
}

// TaskCancelResult is the task_cancel response.
type TaskCancelResult struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// TaskListResult is the task_list response.
type TaskListResult struct {
	Items []tasks.Task `json:"items"`
}

// Topics

// HandleTopicCreate handles the topic_create tool call.
func (h *Handlers) HandleTopicCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.CreateTopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.CreateTopic(ctx, h.db, h.cfg, input))
}

// HandleTopicGet handles the topic_get tool call.
func (h *Handlers) HandleTopicGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.GetTopic(ctx, h.db, h.cfg, input))
}

// HandleTopicList handles the topic_list tool call.
func (h *Handlers) HandleTopicList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ListTopicsInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.ListTopics(ctx, h.db, h.cfg, input))
}

// HandleTopicDelete handles the topic_delete tool call.
func (h *Handlers) HandleTopicDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.DeleteTopic(ctx, h.db, h.cfg, input))
}

// HandleTopicAssign handles the topic_assign tool call.
func (h *Handlers) HandleTopicAssign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.AssignParticipantsInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.AssignParticipants(ctx, h.db, h.cfg, h.catalog, input))
}

// HandleTopicStart handles the topic_start tool call.
func (h *Handlers) HandleTopicStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.StartTopic(ctx, h.db, h.cfg, input))
}

// HandleTopicAdvance handles the topic_advance tool call.
func (h *Handlers) HandleTopicAdvance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.AdvancePhase(ctx, h.db, h.cfg, input))
}

// HandleTopicSummary handles the topic_summary tool call.
func (h *Handlers) HandleTopicSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.SummarizeTopic(ctx, h.db, h.cfg, input))
}

// Contributions and insights

// HandleContributionRecord handles the contribution_record tool call.
func (h *Handlers) HandleContributionRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.RecordContributionInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.RecordContribution(ctx, h.db, h.cfg, input))
}

// HandleContributionList handles the contribution_list tool call.
func (h *Handlers) HandleContributionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	items, err := ops.ListContributions(ctx, h.db, h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"items": items})
}

// HandleInsightExtract handles the insight_extract tool call.
func (h *Handlers) HandleInsightExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	items, err := ops.ExtractInsights(ctx, h.db, h.cfg, h.extractor, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"items": items})
}

// HandleInsightList handles the insight_list tool call.
func (h *Handlers) HandleInsightList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	items, err := ops.ListInsights(ctx, h.db, h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"items": items})
}

// Capsules

// HandleCapsuleGenerate handles the capsule_generate tool call.
func (h *Handlers) HandleCapsuleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TopicInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.GenerateCapsule(ctx, h.db, h.cfg, h.generator, input))
}

// HandleCapsuleEvaluate handles the capsule_evaluate tool call.
func (h *Handlers) HandleCapsuleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.CapsuleInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.EvaluateCapsule(ctx, h.db, h.cfg, input))
}

// HandleCapsuleSave handles the capsule_save tool call.
func (h *Handlers) HandleCapsuleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[capsule.Capsule](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.SaveCapsule(ctx, h.db, h.cfg, input))
}

// HandleCapsuleGet handles the capsule_get tool call.
func (h *Handlers) HandleCapsuleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.CapsuleInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.GetCapsule(ctx, h.db, h.cfg, input))
}

// HandleCapsuleList handles the capsule_list tool call.
func (h *Handlers) HandleCapsuleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ListCapsulesInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.ListCapsules(ctx, h.db, h.cfg, input))
}

// HandleCapsuleSearch handles the capsule_search tool call.
func (h *Handlers) HandleCapsuleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.SearchCapsulesInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.SearchCapsules(ctx, h.db, h.cfg, input))
}

// HandleCapsuleStatus handles the capsule_status tool call.
func (h *Handlers) HandleCapsuleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.UpdateStatusInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.UpdateStatus(ctx, h.db, h.cfg, input))
}

// HandleCapsuleStats handles the capsule_stats tool call.
func (h *Handlers) HandleCapsuleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(ops.Stats(ctx, h.db, h.cfg))
}

// HandleCapsuleVersion handles the capsule_version tool call.
func (h *Handlers) HandleCapsuleVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.CreateVersionInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.CreateVersion(ctx, h.db, h.cfg, input))
}

// HandleCapsuleHistory handles the capsule_history tool call.
func (h *Handlers) HandleCapsuleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.CapsuleInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.VersionHistory(ctx, h.db, h.cfg, input))
}

// HandleCapsuleRollback handles the capsule_rollback tool call.
func (h *Handlers) HandleCapsuleRollback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.RollbackInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.Rollback(ctx, h.db, h.cfg, input))
}

// HandleCapsuleExport handles the capsule_export tool call.
func (h *Handlers) HandleCapsuleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ExportInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	return respond(ops.Export(ctx, h.db, h.cfg, input))
}

// Tasks

// HandleTaskSubmit handles the task_submit tool call.
func (h *Handlers) HandleTaskSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskSubmitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	if h.tasks == nil {
		return errorResult(errors.NewPreconditionFailed("background tasks are not available", nil)), nil
	}
	id, err := h.tasks.Submit(input.Kind, input.Params)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"task_id": id, "kind": strings.TrimSpace(input.Kind)})
}

// HandleTaskPoll handles the task_poll tool call.
func (h *Handlers) HandleTaskPoll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	if h.tasks == nil {
		return errorResult(errors.NewNotFound("task", input.TaskID)), nil
	}
	return respond(h.tasks.Poll(input.TaskID))
}

// HandleTaskCancel handles the task_cancel tool call.
func (h *Handlers) HandleTaskCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	cancelled := h.tasks != nil && h.tasks.Cancel(input.TaskID)
	return successResult(TaskCancelResult{TaskID: input.TaskID, Cancelled: cancelled})
}

// HandleTaskList handles the task_list tool call.
func (h *Handlers) HandleTaskList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := []tasks.Task{}
	if h.tasks != nil {
		items = h.tasks.List()
	}
	return successResult(TaskListResult{Items: items})
}

// Result helpers

// respond maps an ops call straight to a tool result.
func respond(data any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(data)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.SalonError
	if stderrors.As(err, &sErr) {
		// Keep wrapper context such as "topics[2]: ".
		msg := strings.TrimSuffix(err.Error(), sErr.Error()) + sErr.Message
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": msg,
			"status":  sErr.Status,
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
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
