package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/salon/internal/discussion"
)

type props map[string]any

func schema(p props, required ...string) json.RawMessage {
	s := map[string]any{"type": "object", "properties": p}
	if len(required) > 0 {
		s["required"] = required
	}
	b, _ := json.Marshal(s)
	return b
}

func str(desc string) map[string]any  { return map[string]any{"type": "string", "description": desc} }
func num(desc string) map[string]any  { return map[string]any{"type": "number", "description": desc} }
func flag(desc string) map[string]any { return map[string]any{"type": "boolean", "description": desc} }

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func strList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]string{"type": "string"}, "description": desc}
}

var phaseNames = func() []string {
	out := make([]string, len(discussion.Phases))
	for i, p := range discussion.Phases {
		out[i] = string(p)
	}
	return out
}()

var (
	topicIDOnly   = schema(props{"topic_id": str("Topic id")}, "topic_id")
	capsuleIDOnly = schema(props{"id": str("Capsule id")}, "id")
)

// Topics

var topicCreateToolDef = mcp.NewToolWithRawSchema("topic_create",
	"Create a discussion topic in the setup phase", schema(props{
		"title":            str("Topic title"),
		"description":      str("What the discussion is about"),
		"category":         str("Topic category (default: interdisciplinary)"),
		"max_participants": num("Participant cap (default: 5)"),
		"max_rounds":       num("Round cap (default: 3)"),
	}, "title"))

var topicGetToolDef = mcp.NewToolWithRawSchema("topic_get",
	"Get a topic with its participants", topicIDOnly)

var topicListToolDef = mcp.NewToolWithRawSchema("topic_list",
	"List topics, newest first", schema(props{
		"phase":  enum("Only topics in this phase", phaseNames...),
		"limit":  num("Page size (default: 20, max: 100)"),
		"offset": num("Items to skip"),
	}))

var topicDeleteToolDef = mcp.NewToolWithRawSchema("topic_delete",
	"Delete a topic with its participants, contributions and insights; capsules are kept", topicIDOnly)

var topicAssignToolDef = mcp.NewToolWithRawSchema("topic_assign",
	"Replace the participants of a topic in setup; the first becomes lector", schema(props{
		"topic_id":        str("Topic id"),
		"participant_ids": strList("Persona ids, used first"),
		"auto_fill":       flag("Top up from the persona catalog by category"),
		"roles": map[string]any{
			"type":                 "object",
			"description":          "Persona id to role",
			"additionalProperties": map[string]any{"type": "string", "enum": discussion.Roles},
		},
	}, "topic_id"))

var topicStartToolDef = mcp.NewToolWithRawSchema("topic_start",
	"Move a topic from setup to introduction", topicIDOnly)

var topicAdvanceToolDef = mcp.NewToolWithRawSchema("topic_advance",
	"Advance a topic to its next phase", topicIDOnly)

var topicSummaryToolDef = mcp.NewToolWithRawSchema("topic_summary",
	"Summarize a topic: contribution counts by phase and contributor, insight count", topicIDOnly)

// Contributions and insights

var contributionRecordToolDef = mcp.NewToolWithRawSchema("contribution_record",
	"Record a participant's contribution in the topic's current phase", schema(props{
		"topic_id":       str("Topic id"),
		"contributor_id": str("Participant persona id"),
		"text":           str("Contribution text"),
		"role":           enum("Role for this contribution (default: the participant's role)", discussion.Roles...),
		"round":          num("Round number (default: current round)"),
	}, "topic_id", "contributor_id", "text"))

var contributionListToolDef = mcp.NewToolWithRawSchema("contribution_list",
	"List a topic's contributions in recorded order", topicIDOnly)

var insightExtractToolDef = mcp.NewToolWithRawSchema("insight_extract",
	"Extract insights from a topic's contributions, replacing earlier ones", topicIDOnly)

var insightListToolDef = mcp.NewToolWithRawSchema("insight_list",
	"List the stored insights of a topic", topicIDOnly)

// Capsules

var capsuleGenerateToolDef = mcp.NewToolWithRawSchema("capsule_generate",
	"Generate, grade and store a knowledge capsule from a topic", topicIDOnly)

var capsuleEvaluateToolDef = mcp.NewToolWithRawSchema("capsule_evaluate",
	"Grade a stored capsule and suggest improvements", capsuleIDOnly)

var capsuleSaveToolDef = mcp.NewToolWithRawSchema("capsule_save",
	"Insert or update a capsule; the quality score is recomputed", schema(props{
		"id":           str("Capsule id (generated when empty)"),
		"topic_id":     str("Source topic id"),
		"title":        str("Capsule title"),
		"summary":      str("Summary"),
		"insight":      str("Headline insight"),
		"evidence":     strList("Evidence statements"),
		"action_items": strList("Action items"),
		"questions":    strList("Open questions"),
		"dimensions": map[string]any{
			"type":        "object",
			"description": "Scores in [0,100]",
			"properties": props{
				"truth":        map[string]string{"type": "number"},
				"goodness":     map[string]string{"type": "number"},
				"beauty":       map[string]string{"type": "number"},
				"intelligence": map[string]string{"type": "number"},
			},
		},
		"confidence":    num("Confidence in [0,1]"),
		"source_agents": strList("Participant names"),
		"keywords":      strList("Keywords"),
		"category":      str("Category"),
		"status":        enum("Review status", "draft", "review", "approved", "rejected"),
	}, "title"))

var capsuleGetToolDef = mcp.NewToolWithRawSchema("capsule_get",
	"Get a capsule by id", capsuleIDOnly)

var capsuleListToolDef = mcp.NewToolWithRawSchema("capsule_list",
	"List capsules by quality, best first", schema(props{
		"status":      enum("Only capsules with this status", "draft", "review", "approved", "rejected"),
		"category":    str("Only capsules in this category"),
		"min_quality": num("Minimum quality score"),
		"limit":       num("Page size (default: 20, max: 100)"),
		"offset":      num("Items to skip"),
	}))

var capsuleSearchToolDef = mcp.NewToolWithRawSchema("capsule_search",
	"Full-text search over capsule title, summary, insight and keywords", schema(props{
		"query": str("Search words; all must match"),
		"limit": num("Max results (default: 20, max: 100)"),
	}, "query"))

var capsuleStatusToolDef = mcp.NewToolWithRawSchema("capsule_status",
	"Set a capsule's review status", schema(props{
		"id":     str("Capsule id"),
		"status": enum("New status", "draft", "review", "approved", "rejected"),
	}, "id", "status"))

var capsuleStatsToolDef = mcp.NewToolWithRawSchema("capsule_stats",
	"Capsule counts by category and status, and average quality", schema(props{}))

var capsuleVersionToolDef = mcp.NewToolWithRawSchema("capsule_version",
	"Snapshot a capsule as its next version", schema(props{
		"id":      str("Capsule id"),
		"changes": str("What changed"),
		"editor":  str("Who made the change (default: system)"),
	}, "id"))

var capsuleHistoryToolDef = mcp.NewToolWithRawSchema("capsule_history",
	"List a capsule's versions, newest first", capsuleIDOnly)

var capsuleRollbackToolDef = mcp.NewToolWithRawSchema("capsule_rollback",
	"Restore a capsule to an earlier version; the restore is recorded as a new version", schema(props{
		"id":      str("Capsule id"),
		"version": num("Version to restore"),
		"editor":  str("Who performed the rollback (default: system)"),
	}, "id", "version"))

var capsuleExportToolDef = mcp.NewToolWithRawSchema("capsule_export",
	"Export one capsule as md or html, or all capsules as jsonl", schema(props{
		"path":   str("Output path (default: ~/.salon/exports/<name>-<timestamp>.<ext>)"),
		"format": enum("Export format (default: jsonl)", "md", "html", "jsonl"),
		"id":     str("Capsule id; required for md and html"),
	}))

// Tasks

var taskSubmitToolDef = mcp.NewToolWithRawSchema("task_submit",
	"Start a background task and return its id", schema(props{
		"kind":   enum("Task kind", "create_topics", "extract_insights", "run_discussion"),
		"params": map[string]any{"type": "object", "description": "Kind-specific parameters"},
	}, "kind"))

var taskPollToolDef = mcp.NewToolWithRawSchema("task_poll",
	"Get the status, progress and result of a task", schema(props{"task_id": str("Task id")}, "task_id"))

var taskCancelToolDef = mcp.NewToolWithRawSchema("task_cancel",
	"Cancel a pending or running task", schema(props{"task_id": str("Task id")}, "task_id"))

var taskListToolDef = mcp.NewToolWithRawSchema("task_list",
	"List every task known to this process, oldest first", schema(props{}))
