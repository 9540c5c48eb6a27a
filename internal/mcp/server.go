package mcp

import (
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/persona"
	"github.com/hpungsan/salon/internal/tasks"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"topic_create": {
		def:     topicCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicCreate },
	},
	"topic_get": {
		def:     topicGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicGet },
	},
	"topic_list": {
		def:     topicListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicList },
	},
	"topic_delete": {
		def:     topicDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicDelete },
	},
	"topic_assign": {
		def:     topicAssignToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicAssign },
	},
	"topic_start": {
		def:     topicStartToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicStart },
	},
	"topic_advance": {
		def:     topicAdvanceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicAdvance },
	},
	"topic_summary": {
		def:     topicSummaryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicSummary },
	},
	"contribution_record": {
		def:     contributionRecordToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContributionRecord },
	},
	"contribution_list": {
		def:     contributionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContributionList },
	},
	"insight_extract": {
		def:     insightExtractToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInsightExtract },
	},
	"insight_list": {
		def:     insightListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInsightList },
	},
	"capsule_generate": {
		def:     capsuleGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleGenerate },
	},
	"capsule_evaluate": {
		def:     capsuleEvaluateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleEvaluate },
	},
	"capsule_save": {
		def:     capsuleSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleSave },
	},
	"capsule_get": {
		def:     capsuleGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleGet },
	},
	"capsule_list": {
		def:     capsuleListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleList },
	},
	"capsule_search": {
		def:     capsuleSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleSearch },
	},
	"capsule_status": {
		def:     capsuleStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleStatus },
	},
	"capsule_stats": {
		def:     capsuleStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleStats },
	},
	"capsule_version": {
		def:     capsuleVersionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleVersion },
	},
	"capsule_history": {
		def:     capsuleHistoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleHistory },
	},
	"capsule_rollback": {
		def:     capsuleRollbackToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleRollback },
	},
	"capsule_export": {
		def:     capsuleExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleExport },
	},
	"task_submit": {
		def:     taskSubmitToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskSubmit },
	},
	"task_poll": {
		def:     taskPollToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskPoll },
	},
	"task_cancel": {
		def:     taskCancelToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskCancel },
	},
	"task_list": {
		def:     taskListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskList },
	},
}

// AllToolNames returns every tool name, sorted.
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

// Deps is everything the handlers call into.
type Deps struct {
	DB        *sql.DB
	Config    *config.Config
	Catalog   persona.Catalog
	Generator *capsule.Generator
	Extractor *discussion.Extractor
	Tasks     *tasks.Manager
}

// NewServer creates an MCP server with the Salon tools registered. Tools
// listed in cfg.DisabledTools are skipped.
func NewServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"salon",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool)
	if deps.Config != nil {
		for _, name := range deps.Config.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(deps Deps, version string) error {
	return server.ServeStdio(NewServer(deps, version))
}
