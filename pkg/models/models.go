// Package models defines the shared wire types for the postgres-ai service:
// conversation messages, tool calls, time windows, and the analysis result
// returned by the orchestration loop. These types cross package boundaries
// (agent ↔ history ↔ llm ↔ api) and are JSON-stable.
package models

import "time"

// ── Conversation Messages ────────────────────────────────────

// Message roles. The leading system message of a conversation is never
// evicted by history trimming.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments is the
// raw JSON text exactly as the model produced it; parsing is deferred to
// the dispatcher so a malformed payload degrades into an error-tagged tool
// result instead of aborting the loop.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage is one entry in a conversation history.
//
// ToolCallID is set on role "tool" messages and ties the result back to the
// originating call. ToolCalls is set on assistant messages that requested
// tools.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ── Time Windows ─────────────────────────────────────────────

// TimeWindow is a closed interval [Start, End] in epoch seconds over which
// metrics are queried. The resolver guarantees Start <= End.
type TimeWindow struct {
	Start int64 `json:"start_timestamp"`
	End   int64 `json:"end_timestamp"`
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return time.Duration(w.End-w.Start) * time.Second
}

// TimeRange is the API shape for a resolved time expression.
type TimeRange struct {
	Expression string `json:"expression"`
	StartTS    int64  `json:"start_timestamp"`
	EndTS      int64  `json:"end_timestamp"`
	StartISO   string `json:"start_iso"`
	EndISO     string `json:"end_iso"`
}

// ── Analysis Results ─────────────────────────────────────────

// ToolInvocation is one entry in the append-only trace of an analysis call.
type ToolInvocation struct {
	Tool          string                 `json:"tool"`
	Arguments     map[string]interface{} `json:"arguments"`
	ResultSummary string                 `json:"result_summary"`
}

// AnalysisResult is what one run of the orchestration loop returns.
//
// Analysis is nil when the loop exhausted its iteration ceiling without a
// final answer — a completed-but-inconclusive outcome, not an error.
type AnalysisResult struct {
	Analysis       *string          `json:"analysis"`
	Iterations     int              `json:"iterations"`
	ToolCalls      []ToolInvocation `json:"tool_calls"`
	Timestamp      string           `json:"timestamp"`
	ConversationID string           `json:"conversation_id,omitempty"`
}
