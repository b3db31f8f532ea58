// Package agent runs the diagnosis loop: it hands the conversation to the
// model, executes the tool calls the model requests, feeds the results
// back, and repeats until the model produces a final answer or the
// iteration ceiling is reached.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devKanishk15/postgres-ai/internal/history"
	"github.com/devKanishk15/postgres-ai/internal/llm"
	"github.com/devKanishk15/postgres-ai/internal/timerange"
	"github.com/devKanishk15/postgres-ai/internal/tools"
	"github.com/devKanishk15/postgres-ai/pkg/models"
)

// ErrEmptyMessage is returned when Analyze is called with a blank message.
var ErrEmptyMessage = errors.New("message must not be empty")

const systemPrompt = `You are an experienced PostgreSQL database reliability engineer.
You diagnose database health issues by querying Prometheus metrics through the tools available to you.

Guidelines:
- Always ground your conclusions in metric data you actually queried. Never invent numbers.
- When the user mentions a time period, pass it verbatim to the tool's time_range parameter.
- Start broad (health summary, anomaly scan) and narrow down to specific metrics.
- Correlate related metrics before declaring a root cause.
- Report values with their units and compare them against their thresholds.
- Be concise. Lead with the diagnosis, then the supporting evidence, then recommended actions.`

// Executor is the slice of the tool dispatcher the loop needs.
type Executor interface {
	Execute(ctx context.Context, name, rawArgs string) (payload, summary string)
}

// Agent is the orchestration loop.
type Agent struct {
	llm           llm.Completer
	tools         Executor
	history       history.Store
	maxIterations int
	now           func() time.Time
}

// New creates an agent. store may be nil, in which case no conversation is
// ever persisted. maxIterations caps how many model turns one analysis may
// take.
func New(completer llm.Completer, executor Executor, store history.Store, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	return &Agent{
		llm:           completer,
		tools:         executor,
		history:       store,
		maxIterations: maxIterations,
		now:           time.Now,
	}
}

// Analyze runs one diagnosis. When conversationID is non-empty the stored
// history is loaded first and the updated conversation is persisted after
// the loop, so follow-up questions keep their context. An exhausted
// iteration ceiling is not an error: the result comes back with a nil
// Analysis and the trace of everything that was tried.
func (a *Agent) Analyze(ctx context.Context, message, conversationID string) (*models.AnalysisResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	messages := a.load(ctx, conversationID)
	if len(messages) == 0 {
		messages = []models.ChatMessage{{Role: models.RoleSystem, Content: systemPrompt}}
	}
	messages = append(messages, models.ChatMessage{
		Role:    models.RoleUser,
		Content: fmt.Sprintf("Current time: %s\n\nUser query: %s", a.now().UTC().Format(time.RFC3339), message),
	})

	defs := tools.Definitions()
	trace := []models.ToolInvocation{}
	var analysis *string
	iterations := 0

	for iterations < a.maxIterations {
		iterations++

		completion, err := a.llm.Complete(ctx, messages, defs)
		if err != nil {
			return nil, fmt.Errorf("model completion: %w", err)
		}

		if len(completion.ToolCalls) == 0 {
			content := completion.Content
			analysis = &content
			messages = append(messages, models.ChatMessage{Role: models.RoleAssistant, Content: content})
			break
		}

		messages = append(messages, models.ChatMessage{
			Role:      models.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		// Execute in the order the model requested.
		for _, call := range completion.ToolCalls {
			payload, summary := a.tools.Execute(ctx, call.Name, call.Arguments)
			messages = append(messages, models.ChatMessage{
				Role:       models.RoleTool,
				ToolCallID: call.ID,
				Content:    payload,
			})
			trace = append(trace, models.ToolInvocation{
				Tool:          call.Name,
				Arguments:     parseArgs(call.Arguments),
				ResultSummary: summary,
			})
			log.Debug().Str("tool", call.Name).Str("summary", summary).Int("iteration", iterations).Msg("tool executed")
		}
	}

	if analysis == nil {
		log.Warn().Int("iterations", iterations).Msg("iteration ceiling reached without a final answer")
	}

	if conversationID != "" && a.history != nil {
		a.history.Save(ctx, conversationID, messages)
	}

	return &models.AnalysisResult{
		Analysis:       analysis,
		Iterations:     iterations,
		ToolCalls:      trace,
		Timestamp:      a.now().UTC().Format(time.RFC3339),
		ConversationID: conversationID,
	}, nil
}

// QuickHealth bypasses the model and runs the health summary tool
// directly. It backs the fast health endpoint.
func (a *Agent) QuickHealth(ctx context.Context) (*tools.HealthSummaryResult, error) {
	payload, _ := a.tools.Execute(ctx, tools.ToolGetHealthSummary, "{}")

	var errRes tools.ErrorResult
	if err := json.Unmarshal([]byte(payload), &errRes); err == nil && errRes.Error != "" {
		return nil, fmt.Errorf("health summary: %s", errRes.Error)
	}
	var res tools.HealthSummaryResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("health summary: decode: %w", err)
	}
	return &res, nil
}

// ParseTimeRange resolves a natural language time expression against the
// current clock.
func (a *Agent) ParseTimeRange(expression string) models.TimeRange {
	return timerange.Describe(expression, a.now())
}

// ClearConversation drops a stored conversation.
func (a *Agent) ClearConversation(ctx context.Context, conversationID string) {
	if conversationID != "" && a.history != nil {
		a.history.Clear(ctx, conversationID)
	}
}

func (a *Agent) load(ctx context.Context, conversationID string) []models.ChatMessage {
	if conversationID == "" || a.history == nil {
		return nil
	}
	return a.history.Get(ctx, conversationID)
}

func parseArgs(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		args["_raw"] = raw
	}
	return args
}
