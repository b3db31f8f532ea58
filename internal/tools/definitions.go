// Package tools implements the diagnostic tools exposed to the model:
// metric queries, anomaly analysis, health summaries, correlation, and
// incident reports. Dispatch is a closed set; the model can only invoke
// tools enumerated here.
package tools

import (
	"github.com/devKanishk15/postgres-ai/internal/catalog"
	"github.com/devKanishk15/postgres-ai/internal/llm"
)

// Tool names. These are the only values Execute accepts.
const (
	ToolQueryMetricRange       = "query_metric_range"
	ToolGetCurrentMetricValue  = "get_current_metric_value"
	ToolAnalyzeMetricAnomalies = "analyze_metric_anomalies"
	ToolGetHealthSummary       = "get_health_summary"
	ToolCorrelateMetrics       = "correlate_metrics"
	ToolGetMetricInfo          = "get_metric_info"
	ToolListAvailableMetrics   = "list_available_metrics"
	ToolGenerateIncidentReport = "generate_incident_report"
)

// Definitions returns the tool schemas advertised to the model. Metric
// name parameters are constrained to the catalog keys so the model cannot
// invent PromQL.
func Definitions() []llm.ToolDefinition {
	metricEnum := catalog.Keys()

	metricParam := map[string]any{
		"type":        "string",
		"description": "Key of the metric in the catalog",
		"enum":        metricEnum,
	}
	timeRangeParam := map[string]any{
		"type":        "string",
		"description": "Natural language time range, e.g. 'last 30 minutes', 'yesterday 10am to 11am', 'Jan 25th 2026, 10-11 AM'",
	}

	return []llm.ToolDefinition{
		{
			Name:        ToolQueryMetricRange,
			Description: "Query a PostgreSQL metric over a time range and return its raw time series",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric_name": metricParam,
					"time_range":  timeRangeParam,
				},
				"required": []string{"metric_name", "time_range"},
			},
		},
		{
			Name:        ToolGetCurrentMetricValue,
			Description: "Get the current value of a PostgreSQL metric with threshold evaluation",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric_name": metricParam,
				},
				"required": []string{"metric_name"},
			},
		},
		{
			Name:        ToolAnalyzeMetricAnomalies,
			Description: "Detect spikes and drops in a metric over a time range using two-sigma statistical analysis",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric_name": metricParam,
					"time_range":  timeRangeParam,
				},
				"required": []string{"metric_name", "time_range"},
			},
		},
		{
			Name:        ToolGetHealthSummary,
			Description: "Evaluate the key health indicators of the database right now and report an overall status",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolCorrelateMetrics,
			Description: "Analyze several metrics over the same time range and report which anomalies coincide",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric_names": map[string]any{
						"type":        "array",
						"description": "Catalog keys of the metrics to correlate",
						"items":       map[string]any{"type": "string", "enum": metricEnum},
					},
					"time_range": timeRangeParam,
				},
				"required": []string{"metric_names", "time_range"},
			},
		},
		{
			Name:        ToolGetMetricInfo,
			Description: "Describe a catalog metric: its query, unit, and alert thresholds",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric_name": metricParam,
				},
				"required": []string{"metric_name"},
			},
		},
		{
			Name:        ToolListAvailableMetrics,
			Description: "List every metric available in the catalog",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolGenerateIncidentReport,
			Description: "Sweep the incident metric set over a time range and produce a structured incident report",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"time_range": timeRangeParam,
				},
				"required": []string{"time_range"},
			},
		},
	}
}
