package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devKanishk15/postgres-ai/internal/anomaly"
	"github.com/devKanishk15/postgres-ai/internal/catalog"
	"github.com/devKanishk15/postgres-ai/internal/promgw"
	"github.com/devKanishk15/postgres-ai/internal/timerange"
	"github.com/devKanishk15/postgres-ai/pkg/models"
)

// Gateway is the slice of the Prometheus client the tools need.
type Gateway interface {
	QueryInstant(ctx context.Context, query string) (*promgw.APIResponse, error)
	QueryRange(ctx context.Context, query string, start, end int64, step string) (*promgw.APIResponse, error)
}

// Dispatcher executes tool calls against the metric gateway.
type Dispatcher struct {
	gw  Gateway
	now func() time.Time
}

// NewDispatcher creates a dispatcher backed by gw.
func NewDispatcher(gw Gateway) *Dispatcher {
	return &Dispatcher{gw: gw, now: time.Now}
}

// ── Argument shapes ──────────────────────────

type rangeArgs struct {
	MetricName string `json:"metric_name"`
	TimeRange  string `json:"time_range"`
}

type metricArgs struct {
	MetricName string `json:"metric_name"`
}

type correlateArgs struct {
	MetricNames []string `json:"metric_names"`
	TimeRange   string   `json:"time_range"`
}

type windowArgs struct {
	TimeRange string `json:"time_range"`
}

// ── Result shapes ──────────────────────────

// ErrorResult is returned to the model instead of a Go error so a failed
// tool call never aborts the conversation.
type ErrorResult struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SeriesPayload is one time series with non-finite samples removed.
type SeriesPayload struct {
	Labels  map[string]string `json:"labels"`
	Samples []anomaly.Sample  `json:"samples"`
}

type RangeQueryResult struct {
	Metric      string           `json:"metric"`
	DisplayName string           `json:"display_name"`
	Unit        string           `json:"unit"`
	TimeRange   models.TimeRange `json:"time_range"`
	SeriesCount int              `json:"series_count"`
	Series      []SeriesPayload  `json:"series"`
}

type InstantValue struct {
	Labels map[string]string `json:"labels"`
	Value  float64           `json:"value"`
}

type CurrentValueResult struct {
	Metric      string         `json:"metric"`
	DisplayName string         `json:"display_name"`
	Unit        string         `json:"unit"`
	Status      string         `json:"status"`
	Values      []InstantValue `json:"values"`
}

type AnomalyResult struct {
	Metric       string           `json:"metric"`
	DisplayName  string           `json:"display_name"`
	TimeRange    models.TimeRange `json:"time_range"`
	HasAnomalies bool             `json:"has_anomalies"`
	Reports      []anomaly.Report `json:"reports"`
}

type HealthCheck struct {
	Metric      string   `json:"metric"`
	DisplayName string   `json:"display_name"`
	Unit        string   `json:"unit"`
	Status      string   `json:"status"`
	Value       *float64 `json:"value"`
}

type HealthSummaryResult struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Checks    []HealthCheck `json:"checks"`
	Alerts    []string      `json:"alerts"`
}

type CorrelateResult struct {
	TimeRange    models.TimeRange            `json:"time_range"`
	Reports      map[string][]anomaly.Report `json:"reports"`
	Correlations []anomaly.Correlation       `json:"correlations"`
	Skipped      []string                    `json:"skipped,omitempty"`
}

type ListMetricsResult struct {
	Count   int                        `json:"count"`
	Metrics []catalog.MetricDefinition `json:"metrics"`
}

type IncidentFinding struct {
	Metric      string           `json:"metric"`
	DisplayName string           `json:"display_name"`
	Unit        string           `json:"unit"`
	Reports     []anomaly.Report `json:"reports"`
}

// TimelineEvent is one anomalous observation placed on the incident
// timeline.
type TimelineEvent struct {
	Timestamp float64 `json:"timestamp"`
	Metric    string  `json:"metric"`
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
	Deviation float64 `json:"deviation"`
}

type IncidentReportResult struct {
	TimeRange        models.TimeRange  `json:"time_range"`
	GeneratedAt      string            `json:"generated_at"`
	Status           string            `json:"status"`
	Severity         string            `json:"severity"`
	MetricsChecked   int               `json:"metrics_checked"`
	AnomalousMetrics []string          `json:"anomalous_metrics"`
	Timeline         []TimelineEvent   `json:"timeline"`
	Findings         []IncidentFinding `json:"findings"`
	Recommendations  []string          `json:"recommendations"`
}

// Health statuses in escalation order. Escalation is monotonic: once a
// check goes critical the summary never drops back.
const (
	statusHealthy  = "healthy"
	statusWarning  = "warning"
	statusCritical = "critical"
)

// Execute runs one tool call and returns the JSON payload for the tool
// message plus a short human-readable summary for the trace. Tool names
// outside the closed set and panics inside a tool both come back as
// ErrorResult payloads, never as Go errors.
func (d *Dispatcher) Execute(ctx context.Context, name, rawArgs string) (payload, summary string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", name).Interface("panic", r).Msg("tool call panicked")
			payload = errPayload("tool execution failed", fmt.Sprintf("%v", r))
			summary = "error: tool execution failed"
		}
	}()

	var result any
	switch name {
	case ToolQueryMetricRange:
		var args rangeArgs
		if !decodeArgs(rawArgs, &args, &result) {
			break
		}
		result, summary = d.queryMetricRange(ctx, args)
	case ToolGetCurrentMetricValue:
		var args metricArgs
		if !decodeArgs(rawArgs, &args, &result) {
			break
		}
		result, summary = d.currentMetricValue(ctx, args)
	case ToolAnalyzeMetricAnomalies:
		var args rangeArgs
		if !decodeArgs(rawArgs, &args, &result) {
			break
		}
		result, summary = d.analyzeAnomalies(ctx, args)
	case ToolGetHealthSummary:
		result, summary = d.healthSummary(ctx)
	case ToolCorrelateMetrics:
		var args correlateArgs
		if !decodeArgs(rawArgs, &args, &result) {
			break
		}
		result, summary = d.correlateMetrics(ctx, args)
	case ToolGetMetricInfo:
		var args metricArgs
		if !decodeArgs(rawArgs, &args, &result) {
			break
		}
		result, summary = d.metricInfo(args)
	case ToolListAvailableMetrics:
		result, summary = d.listMetrics()
	case ToolGenerateIncidentReport:
		var args windowArgs
		if !decodeArgs(rawArgs, &args, &result) {
			break
		}
		result, summary = d.incidentReport(ctx, args)
	default:
		result = ErrorResult{Error: "unknown tool", Details: name}
		summary = "error: unknown tool " + name
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errPayload("failed to encode tool result", err.Error()), "error: encoding failed"
	}
	if summary == "" {
		if e, ok := result.(ErrorResult); ok {
			summary = "error: " + e.Error
		}
	}
	return string(data), summary
}

// ── Tool implementations ──────────────────────────

func (d *Dispatcher) queryMetricRange(ctx context.Context, args rangeArgs) (any, string) {
	def, ok := catalog.Lookup(args.MetricName)
	if !ok {
		return unknownMetric(args.MetricName), ""
	}
	tr := timerange.Describe(args.TimeRange, d.now())

	resp, err := d.gw.QueryRange(ctx, def.Query, tr.StartTS, tr.EndTS, stepFor(tr))
	if err != nil {
		return ErrorResult{Error: "query failed", Details: err.Error()}, ""
	}
	if !resp.Success() {
		return ErrorResult{Error: "query rejected", Details: resp.Error}, ""
	}

	series := seriesFrom(resp)
	samples := 0
	for _, s := range series {
		samples += len(s.Samples)
	}
	res := RangeQueryResult{
		Metric:      def.Key,
		DisplayName: def.DisplayName,
		Unit:        def.Unit,
		TimeRange:   tr,
		SeriesCount: len(series),
		Series:      series,
	}
	return res, fmt.Sprintf("%s: %d series, %d samples over %s", def.Key, len(series), samples, tr.Expression)
}

func (d *Dispatcher) currentMetricValue(ctx context.Context, args metricArgs) (any, string) {
	def, ok := catalog.Lookup(args.MetricName)
	if !ok {
		return unknownMetric(args.MetricName), ""
	}
	resp, err := d.gw.QueryInstant(ctx, def.Query)
	if err != nil {
		return ErrorResult{Error: "query failed", Details: err.Error()}, ""
	}
	if !resp.Success() {
		return ErrorResult{Error: "query rejected", Details: resp.Error}, ""
	}

	res := CurrentValueResult{
		Metric:      def.Key,
		DisplayName: def.DisplayName,
		Unit:        def.Unit,
		Status:      "no_data",
	}
	for _, r := range resp.Data.Result {
		if r.Value == nil {
			continue
		}
		v, ok := r.Value.Float()
		if !ok {
			continue
		}
		res.Values = append(res.Values, InstantValue{Labels: r.Metric, Value: v})
	}
	if len(res.Values) > 0 {
		worst := res.Values[0].Value
		for _, v := range res.Values[1:] {
			if v.Value > worst {
				worst = v.Value
			}
		}
		res.Status = evaluate(def, worst)
	}
	return res, fmt.Sprintf("%s: %d values, status %s", def.Key, len(res.Values), res.Status)
}

func (d *Dispatcher) analyzeAnomalies(ctx context.Context, args rangeArgs) (any, string) {
	def, ok := catalog.Lookup(args.MetricName)
	if !ok {
		return unknownMetric(args.MetricName), ""
	}
	tr := timerange.Describe(args.TimeRange, d.now())

	reports, err := d.analyzeMetric(ctx, def, tr)
	if err != nil {
		return ErrorResult{Error: "query failed", Details: err.Error()}, ""
	}

	res := AnomalyResult{
		Metric:      def.Key,
		DisplayName: def.DisplayName,
		TimeRange:   tr,
		Reports:     reports,
	}
	spikes, drops := 0, 0
	for _, r := range reports {
		if r.HasAnomalies {
			res.HasAnomalies = true
		}
		spikes += len(r.Spikes)
		drops += len(r.Drops)
	}
	return res, fmt.Sprintf("%s: %d spikes, %d drops over %s", def.Key, spikes, drops, tr.Expression)
}

func (d *Dispatcher) healthSummary(ctx context.Context) (any, string) {
	res := HealthSummaryResult{
		Status:    statusHealthy,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Alerts:    []string{},
	}
	for _, key := range catalog.HealthCheckKeys() {
		def, ok := catalog.Lookup(key)
		if !ok {
			continue
		}
		check := HealthCheck{Metric: def.Key, DisplayName: def.DisplayName, Unit: def.Unit, Status: "no_data"}

		resp, err := d.gw.QueryInstant(ctx, def.Query)
		if err != nil || !resp.Success() {
			check.Status = "unreachable"
			res.Checks = append(res.Checks, check)
			continue
		}
		var worst *float64
		for _, r := range resp.Data.Result {
			if r.Value == nil {
				continue
			}
			v, ok := r.Value.Float()
			if !ok {
				continue
			}
			if worst == nil || v > *worst {
				w := v
				worst = &w
			}
		}
		if worst != nil {
			check.Value = worst
			check.Status = evaluate(def, *worst)
			switch check.Status {
			case statusCritical:
				res.Status = statusCritical
				res.Alerts = append(res.Alerts, fmt.Sprintf("CRITICAL: %s is %.2f %s (threshold %.2f)",
					def.DisplayName, *worst, def.Unit, *def.CriticalThreshold))
			case statusWarning:
				if res.Status != statusCritical {
					res.Status = statusWarning
				}
				res.Alerts = append(res.Alerts, fmt.Sprintf("WARNING: %s is %.2f %s (threshold %.2f)",
					def.DisplayName, *worst, def.Unit, *def.WarningThreshold))
			}
		}
		res.Checks = append(res.Checks, check)
	}
	return res, fmt.Sprintf("status %s, %d alerts", res.Status, len(res.Alerts))
}

func (d *Dispatcher) correlateMetrics(ctx context.Context, args correlateArgs) (any, string) {
	if len(args.MetricNames) == 0 {
		return ErrorResult{Error: "no metrics given"}, ""
	}
	tr := timerange.Describe(args.TimeRange, d.now())

	// A metric that cannot be retrieved is skipped, not fatal; the
	// correlation proceeds over whatever returned data.
	metrics := make(map[string][]anomaly.Series)
	var skipped []string
	for _, name := range args.MetricNames {
		def, ok := catalog.Lookup(name)
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		resp, err := d.gw.QueryRange(ctx, def.Query, tr.StartTS, tr.EndTS, stepFor(tr))
		if err != nil || !resp.Success() {
			log.Debug().Str("metric", name).Err(err).Msg("metric skipped during correlation")
			skipped = append(skipped, name)
			continue
		}
		var series []anomaly.Series
		for _, s := range seriesFrom(resp) {
			series = append(series, anomaly.Series{Labels: s.Labels, Samples: s.Samples})
		}
		metrics[name] = series
	}
	if len(metrics) == 0 {
		return ErrorResult{Error: "no metrics could be retrieved", Details: strings.Join(skipped, ", ")}, ""
	}

	reports, pairs := anomaly.Correlate(metrics)
	res := CorrelateResult{TimeRange: tr, Reports: reports, Correlations: pairs, Skipped: skipped}
	return res, fmt.Sprintf("%d metrics, %d candidate pairs, %d skipped over %s",
		len(metrics), len(pairs), len(skipped), tr.Expression)
}

func (d *Dispatcher) metricInfo(args metricArgs) (any, string) {
	def, ok := catalog.Lookup(args.MetricName)
	if !ok {
		return unknownMetric(args.MetricName), ""
	}
	return def, "described " + def.Key
}

func (d *Dispatcher) listMetrics() (any, string) {
	all := catalog.All()
	return ListMetricsResult{Count: len(all), Metrics: all}, fmt.Sprintf("%d metrics listed", len(all))
}

func (d *Dispatcher) incidentReport(ctx context.Context, args windowArgs) (any, string) {
	tr := timerange.Describe(args.TimeRange, d.now())

	res := IncidentReportResult{
		TimeRange:        tr,
		GeneratedAt:      d.now().UTC().Format(time.RFC3339),
		Status:           statusHealthy,
		AnomalousMetrics: []string{},
		Timeline:         []TimelineEvent{},
		Findings:         []IncidentFinding{},
		Recommendations:  []string{},
	}
	for _, key := range catalog.IncidentKeys() {
		def, ok := catalog.Lookup(key)
		if !ok {
			continue
		}
		res.MetricsChecked++
		reports, err := d.analyzeMetric(ctx, def, tr)
		if err != nil {
			continue
		}
		anomalous := false
		for _, r := range reports {
			if r.HasAnomalies {
				anomalous = true
			}
			for _, p := range r.Spikes {
				res.Timeline = append(res.Timeline, TimelineEvent{
					Timestamp: p.Timestamp, Metric: def.Key, Kind: "spike", Value: p.Value, Deviation: p.Deviation,
				})
			}
			for _, p := range r.Drops {
				res.Timeline = append(res.Timeline, TimelineEvent{
					Timestamp: p.Timestamp, Metric: def.Key, Kind: "drop", Value: p.Value, Deviation: p.Deviation,
				})
			}
		}
		if !anomalous {
			continue
		}
		res.AnomalousMetrics = append(res.AnomalousMetrics, def.Key)
		res.Findings = append(res.Findings, IncidentFinding{
			Metric:      def.Key,
			DisplayName: def.DisplayName,
			Unit:        def.Unit,
			Reports:     reports,
		})
		if rec := recommendationFor(def.Key); rec != "" {
			res.Recommendations = append(res.Recommendations, rec)
		}
	}
	sort.Strings(res.AnomalousMetrics)
	sort.Slice(res.Timeline, func(i, j int) bool { return res.Timeline[i].Timestamp < res.Timeline[j].Timestamp })
	switch {
	case len(res.AnomalousMetrics) >= 3:
		res.Status = statusCritical
	case len(res.AnomalousMetrics) > 0:
		res.Status = statusWarning
	}
	res.Severity = res.Status
	return res, fmt.Sprintf("incident report: %d of %d metrics anomalous over %s",
		len(res.AnomalousMetrics), res.MetricsChecked, tr.Expression)
}

// ── Helpers ──────────────────────────

func (d *Dispatcher) analyzeMetric(ctx context.Context, def catalog.MetricDefinition, tr models.TimeRange) ([]anomaly.Report, error) {
	resp, err := d.gw.QueryRange(ctx, def.Query, tr.StartTS, tr.EndTS, stepFor(tr))
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, fmt.Errorf("query rejected: %s", resp.Error)
	}
	var reports []anomaly.Report
	for _, s := range seriesFrom(resp) {
		reports = append(reports, anomaly.Analyze(anomaly.Series{Labels: s.Labels, Samples: s.Samples}))
	}
	return reports, nil
}

// seriesFrom converts a query response into series, dropping samples that
// are not finite numbers.
func seriesFrom(resp *promgw.APIResponse) []SeriesPayload {
	var out []SeriesPayload
	for _, r := range resp.Data.Result {
		s := SeriesPayload{Labels: r.Metric}
		pairs := r.Values
		if pairs == nil && r.Value != nil {
			pairs = []promgw.SamplePair{*r.Value}
		}
		for _, p := range pairs {
			v, ok := p.Float()
			if !ok {
				continue
			}
			s.Samples = append(s.Samples, anomaly.Sample{Timestamp: p.Timestamp, Value: v})
		}
		out = append(out, s)
	}
	return out
}

// evaluate compares a value against a metric's thresholds. Metrics whose
// healthy direction is "higher is better" (ratios) have warning above
// critical and flip the comparison.
func evaluate(def catalog.MetricDefinition, v float64) string {
	if def.WarningThreshold == nil || def.CriticalThreshold == nil {
		return "ok"
	}
	w, c := *def.WarningThreshold, *def.CriticalThreshold
	if w > c {
		switch {
		case v < c:
			return statusCritical
		case v < w:
			return statusWarning
		}
		return "ok"
	}
	switch {
	case v >= c:
		return statusCritical
	case v >= w:
		return statusWarning
	}
	return "ok"
}

// recommendationFor maps an anomalous metric to a first-response action.
func recommendationFor(key string) string {
	switch {
	case strings.HasPrefix(key, "active_connections"), strings.HasPrefix(key, "total_connections"), key == "connection_utilization":
		return "Inspect pg_stat_activity for connection pile-up; consider a connection pooler or raising max_connections"
	case strings.Contains(key, "lock"):
		return "Check pg_locks joined to pg_stat_activity for blocking sessions and long-running transactions"
	case key == "buffer_cache_hit_ratio", key == "blocks_read":
		return "Review shared_buffers sizing and look for new sequential-scan-heavy queries"
	case key == "backend_writes":
		return "Backends are writing buffers directly; tune bgwriter and checkpoint settings"
	case key == "dead_tuples":
		return "Verify autovacuum is keeping up; consider a manual VACUUM ANALYZE on hot tables"
	case strings.HasPrefix(key, "cpu"), key == "memory_utilization":
		return "Correlate host resource pressure with query activity in pg_stat_statements"
	case key == "transactions_rolled_back":
		return "Investigate application errors or deadlocks driving rollbacks"
	case key == "sequential_scans":
		return "Look for missing indexes on frequently scanned tables"
	case key == "query_mean_time":
		return "Pull the slowest statements from pg_stat_statements and examine their plans"
	}
	return ""
}

// stepFor picks a range query resolution that yields roughly 250 points,
// never finer than 15s.
func stepFor(tr models.TimeRange) string {
	step := (tr.EndTS - tr.StartTS) / 250
	if step < 15 {
		step = 15
	}
	return fmt.Sprintf("%ds", step)
}

func decodeArgs(raw string, into any, result *any) bool {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		*result = ErrorResult{Error: "invalid tool arguments", Details: err.Error()}
		return false
	}
	return true
}

func unknownMetric(name string) ErrorResult {
	return ErrorResult{
		Error:   "unknown metric",
		Details: fmt.Sprintf("%q is not in the metric catalog; call %s first", name, ToolListAvailableMetrics),
	}
}

func errPayload(msg, details string) string {
	data, _ := json.Marshal(ErrorResult{Error: msg, Details: details})
	return string(data)
}
