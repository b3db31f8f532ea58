package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/devKanishk15/postgres-ai/internal/promgw"
)

// fakeGateway serves canned instant values keyed by query substring and a
// fixed range response.
type fakeGateway struct {
	instant    map[string]string // query substring -> value
	rangeResp  *promgw.APIResponse
	instantErr error
	calls      []string
}

func (f *fakeGateway) QueryInstant(ctx context.Context, query string) (*promgw.APIResponse, error) {
	f.calls = append(f.calls, "instant:"+query)
	if f.instantErr != nil {
		return nil, f.instantErr
	}
	value := "0"
	for sub, v := range f.instant {
		if strings.Contains(query, sub) {
			value = v
			break
		}
	}
	return &promgw.APIResponse{Status: "success", Data: promgw.Data{
		ResultType: "vector",
		Result: []promgw.Result{{
			Metric: map[string]string{"instance": "db1"},
			Value:  &promgw.SamplePair{Timestamp: 1769610600, Value: value},
		}},
	}}, nil
}

func (f *fakeGateway) QueryRange(ctx context.Context, query string, start, end int64, step string) (*promgw.APIResponse, error) {
	f.calls = append(f.calls, "range:"+query)
	if f.rangeResp != nil {
		return f.rangeResp, nil
	}
	var values []promgw.SamplePair
	for i := 0; i < 20; i++ {
		values = append(values, promgw.SamplePair{Timestamp: float64(start + int64(i)*60), Value: "10"})
	}
	return &promgw.APIResponse{Status: "success", Data: promgw.Data{
		ResultType: "matrix",
		Result:     []promgw.Result{{Metric: map[string]string{"instance": "db1"}, Values: values}},
	}}, nil
}

func newTestDispatcher(gw *fakeGateway) *Dispatcher {
	d := NewDispatcher(gw)
	d.now = func() time.Time { return time.Date(2026, 1, 28, 14, 30, 0, 0, time.UTC) }
	return d
}

func decode[T any](t *testing.T, payload string) T {
	t.Helper()
	var out T
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("decode payload %q: %v", payload, err)
	}
	return out
}

func TestExecute_UnknownToolNeverErrors(t *testing.T) {
	d := newTestDispatcher(&fakeGateway{})
	payload, summary := d.Execute(context.Background(), "drop_all_tables", "{}")

	res := decode[ErrorResult](t, payload)
	if res.Error != "unknown tool" {
		t.Errorf("error = %q, want unknown tool", res.Error)
	}
	if !strings.Contains(summary, "unknown tool") {
		t.Errorf("summary = %q, want mention of unknown tool", summary)
	}
}

func TestExecute_InvalidArguments(t *testing.T) {
	d := newTestDispatcher(&fakeGateway{})
	payload, _ := d.Execute(context.Background(), ToolGetCurrentMetricValue, "{not json")
	res := decode[ErrorResult](t, payload)
	if res.Error != "invalid tool arguments" {
		t.Errorf("error = %q, want invalid tool arguments", res.Error)
	}
}

func TestExecute_UnknownMetric(t *testing.T) {
	d := newTestDispatcher(&fakeGateway{})
	payload, _ := d.Execute(context.Background(), ToolGetCurrentMetricValue, `{"metric_name":"bogus"}`)
	res := decode[ErrorResult](t, payload)
	if res.Error != "unknown metric" {
		t.Errorf("error = %q, want unknown metric", res.Error)
	}
}

func TestCurrentMetricValue_ThresholdStatus(t *testing.T) {
	gw := &fakeGateway{instant: map[string]string{"pg_stat_activity_count": "85"}}
	d := newTestDispatcher(gw)

	payload, _ := d.Execute(context.Background(), ToolGetCurrentMetricValue, `{"metric_name":"active_connections"}`)
	res := decode[CurrentValueResult](t, payload)
	if res.Metric != "active_connections" {
		t.Errorf("metric = %q", res.Metric)
	}
	if len(res.Values) != 1 || res.Values[0].Value != 85 {
		t.Fatalf("values = %+v, want one value of 85", res.Values)
	}
	// 85 sits between the warning (80) and critical (95) thresholds.
	if res.Status != "warning" {
		t.Errorf("status = %q, want warning", res.Status)
	}
}

func TestQueryMetricRange(t *testing.T) {
	gw := &fakeGateway{}
	d := newTestDispatcher(gw)

	payload, summary := d.Execute(context.Background(), ToolQueryMetricRange,
		`{"metric_name":"active_connections","time_range":"last 30 minutes"}`)
	res := decode[RangeQueryResult](t, payload)
	if res.SeriesCount != 1 || len(res.Series[0].Samples) != 20 {
		t.Fatalf("got %d series / %d samples, want 1/20", res.SeriesCount, len(res.Series[0].Samples))
	}
	if res.TimeRange.EndTS-res.TimeRange.StartTS != 1800 {
		t.Errorf("window = %ds, want 1800", res.TimeRange.EndTS-res.TimeRange.StartTS)
	}
	if !strings.Contains(summary, "1 series") {
		t.Errorf("summary = %q", summary)
	}
}

func TestQueryMetricRange_SkipsNaNSamples(t *testing.T) {
	gw := &fakeGateway{rangeResp: &promgw.APIResponse{Status: "success", Data: promgw.Data{
		Result: []promgw.Result{{
			Metric: map[string]string{},
			Values: []promgw.SamplePair{
				{Timestamp: 0, Value: "5"},
				{Timestamp: 60, Value: "NaN"},
				{Timestamp: 120, Value: "7"},
			},
		}},
	}}}
	d := newTestDispatcher(gw)

	payload, _ := d.Execute(context.Background(), ToolQueryMetricRange,
		`{"metric_name":"active_connections","time_range":"last 5 minutes"}`)
	res := decode[RangeQueryResult](t, payload)
	if len(res.Series[0].Samples) != 2 {
		t.Errorf("got %d samples, want 2 with NaN excluded", len(res.Series[0].Samples))
	}
}

func TestHealthSummary_Escalation(t *testing.T) {
	// Connection utilization breaches its critical threshold; the cache
	// hit ratio reads 99 which is healthy even though its thresholds run
	// in the opposite direction.
	gw := &fakeGateway{instant: map[string]string{
		"pg_stat_activity_count": "99",
		"blks_hit":               "99",
	}}
	d := newTestDispatcher(gw)

	payload, summary := d.Execute(context.Background(), ToolGetHealthSummary, "")
	res := decode[HealthSummaryResult](t, payload)
	if res.Status != "critical" {
		t.Fatalf("status = %q, want critical", res.Status)
	}
	if len(res.Alerts) != 1 {
		t.Fatalf("alerts = %v, want exactly the connection alert", res.Alerts)
	}
	if !strings.HasPrefix(res.Alerts[0], "CRITICAL: Connection Utilization") {
		t.Errorf("alert = %q", res.Alerts[0])
	}
	if !strings.Contains(summary, "critical") {
		t.Errorf("summary = %q", summary)
	}
	if len(res.Checks) == 0 {
		t.Fatal("no checks recorded")
	}
}

func TestHealthSummary_UnreachableGateway(t *testing.T) {
	gw := &fakeGateway{instantErr: fmt.Errorf("connection refused")}
	d := newTestDispatcher(gw)

	payload, _ := d.Execute(context.Background(), ToolGetHealthSummary, "")
	res := decode[HealthSummaryResult](t, payload)
	for _, c := range res.Checks {
		if c.Status != "unreachable" {
			t.Errorf("check %s status = %q, want unreachable", c.Metric, c.Status)
		}
	}
	// Unreachable checks do not escalate the status on their own.
	if res.Status != "healthy" {
		t.Errorf("status = %q, want healthy", res.Status)
	}
}

func TestCorrelateMetrics(t *testing.T) {
	gw := &fakeGateway{}
	d := newTestDispatcher(gw)

	payload, _ := d.Execute(context.Background(), ToolCorrelateMetrics,
		`{"metric_names":["active_connections","buffer_cache_hit_ratio"],"time_range":"last 1 hour"}`)
	res := decode[CorrelateResult](t, payload)
	if len(res.Reports) != 2 {
		t.Fatalf("got %d metric reports, want 2", len(res.Reports))
	}
	// Both metrics returned data, so they pair even though the flat fake
	// series carry no anomalies.
	if len(res.Correlations) != 1 {
		t.Fatalf("got %d candidate pairs, want 1", len(res.Correlations))
	}
	p := res.Correlations[0]
	if p.MetricA != "active_connections" || p.MetricB != "buffer_cache_hit_ratio" {
		t.Errorf("pair = (%s, %s)", p.MetricA, p.MetricB)
	}
	if p.BothAnomalous {
		t.Error("flat data marked both_anomalous")
	}
	if p.DataPointsA != 20 || p.DataPointsB != 20 {
		t.Errorf("data points = %d/%d, want 20/20", p.DataPointsA, p.DataPointsB)
	}
}

func TestCorrelateMetrics_SkipsFailingMetrics(t *testing.T) {
	gw := &fakeGateway{}
	d := newTestDispatcher(gw)

	payload, summary := d.Execute(context.Background(), ToolCorrelateMetrics,
		`{"metric_names":["active_connections","bogus_metric","locks_total"],"time_range":"last 1 hour"}`)
	res := decode[CorrelateResult](t, payload)
	if len(res.Reports) != 2 {
		t.Fatalf("got %d metric reports, want 2 with the unknown metric skipped", len(res.Reports))
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "bogus_metric" {
		t.Errorf("skipped = %v, want [bogus_metric]", res.Skipped)
	}
	if len(res.Correlations) != 1 {
		t.Errorf("got %d candidate pairs from the surviving metrics, want 1", len(res.Correlations))
	}
	if !strings.Contains(summary, "1 skipped") {
		t.Errorf("summary = %q", summary)
	}
}

func TestCorrelateMetrics_AllUnretrievable(t *testing.T) {
	d := newTestDispatcher(&fakeGateway{})

	payload, _ := d.Execute(context.Background(), ToolCorrelateMetrics,
		`{"metric_names":["bogus_a","bogus_b"],"time_range":"last 1 hour"}`)
	res := decode[ErrorResult](t, payload)
	if res.Error != "no metrics could be retrieved" {
		t.Errorf("error = %q, want no metrics could be retrieved", res.Error)
	}
}

func TestMetricInfoAndList(t *testing.T) {
	d := newTestDispatcher(&fakeGateway{})

	payload, _ := d.Execute(context.Background(), ToolGetMetricInfo, `{"metric_name":"buffer_cache_hit_ratio"}`)
	var info struct {
		Key  string `json:"key"`
		Unit string `json:"unit"`
	}
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Key != "buffer_cache_hit_ratio" || info.Unit == "" {
		t.Errorf("info = %+v", info)
	}

	payload, _ = d.Execute(context.Background(), ToolListAvailableMetrics, "")
	res := decode[ListMetricsResult](t, payload)
	if res.Count < 30 || res.Count != len(res.Metrics) {
		t.Errorf("count = %d with %d metrics", res.Count, len(res.Metrics))
	}
}

func TestIncidentReport_FlatDataIsHealthy(t *testing.T) {
	gw := &fakeGateway{}
	d := newTestDispatcher(gw)

	payload, _ := d.Execute(context.Background(), ToolGenerateIncidentReport, `{"time_range":"last 2 hours"}`)
	res := decode[IncidentReportResult](t, payload)
	if res.Status != "healthy" {
		t.Errorf("status = %q, want healthy", res.Status)
	}
	if res.MetricsChecked == 0 {
		t.Error("no metrics checked")
	}
	if len(res.AnomalousMetrics) != 0 {
		t.Errorf("anomalous = %v, want none", res.AnomalousMetrics)
	}
	if len(res.Timeline) != 0 || len(res.Recommendations) != 0 {
		t.Errorf("timeline = %v, recommendations = %v, want empty", res.Timeline, res.Recommendations)
	}
}

func TestIncidentReport_SpikyDataEscalates(t *testing.T) {
	// Every incident metric sees the same spiky series, so the report
	// crosses the three-metric critical threshold.
	var values []promgw.SamplePair
	for i := 0; i < 30; i++ {
		values = append(values, promgw.SamplePair{Timestamp: float64(i * 60), Value: "10"})
	}
	values[3].Value = "10.5"
	values[29].Value = "500"
	gw := &fakeGateway{rangeResp: &promgw.APIResponse{Status: "success", Data: promgw.Data{
		Result: []promgw.Result{{Metric: map[string]string{"instance": "db1"}, Values: values}},
	}}}
	d := newTestDispatcher(gw)

	payload, summary := d.Execute(context.Background(), ToolGenerateIncidentReport, `{"time_range":"last 2 hours"}`)
	res := decode[IncidentReportResult](t, payload)
	if res.Status != "critical" || res.Severity != "critical" {
		t.Fatalf("status = %q severity = %q, want critical", res.Status, res.Severity)
	}
	if len(res.AnomalousMetrics) != res.MetricsChecked {
		t.Errorf("anomalous = %d of %d, want all", len(res.AnomalousMetrics), res.MetricsChecked)
	}
	if len(res.Timeline) == 0 {
		t.Fatal("timeline empty for spiky data")
	}
	for i := 1; i < len(res.Timeline); i++ {
		if res.Timeline[i].Timestamp < res.Timeline[i-1].Timestamp {
			t.Fatalf("timeline not ordered at index %d", i)
		}
	}
	if len(res.Recommendations) == 0 {
		t.Error("no recommendations for an anomalous report")
	}
	if !strings.Contains(summary, "anomalous") {
		t.Errorf("summary = %q", summary)
	}
}

func TestDefinitions_CoverEveryTool(t *testing.T) {
	defs := Definitions()
	want := []string{
		ToolQueryMetricRange, ToolGetCurrentMetricValue, ToolAnalyzeMetricAnomalies,
		ToolGetHealthSummary, ToolCorrelateMetrics, ToolGetMetricInfo,
		ToolListAvailableMetrics, ToolGenerateIncidentReport,
	}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	byName := map[string]bool{}
	for _, d := range defs {
		byName[d.Name] = true
		if d.Parameters["type"] != "object" {
			t.Errorf("%s parameters type = %v, want object", d.Name, d.Parameters["type"])
		}
	}
	for _, name := range want {
		if !byName[name] {
			t.Errorf("missing definition for %s", name)
		}
	}
}
