// Package anomaly contains the statistical analysis applied to metric
// time series: spike and drop detection against a two-sigma band, and
// presence-based correlation across metrics.
package anomaly

import (
	"math"
	"sort"
)

// Sample is one observed data point. Absent samples (NaN in the source
// data) must be filtered out before analysis, not zeroed.
type Sample struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Series is one labelled time series.
type Series struct {
	Labels  map[string]string `json:"labels"`
	Samples []Sample          `json:"samples"`
}

// Point is a sample flagged as anomalous, with its distance from the mean
// in standard deviations.
type Point struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
	Deviation float64 `json:"deviation"`
}

// Report is the analysis of one series.
type Report struct {
	Labels       map[string]string `json:"labels"`
	SampleCount  int               `json:"sample_count"`
	Mean         float64           `json:"mean"`
	Min          float64           `json:"min"`
	Max          float64           `json:"max"`
	StdDev       float64           `json:"std_dev"`
	Spikes       []Point           `json:"spikes"`
	Drops        []Point           `json:"drops"`
	HasAnomalies bool              `json:"has_anomalies"`
}

const maxReportedPoints = 10

// Analyze computes summary statistics for a series and flags values
// outside the two-sigma band. A spike is any value strictly above
// mean+2σ; a drop is any value strictly below mean-2σ, with the lower
// bound clamped at zero so non-negative metrics never produce phantom
// drops. Spikes and drops each report at most the ten most extreme
// points. A series with fewer than two samples, or with zero variance,
// yields a report with no anomalies.
func Analyze(s Series) Report {
	r := Report{
		Labels:      s.Labels,
		SampleCount: len(s.Samples),
		Spikes:      []Point{},
		Drops:       []Point{},
	}
	if len(s.Samples) == 0 {
		return r
	}

	r.Min = s.Samples[0].Value
	r.Max = s.Samples[0].Value
	var sum float64
	for _, p := range s.Samples {
		sum += p.Value
		if p.Value < r.Min {
			r.Min = p.Value
		}
		if p.Value > r.Max {
			r.Max = p.Value
		}
	}
	r.Mean = sum / float64(len(s.Samples))

	if len(s.Samples) < 2 {
		return r
	}

	var sq float64
	for _, p := range s.Samples {
		d := p.Value - r.Mean
		sq += d * d
	}
	r.StdDev = math.Sqrt(sq / float64(len(s.Samples)))
	if r.StdDev == 0 {
		return r
	}

	upper := r.Mean + 2*r.StdDev
	lower := math.Max(0, r.Mean-2*r.StdDev)
	for _, p := range s.Samples {
		switch {
		case p.Value > upper:
			r.Spikes = append(r.Spikes, Point{
				Timestamp: p.Timestamp,
				Value:     p.Value,
				Deviation: (p.Value - r.Mean) / r.StdDev,
			})
		case p.Value < lower:
			r.Drops = append(r.Drops, Point{
				Timestamp: p.Timestamp,
				Value:     p.Value,
				Deviation: (r.Mean - p.Value) / r.StdDev,
			})
		}
	}

	sort.Slice(r.Spikes, func(i, j int) bool { return r.Spikes[i].Deviation > r.Spikes[j].Deviation })
	sort.Slice(r.Drops, func(i, j int) bool { return r.Drops[i].Deviation > r.Drops[j].Deviation })
	if len(r.Spikes) > maxReportedPoints {
		r.Spikes = r.Spikes[:maxReportedPoints]
	}
	if len(r.Drops) > maxReportedPoints {
		r.Drops = r.Drops[:maxReportedPoints]
	}
	r.HasAnomalies = len(r.Spikes) > 0 || len(r.Drops) > 0
	return r
}

// Correlation pairs two metrics that both returned data in the same
// window. Pairing is presence-based: having data points is enough to be a
// candidate; BothAnomalous marks the pairs where both members also
// deviated.
type Correlation struct {
	MetricA       string `json:"metric_a"`
	MetricB       string `json:"metric_b"`
	DataPointsA   int    `json:"data_points_a"`
	DataPointsB   int    `json:"data_points_b"`
	BothAnomalous bool   `json:"both_anomalous"`
}

// Correlate runs anomaly analysis over several metrics and reports every
// unordered pair where both members have at least one data point. Pairs
// are emitted in sorted metric-name order so output is deterministic.
func Correlate(metrics map[string][]Series) (map[string][]Report, []Correlation) {
	reports := make(map[string][]Report, len(metrics))
	points := make(map[string]int, len(metrics))
	anomalous := make(map[string]bool, len(metrics))
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var rs []Report
		for _, series := range metrics[name] {
			rep := Analyze(series)
			rs = append(rs, rep)
			points[name] += rep.SampleCount
			if rep.HasAnomalies {
				anomalous[name] = true
			}
		}
		reports[name] = rs
	}

	var pairs []Correlation
	for i := 0; i < len(names); i++ {
		if points[names[i]] == 0 {
			continue
		}
		for j := i + 1; j < len(names); j++ {
			if points[names[j]] == 0 {
				continue
			}
			pairs = append(pairs, Correlation{
				MetricA:       names[i],
				MetricB:       names[j],
				DataPointsA:   points[names[i]],
				DataPointsB:   points[names[j]],
				BothAnomalous: anomalous[names[i]] && anomalous[names[j]],
			})
		}
	}
	return reports, pairs
}
