// Package catalog is the static registry of PostgreSQL and host metrics the
// service knows how to query. Each entry binds a stable key to a PromQL
// template, a unit, and optional alerting thresholds.
//
// The catalog is initialized once and never mutated. Two curated subsets are
// exposed: a small high-signal health-check set used for polling, and a
// broad incident set offered to the reasoning loop during deep analysis.
package catalog

import "sort"

// MetricDefinition describes one queryable metric. Thresholds are nil when
// the metric has no meaningful alert level.
type MetricDefinition struct {
	Key               string   `json:"key"`
	DisplayName       string   `json:"name"`
	Query             string   `json:"promql_query"`
	Description       string   `json:"description"`
	Unit              string   `json:"unit"`
	WarningThreshold  *float64 `json:"warning_threshold,omitempty"`
	CriticalThreshold *float64 `json:"critical_threshold,omitempty"`
}

func threshold(v float64) *float64 { return &v }

var metrics = map[string]MetricDefinition{
	// ── Connections ──────────────────────────────────────
	"active_connections": {
		Key:              "active_connections",
		DisplayName:      "Active Connections",
		Query:            "pg_stat_activity_count{state='active'}",
		Description:      "Number of active database connections",
		Unit:             "connections",
		WarningThreshold: threshold(80), CriticalThreshold: threshold(95),
	},
	"idle_connections": {
		Key:         "idle_connections",
		DisplayName: "Idle Connections",
		Query:       "pg_stat_activity_count{state='idle'}",
		Description: "Number of idle database connections",
		Unit:        "connections",
	},
	"total_connections": {
		Key:              "total_connections",
		DisplayName:      "Total Connections",
		Query:            "sum(pg_stat_activity_count)",
		Description:      "Total number of database connections",
		Unit:             "connections",
		WarningThreshold: threshold(80), CriticalThreshold: threshold(95),
	},
	"max_connections": {
		Key:         "max_connections",
		DisplayName: "Max Connections",
		Query:       "pg_settings_max_connections",
		Description: "Maximum allowed connections",
		Unit:        "connections",
	},
	"connection_utilization": {
		Key:              "connection_utilization",
		DisplayName:      "Connection Utilization",
		Query:            "(sum(pg_stat_activity_count) / pg_settings_max_connections) * 100",
		Description:      "Percentage of max connections in use",
		Unit:             "percent",
		WarningThreshold: threshold(80), CriticalThreshold: threshold(95),
	},

	// ── Transactions ─────────────────────────────────────
	"transactions_committed": {
		Key:         "transactions_committed",
		DisplayName: "Transactions Committed",
		Query:       "rate(pg_stat_database_xact_commit{datname='testdb'}[5m])",
		Description: "Rate of committed transactions per second",
		Unit:        "tx/s",
	},
	"transactions_rolled_back": {
		Key:         "transactions_rolled_back",
		DisplayName: "Transactions Rolled Back",
		Query:       "rate(pg_stat_database_xact_rollback{datname='testdb'}[5m])",
		Description: "Rate of rolled back transactions per second",
		Unit:        "tx/s",
	},
	"transaction_wraparound": {
		Key:              "transaction_wraparound",
		DisplayName:      "Transaction Wraparound Age",
		Query:            "pg_database_wraparound_age_datfrozenxid_age",
		Description:      "Age of oldest unfrozen transaction ID",
		Unit:             "transactions",
		WarningThreshold: threshold(500000000), CriticalThreshold: threshold(1000000000),
	},

	// ── Locks ────────────────────────────────────────────
	"locks_total": {
		Key:         "locks_total",
		DisplayName: "Total Locks",
		Query:       "sum(pg_locks_count)",
		Description: "Total number of locks held",
		Unit:        "locks",
	},
	"exclusive_locks": {
		Key:         "exclusive_locks",
		DisplayName: "Exclusive Locks",
		Query:       "pg_locks_count{mode='ExclusiveLock'}",
		Description: "Number of exclusive locks",
		Unit:        "locks",
	},
	"waiting_locks": {
		Key:              "waiting_locks",
		DisplayName:      "Waiting Locks",
		Query:            "pg_locks_count{granted='false'}",
		Description:      "Number of locks waiting to be granted",
		Unit:             "locks",
		WarningThreshold: threshold(5), CriticalThreshold: threshold(20),
	},

	// ── Buffer / Cache ───────────────────────────────────
	"buffer_cache_hit_ratio": {
		Key:         "buffer_cache_hit_ratio",
		DisplayName: "Buffer Cache Hit Ratio",
		Query:       "(pg_stat_database_blks_hit{datname='testdb'} / (pg_stat_database_blks_hit{datname='testdb'} + pg_stat_database_blks_read{datname='testdb'})) * 100",
		Description: "Percentage of requests served from buffer cache",
		Unit:        "percent",
		// Below these is concerning; threshold direction is left to the
		// consumer, matching the original catalog.
		WarningThreshold: threshold(95), CriticalThreshold: threshold(90),
	},
	"blocks_read": {
		Key:         "blocks_read",
		DisplayName: "Blocks Read",
		Query:       "rate(pg_stat_database_blks_read{datname='testdb'}[5m])",
		Description: "Rate of disk blocks read per second",
		Unit:        "blocks/s",
	},
	"blocks_hit": {
		Key:         "blocks_hit",
		DisplayName: "Blocks Hit",
		Query:       "rate(pg_stat_database_blks_hit{datname='testdb'}[5m])",
		Description: "Rate of buffer cache hits per second",
		Unit:        "blocks/s",
	},

	// ── Disk I/O ─────────────────────────────────────────
	"backend_writes": {
		Key:              "backend_writes",
		DisplayName:      "Backend Buffer Writes",
		Query:            "rate(pg_stat_bgwriter_buffers_backend_total[5m])",
		Description:      "Rate of buffers written directly by backend",
		Unit:             "buffers/s",
		WarningThreshold: threshold(100), CriticalThreshold: threshold(500),
	},
	"checkpoints": {
		Key:         "checkpoints",
		DisplayName: "Checkpoints",
		Query:       "rate(pg_stat_bgwriter_checkpoints_timed_total[5m])",
		Description: "Rate of scheduled checkpoints",
		Unit:        "checkpoints/s",
	},
	"checkpoint_write_time": {
		Key:         "checkpoint_write_time",
		DisplayName: "Checkpoint Write Time",
		Query:       "rate(pg_stat_bgwriter_checkpoint_write_time_total[5m])",
		Description: "Time spent writing checkpoint files",
		Unit:        "ms/s",
	},

	// ── Tuples ───────────────────────────────────────────
	"rows_inserted": {
		Key:         "rows_inserted",
		DisplayName: "Rows Inserted",
		Query:       "rate(pg_stat_database_tup_inserted{datname='testdb'}[5m])",
		Description: "Rate of rows inserted per second",
		Unit:        "rows/s",
	},
	"rows_updated": {
		Key:         "rows_updated",
		DisplayName: "Rows Updated",
		Query:       "rate(pg_stat_database_tup_updated{datname='testdb'}[5m])",
		Description: "Rate of rows updated per second",
		Unit:        "rows/s",
	},
	"rows_deleted": {
		Key:         "rows_deleted",
		DisplayName: "Rows Deleted",
		Query:       "rate(pg_stat_database_tup_deleted{datname='testdb'}[5m])",
		Description: "Rate of rows deleted per second",
		Unit:        "rows/s",
	},
	"dead_tuples": {
		Key:              "dead_tuples",
		DisplayName:      "Dead Tuples",
		Query:            "pg_stat_user_tables_n_dead_tup",
		Description:      "Number of dead tuples needing vacuum",
		Unit:             "tuples",
		WarningThreshold: threshold(10000), CriticalThreshold: threshold(100000),
	},

	// ── Replication ──────────────────────────────────────
	"replication_lag": {
		Key:              "replication_lag",
		DisplayName:      "Replication Lag",
		Query:            "pg_replication_lag",
		Description:      "Replication lag in seconds",
		Unit:             "seconds",
		WarningThreshold: threshold(30), CriticalThreshold: threshold(120),
	},

	// ── Database Size ────────────────────────────────────
	"database_size": {
		Key:         "database_size",
		DisplayName: "Database Size",
		Query:       "pg_database_size_bytes{datname='testdb'}",
		Description: "Size of the database in bytes",
		Unit:        "bytes",
	},

	// ── Host (node exporter) ─────────────────────────────
	"cpu_load1": {
		Key:         "cpu_load1",
		DisplayName: "CPU Load (1m)",
		Query:       "node_load1",
		Description: "System load average over the last 1 minute",
		Unit:        "load",
	},
	"cpu_load5": {
		Key:         "cpu_load5",
		DisplayName: "CPU Load (5m)",
		Query:       "node_load5",
		Description: "System load average over the last 5 minutes",
		Unit:        "load",
	},
	"cpu_load15": {
		Key:         "cpu_load15",
		DisplayName: "CPU Load (15m)",
		Query:       "node_load15",
		Description: "System load average over the last 15 minutes",
		Unit:        "load",
	},
	"cpu_utilization": {
		Key:              "cpu_utilization",
		DisplayName:      "CPU Utilization",
		Query:            "100 - (avg by(instance)(irate(node_cpu_seconds_total{mode='idle'}[5m])) * 100)",
		Description:      "Total CPU utilization percentage",
		Unit:             "percent",
		WarningThreshold: threshold(70), CriticalThreshold: threshold(90),
	},
	"cpu_utilization_user": {
		Key:         "cpu_utilization_user",
		DisplayName: "CPU Utilization (User)",
		Query:       "avg by(instance)(irate(node_cpu_seconds_total{mode='user'}[5m])) * 100",
		Description: "CPU time spent in user mode",
		Unit:        "percent",
	},
	"cpu_utilization_iowait": {
		Key:              "cpu_utilization_iowait",
		DisplayName:      "CPU Utilization (I/O Wait)",
		Query:            "avg by(instance)(irate(node_cpu_seconds_total{mode='iowait'}[5m])) * 100",
		Description:      "CPU time spent waiting for I/O",
		Unit:             "percent",
		WarningThreshold: threshold(10), CriticalThreshold: threshold(25),
	},
	"memory_utilization": {
		Key:              "memory_utilization",
		DisplayName:      "Memory Utilization",
		Query:            "((node_memory_MemTotal_bytes - node_memory_MemAvailable_bytes) / node_memory_MemTotal_bytes) * 100",
		Description:      "Percentage of system memory in use",
		Unit:             "percent",
		WarningThreshold: threshold(80), CriticalThreshold: threshold(95),
	},

	// ── Tables & Indexes ─────────────────────────────────
	"table_size": {
		Key:         "table_size",
		DisplayName: "Table Size",
		Query:       "pg_stat_user_tables_total_size_bytes{datname='testdb'}",
		Description: "Total size of table including indexes",
		Unit:        "bytes",
	},
	"sequential_scans": {
		Key:         "sequential_scans",
		DisplayName: "Sequential Scans",
		Query:       "rate(pg_stat_user_tables_seq_scan{datname='testdb'}[5m])",
		Description: "Rate of sequential scans per second",
		Unit:        "scans/s",
	},
	"index_scans": {
		Key:         "index_scans",
		DisplayName: "Index Scans",
		Query:       "rate(pg_stat_user_tables_idx_scan{datname='testdb'}[5m])",
		Description: "Rate of index scans per second",
		Unit:        "scans/s",
	},

	// ── Query Performance (pg_stat_statements) ───────────
	"query_execution_time": {
		Key:         "query_execution_time",
		DisplayName: "Query Execution Time",
		Query:       "rate(pg_stat_statements_total_time_seconds{datname='testdb'}[5m])",
		Description: "Total time spent executing queries",
		Unit:        "seconds/s",
	},
	"query_calls": {
		Key:         "query_calls",
		DisplayName: "Query Calls",
		Query:       "rate(pg_stat_statements_calls{datname='testdb'}[5m])",
		Description: "Rate of query executions",
		Unit:        "calls/s",
	},
	"query_mean_time": {
		Key:         "query_mean_time",
		DisplayName: "Mean Query Time",
		Query:       "sum(rate(pg_stat_statements_total_time_seconds{datname='testdb'}[5m])) / sum(rate(pg_stat_statements_calls{datname='testdb'}[5m]))",
		Description: "Average time per query execution",
		Unit:        "seconds",
	},
}

// healthCheckKeys is the fast, high-signal subset polled for /db-health.
var healthCheckKeys = []string{
	"connection_utilization",
	"buffer_cache_hit_ratio",
	"transaction_wraparound",
	"waiting_locks",
	"backend_writes",
	"dead_tuples",
	"cpu_utilization",
	"memory_utilization",
	"cpu_load1",
}

// incidentKeys is the broad subset offered during deep incident analysis.
var incidentKeys = []string{
	"active_connections",
	"total_connections",
	"connection_utilization",
	"transactions_committed",
	"transactions_rolled_back",
	"locks_total",
	"exclusive_locks",
	"waiting_locks",
	"buffer_cache_hit_ratio",
	"blocks_read",
	"backend_writes",
	"rows_inserted",
	"rows_updated",
	"dead_tuples",
	"cpu_utilization",
	"cpu_utilization_iowait",
	"memory_utilization",
	"cpu_load1",
	"table_size",
	"sequential_scans",
	"index_scans",
	"query_mean_time",
}

// Lookup returns the definition for key, or ok=false for unknown keys.
func Lookup(key string) (MetricDefinition, bool) {
	def, ok := metrics[key]
	return def, ok
}

// Keys returns all metric keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns every definition, ordered by key.
func All() []MetricDefinition {
	defs := make([]MetricDefinition, 0, len(metrics))
	for _, k := range Keys() {
		defs = append(defs, metrics[k])
	}
	return defs
}

// HealthCheckKeys returns the curated polling subset, in a fixed order.
func HealthCheckKeys() []string {
	out := make([]string, len(healthCheckKeys))
	copy(out, healthCheckKeys)
	return out
}

// IncidentKeys returns the curated incident-analysis subset, in a fixed order.
func IncidentKeys() []string {
	out := make([]string, len(incidentKeys))
	copy(out, incidentKeys)
	return out
}
