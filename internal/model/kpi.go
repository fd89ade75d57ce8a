package model

import "time"

// Metric names produced by the KPI engine.
const (
	MetricShiftCount       = "shift_count"
	MetricTotalHoursWorked = "total_hours_worked"
	MetricCancellationRate = "cancellation_rate"
	MetricDailyShiftCount  = "daily_shift_count"
	MetricMinShiftLength   = "min_shift_length_in_hours"
	MetricMeanShiftLength  = "mean_shift_length_in_hours"
)

// GroupingOverall is the grouping key for dataset-wide metrics.
const GroupingOverall = "overall"

// KPIRow is one aggregate value, keyed by (metric_name, grouping_key).
type KPIRow struct {
	MetricName  string    `json:"metric_name"`
	GroupingKey string    `json:"grouping_key"`
	Value       float64   `json:"value"`
	ComputedAt  time.Time `json:"computed_at"`
}

// KPITable is the ordered set of KPI rows derived from one ShiftTable.
// Exactly one row exists per (metric_name, grouping_key) pair.
type KPITable []KPIRow
