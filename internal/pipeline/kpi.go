package pipeline

import (
	"sort"
	"time"

	"shifts-etl/internal/model"
)

// employeeGroup accumulates per-employee counts in one pass over the table.
type employeeGroup struct {
	total     int
	cancelled int
	hours     float64 // completed shifts only
}

// ComputeKPIs derives the KPI table from an in-memory shift table. It is a
// pure function: it never touches the store, and computedAt is injected so a
// run stamps every row with one timestamp. An empty table yields an empty
// KPI table. Output order is deterministic (metric name, then grouping key).
func ComputeKPIs(table model.ShiftTable, computedAt time.Time) model.KPITable {
	var kpis model.KPITable
	if len(table) == 0 {
		return kpis
	}

	employees := make(map[string]*employeeGroup)
	days := make(map[string]int)

	completed := 0
	var minHours, sumHours float64

	for _, row := range table {
		g := employees[row.EmployeeID]
		if g == nil {
			g = &employeeGroup{}
			employees[row.EmployeeID] = g
		}
		g.total++

		switch row.Status {
		case model.StatusCancelled:
			g.cancelled++
		case model.StatusCompleted:
			h := row.Hours()
			g.hours += h
			sumHours += h
			if completed == 0 || h < minHours {
				minHours = h
			}
			completed++
		}

		days[row.StartTime.UTC().Format("2006-01-02")]++
	}

	for id, g := range employees {
		kpis = append(kpis,
			model.KPIRow{MetricName: model.MetricShiftCount, GroupingKey: id, Value: float64(g.total), ComputedAt: computedAt},
			model.KPIRow{MetricName: model.MetricTotalHoursWorked, GroupingKey: id, Value: g.hours, ComputedAt: computedAt},
			model.KPIRow{MetricName: model.MetricCancellationRate, GroupingKey: id, Value: rate(g.cancelled, g.total), ComputedAt: computedAt},
		)
	}

	for day, n := range days {
		kpis = append(kpis, model.KPIRow{
			MetricName:  model.MetricDailyShiftCount,
			GroupingKey: day,
			Value:       float64(n),
			ComputedAt:  computedAt,
		})
	}

	// Dataset-wide shift-length metrics only exist when at least one shift
	// completed; emitting a degenerate zero would misread as a real minimum.
	if completed > 0 {
		kpis = append(kpis,
			model.KPIRow{MetricName: model.MetricMinShiftLength, GroupingKey: model.GroupingOverall, Value: minHours, ComputedAt: computedAt},
			model.KPIRow{MetricName: model.MetricMeanShiftLength, GroupingKey: model.GroupingOverall, Value: sumHours / float64(completed), ComputedAt: computedAt},
		)
	}

	sort.Slice(kpis, func(i, j int) bool {
		if kpis[i].MetricName != kpis[j].MetricName {
			return kpis[i].MetricName < kpis[j].MetricName
		}
		return kpis[i].GroupingKey < kpis[j].GroupingKey
	})

	return kpis
}

// rate divides cancelled by total, defined as 0 for an empty group.
func rate(cancelled, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(cancelled) / float64(total)
}
