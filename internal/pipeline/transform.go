package pipeline

import (
	"fmt"
	"iter"
	"strconv"
	"time"

	"go.uber.org/zap"

	"shifts-etl/internal/model"
)

// TransformCounts partitions the consumed input: Extracted == Valid + Rejected.
type TransformCounts struct {
	Extracted int
	Valid     int
	Rejected  int
}

// rowResult is the tagged outcome of validating a single raw record. A bad
// row is data, not control flow: it never aborts the run.
type rowResult struct {
	row    model.ShiftRow
	valid  bool
	reason string
}

// Transform consumes the raw sequence and produces the validated shift table.
// Rows failing validation are dropped and counted. Duplicate shift IDs are
// resolved last-record-wins, keeping the position of the first occurrence so
// output order stays stable. An error carried by the sequence (a fatal
// extraction failure) aborts the transform and is returned unchanged.
func Transform(records iter.Seq2[model.RawShiftRecord, error], log *zap.Logger) (model.ShiftTable, TransformCounts, error) {
	var (
		table  model.ShiftTable
		counts TransformCounts
		index  = make(map[string]int)
	)

	for rec, err := range records {
		if err != nil {
			return table, counts, err
		}
		counts.Extracted++

		res := validateRecord(rec)
		if !res.valid {
			counts.Rejected++
			log.Debug("rejected shift record", zap.String("reason", res.reason))
			continue
		}

		if pos, seen := index[res.row.ShiftID]; seen {
			// Last record wins: the source API is eventually consistent and
			// may replay a shift with newer values.
			table[pos] = res.row
			counts.Rejected++
			continue
		}
		counts.Valid++
		index[res.row.ShiftID] = len(table)
		table = append(table, res.row)
	}

	return table, counts, nil
}

// validateRecord maps the API field names onto the shifts schema and checks
// the row invariants.
func validateRecord(rec model.RawShiftRecord) rowResult {
	id := stringField(rec, "id")
	if id == "" {
		return rejected("missing shift id")
	}

	employeeID := stringField(rec, "employee_id")
	if employeeID == "" {
		return rejected("missing employee id")
	}

	start, ok := timeField(rec, "start")
	if !ok {
		return rejected("unparseable start time")
	}
	end, ok := timeField(rec, "finish")
	if !ok {
		return rejected("unparseable finish time")
	}
	if !end.After(start) {
		return rejected("finish not after start")
	}

	status, ok := model.ParseShiftStatus(stringField(rec, "status"))
	if !ok {
		return rejected("unknown status")
	}

	return rowResult{
		valid: true,
		row: model.ShiftRow{
			ShiftID:    id,
			EmployeeID: employeeID,
			StartTime:  start,
			EndTime:    end,
			Status:     status,
			Location:   stringField(rec, "location"),
		},
	}
}

func rejected(reason string) rowResult {
	return rowResult{reason: reason}
}

// stringField reads a field as a string, rendering numeric IDs the way the
// API serialises them (JSON numbers decode as float64).
func stringField(rec model.RawShiftRecord, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// timeField reads a timestamp field. The API sends epoch milliseconds;
// RFC 3339 strings are accepted as well.
func timeField(rec model.RawShiftRecord, key string) (time.Time, bool) {
	switch v := rec[key].(type) {
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	case int64:
		return time.UnixMilli(v).UTC(), true
	case int:
		return time.UnixMilli(int64(v)).UTC(), true
	case string:
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
