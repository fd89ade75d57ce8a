package model

import (
	"strings"
	"time"
)

// RawShiftRecord is a schema-agnostic map holding one shift exactly as the
// API returned it. No field is guaranteed to be present or well-typed.
type RawShiftRecord map[string]interface{}

// ShiftStatus is the lifecycle state of a shift.
type ShiftStatus string

const (
	StatusScheduled ShiftStatus = "scheduled"
	StatusCompleted ShiftStatus = "completed"
	StatusCancelled ShiftStatus = "cancelled"
)

// ParseShiftStatus maps a raw status value onto the known enum,
// case-insensitively. The bool reports whether the value was recognised.
func ParseShiftStatus(s string) (ShiftStatus, bool) {
	switch ShiftStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusScheduled:
		return StatusScheduled, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusCancelled:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// ShiftRow is a validated shift ready for the target store.
type ShiftRow struct {
	ShiftID    string      `json:"shift_id"`
	EmployeeID string      `json:"employee_id"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Status     ShiftStatus `json:"status"`
	Location   string      `json:"location,omitempty"`
}

// Hours returns the shift length in hours.
func (r ShiftRow) Hours() float64 {
	return r.EndTime.Sub(r.StartTime).Hours()
}

// ShiftTable is the ordered set of validated shifts produced by one run.
// Order follows the raw input; shift IDs are unique within the table.
type ShiftTable []ShiftRow
