// Package schedule validates and evaluates 5-field cron expressions
// (minute hour day-of-month month day-of-week).
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const FieldCount = 5

var fieldNames = [FieldCount]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

// ParseError describes a rejected cron expression. Field is empty when the
// problem is not attributable to a single field (wrong field count).
type ParseError struct {
	Expr    string
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid cron expression %q: %s", e.Expr, e.Message)
	}
	return fmt.Sprintf("invalid cron expression %q: %s field: %s", e.Expr, e.Field, e.Message)
}

// Schedule is an immutable, parsed cron expression. Safe for concurrent use.
type Schedule struct {
	expr string
	spec cron.Schedule
}

var standard = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates expr as a standard 5-field cron expression. Descriptors
// such as "@hourly" are rejected so that stored schedules stay uniform.
// Day-of-month and day-of-week are OR'ed when both are restricted, matching
// classic cron behavior.
func Parse(expr string) (*Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, &ParseError{Expr: expr, Message: "empty expression"}
	}
	if strings.HasPrefix(trimmed, "@") {
		return nil, &ParseError{Expr: expr, Message: "descriptors are not supported, use 5 fields (minute hour day month weekday)"}
	}

	fields := strings.Fields(trimmed)
	if len(fields) != FieldCount {
		return nil, &ParseError{
			Expr:    expr,
			Message: fmt.Sprintf("expected %d fields, got %d", FieldCount, len(fields)),
		}
	}
	for i, f := range fields {
		if f == "" {
			return nil, &ParseError{Expr: expr, Field: fieldNames[i], Message: "empty field"}
		}
	}

	spec, err := standard.Parse(trimmed)
	if err != nil {
		return nil, locateFieldError(expr, fields, err)
	}
	return &Schedule{expr: trimmed, spec: spec}, nil
}

// locateFieldError narrows a parser failure down to the offending field by
// re-parsing probe expressions with every other field wildcarded.
func locateFieldError(expr string, fields []string, err error) *ParseError {
	for i, f := range fields {
		probe := []string{"*", "*", "*", "*", "*"}
		probe[i] = f
		if _, perr := standard.Parse(strings.Join(probe, " ")); perr != nil {
			return &ParseError{Expr: expr, Field: fieldNames[i], Message: perr.Error()}
		}
	}
	return &ParseError{Expr: expr, Message: err.Error()}
}

// Next returns the earliest time strictly after t that satisfies the schedule.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.spec.Next(t)
}

func (s *Schedule) String() string {
	return s.expr
}

// Validate reports whether expr is an acceptable schedule without keeping
// the parsed form.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}
