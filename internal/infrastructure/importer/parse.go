// Package importer turns teacher-supplied files and pasted text into roster
// rows and timetable periods, and watches an inbox directory for dropped files.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrEmptyInput is returned when a file or text block has no data rows.
var ErrEmptyInput = shared.NewDomainError("import", "Parse", shared.ErrEmptyValue, "nothing to import")

// RowError reports a rejected line. Line is 1-based and counts the header.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Rejected collects the rows that could not be imported.
type Rejected []*RowError

// Err returns nil for an empty list.
func (r Rejected) Err() error {
	if len(r) == 0 {
		return nil
	}
	errs := make([]error, len(r))
	for i, e := range r {
		errs[i] = e
	}
	return shared.WrapError("import", "Parse", shared.ErrInvalidInput,
		fmt.Sprintf("%d row(s) rejected", len(r)), errors.Join(errs...))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER
// ══════════════════════════════════════════════════════════════════════════════

// RosterResult holds parsed roster rows and the lines that were skipped.
type RosterResult struct {
	Rows     []student.ImportRow
	Rejected Rejected
}

// ParseRosterCSV reads "firstname,lastname,grade" rows. A header line is
// recognised by its first cell and skipped. A missing or blank grade
// becomes shared.DefaultGrade.
func ParseRosterCSV(r io.Reader) (RosterResult, error) {
	records, err := readCSV(r)
	if err != nil {
		return RosterResult{}, err
	}

	var res RosterResult
	for i, rec := range records {
		line := i + 1
		if i == 0 && isHeader(rec, "firstname", "first name", "first", "name") {
			continue
		}
		if blank(rec) {
			continue
		}

		row, err := rosterRow(rec)
		if err != nil {
			res.Rejected = append(res.Rejected, &RowError{Line: line, Err: err})
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	if len(res.Rows) == 0 && len(res.Rejected) == 0 {
		return res, ErrEmptyInput
	}
	return res, nil
}

func rosterRow(rec []string) (student.ImportRow, error) {
	cell := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	row := student.ImportRow{
		FirstName: cell(0),
		LastName:  cell(1),
		Grade:     shared.DefaultGrade,
	}
	if row.LastName == "" {
		return row, errors.New("first and last name are required")
	}
	if g := cell(2); g != "" {
		grade, err := shared.ParseGrade(g)
		if err != nil {
			return row, err
		}
		row.Grade = grade
	}
	if err := validate.Struct(row); err != nil {
		return row, err
	}
	return row, nil
}

// ParseRosterText reads one student per line: "First [Middle] Last [grade]".
// A trailing integer token is the grade.
func ParseRosterText(text string) (RosterResult, error) {
	var res RosterResult
	for i, raw := range strings.Split(text, "\n") {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}

		grade := shared.DefaultGrade
		if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			grade = shared.Grade(n)
			fields = fields[:len(fields)-1]
		}
		if len(fields) < 2 {
			res.Rejected = append(res.Rejected, &RowError{Line: i + 1, Err: errors.New("expected first and last name")})
			continue
		}

		row := student.ImportRow{
			FirstName: strings.Join(fields[:len(fields)-1], " "),
			LastName:  fields[len(fields)-1],
			Grade:     grade,
		}
		if err := validate.Struct(row); err != nil {
			res.Rejected = append(res.Rejected, &RowError{Line: i + 1, Err: err})
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	if len(res.Rows) == 0 && len(res.Rejected) == 0 {
		return res, ErrEmptyInput
	}
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// WeekResult holds a parsed weekly timetable.
type WeekResult struct {
	Week     map[schedule.Weekday][]schedule.Period
	Periods  int
	Rejected Rejected
}

// ParseScheduleCSV reads "Day,Subject,Start Time,End Time" rows for a
// whole-week replacement. Days are Monday to Friday, any case.
func ParseScheduleCSV(r io.Reader) (WeekResult, error) {
	records, err := readCSV(r)
	if err != nil {
		return WeekResult{}, err
	}

	res := WeekResult{Week: make(map[schedule.Weekday][]schedule.Period)}
	for i, rec := range records {
		line := i + 1
		if i == 0 && isHeader(rec, "day") {
			continue
		}
		if blank(rec) {
			continue
		}
		if len(rec) != 4 {
			res.Rejected = append(res.Rejected, &RowError{Line: line, Err: fmt.Errorf("expected 4 columns, got %d", len(rec))})
			continue
		}

		day, err := schedule.ParseWeekday(rec[0])
		if err != nil {
			res.Rejected = append(res.Rejected, &RowError{Line: line, Err: err})
			continue
		}
		p, err := period(rec[1], rec[2], rec[3])
		if err != nil {
			res.Rejected = append(res.Rejected, &RowError{Line: line, Err: err})
			continue
		}
		res.Week[day] = append(res.Week[day], p)
		res.Periods++
	}

	if res.Periods == 0 && len(res.Rejected) == 0 {
		return res, ErrEmptyInput
	}
	return res, nil
}

// PeriodsResult holds periods parsed from pasted text.
type PeriodsResult struct {
	Periods  []schedule.Period
	Rejected Rejected
}

// ParseScheduleText reads "Subject, HH:MM, HH:MM" per line.
func ParseScheduleText(text string) (PeriodsResult, error) {
	var res PeriodsResult
	for i, raw := range strings.Split(text, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		if len(parts) != 3 {
			res.Rejected = append(res.Rejected, &RowError{Line: i + 1, Err: errors.New("expected: Subject, HH:MM, HH:MM")})
			continue
		}
		p, err := period(parts[0], parts[1], parts[2])
		if err != nil {
			res.Rejected = append(res.Rejected, &RowError{Line: i + 1, Err: err})
			continue
		}
		res.Periods = append(res.Periods, p)
	}

	if len(res.Periods) == 0 && len(res.Rejected) == 0 {
		return res, ErrEmptyInput
	}
	return res, nil
}

func period(subject, start, end string) (schedule.Period, error) {
	p, err := schedule.NewPeriod(subject, start, end)
	if err != nil {
		return p, err
	}
	if err := validate.Struct(p); err != nil {
		return p, err
	}
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, shared.WrapError("import", "ReadCSV", shared.ErrInvalidFormat, "malformed CSV", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

func isHeader(rec []string, names ...string) bool {
	if len(rec) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(rec[0]))
	for _, n := range names {
		if first == n {
			return true
		}
	}
	return false
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
