// Package exporter renders the classroom document as JSON, YAML, a CSV
// report or a Markdown report, and decodes exported JSON/YAML documents
// back for lossless re-import.
package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// Format is an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = shared.NewDomainError("export", "ParseFormat", shared.ErrInvalidInput, "format must be json, yaml, csv or markdown")

// ParseFormat parses a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", ErrUnknownFormat
	}
}

// Lossless reports whether the format can be imported back.
func (f Format) Lossless() bool {
	return f == FormatJSON || f == FormatYAML
}

// ContentType returns the MIME type.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// FileName returns "student-tracker-<date>.<ext>".
func FileName(f Format, today shared.Date) string {
	return fmt.Sprintf("student-tracker-%s.%s", today, f.Extension())
}

// Write renders doc in the given format. today is used for "days since"
// columns of the reports.
func Write(w io.Writer, f Format, doc classroom.Document, today shared.Date) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return writeCSV(w, doc, today)
	case FormatMarkdown:
		return writeMarkdown(w, doc, today)
	default:
		return ErrUnknownFormat
	}
}

// Render is Write into a byte slice.
func Render(f Format, doc classroom.Document, today shared.Date) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, f, doc, today); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads an exported JSON or YAML document. Derived fields are
// recomputed by the import command, never trusted from the file.
func Decode(r io.Reader, f Format) (classroom.Document, error) {
	var doc classroom.Document
	var err error
	switch f {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&doc)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&doc)
	default:
		return doc, shared.NewDomainError("export", "Decode", shared.ErrInvalidInput, "only json and yaml documents can be imported")
	}
	if err != nil {
		return doc, shared.WrapError("export", "Decode", shared.ErrInvalidFormat, "malformed classroom document", err)
	}
	return doc, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// CSVHeader is the column set of the CSV report.
var CSVHeader = []string{
	"Name", "Grade", "Total Calls", "Correct", "Incorrect", "Accuracy %",
	"Total MGCs", "Last MGC", "Days Since MGC", "Current Goal",
}

func writeCSV(w io.Writer, doc classroom.Document, today shared.Date) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, s := range doc.Students {
		p := s.Participation
		last, days := lastConnection(s, today)
		rec := []string{
			s.Name,
			s.Grade.String(),
			strconv.Itoa(p.TotalCalls),
			strconv.Itoa(p.CorrectAnswers),
			strconv.Itoa(p.IncorrectAnswers),
			strconv.Itoa(accuracyPercent(p)),
			strconv.Itoa(s.Connections.TotalMGCs),
			last,
			days,
			s.Goal,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeMarkdown(w io.Writer, doc classroom.Document, today shared.Date) error {
	var b strings.Builder
	m := doc.Metadata

	b.WriteString("# Student Tracker Report\n\n")
	fmt.Fprintf(&b, "**Date:** %s\n", today)
	for _, kv := range [][2]string{
		{"School Year", m.SchoolYear},
		{"Term", m.Term},
		{"Teacher", m.Teacher},
		{"Class", m.ClassName},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "**%s:** %s\n", kv[0], kv[1])
		}
	}
	fmt.Fprintf(&b, "**Total Students:** %d\n\n", len(doc.Students))

	b.WriteString("## Student Summary\n\n")
	for _, s := range doc.Students {
		p := s.Participation
		fmt.Fprintf(&b, "### %s (Grade %d)\n", s.Name, s.Grade)
		if s.Goal != "" {
			fmt.Fprintf(&b, "**Current Goal:** %s\n", s.Goal)
		}
		fmt.Fprintf(&b, "**Participation:** %d calls, %d%% accuracy\n", p.TotalCalls, accuracyPercent(p))

		lastSeen := "never"
		if d, ok := s.DaysSinceConnection(today); ok {
			lastSeen = fmt.Sprintf("%d days ago", d)
		}
		fmt.Fprintf(&b, "**Connections:** %d MGCs, last %s\n", s.Connections.TotalMGCs, lastSeen)

		if len(s.GoalHistory) > 0 {
			b.WriteString("\n**Previous Goals:**\n")
			for i, g := range s.GoalHistory {
				fmt.Fprintf(&b, "%d. %s", i+1, g.Goal)
				if !g.DateSet.IsZero() {
					fmt.Fprintf(&b, " (Set: %s)", g.DateSet)
				}
				if !g.DateCompleted.IsZero() {
					fmt.Fprintf(&b, " (Completed: %s)", g.DateCompleted)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func accuracyPercent(p student.Participation) int {
	return int(math.Round(p.Accuracy() * 100))
}

func lastConnection(s *student.Student, today shared.Date) (last, days string) {
	d, ok := s.DaysSinceConnection(today)
	if !ok {
		return "Never", "N/A"
	}
	return s.Connections.LastConnection.String(), strconv.Itoa(d)
}
