package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/postgres"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STYLES
// ══════════════════════════════════════════════════════════════════════════════

// Classroom palette.
var (
	ColorAccent  = lipgloss.Color("#4EA8DE") // titles, current student
	ColorSubtle  = lipgloss.Color("#5390D9") // subtitles, headers
	ColorSuccess = lipgloss.Color("#57CC99") // correct, saved
	ColorWarning = lipgloss.Color("#F4D03F") // no-op, absent
	ColorError   = lipgloss.Color("#E74C3C") // failures, incorrect
	ColorMuted   = lipgloss.Color("#6C7A89") // secondary text
)

// Styles holds the lipgloss styles used by the presenter.
type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Header    lipgloss.Style
	Box       lipgloss.Style
}

// DefaultStyles returns the tracker's terminal styles.
func DefaultStyles() Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
		Subtitle:  lipgloss.NewStyle().Foreground(ColorSubtle),
		Bold:      lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
		Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
		Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
		Error:     lipgloss.NewStyle().Foreground(ColorError),
		Highlight: lipgloss.NewStyle().Foreground(ColorAccent).Bold(true),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(ColorSubtle).Underline(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(0, 1),
	}
}

// Icons.
const (
	IconSuccess = "✓"
	IconWarning = "⚠"
	IconError   = "✗"
	IconBullet  = "•"
	IconArrow   = "→"
)

// IsTerminal reports whether w writes to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENTER
// Turns command results and read models into terminal text. Styling is
// applied only when the output is a terminal; pipes get plain text.
// ══════════════════════════════════════════════════════════════════════════════

// Presenter writes formatted output.
type Presenter struct {
	out    io.Writer
	styled bool
	styles Styles
}

// NewPresenter creates a presenter that styles output only on a terminal.
func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out, styled: IsTerminal(out), styles: DefaultStyles()}
}

// NewPlainPresenter creates a presenter that never styles output.
func NewPlainPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out, styles: DefaultStyles()}
}

func (p *Presenter) paint(st lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return st.Render(s)
}

func (p *Presenter) println(s string) {
	fmt.Fprintln(p.out, s)
}

// Success prints a confirmation line.
func (p *Presenter) Success(format string, args ...any) {
	p.println(p.paint(p.styles.Success, IconSuccess) + " " + fmt.Sprintf(format, args...))
}

// Warn prints a warning line; used for operations that did nothing.
func (p *Presenter) Warn(format string, args ...any) {
	p.println(p.paint(p.styles.Warning, IconWarning+" "+fmt.Sprintf(format, args...)))
}

// Failure prints an error line.
func (p *Presenter) Failure(err error) {
	p.println(p.paint(p.styles.Error, IconError+" "+err.Error()))
}

// Title prints a section title.
func (p *Presenter) Title(s string) {
	p.println(p.paint(p.styles.Title, s))
}

// Raw writes bytes as they are (exports).
func (p *Presenter) Raw(b []byte) error {
	_, err := p.out.Write(b)
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// SESSION
// ─────────────────────────────────────────────────────────────────────────────

// Selected prints the student who was just called.
func (p *Presenter) Selected(r *command.SelectStudentResult) {
	var sb strings.Builder
	sb.WriteString(p.paint(p.styles.Highlight, r.Student.Name))
	sb.WriteString(p.paint(p.styles.Muted, fmt.Sprintf("  (grade %s)", r.Student.Grade)))
	sb.WriteString("\n")
	if r.Subject != "" {
		sb.WriteString("subject: " + r.Subject + "\n")
	}
	fmt.Fprintf(&sb, "weight: %s  candidates: %d  pool left: %d",
		formatWeight(r.Weight), r.Candidates, r.PoolRemaining)

	notes := make([]string, 0, 3)
	if r.DailyReset {
		notes = append(notes, "new day, session reset")
	}
	if r.SubjectReset {
		notes = append(notes, "subject changed, pool reset")
	}
	if r.PoolRefilled {
		notes = append(notes, "pool refilled")
	}
	if len(notes) > 0 {
		sb.WriteString("\n" + p.paint(p.styles.Muted, strings.Join(notes, "; ")))
	}

	p.box(sb.String())
}

// Outcome prints a recorded answer.
func (p *Presenter) Outcome(r *command.RecordOutcomeResult) {
	mark := p.paint(p.styles.Success, IconSuccess+" correct")
	if r.Outcome == student.OutcomeIncorrect {
		mark = p.paint(p.styles.Error, IconError+" incorrect")
	}
	line := fmt.Sprintf("%s %s %s", r.Student.Name, IconArrow, mark)
	if r.Subject != "" {
		line += p.paint(p.styles.Muted, " in "+r.Subject)
	}
	p.println(line)
	p.println(p.paint(p.styles.Muted, fmt.Sprintf("weight now %s, %d call(s) today",
		formatWeight(r.Student.SelectionWeight()), r.CallsToday)))
}

// Absence prints an absence mark or its removal.
func (p *Presenter) Absence(r *command.AbsenceResult, cleared bool) {
	switch {
	case cleared:
		p.Success("%s is no longer absent on %s", r.Student.Name, r.Date)
	case r.AlreadyMarked:
		p.Warn("%s was already marked absent today", r.Student.Name)
	default:
		p.Success("%s marked absent on %s", r.Student.Name, r.Date)
	}
}

// Filter prints the grade filter change.
func (p *Presenter) Filter(r *command.ToggleGradeFilterResult) {
	p.Success("grade filter: %s %s %s", r.Previous, IconArrow, p.paint(p.styles.Bold, r.Current.String()))
}

// Reset prints the result of a reset.
func (p *Presenter) Reset(r *command.ResetResult) {
	switch {
	case r.Scope == command.ResetParticipation:
		p.Success("participation reset for %d student(s)", r.StudentsReset)
	case !r.Performed:
		p.Warn("%s reset not needed", r.Scope)
	default:
		p.Success("%s reset: %q %s %q", r.Scope, r.Previous, IconArrow, r.Current)
	}
}

// Status prints the session overview.
func (p *Presenter) Status(s *query.SessionStatusDTO) {
	p.Title("Session")
	current := p.paint(p.styles.Muted, "nobody")
	if s.CurrentStudent != nil {
		current = p.paint(p.styles.Highlight, s.CurrentStudent.Name)
	}
	subject := p.paint(p.styles.Muted, "no lesson")
	if s.HasActive {
		subject = s.ActiveSubject
	}

	rows := [][2]string{
		{"current", current},
		{"subject", subject},
		{"filter", s.GradeFilter.String()},
		{"pool", fmt.Sprintf("%d of %d eligible", s.PoolSize, s.EligibleCount)},
		{"calls today", strconv.Itoa(s.CallsToday)},
		{"students", strconv.Itoa(s.TotalStudents)},
	}
	if len(s.AbsentToday) > 0 {
		names := make([]string, len(s.AbsentToday))
		for i, ref := range s.AbsentToday {
			names[i] = ref.Name
		}
		rows = append(rows, [2]string{"absent", p.paint(p.styles.Warning, strings.Join(names, ", "))})
	}
	p.keyValues(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// STUDENTS
// ─────────────────────────────────────────────────────────────────────────────

// Students prints the roster as a table.
func (p *Presenter) Students(list []query.StudentDTO) {
	if len(list) == 0 {
		p.Warn("no students")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		marker := ""
		switch {
		case s.IsCurrent:
			marker = IconArrow
		case s.AbsentToday:
			marker = "absent"
		}
		rows = append(rows, []string{
			s.ID, s.Name, s.Grade.String(),
			strconv.Itoa(s.TotalCalls), percent(s.Accuracy), formatWeight(s.Weight),
			strconv.Itoa(s.TotalMGCs), marker,
		})
	}
	p.table([]string{"ID", "NAME", "GRADE", "CALLS", "ACC", "WEIGHT", "MGC", ""}, rows)
}

// StudentCard prints the full record of one student.
func (p *Presenter) StudentCard(s *student.Student, today shared.Date) {
	p.Title(s.Name)
	rows := [][2]string{
		{"id", s.ID},
		{"grade", s.Grade.String()},
		{"calls", fmt.Sprintf("%d (%d correct, %d incorrect)",
			s.Participation.TotalCalls, s.Participation.CorrectAnswers, s.Participation.IncorrectAnswers)},
		{"accuracy", percent(s.Participation.Accuracy())},
		{"weight", formatWeight(s.SelectionWeight())},
		{"absences", strconv.Itoa(s.AbsenceCount())},
	}
	if s.Goal != "" {
		rows = append(rows, [2]string{"goal", fmt.Sprintf("%s (since %s)", s.Goal, s.GoalSetOn)})
	}
	if last := s.Connections.LastConnection; last != "" {
		rows = append(rows, [2]string{"last MGC", fmt.Sprintf("%s, %s", last,
			timeutil.FormatDaysAgo(last.DaysUntil(today)))})
	}
	if len(s.Interests.Extracurriculars) > 0 {
		rows = append(rows, [2]string{"interests", strings.Join(s.Interests.Extracurriculars, ", ")})
	}
	if len(s.Interests.Strengths) > 0 {
		rows = append(rows, [2]string{"strengths", strings.Join(s.Interests.Strengths, ", ")})
	}
	if s.Interests.Notes != "" {
		rows = append(rows, [2]string{"notes", s.Interests.Notes})
	}
	p.keyValues(rows)

	if len(s.Participation.SubjectBreakdown) > 0 {
		p.println("")
		p.println(p.paint(p.styles.Subtitle, "By subject"))
		subjects := make([][]string, 0, len(s.Participation.SubjectBreakdown))
		for _, name := range slices.Sorted(maps.Keys(s.Participation.SubjectBreakdown)) {
			t := s.Participation.SubjectBreakdown[name]
			subjects = append(subjects, []string{name, strconv.Itoa(t.Correct), strconv.Itoa(t.Incorrect)})
		}
		p.table([]string{"SUBJECT", "CORRECT", "INCORRECT"}, subjects)
	}

	if n := len(s.Connections.History); n > 0 {
		p.println("")
		p.println(p.paint(p.styles.Subtitle, "Connections"))
		from := 0
		if n > 5 {
			from = n - 5
		}
		for _, e := range s.Connections.History[from:] {
			p.println(fmt.Sprintf("%s %s %s", IconBullet, e.Date, e.Note))
		}
	}

	if len(s.GoalHistory) > 0 {
		p.println("")
		p.println(p.paint(p.styles.Subtitle, "Past goals"))
		for _, g := range s.GoalHistory {
			p.println(fmt.Sprintf("%s %s %s", IconBullet, g.Goal, p.paint(p.styles.Muted, "("+string(g.DateSet)+" "+IconArrow+" "+string(g.DateCompleted)+")")))
		}
	}
}

// Imported prints a roster import result.
func (p *Presenter) Imported(r *command.ImportRosterResult, rejected int) {
	p.Success("%d student(s) added", len(r.Added))
	if len(r.Skipped) > 0 {
		p.Warn("%d duplicate(s) skipped: %s", len(r.Skipped), strings.Join(r.Skipped, ", "))
	}
	if rejected > 0 {
		p.Warn("%d row(s) rejected", rejected)
	}
}

// Neglected prints students ordered from least recently connected.
func (p *Presenter) Neglected(rows []query.NeglectedDTO) {
	if len(rows) == 0 {
		p.Warn("no students")
		return
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		since := "never"
		if r.DaysSince != nil {
			since = timeutil.FormatDaysAgo(*r.DaysSince)
		}
		out = append(out, []string{r.Name, strconv.Itoa(r.Grade), strconv.Itoa(r.TotalMGCs), since})
	}
	p.table([]string{"NAME", "GRADE", "MGC", "LAST"}, out)
}

// Summary prints class statistics.
func (p *Presenter) Summary(s *query.SummaryDTO) {
	title := "Summary"
	if s.Metadata.ClassName != "" {
		title += " " + IconBullet + " " + s.Metadata.ClassName
	}
	p.Title(title)
	p.keyValues([][2]string{
		{"students", strconv.Itoa(s.TotalStudents)},
		{"calls", strconv.Itoa(s.TotalCalls)},
		{"MGCs", strconv.Itoa(s.TotalMGCs)},
		{"avg accuracy", percent(s.AverageAccuracy)},
		{"calls today", strconv.Itoa(s.CallsToday)},
		{"absent today", strconv.Itoa(s.AbsentToday)},
	})
	if len(s.Subjects) > 0 {
		p.println("")
		rows := make([][]string, 0, len(s.Subjects))
		for _, sub := range s.Subjects {
			rows = append(rows, []string{sub.Subject, strconv.Itoa(sub.Correct), strconv.Itoa(sub.Incorrect), percent(sub.Accuracy)})
		}
		p.table([]string{"SUBJECT", "CORRECT", "INCORRECT", "ACC"}, rows)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SCHEDULE
// ─────────────────────────────────────────────────────────────────────────────

// Week prints the weekly timetable.
func (p *Presenter) Week(t schedule.Table) {
	if t.PeriodCount() == 0 {
		p.Warn("no periods scheduled")
		return
	}
	for _, day := range schedule.SchoolDays {
		periods := t.Day(day)
		if len(periods) == 0 {
			continue
		}
		p.println(p.paint(p.styles.Subtitle, day.Title()))
		p.periods(periods, -1)
	}
}

// Today prints today's periods and marks the active one.
func (p *Presenter) Today(d *query.TodayDTO) {
	if !d.SchoolDay {
		p.Warn("no school today")
		return
	}
	p.Title(d.Day.Title())
	if len(d.Periods) == 0 {
		p.Warn("no periods scheduled")
		return
	}
	p.periods(d.Periods, d.ActiveIndex)
}

// Periods prints a single day after an edit.
func (p *Presenter) Periods(day schedule.Weekday, periods []schedule.Period) {
	p.println(p.paint(p.styles.Subtitle, day.Title()))
	if len(periods) == 0 {
		p.println(p.paint(p.styles.Muted, "  (empty)"))
		return
	}
	p.periods(periods, -1)
}

func (p *Presenter) periods(periods []schedule.Period, active int) {
	for i, per := range periods {
		line := fmt.Sprintf("  %d. %s-%s  %s", i, per.StartTime, per.EndTime, per.Subject)
		if i == active {
			line = p.paint(p.styles.Highlight, line+"  "+IconArrow+" now")
		}
		p.println(line)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// DATABASE
// ─────────────────────────────────────────────────────────────────────────────

// Migrations prints migration status.
func (p *Presenter) Migrations(list []postgres.Migration) {
	rows := make([][]string, 0, len(list))
	for _, m := range list {
		state := p.paint(p.styles.Muted, "pending")
		if m.IsApplied {
			state = p.paint(p.styles.Success, "applied "+m.AppliedAt.Format("2006-01-02 15:04"))
		}
		rows = append(rows, []string{strconv.Itoa(m.Version), m.Name, state})
	}
	p.table([]string{"VERSION", "NAME", "STATE"}, rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// LAYOUT HELPERS
// ─────────────────────────────────────────────────────────────────────────────

func (p *Presenter) box(content string) {
	if !p.styled {
		p.println(content)
		return
	}
	p.println(p.styles.Box.Render(content))
}

func (p *Presenter) keyValues(rows [][2]string) {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r[0]); w > width {
			width = w
		}
	}
	for _, r := range rows {
		label := r[0] + strings.Repeat(" ", width-lipgloss.Width(r[0]))
		p.println("  " + p.paint(p.styles.Muted, label) + "  " + r[1])
	}
}

func (p *Presenter) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	p.println(p.paint(p.styles.Header, line(header)))
	for _, r := range rows {
		p.println(line(r))
	}
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}
