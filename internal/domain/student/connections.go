package student

import (
	"strings"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION TRACKER (MGC)
// Личные контакты с учеником. С выбором к доске никак не связаны.
// ══════════════════════════════════════════════════════════════════════════════

// MGCEntry - одна запись о личном контакте. Не больше одной на дату.
type MGCEntry struct {
	Date    shared.Date `json:"date" yaml:"date"`
	Time    string      `json:"time" yaml:"time"`
	Note    string      `json:"note" yaml:"note"`
	Subject string      `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// Connections - история контактов. TotalMGCs всегда равен len(History).
type Connections struct {
	TotalMGCs      int         `json:"totalMGCs" yaml:"totalMGCs"`
	History        []MGCEntry  `json:"mgcHistory" yaml:"mgcHistory"`
	LastConnection shared.Date `json:"lastConnection,omitempty" yaml:"lastConnection,omitempty"`
}

// ConnectionResult описывает, что сделал RecordConnection.
type ConnectionResult int

const (
	// ConnectionIgnored - пустая заметка на новую дату, ничего не записано.
	ConnectionIgnored ConnectionResult = iota
	// ConnectionAdded - добавлена новая запись.
	ConnectionAdded
	// ConnectionEdited - заменена запись за ту же дату.
	ConnectionEdited
)

// RecordConnection сохраняет заметку за дату at.
// Если запись за эту дату уже есть, заменяются заметка и время.
// Иначе запись добавляется, только если заметка непустая.
func (c *Connections) RecordConnection(note, subject string, at time.Time) ConnectionResult {
	note = strings.TrimSpace(note)
	date := shared.DateOf(at)
	clock := timeutil.ToLocal(at).Format("15:04")

	for i := range c.History {
		if c.History[i].Date == date {
			c.History[i].Note = note
			c.History[i].Time = clock
			return ConnectionEdited
		}
	}

	if note == "" {
		return ConnectionIgnored
	}

	c.History = append(c.History, MGCEntry{
		Date:    date,
		Time:    clock,
		Note:    note,
		Subject: subject,
	})
	c.TotalMGCs = len(c.History)
	if c.LastConnection.Before(date) {
		c.LastConnection = date
	}
	return ConnectionAdded
}

// Latest возвращает самую позднюю дату в истории.
func (c Connections) Latest() (shared.Date, bool) {
	var latest shared.Date
	for _, e := range c.History {
		if latest.Before(e.Date) {
			latest = e.Date
		}
	}
	return latest, !latest.IsZero()
}

// DaysSince возвращает число дней от последнего контакта до today.
// ok=false, если контактов не было.
func (c Connections) DaysSince(today shared.Date) (days int, ok bool) {
	latest, ok := c.Latest()
	if !ok {
		return 0, false
	}
	return latest.DaysUntil(today), true
}

// recompute восстанавливает производные поля и правило "одна запись на дату".
func (c *Connections) recompute() {
	seen := make(map[shared.Date]int, len(c.History))
	out := make([]MGCEntry, 0, len(c.History))
	for _, e := range c.History {
		if e.Date.IsZero() {
			continue
		}
		if i, dup := seen[e.Date]; dup {
			out[i] = e
			continue
		}
		seen[e.Date] = len(out)
		out = append(out, e)
	}
	c.History = out
	c.TotalMGCs = len(out)
	c.LastConnection, _ = c.Latest()
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT SHORTCUTS
// ══════════════════════════════════════════════════════════════════════════════

// RecordConnection сохраняет MGC для ученика.
func (s *Student) RecordConnection(note, subject string, at time.Time) ConnectionResult {
	return s.Connections.RecordConnection(note, subject, at)
}

// DaysSinceConnection - см. Connections.DaysSince.
func (s *Student) DaysSinceConnection(today shared.Date) (int, bool) {
	return s.Connections.DaysSince(today)
}
