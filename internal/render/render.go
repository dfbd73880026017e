// Package render formats tasks, logs and result tables for the terminal.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/you-humble/resinkit/internal/infra/store/artifact"
	"github.com/you-humble/resinkit/internal/infra/store/tracker"
	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(14)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)

	phaseColors = map[domain.Phase]lipgloss.Color{
		domain.PhaseActive:    lipgloss.Color("33"),
		domain.PhaseSucceeded: lipgloss.Color("42"),
		domain.PhaseFailed:    lipgloss.Color("196"),
		domain.PhaseCancelled: lipgloss.Color("214"),
	}
)

const maxCellWidth = 60

func Status(s domain.Status, l domain.Lifecycle) string {
	return lipgloss.NewStyle().Bold(true).Foreground(phaseColors[l.Classify(s)]).Render(s.String())
}

func Details(d domain.TaskDetails, l domain.Lifecycle) string {
	var b strings.Builder
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	field("Task ID", d.TaskID)
	field("Type", d.TaskType)
	field("Name", d.Name)
	field("Status", Status(d.Status, l))
	field("Created", ts(d.CreatedAt))
	field("Started", ts(d.StartedAt))
	field("Finished", ts(d.FinishedAt))
	if d.ErrorInfo != nil {
		field("Error", d.ErrorInfo.Message)
	}
	if len(d.ResultSummary) > 0 && string(d.ResultSummary) != "null" {
		field("Summary", truncate(string(d.ResultSummary)))
	}
	return b.String()
}

func TaskList(p domain.TaskPage, l domain.Lifecycle) string {
	rows := make([][]string, 0, len(p.Tasks))
	for _, d := range p.Tasks {
		rows = append(rows, []string{d.TaskID, d.TaskType, d.Name, Status(d.Status, l), ts(d.CreatedAt)})
	}
	out := grid([]string{"TASK ID", "TYPE", "NAME", "STATUS", "CREATED"}, rows)

	footer := fmt.Sprintf("%d of %d", len(p.Tasks), p.TotalCount)
	if p.NextPageToken != "" {
		footer += "  next page: " + p.NextPageToken
	}
	return out + "\n" + footer + "\n"
}

func Tracked(records []tracker.Record, l domain.Lifecycle) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.TaskID, r.TaskType, r.Name, Status(r.Status, l),
			timeStr(r.SubmittedAt), timeStr(r.FinishedAt),
		})
	}
	return grid([]string{"TASK ID", "TYPE", "NAME", "STATUS", "SUBMITTED", "FINISHED"}, rows) + "\n"
}

// Results prints every table of rt; a sequence gets numbered titles.
func Results(rt domain.ResultTable) string {
	tables := rt.Tables()
	if _, single := rt.(domain.SingleTable); single {
		return Table(tables[0])
	}
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(titleStyle.Render(fmt.Sprintf("Result %d of %d", i+1, len(tables))))
		b.WriteByte('\n')
		b.WriteString(Table(t))
	}
	return b.String()
}

func Table(t domain.Table) string {
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for j := range cells {
			if j < len(row) {
				s, err := artifact.Cell(row[j])
				if err != nil {
					s = fmt.Sprint(row[j])
				}
				cells[j] = truncate(s)
			}
		}
		rows[i] = cells
	}
	return grid(t.Columns, rows) + "\n" + strconv.Itoa(t.Len()) + " row(s)\n"
}

func Logs(p domain.LogPage) string {
	var b strings.Builder
	for _, e := range p.Entries {
		when := string(e.Timestamp)
		if t, ok := e.Timestamp.Time(); ok {
			when = t.Local().Format(time.DateTime)
		}
		fmt.Fprintf(&b, "%s %s %s\n", when, levelStyle(e.Level).Render(fmt.Sprintf("%-5s", e.Level)), e.Message)
	}
	if p.NextLogToken != "" {
		fmt.Fprintf(&b, "next log token: %s\n", p.NextLogToken)
	}
	return b.String()
}

func Artifacts(arts []artifact.Artifact, locate func(string) string) string {
	rows := make([][]string, 0, len(arts))
	for _, a := range arts {
		where := a.Filename
		if locate != nil {
			where = locate(a.Filename)
		}
		rows = append(rows, []string{where, strconv.Itoa(a.Rows), strconv.FormatInt(a.Size, 10), shortHash(a.Hash)})
	}
	return grid([]string{"FILE", "ROWS", "BYTES", "SHA256"}, rows) + "\n"
}

func Variables(vars []domain.Variable) string {
	rows := make([][]string, 0, len(vars))
	for _, v := range vars {
		rows = append(rows, []string{v.Name, v.Description, ts(v.UpdatedAt)})
	}
	return grid([]string{"NAME", "DESCRIPTION", "UPDATED"}, rows) + "\n"
}

func grid(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func levelStyle(level string) lipgloss.Style {
	s := lipgloss.NewStyle()
	switch strings.ToUpper(level) {
	case "ERROR", "CRITICAL":
		return s.Foreground(lipgloss.Color("196"))
	case "WARN", "WARNING":
		return s.Foreground(lipgloss.Color("214"))
	case "DEBUG":
		return s.Faint(true)
	default:
		return s
	}
}

func ts(t *domain.Timestamp) string {
	if t == nil {
		return ""
	}
	return timeStr(t.Time)
}

func timeStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth-1]) + "…"
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
