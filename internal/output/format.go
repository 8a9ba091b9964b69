// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"nexustodo/internal/chat"
	"nexustodo/internal/service"
	"nexustodo/internal/tasksync"
)

const (
	// ListSeparator is the separator line for sections.
	ListSeparator = "------------"
)

var statusMarks = map[service.Status]string{
	service.StatusTodo:       "[ ]",
	service.StatusInProgress: "[~]",
	service.StatusDone:       "[x]",
	service.StatusDeferred:   "[>]",
	service.StatusCancelled:  "[-]",
}

// StatusMark returns the three-character marker for s.
func StatusMark(s service.Status) string {
	if m, ok := statusMarks[s]; ok {
		return m
	}
	return "[?]"
}

// FormatTask formats a numbered task line.
// Format: "{N:>4}  {MARK} {TITLE}[  #tag ...]\n"
func FormatTask(w io.Writer, num int, task service.Task) {
	fmt.Fprintf(w, "%4d  %s %s%s\n", num, StatusMark(task.Status), normalizeTitle(task.Title), formatTags(task.Tags))
}

// FormatTaskIndented formats a task line inside a chat card.
// Format: "    - {MARK} {TITLE}[  #tag ...]\n"
func FormatTaskIndented(w io.Writer, task service.Task) {
	fmt.Fprintf(w, "    - %s %s%s\n", StatusMark(task.Status), normalizeTitle(task.Title), formatTags(task.Tags))
}

// FormatTaskDetail prints every field of a task.
func FormatTaskDetail(w io.Writer, task service.Task) {
	fmt.Fprintf(w, "id:          %s\n", task.ID)
	fmt.Fprintf(w, "title:       %s\n", normalizeTitle(task.Title))
	fmt.Fprintf(w, "status:      %s\n", task.Status)
	if len(task.Tags) > 0 {
		fmt.Fprintf(w, "tags:        %s\n", strings.Join(task.Tags, ", "))
	}
	if !task.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created:     %s\n", task.CreatedAt.Format("2006-01-02 15:04"))
	}
	if !task.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated:     %s\n", task.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if d := strings.TrimSpace(task.Description); d != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, d)
	}
}

// FormatHeader formats a section header.
func FormatHeader(w io.Writer, title string) {
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, ListSeparator)
}

// FormatFooter prints the freshness line under a listing.
func FormatFooter(w io.Writer, freshness tasksync.Freshness, lastSync string) {
	switch {
	case freshness == tasksync.Live:
		fmt.Fprintf(w, "synced %s\n", lastSync)
	case lastSync != "":
		fmt.Fprintf(w, "cached, last synced %s\n", lastSync)
	default:
		fmt.Fprintln(w, "cached, never synced")
	}
}

// FormatCounts prints the per-status totals on one line.
func FormatCounts(w io.Writer, counts map[service.Status]int) {
	parts := make([]string, 0, len(service.Statuses))
	for _, s := range service.Statuses {
		parts = append(parts, fmt.Sprintf("%s %d", s, counts[s]))
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// FormatMessage prints one transcript message.
func FormatMessage(w io.Writer, m chat.Message) {
	if m.Kind == chat.KindTasks {
		FormatCard(w, m)
		return
	}
	prefix := "agent> "
	if m.Role == chat.RoleUser {
		prefix = "you> "
	}
	fmt.Fprintf(w, "%s%s\n", prefix, m.Text)
}

// FormatCard prints a task card.
func FormatCard(w io.Writer, m chat.Message) {
	fmt.Fprintf(w, "  %s (%d)\n", m.Title, len(m.Tasks))
	for _, task := range m.Tasks {
		FormatTaskIndented(w, task)
	}
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "  #" + strings.Join(tags, " #")
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
