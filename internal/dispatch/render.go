package dispatch

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/huntingdonterrace/issueboard/internal/channel"
	"github.com/huntingdonterrace/issueboard/internal/report"
)

const (
	textDescriptionLimit = 50
	htmlDescriptionLimit = 100

	dateLayout = "2006-01-02"
)

// Render produces the channel-facing form of a summary. The same summary
// renders the same bytes every time: histogram entries are emitted in a
// fixed order (count descending, then name).
func Render(s *report.Summary, format channel.Format) channel.Message {
	subject := fmt.Sprintf("Weekly Issue Report - %s to %s",
		s.WeekStart.Format(dateLayout), s.WeekEnd.Format(dateLayout))

	if format == channel.FormatHTML {
		return channel.Message{Subject: subject, Body: renderHTML(s)}
	}
	return channel.Message{Subject: subject, Body: renderText(s)}
}

func renderText(s *report.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 *Weekly Issue Report - %s to %s*\n\n",
		s.WeekStart.Format(dateLayout), s.WeekEnd.Format(dateLayout))

	b.WriteString("📈 *Summary:*\n")
	fmt.Fprintf(&b, "• Total Issues: %d\n", s.TotalIssues)
	fmt.Fprintf(&b, "• New This Week: %d\n", s.NewIssues)
	fmt.Fprintf(&b, "• Resolved: %d\n\n", s.ResolvedIssues)

	b.WriteString("📋 *By Category:*\n")
	for _, e := range sortedEntries(s.ByCategory) {
		fmt.Fprintf(&b, "• %s: %d\n", e.name, e.count)
	}

	b.WriteString("\n📊 *By Status:*\n")
	for _, e := range sortedEntries(s.ByStatus) {
		fmt.Fprintf(&b, "• %s: %d\n", e.name, e.count)
	}

	b.WriteString("\n🆕 *Recent Issues:*\n")
	for _, issue := range s.Recent {
		fmt.Fprintf(&b, "• Unit %s: %s\n", issue.Unit, truncate(issue.Description, textDescriptionLimit))
	}

	fmt.Fprintf(&b, "\n📅 Generated: %s", s.GeneratedAt.Format(dateLayout))
	return b.String()
}

func renderHTML(s *report.Summary) string {
	var b strings.Builder

	b.WriteString("<h2>📊 Weekly Issue Report</h2>\n")
	fmt.Fprintf(&b, "<p><strong>Period:</strong> %s to %s</p>\n",
		s.WeekStart.Format(dateLayout), s.WeekEnd.Format(dateLayout))

	b.WriteString("<h3>📈 Summary:</h3>\n<ul>\n")
	fmt.Fprintf(&b, "<li>Total Issues: %d</li>\n", s.TotalIssues)
	fmt.Fprintf(&b, "<li>New This Week: %d</li>\n", s.NewIssues)
	fmt.Fprintf(&b, "<li>Resolved: %d</li>\n", s.ResolvedIssues)
	b.WriteString("</ul>\n")

	b.WriteString("<h3>📋 By Category:</h3>\n<ul>\n")
	for _, e := range sortedEntries(s.ByCategory) {
		fmt.Fprintf(&b, "<li>%s: %d</li>\n", html.EscapeString(e.name), e.count)
	}
	b.WriteString("</ul>\n")

	b.WriteString("<h3>📊 By Status:</h3>\n<ul>\n")
	for _, e := range sortedEntries(s.ByStatus) {
		fmt.Fprintf(&b, "<li>%s: %d</li>\n", html.EscapeString(e.name), e.count)
	}
	b.WriteString("</ul>\n")

	b.WriteString("<h3>🆕 Recent Issues:</h3>\n<ul>\n")
	for _, issue := range s.Recent {
		fmt.Fprintf(&b, "<li>Unit %s: %s</li>\n",
			html.EscapeString(issue.Unit),
			html.EscapeString(truncate(issue.Description, htmlDescriptionLimit)))
	}
	b.WriteString("</ul>\n")

	fmt.Fprintf(&b, "<p><em>Generated: %s</em></p>\n", s.GeneratedAt.Format(dateLayout))
	return b.String()
}

type entry struct {
	name  string
	count int
}

func sortedEntries(m map[string]int) []entry {
	entries := make([]entry, 0, len(m))
	for name, count := range m {
		entries = append(entries, entry{name: name, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	return entries
}

// truncate cuts s to at most n bytes without splitting a rune, so the
// result is always valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
