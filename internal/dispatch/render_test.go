package dispatch

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/huntingdonterrace/issueboard/internal/channel"
	"github.com/huntingdonterrace/issueboard/internal/report"
)

func TestRender_Subject(t *testing.T) {
	msg := Render(testSummary(), channel.FormatText)
	want := "Weekly Issue Report - 2026-03-02 to 2026-03-09"
	if msg.Subject != want {
		t.Errorf("Subject = %q, want %q", msg.Subject, want)
	}
}

func TestRenderText_Sections(t *testing.T) {
	body := Render(testSummary(), channel.FormatText).Body

	for _, want := range []string{
		"📊 *Weekly Issue Report - 2026-03-02 to 2026-03-09*",
		"• Total Issues: 12",
		"• New This Week: 3",
		"• Resolved: 1",
		"📋 *By Category:*",
		"• Plumbing: 2",
		"📊 *By Status:*",
		"• Pending: 2",
		"🆕 *Recent Issues:*",
		"• Unit 4B: Leaking tap in kitchen",
		"📅 Generated: 2026-03-09",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("text body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderHTML_Sections(t *testing.T) {
	body := Render(testSummary(), channel.FormatHTML).Body

	for _, want := range []string{
		"<h2>📊 Weekly Issue Report</h2>",
		"<p><strong>Period:</strong> 2026-03-02 to 2026-03-09</p>",
		"<li>Total Issues: 12</li>",
		"<li>Plumbing: 2</li>",
		"<li>Unit 4B: Leaking tap in kitchen</li>",
		"<p><em>Generated: 2026-03-09</em></p>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("html body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderHTML_EscapesUserContent(t *testing.T) {
	s := testSummary()
	s.Recent = []report.RecentIssue{
		{Unit: "1A", Description: "<script>alert(1)</script>", Status: "Pending"},
	}
	s.ByCategory = map[string]int{"A & B": 1}

	body := Render(s, channel.FormatHTML).Body
	if strings.Contains(body, "<script>") {
		t.Error("html body contains unescaped description")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("html body missing escaped description")
	}
	if !strings.Contains(body, "A &amp; B") {
		t.Error("html body missing escaped category name")
	}
}

func TestRender_TruncationPerFormat(t *testing.T) {
	long := strings.Repeat("x", 120)
	s := testSummary()
	s.Recent = []report.RecentIssue{{Unit: "2C", Description: long, Status: "Pending"}}

	text := Render(s, channel.FormatText).Body
	if !strings.Contains(text, strings.Repeat("x", 50)+"...") {
		t.Error("text body missing 50-char truncated description")
	}
	if strings.Contains(text, strings.Repeat("x", 51)) {
		t.Error("text description longer than 50 chars")
	}

	html := Render(s, channel.FormatHTML).Body
	if !strings.Contains(html, strings.Repeat("x", 100)+"...") {
		t.Error("html body missing 100-char truncated description")
	}
}

func TestRender_TruncationKeepsValidUTF8(t *testing.T) {
	// A multi-byte rune straddling the byte limit must be dropped whole:
	// a body cut mid-rune is invalid UTF-8 and proto3 string fields
	// reject it at marshal time.
	s := testSummary()
	s.Recent = []report.RecentIssue{{
		Unit:        "2C",
		Description: strings.Repeat("a", 49) + "é stains on the ceiling",
		Status:      "Pending",
	}}

	text := Render(s, channel.FormatText).Body
	if !utf8.ValidString(text) {
		t.Error("text body contains invalid UTF-8")
	}
	if !strings.Contains(text, strings.Repeat("a", 49)+"...") {
		t.Errorf("rune at the limit not dropped whole:\n%s", text)
	}

	s.Recent[0].Description = strings.Repeat("a", 99) + "日本語の説明"
	html := Render(s, channel.FormatHTML).Body
	if !utf8.ValidString(html) {
		t.Error("html body contains invalid UTF-8")
	}
	if !strings.Contains(html, strings.Repeat("a", 99)+"...") {
		t.Errorf("rune at the limit not dropped whole:\n%s", html)
	}
}

func TestRender_NoEllipsisWhenShort(t *testing.T) {
	s := testSummary()
	s.Recent = []report.RecentIssue{{Unit: "2C", Description: "short", Status: "Pending"}}

	if body := Render(s, channel.FormatText).Body; strings.Contains(body, "short...") {
		t.Error("short description should not gain an ellipsis")
	}
}

func TestRender_Deterministic(t *testing.T) {
	s := testSummary()
	s.ByCategory = map[string]int{"Plumbing": 2, "Electrical": 2, "Noise": 1, "Other": 1}

	first := Render(s, channel.FormatText).Body
	for i := 0; i < 20; i++ {
		if got := Render(s, channel.FormatText).Body; got != first {
			t.Fatal("render output varies between calls")
		}
	}

	// ties break on name so equal counts still render in one order
	ei := strings.Index(first, "Electrical")
	pi := strings.Index(first, "Plumbing")
	if ei == -1 || pi == -1 || ei > pi {
		t.Errorf("tied categories out of order: Electrical at %d, Plumbing at %d", ei, pi)
	}
}

func TestRender_GeneratedAtUsesSummaryClock(t *testing.T) {
	s := testSummary()
	s.GeneratedAt = time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)

	if body := Render(s, channel.FormatText).Body; !strings.Contains(body, "Generated: 2030-01-02") {
		t.Error("generated date not taken from summary")
	}
}
