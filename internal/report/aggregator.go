package report

import (
	"sort"
	"strings"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/store"
)

const (
	// WindowDays is the reporting period length.
	WindowDays = 7
	// RecentLimit bounds the recent-issues list in every rendering.
	RecentLimit = 5
)

const (
	defaultUnit        = "N/A"
	defaultCategory    = "Uncategorized"
	defaultDescription = "No description"
	defaultStatus      = "Pending"
)

// Summary is the immutable weekly aggregate handed to the dispatcher.
// Aggregate builds a fresh value on every call; nothing mutates it after.
type Summary struct {
	WeekStart      time.Time
	WeekEnd        time.Time
	TotalIssues    int
	NewIssues      int
	ResolvedIssues int
	ByCategory     map[string]int
	ByStatus       map[string]int
	Recent         []RecentIssue
	GeneratedAt    time.Time
}

type RecentIssue struct {
	Unit        string
	Category    string
	Description string
	Status      string
	Reported    time.Time
}

// Aggregate reduces the full record set to the weekly summary for the
// half-open window [now-7d, now). It reads no clock beyond the supplied
// now, so identical input always yields an identical summary.
func Aggregate(issues []store.IssueRecord, now time.Time) Summary {
	weekStart := now.AddDate(0, 0, -WindowDays)

	s := Summary{
		WeekStart:   weekStart,
		WeekEnd:     now,
		TotalIssues: len(issues),
		ByCategory:  make(map[string]int),
		ByStatus:    make(map[string]int),
		GeneratedAt: now,
	}

	for _, issue := range issues {
		ts := issue.EffectiveTime()
		if ts.Before(weekStart) || !ts.Before(now) {
			continue
		}

		s.NewIssues++
		if strings.EqualFold(strings.TrimSpace(issue.Status), "resolved") {
			s.ResolvedIssues++
		}

		category := issue.Category
		if category == "" {
			category = defaultCategory
		}
		s.ByCategory[category]++

		status := issue.Status
		if status == "" {
			status = defaultStatus
		}
		s.ByStatus[status]++
	}

	s.Recent = recentIssues(issues)
	return s
}

// recentIssues returns the newest records across the whole store, not just
// the window, mirroring what the board shows on its front page. The sort is
// stable so records sharing a timestamp keep store order.
func recentIssues(issues []store.IssueRecord) []RecentIssue {
	sorted := make([]store.IssueRecord, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveTime().After(sorted[j].EffectiveTime())
	})

	limit := RecentLimit
	if len(sorted) < limit {
		limit = len(sorted)
	}

	recent := make([]RecentIssue, 0, limit)
	for _, issue := range sorted[:limit] {
		recent = append(recent, RecentIssue{
			Unit:        orDefault(issue.Unit, defaultUnit),
			Category:    orDefault(issue.Category, defaultCategory),
			Description: orDefault(issue.Description, defaultDescription),
			Status:      orDefault(issue.Status, defaultStatus),
			Reported:    issue.EffectiveTime(),
		})
	}
	return recent
}

func orDefault(val, def string) string {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}
