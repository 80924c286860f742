// Package analytics folds page-view events into sessions and derives
// per-document statistics from them.
package analytics

import (
	"sort"
	"time"

	"pageforge/api/internal/store"
)

// PageEvent is one page-view report from a viewer.
type PageEvent struct {
	PageNumber     int
	TimeSpent      int
	ScrollDepth    float64
	Interactions   []string
	ClickPositions []store.Point
	EnteredAt      *time.Time
	ExitedAt       *time.Time
	Completed      bool
	Downloaded     bool
	Signed         bool
}

// MergePageView applies event to view. An entry for the same page is
// replaced, the list stays ordered by page number and terminal flags never
// reset once set.
func MergePageView(view *store.DocumentView, event PageEvent, now time.Time) {
	interactions := event.Interactions
	if interactions == nil {
		interactions = []string{}
	}
	entry := store.PageView{
		PageNumber:     event.PageNumber,
		TimeSpent:      max(event.TimeSpent, 0),
		ScrollDepth:    event.ScrollDepth,
		Interactions:   interactions,
		ClickPositions: event.ClickPositions,
		EnteredAt:      event.EnteredAt,
		ExitedAt:       event.ExitedAt,
	}

	replaced := false
	for i := range view.PagesViewed {
		if view.PagesViewed[i].PageNumber == event.PageNumber {
			view.PagesViewed[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		view.PagesViewed = append(view.PagesViewed, entry)
	}
	sort.SliceStable(view.PagesViewed, func(i, j int) bool {
		return view.PagesViewed[i].PageNumber < view.PagesViewed[j].PageNumber
	})

	total := 0
	for _, page := range view.PagesViewed {
		total += page.TimeSpent
	}
	view.TotalTimeSpent = total
	view.CurrentPage = event.PageNumber
	view.MaxPageReached = max(view.MaxPageReached, event.PageNumber)
	view.CompletedViewing = view.CompletedViewing || event.Completed
	view.Downloaded = view.Downloaded || event.Downloaded
	view.Signed = view.Signed || event.Signed
	view.UpdatedAt = now
}
