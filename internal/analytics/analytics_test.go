package analytics

import (
	"testing"
	"time"

	"pageforge/api/internal/store"
)

func session(ip string, maxPage int, pages ...store.PageView) store.DocumentView {
	return store.DocumentView{
		ViewerInfo:     store.ViewerInfo{IPAddress: ip},
		PagesViewed:    pages,
		MaxPageReached: maxPage,
		TotalTimeSpent: sumTime(pages),
	}
}

func sumTime(pages []store.PageView) int {
	total := 0
	for _, p := range pages {
		total += p.TimeSpent
	}
	return total
}

func pv(n, seconds int) store.PageView {
	return store.PageView{PageNumber: n, TimeSpent: seconds, ScrollDepth: 50, Interactions: []string{"click"}}
}

func TestMergePageViewReplacesSamePageAndKeepsOrder(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	view := store.DocumentView{}

	MergePageView(&view, PageEvent{PageNumber: 3, TimeSpent: 10}, now)
	MergePageView(&view, PageEvent{PageNumber: 1, TimeSpent: 5, Downloaded: true}, now)
	MergePageView(&view, PageEvent{PageNumber: 3, TimeSpent: 25}, now)
	MergePageView(&view, PageEvent{PageNumber: 2, TimeSpent: 7}, now)

	if len(view.PagesViewed) != 3 {
		t.Fatalf("pages = %+v", view.PagesViewed)
	}
	for i, want := range []int{1, 2, 3} {
		if view.PagesViewed[i].PageNumber != want {
			t.Fatalf("page order = %+v", view.PagesViewed)
		}
	}
	if view.TotalTimeSpent != 5+7+25 {
		t.Fatalf("TotalTimeSpent = %d", view.TotalTimeSpent)
	}
	if view.CurrentPage != 2 || view.MaxPageReached != 3 {
		t.Fatalf("current = %d max = %d", view.CurrentPage, view.MaxPageReached)
	}
	if !view.Downloaded {
		t.Fatal("downloaded flag must stay set")
	}
	if !view.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v", view.UpdatedAt)
	}
}

func TestComputeEmptyIsAllZero(t *testing.T) {
	perf := Compute("doc_1", nil)
	if perf.TotalViews != 0 || perf.AverageTimeSpent != 0 || perf.CompletionRate != 0 ||
		perf.DownloadRate != 0 || perf.SignRate != 0 || perf.ViewerEngagement.AvgPagesPerSession != 0 {
		t.Fatalf("perf = %+v", perf)
	}
	if perf.PopularPages == nil {
		t.Fatal("popular pages must be an empty list")
	}
}

func TestComputeRatesAndPopularPages(t *testing.T) {
	views := []store.DocumentView{
		session("10.0.0.1", 2, pv(1, 30), pv(2, 60)),
		session("10.0.0.1", 1, pv(1, 10)),
		session("10.0.0.2", 3, pv(1, 5), pv(2, 5), pv(3, 90)),
	}
	views[0].CompletedViewing = true
	views[2].Downloaded = true
	views[2].Signed = true

	perf := Compute("doc_1", views)
	if perf.TotalViews != 3 || perf.UniqueViewers != 2 {
		t.Fatalf("views = %d unique = %d", perf.TotalViews, perf.UniqueViewers)
	}
	if perf.AverageTimeSpent != 66.67 {
		t.Fatalf("AverageTimeSpent = %v", perf.AverageTimeSpent)
	}
	if perf.CompletionRate != 33.33 || perf.DownloadRate != 33.33 || perf.SignRate != 33.33 {
		t.Fatalf("rates = %v %v %v", perf.CompletionRate, perf.DownloadRate, perf.SignRate)
	}
	if perf.DownloadCount != 1 {
		t.Fatalf("DownloadCount = %d", perf.DownloadCount)
	}
	if perf.PopularPages[0].PageNumber != 3 || perf.PopularPages[1].PageNumber != 2 {
		t.Fatalf("popular = %+v", perf.PopularPages)
	}
	if perf.ViewerEngagement.AvgPagesPerSession != 2 || perf.ViewerEngagement.TotalInteractions != 6 {
		t.Fatalf("engagement = %+v", perf.ViewerEngagement)
	}
}

func TestPageAnalyticsFlagsDropOff(t *testing.T) {
	// 10 sessions reach page 1, 9 reach page 2, 5 reach page 3, 5 reach page 4.
	var views []store.DocumentView
	for i := 0; i < 10; i++ {
		maxPage := 1
		switch {
		case i < 5:
			maxPage = 4
		case i < 9:
			maxPage = 2
		}
		var pages []store.PageView
		for n := 1; n <= maxPage; n++ {
			pages = append(pages, pv(n, 10))
		}
		views = append(views, session("ip", maxPage, pages...))
	}

	report := PageAnalytics("doc_1", 4, views)
	if report.TotalPages != 4 || len(report.PageAnalytics) != 4 {
		t.Fatalf("report = %+v", report)
	}
	reached := []int{10, 9, 5, 5}
	for i, want := range reached {
		if report.PageAnalytics[i].Reached != want {
			t.Fatalf("page %d reached = %d, want %d", i+1, report.PageAnalytics[i].Reached, want)
		}
	}
	flags := []bool{false, true, false, false}
	for i, want := range flags {
		if report.PageAnalytics[i].IsDropOffPoint != want {
			t.Fatalf("page %d drop-off = %v, want %v", i+1, report.PageAnalytics[i].IsDropOffPoint, want)
		}
	}
	if len(report.OverallAnalytics.DropOffPoints) != 1 || report.OverallAnalytics.DropOffPoints[0] != 2 {
		t.Fatalf("drop-off points = %v", report.OverallAnalytics.DropOffPoints)
	}
	if report.PageAnalytics[1].DropOffRate != 44.44 {
		t.Fatalf("page 2 drop-off rate = %v", report.PageAnalytics[1].DropOffRate)
	}
}

func TestPageAnalyticsLastPageNeverFlagged(t *testing.T) {
	views := []store.DocumentView{session("ip", 1, pv(1, 10))}
	report := PageAnalytics("doc_1", 1, views)
	if report.PageAnalytics[0].IsDropOffPoint {
		t.Fatal("last page must not be a drop-off point")
	}
}

func TestPageAnalyticsNoSessions(t *testing.T) {
	report := PageAnalytics("doc_1", 3, nil)
	for _, page := range report.PageAnalytics {
		if page.Reached != 0 || page.IsDropOffPoint || page.AverageTimeSpent != 0 {
			t.Fatalf("page = %+v", page)
		}
	}
	if report.OverallAnalytics.TotalSessions != 0 || report.OverallAnalytics.AverageCompletionRate != 0 {
		t.Fatalf("overall = %+v", report.OverallAnalytics)
	}
}

func TestPageAnalyticsIgnoresPagesBeyondDocument(t *testing.T) {
	views := []store.DocumentView{
		session("ip-1", 1<<40, pv(1, 10), pv(1<<40, 99)),
		session("ip-2", 2, pv(1, 5), pv(2, 5)),
	}
	report := PageAnalytics("doc_1", 2, views)
	if report.TotalPages != 2 || len(report.PageAnalytics) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if got := report.PageAnalytics[1].TotalViews; got != 1 {
		t.Fatalf("page 2 views = %d, want 1", got)
	}
	if got := report.PageAnalytics[0].AverageTimeSpent; got != 7.5 {
		t.Fatalf("page 1 average time = %v, want 7.5", got)
	}
}
