package analytics

import (
	"math"
	"sort"

	"pageforge/api/internal/store"
)

// dropOffRatio flags page N when fewer than this share of its sessions reach N+1.
const dropOffRatio = 0.7

type PopularPage struct {
	PageNumber int `json:"page_number"`
	TotalTime  int `json:"total_time"`
	Views      int `json:"views"`
}

type Engagement struct {
	AvgScrollDepth     float64 `json:"avg_scroll_depth"`
	AvgPagesPerSession float64 `json:"avg_pages_per_session"`
	TotalInteractions  int     `json:"total_interactions"`
}

type Performance struct {
	DocumentID       string        `json:"document_id"`
	TotalViews       int           `json:"total_views"`
	UniqueViewers    int           `json:"unique_viewers"`
	AverageTimeSpent float64       `json:"average_time_spent"`
	CompletionRate   float64       `json:"completion_rate"`
	DownloadRate     float64       `json:"download_rate"`
	SignRate         float64       `json:"sign_rate"`
	DownloadCount    int           `json:"download_count"`
	PopularPages     []PopularPage `json:"popular_pages"`
	ViewerEngagement Engagement    `json:"viewer_engagement"`
}

type PageStats struct {
	PageNumber         int     `json:"page_number"`
	TotalViews         int     `json:"total_views"`
	UniqueViewers      int     `json:"unique_viewers"`
	AverageTimeSpent   float64 `json:"average_time_spent"`
	AverageScrollDepth float64 `json:"average_scroll_depth"`
	TotalInteractions  int     `json:"total_interactions"`
	Reached            int     `json:"reached"`
	CompletionRate     float64 `json:"completion_rate"`
	DropOffRate        float64 `json:"drop_off_rate"`
	IsDropOffPoint     bool    `json:"is_drop_off_point"`
}

type Overall struct {
	TotalSessions         int     `json:"total_sessions"`
	AverageCompletionRate float64 `json:"average_completion_rate"`
	DropOffPoints         []int   `json:"drop_off_points"`
}

type PageReport struct {
	DocumentID       string      `json:"document_id"`
	TotalPages       int         `json:"total_pages"`
	PageAnalytics    []PageStats `json:"page_analytics"`
	OverallAnalytics Overall     `json:"overall_analytics"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ratio returns part/whole as a value in [0,1], and 0 for an empty whole.
func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func percent(part, whole int) float64 {
	return round2(ratio(part, whole) * 100)
}

func Compute(documentID string, views []store.DocumentView) Performance {
	perf := Performance{
		DocumentID:   documentID,
		TotalViews:   len(views),
		PopularPages: []PopularPage{},
	}
	if len(views) == 0 {
		return perf
	}

	ips := make(map[string]struct{})
	byPage := make(map[int]*PopularPage)
	var (
		totalTime, completed, downloaded, signed int
		pageEntries, interactions                int
		scrollSum                                float64
	)
	for _, view := range views {
		if view.ViewerInfo.IPAddress != "" {
			ips[view.ViewerInfo.IPAddress] = struct{}{}
		}
		totalTime += view.TotalTimeSpent
		if view.CompletedViewing {
			completed++
		}
		if view.Downloaded {
			downloaded++
		}
		if view.Signed {
			signed++
		}
		for _, page := range view.PagesViewed {
			pageEntries++
			scrollSum += page.ScrollDepth
			interactions += len(page.Interactions)
			popular, ok := byPage[page.PageNumber]
			if !ok {
				popular = &PopularPage{PageNumber: page.PageNumber}
				byPage[page.PageNumber] = popular
			}
			popular.TotalTime += page.TimeSpent
			popular.Views++
		}
	}

	sessions := len(views)
	perf.UniqueViewers = len(ips)
	perf.AverageTimeSpent = round2(ratio(totalTime, sessions))
	perf.CompletionRate = percent(completed, sessions)
	perf.DownloadRate = percent(downloaded, sessions)
	perf.SignRate = percent(signed, sessions)
	perf.DownloadCount = downloaded

	for _, popular := range byPage {
		perf.PopularPages = append(perf.PopularPages, *popular)
	}
	sort.Slice(perf.PopularPages, func(i, j int) bool {
		a, b := perf.PopularPages[i], perf.PopularPages[j]
		if a.TotalTime != b.TotalTime {
			return a.TotalTime > b.TotalTime
		}
		return a.PageNumber < b.PageNumber
	})
	if len(perf.PopularPages) > 5 {
		perf.PopularPages = perf.PopularPages[:5]
	}

	if pageEntries > 0 {
		perf.ViewerEngagement.AvgScrollDepth = round2(scrollSum / float64(pageEntries))
	}
	perf.ViewerEngagement.AvgPagesPerSession = round2(ratio(pageEntries, sessions))
	perf.ViewerEngagement.TotalInteractions = interactions
	return perf
}

// PageAnalytics reports per-page statistics for pages 1..totalPages, the
// document's own page count. Recorded entries outside that range are ignored.
func PageAnalytics(documentID string, totalPages int, views []store.DocumentView) PageReport {
	totalPages = max(totalPages, 0)

	report := PageReport{
		DocumentID:    documentID,
		TotalPages:    totalPages,
		PageAnalytics: make([]PageStats, 0, totalPages),
		OverallAnalytics: Overall{
			TotalSessions: len(views),
			DropOffPoints: []int{},
		},
	}

	sessions := len(views)
	for n := 1; n <= totalPages; n++ {
		stats := PageStats{PageNumber: n}
		ips := make(map[string]struct{})
		var timeSum int
		var scrollSum float64
		for _, view := range views {
			seen := false
			for _, page := range view.PagesViewed {
				if page.PageNumber != n {
					continue
				}
				seen = true
				stats.TotalViews++
				timeSum += page.TimeSpent
				scrollSum += page.ScrollDepth
				stats.TotalInteractions += len(page.Interactions)
				if view.ViewerInfo.IPAddress != "" {
					ips[view.ViewerInfo.IPAddress] = struct{}{}
				}
			}
			if seen || view.MaxPageReached >= n {
				stats.Reached++
			}
		}
		stats.UniqueViewers = len(ips)
		stats.AverageTimeSpent = round2(ratio(timeSum, stats.TotalViews))
		if stats.TotalViews > 0 {
			stats.AverageScrollDepth = round2(scrollSum / float64(stats.TotalViews))
		}
		stats.CompletionRate = percent(stats.Reached, sessions)
		report.PageAnalytics = append(report.PageAnalytics, stats)
	}

	var completionSum float64
	for i := range report.PageAnalytics {
		current := &report.PageAnalytics[i]
		completionSum += current.CompletionRate
		if i == len(report.PageAnalytics)-1 || current.Reached == 0 {
			continue
		}
		next := report.PageAnalytics[i+1]
		current.DropOffRate = round2(max(0, 1-ratio(next.Reached, current.Reached)) * 100)
		if float64(next.Reached) < dropOffRatio*float64(current.Reached) {
			current.IsDropOffPoint = true
			report.OverallAnalytics.DropOffPoints = append(report.OverallAnalytics.DropOffPoints, current.PageNumber)
		}
	}
	if len(report.PageAnalytics) > 0 {
		report.OverallAnalytics.AverageCompletionRate = round2(completionSum / float64(len(report.PageAnalytics)))
	}
	return report
}
