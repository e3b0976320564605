package analyzer

import (
	"fmt"

	"github.com/shelfscan/shelfscan/internal/model"
)

// uncategorized is the bucket for completed pages that list no category.
const uncategorized = "uncategorized"

// Aggregate folds per-page results into the final AnalysisResult.
//
// The total is the sum of completed pages' counts and the average confidence
// is the mean over completed pages (0 when none completed). Category totals
// partition the total: each completed page's count is attributed to its
// first-listed category only, so the per-category numbers sum to the total.
func Aggregate(pages []model.PageResult, discovered []string, method string) *model.AnalysisResult {
	var (
		total     int
		confSum   float64
		completed int
	)

	categoryTotals := map[string]int{}
	countsByPage := map[string]int{}

	for _, p := range pages {
		if p.Status != model.PageCompleted {
			continue
		}
		completed++
		total += p.ProductCount
		confSum += p.Confidence
		countsByPage[p.URL] = p.ProductCount

		primary := uncategorized
		if len(p.Categories) > 0 {
			primary = p.Categories[0]
		}
		categoryTotals[primary] += p.ProductCount
	}

	avgConfidence := 0.0
	if completed > 0 {
		avgConfidence = confSum / float64(completed)
	}

	status := model.ResultFailed
	switch {
	case completed == len(pages) && completed > 0:
		status = model.ResultCompleted
	case completed > 0:
		status = model.ResultPartial
	}

	if len(categoryTotals) == 0 {
		categoryTotals = nil
	}
	if len(countsByPage) == 0 {
		countsByPage = nil
	}

	return &model.AnalysisResult{
		TotalProducts:  total,
		PagesAnalyzed:  len(pages),
		PageResults:    pages,
		DiscoveredURLs: discovered,
		Summary: fmt.Sprintf("Estimated %d products across %d of %d analyzed pages (avg confidence %.0f%%)",
			total, completed, len(pages), avgConfidence),
		Status: status,
		Details: model.ResultDetails{
			CategoryTotals:    categoryTotals,
			Method:            method,
			AverageConfidence: avgConfidence,
			CountsByPage:      countsByPage,
		},
	}
}
