// Package report compares two analysis runs of the same site, answering
// "what changed since last time": per-URL count deltas plus a text diff of
// the run summaries.
package report

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/shelfscan/shelfscan/internal/model"
)

// PageDelta is a per-URL count change between two runs.
type PageDelta struct {
	URL    string `json:"url"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	Delta  int    `json:"delta"`
}

// Comparison is the result of comparing an older run (before) with a newer
// one (after).
type Comparison struct {
	BeforeTotal int `json:"before_total"`
	AfterTotal  int `json:"after_total"`
	TotalDelta  int `json:"total_delta"`

	// AddedPages / RemovedPages are URLs present in only one of the runs.
	AddedPages   []string `json:"added_pages,omitempty"`
	RemovedPages []string `json:"removed_pages,omitempty"`

	// ChangedPages are URLs whose completed count differs between runs.
	ChangedPages []PageDelta `json:"changed_pages,omitempty"`

	// SummaryPatch is a patch-format text diff of the two run summaries.
	SummaryPatch string `json:"summary_patch,omitempty"`
}

// Compare diffs two results. Only completed pages participate; failed pages
// carry no counts.
func Compare(before, after *model.AnalysisResult) *Comparison {
	cmp := &Comparison{
		BeforeTotal: before.TotalProducts,
		AfterTotal:  after.TotalProducts,
		TotalDelta:  after.TotalProducts - before.TotalProducts,
	}

	beforeCounts := completedCounts(before)
	afterCounts := completedCounts(after)

	for url, b := range beforeCounts {
		a, ok := afterCounts[url]
		switch {
		case !ok:
			cmp.RemovedPages = append(cmp.RemovedPages, url)
		case a != b:
			cmp.ChangedPages = append(cmp.ChangedPages, PageDelta{URL: url, Before: b, After: a, Delta: a - b})
		}
	}
	for url := range afterCounts {
		if _, ok := beforeCounts[url]; !ok {
			cmp.AddedPages = append(cmp.AddedPages, url)
		}
	}

	sort.Strings(cmp.AddedPages)
	sort.Strings(cmp.RemovedPages)
	sort.Slice(cmp.ChangedPages, func(i, j int) bool { return cmp.ChangedPages[i].URL < cmp.ChangedPages[j].URL })

	if before.Summary != after.Summary {
		dmp := diffmatchpatch.New()
		patches := dmp.PatchMake(before.Summary, after.Summary)
		cmp.SummaryPatch = dmp.PatchToText(patches)
	}

	return cmp
}

func completedCounts(res *model.AnalysisResult) map[string]int {
	out := make(map[string]int, len(res.PageResults))
	for _, p := range res.PageResults {
		if p.Status == model.PageCompleted {
			out[p.URL] = p.ProductCount
		}
	}
	return out
}
