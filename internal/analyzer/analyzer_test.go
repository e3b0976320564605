package analyzer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shelfscan/shelfscan/internal/analyzer"
	"github.com/shelfscan/shelfscan/internal/model"
	"github.com/shelfscan/shelfscan/internal/scrape"
	"github.com/shelfscan/shelfscan/internal/testutil"
)

func longText(n int) string {
	return strings.Repeat("product lamp chair rug shelf ", n/29+1)[:n]
}

func newAnalyzer(pages *testutil.DummyPageSource, disc *testutil.DummyDiscoverer, est *testutil.DummyEstimator, pacer analyzer.Pacer) *analyzer.Analyzer {
	cfg := analyzer.DefaultConfig()
	return analyzer.New(cfg, pages, disc, est, pacer, &testutil.DummyLogger{})
}

func TestAnalyzeSiteSumsCompletedPages(t *testing.T) {
	t.Parallel()

	base := "https://shop.example.com/"
	cat := "https://shop.example.com/category/lamps"

	pages := &testutil.DummyPageSource{
		Pages: map[string]*scrape.PageContent{
			base: {URL: base, Title: "Shop", Text: longText(500)},
			cat:  {URL: cat, Title: "Lamps", Text: longText(500)},
		},
	}
	disc := &testutil.DummyDiscoverer{URLs: []string{base, cat}}
	est := &testutil.DummyEstimator{
		Estimates: map[string]*model.PageEstimate{
			base: {ProductCount: 4, PageType: "other", Categories: []string{"misc"}, Confidence: 60},
			cat:  {ProductCount: 6, PageType: "category", Categories: []string{"lamps"}, Confidence: 80},
		},
	}
	pacer := &testutil.CountingPacer{}

	res, err := newAnalyzer(pages, disc, est, pacer).AnalyzeSite(context.Background(), base, nil)
	if err != nil {
		t.Fatalf("AnalyzeSite: %v", err)
	}

	if res.TotalProducts != 10 {
		t.Errorf("TotalProducts = %d, want 10", res.TotalProducts)
	}
	if res.Status != model.ResultCompleted {
		t.Errorf("Status = %q, want completed", res.Status)
	}
	if res.Details.AverageConfidence != 70 {
		t.Errorf("AverageConfidence = %v, want 70", res.Details.AverageConfidence)
	}
	if res.Details.CategoryTotals["lamps"] != 6 || res.Details.CategoryTotals["misc"] != 4 {
		t.Errorf("CategoryTotals = %v", res.Details.CategoryTotals)
	}
	// The pacer sits between pages, so one wait for two pages.
	if pacer.Waits != 1 {
		t.Errorf("pacer waits = %d, want 1", pacer.Waits)
	}
}

func TestAnalyzeSitePartialOnPageFailure(t *testing.T) {
	t.Parallel()

	good := "https://shop.example.com/"
	bad := "https://shop.example.com/broken"

	pages := &testutil.DummyPageSource{
		Pages: map[string]*scrape.PageContent{
			good: {URL: good, Title: "Shop", Text: longText(500)},
		},
		FailURLs: map[string]bool{bad: true},
	}
	disc := &testutil.DummyDiscoverer{URLs: []string{good, bad}}
	est := &testutil.DummyEstimator{
		Estimates: map[string]*model.PageEstimate{
			good: {ProductCount: 7, Confidence: 90},
		},
	}

	res, err := newAnalyzer(pages, disc, est, &testutil.CountingPacer{}).AnalyzeSite(context.Background(), good, nil)
	if err != nil {
		t.Fatalf("AnalyzeSite: %v", err)
	}

	if res.Status != model.ResultPartial {
		t.Errorf("Status = %q, want partial", res.Status)
	}
	if res.TotalProducts != 7 {
		t.Errorf("TotalProducts = %d, want 7", res.TotalProducts)
	}

	var failed *model.PageResult
	for i := range res.PageResults {
		if res.PageResults[i].URL == bad {
			failed = &res.PageResults[i]
		}
	}
	if failed == nil {
		t.Fatal("failed page missing from results")
	}
	if failed.Status != model.PageFailed || failed.Error == "" {
		t.Errorf("failed page = %+v, want failed status with error message", failed)
	}
	if failed.ProductCount != 0 {
		t.Errorf("failed page count = %d, want 0", failed.ProductCount)
	}
}

func TestAnalyzeSiteShortContentSkipsModel(t *testing.T) {
	t.Parallel()

	url := "https://shop.example.com/"
	pages := &testutil.DummyPageSource{
		Pages: map[string]*scrape.PageContent{
			url: {URL: url, Title: "Thin", Text: "nearly empty"},
		},
	}
	est := &testutil.DummyEstimator{}

	res, err := newAnalyzer(pages, &testutil.DummyDiscoverer{}, est, &testutil.CountingPacer{}).AnalyzeSite(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("AnalyzeSite: %v", err)
	}

	if len(est.PageCalls) != 0 {
		t.Errorf("model called %d times for below-threshold content, want 0", len(est.PageCalls))
	}
	if res.Status != model.ResultFailed {
		t.Errorf("Status = %q, want failed", res.Status)
	}
	if got := res.PageResults[0].Error; got != analyzer.ErrContentTooShort.Error() {
		t.Errorf("page error = %q", got)
	}
}

func TestAnalyzeSiteCancellationReturnsPartial(t *testing.T) {
	t.Parallel()

	a := "https://shop.example.com/"
	b := "https://shop.example.com/category/rugs"

	pages := &testutil.DummyPageSource{
		Pages: map[string]*scrape.PageContent{
			a: {URL: a, Text: longText(500)},
			b: {URL: b, Text: longText(500)},
		},
	}
	est := &testutil.DummyEstimator{
		Estimates: map[string]*model.PageEstimate{
			a: {ProductCount: 3, Confidence: 50},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	anl := newAnalyzer(pages, &testutil.DummyDiscoverer{URLs: []string{a, b}}, est, &testutil.CountingPacer{})

	// Cancel after the first page via the progress callback.
	res, err := anl.AnalyzeSite(ctx, a, func(processed, total int) {
		if processed == 1 {
			cancel()
		}
	})
	if err == nil {
		t.Fatal("want cancellation error")
	}
	if res == nil {
		t.Fatal("want partial result alongside cancellation error")
	}
	if len(res.PageResults) != 1 {
		t.Errorf("pages analyzed before cancel = %d, want 1", len(res.PageResults))
	}
	if res.TotalProducts != 3 {
		t.Errorf("TotalProducts = %d, want 3", res.TotalProducts)
	}
}

func TestAnalyzePageCombinesTextAndVisual(t *testing.T) {
	t.Parallel()

	url := "https://shop.example.com/category/chairs"
	pages := &testutil.DummyPageSource{
		Pages: map[string]*scrape.PageContent{
			url: {URL: url, Title: "Chairs", Text: longText(500)},
		},
		Shot: []byte("png-bytes"),
	}
	est := &testutil.DummyEstimator{
		Estimates: map[string]*model.PageEstimate{
			url: {ProductCount: 5, PageType: "category", Categories: []string{"chairs"}, Confidence: 60, HasPagination: true, PaginationTotal: 20},
		},
		Visuals: map[string]*model.VisualEstimate{
			url: {VisibleCount: 7, Confidence: 80},
		},
	}

	res, shot, err := newAnalyzer(pages, &testutil.DummyDiscoverer{}, est, analyzer.NopPacer{}).AnalyzePage(context.Background(), url)
	if err != nil {
		t.Fatalf("AnalyzePage: %v", err)
	}

	// Pagination total wins over the on-page count, then the visual surplus
	// over the text on-page count is added: 20 + (7-5) = 22.
	if res.TotalProducts != 22 {
		t.Errorf("TotalProducts = %d, want 22", res.TotalProducts)
	}
	if res.Details.Method != model.MethodSinglePage {
		t.Errorf("Method = %q", res.Details.Method)
	}
	if res.PageResults[0].Confidence != 70 {
		t.Errorf("Confidence = %v, want 70", res.PageResults[0].Confidence)
	}
	if string(shot) != "png-bytes" {
		t.Errorf("screenshot bytes not returned")
	}
}

func TestAnalyzePageAbortsOnVisualFailure(t *testing.T) {
	t.Parallel()

	url := "https://shop.example.com/"
	pages := &testutil.DummyPageSource{
		Pages: map[string]*scrape.PageContent{
			url: {URL: url, Text: longText(500)},
		},
		ShotErr: context.DeadlineExceeded,
	}
	est := &testutil.DummyEstimator{}

	res, _, err := newAnalyzer(pages, &testutil.DummyDiscoverer{}, est, analyzer.NopPacer{}).AnalyzePage(context.Background(), url)
	if err == nil {
		t.Fatal("want error when the screenshot fails")
	}
	if res != nil {
		t.Errorf("want nil result on combined-flow failure, got %+v", res)
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     model.PageEstimate
		visual   model.VisualEstimate
		want     int
		wantConf float64
	}{
		{
			name:     "pagination beats on-page count, visual surplus added",
			text:     model.PageEstimate{ProductCount: 5, PaginationTotal: 20, Confidence: 60},
			visual:   model.VisualEstimate{VisibleCount: 7, Confidence: 80},
			want:     22,
			wantConf: 70,
		},
		{
			name:     "text count stands when pagination smaller",
			text:     model.PageEstimate{ProductCount: 30, PaginationTotal: 10, Confidence: 50},
			visual:   model.VisualEstimate{VisibleCount: 12, Confidence: 50},
			want:     30,
			wantConf: 50,
		},
		{
			name:     "visual below text adds nothing",
			text:     model.PageEstimate{ProductCount: 8, Confidence: 100},
			visual:   model.VisualEstimate{VisibleCount: 3, Confidence: 0},
			want:     8,
			wantConf: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, conf := analyzer.Reconcile(&tt.text, &tt.visual)
			if count != tt.want {
				t.Errorf("count = %d, want %d", count, tt.want)
			}
			if conf != tt.wantConf {
				t.Errorf("confidence = %v, want %v", conf, tt.wantConf)
			}
		})
	}
}

func TestAggregateNoCompletedPages(t *testing.T) {
	t.Parallel()

	pages := []model.PageResult{
		{URL: "a", Status: model.PageFailed, Error: "x"},
		{URL: "b", Status: model.PageFailed, Error: "y"},
	}
	res := analyzer.Aggregate(pages, []string{"a", "b"}, model.MethodMultiPage)

	if res.Status != model.ResultFailed {
		t.Errorf("Status = %q, want failed", res.Status)
	}
	if res.TotalProducts != 0 || res.Details.AverageConfidence != 0 {
		t.Errorf("totals = %d/%v, want zero", res.TotalProducts, res.Details.AverageConfidence)
	}
	if res.Details.CategoryTotals != nil {
		t.Errorf("CategoryTotals = %v, want nil", res.Details.CategoryTotals)
	}
}

func TestAggregateCategoryPartition(t *testing.T) {
	t.Parallel()

	pages := []model.PageResult{
		{URL: "a", ProductCount: 10, Categories: []string{"lamps", "sale"}, Status: model.PageCompleted, Confidence: 80},
		{URL: "b", ProductCount: 5, Status: model.PageCompleted, Confidence: 40},
	}
	res := analyzer.Aggregate(pages, []string{"a", "b"}, model.MethodMultiPage)

	// Per-category numbers must sum to the total: each page counts toward its
	// first-listed category only.
	if res.Details.CategoryTotals["lamps"] != 10 {
		t.Errorf("lamps = %d, want 10", res.Details.CategoryTotals["lamps"])
	}
	if res.Details.CategoryTotals["uncategorized"] != 5 {
		t.Errorf("uncategorized = %d, want 5", res.Details.CategoryTotals["uncategorized"])
	}
	sum := 0
	for _, v := range res.Details.CategoryTotals {
		sum += v
	}
	if sum != res.TotalProducts {
		t.Errorf("category totals sum %d != total %d", sum, res.TotalProducts)
	}
}
