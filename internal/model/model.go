package model

import "time"

// RecordStatus is the lifecycle state of a persisted analysis record.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordAnalyzing RecordStatus = "analyzing"
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// PageStatus is the outcome of a single page's estimation.
type PageStatus string

const (
	PageCompleted PageStatus = "completed"
	PageFailed    PageStatus = "failed"
	PageSkipped   PageStatus = "skipped"
)

// ResultStatus is the overall outcome of an analysis run.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultPartial   ResultStatus = "partial"
	ResultFailed    ResultStatus = "failed"
)

// AnalysisRecord is the persisted record of one analysis run, owned by a user.
// It is created when the run starts and mutated exactly once on completion or
// failure; records are never deleted.
type AnalysisRecord struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	URL           string       `json:"url"`
	Status        RecordStatus `json:"status"`
	ProductCount  *int         `json:"product_count,omitempty"`
	ScreenshotRef string       `json:"screenshot_ref,omitempty"`
	Detail        string       `json:"detail,omitempty"` // serialized AnalysisResult
	Error         string       `json:"error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// PageResult is the per-URL outcome of product-count estimation. Immutable
// after creation.
type PageResult struct {
	URL          string     `json:"url"`
	Title        string     `json:"title,omitempty"`
	ProductCount int        `json:"product_count"`
	Categories   []string   `json:"categories,omitempty"`
	Confidence   float64    `json:"confidence"` // 0-100
	Evidence     []string   `json:"evidence,omitempty"`
	PageType     string     `json:"page_type,omitempty"`
	Status       PageStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// ResultDetails carries the aggregate breakdown attached to an AnalysisResult.
type ResultDetails struct {
	CategoryTotals    map[string]int `json:"category_totals,omitempty"`
	Method            string         `json:"method"`
	AverageConfidence float64        `json:"average_confidence"`
	CountsByPage      map[string]int `json:"counts_by_page,omitempty"`
}

// AnalysisResult is constructed once at the end of a run and read-only
// thereafter. For the multi-page flow TotalProducts equals the sum of the
// completed pages' counts and AverageConfidence is the mean of their
// confidences (0 when no page completed).
type AnalysisResult struct {
	TotalProducts  int           `json:"total_products"`
	PagesAnalyzed  int           `json:"pages_analyzed"`
	PageResults    []PageResult  `json:"page_results"`
	DiscoveredURLs []string      `json:"discovered_urls"`
	Summary        string        `json:"summary"`
	Status         ResultStatus  `json:"status"`
	Details        ResultDetails `json:"details"`
}

// Analysis method labels recorded in ResultDetails.Method.
const (
	MethodMultiPage  = "multi-page-text"
	MethodSinglePage = "single-page-combined"
)
