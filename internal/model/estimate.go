package model

// PageEstimate is the decoded response of a text estimation call. The model
// is instructed to return exactly this shape; fields missing from the reply
// decode to their zero values.
type PageEstimate struct {
	ProductCount int      `json:"product_count"`
	PageType     string   `json:"page_type"`
	Categories   []string `json:"categories"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence"`
	Reasoning    string   `json:"reasoning"`

	// Pagination signals. PaginationTotal is the model's estimate of the
	// product count across all pages of a paginated listing, not just the
	// excerpt it saw.
	HasPagination   bool `json:"has_pagination"`
	PaginationTotal int  `json:"pagination_total"`
}

// VisualEstimate is the decoded response of a screenshot estimation call.
type VisualEstimate struct {
	VisibleCount int      `json:"visible_count"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence"`
}

// Clamp forces confidence values into the 0-100 range the rest of the
// pipeline assumes.
func (e *PageEstimate) Clamp() {
	e.Confidence = clampConfidence(e.Confidence)
	if e.ProductCount < 0 {
		e.ProductCount = 0
	}
	if e.PaginationTotal < 0 {
		e.PaginationTotal = 0
	}
}

func (e *VisualEstimate) Clamp() {
	e.Confidence = clampConfidence(e.Confidence)
	if e.VisibleCount < 0 {
		e.VisibleCount = 0
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
