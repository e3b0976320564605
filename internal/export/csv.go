// Package export renders analysis results as CSV downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shelfscan/shelfscan/internal/model"
)

// csvHeader is the fixed 8-column export schema.
var csvHeader = []string{
	"url", "title", "product_count", "page_type",
	"categories", "confidence", "status", "evidence",
}

// CSV flattens a result's page list into CSV bytes. A nil result or one with
// no pages yields (nil, nil): nothing to download. Quoting and escaping
// follow RFC 4180 via encoding/csv, so embedded quotes and separators in
// titles or evidence are safe.
func CSV(result *model.AnalysisResult) ([]byte, error) {
	if result == nil || len(result.PageResults) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}

	for _, p := range result.PageResults {
		row := []string{
			p.URL,
			p.Title,
			strconv.Itoa(p.ProductCount),
			p.PageType,
			strings.Join(p.Categories, "; "),
			strconv.FormatFloat(p.Confidence, 'f', 1, 64),
			string(p.Status),
			strings.Join(p.Evidence, "; "),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("export: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns the download file name for a given day:
// product-analysis-<YYYY-MM-DD>.csv
func Filename(now time.Time) string {
	return fmt.Sprintf("product-analysis-%s.csv", now.UTC().Format("2006-01-02"))
}
