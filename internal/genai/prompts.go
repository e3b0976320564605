package genai

import (
	"fmt"
	"strings"
)

// The prompts pin the reply to a fixed JSON shape; the decoder tolerates
// missing keys by leaving them at their zero values.

const pageSchemaHint = `Respond with a single JSON object, no prose, using exactly these keys:
{
  "product_count": <integer, number of distinct purchasable products represented on THIS page>,
  "page_type": <"product"|"category"|"search"|"home"|"other">,
  "categories": [<product category names found on the page>],
  "confidence": <0-100>,
  "evidence": [<short quotes or signals supporting the count>],
  "reasoning": <one-sentence explanation>,
  "has_pagination": <true if the page is one of several pages of a listing>,
  "pagination_total": <integer, estimated product count across ALL pages of the listing, 0 if unknown>
}`

const visualSchemaHint = `Respond with a single JSON object, no prose, using exactly these keys:
{
  "visible_count": <integer, number of distinct products visible in the screenshot>,
  "confidence": <0-100>,
  "evidence": [<short visual signals supporting the count>]
}`

func pagePrompt(url, title, excerpt string) string {
	var b strings.Builder
	b.WriteString("You are analyzing one page of an e-commerce website to estimate how many products it represents.\n")
	b.WriteString("Count distinct purchasable products (listings, tiles, detail subjects). Ignore ads, recommendations of other sites, and navigation chrome.\n\n")
	fmt.Fprintf(&b, "URL: %s\n", url)
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	b.WriteString("\nPage text (truncated):\n\"\"\"\n")
	b.WriteString(excerpt)
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString(pageSchemaHint)
	return b.String()
}

func visualPrompt(url string) string {
	var b strings.Builder
	b.WriteString("This is a full-page screenshot of an e-commerce web page.\n")
	b.WriteString("Count the distinct products visible as tiles, cards or listings. Ignore logos, banners and navigation.\n\n")
	fmt.Fprintf(&b, "URL: %s\n\n", url)
	b.WriteString(visualSchemaHint)
	return b.String()
}
