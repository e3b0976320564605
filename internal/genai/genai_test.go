package genai

import (
	"strings"
	"testing"

	"github.com/shelfscan/shelfscan/internal/model"
	"github.com/shelfscan/shelfscan/internal/testutil"
)

func TestDecodeJSONReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    model.PageEstimate
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"product_count": 12, "page_type": "category", "confidence": 80}`,
			want: model.PageEstimate{ProductCount: 12, PageType: "category", Confidence: 80},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"product_count\": 5, \"confidence\": 50}\n```",
			want: model.PageEstimate{ProductCount: 5, Confidence: 50},
		},
		{
			name: "bare fence",
			raw:  "```\n{\"product_count\": 3}\n```",
			want: model.PageEstimate{ProductCount: 3},
		},
		{
			name: "missing keys default to zero values",
			raw:  `{}`,
			want: model.PageEstimate{},
		},
		{
			name:    "prose instead of json",
			raw:     "I think there are about 12 products.",
			wantErr: true,
		},
		{
			name:    "empty reply",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.PageEstimate
			err := decodeJSONReply(tt.raw, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeJSONReply(%q) = %+v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeJSONReply(%q): %v", tt.raw, err)
			}
			if got.ProductCount != tt.want.ProductCount || got.PageType != tt.want.PageType || got.Confidence != tt.want.Confidence {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPromptsCarrySchemaAndContent(t *testing.T) {
	t.Parallel()

	p := pagePrompt("https://shop.example.com/", "Shop", "lamp chair rug")
	for _, want := range []string{"https://shop.example.com/", "Shop", "lamp chair rug", "product_count", "pagination_total"} {
		if !strings.Contains(p, want) {
			t.Errorf("page prompt missing %q", want)
		}
	}

	v := visualPrompt("https://shop.example.com/")
	for _, want := range []string{"https://shop.example.com/", "visible_count", "confidence"} {
		if !strings.Contains(v, want) {
			t.Errorf("visual prompt missing %q", want)
		}
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIClient(Config{}, &testutil.DummyLogger{}); err == nil {
		t.Fatal("want error for missing api key")
	}

	c, err := NewOpenAIClient(Config{APIKey: "sk-test"}, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if c.cfg.Model != DefaultConfig().Model || c.cfg.VisionModel != c.cfg.Model {
		t.Errorf("defaults not applied: %+v", c.cfg)
	}
}
