package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/model"
)

// OpenAIClient implements Estimator against the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	cfg    Config
	logger logging.Logger
}

var _ Estimator = (*OpenAIClient)(nil)

// NewOpenAIClient builds the default estimator. An empty API key is an error;
// there is no anonymous mode.
func NewOpenAIClient(cfg Config, logger logging.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("genai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "genai"}),
	}, nil
}

func (c *OpenAIClient) EstimatePage(ctx context.Context, url, title, excerpt string) (*model.PageEstimate, error) {
	start := time.Now()
	raw, err := c.complete(ctx, c.cfg.Model, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: pagePrompt(url, title, excerpt)},
	})
	if err != nil {
		return nil, fmt.Errorf("estimate page %s: %w", url, err)
	}

	var est model.PageEstimate
	if err := decodeJSONReply(raw, &est); err != nil {
		return nil, fmt.Errorf("estimate page %s: %w", url, err)
	}
	est.Clamp()

	c.logger.Debug("page estimate",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "count", Value: est.ProductCount},
		logging.Field{Key: "confidence", Value: est.Confidence},
		logging.Field{Key: "elapsed", Value: time.Since(start).String()})

	return &est, nil
}

func (c *OpenAIClient) EstimateScreenshot(ctx context.Context, url string, image []byte) (*model.VisualEstimate, error) {
	if len(image) == 0 {
		return nil, errors.New("genai: empty screenshot")
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	raw, err := c.complete(ctx, c.cfg.VisionModel, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: visualPrompt(url)},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("estimate screenshot %s: %w", url, err)
	}

	var est model.VisualEstimate
	if err := decodeJSONReply(raw, &est); err != nil {
		return nil, fmt.Errorf("estimate screenshot %s: %w", url, err)
	}
	est.Clamp()
	return &est, nil
}

func (c *OpenAIClient) Close() error { return nil }

func (c *OpenAIClient) complete(ctx context.Context, modelName string, msgs []openai.ChatCompletionMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// decodeJSONReply unmarshals a model reply, stripping markdown code fences
// some models wrap around JSON even when asked not to.
func decodeJSONReply(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}
