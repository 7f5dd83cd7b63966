package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Extractor is the external entity-recognition capability. Implementations
// must respect the caller's context deadline; extraction runs under the
// dispatcher's 30-second timeout.
type Extractor interface {
	Extract(ctx context.Context, title, text string) (*models.ExtractionResult, error)
}

const systemPrompt = `You extract a knowledge graph from Chinese economy news.
Return strict JSON with two arrays, "entities" and "relations".
Each entity: {"type": one of [institution, policy, industry, company, indicator, region, event], "name": surface form as written, "attributes": optional object (company: stock_code; policy: announce_date YYYY-MM-DD, sequence; indicator: unit)}.
Each relation: {"type": one of [ANNOUNCED, AFFECTS, BELONGS_TO, MENTIONS, REPORTS_ON, COVERS, CITES], "from": "Type:name", "to": "Type:name", "attributes": optional object (CITES: value, period)}.
Use "Article" as an endpoint type for relations anchored on the article itself.
Output JSON only.`

// OpenAIExtractor implements Extractor over the OpenAI chat completion
// API. A rate limiter in front of the API keeps a busy backlog from
// hammering the provider.
type OpenAIExtractor struct {
	client      *openai.Client
	model       string
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewOpenAIExtractor creates an extractor client. apiKey must come from
// configuration; it is never hardcoded or logged.
func NewOpenAIExtractor(apiKey, model string, requestsPerSecond float64) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extractor API key not configured")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	return &OpenAIExtractor{
		client:      openai.NewClient(apiKey),
		model:       model,
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:      slog.Default().With("component", "extractor"),
	}, nil
}

// Extract runs entity recognition over one article. Any provider error,
// malformed output, or context deadline surfaces to the caller; the
// dispatcher routes all of them through the retry controller.
func (e *OpenAIExtractor) Extract(ctx context.Context, title, text string) (*models.ExtractionResult, error) {
	if err := e.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Title: %s\n\n%s", title, text)},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction returned no choices")
	}

	result, err := ParseResult([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}

	e.logger.Debug("article extracted",
		"entities", len(result.Entities),
		"relations", len(result.Relations),
	)
	return result, nil
}
