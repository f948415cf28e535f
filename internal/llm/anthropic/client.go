package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"loginsight/internal/config"
	"loginsight/internal/llm"
	"loginsight/internal/model"
)

const defaultMaxTokens int64 = 2048

// Client implements llm.Provider against the Anthropic Messages API.
type Client struct {
	sdk        anthropic.Client
	model      string
	maxTokens  int64
	maxRetries int
	retryBase  time.Duration
}

func New(cfg config.AnthropicConfig, llmCfg config.LLMConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{
		sdk:        anthropic.NewClient(opts...),
		model:      model,
		maxTokens:  defaultMaxTokens,
		maxRetries: llmCfg.MaxRetries,
		retryBase:  llmCfg.RetryBaseDelay,
	}
}

func (c *Client) pickModel(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return c.model
}

func (c *Client) ScoreBatch(ctx context.Context, modelOverride string, events []model.Event, criteria []model.Criterion) ([]llm.ScoreVector, llm.Usage, error) {
	eventIDs := make([]string, len(events))
	for i, e := range events {
		eventIDs[i] = e.ID
	}
	prompt := llm.BuildScoringPrompt(events, criteria)
	text, usage, err := c.complete(ctx, modelOverride, llm.DefaultScoringSystemPrompt(), prompt)
	if err != nil {
		return nil, usage, err
	}
	vectors, err := llm.ParseScoreResponse(text, eventIDs)
	return vectors, usage, err
}

func (c *Client) MetaAnalyze(ctx context.Context, modelOverride string, systemID string, windowEvents []model.Event, priorSummaries []model.MetaResult, maxContext int) (model.MetaResult, llm.Usage, error) {
	prompt := llm.BuildMetaPrompt(windowEvents, priorSummaries, maxContext)
	text, usage, err := c.complete(ctx, modelOverride, llm.DefaultMetaSystemPrompt(), prompt)
	if err != nil {
		return model.MetaResult{}, usage, err
	}
	mr, err := llm.ParseMetaResponse(text, "")
	return mr, usage, err
}

func (c *Client) complete(ctx context.Context, modelOverride, system, user string) (string, llm.Usage, error) {
	modelName := c.pickModel(modelOverride)
	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Complete", modelName, 0, 1)
	defer span.End()
	llm.LogRedactedPrompt(ctx, user)
	var text string
	var usage llm.Usage
	err := llm.WithRetry(ctx, c.maxRetries, c.retryBase, func() error {
		resp, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(modelName),
			MaxTokens: c.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			return fmt.Errorf("anthropic complete: %w", err)
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				sb.WriteString(tb.Text)
			}
		}
		text = sb.String()
		usage = llm.Usage{
			Model:        modelName,
			TokenInput:   int(resp.Usage.InputTokens),
			TokenOutput:  int(resp.Usage.OutputTokens),
			RequestCount: 1,
		}
		usage.CostEstimate = llm.EstimateCost(modelName, usage.TokenInput, usage.TokenOutput)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return text, usage, err
	}
	llm.LogRedactedResponse(ctx, text)
	llm.RecordTokenMetrics(modelName, usage.TokenInput, usage.TokenOutput)
	llm.RecordTokenAttributes(span, usage.TokenInput, usage.TokenOutput, usage.TokenInput+usage.TokenOutput)
	return text, usage, err
}
