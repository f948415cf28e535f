package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"loginsight/internal/config"
	"loginsight/internal/llm"
	"loginsight/internal/model"
)

const defaultModel = "gpt-4o-mini"

// Client implements llm.Provider against the OpenAI Chat Completions API.
type Client struct {
	sdk        sdk.Client
	model      string
	maxRetries int
	retryBase  time.Duration
}

func New(cfg config.OpenAIConfig, llmCfg config.LLMConfig, httpClient *http.Client) *Client {
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
		model = defaultModel
	}
	return &Client{
		sdk:        sdk.NewClient(opts...),
		model:      model,
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
	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Complete", modelName, 0, 1)
	defer span.End()
	llm.LogRedactedPrompt(ctx, user)
	var text string
	var usage llm.Usage
	err := llm.WithRetry(ctx, c.maxRetries, c.retryBase, func() error {
		params := sdk.ChatCompletionNewParams{
			Model: sdk.ChatModel(modelName),
			Messages: []sdk.ChatCompletionMessageParamUnion{
				sdk.SystemMessage(system),
				sdk.UserMessage(user),
			},
		}
		comp, err := c.sdk.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("openai complete: %w", err)
		}
		if len(comp.Choices) > 0 {
			text = comp.Choices[0].Message.Content
		}
		usage = llm.Usage{
			Model:        modelName,
			TokenInput:   int(comp.Usage.PromptTokens),
			TokenOutput:  int(comp.Usage.CompletionTokens),
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
