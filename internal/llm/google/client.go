package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"loginsight/internal/config"
	"loginsight/internal/llm"
	"loginsight/internal/model"
)

const defaultModel = "gemini-1.5-flash"

// Client implements llm.Provider against the Gemini GenerateContent API.
type Client struct {
	client      *genai.Client
	model       string
	maxRetries  int
	retryBase   time.Duration
	httpOptions genai.HTTPOptions
}

func New(cfg config.GoogleConfig, llmCfg config.LLMConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}

	return &Client{
		client:      client,
		model:       model,
		maxRetries:  llmCfg.MaxRetries,
		retryBase:   llmCfg.RetryBaseDelay,
		httpOptions: httpOpts,
	}, nil
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
	ctx, span := llm.StartRequestSpan(ctx, "Google Complete", modelName, 0, 1)
	defer span.End()
	llm.LogRedactedPrompt(ctx, user)
	var text string
	var usage llm.Usage
	err := llm.WithRetry(ctx, c.maxRetries, c.retryBase, func() error {
		contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}
		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
		resp, err := c.client.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err != nil {
			return fmt.Errorf("google complete: %w", err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return fmt.Errorf("google complete: empty response")
		}
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		text = sb.String()
		usage = llm.Usage{Model: modelName, RequestCount: 1}
		if resp.UsageMetadata != nil {
			usage.TokenInput = int(resp.UsageMetadata.PromptTokenCount)
			usage.TokenOutput = int(resp.UsageMetadata.CandidatesTokenCount)
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
