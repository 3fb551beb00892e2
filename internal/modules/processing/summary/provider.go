package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	appcfg "github.com/dialect-so/core/internal/config"
)

// Fixed generation parameters for summarization runs.
const (
	genTemperature     = 0.3
	genMaxTokens       = 800
	genTopP            = 0.95
	genPresencePenalty = 0.1
)

type generation struct {
	Summary    string
	TokenCount int
}

func isAnthropicProviderType(raw string) bool {
	return strings.ToLower(strings.TrimSpace(raw)) == "anthropic"
}

// generateSummary runs one LLM call against the configured provider.
func generateSummary(ctx context.Context, provider *appcfg.AIProvider, text string) (*generation, error) {
	if provider == nil {
		return nil, errors.New("no AI provider configured")
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		return nil, errors.New("AI provider api key is empty")
	}

	if isAnthropicProviderType(provider.Type) {
		return callAnthropic(ctx, provider, text)
	}
	return callOpenAICompatibleChatCompletions(ctx, provider, text)
}

func callOpenAICompatibleChatCompletions(ctx context.Context, provider *appcfg.AIProvider, text string) (*generation, error) {
	endpoint := normalizeOpenAICompatibleEndpoint(provider.Endpoint)
	model := strings.TrimSpace(provider.Model)
	if model == "" {
		model = "deepseek-chat"
	}

	body, _ := json.Marshal(map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": summarySystemPrompt},
			{"role": "user", "content": buildSummaryUserPrompt(text)},
		},
		"temperature":      genTemperature,
		"max_tokens":       genMaxTokens,
		"top_p":            genTopP,
		"presence_penalty": genPresencePenalty,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(provider.APIKey))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("summary API error: %s %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return nil, fmt.Errorf("summary API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return nil, errors.New("empty response from AI")
	}

	return &generation{
		Summary:    result.Choices[0].Message.Content,
		TokenCount: result.Usage.TotalTokens,
	}, nil
}

func callAnthropic(ctx context.Context, provider *appcfg.AIProvider, text string) (*generation, error) {
	model := strings.TrimSpace(provider.Model)
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(provider.APIKey)),
		anthropicoption.WithMaxRetries(0),
	}
	if endpoint := strings.TrimSpace(provider.Endpoint); endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
	}
	client := anthropicclient.NewClient(opts...)

	msg, err := client.Messages.New(ctx, anthropicclient.MessageNewParams{
		Model:       anthropicclient.Model(model),
		MaxTokens:   genMaxTokens,
		Temperature: anthropicclient.Float(genTemperature),
		TopP:        anthropicclient.Float(genTopP),
		System: []anthropicclient.TextBlockParam{
			{Text: summarySystemPrompt},
		},
		Messages: []anthropicclient.MessageParam{
			anthropicclient.NewUserMessage(anthropicclient.NewTextBlock(buildSummaryUserPrompt(text))),
		},
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, errors.New("empty response from AI")
	}

	return &generation{
		Summary:    sb.String(),
		TokenCount: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}

// estimatedCost converts a token count into a dollar estimate, when the
// provider carries a rate. Returns nil when the rate is unknown.
func estimatedCost(provider *appcfg.AIProvider, tokens int) *float64 {
	if provider == nil || provider.CostPer1KTokens <= 0 || tokens <= 0 {
		return nil
	}
	cost := float64(tokens) / 1000 * provider.CostPer1KTokens
	return &cost
}

func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.deepseek.com"
	}

	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		cleaned := strings.TrimRight(base, "/")
		return strings.TrimSuffix(cleaned, "/v1")
	}

	path := strings.TrimRight(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/v1")
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}
