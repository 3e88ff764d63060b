package librarian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Provider selects the oracle's wire protocol.
type Provider int

const (
	ProviderOllama Provider = iota
	ProviderOpenAI
)

// OracleClient talks to an external LLM-class collaborator over
// net/http. It never implements a product surface (chat UI, CLI) — only
// the wire contract §6 names: send role-tagged messages, get back a text
// body containing an {analysis: [...]} JSON object.
type OracleClient struct {
	Provider    Provider
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	HTTPClient  *http.Client
}

// NewLLMClient creates an Ollama-compatible client against baseURL/model.
func NewLLMClient(baseURL, model string) *OracleClient {
	return &OracleClient{
		Provider:    ProviderOllama,
		BaseURL:     baseURL,
		Model:       model,
		Temperature: 0.0,
		MaxTokens:   2000,
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

// NewOpenAIClient creates an OpenAI-chat-completions-compatible client.
func NewOpenAIClient(baseURL, model, apiKey string) *OracleClient {
	return &OracleClient{
		Provider:    ProviderOpenAI,
		BaseURL:     baseURL,
		Model:       model,
		Temperature: 0.0,
		MaxTokens:   4000,
		APIKey:      apiKey,
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

// AnalysisEntry is one finding verdict within an oracle response.
type AnalysisEntry struct {
	CheckID     string `json:"check_id"`
	Verdict     string `json:"verdict"`
	Rationale   string `json:"rationale"`
	Remediation string `json:"remediation"`
}

// AnalysisResult is the oracle's full parsed response body.
type AnalysisResult struct {
	Analysis []AnalysisEntry `json:"analysis"`
}

// AnalyzeFunction sends messages to the configured provider and parses the
// {analysis: [...]} object from its reply, tolerating a triple-backtick
// JSON fence around it.
func (c *OracleClient) AnalyzeFunction(ctx context.Context, messages []Message) (*AnalysisResult, error) {
	raw, err := c.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	cleaned := extractJSONFromMarkdown(raw)
	var result AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse oracle response: %w", err)
	}
	return &result, nil
}

// AnalyzeBatch runs AnalyzeFunction over a map of independently keyed
// prompts concurrently, bounded by concurrency, collecting successes and
// failures separately so one bad prompt never drops the rest of the batch.
func (c *OracleClient) AnalyzeBatch(ctx context.Context, batch map[string][]Message, concurrency int) (map[string]*AnalysisResult, map[string]error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make(map[string]*AnalysisResult, len(batch))
	errs := make(map[string]error)
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for key, messages := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string, messages []Message) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := c.AnalyzeFunction(ctx, messages)
			mu.Lock()
			if err != nil {
				errs[key] = err
			} else {
				results[key] = res
			}
			mu.Unlock()
		}(key, messages)
	}
	wg.Wait()
	return results, errs
}

func (c *OracleClient) complete(ctx context.Context, messages []Message) (string, error) {
	if c.Provider == ProviderOpenAI {
		return c.completeOpenAI(ctx, messages)
	}
	return c.completeOllama(ctx, messages)
}

func (c *OracleClient) completeOllama(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  c.Model,
		"prompt": renderPrompt(messages),
		"stream": false,
		"options": map[string]interface{}{
			"temperature": c.Temperature,
			"num_predict": c.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.BaseURL, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse ollama response: %w", err)
	}
	return parsed.Response, nil
}

func (c *OracleClient) completeOpenAI(ctx context.Context, messages []Message) (string, error) {
	wireMessages := make([]map[string]string, len(messages))
	for i, m := range messages {
		wireMessages[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	body, err := json.Marshal(map[string]interface{}{
		"model":       c.Model,
		"messages":    wireMessages,
		"temperature": c.Temperature,
		"max_tokens":  c.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encoding openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling openai: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func renderPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSONFromMarkdown strips a wrapping triple-backtick fence (with an
// optional language tag on the opening line) around a JSON body, per §6.
func extractJSONFromMarkdown(s string) string {
	const fence = "```"
	first := strings.Index(s, fence)
	if first == -1 {
		return s
	}
	rest := s[first+len(fence):]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		tag := rest[:nl]
		if tag == "json" || tag == "" {
			rest = rest[nl:]
		}
	}
	last := strings.LastIndex(rest, fence)
	if last == -1 {
		return rest
	}
	return rest[:last]
}
