package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	systemPrompt = "你是一个纯粹的OCR引擎。只输出识别到的文字本身。\n\n" +
		"严格禁止输出以下内容：\n" +
		"- “图中写着...”\n" +
		"- “识别结果是...”\n" +
		"- “图片包含...”\n" +
		"- 句号（除非是日期的一部分）\n\n" +
		"规则：\n" +
		"1. 若是姓名，只输出姓名（如：王顺培）。\n" +
		"2. 若是日期，保留原始格式（如：2022.5.19）。\n" +
		"3. 严禁添加任何解释性文字或标点符号。"

	userPrompt = "图里写的什么字？直接输出内容。"

	temperature = 0.01
	maxTokens   = 50

	contentInspectionCode = "DataInspectionFailed"

	// Error bodies are only inspected for a vendor code.
	maxErrorBodyBytes = 64 << 10
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type vendorError struct {
	Code  string `json:"code"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

// ChatCompletionsClient talks to an OpenAI-compatible vision chat endpoint
type ChatCompletionsClient struct {
	provider Provider
	client   *http.Client
}

// NewChatCompletionsClient creates a client for provider. A zero timeout
// leaves the deadline to the caller's context.
func NewChatCompletionsClient(provider Provider, timeout time.Duration) *ChatCompletionsClient {
	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ChatCompletionsClient{
		provider: provider,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// WithHTTPClient swaps the underlying client, used by tests
func (c *ChatCompletionsClient) WithHTTPClient(client *http.Client) *ChatCompletionsClient {
	c.client = client
	return c
}

// Recognize sends one chat completion request. Nothing is retried: a rate
// limited call surfaces as KindRateLimit right away.
func (c *ChatCompletionsClient) Recognize(ctx context.Context, imageBase64, credential string) (string, error) {
	if credential == "" {
		return "", &Failure{Kind: KindNotConfigured}
	}

	body, err := json.Marshal(c.buildRequest(imageBase64))
	if err != nil {
		return "", &Failure{Kind: KindGeneric, Cause: fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Failure{Kind: KindGeneric, Cause: fmt.Errorf("invalid endpoint: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Failure{Kind: KindNetwork, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", classifyStatus(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &Failure{Kind: KindNetwork, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return decoded.Choices[0].Message.Content, nil
}

func (c *ChatCompletionsClient) buildRequest(imageBase64 string) chatRequest {
	return chatRequest{
		Model: c.provider.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{
				Role: "user",
				Content: []contentPart{
					{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + imageBase64}},
					{Type: "text", Text: userPrompt},
				},
			},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

func classifyStatus(resp *http.Response) *Failure {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Failure{Kind: KindAuth}
	case http.StatusTooManyRequests:
		return &Failure{Kind: KindRateLimit}
	case http.StatusPaymentRequired:
		return &Failure{Kind: KindBilling}
	case http.StatusBadRequest:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		var ve vendorError
		if json.Unmarshal(raw, &ve) == nil && (ve.Code == contentInspectionCode || ve.Error.Code == contentInspectionCode) {
			return &Failure{Kind: KindContentPolicy}
		}
	}
	return &Failure{Kind: KindGeneric, Status: resp.StatusCode}
}
