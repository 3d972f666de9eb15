package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"escape_bench/internal/state"
	"escape_bench/internal/tools"
)

const (
	defaultBaseURL           = "https://api.openai.com/v1"
	chatCompletionsPath      = "/chat/completions"
	defaultModel             = "gpt-4-turbo-preview"
	defaultAPIKeyEnv         = "OPENAI_API_KEY"
	defaultRetries           = 4
	defaultRetryBackoff      = 500 * time.Millisecond
	defaultRequestTimeout    = 60 * time.Second
	maxHTTPErrorBodyReadSize = 64 * 1024
)

type ChatClientConfig struct {
	Model          string
	BaseURL        string
	APIKeyEnv      string
	Retries        int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
	Logger         *log.Logger
	Client         *http.Client
}

// ChatClient decides turns by calling an OpenAI-compatible chat
// completions endpoint with the tool schemas attached.
type ChatClient struct {
	model        string
	endpoint     string
	apiKey       string
	retries      int
	retryBackoff time.Duration
	logger       *log.Logger
	client       *http.Client
}

func NewChatClient(cfg ChatClientConfig) (*ChatClient, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	keyEnv := strings.TrimSpace(cfg.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := strings.TrimSpace(os.Getenv(keyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", keyEnv)
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	if retries == 0 {
		retries = defaultRetries
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &ChatClient{
		model:        model,
		endpoint:     strings.TrimRight(baseURL, "/") + chatCompletionsPath,
		apiKey:       apiKey,
		retries:      retries,
		retryBackoff: retryBackoff,
		logger:       logger,
		client:       client,
	}, nil
}

// Decide sends one completion request and maps every tool call of the
// first choice, in order, onto the decision. A follow-up request asks for
// the summary when the model called tools without writing one.
func (c *ChatClient) Decide(ctx context.Context, view state.TurnView, defs []tools.Definition) (Decision, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(view.Persona)},
		{Role: "user", Content: userPrompt(view)},
	}
	first, err := c.complete(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    toChatTools(defs),
	})
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Summary: strings.TrimSpace(first.Content)}
	for _, call := range first.ToolCalls {
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		decision.Calls = append(decision.Calls, tools.Call{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: json.RawMessage(args),
		})
	}
	if decision.Summary == "" && len(decision.Calls) > 0 {
		decision.Summary = c.requestSummary(ctx, messages, first)
	}
	return decision, nil
}

// requestSummary asks once for the missing turn summary. The assistant
// turn is replayed as plain text so the follow-up stays a valid
// conversation without fabricated tool results.
func (c *ChatClient) requestSummary(ctx context.Context, messages []chatMessage, first chatMessage) string {
	var recap strings.Builder
	for _, call := range first.ToolCalls {
		fmt.Fprintf(&recap, "Called %s with args %s\n", call.Function.Name, call.Function.Arguments)
	}
	followUp := append(messages,
		chatMessage{Role: "assistant", Content: strings.TrimSpace(recap.String())},
		chatMessage{Role: "user", Content: "Reply with a short summary of what you did and learned this timestep."},
	)
	msg, err := c.complete(ctx, chatRequest{
		Model:      c.model,
		Messages:   followUp,
		ToolChoice: "none",
	})
	if err != nil {
		c.logger.Printf("turn summary follow-up failed: %v", err)
		return ""
	}
	return strings.TrimSpace(msg.Content)
}

func (c *ChatClient) complete(ctx context.Context, req chatRequest) (chatMessage, error) {
	var lastErr error
	wait := c.retryBackoff
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		msg, err := c.completeOnce(ctx, req)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !isRetryableAPIError(err) || attempt == c.retries+1 {
			break
		}
		c.logger.Printf("chat api retry attempt=%d wait=%s reason=%v", attempt, wait, err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return chatMessage{}, ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("unknown chat api error")
	}
	return chatMessage{}, lastErr
}

func (c *ChatClient) completeOnce(ctx context.Context, req chatRequest) (chatMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return chatMessage{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return chatMessage{}, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return chatMessage{}, fmt.Errorf("chat api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		if readErr != nil {
			return chatMessage{}, fmt.Errorf("chat api status=%d and read body failed: %w", resp.StatusCode, readErr)
		}
		return chatMessage{}, apiHTTPError{
			statusCode: resp.StatusCode,
			body:       strings.TrimSpace(string(raw)),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return chatMessage{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return chatMessage{}, fmt.Errorf("chat response has no choices")
	}
	return parsed.Choices[0].Message, nil
}

func isRetryableAPIError(err error) bool {
	var statusErr apiHTTPError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode == http.StatusTooManyRequests || statusErr.statusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

func toChatTools(defs []tools.Definition) []chatTool {
	converted := make([]chatTool, len(defs))
	for i, def := range defs {
		converted[i] = chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}
	return converted
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

type apiHTTPError struct {
	statusCode int
	body       string
}

func (e apiHTTPError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("chat api status=%d", e.statusCode)
	}
	return fmt.Sprintf("chat api status=%d body=%s", e.statusCode, e.body)
}
