package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// OpenRouter talks to an OpenAI-compatible /chat/completions endpoint.
type OpenRouter struct {
	http    *http.Client
	apiKey  string
	baseURL string
	retry   RetryPolicy
}

// NewOpenRouter returns a client for openrouter.ai. Zero timeout means 60s.
func NewOpenRouter(apiKey string, timeout time.Duration, retry RetryPolicy) *OpenRouter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenRouter{
		http:    &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		baseURL: openRouterURL,
		retry:   retry.normalized(),
	}
}

type chatChoice struct {
	Message Message `json:"message"`
	Delta   Message `json:"delta"`
}

type chatCompletion struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

func (c *OpenRouter) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://github.com/taein2026/AItest")
	req.Header.Set("X-Title", "claimscan")
	return req, nil
}

func (c *OpenRouter) payload(req GenerateRequest, stream bool) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errMissingKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	req.Stream = stream
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return b, nil
}

// Generate sends one chat completion, retrying 429/5xx and transient network failures.
func (c *OpenRouter) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body, err := c.payload(req, false)
	if err != nil {
		return nil, err
	}
	resp, err := send(ctx, c.http, c.retry, "", func() (*http.Request, error) { return c.newRequest(ctx, body) })
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("empty response (request_id=%s)", requestID(resp))
	}
	return &GenerateResponse{
		Content:   out.Choices[0].Message.Content,
		Usage:     out.Usage,
		RequestID: requestID(resp),
	}, nil
}

// GenerateStream reads server-sent events until [DONE], handing each delta to onDelta.
func (c *OpenRouter) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	body, err := c.payload(req, true)
	if err != nil {
		return err
	}
	resp, err := send(ctx, c.http, c.retry, "", func() (*http.Request, error) {
		r, err := c.newRequest(ctx, body)
		if err == nil {
			r.Header.Set("Accept", "text/event-stream")
		}
		return r, err
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		var chunk chatCompletion
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" && onDelta != nil {
				onDelta(ch.Delta.Content)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// send performs build/Do with retries and returns a 2xx response the caller must close.
// host, when set, turns transport failures into UnreachableError.
func send(ctx context.Context, hc *http.Client, p RetryPolicy, host string, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			if host != "" {
				lastErr = &UnreachableError{Host: host, Err: err}
			}
			if retryableNetErr(err) && attempt < p.MaxAttempts {
				if err := sleepCtx(ctx, p.delay(attempt, 0)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := readAPIError(resp)
		resp.Body.Close()
		lastErr = classify(apiErr, resp.Header)
		if !retryableStatus(resp.StatusCode) || attempt == p.MaxAttempts {
			return nil, lastErr
		}
		if err := sleepCtx(ctx, p.delay(attempt, retryAfter(resp.Header))); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
