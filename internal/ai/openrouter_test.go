package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type loopback struct {
	URL string
	srv *http.Server
}

// newLoopback serves handler on a tcp4 loopback port; sandboxes that forbid
// listening skip the test.
func newLoopback(t *testing.T, handler http.Handler) *loopback {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	l := &loopback{URL: "http://" + ln.Addr().String(), srv: &http.Server{Handler: handler}}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.srv.Shutdown(ctx)
	})
	return l
}

type step struct {
	status int
	header http.Header
	body   any
}

// sequence replies to /chat/completions with steps in order, repeating the last.
func sequence(t *testing.T, calls *int32, steps ...step) *loopback {
	t.Helper()
	return newLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(calls, 1)) - 1
		if i >= len(steps) {
			i = len(steps) - 1
		}
		s := steps[i]
		for k, vals := range s.header {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(s.status)
		_ = json.NewEncoder(w).Encode(s.body)
	}))
}

func okCompletion(text string) map[string]any {
	return map[string]any{
		"id":      "gen-1",
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": text}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func testClient(url string, attempts int) *OpenRouter {
	c := NewOpenRouter("test-key", 2*time.Second, RetryPolicy{MaxAttempts: attempts, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond})
	c.baseURL = url
	return c
}

var hello = GenerateRequest{Model: "openai/gpt-4o-mini", Messages: []Message{{Role: "user", Content: "hi"}}}

func TestOpenRouterGenerate(t *testing.T) {
	var calls int32
	srv := sequence(t, &calls, step{status: 200, header: http.Header{"X-Request-Id": {"req-ok"}}, body: okCompletion("fine")})
	resp, err := testClient(srv.URL, 3).Generate(context.Background(), hello)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "fine" || resp.Usage.TotalTokens != 15 || resp.RequestID != "req-ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOpenRouterRetriesOn429(t *testing.T) {
	var calls int32
	rateLimited := step{status: 429, body: map[string]any{"error": map[string]any{"message": "rate limited"}}}
	srv := sequence(t, &calls, rateLimited, rateLimited, step{status: 200, body: okCompletion("ok")})
	resp, err := testClient(srv.URL, 3).Generate(context.Background(), hello)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if resp.Content != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("content=%q calls=%d", resp.Content, calls)
	}
}

func TestOpenRouterHonoursRetryAfter(t *testing.T) {
	var calls int32
	srv := sequence(t, &calls,
		step{status: 429, header: http.Header{"Retry-After": {"1"}}, body: map[string]any{"error": map[string]any{"message": "slow down"}}},
		step{status: 200, body: okCompletion("ok")},
	)
	start := time.Now()
	if _, err := testClient(srv.URL, 2).Generate(context.Background(), hello); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("Retry-After not honoured, elapsed %v", elapsed)
	}
}

func TestOpenRouterTypedErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		check  func(error) bool
	}{
		{"auth", 401, map[string]any{"error": map[string]any{"message": "no auth"}}, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e)
		}},
		{"bad request", 400, map[string]any{"error": map[string]any{"message": "bad", "code": 400}}, func(err error) bool {
			var e *BadRequestError
			return errors.As(err, &e) && e.Code == "400"
		}},
		{"model", 404, map[string]any{"error": map[string]any{"message": "Model not found", "code": "model_not_found"}}, func(err error) bool {
			var e *ModelNotFoundError
			return errors.As(err, &e)
		}},
		{"server", 503, map[string]any{"message": "down"}, func(err error) bool {
			var e *ServerError
			return errors.As(err, &e) && e.Message == "down"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := sequence(t, &calls, step{status: tt.status, header: http.Header{"X-Request-Id": {"req-" + tt.name}}, body: tt.body})
			_, err := testClient(srv.URL, 2).Generate(context.Background(), hello)
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error type: %T %v", err, err)
			}
			if !strings.Contains(err.Error(), "request_id=req-"+tt.name) {
				t.Fatalf("request id missing from %q", err.Error())
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Fatalf("APIError not reachable through %v", err)
			}
		})
	}
}

func TestOpenRouterValidation(t *testing.T) {
	c := NewOpenRouter("", time.Second, RetryPolicy{})
	if _, err := c.Generate(context.Background(), hello); !errors.Is(err, errMissingKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	c = NewOpenRouter("k", time.Second, RetryPolicy{})
	if _, err := c.Generate(context.Background(), GenerateRequest{Model: "m"}); err == nil || err.Error() != "messages cannot be empty" {
		t.Fatalf("expected empty messages error, got %v", err)
	}
	if _, err := c.Generate(context.Background(), GenerateRequest{Messages: hello.Messages}); err == nil {
		t.Fatalf("expected empty model error")
	}
}

func TestOpenRouterStream(t *testing.T) {
	srv := newLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Stream {
			http.Error(w, "expected stream request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Three ", "claims ", "stand out."} {
			chunk, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": part}}}})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, ": keep-alive\n\ndata: [DONE]\n\n")
	}))
	var got strings.Builder
	if err := testClient(srv.URL, 1).GenerateStream(context.Background(), hello, func(s string) { got.WriteString(s) }); err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if got.String() != "Three claims stand out." {
		t.Fatalf("stream = %q", got.String())
	}
}

func TestRetryDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		d := p.delay(attempt, 0)
		if d <= 0 || d > p.MaxDelay {
			t.Fatalf("attempt %d: delay %v outside (0, %v]", attempt, d, p.MaxDelay)
		}
	}
	if d := p.delay(1, 2*time.Second); d != 2*time.Second {
		t.Fatalf("server hint ignored: %v", d)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepCtx ignored cancellation: %v", err)
	}
}

func TestNormalizeProvider(t *testing.T) {
	for in, want := range map[string]string{"": ProviderOpenRouter, "OpenAI": ProviderOpenRouter, "local": ProviderOllama, " ollama ": ProviderOllama} {
		got, err := NormalizeProvider(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeProvider(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := NormalizeProvider("bedrock"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
