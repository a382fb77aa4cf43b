package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOpenAIClient(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		c := NewOpenAIClient("key")
		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.model != DefaultModel || c.temperature != DefaultTemperature || c.maxTokens != DefaultMaxTokens {
			t.Errorf("unexpected defaults: model=%q temperature=%v maxTokens=%d", c.model, c.temperature, c.maxTokens)
		}
	})

	t.Run("with options", func(t *testing.T) {
		c := NewOpenAIClient("key",
			WithBaseURL("http://localhost:8080/v1/"),
			WithModel("gpt-4o-mini"),
			WithTemperature(0.2),
			WithMaxTokens(500),
			WithTimeout(10*time.Second),
		)
		if c.baseURL != "http://localhost:8080/v1" {
			t.Errorf("baseURL = %q", c.baseURL)
		}
		if c.Model() != "gpt-4o-mini" {
			t.Errorf("Model() = %q", c.Model())
		}
		if c.temperature != 0.2 || c.maxTokens != 500 {
			t.Errorf("temperature=%v maxTokens=%d", c.temperature, c.maxTokens)
		}
		if c.httpClient.Timeout != 10*time.Second {
			t.Errorf("timeout = %v", c.httpClient.Timeout)
		}
	})

	t.Run("zero values keep defaults", func(t *testing.T) {
		c := NewOpenAIClient("key", WithModel(""), WithMaxTokens(0), WithBaseURL(""))
		if c.model != DefaultModel || c.maxTokens != DefaultMaxTokens || c.baseURL != DefaultBaseURL {
			t.Error("empty option values should not override defaults")
		}
	})
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got chatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{"choices": [{"message": {"role": "assistant", "content": "  Summary: greeting exchange \n"}}]}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("secret", WithBaseURL(server.URL+"/v1"))
	reply, err := c.Complete(context.Background(), Request{Prompt: "summarize"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if reply != "Summary: greeting exchange" {
		t.Errorf("reply = %q", reply)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.Model != DefaultModel || got.Temperature != DefaultTemperature || got.MaxTokens != DefaultMaxTokens {
		t.Errorf("unexpected request body: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "summarize" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAIClient_Complete_Overrides(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices": [{"message": {"content": "ok"}}]}`)
	}))
	defer server.Close()

	temp := 0.0
	c := NewOpenAIClient("k", WithBaseURL(server.URL))
	if _, err := c.Complete(context.Background(), Request{Prompt: "p", Temperature: &temp, MaxTokens: 50}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", got.Temperature)
	}
	if got.MaxTokens != 50 {
		t.Errorf("max_tokens = %d, want 50", got.MaxTokens)
	}
}

func TestOpenAIClient_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": "bad key"}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("k", WithBaseURL(server.URL))
	_, err := c.Complete(context.Background(), Request{Prompt: "p"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode() != http.StatusUnauthorized {
		t.Errorf("StatusCode() = %d, want 401", apiErr.StatusCode())
	}
}

func TestOpenAIClient_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices": []}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("k", WithBaseURL(server.URL))
	if _, err := c.Complete(context.Background(), Request{Prompt: "p"}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestOpenAIClient_Complete_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewOpenAIClient("k", WithBaseURL(server.URL))
	if _, err := c.Complete(ctx, Request{Prompt: "p"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOpenAIClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"data": []}`)
	}))
	defer server.Close()

	if err := NewOpenAIClient("good", WithBaseURL(server.URL)).Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v, want nil", err)
	}

	err := NewOpenAIClient("bad", WithBaseURL(server.URL)).Ping(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode() != http.StatusUnauthorized {
		t.Errorf("Ping() with bad key = %v, want 401 APIError", err)
	}
}
