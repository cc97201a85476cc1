package respond

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/session"
	"github.com/ashureev/chatcord/internal/upstream"
)

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

func completionJSON(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "llama-3.3-70b-versatile",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func newTestPipeline(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*Pipeline, *session.Table) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	httpClient, err := upstream.NewHTTPClient(5*time.Second, "")
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	client := upstream.NewOpenAI(upstream.Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/",
		HTTPClient: httpClient,
	})

	table := session.NewTable(session.DefaultHistoryLimit)
	settings := domain.NewSettings(domain.DefaultModelAlias, domain.DefaultTemperature)
	return New(client, table, settings, Config{Timeout: timeout}, nil), table
}

func TestRespond_FirstMessage(t *testing.T) {
	var got chatRequest
	var calls atomic.Int32
	p, table := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("Hey there!"))
	}, 0)

	reply, err := p.Respond(context.Background(), "c1", "hello")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply != "Hey there!" {
		t.Errorf("Expected reply 'Hey there!', got %q", reply)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one call, got %d", calls.Load())
	}

	if len(got.Messages) != 2 {
		t.Fatalf("Expected system + user messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != DefaultSystemPrompt {
		t.Errorf("Unexpected system message: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "hello" {
		t.Errorf("Unexpected user message: %+v", got.Messages[1])
	}
	if got.Model != "llama-3.3-70b-versatile" {
		t.Errorf("Expected llama model, got %s", got.Model)
	}
	if got.Temperature != 0.7 || got.MaxTokens != 2000 || got.TopP != 1 {
		t.Errorf("Unexpected sampling params: temperature=%v max_tokens=%d top_p=%v", got.Temperature, got.MaxTokens, got.TopP)
	}

	history := table.History("c1")
	if len(history) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(history))
	}
	if history[1].Role != domain.RoleAssistant || history[1].Content != "Hey there!" {
		t.Errorf("Unexpected assistant turn: %+v", history[1])
	}
}

func TestRespond_SendsPriorHistory(t *testing.T) {
	var got chatRequest
	p, table := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("ok"))
	}, 0)

	table.RecordTurn("c1", domain.RoleUser, "first")
	table.RecordTurn("c1", domain.RoleAssistant, "reply")

	if _, err := p.Respond(context.Background(), "c1", "second"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	roles := make([]string, 0, len(got.Messages))
	for _, m := range got.Messages {
		roles = append(roles, m.Role)
	}
	if strings.Join(roles, ",") != "system,user,assistant,user" {
		t.Errorf("Unexpected role order: %v", roles)
	}
}

func TestRespond_Non200(t *testing.T) {
	p, table := newTestPipeline(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}, 0)

	_, err := p.Respond(context.Background(), "c1", "hello")
	var rerr *ResponseError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected ResponseError, got %v", err)
	}
	if rerr.Reason != upstream.ReasonStatus || rerr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected non-200/500, got %s/%d", rerr.Reason, rerr.StatusCode)
	}

	history := table.History("c1")
	if len(history) != 1 || history[0].Role != domain.RoleUser {
		t.Errorf("Expected only the user turn after failure, got %+v", history)
	}
}

func TestRespond_Timeout(t *testing.T) {
	release := make(chan struct{})
	p, _ := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	_, err := p.Respond(context.Background(), "c1", "hello")
	var rerr *ResponseError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected ResponseError, got %v", err)
	}
	if rerr.Reason != upstream.ReasonTimeout {
		t.Errorf("Expected timeout reason, got %s", rerr.Reason)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Expected bounded call, took %v", time.Since(start))
	}
}

func TestRespond_NoChoices(t *testing.T) {
	p, _ := newTestPipeline(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}, 0)

	_, err := p.Respond(context.Background(), "c1", "hello")
	var rerr *ResponseError
	if !errors.As(err, &rerr) || rerr.Reason != upstream.ReasonMalformed {
		t.Errorf("Expected malformed ResponseError, got %v", err)
	}
}
