package summary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"patient-followup/internal/transcript"
)

func chatServer(t *testing.T, content string, status int, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if seen != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

var sampleTurns = []transcript.Turn{
	{Role: transcript.RoleSystem, Content: "secret prompt"},
	{Role: transcript.RoleAssistant, Content: "How are you feeling today?"},
	{Role: transcript.RoleUser, Content: "A bit of a headache."},
}

func TestOpenAISummarizer_ParsesJSON(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, `{"sentiment":"concerned","key_points":["headache"],"health_concerns":["headache"],"follow_up_needed":true,"follow_up_reason":"persistent pain"}`, http.StatusOK, &seen)
	defer srv.Close()

	s, err := NewOpenAISummarizer(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := s.Summarize(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Sentiment != "concerned" || !got.FollowUpNeeded || len(got.HealthConcerns) != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	if seen["model"] != "gpt-4o-mini" {
		t.Fatalf("expected default model, got %v", seen["model"])
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	user := msgs[1].(map[string]any)["content"].(string)
	if strings.Contains(user, "secret prompt") {
		t.Fatalf("system turn leaked into summary prompt")
	}
	if !strings.Contains(user, "USER: A bit of a headache.") || !strings.Contains(user, "ASSISTANT: How are you feeling today?") {
		t.Fatalf("expected rendered dialogue, got %q", user)
	}
}

func TestOpenAISummarizer_FencedJSON(t *testing.T) {
	srv := chatServer(t, "```json\n{\"sentiment\":\"positive\",\"key_points\":[],\"health_concerns\":[],\"follow_up_needed\":false,\"follow_up_reason\":\"\"}\n```", http.StatusOK, nil)
	defer srv.Close()

	s, _ := NewOpenAISummarizer(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	got, err := s.Summarize(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Sentiment != "positive" {
		t.Fatalf("expected positive, got %q", got.Sentiment)
	}
}

func TestOpenAISummarizer_ServerErrorSurfaces(t *testing.T) {
	srv := chatServer(t, "", http.StatusInternalServerError, nil)
	defer srv.Close()

	s, _ := NewOpenAISummarizer(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	if _, err := s.Summarize(context.Background(), sampleTurns); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenAISummarizer_GarbageSurfaces(t *testing.T) {
	srv := chatServer(t, "not json at all", http.StatusOK, nil)
	defer srv.Close()

	s, _ := NewOpenAISummarizer(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	if _, err := s.Summarize(context.Background(), sampleTurns); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestOpenAISummarizer_EmptyDialogue(t *testing.T) {
	s, _ := NewOpenAISummarizer(OpenAIConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1/v1"}, nil)
	_, err := s.Summarize(context.Background(), []transcript.Turn{{Role: transcript.RoleSystem, Content: "x"}})
	if err != ErrEmptyDialogue {
		t.Fatalf("expected ErrEmptyDialogue, got %v", err)
	}
}

func TestFallback_Shape(t *testing.T) {
	raw, err := Fallback().Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"sentiment":"unknown","key_points":["Error generating summary"],"health_concerns":[],"follow_up_needed":false,"follow_up_reason":""}`
	if raw != want {
		t.Fatalf("unexpected fallback:\n got %s\nwant %s", raw, want)
	}
}
