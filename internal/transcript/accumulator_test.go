package transcript

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDeriveUsage_Example(t *testing.T) {
	turns := []Turn{
		{Role: RoleSystem, Content: strings.Repeat("s", 400)},
		{Role: RoleAssistant, Content: strings.Repeat("a", 200)},
		{Role: RoleUser, Content: strings.Repeat("u", 40)},
	}
	u := DeriveUsage(turns)
	if u.InputTokens != 110 {
		t.Fatalf("expected 110 input tokens, got %d", u.InputTokens)
	}
	if u.OutputTokens != 50 {
		t.Fatalf("expected 50 output tokens, got %d", u.OutputTokens)
	}
	if u.TTSCharacters != 200 {
		t.Fatalf("expected 200 tts chars, got %d", u.TTSCharacters)
	}
}

func TestDeriveUsage_EmptyTurnCountsOneToken(t *testing.T) {
	u := DeriveUsage([]Turn{{Role: RoleUser, Content: ""}, {Role: RoleAssistant, Content: "hi"}})
	if u.InputTokens != 1 || u.OutputTokens != 1 {
		t.Fatalf("expected minimum one token per turn, got %+v", u)
	}
	if u.TTSCharacters != 2 {
		t.Fatalf("expected 2 tts chars, got %d", u.TTSCharacters)
	}
}

func TestDeriveUsage_CountsRunesNotBytes(t *testing.T) {
	u := DeriveUsage([]Turn{{Role: RoleAssistant, Content: "नमस्ते आप"}})
	if u.TTSCharacters != 9 {
		t.Fatalf("expected 9 chars, got %d", u.TTSCharacters)
	}
	if u.OutputTokens != 2 {
		t.Fatalf("expected 2 tokens, got %d", u.OutputTokens)
	}
}

func TestDeriveUsage_Deterministic(t *testing.T) {
	turns := []Turn{{Role: RoleSystem, Content: "prompt"}, {Role: RoleUser, Content: "fine thanks"}}
	if DeriveUsage(turns) != DeriveUsage(turns) {
		t.Fatalf("expected identical usage for identical input")
	}
}

func TestAccumulator_AppendOnlySnapshot(t *testing.T) {
	a := NewAccumulator("sys")
	if err := a.Append(RoleAssistant, "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	snap := a.Snapshot()
	snap[0].Content = "mutated"

	if err := a.Append(RoleUser, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}
	got := a.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(got))
	}
	if got[0].Role != RoleSystem || got[0].Content != "sys" {
		t.Fatalf("expected system turn first and untouched, got %+v", got[0])
	}
	if got[2].Role != RoleUser {
		t.Fatalf("expected user turn last, got %v", got[2].Role)
	}
}

func TestAccumulator_RejectsInvalidRole(t *testing.T) {
	a := NewAccumulator("sys")
	if err := a.Append(Role(0), "x"); err == nil {
		t.Fatalf("expected error for zero role")
	}
	if a.Len() != 1 {
		t.Fatalf("expected rejected turn not to be stored")
	}
}

func TestAccumulator_ConcurrentAppends(t *testing.T) {
	a := NewAccumulator("sys")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Append(RoleUser, "x")
		}()
	}
	wg.Wait()
	if a.Len() != 51 {
		t.Fatalf("expected 51 turns, got %d", a.Len())
	}
}

func TestDocument_OmitsSystemTurns(t *testing.T) {
	ended := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	doc := NewDocument([]Turn{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "hi"},
	}, ended)

	raw, err := doc.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(raw, `"system"`) {
		t.Fatalf("expected no system turn in %s", raw)
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	conv, ok := generic["conversation"].([]any)
	if !ok || len(conv) != 2 {
		t.Fatalf("expected 2 stored turns, got %v", generic["conversation"])
	}
	first := conv[0].(map[string]any)
	if first["role"] != "assistant" || first["content"] != "hello" {
		t.Fatalf("unexpected first turn: %v", first)
	}
	if _, ok := generic["call_ended_at"]; !ok {
		t.Fatalf("expected call_ended_at")
	}
}

func TestRole_UnmarshalRejectsUnknown(t *testing.T) {
	var r Role
	if err := r.UnmarshalText([]byte("tool")); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
