package transcript

import (
	"sync"
	"unicode/utf8"
)

const charsPerToken = 4

// EstimateTokens approximates the token count of a piece of text.
// Every turn counts for at least one token, even when empty.
func EstimateTokens(content string) int {
	n := utf8.RuneCountInString(content) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}

// DeriveUsage computes usage from an ordered turn list.
// System and user turns are billed as model input; assistant turns as output and speech.
func DeriveUsage(turns []Turn) Usage {
	var u Usage
	for _, t := range turns {
		tokens := EstimateTokens(t.Content)
		switch t.Role {
		case RoleSystem, RoleUser:
			u.InputTokens += tokens
		case RoleAssistant:
			u.OutputTokens += tokens
			u.TTSCharacters += utf8.RuneCountInString(t.Content)
		}
	}
	return u
}

// Accumulator is an append-only turn list shared between the media pumps of a session.
type Accumulator struct {
	mu    sync.Mutex
	turns []Turn
}

// NewAccumulator returns an accumulator seeded with the system prompt.
func NewAccumulator(systemPrompt string) *Accumulator {
	return &Accumulator{turns: []Turn{{Role: RoleSystem, Content: systemPrompt}}}
}

func (a *Accumulator) Append(role Role, content string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = append(a.turns, Turn{Role: role, Content: content})
	return nil
}

// Snapshot returns a copy of the turns recorded so far.
func (a *Accumulator) Snapshot() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Turn, len(a.turns))
	copy(out, a.turns)
	return out
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.turns)
}
