package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Role is the closed set of speakers in a conversation.
// The zero value is invalid so that an unset role never slips into a transcript.
type Role uint8

const (
	RoleSystem Role = iota + 1
	RoleUser
	RoleAssistant
)

var ErrInvalidRole = errors.New("transcript: invalid role")

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "system":
		*r = RoleSystem
	case "user":
		*r = RoleUser
	case "assistant":
		*r = RoleAssistant
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, string(b))
	}
	return nil
}

// Turn is one utterance in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage is the token and character consumption derived from a turn list.
type Usage struct {
	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`
	TTSCharacters int `json:"tts_characters"`
}

// Document is the persisted shape of a finished conversation.
// System turns are never stored.
type Document struct {
	Conversation []Turn    `json:"conversation"`
	CallEndedAt  time.Time `json:"call_ended_at"`
}

// NewDocument builds the stored document from the final turn list.
func NewDocument(turns []Turn, endedAt time.Time) Document {
	conv := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleSystem {
			continue
		}
		conv = append(conv, t)
	}
	return Document{Conversation: conv, CallEndedAt: endedAt.UTC()}
}

func (d Document) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeDocument(raw string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Document{}, err
	}
	return d, nil
}
