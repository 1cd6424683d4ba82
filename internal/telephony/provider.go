package telephony

import (
	"context"
	"errors"
)

// Provider is the carrier contract used by the call lifecycle.
//
// Rules:
// - No carrier SDK or REST details outside telephony adapters.
// - Every failure is reported as ErrGateway; transport detail stays in logs.
type Provider interface {
	Name() string

	// CheckCredentials reports whether the adapter is able to place calls at all.
	CheckCredentials() error

	// Dial places an outbound call. The carrier fetches answerURL once the callee picks up.
	Dial(ctx context.Context, req DialRequest) (DialResult, error)
}

var (
	ErrGateway            = errors.New("telephony: gateway error")
	ErrMissingCredentials = errors.New("telephony: gateway credentials not configured")
)

// DialRequest is an outbound call request. To is E.164.
type DialRequest struct {
	To        string `json:"to"`
	AnswerURL string `json:"answer_url"`
}

// DialResult carries the carrier's identifier for the placed call.
type DialResult struct {
	ProviderCallID string `json:"provider_call_id"`
}

// AnswerAction is what the carrier should do once the callee answers.
type AnswerAction string

const (
	AnswerActionStream AnswerAction = "stream"
	AnswerActionHangup AnswerAction = "hangup"
)

// AnswerInstruction is the result of an answer callback.
type AnswerInstruction struct {
	Action AnswerAction `json:"action"`

	// StreamURL is the websocket the carrier opens when Action == "stream".
	StreamURL string `json:"stream_url,omitempty"`
}

func Hangup() AnswerInstruction { return AnswerInstruction{Action: AnswerActionHangup} }

func Stream(url string) AnswerInstruction {
	return AnswerInstruction{Action: AnswerActionStream, StreamURL: url}
}
