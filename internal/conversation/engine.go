package conversation

import "context"

// Media is one side of a live call: the carrier's audio stream.
//
// Receive blocks until the next inbound audio chunk and returns io.EOF once the
// caller hangs up. Close must unblock a pending Receive.
type Media interface {
	Receive() ([]byte, error)
	Send(audio []byte) error
	Clear() error
	Close() error
}

// Engine opens conversations with a speech-to-speech model.
type Engine interface {
	// Dial connects and seeds the engine with cfg. The returned connection
	// has acknowledged the instructions and is ready for audio.
	Dial(ctx context.Context, cfg EngineConfig) (EngineConn, error)
}

// EngineConfig seeds one conversation.
type EngineConfig struct {
	Instructions string
	// Language is the ISO-639-1 code for input transcription.
	Language string
	Voice    string
}

// EngineConn is a live conversation. Next blocks until the next event and
// returns io.EOF once the connection is closed.
type EngineConn interface {
	SendAudio(audio []byte) error
	Next() (Event, error)
	Close() error
}

type EventKind uint8

const (
	// EventAudio carries synthesized speech for the caller.
	EventAudio EventKind = iota + 1
	// EventUserText is the recognized text of one caller utterance.
	EventUserText
	// EventAssistantText is the full text of one assistant reply.
	EventAssistantText
	// EventSpeechStarted signals the caller started talking over playback.
	EventSpeechStarted
)

type Event struct {
	Kind  EventKind
	Audio []byte
	Text  string
}
