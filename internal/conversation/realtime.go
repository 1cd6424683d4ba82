package conversation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultRealtimeURL   = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel = "gpt-4o-realtime-preview"
	DefaultRealtimeVoice = "alloy"

	// Carrier audio is 8kHz mu-law; the engine speaks it natively.
	realtimeAudioFormat = "g711_ulaw"

	handshakeTimeout = 10 * time.Second
)

// RealtimeConfig configures the speech-to-speech engine client.
type RealtimeConfig struct {
	APIKey string
	URL    string
	Model  string
	Voice  string
	// TranscriptionModel recognizes caller speech for the transcript.
	TranscriptionModel string
}

// RealtimeEngine talks to an OpenAI Realtime compatible websocket endpoint.
type RealtimeEngine struct {
	cfg    RealtimeConfig
	dialer *websocket.Dialer
}

func NewRealtimeEngine(cfg RealtimeConfig) (*RealtimeEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("conversation: realtime api key is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultRealtimeURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRealtimeModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultRealtimeVoice
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	return &RealtimeEngine{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}, nil
}

type realtimeEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      *realtimeError  `json:"error,omitempty"`
	Session    json.RawMessage `json:"session,omitempty"`
}

type realtimeError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionUpdate struct {
	Type    string          `json:"type"`
	Session realtimeSession `json:"session"`
}

type realtimeSession struct {
	Modalities              []string               `json:"modalities"`
	Instructions            string                 `json:"instructions"`
	Voice                   string                 `json:"voice"`
	InputAudioFormat        string                 `json:"input_audio_format"`
	OutputAudioFormat       string                 `json:"output_audio_format"`
	InputAudioTranscription *transcriptionSettings `json:"input_audio_transcription,omitempty"`
	TurnDetection           turnDetection          `json:"turn_detection"`
}

type transcriptionSettings struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type turnDetection struct {
	Type string `json:"type"`
}

// Dial connects, sends the session instructions and waits for the engine to
// acknowledge them, then asks the engine to open the conversation.
func (e *RealtimeEngine) Dial(ctx context.Context, cfg EngineConfig) (EngineConn, error) {
	u, err := url.Parse(e.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	q := u.Query()
	q.Set("model", e.cfg.Model)
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+e.cfg.APIKey)
	h.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := e.dialer.DialContext(ctx, u.String(), h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	voice := cfg.Voice
	if voice == "" {
		voice = e.cfg.Voice
	}
	c := &realtimeConn{ws: ws}

	update := sessionUpdate{
		Type: "session.update",
		Session: realtimeSession{
			Modalities:        []string{"audio", "text"},
			Instructions:      cfg.Instructions,
			Voice:             voice,
			InputAudioFormat:  realtimeAudioFormat,
			OutputAudioFormat: realtimeAudioFormat,
			InputAudioTranscription: &transcriptionSettings{
				Model:    e.cfg.TranscriptionModel,
				Language: cfg.Language,
			},
			TurnDetection: turnDetection{Type: "server_vad"},
		},
	}
	if err := c.write(update); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("realtime session update: %w", err)
	}
	if err := c.awaitSessionUpdated(ctx); err != nil {
		_ = ws.Close()
		return nil, err
	}
	if err := c.write(map[string]string{"type": "response.create"}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("realtime response create: %w", err)
	}
	return c, nil
}

type realtimeConn struct {
	ws *websocket.Conn

	// gorilla allows one concurrent writer.
	wmu sync.Mutex
}

func (c *realtimeConn) write(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *realtimeConn) awaitSessionUpdated(ctx context.Context) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetReadDeadline(deadline)
	defer func() { _ = c.ws.SetReadDeadline(time.Time{}) }()

	for {
		var ev realtimeEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return fmt.Errorf("realtime handshake: %w", err)
		}
		switch ev.Type {
		case "session.updated":
			return nil
		case "error":
			return ev.err()
		}
	}
}

func (c *realtimeConn) SendAudio(audio []byte) error {
	return c.write(map[string]string{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio),
	})
}

func (c *realtimeConn) Next() (Event, error) {
	for {
		var ev realtimeEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			if isClosed(err) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}

		switch ev.Type {
		case "response.audio.delta":
			audio, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil {
				return Event{}, fmt.Errorf("realtime audio delta: %w", err)
			}
			return Event{Kind: EventAudio, Audio: audio}, nil
		case "response.audio_transcript.done":
			return Event{Kind: EventAssistantText, Text: ev.Transcript}, nil
		case "conversation.item.input_audio_transcription.completed":
			return Event{Kind: EventUserText, Text: ev.Transcript}, nil
		case "input_audio_buffer.speech_started":
			return Event{Kind: EventSpeechStarted}, nil
		case "error":
			return Event{}, ev.err()
		}
	}
}

func (c *realtimeConn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.ws.Close()
}

func (ev realtimeEvent) err() error {
	if ev.Error == nil {
		return errors.New("realtime: unknown error")
	}
	return fmt.Errorf("realtime: %s: %s", ev.Error.Type, ev.Error.Message)
}

func isClosed(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
