package telephony

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PlivoStream adapts a Plivo bidirectional audio stream websocket.
//
// Inbound frames are JSON events: start, media (base64 mu-law payload), stop.
// Outbound frames are playAudio and clearAudio.
type PlivoStream struct {
	ws *websocket.Conn

	// gorilla allows one concurrent writer.
	wmu sync.Mutex

	mu       sync.Mutex
	streamID string
	callUUID string

	closeOnce sync.Once
}

func NewPlivoStream(ws *websocket.Conn) *PlivoStream {
	return &PlivoStream{ws: ws}
}

type plivoStreamEvent struct {
	Event    string            `json:"event"`
	StreamID string            `json:"streamId,omitempty"`
	Start    *plivoStreamStart `json:"start,omitempty"`
	Media    *plivoStreamMedia `json:"media,omitempty"`
}

type plivoStreamStart struct {
	CallID   string `json:"callId"`
	StreamID string `json:"streamId"`
}

type plivoStreamMedia struct {
	Track       string `json:"track,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	SampleRate  int    `json:"sampleRate,omitempty"`
	Payload     string `json:"payload"`
}

// Receive returns the next inbound audio chunk, skipping control events.
// It returns io.EOF when the carrier stops the stream or the socket closes.
func (s *PlivoStream) Receive() ([]byte, error) {
	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) || errors.Is(err, net.ErrClosed) {
				return nil, io.EOF
			}
			return nil, err
		}

		var ev plivoStreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		switch ev.Event {
		case "start":
			if ev.Start != nil {
				s.mu.Lock()
				s.streamID = ev.Start.StreamID
				s.callUUID = ev.Start.CallID
				s.mu.Unlock()
			}
		case "media":
			if ev.Media == nil || ev.Media.Payload == "" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				return nil, fmt.Errorf("plivo stream payload: %w", err)
			}
			return audio, nil
		case "stop":
			return nil, io.EOF
		}
	}
}

// Send queues mu-law audio for playback to the callee.
func (s *PlivoStream) Send(audio []byte) error {
	return s.write(plivoStreamEvent{
		Event: "playAudio",
		Media: &plivoStreamMedia{
			ContentType: "audio/x-mulaw",
			SampleRate:  8000,
			Payload:     base64.StdEncoding.EncodeToString(audio),
		},
	})
}

// Clear drops any queued playback, used when the callee interrupts.
func (s *PlivoStream) Clear() error {
	return s.write(plivoStreamEvent{Event: "clearAudio", StreamID: s.StreamID()})
}

func (s *PlivoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.wmu.Lock()
		_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.wmu.Unlock()
		err = s.ws.Close()
	})
	return err
}

// CloseWithReason ends the stream with a policy close code, used when a
// connection is refused.
func (s *PlivoStream) CloseWithReason(reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.wmu.Lock()
		_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
		s.wmu.Unlock()
		err = s.ws.Close()
	})
	return err
}

func (s *PlivoStream) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

func (s *PlivoStream) CallUUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callUUID
}

func (s *PlivoStream) write(v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.ws.WriteJSON(v)
}
