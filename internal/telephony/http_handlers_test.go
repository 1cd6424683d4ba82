package telephony

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"patient-followup/internal/conversation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakeAnswerService struct {
	known map[int64]bool
	calls []int64
}

func (f *fakeAnswerService) OnAnswer(ctx context.Context, callID int64) AnswerInstruction {
	f.calls = append(f.calls, callID)
	if !f.known[callID] {
		return Hangup()
	}
	return Stream("wss://example.test/ws/plivo/1")
}

func TestAnswerWebhook_KnownCallStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeAnswerService{known: map[int64]bool{1: true}}
	r := gin.New()
	r.POST("/api/calls/answer/:call_id", AnswerWebhookHandler{Service: svc}.HandleAnswer)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/calls/answer/1", strings.NewReader("CallUUID=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Stream") {
		t.Fatalf("expected stream verb, got %s", w.Body.String())
	}
}

func TestAnswerWebhook_UnknownAndInvalidHangUp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeAnswerService{known: map[int64]bool{}}
	r := gin.New()
	r.POST("/api/calls/answer/:call_id", AnswerWebhookHandler{Service: svc}.HandleAnswer)

	for _, path := range []string{"/api/calls/answer/99", "/api/calls/answer/not-a-number"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		if w.Code != 200 || !strings.Contains(w.Body.String(), "<Hangup>") {
			t.Fatalf("%s: expected hangup, got %d %s", path, w.Code, w.Body.String())
		}
	}
	if len(svc.calls) != 1 || svc.calls[0] != 99 {
		t.Fatalf("expected only the numeric id to reach the service, got %v", svc.calls)
	}
}

type echoMediaService struct {
	got    chan []byte
	callID chan int64
}

func (s *echoMediaService) OnSessionOpen(ctx context.Context, callID int64, media conversation.Media) error {
	defer media.Close()
	s.callID <- callID
	audio, err := media.Receive()
	if err != nil {
		return err
	}
	s.got <- audio
	if err := media.Send([]byte("pong")); err != nil {
		return err
	}
	if err := media.Clear(); err != nil {
		return err
	}
	if _, err := media.Receive(); !errors.Is(err, io.EOF) {
		return errors.New("expected EOF after stop")
	}
	return nil
}

func TestMediaStream_BridgesPlivoEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &echoMediaService{got: make(chan []byte, 1), callID: make(chan int64, 1)}
	r := gin.New()
	r.GET("/ws/plivo/:call_id", MediaStreamHandler{Service: svc}.HandleStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/plivo/5", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	_ = ws.WriteJSON(map[string]any{"event": "start", "start": map[string]any{"callId": "cu-1", "streamId": "st-1"}})
	_ = ws.WriteJSON(map[string]any{"event": "media", "media": map[string]any{"track": "inbound", "payload": base64.StdEncoding.EncodeToString([]byte("ping"))}})

	if id := <-svc.callID; id != 5 {
		t.Fatalf("expected call id 5, got %d", id)
	}
	if audio := <-svc.got; string(audio) != "ping" {
		t.Fatalf("expected decoded payload, got %q", audio)
	}

	var play map[string]any
	if err := ws.ReadJSON(&play); err != nil {
		t.Fatalf("read play: %v", err)
	}
	if play["event"] != "playAudio" {
		t.Fatalf("expected playAudio, got %v", play["event"])
	}
	media := play["media"].(map[string]any)
	if media["payload"] != base64.StdEncoding.EncodeToString([]byte("pong")) || media["contentType"] != "audio/x-mulaw" {
		t.Fatalf("unexpected media: %v", media)
	}

	var clear map[string]any
	if err := ws.ReadJSON(&clear); err != nil {
		t.Fatalf("read clear: %v", err)
	}
	if clear["event"] != "clearAudio" || clear["streamId"] != "st-1" {
		t.Fatalf("unexpected clear: %v", clear)
	}

	_ = ws.WriteJSON(map[string]any{"event": "stop"})
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatalf("expected server to close the stream")
	}
}

func TestMediaStream_InvalidCallIDClosesWithoutService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &echoMediaService{got: make(chan []byte, 1), callID: make(chan int64, 1)}
	r := gin.New()
	r.GET("/ws/plivo/:call_id", MediaStreamHandler{Service: svc}.HandleStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/plivo/abc", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
	select {
	case <-svc.callID:
		t.Fatalf("service must not be invoked")
	default:
	}
}
