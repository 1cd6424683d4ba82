package conversation

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"patient-followup/internal/transcript"
)

type fakeMedia struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	sent   [][]byte
	clears int
	reads  atomic.Int32
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (m *fakeMedia) Receive() ([]byte, error) {
	select {
	case b, ok := <-m.in:
		if !ok {
			return nil, io.EOF
		}
		m.reads.Add(1)
		return b, nil
	case <-m.closed:
		return nil, io.EOF
	}
}

func (m *fakeMedia) Send(audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, audio)
	return nil
}

func (m *fakeMedia) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	return nil
}

func (m *fakeMedia) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

type fakeConn struct {
	events chan Event
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	audio [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan Event, 16), errs: make(chan error, 1), closed: make(chan struct{})}
}

func (c *fakeConn) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, audio)
	return nil
}

func (c *fakeConn) Next() (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.errs:
		return Event{}, err
	case <-c.closed:
		return Event{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeEngine struct {
	conn    *fakeConn
	err     error
	seen    EngineConfig
	readsAt int32
	media   *fakeMedia
}

func (e *fakeEngine) Dial(ctx context.Context, cfg EngineConfig) (EngineConn, error) {
	e.seen = cfg
	if e.media != nil {
		e.readsAt = e.media.reads.Load()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.conn, nil
}

func waitDone(t *testing.T, s *Session) Result {
	t.Helper()
	select {
	case <-s.Done():
		return s.AwaitClose()
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not close")
		return Result{}
	}
}

func TestSession_RecordsTurnsInOrderAndEndsOnHangup(t *testing.T) {
	media := newFakeMedia()
	conn := newFakeConn()
	engine := &fakeEngine{conn: conn, media: media}

	var connected, disconnected atomic.Int32
	var hookTurns []transcript.Turn
	media.in <- []byte{1, 2, 3}

	s, err := Open(context.Background(), media, engine, Config{
		Engine: EngineConfig{Instructions: "system prompt", Language: "en"},
		Hooks: Hooks{
			OnConnected: func() { connected.Add(1) },
			OnDisconnected: func(turns []transcript.Turn, err error) {
				disconnected.Add(1)
				hookTurns = turns
			},
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if engine.readsAt != 0 {
		t.Fatalf("expected no audio read before the engine was seeded")
	}
	if engine.seen.Instructions != "system prompt" {
		t.Fatalf("expected engine seeded with prompt, got %q", engine.seen.Instructions)
	}

	conn.events <- Event{Kind: EventAssistantText, Text: "Hello, how are you feeling today?"}
	conn.events <- Event{Kind: EventAudio, Audio: []byte{9}}
	conn.events <- Event{Kind: EventSpeechStarted}
	conn.events <- Event{Kind: EventUserText, Text: "  "}
	conn.events <- Event{Kind: EventUserText, Text: "Much better."}

	// Let the pump drain before hanging up.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(conn.events) > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(media.in)

	res := waitDone(t, s)
	if res.Err != nil {
		t.Fatalf("expected clean close, got %v", res.Err)
	}
	if len(res.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %+v", res.Turns)
	}
	if res.Turns[0].Role != transcript.RoleSystem || res.Turns[1].Role != transcript.RoleAssistant || res.Turns[2].Role != transcript.RoleUser {
		t.Fatalf("unexpected order: %+v", res.Turns)
	}
	if connected.Load() != 1 || disconnected.Load() != 1 {
		t.Fatalf("expected one connected and one disconnected event, got %d/%d", connected.Load(), disconnected.Load())
	}
	if len(hookTurns) != 3 {
		t.Fatalf("expected disconnected hook to carry final turns")
	}

	conn.mu.Lock()
	forwarded := len(conn.audio)
	conn.mu.Unlock()
	if forwarded != 1 {
		t.Fatalf("expected inbound audio forwarded, got %d", forwarded)
	}
	media.mu.Lock()
	defer media.mu.Unlock()
	if len(media.sent) != 1 || media.clears != 1 {
		t.Fatalf("expected one playback and one clear, got %d/%d", len(media.sent), media.clears)
	}
}

func TestSession_EngineFaultEndsSessionWithError(t *testing.T) {
	media := newFakeMedia()
	conn := newFakeConn()
	s, err := Open(context.Background(), media, &fakeEngine{conn: conn}, Config{Engine: EngineConfig{Instructions: "p"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	conn.events <- Event{Kind: EventAssistantText, Text: "Hi"}
	time.Sleep(20 * time.Millisecond)
	conn.errs <- errors.New("engine exploded")

	res := waitDone(t, s)
	if res.Err == nil {
		t.Fatalf("expected session error")
	}
	if len(res.Turns) != 2 {
		t.Fatalf("expected turns gathered before the fault, got %+v", res.Turns)
	}
	select {
	case <-media.closed:
	default:
		t.Fatalf("expected media closed after engine fault")
	}
}

func TestSession_ContextCancelCloses(t *testing.T) {
	media := newFakeMedia()
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, media, &fakeEngine{conn: conn}, Config{Engine: EngineConfig{Instructions: "p"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cancel()

	res := waitDone(t, s)
	if res.Err != nil {
		t.Fatalf("expected cancellation treated as close, got %v", res.Err)
	}
	if len(res.Turns) != 1 {
		t.Fatalf("expected only the system turn, got %+v", res.Turns)
	}
}

func TestOpen_DialFailureLeavesMediaOpen(t *testing.T) {
	media := newFakeMedia()
	_, err := Open(context.Background(), media, &fakeEngine{err: errors.New("no engine")}, Config{})
	if err == nil {
		t.Fatalf("expected dial error")
	}
	select {
	case <-media.closed:
		t.Fatalf("media should be left to the caller")
	default:
	}
}
