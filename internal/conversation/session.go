package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"patient-followup/internal/transcript"

	"golang.org/x/sync/errgroup"
)

var (
	errMediaClosed  = errors.New("conversation: media closed")
	errEngineClosed = errors.New("conversation: engine closed")
)

// Hooks observe a session. Each hook fires at most once.
type Hooks struct {
	OnConnected    func()
	OnDisconnected func(turns []transcript.Turn, err error)
}

// Config binds a session to one call.
type Config struct {
	Engine EngineConfig
	Hooks  Hooks
	Log    *slog.Logger
}

// Result is what a session leaves behind.
type Result struct {
	Turns []transcript.Turn
	// Err is the fault that ended the session, nil on a normal hang-up.
	Err error
}

// Session bridges a carrier media stream and a conversation engine.
//
// Lifecycle: Open seeds the engine and starts the pumps; AwaitClose blocks
// until either side ends the call and returns the final turn list.
type Session struct {
	media Media
	conn  EngineConn
	acc   *transcript.Accumulator
	hooks Hooks
	log   *slog.Logger

	done   chan struct{}
	result Result

	disconnectOnce sync.Once
}

// Open dials the engine with the system prompt and starts bridging audio.
// No inbound audio is read before the engine has accepted the prompt.
// On error the media stream is left open; the caller owns it.
func Open(ctx context.Context, media Media, engine Engine, cfg Config) (*Session, error) {
	if media == nil || engine == nil {
		return nil, errors.New("conversation: media and engine are required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	conn, err := engine.Dial(ctx, cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("conversation: dial engine: %w", err)
	}

	s := &Session{
		media: media,
		conn:  conn,
		acc:   transcript.NewAccumulator(cfg.Engine.Instructions),
		hooks: cfg.Hooks,
		log:   log,
		done:  make(chan struct{}),
	}
	if s.hooks.OnConnected != nil {
		s.hooks.OnConnected()
	}

	go s.run(ctx)
	return s, nil
}

// AwaitClose blocks until the session has ended.
func (s *Session) AwaitClose() Result {
	<-s.done
	return s.result
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(s.pumpInbound)
	g.Go(s.pumpOutbound)
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks whichever pump is still reading.
		_ = s.media.Close()
		_ = s.conn.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errMediaClosed) || errors.Is(err, errEngineClosed) || errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		s.log.Warn("conversation ended with error", "err", err)
	}

	s.result = Result{Turns: s.acc.Snapshot(), Err: err}
	s.disconnectOnce.Do(func() {
		if s.hooks.OnDisconnected != nil {
			s.hooks.OnDisconnected(s.result.Turns, err)
		}
	})
	close(s.done)
}

func (s *Session) pumpInbound() error {
	for {
		audio, err := s.media.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errMediaClosed
			}
			return fmt.Errorf("media receive: %w", err)
		}
		if len(audio) == 0 {
			continue
		}
		if err := s.conn.SendAudio(audio); err != nil {
			return fmt.Errorf("engine send: %w", err)
		}
	}
}

func (s *Session) pumpOutbound() error {
	for {
		ev, err := s.conn.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errEngineClosed
			}
			return fmt.Errorf("engine receive: %w", err)
		}

		switch ev.Kind {
		case EventAudio:
			if err := s.media.Send(ev.Audio); err != nil {
				return fmt.Errorf("media send: %w", err)
			}
		case EventSpeechStarted:
			if err := s.media.Clear(); err != nil {
				return fmt.Errorf("media clear: %w", err)
			}
		case EventUserText:
			if text := strings.TrimSpace(ev.Text); text != "" {
				_ = s.acc.Append(transcript.RoleUser, text)
			}
		case EventAssistantText:
			if text := strings.TrimSpace(ev.Text); text != "" {
				_ = s.acc.Append(transcript.RoleAssistant, text)
			}
		}
	}
}
