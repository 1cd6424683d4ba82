package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callID int64) ([]Event, error)
}

// Service records the call event log.
//
// Callers treat the Record* helpers as best-effort: failures are logged here
// and never returned.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID <= 0 {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) ListByCall(ctx context.Context, callID int64) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.ListByCall(ctx, callID)
}

func (s *Service) record(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("call event not recorded", "call_id", e.CallID, "type", e.Type, "err", err)
	}
}

// StatusChanged records a status transition.
func (s *Service) StatusChanged(ctx context.Context, callID int64, from, to string) {
	s.record(ctx, Event{CallID: callID, Type: EventTypeStatusChanged, FromStatus: from, ToStatus: to})
}

func (s *Service) SessionOpened(ctx context.Context, callID int64) {
	s.record(ctx, Event{CallID: callID, Type: EventTypeSessionOpened, Message: "media session bridged"})
}

func (s *Service) SessionRejected(ctx context.Context, callID int64, reason string) {
	s.record(ctx, Event{CallID: callID, Type: EventTypeSessionRejected, Message: reason})
}

func (s *Service) FinalizeFailed(ctx context.Context, callID int64, reason string) {
	s.record(ctx, Event{CallID: callID, Type: EventTypeFinalizeFailed, Message: reason})
}

func (s *Service) SummaryFallback(ctx context.Context, callID int64, reason string) {
	s.record(ctx, Event{CallID: callID, Type: EventTypeSummaryFallback, Message: reason})
}
