package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"patient-followup/internal/conversation"
	"patient-followup/internal/patients"
	"patient-followup/internal/pricing"
	"patient-followup/internal/summary"
	"patient-followup/internal/telephony"
	"patient-followup/internal/transcript"
	"patient-followup/pkg/logger"
	"patient-followup/pkg/metrics"

	"github.com/shopspring/decimal"
)

// ErrGateway is returned when the carrier refused or failed to place a call.
// It matches telephony.ErrGateway under errors.Is.
var ErrGateway = fmt.Errorf("dispatch failed: %w", telephony.ErrGateway)

// Dialer is the carrier side of the lifecycle. telephony.Provider satisfies it.
type Dialer interface {
	CheckCredentials() error
	Dial(ctx context.Context, req telephony.DialRequest) (telephony.DialResult, error)
}

// PatientReader resolves patients. The orchestrator never writes them.
type PatientReader interface {
	Get(ctx context.Context, id int64) (patients.Patient, error)
}

// EventRecorder writes the call event log. Every method is best-effort.
type EventRecorder interface {
	StatusChanged(ctx context.Context, callID int64, from, to string)
	SessionOpened(ctx context.Context, callID int64)
	SessionRejected(ctx context.Context, callID int64, reason string)
	FinalizeFailed(ctx context.Context, callID int64, reason string)
	SummaryFallback(ctx context.Context, callID int64, reason string)
}

// SummaryPolicy decides what a summarizer failure leaves on the transcript.
type SummaryPolicy string

const (
	// SummaryPolicyFallback stores the fallback summary.
	SummaryPolicyFallback SummaryPolicy = "fallback"
	// SummaryPolicyFlag stores the fallback summary and marks the transcript for review.
	SummaryPolicyFlag SummaryPolicy = "flag"
)

func (p SummaryPolicy) Valid() bool {
	return p == SummaryPolicyFallback || p == SummaryPolicyFlag
}

type Options struct {
	// PublicBaseURL is where the carrier reaches this service, e.g. https://calls.example.org.
	PublicBaseURL string

	HospitalName    string
	DefaultQuestion string
	Voice           string

	SummaryPolicy   SummaryPolicy
	SummaryTimeout  time.Duration
	FinalizeTimeout time.Duration
}

type Deps struct {
	Calls      Repository
	Patients   PatientReader
	Dialer     Dialer
	Engine     conversation.Engine
	Summarizer summary.Summarizer
	Pricing    *pricing.Service

	// Optional.
	Locks   SessionLocker
	Pending PendingStore
	Events  EventRecorder
	Metrics *metrics.Calls
	Log     *slog.Logger
}

// Orchestrator drives a call from creation through dialing, answer, the live
// conversation and finalization.
type Orchestrator struct {
	repo       Repository
	patients   PatientReader
	dialer     Dialer
	engine     conversation.Engine
	summarizer summary.Summarizer
	pricing    *pricing.Service

	locks   SessionLocker
	pending PendingStore
	events  EventRecorder
	metrics *metrics.Calls
	log     *slog.Logger

	opts       Options
	finalizing *keyedMutex
	clock      func() time.Time
}

func NewOrchestrator(d Deps, opts Options) (*Orchestrator, error) {
	if d.Calls == nil || d.Patients == nil || d.Dialer == nil || d.Engine == nil || d.Pricing == nil {
		return nil, errors.New("calls: repository, patients, dialer, engine and pricing are required")
	}
	if strings.TrimSpace(opts.PublicBaseURL) == "" {
		return nil, errors.New("calls: public base url is required")
	}
	if opts.SummaryPolicy == "" {
		opts.SummaryPolicy = SummaryPolicyFallback
	}
	if !opts.SummaryPolicy.Valid() {
		return nil, fmt.Errorf("calls: unknown summary policy %q", opts.SummaryPolicy)
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = 30 * time.Second
	}
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = opts.FinalizeTimeout * 2 / 3
	}
	opts.PublicBaseURL = strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/")

	o := &Orchestrator{
		repo:       d.Calls,
		patients:   d.Patients,
		dialer:     d.Dialer,
		engine:     d.Engine,
		summarizer: d.Summarizer,
		pricing:    d.Pricing,
		locks:      d.Locks,
		pending:    d.Pending,
		events:     d.Events,
		metrics:    d.Metrics,
		log:        d.Log,
		opts:       opts,
		finalizing: newKeyedMutex(),
		clock:      time.Now,
	}
	if o.locks == nil {
		o.locks = NewLocalLocker()
	}
	if o.pending == nil {
		o.pending = NewMemoryPending()
	}
	if o.events == nil {
		o.events = nopRecorder{}
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o, nil
}

// Initiate places a follow-up call to a patient.
// Credentials are checked before anything is written.
func (o *Orchestrator) Initiate(ctx context.Context, patientID int64) (Call, error) {
	if err := o.dialer.CheckCredentials(); err != nil {
		o.log.Warn("gateway not configured", "err", err)
		return Call{}, fmt.Errorf("%w: credentials not configured", ErrGateway)
	}
	p, err := o.patients.Get(ctx, patientID)
	if err != nil {
		return Call{}, err
	}
	c, err := o.Create(ctx, p)
	if err != nil {
		return Call{}, err
	}
	return o.Dispatch(ctx, c, p)
}

// Create allocates an initiated call with a placeholder provider id.
func (o *Orchestrator) Create(ctx context.Context, p patients.Patient) (Call, error) {
	c, err := o.repo.Create(ctx, Call{
		PatientID: p.ID,
		CallSID:   PlaceholderSID(),
		Status:    StatusInitiated,
		Cost:      decimal.Zero,
		StartedAt: o.clock().UTC(),
	})
	if err != nil {
		return Call{}, fmt.Errorf("create call: %w", err)
	}
	o.log.Info("call created", "call_id", c.ID, "patient_id", p.ID)
	return c, nil
}

// Dispatch asks the carrier to dial the patient. There is no retry: a
// failure leaves the call failed and returns ErrGateway.
func (o *Orchestrator) Dispatch(ctx context.Context, c Call, p patients.Patient) (Call, error) {
	log := o.log.With("call_id", c.ID)

	res, err := o.dialer.Dial(ctx, telephony.DialRequest{To: p.Phone, AnswerURL: o.answerURL(c.ID)})
	if err == nil && strings.TrimSpace(res.ProviderCallID) == "" {
		err = errors.New("carrier returned no call id")
	}
	if err != nil {
		log.Warn("dispatch failed", "err", err)
		o.metrics.DispatchFailed()
		if ok, _ := o.advance(ctx, c.ID, StatusInitiated, StatusFailed); ok {
			c.Status = StatusFailed
		}
		return c, fmt.Errorf("call %d: %w", c.ID, ErrGateway)
	}

	if err := o.repo.SetCallSID(ctx, c.ID, res.ProviderCallID); err != nil {
		return c, fmt.Errorf("store provider call id: %w", err)
	}
	// The answer webhook may already have moved the call on.
	if _, err := o.advance(ctx, c.ID, StatusInitiated, StatusRinging); err != nil {
		return c, err
	}
	log.Info("call dispatched", "call_sid", res.ProviderCallID)
	return o.repo.Get(ctx, c.ID)
}

// OnAnswer handles the carrier's answer callback.
// Anything but a known, live call gets a hang-up and no state change.
func (o *Orchestrator) OnAnswer(ctx context.Context, callID int64) telephony.AnswerInstruction {
	log := o.log.With("call_id", callID)

	c, err := o.repo.Get(ctx, callID)
	if err != nil {
		log.Warn("answer for unknown call", "err", err)
		return telephony.Hangup()
	}
	if c.Status.Terminal() {
		log.Warn("answer for finished call", "status", c.Status)
		return telephony.Hangup()
	}

	if c.Status == StatusInitiated {
		if _, err := o.advance(ctx, callID, StatusInitiated, StatusRinging); err != nil {
			log.Error("answer transition failed", "err", err)
			return telephony.Hangup()
		}
	}
	if c.Status != StatusAnswered {
		if _, err := o.advance(ctx, callID, StatusRinging, StatusAnswered); err != nil {
			log.Error("answer transition failed", "err", err)
			return telephony.Hangup()
		}
	}

	// Re-read: a concurrent dispatch failure may have won.
	c, err = o.repo.Get(ctx, callID)
	if err != nil || c.Status != StatusAnswered {
		log.Warn("call not answerable", "status", c.Status, "err", err)
		return telephony.Hangup()
	}
	return telephony.Stream(o.StreamURL(callID))
}

// OnSessionOpen runs the conversation for an answered call and finalizes it.
// It owns media: every path closes it.
func (o *Orchestrator) OnSessionOpen(ctx context.Context, callID int64, media conversation.Media) error {
	log := logger.FromOr(ctx, o.log).With("call_id", callID)

	c, err := o.repo.Get(ctx, callID)
	if err != nil {
		o.reject(ctx, media, callID, "unknown call", false)
		return err
	}
	p, err := o.patients.Get(ctx, c.PatientID)
	if err != nil {
		o.reject(ctx, media, callID, "unknown patient", false)
		return err
	}
	if c.Status != StatusAnswered {
		o.reject(ctx, media, callID, "call not answered", true)
		return fmt.Errorf("call %d is %s: %w", callID, c.Status, ErrInvalidState)
	}

	release, err := o.locks.Acquire(ctx, callID)
	if err != nil {
		reason := "session already active"
		if !errors.Is(err, ErrSessionConflict) {
			reason = "session lock unavailable"
		}
		o.reject(ctx, media, callID, reason, true)
		return err
	}
	defer release()

	question := p.CustomQuestions
	if strings.TrimSpace(question) == "" {
		question = o.opts.DefaultQuestion
	}
	cfg := conversation.Config{
		Engine: conversation.EngineConfig{
			Instructions: conversation.BuildPrompt(conversation.PromptInput{
				HospitalName: o.opts.HospitalName,
				PatientName:  p.Name,
				Question:     question,
				Language:     p.Language,
			}),
			Language: conversation.TranscriptionLanguage(p.Language),
			Voice:    o.opts.Voice,
		},
		Hooks: conversation.Hooks{
			OnConnected: func() {
				o.metrics.SessionStarted()
				o.events.SessionOpened(ctx, callID)
				log.Info("conversation started")
			},
			OnDisconnected: func(turns []transcript.Turn, err error) {
				o.metrics.SessionEnded()
				log.Info("conversation ended", "turns", len(turns), "err", err)
			},
		},
		Log: log,
	}

	sess, err := conversation.Open(ctx, media, o.engine, cfg)
	if err != nil {
		// The patient is on the line; finish the call with what we have.
		log.Error("conversation engine unavailable", "err", err)
		_ = media.Close()
		return o.OnSessionEnd(ctx, callID, nil)
	}
	res := sess.AwaitClose()
	return o.OnSessionEnd(ctx, callID, res.Turns)
}

// OnSessionEnd finalizes a call from its final turn list.
func (o *Orchestrator) OnSessionEnd(ctx context.Context, callID int64, turns []transcript.Turn) error {
	return o.finalize(ctx, callID, Parked{Turns: turns, EndedAt: o.clock().UTC()})
}

// Reconcile replays a finalization that failed to persist.
func (o *Orchestrator) Reconcile(ctx context.Context, callID int64) error {
	p, err := o.pending.Load(ctx, callID)
	if err != nil {
		return err
	}
	o.log.Info("reconciling parked finalization", "call_id", callID, "turns", len(p.Turns))
	return o.finalize(ctx, callID, p)
}

func (o *Orchestrator) Get(ctx context.Context, callID int64) (Call, error) {
	return o.repo.Get(ctx, callID)
}

func (o *Orchestrator) List(ctx context.Context, f Filter) ([]Call, error) {
	return o.repo.List(ctx, f)
}

// Transcript returns the stored transcript of a call.
func (o *Orchestrator) Transcript(ctx context.Context, callID int64) (Transcript, error) {
	if _, err := o.repo.Get(ctx, callID); err != nil {
		return Transcript{}, err
	}
	return o.repo.GetTranscript(ctx, callID)
}

func (o *Orchestrator) answerURL(callID int64) string {
	return o.opts.PublicBaseURL + "/api/calls/answer/" + strconv.FormatInt(callID, 10)
}

// StreamURL is the media websocket the carrier connects to for callID.
func (o *Orchestrator) StreamURL(callID int64) string {
	base := o.opts.PublicBaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/plivo/" + strconv.FormatInt(callID, 10)
}

// advance applies from→to if the call is still in from and reports whether it did.
func (o *Orchestrator) advance(ctx context.Context, callID int64, from, to Status) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidState)
	}
	ok, err := o.repo.Transition(ctx, callID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	if ok {
		o.transitioned(ctx, callID, from, to)
	}
	return ok, nil
}

func (o *Orchestrator) transitioned(ctx context.Context, callID int64, from, to Status) {
	o.metrics.Transition(string(from), string(to))
	o.events.StatusChanged(ctx, callID, string(from), string(to))
	o.log.Info("call status changed", "call_id", callID, "from", from, "to", to)
}

type reasonCloser interface {
	CloseWithReason(reason string) error
}

func (o *Orchestrator) reject(ctx context.Context, media conversation.Media, callID int64, reason string, known bool) {
	o.metrics.SessionRejected(reason)
	if known {
		o.events.SessionRejected(ctx, callID, reason)
	}
	logger.FromOr(ctx, o.log).Warn("media session rejected", "call_id", callID, "reason", reason)
	if rc, ok := media.(reasonCloser); ok {
		_ = rc.CloseWithReason(reason)
		return
	}
	_ = media.Close()
}

type nopRecorder struct{}

func (nopRecorder) StatusChanged(context.Context, int64, string, string) {}
func (nopRecorder) SessionOpened(context.Context, int64)                 {}
func (nopRecorder) SessionRejected(context.Context, int64, string)       {}
func (nopRecorder) FinalizeFailed(context.Context, int64, string)        {}
func (nopRecorder) SummaryFallback(context.Context, int64, string)       {}
