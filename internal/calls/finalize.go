package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"patient-followup/internal/pricing"
	"patient-followup/internal/summary"
	"patient-followup/internal/transcript"
	"patient-followup/pkg/logger"
)

// finalize summarizes, costs and persists a finished call.
//
// It runs detached from the caller's cancellation and serialized per call.
// The summary gets SummaryTimeout; the lookup and the write each get their own
// FinalizeTimeout. A persistence failure parks the turns for Reconcile.
func (o *Orchestrator) finalize(ctx context.Context, callID int64, p Parked) error {
	unlock := o.finalizing.Lock(callID)
	defer unlock()

	base := context.WithoutCancel(ctx)
	start := time.Now()
	log := logger.FromOr(base, o.log).With("call_id", callID)

	getCtx, cancelGet := context.WithTimeout(base, o.opts.FinalizeTimeout)
	c, err := o.repo.Get(getCtx, callID)
	cancelGet()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return o.failFinalize(base, callID, p, start, err)
	}
	if !finalizable(c.Status) {
		log.Warn("finalize skipped", "status", c.Status)
		return fmt.Errorf("call %d is %s: %w", callID, c.Status, ErrInvalidState)
	}

	usage := transcript.DeriveUsage(p.Turns)
	sum, needsReview := o.summarize(base, callID, p.Turns)

	ctx, cancel := context.WithTimeout(base, o.opts.FinalizeTimeout)
	defer cancel()

	duration := wholeSeconds(p.EndedAt.Sub(c.StartedAt))
	cost, err := o.pricing.CalculateCallCost(pricing.CallUsage{
		DurationSeconds: duration,
		InputTokens:     usage.InputTokens,
		OutputTokens:    usage.OutputTokens,
		TTSCharacters:   usage.TTSCharacters,
	})
	if err != nil {
		return o.failFinalize(ctx, callID, p, start, err)
	}

	doc, err := transcript.NewDocument(p.Turns, p.EndedAt).Encode()
	if err != nil {
		return o.failFinalize(ctx, callID, p, start, err)
	}
	sumJSON, err := sum.Encode()
	if err != nil {
		return o.failFinalize(ctx, callID, p, start, err)
	}

	err = o.repo.Finalize(ctx, Finalization{
		CallID:   callID,
		Duration: duration,
		Cost:     cost.Total,
		EndedAt:  p.EndedAt,
		Transcript: Transcript{
			CallID:         callID,
			FullTranscript: json.RawMessage(doc),
			Summary:        json.RawMessage(sumJSON),
			STTCost:        cost.STT,
			LLMCost:        cost.LLM,
			TTSCost:        cost.TTS,
			TelephonyCost:  cost.Telephony,
			NeedsReview:    needsReview,
		},
	})
	if err != nil {
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
			return err
		}
		return o.failFinalize(ctx, callID, p, start, err)
	}

	if err := o.pending.Clear(ctx, callID); err != nil {
		log.Warn("pending finalization not cleared", "err", err)
	}
	if c.Status == StatusAnswered {
		o.transitioned(ctx, callID, StatusAnswered, StatusCompleted)
	}
	total, _ := cost.Total.Float64()
	o.metrics.Finalized(true, time.Since(start).Seconds(), total)
	log.Info("call finalized",
		"duration", duration,
		"cost", cost.Total.String(),
		"turns", len(p.Turns),
		"needs_review", needsReview,
	)
	return nil
}

// summarize never fails: an error or an expired SummaryTimeout yields the fallback.
func (o *Orchestrator) summarize(ctx context.Context, callID int64, turns []transcript.Turn) (summary.Summary, bool) {
	if o.summarizer != nil {
		sctx, cancel := context.WithTimeout(ctx, o.opts.SummaryTimeout)
		s, err := o.summarizer.Summarize(sctx, turns)
		cancel()
		if err == nil {
			return s, false
		}
		logger.FromOr(ctx, o.log).Warn("summary generation failed", "call_id", callID, "err", err)
	}
	o.metrics.SummaryFallback()
	o.events.SummaryFallback(ctx, callID, "summary unavailable, fallback stored")
	return summary.Fallback(), o.opts.SummaryPolicy == SummaryPolicyFlag
}

func (o *Orchestrator) failFinalize(ctx context.Context, callID int64, p Parked, start time.Time, cause error) error {
	// The failed step may have spent ctx's deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.FinalizeTimeout)
	defer cancel()
	log := logger.FromOr(ctx, o.log).With("call_id", callID)
	log.Error("finalize failed, parked for reconcile", "err", cause)

	if err := o.pending.Park(ctx, callID, p); err != nil {
		log.Error("park finalization failed", "err", err)
	}
	o.events.FinalizeFailed(ctx, callID, cause.Error())
	o.metrics.Finalized(false, time.Since(start).Seconds(), 0)
	return fmt.Errorf("finalize call %d: %w", callID, cause)
}

func wholeSeconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
