package reporting

import (
	"context"
	"errors"

	"patient-followup/internal/calls"
	"patient-followup/internal/pricing"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Both call repositories satisfy it.
type Repository interface {
	List(ctx context.Context, f calls.Filter) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.PatientID < 0 {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx, calls.Filter{PatientID: req.PatientID, From: req.Range.From, To: req.Range.To})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: req.Range, PatientID: req.PatientID, TotalCost: decimal.Zero, AverageCost: decimal.Zero}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.Duration
		out.TotalCost = out.TotalCost.Add(c.Cost)
		switch c.Status {
		case calls.StatusInitiated:
			out.InitiatedCalls++
		case calls.StatusRinging:
			out.RingingCalls++
		case calls.StatusAnswered:
			out.AnsweredCalls++
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
		out.AverageCost = out.TotalCost.Div(decimal.NewFromInt(int64(out.CompletedCalls))).Round(pricing.Places)
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.AnsweredCalls+out.CompletedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
