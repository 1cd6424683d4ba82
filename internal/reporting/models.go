package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics over [From, To).
// PatientID is optional.
type CallsSummaryRequest struct {
	Range     TimeRange `json:"range"`
	PatientID int64     `json:"patient_id,omitempty"`
}

type CallsSummary struct {
	Range     TimeRange `json:"range"`
	PatientID int64     `json:"patient_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	InitiatedCalls int `json:"initiated_calls"`
	RingingCalls   int `json:"ringing_calls"`
	AnsweredCalls  int `json:"answered_calls"`
	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TotalCost decimal.Decimal `json:"total_cost"`
	// AverageCost is over completed calls only; others have no cost yet.
	AverageCost decimal.Decimal `json:"average_cost"`

	// ConnectionRate is the share of calls that were picked up.
	ConnectionRate float64 `json:"connection_rate"`
}
