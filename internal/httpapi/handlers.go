package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"patient-followup/internal/audit"
	"patient-followup/internal/auth"
	"patient-followup/internal/calls"
	"patient-followup/internal/patients"
	"patient-followup/internal/reporting"
	"patient-followup/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Keys     *auth.KeyRing
	Patients PatientService
	Calls    CallService
	Events   EventLog
	Stats    StatsService

	// Now defaults to time.Now.
	Now func() time.Time
}

type PatientService interface {
	Create(ctx context.Context, req patients.CreateRequest) (patients.Patient, error)
	Get(ctx context.Context, id int64) (patients.Patient, error)
	List(ctx context.Context) ([]patients.Listing, error)
	Update(ctx context.Context, id int64, req patients.UpdateRequest) (patients.Patient, error)
	Delete(ctx context.Context, id int64) error
}

type CallService interface {
	Initiate(ctx context.Context, patientID int64) (calls.Call, error)
	Get(ctx context.Context, callID int64) (calls.Call, error)
	List(ctx context.Context, f calls.Filter) ([]calls.Call, error)
	Transcript(ctx context.Context, callID int64) (calls.Transcript, error)
	Reconcile(ctx context.Context, callID int64) error
}

type EventLog interface {
	ListByCall(ctx context.Context, callID int64) ([]audit.Event, error)
}

type StatsService interface {
	CallsSummary(ctx context.Context, req reporting.CallsSummaryRequest) (reporting.CallsSummary, error)
}

// defaultStatsWindow is used when /stats is called without a range.
const defaultStatsWindow = 30 * 24 * time.Hour

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type tokenRequest struct {
	OperatorID string `json:"operator_id"`
	APIKey     string `json:"api_key"`
}

// Token exchanges an operator API key for a JWT pair carrying the key's role.
func (h Handlers) Token(c *gin.Context) {
	if h.Auth == nil || h.Keys == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.OperatorID = strings.TrimSpace(req.OperatorID)
	if req.OperatorID == "" || req.APIKey == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator_id and api_key required"})
		return
	}
	role, err := h.Keys.Authenticate(req.APIKey)
	if err != nil {
		logger.FromGin(c).Warn("token request rejected", "operator_id", req.OperatorID)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.OperatorID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a token pair. The role must still have a configured key.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Keys == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	now := h.now()
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, now)
	if err != nil || !h.Keys.Enabled(claims.Role) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	pair, err := h.Auth.IssuePair(now, claims.OperatorID, claims.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Patients ---

func (h Handlers) CreatePatient(c *gin.Context) {
	var req patients.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Patients.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "create patient", err)
		return
	}
	logger.FromGin(c).Info("patient created", "patient_id", p.ID)
	c.JSON(http.StatusCreated, p)
}

func (h Handlers) ListPatients(c *gin.Context) {
	rows, err := h.Patients.List(c.Request.Context())
	if err != nil {
		h.fail(c, "list patients", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patients": rows})
}

func (h Handlers) UpdatePatient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req patients.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Patients.Update(c.Request.Context(), id, req)
	if err != nil {
		h.fail(c, "update patient", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) DeletePatient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Patients.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, "delete patient", err)
		return
	}
	logger.FromGin(c).Info("patient deleted", "patient_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "Patient deleted successfully"})
}

func (h Handlers) PatientCalls(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.Patients.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get patient", err)
		return
	}
	rows, err := h.Calls.List(c.Request.Context(), calls.Filter{PatientID: id})
	if err != nil {
		h.fail(c, "list patient calls", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patient_id":   p.ID,
		"patient_name": p.Name,
		"total_calls":  len(rows),
		"calls":        rows,
	})
}

// --- Calls ---

type initiateRequest struct {
	PatientID int64 `json:"patient_id"`
}

func (h Handlers) InitiateCall(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PatientID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "patient_id required"})
		return
	}
	ctx := c.Request.Context()
	p, err := h.Patients.Get(ctx, req.PatientID)
	if err != nil {
		h.fail(c, "get patient", err)
		return
	}
	call, err := h.Calls.Initiate(ctx, p.ID)
	if err != nil {
		h.fail(c, "initiate call", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Call initiated successfully",
		"call_id":   call.ID,
		"call_uuid": call.CallSID,
		"status":    call.Status,
		"patient":   p.Name,
		"phone":     p.Phone,
	})
}

func (h Handlers) ListCalls(c *gin.Context) {
	var f calls.Filter
	if raw := c.Query("patient_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid patient_id"})
			return
		}
		f.PatientID = id
	}
	rows, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "list calls", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "calls": rows})
}

func (h Handlers) GetCall(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get call", err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) GetTranscript(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.Calls.Transcript(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get transcript", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call_id":    id,
		"transcript": t.FullTranscript,
		"summary":    t.Summary,
		"costs": gin.H{
			"stt":       t.STTCost,
			"llm":       t.LLMCost,
			"tts":       t.TTSCost,
			"telephony": t.TelephonyCost,
		},
		"needs_review": t.NeedsReview,
		"created_at":   t.CreatedAt,
	})
}

func (h Handlers) CallEvents(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Calls.Get(ctx, id); err != nil {
		h.fail(c, "get call", err)
		return
	}
	events, err := h.Events.ListByCall(ctx, id)
	if err != nil {
		h.fail(c, "list call events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": id, "events": events})
}

// Reconcile replays a parked finalization for a call.
func (h Handlers) Reconcile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Calls.Reconcile(c.Request.Context(), id); err != nil {
		h.fail(c, "reconcile call", err)
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get call", err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// --- Stats ---

// CallStats summarizes calls over [from, to). Without a range it covers the last 30 days.
func (h Handlers) CallStats(c *gin.Context) {
	to := h.now().UTC()
	from := to.Add(-defaultStatsWindow)
	var err error
	if raw := c.Query("to"); raw != "" {
		if to, err = parseTime(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		if c.Query("from") == "" {
			from = to.Add(-defaultStatsWindow)
		}
	}
	if raw := c.Query("from"); raw != "" {
		if from, err = parseTime(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
	}
	req := reporting.CallsSummaryRequest{Range: reporting.TimeRange{From: from, To: to}}
	if raw := c.Query("patient_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid patient_id"})
			return
		}
		req.PatientID = id
	}
	out, err := h.Stats.CallsSummary(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "calls summary", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// parseTime accepts RFC 3339 timestamps or plain dates (UTC midnight).
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// fail maps service errors to status codes. Gateway and storage details stay in the log.
func (h Handlers) fail(c *gin.Context, op string, err error) {
	log := logger.FromGin(c)
	switch {
	case errors.Is(err, patients.ErrInvalidArgument),
		errors.Is(err, patients.ErrDuplicatePhone),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, patients.ErrNotFound),
		errors.Is(err, calls.ErrNotFound),
		errors.Is(err, calls.ErrTranscriptNotFound),
		errors.Is(err, calls.ErrNothingPending):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrGateway):
		log.Error(op+" failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate call"})
	default:
		log.Error(op+" failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
