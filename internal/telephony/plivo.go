package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultPlivoAPIBaseURL = "https://api.plivo.com"

// PlivoConfig holds carrier credentials. FromNumber is the caller id shown to patients.
type PlivoConfig struct {
	AuthID     string
	AuthToken  string
	FromNumber string
	BaseURL    string
	Timeout    time.Duration
}

// PlivoClient places outbound calls through the Plivo REST API.
type PlivoClient struct {
	cfg  PlivoConfig
	http *resty.Client
	log  *slog.Logger
}

func NewPlivoClient(cfg PlivoConfig, log *slog.Logger) *PlivoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPlivoAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.AuthID, cfg.AuthToken).
		SetHeader("Content-Type", "application/json")
	return &PlivoClient{cfg: cfg, http: c, log: log}
}

func (p *PlivoClient) Name() string { return "plivo" }

func (p *PlivoClient) CheckCredentials() error {
	if strings.TrimSpace(p.cfg.AuthID) == "" || strings.TrimSpace(p.cfg.AuthToken) == "" || strings.TrimSpace(p.cfg.FromNumber) == "" {
		return ErrMissingCredentials
	}
	return nil
}

type plivoCallRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	AnswerURL    string `json:"answer_url"`
	AnswerMethod string `json:"answer_method"`
}

type plivoCallResponse struct {
	APIID       string `json:"api_id"`
	Message     string `json:"message"`
	RequestUUID any    `json:"request_uuid"`
	Error       string `json:"error"`
}

// Dial creates the outbound call. Any failure maps to ErrGateway.
func (p *PlivoClient) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	if err := p.CheckCredentials(); err != nil {
		return DialResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.AnswerURL) == "" {
		return DialResult{}, fmt.Errorf("%w: destination and answer url required", ErrGateway)
	}

	var out plivoCallResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetPathParam("auth_id", p.cfg.AuthID).
		SetBody(plivoCallRequest{
			From:         p.cfg.FromNumber,
			To:           req.To,
			AnswerURL:    req.AnswerURL,
			AnswerMethod: "POST",
		}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/Account/{auth_id}/Call/")
	if err != nil {
		p.log.Error("plivo dial failed", "err", err)
		return DialResult{}, ErrGateway
	}
	if resp.IsError() {
		p.log.Error("plivo dial rejected", "status", resp.StatusCode(), "error", out.Error, "api_id", out.APIID)
		return DialResult{}, ErrGateway
	}

	id := requestUUID(out.RequestUUID)
	if id == "" {
		p.log.Error("plivo dial returned no request_uuid", "api_id", out.APIID)
		return DialResult{}, ErrGateway
	}
	p.log.Info("plivo call queued", "request_uuid", id, "api_id", out.APIID)
	return DialResult{ProviderCallID: id}, nil
}

// requestUUID accepts both the single-destination string form and the
// bulk-dial list form of request_uuid.
func requestUUID(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
