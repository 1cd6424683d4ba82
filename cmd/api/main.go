package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patient-followup/internal/audit"
	"patient-followup/internal/auth"
	"patient-followup/internal/calls"
	"patient-followup/internal/config"
	"patient-followup/internal/conversation"
	"patient-followup/internal/httpapi"
	"patient-followup/internal/patients"
	"patient-followup/internal/pricing"
	"patient-followup/internal/rbac"
	"patient-followup/internal/reporting"
	"patient-followup/internal/summary"
	"patient-followup/internal/telephony"
	"patient-followup/pkg/logger"
	"patient-followup/pkg/metrics"
	"patient-followup/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	// Money goes over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	keys := auth.NewKeyRing(map[string]string{
		rbac.RoleAdmin:    cfg.Auth.AdminAPIKey,
		rbac.RoleOperator: cfg.Auth.OperatorAPIKey,
		rbac.RoleViewer:   cfg.Auth.ViewerAPIKey,
	})

	st, err := openStores(rootCtx, cfg, log)
	if err != nil {
		log.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	callMetrics, err := metrics.NewCalls(reg)
	if err != nil {
		log.Error("metrics init failed", "err", err)
		os.Exit(1)
	}

	rates := applyRates(pricing.DefaultRates(), cfg.Rates)
	pricer, err := pricing.NewService(rates)
	if err != nil {
		log.Error("pricing init failed", "err", err)
		os.Exit(1)
	}

	engine, err := conversation.NewRealtimeEngine(conversation.RealtimeConfig{
		APIKey:             cfg.OpenAI.APIKey,
		URL:                cfg.Realtime.URL,
		Model:              cfg.Realtime.Model,
		Voice:              cfg.Realtime.Voice,
		TranscriptionModel: cfg.Realtime.TranscriptionModel,
	})
	if err != nil {
		log.Error("realtime engine init failed", "err", err)
		os.Exit(1)
	}

	summarizer, err := summary.NewOpenAISummarizer(summary.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.SummaryModel,
	}, log)
	if err != nil {
		log.Error("summarizer init failed", "err", err)
		os.Exit(1)
	}

	plivo := telephony.NewPlivoClient(telephony.PlivoConfig{
		AuthID:     cfg.Plivo.AuthID,
		AuthToken:  cfg.Plivo.AuthToken,
		FromNumber: cfg.Plivo.FromNumber,
		BaseURL:    cfg.Plivo.BaseURL,
	}, log)
	if err := plivo.CheckCredentials(); err != nil {
		// Initiate reports this per request; the rest of the API stays usable.
		log.Warn("plivo not configured", "err", err)
	}

	events := audit.NewService(st.events, log)
	patientSvc := patients.NewService(st.patients, calls.PatientCascade{Calls: st.calls, Events: st.purger})

	orch, err := calls.NewOrchestrator(calls.Deps{
		Calls:      st.calls,
		Patients:   patientSvc,
		Dialer:     plivo,
		Engine:     engine,
		Summarizer: summarizer,
		Pricing:    pricer,
		Locks:      st.locks,
		Pending:    st.pending,
		Events:     events,
		Metrics:    callMetrics,
		Log:        log,
	}, calls.Options{
		PublicBaseURL:   cfg.App.PublicBaseURL,
		HospitalName:    cfg.Calls.HospitalName,
		DefaultQuestion: cfg.Calls.DefaultQuestion,
		Voice:           cfg.Realtime.Voice,
		SummaryPolicy:   calls.SummaryPolicy(cfg.Calls.SummaryFailurePolicy),
		SummaryTimeout:  cfg.Calls.SummaryTimeout,
		FinalizeTimeout: cfg.Calls.FinalizeTimeout,
	})
	if err != nil {
		log.Error("orchestrator init failed", "err", err)
		os.Exit(1)
	}

	h := httpapi.Handlers{
		Auth:     authManager,
		Keys:     keys,
		Patients: patientSvc,
		Calls:    orch,
		Events:   events,
		Stats:    reporting.NewService(st.calls),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/", "/health", "/healthz", "/metrics"))

	// Route groups
	registerPublicRoutes(r, orch, st.db, reg)
	registerAuthRoutes(r, h)
	registerProtectedRoutes(r, h, auth.RequireAccessToken(authManager))

	// No WriteTimeout: media websockets stay open for the whole call.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "storage", st.mode, "redis", cfg.Redis.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	// Leave room for in-flight finalizations.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Calls.SummaryTimeout+2*cfg.Calls.FinalizeTimeout+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// stores bundles the storage-backed dependencies for the configured mode.
type stores struct {
	mode string
	db   *sql.DB
	rdb  *redis.Client

	patients patients.Repository
	calls    calls.Repository
	events   audit.Repository
	purger   calls.EventPurger
	locks    calls.SessionLocker
	pending  calls.PendingStore
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	if cfg.DB.Enabled() {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, err
		}
		if err := utils.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		st.mode = "postgres"
		st.db = db
		st.patients = patients.NewPostgresRepo(db)
		st.calls = calls.NewPostgresRepo(db)
		st.events = audit.NewPostgresRepo(db)
		// call_events rows go with their calls through the foreign key.
	} else {
		log.Warn("DB_HOST not set; keeping state in memory")
		st.mode = "memory"
		eventRepo := audit.NewMemoryRepo()
		st.patients = patients.NewMemoryRepo()
		st.calls = calls.NewMemoryRepo()
		st.events = eventRepo
		st.purger = eventRepo
	}

	local := calls.NewLocalLocker()
	st.locks = local
	st.pending = calls.NewMemoryPending()

	if cfg.Redis.Enabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		st.rdb = rdb
		st.locks = calls.ChainLocker{local, calls.NewRedisLocker(rdb, cfg.Calls.SessionLockTTL)}
		st.pending = calls.NewRedisPending(rdb, 0)
	}
	return st, nil
}

func (s *stores) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func applyRates(r pricing.Rates, o config.RatesConfig) pricing.Rates {
	if o.STTPerMinute.Valid {
		r.STTPerMinute = o.STTPerMinute.Decimal
	}
	if o.LLMInputPerMillion.Valid {
		r.LLMInputPerMillion = o.LLMInputPerMillion.Decimal
	}
	if o.LLMOutputPerMillion.Valid {
		r.LLMOutputPerMillion = o.LLMOutputPerMillion.Decimal
	}
	if o.TTSPerThousandChars.Valid {
		r.TTSPerThousandChars = o.TTSPerThousandChars.Decimal
	}
	if o.TelephonyPerMinute.Valid {
		r.TelephonyPerMinute = o.TelephonyPerMinute.Decimal
	}
	return r
}
