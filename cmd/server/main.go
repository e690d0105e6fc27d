package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	id "keystone/pkg/domain"
	audit "keystone/pkg/platform/audit"
	"keystone/pkg/platform/audit/forwarder"
	"keystone/pkg/platform/audit/publishers/compliance"
	"keystone/pkg/platform/audit/publishers/ops"
	"keystone/pkg/platform/audit/publishers/security"
	auditmem "keystone/pkg/platform/audit/store/memory"
	auditpg "keystone/pkg/platform/audit/store/postgres"

	"keystone/internal/elevation/evidence"
	elevhandler "keystone/internal/elevation/handler"
	elevmetrics "keystone/internal/elevation/metrics"
	"keystone/internal/elevation/service"
	"keystone/internal/elevation/store"
	"keystone/internal/elevation/workflow"
	"keystone/internal/mfa"
	"keystone/internal/notify"
	"keystone/internal/platform/config"
	"keystone/internal/platform/httpserver"
	"keystone/internal/platform/kafka/producer"
	"keystone/internal/platform/logger"
	"keystone/internal/platform/metrics"
	"keystone/internal/platform/middleware"
	platformredis "keystone/internal/platform/redis"
	"keystone/internal/platform/token"
	"keystone/internal/policy"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit sink: postgres when configured, in-memory otherwise.
	var sink audit.Store
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(rootCtx); err != nil {
			return err
		}
		sink = auditpg.New(db)
		log.Info("audit sink: postgres")
	} else {
		sink = auditmem.NewInMemoryStore()
		log.Warn("audit sink: in-memory, events are lost on restart")
	}

	// Optional Kafka mirror for SIEM/warehouse consumers.
	var mirrors []audit.Appender
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := producer.New(cfg.Kafka.Brokers, log)
		if err != nil {
			return err
		}
		defer kafkaProducer.Close()

		fw := forwarder.New(kafkaProducer, cfg.Kafka.Topic, log)
		if err := kafkaProducer.EnsureTopics(rootCtx, 3, fw.Topics()...); err != nil {
			return err
		}
		mirrors = append(mirrors, fw)
		log.Info("audit mirror: kafka", "brokers", cfg.Kafka.Brokers)
	}
	auditSink := audit.NewFanout(sink, log, mirrors...)

	// Elevation store: redis when configured, in-memory otherwise.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var elevations store.Store
	if redisClient != nil {
		defer redisClient.Close()
		elevations = store.NewRedisStore(redisClient.Client)
		log.Info("elevation store: redis")
	} else {
		elevations = store.NewInMemoryStore()
		log.Warn("elevation store: in-memory, grants are lost on restart")
	}

	// Policy gate.
	var evaluator policy.Evaluator
	if cfg.Elevation.PolicyEvaluatorURL != "" {
		evaluator = policy.NewHTTPEvaluator(cfg.Elevation.PolicyEvaluatorURL)
	} else if cfg.Elevation.PolicyEnforcement {
		return errors.New("POLICY_EVALUATOR_URL is required when policy enforcement is on")
	}
	routes, err := policy.ParseRoutes(cfg.Elevation.PolicyRoutes)
	if err != nil {
		return fmt.Errorf("POLICY_ROUTES: %w", err)
	}
	policyGate := policy.NewGate(evaluator, routes, cfg.Elevation.PolicyEnforcement, log)

	// Step-up gate.
	if cfg.Elevation.MFAProviderURL == "" {
		return errors.New("MFA_PROVIDER_URL is required")
	}
	mfaPolicies, err := mfa.ParsePolicies(cfg.Elevation.MFAPolicies)
	if err != nil {
		return fmt.Errorf("MFA_POLICIES: %w", err)
	}
	mfaGate := mfa.NewGate(mfa.NewHTTPProvider(cfg.Elevation.MFAProviderURL), mfaPolicies, log)

	// Approvers: emergencies auto-approve within hard limits, everything
	// else goes through the external workflow.
	var wf service.ApprovalWorkflow
	if cfg.Elevation.WorkflowURL != "" {
		wf = workflow.NewHTTPWorkflow(cfg.Elevation.WorkflowURL, cfg.Elevation.WorkflowTimeout)
	} else {
		wf = workflow.Unavailable{}
		log.Warn("no approval workflow configured, non-emergency elevations will be rejected")
	}
	approver := &service.DispatchApprover{
		Auto: &service.AutoApprover{
			MaxDuration:     cfg.Elevation.AutoApproveMaxGrant,
			ForbiddenScopes: cfg.Elevation.ForbiddenScopes,
			SystemActor:     id.UserID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("keystone-system"))),
		},
		Manual: &service.ManualApprover{Workflow: wf},
	}

	// Notifications.
	var notifier service.Notifier
	if cfg.Elevation.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Elevation.NotifyWebhookURL)
	} else {
		notifier = &notify.LogNotifier{Logger: log}
	}

	compliancePub := compliance.New(auditSink, compliance.WithLogger(log))
	securityPub := security.New(auditSink, security.WithLogger(log))
	opsPub := ops.New(auditSink, ops.WithLogger(log))

	universal := make(map[id.Market]bool, len(cfg.Elevation.UniversalMarkets))
	for _, m := range cfg.Elevation.UniversalMarkets {
		universal[m] = true
	}

	elevMetrics := elevmetrics.New()
	manager := service.NewManager(service.Deps{
		Store:      elevations,
		Policies:   policyGate,
		Privacy:    policy.DefaultPrivacyRules(),
		MFA:        mfaGate,
		Approver:   approver,
		Signer:     evidence.NewSigner(cfg.Evidence.SigningKey, cfg.Evidence.Issuer),
		Compliance: compliancePub,
		Security:   securityPub,
		Ops:        opsPub,
		Sink:       auditSink,
		Notifier:   notifier,
		Metrics:    elevMetrics,
		Logger:     log,
		Config: service.Config{
			UniversalMarkets: universal,
			Revocation: service.RevocationRules{
				AdminRoles:          cfg.Revocation.AdminRoles,
				AllowSelfRevocation: cfg.Revocation.AllowSelfRevocation,
				ApproverCanRevoke:   cfg.Revocation.ApproverCanRevoke,
			},
		},
	})

	reaper := service.NewReaper(elevations, opsPub, notifier, elevMetrics, log,
		service.WithReapInterval(cfg.Elevation.ReapInterval))

	// HTTP surface.
	httpMetrics := metrics.New()
	validator := token.NewService(cfg.Identity.SigningKey, cfg.Identity.Issuer, cfg.Identity.Audience)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientInfo)
	router.Use(httpMetrics.Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", metrics.Handler())
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		elevhandler.New(manager, log, elevMetrics).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return securityPub.Run(ctx) })
	g.Go(func() error { return reaper.Run(ctx) })
	g.Go(func() error {
		log.Info("starting keystone", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Final flush so buffered security events survive shutdown.
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFlush()
		securityPub.Flush(flushCtx)
		return nil
	})

	return g.Wait()
}
