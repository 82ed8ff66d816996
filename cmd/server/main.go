package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/channels/email"
	"github.com/keiracom/agencyos-dispatch/internal/channels/linkedin"
	"github.com/keiracom/agencyos-dispatch/internal/channels/mail"
	"github.com/keiracom/agencyos-dispatch/internal/channels/sms"
	"github.com/keiracom/agencyos-dispatch/internal/channels/voice"
	"github.com/keiracom/agencyos-dispatch/internal/cache"
	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/operator"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/alert"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httputil"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
	"github.com/keiracom/agencyos-dispatch/internal/ratelimit"
	"github.com/keiracom/agencyos-dispatch/internal/replyrouter"
	"github.com/keiracom/agencyos-dispatch/internal/repository/postgres"
	redisrepo "github.com/keiracom/agencyos-dispatch/internal/repository/redis"
	"github.com/keiracom/agencyos-dispatch/internal/suppressionindex"
	"github.com/keiracom/agencyos-dispatch/internal/webhook"
)

// recoveryPollJitter keeps the per-channel recovery sweep from lining up
// with the reply dispatcher's own tick in cmd/worker.
const recoveryPollJitter = 17 * time.Second

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale/stub processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func main() {
	log.Println("Starting Agency OS dispatch server...")

	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.Host
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifeMins) * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database (%s): %v", extractHost(cfg.Postgres.DSN), err)
	}
	log.Printf("Connected to database (%s)", extractHost(cfg.Postgres.DSN))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	log.Println("Connected to redis")

	alert.SetDefault(alert.LogSink{})

	tenantRepo := postgres.NewTenantRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	leadRepo := postgres.NewLeadRepo(db)
	assignmentRepo := postgres.NewAssignmentRepo(db)
	activityRepo := postgres.NewActivityRepo(db)
	suppressionRepo := postgres.NewSuppressionRepo(db)
	conversationRepo := postgres.NewConversationRepo(db)
	replyRepo := postgres.NewReplyRepo(db)
	webhookPushLogRepo := postgres.NewWebhookPushLogRepo(db)

	suppressionSvc := suppressionindex.NewService(suppressionRepo, alert.LogSink{})
	idempotencyStore := redisrepo.NewIdempotencyStore(redisClient)
	spendLedger := redisrepo.NewSpendLedger(redisClient)
	rateLedger := ratelimit.NewLedger(redisClient)
	cacheLayer := cache.New(redisClient, cfg.Cache.VersionPrefix,
		time.Duration(cfg.Cache.EnrichmentTTLDays)*24*time.Hour,
		time.Duration(cfg.Cache.SuppressionReplicaTTLHours)*time.Hour)
	controls := operator.New(redisClient)

	httpClient := httpretry.NewRetryClient(nil, 3)
	drivers := buildInboundDrivers(db, httpClient)

	webhookPusher := webhook.New(httpClient, tenantRepo, webhookPushLogRepo)

	router := replyrouter.New(
		idempotencyStore,
		leadRepo, leadRepo,
		suppressionSvc, suppressionSvc,
		conversationRepo,
		assignmentRepo,
		tenantRepo,
		campaignRepo,
		activityRepo,
		conversationRepo,
		spendLedger,
		replyRepo,
		webhookPusher,
		replyrouter.AlertAdapter{Sink: alert.LogSink{}},
		replyrouter.KeywordClassifier{},
		cfg.ReplyRouter,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runRecoveryJob(ctx, drivers, router, redisClient, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      buildRouter(db, redisClient, drivers, router, rateLedger, cacheLayer, controls, tenantRepo),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// buildInboundDrivers constructs one driver instance per channel purely
// for webhook-ingress and recovery-poll parsing. It intentionally
// bypasses the test-mode wrapper cmd/worker applies to its send-side
// drivers: ingest has no address to redirect and must observe every
// inbound event regardless of the operator's test-mode flag.
func buildInboundDrivers(db *sql.DB, httpClient *httpretry.RetryClient) map[domain.Channel]channels.Driver {
	drivers := map[domain.Channel]channels.Driver{
		domain.ChannelSMS:   sms.New(httpClient, os.Getenv("SMS_PROVIDER_URL"), os.Getenv("SMS_PROVIDER_API_KEY"), os.Getenv("DNCR_PROVIDER_URL")),
		domain.ChannelVoice: voice.New(httpClient, os.Getenv("VOICE_PROVIDER_URL"), os.Getenv("VOICE_PROVIDER_API_KEY")),
		domain.ChannelMail:  mail.New(httpClient, os.Getenv("MAIL_PROVIDER_URL"), os.Getenv("MAIL_PROVIDER_API_KEY")),
	}
	// The email driver's Send side needs a live SES client; ingest parsing
	// does not call Send, so a nil client is safe here.
	drivers[domain.ChannelEmail] = email.New(nil, "", os.Getenv("TRACKING_URL"), os.Getenv("SIGNING_KEY"))

	linkedinOAuth := oauth2.Config{
		ClientID:     os.Getenv("LINKEDIN_CLIENT_ID"),
		ClientSecret: os.Getenv("LINKEDIN_CLIENT_SECRET"),
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
		},
	}
	seatStore := linkedin.NewSeatStore(db, linkedinOAuth)
	drivers[domain.ChannelLinkedIn] = linkedin.New(seatStore, "https://api.linkedin.com/v2")
	return drivers
}

func buildRouter(
	db *sql.DB,
	redisClient *redis.Client,
	drivers map[domain.Channel]channels.Driver,
	router *replyrouter.Router,
	rateLedger *ratelimit.Ledger,
	cacheLayer *cache.Cache,
	controls *operator.Controls,
	tenants *postgres.TenantRepo,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", healthHandler(db, redisClient))
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/health/ready", healthHandler(db, redisClient))

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/email", webhookHandler(domain.ChannelEmail, domain.KeyEmail, drivers[domain.ChannelEmail], router))
		r.Post("/sms", webhookHandler(domain.ChannelSMS, domain.KeyPhone, drivers[domain.ChannelSMS], router))
		r.Post("/voice", webhookHandler(domain.ChannelVoice, domain.KeyPhone, drivers[domain.ChannelVoice], router))
		r.Post("/linkedin", webhookHandler(domain.ChannelLinkedIn, domain.KeyDomain, drivers[domain.ChannelLinkedIn], router))
	})

	r.Route("/operator", func(r chi.Router) {
		r.Use(operatorAuth)
		r.Post("/scheduler/pause", operatorSchedulerPause(controls, true))
		r.Post("/scheduler/resume", operatorSchedulerPause(controls, false))
		r.Post("/test-mode/enable", operatorTestMode(controls, true))
		r.Post("/test-mode/disable", operatorTestMode(controls, false))
		r.Post("/tenants/{tenantID}/pause", operatorTenantSubscription(tenants, domain.SubscriptionPaused))
		r.Post("/tenants/{tenantID}/resume", operatorTenantSubscription(tenants, domain.SubscriptionActive))
		r.Post("/rate-ledger/reset", operatorResetRateLedger(rateLedger))
		r.Post("/cache/bump-version", operatorBumpCacheVersion(cacheLayer))
	})

	return r
}

func healthHandler(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["redis"] = err.Error()
		}
		httputil.JSON(w, status, body)
	}
}

// webhookHandler adapts one channel's raw provider payload into a
// replyrouter.InboundMessage via the driver's Ingest, then hands it to
// the Router. A payload the driver reports as not-worth-routing (ok=false)
// is acknowledged with 204 No Content so the provider does not retry it
// forever.
func webhookHandler(ch domain.Channel, keyKind domain.SuppressionKeyKind, driver channels.Driver, router *replyrouter.Router) http.HandlerFunc {
	adapter, _ := driver.(channels.InboundAdapter)
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httputil.BadRequest(w, "read body")
			return
		}
		if adapter == nil {
			httputil.NoContent(w)
			return
		}

		event, ok, err := adapter.Ingest(body)
		if err != nil {
			logger.Error("webhook ingest failed", "channel", string(ch), "error", err.Error())
			httputil.BadRequest(w, "ingest failed")
			return
		}
		if !ok {
			httputil.NoContent(w)
			return
		}
		if event.Kind != "reply" {
			// Delivery/open/click/bounce/spam events are recorded by the
			// provider-specific collector, not routed through the Reply
			// Router, which only ever acts on inbound conversation content.
			httputil.NoContent(w)
			return
		}

		msg := replyrouter.InboundMessage{
			LeadKey:       event.LeadRef,
			LeadKeyKind:   keyKind,
			Channel:       ch,
			Body:          event.Body,
			ThreadKey:     event.ProviderMsgID,
			ProviderMsgID: event.ProviderMsgID,
			Timestamp:     time.Unix(event.OccurredAt, 0).UTC(),
		}
		decision, err := router.Handle(r.Context(), msg)
		if err != nil {
			logger.Error("reply router handle failed", "channel", string(ch), "provider_msg_id", event.ProviderMsgID, "error", err.Error())
			httputil.InternalError(w, err)
			return
		}
		httputil.OK(w, decision)
	}
}

// operatorAuth requires a bearer token matching OPERATOR_API_KEY on every
// operator-surface route (spec §6.5). An unset key disables the surface
// entirely rather than silently leaving it open.
func operatorAuth(next http.Handler) http.Handler {
	key := os.Getenv("OPERATOR_API_KEY")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key == "" {
			httputil.Error(w, http.StatusServiceUnavailable, "operator surface disabled: OPERATOR_API_KEY not configured")
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+key {
			httputil.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func operatorSchedulerPause(controls *operator.Controls, paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := controls.SetSchedulerPaused(r.Context(), paused); err != nil {
			httputil.InternalError(w, err)
			return
		}
		httputil.NoContent(w)
	}
}

func operatorTestMode(controls *operator.Controls, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := controls.SetTestModeEnabled(r.Context(), enabled); err != nil {
			httputil.InternalError(w, err)
			return
		}
		httputil.NoContent(w)
	}
}

func operatorTenantSubscription(tenants *postgres.TenantRepo, state domain.SubscriptionState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantID")
		if tenantID == "" {
			httputil.BadRequest(w, "missing tenant id")
			return
		}
		if err := tenants.SetSubscription(r.Context(), tenantID, state); err != nil {
			httputil.InternalError(w, err)
			return
		}
		httputil.NoContent(w)
	}
}

func operatorResetRateLedger(ledger *ratelimit.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ResourceID string `json:"resource_id"`
		}
		if !httputil.Decode(w, r, &body) {
			return
		}
		if body.ResourceID == "" {
			httputil.BadRequest(w, "resource_id required")
			return
		}
		if err := ledger.Reset(r.Context(), body.ResourceID, time.Now()); err != nil {
			httputil.InternalError(w, err)
			return
		}
		httputil.NoContent(w)
	}
}

func operatorBumpCacheVersion(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prefix string `json:"prefix"`
		}
		if !httputil.Decode(w, r, &body) {
			return
		}
		if body.Prefix == "" {
			httputil.BadRequest(w, "prefix required")
			return
		}
		c.BumpVersion(body.Prefix)
		httputil.NoContent(w)
	}
}

// runRecoveryJob implements the reply-router safety net of spec §4.10: on
// an interval, every driver that exposes EventPoller is asked for
// everything since its last successful sweep, and each returned payload is
// re-ingested exactly as a live webhook delivery would be. The watermark
// is kept in Redis per channel so a process restart does not re-poll the
// provider's entire history.
func runRecoveryJob(ctx context.Context, drivers map[domain.Channel]channels.Driver, router *replyrouter.Router, redisClient *redis.Client, cfg *config.Config) {
	interval := time.Duration(cfg.ReplyRouter.RecoveryPollMinutes)*time.Minute + recoveryPollJitter
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keyKinds := map[domain.Channel]domain.SuppressionKeyKind{
		domain.ChannelEmail:    domain.KeyEmail,
		domain.ChannelSMS:      domain.KeyPhone,
		domain.ChannelVoice:    domain.KeyPhone,
		domain.ChannelLinkedIn: domain.KeyDomain,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for ch, driver := range drivers {
				poller, ok := driver.(channels.EventPoller)
				adapter, adapterOK := driver.(channels.InboundAdapter)
				if !ok || !adapterOK {
					continue
				}
				runRecoverySweep(ctx, ch, keyKinds[ch], poller, adapter, router, redisClient)
			}
		}
	}
}

func runRecoverySweep(
	ctx context.Context,
	ch domain.Channel,
	keyKind domain.SuppressionKeyKind,
	poller channels.EventPoller,
	adapter channels.InboundAdapter,
	router *replyrouter.Router,
	redisClient *redis.Client,
) {
	watermarkKey := "recovery:last_poll:" + string(ch)
	since := time.Now().Add(-24 * time.Hour)
	if raw, err := redisClient.Get(ctx, watermarkKey).Int64(); err == nil {
		since = time.Unix(raw, 0)
	}

	payloads, err := poller.PollEvents(ctx, since)
	if err != nil {
		logger.Error("recovery poll failed", "channel", string(ch), "error", err.Error())
		return
	}

	now := time.Now()
	for _, payload := range payloads {
		event, ok, err := adapter.Ingest(payload)
		if err != nil || !ok || event.Kind != "reply" {
			continue
		}
		msg := replyrouter.InboundMessage{
			LeadKey:       event.LeadRef,
			LeadKeyKind:   keyKind,
			Channel:       ch,
			Body:          event.Body,
			ThreadKey:     event.ProviderMsgID,
			ProviderMsgID: event.ProviderMsgID,
			Timestamp:     time.Unix(event.OccurredAt, 0).UTC(),
		}
		if _, err := router.Handle(ctx, msg); err != nil {
			logger.Error("recovery handle failed", "channel", string(ch), "provider_msg_id", event.ProviderMsgID, "error", err.Error())
		}
	}
	redisClient.Set(ctx, watermarkKey, now.Unix(), 0)
}
