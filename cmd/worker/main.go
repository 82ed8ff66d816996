package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/keiracom/agencyos-dispatch/internal/cache"
	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/channels/email"
	"github.com/keiracom/agencyos-dispatch/internal/channels/linkedin"
	"github.com/keiracom/agencyos-dispatch/internal/channels/mail"
	"github.com/keiracom/agencyos-dispatch/internal/channels/sms"
	"github.com/keiracom/agencyos-dispatch/internal/channels/voice"
	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/content"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/enrichment"
	"github.com/keiracom/agencyos-dispatch/internal/enrichment/providers"
	"github.com/keiracom/agencyos-dispatch/internal/jit"
	"github.com/keiracom/agencyos-dispatch/internal/leadpool"
	"github.com/keiracom/agencyos-dispatch/internal/operator"
	"github.com/keiracom/agencyos-dispatch/internal/patterns"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/alert"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/distlock"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
	"github.com/keiracom/agencyos-dispatch/internal/ratelimit"
	"github.com/keiracom/agencyos-dispatch/internal/replydispatch"
	"github.com/keiracom/agencyos-dispatch/internal/repository/postgres"
	"github.com/keiracom/agencyos-dispatch/internal/respool"
	"github.com/keiracom/agencyos-dispatch/internal/scheduler"
	"github.com/keiracom/agencyos-dispatch/internal/scorer"
	"github.com/keiracom/agencyos-dispatch/internal/suppressionindex"
)

// enrichmentBatchInterval is how often the enrichment+scoring job polls
// for pending leads. Not operator-tunable; the waterfall's own per-lead
// timeout (cfg.Waterfall.PerLeadTimeoutSecs) bounds each batch instead.
const enrichmentBatchInterval = 5 * time.Minute

// replyDispatchInterval is how often due scheduled replies are polled.
// Shorter than the scheduler's hourly cadence since a reply's randomized
// anti-bot delay is measured in minutes, not hours.
const replyDispatchInterval = 1 * time.Minute

// replenishmentInterval is how often the monthly replenishment gap is
// checked; the gap calculation itself is time-scale-agnostic so a daily
// poll is enough to stay within a few hours of the monthly target.
const replenishmentInterval = 24 * time.Hour

func main() {
	log.Println("Starting Agency OS dispatch worker...")

	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

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

	// Repositories
	tenantRepo := postgres.NewTenantRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	leadRepo := postgres.NewLeadRepo(db)
	assignmentRepo := postgres.NewAssignmentRepo(db)
	activityRepo := postgres.NewActivityRepo(db)
	resourceRepo := postgres.NewResourceRepo(db)
	suppressionRepo := postgres.NewSuppressionRepo(db)
	patternRepo := postgres.NewPatternRepo(db)
	replyRepo := postgres.NewReplyRepo(db)

	// Core engines, the same wiring shape cmd/server assembles
	// independently for the request-serving side of the process set.
	suppressionSvc := suppressionindex.NewService(suppressionRepo, alert.LogSink{})
	rateLedger := ratelimit.NewLedger(redisClient)
	pool := respool.New(resourceRepo, rateLedger)

	controls := operator.New(redisClient)

	httpClient := httpretry.NewRetryClient(nil, 3)
	drivers := buildDrivers(cfg, db, httpClient, controls)

	contentResolver := content.New(httpClient, os.Getenv("CONTENT_SERVICE_URL"), os.Getenv("CONTENT_SERVICE_API_KEY"))
	addressResolver := buildAddressResolver()

	validator := jit.New(suppressionSvc, activityRepo, pool, cfg.JIT)

	lockFactory := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, ttl)
	}

	sched := scheduler.New(
		assignmentRepo, tenantRepo, campaignRepo, leadRepo, activityRepo,
		validator, pool, drivers, contentResolver, addressResolver,
		lockFactory, alert.LogSink{}, suppressionSvc, cfg.Scheduler,
	)

	dispatcher := replydispatch.New(
		replyRepo, assignmentRepo, leadRepo, tenantRepo, pool, drivers,
		contentResolver, addressResolver, activityRepo, cfg.Scheduler.BatchSize,
	)

	cacheLayer := cache.New(redisClient, cfg.Cache.VersionPrefix,
		time.Duration(cfg.Cache.EnrichmentTTLDays)*24*time.Hour,
		time.Duration(cfg.Cache.SuppressionReplicaTTLHours)*time.Hour)
	waterfall := buildWaterfall(cfg, redisClient, cacheLayer, httpClient)

	sourceProvider := leadpool.NewRESTSourceProvider(httpClient, os.Getenv("LEAD_SOURCE_URL"), os.Getenv("LEAD_SOURCE_API_KEY"))
	allocator := leadpool.New(leadRepo, sourceProvider, suppressionSvc)

	patternsSvc := patterns.New(patternRepo, patternRepo, tenantRepo, cfg.Patterns)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	patternsSvc.Start(ctx)
	log.Println("Pattern detectors started")

	go runScheduler(ctx, sched, cfg, controls)
	log.Println("Outreach scheduler started")

	go runReplyDispatch(ctx, dispatcher)
	log.Println("Reply dispatcher started")

	go runEnrichmentAndScoring(ctx, leadRepo, assignmentRepo, tenantRepo, patternRepo, waterfall, cfg)
	log.Println("Enrichment and scoring job started")

	go runReplenishment(ctx, tenantRepo, campaignRepo, allocator)
	log.Println("Monthly replenishment job started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	patternsSvc.Stop()
	cancel()
	time.Sleep(2 * time.Second)
	log.Println("Worker stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func runScheduler(ctx context.Context, sched *scheduler.Scheduler, cfg *config.Config, controls *operator.Controls) {
	ticker := time.NewTicker(time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if paused, err := controls.SchedulerPaused(ctx); err != nil {
				log.Printf("scheduler pause flag read failed: %v", err)
			} else if paused {
				log.Println("scheduler run skipped: paused by operator")
				continue
			}
			result, err := sched.Run(ctx, time.Now())
			if err != nil {
				log.Printf("scheduler run failed: %v", err)
				continue
			}
			log.Printf("scheduler run: claimed=%d sent=%v rejected=%v failed=%v",
				result.Claimed, result.Sent, result.Rejected, result.Failed)
		}
	}
}

func runReplyDispatch(ctx context.Context, d *replydispatch.Dispatcher) {
	ticker := time.NewTicker(replyDispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Run(ctx, time.Now())
			if err != nil {
				log.Printf("reply dispatch run failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("reply dispatch run: sent=%d", n)
			}
		}
	}
}

// runEnrichmentAndScoring pulls leads still awaiting (or retrying)
// enrichment, runs them through the Waterfall, persists the outcome, and
// — for any lead with an active Assignment — recomputes the Automated
// Lead Score from the freshly enriched record and advances the
// assignment into the scheduler's claimable set. Without this job
// nothing ever transitions an assignment to in_sequence, so the
// scheduler would have no due work.
func runEnrichmentAndScoring(
	ctx context.Context,
	leadRepo *postgres.LeadRepo,
	assignmentRepo *postgres.AssignmentRepo,
	tenantRepo *postgres.TenantRepo,
	patternRepo *postgres.PatternRepo,
	waterfall *enrichment.Waterfall,
	cfg *config.Config,
) {
	ticker := time.NewTicker(enrichmentBatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runEnrichmentBatch(ctx, leadRepo, assignmentRepo, tenantRepo, patternRepo, waterfall, cfg)
		}
	}
}

func runEnrichmentBatch(
	ctx context.Context,
	leadRepo *postgres.LeadRepo,
	assignmentRepo *postgres.AssignmentRepo,
	tenantRepo *postgres.TenantRepo,
	patternRepo *postgres.PatternRepo,
	waterfall *enrichment.Waterfall,
	cfg *config.Config,
) {
	leads, err := leadRepo.PendingEnrichment(ctx, cfg.Scheduler.BatchSize)
	if err != nil {
		log.Printf("pending enrichment fetch failed: %v", err)
		return
	}
	if len(leads) == 0 {
		return
	}

	batchID := domain.NewID()
	platformPatterns := latestPatternsFor(ctx, patternRepo, "")
	tenantPatternCache := map[string][]domain.PatternRecord{}

	for _, lead := range leads {
		outcome := waterfall.Enrich(ctx, batchID, lead)
		if err := leadRepo.SaveEnrichment(ctx, outcome.Record); err != nil {
			log.Printf("save enrichment for lead %s failed: %v", lead.ID, err)
			continue
		}
		if !outcome.Accepted {
			continue
		}

		assignment, ok, err := assignmentRepo.ActiveAssignment(ctx, outcome.Record.ID)
		if err != nil {
			log.Printf("load active assignment for lead %s failed: %v", lead.ID, err)
			continue
		}
		if !ok || assignment.Status.IsTerminal() {
			continue
		}

		tenant, err := tenantRepo.GetTenant(ctx, assignment.TenantID)
		if err != nil {
			log.Printf("load tenant %s failed: %v", assignment.TenantID, err)
			continue
		}

		tenantPatterns, cached := tenantPatternCache[tenant.ID]
		if !cached {
			tenantPatterns = latestPatternsFor(ctx, patternRepo, tenant.ID)
			tenantPatternCache[tenant.ID] = tenantPatterns
		}

		weights := scorer.ResolveWeights(tenantPatterns, platformPatterns, tenant.ICP.WeightOverrides,
			cfg.Patterns.MinConfidence, cfg.Patterns.MinConversions)
		features := scorer.ExtractFeatures(outcome.Record, tenant.ICP, 0, time.Now())
		score, band := scorer.Compute(features, weights)

		assignment.Score = score
		assignment.Tier = string(band)
		if assignment.Status == domain.AssignmentNew || assignment.Status == domain.AssignmentEnriched {
			assignment.Status = domain.AssignmentInSequence
		}
		if err := assignmentRepo.UpdateAssignment(ctx, assignment); err != nil {
			log.Printf("update assignment %s failed: %v", assignment.ID, err)
		}
	}
}

func latestPatternsFor(ctx context.Context, repo *postgres.PatternRepo, tenantID string) []domain.PatternRecord {
	kinds := []domain.PatternKind{domain.PatternWho, domain.PatternWhat, domain.PatternWhen, domain.PatternHow}
	var out []domain.PatternRecord
	for _, k := range kinds {
		rec, ok, err := repo.LatestByKind(ctx, tenantID, k)
		if err != nil {
			log.Printf("load pattern %s for tenant %q failed: %v", k, tenantID, err)
			continue
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

func runReplenishment(ctx context.Context, tenantRepo *postgres.TenantRepo, campaignRepo *postgres.CampaignRepo, allocator *leadpool.Allocator) {
	ticker := time.NewTicker(replenishmentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runReplenishmentPass(ctx, tenantRepo, campaignRepo, allocator)
		}
	}
}

func runReplenishmentPass(ctx context.Context, tenantRepo *postgres.TenantRepo, campaignRepo *postgres.CampaignRepo, allocator *leadpool.Allocator) {
	tenantIDs, err := tenantRepo.ActiveTenantIDs(ctx)
	if err != nil {
		log.Printf("list active tenants for replenishment failed: %v", err)
		return
	}
	now := time.Now()
	for _, tenantID := range tenantIDs {
		tenant, err := tenantRepo.GetTenant(ctx, tenantID)
		if err != nil {
			log.Printf("load tenant %s for replenishment failed: %v", tenantID, err)
			continue
		}
		campaigns, err := campaignRepo.ListActiveByTenant(ctx, tenantID)
		if err != nil {
			log.Printf("list campaigns for tenant %s failed: %v", tenantID, err)
			continue
		}
		for _, campaign := range campaigns {
			result, claimed, err := allocator.MonthlyReplenishment(ctx, tenant, campaign, now)
			if err != nil {
				log.Printf("replenishment for tenant %s campaign %s failed: %v", tenantID, campaign.ID, err)
				continue
			}
			if len(claimed) > 0 {
				log.Printf("replenished tenant %s campaign %s: sourced=%d claimed=%d",
					tenantID, campaign.ID, result.Sourced, len(claimed))
			}
		}
	}
}

func buildDrivers(cfg *config.Config, db *sql.DB, httpClient *httpretry.RetryClient, controls *operator.Controls) map[domain.Channel]channels.Driver {
	drivers := map[domain.Channel]channels.Driver{
		domain.ChannelSMS:   sms.New(httpClient, os.Getenv("SMS_PROVIDER_URL"), os.Getenv("SMS_PROVIDER_API_KEY"), os.Getenv("DNCR_PROVIDER_URL")),
		domain.ChannelVoice: voice.New(httpClient, os.Getenv("VOICE_PROVIDER_URL"), os.Getenv("VOICE_PROVIDER_API_KEY")),
		domain.ChannelMail:  mail.New(httpClient, os.Getenv("MAIL_PROVIDER_URL"), os.Getenv("MAIL_PROVIDER_API_KEY")),
	}

	sesClient := buildSESClient(cfg)
	drivers[domain.ChannelEmail] = email.New(sesClient, cfg.SES.ConfigSetName, os.Getenv("TRACKING_URL"), os.Getenv("SIGNING_KEY"))

	linkedinOAuth := oauth2.Config{
		ClientID:     os.Getenv("LINKEDIN_CLIENT_ID"),
		ClientSecret: os.Getenv("LINKEDIN_CLIENT_SECRET"),
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
		},
	}
	seatStore := linkedin.NewSeatStore(db, linkedinOAuth)
	drivers[domain.ChannelLinkedIn] = linkedin.New(seatStore, "https://api.linkedin.com/v2")

	// Every driver is wrapped so test mode can be toggled at runtime by an
	// operator (spec §6.5) without a restart; when the flag reads false
	// (its config-file default), the wrapper is a pure passthrough.
	for ch, driver := range drivers {
		drivers[ch] = channels.NewTestModeDriver(driver, cfg.TestMode.RedirectAddress, cfg.TestMode.DailyEmailLimit, controls, cfg.TestMode.Enabled)
	}
	return drivers
}

func buildSESClient(cfg *config.Config) *sesv2.Client {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SES.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SES.AccessKey, cfg.SES.SecretKey, "")),
	)
	if err != nil {
		log.Fatalf("Failed to load AWS SES config: %v", err)
	}
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		o.Region = cfg.SES.Region
	})
}

func buildAddressResolver() scheduler.AddressResolver {
	return func(lead domain.LeadPoolRecord, ch domain.Channel) (channels.Address, bool) {
		switch ch {
		case domain.ChannelEmail:
			if lead.Email == "" {
				return "", false
			}
			return channels.Address(lead.Email), true
		case domain.ChannelSMS, domain.ChannelVoice:
			if lead.Phone == "" {
				return "", false
			}
			return channels.Address(lead.Phone), true
		case domain.ChannelLinkedIn:
			if lead.LinkedInURL == "" {
				return "", false
			}
			return channels.Address(lead.LinkedInURL), true
		case domain.ChannelMail:
			if lead.MailAddressRef == "" {
				return "", false
			}
			return channels.Address(lead.MailAddressRef), true
		default:
			return "", false
		}
	}
}

func buildWaterfall(cfg *config.Config, redisClient *redis.Client, cacheLayer *cache.Cache, httpClient *httpretry.RetryClient) *enrichment.Waterfall {
	cacheProvider := enrichment.NewCacheAdapter(cacheLayer)
	primary := providers.NewPrimaryClient(httpClient, os.Getenv("ENRICHMENT_PRIMARY_URL"), os.Getenv("ENRICHMENT_PRIMARY_API_KEY"))
	supplement := providers.NewSupplementClient(httpClient, os.Getenv("ENRICHMENT_SUPPLEMENT_URL"), os.Getenv("ENRICHMENT_SUPPLEMENT_API_KEY"))
	premium := providers.NewPremiumClient(httpClient, os.Getenv("ENRICHMENT_PREMIUM_URL"), os.Getenv("ENRICHMENT_PREMIUM_API_KEY"))
	budget := enrichment.NewBatchBudget(redisClient, time.Duration(cfg.Waterfall.PerLeadTimeoutSecs)*time.Second*10)

	return enrichment.New(cacheProvider, primary, supplement, premium, budget, enrichment.Config{
		ConfidenceThreshold: cfg.Waterfall.ConfidenceThreshold,
		PremiumMaxBudgetPct: cfg.Waterfall.PremiumMaxBudgetPct,
		PerLeadTimeout:      time.Duration(cfg.Waterfall.PerLeadTimeoutSecs) * time.Second,
	})
}
