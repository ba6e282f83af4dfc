package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"landing-sentinel/internal/audit"
	"landing-sentinel/internal/config"
	"landing-sentinel/internal/contract"
	"landing-sentinel/internal/executor"
	"landing-sentinel/internal/logger"
	"landing-sentinel/internal/metrics"
	"landing-sentinel/internal/monitor"
	"landing-sentinel/internal/remediate"
	"landing-sentinel/internal/server"
	"landing-sentinel/internal/storage"
	"landing-sentinel/internal/worker"

	"github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// CPU 설정
	// ====================================================================
	//
	// monitor 는 worker 1개가 poll 하는 구조라 CPU 를 거의 쓰지 않는다.
	// Fargate 0.25 vCPU 같은 작은 task 에서 Go 가 코어 수를 과대 인식하지
	// 않도록 기본값은 1, GOMAXPROCS env 로 재정의 가능.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1)
	}

	// ====================================================================
	// Config / Logger / Metrics
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg, "monitor")
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ====================================================================
	// S3 client + landing zone source
	// ====================================================================
	//
	// SDK retry 는 끄고 애플리케이션 레벨 retry(S3_APP_RETRIES)만 사용한다.
	// list/get 실패는 cycle skip 으로 처리되고 다음 poll 에서 자연히 재시도된다.
	// ====================================================================
	s3c, err := storage.NewClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}
	src := storage.NewS3Source(s3c, cfg.LandingBucket, cfg.LandingPrefix)

	sc, err := contract.Load(cfg.ContractPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load schema contract")
	}

	// ====================================================================
	// Audit sinks
	// ====================================================================
	//
	//  - LogSink : 항상 켜짐. anomaly 를 warn 으로 눈에 띄게 출력
	//  - SQLSink : AUDIT_DB_DRIVER 설정 시 (sqlite / postgres)
	//  - Manager : AUDIT_S3_ENABLED=true 이면 gzip JSONL 로 S3 배송
	// ====================================================================
	sinks := audit.Multi{audit.NewLogSink(log.Logger)}

	var recent server.AuditReader
	if cfg.AuditDBDriver != "" {
		store, err := audit.OpenSQLSink(ctx, cfg.AuditDBDriver, cfg.AuditDBDSN)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.AuditDBDriver).Msg("failed to open audit db")
		}
		defer func() { _ = store.Close() }()
		sinks = append(sinks, store)
		recent = store
	}

	var mgr *worker.Manager
	if cfg.AuditS3Enabled {
		auditUp := storage.NewUploader(s3c, storage.UploaderOptions{
			Bucket:      cfg.AuditBucket,
			Timeout:     cfg.S3Timeout,
			Retries:     cfg.S3AppRetries,
			ContentType: "application/x-ndjson",
		}, m)
		mgr, err = worker.NewManager(cfg, m, auditUp)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init audit shipper")
		}
		mgr.Start()
		sinks = append(sinks, mgr)
	}

	// ====================================================================
	// Remediation hooks (prefix 설정 시에만)
	// ====================================================================
	var appliers executor.Chain
	if cfg.ProposalPrefix != "" {
		propUp := storage.NewUploader(s3c, storage.UploaderOptions{
			Bucket:      cfg.LandingBucket,
			Timeout:     cfg.S3Timeout,
			Retries:     cfg.S3AppRetries,
			ContentType: "application/sql",
		}, m)
		appliers = append(appliers, executor.NewProposalWriter(propUp, cfg.ProposalPrefix))
	}
	if cfg.QuarantinePrefix != "" {
		appliers = append(appliers, executor.NewQuarantiner(s3c, cfg.LandingBucket, cfg.QuarantinePrefix))
	}

	mon := monitor.New(monitor.Options{
		PollInterval: cfg.PollInterval,
		Cooldown:     cfg.Cooldown,
		FetchTimeout: cfg.FetchTimeout,
	}, monitor.Deps{
		Source:   src,
		Decoder:  storage.NewJSONDecoder(),
		Contract: sc,
		Policy:   remediate.NewRulePolicy(cfg.TargetTable),
		Sink:     sinks,
		Applier:  appliers,
		Metrics:  m,
	})

	// ====================================================================
	// Ops HTTP (/health, /metrics, /status, /audit/recent)
	// ====================================================================
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.NewHandler(m, mon, recent).Router(),
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ops server terminated")
		}
	}()

	log.Info().
		Str("landing", "s3://"+cfg.LandingBucket+"/"+cfg.LandingPrefix).
		Bool("audit_s3", cfg.AuditS3Enabled).
		Str("audit_db", cfg.AuditDBDriver).
		Int("appliers", len(appliers)).
		Msg("landing sentinel starting")

	// ====================================================================
	// Monitoring loop (SIGINT / SIGTERM 까지 blocking)
	// ====================================================================
	_ = mon.Run(ctx)

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	//  1) loop 종료 (위에서 반환됨) → 더 이상 Emit 없음
	//  2) ops HTTP 종료
	//  3) audit 배송 큐 flush (실패분은 spill)
	// ====================================================================
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	cancel()

	if mgr != nil {
		log.Info().Msg("flushing audit shipper...")
		mgr.Shutdown()
	}
	log.Info().Str("metrics", m.String()).Msg("shutdown complete")
}
