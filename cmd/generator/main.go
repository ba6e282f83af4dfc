package main

import (
	"context"
	"os/signal"
	"syscall"

	"landing-sentinel/internal/config"
	"landing-sentinel/internal/generator"
	"landing-sentinel/internal/logger"
	"landing-sentinel/internal/metrics"
	"landing-sentinel/internal/storage"

	"github.com/rs/zerolog/log"
)

// generator 는 landing zone 에 정상 레코드와 poison pill 을 섞어 적재한다.
// monitor 데모 / 부하 확인용이며 운영 파이프라인의 일부가 아니다.
func main() {
	cfg := config.Load()
	logger.Init(cfg, "generator")
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s3c, err := storage.NewClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}

	up := storage.NewUploader(s3c, storage.UploaderOptions{
		Bucket:      cfg.LandingBucket,
		Timeout:     cfg.S3Timeout,
		Retries:     1,
		ContentType: "application/json",
	}, m)

	g := generator.New(up, generator.Options{
		Prefix:            cfg.LandingPrefix,
		Interval:          cfg.GenInterval,
		NormalProbability: cfg.GenNormalProbability,
	})

	log.Info().Str("target", "s3://"+cfg.LandingBucket+"/"+cfg.LandingPrefix).Msg("press CTRL+C to stop")
	if err := g.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("generator failed")
	}
	log.Info().Int64("s3_put_errors", m.S3PutErrorsTotal).Msg("generator exited")
}
