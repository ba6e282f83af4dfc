// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	stdlog "log"

	"landing-sentinel/internal/config"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 프로세스 시작 시 한 번만 호출한다. 이후 어디서든 zerolog 전역 logger
// (github.com/rs/zerolog/log) 를 쓰면 아래 규칙이 적용된다.
//
//   - LOG_PRETTY=true  : 사람이 읽는 console 출력 (로컬 개발)
//   - LOG_PRETTY=false : JSON 한 줄 출력 (CloudWatch 등 수집용)
//   - 모든 로그에 service / instance / component 필드
//   - LOG_SAMPLE_N > 1 : debug/info 는 N건 중 1건만 기록, warn 이상은 전부 기록
//
// monitor 의 heartbeat(debug) 는 많이 나오지만 anomaly 로그(warn)는
// 샘플링 대상이 아니므로 절대 유실되지 않는다.
func Init(cfg config.Config, component string) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stdout
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Str("component", component).
		Logger()

	if cfg.LogSampleN > 1 {
		logger = logger.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	zlog.Logger = logger

	// 표준 log 패키지 출력도 zerolog 로 보낸다 (AWS SDK 등 서드파티 로그 포함).
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
