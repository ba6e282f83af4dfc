// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config
//
// monitor / generator 실행에 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
type Config struct {

	// ---------------------------
	// AWS / S3 landing zone
	// ---------------------------

	AWSRegion  string // AWS 리전 (예: ap-northeast-2)
	S3Endpoint string // MinIO / LocalStack 용 custom endpoint (비어있으면 AWS 기본)

	LandingBucket string // generator 가 레코드를 적재하는 버킷
	LandingPrefix string // 레코드 object prefix (예: input/)

	// ---------------------------
	// Monitoring loop
	// ---------------------------

	PollInterval time.Duration // 정상 cycle 간 대기
	Cooldown     time.Duration // 이상 탐지(evolve/quarantine) 후 대기 (crude debounce)
	FetchTimeout time.Duration // list + get 한 cycle 의 I/O 제한 시간

	ContractPath string // contract 파일 (.yaml/.yml/.json), 비어있으면 기본 6필드
	TargetTable  string // evolution statement 대상 테이블

	// ---------------------------
	// Audit
	// ---------------------------

	AuditBucket    string // audit JSONL 업로드 버킷 (기본: LandingBucket)
	AuditPrefix    string // 정상 audit 배치 prefix
	AuditDLQPrefix string // 깨진 spill 파일 재업로드 prefix

	AuditS3Enabled     bool          // S3 audit 배송 사용 여부
	AuditBatchSize     int           // 배치 크기 (N건 모이면 업로드)
	AuditFlushInterval time.Duration // 시간 기반 flush 주기
	AuditQueue         int           // audit 채널 버퍼 크기

	AuditDBDriver string // "", "sqlite", "postgres"
	AuditDBDSN    string

	// ---------------------------
	// S3 업로드 설정
	// ---------------------------
	// SDK retry 는 0 으로 고정하고 재시도는 애플리케이션 레벨(S3AppRetries)만 사용한다.

	S3Timeout    time.Duration // PutObject 1회 시도당 timeout
	S3AppRetries int           // 업로드 재시도 횟수

	// ---------------------------
	// 로컬 spill (audit 업로드 실패분)
	// ---------------------------

	SpillDir          string
	SpillMaxAge       time.Duration
	SpillMaxSizeBytes int64

	// ---------------------------
	// Remediation hooks (비어있으면 비활성)
	// ---------------------------

	QuarantinePrefix string // quarantine object 이동 prefix
	ProposalPrefix   string // evolution statement(.sql) 기록 prefix

	// ---------------------------
	// 서버 식별자 / 로깅
	// ---------------------------

	InstanceID  string
	ServiceName string
	HTTPAddr    string

	LogLevel   string
	LogPretty  bool
	LogSampleN uint32

	// ---------------------------
	// Generator
	// ---------------------------

	GenNormalProbability float64
	GenInterval          time.Duration
}

// Load
//
// .env 파일이 있으면 먼저 읽고, 환경 변수 기반으로 Config 를 초기화한다.
// 필수 env 가 비어있거나 형식이 잘못되면 즉시 프로세스를 종료(fail-fast).
func Load() Config {
	_ = godotenv.Load(".env")

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// FromEnv 는 lookup 함수로 값을 읽어 Config 를 만든다.
// 첫 번째 오류에서 멈추지 않고 끝까지 읽은 뒤 처음 발생한 오류를 반환한다.
func FromEnv(lookup func(string) string) (Config, error) {
	e := &env{lookup: lookup}

	landing := e.must("LANDING_BUCKET")

	sampleN := e.integer("LOG_SAMPLE_N", 0)
	if sampleN < 0 {
		e.fail(fmt.Errorf("LOG_SAMPLE_N must be >= 0"))
		sampleN = 0
	}

	cfg := Config{
		AWSRegion:  e.must("AWS_REGION"),
		S3Endpoint: e.get("S3_ENDPOINT", ""),

		LandingBucket: landing,
		LandingPrefix: e.get("LANDING_PREFIX", "input/"),

		PollInterval: e.dur("POLL_INTERVAL", 5*time.Second),
		Cooldown:     e.dur("ANOMALY_COOLDOWN", 10*time.Second),
		FetchTimeout: e.dur("FETCH_TIMEOUT", 5*time.Second),

		ContractPath: e.get("CONTRACT_PATH", ""),
		TargetTable:  e.get("TARGET_TABLE", "raw_bronze"),

		AuditBucket:    e.get("AUDIT_BUCKET", landing),
		AuditPrefix:    strings.TrimSuffix(e.get("AUDIT_PREFIX", "audit"), "/"),
		AuditDLQPrefix: strings.TrimSuffix(e.get("AUDIT_DLQ_PREFIX", "audit_dlq"), "/"),

		AuditS3Enabled:     e.boolean("AUDIT_S3_ENABLED", false),
		AuditBatchSize:     e.integer("AUDIT_BATCH_SIZE", 50),
		AuditFlushInterval: e.dur("AUDIT_FLUSH_INTERVAL", 30*time.Second),
		AuditQueue:         e.integer("AUDIT_QUEUE", 256),

		AuditDBDriver: e.get("AUDIT_DB_DRIVER", ""),
		AuditDBDSN:    e.get("AUDIT_DB_DSN", ""),

		S3Timeout:    e.dur("S3_TIMEOUT", 5*time.Second),
		S3AppRetries: e.integer("S3_APP_RETRIES", 3),

		SpillDir:          e.get("SPILL_DIR", "./spill"),
		SpillMaxAge:       e.dur("SPILL_MAX_AGE", 72*time.Hour),
		SpillMaxSizeBytes: e.int64("SPILL_MAX_SIZE_BYTES", 64<<20),

		QuarantinePrefix: e.get("QUARANTINE_PREFIX", ""),
		ProposalPrefix:   e.get("PROPOSAL_PREFIX", ""),

		InstanceID:  e.get("INSTANCE_ID", fallbackInstanceID()),
		ServiceName: e.get("SERVICE_NAME", "landing-sentinel"),
		HTTPAddr:    e.get("HTTP_ADDR", ":8081"),

		LogLevel:   e.get("LOG_LEVEL", "info"),
		LogPretty:  e.boolean("LOG_PRETTY", false),
		LogSampleN: uint32(sampleN),

		GenNormalProbability: e.float("GEN_NORMAL_PROBABILITY", 0.8),
		GenInterval:          e.dur("GEN_INTERVAL", 2*time.Second),
	}

	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	case c.Cooldown < 0:
		return fmt.Errorf("ANOMALY_COOLDOWN must be >= 0")
	case c.AuditS3Enabled && c.AuditBatchSize <= 0:
		return fmt.Errorf("AUDIT_BATCH_SIZE must be > 0")
	case c.AuditS3Enabled && c.S3AppRetries <= 0:
		return fmt.Errorf("S3_APP_RETRIES must be > 0")
	case c.GenNormalProbability < 0 || c.GenNormalProbability > 1:
		return fmt.Errorf("GEN_NORMAL_PROBABILITY must be within [0,1]")
	}
	switch c.AuditDBDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported AUDIT_DB_DRIVER %q", c.AuditDBDriver)
	}
	if c.AuditDBDriver != "" && c.AuditDBDSN == "" {
		return fmt.Errorf("AUDIT_DB_DSN is required when AUDIT_DB_DRIVER=%s", c.AuditDBDriver)
	}

	// landing bucket 에 쓰는 prefix 는 LANDING_PREFIX 목록에 잡히면 안 된다.
	// 잡히면 monitor 가 자기가 쓴 object 를 다시 최신 record 로 검사한다.
	if c.QuarantinePrefix != "" && underLanding(c.LandingPrefix, c.QuarantinePrefix) {
		return fmt.Errorf("QUARANTINE_PREFIX %q must not be under LANDING_PREFIX %q", c.QuarantinePrefix, c.LandingPrefix)
	}
	if c.ProposalPrefix != "" && underLanding(c.LandingPrefix, c.ProposalPrefix) {
		return fmt.Errorf("PROPOSAL_PREFIX %q must not be under LANDING_PREFIX %q", c.ProposalPrefix, c.LandingPrefix)
	}
	if c.AuditS3Enabled && c.AuditBucket == c.LandingBucket {
		if underLanding(c.LandingPrefix, c.AuditPrefix) {
			return fmt.Errorf("AUDIT_PREFIX %q must not be under LANDING_PREFIX %q", c.AuditPrefix, c.LandingPrefix)
		}
		if underLanding(c.LandingPrefix, c.AuditDLQPrefix) {
			return fmt.Errorf("AUDIT_DLQ_PREFIX %q must not be under LANDING_PREFIX %q", c.AuditDLQPrefix, c.LandingPrefix)
		}
	}
	return nil
}

// underLanding 은 <prefix>/... 로 쓰이는 key 가 landing prefix 로 list 되는지 확인한다.
func underLanding(landing, prefix string) bool {
	return strings.HasPrefix(strings.TrimSuffix(prefix, "/")+"/", landing)
}

// env
//
// must / get / integer / int64 / dur / float / boolean 공통 패턴.
// 필수 값이 없거나 형식이 잘못되면 처음 발생한 오류만 기록해 둔다.
type env struct {
	lookup func(string) string
	err    error
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *env) must(key string) string {
	v := strings.TrimSpace(e.lookup(key))
	if v == "" {
		e.fail(fmt.Errorf("missing required env: %s", key))
	}
	return v
}

func (e *env) get(key, def string) string {
	if v := strings.TrimSpace(e.lookup(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.get(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid int env %s=%q: %w", key, v, err))
		return def
	}
	return n
}

func (e *env) int64(key string, def int64) int64 {
	v := e.get(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid int64 env %s=%q: %w", key, v, err))
		return def
	}
	return n
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	v := e.get(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid duration env %s=%q: %w", key, v, err))
		return def
	}
	return d
}

func (e *env) float(key string, def float64) float64 {
	v := e.get(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid float env %s=%q: %w", key, v, err))
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v := e.get(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid bool env %s=%q: %w", key, v, err))
		return def
	}
	return b
}

// fallbackInstanceID
//
// 이 프로세스를 식별하는 고유 값.
//   - 기본: hostname (ECS/Fargate 에서는 task-id 형태로 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
