// Package generator 는 landing zone 에 테스트 이벤트를 적재한다.
// 대부분은 contract 를 지키는 정상 레코드이고, 일정 비율로 poison pill
// (예상 밖 컬럼 / 잘못된 amount 타입) 을 섞는다.
package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"landing-sentinel/internal/model"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// ChaosField / ChaosFieldValue 는 schema mismatch poison pill.
	ChaosField      = "marketing_campaign"
	ChaosFieldValue = "summer_sale_2026"

	// ChaosAmount 는 type violation poison pill.
	ChaosAmount = "one_hundred_dollars"

	timestampLayout = "2006-01-02T15:04:05.000000"
)

var (
	eventTypes = []string{"click", "view", "purchase"}
	devices    = []string{"mobile", "desktop", "tablet"}
)

// NormalRecord 는 기본 6필드 contract 를 만족하는 레코드.
func NormalRecord(rng *rand.Rand, now time.Time) model.EventRecord {
	return model.EventRecord{
		"event_id":        uuid.NewString(),
		"event_timestamp": now.Format(timestampLayout),
		"event_type":      eventTypes[rng.Intn(len(eventTypes))],
		"user_id":         1000 + rng.Intn(9000),
		"amount":          math.Round((10+rng.Float64()*490)*100) / 100,
		"device":          devices[rng.Intn(len(devices))],
	}
}

// ChaosRecord 는 둘 중 하나의 poison pill 을 만든다.
//   - schema mismatch: marketing_campaign 추가, user_id 9999
//   - bad data type:   amount 가 문자열, user_id 8888
func ChaosRecord(rng *rand.Rand, now time.Time) model.EventRecord {
	rec := model.EventRecord{
		"event_id":        uuid.NewString(),
		"event_timestamp": now.Format(timestampLayout),
		"event_type":      "error_simulation",
	}
	if rng.Intn(2) == 0 {
		rec[ChaosField] = ChaosFieldValue
		rec["user_id"] = 9999
	} else {
		rec["amount"] = ChaosAmount
		rec["user_id"] = 8888
	}
	return rec
}

type bytesUploader interface {
	UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error
}

// Options 는 Generator 설정.
type Options struct {
	Prefix            string        // 예: input/
	Interval          time.Duration // 적재 간격
	NormalProbability float64       // 정상 레코드 비율 [0,1]
	Seed              int64         // 0 이면 현재 시각
}

// Generator 는 Interval 마다 레코드 1건을 업로드한다.
type Generator struct {
	up   bytesUploader
	opts Options
	rng  *rand.Rand
	now  func() time.Time

	normal atomic.Int64
	chaos  atomic.Int64
	failed atomic.Int64
}

func New(up bytesUploader, opts Options) *Generator {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		up:   up,
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)),
		now:  time.Now,
	}
}

// Key 는 <prefix>event_<unix>_<uuid 앞 8자>.json.
func Key(prefix string, now time.Time) string {
	return fmt.Sprintf("%sevent_%d_%s.json", prefix, now.Unix(), uuid.NewString()[:8])
}

// Step 은 레코드 1건을 만들어 업로드한다. 업로드 실패는 오류로 돌려준다.
func (g *Generator) Step(ctx context.Context) (string, model.EventRecord, error) {
	now := g.now()

	var rec model.EventRecord
	if g.rng.Float64() < g.opts.NormalProbability {
		rec = NormalRecord(g.rng, now)
		g.normal.Add(1)
	} else {
		rec = ChaosRecord(g.rng, now)
		g.chaos.Add(1)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return "", rec, fmt.Errorf("encode record: %w", err)
	}

	key := Key(g.opts.Prefix, now)
	if err := g.up.UploadBytesWithRetryCtx(ctx, key, body); err != nil {
		g.failed.Add(1)
		return key, rec, fmt.Errorf("upload %s: %w", key, err)
	}
	return key, rec, nil
}

// Run 은 ctx 가 끝날 때까지 Step 을 반복한다.
// 업로드 실패는 로그만 남기고 계속 진행한다.
func (g *Generator) Run(ctx context.Context) error {
	log.Info().
		Str("prefix", g.opts.Prefix).
		Dur("interval", g.opts.Interval).
		Float64("normal_probability", g.opts.NormalProbability).
		Msg("generator started")

	ticker := time.NewTicker(g.opts.Interval)
	defer ticker.Stop()

	for {
		key, rec, err := g.Step(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn().Err(err).Msg("upload failed")
		case err == nil:
			ev := log.Info().Str("key", key)
			if rec["event_type"] == "error_simulation" {
				ev.Str("status", "chaos").Msg("record uploaded")
			} else {
				ev.Str("status", "normal").Msg("record uploaded")
			}
		}

		select {
		case <-ctx.Done():
			log.Info().
				Int64("normal", g.normal.Load()).
				Int64("chaos", g.chaos.Load()).
				Int64("failed", g.failed.Load()).
				Msg("generator stopped")
			return nil
		case <-ticker.C:
		}
	}
}
