package generator

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landing-sentinel/internal/classify"
	"landing-sentinel/internal/model"
	"landing-sentinel/internal/remediate"
	"landing-sentinel/internal/storage"
	"landing-sentinel/internal/storage/storagetest"
)

const bucket = "agentic-etl-landing-dev-01"

func TestNormalRecordsConform(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 200; i++ {
		rec := NormalRecord(rng, now)
		require.True(t, classify.Classify(rec, model.DefaultContract()).IsNone())

		amount := rec["amount"].(float64)
		assert.GreaterOrEqual(t, amount, 10.0)
		assert.LessOrEqual(t, amount, 500.0)
		uid := rec["user_id"].(int)
		assert.GreaterOrEqual(t, uid, 1000)
		assert.LessOrEqual(t, uid, 9999)
		assert.Contains(t, eventTypes, rec["event_type"])
		assert.Contains(t, devices, rec["device"])
	}
}

func TestChaosRecordsAlwaysViolate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seen := map[model.ActionKind]int{}

	for i := 0; i < 200; i++ {
		rec := ChaosRecord(rng, time.Now())
		v := classify.Classify(rec, model.DefaultContract())
		require.False(t, v.IsNone())

		a := remediate.Decide(v)
		seen[a.Kind]++
		switch a.Kind {
		case model.ActionEvolveSchema:
			assert.Equal(t, ChaosField, a.Field)
			assert.Equal(t, 9999, rec["user_id"])
		case model.ActionQuarantine:
			assert.Equal(t, "amount", a.Field)
			assert.Equal(t, 8888, rec["user_id"])
		default:
			t.Fatalf("unexpected action %s", a.Kind)
		}
	}
	assert.Positive(t, seen[model.ActionEvolveSchema])
	assert.Positive(t, seen[model.ActionQuarantine])
}

func TestKey(t *testing.T) {
	k := Key("input/", time.Unix(1764721594, 0))
	assert.Regexp(t, regexp.MustCompile(`^input/event_1764721594_[0-9a-f]{8}\.json$`), k)
}

func TestStepUploadsDecodableRecord(t *testing.T) {
	fake := storagetest.New()
	up := storage.NewUploader(fake, storage.UploaderOptions{Bucket: bucket, Retries: 1}, nil)
	g := New(up, Options{Prefix: "input/", NormalProbability: 1, Seed: 3})

	key, _, err := g.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "input/event_"))

	data, ok := fake.Object(bucket, key)
	require.True(t, ok)
	rec, err := storage.NewJSONDecoder().Decode(data)
	require.NoError(t, err)
	assert.True(t, classify.Classify(rec, model.DefaultContract()).IsNone())
}

func TestStepChaosOnly(t *testing.T) {
	fake := storagetest.New()
	up := storage.NewUploader(fake, storage.UploaderOptions{Bucket: bucket, Retries: 1}, nil)
	g := New(up, Options{Prefix: "input/", NormalProbability: 0, Seed: 5})

	for i := 0; i < 10; i++ {
		_, rec, err := g.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "error_simulation", rec["event_type"])
	}
	assert.Equal(t, int64(10), g.chaos.Load())
	assert.Zero(t, g.normal.Load())
}

func TestRunContinuesAfterUploadFailure(t *testing.T) {
	fake := storagetest.New()
	fake.PutErr = errors.New("network down")
	up := storage.NewUploader(fake, storage.UploaderOptions{Bucket: bucket, Retries: 1}, nil)
	g := New(up, Options{Prefix: "input/", Interval: 5 * time.Millisecond, NormalProbability: 0.8, Seed: 9})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, g.Run(ctx))
	assert.Greater(t, g.failed.Load(), int64(1))
}
