package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landing-sentinel/internal/model"
	"landing-sentinel/internal/remediate"
	"landing-sentinel/internal/storage"
	"landing-sentinel/internal/storage/storagetest"
)

const bucket = "agentic-etl-landing-dev-01"

func TestProposalWriter(t *testing.T) {
	fake := storagetest.New()
	up := storage.NewUploader(fake, storage.UploaderOptions{Bucket: bucket, Retries: 1}, nil)
	w := NewProposalWriter(up, "proposals/")
	w.now = func() time.Time { return time.Unix(1764721594, 0) }

	action := remediate.Decide(model.SchemaMismatch([]string{"marketing_campaign"}))
	h := model.RecordHandle{Key: "input/event_1.json"}

	require.NoError(t, w.Apply(context.Background(), h, action))

	data, ok := fake.Object(bucket, "proposals/1764721594_marketing_campaign.sql")
	require.True(t, ok)
	assert.Contains(t, string(data), "ALTER TABLE raw_bronze ADD COLUMNS (`marketing_campaign` STRING);")
	assert.Contains(t, string(data), "-- source: input/event_1.json")

	// evolve 가 아닌 결정은 무시
	require.NoError(t, w.Apply(context.Background(), h, model.NoAction()))
	assert.Len(t, fake.Keys(bucket, "proposals/"), 1)
}

func TestProposalWriterSanitizesKey(t *testing.T) {
	fake := storagetest.New()
	up := storage.NewUploader(fake, storage.UploaderOptions{Bucket: bucket, Retries: 1}, nil)
	w := NewProposalWriter(up, "proposals")
	w.now = func() time.Time { return time.Unix(10, 0) }

	a := remediate.Decide(model.SchemaMismatch([]string{"weird/field name"}))
	require.NoError(t, w.Apply(context.Background(), model.RecordHandle{}, a))
	assert.Equal(t, []string{"proposals/10_weird_field_name.sql"}, fake.Keys(bucket, "proposals/"))
}

func TestQuarantiner(t *testing.T) {
	fake := storagetest.New()
	fake.Add(bucket, "input/event 2.json", []byte(`{"amount":"one_hundred_dollars"}`), time.Now())
	q := NewQuarantiner(fake, bucket, "quarantine/")

	action := remediate.Decide(model.TypeViolation("amount", model.KindNumeric, "one_hundred_dollars"))
	h := model.RecordHandle{Key: "input/event 2.json"}

	require.NoError(t, q.Apply(context.Background(), h, action))

	_, stillThere := fake.Object(bucket, "input/event 2.json")
	assert.False(t, stillThere)
	data, ok := fake.Object(bucket, "quarantine/event 2.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"amount":"one_hundred_dollars"}`, string(data))
}

func TestQuarantinerIgnoresOtherActions(t *testing.T) {
	fake := storagetest.New()
	fake.Add(bucket, "input/e.json", []byte(`{}`), time.Now())
	q := NewQuarantiner(fake, bucket, "quarantine")

	a := remediate.Decide(model.SchemaMismatch([]string{"x"}))
	require.NoError(t, q.Apply(context.Background(), model.RecordHandle{Key: "input/e.json"}, a))
	_, ok := fake.Object(bucket, "input/e.json")
	assert.True(t, ok)
}

func TestQuarantinerCopyFailureKeepsOriginal(t *testing.T) {
	fake := storagetest.New()
	fake.Add(bucket, "input/e.json", []byte(`{}`), time.Now())
	fake.CopyErr = errors.New("access denied")
	q := NewQuarantiner(fake, bucket, "quarantine")

	a := remediate.Decide(model.TypeViolation("amount", model.KindNumeric, "x"))
	err := q.Apply(context.Background(), model.RecordHandle{Key: "input/e.json"}, a)
	require.Error(t, err)
	_, ok := fake.Object(bucket, "input/e.json")
	assert.True(t, ok)
}

func TestQuarantinerKeepsObjectAlreadyInQuarantine(t *testing.T) {
	fake := storagetest.New()
	fake.Add(bucket, "input/quarantine/event_1.json", []byte(`{"amount":"x"}`), time.Now())
	q := NewQuarantiner(fake, bucket, "input/quarantine/")

	a := remediate.Decide(model.TypeViolation("amount", model.KindNumeric, "x"))
	require.NoError(t, q.Apply(context.Background(), model.RecordHandle{Key: "input/quarantine/event_1.json"}, a))

	data, ok := fake.Object(bucket, "input/quarantine/event_1.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"amount":"x"}`, string(data))
	assert.Equal(t, []string{"input/quarantine/event_1.json"}, fake.Keys(bucket, ""))
}

type applierFunc func(context.Context, model.RecordHandle, model.RemediationAction) error

func (f applierFunc) Apply(ctx context.Context, h model.RecordHandle, a model.RemediationAction) error {
	return f(ctx, h, a)
}

func TestChain(t *testing.T) {
	var calls int
	ok := applierFunc(func(context.Context, model.RecordHandle, model.RemediationAction) error {
		calls++
		return nil
	})
	bad := applierFunc(func(context.Context, model.RecordHandle, model.RemediationAction) error {
		calls++
		return errors.New("boom")
	})

	assert.NoError(t, Chain(nil).Apply(context.Background(), model.RecordHandle{}, model.NoAction()))

	err := Chain{bad, nil, ok}.Apply(context.Background(), model.RecordHandle{}, model.NoAction())
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}
