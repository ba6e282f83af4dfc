package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landing-sentinel/internal/executor"
	"landing-sentinel/internal/metrics"
	"landing-sentinel/internal/model"
	"landing-sentinel/internal/remediate"
	"landing-sentinel/internal/storage"
	"landing-sentinel/internal/storage/storagetest"
)

const bucket = "agentic-etl-landing-dev-01"

type recordingSink struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	err     error
}

func (s *recordingSink) Emit(_ context.Context, e model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *recordingSink) Entries() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditEntry(nil), s.entries...)
}

type recordingApplier struct {
	mu    sync.Mutex
	calls []model.ActionKind
	err   error
}

func (a *recordingApplier) Apply(_ context.Context, _ model.RecordHandle, act model.RemediationAction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, act.Kind)
	return a.err
}

type harness struct {
	fake    *storagetest.FakeS3
	sink    *recordingSink
	applier *recordingApplier
	metrics *metrics.Metrics
	mon     *Monitor
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		fake:    storagetest.New(),
		sink:    &recordingSink{},
		applier: &recordingApplier{},
		metrics: metrics.New(),
	}
	h.mon = New(opts, Deps{
		Source:   storage.NewS3Source(h.fake, bucket, "input/"),
		Decoder:  storage.NewJSONDecoder(),
		Contract: model.DefaultContract(),
		Policy:   remediate.NewRulePolicy("raw_bronze"),
		Sink:     h.sink,
		Applier:  h.applier,
		Metrics:  h.metrics,
	})
	return h
}

var landed = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func (h *harness) land(key, body string, at time.Time) {
	h.fake.Add(bucket, key, []byte(body), at)
}

func TestScenarios(t *testing.T) {
	t.Run("normal record → no action, no audit entry", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.land("input/event_1.json", `{"event_id":"a","event_timestamp":"2026-01-01T00:00:00","event_type":"click","user_id":1000,"amount":12.5,"device":"mobile"}`, landed)

		out := h.mon.RunCycle(context.Background())

		assert.Equal(t, OutcomeClean, out.Kind)
		assert.Equal(t, model.ActionNone, out.Action.Kind)
		assert.Empty(t, h.sink.Entries())
		assert.Empty(t, h.applier.calls)
		assert.Equal(t, int64(1), h.metrics.RecordsCleanTotal)
	})

	t.Run("unexpected column → schema evolution", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.land("input/event_2.json", `{"event_id":"b","event_timestamp":"t","event_type":"error_simulation","marketing_campaign":"summer_sale_2026","user_id":9999}`, landed)

		out := h.mon.RunCycle(context.Background())

		require.Equal(t, OutcomeEvolve, out.Kind)
		assert.Equal(t, "ALTER TABLE raw_bronze ADD COLUMNS (`marketing_campaign` STRING)", out.Action.Statement)
		assert.Equal(t, 0.98, out.Action.Confidence)

		entries := h.sink.Entries()
		require.Len(t, entries, 1)
		e := entries[0]
		assert.Equal(t, "b", e.SourceRecordID)
		assert.Equal(t, "input/event_2.json", e.SourceKey)
		assert.Equal(t, model.ViolationSchemaMismatch, e.ViolationKind)
		assert.Equal(t, model.ActionEvolveSchema, e.ActionKind)
		assert.Equal(t, out.Action.Statement, e.ActionPayload)
		assert.Equal(t, []string{"marketing_campaign"}, e.ExtraFields)
		assert.Equal(t, []model.ActionKind{model.ActionEvolveSchema}, h.applier.calls)
		assert.Equal(t, int64(1), h.metrics.SchemaMismatchTotal)
	})

	t.Run("string amount → quarantine", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.land("input/event_3.json", `{"event_id":"c","event_timestamp":"t","event_type":"error_simulation","amount":"one_hundred_dollars","user_id":8888}`, landed)

		out := h.mon.RunCycle(context.Background())

		require.Equal(t, OutcomeQuarantine, out.Kind)
		assert.Equal(t, "amount", out.Action.Field)
		assert.Equal(t, 0.99, out.Action.Confidence)

		entries := h.sink.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, model.ViolationType, entries[0].ViolationKind)
		assert.Contains(t, entries[0].ActionPayload, "one_hundred_dollars")
		assert.Equal(t, int64(1), h.metrics.TypeViolationTotal)
		assert.Equal(t, int64(1), h.metrics.AuditEmittedTotal)
	})

	t.Run("empty namespace → skipped quietly", func(t *testing.T) {
		h := newHarness(t, Options{})

		out := h.mon.RunCycle(context.Background())

		assert.Equal(t, OutcomeEmpty, out.Kind)
		assert.True(t, out.Skipped())
		assert.Empty(t, h.sink.Entries())
		assert.Equal(t, int64(1), h.metrics.CyclesEmptyTotal)
	})
}

func TestLatestObjectWins(t *testing.T) {
	h := newHarness(t, Options{})
	h.land("input/old.json", `{"amount":"bad"}`, landed)
	h.land("input/new.json", `{"event_id":"n","amount":1}`, landed.Add(time.Second))

	out := h.mon.RunCycle(context.Background())
	assert.Equal(t, "input/new.json", out.Key)
	assert.Equal(t, OutcomeClean, out.Kind)
}

func TestSameObjectIsInspectedOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.land("input/e.json", `{"amount":"bad"}`, landed)

	first := h.mon.RunCycle(context.Background())
	second := h.mon.RunCycle(context.Background())

	assert.Equal(t, OutcomeQuarantine, first.Kind)
	assert.Equal(t, OutcomeDuplicate, second.Kind)
	assert.Len(t, h.sink.Entries(), 1)
	assert.Equal(t, int64(1), h.metrics.CyclesDuplicateTotal)

	// 같은 key 라도 다시 쓰이면 새 버전이다.
	h.land("input/e.json", `{"amount":"still bad"}`, landed.Add(time.Minute))
	third := h.mon.RunCycle(context.Background())
	assert.Equal(t, OutcomeQuarantine, third.Kind)
	assert.Len(t, h.sink.Entries(), 2)
}

func TestOlderObjectIsNotReinspectedAfterQuarantine(t *testing.T) {
	h := newHarness(t, Options{})
	h.mon.applier = executor.NewQuarantiner(h.fake, bucket, "quarantine")

	h.land("input/a.json", `{"event_id":"a","marketing_campaign":"summer_sale_2026"}`, landed)
	assert.Equal(t, OutcomeEvolve, h.mon.RunCycle(context.Background()).Kind)

	h.land("input/b.json", `{"event_id":"b","amount":"one_hundred_dollars"}`, landed.Add(time.Minute))
	assert.Equal(t, OutcomeQuarantine, h.mon.RunCycle(context.Background()).Kind)
	assert.Equal(t, []string{"input/a.json"}, h.fake.Keys(bucket, "input/"))

	// b 가 빠진 뒤 최신은 이미 검사한 a 이다.
	third := h.mon.RunCycle(context.Background())
	assert.Equal(t, OutcomeDuplicate, third.Kind)
	assert.Equal(t, "input/a.json", third.Key)

	entries := h.sink.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionEvolveSchema, entries[0].ActionKind)
	assert.Equal(t, model.ActionQuarantine, entries[1].ActionKind)
}

func TestFetchAndDecodeFailuresSkip(t *testing.T) {
	t.Run("list error", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.fake.ListErr = errors.New("timeout")

		out := h.mon.RunCycle(context.Background())
		assert.Equal(t, OutcomeFetchError, out.Kind)
		assert.ErrorIs(t, out.Err, storage.ErrTransient)
		assert.Equal(t, int64(1), h.metrics.FetchErrorsTotal)
	})

	t.Run("read error is retried next cycle", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.land("input/e.json", `{"amount":"x"}`, landed)
		h.fake.GetErr = errors.New("still being written")

		assert.Equal(t, OutcomeFetchError, h.mon.RunCycle(context.Background()).Kind)

		h.fake.GetErr = nil
		assert.Equal(t, OutcomeQuarantine, h.mon.RunCycle(context.Background()).Kind)
	})

	t.Run("malformed json", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.land("input/e.json", `{"event_id":`, landed)

		out := h.mon.RunCycle(context.Background())
		assert.Equal(t, OutcomeDecodeError, out.Kind)
		var pe *storage.ParseError
		assert.ErrorAs(t, out.Err, &pe)
		assert.Equal(t, int64(1), h.metrics.DecodeErrorsTotal)
		assert.Empty(t, h.sink.Entries())

		assert.Equal(t, OutcomeDuplicate, h.mon.RunCycle(context.Background()).Kind)
	})
}

func TestSinkAndApplierFailuresAreCounted(t *testing.T) {
	h := newHarness(t, Options{})
	h.sink.err = errors.New("db down")
	h.applier.err = errors.New("access denied")
	h.land("input/e.json", `{"marketing_campaign":"x"}`, landed)

	out := h.mon.RunCycle(context.Background())

	assert.Equal(t, OutcomeEvolve, out.Kind)
	assert.Equal(t, int64(1), h.metrics.AuditEmitErrorsTotal)
	assert.Equal(t, int64(1), h.metrics.ApplyErrorsTotal)
}

type panicDecoder struct{}

func (panicDecoder) Decode([]byte) (model.EventRecord, error) {
	panic("decoder bug")
}

func TestPanicIsRecoveredAtCycleBoundary(t *testing.T) {
	fake := storagetest.New()
	fake.Add(bucket, "input/e.json", []byte(`{}`), landed)
	m := metrics.New()
	mon := New(Options{}, Deps{
		Source:  storage.NewS3Source(fake, bucket, "input/"),
		Decoder: panicDecoder{},
		Metrics: m,
	})

	var out Outcome
	require.NotPanics(t, func() { out = mon.RunCycle(context.Background()) })

	assert.Equal(t, OutcomePanic, out.Kind)
	assert.True(t, out.Skipped())
	assert.Error(t, out.Err)
	assert.Equal(t, StateIdle, mon.State())
	assert.Equal(t, int64(1), m.PanicsRecoveredTotal)
	assert.Equal(t, OutcomePanic, mon.Status().LastOutcome)
}

// blockingSource 는 release 가 닫힐 때까지 ListLatest 에서 멈춘다.
type blockingSource struct {
	release chan struct{}
	lists   atomic.Int64
}

func (s *blockingSource) ListLatest(ctx context.Context) (*model.RecordHandle, error) {
	s.lists.Add(1)
	<-s.release
	return nil, nil
}

func (s *blockingSource) Read(context.Context, model.RecordHandle) ([]byte, error) {
	return nil, errors.New("unused")
}

func TestStateIsObservable(t *testing.T) {
	src := &blockingSource{release: make(chan struct{})}
	mon := New(Options{}, Deps{Source: src, Decoder: storage.NewJSONDecoder()})
	assert.Equal(t, StateIdle, mon.State())

	done := make(chan Outcome, 1)
	go func() { done <- mon.RunCycle(context.Background()) }()

	require.Eventually(t, func() bool { return mon.State() == StateFetching }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fetching", mon.Status().State)

	close(src.release)
	assert.Equal(t, OutcomeEmpty, (<-done).Kind)
	assert.Equal(t, StateIdle, mon.State())
}

func TestRunWaitsCooldownAfterAnomaly(t *testing.T) {
	h := newHarness(t, Options{PollInterval: time.Hour, Cooldown: 0})
	h.land("input/e.json", `{"marketing_campaign":"x"}`, landed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.mon.Run(ctx) }()

	// anomaly cycle → cooldown(0) → 중복 cycle → poll interval(1h) 대기
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&h.metrics.CyclesTotal) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), atomic.LoadInt64(&h.metrics.CyclesTotal))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	st := h.mon.Status()
	assert.Equal(t, int64(2), st.Cycles)
	assert.Equal(t, int64(1), st.Anomalies)
	assert.Equal(t, "input/e.json", st.LastAnomalyKey)
	assert.Equal(t, model.ActionEvolveSchema, st.LastAnomalyAction)
	assert.Equal(t, OutcomeDuplicate, st.LastOutcome)
}

func TestRunUsesPollIntervalWhenClean(t *testing.T) {
	h := newHarness(t, Options{PollInterval: time.Hour, Cooldown: 0})
	h.land("input/e.json", `{"event_id":"ok","amount":3}`, landed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.mon.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&h.metrics.CyclesTotal) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&h.metrics.CyclesTotal))

	cancel()
	require.NoError(t, <-done)
}

func TestRunReturnsImmediatelyWhenCancelled(t *testing.T) {
	src := &blockingSource{release: make(chan struct{})}
	mon := New(Options{PollInterval: time.Millisecond}, Deps{Source: src, Decoder: storage.NewJSONDecoder()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, mon.Run(ctx))
	assert.Zero(t, src.lists.Load())
}
