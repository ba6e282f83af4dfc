// internal/monitor/monitor.go
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"landing-sentinel/internal/classify"
	"landing-sentinel/internal/metrics"
	"landing-sentinel/internal/model"
	"landing-sentinel/internal/remediate"

	"github.com/rs/zerolog/log"
)

// Source 는 landing zone 접근 (storage.S3Source).
type Source interface {
	ListLatest(ctx context.Context) (*model.RecordHandle, error)
	Read(ctx context.Context, h model.RecordHandle) ([]byte, error)
}

// Decoder 는 object body → EventRecord (storage.JSONDecoder).
type Decoder interface {
	Decode(data []byte) (model.EventRecord, error)
}

// Sink 는 audit entry 출력 (audit.Sink 와 같은 모양).
type Sink interface {
	Emit(ctx context.Context, e model.AuditEntry) error
}

// Applier 는 결정을 landing zone 에 반영하는 선택적 hook (executor.Chain).
type Applier interface {
	Apply(ctx context.Context, h model.RecordHandle, a model.RemediationAction) error
}

// Options 는 loop 타이밍.
type Options struct {
	PollInterval time.Duration // 정상 cycle 뒤 대기
	Cooldown     time.Duration // evolve / quarantine 뒤 대기
	FetchTimeout time.Duration // list + read 제한 시간 (0 이면 무제한)
}

// Deps 는 monitor 협력자 묶음. Source / Decoder 는 필수.
type Deps struct {
	Source   Source
	Decoder  Decoder
	Contract model.SchemaContract
	Policy   remediate.Policy
	Sink     Sink
	Applier  Applier
	Metrics  *metrics.Metrics
}

// Monitor
//
// 한 개의 worker 가 다음 cycle 을 반복한다.
//
//	idle → fetching → classifying → deciding → reporting → idle
//
// cycle 사이에 들고 있는 상태는 "마지막으로 검사한 object handle" 하나뿐이다.
// 이 handle 은 high-water mark 로 쓰인다. 최신 object 가 그보다 나중에 착지한
// 것이 아니면 (같은 handle 이거나, quarantine 으로 최신 object 가 빠져 이전
// object 가 다시 보이는 경우) 건너뛴다. anomaly 뒤의 Cooldown 은 이와 별개인
// 단순 debounce 이다.
type Monitor struct {
	opts     Options
	src      Source
	dec      Decoder
	contract model.SchemaContract
	policy   remediate.Policy
	sink     Sink
	applier  Applier
	metrics  *metrics.Metrics
	now      func() time.Time

	state atomic.Int32

	mu     sync.Mutex
	last   *model.RecordHandle
	status Status
}

func New(opts Options, d Deps) *Monitor {
	if d.Policy == nil {
		d.Policy = remediate.NewRulePolicy(remediate.DefaultTable)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Contract.Len() == 0 {
		d.Contract = model.DefaultContract()
	}
	return &Monitor{
		opts:     opts,
		src:      d.Source,
		dec:      d.Decoder,
		contract: d.Contract,
		policy:   d.Policy,
		sink:     d.Sink,
		applier:  d.Applier,
		metrics:  d.Metrics,
		now:      time.Now,
	}
}

// State 는 현재 cycle 단계.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
}

// Status 는 ops endpoint 용 스냅샷.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	s.State = m.State().String()
	return s
}

// Run 은 ctx 가 취소될 때까지 cycle 을 반복한다.
// 취소는 cycle 시작 시점과 대기 중에만 확인한다 (진행 중 cycle 은 끝까지 간다).
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().
		Dur("poll_interval", m.opts.PollInterval).
		Dur("cooldown", m.opts.Cooldown).
		Strs("contract", m.contract.Fields()).
		Msg("monitor started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("monitor stopped")
			return nil
		}

		out := m.RunCycle(ctx)

		wait := m.opts.PollInterval
		if out.Action.Anomalous() {
			wait = m.opts.Cooldown
		}
		if !sleep(ctx, wait) {
			log.Info().Msg("monitor stopped")
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunCycle 은 cycle 1회를 수행한다. 어떤 실패도 밖으로 던지지 않는다.
// 실패 / 빈 namespace / 중복 / panic 은 Skipped 계열 Outcome 으로 돌아온다.
func (m *Monitor) RunCycle(ctx context.Context) (out Outcome) {
	atomic.AddInt64(&m.metrics.CyclesTotal, 1)

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&m.metrics.PanicsRecoveredTotal, 1)
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("state", m.State().String()).
				Msg("cycle panic recovered")
			out = Outcome{Kind: OutcomePanic, Err: fmt.Errorf("panic: %v", r)}
		}
		m.setState(StateIdle)
		m.record(out)
	}()

	m.setState(StateFetching)
	h, rec, out, ok := m.fetch(ctx)
	if !ok {
		return out
	}

	m.setState(StateClassifying)
	v := classify.Classify(rec, m.contract)

	m.setState(StateDeciding)
	a := m.policy.Decide(v)

	m.setState(StateReporting)
	// 진행 중 cycle 은 shutdown 신호와 무관하게 보고까지 마친다.
	m.report(context.WithoutCancel(ctx), h, rec, v, a)

	return Outcome{Kind: outcomeOf(a), Key: h.Key, Violation: v, Action: a}
}

// fetch 는 최신 object 를 찾아 읽고 디코딩한다.
// ok=false 이면 out 에 skip 사유가 담긴다.
func (m *Monitor) fetch(ctx context.Context) (model.RecordHandle, model.EventRecord, Outcome, bool) {
	fctx := ctx
	if m.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, m.opts.FetchTimeout)
		defer cancel()
	}

	h, err := m.src.ListLatest(fctx)
	if err != nil {
		atomic.AddInt64(&m.metrics.FetchErrorsTotal, 1)
		log.Debug().Err(err).Msg("list failed, skip cycle")
		return model.RecordHandle{}, nil, Outcome{Kind: OutcomeFetchError, Err: err}, false
	}
	if h == nil {
		atomic.AddInt64(&m.metrics.CyclesEmptyTotal, 1)
		return model.RecordHandle{}, nil, Outcome{Kind: OutcomeEmpty}, false
	}
	if m.seen(*h) {
		atomic.AddInt64(&m.metrics.CyclesDuplicateTotal, 1)
		log.Debug().Str("key", h.Key).Msg("latest object not newer than last inspected")
		return *h, nil, Outcome{Kind: OutcomeDuplicate, Key: h.Key}, false
	}

	data, err := m.src.Read(fctx, *h)
	if err != nil {
		atomic.AddInt64(&m.metrics.FetchErrorsTotal, 1)
		log.Debug().Err(err).Str("key", h.Key).Msg("read failed, skip cycle")
		return *h, nil, Outcome{Kind: OutcomeFetchError, Key: h.Key, Err: err}, false
	}

	rec, err := m.dec.Decode(data)
	if err != nil {
		// 같은 버전을 다시 읽어도 결과는 같다. 다시 쓰이면 LastModified 가 바뀐다.
		m.markSeen(*h)
		atomic.AddInt64(&m.metrics.DecodeErrorsTotal, 1)
		log.Debug().Err(err).Str("key", h.Key).Msg("decode failed, skip cycle")
		return *h, nil, Outcome{Kind: OutcomeDecodeError, Key: h.Key, Err: err}, false
	}

	m.markSeen(*h)
	return *h, rec, Outcome{}, true
}

// report 는 결정을 알린다.
//   - NoAction: debug heartbeat 만
//   - 그 외: audit entry → sink, 이후 applier
func (m *Monitor) report(ctx context.Context, h model.RecordHandle, rec model.EventRecord, v model.Violation, a model.RemediationAction) {
	switch v.Kind {
	case model.ViolationSchemaMismatch:
		atomic.AddInt64(&m.metrics.SchemaMismatchTotal, 1)
	case model.ViolationType:
		atomic.AddInt64(&m.metrics.TypeViolationTotal, 1)
	default:
		atomic.AddInt64(&m.metrics.RecordsCleanTotal, 1)
	}

	if a.Kind == model.ActionNone {
		log.Debug().Str("key", h.Key).Str("event_id", rec.ID()).Msg("record clean")
		return
	}

	entry := model.NewAuditEntry(m.now(), h, rec, v, a)
	if m.sink != nil {
		if err := m.sink.Emit(ctx, entry); err != nil {
			atomic.AddInt64(&m.metrics.AuditEmitErrorsTotal, 1)
			log.Warn().Err(err).Str("audit_id", entry.ID).Msg("audit emit failed")
		} else {
			atomic.AddInt64(&m.metrics.AuditEmittedTotal, 1)
		}
	}

	if m.applier != nil {
		if err := m.applier.Apply(ctx, h, a); err != nil {
			atomic.AddInt64(&m.metrics.ApplyErrorsTotal, 1)
			log.Error().Err(err).Str("key", h.Key).Str("action", string(a.Kind)).Msg("remediation apply failed")
		}
	}
}

func (m *Monitor) seen(h model.RecordHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last != nil && !h.After(*m.last)
}

func (m *Monitor) markSeen(h model.RecordHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &h
}

func (m *Monitor) record(out Outcome) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.Cycles++
	m.status.LastCycleAt = now
	m.status.LastOutcome = out.Kind
	if out.Key != "" {
		m.status.LastKey = out.Key
	}
	if out.Action.Anomalous() {
		m.status.Anomalies++
		m.status.LastAnomalyAt = now
		m.status.LastAnomalyKey = out.Key
		m.status.LastAnomalyAction = out.Action.Kind
	}
}
