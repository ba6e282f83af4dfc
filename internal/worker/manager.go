// internal/worker/manager.go
package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"landing-sentinel/internal/config"
	"landing-sentinel/internal/metrics"
	"landing-sentinel/internal/model"

	"github.com/rs/zerolog/log"
)

var (
	// ErrQueueFull 는 AuditCh 가 가득 차 entry 를 버렸을 때.
	ErrQueueFull = errors.New("audit queue full")
	// ErrClosed 는 Shutdown 이후 Emit 이 호출됐을 때.
	ErrClosed = errors.New("audit shipper closed")
)

// uploader 는 storage.Uploader 의 필요한 부분만.
type uploader interface {
	UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error
	UploadFileWithRetryCtx(ctx context.Context, key string, f io.ReadSeeker, size int64) error
}

// spillEvery 는 idle 상태에서 spill 재업로드를 시도하는 주기.
const spillEvery = 500 * time.Millisecond

// Manager 는 audit entry 를 S3 로 배송하는 파이프라인이다.
// monitor 가 Emit 으로 넘긴 entry 를 모아서(batch)
//   - gzip+JSONL 로 인코딩
//   - <AuditPrefix>/dt=/hr=/ 아래 업로드 (실패 시 로컬 spill 저장)
//
// 하는 흐름을 제어한다.
//
// 주요 구성:
//   - AuditCh: monitor → Manager (Emit 은 절대 block 하지 않음)
//   - collectLoop: AuditBatchSize 또는 AuditFlushInterval 마다 uploadCh 로 전달
//   - uploadLoop: 인코딩 + 업로드 + spill 재업로드
//
// Shutdown 은 남은 entry 를 모두 flush 한 뒤 반환한다.
type Manager struct {
	cfg     config.Config
	metrics *metrics.Metrics
	up      uploader
	spill   *Spill

	AuditCh  chan model.AuditEntry
	uploadCh chan []model.AuditEntry

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // closed / AuditCh close 보호
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager 는 Spill 을 준비하고 채널을 구성한다.
func NewManager(cfg config.Config, m *metrics.Metrics, up uploader) (*Manager, error) {
	spill, err := NewSpill(cfg, m, up)
	if err != nil {
		return nil, err
	}

	queue := cfg.AuditQueue
	if queue <= 0 {
		queue = 1
	}
	batch := cfg.AuditBatchSize
	if batch <= 0 {
		batch = 1
	}
	cfg.AuditBatchSize = batch

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		metrics:  m,
		up:       up,
		spill:    spill,
		AuditCh:  make(chan model.AuditEntry, queue),
		uploadCh: make(chan []model.AuditEntry, 4),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start 는 collectLoop / uploadLoop 를 실행한다.
func (m *Manager) Start() {
	m.wg.Add(2)
	go m.collectLoop()
	go m.uploadLoop()
}

// Emit 은 audit.Sink 구현. 큐가 가득 차면 기다리지 않고 버린다.
func (m *Manager) Emit(_ context.Context, e model.AuditEntry) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	select {
	case m.AuditCh <- e:
		return nil
	default:
		atomic.AddInt64(&m.metrics.AuditDroppedQueueFullTotal, 1)
		return ErrQueueFull
	}
}

// Shutdown 은 AuditCh 를 닫고 남은 배치 업로드가 끝날 때까지 기다린다.
// 여러 번 호출해도 안전하다.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.AuditCh)
		m.mu.Unlock()
	})
	m.wg.Wait()
	m.cancel()
}

// collectLoop 는 AuditCh 를 읽어 batch 로 묶는다.
// flush 는 항상 새 slice 를 만든다 (넘긴 slice 재사용 금지).
func (m *Manager) collectLoop() {
	defer m.wg.Done()
	defer close(m.uploadCh)

	batch := make([]model.AuditEntry, 0, m.cfg.AuditBatchSize)
	timer := time.NewTimer(m.cfg.AuditFlushInterval)
	defer timer.Stop()

	reset := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.cfg.AuditFlushInterval)
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		m.uploadCh <- batch
		batch = make([]model.AuditEntry, 0, m.cfg.AuditBatchSize)
		reset()
	}

	for {
		select {
		case e, ok := <-m.AuditCh:
			if !ok {
				// 채널 종료 → 남은 batch 처리 후 종료
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= m.cfg.AuditBatchSize {
				flush()
			}

		case <-timer.C:
			if len(batch) == 0 {
				timer.Reset(m.cfg.AuditFlushInterval)
				continue
			}
			flush()
		}
	}
}

// uploadLoop 는 uploadCh 에서 batch 를 받아 업로드하고,
// 매 batch 뒤와 idle 주기마다 spill 파일을 최대 3개 재업로드한다 (starvation 방지).
// uploadCh 가 닫히면 종료한다.
func (m *Manager) uploadLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(spillEvery)
	defer ticker.Stop()

	drainSpill := func() {
		for i := 0; i < 3; i++ {
			if !m.spill.ProcessOneCtx(m.ctx) {
				return
			}
		}
	}

	for {
		select {
		case batch, ok := <-m.uploadCh:
			if !ok {
				log.Info().Msg("audit uploader exiting")
				return
			}
			m.processUploadCtx(m.ctx, batch)
			drainSpill()

		case <-ticker.C:
			drainSpill()
		}
	}
}

// processUploadCtx 는 batch 1개를 처리한다.
//  1. JSONL + gzip 인코딩 (실패 시 버리고 기록)
//  2. S3 업로드 실패 → 로컬 spill
//  3. 성공 시 metrics
func (m *Manager) processUploadCtx(ctx context.Context, batch []model.AuditEntry) {
	if len(batch) == 0 {
		return
	}

	data, err := EncodeBatchJSONLGZ(batch)
	if err != nil {
		log.Error().Err(err).Int("entries", len(batch)).Msg("audit batch encode failed → drop")
		atomic.AddInt64(&m.metrics.SpillEntriesDroppedTotal, int64(len(batch)))
		return
	}

	key := BuildS3Key(m.cfg.AuditPrefix, NewFilename(m.cfg.InstanceID))
	if err := m.up.UploadBytesWithRetryCtx(ctx, key, data); err != nil {
		log.Warn().Err(err).Str("key", key).Int("entries", len(batch)).Msg("audit upload failed → spill")
		if err2 := m.spill.Save(data, len(batch)); err2 != nil {
			log.Error().Err(err2).Msg("local spill save failed")
		}
		return
	}

	atomic.AddInt64(&m.metrics.S3AuditEntriesStoredTotal, int64(len(batch)))
	log.Debug().Str("key", key).Int("entries", len(batch)).Msg("audit batch stored")
}
