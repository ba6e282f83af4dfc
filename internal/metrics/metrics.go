package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 monitor 프로세스 상태를 나타내는 카운터 모음이다.
// 모든 필드는 atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// Monitoring cycle 지표
	// ======================

	// CyclesTotal
	// - 시작된 monitoring cycle 수 (결과와 무관).
	CyclesTotal int64

	// CyclesEmptyTotal
	// - landing prefix 가 비어 있어 아무것도 검사하지 않은 cycle 수.
	CyclesEmptyTotal int64

	// CyclesDuplicateTotal
	// - 최신 object 가 마지막으로 검사한 object(key + last-modified) 보다
	//   나중 것이 아니라서 건너뛴 수.
	// - generator 가 멈췄거나 poll 주기가 적재 주기보다 짧다는 신호.
	CyclesDuplicateTotal int64

	// FetchErrorsTotal
	// - list / get 실패 (timeout, 작성 중인 object 등). transient 로 취급.
	FetchErrorsTotal int64

	// DecodeErrorsTotal
	// - JSON 파싱 실패 또는 최상위가 object 가 아닌 레코드 수.
	DecodeErrorsTotal int64

	// PanicsRecoveredTotal
	// - cycle 경계에서 recover 된 panic 수. 0 이 아니면 버그.
	PanicsRecoveredTotal int64

	// ======================
	// 분류 결과 지표
	// ======================

	RecordsCleanTotal          int64
	SchemaMismatchTotal        int64
	TypeViolationTotal         int64
	ApplyErrorsTotal           int64 // quarantine / proposal hook 실패
	AuditEmittedTotal          int64 // sink 로 전달된 audit entry 수
	AuditEmitErrorsTotal       int64 // sink 중 하나 이상 실패
	AuditDroppedQueueFullTotal int64 // S3 배송 큐가 가득 차서 버린 수

	// ======================
	// S3 audit 배송 지표
	// ======================

	// S3AuditEntriesStoredTotal
	// - S3 audit prefix 에 성공 저장된 entry 수 (배치 수 아님).
	S3AuditEntriesStoredTotal int64

	// S3PutErrorsTotal
	// - PutObject 실패 "시도" 횟수. retry 마다 증가.
	S3PutErrorsTotal int64

	// ======================
	// Spill (로컬 dead letter) 지표
	// ======================

	SpillEntriesEnqueuedTotal   int64 // 업로드 실패로 로컬에 저장된 entry 수
	SpillEntriesReuploadedTotal int64 // 재업로드 성공 entry 수
	SpillEntriesDroppedTotal    int64 // 용량 초과로 버린 entry 수
	SpillFilesExpiredTotal      int64 // TTL / 용량 정책으로 삭제된 파일 수
	SpillFilesCurrent           int64 // gauge
	SpillSizeBytes              int64 // gauge
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "cycles_total=%d\n", atomic.LoadInt64(&m.CyclesTotal))
	fmt.Fprintf(&sb, "cycles_empty_total=%d\n", atomic.LoadInt64(&m.CyclesEmptyTotal))
	fmt.Fprintf(&sb, "cycles_duplicate_total=%d\n", atomic.LoadInt64(&m.CyclesDuplicateTotal))
	fmt.Fprintf(&sb, "fetch_errors_total=%d\n", atomic.LoadInt64(&m.FetchErrorsTotal))
	fmt.Fprintf(&sb, "decode_errors_total=%d\n", atomic.LoadInt64(&m.DecodeErrorsTotal))
	fmt.Fprintf(&sb, "panics_recovered_total=%d\n", atomic.LoadInt64(&m.PanicsRecoveredTotal))

	fmt.Fprintf(&sb, "records_clean_total=%d\n", atomic.LoadInt64(&m.RecordsCleanTotal))
	fmt.Fprintf(&sb, "schema_mismatch_total=%d\n", atomic.LoadInt64(&m.SchemaMismatchTotal))
	fmt.Fprintf(&sb, "type_violation_total=%d\n", atomic.LoadInt64(&m.TypeViolationTotal))
	fmt.Fprintf(&sb, "apply_errors_total=%d\n", atomic.LoadInt64(&m.ApplyErrorsTotal))
	fmt.Fprintf(&sb, "audit_emitted_total=%d\n", atomic.LoadInt64(&m.AuditEmittedTotal))
	fmt.Fprintf(&sb, "audit_emit_errors_total=%d\n", atomic.LoadInt64(&m.AuditEmitErrorsTotal))
	fmt.Fprintf(&sb, "audit_dropped_queue_full_total=%d\n", atomic.LoadInt64(&m.AuditDroppedQueueFullTotal))

	fmt.Fprintf(&sb, "s3_audit_entries_stored_total=%d\n", atomic.LoadInt64(&m.S3AuditEntriesStoredTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))

	fmt.Fprintf(&sb, "spill_entries_enqueued_total=%d\n", atomic.LoadInt64(&m.SpillEntriesEnqueuedTotal))
	fmt.Fprintf(&sb, "spill_entries_reuploaded_total=%d\n", atomic.LoadInt64(&m.SpillEntriesReuploadedTotal))
	fmt.Fprintf(&sb, "spill_entries_dropped_total=%d\n", atomic.LoadInt64(&m.SpillEntriesDroppedTotal))
	fmt.Fprintf(&sb, "spill_files_expired_total=%d\n", atomic.LoadInt64(&m.SpillFilesExpiredTotal))
	fmt.Fprintf(&sb, "spill_files_current=%d\n", atomic.LoadInt64(&m.SpillFilesCurrent))
	fmt.Fprintf(&sb, "spill_size_bytes=%d\n", atomic.LoadInt64(&m.SpillSizeBytes))

	return sb.String()
}
