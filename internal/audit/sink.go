// Package audit 는 monitor 가 만든 AuditEntry 를 내보내는 sink 들을 모은다.
package audit

import (
	"context"
	"errors"

	"landing-sentinel/internal/model"

	"github.com/rs/zerolog"
)

// Sink 는 audit entry 를 받아 기록만 한다 (조회 결과를 돌려주지 않음).
type Sink interface {
	Emit(ctx context.Context, e model.AuditEntry) error
}

// Multi 는 모든 sink 에 같은 entry 를 보낸다.
// 하나가 실패해도 나머지는 계속 받으며, 오류는 합쳐서 반환한다.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e model.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink 는 entry 를 warn 레벨 구조화 로그 1줄로 남긴다.
// 샘플링 대상이 아닌 레벨이라 anomaly 는 항상 눈에 띄게 출력된다.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Emit(_ context.Context, e model.AuditEntry) error {
	ev := s.log.Warn().
		Str("audit_id", e.ID).
		Time("detected_at", e.Timestamp).
		Str("source_record_id", e.SourceRecordID).
		Str("source_key", e.SourceKey).
		Str("violation_kind", string(e.ViolationKind)).
		Str("action_kind", string(e.ActionKind)).
		Str("action_payload", e.ActionPayload).
		Float64("confidence", e.Confidence)
	if len(e.ExtraFields) > 0 {
		ev = ev.Strs("extra_fields", e.ExtraFields)
	}

	switch e.ActionKind {
	case model.ActionEvolveSchema:
		ev.Msg("ALERT schema mismatch → schema evolution proposed")
	case model.ActionQuarantine:
		ev.Msg("ALERT data quality error → record quarantined")
	default:
		ev.Msg("audit entry")
	}
	return nil
}
