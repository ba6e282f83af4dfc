// internal/model/audit.go
package model

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// AuditEntry
// ------------------------------------------------------------
// NoAction 이 아닌 cycle 마다 audit sink 로 나가는 구조화 레코드 1건.
// S3 에는 gzip+JSONL, SQL 에는 audit_entries row 로 저장된다.
type AuditEntry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	SourceRecordID string    `json:"source_record_id"`
	SourceKey      string    `json:"source_key"`

	ViolationKind ViolationKind `json:"violation_kind"`
	ActionKind    ActionKind    `json:"action_kind"`
	ActionPayload string        `json:"action_payload"`
	ExtraFields   []string      `json:"extra_fields,omitempty"`
	Confidence    float64       `json:"confidence"`
}

// NewAuditEntry 는 한 cycle 의 결과를 audit 레코드로 묶는다.
// payload 규칙:
//   - evolve_schema: 생성된 statement 그대로
//   - quarantine:    `<field>=<actual json> expected <kind>`
func NewAuditEntry(now time.Time, h RecordHandle, rec EventRecord, v Violation, a RemediationAction) AuditEntry {
	e := AuditEntry{
		ID:             uuid.NewString(),
		Timestamp:      now.UTC(),
		SourceRecordID: rec.ID(),
		SourceKey:      h.Key,
		ViolationKind:  v.Kind,
		ActionKind:     a.Kind,
		ExtraFields:    v.ExtraFields,
		Confidence:     a.Confidence,
	}

	switch a.Kind {
	case ActionEvolveSchema:
		e.ActionPayload = a.Statement
	case ActionQuarantine:
		e.ActionPayload = fmt.Sprintf("%s=%s expected %s", v.Field, renderValue(v.ActualValue), v.ExpectedKind)
	}
	return e
}

func renderValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
