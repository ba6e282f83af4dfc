// internal/remediate/policy.go
package remediate

import (
	"fmt"

	"landing-sentinel/internal/model"
)

const (
	// EvolveConfidence / QuarantineConfidence 는 추론 단계를 대신하는 고정값.
	EvolveConfidence     = 0.98
	QuarantineConfidence = 0.99

	DefaultTable = "raw_bronze"
)

// Policy
//
// Violation → RemediationAction 결정 인터페이스.
// 실제 LLM 호출로 교체할 수 있도록 분리해 두었지만,
// 어떤 구현이든 "같은 입력이면 같은 결과, 실패 없음" 계약을 지켜야 한다.
type Policy interface {
	Decide(v model.Violation) model.RemediationAction
}

// RulePolicy 는 고정 규칙 기반 기본 구현.
// Table 은 evolution statement 에 들어갈 대상 테이블명 (비어있으면 DefaultTable).
type RulePolicy struct {
	Table string
}

func NewRulePolicy(table string) RulePolicy {
	return RulePolicy{Table: table}
}

// Decide
//
//   - SchemaMismatch → EvolveSchema (confidence 0.98)
//     statement 에는 정렬상 첫 번째 신규 필드 1개만 STRING 컬럼으로 넣는다.
//     나머지 필드는 Fields 로 함께 전달되어 audit 에 남는다.
//   - TypeViolation  → Quarantine (confidence 0.99)
//   - None / 알 수 없는 kind → NoAction
func (p RulePolicy) Decide(v model.Violation) model.RemediationAction {
	switch v.Kind {
	case model.ViolationSchemaMismatch:
		if len(v.ExtraFields) == 0 {
			return model.NoAction()
		}
		field := firstField(v.ExtraFields)
		return model.RemediationAction{
			Kind:       model.ActionEvolveSchema,
			Statement:  EvolutionStatement(p.table(), field),
			Field:      field,
			Fields:     append([]string(nil), v.ExtraFields...),
			Confidence: EvolveConfidence,
		}

	case model.ViolationType:
		return model.RemediationAction{
			Kind:       model.ActionQuarantine,
			Field:      v.Field,
			Confidence: QuarantineConfidence,
		}

	default:
		return model.NoAction()
	}
}

func (p RulePolicy) table() string {
	if p.Table == "" {
		return DefaultTable
	}
	return p.Table
}

// Decide 는 DefaultTable 기준 RulePolicy 결정.
func Decide(v model.Violation) model.RemediationAction {
	return RulePolicy{}.Decide(v)
}

// EvolutionStatement 는 신규 필드를 STRING 컬럼으로 추가하는 고정 형식 문장.
func EvolutionStatement(table, field string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMNS (`%s` STRING)", table, field)
}

// firstField 는 입력 정렬 여부와 무관하게 사전순 최소값을 고른다.
func firstField(fields []string) string {
	min := fields[0]
	for _, f := range fields[1:] {
		if f < min {
			min = f
		}
	}
	return min
}
