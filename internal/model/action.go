// internal/model/action.go
package model

// ActionKind 는 remediation 결정의 태그.
type ActionKind string

const (
	ActionNone         ActionKind = "no_action"
	ActionEvolveSchema ActionKind = "evolve_schema"
	ActionQuarantine   ActionKind = "quarantine"
)

// RemediationAction
// ------------------------------------------------------------
// 매 monitoring cycle 마다 Violation 으로부터 새로 만들어지는 값.
// core 는 이 값을 저장하지 않는다 (audit sink 가 기록 담당).
//
//   - ActionEvolveSchema: Statement, Field(문장에 쓰인 필드), Fields(전체 신규 필드), Confidence
//   - ActionQuarantine:   Field, Confidence
//   - ActionNone:         나머지 zero value
type RemediationAction struct {
	Kind ActionKind

	Statement  string
	Field      string
	Fields     []string
	Confidence float64
}

func NoAction() RemediationAction {
	return RemediationAction{Kind: ActionNone}
}

// Anomalous 는 cooldown / audit 대상 여부.
func (a RemediationAction) Anomalous() bool {
	return a.Kind == ActionEvolveSchema || a.Kind == ActionQuarantine
}
