// internal/model/violation.go
package model

// ViolationKind 는 분류 결과의 태그.
type ViolationKind string

const (
	ViolationNone           ViolationKind = "none"
	ViolationSchemaMismatch ViolationKind = "schema_mismatch"
	ViolationType           ViolationKind = "type_violation"
)

// ValueKind 는 type 검사에서 기대하는 값의 의미적 타입.
type ValueKind string

const KindNumeric ValueKind = "numeric"

// Violation
// ------------------------------------------------------------
// 레코드 1건의 분류 결과 (tagged variant).
//
//   - ViolationNone:           나머지 필드 모두 zero value
//   - ViolationSchemaMismatch: ExtraFields (사전순 정렬)
//   - ViolationType:           Field / ExpectedKind / ActualValue
type Violation struct {
	Kind ViolationKind

	ExtraFields []string

	Field        string
	ExpectedKind ValueKind
	ActualValue  any
}

func NoViolation() Violation {
	return Violation{Kind: ViolationNone}
}

func SchemaMismatch(extra []string) Violation {
	return Violation{Kind: ViolationSchemaMismatch, ExtraFields: extra}
}

func TypeViolation(field string, expected ValueKind, actual any) Violation {
	return Violation{
		Kind:         ViolationType,
		Field:        field,
		ExpectedKind: expected,
		ActualValue:  actual,
	}
}

// IsNone 은 Kind 가 비어있는 zero value 도 none 으로 취급한다.
func (v Violation) IsNone() bool {
	return v.Kind == ViolationNone || v.Kind == ""
}
