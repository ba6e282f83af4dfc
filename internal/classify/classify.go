// internal/classify/classify.go
package classify

import (
	"encoding/json"
	"sort"

	"landing-sentinel/internal/model"
)

// AmountField 는 type 검사를 받는 유일한 필드.
const AmountField = "amount"

// Classify
//
// 레코드 1건을 contract 와 비교해 정확히 하나의 Violation 으로 분류한다.
//
// 우선순위:
//  1. contract 밖 필드가 하나라도 있으면 SchemaMismatch (여기서 종료)
//     → schema drift 가 있으면 같은 레코드의 type 오류는 보고하지 않는다.
//  2. amount 가 존재하고 숫자가 아니면 TypeViolation
//  3. 그 외 None
//
// amount 가 아예 없는 경우는 위반이 아니다 (부재 ≠ 잘못된 타입).
// 부수효과 없음. 같은 입력이면 항상 같은 결과.
func Classify(rec model.EventRecord, contract model.SchemaContract) model.Violation {
	if extra := ExtraFields(rec, contract); len(extra) > 0 {
		return model.SchemaMismatch(extra)
	}

	if v, ok := rec[AmountField]; ok && !IsNumeric(v) {
		return model.TypeViolation(AmountField, model.KindNumeric, v)
	}

	return model.NoViolation()
}

// ExtraFields 는 fields(rec) - contract 를 사전순으로 반환한다. 없으면 nil.
func ExtraFields(rec model.EventRecord, contract model.SchemaContract) []string {
	var extra []string
	for k := range rec {
		if !contract.Has(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

// IsNumeric 은 정수/실수 계열이면 true.
// JSON 디코딩 결과는 float64 이지만, 직접 만든 레코드(int 등)와
// UseNumber 디코딩(json.Number)도 허용한다.
//
// JSON true/false 는 일부러 숫자로 보지 않는다. bool 을 정수의 하위 타입으로
// 취급하는 언어 규칙을 따르지 않으며, amount=true 는 type violation 이다.
func IsNumeric(v any) bool {
	switch n := v.(type) {
	case float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	default:
		return false
	}
}
