// internal/model/record.go
package model

import (
	"sort"
	"time"
)

// EventRecord
// ------------------------------------------------------------
// landing zone 에 적재된 JSON 객체 1건을 디코딩한 결과.
// 필드 구성은 자유롭다 (contract 밖의 필드도 그대로 보존).
//
// 대표 필드:
//
//	event_id, event_timestamp, event_type, user_id, amount, device
type EventRecord map[string]any

// Fields 는 레코드의 필드명을 사전순으로 반환한다.
func (r EventRecord) Fields() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ID 는 event_id 가 문자열일 때만 그 값을 반환한다.
func (r EventRecord) ID() string {
	if v, ok := r["event_id"].(string); ok {
		return v
	}
	return ""
}

// SchemaContract
// ------------------------------------------------------------
// "이 필드들만 온다" 라는 기대 스키마.
// 프로세스 시작 시 한 번 만들어지고 이후 읽기 전용으로 공유된다.
// schema evolution 제안이 나와도 실행 중인 contract 는 바뀌지 않는다
// (운영자가 제안을 반영한 뒤 재시작해야 새 contract 가 적용됨).
type SchemaContract struct {
	fields map[string]struct{}
}

// NewSchemaContract 는 주어진 필드명으로 contract 를 만든다. 중복/빈 문자열은 무시.
func NewSchemaContract(fields ...string) SchemaContract {
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		m[f] = struct{}{}
	}
	return SchemaContract{fields: m}
}

// DefaultContract 는 generator 가 만드는 정상 레코드의 6개 필드 contract.
func DefaultContract() SchemaContract {
	return NewSchemaContract(
		"event_id",
		"event_timestamp",
		"event_type",
		"user_id",
		"amount",
		"device",
	)
}

func (c SchemaContract) Has(field string) bool {
	_, ok := c.fields[field]
	return ok
}

func (c SchemaContract) Len() int {
	return len(c.fields)
}

// Fields 는 정렬된 복사본을 반환한다. 내부 map 은 외부에 노출하지 않는다.
func (c SchemaContract) Fields() []string {
	out := make([]string, 0, len(c.fields))
	for k := range c.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RecordHandle
// ------------------------------------------------------------
// landing zone 에서 찾은 object 1개의 식별 정보.
// monitor 는 Key + LastModified 조합으로 "같은 object 재검사" 여부를 판단한다.
type RecordHandle struct {
	Key          string
	LastModified time.Time
	Size         int64
	ETag         string
}

// Same 은 두 handle 이 같은 object 버전을 가리키는지 확인한다.
func (h RecordHandle) Same(o RecordHandle) bool {
	return h.Key == o.Key && h.LastModified.Equal(o.LastModified)
}

// After 는 h 가 o 보다 나중에 착지한 object 인지 확인한다.
// LastModified 가 같으면 key 가 큰 쪽이 나중이다.
func (h RecordHandle) After(o RecordHandle) bool {
	if h.LastModified.Equal(o.LastModified) {
		return h.Key > o.Key
	}
	return h.LastModified.After(o.LastModified)
}
