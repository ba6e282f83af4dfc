// internal/storage/decoder.go
package storage

import (
	"bytes"
	"fmt"
	"io"

	"landing-sentinel/internal/model"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// ParseError 는 object 내용이 레코드로 해석되지 않을 때의 오류.
// monitor 는 fetch 실패와 동일하게 "이번 cycle skip" 으로 처리한다.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse record: %s: %v", e.Reason, e.Err)
	}
	return "parse record: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

var gzipMagic = []byte{0x1f, 0x8b}

// maxInflated 는 gzip 해제 후 허용하는 최대 크기 (레코드 1건 기준으로 충분히 큼).
const maxInflated = 8 << 20

// JSONDecoder
//
// landing object → EventRecord.
//   - goccy/go-json 으로 디코딩
//   - gzip magic(1f 8b) 으로 시작하면 먼저 해제 (*.json.gz 적재 대응)
//   - 빈 입력 / 깨진 JSON / 최상위가 object 가 아닌 값(null, 배열, 숫자 등) → *ParseError
type JSONDecoder struct{}

func NewJSONDecoder() JSONDecoder {
	return JSONDecoder{}
}

func (JSONDecoder) Decode(data []byte) (model.EventRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &ParseError{Reason: "empty object"}
	}

	if bytes.HasPrefix(data, gzipMagic) {
		inflated, err := gunzip(data)
		if err != nil {
			return nil, &ParseError{Reason: "gzip", Err: err}
		}
		data = bytes.TrimSpace(inflated)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &ParseError{Reason: "invalid json", Err: err}
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ParseError{Reason: fmt.Sprintf("top-level value is %T, want object", v)}
	}
	return model.EventRecord(m), nil
}

func gunzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	out, err := io.ReadAll(io.LimitReader(gz, maxInflated+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflated {
		return nil, fmt.Errorf("inflated record exceeds %d bytes", maxInflated)
	}
	return out, nil
}
