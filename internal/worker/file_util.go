// internal/worker/file_util.go
package worker

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// file_util.go
// ------------------------------------------------------------
// audit 배치 / spill 파일명 유틸리티.
//
// 파일명 규칙:
//
//	<unix>_<instance>_<counter>.jsonl.gz
//
// 예:
//
//	1764721594_sentinel1_000042.jsonl.gz
//
// 문자열 정렬 = 시간 정렬이므로 spill 에서 가장 오래된 파일을 먼저 처리할 수 있고,
// TTL 도 파일명 prefix 만 보고 판단한다.
var globalCounter uint64

// NextCounter 는 1e6 에서 0 으로 돌아가는 원자적 순번.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename 은 <unix>_<instance>_<counter>.jsonl.gz 를 만든다.
// instance 안의 '_' 는 '-' 로 바꾼다 (첫 '_' 앞이 unix 여야 TTL 파싱이 된다).
func NewFilename(instanceID string) string {
	sec := Unix()
	c := NextCounter()
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", sec, strings.ReplaceAll(instanceID, "_", "-"), c)
}

// BuildS3Key
// ------------------------------------------------------------
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
//
// audit prefix 와 audit dead-letter prefix 모두 같은 파티션 구조를 쓴다.
func BuildS3Key(prefix, filename string) string {
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", strings.TrimSuffix(prefix, "/"), DT(), HR(), filename)
}

// extractUnixFromFilename 은 파일명 prefix 에서 Unix seconds 를 파싱한다.
func extractUnixFromFilename(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	sec, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || sec <= 0 {
		return 0, false
	}
	return sec, true
}
