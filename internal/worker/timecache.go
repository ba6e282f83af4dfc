// internal/worker/timecache.go
package worker

import (
	"sync/atomic"
	"time"
)

//
// timecache.go
// ------------------------------------------------------------
// 현재 UTC epoch seconds 와 UTC 날짜/시간 파티션을 1초 단위로 캐싱한다.
//
// 사용처:
//   - spill / audit 파일명 prefix (<unix>_...)
//   - S3 파티션 prefix (dt=YYYY-MM-DD / hr=HH)
//   - spill TTL 판단
//
// audit 파티션은 Athena 등에서 UTC 로 조회하므로 offset 을 적용하지 않는다.
// ------------------------------------------------------------

var (
	unixSec atomic.Int64

	dtVal atomic.Value // "YYYY-MM-DD"
	hrVal atomic.Value // "HH"
)

func init() {
	store(time.Now())

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for now := range ticker.C {
			store(now)
		}
	}()
}

func store(now time.Time) {
	utc := now.UTC()
	unixSec.Store(utc.Unix())
	dtVal.Store(utc.Format("2006-01-02"))
	hrVal.Store(utc.Format("15"))
}

// ------------------------------------------------------------
// Public API
// ------------------------------------------------------------

// Unix returns current UTC epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}

// DT returns "YYYY-MM-DD" (UTC).
func DT() string {
	return dtVal.Load().(string)
}

// HR returns "HH" (UTC).
func HR() string {
	return hrVal.Load().(string)
}
