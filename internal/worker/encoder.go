package worker

import (
	"landing-sentinel/internal/model"
	"landing-sentinel/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// EncodeBatchJSONLGZ 는 audit entry 배치를 JSONL 로 한 줄씩 인코딩한 뒤
// gzip 으로 압축해 반환한다.
//
//   - gzip.Writer + bytes.Buffer 는 pool 에서 재사용
//   - 결과는 새 []byte 로 복사해 호출자에게 소유권을 넘긴다
//     (pool 버퍼를 그대로 반환하면 다음 배치가 덮어쓴다)
func EncodeBatchJSONLGZ(entries []model.AuditEntry) ([]byte, error) {
	buf := pool.GetBuffer(&pool.BufferPool)

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	enc := json.NewEncoder(gz)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			pool.PutBuffer(&pool.BufferPool, buf)
			return nil, err
		}
	}

	// Close 시 gzip footer 까지 기록된다.
	if err := gz.Close(); err != nil {
		pool.GzipPool.Put(gz)
		pool.PutBuffer(&pool.BufferPool, buf)
		return nil, err
	}
	pool.GzipPool.Put(gz)

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	pool.PutBuffer(&pool.BufferPool, buf)

	return data, nil
}
