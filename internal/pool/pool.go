package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// monitor 는 poll 주기마다 object 를 읽고(ObjectPool),
// audit 배치를 gzip 으로 인코딩한다(BufferPool, GzipPool).
// 주기가 짧을수록 할당이 반복되므로 버퍼를 재사용한다.
// ---------------------------------------------------------------

var (
	// ObjectPool:
	//   - landing object body 를 읽어 담는 버퍼
	//   - 레코드 1건짜리 JSON 이므로 초기 용량 4KB
	ObjectPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool:
	//   - gzip 인코딩 결과를 담는 임시 버퍼 (초기 64KB)
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// GzipPool:
	//   - gzip.Writer 재사용, BestSpeed
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// MaxBufferCap 보다 큰 버퍼는 풀에 돌려놓지 않고 GC 에 맡긴다.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// GetBuffer 는 ObjectPool / BufferPool 에서 비워진 버퍼를 꺼낸다.
func GetBuffer(p *sync.Pool) *bytes.Buffer {
	buf := p.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer:
//   - MaxBufferCap 이하이면 풀에 재사용
//   - 비정상적으로 큰 object / 배치 결과는 풀로 돌리지 않음
func PutBuffer(p *sync.Pool, buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		p.Put(buf)
	}
}
