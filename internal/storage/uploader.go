// internal/storage/uploader.go
package storage

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"time"

	"landing-sentinel/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader 는 S3 PutObject 를 애플리케이션 레벨 retry 와 함께 수행한다.
//   - 바이트 업로드 (UploadBytesWithRetryCtx): generator 레코드, audit 배치, proposal
//   - 파일 업로드 (UploadFileWithRetryCtx): 로컬 spill 재업로드
//
// 모든 업로드는 컨텍스트 기반(시도당 timeout + cancel-safe)이며
// 200ms 부터 2초까지 exponential backoff 를 적용한다.
type Uploader struct {
	api         ObjectAPI
	bucket      string
	timeout     time.Duration
	retries     int
	contentType string
	metrics     *metrics.Metrics
}

// UploaderOptions 는 NewUploader 설정값.
type UploaderOptions struct {
	Bucket      string
	Timeout     time.Duration
	Retries     int
	ContentType string
}

func NewUploader(api ObjectAPI, opts UploaderOptions, m *metrics.Metrics) *Uploader {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if m == nil {
		m = metrics.New()
	}
	return &Uploader{
		api:         api,
		bucket:      opts.Bucket,
		timeout:     opts.Timeout,
		retries:     opts.Retries,
		contentType: opts.ContentType,
		metrics:     m,
	}
}

// UploadBytesWithRetryCtx
// -----------------------
// 메모리에 있는 바이트를 업로드한다.
// body 는 매 재시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 사용.
func (u *Uploader) UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error {
	return u.withRetry(ctx, func() error {
		return u.putObject(ctx, key, bytes.NewReader(body), int64(len(body)))
	})
}

// UploadFileWithRetryCtx
// -----------------------
// 로컬 파일을 그대로 업로드한다. retry 전에 Seek(0) 으로 되감는다.
func (u *Uploader) UploadFileWithRetryCtx(ctx context.Context, key string, f io.ReadSeeker, size int64) error {
	return u.withRetry(ctx, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return u.putObject(ctx, key, f, size)
	})
}

func (u *Uploader) withRetry(ctx context.Context, put func() error) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := put()
		if err == nil {
			return nil
		}
		lastErr = err
		atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)

		if attempt == u.retries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// putObject 는 PutObject 1회 호출. 시도당 timeout 은 u.timeout.
func (u *Uploader) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if u.contentType != "" {
		in.ContentType = aws.String(u.contentType)
	}

	_, err := u.api.PutObject(ctx, in)
	return err
}
