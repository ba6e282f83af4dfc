// internal/storage/client.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"landing-sentinel/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrTransient 는 "이번 cycle 은 건너뛰고 다음에 다시" 로 처리해야 하는 I/O 오류.
// (빈 응답, 작성 중인 object, timeout 등)
var ErrTransient = errors.New("transient storage error")

// ObjectAPI
//
// 이 프로젝트가 쓰는 *s3.Client 메서드만 모은 인터페이스.
// 테스트에서는 in-memory fake 로 대체한다.
type ObjectAPI interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ ObjectAPI = (*s3.Client)(nil)

// NewClient
//
// 프로세스 시작 시 한 번만 만들어 각 구성요소에 넘겨준다 (전역 client 없음).
//   - region: cfg.AWSRegion
//   - S3Endpoint 가 있으면 MinIO / LocalStack 용 path-style 접속
//   - SDK retry 는 끄고, 재시도는 Uploader 의 애플리케이션 레벨 retry 만 사용
func NewClient(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}
