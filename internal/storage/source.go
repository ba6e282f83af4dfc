// internal/storage/source.go
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"landing-sentinel/internal/model"
	"landing-sentinel/internal/pool"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Source
//
// landing zone(bucket + prefix) 에서 "가장 최근에 수정된 object" 를 찾고 읽는다.
// listing 순서는 S3 의 LastModified 기준이므로 거의 동시에 쓰인 object 끼리는
// 순서가 뒤바뀔 수 있다. monitor 는 이를 허용한다 (순서 보장 없음).
type S3Source struct {
	api    ObjectAPI
	bucket string
	prefix string
}

func NewS3Source(api ObjectAPI, bucket, prefix string) *S3Source {
	return &S3Source{api: api, bucket: bucket, prefix: prefix}
}

// ListLatest
//
// prefix 아래 모든 page 를 훑어 LastModified 가 가장 큰 object 를 반환한다.
// 같은 시각이면 key 가 사전순으로 큰 쪽 (generator key 에 unix 초가 들어가므로
// 대부분 더 늦게 만든 쪽).
// "폴더" 표시용 key(…/) 는 건너뛴다. 아무것도 없으면 nil, nil.
func (s *S3Source) ListLatest(ctx context.Context) (*model.RecordHandle, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var latest *model.RecordHandle
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w: %w", s.bucket, s.prefix, ErrTransient, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}

			h := model.RecordHandle{
				Key:          key,
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			}
			if latest == nil || h.After(*latest) {
				latest = &h
			}
		}
	}
	return latest, nil
}

// Read
//
// object body 전체를 읽어 호출자 소유의 새 slice 로 반환한다.
// 실패(없는 key, 작성 중, timeout, 중간 끊김)는 모두 ErrTransient 로 감싼다.
func (s *S3Source) Read(ctx context.Context, h model.RecordHandle) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(h.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w: %w", s.bucket, h.Key, ErrTransient, err)
	}
	defer func() { _ = out.Body.Close() }()

	buf := pool.GetBuffer(&pool.ObjectPool)
	defer pool.PutBuffer(&pool.ObjectPool, buf)

	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w: %w", s.bucket, h.Key, ErrTransient, err)
	}

	// pool 버퍼는 재사용되므로 복사해서 넘긴다.
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}
