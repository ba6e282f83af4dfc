// Package storagetest 는 storage.ObjectAPI 의 in-memory 구현을 제공한다 (테스트 전용).
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type object struct {
	data    []byte
	modTime time.Time
}

// FakeS3 는 bucket/key → object map.
// 각 *Err 필드가 설정되면 해당 호출은 그 오류를 반환한다.
type FakeS3 struct {
	mu      sync.Mutex
	objects map[string]map[string]object

	PageSize int // 0 이면 한 page 에 전부

	ListErr   error
	GetErr    error
	PutErr    error
	CopyErr   error
	DeleteErr error

	PutCalls int
}

func New() *FakeS3 {
	return &FakeS3{objects: map[string]map[string]object{}}
}

// Add 는 object 를 직접 심는다 (generator 없이 landing zone 구성).
func (f *FakeS3) Add(bucket, key string, data []byte, modTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(bucket, key, data, modTime)
}

func (f *FakeS3) put(bucket, key string, data []byte, modTime time.Time) {
	b, ok := f.objects[bucket]
	if !ok {
		b = map[string]object{}
		f.objects[bucket] = b
	}
	b[key] = object{data: append([]byte(nil), data...), modTime: modTime}
}

// Object 는 저장된 object 내용을 돌려준다.
func (f *FakeS3) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[bucket][key]
	return o.data, ok
}

// Keys 는 bucket 안 prefix 로 시작하는 key 를 정렬해 돌려준다.
func (f *FakeS3) Keys(bucket, prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys(bucket, prefix)
}

func (f *FakeS3) keys(bucket, prefix string) []string {
	var out []string
	for k := range f.objects[bucket] {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (f *FakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	bucket := aws.ToString(in.Bucket)
	keys := f.keys(bucket, aws.ToString(in.Prefix))

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("bad continuation token %q", tok)
		}
		start = n
	}
	end := len(keys)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	for _, k := range keys[start:end] {
		o := f.objects[bucket][k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			LastModified: aws.Time(o.modTime),
			Size:         aws.Int64(int64(len(o.data))),
			ETag:         aws.String(`"` + strconv.Itoa(len(o.data)) + `"`),
		})
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

func (f *FakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GetErr != nil {
		return nil, f.GetErr
	}
	o, ok := f.objects[aws.ToString(in.Bucket)][aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(o.data)),
		ContentLength: aws.Int64(int64(len(o.data))),
		LastModified:  aws.Time(o.modTime),
	}, nil
}

func (f *FakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PutCalls++
	if f.PutErr != nil {
		return nil, f.PutErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.put(aws.ToString(in.Bucket), aws.ToString(in.Key), data, time.Now())
	return &s3.PutObjectOutput{}, nil
}

func (f *FakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CopyErr != nil {
		return nil, f.CopyErr
	}
	src, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	srcBucket, srcKey, ok := strings.Cut(src, "/")
	if !ok {
		return nil, errors.New("copy source must be bucket/key")
	}
	o, found := f.objects[srcBucket][srcKey]
	if !found {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	f.put(aws.ToString(in.Bucket), aws.ToString(in.Key), o.data, time.Now())
	return &s3.CopyObjectOutput{}, nil
}

func (f *FakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DeleteErr != nil {
		return nil, f.DeleteErr
	}
	delete(f.objects[aws.ToString(in.Bucket)], aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}
