// Package executor 는 monitor 가 내린 remediation 결정을 landing zone 에 반영한다.
//
//   - ProposalWriter: evolution statement 를 .sql object 로 남긴다 (실행하지 않음)
//   - Quarantiner:    문제 object 를 quarantine prefix 로 옮긴다
//
// 두 hook 모두 prefix 가 설정된 경우에만 켜진다.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"landing-sentinel/internal/model"
	"landing-sentinel/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Applier 는 action 1건을 handle 이 가리키는 object 에 적용한다.
// 자신과 무관한 action 은 nil 을 반환하고 무시한다.
type Applier interface {
	Apply(ctx context.Context, h model.RecordHandle, a model.RemediationAction) error
}

// Chain 은 모든 applier 를 순서대로 실행하고 오류를 합친다.
// 비어 있으면 no-op.
type Chain []Applier

func (c Chain) Apply(ctx context.Context, h model.RecordHandle, a model.RemediationAction) error {
	var errs []error
	for _, ap := range c {
		if ap == nil {
			continue
		}
		if err := ap.Apply(ctx, h, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// bytesUploader 는 storage.Uploader 의 필요한 부분.
type bytesUploader interface {
	UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// ProposalWriter
// ------------------------------------------------------------
// EvolveSchema 결정의 statement 를
//
//	<prefix>/<unix>_<field>.sql
//
// 로 저장한다. 운영자가 검토 후 직접 실행한다.
type ProposalWriter struct {
	up     bytesUploader
	prefix string
	now    func() time.Time
}

func NewProposalWriter(up bytesUploader, prefix string) *ProposalWriter {
	return &ProposalWriter{up: up, prefix: strings.TrimSuffix(prefix, "/"), now: time.Now}
}

func (p *ProposalWriter) Apply(ctx context.Context, h model.RecordHandle, a model.RemediationAction) error {
	if a.Kind != model.ActionEvolveSchema || a.Statement == "" {
		return nil
	}

	field := unsafeKeyChars.ReplaceAllString(a.Field, "_")
	if field == "" {
		field = "field"
	}
	key := fmt.Sprintf("%s/%d_%s.sql", p.prefix, p.now().Unix(), field)

	body := fmt.Sprintf("-- source: %s\n-- confidence: %.2f\n%s;\n", h.Key, a.Confidence, a.Statement)
	if err := p.up.UploadBytesWithRetryCtx(ctx, key, []byte(body)); err != nil {
		return fmt.Errorf("write proposal %s: %w", key, err)
	}

	log.Info().Str("key", key).Str("field", a.Field).Msg("schema evolution proposal written")
	return nil
}

// Quarantiner
// ------------------------------------------------------------
// Quarantine 결정이 나온 object 를 <prefix>/<base name> 으로 복사한 뒤
// 원본을 지운다. 같은 bucket 안에서만 이동한다.
type Quarantiner struct {
	api    storage.ObjectAPI
	bucket string
	prefix string
}

func NewQuarantiner(api storage.ObjectAPI, bucket, prefix string) *Quarantiner {
	return &Quarantiner{api: api, bucket: bucket, prefix: strings.TrimSuffix(prefix, "/")}
}

// Target 은 quarantine 후의 key.
func (q *Quarantiner) Target(key string) string {
	return q.prefix + "/" + path.Base(key)
}

func (q *Quarantiner) Apply(ctx context.Context, h model.RecordHandle, a model.RemediationAction) error {
	if a.Kind != model.ActionQuarantine || h.Key == "" {
		return nil
	}

	dst := q.Target(h.Key)
	if dst == h.Key {
		// 이미 quarantine 위치에 있는 object. 복사 후 삭제하면 유일한 사본이 사라진다.
		log.Warn().Str("key", h.Key).Msg("record already in quarantine, skip move")
		return nil
	}
	_, err := q.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(q.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(q.bucket, h.Key)),
	})
	if err != nil {
		return fmt.Errorf("quarantine copy %s → %s: %w", h.Key, dst, err)
	}

	if _, err := q.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(q.bucket),
		Key:    aws.String(h.Key),
	}); err != nil {
		// 복사는 끝났으므로 원본이 남아도 다음 cycle 의 handle dedup 이 재처리를 막는다.
		return fmt.Errorf("quarantine delete %s: %w", h.Key, err)
	}

	log.Info().Str("from", h.Key).Str("to", dst).Msg("record quarantined")
	return nil
}

// copySource 는 "bucket/key" 를 segment 단위로 URL 인코딩한다.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}
