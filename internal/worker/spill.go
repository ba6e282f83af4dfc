// internal/worker/spill.go
package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"landing-sentinel/internal/config"
	"landing-sentinel/internal/metrics"
	"landing-sentinel/internal/model"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

const metaSuffix = ".meta.json"

// Spill 은 S3 업로드에 실패한 audit 배치를 로컬 디스크에 저장하고,
// 이후 재업로드를 담당한다.
//   - 용량(SpillMaxSizeBytes) 초과 시 가장 오래된 파일부터 삭제
//   - TTL(SpillMaxAge) 은 파일명 prefix 의 Unix timestamp 기준
//   - 첫 줄이 유효한 audit JSON 이면 AuditPrefix, 아니면 AuditDLQPrefix 로 재업로드
type Spill struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	uploader uploader

	// 현재 spill 디렉토리 data 파일 총 바이트 수
	sizeBytes int64
}

// NewSpill 은 spill 디렉토리를 만들고 기존 파일을 스캔해
// SpillSizeBytes / SpillFilesCurrent 를 복원한다.
// data 없이 .meta.json 만 남은 orphan 은 정리한다.
func NewSpill(cfg config.Config, m *metrics.Metrics, up uploader) (*Spill, error) {
	if err := os.MkdirAll(cfg.SpillDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spill dir %s: %w", cfg.SpillDir, err)
	}

	s := &Spill{cfg: cfg, metrics: m, uploader: up}

	entries, err := os.ReadDir(cfg.SpillDir)
	if err != nil {
		return nil, fmt.Errorf("scan spill dir %s: %w", cfg.SpillDir, err)
	}

	var total, count int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		if strings.HasSuffix(name, metaSuffix) {
			dataName := strings.TrimSuffix(name, metaSuffix)
			if _, err := os.Stat(filepath.Join(cfg.SpillDir, dataName)); os.IsNotExist(err) {
				_ = os.Remove(filepath.Join(cfg.SpillDir, name))
			}
			continue
		}

		if info, err := e.Info(); err == nil {
			total += info.Size()
			count++
		}
	}

	atomic.StoreInt64(&s.sizeBytes, total)
	atomic.AddInt64(&m.SpillSizeBytes, total)
	atomic.AddInt64(&m.SpillFilesCurrent, count)

	if count > 0 {
		log.Info().Int64("files", count).Int64("bytes", total).Msg("spill restored")
	}
	return s, nil
}

// Save 는 업로드 실패한 gzip+JSONL 배치를 저장한다.
// numEntries 는 .meta.json 에 기록되어 재업로드 지표에 쓰인다.
func (s *Spill) Save(data []byte, numEntries int) error {
	if len(data) == 0 || numEntries <= 0 {
		return nil
	}

	size := int64(len(data))
	if !s.ensureCapacity(size) {
		log.Error().Int64("bytes", size).Int("entries", numEntries).Msg("spill full → drop")
		atomic.AddInt64(&s.metrics.SpillEntriesDroppedTotal, int64(numEntries))
		return nil
	}

	dataPath := filepath.Join(s.cfg.SpillDir, NewFilename(s.cfg.InstanceID))
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		return err
	}
	meta := []byte(fmt.Sprintf(`{"num_entries":%d}`, numEntries))
	_ = os.WriteFile(dataPath+metaSuffix, meta, 0o600)

	atomic.AddInt64(&s.sizeBytes, size)
	atomic.AddInt64(&s.metrics.SpillSizeBytes, size)
	atomic.AddInt64(&s.metrics.SpillFilesCurrent, 1)
	atomic.AddInt64(&s.metrics.SpillEntriesEnqueuedTotal, int64(numEntries))
	return nil
}

// ensureCapacity 는 SpillMaxSizeBytes 를 넘지 않도록 오래된 파일부터 지운다.
// 더 지울 파일이 없는데도 공간이 부족하면 false.
func (s *Spill) ensureCapacity(incoming int64) bool {
	limit := s.cfg.SpillMaxSizeBytes
	if limit <= 0 {
		return true
	}

	for {
		if atomic.LoadInt64(&s.sizeBytes)+incoming <= limit {
			return true
		}

		oldest := s.pickOldest()
		if oldest == "" {
			return false
		}
		s.remove(oldest)
		atomic.AddInt64(&s.metrics.SpillFilesExpiredTotal, 1)
		log.Warn().Str("file", oldest).Msg("spill capacity → removed oldest")
	}
}

// remove 는 data/meta 파일을 지우고 gauge 를 맞춘다.
func (s *Spill) remove(name string) {
	dataPath := filepath.Join(s.cfg.SpillDir, name)
	if info, err := os.Stat(dataPath); err == nil {
		atomic.AddInt64(&s.sizeBytes, -info.Size())
		atomic.AddInt64(&s.metrics.SpillSizeBytes, -info.Size())
	}
	_ = os.Remove(dataPath)
	_ = os.Remove(dataPath + metaSuffix)
	atomic.AddInt64(&s.metrics.SpillFilesCurrent, -1)
}

// ProcessOneCtx 는 가장 오래된 파일 1개를 TTL 검사 후 재업로드한다.
// 처리한 파일이 있으면 true.
func (s *Spill) ProcessOneCtx(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	name := s.pickOldest()
	if name == "" {
		return false
	}

	dataPath := filepath.Join(s.cfg.SpillDir, name)
	info, err := os.Stat(dataPath)
	if err != nil {
		s.remove(name)
		return true
	}
	size := info.Size()

	// --- TTL: 파일명 prefix 의 Unix timestamp ---
	if s.cfg.SpillMaxAge > 0 {
		if sec, ok := extractUnixFromFilename(name); ok {
			age := time.Duration(Unix()-sec) * time.Second
			if age > s.cfg.SpillMaxAge {
				s.remove(name)
				atomic.AddInt64(&s.metrics.SpillFilesExpiredTotal, 1)
				log.Info().Str("file", name).Dur("age", age).Msg("spill TTL expired → deleted")
				return true
			}
		}
	}

	f, err := os.Open(dataPath)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("spill open failed")
		return false
	}
	defer func() { _ = f.Close() }()

	valid := validateFile(f, size)

	prefix := s.cfg.AuditPrefix
	if !valid {
		prefix = s.cfg.AuditDLQPrefix
	}
	key := BuildS3Key(prefix, name)

	if err := s.uploader.UploadFileWithRetryCtx(ctx, key, f, size); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("spill reupload failed")
		return false
	}

	numEntries := int64(1)
	if meta, err := os.ReadFile(dataPath + metaSuffix); err == nil {
		var v struct {
			NumEntries int64 `json:"num_entries"`
		}
		if json.Unmarshal(meta, &v) == nil && v.NumEntries > 0 {
			numEntries = v.NumEntries
		}
	}

	_ = f.Close()
	s.remove(name)
	atomic.AddInt64(&s.metrics.SpillEntriesReuploadedTotal, numEntries)

	log.Info().Str("key", key).Int64("entries", numEntries).Bool("valid", valid).Msg("spill reuploaded")
	return true
}

// validateFile 은 gzip 을 풀어 첫 JSONL 라인이 audit entry 로 읽히는지 검사한다.
func validateFile(f *os.File, size int64) bool {
	if size <= 0 {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer func() { _ = gz.Close() }()

	line, err := bufio.NewReader(gz).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return false
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}

	var e model.AuditEntry
	if err := json.Unmarshal(line, &e); err != nil {
		return false
	}
	return e.ID != "" && e.ActionKind != ""
}

// pickOldest 는 data 파일 중 이름(=timestamp) 순으로 가장 오래된 것을 반환한다.
func (s *Spill) pickOldest() string {
	entries, err := os.ReadDir(s.cfg.SpillDir)
	if err != nil {
		return ""
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, metaSuffix) || name == "" || name[0] == '.' {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return ""
	}

	sort.Strings(files)
	return files[0]
}
