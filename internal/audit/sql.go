// internal/audit/sql.go
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"landing-sentinel/internal/model"

	json "github.com/goccy/go-json"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// tsLayout 은 고정 폭 UTC 시각. 문자열 정렬 = 시간 정렬.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLSink
//
// audit entry 를 audit_entries 테이블에 1건씩 INSERT 한다.
//   - sqlite   (modernc.org/sqlite, cgo 없음): 로컬/단일 인스턴스
//   - postgres (lib/pq): 공유 audit DB
//
// Recent 는 ops endpoint(/audit/recent) 에서 최근 기록을 보여줄 때 쓴다.
type SQLSink struct {
	db     *sql.DB
	driver string
}

// OpenSQLSink 는 driver/dsn 으로 DB 를 열고 테이블을 준비한다.
func OpenSQLSink(ctx context.Context, driver, dsn string) (*SQLSink, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db (%s): %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite 는 writer 1개가 안전하다.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit db (%s): %w", driver, err)
	}
	s, err := NewSQLSink(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink 는 이미 열린 db 를 감싼다 (테스트에서는 sqlmock).
func NewSQLSink(ctx context.Context, db *sql.DB, driver string) (*SQLSink, error) {
	s := &SQLSink{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate audit_entries: %w", err)
	}
	return s, nil
}

func (s *SQLSink) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id               TEXT PRIMARY KEY,
		ts               TEXT NOT NULL,
		source_record_id TEXT,
		source_key       TEXT,
		violation_kind   TEXT NOT NULL,
		action_kind      TEXT NOT NULL,
		action_payload   TEXT,
		extra_fields     TEXT,
		confidence       DOUBLE PRECISION
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLSink) Emit(ctx context.Context, e model.AuditEntry) error {
	query := s.rebind(`INSERT INTO audit_entries (
		id, ts, source_record_id, source_key, violation_kind, action_kind, action_payload, extra_fields, confidence
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	extra := "[]"
	if len(e.ExtraFields) > 0 {
		b, err := json.Marshal(e.ExtraFields)
		if err != nil {
			return fmt.Errorf("encode extra_fields: %w", err)
		}
		extra = string(b)
	}

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Timestamp.UTC().Format(tsLayout),
		e.SourceRecordID,
		e.SourceKey,
		string(e.ViolationKind),
		string(e.ActionKind),
		e.ActionPayload,
		extra,
		e.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry %s: %w", e.ID, err)
	}
	return nil
}

// Recent 는 최근 limit 건을 ts 내림차순으로 반환한다.
func (s *SQLSink) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := s.rebind(`
		SELECT id, ts, source_record_id, source_key, violation_kind, action_kind, action_payload, extra_fields, confidence
		FROM audit_entries
		ORDER BY ts DESC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e         model.AuditEntry
			ts        string
			violation string
			action    string
			extra     sql.NullString
			recordID  sql.NullString
			key       sql.NullString
			payload   sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &recordID, &key, &violation, &action, &payload, &extra, &e.Confidence); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse ts of %s: %w", e.ID, err)
		}
		e.SourceRecordID = recordID.String
		e.SourceKey = key.String
		e.ActionPayload = payload.String
		e.ViolationKind = model.ViolationKind(violation)
		e.ActionKind = model.ActionKind(action)
		if extra.Valid && extra.String != "" && extra.String != "[]" {
			if err := json.Unmarshal([]byte(extra.String), &e.ExtraFields); err != nil {
				return nil, fmt.Errorf("decode extra_fields of %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}

// rebind 는 postgres 일 때 ? 를 $1, $2 … 로 바꾼다.
func (s *SQLSink) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
