package audit

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landing-sentinel/internal/model"
)

func sampleEntry() model.AuditEntry {
	return model.AuditEntry{
		ID:             "11111111-2222-3333-4444-555555555555",
		Timestamp:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SourceRecordID: "evt-1",
		SourceKey:      "input/event_1.json",
		ViolationKind:  model.ViolationSchemaMismatch,
		ActionKind:     model.ActionEvolveSchema,
		ActionPayload:  "ALTER TABLE raw_bronze ADD COLUMNS (`marketing_campaign` STRING)",
		ExtraFields:    []string{"marketing_campaign"},
		Confidence:     0.98,
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	require.NoError(t, sink.Emit(context.Background(), sampleEntry()))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "evolve_schema", line["action_kind"])
	assert.Equal(t, "schema_mismatch", line["violation_kind"])
	assert.Equal(t, "evt-1", line["source_record_id"])
	assert.Equal(t, []any{"marketing_campaign"}, line["extra_fields"])
	assert.Contains(t, line["message"], "schema evolution")
}

type recordingSink struct {
	got []model.AuditEntry
	err error
}

func (r *recordingSink) Emit(_ context.Context, e model.AuditEntry) error {
	r.got = append(r.got, e)
	return r.err
}

func TestMultiDeliversToAllSinks(t *testing.T) {
	failing := &recordingSink{err: errors.New("db down")}
	ok := &recordingSink{}

	err := Multi{failing, nil, ok}.Emit(context.Background(), sampleEntry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

func TestSQLSinkWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink, err := NewSQLSink(context.Background(), db, "sqlite")
	require.NoError(t, err)

	e := sampleEntry()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WithArgs(e.ID, "2026-01-01T00:00:00.000000000Z", "evt-1", "input/event_1.json",
			"schema_mismatch", "evolve_schema", e.ActionPayload, `["marketing_campaign"]`, 0.98).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sink.Emit(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkPostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := NewSQLSink(context.Background(), db, "postgres")
	require.NoError(t, err)

	mock.ExpectExec(`VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\)`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, sink.Emit(context.Background(), sampleEntry()))

	mock.ExpectQuery(`LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "ts", "source_record_id", "source_key", "violation_kind",
			"action_kind", "action_payload", "extra_fields", "confidence",
		}).AddRow("q-1", "2026-01-01T00:00:05Z", "evt-2", "input/e2.json",
			"type_violation", "quarantine", `amount="x" expected numeric`, "[]", 0.99))

	got, err := sink.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ActionQuarantine, got[0].ActionKind)
	assert.Nil(t, got[0].ExtraFields)
	assert.InDelta(t, 0.99, got[0].Confidence, 1e-9)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := NewSQLSink(context.Background(), db, "sqlite")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_entries").WillReturnError(errors.New("disk full"))
	err = sink.Emit(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLSink(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	first := sampleEntry()
	second := sampleEntry()
	second.ID = "second"
	second.Timestamp = first.Timestamp.Add(time.Minute)
	second.ViolationKind = model.ViolationType
	second.ActionKind = model.ActionQuarantine
	second.ExtraFields = nil

	require.NoError(t, sink.Emit(ctx, first))
	require.NoError(t, sink.Emit(ctx, second))

	got, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, []string{"marketing_campaign"}, got[1].ExtraFields)
	assert.True(t, got[1].Timestamp.Equal(first.Timestamp))
}
