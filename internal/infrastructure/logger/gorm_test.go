package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level zapcore.Level, gormLevel gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(level)
	return NewGormLogger(zap.New(core), gormLevel, opts...), recorded
}

func query(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func fieldMap(entry observer.LoggedEntry) map[string]string {
	out := make(map[string]string, len(entry.Context))
	for _, f := range entry.Context {
		out[f.Key] = f.String
	}
	return out
}

var _ gormlogger.Interface = (*GormLogger)(nil)

func TestNewGormLogger_Options(t *testing.T) {
	gormLog, _ := newObservedGormLogger(zapcore.InfoLevel, gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
		WithQuietTables("outbox_events"),
		WithQuietTables("sync_attempts"),
	)

	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
	assert.Equal(t, 500*time.Millisecond, gormLog.slowThreshold)
	assert.False(t, gormLog.ignoreRecordNotFoundError)
	assert.Equal(t, []string{"outbox_events", "sync_attempts"}, gormLog.quietTables)
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gormLog, _ := newObservedGormLogger(zapcore.InfoLevel, gormlogger.Info)

	switched, ok := gormLog.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
	assert.Equal(t, gormlogger.Warn, switched.logLevel)
}

func TestGormLogger_Messages(t *testing.T) {
	gormLog, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Warn)
	ctx := WithSyncEvent(context.Background(), "evt-1", "ent-1")

	gormLog.Info(ctx, "migrated %d tables", 3)
	gormLog.Warn(ctx, "pool nearly exhausted: %d", 9)
	gormLog.Error(ctx, "reconnect failed")

	logs := recorded.All()
	require.Len(t, logs, 2, "info is below the warn level")
	assert.Equal(t, "pool nearly exhausted: 9", logs[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	assert.Equal(t, "evt-1", fieldMap(logs[0])["event_id"])
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []GormLoggerOption
		begin   time.Time
		sql     string
		err     error
		message string
	}{
		{
			name:    "error",
			level:   gormlogger.Error,
			sql:     `SELECT * FROM "catalog_entities" WHERE id = 'x'`,
			err:     errors.New("connection reset"),
			message: "SQL Error",
		},
		{
			name:  "record not found ignored",
			level: gormlogger.Error,
			sql:   `SELECT * FROM "catalog_entities" WHERE id = 'x'`,
			err:   gormlogger.ErrRecordNotFound,
		},
		{
			name:    "record not found logged when asked",
			level:   gormlogger.Error,
			opts:    []GormLoggerOption{WithIgnoreRecordNotFoundError(false)},
			sql:     `SELECT * FROM "catalog_entities" WHERE id = 'x'`,
			err:     gormlogger.ErrRecordNotFound,
			message: "SQL Error",
		},
		{
			name:    "slow",
			level:   gormlogger.Warn,
			opts:    []GormLoggerOption{WithSlowThreshold(time.Nanosecond)},
			begin:   time.Now().Add(-time.Second),
			sql:     `SELECT * FROM "entity_relations"`,
			message: "SLOW SQL >= 1ns",
		},
		{
			name:    "routine",
			level:   gormlogger.Info,
			sql:     `SELECT * FROM "catalog_entities"`,
			message: "SQL Query",
		},
		{
			name:  "silent",
			level: gormlogger.Silent,
			sql:   `SELECT * FROM "catalog_entities"`,
			err:   errors.New("ignored"),
		},
		{
			name:  "quiet table",
			level: gormlogger.Info,
			opts:  []GormLoggerOption{WithQuietTables("outbox_events")},
			sql:   `SELECT * FROM "outbox_events" WHERE status = 'PENDING' LIMIT 100`,
		},
		{
			name:    "quiet table still reports errors",
			level:   gormlogger.Info,
			opts:    []GormLoggerOption{WithQuietTables("outbox_events")},
			sql:     `UPDATE "outbox_events" SET status = 'SENT'`,
			err:     errors.New("deadlock detected"),
			message: "SQL Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormLog, recorded := newObservedGormLogger(zapcore.DebugLevel, tt.level, tt.opts...)
			begin := tt.begin
			if begin.IsZero() {
				begin = time.Now()
			}

			gormLog.Trace(context.Background(), begin, query(tt.sql, 1), tt.err)

			if tt.message == "" {
				assert.Empty(t, recorded.All())
				return
			}
			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.message, logs[0].Message)
			assert.Equal(t, tt.sql, fieldMap(logs[0])["sql"])
		})
	}
}

func TestGormLogger_Trace_CarriesSyncContext(t *testing.T) {
	gormLog, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Info)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-9")
	ctx = WithSyncEvent(ctx, "evt-42", "ent-7")
	ctx, _ = WithPlatform(ctx, zap.NewNop(), "shop")

	gormLog.Trace(ctx, time.Now(), query(`UPDATE "catalog_entities" SET external_ids = '{}'`, 1), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := fieldMap(logs[0])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "evt-42", fields["event_id"])
	assert.Equal(t, "ent-7", fields["entity_id"])
	assert.Equal(t, "shop", fields["platform"])
}

func TestGormLogger_Trace_NoContextFieldsWhenAbsent(t *testing.T) {
	gormLog, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Info)

	gormLog.Trace(context.Background(), time.Now(), query(`SELECT 1`, 1), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := fieldMap(logs[0])
	assert.NotContains(t, fields, "event_id")
	assert.NotContains(t, fields, "entity_id")
	assert.NotContains(t, fields, "request_id")
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"WARN", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}
