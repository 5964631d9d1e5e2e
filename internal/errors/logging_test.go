package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go.uber.org/zap"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestLogLevel_PerCategory(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, LogLevel(CategoryAuthorization))
	assert.Equal(t, zapcore.WarnLevel, LogLevel(CategoryValidation))
	assert.Equal(t, zapcore.WarnLevel, LogLevel(CategoryBusy))
	assert.Equal(t, zapcore.WarnLevel, LogLevel(CategoryTransient))
	assert.Equal(t, zapcore.WarnLevel, LogLevel(CategoryCorrectness))
}

func TestErrorFields_UnknownError(t *testing.T) {
	fields := ErrorFields(errors.New("plain"))
	m := fieldMap(fields)
	assert.Equal(t, "unknown", m["error_type"])
}

func TestErrorFields_SpotfiErrorRedactsContext(t *testing.T) {
	err := New(CodeBadCredentials, CategoryAuthorization, "bad creds").
		WithContext("password", "hunter2").
		WithContext("username", "jdoe")

	fields := ErrorFields(err)
	m := fieldMap(fields)
	assert.Equal(t, CodeBadCredentials, m["error_code"])

	ctx, ok := m["context"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, redactedValue, ctx["password"])
	assert.Equal(t, "jdoe", ctx["username"])
}

func TestLogError_UsesCategoryLevel(t *testing.T) {
	logger, logs := newObservedLogger()
	LogError(logger, New(CodeBadCredentials, CategoryAuthorization, "login rejected"))

	require := logs.All()
	assert.Len(t, require, 1)
	assert.Equal(t, zapcore.InfoLevel, require[0].Level)
}

func TestLogErrorCtx_AddsRequestID(t *testing.T) {
	logger, logs := newObservedLogger()
	ctx := WithRequestID(context.Background(), "req-42")

	LogErrorCtx(ctx, logger, New(CodeRouterBusy, CategoryBusy, "busy"))

	entry := logs.All()[0]
	m := fieldMap(entry.Context)
	assert.Equal(t, "req-42", m["request_id"])
}

func TestLogErrorWithDuration_IncludesDuration(t *testing.T) {
	logger, logs := newObservedLogger()
	LogErrorWithDuration(logger, New(CodeRPCTimeout, CategoryTransient, "rpc timeout"), 250*time.Millisecond)

	m := fieldMap(logs.All()[0].Context)
	assert.Equal(t, 250*time.Millisecond, m["duration"])
}

func TestErrorLogger_With(t *testing.T) {
	logger, logs := newObservedLogger()
	el := NewErrorLogger(logger).With(zap.String("component", "qse"))
	el.Log(New(CodeNegativeDelta, CategoryCorrectness, "counter went negative"))

	m := fieldMap(logs.All()[0].Context)
	assert.Equal(t, "qse", m["component"])
}

func fieldMap(fields []zap.Field) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}
