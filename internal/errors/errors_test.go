package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategories_AllDefined(t *testing.T) {
	categories := []Category{
		CategoryValidation,
		CategoryAuthorization,
		CategoryBusy,
		CategoryTransient,
		CategoryCorrectness,
	}
	expected := []string{"validation", "authorization", "busy", "transient", "correctness"}

	require.Equal(t, len(expected), len(categories))
	for i, cat := range categories {
		assert.Equal(t, expected[i], string(cat))
	}
}

func TestErrorCodes_ValidationCodes(t *testing.T) {
	assert.Equal(t, "V400", CodeInvalidRedirect)
	assert.Equal(t, "V401", CodeInvalidRouterParams)
	assert.Equal(t, "V402", CodeMalformedEnvelope)
	assert.Equal(t, "V403", CodeOversizedURL)
}

func TestErrorCodes_AuthorizationCodes(t *testing.T) {
	assert.Equal(t, "A500", CodeUnknownRouter)
	assert.Equal(t, "A501", CodeBadCredentials)
	assert.Equal(t, "A502", CodeRouterNotFound)
	assert.Equal(t, "A503", CodeInsufficientRole)
	assert.Equal(t, "A504", CodeRadiusAccessReject)
}

func TestErrorCodes_BusyCodes(t *testing.T) {
	assert.Equal(t, "B600", CodeRouterBusy)
	assert.Equal(t, "B601", CodeBrokerUnavailable)
	assert.Equal(t, "B602", CodeRateLimited)
}

func TestErrorCodes_TransientCodes(t *testing.T) {
	assert.Equal(t, "T700", CodeBrokerDisconnect)
	assert.Equal(t, "T701", CodeDatabaseDeadlock)
	assert.Equal(t, "T702", CodeRadiusTimeout)
	assert.Equal(t, "T703", CodeRPCTimeout)
}

func TestErrorCodes_CorrectnessCodes(t *testing.T) {
	assert.Equal(t, "C800", CodeNegativeDelta)
	assert.Equal(t, "C801", CodeOrphanedAccounting)
}

func TestSpotfiError_Error(t *testing.T) {
	err := New(CodeInvalidRedirect, CategoryValidation, "redirect url not allow-listed")
	assert.Equal(t, "[V400] redirect url not allow-listed", err.Error())
}

func TestSpotfiError_ErrorWithCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(CodeBrokerDisconnect, CategoryTransient, "broker unreachable").WithCause(cause)

	assert.Contains(t, err.Error(), "broker unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSpotfiError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(CodeRPCTimeout, CategoryTransient, "rpc timed out").WithCause(cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestSpotfiError_Is(t *testing.T) {
	err1 := New(CodeBadCredentials, CategoryAuthorization, "message 1")
	err2 := New(CodeBadCredentials, CategoryAuthorization, "message 2")
	err3 := New(CodeRouterBusy, CategoryBusy, "message 3")

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
}

func TestSpotfiError_WithContext(t *testing.T) {
	err := New(CodeInvalidRouterParams, CategoryValidation, "bad params")
	err = err.WithContext("field", "mac_address").WithContext("value", "zz:zz")

	assert.Equal(t, "mac_address", err.Context["field"])
	assert.Equal(t, "zz:zz", err.Context["value"])
}

func TestSpotfiError_WithContextPreservesExisting(t *testing.T) {
	err := New(CodeInvalidRouterParams, CategoryValidation, "bad params").
		WithContext("field1", "value1")

	err2 := err.WithContext("field2", "value2")

	assert.Equal(t, "value1", err.Context["field1"])
	assert.Nil(t, err.Context["field2"])
	assert.Equal(t, "value1", err2.Context["field1"])
	assert.Equal(t, "value2", err2.Context["field2"])
}

func TestAs(t *testing.T) {
	spotfiErr := New(CodeRouterBusy, CategoryBusy, "rpc slots exhausted")
	regularErr := errors.New("regular error")

	got, ok := As(spotfiErr)
	require.True(t, ok)
	assert.Equal(t, CodeRouterBusy, got.Code)

	_, ok = As(regularErr)
	assert.False(t, ok)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeBrokerDisconnect, CategoryTransient, "disconnected")))
	assert.False(t, Retryable(New(CodeBadCredentials, CategoryAuthorization, "bad creds")))
	assert.False(t, Retryable(errors.New("plain error")))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(CodeInvalidRedirect, CategoryValidation, "x"), 400},
		{New(CodeBadCredentials, CategoryAuthorization, "x"), 401},
		{New(CodeRouterNotFound, CategoryAuthorization, "x"), 403},
		{New(CodeRouterBusy, CategoryBusy, "x"), 503},
		{New(CodeRateLimited, CategoryBusy, "x"), 429},
		{New(CodeBrokerDisconnect, CategoryTransient, "x"), 502},
		{New(CodeNegativeDelta, CategoryCorrectness, "x"), 500},
		{errors.New("plain"), 500},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err))
	}
}

func TestErrorChain_Unwrapping(t *testing.T) {
	rootCause := errors.New("root cause")
	spotfiErr := New(CodeRadiusTimeout, CategoryTransient, "radius call timed out").WithCause(rootCause)

	assert.True(t, errors.Is(spotfiErr, rootCause))

	var got *SpotfiError
	require.True(t, errors.As(spotfiErr, &got))
	assert.Equal(t, CodeRadiusTimeout, got.Code)
}
