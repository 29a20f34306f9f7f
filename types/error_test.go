package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithSource("yelp")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "root")
}

func TestAsError_ThroughFmtWrap(t *testing.T) {
	t.Parallel()

	inner := NewRateLimitError("firecrawl", "slow down")
	wrapped := fmt.Errorf("scrape: %w", inner)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, IsErrorCode(wrapped, ErrRateLimited))
	assert.True(t, IsRetryable(wrapped))
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, WrapError(nil, ErrInternalError, "x"))

	plain := errors.New("boom")
	w := WrapError(plain, ErrInternalError, "wrapped")
	assert.Equal(t, ErrInternalError, w.Code)
	assert.ErrorIs(t, w, plain)

	typed := NewInvalidRequestError("bad")
	assert.Same(t, typed, WrapError(typed, ErrInternalError, "ignored"))
}

func TestFromHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusForbidden, ErrForbidden, false},
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusBadRequest, ErrInvalidRequest, false},
		{http.StatusServiceUnavailable, ErrServiceUnavailable, true},
		{http.StatusBadGateway, ErrUpstreamError, true},
		{http.StatusTeapot, ErrUpstreamError, false},
	}
	for _, tc := range cases {
		err := FromHTTPStatus("src", tc.status, "msg")
		assert.Equal(t, tc.code, err.Code, "status %d", tc.status)
		assert.Equal(t, tc.retryable, err.Retryable, "status %d", tc.status)
		assert.Equal(t, "src", err.Source)
	}
}

func TestGetErrorCode_NonTyped(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
