package cerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("disk read failed")

	wrapped := Wrap(BackendUnavailable, "embedding service unreachable", originalErr)

	require.NotNil(t, wrapped)
	assert.Equal(t, originalErr, errors.Unwrap(wrapped))
	assert.True(t, errors.Is(wrapped, originalErr))
}

func TestError_Error_IncludesKindAndMessage(t *testing.T) {
	err := New(NotFound, "chunk c_42 does not exist")
	assert.Equal(t, "[NOT_FOUND] chunk c_42 does not exist", err.Error())
}

func TestError_Error_IncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(BackendUnavailable, "embedding request failed", cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_Is_MatchesByKind(t *testing.T) {
	err1 := New(NotFound, "file A missing")
	err2 := New(NotFound, "file B missing")
	assert.True(t, errors.Is(err1, err2))
}

func TestError_Is_DoesNotMatchDifferentKinds(t *testing.T) {
	err1 := New(NotFound, "file missing")
	err2 := New(InvalidArgument, "bad query")
	assert.False(t, errors.Is(err1, err2))
}

func TestError_WithDetail_AddsContext(t *testing.T) {
	err := New(NotFound, "file missing").
		WithDetail("path", "/src/foo.go").
		WithDetail("project", "demo")

	assert.Equal(t, "/src/foo.go", err.Details["path"])
	assert.Equal(t, "demo", err.Details["project"])
}

func TestWrap_ReturnsNilForNilCause(t *testing.T) {
	assert.Nil(t, Wrap(Internal, "should not appear", nil))
}

func TestRetryable_OnlyBackendUnavailable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{BackendUnavailable, true},
		{NotFound, false},
		{IndexCorrupt, false},
		{Internal, false},
	}
	for _, tt := range tests {
		err := New(tt.kind, "x")
		assert.Equal(t, tt.want, Retryable(err), "kind=%s", tt.kind)
	}
	assert.False(t, Retryable(errors.New("plain")))
}

func TestFatal_OnlyIndexCorrupt(t *testing.T) {
	assert.True(t, Fatal(New(IndexCorrupt, "checksum mismatch")))
	assert.False(t, Fatal(New(NotFound, "missing")))
	assert.False(t, Fatal(errors.New("plain")))
}

func TestGetKind_ReturnsEmptyForNonCerror(t *testing.T) {
	assert.Equal(t, Kind(""), GetKind(errors.New("plain")))
	assert.Equal(t, NotIndexed, GetKind(New(NotIndexed, "no index for project")))
}

func TestIs_ChecksKind(t *testing.T) {
	err := New(AccessDenied, "permission denied reading /etc/shadow")
	assert.True(t, Is(err, AccessDenied))
	assert.False(t, Is(err, NotFound))
}
