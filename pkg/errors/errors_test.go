package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	assert := require.New(t)

	wrapped := fmt.Errorf("building: %w", &BuildError{Doc: 2, DocID: "a", Reason: "duplicate document id"})
	assert.ErrorIs(wrapped, ErrBuild)
	var buildErr *BuildError
	assert.True(errors.As(wrapped, &buildErr))
	assert.Equal("a", buildErr.DocID)

	cause := errors.New("unexpected EOF")
	deserErr := Malformed("body truncated", cause)
	assert.ErrorIs(deserErr, ErrDeserialize)
	assert.ErrorIs(deserErr, cause)
	assert.Equal(KindMalformed, deserErr.Kind)

	assert.ErrorIs(&QueryConfigError{Option: "boost", Reason: "unknown field"}, ErrQueryConfig)
	assert.ErrorIs(fmt.Errorf("search: %w", &NotReadyError{}), ErrNotReady)
	assert.NotErrorIs(&NotReadyError{}, ErrQueryConfig)
}

func TestHTTPStatusCode(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"query config", &QueryConfigError{Option: "order", Reason: "bad"}, http.StatusBadRequest},
		{"not ready", &NotReadyError{}, http.StatusServiceUnavailable},
		{"deserialize", &DeserializeError{Kind: KindUnsupportedVersion, Reason: "version 9"}, http.StatusUnprocessableEntity},
		{"blob missing", fmt.Errorf("get: %w", ErrBlobNotFound), http.StatusNotFound},
		{"app error", Newf(ErrInvalidInput, http.StatusTeapot, "blob key %q", "../x"), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.want, HTTPStatusCode(testCase.err))
		})
	}
}
