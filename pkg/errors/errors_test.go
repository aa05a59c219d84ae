package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := Wrap(stdErrors.New("boom"), "failed")
	require.Equal(t, "failed: boom", err.Error())
	require.Equal(t, http.StatusInternalServerError, err.StatusCode)
}

func TestCopiesLeaveBaseUntouched(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)

	with := base.WithInternal(stdErrors.New("oops")).WithDetails([]string{"name"})
	require.NotSame(t, base, with)
	require.Nil(t, base.Internal)
	require.Nil(t, base.Details)
	require.Error(t, with.Internal)
	require.Equal(t, []string{"name"}, with.Details)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))
	require.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("lookup: %w", NewNotFound("quote q1 not found"))
	require.Equal(t, "quote q1 not found", FromError(wrapped).Message)

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.Error(t, out.Internal)
}

func TestDerivedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      *AppError
		sentinel *AppError
		status   int
	}{
		{NewBadRequest("invalid payload"), ErrBadRequest, http.StatusBadRequest},
		{NewValidation("name is required"), ErrValidation, http.StatusBadRequest},
		{NewConflict("quote number taken"), ErrConflict, http.StatusConflict},
		{NewNotFound("missing"), ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		require.True(t, stdErrors.Is(tc.err, tc.sentinel), tc.err.Code)
		require.Equal(t, tc.status, tc.err.StatusCode)
	}
	require.False(t, stdErrors.Is(NewConflict("x"), ErrNotFound))
}

func TestUnwrapExposesInternal(t *testing.T) {
	sentinel := stdErrors.New("duplicate")
	require.ErrorIs(t, ErrConflict.WithInternal(sentinel), sentinel)
}
