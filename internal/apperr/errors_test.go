package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrConflict, http.StatusConflict},
		{ErrInvalidArgument, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		require.Equal(t, c.status, Status(c.err))
	}
}

func TestStatusSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("chat 7: %w", ErrNotFound)
	require.Equal(t, http.StatusNotFound, Status(err))
	require.ErrorIs(t, err, ErrNotFound)
}
