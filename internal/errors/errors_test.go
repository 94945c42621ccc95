package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "refresh %s", "x"))

	err := apperrors.Wrapf(apperrors.ErrSessionExpired, "request %s", "/package/show")
	require.EqualError(t, err, "request /package/show: session expired")
	require.True(t, apperrors.Is(err, apperrors.ErrSessionExpired))
}

type codeErr struct{ code int }

func (e *codeErr) Error() string { return fmt.Sprintf("code %d", e.code) }

func TestAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", &codeErr{code: 401})
	var target *codeErr
	require.True(t, apperrors.As(err, &target))
	require.Equal(t, 401, target.code)
}
