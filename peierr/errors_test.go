package peierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatusAndCode(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", Validation("bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid ttl", InvalidTTL("bad"), http.StatusBadRequest, "INVALID_TTL"},
		{"unauthenticated", Unauthenticated(), http.StatusUnauthorized, "NOT_AUTHENTICATED"},
		{"expired token", ExpiredToken(), http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"authorization", Authorization("no"), http.StatusForbidden, "FORBIDDEN"},
		{"revoked token", RevokedToken(), http.StatusForbidden, "TOKEN_REVOKED"},
		{"not found", NotFound("student"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", Conflict("busy"), http.StatusConflict, "VERSION_CONFLICT"},
		{"persistence", Persistence("insert", errors.New("db down")), http.StatusInternalServerError, "PERSISTENCE_ERROR"},
		{"foreign error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.status, HTTPStatus(tc.err))
			require.Equal(t, tc.code, CodeOf(tc.err))
		})
	}
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("version"))
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, http.StatusNotFound, HTTPStatus(err))
}
