package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/covrun/internal/coverage"
)

func TestKeyAuth(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	auth, err := NewKeyAuth([]string{hash})
	require.NoError(t, err)

	assert.NoError(t, auth.Validate(key))
	// Second check is served from the verified cache.
	assert.NoError(t, auth.Validate(key))
	assert.ErrorIs(t, auth.Validate("wrong"), ErrInvalidAPIKey)
	assert.ErrorIs(t, auth.Validate(""), ErrInvalidAPIKey)

	_, err = NewKeyAuth([]string{"not-a-hash"})
	assert.Error(t, err)
}

func TestAuthenticatedRouter(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	require.NoError(t, err)
	auth, err := NewKeyAuth([]string{hash})
	require.NoError(t, err)

	router, _ := NewRouter(NewHandler(coverage.Dependencies{}, nil), Config{Auth: auth}, nil)

	request := func(path, bearer string) int {
		req := httptest.NewRequest("GET", path, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, request("/health", ""))
	assert.Equal(t, http.StatusUnauthorized, request("/v1/failures", ""))
	assert.Equal(t, http.StatusUnauthorized, request("/v1/failures", "nope"))
	assert.Equal(t, http.StatusOK, request("/v1/failures", key))
}
