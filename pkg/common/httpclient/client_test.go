package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return &StatusError{URL: "http://example.test", Code: 404}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesServerErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &StatusError{URL: "http://example.test", Code: 503}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, IsRetriable(context.DeadlineExceeded))
	assert.False(t, IsRetriable(errors.New("boom")))
}

func TestNewAuthenticatedWithoutCredentials(t *testing.T) {
	client := NewAuthenticated(context.Background(), time.Second, OAuth2Credentials{})
	assert.Equal(t, time.Second, client.Timeout)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	body, err := Fetch(context.Background(), srv.Client(), srv.URL+"/ok", 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))

	_, err = Fetch(context.Background(), srv.Client(), srv.URL+"/missing", 4)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.False(t, IsRetriable(err))
}
