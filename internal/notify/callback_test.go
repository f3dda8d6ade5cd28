package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCallback_Notify(t *testing.T) {
	var got Payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewCallback(srv.URL, WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t0k"})))
	require.NoError(t, c.Notify(context.Background(), "out", "20240101_classify_output.json"))

	assert.Equal(t, Payload{BucketName: "out", FileName: "20240101_classify_output.json", Success: true}, got)
	assert.Equal(t, "Bearer t0k", auth)
}

func TestCallback_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCallback(srv.URL, WithHTTPClient(NewRetryableHTTPClient(3, 5*time.Second, zerolog.Nop())))
	require.NoError(t, c.Notify(context.Background(), "b", "f"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallback_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewCallback(srv.URL).Notify(context.Background(), "b", "f")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad payload")
}

func TestCallback_EmptyURLIsNoop(t *testing.T) {
	assert.NoError(t, NewCallback("").Notify(context.Background(), "b", "f"))
}
