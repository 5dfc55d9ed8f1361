package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kx0101/perfgate/internal/gate"
)

func TestNewHTTPPublisher(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		apiKey  string
		wantErr string
	}{
		{"valid", "https://results.example.com/", "key", ""},
		{"bad scheme", "ftp://results.example.com", "key", "invalid scheme"},
		{"private ip", "http://10.0.0.5:8090", "key", "private IP"},
		{"missing key", "https://results.example.com", "", "api key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewHTTPPublisher(tt.baseURL, tt.apiKey, "ci", 0)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "https://results.example.com", p.baseURL)
			assert.Equal(t, 30*time.Second, p.httpClient.Timeout)
		})
	}
}

func TestHTTPPublisherPublish(t *testing.T) {
	var got UploadRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/runs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(UploadResponse{ID: "abc123", Environment: got.Environment, CreatedAt: time.Now()})
	}))
	defer server.Close()

	p, err := NewHTTPPublisher(server.URL, "secret", "staging", time.Second)
	require.NoError(t, err)

	b := testBundle("")
	b.Outcome = gate.Decide(b.Result.Score, 100)
	b.Labels = map[string]string{"branch": "feature/login"}

	link, err := p.Publish(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/runs/abc123", link)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, 50.0, got.Score)
	assert.Equal(t, 100.0, got.Threshold)
	assert.False(t, got.Allowed)
	assert.Equal(t, "feature/login", got.Labels["branch"])
}

func TestHTTPPublisherRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	p, err := NewHTTPPublisher(server.URL, "wrong", "ci", time.Second)
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), testBundle(""))
	assert.ErrorContains(t, err, "upload failed: 401")
	assert.ErrorContains(t, err, "invalid api key")
}

func TestHTTPPublisherBadResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	p, err := NewHTTPPublisher(server.URL, "key", "ci", time.Second)
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), testBundle(""))
	assert.ErrorContains(t, err, "parsing response")
}
