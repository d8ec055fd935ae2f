package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedTestServer(t *testing.T, dims int, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if status != http.StatusOK {
			http.Error(w, "embedding failed", status)
			return
		}

		vector := make([]float32, dims)
		for i := range vector {
			vector[i] = float32(i) / float32(dims)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{
			Text:       req.Text,
			Vector:     vector,
			Dimensions: dims,
		})
	}))
}

func newHTTPTestService(url string, dims int) *httpService {
	return newHTTPService(&Config{
		Provider:   "http",
		BaseURL:    url,
		Dimensions: dims,
		Timeout:    5 * time.Second,
	})
}

func TestHTTPServiceEmbed(t *testing.T) {
	srv := newEmbedTestServer(t, 768, http.StatusOK)
	defer srv.Close()

	svc := newHTTPTestService(srv.URL, 768)

	vector, err := svc.Embed(context.Background(), "환불 안내")
	require.NoError(t, err)
	assert.Len(t, vector, 768)
}

func TestHTTPServiceEmbedBatch(t *testing.T) {
	srv := newEmbedTestServer(t, 8, http.StatusOK)
	defer srv.Close()

	svc := newHTTPTestService(srv.URL, 8)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"환불", "배송지연"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for _, vector := range vectors {
		assert.Len(t, vector, 8)
	}
}

func TestHTTPServiceRejectsEmptyInput(t *testing.T) {
	svc := newHTTPTestService("http://localhost:5001", 768)

	_, err := svc.Embed(context.Background(), "")
	assert.True(t, IsInvalidInput(err))

	_, err = svc.Embed(context.Background(), " \t ")
	assert.True(t, IsInvalidInput(err))
}

func TestHTTPServiceDimensionMismatch(t *testing.T) {
	srv := newEmbedTestServer(t, 384, http.StatusOK)
	defer srv.Close()

	svc := newHTTPTestService(srv.URL, 768)

	_, err := svc.Embed(context.Background(), "환불")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestHTTPServiceServerErrorIsTransient(t *testing.T) {
	srv := newEmbedTestServer(t, 768, http.StatusServiceUnavailable)
	defer srv.Close()

	svc := newHTTPTestService(srv.URL, 768)

	_, err := svc.Embed(context.Background(), "환불")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPServiceClientErrorIsPermanent(t *testing.T) {
	srv := newEmbedTestServer(t, 768, http.StatusBadRequest)
	defer srv.Close()

	svc := newHTTPTestService(srv.URL, 768)

	_, err := svc.Embed(context.Background(), "환불")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestHTTPServiceUnreachableIsTransient(t *testing.T) {
	// Reserve a port and close it again so the dial is refused.
	srv := newEmbedTestServer(t, 768, http.StatusOK)
	url := srv.URL
	srv.Close()

	svc := newHTTPTestService(url, 768)

	_, err := svc.Embed(context.Background(), "환불")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
