package copilot

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := NewModelGateway(srv.URL, "test-model", "test-embed", 4, 2*time.Second, 1, 0, zap.NewNop())

	_, err := gw.Generate(t.Context(), "hello", DefaultGenerateOptions())
	require.Error(t, err)
	assert.Equal(t, "open", gw.BreakerState())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := NewModelGateway(srv.URL, "test-model", "test-embed", 4, 2*time.Second, 1, 3600, zap.NewNop())

	_, err := gw.Generate(t.Context(), "hello", DefaultGenerateOptions())
	require.Error(t, err)
	assert.Equal(t, "open", gw.BreakerState())

	_, err = gw.Generate(t.Context(), "hello again", DefaultGenerateOptions())
	require.Error(t, err)
	cerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindModelOffline, cerr.Kind)
}

func TestCircuitBreakerHalfOpenClosesOnSuccess(t *testing.T) {
	var fail int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"ok","done":true,"eval_count":1}`))
	}))
	defer srv.Close()

	gw := NewModelGateway(srv.URL, "test-model", "test-embed", 4, 2*time.Second, 1, 0, zap.NewNop())

	_, err := gw.Generate(t.Context(), "hello", DefaultGenerateOptions())
	require.Error(t, err)
	assert.Equal(t, "open", gw.BreakerState())

	atomic.StoreInt32(&fail, 0)
	reply, err := gw.Generate(t.Context(), "hello", DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Response)
	assert.Equal(t, "closed", gw.BreakerState())
}

func TestGenerateDoesNotRetryOn4xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	gw := NewModelGateway(srv.URL, "test-model", "test-embed", 4, 2*time.Second, 3, 60, zap.NewNop())

	_, err := gw.Generate(t.Context(), "hello", DefaultGenerateOptions())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Equal(t, "closed", gw.BreakerState())
}
