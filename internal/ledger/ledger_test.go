package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultrapreps/hypehub/internal/platform/retry"
)

func TestMemory_AwardAccumulates(t *testing.T) {
	m := NewMemory()

	total, err := m.Award(context.Background(), "u1", "u2", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, total)

	total, err = m.Award(context.Background(), "u3", "u2", 5)
	require.NoError(t, err)
	assert.Equal(t, 30, total)

	assert.Equal(t, 30, m.Total("u2"))
	assert.Equal(t, 0, m.Total("unknown"))
}

func TestHTTPClient_AwardSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/hype/awards", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var award awardRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&award))
		assert.Equal(t, awardRequest{FromUserID: "u1", TargetUserID: "u2", Amount: 25}, award)

		json.NewEncoder(w).Encode(awardResponse{TotalHype: 125})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	total, err := client.Award(context.Background(), "u1", "u2", 25)
	require.NoError(t, err)
	assert.Equal(t, 125, total)
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(awardResponse{TotalHype: 10})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	total, err := client.Award(context.Background(), "u1", "u2", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.Award(context.Background(), "u1", "u2", 10)
	require.Error(t, err)

	var permanent *retry.PermanentError
	assert.ErrorAs(t, err, &permanent, "4xx responses must not be retried")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	for range breakerThreshold {
		_, err := client.Award(context.Background(), "u1", "u2", 10)
		require.Error(t, err)
	}

	before := calls.Load()
	_, err := client.Award(context.Background(), "u1", "u2", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, calls.Load(), "open breaker must short-circuit without a request")
}

func TestPermanentStatus(t *testing.T) {
	assert.True(t, permanentStatus(http.StatusBadRequest))
	assert.True(t, permanentStatus(http.StatusNotFound))
	assert.False(t, permanentStatus(http.StatusInternalServerError))
	assert.False(t, permanentStatus(http.StatusBadGateway))
}

func TestStatusError_Message(t *testing.T) {
	err := error(&statusError{code: 503})
	assert.Equal(t, "ledger returned status 503", err.Error())
	var se *statusError
	assert.True(t, errors.As(err, &se))
}
