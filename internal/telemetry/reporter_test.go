package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/monitoring"
	"github.com/relaykit/pageagent/internal/netclient"
	"github.com/relaykit/pageagent/internal/wire"
)

func TestReportLatchesAfterSuccess(t *testing.T) {
	var hits atomic.Int32
	var last wire.Report

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&last))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(netclient.New("test"), srv.URL,
		func() string { return "alice" },
		logging.NewNop(), monitoring.NewNop())

	payload := json.RawMessage(`{"balance":42}`)
	r.Report(payload)
	r.Report(payload)
	r.Report(payload)

	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, r.Sent())
	assert.Equal(t, "alice", last.Username)
	assert.JSONEq(t, `{"balance":42}`, string(last.Data))
}

func TestReportFailureDoesNotLatch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if hits.Load() == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(netclient.New("test"), srv.URL, nil, logging.NewNop(), monitoring.NewNop())

	r.Report(json.RawMessage(`{}`))
	assert.False(t, r.Sent())

	r.Report(json.RawMessage(`{}`))
	assert.True(t, r.Sent())
	assert.Equal(t, int32(2), hits.Load())
}
