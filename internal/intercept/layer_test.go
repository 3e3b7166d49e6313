package intercept

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/monitoring"
	"github.com/relaykit/pageagent/internal/netclient"
	"github.com/relaykit/pageagent/internal/rewrite"
	"github.com/relaykit/pageagent/internal/storage"
	"github.com/relaykit/pageagent/internal/telemetry"
	"github.com/relaykit/pageagent/internal/vault"
)

// harness wires a layer against a test relay/upstream server.
type harness struct {
	layer    *Layer
	client   *netclient.Client
	vault    *vault.Vault
	store    *storage.MemoryStore
	reporter *telemetry.Reporter
	engine   *rewrite.Engine
}

func newHarness(t *testing.T, origin, upstream, reportURL string) *harness {
	t.Helper()

	engine := rewrite.New(rewrite.Config{
		Origin:        origin,
		AuthSuffix:    "/Login",
		RelayAuthPath: "/RPC/Login",
		DataMarker:    "public_IndexData",
		RelayDataPath: "/RPC/public_IndexData",
		APIPrefix:     "/RPC/",
		UpstreamBase:  upstream,
		LegacyHosts:   []string{"www.legacy-api1.example", "www.legacy-api2.example"},
	})

	store := storage.NewMemory()
	store.Set(storage.KeyConsent, storage.ConsentGranted)
	v := vault.New(store, logging.NewNop())

	client := netclient.New("test")
	reporter := telemetry.New(netclient.New("test"), reportURL, nil, logging.NewNop(), monitoring.NewNop())

	layer := NewLayer(engine, client, v, reporter, Config{
		AuthSuffix: "/Login",
		DataMarker: "public_IndexData",
	}, logging.NewNop(), monitoring.NewNop())
	layer.Install()

	return &harness{
		layer:    layer,
		client:   client,
		vault:    v,
		store:    store,
		reporter: reporter,
		engine:   engine,
	}
}

func TestCrossSurfaceConsistency(t *testing.T) {
	h := newHarness(t, "https://app.relay.local", "https://203.0.113.10", "")

	urls := []string{
		"https://www.legacy-api1.example/RPC/Login",
		"https://www.legacy-api1.example/RPC/GetBalance",
		"https://app.relay.local/RPC/public_IndexData",
		"https://www.legacy-api2.example/RPC/History?page=1",
	}

	for _, u := range urls {
		fromResolve := h.layer.Resolve(u)

		req := h.layer.NewRequester()
		req.Open(http.MethodPost, u)
		fromRequester := req.URL()

		// The transport surface mutates an *http.Request the same way.
		fromTransport := h.layer.rewrite(u, SurfaceTransport)

		assert.Equal(t, fromResolve, fromRequester, "url %q", u)
		assert.Equal(t, fromResolve, fromTransport, "url %q", u)
	}
}

func TestFetchSurfaceRewritesAndTapsAuth(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/RPC/Login", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Error":false,"Data":{"UserID":7}}`))
	}))
	defer relay.Close()

	h := newHarness(t, relay.URL, "https://203.0.113.10", "")

	req, err := h.client.Request(context.Background())
	require.NoError(t, err)
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(`{"account":"alice","password":"hunter2","client":"WEB"}`).
		Post("https://www.legacy-api1.example/RPC/Login")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	h.layer.Flush()

	cred, ok := h.vault.Load()
	require.True(t, ok)
	assert.Equal(t, "alice", cred.Account)
	assert.Equal(t, "hunter2", cred.Secret)
}

func TestAuthTapSkipsFailedLogin(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Error":true,"Msg":"bad credentials"}`))
	}))
	defer relay.Close()

	h := newHarness(t, relay.URL, "https://203.0.113.10", "")

	req, err := h.client.Request(context.Background())
	require.NoError(t, err)
	_, err = req.SetBody(`{"account":"alice","password":"wrong"}`).Post("/RPC/Login")
	require.NoError(t, err)

	h.layer.Flush()

	_, ok := h.vault.Load()
	assert.False(t, ok)
}

func TestAuthTapFormEncodedFallback(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Error":false,"Data":{"UserID":7}}`))
	}))
	defer relay.Close()

	h := newHarness(t, relay.URL, "https://203.0.113.10", "")

	req := h.layer.NewRequester()
	req.Open(http.MethodPost, "/RPC/Login")
	req.SetHeader("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, req.Send(context.Background(), []byte("account=bob&password=s3cret")))

	h.layer.Flush()

	cred, ok := h.vault.Load()
	require.True(t, ok)
	assert.Equal(t, "bob", cred.Account)
	assert.Equal(t, "s3cret", cred.Secret)
}

func TestDataTapReportsOnce(t *testing.T) {
	var reports int
	var reported json.RawMessage
	ingest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reports++
		var body struct {
			Data json.RawMessage `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		reported = body.Data
		w.WriteHeader(http.StatusOK)
	}))
	defer ingest.Close()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/RPC/public_IndexData", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Error":false,"Data":{"ACECount":3,"EP":120}}`))
	}))
	defer relay.Close()

	h := newHarness(t, relay.URL, "https://203.0.113.10", ingest.URL)

	for i := 0; i < 3; i++ {
		req, err := h.client.Request(context.Background())
		require.NoError(t, err)
		_, err = req.Post("/RPC/public_IndexData")
		require.NoError(t, err)
		h.layer.Flush()
	}

	assert.Equal(t, 1, reports)
	assert.JSONEq(t, `{"ACECount":3,"EP":120}`, string(reported))
	assert.True(t, h.reporter.Sent())
}

func TestTapFailureDoesNotAffectCall(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Not JSON at all: the tap must swallow this.
		_, _ = w.Write([]byte("<html>login ok</html>"))
	}))
	defer relay.Close()

	h := newHarness(t, relay.URL, "https://203.0.113.10", "")

	req, err := h.client.Request(context.Background())
	require.NoError(t, err)
	resp, err := req.SetBody(`{"account":"a","password":"b"}`).Post("/RPC/Login")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "<html>login ok</html>", resp.String())

	h.layer.Flush()
	_, ok := h.vault.Load()
	assert.False(t, ok)
}

func TestTransportSurfaceEndToEnd(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Error":false,"Data":{"UserID":9}}`))
	}))
	defer relay.Close()

	h := newHarness(t, relay.URL, "https://203.0.113.10", "")

	httpClient := &http.Client{Transport: h.layer.WrapTransport(nil)}
	resp, err := httpClient.Post(
		"https://www.legacy-api2.example/RPC/Login",
		"application/json",
		jsonBody(`{"account":"carol","password":"pw"}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h.layer.Flush()

	cred, ok := h.vault.Load()
	require.True(t, ok)
	assert.Equal(t, "carol", cred.Account)
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
