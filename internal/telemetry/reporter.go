// Package telemetry forwards tapped response payloads to the operator's
// ingest endpoint, at most once per page lifetime.
package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/monitoring"
	"github.com/relaykit/pageagent/internal/netclient"
	"github.com/relaykit/pageagent/internal/wire"
)

// Reporter performs one-shot, fire-and-forget delivery of an intercepted
// payload. It latches only after a successful dispatch, so a failed attempt
// leaves the door open for the next tap fire.
type Reporter struct {
	client   *netclient.Client
	url      string
	username func() string
	log      *logging.Logger
	metrics  *monitoring.Metrics

	mu   sync.Mutex
	sent bool
}

// New creates a reporter posting to url. username is resolved lazily at
// dispatch time so identity discovery can complete first.
func New(client *netclient.Client, url string, username func() string, log *logging.Logger, metrics *monitoring.Metrics) *Reporter {
	if log == nil {
		log = logging.NewNop()
	}
	if username == nil {
		username = func() string { return "" }
	}
	return &Reporter{
		client:   client,
		url:      url,
		username: username,
		log:      log.Named("telemetry"),
		metrics:  metrics,
	}
}

// Report dispatches payload unless a report already went out. Failures are
// swallowed; nothing is surfaced to the caller.
func (r *Reporter) Report(payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := r.client.Request(ctx)
	if err != nil {
		r.log.Debug("report skipped", zap.Error(err))
		return
	}

	body := wire.Report{
		Username: r.username(),
		Data:     payload,
	}

	httpResp, err := r.client.Do(func() (*resty.Response, error) {
		return req.SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(r.url)
	})
	if err != nil {
		r.log.Debug("report failed", zap.Error(err))
		return
	}
	if httpResp.IsError() {
		r.log.Debug("report rejected", zap.Int("status", httpResp.StatusCode()))
		return
	}

	r.sent = true
	r.metrics.RecordReportSent()
	r.log.Info("payload reported", zap.Int("bytes", len(payload)))
}

// Sent reports whether the latch is set.
func (r *Reporter) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}
