package main

import (
	"bytes"
	"context"
	"flag"
	stdlog "log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relaykit/pageagent/internal/autologin"
	"github.com/relaykit/pageagent/internal/config"
	"github.com/relaykit/pageagent/internal/intercept"
	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/monitoring"
	"github.com/relaykit/pageagent/internal/netclient"
	"github.com/relaykit/pageagent/internal/rewrite"
	"github.com/relaykit/pageagent/internal/session"
	"github.com/relaykit/pageagent/internal/storage"
	"github.com/relaykit/pageagent/internal/telemetry"
	"github.com/relaykit/pageagent/internal/vault"
)

func main() {
	page := flag.String("page", "", "Current page URL (overrides AGENT_PAGE)")
	storePath := flag.String("store", "", "Persisted state file (overrides AGENT_STORE_PATH)")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address (empty disables)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *page != "" {
		cfg.Agent.Page = *page
	}
	if *storePath != "" {
		cfg.Agent.StorePath = *storePath
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}
	defer log.Sync()

	var store storage.Store = storage.NewMemory()
	if cfg.Agent.StorePath != "" {
		fileStore, err := storage.OpenFile(cfg.Agent.StorePath)
		if err != nil {
			log.Warn("state file unavailable, falling back to memory", zap.Error(err))
		} else {
			store = fileStore
		}
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.New(reg)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg, log)
	}

	v := vault.New(store, log, vault.WithTTL(cfg.Vault.TTL))
	client := netclient.New(cfg.Agent.UserAgent)
	engine := rewrite.New(rewrite.Config{
		Origin:        cfg.Rewrite.Origin,
		AuthSuffix:    cfg.Rewrite.AuthSuffix,
		RelayAuthPath: cfg.Rewrite.RelayAuthPath,
		DataMarker:    cfg.Rewrite.DataMarker,
		RelayDataPath: cfg.Rewrite.RelayDataPath,
		APIPrefix:     cfg.Rewrite.APIPrefix,
		UpstreamBase:  cfg.Rewrite.UpstreamBase,
		LegacyHosts:   cfg.Rewrite.LegacyHosts,
	})

	widget := session.NewOverlay()
	sess := session.New(session.Config{
		URL:               cfg.Session.URL,
		Page:              cfg.Agent.Page,
		UserAgent:         cfg.Agent.UserAgent,
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		ReconnectDelay:    cfg.Session.ReconnectDelay,
	}, store, widget, log, metrics)

	reporter := telemetry.New(client, cfg.Telemetry.ReportURL, sess.Username, log, metrics)
	layer := intercept.NewLayer(engine, client, v, reporter, intercept.Config{
		AuthSuffix: cfg.Rewrite.AuthSuffix,
		DataMarker: cfg.Rewrite.DataMarker,
	}, log, metrics)
	layer.Install()

	sess.Connect()
	log.Info("agent started",
		zap.String("page", cfg.Agent.Page),
		zap.String("channel", cfg.Session.URL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if onLoginPage(cfg.Agent.Page, cfg.Agent.LoginPath) {
		go runAutoLogin(ctx, cfg, client, layer, v, log, metrics)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()
	sess.Shutdown()
	layer.Flush()
}

// onLoginPage reports whether the current page path is the login page.
func onLoginPage(page, loginPath string) bool {
	u, err := url.Parse(page)
	if err != nil {
		return false
	}
	return strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(loginPath, "/") ||
		(u.Path == "" && loginPath == "/")
}

// runAutoLogin fetches the login document and drives the unattended flow
// against it. Any failure degrades to manual login.
func runAutoLogin(ctx context.Context, cfg *config.Config, client *netclient.Client, layer *intercept.Layer, v *vault.Vault, log *logging.Logger, metrics *monitoring.Metrics) {
	resp, err := client.Do(func() (*resty.Response, error) {
		req, err := client.Request(ctx)
		if err != nil {
			return nil, err
		}
		return req.Get(cfg.Agent.Page)
	})
	if err != nil {
		log.Warn("login page fetch failed", zap.Error(err))
		return
	}

	submit := func(action string, fields map[string]string) error {
		target := layer.Resolve(action)
		_, err := client.Do(func() (*resty.Response, error) {
			req, err := client.Request(ctx)
			if err != nil {
				return nil, err
			}
			return req.SetFormData(fields).Post(target)
		})
		return err
	}

	htmlPage, err := autologin.ParsePage(bytes.NewReader(resp.Body()), cfg.Agent.Page, submit)
	if err != nil {
		log.Warn("login page parse failed", zap.Error(err))
		return
	}

	controller := autologin.New(htmlPage, v, nil, autologin.Config{}, log, metrics)
	controller.Run(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
