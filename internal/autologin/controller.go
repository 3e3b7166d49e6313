// Package autologin drives the unattended login flow: hide the page, wait
// for the form, fill the saved credential, submit, reveal. Every exit path
// reveals the page; a stuck or missing form degrades to manual login.
package autologin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/monitoring"
	"github.com/relaykit/pageagent/internal/retry"
	"github.com/relaykit/pageagent/internal/vault"
)

// Outcome labels how a run ended.
type Outcome string

const (
	OutcomeSubmitted    Outcome = "submitted"
	OutcomeNoConsent    Outcome = "no_consent"
	OutcomeNoCredential Outcome = "no_credential"
	OutcomeFormTimeout  Outcome = "form_timeout"
	OutcomeFillError    Outcome = "fill_error"
	OutcomeNoControl    Outcome = "no_control"
	OutcomeSubmitError  Outcome = "submit_error"
)

// Input is a fillable form field on the page.
type Input interface {
	SetValue(value string) error
}

// Control is a clickable element on the page.
type Control interface {
	Text() string
	Invoke() error
}

// Page is the login surface the controller operates on. Hide and Reveal must
// be idempotent; the controller may reveal more than once on a panic path.
type Page interface {
	Hide()
	Reveal()
	FindLoginInputs() (account Input, secret Input, ok bool)
	Controls() []Control
	Location() string
}

// Config carries the flow timing. Zero values take the defaults below.
type Config struct {
	PollInterval time.Duration
	PollAttempts int
	SettleDelay  time.Duration
	RevealDelay  time.Duration
}

const (
	defaultPollInterval = 300 * time.Millisecond
	defaultPollAttempts = 15
	defaultSettleDelay  = 400 * time.Millisecond
	defaultRevealDelay  = 1200 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = defaultPollAttempts
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.RevealDelay <= 0 {
		c.RevealDelay = defaultRevealDelay
	}
	return c
}

// Controller runs one login attempt per page load.
type Controller struct {
	page    Page
	vault   *vault.Vault
	matcher ButtonMatcher
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New wires a controller. A nil matcher falls back to the default keyword set.
func New(page Page, v *vault.Vault, matcher ButtonMatcher, cfg Config, log *logging.Logger, metrics *monitoring.Metrics) *Controller {
	if log == nil {
		log = logging.NewNop()
	}
	if matcher == nil {
		matcher = DefaultMatcher()
	}
	return &Controller{
		page:    page,
		vault:   v,
		matcher: matcher,
		cfg:     cfg.withDefaults(),
		log:     log.Named("autologin"),
		metrics: metrics,
	}
}

// Run executes the flow once and reports how it ended. Once the page has been
// hidden it is always revealed again, whatever happens in between.
func (c *Controller) Run(ctx context.Context) Outcome {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("login flow panicked", zap.Any("panic", r))
			c.page.Reveal()
		}
	}()

	if !c.vault.Consented() {
		// Consent was withdrawn; stored secrets must not outlive it.
		c.vault.Clear()
		return c.finish(OutcomeNoConsent)
	}
	cred, ok := c.vault.Load()
	if !ok {
		return c.finish(OutcomeNoCredential)
	}

	c.page.Hide()
	defer c.page.Reveal()

	var account, secret Input
	policy := retry.Policy{Attempts: c.cfg.PollAttempts, Interval: c.cfg.PollInterval}
	found := policy.Run(ctx, func() bool {
		account, secret, ok = c.page.FindLoginInputs()
		return ok
	})
	if !found {
		c.log.Warn("login form never appeared", zap.String("page", c.page.Location()))
		return c.finish(OutcomeFormTimeout)
	}

	if err := account.SetValue(cred.Account); err != nil {
		c.log.Warn("account fill failed", zap.Error(err))
		return c.finish(OutcomeFillError)
	}
	if err := secret.SetValue(cred.Secret); err != nil {
		c.log.Warn("secret fill failed", zap.Error(err))
		return c.finish(OutcomeFillError)
	}

	if !retry.Wait(ctx, c.cfg.SettleDelay) {
		return c.finish(OutcomeFormTimeout)
	}

	control, ok := c.findControl()
	if !ok {
		c.log.Warn("no login control matched", zap.String("page", c.page.Location()))
		return c.finish(OutcomeNoControl)
	}
	if err := control.Invoke(); err != nil {
		c.log.Warn("login submit failed", zap.Error(err))
		return c.finish(OutcomeSubmitError)
	}

	retry.Wait(ctx, c.cfg.RevealDelay)
	return c.finish(OutcomeSubmitted)
}

func (c *Controller) findControl() (Control, bool) {
	for _, ctrl := range c.page.Controls() {
		if c.matcher.Match(ctrl.Text()) {
			return ctrl, true
		}
	}
	return nil, false
}

func (c *Controller) finish(outcome Outcome) Outcome {
	c.metrics.RecordAutologinOutcome(string(outcome))
	c.log.Info("login flow finished", zap.String("outcome", string(outcome)))
	return outcome
}
