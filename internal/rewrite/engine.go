// Package rewrite decides where an outgoing page request should actually go.
//
// The engine is a pure function over a fixed, ordered rule list. Ordering is
// a correctness invariant: the authentication rule must win over every host
// rewrite, or a login call could bypass the relay.
package rewrite

import "strings"

// Rule pairs a match predicate with a URL transform. First match wins.
type Rule struct {
	Name      string
	Match     func(url string) bool
	Transform func(url string) string
}

// Config names the endpoints the rule list is built from.
type Config struct {
	// Origin is the page's own origin, served by the relay
	// (scheme://host, no trailing slash).
	Origin string
	// AuthSuffix identifies authentication calls by path suffix.
	AuthSuffix string
	// RelayAuthPath is where authentication traffic is forced, on Origin.
	RelayAuthPath string
	// DataMarker identifies the high-value read endpoint by substring.
	DataMarker string
	// RelayDataPath is where the high-value read is forced, on Origin.
	RelayDataPath string
	// APIPrefix is the page's API namespace ("/RPC/").
	APIPrefix string
	// UpstreamBase is the direct upstream address ordinary traffic is
	// bypassed to (scheme://host, no trailing slash).
	UpstreamBase string
	// LegacyHosts are upstream hostnames that must be redirected to
	// UpstreamBase, path preserved.
	LegacyHosts []string
}

// Engine resolves candidate URLs against the rule list.
type Engine struct {
	rules []Rule
}

// New builds the fixed rule list in priority order.
func New(cfg Config) *Engine {
	origin := strings.TrimSuffix(cfg.Origin, "/")
	upstream := strings.TrimSuffix(cfg.UpstreamBase, "/")
	authTarget := origin + cfg.RelayAuthPath
	dataTarget := origin + cfg.RelayDataPath

	rules := []Rule{
		{
			// Authentication always goes through the relay. Absolute;
			// no later rule may reroute it.
			Name: "auth",
			Match: func(url string) bool {
				return strings.HasSuffix(stripQuery(url), cfg.AuthSuffix)
			},
			Transform: func(string) string { return authTarget },
		},
		{
			// The designated read endpoint is forced through the relay
			// so its responses stay observable.
			Name: "relay-data",
			Match: func(url string) bool {
				return strings.Contains(url, cfg.DataMarker)
			},
			Transform: func(string) string { return dataTarget },
		},
		{
			// Ordinary same-origin API traffic bypasses the relay.
			Name: "origin-bypass",
			Match: func(url string) bool {
				return strings.HasPrefix(url, origin+cfg.APIPrefix)
			},
			Transform: func(url string) string {
				return upstream + strings.TrimPrefix(url, origin)
			},
		},
		{
			Name: "relative-bypass",
			Match: func(url string) bool {
				return strings.HasPrefix(url, cfg.APIPrefix)
			},
			Transform: func(url string) string {
				return upstream + url
			},
		},
		{
			Name: "legacy-host",
			Match: func(url string) bool {
				return indexLegacyHost(url, cfg.LegacyHosts) >= 0
			},
			Transform: func(url string) string {
				for _, host := range cfg.LegacyHosts {
					if i := strings.Index(url, host); i >= 0 {
						return upstream + url[i+len(host):]
					}
				}
				return url
			},
		},
	}

	return &Engine{rules: rules}
}

// Resolve maps a candidate URL to its destination. URLs matching no rule are
// returned unchanged.
func (e *Engine) Resolve(url string) string {
	if url == "" {
		return url
	}
	for _, rule := range e.rules {
		if rule.Match(url) {
			return rule.Transform(url)
		}
	}
	return url
}

// ResolveRule is Resolve plus the name of the matched rule ("" on no match).
// Used for telemetry labeling.
func (e *Engine) ResolveRule(url string) (string, string) {
	if url == "" {
		return url, ""
	}
	for _, rule := range e.rules {
		if rule.Match(url) {
			return rule.Transform(url), rule.Name
		}
	}
	return url, ""
}

// Rules exposes the ordered rule list.
func (e *Engine) Rules() []Rule {
	return e.rules
}

func indexLegacyHost(url string, hosts []string) int {
	for _, host := range hosts {
		if i := strings.Index(url, host); i >= 0 {
			return i
		}
	}
	return -1
}

func stripQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
