package intercept

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
)

// Requester is the event-driven call surface: open a target, attach a
// completion callback, send. The rewrite happens at Open time, mirroring how
// the other surfaces rewrite before dispatch.
type Requester struct {
	layer  *Layer
	client *http.Client

	method     string
	target     string
	header     http.Header
	onComplete func(status int, body []byte)
}

// NewRequester creates a request object bound to the layer.
func (l *Layer) NewRequester() *Requester {
	return &Requester{
		layer:  l,
		client: &http.Client{Transport: http.DefaultTransport},
		header: make(http.Header),
	}
}

// Open sets method and target, applying the rewrite rules.
func (r *Requester) Open(method, rawURL string) {
	r.method = method
	r.target = r.layer.rewrite(rawURL, SurfaceRequester)
}

// URL returns the rewritten destination.
func (r *Requester) URL() string {
	return r.target
}

// SetHeader sets a request header.
func (r *Requester) SetHeader(key, value string) {
	r.header.Set(key, value)
}

// OnComplete registers the settle callback.
func (r *Requester) OnComplete(fn func(status int, body []byte)) {
	r.onComplete = fn
}

// Send issues the call and fires the completion callback. The response tap
// runs after settle and cannot alter the callback's view of the response.
func (r *Requester) Send(ctx context.Context, body []byte) error {
	if r.target == "" {
		return errors.New("requester not opened")
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.target, reader)
	if err != nil {
		return err
	}
	req.Header = r.header.Clone()

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if r.onComplete != nil {
		r.onComplete(resp.StatusCode, respBody)
	}
	r.layer.tapAsync(r.target, body, respBody)
	return nil
}

// rewriteTransport is the third-party hook surface: an http.RoundTripper
// that rewrites and taps any client it is installed into.
type rewriteTransport struct {
	layer *Layer
	base  http.RoundTripper
}

// WrapTransport wraps base (or http.DefaultTransport) so every request
// flowing through it is resolved by the rewrite rules.
func (l *Layer) WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &rewriteTransport{layer: l, base: base}
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target := t.layer.rewrite(req.URL.String(), SurfaceTransport)
	if parsed, err := url.Parse(target); err == nil {
		req.URL = parsed
		req.Host = ""
	}

	tapped := t.layer.shouldTap(target)

	var reqBody []byte
	if tapped && req.Body != nil {
		buf, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		reqBody = buf
		req.Body = io.NopCloser(bytes.NewReader(buf))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || !tapped {
		return resp, err
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		// The tap must not break the call: hand back what we have.
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		return resp, nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	t.layer.tapAsync(target, reqBody, respBody)
	return resp, nil
}
