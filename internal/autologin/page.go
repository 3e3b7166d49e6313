package autologin

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// SubmitFunc performs the actual form submission for an HTMLPage: action is
// the form's target, fields the filled values keyed by field name.
type SubmitFunc func(action string, fields map[string]string) error

// ErrNoSubmit is returned when a control is invoked on a page without a
// submit function.
var ErrNoSubmit = errors.New("autologin: page has no submit function")

// accountTypes are the input types accepted for the account field. An input
// with no type attribute counts as "text".
var accountTypes = map[string]bool{
	"text":  true,
	"email": true,
	"tel":   true,
}

// HTMLPage is a goquery-backed Page over a parsed login document. Fill state
// lives on the page; Invoke hands it to the submit function.
type HTMLPage struct {
	doc      *goquery.Document
	location string
	submit   SubmitFunc

	mu     sync.Mutex
	hidden bool
	values map[string]string
}

// ParsePage parses a login document. location is the page URL, submit
// receives the form action and filled fields on Invoke.
func ParsePage(r io.Reader, location string, submit SubmitFunc) (*HTMLPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &HTMLPage{
		doc:      doc,
		location: location,
		submit:   submit,
		values:   make(map[string]string),
	}, nil
}

func (p *HTMLPage) Location() string { return p.location }

func (p *HTMLPage) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hidden = true
}

func (p *HTMLPage) Reveal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hidden = false
}

// Hidden reports whether the page is currently masked.
func (p *HTMLPage) Hidden() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hidden
}

// FindLoginInputs locates exactly one password input and one account-typed
// input, preferring fields inside the password input's own form.
func (p *HTMLPage) FindLoginInputs() (Input, Input, bool) {
	pw := p.doc.Find("input[type='password']").First()
	if pw.Length() == 0 {
		return nil, nil, false
	}

	scope := pw.Closest("form")
	if scope.Length() == 0 {
		scope = p.doc.Selection
	}

	var account *goquery.Selection
	scope.Find("input").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		typ := strings.ToLower(sel.AttrOr("type", "text"))
		if accountTypes[typ] {
			account = sel
			return false
		}
		return true
	})
	if account == nil {
		return nil, nil, false
	}

	return p.input(account, "username"), p.input(pw, "password"), true
}

// Controls returns the page's clickable elements in document order.
func (p *HTMLPage) Controls() []Control {
	var out []Control
	p.doc.Find("button, input[type='submit'], input[type='button'], a").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			text = strings.TrimSpace(sel.AttrOr("value", ""))
		}
		out = append(out, &htmlControl{page: p, text: text, action: p.formAction(sel)})
	})
	return out
}

func (p *HTMLPage) input(sel *goquery.Selection, fallback string) Input {
	name := sel.AttrOr("name", sel.AttrOr("id", fallback))
	return &htmlInput{page: p, name: name}
}

// formAction resolves the enclosing form's action, defaulting to the page
// location for formless controls.
func (p *HTMLPage) formAction(sel *goquery.Selection) string {
	form := sel.Closest("form")
	if form.Length() == 0 {
		form = p.doc.Find("form").First()
	}
	if form.Length() == 0 {
		return p.location
	}
	if action := strings.TrimSpace(form.AttrOr("action", "")); action != "" {
		return action
	}
	return p.location
}

func (p *HTMLPage) setValue(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
}

func (p *HTMLPage) snapshot() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

type htmlInput struct {
	page *HTMLPage
	name string
}

func (in *htmlInput) SetValue(value string) error {
	in.page.setValue(in.name, value)
	return nil
}

type htmlControl struct {
	page   *HTMLPage
	text   string
	action string
}

func (c *htmlControl) Text() string { return c.text }

func (c *htmlControl) Invoke() error {
	if c.page.submit == nil {
		return ErrNoSubmit
	}
	return c.page.submit(c.action, c.page.snapshot())
}
