package autologin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginHTML = `<!DOCTYPE html>
<html><body>
<form action="/RPC/Login" method="post">
  <input type="text" name="account" placeholder="用户名">
  <input type="password" name="password">
  <a href="/reset">忘记密码</a>
  <button type="submit">登 录</button>
</form>
</body></html>`

func TestHTMLPageFindsLoginForm(t *testing.T) {
	var gotAction string
	var gotFields map[string]string
	page, err := ParsePage(strings.NewReader(loginHTML), "https://app.relay.local/login", func(action string, fields map[string]string) error {
		gotAction = action
		gotFields = fields
		return nil
	})
	require.NoError(t, err)

	account, secret, ok := page.FindLoginInputs()
	require.True(t, ok)
	require.NoError(t, account.SetValue("alice"))
	require.NoError(t, secret.SetValue("s3cret"))

	controls := page.Controls()
	require.Len(t, controls, 2)

	var submit Control
	matcher := DefaultMatcher()
	for _, c := range controls {
		if matcher.Match(c.Text()) {
			submit = c
			break
		}
	}
	require.NotNil(t, submit)
	assert.Equal(t, "登 录", submit.Text())

	require.NoError(t, submit.Invoke())
	assert.Equal(t, "/RPC/Login", gotAction)
	assert.Equal(t, map[string]string{"account": "alice", "password": "s3cret"}, gotFields)
}

func TestHTMLPageWithoutPasswordInput(t *testing.T) {
	page, err := ParsePage(strings.NewReader(`<html><body><form>
		<input type="text" name="q"></form></body></html>`), "https://app.relay.local/search", nil)
	require.NoError(t, err)

	_, _, ok := page.FindLoginInputs()
	assert.False(t, ok)
}

func TestHTMLPageHideReveal(t *testing.T) {
	page, err := ParsePage(strings.NewReader(loginHTML), "https://app.relay.local/login", nil)
	require.NoError(t, err)

	assert.False(t, page.Hidden())
	page.Hide()
	assert.True(t, page.Hidden())
	page.Reveal()
	page.Reveal()
	assert.False(t, page.Hidden())
}

func TestHTMLPageInvokeWithoutSubmit(t *testing.T) {
	page, err := ParsePage(strings.NewReader(loginHTML), "https://app.relay.local/login", nil)
	require.NoError(t, err)

	controls := page.Controls()
	require.NotEmpty(t, controls)
	assert.ErrorIs(t, controls[1].Invoke(), ErrNoSubmit)
}
