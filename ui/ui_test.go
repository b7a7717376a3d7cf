package ui

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, r *Renderer, name string, data interface{}) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, name, data, nil))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestRenderer_SignInPage(t *testing.T) {
	r := New(Config{AppName: "Demo"})

	doc := render(t, r, PageSignIn, SignInPage{
		Action:      "/sign-in",
		CSRF:        "tok",
		RedirectURL: "/admin",
	})

	input := doc.Find(`input[name="identifier"][type="text"]`)
	assert.Equal(t, 1, input.Length())
	assert.Equal(t, "tok", doc.Find(`input[name="_csrf"]`).AttrOr("value", ""))
	assert.Equal(t, "/admin", doc.Find(`input[name="redirectUrl"]`).AttrOr("value", ""))
	assert.Equal(t, "/sign-in", doc.Find("form").AttrOr("action", ""))
	assert.Contains(t, doc.Find("p.hint").Text(), "Demo")
	assert.Equal(t, 0, doc.Find("#error-identifier").Length())
	assert.Equal(t, "Sign in", doc.Find("title").Text())
}

func TestRenderer_SignInPageError(t *testing.T) {
	r := New(Config{})

	doc := render(t, r, PageSignIn, SignInPage{
		Identifier: "nobody@example.com",
		Error:      "Couldn't find your account.",
	})

	assert.Equal(t, "Couldn't find your account.", doc.Find("#error-identifier").Text())
	assert.Equal(t, "nobody@example.com", doc.Find(`input[name="identifier"]`).AttrOr("value", ""))
	assert.Equal(t, 0, doc.Find(`input[name="redirectUrl"]`).Length())
}

func TestRenderer_CodePage(t *testing.T) {
	r := New(Config{})

	doc := render(t, r, PageSignInCode, SignInPage{
		Action:     "/sign-in/verify",
		Identifier: "tester@example.com",
		RestartURL: "/sign-in",
		Error:      "Incorrect code.",
	})

	assert.Equal(t, 1, doc.Find(`input[name="codeInput-0"]`).Length())
	assert.Equal(t, 0, doc.Find(`input[name="identifier"]`).Length())
	assert.Contains(t, doc.Find("strong").Text(), "tester@example.com")
	assert.Equal(t, "Incorrect code.", doc.Find("#error-code").Text())
}

func TestRenderer_UnknownPage(t *testing.T) {
	r := New(Config{})
	err := r.Render(&bytes.Buffer{}, "missing", nil, nil)
	assert.Error(t, err)
}

func TestRenderer_Widgets(t *testing.T) {
	r := New(Config{SignInURL: "/login", SignOutURL: "/logout"})

	html, err := r.SignInButton()
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	require.NoError(t, err)
	assert.Equal(t, "/login", doc.Find(`[data-testid="sign-in"]`).AttrOr("href", ""))

	html, err = r.UserButton("ada@example.com", "tok")
	require.NoError(t, err)
	doc, err = goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	require.NoError(t, err)

	button := doc.Find(`[data-testid="user-button"]`)
	require.Equal(t, 1, button.Length())
	assert.True(t, strings.HasPrefix(button.Find("img").AttrOr("src", ""), "data:image/svg+xml;base64,"))
	assert.Equal(t, "/logout", button.Find("form").AttrOr("action", ""))
	assert.Equal(t, "tok", button.Find(`input[name="_csrf"]`).AttrOr("value", ""))
	assert.Equal(t, 1, button.Find(`[data-localization-key="userButton.action__signOut"]`).Length())
}

func TestRenderer_AddPage(t *testing.T) {
	r := New(Config{})
	fsys := fstest.MapFS{
		"home.html": {Data: []byte(`{{define "home"}}<div id="nav">{{if .Email}}{{userButton .Email "x"}}{{else}}{{signInButton}}{{end}}</div>{{end}}`)},
	}
	require.NoError(t, r.AddPage("home", fsys, "home.html"))

	doc := render(t, r, "home", map[string]string{"Email": ""})
	assert.Equal(t, 1, doc.Find(`#nav [data-testid="sign-in"]`).Length())

	doc = render(t, r, "home", map[string]string{"Email": "ada@example.com"})
	assert.Equal(t, 1, doc.Find(`#nav [data-testid="user-button"]`).Length())
	assert.Equal(t, 0, doc.Find(`[data-testid="sign-in"]`).Length())

	assert.Error(t, r.AddPage("broken", fsys, "missing.html"))
}

func TestAvatar(t *testing.T) {
	uri := Avatar("ada@example.com")
	require.True(t, strings.HasPrefix(string(uri), "data:image/svg+xml;base64,"))
	assert.Contains(t, decodeAvatar(t, uri), ">A</text>")

	assert.Contains(t, decodeAvatar(t, Avatar("")), ">?</text>")
	assert.Equal(t, Avatar("ada@example.com"), Avatar("ada@example.com"))
}

func decodeAvatar(t *testing.T, uri template.URL) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(string(uri), "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	return string(raw)
}
