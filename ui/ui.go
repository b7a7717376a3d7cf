// Package ui renders the sign-in pages and the sign-in and user buttons.
//
// Application templates registered through AddPage can call the helpers
// from FuncMap:
//
//	{{if .Session}}{{userButton .Session.Email .CSRF}}{{else}}{{signInButton}}{{end}}
package ui

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Built-in page names.
const (
	PageSignIn     = "sign-in"
	PageSignInCode = "sign-in-code"
)

// Config holds the URLs the widgets link to.
type Config struct {
	AppName    string
	SignInURL  string
	SignOutURL string
}

// SignInPage is the data for PageSignIn and PageSignInCode.
type SignInPage struct {
	Title       string
	AppName     string
	Action      string
	CSRF        string
	Identifier  string
	Error       string
	RedirectURL string
	RestartURL  string
}

// Renderer implements echo.Renderer.
type Renderer struct {
	cfg     Config
	widgets *template.Template

	mu    sync.RWMutex
	pages map[string]*template.Template
}

// New parses the built-in templates.
func New(cfg Config) *Renderer {
	if cfg.AppName == "" {
		cfg.AppName = "your account"
	}
	if cfg.SignInURL == "" {
		cfg.SignInURL = "/sign-in"
	}
	if cfg.SignOutURL == "" {
		cfg.SignOutURL = "/sign-out"
	}

	r := &Renderer{
		cfg:     cfg,
		widgets: template.Must(template.ParseFS(templatesFS, "templates/widgets.html")),
		pages:   make(map[string]*template.Template),
	}
	r.pages[PageSignIn] = r.mustParsePage(templatesFS, "templates/sign_in.html", "templates/layout.html")
	r.pages[PageSignInCode] = r.mustParsePage(templatesFS, "templates/sign_in_code.html", "templates/layout.html")
	return r
}

// FuncMap returns the widget helpers bound to this renderer's URLs.
func (r *Renderer) FuncMap() template.FuncMap {
	return template.FuncMap{
		"signInButton": r.SignInButton,
		"userButton":   r.UserButton,
		"avatar":       Avatar,
	}
}

// AddPage parses patterns from fsys into a page named name. Rendering
// executes the page's "layout" template when it defines one, otherwise the
// template called name.
func (r *Renderer) AddPage(name string, fsys fs.FS, patterns ...string) error {
	tmpl, err := template.New(name).Funcs(r.FuncMap()).ParseFS(fsys, patterns...)
	if err != nil {
		return fmt.Errorf("ui: parse page %s: %w", name, err)
	}
	r.mu.Lock()
	r.pages[name] = tmpl
	r.mu.Unlock()
	return nil
}

// Render executes the page name.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	r.mu.RLock()
	tmpl, ok := r.pages[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ui: unknown page %q", name)
	}

	if page, ok := data.(SignInPage); ok {
		if page.AppName == "" {
			page.AppName = r.cfg.AppName
		}
		if page.Title == "" {
			page.Title = "Sign in"
		}
		data = page
	}

	if layout := tmpl.Lookup("layout"); layout != nil {
		return layout.Execute(w, data)
	}
	return tmpl.ExecuteTemplate(w, name, data)
}

// SignInButton renders a link to the sign-in page.
func (r *Renderer) SignInButton() (template.HTML, error) {
	return r.widget("sign_in_button", map[string]string{"URL": r.cfg.SignInURL})
}

// UserButton renders the signed-in user's avatar with a sign-out menu.
func (r *Renderer) UserButton(email, csrf string) (template.HTML, error) {
	return r.widget("user_button", map[string]interface{}{
		"Email":      email,
		"Avatar":     Avatar(email),
		"SignOutURL": r.cfg.SignOutURL,
		"CSRF":       csrf,
	})
}

func (r *Renderer) widget(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.widgets.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (r *Renderer) mustParsePage(fsys fs.FS, patterns ...string) *template.Template {
	return template.Must(template.New(patterns[0]).Funcs(r.FuncMap()).ParseFS(fsys, patterns...))
}

var avatarColors = []string{"#6c47ff", "#2f2fd1", "#0b7a75", "#b4441b", "#8a1c7c", "#36613e"}

// Avatar returns an SVG data URI with the first letter of email.
func Avatar(email string) template.URL {
	initial := "?"
	if r, _ := utf8.DecodeRuneInString(email); r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		initial = strings.ToUpper(string(r))
	}

	sum := 0
	for _, b := range []byte(email) {
		sum += int(b)
	}
	color := avatarColors[sum%len(avatarColors)]

	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32">`+
		`<circle cx="16" cy="16" r="16" fill="%s"/>`+
		`<text x="16" y="21" font-family="sans-serif" font-size="15" fill="#fff" text-anchor="middle">%s</text></svg>`,
		color, template.HTMLEscapeString(initial))
	return template.URL("data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)))
}
