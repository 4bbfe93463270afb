// Package loginpage renders the browser-facing login page. The default page
// and its JS helper are embedded; both can be replaced by files on disk.
package loginpage

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/openhoyo/hoyoauth/pkg/localization"
	"github.com/openhoyo/hoyoauth/pkg/session"
)

//go:embed assets/login.html assets/js.js
var assets embed.FS

// Color is the accent color of the default login page.
type Color string

const (
	ColorRed    Color = "red"
	ColorPink   Color = "pink"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorPurple Color = "purple"
	ColorOrange Color = "orange"
)

// ThemeMode is the color scheme of the default login page.
type ThemeMode string

const (
	ThemeDark  ThemeMode = "dark"
	ThemeAuto  ThemeMode = "auto"
	ThemeLight ThemeMode = "light"
)

var accentColors = map[Color]string{
	ColorRed:    "#e53935",
	ColorPink:   "#d81b60",
	ColorBlue:   "#1e88e5",
	ColorGreen:  "#43a047",
	ColorYellow: "#fdd835",
	ColorPurple: "#8e24aa",
	ColorOrange: "#fb8c00",
}

// Style configures the default page. Ignored when a custom page is used.
type Style struct {
	Color     Color     `yaml:"color"`
	ThemeMode ThemeMode `yaml:"theme_mode"`
}

func (s Style) withDefaults() Style {
	if s.Color == "" {
		s.Color = ColorBlue
	}
	if s.ThemeMode == "" {
		s.ThemeMode = ThemeAuto
	}
	return s
}

// Options configure a Renderer.
type Options struct {
	Style Style

	// PagePath points at a custom login page template on disk. When set,
	// Style is ignored.
	PagePath string
	// JSFilePath points at a custom JS helper file on disk.
	JSFilePath string

	// APILoginPath is the route the page posts payloads to, without the
	// trailing session id segment.
	APILoginPath string
	// JSPath is the route the JS helper is served from.
	JSPath string

	// RedirectURL receives the user after a successful login, with the
	// session id passed as the session_id query parameter. Empty disables
	// the redirect.
	RedirectURL string
	// RedirectSeconds is the delay before the redirect fires.
	RedirectSeconds int
}

// Renderer renders the login page for a session.
type Renderer struct {
	tmpl *template.Template
	loc  localization.Table
	opts Options
}

func NewRenderer(loc localization.Table, opts Options) (*Renderer, error) {
	opts.Style = opts.Style.withDefaults()
	if opts.APILoginPath == "" {
		opts.APILoginPath = "/api/login"
	}
	if opts.JSPath == "" {
		opts.JSPath = "/js.js"
	}
	if opts.RedirectSeconds <= 0 {
		opts.RedirectSeconds = 3
	}
	if _, ok := accentColors[opts.Style.Color]; !ok {
		return nil, fmt.Errorf("unknown login page color %q", opts.Style.Color)
	}

	raw, err := pageSource(opts.PagePath)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("login").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing login page template: %w", err)
	}

	return &Renderer{tmpl: tmpl, loc: loc, opts: opts}, nil
}

func pageSource(path string) ([]byte, error) {
	if path == "" {
		return assets.ReadFile("assets/login.html")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading custom login page: %w", err)
	}
	return raw, nil
}

// JS returns the JS helper served at JSPath.
func (r *Renderer) JS() ([]byte, error) {
	if r.opts.JSFilePath == "" {
		return assets.ReadFile("assets/js.js")
	}
	raw, err := os.ReadFile(r.opts.JSFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading custom js file: %w", err)
	}
	return raw, nil
}

type pageData struct {
	L map[string]string

	Lang        string
	Color       Color
	AccentColor template.CSS
	ThemeMode   ThemeMode

	Session             template.JS
	APILoginPath        string
	JSPath              string
	RedirectURL         string
	GeetestLang         string
	CompleteDescription string
}

// Render writes the login page for the given session view.
func (r *Renderer) Render(w io.Writer, partial session.Partial) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encoding session view: %w", err)
	}

	data := pageData{
		L:            r.resolveAll(partial.Language),
		Lang:         partial.Language,
		Color:        r.opts.Style.Color,
		AccentColor:  template.CSS(accentColors[r.opts.Style.Color]),
		ThemeMode:    r.opts.Style.ThemeMode,
		Session:      template.JS(raw),
		APILoginPath: r.opts.APILoginPath,
		JSPath:       r.opts.JSPath,
		RedirectURL:  r.opts.RedirectURL,
		GeetestLang:  GeetestLang(partial.Language),
	}
	data.CompleteDescription = r.completeDescription(partial.Language)

	return r.tmpl.Execute(w, data)
}

func (r *Renderer) resolveAll(lang string) map[string]string {
	resolved := make(map[string]string, len(r.loc))
	for key := range r.loc {
		resolved[key] = r.loc.Resolve(key, lang)
	}
	return resolved
}

func (r *Renderer) completeDescription(lang string) string {
	if r.opts.RedirectURL == "" {
		return r.loc.Resolve(localization.KeyCompleteDescNoRedirect, lang)
	}
	s := r.loc.Resolve(localization.KeyCompleteDesc, lang)
	return strings.ReplaceAll(s, "||seconds||", fmt.Sprintf("%d", r.opts.RedirectSeconds))
}

// geetestLanguages are the language tags the Geetest widget supports.
// Anything else falls back to English.
var geetestLanguages = map[string]struct{}{
	"zh-cn": {}, "zh-hk": {}, "zh-tw": {},
	"en": {}, "ja": {}, "ko": {}, "id": {}, "ru": {}, "ar": {}, "es": {},
	"pt-pt": {}, "fr": {}, "de": {}, "th": {}, "tr": {}, "vi": {}, "ta": {},
	"it": {}, "bn": {}, "mr": {},
}

// GeetestLang maps a session language to a Geetest widget language.
func GeetestLang(language string) string {
	if _, ok := geetestLanguages[strings.ToLower(language)]; ok {
		return strings.ToLower(language)
	}
	return "en"
}
