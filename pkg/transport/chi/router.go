// Package chitransport mounts the login broker onto a chi router. It can run
// standalone behind http.Server or be mounted into a larger chi application.
package chitransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openhoyo/hoyoauth/internal/serviceerr"
	"github.com/openhoyo/hoyoauth/pkg/localization"
	"github.com/openhoyo/hoyoauth/pkg/login"
	"github.com/openhoyo/hoyoauth/pkg/loginpage"
	"github.com/openhoyo/hoyoauth/pkg/session"
)

const maxBodySize = 1 << 20 // 1 MiB

// Options configure the mounted routes.
type Options struct {
	// LoginPath serves the HTML page at {LoginPath}/{session_id}.
	LoginPath string
	// APILoginPath accepts payloads at {APILoginPath}/{session_id}.
	APILoginPath string
	// JSPath serves the page's JS helper. Ignored when DisableJSRoute is set.
	JSPath string
	// DisableJSRoute skips the JS route for deployments serving the helper
	// from a CDN or their own server.
	DisableJSRoute bool
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.APILoginPath == "" {
		o.APILoginPath = "/api/login"
	}
	if o.JSPath == "" {
		o.JSPath = "/js.js"
	}
	return o
}

type handler struct {
	manager  *login.Manager
	renderer *loginpage.Renderer
}

// NewRouter mounts the login page, login API and JS routes on a fresh router.
func NewRouter(manager *login.Manager, renderer *loginpage.Renderer, opts Options) chi.Router {
	opts = opts.withDefaults()
	h := &handler{manager: manager, renderer: renderer}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get(opts.LoginPath+"/{sessionID}", h.loginPage)
	r.Post(opts.APILoginPath+"/{sessionID}", h.loginAPI)
	if !opts.DisableJSRoute {
		r.Get(opts.JSPath, h.js)
	}

	return r
}

func (h *handler) loginPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Render(w, sess.Partial()); err != nil {
		slogctx.Error(r.Context(), "Failed to render login page", "error", err, "session_id", sess.ID)
	}
}

func (h *handler) loginAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, sess.Language,
			localization.KeyInvalidBodyTitle, localization.KeyInvalidBodyMessage)
		return
	}

	payload, err := login.ParsePayload(body)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, sess.Language,
			localization.KeyInvalidBodyTitle, localization.KeyInvalidBodyMessage)
		return
	}

	resp, err := h.manager.Handle(ctx, sess, payload)
	if err != nil {
		slogctx.Error(ctx, "Login request failed", "error", err, "session_id", sess.ID)
		h.writeError(w, http.StatusInternalServerError, sess.Language,
			localization.KeyDefaultErrorTitle, localization.KeyDefaultErrorMessage)
		return
	}

	writeJSON(w, resp.Status, resp.Body)
}

func (h *handler) js(w http.ResponseWriter, r *http.Request) {
	js, err := h.renderer.JS()
	if err != nil {
		slogctx.Error(r.Context(), "Failed to load js helper", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(js)
}

// loadSession resolves the session id path segment. Expired and unknown ids
// are indistinguishable to the client.
func (h *handler) loadSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	id := chi.URLParam(r, "sessionID")

	sess, err := h.manager.Store().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			http.NotFound(w, r)
			return session.Session{}, false
		}
		slogctx.Error(r.Context(), "Failed to load session", "error", err, "session_id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return session.Session{}, false
	}

	return sess, true
}

func (h *handler) writeError(w http.ResponseWriter, status int, lang, titleKey, messageKey string) {
	loc := h.manager.Localization()
	writeJSON(w, status, login.ErrorBody{Error: login.ErrorDetail{
		Title:   loc.Resolve(titleKey, lang),
		Message: loc.Resolve(messageKey, lang),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
