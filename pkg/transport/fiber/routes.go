// Package fibertransport mounts the login broker onto a fiber application,
// for embedding into services that already run fiber.
package fibertransport

import (
	"bytes"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openhoyo/hoyoauth/internal/serviceerr"
	"github.com/openhoyo/hoyoauth/pkg/localization"
	"github.com/openhoyo/hoyoauth/pkg/login"
	"github.com/openhoyo/hoyoauth/pkg/loginpage"
	"github.com/openhoyo/hoyoauth/pkg/session"
)

// Options configure the mounted routes. Zero values pick the same defaults as
// the chi transport.
type Options struct {
	LoginPath      string
	APILoginPath   string
	JSPath         string
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

// Register mounts the login page, login API and JS routes on app.
func Register(app *fiber.App, manager *login.Manager, renderer *loginpage.Renderer, opts Options) {
	opts = opts.withDefaults()
	h := &handler{manager: manager, renderer: renderer}

	app.Get(opts.LoginPath+"/:sessionID", h.loginPage)
	app.Post(opts.APILoginPath+"/:sessionID", h.loginAPI)
	if !opts.DisableJSRoute {
		app.Get(opts.JSPath, h.js)
	}
}

func (h *handler) loginPage(c *fiber.Ctx) error {
	sess, done, err := h.loadSession(c)
	if done || err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, sess.Partial()); err != nil {
		slogctx.Error(c.UserContext(), "Failed to render login page", "error", err, "session_id", sess.ID)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

func (h *handler) loginAPI(c *fiber.Ctx) error {
	sess, done, err := h.loadSession(c)
	if done || err != nil {
		return err
	}

	payload, err := login.ParsePayload(c.Body())
	if err != nil {
		return h.sendError(c, fiber.StatusUnprocessableEntity, sess.Language,
			localization.KeyInvalidBodyTitle, localization.KeyInvalidBodyMessage)
	}

	resp, err := h.manager.Handle(requestContext(c), sess, payload)
	if err != nil {
		slogctx.Error(c.UserContext(), "Login request failed", "error", err, "session_id", sess.ID)
		return h.sendError(c, fiber.StatusInternalServerError, sess.Language,
			localization.KeyDefaultErrorTitle, localization.KeyDefaultErrorMessage)
	}

	return c.Status(resp.Status).JSON(resp.Body)
}

func (h *handler) js(c *fiber.Ctx) error {
	js, err := h.renderer.JS()
	if err != nil {
		slogctx.Error(c.UserContext(), "Failed to load js helper", "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	c.Set(fiber.HeaderContentType, "text/javascript; charset=utf-8")
	return c.Send(js)
}

// loadSession resolves the session id path segment. done reports that a
// response was already written.
func (h *handler) loadSession(c *fiber.Ctx) (session.Session, bool, error) {
	id := c.Params("sessionID")

	sess, err := h.manager.Store().Get(requestContext(c), id)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return session.Session{}, true, c.SendStatus(fiber.StatusNotFound)
		}
		slogctx.Error(c.UserContext(), "Failed to load session", "error", err, "session_id", id)
		return session.Session{}, true, c.SendStatus(fiber.StatusInternalServerError)
	}

	return sess, false, nil
}

func (h *handler) sendError(c *fiber.Ctx, status int, lang, titleKey, messageKey string) error {
	loc := h.manager.Localization()
	return c.Status(status).JSON(login.ErrorBody{Error: login.ErrorDetail{
		Title:   loc.Resolve(titleKey, lang),
		Message: loc.Resolve(messageKey, lang),
	}})
}

// requestContext prefers the caller-supplied context. Fiber hands out a
// background context by default.
func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
