package fibertransport_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhoyo/hoyoauth/pkg/gateway"
	gatewaymock "github.com/openhoyo/hoyoauth/pkg/gateway/mock"
	"github.com/openhoyo/hoyoauth/pkg/localization"
	"github.com/openhoyo/hoyoauth/pkg/login"
	"github.com/openhoyo/hoyoauth/pkg/loginpage"
	"github.com/openhoyo/hoyoauth/pkg/session"
	"github.com/openhoyo/hoyoauth/pkg/session/memory"
	fibertransport "github.com/openhoyo/hoyoauth/pkg/transport/fiber"
)

func newApp(t *testing.T, gw gateway.Gateway) (*fiber.App, session.Store) {
	t.Helper()

	store := memory.New(session.Options{TTL: time.Minute})
	manager := login.NewManager(store, gw, login.Options{})

	renderer, err := loginpage.NewRenderer(localization.Default(), loginpage.Options{})
	require.NoError(t, err)

	app := fiber.New()
	fibertransport.Register(app, manager, renderer, fibertransport.Options{})

	return app, store
}

func TestRegister_LoginPage(t *testing.T) {
	app, store := newApp(t, gatewaymock.NewGateway())

	sess, err := store.Create(t.Context(), session.CreateParams{})
	require.NoError(t, err)

	t.Run("known session renders the page", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/login/"+sess.ID, nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/html")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), sess.ID)
	})

	t.Run("unknown session is a 404", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/login/nope", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRegister_LoginAPI(t *testing.T) {
	t.Run("empty body polls the stage", func(t *testing.T) {
		app, store := newApp(t, gatewaymock.NewGateway())
		sess, err := store.Create(t.Context(), session.CreateParams{})
		require.NoError(t, err)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/login/"+sess.ID, nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var partial session.Partial
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&partial))
		assert.Equal(t, session.StageLoginRequired, partial.Stage)
	})

	t.Run("credentials drive the flow", func(t *testing.T) {
		gw := gatewaymock.NewGateway(
			gatewaymock.WithLoginOutcome(gateway.Outcome{Challenge: json.RawMessage(`{"gt":"x"}`)}),
		)
		app, store := newApp(t, gw)
		sess, err := store.Create(t.Context(), session.CreateParams{})
		require.NoError(t, err)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/login/"+sess.ID, nil))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		req := httptest.NewRequest(http.MethodPost, "/api/login/"+sess.ID,
			strings.NewReader(`{"account":"user@example.com","password":"hunter2"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		resp, err = app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var partial session.Partial
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&partial))
		assert.Equal(t, session.StageLoginChallengeTriggered, partial.Stage)
		assert.JSONEq(t, `{"gt":"x"}`, string(partial.Challenge))
	})

	t.Run("malformed body is a 422", func(t *testing.T) {
		app, store := newApp(t, gatewaymock.NewGateway())
		sess, err := store.Create(t.Context(), session.CreateParams{})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/login/"+sess.ID,
			strings.NewReader(`not json`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var body login.ErrorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Invalid request body.", body.Error.Title)
	})
}

func TestRegister_JS(t *testing.T) {
	app, _ := newApp(t, gatewaymock.NewGateway())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/js.js", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hoyoauthInit")
}
