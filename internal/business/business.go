// Package business wires the session store, account gateway and login
// manager together and runs them behind the HTTP server.
package business

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openhoyo/hoyoauth/internal/business/server"
	"github.com/openhoyo/hoyoauth/internal/config"
	"github.com/openhoyo/hoyoauth/pkg/gateway/hoyolab"
	"github.com/openhoyo/hoyoauth/pkg/login"
	"github.com/openhoyo/hoyoauth/pkg/loginpage"
	"github.com/openhoyo/hoyoauth/pkg/session"
	"github.com/openhoyo/hoyoauth/pkg/session/memory"
	sessionpostgres "github.com/openhoyo/hoyoauth/pkg/session/postgres"
	sessionvalkey "github.com/openhoyo/hoyoauth/pkg/session/valkey"
	chitransport "github.com/openhoyo/hoyoauth/pkg/transport/chi"
)

// Main starts the login broker HTTP server and the session eviction loop.
// It blocks until ctx is cancelled.
func Main(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager, closeFn, err := initManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the login manager: %w", err)
	}

	defer closeFn()

	// The eviction loop runs until ctx is cancelled.
	if err := manager.Store().Initialize(ctx); err != nil {
		return fmt.Errorf("initialising the session store: %w", err)
	}

	renderer, err := loginpage.NewRenderer(manager.Localization(), loginpage.Options{
		Style:           cfg.LoginPage.Style,
		PagePath:        cfg.LoginPage.PagePath,
		JSFilePath:      cfg.LoginPage.JSFilePath,
		APILoginPath:    cfg.LoginPage.APILoginPath,
		JSPath:          cfg.LoginPage.JSPath,
		RedirectURL:     cfg.LoginPage.RedirectURL,
		RedirectSeconds: cfg.LoginPage.RedirectSeconds,
	})
	if err != nil {
		return fmt.Errorf("initialising the login page renderer: %w", err)
	}

	router := chitransport.NewRouter(manager, renderer, chitransport.Options{
		LoginPath:      cfg.LoginPage.LoginPath,
		APILoginPath:   cfg.LoginPage.APILoginPath,
		JSPath:         cfg.LoginPage.JSPath,
		DisableJSRoute: cfg.LoginPage.UseCustomJS,
	})

	return server.StartHTTPServer(ctx, cfg, router)
}

// MigrateMain applies the session schema migrations.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	slogctx.Info(ctx, "Applying database migrations")
	return sessionpostgres.Migrate(ctx, config.MakeConnStr(cfg.Database))
}

func initManager(ctx context.Context, cfg *config.Config) (_ *login.Manager, closeFn func(), _ error) {
	store, closeFn, err := initStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	gw := hoyolab.NewClient(cfg.Gateway.BaseURL, nil, cfg.Gateway.CallTimeout)

	manager := login.NewManager(store, gw, login.Options{
		Localization: cfg.Localization,
		OnSuccess: func(ctx context.Context, s session.Session) {
			slogctx.Info(ctx, "Session logged in", "session_id", s.ID)
		},
		OnError: func(ctx context.Context, s session.Session, err error) {
			slogctx.Error(ctx, "Login attempt failed", "session_id", s.ID, "error", err)
		},
		GatewayTimeout: cfg.Gateway.CallTimeout,
	})

	return manager, closeFn, nil
}

func initStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	opts := session.Options{
		TTL:           cfg.Sessions.TTL,
		IDLength:      cfg.Sessions.IDLength,
		SweepInterval: cfg.Sessions.SweepInterval,
		OnExpire: func(ctx context.Context, s session.Session) {
			slogctx.Info(ctx, "Session expired", "session_id", s.ID)
		},
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := pgxpool.New(ctx, config.MakeConnStr(cfg.Database))
		if err != nil {
			return nil, nil, fmt.Errorf("initialising pgxpool connection: %w", err)
		}

		return sessionpostgres.New(db, opts), db.Close, nil

	case config.BackendValkey:
		valkeyClient, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{cfg.ValKey.Address},
			Username:    cfg.ValKey.User,
			Password:    cfg.ValKey.Password,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		return sessionvalkey.New(valkeyClient, cfg.ValKey.Prefix, opts), valkeyClient.Close, nil

	default:
		return memory.New(opts), func() {}, nil
	}
}
