package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhoyo/hoyoauth/internal/config"
	"github.com/openhoyo/hoyoauth/pkg/loginpage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
http:
  address: ":9090"
  shutdownTimeout: 10s
backend: valkey
valkey:
  address: localhost:6379
  prefix: hoyoauth
sessions:
  ttl: 2m
  idLength: 16
  sweepInterval: 1s
gateway:
  baseURL: https://api.example.com
  callTimeout: 5s
loginPage:
  redirectURL: https://example.com/done
  style:
    color: purple
    theme_mode: dark
localization:
  login_title:
    en: "Sign in"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, config.BackendValkey, cfg.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, 16, cfg.Sessions.IDLength)
	assert.Equal(t, "https://api.example.com", cfg.Gateway.BaseURL)
	assert.Equal(t, loginpage.ColorPurple, cfg.LoginPage.Style.Color)
	assert.Equal(t, loginpage.ThemeDark, cfg.LoginPage.Style.ThemeMode)
	assert.Equal(t, "Sign in", cfg.Localization["login_title"]["en"])
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  baseURL: https://api.example.com
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, config.BackendMemory, cfg.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, "/login", cfg.LoginPage.LoginPath)
	assert.Equal(t, "/api/login", cfg.LoginPage.APILoginPath)
	assert.Equal(t, "/js.js", cfg.LoginPage.JSPath)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "sup3rs3cret")

	path := writeConfig(t, `
database:
  password: ${TEST_DB_PASSWORD}
gateway:
  baseURL: https://api.example.com
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sup3rs3cret", cfg.Database.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(cfg *config.Config) { cfg.Backend = "etcd" },
			wantErr: "unknown backend",
		},
		{
			name:    "postgres without host",
			mutate:  func(cfg *config.Config) { cfg.Backend = config.BackendPostgres },
			wantErr: "database.host",
		},
		{
			name:    "valkey without address",
			mutate:  func(cfg *config.Config) { cfg.Backend = config.BackendValkey },
			wantErr: "valkey.address",
		},
		{
			name:    "missing gateway base url",
			mutate:  func(cfg *config.Config) { cfg.Gateway.BaseURL = "" },
			wantErr: "gateway.baseURL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
gateway:
  baseURL: https://api.example.com
`)
			cfg, err := config.Load(path)
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestMakeConnStr(t *testing.T) {
	got := config.MakeConnStr(config.Database{
		Name:     "hoyoauth",
		Host:     "localhost",
		Port:     "5432",
		User:     "app",
		Password: "secret",
	})
	assert.Equal(t, "host=localhost user=app password=secret dbname=hoyoauth port=5432", got)
}
