package config

import (
	"os"
	"path/filepath"
	"testing"

	"mircrewapi/internal/scrapers/mircrew"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.json5")
	err := os.WriteFile(path, []byte(contents), 0600)
	require.Nil(t, err)
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json5"))
	require.Nil(t, err)

	require.Equal(t, mircrew.DefaultBaseUrl, cfg.Mircrew.BaseUrl)
	require.Equal(t, DriverHttp, cfg.Mircrew.Driver)
	require.NotNil(t, cfg.Mircrew.Browser.Headless)
	require.True(t, *cfg.Mircrew.Browser.Headless)
	require.Equal(t, ".cache", cfg.Cache.Dir)
	require.Equal(t, BackendFile, cfg.Cache.Backend)
	require.Equal(t, 8000, cfg.Api.Port)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `{
		// credentials usually live in config.local.json5
		mircrew: {
			username: "file-user",
			password: "file-pass",
			browser: { headless: false },
		},
		cache: { backend: "sqlite" },
		api: { port: 9000 },
	}`)
	t.Setenv("MIRCREW_PASSWORD", "env-pass")
	t.Setenv("MIRCREW_DRIVER", "browser")
	t.Setenv("API_PORT", "9100")

	cfg, err := Load(path)
	require.Nil(t, err)

	require.Equal(t, mircrew.Credentials{
		Username: "file-user",
		Password: "env-pass",
	}, cfg.Credentials())
	require.Equal(t, DriverBrowser, cfg.Mircrew.Driver)
	require.False(t, *cfg.Mircrew.Browser.Headless)
	require.Equal(t, BackendSQLite, cfg.Cache.Backend)
	require.Equal(t, 9100, cfg.Api.Port)
}

func TestLoadLocalOverride(t *testing.T) {
	path := writeConfig(t, `{ mircrew: { username: "shared" } }`)
	err := os.WriteFile(
		filepath.Join(filepath.Dir(path), "config.local.json5"),
		[]byte(`{ mircrew: { password: "local-secret" } }`),
		0600,
	)
	require.Nil(t, err)

	cfg, err := Load(path)
	require.Nil(t, err)
	require.Equal(t, "shared", cfg.Mircrew.Username)
	require.Equal(t, "local-secret", cfg.Mircrew.Password)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name     string
		contents string
	}{
		{name: "unknown driver", contents: `{ mircrew: { driver: "carrier-pigeon" } }`},
		{name: "unknown backend", contents: `{ cache: { backend: "redis" } }`},
		{name: "port out of range", contents: `{ api: { port: 70000 } }`},
		{name: "malformed", contents: `{ mircrew: `},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.contents))
			require.NotNil(t, err)
		})
	}
}
