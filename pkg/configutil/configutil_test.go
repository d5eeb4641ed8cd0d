package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testInner struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type testConfig struct {
	Inner testInner `json:"inner"`
	Port  int       `json:"port"`
}

type testEnv struct {
	Username string `envconfig:"TESTCFG_USERNAME"`
	Port     int    `envconfig:"TESTCFG_PORT" default:"1234"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.WriteFile(path, []byte(contents), 0600)
	require.Nil(t, err)
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		inner: { username: "user", password: "pass" },
		port: 8000,
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ inner: { password: "local" } }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.Nil(t, err)
	require.Equal(t, "user", cfg.Inner.Username)
	require.Equal(t, "local", cfg.Inner.Password)
	require.Equal(t, 8000, cfg.Port)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadEnv(t *testing.T) {
	t.Setenv("TESTCFG_USERNAME", "from-env")

	env, err := ReadEnv[testEnv]()
	require.Nil(t, err)
	require.Equal(t, "from-env", env.Username)
	require.Equal(t, 1234, env.Port)

	t.Setenv("TESTCFG_PORT", "not-a-number")
	_, err = ReadEnv[testEnv]()
	require.NotNil(t, err)
}

func TestOverride(t *testing.T) {
	cfg := testConfig{
		Inner: testInner{Username: "user", Password: "pass"},
		Port:  8000,
	}
	err := Override(&cfg, testConfig{Inner: testInner{Username: "other"}})
	require.Nil(t, err)
	require.Equal(t, testConfig{
		Inner: testInner{Username: "other", Password: "pass"},
		Port:  8000,
	}, cfg)
}
