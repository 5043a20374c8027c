package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "9999")

	v, err := Load("./config", "config")
	require.NoError(t, err)
	assert.Equal(t, 9999, v.GetInt("server.port"))
}

func TestLoadReadsYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relay.yaml"), []byte("rate_limit:\n  max_messages: 7\n"), 0o600))

	v, err := Load(dir, "relay")
	require.NoError(t, err)
	assert.Equal(t, 7, v.GetInt("rate_limit.max_messages"))
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RELAY_DOTENV_KEY=from-file\nRELAY_DOTENV_SET=from-file\n"), 0o600))
	t.Setenv("RELAY_DOTENV_SET", "from-env")
	t.Cleanup(func() { os.Unsetenv("RELAY_DOTENV_KEY") })

	_, err := Load(dir, "missing")
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv("RELAY_DOTENV_KEY"))
	assert.Equal(t, "from-env", os.Getenv("RELAY_DOTENV_SET"))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("RELAY_TEST_VALUE", "x")
	assert.Equal(t, "x", GetEnv("RELAY_TEST_VALUE", "d"))
	assert.Equal(t, "d", GetEnv("RELAY_TEST_UNSET_VALUE", "d"))
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
