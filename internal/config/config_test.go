package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(New(), "", "")
	require.NoError(t, err)
	require.Equal(t, ":8443", c.Addr)
	require.Equal(t, 5*time.Minute, c.CacheTTL)
	require.Equal(t, 5, c.LimiterMaxFails)
	require.NotEmpty(t, c.SessionDB)
	require.Error(t, c.Validate(), "jwt key has no default")
}

func TestLoad_FileEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sitetime.yaml")
	require.NoError(t, os.WriteFile(file, []byte("addr: \":9000\"\ncache_ttl: 30s\njwt_key: from-file\n"), 0o600))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SITETIME_ORIGIN=laptop\n"), 0o600))

	t.Setenv("SITETIME_JWT_KEY", "from-env")
	t.Setenv("SITETIME_ORIGIN", "")
	require.NoError(t, os.Unsetenv("SITETIME_ORIGIN"))

	c, err := Load(New(), file, envFile)
	require.NoError(t, err)
	require.Equal(t, ":9000", c.Addr)
	require.Equal(t, 30*time.Second, c.CacheTTL)
	require.Equal(t, "from-env", c.JWTKey, "environment wins over the file")
	require.Equal(t, "laptop", c.Origin)
	require.NoError(t, c.Validate())
}

func TestLoad_MissingFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(New(), filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "nope.env"))
	require.NoError(t, err)
}

func TestLoad_BadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("addr: [unterminated\n"), 0o600))
	_, err := Load(New(), file, "")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	c := Config{DSN: "postgres://x", JWTKey: "k", AccessTTL: time.Minute, LimiterMaxFails: 3}
	require.NoError(t, c.Validate())

	c.AccessTTL = 0
	c.LimiterMaxFails = 0
	c.DSN = ""
	require.Error(t, c.Validate())
}
