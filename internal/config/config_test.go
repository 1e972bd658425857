package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults_Succeeds(t *testing.T) {
	for _, k := range []string{"DB_PATH", "GRPC_ADDRESS", "HTTP_ADDRESS", "JWT_SECRET", "OCR_TIMEOUT"} {
		os.Unsetenv(k)
	}
	cfg, err := LoadWithDefaults()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.GRPC.Address)
	assert.NotEmpty(t, cfg.HTTP.Address)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, int64(10<<20), cfg.Media.MaxUploadBytes)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	os.Unsetenv("JWT_SECRET")
	t.Setenv("OAUTH_CLIENT_ID", "client")
	t.Setenv("OAUTH_CLIENT_SECRET", "secret")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "x")
	_, err = Load()
	require.NoError(t, err)

	t.Setenv("OAUTH_CLIENT_SECRET", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("OCR_TIMEOUT", "soon")
	_, err := LoadWithDefaults()
	assert.Error(t, err)

	t.Setenv("OCR_TIMEOUT", "5s")
	t.Setenv("DRONE_CRUISE_MPH", "fast")
	_, err = LoadWithDefaults()
	assert.Error(t, err)
}

func TestString_MasksSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "super-secret-value")
	cfg, err := LoadWithDefaults()
	require.NoError(t, err)
	assert.NotContains(t, cfg.String(), "super-secret-value")
}
