package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yamlViper(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func TestCheckStdinSources(t *testing.T) {
	t.Run("files only", func(t *testing.T) {
		v := viper.New()
		v.Set("database.dsn_file", "/run/secrets/dsn")
		v.Set("database.password_file", "/run/secrets/password")
		assert.NoError(t, checkStdinSources(v))
	})

	t.Run("one stdin source", func(t *testing.T) {
		v := viper.New()
		v.Set("database.password_file", "@-")
		assert.NoError(t, checkStdinSources(v))
	})

	t.Run("two stdin sources", func(t *testing.T) {
		v := viper.New()
		v.Set("database.dsn_file", "@-")
		v.Set("database.password_file", " @- ")

		err := checkStdinSources(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.dsn_file, database.password_file")
	})
}

func TestDecodeStrict(t *testing.T) {
	t.Run("decodes durations and comma lists", func(t *testing.T) {
		v := yamlViper(t, `
database:
  driver: postgres
  query_timeout: 45s
  read_only: true
server:
  max_body_bytes: 65536
  cors_allowed_origins: "https://ops.example.com, https://bi.example.com"
`)
		cfg, err := decodeStrict(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 45*time.Second, cfg.Database.QueryTimeout)
		assert.True(t, cfg.Database.ReadOnly)
		assert.Equal(t, int64(65536), cfg.Server.MaxBodyBytes)
		assert.Equal(t, []string{"https://ops.example.com", "https://bi.example.com"}, cfg.Server.CORSAllowedOrigins)
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		v := yamlViper(t, `
server:
  max_body_size: 1024
`)
		_, err := decodeStrict(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_body_size")
	})

	t.Run("rejects retired oidc_skip_tls_verify", func(t *testing.T) {
		v := yamlViper(t, `
server:
  auth:
    oidc_enabled: true
    oidc_issuer_url: https://issuer.example.com
    oidc_audience: fleet-reports
    oidc_skip_tls_verify: true
`)
		_, err := decodeStrict(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oidc_skip_tls_verify")
	})
}

func TestStringToStringSliceHook_EmptyString(t *testing.T) {
	v := yamlViper(t, `
server:
  cors_allowed_headers: ""
`)
	cfg, err := decodeStrict(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.CORSAllowedHeaders)
}
