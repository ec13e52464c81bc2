package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestIsDev(t *testing.T) {
	withEnv(t, map[string]string{"APP_ENV": "dev"})
	assert.True(t, IsDev())

	withEnv(t, map[string]string{"APP_ENV": "prod"})
	assert.False(t, IsDev())
}

func TestGetEnvIntAndDuration(t *testing.T) {
	withEnv(t, map[string]string{
		"CACHE_SESSION_MAX": "42",
		"BAD_INT":           "many",
		"CACHE_SESSION_TTL": "90",
		"QUERY_CACHE_TTL":   "15m",
		"BAD_DURATION":      "soon",
	})

	assert.Equal(t, 42, GetEnvInt("CACHE_SESSION_MAX", 1))
	assert.Equal(t, 7, GetEnvInt("BAD_INT", 7))
	assert.Equal(t, 7, GetEnvInt("CHATFOX_TEST_MISSING_INT", 7))

	assert.Equal(t, 90*time.Second, GetEnvDuration("CACHE_SESSION_TTL", time.Second))
	assert.Equal(t, 15*time.Minute, GetEnvDuration("QUERY_CACHE_TTL", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("BAD_DURATION", time.Second))
}
