package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}))
	return cfg
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := defaultConfig(t)

	require.NoError(t, validateConfig(cfg))
	assert.Equal(t, 500, cfg.ChunkerCfg.Size)
	assert.Equal(t, 50, cfg.ChunkerCfg.Overlap)
	assert.InDelta(t, 0.1, cfg.GenerationCfg.Temperature, 1e-9)
	assert.Nil(t, cfg.RetrievalCfg.SimilarityFloor)
	assert.Nil(t, cfg.GenerationCfg.Seed)
	assert.Equal(t, uint(2), cfg.GenerationCfg.Retry.Attempts)
	assert.Equal(t, uint(2), cfg.IndexCfg.Retry.Attempts)
	assert.Equal(t, 25*time.Second, cfg.GenerationCfg.Retry.Timeout)
	assert.False(t, cfg.NeedsDatabase())
	assert.Equal(t, "memory", cfg.TelegramCfg.StateBackend)
}

func TestValidateConfig_GenerationRetriesFitQueryTimeout(t *testing.T) {
	cfg := defaultConfig(t)
	assert.Less(t, cfg.GenerationCfg.Retry.Budget(), cfg.QueryTimeout)

	cfg.GenerationCfg.Retry.Timeout = 30 * time.Second
	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_TIMEOUT")

	cfg.QueryTimeout = 90 * time.Second
	assert.NoError(t, validateConfig(cfg))
}

func TestNeedsDatabase_TelegramState(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.TelegramCfg.StateBackend = "postgres"

	assert.True(t, cfg.NeedsDatabase())

	cfg.TelegramCfg.StateBackend = "file"
	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_STATE_BACKEND")
}

func TestValidateConfig_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.ChunkerCfg.Overlap = cfg.ChunkerCfg.Size
	cfg.IndexCfg.Backend = "qdrant"
	cfg.AuditCfg.Sink = "postgres"

	err := validateConfig(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_OVERLAP")
	assert.Contains(t, err.Error(), "INDEX_BACKEND")
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestParseAccessPolicy(t *testing.T) {
	data := []byte(`
roles:
  employee: [can_query_rag]
anonymous_role: employee
users:
  - {id: u1, role: employee, active: true}
`)

	policy, err := ParseAccessPolicy(data)

	require.NoError(t, err)
	assert.Equal(t, []string{"can_query_rag"}, policy.Roles["employee"])
	assert.Equal(t, "employee", policy.AnonymousRole)
	require.Len(t, policy.Users, 1)
	assert.True(t, policy.Users[0].Active)
}

func TestParseAccessPolicy_Invalid(t *testing.T) {
	cases := map[string]string{
		"no roles":       `users: []`,
		"unknown role":   "roles: {employee: [can_query_rag]}\nusers: [{id: u1, role: ghost}]",
		"duplicate user": "roles: {employee: []}\nusers: [{id: u1, role: employee}, {id: u1, role: employee}]",
		"reserved id":    "roles: {employee: []}\nusers: [{id: anonymous, role: employee}]",
		"bad anonymous":  "roles: {employee: []}\nanonymous_role: ghost",
		"malformed yaml": "roles: [",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessPolicy([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadAccessPolicy_MissingFileFallsBack(t *testing.T) {
	policy, err := LoadAccessPolicy(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultAccessPolicy(), policy)
}

func TestLoadAccessPolicy_BundledFile(t *testing.T) {
	data, err := os.ReadFile("access_policy.yaml")
	require.NoError(t, err)

	policy, err := ParseAccessPolicy(data)

	require.NoError(t, err)
	assert.Contains(t, policy.Roles["admin"], "can_modify_knowledge_base")
	assert.NotEmpty(t, policy.Users)
}
