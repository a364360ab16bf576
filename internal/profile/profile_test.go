package profile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProfileFromEnv 测试从环境变量读取 webhook 配置。
func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "webhook url",
			env:      map[string]string{"JOURNALRECAP_WEBHOOK_URL": "https://hooks.example.com/recap"},
			field:    func(p *Profile) string { return p.WebhookURL },
			expected: "https://hooks.example.com/recap",
		},
		{
			name:     "webhook timeout default",
			env:      map[string]string{},
			field:    func(p *Profile) string { return strconv.Itoa(p.WebhookTimeout) },
			expected: "30",
		},
		{
			name:     "webhook timeout override",
			env:      map[string]string{"JOURNALRECAP_WEBHOOK_TIMEOUT_SECONDS": "5"},
			field:    func(p *Profile) string { return strconv.Itoa(p.WebhookTimeout) },
			expected: "5",
		},
		{
			name:     "invalid timeout falls back",
			env:      map[string]string{"JOURNALRECAP_WEBHOOK_TIMEOUT_SECONDS": "soon"},
			field:    func(p *Profile) string { return strconv.Itoa(p.WebhookTimeout) },
			expected: "30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JOURNALRECAP_WEBHOOK_URL", "")
			t.Setenv("JOURNALRECAP_WEBHOOK_TIMEOUT_SECONDS", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			p := &Profile{}
			p.FromEnv()
			if got := tt.field(p); got != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, got)
			}
		})
	}
}

func TestValidate_SqliteDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	p := &Profile{Mode: "bogus", Data: dir}

	require.NoError(t, p.Validate())

	assert.Equal(t, "dev", p.Mode)
	assert.True(t, p.IsDev())
	assert.Equal(t, "sqlite", p.Driver)
	assert.Equal(t, filepath.Join(dir, "journalrecap_dev.db"), p.DSN)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidate_SecretIsCreatedOnceAndReused(t *testing.T) {
	dir := t.TempDir()

	first := &Profile{Mode: "prod", Data: dir}
	require.NoError(t, first.Validate())
	assert.Len(t, first.Secret, 64)
	assert.False(t, first.IsDev())

	raw, err := os.ReadFile(filepath.Join(dir, secretFileName))
	require.NoError(t, err)
	assert.Equal(t, first.Secret, strings.TrimSpace(string(raw)))

	info, err := os.Stat(filepath.Join(dir, secretFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second := &Profile{Mode: "prod", Data: dir}
	require.NoError(t, second.Validate())
	assert.Equal(t, first.Secret, second.Secret)
}

func TestValidate_ExplicitSecretSkipsFile(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Data: dir, Secret: "from-flag"}
	require.NoError(t, p.Validate())

	assert.Equal(t, "from-flag", p.Secret)
	_, err := os.Stat(filepath.Join(dir, secretFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
	}{
		{name: "unknown driver", profile: Profile{Driver: "mysql"}},
		{name: "postgres without dsn", profile: Profile{Driver: "postgres"}},
		{name: "bad port", profile: Profile{Port: 70000}},
		{name: "negative rate", profile: Profile{RateLimit: -1}},
		{name: "wildcard origin", profile: Profile{CORSOrigins: []string{"*"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.profile
			p.Data = t.TempDir()
			p.Secret = "s"
			assert.Error(t, p.Validate())
		})
	}
}

func TestValidate_CORSOrigins(t *testing.T) {
	p := &Profile{Data: t.TempDir(), Secret: "s"}
	require.NoError(t, p.Validate())
	assert.Equal(t, []string{DefaultCORSOrigin}, p.CORSOrigins)

	p = &Profile{Data: t.TempDir(), Secret: "s", CORSOrigins: []string{" http://localhost:5173/ ", ""}}
	require.NoError(t, p.Validate())
	assert.Equal(t, []string{"http://localhost:5173"}, p.CORSOrigins)
}
