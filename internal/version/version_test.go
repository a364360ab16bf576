package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVersionGreaterThan(t *testing.T) {
	tests := []struct {
		version string
		target  string
		want    bool
	}{
		{"0.2.0", "0.1.9", true},
		{"v0.2.0", "0.2.0", false},
		{"0.10.0", "0.9.0", true},
		{"0.0.0-dev", "0.1.0", false},
		{"1.0.0", "1.0.0-rc.1", true},
	}

	for _, tt := range tests {
		if got := IsVersionGreaterThan(tt.version, tt.target); got != tt.want {
			t.Errorf("IsVersionGreaterThan(%q, %q) = %v, want %v", tt.version, tt.target, got, tt.want)
		}
	}
}

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	assert.True(t, IsVersionGreaterOrEqualThan("0.2.0", "0.2.0"))
	assert.True(t, IsVersionGreaterOrEqualThan("0.3.0", "v0.2.0"))
	assert.False(t, IsVersionGreaterOrEqualThan("0.1.0", "0.2.0"))
}

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version = "0.3.1"
	GitCommit = "unknown"
	assert.Equal(t, "0.3.1", String())

	GitCommit = "0123456789abcdef"
	assert.Equal(t, "0.3.1-01234567", String())
	assert.Contains(t, StringFull(), "Commit=01234567")
}

func TestGetCurrentVersion(t *testing.T) {
	assert.Equal(t, DevVersion, GetCurrentVersion("dev"))
	assert.Equal(t, Version, GetCurrentVersion("prod"))
}
