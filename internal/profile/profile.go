package profile

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start journalrecap.
type Profile struct {
	// Mode is dev or prod.
	Mode string
	// Data is the directory holding the sqlite database and secret key.
	Data string
	// Driver is sqlite or postgres.
	Driver string
	DSN    string
	// Secret seals the API key at rest. Loaded from <Data>/secret.key when empty.
	Secret string

	// HTTP API
	Addr      string
	Port      int
	Vault     string
	RateLimit float64
	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string

	// Run webhook (optional)
	WebhookURL     string
	WebhookTimeout int // seconds

	Version string
}

const secretFileName = "secret.key"

// DefaultCORSOrigin is the origin of the Obsidian desktop app.
const DefaultCORSOrigin = "app://obsidian.md"

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads the settings that have no command line flag.
func (p *Profile) FromEnv() {
	p.WebhookURL = getEnvOrDefault("JOURNALRECAP_WEBHOOK_URL", p.WebhookURL)
	p.WebhookTimeout = getEnvOrDefaultInt("JOURNALRECAP_WEBHOOK_TIMEOUT_SECONDS", 30)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dataDir, 0o770); err != nil {
			return "", errors.Wrapf(err, "unable to create data folder %s", dataDir)
		}
	} else if err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to locate user config dir")
	}
	return filepath.Join(base, "journalrecap"), nil
}

// loadOrCreateSecret reads the instance secret, creating it on first use.
func loadOrCreateSecret(dataDir string) (string, error) {
	path := filepath.Join(dataDir, secretFileName)
	raw, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(raw))
		if secret == "" {
			return "", errors.Errorf("secret file %s is empty", path)
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "failed to read secret file %s", path)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate secret")
	}
	secret := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return "", errors.Wrapf(err, "failed to write secret file %s", path)
	}
	slog.Info("generated instance secret", slog.String("path", path))
	return secret, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Data == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return err
		}
		p.Data = dir
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch {
	case p.Driver == "sqlite" && p.DSN == "":
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("journalrecap_%s.db", p.Mode))
	case p.Driver == "postgres" && p.DSN == "":
		return errors.New("dsn required for postgres driver")
	}

	if p.Secret == "" {
		secret, err := loadOrCreateSecret(dataDir)
		if err != nil {
			return err
		}
		p.Secret = secret
	}

	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.RateLimit < 0 {
		return errors.Errorf("rate limit must not be negative, got %v", p.RateLimit)
	}
	if p.WebhookTimeout <= 0 {
		p.WebhookTimeout = 30
	}

	origins := make([]string, 0, len(p.CORSOrigins))
	for _, origin := range p.CORSOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			return errors.New("cors origin \"*\" is not allowed, list each origin")
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = []string{DefaultCORSOrigin}
	}
	p.CORSOrigins = origins
	return nil
}
